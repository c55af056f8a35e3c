package crawler

import (
	"time"

	"github.com/samvad-hq/samvad-archive-crawler/internal/config"
	"github.com/samvad-hq/samvad-archive-crawler/internal/domain"
	"github.com/samvad-hq/samvad-archive-crawler/pkg/sites"
)

// Enumerate lists one task per (day, page) between the inclusive month bounds,
// in chronological order. Days after now are skipped; a zero now disables the
// cap. start after end yields an empty slice.
func Enumerate(start, end config.YearMonth, pagesPerDay int, now time.Time) []domain.ListingTask {
	if pagesPerDay < 1 || start.After(end) {
		return nil
	}

	var limit time.Time
	if !now.IsZero() {
		limit = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}

	var tasks []domain.ListingTask
	for ym := start; !ym.After(end); ym = nextMonth(ym) {
		days := daysIn(ym.Year, ym.Month)
		for d := 1; d <= days; d++ {
			day := time.Date(ym.Year, ym.Month, d, 0, 0, 0, 0, time.UTC)
			if !limit.IsZero() && day.After(limit) {
				return tasks
			}
			for p := 1; p <= pagesPerDay; p++ {
				tasks = append(tasks, domain.ListingTask{Date: day, Page: p})
			}
		}
	}
	return tasks
}

// EnumerateURLs is Enumerate with each task's URL rendered from the site template.
func EnumerateURLs(site sites.Site, start, end config.YearMonth, pagesPerDay int, now time.Time) []domain.ListingTask {
	if pagesPerDay < 1 {
		pagesPerDay = site.PagesPerDay
	}
	tasks := Enumerate(start, end, pagesPerDay, now)
	for i := range tasks {
		tasks[i].URL = site.ListingURL(tasks[i].Date, tasks[i].Page)
	}
	return tasks
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func nextMonth(ym config.YearMonth) config.YearMonth {
	if ym.Month == time.December {
		return config.YearMonth{Year: ym.Year + 1, Month: time.January}
	}
	return config.YearMonth{Year: ym.Year, Month: ym.Month + 1}
}
