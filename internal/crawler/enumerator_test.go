package crawler

import (
	"testing"
	"time"

	"github.com/samvad-hq/samvad-archive-crawler/internal/config"
)

func ym(y int, m time.Month) config.YearMonth { return config.YearMonth{Year: y, Month: m} }

func TestEnumerateSingleMonth(t *testing.T) {
	tasks := Enumerate(ym(2019, time.January), ym(2019, time.January), 2, time.Time{})
	if len(tasks) != 62 {
		t.Fatalf("expected 62 tasks, got %d", len(tasks))
	}
	first, last := tasks[0], tasks[len(tasks)-1]
	if first.Date.Day() != 1 || first.Page != 1 || tasks[1].Page != 2 {
		t.Fatalf("unexpected ordering at start: %+v %+v", first, tasks[1])
	}
	if last.Date.Day() != 31 || last.Page != 2 {
		t.Fatalf("unexpected last task %+v", last)
	}
}

func TestEnumerateYearRolloverAndLeapYear(t *testing.T) {
	tasks := Enumerate(ym(2019, time.December), ym(2020, time.February), 1, time.Time{})
	if len(tasks) != 31+31+29 {
		t.Fatalf("expected 91 tasks, got %d", len(tasks))
	}
	for i := 1; i < len(tasks); i++ {
		if !tasks[i].Date.After(tasks[i-1].Date) {
			t.Fatalf("tasks not chronological at %d: %v then %v", i, tasks[i-1].Date, tasks[i].Date)
		}
	}
	if got := tasks[len(tasks)-1].Date; got.Year() != 2020 || got.Month() != time.February || got.Day() != 29 {
		t.Fatalf("unexpected last day %v", got)
	}
	if n := len(Enumerate(ym(2019, time.February), ym(2019, time.February), 1, time.Time{})); n != 28 {
		t.Fatalf("expected 28 days in Feb 2019, got %d", n)
	}
}

func TestEnumerateCapsAtToday(t *testing.T) {
	now := time.Date(2025, time.July, 14, 23, 59, 0, 0, time.UTC)
	tasks := Enumerate(ym(2025, time.June), ym(2025, time.July), 2, now)
	if len(tasks) != (30+14)*2 {
		t.Fatalf("expected %d tasks, got %d", (30+14)*2, len(tasks))
	}
	for _, task := range tasks {
		if task.Date.After(now) {
			t.Fatalf("task %v after now", task.Date)
		}
	}
}

func TestEnumerateEmptyWhenStartAfterEnd(t *testing.T) {
	if tasks := Enumerate(ym(2019, time.March), ym(2019, time.January), 2, time.Time{}); len(tasks) != 0 {
		t.Fatalf("expected no tasks, got %d", len(tasks))
	}
	if tasks := Enumerate(ym(2019, time.March), ym(2019, time.March), 0, time.Time{}); len(tasks) != 0 {
		t.Fatalf("expected no tasks for zero pages")
	}
}

func TestEnumerateURLsUsesSiteTemplate(t *testing.T) {
	site := testSite()
	site.PagesPerDay = 2
	tasks := EnumerateURLs(site, ym(2019, time.January), ym(2019, time.January), 0, time.Time{})
	if len(tasks) != 62 {
		t.Fatalf("expected site pages per day to apply, got %d tasks", len(tasks))
	}
	if tasks[3].URL != "https://www.yna.co.kr/sitemap/articles/2019/01/02-2.htm" {
		t.Fatalf("unexpected url %q", tasks[3].URL)
	}
}
