package sites

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/samvad-hq/samvad-archive-crawler/internal/domain"
)

// ListingURL renders the listing template for one day and page slot.
// Supported tokens: {base} {yyyy} {mm} {m} {dd} {d} {page}.
func (s Site) ListingURL(day time.Time, page int) string {
	return expandTemplate(s.ListingURLTemplate, s.BaseURL, day, page)
}

// MonthIndex renders the optional month index URL; empty when not configured.
func (s Site) MonthIndex(year int, month time.Month) string {
	if s.MonthIndexURL == "" {
		return ""
	}
	return expandTemplate(s.MonthIndexURL, s.BaseURL, time.Date(year, month, 1, 0, 0, 0, 0, time.UTC), 1)
}

func expandTemplate(tmpl, base string, day time.Time, page int) string {
	y, m, d := day.Date()
	r := strings.NewReplacer(
		"{base}", base,
		"{yyyy}", fmt.Sprintf("%04d", y),
		"{mm}", fmt.Sprintf("%02d", int(m)),
		"{m}", strconv.Itoa(int(m)),
		"{dd}", fmt.Sprintf("%02d", d),
		"{d}", strconv.Itoa(d),
		"{page}", strconv.Itoa(page),
	)
	return r.Replace(tmpl)
}

// ParseListing extracts article candidates from a fetched listing page.
func (s Site) ParseListing(body []byte, contentType string) ([]domain.ArticleCandidate, error) {
	switch s.ListingFormat {
	case ListingFormatSitemapXML:
		return parseSitemapListing(body)
	default:
		return s.parseHTMLListing(body, contentType)
	}
}

func (s Site) parseHTMLListing(body []byte, contentType string) ([]domain.ArticleCandidate, error) {
	r, err := utf8Reader(body, contentType)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}

	var out []domain.ArticleCandidate
	doc.Find(s.LinkSelector).Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		out = append(out, domain.ArticleCandidate{
			Title: strings.TrimSpace(sel.Text()),
			Href:  strings.TrimSpace(href),
		})
	})
	return out, nil
}

type googleNewsSitemap struct {
	URLs []googleNewsURL `xml:"url"`
}

type googleNewsURL struct {
	Loc       string `xml:"loc"`
	NewsTitle string `xml:"news>title"`
}

func parseSitemapListing(data []byte) ([]domain.ArticleCandidate, error) {
	var sitemap googleNewsSitemap
	if err := xml.Unmarshal(data, &sitemap); err != nil {
		return nil, fmt.Errorf("decode sitemap listing: %w", err)
	}

	out := make([]domain.ArticleCandidate, 0, len(sitemap.URLs))
	for _, entry := range sitemap.URLs {
		loc := strings.TrimSpace(entry.Loc)
		if loc == "" {
			continue
		}
		title := strings.TrimSpace(entry.NewsTitle)
		if title == "" {
			title = loc
		}
		out = append(out, domain.ArticleCandidate{Title: title, Href: loc})
	}
	return out, nil
}
