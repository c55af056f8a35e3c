package sites

import (
	"testing"
	"time"

	"golang.org/x/text/encoding/korean"
)

func yonhap() Site {
	return Site{
		ID:                 "yna",
		BaseURL:            "https://www.yna.co.kr",
		ListingURLTemplate: "{base}/sitemap/articles/{yyyy}/{mm}/{dd}-{page}.htm",
		MonthIndexURL:      "{base}/sitemap/articles/{yyyy}-{mm}",
		ListingFormat:      ListingFormatHTML,
		LinkSelector:       "ul#sitemap-list a",
		ArticlePathMarker:  "/view/",
	}
}

func TestListingURL(t *testing.T) {
	got := yonhap().ListingURL(time.Date(2019, time.January, 5, 0, 0, 0, 0, time.UTC), 2)
	want := "https://www.yna.co.kr/sitemap/articles/2019/01/05-2.htm"
	if got != want {
		t.Fatalf("ListingURL = %q, want %q", got, want)
	}

	s := Site{BaseURL: "https://x.com", ListingURLTemplate: "{base}/{yyyy}/{m}/{d}?p={page}"}
	if got := s.ListingURL(time.Date(2020, time.March, 9, 0, 0, 0, 0, time.UTC), 1); got != "https://x.com/2020/3/9?p=1" {
		t.Fatalf("unexpected unpadded url %q", got)
	}
}

func TestMonthIndex(t *testing.T) {
	if got := yonhap().MonthIndex(2019, time.February); got != "https://www.yna.co.kr/sitemap/articles/2019-02" {
		t.Fatalf("unexpected month index %q", got)
	}
	if got := (Site{}).MonthIndex(2019, time.February); got != "" {
		t.Fatalf("expected empty month index, got %q", got)
	}
}

func TestParseHTMLListing(t *testing.T) {
	page := []byte(`<html><body>
<ul id="sitemap-list">
  <li><a href="/view/AKR1">  첫 기사 </a></li>
  <li><a href="/search/x">검색</a></li>
  <li><a href="https://www.yna.co.kr/view/AKR2">둘째 기사</a></li>
</ul>
<ul id="other"><li><a href="/view/AKR9">outside</a></li></ul>
</body></html>`)

	got, err := yonhap().ParseListing(page, "text/html; charset=utf-8")
	if err != nil {
		t.Fatalf("ParseListing: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d: %#v", len(got), got)
	}
	if got[0].Title != "첫 기사" || got[0].Href != "/view/AKR1" {
		t.Fatalf("unexpected first candidate %#v", got[0])
	}
	if got[1].Href != "/search/x" || got[2].Href != "https://www.yna.co.kr/view/AKR2" {
		t.Fatalf("unexpected candidates %#v", got)
	}
}

func TestParseHTMLListingEUCKR(t *testing.T) {
	raw := `<html><body><ul id="sitemap-list"><li><a href="/view/AKR3">경제 뉴스</a></li></ul></body></html>`
	encoded, err := korean.EUCKR.NewEncoder().String(raw)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := yonhap().ParseListing([]byte(encoded), "text/html; charset=euc-kr")
	if err != nil {
		t.Fatalf("ParseListing: %v", err)
	}
	if len(got) != 1 || got[0].Title != "경제 뉴스" {
		t.Fatalf("expected decoded title, got %#v", got)
	}
}

func TestParseSitemapListing(t *testing.T) {
	xml := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9" xmlns:news="http://www.google.com/schemas/sitemap-news/0.9">
  <url>
    <loc>https://example.com/view/A1</loc>
    <news:news><news:title>Hello</news:title></news:news>
  </url>
  <url><loc>https://example.com/view/A2</loc></url>
  <url><loc>   </loc></url>
</urlset>`)

	s := Site{ListingFormat: ListingFormatSitemapXML}
	got, err := s.ParseListing(xml, "application/xml")
	if err != nil {
		t.Fatalf("ParseListing: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].Title != "Hello" || got[1].Title != "https://example.com/view/A2" {
		t.Fatalf("unexpected titles %#v", got)
	}
}

func TestParseSitemapListingInvalid(t *testing.T) {
	s := Site{ListingFormat: ListingFormatSitemapXML}
	if _, err := s.ParseListing([]byte("<urlset><url>"), ""); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestIsArticleURL(t *testing.T) {
	s := yonhap()
	if !s.IsArticleURL("https://www.yna.co.kr/view/AKR1") {
		t.Fatalf("expected article url")
	}
	if s.IsArticleURL("https://www.yna.co.kr/sitemap/articles/2019-01") {
		t.Fatalf("did not expect article url")
	}
	if !(Site{}).IsArticleURL("https://any") {
		t.Fatalf("empty marker accepts everything")
	}
}
