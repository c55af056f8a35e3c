package sites

import (
	"errors"
	"testing"

	"github.com/samvad-hq/samvad-archive-crawler/internal/domain"
)

func yonhapExtractor(t *testing.T) *SelectorExtractor {
	t.Helper()
	s := yonhap()
	s.Extract = ExtractRules{
		BodySelectors:            []string{"div.story-news.article", "article#article-view-content-div"},
		PublishedSelector:        "#newsUpdateTime01",
		PublishedAttr:            "data-published-time",
		PublishedLayout:          "2006-01-02 15:04",
		URLDatePattern:           `AKR(\d{8})`,
		URLDateLayout:            "20060102",
		BylineSelector:           "p.byline",
		BylineStrip:              []string{"기자 :", "기자", "취재 :", ":"},
		BylineRejectPrefixes:     []string{"자료사진"},
		CategoryMeta:             `meta[property="article:section"]`,
		CategoryFallbackSelector: "span.location a",
		CategoryFallbackIndex:    1,
	}
	ex, err := NewExtractor(s)
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	return ex
}

const fullArticle = `<html><head>
<meta property="article:section" content="정치">
</head><body>
<p id="newsUpdateTime01" data-published-time="2019-01-05 14:30">2019-01-05 14:30</p>
<div class="story-news article">
  <p>첫 문단입니다.</p>
  <script>var tracking = 1;</script>
  <style>.x{}</style>
  <p>둘째   문단
     입니다.</p>
  <p class="byline">홍길동 기자 :</p>
</div>
</body></html>`

func TestExtractFullArticle(t *testing.T) {
	ex := yonhapExtractor(t)

	got, err := ex.Extract([]byte(fullArticle), "text/html; charset=utf-8", "https://www.yna.co.kr/view/AKR20190105000100001")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Body != "첫 문단입니다. 둘째 문단 입니다. 홍길동 기자 :" {
		t.Fatalf("unexpected body %q", got.Body)
	}
	if got.PublishTime != "2019-01-05T14:30:00" {
		t.Fatalf("unexpected publish time %q", got.PublishTime)
	}
	if got.Author != "홍길동" {
		t.Fatalf("unexpected author %q", got.Author)
	}
	if got.Category != "정치" {
		t.Fatalf("unexpected category %q", got.Category)
	}
}

func TestExtractFallbacks(t *testing.T) {
	ex := yonhapExtractor(t)
	page := `<html><body>
<span class="location"><a href="/">홈</a><a href="/economy">경제</a></span>
<article id="article-view-content-div"><p>본문</p></article>
<p class="byline">자료사진 제공</p>
</body></html>`

	got, err := ex.Extract([]byte(page), "text/html", "https://www.yna.co.kr/view/AKR20180302000100001")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Body != "본문" {
		t.Fatalf("unexpected body %q", got.Body)
	}
	if got.PublishTime != "2018-03-02T00:00:00" {
		t.Fatalf("expected publish time from url, got %q", got.PublishTime)
	}
	if got.Author != "" {
		t.Fatalf("expected rejected byline, got %q", got.Author)
	}
	if got.Category != "경제" {
		t.Fatalf("expected fallback category, got %q", got.Category)
	}
}

func TestExtractMissingOptionalFields(t *testing.T) {
	ex := yonhapExtractor(t)
	page := `<div class="story-news article">text only</div>`

	got, err := ex.Extract([]byte(page), "", "https://www.yna.co.kr/view/XYZ")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.PublishTime != "" || got.Author != "" || got.Category != "" {
		t.Fatalf("expected empty optional fields, got %#v", got)
	}
}

func TestExtractEmptyBody(t *testing.T) {
	ex := yonhapExtractor(t)
	page := `<div class="story-news article">  <script>x()</script>  </div>`

	_, err := ex.Extract([]byte(page), "", "https://www.yna.co.kr/view/AKR1")
	if !errors.Is(err, domain.ErrNoBody) {
		t.Fatalf("expected ErrNoBody, got %v", err)
	}
}

func TestExtractStructureChanged(t *testing.T) {
	ex := yonhapExtractor(t)

	_, err := ex.Extract([]byte(`<div class="new-layout">body</div>`), "", "https://www.yna.co.kr/view/AKR1")
	if !errors.Is(err, domain.ErrStructureChanged) {
		t.Fatalf("expected ErrStructureChanged, got %v", err)
	}
}

func TestNewExtractorRejectsBadPattern(t *testing.T) {
	s := Site{ID: "x", Extract: ExtractRules{URLDatePattern: "AKR("}}
	if _, err := NewExtractor(s); err == nil {
		t.Fatalf("expected compile error")
	}
	s.Extract.URLDatePattern = `AKR\d{8}`
	if _, err := NewExtractor(s); err == nil {
		t.Fatalf("expected capture group error")
	}
}
