package sites

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/samvad-hq/samvad-archive-crawler/internal/domain"
	"golang.org/x/net/html"
)

const isoLocalLayout = "2006-01-02T15:04:05"

// SelectorExtractor pulls article fields out of HTML using a site's ExtractRules.
// It holds only immutable compiled state and is safe for concurrent use.
type SelectorExtractor struct {
	rules   ExtractRules
	urlDate *regexp.Regexp
}

// NewExtractor compiles the site's extraction rules.
func NewExtractor(s Site) (*SelectorExtractor, error) {
	ex := &SelectorExtractor{rules: s.Extract}
	if p := strings.TrimSpace(s.Extract.URLDatePattern); p != "" {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile url_date_pattern for site %q: %w", s.ID, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("url_date_pattern for site %q needs a capture group", s.ID)
		}
		ex.urlDate = re
	}
	return ex, nil
}

// Extract returns the article fields, domain.ErrStructureChanged when no body
// container matched, or domain.ErrNoBody when the container was empty.
func (e *SelectorExtractor) Extract(body []byte, contentType, pageURL string) (domain.Extraction, error) {
	r, err := utf8Reader(body, contentType)
	if err != nil {
		return domain.Extraction{}, err
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("parse article html: %w", err)
	}

	container := e.bodyContainer(doc)
	if container == nil {
		return domain.Extraction{}, domain.ErrStructureChanged
	}
	text := normalizeText(container)
	if text == "" {
		return domain.Extraction{}, domain.ErrNoBody
	}

	return domain.Extraction{
		Body:        text,
		PublishTime: e.publishTime(doc, pageURL),
		Author:      e.author(doc),
		Category:    e.category(doc),
	}, nil
}

func (e *SelectorExtractor) bodyContainer(doc *goquery.Document) *goquery.Selection {
	for _, sel := range e.rules.BodySelectors {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			return node
		}
	}
	return nil
}

func (e *SelectorExtractor) publishTime(doc *goquery.Document, pageURL string) string {
	if e.rules.PublishedSelector != "" {
		node := doc.Find(e.rules.PublishedSelector).First()
		raw := ""
		if e.rules.PublishedAttr != "" {
			raw, _ = node.Attr(e.rules.PublishedAttr)
		} else {
			raw = node.Text()
		}
		if ts, ok := parseTime(raw, e.rules.PublishedLayout); ok {
			return ts
		}
	}

	if e.urlDate != nil {
		if m := e.urlDate.FindStringSubmatch(pageURL); len(m) > 1 {
			if ts, ok := parseTime(m[1], e.rules.URLDateLayout); ok {
				return ts
			}
		}
	}
	return ""
}

func parseTime(raw, layout string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if layout == "" {
		layout = time.RFC3339
	}
	t, err := time.Parse(layout, raw)
	if err != nil {
		return "", false
	}
	return t.Format(isoLocalLayout), true
}

func (e *SelectorExtractor) author(doc *goquery.Document) string {
	if e.rules.BylineSelector == "" {
		return ""
	}
	byline := strings.TrimSpace(doc.Find(e.rules.BylineSelector).First().Text())
	for _, strip := range e.rules.BylineStrip {
		byline = strings.ReplaceAll(byline, strip, "")
	}
	byline = strings.TrimSpace(byline)
	for _, prefix := range e.rules.BylineRejectPrefixes {
		if prefix != "" && strings.HasPrefix(byline, prefix) {
			return ""
		}
	}
	return byline
}

func (e *SelectorExtractor) category(doc *goquery.Document) string {
	if e.rules.CategoryMeta != "" {
		if val, ok := doc.Find(e.rules.CategoryMeta).First().Attr("content"); ok {
			if val = strings.TrimSpace(val); val != "" {
				return val
			}
		}
	}
	if e.rules.CategoryFallbackSelector != "" {
		links := doc.Find(e.rules.CategoryFallbackSelector)
		if links.Length() > e.rules.CategoryFallbackIndex {
			return strings.TrimSpace(links.Eq(e.rules.CategoryFallbackIndex).Text())
		}
	}
	return ""
}

// normalizeText joins the selection's text nodes with single spaces,
// skipping script and style content.
func normalizeText(sel *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}
