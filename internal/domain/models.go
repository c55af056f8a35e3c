package domain

import (
	"net/url"
	"path"
	"strings"
	"time"
)

// Domain contains core models shared by the crawler, storage and publishers.

// ListingTask identifies one listing page slot of the archive for a single day.
type ListingTask struct {
	Date time.Time
	Page int
	URL  string
}

// ArticleCandidate is a link discovered on a listing page.
type ArticleCandidate struct {
	Title string
	Href  string
}

// ArticleRecord is the persisted form of an article, one JSON document per sink line.
type ArticleRecord struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	PublishTime *string   `json:"publish_time"`
	SourceName  string    `json:"source_name"`
	BodyText    string    `json:"body_text"`
	Author      *string   `json:"author"`
	Category    *string   `json:"category"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// ArticleIDFromURL derives the record id from the last path segment of the URL
// with its extension removed.
func ArticleIDFromURL(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		p = u.Path
	}
	base := path.Base(strings.TrimRight(p, "/"))
	if base == "." || base == "/" {
		return ""
	}
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// OptionalString returns nil for blank values so they serialize as null.
func OptionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
