package crawler

import (
	"sync/atomic"
	"time"
)

// Outcome is a terminal (or counted intermediate) state of a crawl task.
type Outcome int

const (
	ListingFetched Outcome = iota
	ListingFailed
	ListingCancelled
	Candidate
	SkippedFiltered
	SkippedDuplicate
	ArticleFetched
	SkippedEmpty
	Failed
	Persisted
	Cancelled
	Published
	PublishFailed

	numOutcomes
)

var outcomeNames = [numOutcomes]string{
	ListingFetched:   "listings_fetched",
	ListingFailed:    "listings_failed",
	ListingCancelled: "listings_cancelled",
	Candidate:        "candidates",
	SkippedFiltered:  "skipped_filtered",
	SkippedDuplicate: "skipped_duplicate",
	ArticleFetched:   "articles_fetched",
	SkippedEmpty:     "skipped_empty",
	Failed:           "failed",
	Persisted:        "persisted",
	Cancelled:        "cancelled",
	Published:        "published",
	PublishFailed:    "publish_failed",
}

func (o Outcome) String() string {
	if o < 0 || o >= numOutcomes {
		return "unknown"
	}
	return outcomeNames[o]
}

// Summary is a point-in-time view of the run counters.
type Summary struct {
	RunID             string        `json:"run_id"`
	SiteID            string        `json:"site_id"`
	ListingsFetched   int64         `json:"listings_fetched"`
	ListingsFailed    int64         `json:"listings_failed"`
	ListingsCancelled int64         `json:"listings_cancelled"`
	Candidates        int64         `json:"candidates"`
	SkippedFiltered   int64         `json:"skipped_filtered"`
	SkippedDuplicate  int64         `json:"skipped_duplicate"`
	ArticlesFetched   int64         `json:"articles_fetched"`
	SkippedEmpty      int64         `json:"skipped_empty"`
	Failed            int64         `json:"failed"`
	Persisted         int64         `json:"persisted"`
	Cancelled         int64         `json:"cancelled"`
	Published         int64         `json:"published"`
	PublishFailed     int64         `json:"publish_failed"`
	Elapsed           time.Duration `json:"elapsed"`
}

// Fields renders the summary as a structured log payload.
func (s Summary) Fields() map[string]any {
	return map[string]any{
		"run_id":             s.RunID,
		"site_id":            s.SiteID,
		"listings_fetched":   s.ListingsFetched,
		"listings_failed":    s.ListingsFailed,
		"listings_cancelled": s.ListingsCancelled,
		"candidates":         s.Candidates,
		"skipped_filtered":   s.SkippedFiltered,
		"skipped_duplicate":  s.SkippedDuplicate,
		"articles_fetched":   s.ArticlesFetched,
		"skipped_empty":      s.SkippedEmpty,
		"failed":             s.Failed,
		"persisted":          s.Persisted,
		"cancelled":          s.Cancelled,
		"published":          s.Published,
		"publish_failed":     s.PublishFailed,
		"elapsed_ms":         s.Elapsed.Milliseconds(),
	}
}

type counters struct {
	v        [numOutcomes]atomic.Int64
	observer Observer
}

func (c *counters) add(o Outcome, n int64) {
	if n == 0 {
		return
	}
	c.v[o].Add(n)
	c.observer.ObserveOutcome(o.String(), n)
}

func (c *counters) inc(o Outcome) { c.add(o, 1) }

func (c *counters) snapshot() Summary {
	return Summary{
		ListingsFetched:   c.v[ListingFetched].Load(),
		ListingsFailed:    c.v[ListingFailed].Load(),
		ListingsCancelled: c.v[ListingCancelled].Load(),
		Candidates:        c.v[Candidate].Load(),
		SkippedFiltered:   c.v[SkippedFiltered].Load(),
		SkippedDuplicate:  c.v[SkippedDuplicate].Load(),
		ArticlesFetched:   c.v[ArticleFetched].Load(),
		SkippedEmpty:      c.v[SkippedEmpty].Load(),
		Failed:            c.v[Failed].Load(),
		Persisted:         c.v[Persisted].Load(),
		Cancelled:         c.v[Cancelled].Load(),
		Published:         c.v[Published].Load(),
		PublishFailed:     c.v[PublishFailed].Load(),
	}
}
