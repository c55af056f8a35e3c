package crawler

import (
	"context"
	"time"

	"github.com/samvad-hq/samvad-archive-crawler/internal/domain"
	"github.com/samvad-hq/samvad-archive-crawler/pkg/publishers"
)

// Extractor turns a fetched article page into its fields. Implementations
// must be pure in (body, url) and safe for concurrent use.
type Extractor interface {
	Extract(body []byte, contentType, url string) (domain.Extraction, error)
}

// URLFilter decides whether an article URL may be fetched.
type URLFilter interface {
	Allowed(url string) bool
}

// patternMatcher is implemented by filters that can name the rule denying a URL.
type patternMatcher interface {
	Match(url string) (pattern string, denied bool)
}

// Reserver is the dedup index seen by article workers.
type Reserver interface {
	Reserve(url string) bool
	Release(url string)
	Commit(url string) error
}

// RecordWriter appends persisted records.
type RecordWriter interface {
	Append(rec domain.ArticleRecord) error
}

// EventPublisher publishes persisted records downstream.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// Observer receives run telemetry. Implementations must be safe for concurrent use.
type Observer interface {
	ObserveOutcome(outcome string, n int64)
	ObserveFetch(kind string, attempts int, elapsed time.Duration, err error)
	WorkerStarted(tier string)
	WorkerStopped(tier string)
}

type nopObserver struct{}

func (nopObserver) ObserveOutcome(string, int64)                     {}
func (nopObserver) ObserveFetch(string, int, time.Duration, error) {}
func (nopObserver) WorkerStarted(string)                            {}
func (nopObserver) WorkerStopped(string)                            {}
