package crawler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/samvad-hq/samvad-archive-crawler/pkg/httpclient"
	"golang.org/x/time/rate"
)

const (
	maxBackoffShift   = 16
	errorSnippetBytes = 256
)

// Page is a successfully fetched document.
type Page struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Attempts    int
}

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	Snippet    string
}

func (e *StatusError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d body: %s", e.StatusCode, e.Snippet)
}

// HTTPStatus returns the response status code.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// FetchError is returned once every attempt for a URL has failed.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FetchOptions configures retry, timeout and pacing for a PageFetcher.
type FetchOptions struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	BackoffMin     time.Duration
	BackoffMax     time.Duration
	PolitenessMin  time.Duration
	PolitenessMax  time.Duration
	Headers        map[string]string
	// Limiter is shared by every fetcher of a run; nil means unlimited.
	Limiter  *rate.Limiter
	Observer Observer
}

// PageFetcher performs GETs with bounded retries over one client session.
// A PageFetcher belongs to a single worker and is not safe for concurrent use.
type PageFetcher struct {
	client httpclient.Client
	kind   string
	opts   FetchOptions

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(lo, hi time.Duration) time.Duration
}

// FetcherFactory builds a fresh fetcher (with its own session) for a worker.
type FetcherFactory func(kind string) *PageFetcher

// NewPageFetcher wraps client. kind labels telemetry (listing, article, month_index).
func NewPageFetcher(client httpclient.Client, kind string, opts FetchOptions) *PageFetcher {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &PageFetcher{
		client: client,
		kind:   kind,
		opts:   opts,
		sleep:  sleepContext,
		jitter: uniform,
	}
}

// Fetch GETs url. Each attempt gets its own timeout and is not interrupted by
// ctx; cancelling ctx only prevents further attempts. After a success or
// exhaustion the fetcher pauses for the politeness delay.
func (f *PageFetcher) Fetch(ctx context.Context, url string) (Page, error) {
	start := time.Now()
	attempts := 0
	var lastErr error

	for attempts < f.opts.MaxAttempts {
		if attempts > 0 {
			if err := f.sleep(ctx, f.backoff(attempts)); err != nil {
				lastErr = errors.Join(lastErr, err)
				break
			}
		}
		if err := ctx.Err(); err != nil {
			lastErr = errors.Join(lastErr, err)
			break
		}
		if f.opts.Limiter != nil {
			if err := f.opts.Limiter.Wait(ctx); err != nil {
				lastErr = errors.Join(lastErr, err)
				break
			}
		}

		attempts++
		resp, err := f.attempt(ctx, url)
		if err == nil {
			f.opts.Observer.ObserveFetch(f.kind, attempts, time.Since(start), nil)
			f.politeness(ctx)
			return Page{
				URL:         url,
				StatusCode:  resp.StatusCode(),
				ContentType: resp.ContentType(),
				Body:        resp.Body(),
				Attempts:    attempts,
			}, nil
		}
		lastErr = err
	}

	fetchErr := &FetchError{URL: url, Attempts: attempts, Err: lastErr}
	f.opts.Observer.ObserveFetch(f.kind, attempts, time.Since(start), fetchErr)
	f.politeness(ctx)
	return Page{}, fetchErr
}

func (f *PageFetcher) attempt(ctx context.Context, url string) (httpclient.Response, error) {
	actx := context.WithoutCancel(ctx)
	if f.opts.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(actx, f.opts.AttemptTimeout)
		defer cancel()
	}

	resp, err := f.client.Get(actx, url, f.opts.Headers)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	if code := resp.StatusCode(); code < 200 || code > 299 {
		return nil, &StatusError{StatusCode: code, Snippet: snippet(resp.Body())}
	}
	return resp, nil
}

// backoff returns the pause before retry n (n >= 1); the range doubles per retry.
func (f *PageFetcher) backoff(n int) time.Duration {
	shift := n - 1
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	scale := time.Duration(1) << shift
	return f.jitter(f.opts.BackoffMin*scale, f.opts.BackoffMax*scale)
}

func (f *PageFetcher) politeness(ctx context.Context) {
	_ = f.sleep(ctx, f.jitter(f.opts.PolitenessMin, f.opts.PolitenessMax))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// uniform draws from [lo, hi].
func uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo)+1))
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > errorSnippetBytes {
		s = s[:errorSnippetBytes]
	}
	return s
}
