package crawler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/samvad-hq/samvad-archive-crawler/internal/domain"
	"github.com/samvad-hq/samvad-archive-crawler/internal/logger"
	"github.com/samvad-hq/samvad-archive-crawler/pkg/publishers"
	"github.com/samvad-hq/samvad-archive-crawler/pkg/sites"
	"golang.org/x/sync/errgroup"
)

const (
	tierListing = "listing"
	tierArticle = "article"
	kindMonth   = "month_index"

	logTitleWidth = 48
)

// Options holds the orchestration tunables.
type Options struct {
	ListingWorkers int
	ArticleWorkers int
	RunID          string
	Now            func() time.Time
}

// Deps are the collaborators a Service coordinates.
type Deps struct {
	Site       sites.Site
	Filter     URLFilter
	Extractor  Extractor
	Index      Reserver
	Writer     RecordWriter
	Publisher  EventPublisher
	NewFetcher FetcherFactory
	Observer   Observer
	Log        logger.Logger
}

// Service runs the two-tier crawl: listing workers discover candidates and
// feed a shared article channel drained by article workers.
type Service struct {
	deps     Deps
	opts     Options
	counters *counters
	started  atomic.Int64
}

type articleJob struct {
	title string
	url   string
}

// NewService wires a crawler for one site.
func NewService(deps Deps, opts Options) *Service {
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	deps.Log = logger.Ensure(deps.Log)
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		deps:     deps,
		opts:     opts,
		counters: &counters{observer: deps.Observer},
	}
}

func (s *Service) validate() error {
	var errs []error
	if s.deps.Extractor == nil {
		errs = append(errs, errors.New("extractor is required"))
	}
	if s.deps.Index == nil {
		errs = append(errs, errors.New("dedup index is required"))
	}
	if s.deps.Writer == nil {
		errs = append(errs, errors.New("record writer is required"))
	}
	if s.deps.NewFetcher == nil {
		errs = append(errs, errors.New("fetcher factory is required"))
	}
	if s.opts.ListingWorkers < 1 || s.opts.ArticleWorkers < 1 {
		errs = append(errs, fmt.Errorf("worker counts must be positive (listing=%d article=%d)", s.opts.ListingWorkers, s.opts.ArticleWorkers))
	}
	return errors.Join(errs...)
}

// Run processes every listing task and returns the final counters. Errors are
// returned only for misconfiguration; task failures are counted instead.
// Cancelling ctx stops new work while in-flight fetches finish.
func (s *Service) Run(ctx context.Context, tasks []domain.ListingTask) (Summary, error) {
	if s == nil {
		return Summary{}, errors.New("crawler service is not initialized")
	}
	if err := s.validate(); err != nil {
		return Summary{}, fmt.Errorf("invalid crawler setup: %w", err)
	}
	if len(tasks) == 0 {
		return Summary{}, errors.New("no listing tasks to crawl")
	}

	s.started.Store(time.Now().UnixNano())
	s.deps.Log.InfoObj("crawl started", "crawl_start", map[string]any{
		"run_id":          s.opts.RunID,
		"site_id":         s.deps.Site.ID,
		"listing_tasks":   len(tasks),
		"listing_workers": s.opts.ListingWorkers,
		"article_workers": s.opts.ArticleWorkers,
	})

	listingCh := make(chan domain.ListingTask)
	articleCh := make(chan articleJob)

	var producers errgroup.Group
	producers.Go(func() error {
		defer close(listingCh)
		s.produce(ctx, tasks, listingCh)
		return nil
	})
	for i := 0; i < s.opts.ListingWorkers; i++ {
		producers.Go(func() error {
			return s.listingWorker(ctx, listingCh, articleCh)
		})
	}

	var consumers errgroup.Group
	for i := 0; i < s.opts.ArticleWorkers; i++ {
		consumers.Go(func() error {
			return s.articleWorker(ctx, articleCh)
		})
	}

	listingErr := producers.Wait()
	close(articleCh)
	workerErr := errors.Join(listingErr, consumers.Wait())

	summary := s.Progress()
	s.deps.Log.InfoObj("crawl finished", "crawl_summary", summary.Fields())
	if workerErr != nil {
		s.deps.Log.ErrorObj("crawl workers could not start", "crawl_error", workerErr.Error())
		return summary, fmt.Errorf("invalid crawler setup: %w", workerErr)
	}
	return summary, nil
}

// Progress returns a snapshot of the counters; safe to call during Run.
func (s *Service) Progress() Summary {
	if s == nil {
		return Summary{}
	}
	sum := s.counters.snapshot()
	sum.RunID = s.opts.RunID
	sum.SiteID = s.deps.Site.ID
	if started := s.started.Load(); started != 0 {
		sum.Elapsed = time.Since(time.Unix(0, started))
	}
	return sum
}

// produce queues listing tasks month by month, checking the month index first
// when the site defines one.
func (s *Service) produce(ctx context.Context, tasks []domain.ListingTask, out chan<- domain.ListingTask) {
	var monthFetcher *PageFetcher
	if s.deps.Site.MonthIndexURL != "" {
		monthFetcher = s.deps.NewFetcher(kindMonth)
	}

	for i := 0; i < len(tasks); {
		j := i
		for j < len(tasks) && sameMonth(tasks[j].Date, tasks[i].Date) {
			j++
		}
		month := tasks[i:j]
		i = j

		if monthFetcher != nil && !s.checkMonth(ctx, monthFetcher, month[0].Date) {
			s.counters.add(ListingFailed, int64(len(month)))
			continue
		}

		for k, task := range month {
			if ctx.Err() != nil {
				s.counters.add(ListingCancelled, int64(len(month)-k+len(tasks)-i))
				return
			}
			select {
			case <-ctx.Done():
				s.counters.add(ListingCancelled, int64(len(month)-k+len(tasks)-i))
				return
			case out <- task:
			}
		}
	}
}

func (s *Service) checkMonth(ctx context.Context, monthFetcher *PageFetcher, day time.Time) bool {
	if ctx.Err() != nil {
		return true
	}
	url := s.deps.Site.MonthIndex(day.Year(), day.Month())
	if _, err := monthFetcher.Fetch(ctx, url); err != nil {
		s.deps.Log.WarnObj("month index unavailable, skipping month", "month_error", map[string]any{
			"run_id": s.opts.RunID,
			"month":  day.Format("2006-01"),
			"url":    url,
			"error":  err.Error(),
		})
		return false
	}
	return true
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// listingWorker drains in until it is closed. Without a fetcher every task it
// receives is counted as failed and the worker reports the setup error.
func (s *Service) listingWorker(ctx context.Context, in <-chan domain.ListingTask, out chan<- articleJob) error {
	s.deps.Observer.WorkerStarted(tierListing)
	defer s.deps.Observer.WorkerStopped(tierListing)

	fetcher := s.deps.NewFetcher(tierListing)
	if fetcher == nil {
		for range in {
			s.counters.inc(ListingFailed)
		}
		return fmt.Errorf("fetcher factory returned nil for %s worker", tierListing)
	}
	for task := range in {
		if ctx.Err() != nil {
			s.counters.inc(ListingCancelled)
			continue
		}
		s.safeListing(ctx, fetcher, task, out)
	}
	return nil
}

func (s *Service) safeListing(ctx context.Context, fetcher *PageFetcher, task domain.ListingTask, out chan<- articleJob) {
	defer func() {
		if r := recover(); r != nil {
			s.counters.inc(ListingFailed)
			s.deps.Log.ErrorObj("listing task panicked", "listing_panic", map[string]any{
				"run_id": s.opts.RunID,
				"url":    task.URL,
				"panic":  fmt.Sprint(r),
				"stack":  string(debug.Stack()),
			})
		}
	}()
	s.processListing(ctx, fetcher, task, out)
}

func (s *Service) processListing(ctx context.Context, fetcher *PageFetcher, task domain.ListingTask, out chan<- articleJob) {
	page, err := fetcher.Fetch(ctx, task.URL)
	if err != nil {
		s.counters.inc(ListingFailed)
		s.deps.Log.WarnObj("listing fetch failed", "listing_error", map[string]any{
			"run_id": s.opts.RunID,
			"date":   task.Date.Format("2006-01-02"),
			"page":   task.Page,
			"url":    task.URL,
			"error":  err.Error(),
		})
		return
	}

	candidates, err := s.deps.Site.ParseListing(page.Body, page.ContentType)
	if err != nil {
		s.counters.inc(ListingFailed)
		s.deps.Log.WarnObj("listing parse failed", "listing_error", map[string]any{
			"run_id": s.opts.RunID,
			"url":    task.URL,
			"error":  err.Error(),
		})
		return
	}
	s.counters.inc(ListingFetched)
	s.counters.add(Candidate, int64(len(candidates)))

	dispatched, cancelled := 0, false
	for _, c := range candidates {
		url, ok := s.admit(c)
		if !ok {
			s.counters.inc(SkippedFiltered)
			continue
		}
		if cancelled {
			s.counters.inc(Cancelled)
			continue
		}
		select {
		case <-ctx.Done():
			cancelled = true
			s.counters.inc(Cancelled)
		case out <- articleJob{title: strings.TrimSpace(c.Title), url: url}:
			dispatched++
		}
	}

	s.deps.Log.DebugObj("listing processed", "listing_result", map[string]any{
		"run_id":     s.opts.RunID,
		"url":        task.URL,
		"candidates": len(candidates),
		"dispatched": dispatched,
	})
}

// admit resolves a candidate and applies the article marker and disallow rules.
func (s *Service) admit(c domain.ArticleCandidate) (string, bool) {
	if strings.TrimSpace(c.Href) == "" {
		return "", false
	}
	url, err := s.deps.Site.ResolveURL(c.Href)
	if err != nil {
		return "", false
	}
	if !s.deps.Site.IsArticleURL(url) {
		return "", false
	}
	if s.deps.Filter != nil && !s.deps.Filter.Allowed(url) {
		fields := map[string]any{"url": url}
		if m, ok := s.deps.Filter.(patternMatcher); ok {
			if pattern, denied := m.Match(url); denied {
				fields["pattern"] = pattern
			}
		}
		s.deps.Log.DebugObj("article disallowed", "article_skip", fields)
		return "", false
	}
	return url, true
}

func (s *Service) articleWorker(ctx context.Context, in <-chan articleJob) error {
	s.deps.Observer.WorkerStarted(tierArticle)
	defer s.deps.Observer.WorkerStopped(tierArticle)

	fetcher := s.deps.NewFetcher(tierArticle)
	if fetcher == nil {
		for range in {
			s.counters.inc(Failed)
		}
		return fmt.Errorf("fetcher factory returned nil for %s worker", tierArticle)
	}
	for job := range in {
		if ctx.Err() != nil {
			s.counters.inc(Cancelled)
			continue
		}
		s.safeArticle(ctx, fetcher, job)
	}
	return nil
}

func (s *Service) safeArticle(ctx context.Context, fetcher *PageFetcher, job articleJob) {
	reserved := false
	persisted := false
	defer func() {
		if r := recover(); r != nil {
			if reserved && !persisted {
				s.deps.Index.Release(job.url)
			}
			if persisted {
				s.counters.inc(PublishFailed)
			} else {
				s.counters.inc(Failed)
			}
			s.deps.Log.ErrorObj("article task panicked", "article_panic", map[string]any{
				"run_id": s.opts.RunID,
				"url":    job.url,
				"panic":  fmt.Sprint(r),
				"stack":  string(debug.Stack()),
			})
		}
	}()

	if !s.deps.Index.Reserve(job.url) {
		s.counters.inc(SkippedDuplicate)
		return
	}
	reserved = true

	rec, outcome := s.fetchArticle(ctx, fetcher, job)
	if outcome != Persisted {
		s.deps.Index.Release(job.url)
		s.counters.inc(outcome)
		return
	}

	if err := s.deps.Writer.Append(rec); err != nil {
		s.deps.Index.Release(job.url)
		s.counters.inc(Failed)
		s.deps.Log.ErrorObj("article write failed", "article_error", map[string]any{
			"run_id": s.opts.RunID,
			"url":    job.url,
			"error":  err.Error(),
		})
		return
	}
	persisted = true
	s.counters.inc(Persisted)

	if err := s.deps.Index.Commit(job.url); err != nil {
		s.deps.Log.WarnObj("seen store update failed", "article_warning", map[string]any{
			"url":   job.url,
			"error": err.Error(),
		})
	}
	s.publish(ctx, rec)
}

// fetchArticle returns the record and Persisted, or the outcome to count.
func (s *Service) fetchArticle(ctx context.Context, fetcher *PageFetcher, job articleJob) (domain.ArticleRecord, Outcome) {
	page, err := fetcher.Fetch(ctx, job.url)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return domain.ArticleRecord{}, Cancelled
		}
		s.deps.Log.WarnObj("article fetch failed", "article_error", map[string]any{
			"run_id": s.opts.RunID,
			"url":    job.url,
			"title":  displayTitle(job.title),
			"error":  err.Error(),
		})
		return domain.ArticleRecord{}, Failed
	}
	s.counters.inc(ArticleFetched)

	ext, err := s.deps.Extractor.Extract(page.Body, page.ContentType, job.url)
	if err == nil && strings.TrimSpace(ext.Body) == "" {
		err = domain.ErrNoBody
	}
	switch {
	case errors.Is(err, domain.ErrNoBody), errors.Is(err, domain.ErrStructureChanged):
		reason := "empty_body"
		if errors.Is(err, domain.ErrStructureChanged) {
			reason = "structure_changed"
		}
		s.deps.Log.WarnObj("article has no body, skipping", "article_skip", map[string]any{
			"run_id": s.opts.RunID,
			"url":    job.url,
			"title":  displayTitle(job.title),
			"reason": reason,
		})
		return domain.ArticleRecord{}, SkippedEmpty
	case err != nil:
		s.deps.Log.WarnObj("article extraction failed", "article_error", map[string]any{
			"run_id": s.opts.RunID,
			"url":    job.url,
			"error":  err.Error(),
		})
		return domain.ArticleRecord{}, Failed
	}

	return domain.ArticleRecord{
		ID:          domain.ArticleIDFromURL(job.url),
		URL:         job.url,
		Title:       job.title,
		PublishTime: domain.OptionalString(ext.PublishTime),
		SourceName:  s.deps.Site.SourceName,
		BodyText:    ext.Body,
		Author:      domain.OptionalString(ext.Author),
		Category:    domain.OptionalString(ext.Category),
		FetchedAt:   s.opts.Now().UTC(),
	}, Persisted
}

func (s *Service) publish(ctx context.Context, rec domain.ArticleRecord) {
	if s.deps.Publisher == nil {
		return
	}
	evt := publishers.NewEvent(s.opts.RunID, s.deps.Site.ID, s.deps.Site.SourceName, rec)
	ok, err := s.deps.Publisher.Publish(context.WithoutCancel(ctx), evt)
	s.counters.add(Published, int64(ok))
	if err != nil {
		s.counters.inc(PublishFailed)
		s.deps.Log.WarnObj("record publish failed", "publish_error", map[string]any{
			"run_id":    s.opts.RunID,
			"id":        rec.ID,
			"succeeded": ok,
			"error":     err.Error(),
		})
	}
}

func displayTitle(title string) string {
	return runewidth.Truncate(title, logTitleWidth, "…")
}
