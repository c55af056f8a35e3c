package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samvad-hq/samvad-archive-crawler/internal/config"
	"github.com/samvad-hq/samvad-archive-crawler/internal/crawler"
	"github.com/samvad-hq/samvad-archive-crawler/internal/domain"
	"github.com/samvad-hq/samvad-archive-crawler/internal/logger"
	"github.com/samvad-hq/samvad-archive-crawler/internal/metrics"
	"github.com/samvad-hq/samvad-archive-crawler/internal/server"
	"github.com/samvad-hq/samvad-archive-crawler/internal/storage"
	"github.com/samvad-hq/samvad-archive-crawler/pkg/disallow"
	"github.com/samvad-hq/samvad-archive-crawler/pkg/httpclient"
	"github.com/samvad-hq/samvad-archive-crawler/pkg/publishers"
	"github.com/samvad-hq/samvad-archive-crawler/pkg/sites"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 5 * time.Second

// Archiver is one archive crawl run. It owns the site profile, the dedup
// index, the output sink and the optional publishers and status server.
type Archiver struct {
	cfg      *config.Config
	runID    string
	site     sites.Site
	tasks    []domain.ListingTask
	seen     storage.SeenStore
	index    *storage.Index
	writer   *storage.Writer
	fanout   *publishers.Fanout
	recorder *metrics.Recorder
	status   *server.Server
	service  *crawler.Service
	log      logger.Logger
}

// NewArchiver builds a run from config. Every resource opened before a
// failure is released before returning the error.
func NewArchiver(ctx context.Context, cfg *config.Config, log logger.Logger) (_ *Archiver, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	log = logger.Ensure(log)

	a := &Archiver{cfg: cfg, runID: uuid.NewString()}
	if zl, ok := log.(*logger.ZapLogger); ok {
		log = zl.With("run_id", a.runID)
	}
	a.log = log
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	siteReg, err := sites.LoadRegistry(cfg.SitesFile)
	if err != nil {
		return nil, fmt.Errorf("load sites registry: %w", err)
	}
	site, ok := siteReg.ByID(cfg.SiteID)
	if !ok {
		return nil, fmt.Errorf("site %q not found in %s (available: %s)", cfg.SiteID, cfg.SitesFile, siteIDs(siteReg))
	}
	a.site = site

	patterns := make([]string, 0, len(site.DisallowPatterns)+len(cfg.ExtraDisallowPatterns))
	patterns = append(patterns, site.DisallowPatterns...)
	patterns = append(patterns, cfg.ExtraDisallowPatterns...)
	filter, err := disallow.New(site.BaseURL, patterns)
	if err != nil {
		return nil, fmt.Errorf("compile disallow patterns: %w", err)
	}

	extractor, err := sites.NewExtractor(site)
	if err != nil {
		return nil, fmt.Errorf("build extractor: %w", err)
	}
	log.InfoObj("site profile loaded", "site_meta", map[string]any{
		"id":                site.ID,
		"source_name":       site.SourceName,
		"pages_per_day":     site.PagesPerDay,
		"disallow_patterns": filter.Len(),
		"month_index":       site.MonthIndexURL != "",
	})
	if filter.Len() > 0 {
		log.DebugObj("disallow rules active", "site_disallow", map[string]any{
			"id":       site.ID,
			"patterns": filter.Patterns(),
		})
	}

	a.seen, err = storage.NewSeenStore(cfg.StorageType, cfg.BBoltPath, storage.Options{TTL: cfg.StorageTTL})
	if err != nil {
		return nil, fmt.Errorf("init seen store: %w", err)
	}

	var stats storage.LoadStats
	a.index, stats, err = storage.LoadIndex(cfg.OutputPath, a.seen, log)
	if err != nil {
		return nil, fmt.Errorf("load dedup index: %w", err)
	}
	log.InfoObj("dedup index loaded", "index_meta", map[string]any{
		"path":     cfg.OutputPath,
		"lines":    stats.Lines,
		"loaded":   stats.Loaded,
		"skipped":  stats.Skipped,
		"mirrored": stats.Mirrored,
		"storage":  cfg.StorageType,
	})

	a.writer, err = storage.OpenWriter(cfg.OutputPath, cfg.SyncWrites)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}

	if err := a.buildPublishers(ctx); err != nil {
		return nil, err
	}

	a.recorder = metrics.New(site.ID)

	pagesPerDay := cfg.PagesPerDay
	if pagesPerDay < 1 {
		pagesPerDay = site.PagesPerDay
	}
	a.tasks = crawler.EnumerateURLs(site, cfg.Start, cfg.End, pagesPerDay, time.Now())

	deps := crawler.Deps{
		Site:       site,
		Filter:     filter,
		Extractor:  extractor,
		Index:      a.index,
		Writer:     a.writer,
		NewFetcher: a.fetcherFactory(),
		Observer:   a.recorder,
		Log:        log,
	}
	if a.fanout.Size() > 0 {
		deps.Publisher = a.fanout
	}
	a.service = crawler.NewService(deps, crawler.Options{
		ListingWorkers: cfg.ListingWorkers,
		ArticleWorkers: cfg.ArticleWorkers,
		RunID:          a.runID,
	})

	if cfg.StatusAddr != "" {
		a.status = server.New(a.service, a.recorder.Handler(), log)
		if err := a.status.Start(cfg.StatusAddr); err != nil {
			a.status = nil
			return nil, fmt.Errorf("start status server: %w", err)
		}
	}

	return a, nil
}

func (a *Archiver) buildPublishers(ctx context.Context) error {
	if a.cfg.PublishersFile == "" {
		return nil
	}
	reg, err := publishers.LoadRegistry(a.cfg.PublishersFile)
	if err != nil {
		return fmt.Errorf("load publishers registry: %w", err)
	}
	enabled := reg.Enabled()
	pubs, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, a.log)
	if err != nil {
		return fmt.Errorf("build publishers: %w", err)
	}
	a.fanout = publishers.NewFanout(pubs)

	summaries := make([]map[string]string, 0, len(enabled))
	for _, c := range enabled {
		summaries = append(summaries, map[string]string{"id": c.ID, "type": c.Type})
	}
	a.log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(summaries),
		"publishers": summaries,
	})
	return nil
}

// fetcherFactory gives every worker its own HTTP session. The rate limiter,
// when configured, is shared by the whole run.
func (a *Archiver) fetcherFactory() crawler.FetcherFactory {
	var limiter *rate.Limiter
	if rps := a.cfg.MaxRequestsPerSecond; rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), int(math.Max(1, math.Ceil(rps))))
	}
	opts := crawler.FetchOptions{
		MaxAttempts:    a.cfg.MaxAttempts,
		AttemptTimeout: a.cfg.RequestTimeout,
		BackoffMin:     a.cfg.BackoffMin,
		BackoffMax:     a.cfg.BackoffMax,
		PolitenessMin:  a.cfg.PolitenessMin,
		PolitenessMax:  a.cfg.PolitenessMax,
		Headers:        sites.Headers(a.site),
		Limiter:        limiter,
		Observer:       a.recorder,
	}
	timeout := a.cfg.RequestTimeout
	return func(kind string) *crawler.PageFetcher {
		return crawler.NewPageFetcher(httpclient.NewRestyClient(timeout), kind, opts)
	}
}

// RunID identifies this run in logs, events and the summary.
func (a *Archiver) RunID() string {
	if a == nil {
		return ""
	}
	return a.runID
}

// Tasks is the number of listing tasks the run will process.
func (a *Archiver) Tasks() int {
	if a == nil {
		return 0
	}
	return len(a.tasks)
}

// Run crawls every listing task once and returns the final counters.
func (a *Archiver) Run(ctx context.Context) (crawler.Summary, error) {
	if a == nil || a.service == nil {
		return crawler.Summary{}, fmt.Errorf("archiver is not initialized")
	}
	a.log.InfoObj("archive run starting", "run_meta", map[string]any{
		"site_id":    a.site.ID,
		"start":      a.cfg.Start.String(),
		"end":        a.cfg.End.String(),
		"tasks":      len(a.tasks),
		"output":     a.writer.Path(),
		"publishers": a.fanout.Size(),
	})
	if len(a.tasks) == 0 {
		a.log.WarnObj("no listing tasks in range; nothing to do", "run_meta", map[string]any{
			"start": a.cfg.Start.String(),
			"end":   a.cfg.End.String(),
		})
		return crawler.Summary{RunID: a.runID, SiteID: a.site.ID}, nil
	}
	return a.service.Run(ctx, a.tasks)
}

// Close releases every resource the run opened. Safe to call more than once.
func (a *Archiver) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.status != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.status.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown status server: %w", err))
		}
		cancel()
		a.status = nil
	}
	if a.fanout != nil {
		if err := a.fanout.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publishers: %w", err))
		}
		a.fanout = nil
	}
	if a.writer != nil {
		if err := a.writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close output: %w", err))
		}
		a.writer = nil
	}
	if a.seen != nil {
		if err := a.seen.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close seen store: %w", err))
		}
		a.seen = nil
	}
	if err := errors.Join(errs...); err != nil {
		a.log.ErrorObj("archiver close failed", "error", err.Error())
		return err
	}
	return nil
}

func siteIDs(reg *sites.Registry) string {
	all := reg.All()
	ids := make([]string, 0, len(all))
	for _, s := range all {
		ids = append(ids, s.ID)
	}
	if len(ids) == 0 {
		return "none"
	}
	return strings.Join(ids, ", ")
}
