package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-runewidth"
	"github.com/samvad-hq/samvad-archive-crawler/internal/app"
	"github.com/samvad-hq/samvad-archive-crawler/internal/config"
	"github.com/samvad-hq/samvad-archive-crawler/internal/crawler"
	"github.com/samvad-hq/samvad-archive-crawler/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "archiver failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("archiver starting", "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	archiver, err := app.NewArchiver(ctx, cfg, log)
	if err != nil {
		logger.ErrorObj("failed to initialize archiver", "error", err.Error())
		return err
	}
	defer archiver.Close()

	summary, err := archiver.Run(ctx)
	if err != nil {
		return fmt.Errorf("archiver run: %w", err)
	}
	printSummary(os.Stdout, cfg, summary)
	return nil
}

func printSummary(w io.Writer, cfg *config.Config, s crawler.Summary) {
	rows := [][2]string{
		{"run", s.RunID},
		{"site", s.SiteID},
		{"range", cfg.Start.String() + " .. " + cfg.End.String()},
		{"output", cfg.OutputPath},
		{"listings fetched", fmt.Sprint(s.ListingsFetched)},
		{"listings failed", fmt.Sprint(s.ListingsFailed)},
		{"listings cancelled", fmt.Sprint(s.ListingsCancelled)},
		{"candidates", fmt.Sprint(s.Candidates)},
		{"skipped (filtered)", fmt.Sprint(s.SkippedFiltered)},
		{"skipped (duplicate)", fmt.Sprint(s.SkippedDuplicate)},
		{"skipped (empty)", fmt.Sprint(s.SkippedEmpty)},
		{"failed", fmt.Sprint(s.Failed)},
		{"cancelled", fmt.Sprint(s.Cancelled)},
		{"persisted", fmt.Sprint(s.Persisted)},
		{"published", fmt.Sprint(s.Published)},
		{"publish failed", fmt.Sprint(s.PublishFailed)},
		{"elapsed", s.Elapsed.Round(1e6).String()},
	}
	width := 0
	for _, r := range rows {
		width = max(width, runewidth.StringWidth(r[0]))
	}
	fmt.Fprintln(w, strings.Repeat("-", width+24))
	for _, r := range rows {
		fmt.Fprintf(w, "%s  %s\n", runewidth.FillRight(r[0], width), r[1])
	}
	fmt.Fprintln(w, strings.Repeat("-", width+24))
}
