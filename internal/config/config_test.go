package config

import (
	"strings"
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Date(2025, time.July, 14, 9, 0, 0, 0, time.UTC)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(nil, fixedNow)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Start != (YearMonth{Year: 2025, Month: time.July}) || cfg.End != cfg.Start {
		t.Fatalf("expected current month bounds, got %s..%s", cfg.Start, cfg.End)
	}
	if cfg.ListingWorkers != 1 || cfg.ArticleWorkers != 20 {
		t.Fatalf("unexpected pool sizes %d/%d", cfg.ListingWorkers, cfg.ArticleWorkers)
	}
	if cfg.RequestTimeout != 15*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.RequestTimeout)
	}
	if cfg.BackoffMin != 4*time.Second || cfg.BackoffMax != 8*time.Second {
		t.Fatalf("unexpected backoff %s-%s", cfg.BackoffMin, cfg.BackoffMax)
	}
	if cfg.PolitenessMin != 2*time.Second || cfg.PolitenessMax != 4*time.Second {
		t.Fatalf("unexpected politeness %s-%s", cfg.PolitenessMin, cfg.PolitenessMax)
	}
	if cfg.StorageType != "none" {
		t.Fatalf("expected storage none, got %s", cfg.StorageType)
	}
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	t.Setenv("LISTING_WORKERS", "3")
	t.Setenv("ARTICLE_WORKERS", "50")
	t.Setenv("START", "2018-11")

	cfg, err := load([]string{"--start", "2019-01", "--end", "2019-02", "--article-workers", "7"}, fixedNow)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Start.String() != "2019-01" || cfg.End.String() != "2019-02" {
		t.Fatalf("unexpected bounds %s..%s", cfg.Start, cfg.End)
	}
	if cfg.ListingWorkers != 3 {
		t.Fatalf("expected env listing workers, got %d", cfg.ListingWorkers)
	}
	if cfg.ArticleWorkers != 7 {
		t.Fatalf("expected flag article workers, got %d", cfg.ArticleWorkers)
	}
}

func TestLoadYearMonthFieldsFromEnv(t *testing.T) {
	t.Setenv("START_YEAR", "2017")
	t.Setenv("START_MONTH", "3")
	t.Setenv("END_YEAR", "2017")
	t.Setenv("END_MONTH", "4")

	cfg, err := load(nil, fixedNow)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Start.String() != "2017-03" || cfg.End.String() != "2017-04" {
		t.Fatalf("unexpected bounds %s..%s", cfg.Start, cfg.End)
	}
}

func TestLoadRejectsInvalidBounds(t *testing.T) {
	cases := [][]string{
		{"--start", "2019-03", "--end", "2019-01"},
		{"--start", "2019-13"},
		{"--end", "2019"},
	}
	for _, args := range cases {
		if _, err := load(args, fixedNow); err == nil {
			t.Errorf("expected error for args %v", args)
		}
	}
}

func TestLoadRejectsInvalidRanges(t *testing.T) {
	t.Setenv("POLITENESS_MIN_MS", "500")
	t.Setenv("POLITENESS_MAX_MS", "100")

	_, err := load(nil, fixedNow)
	if err == nil || !strings.Contains(err.Error(), "politeness") {
		t.Fatalf("expected politeness range error, got %v", err)
	}
}

func TestLoadRejectsZeroAttempts(t *testing.T) {
	t.Setenv("MAX_ATTEMPTS", "0")
	if _, err := load(nil, fixedNow); err == nil {
		t.Fatalf("expected error for max_attempts=0")
	}
}

func TestLoadExtraDisallowPatternsFromEnv(t *testing.T) {
	t.Setenv("EXTRA_DISALLOW_PATTERNS", `/photo/,/video/`)

	cfg, err := load(nil, fixedNow)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.ExtraDisallowPatterns) != 2 || cfg.ExtraDisallowPatterns[1] != "/video/" {
		t.Fatalf("unexpected patterns %#v", cfg.ExtraDisallowPatterns)
	}
}

func TestParseYearMonth(t *testing.T) {
	ym, err := ParseYearMonth("2016-01")
	if err != nil {
		t.Fatalf("ParseYearMonth: %v", err)
	}
	if ym.Year != 2016 || ym.Month != time.January {
		t.Fatalf("unexpected %+v", ym)
	}
	if !(YearMonth{Year: 2016, Month: time.February}).After(ym) {
		t.Fatalf("expected February after January")
	}
}
