package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// YearMonth is an inclusive archive bound.
type YearMonth struct {
	Year  int
	Month time.Month
}

// String renders the bound as YYYY-MM.
func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// After reports whether ym is later than other.
func (ym YearMonth) After(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year > other.Year
	}
	return ym.Month > other.Month
}

// ParseYearMonth parses a YYYY-MM string.
func ParseYearMonth(raw string) (YearMonth, error) {
	parts := strings.Split(strings.TrimSpace(raw), "-")
	if len(parts) != 2 {
		return YearMonth{}, fmt.Errorf("invalid year-month %q (expected YYYY-MM)", raw)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return YearMonth{}, fmt.Errorf("invalid year in %q: %w", raw, err)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return YearMonth{}, fmt.Errorf("invalid month in %q: %w", raw, err)
	}
	ym := YearMonth{Year: year, Month: time.Month(month)}
	if err := ym.validate(); err != nil {
		return YearMonth{}, err
	}
	return ym, nil
}

func (ym YearMonth) validate() error {
	if ym.Year < 1900 || ym.Year > 9999 {
		return fmt.Errorf("year %d out of range", ym.Year)
	}
	if ym.Month < time.January || ym.Month > time.December {
		return fmt.Errorf("month %d out of range (1-12)", int(ym.Month))
	}
	return nil
}

// Config holds the application configuration loaded from flags, files and environment variables.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`

	SitesFile  string `mapstructure:"sites_file"`
	SiteID     string `mapstructure:"site_id"`
	OutputPath string `mapstructure:"output_path"`
	SyncWrites bool   `mapstructure:"sync_writes"`

	StartRaw    string    `mapstructure:"start"`
	EndRaw      string    `mapstructure:"end"`
	StartYear   int       `mapstructure:"start_year"`
	StartMonth  int       `mapstructure:"start_month"`
	EndYear     int       `mapstructure:"end_year"`
	EndMonth    int       `mapstructure:"end_month"`
	Start       YearMonth `mapstructure:"-"`
	End         YearMonth `mapstructure:"-"`
	PagesPerDay int       `mapstructure:"pages_per_day"`

	ListingWorkers        int      `mapstructure:"listing_workers"`
	ArticleWorkers        int      `mapstructure:"article_workers"`
	RequestTimeoutSeconds int64    `mapstructure:"request_timeout_seconds"`
	MaxAttempts           int      `mapstructure:"max_attempts"`
	BackoffMinMs          int64    `mapstructure:"backoff_min_ms"`
	BackoffMaxMs          int64    `mapstructure:"backoff_max_ms"`
	PolitenessMinMs       int64    `mapstructure:"politeness_min_ms"`
	PolitenessMaxMs       int64    `mapstructure:"politeness_max_ms"`
	MaxRequestsPerSecond  float64  `mapstructure:"max_requests_per_second"`
	ExtraDisallowPatterns []string `mapstructure:"extra_disallow_patterns"`

	RequestTimeout time.Duration `mapstructure:"-"`
	BackoffMin     time.Duration `mapstructure:"-"`
	BackoffMax     time.Duration `mapstructure:"-"`
	PolitenessMin  time.Duration `mapstructure:"-"`
	PolitenessMax  time.Duration `mapstructure:"-"`

	StorageType       string        `mapstructure:"storage_type"`
	BBoltPath         string        `mapstructure:"bbolt_path"`
	StorageTTLSeconds int64         `mapstructure:"storage_ttl_seconds"`
	StorageTTL        time.Duration `mapstructure:"-"`

	PublishersFile string `mapstructure:"publishers_file"`
	StatusAddr     string `mapstructure:"status_addr"`
}

// Load reads configuration from command-line args, environment variables and config files.
func Load(args []string) (*Config, error) {
	return load(args, time.Now)
}

func load(args []string, now func() time.Time) (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	today := now()
	v.SetDefault("app_name", "samvad-archive-crawler")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("sites_file", "./configs/sites.yaml")
	v.SetDefault("site_id", "yna")
	v.SetDefault("output_path", "./data/articles.jsonl")
	v.SetDefault("sync_writes", false)
	v.SetDefault("start", "")
	v.SetDefault("end", "")
	v.SetDefault("start_year", today.Year())
	v.SetDefault("start_month", int(today.Month()))
	v.SetDefault("end_year", today.Year())
	v.SetDefault("end_month", int(today.Month()))
	v.SetDefault("pages_per_day", 0) // 0 = site profile value
	v.SetDefault("listing_workers", 1)
	v.SetDefault("article_workers", 20)
	v.SetDefault("request_timeout_seconds", 15)
	v.SetDefault("max_attempts", 3)
	v.SetDefault("backoff_min_ms", 4000)
	v.SetDefault("backoff_max_ms", 8000)
	v.SetDefault("politeness_min_ms", 2000)
	v.SetDefault("politeness_max_ms", 4000)
	v.SetDefault("max_requests_per_second", 0.0)
	v.SetDefault("extra_disallow_patterns", []string{})
	v.SetDefault("storage_type", "none")
	v.SetDefault("bbolt_path", "./data/seen.db")
	v.SetDefault("storage_ttl_seconds", 0) // 0 = never expire
	v.SetDefault("publishers_file", "")
	v.SetDefault("status_addr", "")

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	if err := bindFlags(v, fs); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.resolveBounds(); err != nil {
		return nil, err
	}
	if err := cfg.resolveDurations(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

var flagKeys = map[string]string{
	"start":           "start",
	"end":             "end",
	"site":            "site_id",
	"sites-file":      "sites_file",
	"output":          "output_path",
	"listing-workers": "listing_workers",
	"article-workers": "article_workers",
	"log-level":       "log_level",
	"status-addr":     "status_addr",
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("archiver", pflag.ContinueOnError)
	fs.String("start", "", "first archive month, inclusive (YYYY-MM)")
	fs.String("end", "", "last archive month, inclusive (YYYY-MM)")
	fs.String("site", "", "site profile id")
	fs.String("sites-file", "", "site profile registry (YAML or JSON)")
	fs.String("output", "", "JSONL output path")
	fs.Int("listing-workers", 0, "listing page workers")
	fs.Int("article-workers", 0, "article workers")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("status-addr", "", "status server listen address")
	return fs
}

// bindFlags binds only flags set on the command line so defaults and env keep working.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		key, ok := flagKeys[f.Name]
		if !ok {
			return
		}
		if bindErr := v.BindPFlag(key, f); bindErr != nil {
			err = fmt.Errorf("bind flag %s: %w", f.Name, bindErr)
		}
	})
	return err
}

func (c *Config) resolveBounds() error {
	var err error
	if strings.TrimSpace(c.StartRaw) != "" {
		if c.Start, err = ParseYearMonth(c.StartRaw); err != nil {
			return fmt.Errorf("invalid start: %w", err)
		}
	} else {
		c.Start = YearMonth{Year: c.StartYear, Month: time.Month(c.StartMonth)}
		if err := c.Start.validate(); err != nil {
			return fmt.Errorf("invalid start: %w", err)
		}
	}

	if strings.TrimSpace(c.EndRaw) != "" {
		if c.End, err = ParseYearMonth(c.EndRaw); err != nil {
			return fmt.Errorf("invalid end: %w", err)
		}
	} else {
		c.End = YearMonth{Year: c.EndYear, Month: time.Month(c.EndMonth)}
		if err := c.End.validate(); err != nil {
			return fmt.Errorf("invalid end: %w", err)
		}
	}

	if c.Start.After(c.End) {
		return fmt.Errorf("invalid date bounds: start %s is after end %s", c.Start, c.End)
	}
	return nil
}

func (c *Config) resolveDurations() error {
	if c.RequestTimeoutSeconds <= 0 {
		return errors.New("invalid request_timeout_seconds (must be positive seconds)")
	}
	c.RequestTimeout = time.Duration(c.RequestTimeoutSeconds) * time.Second

	if c.BackoffMinMs < 0 || c.BackoffMaxMs < c.BackoffMinMs {
		return errors.New("invalid backoff range (need 0 <= backoff_min_ms <= backoff_max_ms)")
	}
	c.BackoffMin = time.Duration(c.BackoffMinMs) * time.Millisecond
	c.BackoffMax = time.Duration(c.BackoffMaxMs) * time.Millisecond

	if c.PolitenessMinMs < 0 || c.PolitenessMaxMs < c.PolitenessMinMs {
		return errors.New("invalid politeness range (need 0 <= politeness_min_ms <= politeness_max_ms)")
	}
	c.PolitenessMin = time.Duration(c.PolitenessMinMs) * time.Millisecond
	c.PolitenessMax = time.Duration(c.PolitenessMaxMs) * time.Millisecond

	if c.StorageTTLSeconds < 0 {
		return errors.New("invalid storage_ttl_seconds (must be zero or positive seconds)")
	}
	c.StorageTTL = time.Duration(c.StorageTTLSeconds) * time.Second
	return nil
}

func (c *Config) validate() error {
	if c.ListingWorkers <= 0 {
		return errors.New("invalid listing_workers (must be positive)")
	}
	if c.ArticleWorkers <= 0 {
		return errors.New("invalid article_workers (must be positive)")
	}
	if c.MaxAttempts < 1 {
		return errors.New("invalid max_attempts (must be at least 1)")
	}
	if c.PagesPerDay < 0 {
		return errors.New("invalid pages_per_day (must be zero or positive)")
	}
	if c.MaxRequestsPerSecond < 0 {
		return errors.New("invalid max_requests_per_second (must be zero or positive)")
	}
	if strings.TrimSpace(c.OutputPath) == "" {
		return errors.New("output_path is required")
	}
	if strings.TrimSpace(c.SiteID) == "" {
		return errors.New("site_id is required")
	}
	return nil
}
