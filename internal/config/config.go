package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"equitymetrics/internal/model"
)

// Vendor names as they appear in snapshots, cache rows and priority lists.
const (
	FMP          = "fmp"
	AlphaVantage = "alphavantage"
	Finnhub      = "finnhub"
	TwelveData   = "twelvedata"
)

// VendorNames lists every supported vendor.
var VendorNames = []string{FMP, AlphaVantage, Finnhub, TwelveData}

type Server struct {
	Port              string  `yaml:"port"`
	RequestTimeoutSec int     `yaml:"request_timeout_sec"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Store struct {
	Driver              string `yaml:"driver"` // sqlite | postgres
	Path                string `yaml:"path"`
	DSN                 string `yaml:"dsn"`
	CacheRetentionHours int    `yaml:"cache_retention_hours"` // 0 keeps every payload
	PruneIntervalMin    int    `yaml:"prune_interval_min"`
}

type TTL struct {
	QuoteSec      int `yaml:"quote_sec"`
	OverviewSec   int `yaml:"overview_sec"`
	FinancialsSec int `yaml:"financials_sec"`
}

// Vendor holds credentials and quota for one data provider. Zero quotas mean
// unlimited; an empty APIKey disables the vendor.
type Vendor struct {
	APIKey             string `yaml:"api_key"`
	BaseURL            string `yaml:"base_url"`
	RequestsPerMinute  int    `yaml:"requests_per_minute"`
	RequestsPerDay     int    `yaml:"requests_per_day"`
	MaxConcurrent      int    `yaml:"max_concurrent"`
	BreakerFailures    int    `yaml:"breaker_failures"`
	BreakerCooldownSec int    `yaml:"breaker_cooldown_sec"`
}

// Enabled reports whether the vendor has a credential.
func (v Vendor) Enabled() bool { return strings.TrimSpace(v.APIKey) != "" }

type Providers struct {
	FMP          Vendor `yaml:"fmp"`
	AlphaVantage Vendor `yaml:"alphavantage"`
	Finnhub      Vendor `yaml:"finnhub"`
	TwelveData   Vendor `yaml:"twelvedata"`
}

// ByName returns the vendor section for name.
func (p Providers) ByName(name string) (Vendor, bool) {
	switch name {
	case FMP:
		return p.FMP, true
	case AlphaVantage:
		return p.AlphaVantage, true
	case Finnhub:
		return p.Finnhub, true
	case TwelveData:
		return p.TwelveData, true
	}
	return Vendor{}, false
}

type Warmer struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

type Config struct {
	Server     Server              `yaml:"server"`
	Log        Log                 `yaml:"log"`
	Store      Store               `yaml:"store"`
	TTL        TTL                 `yaml:"ttl"`
	Priorities map[string][]string `yaml:"priorities"` // metric name -> provider order
	Providers  Providers           `yaml:"providers"`
	Warmer     Warmer              `yaml:"warmer"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 15, RequestsPerSecond: 10, Burst: 30},
		Log:    Log{Level: "info", Format: "json"},
		Store: Store{
			Driver:           "sqlite",
			Path:             "data/metrics.db",
			PruneIntervalMin: 60,
		},
		TTL: TTL{QuoteSec: 900, OverviewSec: 604800, FinancialsSec: 2592000},
		Priorities: map[string][]string{
			string(model.FieldPrice):         {AlphaVantage, FMP, Finnhub},
			string(model.FieldMarketCap):     {FMP, AlphaVantage, Finnhub},
			string(model.FieldPE):            {FMP, AlphaVantage, Finnhub},
			string(model.FieldEPS):           {FMP, AlphaVantage, Finnhub},
			string(model.FieldDividendYield): {FMP, Finnhub, AlphaVantage},
			string(model.FieldRevenueTTM):    {Finnhub, FMP},
			string(model.FieldNetIncomeTTM):  {Finnhub, FMP},
		},
		Providers: Providers{
			FMP:          Vendor{RequestsPerMinute: 200, RequestsPerDay: 250, MaxConcurrent: 2, BreakerFailures: 5, BreakerCooldownSec: 60},
			AlphaVantage: Vendor{RequestsPerMinute: 5, RequestsPerDay: 500, MaxConcurrent: 1, BreakerFailures: 5, BreakerCooldownSec: 60},
			Finnhub:      Vendor{RequestsPerMinute: 60, RequestsPerDay: 2000, MaxConcurrent: 2, BreakerFailures: 5, BreakerCooldownSec: 60},
			TwelveData:   Vendor{RequestsPerMinute: 8, RequestsPerDay: 800, MaxConcurrent: 1, BreakerFailures: 5, BreakerCooldownSec: 60},
		},
		Warmer: Warmer{Workers: 2, QueueSize: 256},
	}
}

// TTLFor returns the cache lifetime for an endpoint kind.
func (c Config) TTLFor(endpoint string) time.Duration {
	switch endpoint {
	case "quote":
		return time.Duration(c.TTL.QuoteSec) * time.Second
	case "overview":
		return time.Duration(c.TTL.OverviewSec) * time.Second
	case "financials":
		return time.Duration(c.TTL.FinancialsSec) * time.Second
	}
	return 0
}

// Priority returns a copy of the per-field provider order keyed by field.
// Entries for unknown metric names are skipped; Validate reports them.
func (c Config) Priority() map[model.Field][]string {
	out := make(map[model.Field][]string, len(c.Priorities))
	for name, order := range c.Priorities {
		f, ok := model.ParseField(name)
		if !ok {
			continue
		}
		out[f] = append([]string(nil), order...)
	}
	return out
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env") into
// the process environment without overriding variables that are already set.
// Missing files are not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load dotenv: %w", err)
	}
	return nil
}

// Load reads YAML config from path. If path is empty or the file does not
// exist, it returns defaults. ${VAR} references in the file are expanded and
// environment variables override select fields for secrecy.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	clampConcurrency(&cfg)
	return cfg, nil
}

// clampConcurrency raises an explicit max_concurrent of 0 to 1. Negative
// values are left for Validate to reject.
func clampConcurrency(cfg *Config) {
	for _, name := range VendorNames {
		if v := cfg.Providers.ref(name); v.MaxConcurrent == 0 {
			v.MaxConcurrent = 1
		}
	}
}

// LoadAndValidate loads config and validates it.
func LoadAndValidate(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
