package config

import (
	"fmt"
	"os"
	"strings"

	"equitymetrics/internal/model"
)

// vendorEnv maps each vendor to its environment variable prefix.
var vendorEnv = map[string]string{
	FMP:          "FMP",
	AlphaVantage: "AV",
	Finnhub:      "FINNHUB",
	TwelveData:   "TWELVEDATA",
}

// apiKeyEnv names the credential variables, which do not follow the prefix
// scheme for Alpha Vantage.
var apiKeyEnv = map[string]string{
	FMP:          "FMP_API_KEY",
	AlphaVantage: "ALPHA_VANTAGE_API_KEY",
	Finnhub:      "FINNHUB_API_KEY",
	TwelveData:   "TWELVEDATA_API_KEY",
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	envInt("REQUEST_TIMEOUT_SEC", 1, &cfg.Server.RequestTimeoutSec)
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.Store.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Store.DSN = v
	}
	envInt("CACHE_RETENTION_HOURS", 0, &cfg.Store.CacheRetentionHours)

	envInt("TTL_QUOTE_SECONDS", 0, &cfg.TTL.QuoteSec)
	envInt("TTL_OVERVIEW_SECONDS", 0, &cfg.TTL.OverviewSec)
	envInt("TTL_FINANCIALS_SECONDS", 0, &cfg.TTL.FinancialsSec)

	for _, name := range VendorNames {
		v := cfg.Providers.ref(name)
		prefix := vendorEnv[name]
		if key := os.Getenv(apiKeyEnv[name]); key != "" {
			v.APIKey = key
		}
		if u := os.Getenv(prefix + "_BASE_URL"); u != "" {
			v.BaseURL = u
		}
		envInt(prefix+"_RPM", 0, &v.RequestsPerMinute)
		envInt(prefix+"_RPD", 0, &v.RequestsPerDay)
		envInt(prefix+"_MAX_CONCURRENT", 1, &v.MaxConcurrent)
	}

	// MERGE_PRIORITY_MARKET_CAP (or MERGE_PRIORITY_MARKETCAP)=fmp,finnhub
	// replaces the order for marketCap.
	for _, f := range model.Fields {
		v := os.Getenv("MERGE_PRIORITY_" + strings.ToUpper(f.Column()))
		if v == "" {
			v = os.Getenv("MERGE_PRIORITY_" + strings.ToUpper(string(f)))
		}
		if v == "" {
			continue
		}
		if cfg.Priorities == nil {
			cfg.Priorities = map[string][]string{}
		}
		cfg.Priorities[string(f)] = splitCSV(strings.ToLower(v))
	}
}

// envInt overwrites *dst with the integer in the named variable when it
// parses and is at least min.
func envInt(name string, min int, dst *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	var x int
	if _, err := fmt.Sscanf(v, "%d", &x); err != nil {
		return
	}
	if x >= min {
		*dst = x
	}
}

func (p *Providers) ref(name string) *Vendor {
	switch name {
	case FMP:
		return &p.FMP
	case AlphaVantage:
		return &p.AlphaVantage
	case Finnhub:
		return &p.Finnhub
	case TwelveData:
		return &p.TwelveData
	}
	return nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
