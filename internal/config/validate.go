package config

import (
	"errors"
	"fmt"
	"slices"

	"equitymetrics/internal/model"
)

// Validate checks that all values are usable.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if c.Server.RequestTimeoutSec < 1 {
		return errors.New("server.request_timeout_sec must be >= 1")
	}
	if c.Server.RequestsPerSecond < 0 {
		return errors.New("server.requests_per_second must be >= 0")
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			return errors.New("store.path is required for sqlite")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}
	if c.Store.CacheRetentionHours < 0 {
		return errors.New("store.cache_retention_hours must be >= 0")
	}

	if c.TTL.QuoteSec < 0 || c.TTL.OverviewSec < 0 || c.TTL.FinancialsSec < 0 {
		return errors.New("ttl values must be >= 0")
	}

	for name, order := range c.Priorities {
		if _, ok := model.ParseField(name); !ok {
			return fmt.Errorf("priorities: unknown metric %q", name)
		}
		for _, p := range order {
			if !slices.Contains(VendorNames, p) {
				return fmt.Errorf("priorities.%s: unknown provider %q", name, p)
			}
		}
	}

	for _, name := range VendorNames {
		v, _ := c.Providers.ByName(name)
		if err := v.validate("providers." + name); err != nil {
			return err
		}
	}

	if c.Warmer.Workers < 0 {
		return errors.New("warmer.workers must be >= 0")
	}
	if c.Warmer.QueueSize < 1 {
		return errors.New("warmer.queue_size must be >= 1")
	}
	return nil
}

func (v *Vendor) validate(prefix string) error {
	if v.RequestsPerMinute < 0 {
		return fmt.Errorf("%s.requests_per_minute must be >= 0", prefix)
	}
	if v.RequestsPerDay < 0 {
		return fmt.Errorf("%s.requests_per_day must be >= 0", prefix)
	}
	if v.MaxConcurrent < 0 {
		return fmt.Errorf("%s.max_concurrent must be >= 0", prefix)
	}
	if v.BreakerFailures < 0 || v.BreakerCooldownSec < 0 {
		return fmt.Errorf("%s breaker settings must be >= 0", prefix)
	}
	return nil
}
