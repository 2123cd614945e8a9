// Package backend opens the configured store implementation.
package backend

import (
	"context"
	"fmt"

	"equitymetrics/internal/config"
	"equitymetrics/internal/store"
	"equitymetrics/internal/store/postgres"
	"equitymetrics/internal/store/sqlite"
)

// Open returns a migrated store for cfg.Driver.
func Open(ctx context.Context, cfg config.Store) (store.Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		s, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
