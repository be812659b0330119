package cmd

import (
	"context"
	"fmt"
	"log"

	"supportdesk/internal/config"
	"supportdesk/internal/store"
	"supportdesk/internal/store/postgres"
	"supportdesk/internal/store/sqlite"
)

// serverStore is what the API server needs from a database engine.
type serverStore interface {
	store.TicketStore
	store.AccountStore
	Close() error
}

var (
	_ serverStore = (*sqlite.Store)(nil)
	_ serverStore = (*postgres.Store)(nil)
)

func openServerStore(ctx context.Context, cfg config.StorageConfig) (serverStore, error) {
	if cfg.DatabaseURL != "" {
		st, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.Options{})
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		log.Printf("storage: using postgres")
		return st, nil
	}
	st, err := sqlite.Open(cfg.DBPath, sqlite.Options{})
	if err != nil {
		return nil, fmt.Errorf("sqlite %s: %w", cfg.DBPath, err)
	}
	log.Printf("storage: using sqlite path=%s", cfg.DBPath)
	return st, nil
}
