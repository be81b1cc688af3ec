// Package store persists benchmark and analysis results to Postgres
// (Supabase in CI). The pool is a process-wide singleton initialized from
// DATABASE_URL.
package store

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	pool *pgxpool.Pool
	once sync.Once
)

// InitDB initializes the connection pool from the DATABASE_URL
// environment variable. Safe to call more than once; only the first call
// connects.
func InitDB(ctx context.Context) error {
	var err error
	once.Do(func() {
		dbURL := os.Getenv("DATABASE_URL")
		if dbURL == "" {
			err = fmt.Errorf("DATABASE_URL environment variable not set")
			return
		}

		config, parseErr := poolConfig(dbURL)
		if parseErr != nil {
			err = parseErr
			return
		}

		pool, err = pgxpool.NewWithConfig(ctx, config)
	})
	return err
}

// poolConfig parses the connection string and applies the settings the
// benchmark runner wants: a small pool, since the CLI pushes a handful of
// result rows and exits, and an application_name so pushes are
// attributable in pg_stat_activity.
func poolConfig(dbURL string) (*pgxpool.Config, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	config.MaxConns = 4
	config.ConnConfig.RuntimeParams["application_name"] = "billaudit-benchmark"
	return config, nil
}

// GetPool returns the connection pool, nil before InitDB.
func GetPool() *pgxpool.Pool {
	return pool
}

// Close closes the connection pool.
func Close() {
	if pool != nil {
		pool.Close()
	}
}
