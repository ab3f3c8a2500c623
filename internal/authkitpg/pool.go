package authkitpg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// BuildPool creates a pgx pool sized for revocation lookups on every authenticated request.
func BuildPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("revocation_store.postgres.parse_url: %w", err)
	}
	config.MinConns = 1
	config.MaxConns = 16
	config.MaxConnLifetime = 30 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second
	return pgxpool.NewWithConfig(ctx, config)
}

// Open builds a pool, ensures the schema and returns the store together with the pool for closing.
func Open(ctx context.Context, databaseURL string) (*PostgresRevocationStore, *pgxpool.Pool, error) {
	pool, err := BuildPool(ctx, databaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return NewPostgresRevocationStore(pool), pool, nil
}
