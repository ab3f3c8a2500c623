package authkitpg

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is the subset of *pgxpool.Pool the store needs.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
}

// PostgresRevocationStore persists revoked tokens in PostgreSQL. Keys are stored hashed.
type PostgresRevocationStore struct {
	pool querier
	now  func() time.Time
}

// NewPostgresRevocationStore constructs a Postgres store.
func NewPostgresRevocationStore(pool querier) *PostgresRevocationStore {
	return &PostgresRevocationStore{pool: pool, now: time.Now}
}

// Set inserts or extends the revocation row for key.
func (store *PostgresRevocationStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	_, err := store.pool.Exec(ctx, `
INSERT INTO revoked_tokens (token_key, token_value, expires_at_ms)
VALUES ($1, $2, $3)
ON CONFLICT (token_key) DO UPDATE SET token_value = EXCLUDED.token_value, expires_at_ms = EXCLUDED.expires_at_ms
`, hashKey(key), value, store.now().Add(ttl).UnixMilli())
	if err != nil {
		return fmt.Errorf("revocation_store.postgres.set: %w", err)
	}
	return nil
}

// Exists reports whether an unexpired row is stored for key.
func (store *PostgresRevocationStore) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	row := store.pool.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_key = $1 AND expires_at_ms > $2)
`, hashKey(key), store.now().UnixMilli())
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("revocation_store.postgres.exists: %w", err)
	}
	return exists, nil
}

// Delete removes the row for key.
func (store *PostgresRevocationStore) Delete(ctx context.Context, key string) error {
	if _, err := store.pool.Exec(ctx, `DELETE FROM revoked_tokens WHERE token_key = $1`, hashKey(key)); err != nil {
		return fmt.Errorf("revocation_store.postgres.delete: %w", err)
	}
	return nil
}

// PurgeExpired deletes rows whose TTL has elapsed and returns how many were removed.
func (store *PostgresRevocationStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := store.pool.Exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at_ms <= $1`, store.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("revocation_store.postgres.purge: %w", err)
	}
	return tag.RowsAffected(), nil
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
