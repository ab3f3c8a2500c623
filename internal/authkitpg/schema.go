package authkitpg

import (
	"context"
	"fmt"
)

// EnsureSchema creates the revocation table if it does not exist.
func EnsureSchema(ctx context.Context, pool querier) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS revoked_tokens (
    token_key TEXT PRIMARY KEY,
    token_value TEXT NOT NULL,
    expires_at_ms BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_revoked_tokens_expiry ON revoked_tokens (expires_at_ms);
`)
	if err != nil {
		return fmt.Errorf("revocation_store.postgres.schema: %w", err)
	}
	return nil
}
