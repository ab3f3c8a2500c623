package authkitpg

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/sayup/server/internal/authkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ authkit.RevocationStore = (*PostgresRevocationStore)(nil)

var fixedNow = time.UnixMilli(1700000000123)

func newRevocationTestFixture(t *testing.T) (*PostgresRevocationStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	store := NewPostgresRevocationStore(mock)
	store.now = func() time.Time { return fixedNow }
	return store, mock
}

func TestPostgresRevocationStore_Set(t *testing.T) {
	store, mock := newRevocationTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO revoked_tokens").
		WithArgs(hashKey("blacklist:abc"), "blacklisted", fixedNow.Add(time.Minute).UnixMilli()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.Set(context.Background(), "blacklist:abc", "blacklisted", time.Minute)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRevocationStore_Set_ExecError(t *testing.T) {
	store, mock := newRevocationTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO revoked_tokens").
		WithArgs(hashKey("blacklist:abc"), "blacklisted", fixedNow.Add(time.Minute).UnixMilli()).
		WillReturnError(errors.New("connection refused"))

	err := store.Set(context.Background(), "blacklist:abc", "blacklisted", time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "revocation_store.postgres.set")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRevocationStore_Exists(t *testing.T) {
	store, mock := newRevocationTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(hashKey("blacklist:abc"), fixedNow.UnixMilli()).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(hashKey("blacklist:other"), fixedNow.UnixMilli()).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	exists, err := store.Exists(context.Background(), "blacklist:abc")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Exists(context.Background(), "blacklist:other")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRevocationStore_Exists_QueryError(t *testing.T) {
	store, mock := newRevocationTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(hashKey("blacklist:abc"), fixedNow.UnixMilli()).
		WillReturnError(errors.New("timeout"))

	_, err := store.Exists(context.Background(), "blacklist:abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "revocation_store.postgres.exists")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRevocationStore_DeleteAndPurge(t *testing.T) {
	store, mock := newRevocationTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM revoked_tokens WHERE token_key =").
		WithArgs(hashKey("blacklist:abc")).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM revoked_tokens WHERE expires_at_ms <=").
		WithArgs(fixedNow.UnixMilli()).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	require.NoError(t, store.Delete(context.Background(), "blacklist:abc"))
	purged, err := store.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), purged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS revoked_tokens").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, EnsureSchema(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHashKeyIsStableAndOpaque(t *testing.T) {
	first := hashKey("blacklist:token")
	assert.Equal(t, first, hashKey("blacklist:token"))
	assert.NotEqual(t, first, hashKey("blacklist:other"))
	assert.NotContains(t, first, "token")
	assert.Len(t, first, 43)
}

func TestBuildPoolRejectsBadURL(t *testing.T) {
	_, err := BuildPool(context.Background(), "://bad")
	assert.Error(t, err)
}
