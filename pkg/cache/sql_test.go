package cache

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSQLStore(t *testing.T, dialect Dialect) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := NewSQLStore(db, dialect, "")
	store.now = func() time.Time { return time.Unix(1000, 0) }
	return store, mock
}

func TestDialectFor(t *testing.T) {
	d, err := DialectFor("sqlite3")
	require.NoError(t, err)
	assert.Equal(t, "?", d.Placeholder(1))

	d, err = DialectFor("pgx")
	require.NoError(t, err)
	assert.Equal(t, "$2", d.Placeholder(2))

	_, err = DialectFor("oracle")
	assert.Error(t, err)
}

func TestSQLStore_EnsureSchema(t *testing.T) {
	store, mock := setupSQLStore(t, SQLite)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS signature_cache (cache_key VARCHAR(64) PRIMARY KEY, payload BLOB NOT NULL")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_StoreUpserts(t *testing.T) {
	store, mock := setupSQLStore(t, Postgres)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO signature_cache (cache_key, payload, expires_at) VALUES ($1, $2, $3) ON CONFLICT (cache_key) DO UPDATE")).
		WithArgs("k", []byte("v"), int64(1060)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Store(context.Background(), "k", []byte("v"), time.Minute))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_StoreWithoutTTL(t *testing.T) {
	store, mock := setupSQLStore(t, SQLite)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO signature_cache")).
		WithArgs("k", []byte("v"), int64(0)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Store(context.Background(), "k", []byte("v"), 0))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_Fetch(t *testing.T) {
	store, mock := setupSQLStore(t, SQLite)
	query := regexp.QuoteMeta("SELECT payload, expires_at FROM signature_cache WHERE cache_key = ?")

	mock.ExpectQuery(query).WithArgs("hit").
		WillReturnRows(sqlmock.NewRows([]string{"payload", "expires_at"}).AddRow([]byte("v"), int64(0)))
	mock.ExpectQuery(query).WithArgs("expired").
		WillReturnRows(sqlmock.NewRows([]string{"payload", "expires_at"}).AddRow([]byte("v"), int64(999)))
	mock.ExpectQuery(query).WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	ctx := context.Background()
	value, found, err := store.Fetch(ctx, "hit")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), value)

	_, found, err = store.Fetch(ctx, "expired")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = store.Fetch(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_Exists(t *testing.T) {
	store, mock := setupSQLStore(t, Postgres)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT expires_at FROM signature_cache WHERE cache_key = $1")).
		WithArgs("k").
		WillReturnRows(sqlmock.NewRows([]string{"expires_at"}).AddRow(int64(2000)))

	exists, err := store.Exists(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_DeleteAndClear(t *testing.T) {
	store, mock := setupSQLStore(t, SQLite)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM signature_cache WHERE cache_key = ?")).
		WithArgs("k").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM signature_cache")).
		WillReturnResult(sqlmock.NewResult(0, 3))

	ctx := context.Background()
	require.NoError(t, store.Delete(ctx, "k"))
	require.NoError(t, store.Clear(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_WithSQLStore(t *testing.T) {
	store, mock := setupSQLStore(t, SQLite)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO signature_cache")).
		WithArgs(internalKey("a"), sqlmock.AnyArg(), int64(0)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	c := New[*entry](WithStore(store))
	c.Write(context.Background(), "a", &entry{Name: "a"}, 0)

	assert.NoError(t, mock.ExpectationsWereMet())
}
