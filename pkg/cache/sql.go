package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// DefaultTable is the table used by SQLStore unless configured otherwise.
const DefaultTable = "signature_cache"

// Dialect captures the few SQL differences SQLStore cares about.
type Dialect struct {
	Name        string
	PayloadType string
	Placeholder func(n int) string
}

var (
	// SQLite uses ? placeholders (mattn/go-sqlite3).
	SQLite = Dialect{
		Name:        "sqlite3",
		PayloadType: "BLOB",
		Placeholder: func(int) string { return "?" },
	}
	// Postgres uses $n placeholders (jackc/pgx stdlib or lib/pq).
	Postgres = Dialect{
		Name:        "postgres",
		PayloadType: "BYTEA",
		Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	}
)

// DialectFor maps a database/sql driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite3":
		return SQLite, nil
	case "pgx", "postgres":
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported SQL driver %q (valid: sqlite3, pgx, postgres)", driver)
	}
}

// SQLStore implements Store on a single key/value table. Expiry is checked
// on read; expired rows stay until overwritten, deleted or cleared.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	table   string
	now     func() time.Time
}

// NewSQLStore wraps db. Call EnsureSchema once before use if the table may
// not exist yet.
func NewSQLStore(db *sql.DB, dialect Dialect, table string) *SQLStore {
	if table == "" {
		table = DefaultTable
	}
	return &SQLStore{db: db, dialect: dialect, table: table, now: time.Now}
}

// OpenSQLStore opens the database with the given driver, checks the
// connection and creates the table. The driver must be registered by the
// caller (blank import). Connection failures wrap ErrStoreUnavailable.
func OpenSQLStore(ctx context.Context, driver, dsn, table string) (*SQLStore, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrStoreUnavailable, driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, driver, err)
	}
	s := NewSQLStore(db, dialect, table)
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the cache table when it does not exist.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (cache_key VARCHAR(64) PRIMARY KEY, payload %s NOT NULL, expires_at BIGINT NOT NULL DEFAULT 0)",
		s.table, s.dialect.PayloadType)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("creating table %s: %w", s.table, err)
	}
	return nil
}

func (s *SQLStore) ph(n int) string {
	return s.dialect.Placeholder(n)
}

func (s *SQLStore) Store(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = s.now().Add(ttl).Unix()
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (cache_key, payload, expires_at) VALUES (%s, %s, %s) ON CONFLICT (cache_key) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at",
		s.table, s.ph(1), s.ph(2), s.ph(3))
	_, err := s.db.ExecContext(ctx, query, key, value, expiresAt)
	return err
}

func (s *SQLStore) Fetch(ctx context.Context, key string) ([]byte, bool, error) {
	query := fmt.Sprintf("SELECT payload, expires_at FROM %s WHERE cache_key = %s", s.table, s.ph(1))
	var (
		payload   []byte
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, query, key).Scan(&payload, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if s.expired(expiresAt) {
		return nil, false, nil
	}
	return payload, true, nil
}

func (s *SQLStore) Exists(ctx context.Context, key string) (bool, error) {
	query := fmt.Sprintf("SELECT expires_at FROM %s WHERE cache_key = %s", s.table, s.ph(1))
	var expiresAt int64
	err := s.db.QueryRowContext(ctx, query, key).Scan(&expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return !s.expired(expiresAt), nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE cache_key = %s", s.table, s.ph(1))
	_, err := s.db.ExecContext(ctx, query, key)
	return err
}

// Clear deletes every row of the table.
func (s *SQLStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM "+s.table)
	return err
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) expired(expiresAt int64) bool {
	return expiresAt != 0 && expiresAt <= s.now().Unix()
}
