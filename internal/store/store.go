package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"filebox/internal/models"

	_ "modernc.org/sqlite"
)

const (
	busyTimeoutMS          = 5000
	defaultMaxOpenConns    = 1
	defaultMaxIdleConns    = 1
	defaultConnMaxLifetime = 5 * time.Minute

	maxOpenConnsEnvKey    = "FILEBOX_DB_MAX_OPEN_CONNS"
	maxIdleConnsEnvKey    = "FILEBOX_DB_MAX_IDLE_CONNS"
	connMaxLifetimeEnvKey = "FILEBOX_DB_CONN_MAX_LIFETIME"

	dbTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

var connectionPragmas = []string{
	fmt.Sprintf("busy_timeout(%d)", busyTimeoutMS),
	"foreign_keys(1)",
	"synchronous(NORMAL)",
}

// Store wraps the SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the SQLite database and applies pending migrations.
func Open(path string) (*Store, error) {
	db, err := OpenRaw(path)
	if err != nil {
		return nil, err
	}
	if err := configureDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return newWithDB(db), nil
}

// OpenRaw opens the database without configuring or migrating it.
func OpenRaw(path string) (*sql.DB, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	return sql.Open("sqlite", dsn)
}

func newWithDB(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping database", err)
	}
	return nil
}

func configureDB(db *sql.DB) error {
	// journal_mode is stored in the database file; per-connection pragmas
	// travel in the DSN so recycled connections get them too.
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return err
	}

	db.SetMaxOpenConns(intFromEnv(maxOpenConnsEnvKey, defaultMaxOpenConns))
	db.SetMaxIdleConns(intFromEnv(maxIdleConnsEnvKey, defaultMaxIdleConns))
	db.SetConnMaxLifetime(durationFromEnv(connMaxLifetimeEnvKey, defaultConnMaxLifetime))

	return nil
}

func sqliteDSN(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("db path is required")
	}
	u := url.URL{Scheme: "file", Path: path}
	pragmas := make([]string, 0, len(connectionPragmas))
	for _, pragma := range connectionPragmas {
		pragmas = append(pragmas, "_pragma="+pragma)
	}
	u.RawQuery = strings.Join(pragmas, "&")
	return u.String(), nil
}

func intFromEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// durationFromEnv accepts Go durations or a bare number of seconds.
func durationFromEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return fallback
		}
		return time.Duration(seconds) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func dbFormatTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func dbParseTime(value string) (time.Time, error) {
	t, err := time.Parse(dbTimeLayout, value)
	if err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func dbParseNullTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	t, err := dbParseTime(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, models.ErrStoreUnavailable, err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
