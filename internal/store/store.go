package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	ModeMemory   = "memory"
	ModeSQLite   = "sqlite"
	ModePostgres = "postgres"
)

// Dialect tells callers which placeholder and DDL flavour a DB speaks.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return ModePostgres
	}
	return ModeSQLite
}

// DB is a database/sql handle tagged with its dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// NormalizeMode maps user-facing aliases onto the three supported modes.
func NormalizeMode(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", ModeMemory, "mem":
		return ModeMemory, nil
	case ModeSQLite, "local", "sqlite3":
		return ModeSQLite, nil
	case ModePostgres, "postgresql", "pg", "db":
		return ModePostgres, nil
	default:
		return "", fmt.Errorf("invalid store mode %q (supported: %s, %s, %s)", raw, ModeMemory, ModeSQLite, ModePostgres)
	}
}

// OpenSQLite opens (and creates if needed) a sqlite database file.
// ":memory:" is accepted for tests.
func OpenSQLite(ctx context.Context, path string) (*DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("empty sqlite database path")
	}
	if path != ":memory:" {
		path = filepath.Clean(path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pragmas := []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA foreign_keys = ON;`,
	}
	for _, stmt := range pragmas {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{DB: db, Dialect: SQLite}, nil
}

// OpenPostgres connects to postgres through lib/pq and pings it.
func OpenPostgres(ctx context.Context, dsn string) (*DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("empty postgres dsn")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{DB: db, Dialect: Postgres}, nil
}

// Open picks the driver for mode. The memory mode has no database and
// returns a nil *DB.
func Open(ctx context.Context, mode, sqlitePath, postgresDSN string) (*DB, error) {
	mode, err := NormalizeMode(mode)
	if err != nil {
		return nil, err
	}
	switch mode {
	case ModeSQLite:
		return OpenSQLite(ctx, sqlitePath)
	case ModePostgres:
		return OpenPostgres(ctx, postgresDSN)
	default:
		return nil, nil
	}
}

// Rebind rewrites '?' placeholders into '$1..$n' for postgres.
func (db *DB) Rebind(query string) string {
	if db.Dialect != Postgres {
		return query
	}
	return Rebind(query)
}

func Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Migrate runs DDL statements in order.
func (db *DB) Migrate(ctx context.Context, statements []string) error {
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// AutoIncrement returns the surrogate key column type for the dialect.
func (db *DB) AutoIncrement() string {
	if db.Dialect == Postgres {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}
