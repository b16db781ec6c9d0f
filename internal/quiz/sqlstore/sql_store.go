package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Store persists users and quizzes. The SQL is written once with '?'
// placeholders and rebound per driver, so SQLite and Postgres share it.
type Store struct {
	db *sqlx.DB
}

type Options struct {
	Driver       string
	DSN          string
	MaxOpenConns int
}

func NewStore(opts Options) (*Store, error) {
	driver := strings.TrimSpace(opts.Driver)
	if driver == "" {
		driver = DriverSQLite
	}

	dsn := strings.TrimSpace(opts.DSN)
	switch driver {
	case DriverSQLite:
		dsn = sqliteDSN(dsn)
	case DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("postgres dsn is required")
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		// One writer keeps SQLite from returning SQLITE_BUSY under load.
		db.SetMaxOpenConns(1)
	} else if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}

	return newStore(context.Background(), db)
}

// NewStoreFromDB wraps an already opened handle, e.g. one created by sqlmock.
// The schema is not applied.
func NewStoreFromDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func newStore(ctx context.Context, db *sqlx.DB) (*Store, error) {
	store := &Store{db: db}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func sqliteDSN(path string) string {
	if path == "" {
		path = "quiz.db"
	}
	if strings.Contains(path, "?") {
		return path
	}
	return "file:" + path + "?_foreign_keys=on&_busy_timeout=5000"
}
