package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/database"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// pragmas applied to file databases. WAL lets the webhook writer and
// query readers overlap; busy_timeout absorbs short write contention.
var pragmas = []string{
	"journal_mode(WAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
}

func init() {
	database.Register(database.DriverSQLite, NewConnection)
}

// Connection is a database.Connection over a single-writer *sql.DB.
type Connection struct {
	db *sql.DB
}

// NewConnection opens cfg.SQLitePath, or the default CLI store when empty.
func NewConnection(ctx context.Context, cfg database.Config) (database.Connection, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = database.DefaultSQLitePath()
	}
	db, err := Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Connection{db: db}, nil
}

// Open returns a configured *sql.DB for path, creating its directory.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	dsn := path
	if path != MemoryPath {
		if err := database.EnsureDirectory(path); err != nil {
			return nil, fmt.Errorf("sqlite: create directory: %w", err)
		}
		dsn = withPragmas(path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// One connection: a single writer, and for :memory: the only way every
	// caller sees the same database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return db, nil
}

func withPragmas(path string) string {
	q := make(url.Values)
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + q.Encode()
}

// DB exposes the handle to repositories and the unit of work.
func (c *Connection) DB() *sql.DB { return c.db }

func (c *Connection) Driver() database.Driver { return database.DriverSQLite }

func (c *Connection) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }

func (c *Connection) Close() error { return c.db.Close() }

func (c *Connection) Exec(ctx context.Context, query string, args ...any) error {
	_, err := c.db.ExecContext(ctx, query, args...)
	return err
}

func (c *Connection) QueryRow(ctx context.Context, query string, args ...any) database.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}
