package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Config selects and configures a backend.
type Config struct {
	// Driver selects the backend. Empty or "auto" detects it from URL.
	Driver Driver
	// URL is the PostgreSQL connection string.
	URL string
	// SQLitePath is the SQLite database file. ":memory:" is accepted.
	SQLitePath string
	// MaxConns caps the PostgreSQL pool size.
	MaxConns int
}

// Opener opens a Connection for cfg.
type Opener func(ctx context.Context, cfg Config) (Connection, error)

var (
	openersMu sync.RWMutex
	openers   = map[Driver]Opener{}
)

// Register installs the opener for d. The postgres and sqlite subpackages
// call it from init, which keeps driver imports out of this package.
func Register(d Driver, open Opener) {
	openersMu.Lock()
	defer openersMu.Unlock()
	openers[d] = open
}

// NewConnection opens a connection using the opener registered for the
// configured driver.
func NewConnection(ctx context.Context, cfg Config) (Connection, error) {
	driver := cfg.Driver
	if driver == "" || driver == "auto" {
		driver = DetectDriver(cfg.URL)
	}
	if !driver.IsValid() {
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	openersMu.RLock()
	open, ok := openers[driver]
	openersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s driver not registered", driver)
	}
	return open(ctx, cfg)
}

// DefaultSQLitePath is where the CLI keeps its local billing store.
func DefaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".saffron", "billing.db")
}

// EnsureDirectory creates the parent directory of path.
func EnsureDirectory(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
