package database

import "context"

// Row is satisfied by both pgx.Row and *sql.Row, so scan helpers can be
// shared between the PostgreSQL and SQLite repositories.
type Row interface {
	Scan(dest ...any) error
}

// Connection is an open database handle. Repositories reach the concrete
// pool or *sql.DB through it; migrations and health checks use it directly.
type Connection interface {
	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, query string, args ...any) error
	QueryRow(ctx context.Context, query string, args ...any) Row
	Ping(ctx context.Context) error
	Close() error
	Driver() Driver
}
