package persistence

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tx is a transaction carried in a context. Owned is set only for the unit
// of work that began it; nested units join without owning.
type Tx[T comparable] struct {
	Tx    T
	Owned bool
}

type (
	// TxInfo is the PostgreSQL transaction in a context.
	TxInfo = Tx[pgx.Tx]
	// SQLiteTxInfo is the SQLite transaction in a context.
	SQLiteTxInfo = Tx[*sql.Tx]
)

// txKey is distinct per transaction type, so a context can never hand a
// SQLite transaction to a PostgreSQL repository.
type txKey[T comparable] struct{}

func withTx[T comparable](ctx context.Context, tx T, owned bool) context.Context {
	return context.WithValue(ctx, txKey[T]{}, Tx[T]{Tx: tx, Owned: owned})
}

func txFrom[T comparable](ctx context.Context) (Tx[T], bool) {
	var zero T
	info, ok := ctx.Value(txKey[T]{}).(Tx[T])
	if !ok || info.Tx == zero {
		return Tx[T]{}, false
	}
	return info, true
}

// WithTx stores a PostgreSQL transaction in ctx.
func WithTx(ctx context.Context, tx pgx.Tx, owned bool) context.Context {
	return withTx(ctx, tx, owned)
}

// TxInfoFromContext returns the PostgreSQL transaction in ctx, if any.
func TxInfoFromContext(ctx context.Context) (TxInfo, bool) {
	return txFrom[pgx.Tx](ctx)
}

// WithSQLiteTx stores a SQLite transaction in ctx.
func WithSQLiteTx(ctx context.Context, tx *sql.Tx, owned bool) context.Context {
	return withTx(ctx, tx, owned)
}

// SQLiteTxInfoFromContext returns the SQLite transaction in ctx, if any.
func SQLiteTxInfoFromContext(ctx context.Context) (SQLiteTxInfo, bool) {
	return txFrom[*sql.Tx](ctx)
}

// DBExecutor is the query surface shared by pgxpool.Pool and pgx.Tx.
type DBExecutor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Executor returns the transaction in ctx, or pool outside a unit of work.
func Executor(ctx context.Context, pool *pgxpool.Pool) DBExecutor {
	if info, ok := TxInfoFromContext(ctx); ok {
		return info.Tx
	}
	return pool
}

// SQLiteDBExecutor is the query surface shared by *sql.DB and *sql.Tx.
type SQLiteDBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SQLiteExecutor returns the transaction in ctx, or db outside a unit of work.
func SQLiteExecutor(ctx context.Context, db *sql.DB) SQLiteDBExecutor {
	if info, ok := SQLiteTxInfoFromContext(ctx); ok {
		return info.Tx
	}
	return db
}
