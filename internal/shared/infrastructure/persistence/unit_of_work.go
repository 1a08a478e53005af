package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/saffron/internal/shared/application"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/database"
)

// ErrNoTransaction is returned by Commit and Rollback outside Begin.
var ErrNoTransaction = errors.New("no transaction in context")

var (
	_ application.UnitOfWork = (*PostgresUnitOfWork)(nil)
	_ application.UnitOfWork = (*SQLiteUnitOfWork)(nil)
)

// NewUnitOfWork returns the unit of work matching conn's driver.
func NewUnitOfWork(conn database.Connection) (application.UnitOfWork, error) {
	switch c := conn.(type) {
	case interface{ Pool() *pgxpool.Pool }:
		return NewPostgresUnitOfWork(c.Pool()), nil
	case interface{ DB() *sql.DB }:
		return NewSQLiteUnitOfWork(c.DB()), nil
	default:
		return nil, fmt.Errorf("no unit of work for %s connection", conn.Driver())
	}
}

// txUnit implements Begin/Commit/Rollback over any transaction type.
// Begin inside an existing transaction joins it; only the owner finishes it.
type txUnit[T comparable] struct {
	begin    func(ctx context.Context) (T, error)
	commit   func(ctx context.Context, tx T) error
	rollback func(ctx context.Context, tx T) error
}

func (u txUnit[T]) Begin(ctx context.Context) (context.Context, error) {
	if info, ok := txFrom[T](ctx); ok {
		return withTx(ctx, info.Tx, false), nil
	}
	tx, err := u.begin(ctx)
	if err != nil {
		return nil, err
	}
	return withTx(ctx, tx, true), nil
}

func (u txUnit[T]) Commit(ctx context.Context) error {
	return u.finish(ctx, u.commit)
}

func (u txUnit[T]) Rollback(ctx context.Context) error {
	return u.finish(ctx, u.rollback)
}

func (u txUnit[T]) finish(ctx context.Context, end func(context.Context, T) error) error {
	info, ok := txFrom[T](ctx)
	if !ok {
		return ErrNoTransaction
	}
	if !info.Owned {
		return nil
	}
	return end(ctx, info.Tx)
}

// PostgresUnitOfWork runs units of work in pgx transactions.
type PostgresUnitOfWork struct {
	txUnit[pgx.Tx]
}

func NewPostgresUnitOfWork(pool *pgxpool.Pool) *PostgresUnitOfWork {
	return &PostgresUnitOfWork{txUnit[pgx.Tx]{
		begin:    func(ctx context.Context) (pgx.Tx, error) { return pool.Begin(ctx) },
		commit:   func(ctx context.Context, tx pgx.Tx) error { return tx.Commit(ctx) },
		rollback: func(ctx context.Context, tx pgx.Tx) error { return tx.Rollback(ctx) },
	}}
}

// SQLiteUnitOfWork runs units of work in database/sql transactions.
type SQLiteUnitOfWork struct {
	txUnit[*sql.Tx]
}

func NewSQLiteUnitOfWork(db *sql.DB) *SQLiteUnitOfWork {
	return &SQLiteUnitOfWork{txUnit[*sql.Tx]{
		begin:    func(ctx context.Context) (*sql.Tx, error) { return db.BeginTx(ctx, nil) },
		commit:   func(_ context.Context, tx *sql.Tx) error { return tx.Commit() },
		rollback: func(_ context.Context, tx *sql.Tx) error { return tx.Rollback() },
	}}
}
