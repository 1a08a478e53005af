package application

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnitPanicked wraps a panic recovered inside a unit of work.
var ErrUnitPanicked = errors.New("unit of work panicked")

// UnitOfWork groups store writes and their outbox messages into one
// transaction carried in the returned context.
type UnitOfWork interface {
	Begin(ctx context.Context) (context.Context, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UnitOfWorkFunc runs inside a unit of work.
type UnitOfWorkFunc func(ctx context.Context) error

// WithUnitOfWork runs fn in a transaction: committed when fn returns nil,
// rolled back on error or panic. The rollback error is dropped in favour of
// fn's. A nil uow runs fn directly against ctx.
func WithUnitOfWork(ctx context.Context, uow UnitOfWork, fn UnitOfWorkFunc) error {
	if uow == nil {
		return fn(ctx)
	}

	txCtx, err := uow.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin unit of work: %w", err)
	}

	if err := runGuarded(txCtx, fn); err != nil {
		_ = uow.Rollback(txCtx)
		return err
	}
	if err := uow.Commit(txCtx); err != nil {
		return fmt.Errorf("commit unit of work: %w", err)
	}
	return nil
}

func runGuarded(ctx context.Context, fn UnitOfWorkFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrUnitPanicked, r)
		}
	}()
	return fn(ctx)
}
