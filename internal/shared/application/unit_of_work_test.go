package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockUnitOfWork struct {
	mock.Mock
}

func (m *mockUnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	args := m.Called(ctx)
	return args.Get(0).(context.Context), args.Error(1)
}

func (m *mockUnitOfWork) Commit(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockUnitOfWork) Rollback(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type txMarker struct{}

func TestWithUnitOfWork(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		uow := new(mockUnitOfWork)
		ctx := context.Background()
		txCtx := context.WithValue(ctx, txMarker{}, "tx")

		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Commit", txCtx).Return(nil)

		executed := false
		err := WithUnitOfWork(ctx, uow, func(ctx context.Context) error {
			executed = true
			assert.Equal(t, txCtx, ctx)
			return nil
		})

		require.NoError(t, err)
		assert.True(t, executed)
		uow.AssertExpectations(t)
	})

	t.Run("rolls back and returns the function error", func(t *testing.T) {
		uow := new(mockUnitOfWork)
		ctx := context.Background()
		txCtx := context.WithValue(ctx, txMarker{}, "tx")

		fnErr := errors.New("upsert failed")
		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Rollback", txCtx).Return(errors.New("rollback failed"))

		err := WithUnitOfWork(ctx, uow, func(ctx context.Context) error {
			return fnErr
		})

		assert.Same(t, fnErr, err)
		uow.AssertExpectations(t)
		uow.AssertNotCalled(t, "Commit", mock.Anything)
	})

	t.Run("wraps begin errors", func(t *testing.T) {
		uow := new(mockUnitOfWork)
		ctx := context.Background()

		beginErr := errors.New("pool exhausted")
		uow.On("Begin", ctx).Return(ctx, beginErr)

		executed := false
		err := WithUnitOfWork(ctx, uow, func(ctx context.Context) error {
			executed = true
			return nil
		})

		require.ErrorIs(t, err, beginErr)
		assert.False(t, executed)
	})

	t.Run("wraps commit errors", func(t *testing.T) {
		uow := new(mockUnitOfWork)
		ctx := context.Background()
		txCtx := context.WithValue(ctx, txMarker{}, "tx")

		commitErr := errors.New("serialization failure")
		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Commit", txCtx).Return(commitErr)

		err := WithUnitOfWork(ctx, uow, func(ctx context.Context) error { return nil })

		require.ErrorIs(t, err, commitErr)
	})

	t.Run("rolls back when the function panics", func(t *testing.T) {
		uow := new(mockUnitOfWork)
		ctx := context.Background()
		txCtx := context.WithValue(ctx, txMarker{}, "tx")

		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Rollback", txCtx).Return(nil)

		err := WithUnitOfWork(ctx, uow, func(ctx context.Context) error {
			panic("nil subscription")
		})

		require.ErrorIs(t, err, ErrUnitPanicked)
		assert.Contains(t, err.Error(), "nil subscription")
		uow.AssertNotCalled(t, "Commit", mock.Anything)
	})

	t.Run("nil unit of work runs inline", func(t *testing.T) {
		ctx := context.Background()
		var seen context.Context

		err := WithUnitOfWork(ctx, nil, func(inner context.Context) error {
			seen = inner
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, ctx, seen)
	})
}
