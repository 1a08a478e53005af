package outbox

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/saffron/internal/shared/domain"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/database/sqlite"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/migrations"
	sharedPersistence "github.com/felixgeelhaar/saffron/internal/shared/infrastructure/persistence"
)

type grantedEvent struct {
	domain.BaseEvent
	Feature string `json:"feature"`
}

func newGrantedEvent(at time.Time) *grantedEvent {
	return &grantedEvent{
		BaseEvent: domain.NewBaseEvent(uuid.New(), "entitlement", "billing.entitlement.granted", at),
		Feature:   "recipe_access",
	}
}

func setupSQLite(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	conn, err := sqlite.NewConnection(ctx, database.Config{SQLitePath: sqlite.MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrations.Run(ctx, conn))

	return conn.(*sqlite.Connection).DB()
}

func TestNewMessage(t *testing.T) {
	event := newGrantedEvent(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	event.SetMetadata(domain.EventMetadata{CorrelationID: uuid.New(), CausationID: "evt_1"})

	msg, err := NewMessage(event)
	require.NoError(t, err)

	assert.Equal(t, event.EventID(), msg.EventID)
	assert.Equal(t, "billing.entitlement.granted", msg.RoutingKey)
	assert.Equal(t, "entitlement", msg.AggregateType)
	assert.JSONEq(t, `{"feature":"recipe_access"}`, string(msg.Payload))
	assert.Contains(t, string(msg.Metadata), `"causation_id":"evt_1"`)
	assert.Equal(t, StatePending, msg.State())
	assert.True(t, msg.Exhausted(1))
	assert.False(t, msg.Exhausted(2))
	assert.Equal(t, "evt_1", msg.EventMetadata().CausationID)

	bus := msg.BusMessage()
	assert.Equal(t, event.EventID().String(), bus.EventID)
	assert.Equal(t, msg.RoutingKey, bus.RoutingKey)
}

func TestSQLiteRepository_SaveAndFetch(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupSQLite(t))

	first, err := NewMessage(newGrantedEvent(time.Now().Add(-time.Minute)))
	require.NoError(t, err)
	second, err := NewMessage(newGrantedEvent(time.Now()))
	require.NoError(t, err)

	require.NoError(t, repo.SaveBatch(ctx, []*Message{second, first}))
	assert.NotZero(t, first.ID)

	pending, err := repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.EventID, pending[0].EventID, "oldest first")
	assert.JSONEq(t, string(first.Payload), string(pending[0].Payload))

	require.NoError(t, repo.MarkPublished(ctx, first.ID))
	pending, err = repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.EventID, pending[0].EventID)
}

func TestSQLiteRepository_DuplicateEventIsNoop(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupSQLite(t))

	event := newGrantedEvent(time.Now())
	msg, err := NewMessage(event)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, msg))

	again, err := NewMessage(event)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, again))
	assert.Zero(t, again.ID)

	pending, err := repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSQLiteRepository_SaveJoinsTransaction(t *testing.T) {
	ctx := context.Background()
	db := setupSQLite(t)
	repo := NewSQLiteRepository(db)
	uow := sharedPersistence.NewSQLiteUnitOfWork(db)

	txCtx, err := uow.Begin(ctx)
	require.NoError(t, err)
	msg, err := NewMessage(newGrantedEvent(time.Now()))
	require.NoError(t, err)
	require.NoError(t, repo.Save(txCtx, msg))
	require.NoError(t, uow.Rollback(txCtx))

	pending, err := repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSQLiteRepository_RetryAndDeadLetter(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupSQLite(t))

	msg, err := NewMessage(newGrantedEvent(time.Now()))
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, msg))

	require.NoError(t, repo.MarkFailed(ctx, msg.ID, "broker down", time.Now().Add(time.Hour)))
	pending, err := repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "scheduled retry is not due yet")

	repo.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	pending, err = repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].RetryCount)
	require.NotNil(t, pending[0].LastError)
	assert.Equal(t, "broker down", *pending[0].LastError)

	require.NoError(t, repo.MarkDead(ctx, msg.ID, "gave up"))
	pending, err = repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSQLiteRepository_DeleteOld(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupSQLite(t))

	msg, err := NewMessage(newGrantedEvent(time.Now()))
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, msg))
	require.NoError(t, repo.MarkPublished(ctx, msg.ID))

	deleted, err := repo.DeleteOld(ctx, 7)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	repo.now = func() time.Time { return time.Now().AddDate(0, 0, 8) }
	deleted, err = repo.DeleteOld(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
