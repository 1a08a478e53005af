package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	billingDomain "github.com/felixgeelhaar/saffron/internal/billing/domain"
	identityDomain "github.com/felixgeelhaar/saffron/internal/identity/domain"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/database/sqlite"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/migrations"
)

func newSQLiteConnection(t *testing.T) database.Connection {
	t.Helper()
	ctx := context.Background()

	conn, err := sqlite.NewConnection(ctx, database.Config{SQLitePath: sqlite.MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrations.Run(ctx, conn))
	return conn
}

func TestRepositoryFactory_SQLite(t *testing.T) {
	conn := newSQLiteConnection(t)
	factory := NewRepositoryFactory(conn)
	assert.Equal(t, database.DriverSQLite, factory.Driver())
	assert.Same(t, conn, factory.Connection())

	repos, err := factory.Build()
	require.NoError(t, err)
	require.NotNil(t, repos.UnitOfWork)

	ctx := context.Background()
	email, err := identityDomain.NewEmail("cook@example.com")
	require.NoError(t, err)
	name, err := identityDomain.NewName("Cook")
	require.NoError(t, err)
	user := identityDomain.NewUser(email, name)
	require.NoError(t, repos.Users.Save(ctx, user))

	found, err := repos.Users.FindByID(ctx, user.ID())
	require.NoError(t, err)
	assert.Equal(t, user.ID(), found.ID())

	period := billingDomain.PeriodOf(time.Now())
	count, err := repos.Usage.Increment(ctx, user.ID(), period, billingDomain.CounterRecipeViews, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRepositoryFactory_PostgresRequiresPool(t *testing.T) {
	factory := &RepositoryFactory{conn: newSQLiteConnection(t), driver: database.DriverPostgres}

	_, err := factory.Build()
	assert.Error(t, err)
}
