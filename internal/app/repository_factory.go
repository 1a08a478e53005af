package app

import (
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	billingDomain "github.com/felixgeelhaar/saffron/internal/billing/domain"
	billingPersistence "github.com/felixgeelhaar/saffron/internal/billing/infrastructure/persistence"
	identityDomain "github.com/felixgeelhaar/saffron/internal/identity/domain"
	identityPersistence "github.com/felixgeelhaar/saffron/internal/identity/infrastructure/persistence"
	sharedApplication "github.com/felixgeelhaar/saffron/internal/shared/application"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/outbox"
	sharedPersistence "github.com/felixgeelhaar/saffron/internal/shared/infrastructure/persistence"
)

// RepositoryFactory creates repositories based on the database driver.
type RepositoryFactory struct {
	conn   database.Connection
	driver database.Driver
}

// NewRepositoryFactory creates a new repository factory.
func NewRepositoryFactory(conn database.Connection) *RepositoryFactory {
	return &RepositoryFactory{
		conn:   conn,
		driver: conn.Driver(),
	}
}

// Repositories is the full set of stores the billing engine runs on.
type Repositories struct {
	Users         identityDomain.UserRepository
	Subscriptions billingDomain.SubscriptionRepository
	Entitlements  billingDomain.EntitlementRepository
	Usage         billingDomain.UsageRepository
	History       billingDomain.HistoryRepository
	Receipts      billingDomain.ReceiptRepository
	Outbox        outbox.Repository
	UnitOfWork    sharedApplication.UnitOfWork
}

// Build creates every repository for the configured driver.
func (f *RepositoryFactory) Build() (*Repositories, error) {
	uow, err := sharedPersistence.NewUnitOfWork(f.conn)
	if err != nil {
		return nil, err
	}

	switch f.driver {
	case database.DriverPostgres:
		pool, err := f.getPostgresPool()
		if err != nil {
			return nil, err
		}
		return &Repositories{
			Users:         identityPersistence.NewPostgresUserRepository(pool),
			Subscriptions: billingPersistence.NewPostgresSubscriptionRepository(pool),
			Entitlements:  billingPersistence.NewPostgresEntitlementRepository(pool),
			Usage:         billingPersistence.NewPostgresUsageRepository(pool),
			History:       billingPersistence.NewPostgresHistoryRepository(pool),
			Receipts:      billingPersistence.NewPostgresReceiptRepository(pool),
			Outbox:        outbox.NewPostgresRepository(pool),
			UnitOfWork:    uow,
		}, nil

	case database.DriverSQLite:
		db, err := f.getSQLiteDB()
		if err != nil {
			return nil, err
		}
		return &Repositories{
			Users:         identityPersistence.NewSQLiteUserRepository(db),
			Subscriptions: billingPersistence.NewSQLiteSubscriptionRepository(db),
			Entitlements:  billingPersistence.NewSQLiteEntitlementRepository(db),
			Usage:         billingPersistence.NewSQLiteUsageRepository(db),
			History:       billingPersistence.NewSQLiteHistoryRepository(db),
			Receipts:      billingPersistence.NewSQLiteReceiptRepository(db),
			Outbox:        outbox.NewSQLiteRepository(db),
			UnitOfWork:    uow,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported driver: %s", f.driver)
	}
}

func (f *RepositoryFactory) getPostgresPool() (*pgxpool.Pool, error) {
	pgConn, ok := f.conn.(interface{ Pool() *pgxpool.Pool })
	if !ok {
		return nil, fmt.Errorf("postgres connection does not expose Pool()")
	}
	return pgConn.Pool(), nil
}

func (f *RepositoryFactory) getSQLiteDB() (*sql.DB, error) {
	sqliteConn, ok := f.conn.(interface{ DB() *sql.DB })
	if !ok {
		return nil, fmt.Errorf("sqlite connection does not expose DB()")
	}
	return sqliteConn.DB(), nil
}

// Driver returns the database driver type.
func (f *RepositoryFactory) Driver() database.Driver {
	return f.driver
}

// Connection returns the underlying database connection.
func (f *RepositoryFactory) Connection() database.Connection {
	return f.conn
}
