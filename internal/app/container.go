package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	billingApp "github.com/felixgeelhaar/saffron/internal/billing/application"
	billingDomain "github.com/felixgeelhaar/saffron/internal/billing/domain"
	"github.com/felixgeelhaar/saffron/internal/billing/infrastructure/catalog"
	"github.com/felixgeelhaar/saffron/internal/billing/infrastructure/receipts"
	"github.com/felixgeelhaar/saffron/internal/billing/infrastructure/stripe"
	"github.com/felixgeelhaar/saffron/internal/billing/resolution"
	identityDomain "github.com/felixgeelhaar/saffron/internal/identity/domain"
	sharedApplication "github.com/felixgeelhaar/saffron/internal/shared/application"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/saffron/internal/shared/infrastructure/database/postgres" // Register PostgreSQL driver
	_ "github.com/felixgeelhaar/saffron/internal/shared/infrastructure/database/sqlite"   // Register SQLite driver
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/saffron/pkg/config"
	"github.com/felixgeelhaar/saffron/pkg/observability"
)

const (
	receiptCachePrefix = "saffron:webhook:"
	maxOutboxLag       = 5 * time.Minute
)

// Container holds all application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Database
	DBConn   database.Connection
	DBDriver database.Driver

	// Redis
	RedisClient *redis.Client

	// Repositories
	UserRepo         identityDomain.UserRepository
	SubscriptionRepo billingDomain.SubscriptionRepository
	EntitlementRepo  billingDomain.EntitlementRepository
	UsageRepo        billingDomain.UsageRepository
	HistoryRepo      billingDomain.HistoryRepository
	ReceiptRepo      billingDomain.ReceiptRepository
	OutboxRepo       outbox.Repository

	// Unit of Work
	UnitOfWork sharedApplication.UnitOfWork

	// Publishers
	EventPublisher eventbus.Publisher

	// Billing configuration
	Catalog    *catalog.Catalog
	PriceTable billingDomain.PriceTable

	// Processor integration
	StripeClient *stripe.Client
	Verifier     *stripe.Verifier
	Resolver     *resolution.Resolver

	// Billing services
	Processor      *billingApp.Processor
	QueryService   *billingApp.QueryService
	UsageRecorder  *billingApp.UsageRecorder
	BillingService *billingApp.Service

	// Outbox
	OutboxProcessor *outbox.Processor

	// Observability
	Health  *observability.HealthRegistry
	Metrics *observability.InMemoryMetrics
}

// NewContainer connects to the configured store and wires the billing engine.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Container{
		Config: cfg,
		Logger: logger,
	}

	conn, err := database.NewConnection(ctx, database.Config{
		Driver:     database.ParseDriver(cfg.DatabaseDriver, cfg.DatabaseURL),
		URL:        cfg.DatabaseURL,
		SQLitePath: cfg.SQLitePath,
		MaxConns:   cfg.DatabaseMaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	c.DBConn = conn
	c.DBDriver = conn.Driver()
	logger.Info("connected to database", "driver", c.DBDriver)

	if err := migrations.Run(ctx, conn); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := c.wire(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) wire(ctx context.Context) error {
	cfg, logger := c.Config, c.Logger

	repos, err := NewRepositoryFactory(c.DBConn).Build()
	if err != nil {
		return fmt.Errorf("failed to create repositories: %w", err)
	}
	c.UserRepo = repos.Users
	c.SubscriptionRepo = repos.Subscriptions
	c.EntitlementRepo = repos.Entitlements
	c.UsageRepo = repos.Usage
	c.HistoryRepo = repos.History
	c.OutboxRepo = repos.Outbox
	c.UnitOfWork = repos.UnitOfWork

	// Connect to Redis (optional in development)
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			if !cfg.IsDevelopment() {
				return fmt.Errorf("failed to parse Redis URL: %w", err)
			}
			logger.Warn("invalid Redis URL, receipt cache will stay in memory", "error", err)
		} else {
			redisClient := redis.NewClient(opt)
			if err := redisClient.Ping(ctx).Err(); err != nil {
				redisClient.Close()
				if !cfg.IsDevelopment() {
					return fmt.Errorf("failed to connect to Redis: %w", err)
				}
				logger.Warn("Redis not available, receipt cache will stay in memory", "error", err)
			} else {
				c.RedisClient = redisClient
				logger.Info("connected to Redis")
			}
		}
	}

	var cache receipts.Cache = receipts.NewMemoryCache()
	if c.RedisClient != nil {
		cache = receipts.NewRedisCache(c.RedisClient, receiptCachePrefix)
	}
	c.ReceiptRepo = receipts.NewCachedRepository(repos.Receipts, cache, cfg.WebhookReceiptTTL, logger)

	// Create event publisher
	publisher, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, logger)
	if err != nil {
		// Fall back to noop publisher in development
		if !cfg.IsDevelopment() {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		logger.Warn("RabbitMQ not available, using noop publisher")
		c.EventPublisher = eventbus.NewNoopPublisher(logger)
	} else {
		c.EventPublisher = publisher
	}

	c.Catalog, err = catalog.Load(cfg.PlanCatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load plan catalog: %w", err)
	}
	c.PriceTable, err = catalog.LoadPriceTable(cfg.PriceTablePath)
	if err != nil {
		return fmt.Errorf("failed to load price table: %w", err)
	}
	if _, err := c.Catalog.Plan(cfg.DefaultPlanID); err != nil {
		return fmt.Errorf("default plan: %w", err)
	}

	if cfg.StripeWebhookSecret == "" {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set, webhook ingress will reject every delivery")
	}
	c.Verifier = stripe.NewVerifier(cfg.StripeWebhookSecret, cfg.StripeWebhookTolerance)

	// A nil *stripe.Client must not reach the processor as a non-nil interface.
	var client billingApp.ProcessorClient
	if cfg.StripeAPIKey != "" {
		c.StripeClient = stripe.NewClient(stripe.ClientConfig{
			APIKey:  cfg.StripeAPIKey,
			BaseURL: cfg.StripeAPIBaseURL,
			Timeout: cfg.StripeRequestTimeout,
		}, logger)
		client = c.StripeClient
	} else {
		logger.Warn("STRIPE_API_KEY not set, recurring checkouts cannot be reconciled")
	}

	c.Resolver = resolution.NewDefaultResolver(c.UserRepo, c.SubscriptionRepo, c.PriceTable, logger)

	c.Processor = billingApp.NewProcessor(billingApp.ProcessorDeps{
		Subscriptions:  c.SubscriptionRepo,
		Entitlements:   c.EntitlementRepo,
		History:        c.HistoryRepo,
		Receipts:       c.ReceiptRepo,
		Outbox:         c.OutboxRepo,
		UnitOfWork:     c.UnitOfWork,
		Resolver:       c.Resolver,
		Catalog:        c.Catalog,
		Prices:         c.PriceTable,
		Client:         client,
		DisplayYears:   cfg.PremiumDisplayYears,
		InvoiceTimeout: cfg.StripeRequestTimeout,
	}, logger)
	c.QueryService = billingApp.NewQueryService(c.SubscriptionRepo, c.EntitlementRepo, c.UsageRepo, c.Catalog, cfg.DefaultPlanID, logger)
	c.UsageRecorder = billingApp.NewUsageRecorder(c.UsageRepo, logger)
	c.BillingService = billingApp.NewService(c.EntitlementRepo, c.SubscriptionRepo, c.HistoryRepo, c.UserRepo, c.OutboxRepo, c.UnitOfWork, logger)

	// Create outbox processor
	processorConfig := outbox.DefaultProcessorConfig()
	processorConfig.PollInterval = cfg.OutboxPollInterval
	processorConfig.BatchSize = cfg.OutboxBatchSize
	processorConfig.MaxRetries = cfg.OutboxMaxRetries
	c.OutboxProcessor = outbox.NewProcessor(c.OutboxRepo, c.EventPublisher, processorConfig, logger)

	c.Metrics = observability.NewInMemoryMetrics()
	c.Health = observability.NewHealthRegistry()
	c.Health.Register("database", observability.PingChecker("database", c.DBConn.Ping, observability.HealthStatusUnhealthy))
	if c.RedisClient != nil {
		c.Health.Register("redis", observability.PingChecker("redis", func(ctx context.Context) error {
			return c.RedisClient.Ping(ctx).Err()
		}, observability.HealthStatusDegraded))
	}
	c.Health.Register("outbox", observability.LagChecker(func() time.Duration {
		return time.Duration(c.OutboxProcessor.GetStats().LagSeconds * float64(time.Second))
	}, maxOutboxLag))

	return nil
}

// Ready fails only when a component is unhealthy. A degraded receipt cache
// or a lagging outbox still serves traffic.
func (c *Container) Ready(ctx context.Context) error {
	if c.DBConn == nil || c.Health == nil {
		return errors.New("database not connected")
	}
	health := c.Health.Check(ctx)
	if health.Status != observability.HealthStatusUnhealthy {
		return nil
	}
	for name, result := range health.Checks {
		if result.Status == observability.HealthStatusUnhealthy {
			return fmt.Errorf("%s: %s", name, result.Message)
		}
	}
	return errors.New("unhealthy")
}

// Close cleans up all resources.
func (c *Container) Close() {
	if c.Processor != nil {
		c.Processor.Wait()
	}

	if c.OutboxProcessor != nil && c.OutboxProcessor.IsRunning() {
		c.OutboxProcessor.Stop()
	}

	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("error closing event publisher", "error", err)
		}
	}

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("error closing Redis connection", "error", err)
		} else {
			c.Logger.Info("Redis connection closed")
		}
	}

	if c.DBConn != nil {
		if err := c.DBConn.Close(); err != nil {
			c.Logger.Warn("error closing database connection", "error", err, "driver", c.DBDriver)
		} else {
			c.Logger.Info("database connection closed", "driver", c.DBDriver)
		}
	}
}
