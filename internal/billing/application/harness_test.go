package application

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/saffron/internal/billing/domain"
	"github.com/felixgeelhaar/saffron/internal/billing/infrastructure/catalog"
	"github.com/felixgeelhaar/saffron/internal/billing/infrastructure/persistence"
	"github.com/felixgeelhaar/saffron/internal/billing/infrastructure/stripe"
	"github.com/felixgeelhaar/saffron/internal/billing/resolution"
	identity "github.com/felixgeelhaar/saffron/internal/identity/domain"
	identityPersistence "github.com/felixgeelhaar/saffron/internal/identity/infrastructure/persistence"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/database/sqlite"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/outbox"
	sharedPersistence "github.com/felixgeelhaar/saffron/internal/shared/infrastructure/persistence"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// fakeClient stands in for the processor REST API. Invoice creates honor
// idempotency keys the way the real API does.
type fakeClient struct {
	mu            sync.Mutex
	subscriptions map[string]*stripe.Subscription
	invoices      []stripe.InvoiceParams
	invoiceKeys   map[string]string
	invoiceCalls  int
	invoiceErr    error
	invoiceGate   chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		subscriptions: make(map[string]*stripe.Subscription),
		invoiceKeys:   make(map[string]string),
	}
}

func (c *fakeClient) GetSubscription(_ context.Context, id string) (*stripe.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subscriptions[id]
	if !ok {
		return nil, &stripe.APIError{StatusCode: 404, Type: "invalid_request_error", Message: "no such subscription"}
	}
	return sub, nil
}

func (c *fakeClient) CreateInvoice(ctx context.Context, params stripe.InvoiceParams) (string, error) {
	c.mu.Lock()
	c.invoiceCalls++
	c.mu.Unlock()
	if c.invoiceGate != nil {
		select {
		case <-c.invoiceGate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.invoiceErr != nil {
		return "", c.invoiceErr
	}
	if id, ok := c.invoiceKeys[params.IdempotencyKey]; ok && params.IdempotencyKey != "" {
		return id, nil
	}
	c.invoices = append(c.invoices, params)
	id := fmt.Sprintf("in_%d", len(c.invoices))
	if params.IdempotencyKey != "" {
		c.invoiceKeys[params.IdempotencyKey] = id
	}
	return id, nil
}

func (c *fakeClient) invoiceCallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invoiceCalls
}

func (c *fakeClient) invoiceCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.invoices)
}

type harness struct {
	db            *sql.DB
	users         *identityPersistence.SQLiteUserRepository
	subscriptions *persistence.SQLiteSubscriptionRepository
	entitlements  *persistence.SQLiteEntitlementRepository
	usage         *persistence.SQLiteUsageRepository
	history       *persistence.SQLiteHistoryRepository
	receipts      *persistence.SQLiteReceiptRepository
	outbox        *outbox.SQLiteRepository
	client        *fakeClient
	deps          ProcessorDeps

	processor *Processor
	query     *QueryService
	recorder  *UsageRecorder
	service   *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessAt(t, sqlite.MemoryPath)
}

// newFileHarness backs the harness with an on-disk database.
func newFileHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessAt(t, filepath.Join(t.TempDir(), "billing.db"))
}

func newHarnessAt(t *testing.T, path string) *harness {
	t.Helper()
	ctx := context.Background()

	conn, err := sqlite.NewConnection(ctx, database.Config{SQLitePath: path})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrations.Run(ctx, conn))
	db := conn.(interface{ DB() *sql.DB }).DB()

	uow, err := sharedPersistence.NewUnitOfWork(conn)
	require.NoError(t, err)

	plans, err := catalog.Load("")
	require.NoError(t, err)
	prices := catalog.DefaultPriceTable()

	h := &harness{
		db:            db,
		users:         identityPersistence.NewSQLiteUserRepository(db),
		subscriptions: persistence.NewSQLiteSubscriptionRepository(db),
		entitlements:  persistence.NewSQLiteEntitlementRepository(db),
		usage:         persistence.NewSQLiteUsageRepository(db),
		history:       persistence.NewSQLiteHistoryRepository(db),
		receipts:      persistence.NewSQLiteReceiptRepository(db),
		outbox:        outbox.NewSQLiteRepository(db),
		client:        newFakeClient(),
	}

	h.deps = ProcessorDeps{
		Subscriptions: h.subscriptions,
		Entitlements:  h.entitlements,
		History:       h.history,
		Receipts:      h.receipts,
		Outbox:        h.outbox,
		UnitOfWork:    uow,
		Resolver:      resolution.NewDefaultResolver(h.users, h.subscriptions, prices, nil),
		Catalog:       plans,
		Prices:        prices,
		Client:        h.client,
	}
	h.processor = NewProcessor(h.deps, nil)
	h.processor.now = func() time.Time { return testNow }

	h.query = NewQueryService(h.subscriptions, h.entitlements, h.usage, plans, "free", nil)
	h.query.now = func() time.Time { return testNow }

	h.recorder = NewUsageRecorder(h.usage, nil)
	h.recorder.now = func() time.Time { return testNow }

	h.service = NewService(h.entitlements, h.subscriptions, h.history, h.users, h.outbox, uow, nil)
	h.service.now = func() time.Time { return testNow }

	return h
}

func (h *harness) addUser(t *testing.T, address string) uuid.UUID {
	t.Helper()
	email, err := identity.NewEmail(address)
	require.NoError(t, err)
	name, err := identity.NewName("Test Cook")
	require.NoError(t, err)
	user := identity.NewUser(email, name)
	require.NoError(t, h.users.Save(context.Background(), user))
	return user.ID()
}

func (h *harness) process(t *testing.T, evt *stripe.Event) *Result {
	t.Helper()
	result, err := h.processor.Process(context.Background(), evt)
	require.NoError(t, err)
	h.processor.Wait()
	return result
}

func (h *harness) pendingRoutingKeys(t *testing.T) []string {
	t.Helper()
	msgs, err := h.outbox.GetUnpublished(context.Background(), 100)
	require.NoError(t, err)
	keys := make([]string, 0, len(msgs))
	for _, m := range msgs {
		keys = append(keys, m.RoutingKey)
	}
	return keys
}

func buildEvent(t *testing.T, id, eventType string, object map[string]any) *stripe.Event {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":       id,
		"type":     eventType,
		"created":  testNow.Unix(),
		"livemode": false,
		"data":     map[string]any{"object": object},
	})
	require.NoError(t, err)
	evt, err := stripe.ParseEvent(payload)
	require.NoError(t, err)
	return evt
}

type checkoutOpts struct {
	userID   string
	email    string
	kind     string
	amount   int64
	customer string
	status   string
}

func checkoutEvent(t *testing.T, id string, o checkoutOpts) *stripe.Event {
	t.Helper()
	metadata := map[string]string{}
	if o.userID != "" {
		metadata[stripe.MetadataUserID] = o.userID
	}
	if o.kind != "" {
		metadata[stripe.MetadataType] = o.kind
	}
	if o.status == "" {
		o.status = stripe.PaymentStatusPaid
	}
	if o.customer == "" {
		o.customer = "cus_checkout"
	}
	return buildEvent(t, id, stripe.EventCheckoutSessionCompleted, map[string]any{
		"id":               "cs_" + id,
		"mode":             "payment",
		"payment_status":   o.status,
		"amount_total":     o.amount,
		"currency":         "usd",
		"customer":         o.customer,
		"customer_details": map[string]any{"email": o.email},
		"metadata":         metadata,
	})
}

func subscriptionObject(id, customer, status, priceID string, metadata map[string]string) map[string]any {
	return map[string]any{
		"id":                   id,
		"customer":             customer,
		"status":               status,
		"current_period_start": testNow.Unix(),
		"current_period_end":   testNow.AddDate(0, 1, 0).Unix(),
		"cancel_at_period_end": false,
		"metadata":             metadata,
		"items": map[string]any{
			"data": []any{map[string]any{"price": map[string]any{"id": priceID}}},
		},
	}
}

func snapshot(t *testing.T, object map[string]any) *stripe.Subscription {
	t.Helper()
	data, err := json.Marshal(object)
	require.NoError(t, err)
	var sub stripe.Subscription
	require.NoError(t, json.Unmarshal(data, &sub))
	return &sub
}

func historyKinds(t *testing.T, h *harness, userID uuid.UUID) []domain.HistoryKind {
	t.Helper()
	entries, err := h.history.ListByUser(context.Background(), userID, 0)
	require.NoError(t, err)
	kinds := make([]domain.HistoryKind, 0, len(entries))
	for _, e := range entries {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}
