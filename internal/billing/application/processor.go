package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/saffron/internal/billing/domain"
	"github.com/felixgeelhaar/saffron/internal/billing/infrastructure/stripe"
	"github.com/felixgeelhaar/saffron/internal/billing/resolution"
	sharedApplication "github.com/felixgeelhaar/saffron/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/saffron/internal/shared/domain"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/outbox"
)

// DefaultDisplayYears is how many calendar years the premium row written
// for one-time recipe access purchases runs.
const DefaultDisplayYears = 100

// DefaultInvoiceTimeout bounds one bookkeeping invoice call.
const DefaultInvoiceTimeout = 10 * time.Second

// ProcessorClient is the part of the processor REST API the event processor calls.
type ProcessorClient interface {
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	CreateInvoice(ctx context.Context, params stripe.InvoiceParams) (string, error)
}

// ProcessorDeps wires a Processor. Receipts, Outbox and Client are optional.
type ProcessorDeps struct {
	Subscriptions domain.SubscriptionRepository
	Entitlements  domain.EntitlementRepository
	History       domain.HistoryRepository
	Receipts      domain.ReceiptRepository
	Outbox        outbox.Repository
	UnitOfWork    sharedApplication.UnitOfWork
	Resolver      *resolution.Resolver
	Catalog       domain.PlanCatalog
	Prices        domain.PriceTable
	Client        ProcessorClient

	// DisplayYears defaults to DefaultDisplayYears.
	DisplayYears int
	// InvoiceTimeout defaults to DefaultInvoiceTimeout.
	InvoiceTimeout time.Duration
}

// Result describes what processing one event did.
type Result struct {
	EventID   string
	EventType string
	Outcome   domain.Outcome
	UserID    uuid.UUID
	Strategy  domain.Strategy
	Duplicate bool
	Reason    string
}

// Processor reconciles verified processor events into subscription,
// entitlement and history state. Every write is a keyed upsert, so a
// redelivered event converges on the same rows.
type Processor struct {
	subscriptions domain.SubscriptionRepository
	entitlements  domain.EntitlementRepository
	history       domain.HistoryRepository
	receipts      domain.ReceiptRepository
	outboxRepo    outbox.Repository
	uow           sharedApplication.UnitOfWork
	resolver      *resolution.Resolver
	catalog       domain.PlanCatalog
	prices        domain.PriceTable
	client        ProcessorClient
	displayYears  int
	logger        *slog.Logger
	now           func() time.Time

	invoiceTimeout time.Duration
	invoices       sync.WaitGroup
}

// NewProcessor creates an event processor.
func NewProcessor(deps ProcessorDeps, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.DisplayYears <= 0 {
		deps.DisplayYears = DefaultDisplayYears
	}
	if deps.InvoiceTimeout <= 0 {
		deps.InvoiceTimeout = DefaultInvoiceTimeout
	}
	return &Processor{
		subscriptions: deps.Subscriptions,
		entitlements:  deps.Entitlements,
		history:       deps.History,
		receipts:      deps.Receipts,
		outboxRepo:    deps.Outbox,
		uow:           deps.UnitOfWork,
		resolver:      deps.Resolver,
		catalog:       deps.Catalog,
		prices:        deps.Prices,
		client:        deps.Client,
		displayYears:  deps.DisplayYears,
		logger:        logger,
		now:           time.Now,

		invoiceTimeout: deps.InvoiceTimeout,
	}
}

// Wait blocks until bookkeeping invoices started by Process have finished.
func (p *Processor) Wait() {
	p.invoices.Wait()
}

// Process applies evt. Unresolvable and unhandled events succeed without
// mutating state; returned errors are storage or upstream failures, or
// stripe.ErrMalformedEvent for objects that cannot be applied.
func (p *Processor) Process(ctx context.Context, evt *stripe.Event) (*Result, error) {
	if prior := p.priorReceipt(ctx, evt.ID); prior != nil {
		p.logger.Debug("webhook already processed",
			"event_id", evt.ID,
			"event_type", evt.Type,
			"outcome", prior.Outcome,
		)
		return &Result{EventID: evt.ID, EventType: evt.Type, Outcome: prior.Outcome, Duplicate: true}, nil
	}

	result, err := p.dispatch(ctx, evt)
	if err != nil {
		return nil, err
	}
	result.EventID = evt.ID
	result.EventType = evt.Type

	p.recordReceipt(ctx, evt, result.Outcome)
	p.logger.Info("webhook processed",
		"event_id", evt.ID,
		"event_type", evt.Type,
		"outcome", result.Outcome,
		"user_id", result.UserID,
		"strategy", result.Strategy,
		"reason", result.Reason,
	)
	return result, nil
}

func (p *Processor) dispatch(ctx context.Context, evt *stripe.Event) (*Result, error) {
	switch evt.Type {
	case stripe.EventCheckoutSessionCompleted:
		return p.handleCheckout(ctx, evt)
	case stripe.EventSubscriptionCreated, stripe.EventSubscriptionUpdated:
		return p.handleSubscriptionChange(ctx, evt)
	case stripe.EventSubscriptionDeleted:
		return p.handleSubscriptionDeleted(ctx, evt)
	case stripe.EventInvoicePaymentSucceeded:
		return p.handleInvoice(ctx, evt, domain.HistoryPaymentSucceeded)
	case stripe.EventInvoicePaymentFailed:
		return p.handleInvoice(ctx, evt, domain.HistoryPaymentFailed)
	case stripe.EventChargeRefunded:
		return p.handleRefund(ctx, evt)
	default:
		return ignored("unhandled event type"), nil
	}
}

// priorReceipt returns a receipt that makes reprocessing unnecessary.
// Unresolved events are retried since the user may exist by now.
func (p *Processor) priorReceipt(ctx context.Context, eventID string) *domain.WebhookReceipt {
	if p.receipts == nil {
		return nil
	}
	receipt, err := p.receipts.Find(ctx, eventID)
	if err != nil {
		if !errors.Is(err, domain.ErrReceiptNotFound) {
			p.logger.Warn("receipt lookup failed", "event_id", eventID, "error", err)
		}
		return nil
	}
	if receipt.Outcome == domain.OutcomeUnresolved {
		return nil
	}
	return receipt
}

func (p *Processor) recordReceipt(ctx context.Context, evt *stripe.Event, outcome domain.Outcome) {
	if p.receipts == nil {
		return
	}
	err := p.receipts.Record(ctx, domain.WebhookReceipt{
		EventID:     evt.ID,
		EventType:   evt.Type,
		Outcome:     outcome,
		ProcessedAt: p.now().UTC(),
	})
	if err != nil {
		p.logger.Warn("receipt write failed", "event_id", evt.ID, "error", err)
	}
}

// resolve returns nil without error when no strategy matched.
func (p *Processor) resolve(ctx context.Context, subject resolution.Subject) (*resolution.Resolution, error) {
	res, err := p.resolver.Resolve(ctx, subject)
	if errors.Is(err, resolution.ErrUnresolved) {
		p.logger.Warn("webhook user unresolved",
			"event_id", subject.EventID,
			"event_type", subject.EventType,
			"customer_id", subject.CustomerID,
		)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	return res, nil
}

// stage writes events to the outbox inside the caller's unit of work.
func (p *Processor) stage(ctx context.Context, events []sharedDomain.DomainEvent, userID uuid.UUID, causationID string) error {
	if p.outboxRepo == nil || len(events) == 0 {
		return nil
	}
	sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(userID, causationID))
	msgs, err := outbox.NewMessages(events)
	if err != nil {
		return err
	}
	return p.outboxRepo.SaveBatch(ctx, msgs)
}

func ignored(reason string) *Result {
	return &Result{Outcome: domain.OutcomeIgnored, Reason: reason}
}

func unresolved() *Result {
	return &Result{Outcome: domain.OutcomeUnresolved, Reason: "no resolution strategy matched"}
}

func applied(res *resolution.Resolution) *Result {
	return &Result{Outcome: domain.OutcomeApplied, UserID: res.UserID, Strategy: res.Strategy}
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrSubscriptionNotFound)
}
