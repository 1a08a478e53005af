package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/saffron/internal/billing/domain"
	"github.com/felixgeelhaar/saffron/internal/billing/infrastructure/stripe"
	"github.com/felixgeelhaar/saffron/internal/billing/resolution"
	sharedApplication "github.com/felixgeelhaar/saffron/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/saffron/internal/shared/domain"
)

func (p *Processor) handleCheckout(ctx context.Context, evt *stripe.Event) (*Result, error) {
	session, err := evt.CheckoutSession()
	if err != nil {
		return nil, err
	}
	if !session.IsPaid() {
		return ignored("checkout not paid"), nil
	}
	if session.IsRecurring() {
		return p.handleRecurringCheckout(ctx, evt, session)
	}

	typeValue := session.Metadata[stripe.MetadataType]
	subject := resolution.Subject{
		EventID:         evt.ID,
		EventType:       evt.Type,
		UserID:          session.UserID(),
		Email:           session.Email(),
		CustomerID:      session.Customer.String(),
		Paid:            domain.NewMoney(session.AmountTotal, session.Currency),
		Checkout:        true,
		HasTypeMetadata: typeValue != "",
	}

	res, err := p.resolve(ctx, subject)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return unresolved(), nil
	}

	purchase, ok := p.purchaseType(typeValue, res, subject.Paid)
	if !ok {
		p.logger.Warn("checkout purchase type unknown",
			"event_id", evt.ID,
			"type", typeValue,
			"amount", subject.Paid.String(),
		)
		return ignored("unknown purchase type"), nil
	}

	if err := p.grantOneTime(ctx, evt, session, res, purchase, subject.Paid); err != nil {
		return nil, err
	}

	p.fileInvoice(ctx, evt, session, res.UserID, purchase)
	return applied(res), nil
}

// purchaseType takes the metadata type when present, otherwise the matched price point.
func (p *Processor) purchaseType(typeValue string, res *resolution.Resolution, paid domain.Money) (domain.PurchaseType, bool) {
	if typeValue != "" {
		purchase, err := domain.ParsePurchaseType(typeValue)
		return purchase, err == nil
	}
	if res.PricePoint != nil {
		return res.PricePoint.PurchaseType, true
	}
	point, ok := p.prices.Match(paid)
	return point.PurchaseType, ok
}

func (p *Processor) grantOneTime(ctx context.Context, evt *stripe.Event, session *stripe.CheckoutSession, res *resolution.Resolution, purchase domain.PurchaseType, paid domain.Money) error {
	now := p.now()
	feature := purchase.Feature()

	entitlement, err := domain.NewEntitlement(res.UserID, feature, now, nil, res.Provenance(evt.ID, paid))
	if err != nil {
		return err
	}

	return sharedApplication.WithUnitOfWork(ctx, p.uow, func(txCtx context.Context) error {
		if err := p.entitlements.Upsert(txCtx, entitlement); err != nil {
			return err
		}
		events := []sharedDomain.DomainEvent{domain.NewEntitlementGranted(entitlement)}

		if feature == domain.FeatureRecipeAccess {
			sub, err := p.upsertDisplaySubscription(txCtx, res.UserID, session.Customer.String(), now)
			if err != nil {
				return err
			}
			if sub != nil {
				events = append(events, domain.NewSubscriptionChanged(sub, now))
			}
		}

		entry := domain.NewHistoryEntry(res.UserID, domain.HistoryPaymentSucceeded, paid, session.ID, evt.ID, evt.CreatedAt())
		if _, err := p.history.Append(txCtx, entry); err != nil {
			return err
		}
		return p.stage(txCtx, events, res.UserID, evt.ID)
	})
}

// upsertDisplaySubscription records lifetime premium access as a long
// running subscription row. A live recurring subscription is left alone.
func (p *Processor) upsertDisplaySubscription(ctx context.Context, userID uuid.UUID, customerID string, now time.Time) (*domain.Subscription, error) {
	existing, err := p.subscriptions.FindByUserID(ctx, userID)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if existing.IsActive() && existing.IsRecurring() {
		p.logger.Debug("premium display row skipped: recurring subscription active",
			"user_id", userID,
			"plan_id", existing.PlanID,
		)
		return nil, nil
	}

	sub := domain.NewDisplaySubscription(userID, customerID, now, p.displayYears)
	if existing != nil {
		sub.CreatedAt = existing.CreatedAt
	}
	if err := p.subscriptions.Upsert(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// fileInvoice files a bookkeeping invoice for a committed one-time purchase
// in the background. The call outlives the webhook request and has its own
// deadline; failures are logged and never affect the grant.
func (p *Processor) fileInvoice(ctx context.Context, evt *stripe.Event, session *stripe.CheckoutSession, userID uuid.UUID, purchase domain.PurchaseType) {
	if p.client == nil || session.Customer.String() == "" {
		return
	}
	detached := context.WithoutCancel(ctx)
	p.invoices.Go(func() {
		ctx, cancel := context.WithTimeout(detached, p.invoiceTimeout)
		defer cancel()
		p.createInvoice(ctx, evt, session, userID, purchase)
	})
}

func (p *Processor) createInvoice(ctx context.Context, evt *stripe.Event, session *stripe.CheckoutSession, userID uuid.UUID, purchase domain.PurchaseType) {
	invoiceID, err := p.client.CreateInvoice(ctx, stripe.InvoiceParams{
		Customer:       session.Customer.String(),
		IdempotencyKey: "invoice-" + evt.ID,
		Description:    fmt.Sprintf("One-time purchase: %s", purchase),
		Metadata: map[string]string{
			"user_id":         userID.String(),
			"purchase_type":   string(purchase),
			"source_event_id": evt.ID,
			"checkout_id":     session.ID,
		},
	})
	if err != nil {
		p.logger.Warn("bookkeeping invoice failed",
			"event_id", evt.ID,
			"user_id", userID,
			"error", err,
		)
		return
	}
	p.logger.Debug("bookkeeping invoice created", "event_id", evt.ID, "invoice_id", invoiceID)
}

func (p *Processor) handleRecurringCheckout(ctx context.Context, evt *stripe.Event, session *stripe.CheckoutSession) (*Result, error) {
	if session.Subscription == "" {
		return ignored("recurring checkout without subscription"), nil
	}

	// The checkout mode already identifies the purchase, so email matching applies.
	res, err := p.resolve(ctx, resolution.Subject{
		EventID:         evt.ID,
		EventType:       evt.Type,
		UserID:          session.UserID(),
		Email:           session.Email(),
		CustomerID:      session.Customer.String(),
		Paid:            domain.NewMoney(session.AmountTotal, session.Currency),
		Checkout:        true,
		HasTypeMetadata: true,
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return unresolved(), nil
	}

	if p.client == nil {
		return nil, fmt.Errorf("fetch subscription %s: processor client not configured", session.Subscription)
	}
	snapshot, err := p.client.GetSubscription(ctx, session.Subscription.String())
	if err != nil {
		return nil, fmt.Errorf("fetch subscription snapshot: %w", err)
	}

	return p.applySnapshot(ctx, evt, res, snapshot)
}
