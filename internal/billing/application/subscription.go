package application

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/saffron/internal/billing/domain"
	"github.com/felixgeelhaar/saffron/internal/billing/infrastructure/stripe"
	"github.com/felixgeelhaar/saffron/internal/billing/resolution"
	sharedApplication "github.com/felixgeelhaar/saffron/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/saffron/internal/shared/domain"
)

func (p *Processor) handleSubscriptionChange(ctx context.Context, evt *stripe.Event) (*Result, error) {
	snapshot, err := evt.Subscription()
	if err != nil {
		return nil, err
	}

	res, err := p.resolve(ctx, subscriptionSubject(evt, snapshot))
	if err != nil {
		return nil, err
	}
	if res == nil {
		return unresolved(), nil
	}
	return p.applySnapshot(ctx, evt, res, snapshot)
}

// applySnapshot overwrites the user's subscription row with the snapshot.
// Fields take the last observed value; there is no ordering guard.
func (p *Processor) applySnapshot(ctx context.Context, evt *stripe.Event, res *resolution.Resolution, snapshot *stripe.Subscription) (*Result, error) {
	planID, err := p.planFor(snapshot)
	if err != nil {
		p.logger.Warn("subscription plan unknown",
			"event_id", evt.ID,
			"subscription_id", snapshot.ID,
			"price_id", snapshot.PriceID(),
		)
		return ignored("unknown plan"), nil
	}

	now := p.now().UTC()
	sub, err := subscriptionFromSnapshot(res, snapshot, planID, now)
	if err != nil {
		return nil, err
	}

	err = sharedApplication.WithUnitOfWork(ctx, p.uow, func(txCtx context.Context) error {
		existing, err := p.subscriptions.FindByUserID(txCtx, res.UserID)
		if err != nil && !isNotFound(err) {
			return err
		}
		if existing != nil {
			sub.CreatedAt = existing.CreatedAt
		}
		if err := p.subscriptions.Upsert(txCtx, sub); err != nil {
			return err
		}
		events := []sharedDomain.DomainEvent{domain.NewSubscriptionChanged(sub, now)}
		return p.stage(txCtx, events, res.UserID, evt.ID)
	})
	if err != nil {
		return nil, err
	}
	return applied(res), nil
}

func (p *Processor) planFor(snapshot *stripe.Subscription) (string, error) {
	if priceID := snapshot.PriceID(); priceID != "" {
		if plan, err := p.catalog.PlanForPrice(priceID); err == nil {
			return plan.ID, nil
		}
	}
	if id := snapshot.Metadata[stripe.MetadataPlanID]; id != "" {
		if plan, err := p.catalog.Plan(id); err == nil {
			return plan.ID, nil
		}
	}
	return "", domain.ErrPlanNotFound
}

func subscriptionFromSnapshot(res *resolution.Resolution, snapshot *stripe.Subscription, planID string, now time.Time) (*domain.Subscription, error) {
	status, err := domain.ParseSubscriptionStatus(snapshot.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stripe.ErrMalformedEvent, err)
	}

	customerID := snapshot.Customer.String()
	if customerID == "" {
		customerID = res.CustomerID
	}

	sub := &domain.Subscription{
		UserID:                 res.UserID,
		PlanID:                 planID,
		Status:                 status,
		CurrentPeriodStart:     time.Unix(snapshot.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:       time.Unix(snapshot.CurrentPeriodEnd, 0).UTC(),
		TrialStart:             stripe.UnixTime(snapshot.TrialStart),
		TrialEnd:               stripe.UnixTime(snapshot.TrialEnd),
		CancelAtPeriodEnd:      snapshot.CancelAtPeriodEnd,
		CanceledAt:             stripe.UnixTime(snapshot.CanceledAt),
		EndedAt:                stripe.UnixTime(snapshot.EndedAt),
		ExternalSubscriptionID: snapshot.ID,
		ExternalCustomerID:     customerID,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if sub.Status == domain.StatusCanceled && sub.EndedAt == nil {
		sub.EndedAt = &now
	}
	if err := sub.Validate(); err != nil {
		return nil, fmt.Errorf("%w: subscription %s: %v", stripe.ErrMalformedEvent, snapshot.ID, err)
	}
	return sub, nil
}

func (p *Processor) handleSubscriptionDeleted(ctx context.Context, evt *stripe.Event) (*Result, error) {
	snapshot, err := evt.Subscription()
	if err != nil {
		return nil, err
	}

	res := &resolution.Resolution{Strategy: domain.StrategyCustomerReference}
	existing, err := p.subscriptions.FindByExternalID(ctx, snapshot.ID)
	switch {
	case err == nil:
		res.UserID = existing.UserID
	case !isNotFound(err):
		return nil, err
	default:
		res, err = p.resolve(ctx, subscriptionSubject(evt, snapshot))
		if err != nil {
			return nil, err
		}
		if res == nil {
			return unresolved(), nil
		}
		existing, err = p.subscriptions.FindByUserID(ctx, res.UserID)
		if isNotFound(err) {
			return ignored("no subscription row"), nil
		}
		if err != nil {
			return nil, err
		}
		// Never end lifetime access, or a newer subscription, on behalf of another.
		if !existing.IsRecurring() || existing.ExternalSubscriptionID != snapshot.ID {
			return ignored("deleted subscription is not the current one"), nil
		}
	}

	now := p.now().UTC()
	err = sharedApplication.WithUnitOfWork(ctx, p.uow, func(txCtx context.Context) error {
		existing.Cancel(now)
		ended := now
		existing.EndedAt = &ended
		if err := p.subscriptions.Upsert(txCtx, existing); err != nil {
			return err
		}
		events := []sharedDomain.DomainEvent{domain.NewSubscriptionChanged(existing, now)}
		return p.stage(txCtx, events, existing.UserID, evt.ID)
	})
	if err != nil {
		return nil, err
	}
	return applied(res), nil
}

func subscriptionSubject(evt *stripe.Event, snapshot *stripe.Subscription) resolution.Subject {
	return resolution.Subject{
		EventID:                evt.ID,
		EventType:              evt.Type,
		UserID:                 snapshot.Metadata[stripe.MetadataUserID],
		CustomerID:             snapshot.Customer.String(),
		ExternalSubscriptionID: snapshot.ID,
	}
}
