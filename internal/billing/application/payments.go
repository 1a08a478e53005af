package application

import (
	"context"

	"github.com/felixgeelhaar/saffron/internal/billing/domain"
	"github.com/felixgeelhaar/saffron/internal/billing/infrastructure/stripe"
	"github.com/felixgeelhaar/saffron/internal/billing/resolution"
	sharedApplication "github.com/felixgeelhaar/saffron/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/saffron/internal/shared/domain"
)

func (p *Processor) handleInvoice(ctx context.Context, evt *stripe.Event, kind domain.HistoryKind) (*Result, error) {
	invoice, err := evt.Invoice()
	if err != nil {
		return nil, err
	}

	res, err := p.resolve(ctx, resolution.Subject{
		EventID:                evt.ID,
		EventType:              evt.Type,
		UserID:                 invoice.Metadata[stripe.MetadataUserID],
		Email:                  invoice.CustomerEmail,
		CustomerID:             invoice.Customer.String(),
		ExternalSubscriptionID: invoice.Subscription.String(),
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return unresolved(), nil
	}

	amount := invoice.AmountPaid
	if kind == domain.HistoryPaymentFailed {
		amount = invoice.AmountDue
	}
	entry := domain.NewHistoryEntry(res.UserID, kind, domain.NewMoney(amount, invoice.Currency), invoice.ID, evt.ID, evt.CreatedAt())

	written, err := p.history.Append(ctx, entry)
	if err != nil {
		return nil, err
	}
	if !written {
		p.logger.Debug("history entry already recorded", "event_id", evt.ID)
	}
	return applied(res), nil
}

// handleRefund removes one-time grants. Lifetime premium display rows end
// with them; recurring subscriptions are left to their own events.
func (p *Processor) handleRefund(ctx context.Context, evt *stripe.Event) (*Result, error) {
	charge, err := evt.Charge()
	if err != nil {
		return nil, err
	}

	res, err := p.resolve(ctx, resolution.Subject{
		EventID:    evt.ID,
		EventType:  evt.Type,
		UserID:     charge.Metadata[stripe.MetadataUserID],
		Email:      charge.Email(),
		CustomerID: charge.Customer.String(),
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return unresolved(), nil
	}

	refunded := charge.AmountRefunded
	if refunded == 0 {
		refunded = charge.Amount
	}
	now := p.now().UTC()

	err = sharedApplication.WithUnitOfWork(ctx, p.uow, func(txCtx context.Context) error {
		removed, err := p.entitlements.Delete(txCtx, res.UserID, domain.OneTimeFeatures...)
		if err != nil {
			return err
		}

		var events []sharedDomain.DomainEvent
		for _, feature := range removed {
			events = append(events, domain.NewEntitlementRevoked(res.UserID, feature, "refund", now))
		}

		sub, err := p.subscriptions.FindByUserID(txCtx, res.UserID)
		if err != nil && !isNotFound(err) {
			return err
		}
		if sub != nil && !sub.IsRecurring() && sub.PlanID == domain.PlanPremium && sub.Status != domain.StatusCanceled {
			sub.Cancel(now)
			if err := p.subscriptions.Upsert(txCtx, sub); err != nil {
				return err
			}
			events = append(events, domain.NewSubscriptionChanged(sub, now))
		}

		entry := domain.NewHistoryEntry(res.UserID, domain.HistoryRefund, domain.NewMoney(refunded, charge.Currency), charge.ID, evt.ID, evt.CreatedAt())
		if _, err := p.history.Append(txCtx, entry); err != nil {
			return err
		}
		return p.stage(txCtx, events, res.UserID, evt.ID)
	})
	if err != nil {
		return nil, err
	}
	return applied(res), nil
}
