// Package resolution maps processor events onto internal users through an
// ordered chain of strategies.
package resolution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/saffron/internal/billing/domain"
	identity "github.com/felixgeelhaar/saffron/internal/identity/domain"
)

var (
	// ErrUnresolved is returned when no strategy identified a user.
	ErrUnresolved = errors.New("user could not be resolved")

	// ErrNotApplicable tells the chain to move on to the next strategy.
	ErrNotApplicable = errors.New("strategy not applicable")
)

// Subject is the identity-relevant view of one processor event.
type Subject struct {
	EventID   string
	EventType string

	// UserID is the raw user reference carried in metadata.
	UserID string
	Email  string

	CustomerID             string
	ExternalSubscriptionID string

	Paid domain.Money

	// Checkout marks checkout events; HasTypeMetadata reports whether the
	// purchase type was present in metadata.
	Checkout        bool
	HasTypeMetadata bool
}

// Resolution is a successful match.
type Resolution struct {
	UserID     uuid.UUID
	Strategy   domain.Strategy
	Email      string
	CustomerID string

	// PricePoint and PriceTableVersion are set by the amount strategy.
	PricePoint        *domain.PricePoint
	PriceTableVersion string
}

// Provenance records the match on the entitlement it produced.
func (r *Resolution) Provenance(eventID string, paid domain.Money) domain.Provenance {
	switch r.Strategy {
	case domain.StrategyExplicit:
		return domain.ExplicitGrant{EventID: eventID, Paid: paid}
	case domain.StrategyEmailFallback:
		return domain.EmailFallbackGrant{EventID: eventID, Paid: paid, Email: r.Email}
	case domain.StrategyAmountFallback:
		grant := domain.AmountFallbackGrant{
			EventID:           eventID,
			Paid:              paid,
			Email:             r.Email,
			PriceTableVersion: r.PriceTableVersion,
		}
		if r.PricePoint != nil {
			grant.PricePointID = r.PricePoint.ID
		}
		return grant
	case domain.StrategyCustomerReference:
		return domain.CustomerReferenceGrant{EventID: eventID, Paid: paid, CustomerID: r.CustomerID}
	default:
		return domain.ManualGrant{Note: fmt.Sprintf("resolved by %s", r.Strategy)}
	}
}

// Strategy is one way of identifying the user behind an event. It returns
// ErrNotApplicable when it has nothing to say; any other error aborts the chain.
type Strategy interface {
	Name() domain.Strategy
	Resolve(ctx context.Context, subject Subject) (*Resolution, error)
}

// UserDirectory is the subset of the user store the strategies read.
type UserDirectory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*identity.User, error)
	FindByEmail(ctx context.Context, email identity.Email) ([]*identity.User, error)
}

// SubscriptionLookup finds stored subscriptions by processor reference.
type SubscriptionLookup interface {
	FindByExternalID(ctx context.Context, externalSubscriptionID string) (*domain.Subscription, error)
	FindByCustomerID(ctx context.Context, customerID string) (*domain.Subscription, error)
}

// Resolver runs strategies in order; the first match wins.
type Resolver struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewResolver creates a resolver over strategies, tried in the given order.
func NewResolver(logger *slog.Logger, strategies ...Strategy) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{strategies: strategies, logger: logger}
}

// NewDefaultResolver builds the standard chain: explicit, email, amount, customer reference.
func NewDefaultResolver(users UserDirectory, subscriptions SubscriptionLookup, prices domain.PriceTable, logger *slog.Logger) *Resolver {
	return NewResolver(logger,
		NewExplicitStrategy(users),
		NewEmailStrategy(users),
		NewAmountStrategy(users, prices),
		NewCustomerReferenceStrategy(subscriptions),
	)
}

// Resolve returns the first match or ErrUnresolved.
func (r *Resolver) Resolve(ctx context.Context, subject Subject) (*Resolution, error) {
	for _, s := range r.strategies {
		res, err := s.Resolve(ctx, subject)
		if errors.Is(err, ErrNotApplicable) {
			r.logger.Debug("resolution strategy skipped",
				"event_id", subject.EventID,
				"strategy", s.Name(),
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s strategy: %w", s.Name(), err)
		}
		res.Strategy = s.Name()
		return res, nil
	}
	return nil, ErrUnresolved
}
