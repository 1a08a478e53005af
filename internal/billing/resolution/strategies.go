package resolution

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/saffron/internal/billing/domain"
	identity "github.com/felixgeelhaar/saffron/internal/identity/domain"
)

var placeholderUserIDs = map[string]bool{
	"":          true,
	"guest":     true,
	"anonymous": true,
	"null":      true,
	"undefined": true,
}

// ExplicitStrategy trusts a user id carried in event metadata, provided the
// user exists.
type ExplicitStrategy struct {
	users UserDirectory
}

// NewExplicitStrategy creates the explicit-id strategy.
func NewExplicitStrategy(users UserDirectory) *ExplicitStrategy {
	return &ExplicitStrategy{users: users}
}

func (s *ExplicitStrategy) Name() domain.Strategy { return domain.StrategyExplicit }

func (s *ExplicitStrategy) Resolve(ctx context.Context, subject Subject) (*Resolution, error) {
	raw := strings.TrimSpace(subject.UserID)
	if placeholderUserIDs[strings.ToLower(raw)] {
		return nil, ErrNotApplicable
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, ErrNotApplicable
	}

	user, err := s.users.FindByID(ctx, id)
	if errors.Is(err, identity.ErrUserNotFound) {
		return nil, ErrNotApplicable
	}
	if err != nil {
		return nil, err
	}
	return &Resolution{UserID: user.ID(), Email: user.Email().String(), CustomerID: subject.CustomerID}, nil
}

// EmailStrategy matches the customer email against exactly one user.
type EmailStrategy struct {
	users UserDirectory
}

// NewEmailStrategy creates the email strategy.
func NewEmailStrategy(users UserDirectory) *EmailStrategy {
	return &EmailStrategy{users: users}
}

func (s *EmailStrategy) Name() domain.Strategy { return domain.StrategyEmailFallback }

func (s *EmailStrategy) Resolve(ctx context.Context, subject Subject) (*Resolution, error) {
	// Untyped checkouts are identified by price, not by email alone.
	if subject.Checkout && !subject.HasTypeMetadata {
		return nil, ErrNotApplicable
	}
	user, err := uniqueUserByEmail(ctx, s.users, subject.Email)
	if err != nil {
		return nil, err
	}
	return &Resolution{UserID: user.ID(), Email: user.Email().String(), CustomerID: subject.CustomerID}, nil
}

// AmountStrategy identifies untyped checkouts by their charged amount, then
// finds the buyer by email.
type AmountStrategy struct {
	users  UserDirectory
	prices domain.PriceTable
}

// NewAmountStrategy creates the amount strategy over a price table.
func NewAmountStrategy(users UserDirectory, prices domain.PriceTable) *AmountStrategy {
	return &AmountStrategy{users: users, prices: prices}
}

func (s *AmountStrategy) Name() domain.Strategy { return domain.StrategyAmountFallback }

func (s *AmountStrategy) Resolve(ctx context.Context, subject Subject) (*Resolution, error) {
	if !subject.Checkout || subject.HasTypeMetadata {
		return nil, ErrNotApplicable
	}
	point, ok := s.prices.Match(subject.Paid)
	if !ok {
		return nil, ErrNotApplicable
	}
	user, err := uniqueUserByEmail(ctx, s.users, subject.Email)
	if err != nil {
		return nil, err
	}
	return &Resolution{
		UserID:            user.ID(),
		Email:             user.Email().String(),
		CustomerID:        subject.CustomerID,
		PricePoint:        &point,
		PriceTableVersion: s.prices.Version,
	}, nil
}

// CustomerReferenceStrategy maps processor subscription or customer ids onto
// the user whose subscription row carries them.
type CustomerReferenceStrategy struct {
	subscriptions SubscriptionLookup
}

// NewCustomerReferenceStrategy creates the customer reference strategy.
func NewCustomerReferenceStrategy(subscriptions SubscriptionLookup) *CustomerReferenceStrategy {
	return &CustomerReferenceStrategy{subscriptions: subscriptions}
}

func (s *CustomerReferenceStrategy) Name() domain.Strategy { return domain.StrategyCustomerReference }

func (s *CustomerReferenceStrategy) Resolve(ctx context.Context, subject Subject) (*Resolution, error) {
	if subject.Checkout {
		return nil, ErrNotApplicable
	}

	if subject.ExternalSubscriptionID != "" {
		sub, err := s.subscriptions.FindByExternalID(ctx, subject.ExternalSubscriptionID)
		if err == nil {
			return &Resolution{UserID: sub.UserID, CustomerID: sub.ExternalCustomerID}, nil
		}
		if !errors.Is(err, domain.ErrSubscriptionNotFound) {
			return nil, err
		}
	}

	if subject.CustomerID == "" {
		return nil, ErrNotApplicable
	}
	sub, err := s.subscriptions.FindByCustomerID(ctx, subject.CustomerID)
	if errors.Is(err, domain.ErrSubscriptionNotFound) {
		return nil, ErrNotApplicable
	}
	if err != nil {
		return nil, err
	}
	return &Resolution{UserID: sub.UserID, CustomerID: subject.CustomerID}, nil
}

func uniqueUserByEmail(ctx context.Context, users UserDirectory, address string) (*identity.User, error) {
	if strings.TrimSpace(address) == "" {
		return nil, ErrNotApplicable
	}
	email, err := identity.NewEmail(address)
	if err != nil {
		return nil, ErrNotApplicable
	}
	matches, err := users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if len(matches) != 1 {
		return nil, ErrNotApplicable
	}
	return matches[0], nil
}
