package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/saffron/internal/billing/domain"
	identity "github.com/felixgeelhaar/saffron/internal/identity/domain"
	sharedApplication "github.com/felixgeelhaar/saffron/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/saffron/internal/shared/domain"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/outbox"
)

// ErrUnknownUser is returned when an admin operation names a user the
// directory does not know.
var ErrUnknownUser = errors.New("unknown user")

// UserLookup confirms that a user exists.
type UserLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*identity.User, error)
}

// Service provides operator-facing billing operations.
type Service struct {
	entitlements  domain.EntitlementRepository
	subscriptions domain.SubscriptionRepository
	history       domain.HistoryRepository
	users         UserLookup
	outboxRepo    outbox.Repository
	uow           sharedApplication.UnitOfWork
	logger        *slog.Logger
	now           func() time.Time
}

// NewService creates a billing admin service. users, outboxRepo and uow may be nil.
func NewService(
	entitlements domain.EntitlementRepository,
	subscriptions domain.SubscriptionRepository,
	history domain.HistoryRepository,
	users UserLookup,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		entitlements:  entitlements,
		subscriptions: subscriptions,
		history:       history,
		users:         users,
		outboxRepo:    outboxRepo,
		uow:           uow,
		logger:        logger,
		now:           time.Now,
	}
}

// GrantCommand describes a manual feature grant.
type GrantCommand struct {
	UserID    uuid.UUID
	Feature   domain.Feature
	ExpiresAt *time.Time
	Operator  string
	Note      string
}

// Grant writes a manual entitlement, replacing any existing grant of the feature.
func (s *Service) Grant(ctx context.Context, cmd GrantCommand) (*domain.Entitlement, error) {
	if err := s.ensureUser(ctx, cmd.UserID); err != nil {
		return nil, err
	}

	now := s.now()
	if cmd.ExpiresAt != nil && !cmd.ExpiresAt.After(now) {
		return nil, fmt.Errorf("expiry %s is in the past", cmd.ExpiresAt.Format(time.RFC3339))
	}
	entitlement, err := domain.NewEntitlement(cmd.UserID, cmd.Feature, now, cmd.ExpiresAt,
		domain.ManualGrant{Operator: cmd.Operator, Note: cmd.Note})
	if err != nil {
		return nil, err
	}

	err = sharedApplication.WithUnitOfWork(ctx, s.uow, func(txCtx context.Context) error {
		if err := s.entitlements.Upsert(txCtx, entitlement); err != nil {
			return err
		}
		return s.stage(txCtx, cmd.UserID, domain.NewEntitlementGranted(entitlement))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("entitlement granted manually",
		"user_id", cmd.UserID,
		"feature", cmd.Feature,
		"operator", cmd.Operator,
	)
	return entitlement, nil
}

// Revoke removes a grant and reports whether one existed.
func (s *Service) Revoke(ctx context.Context, userID uuid.UUID, feature domain.Feature, reason string) (bool, error) {
	var removed []domain.Feature
	err := sharedApplication.WithUnitOfWork(ctx, s.uow, func(txCtx context.Context) error {
		var err error
		removed, err = s.entitlements.Delete(txCtx, userID, feature)
		if err != nil || len(removed) == 0 {
			return err
		}
		return s.stage(txCtx, userID, domain.NewEntitlementRevoked(userID, feature, reason, s.now()))
	})
	if err != nil {
		return false, err
	}

	if len(removed) > 0 {
		s.logger.Info("entitlement revoked manually", "user_id", userID, "feature", feature, "reason", reason)
	}
	return len(removed) > 0, nil
}

// ListEntitlements returns all grants for the user, expired ones included.
func (s *Service) ListEntitlements(ctx context.Context, userID uuid.UUID) ([]*domain.Entitlement, error) {
	return s.entitlements.ListByUser(ctx, userID)
}

// GetSubscription returns the user's subscription row.
func (s *Service) GetSubscription(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	return s.subscriptions.FindByUserID(ctx, userID)
}

// ListHistory returns the user's newest billing history entries.
func (s *Service) ListHistory(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.HistoryEntry, error) {
	return s.history.ListByUser(ctx, userID, limit)
}

func (s *Service) ensureUser(ctx context.Context, userID uuid.UUID) error {
	if s.users == nil {
		return nil
	}
	_, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, identity.ErrUserNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	return err
}

func (s *Service) stage(ctx context.Context, userID uuid.UUID, events ...sharedDomain.DomainEvent) error {
	if s.outboxRepo == nil {
		return nil
	}
	sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(userID, ""))
	msgs, err := outbox.NewMessages(events)
	if err != nil {
		return err
	}
	return s.outboxRepo.SaveBatch(ctx, msgs)
}
