package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to tenant users by default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogAdminAction records an operator-gated fee-adjust / manual correction.
func (s *Service) LogAdminAction(ctx context.Context, actorUserID, actorRole, groupID, message string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeAdminAction,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		GroupID:     groupID,
		Message:     message,
	})
}

// LogInvariantViolation records an Invariant Auditor failure against a
// specific account or currency-wide aggregate.
func (s *Service) LogInvariantViolation(ctx context.Context, accountID, currency, message string) error {
	return s.Append(ctx, Event{
		Type:      EventTypeInvariantViolation,
		AccountID: accountID,
		Currency:  currency,
		Message:   message,
	})
}

// LogStrangeTransaction records an observed blockchain event the Reconciler
// could not reconcile.
func (s *Service) LogStrangeTransaction(ctx context.Context, currency, message string) error {
	return s.Append(ctx, Event{
		Type:     EventTypeStrangeTransaction,
		Currency: currency,
		Message:  message,
	})
}

// LogLiquidityAlert records a system account found below its configured
// floor by the Liquidity Monitor.
func (s *Service) LogLiquidityAlert(ctx context.Context, accountID, currency, message string) error {
	return s.Append(ctx, Event{
		Type:      EventTypeLiquidityAlert,
		AccountID: accountID,
		Currency:  currency,
		Message:   message,
	})
}

// LogRebalanceRequested records a rebalance request posted to the exchange
// collaborator.
func (s *Service) LogRebalanceRequested(ctx context.Context, accountID, currency, message string) error {
	return s.Append(ctx, Event{
		Type:      EventTypeRebalanceRequested,
		AccountID: accountID,
		Currency:  currency,
		Message:   message,
	})
}

// LogDeferredExpired records a Deferred Scheduler record that expired
// before its condition was satisfied.
func (s *Service) LogDeferredExpired(ctx context.Context, actorUserID, deferredID, message string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeDeferredExpired,
		ActorUserID: actorUserID,
		GroupID:     deferredID,
		Message:     message,
	})
}
