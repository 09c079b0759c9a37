package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"ledgercore/internal/audit"
	"ledgercore/internal/ledger"
	"ledgercore/internal/ledger/builder"
	"ledgercore/internal/ledger/store"
	"ledgercore/pkg/bus"
)

// Scheduler persists deferred intents and fires them once their condition
// is satisfied, via a tick loop driven by a time.Ticker (spec.md §4.5).
type Scheduler struct {
	Store   store.Store
	Builder *builder.Builder
	Audit   *audit.Service
	Events  bus.Publisher

	TickInterval time.Duration
	Clock        func() time.Time
}

func New(s store.Store, b *builder.Builder, auditSvc *audit.Service, events bus.Publisher, tickInterval time.Duration) *Scheduler {
	if tickInterval <= 0 {
		tickInterval = time.Second
	}
	return &Scheduler{Store: s, Builder: b, Audit: auditSvc, Events: events, TickInterval: tickInterval, Clock: time.Now}
}

func (s *Scheduler) now() time.Time { return s.Clock().UTC() }

// Schedule persists a new waiting record.
func (s *Scheduler) Schedule(ctx context.Context, rec Record) error {
	if rec.ID == "" || rec.Intent.ID == "" {
		return ledger.ErrInvalidArgument
	}
	now := s.now()
	rec.Status = StatusWaiting
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return s.put(ctx, rec)
}

// Cancel transitions a waiting record to cancelled. A record that is not
// waiting (already fired, expired or cancelled) is left unchanged and
// ledger.ErrIllegalTransition is returned.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	rec, ok, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ledger.ErrNotFound
	}
	if rec.Status != StatusWaiting {
		return ledger.ErrIllegalTransition
	}
	rec.Status = StatusCancelled
	rec.UpdatedAt = s.now()
	return s.put(ctx, rec)
}

// Run blocks, ticking at TickInterval until ctx is cancelled. Each tick's
// errors are swallowed so one bad record never stops the loop; callers
// that want visibility should inspect the audit log.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.Tick(ctx)
		}
	}
}

// Tick evaluates every waiting record once. Ticks are cooperative and
// idempotent: a crash mid-tick resumes cleanly because every status
// transition is persisted before the next record is considered, and
// Builder.Submit is itself idempotent by intent id (spec.md §4.5).
func (s *Scheduler) Tick(ctx context.Context) error {
	kvs, err := s.Store.ListKVPrefix(ctx, keyPrefix)
	if err != nil {
		return err
	}
	now := s.now()
	var firstErr error
	for _, kv := range kvs {
		var rec Record
		if err := json.Unmarshal(kv.Value, &rec); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if rec.Status != StatusWaiting {
			continue
		}
		if err := s.evaluate(ctx, rec, now); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// evaluate checks one record's condition and, if unsatisfied, its expiry.
// Satisfaction is checked first: a record whose condition becomes true on
// the same tick its expiry passes still fires rather than expires (spec.md
// §4.5's expiry-before-satisfaction race resolves in favor of the
// condition actually being met).
func (s *Scheduler) evaluate(ctx context.Context, rec Record, now time.Time) error {
	satisfied, err := s.satisfied(ctx, rec.Condition, now)
	if err != nil {
		return err
	}
	if satisfied {
		if _, err := s.Builder.Submit(ctx, rec.Intent); err != nil {
			return err
		}
		rec.Status = StatusFired
		rec.UpdatedAt = now
		return s.put(ctx, rec)
	}

	if rec.ExpiresAt == nil || now.Before(*rec.ExpiresAt) {
		return nil
	}

	if rec.ExpiryIntent != nil {
		if _, err := s.Builder.Submit(ctx, *rec.ExpiryIntent); err != nil {
			// Left waiting; retried next tick. Submit is idempotent by
			// intent id so a partial failure here never double-refunds.
			return err
		}
	}
	rec.Status = StatusExpired
	rec.UpdatedAt = now
	if err := s.put(ctx, rec); err != nil {
		return err
	}
	if s.Audit != nil {
		_ = s.Audit.LogDeferredExpired(ctx, rec.Intent.UserID, rec.ID, "deferred record expired before its condition was met")
	}
	if s.Events != nil {
		_ = s.Events.Publish(ctx, "ledger.deferred.expired", map[string]any{
			"deferred_id": rec.ID,
			"intent_id":   rec.Intent.ID,
		})
	}
	return nil
}

func (s *Scheduler) satisfied(ctx context.Context, cond Condition, now time.Time) (bool, error) {
	switch cond.Kind {
	case ConditionTime:
		return !now.Before(cond.At), nil
	case ConditionBalance:
		bal, err := s.Store.Balance(ctx, cond.Account)
		if err != nil {
			return false, err
		}
		switch cond.Op {
		case OpGTE:
			return bal.GreaterThanOrEqual(cond.Threshold), nil
		case OpLTE:
			return bal.LessThanOrEqual(cond.Threshold), nil
		default:
			return false, ledger.ErrInvalidArgument
		}
	default:
		return false, ledger.ErrInvalidArgument
	}
}

func (s *Scheduler) get(ctx context.Context, id string) (Record, bool, error) {
	kv, ok, err := s.Store.GetKV(ctx, keyFor(id))
	if err != nil || !ok {
		return Record{}, ok, err
	}
	var rec Record
	if err := json.Unmarshal(kv.Value, &rec); err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (s *Scheduler) put(ctx context.Context, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.Store.PutKV(ctx, keyFor(rec.ID), b, s.now())
}
