package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ledgercore/internal/ledger"
	"ledgercore/internal/ledger/builder"
	"ledgercore/internal/ledger/rate"
	"ledgercore/internal/ledger/store"
	"ledgercore/pkg/bus"
)

func d(v string) decimal.Decimal {
	n, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return n
}

func newTestScheduler() (*Scheduler, *store.Memory, *builder.Builder) {
	s := store.NewMemory()
	rs := rate.NewMemoryRateSource()
	b := builder.New(s, rs, nil, nil, bus.Noop{}, nil)
	return New(s, b, nil, bus.Noop{}, time.Second), s, b
}

// TestTick_FiresOnceTimeConditionPasses mirrors spec.md §4.5's time(t)
// condition: a record waits until its scheduled instant, then fires.
func TestTick_FiresOnceTimeConditionPasses(t *testing.T) {
	ctx := context.Background()
	sch, s, b := newTestScheduler()

	_, cr, err := s.CreateAccountPair(ctx, "u1", "ETH", "0xaaa", "")
	if err != nil {
		t.Fatalf("create pair: %v", err)
	}
	if _, err := b.Submit(ctx, builder.Intent{
		ID: "seed", UserID: "u1", Kind: builder.IntentDeposit,
		Observed: &ledger.BlockchainTransaction{Hash: "0xs", To: "0xaaa", Currency: "ETH", Value: d("5")},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, other, err := s.CreateAccountPair(ctx, "u1", "ETH", "0xbbb", "")
	if err != nil {
		t.Fatalf("create pair 2: %v", err)
	}

	fireAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := Record{
		ID:        "def1",
		Intent:    builder.Intent{ID: "paylater", UserID: "u1", Kind: builder.IntentInternal, FromAccount: cr.ID, ToAccount: other.ID, FromCurrency: "ETH", Value: d("2")},
		Condition: Condition{Kind: ConditionTime, At: fireAt},
	}
	if err := sch.Schedule(ctx, rec); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	sch.Clock = func() time.Time { return fireAt.Add(-time.Minute) }
	if err := sch.Tick(ctx); err != nil {
		t.Fatalf("tick before: %v", err)
	}
	if bal, _ := s.Balance(ctx, other.ID); !bal.IsZero() {
		t.Fatalf("expected no transfer before the scheduled time, got %s", bal)
	}

	sch.Clock = func() time.Time { return fireAt.Add(time.Second) }
	if err := sch.Tick(ctx); err != nil {
		t.Fatalf("tick after: %v", err)
	}
	if bal, _ := s.Balance(ctx, other.ID); !bal.Equal(d("2")) {
		t.Fatalf("expected transfer of 2 once due, got %s", bal)
	}

	got, ok, err := sch.get(ctx, "def1")
	if err != nil || !ok {
		t.Fatalf("get record: %v ok=%v", err, ok)
	}
	if got.Status != StatusFired {
		t.Fatalf("expected fired, got %s", got.Status)
	}
}

// TestTick_BalanceConditionWaitsThenFires mirrors the balance(account, op,
// threshold) condition.
func TestTick_BalanceConditionWaitsThenFires(t *testing.T) {
	ctx := context.Background()
	sch, s, b := newTestScheduler()

	_, cr, err := s.CreateAccountPair(ctx, "u1", "ETH", "0xccc", "")
	if err != nil {
		t.Fatalf("create pair: %v", err)
	}
	_, other, err := s.CreateAccountPair(ctx, "u1", "ETH", "0xddd", "")
	if err != nil {
		t.Fatalf("create pair 2: %v", err)
	}

	rec := Record{
		ID:        "def2",
		Intent:    builder.Intent{ID: "on-funded", UserID: "u1", Kind: builder.IntentInternal, FromAccount: cr.ID, ToAccount: other.ID, FromCurrency: "ETH", Value: d("3")},
		Condition: Condition{Kind: ConditionBalance, Account: cr.ID, Op: OpGTE, Threshold: d("10")},
	}
	if err := sch.Schedule(ctx, rec); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	if err := sch.Tick(ctx); err != nil {
		t.Fatalf("tick before funding: %v", err)
	}
	if bal, _ := s.Balance(ctx, other.ID); !bal.IsZero() {
		t.Fatalf("expected no transfer before funding, got %s", bal)
	}

	if _, err := b.Submit(ctx, builder.Intent{
		ID: "fund", UserID: "u1", Kind: builder.IntentDeposit,
		Observed: &ledger.BlockchainTransaction{Hash: "0xfund", To: "0xccc", Currency: "ETH", Value: d("10")},
	}); err != nil {
		t.Fatalf("fund: %v", err)
	}

	if err := sch.Tick(ctx); err != nil {
		t.Fatalf("tick after funding: %v", err)
	}
	if bal, _ := s.Balance(ctx, other.ID); !bal.Equal(d("3")) {
		t.Fatalf("expected transfer of 3 once funded, got %s", bal)
	}
}

// TestTick_ExpiresAndRunsRefund mirrors the expiry path: a record whose
// condition never becomes true before its expiry fires the configured
// expiry intent (typically a refund) and marks itself expired.
func TestTick_ExpiresAndRunsRefund(t *testing.T) {
	ctx := context.Background()
	sch, s, b := newTestScheduler()

	_, cr, err := s.CreateAccountPair(ctx, "u1", "ETH", "0xeee", "")
	if err != nil {
		t.Fatalf("create pair: %v", err)
	}
	_, other, err := s.CreateAccountPair(ctx, "u1", "ETH", "0xfff", "")
	if err != nil {
		t.Fatalf("create pair 2: %v", err)
	}
	if _, err := b.Submit(ctx, builder.Intent{
		ID: "seed", UserID: "u1", Kind: builder.IntentDeposit,
		Observed: &ledger.BlockchainTransaction{Hash: "0xseed2", To: "0xeee", Currency: "ETH", Value: d("5")},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	expiry := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	refund := builder.Intent{ID: "refund1", UserID: "u1", Kind: builder.IntentInternal, FromAccount: cr.ID, ToAccount: other.ID, FromCurrency: "ETH", Value: d("1")}
	rec := Record{
		ID:           "def3",
		Intent:       builder.Intent{ID: "never", UserID: "u1", Kind: builder.IntentInternal, FromAccount: cr.ID, ToAccount: other.ID, FromCurrency: "ETH", Value: d("999")},
		Condition:    Condition{Kind: ConditionBalance, Account: cr.ID, Op: OpGTE, Threshold: d("999999")},
		ExpiresAt:    &expiry,
		ExpiryIntent: &refund,
	}
	if err := sch.Schedule(ctx, rec); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	sch.Clock = func() time.Time { return expiry.Add(time.Second) }
	if err := sch.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if bal, _ := s.Balance(ctx, other.ID); !bal.Equal(d("1")) {
		t.Fatalf("expected refund of 1, got %s", bal)
	}
	got, ok, err := sch.get(ctx, "def3")
	if err != nil || !ok {
		t.Fatalf("get record: %v ok=%v", err, ok)
	}
	if got.Status != StatusExpired {
		t.Fatalf("expected expired, got %s", got.Status)
	}
}

// TestCancel_PreventsFiring mirrors the operator-initiated cancellation
// path: a cancelled record is never evaluated again.
func TestCancel_PreventsFiring(t *testing.T) {
	ctx := context.Background()
	sch, s, _ := newTestScheduler()

	_, cr, err := s.CreateAccountPair(ctx, "u1", "ETH", "0x111", "")
	if err != nil {
		t.Fatalf("create pair: %v", err)
	}
	_, other, err := s.CreateAccountPair(ctx, "u1", "ETH", "0x222", "")
	if err != nil {
		t.Fatalf("create pair 2: %v", err)
	}

	fireAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := Record{
		ID:        "def4",
		Intent:    builder.Intent{ID: "cancel-me", UserID: "u1", Kind: builder.IntentInternal, FromAccount: cr.ID, ToAccount: other.ID, FromCurrency: "ETH", Value: d("1")},
		Condition: Condition{Kind: ConditionTime, At: fireAt},
	}
	if err := sch.Schedule(ctx, rec); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := sch.Cancel(ctx, "def4"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	sch.Clock = func() time.Time { return fireAt.Add(time.Hour) }
	if err := sch.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if bal, _ := s.Balance(ctx, other.ID); !bal.IsZero() {
		t.Fatalf("expected cancelled record never to fire, got %s", bal)
	}
	if err := sch.Cancel(ctx, "def4"); err != ledger.ErrIllegalTransition {
		t.Fatalf("expected ErrIllegalTransition re-cancelling, got %v", err)
	}
}
