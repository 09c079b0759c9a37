package reconciler

import (
	"context"
	"testing"

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

func newTestReconciler() (*Reconciler, *store.Memory) {
	s := store.NewMemory()
	rs := rate.NewMemoryRateSource()
	b := builder.New(s, rs, nil, nil, bus.Noop{}, nil)
	r := New(s, b, rs, nil, bus.Noop{})
	return r, s
}

// TestObserve_InboundDepositBelowThresholdWaits mirrors spec.md §4.4: a
// deposit worth more than $20 with zero confirmations must not be credited
// yet (the ETH table requires at least 1 confirmation above $20).
func TestObserve_InboundDepositBelowThresholdWaits(t *testing.T) {
	ctx := context.Background()
	r, s := newTestReconciler()
	rs := r.Prices.(*rate.MemoryRateSource)
	rs.SetUSDRate("ETH", d("30")) // 1 ETH = $30

	dr, cr, err := s.CreateAccountPair(ctx, "u1", "ETH", "0x26df8a", "")
	if err != nil {
		t.Fatalf("create pair: %v", err)
	}

	tx := ledger.BlockchainTransaction{Hash: "0xa1", To: "0x26df8a", Currency: "ETH", Value: d("1"), Confirmations: 0}
	if err := r.Observe(ctx, tx); err != nil {
		t.Fatalf("observe: %v", err)
	}

	drBal, _ := s.Balance(ctx, dr.ID)
	crBal, _ := s.Balance(ctx, cr.ID)
	if !drBal.IsZero() || !crBal.IsZero() {
		t.Fatalf("expected no credit below confirmation threshold, got dr=%s cr=%s", drBal, crBal)
	}

	tx.Confirmations = 1
	if err := r.Observe(ctx, tx); err != nil {
		t.Fatalf("observe again: %v", err)
	}
	drBal, _ = s.Balance(ctx, dr.ID)
	crBal, _ = s.Balance(ctx, cr.ID)
	if !drBal.Equal(d("1")) || !crBal.Equal(d("1")) {
		t.Fatalf("expected credit of 1 once threshold met, got dr=%s cr=%s", drBal, crBal)
	}
}

// TestObserve_InboundIsIdempotent mirrors P5: observing the same hash twice
// results in exactly one ledger effect.
func TestObserve_InboundIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r, s := newTestReconciler()

	_, cr, err := s.CreateAccountPair(ctx, "u1", "ETH", "0x26df8a", "")
	if err != nil {
		t.Fatalf("create pair: %v", err)
	}

	tx := ledger.BlockchainTransaction{Hash: "0xdup", To: "0x26df8a", Currency: "ETH", Value: d("9"), Confirmations: 12}
	if err := r.Observe(ctx, tx); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if err := r.Observe(ctx, tx); err != nil {
		t.Fatalf("observe again: %v", err)
	}

	crBal, _ := s.Balance(ctx, cr.ID)
	if !crBal.Equal(d("9")) {
		t.Fatalf("expected exactly one credit of 9, got %s", crBal)
	}
}

// TestObserve_UnknownDestinationIsStrange mirrors spec.md §8 scenario 6.
func TestObserve_UnknownDestinationIsStrange(t *testing.T) {
	ctx := context.Background()
	r, s := newTestReconciler()

	tx := ledger.BlockchainTransaction{Hash: "0xmystery", To: "0xnotregistered", Currency: "ETH", Value: d("2"), Confirmations: 12}
	if err := r.Observe(ctx, tx); err != nil {
		t.Fatalf("observe: %v", err)
	}

	strange := s.Strange()
	if len(strange) != 1 {
		t.Fatalf("expected 1 strange record, got %d", len(strange))
	}
	if strange[0].Commentary != "unknown destination" {
		t.Fatalf("expected 'unknown destination' commentary, got %q", strange[0].Commentary)
	}
}

// TestObserve_OutboundConfirmsWithdrawal drives a pending withdrawal to done
// via the same path the reconciler would use once the chain submission is
// observed.
func TestObserve_OutboundConfirmsWithdrawal(t *testing.T) {
	ctx := context.Background()
	r, s := newTestReconciler()
	b := r.Builder

	dr, cr, err := s.CreateAccountPair(ctx, "u1", "ETH", "0xabc", "")
	if err != nil {
		t.Fatalf("create pair: %v", err)
	}
	if _, err := b.Submit(ctx, builder.Intent{
		ID: "seed", UserID: "u1", Kind: builder.IntentDeposit,
		Observed: &ledger.BlockchainTransaction{Hash: "0xseed", To: "0xabc", Currency: "ETH", Value: d("50")},
	}); err != nil {
		t.Fatalf("seed deposit: %v", err)
	}

	res, err := b.Submit(ctx, builder.Intent{
		ID: "wd1", UserID: "u1", Kind: builder.IntentWithdraw,
		FromAccount: cr.ID, ToAddress: "0xexternal", FromCurrency: "ETH", Value: d("10"),
	})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if err := s.BindBlockchainHash(ctx, res.Group.ID, "0xbroadcast"); err != nil {
		t.Fatalf("bind broadcast hash: %v", err)
	}

	tx := ledger.BlockchainTransaction{Hash: "0xbroadcast", From: "0xabc", Currency: "ETH", Value: d("10"), Confirmations: 12}
	if err := r.Observe(ctx, tx); err != nil {
		t.Fatalf("observe outbound: %v", err)
	}

	g, _, err := s.GetGroup(ctx, "wd1")
	if err != nil || g.Status != ledger.GroupDone {
		t.Fatalf("expected withdrawal group done, got %v err=%v", g.Status, err)
	}
	_ = dr
}
