// Package liquidity implements the Liquidity Monitor: a periodic
// read-only pass over the system-liquidity and system-fees accounts that
// requests a rebalance (and, for fees, also raises an alert) once a
// balance drops under its configured floor (spec.md §4.6).
package liquidity

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"ledgercore/internal/audit"
	"ledgercore/internal/ledger"
	"ledgercore/internal/ledger/rate"
	"ledgercore/internal/ledger/store"
	"ledgercore/pkg/bus"
)

// Monitor runs Sweep on a timer owned by its own Run loop (same pattern as
// the Deferred Scheduler's Run loop).
type Monitor struct {
	Store    store.Store
	Exchange rate.ExchangeClient
	Audit    *audit.Service
	Events   bus.Publisher
	Limiter  Limiter

	// LiquidityFloors/FeesFloors map currency -> minimum tolerated
	// balance before a rebalance request (and, for fees, an alert) fires.
	LiquidityFloors map[string]decimal.Decimal
	FeesFloors      map[string]decimal.Decimal

	// RequestTTL bounds how long an outstanding rebalance request holds
	// its single-flight slot before a later sweep may request again.
	RequestTTL time.Duration

	Interval time.Duration
	Clock    func() time.Time
}

func New(s store.Store, exchange rate.ExchangeClient, auditSvc *audit.Service, events bus.Publisher, limiter Limiter, liquidityFloors, feesFloors map[string]decimal.Decimal) *Monitor {
	return &Monitor{
		Store: s, Exchange: exchange, Audit: auditSvc, Events: events, Limiter: limiter,
		LiquidityFloors: liquidityFloors, FeesFloors: feesFloors,
		RequestTTL: 10 * time.Minute, Interval: time.Minute, Clock: time.Now,
	}
}

func (m *Monitor) now() time.Time { return m.Clock().UTC() }

// Run blocks, sweeping at Interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = m.Sweep(ctx)
		}
	}
}

// Sweep checks every configured currency's system-liquidity and
// system-fees accounts against their floors.
func (m *Monitor) Sweep(ctx context.Context) error {
	var firstErr error
	for currency, floor := range m.LiquidityFloors {
		if err := m.checkAccount(ctx, currency, ledger.TagSystemLiquidityDr, floor, false); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for currency, floor := range m.FeesFloors {
		if err := m.checkAccount(ctx, currency, ledger.TagSystemFeesCr, floor, true); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Monitor) checkAccount(ctx context.Context, currency, tag string, floor decimal.Decimal, alsoAlert bool) error {
	acc, err := m.Store.FindSystemAccount(ctx, currency, tag)
	if err != nil {
		return err
	}
	bal, err := m.Store.Balance(ctx, acc.ID)
	if err != nil {
		return err
	}
	if bal.GreaterThanOrEqual(floor) {
		return nil
	}

	if alsoAlert && m.Audit != nil {
		_ = m.Audit.LogLiquidityAlert(ctx, acc.ID, currency, "fees reserve below configured floor")
	}

	if m.Exchange == nil {
		return nil
	}

	key := "liquidity:rebalance:" + acc.ID + ":" + currency
	if m.Limiter != nil {
		acquired, err := m.Limiter.Acquire(ctx, key, m.RequestTTL)
		if err != nil {
			return err
		}
		if !acquired {
			// A rebalance request for this (account, currency) is already
			// outstanding; don't pile on another one.
			return nil
		}
	}

	shortfall := floor.Sub(bal)
	req := rate.RebalanceRequest{Currency: currency, Account: acc.ID, Requested: shortfall, Reason: "balance below configured floor"}
	if err := m.Exchange.RequestRebalance(ctx, req); err != nil {
		if m.Limiter != nil {
			_ = m.Limiter.Release(ctx, key)
		}
		return err
	}
	if m.Audit != nil {
		_ = m.Audit.LogRebalanceRequested(ctx, acc.ID, currency, "requested "+shortfall.String()+" to restore floor")
	}
	if m.Events != nil {
		_ = m.Events.Publish(ctx, "ledger.liquidity.rebalance_requested", map[string]any{
			"account_id": acc.ID,
			"currency":   currency,
			"requested":  shortfall.String(),
		})
	}
	return nil
}
