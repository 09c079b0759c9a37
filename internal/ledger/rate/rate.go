// Package rate provides the RateSource and PriceOracle collaborator
// interfaces the Builder and Reconciler call out to, plus an in-memory
// reference implementation for tests and local development. Deciding
// exchange rates is an explicit non-goal of the engine (SPEC_FULL.md §1);
// production wiring injects the real exchange/price-feed collaborator.
//
// Grounded on the teacher's pricing package: an effective-window lookup
// keyed by a pair, reshaped from "cost of a call" to "rate between two
// currencies with an expiring quote id" per spec.md §4.3 case 4.
package rate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNoRate      = errors.New("rate: no market rate available")
	ErrUnknownQuote = errors.New("rate: unknown quote id")
)

// Quote is a rate fixed at issuance time, with expiry, per spec.md §4.3
// case 4 ("Rate quote, fixed at issuance time with expiry").
type Quote struct {
	ID        string
	Src       string
	Dst       string
	Rate      decimal.Decimal // 1 Src == Rate Dst
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (q Quote) Expired(now time.Time) bool { return !now.Before(q.ExpiresAt) }

// Source is the exchange collaborator contract: quote(src,dst,ttl) and a
// spot market_rate lookup. The Reconciler's USD-value confirmation
// thresholds come from PriceOracle, not from this interface.
type Source interface {
	Quote(ctx context.Context, src, dst string, ttl time.Duration) (Quote, error)
	MarketRate(ctx context.Context, src, dst string) (decimal.Decimal, error)
	// Lookup resolves a previously issued quote id, so the Builder can
	// re-check expiry at commit time (spec.md §4.3 case 4).
	Lookup(ctx context.Context, quoteID string) (Quote, error)
}

// PriceOracle answers "what is this amount of currency worth in USD",
// which the Reconciler needs to apply the confirmation-threshold table.
type PriceOracle interface {
	USDValue(ctx context.Context, currency string, amount decimal.Decimal) (decimal.Decimal, error)
}

// MemoryRateSource is a fixed-table reference implementation, not intended
// for production: real rates come from the external exchange collaborator.
type MemoryRateSource struct {
	mu      sync.Mutex
	rates   map[string]decimal.Decimal // "SRC/DST" -> rate
	usdRate map[string]decimal.Decimal // currency -> USD per unit
	quotes  map[string]Quote
	clock   func() time.Time
}

func NewMemoryRateSource() *MemoryRateSource {
	return &MemoryRateSource{
		rates:   map[string]decimal.Decimal{},
		usdRate: map[string]decimal.Decimal{},
		quotes:  map[string]Quote{},
		clock:   time.Now,
	}
}

func pairKey(src, dst string) string { return src + "/" + dst }

func (m *MemoryRateSource) SetRate(src, dst string, r decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates[pairKey(src, dst)] = r
}

func (m *MemoryRateSource) SetUSDRate(currency string, usdPerUnit decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usdRate[currency] = usdPerUnit
}

func (m *MemoryRateSource) MarketRate(ctx context.Context, src, dst string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rates[pairKey(src, dst)]
	if !ok {
		return decimal.Zero, ErrNoRate
	}
	return r, nil
}

func (m *MemoryRateSource) Quote(ctx context.Context, src, dst string, ttl time.Duration) (Quote, error) {
	r, err := m.MarketRate(ctx, src, dst)
	if err != nil {
		return Quote{}, err
	}
	now := m.clock().UTC()
	q := Quote{ID: uuid.NewString(), Src: src, Dst: dst, Rate: r, IssuedAt: now, ExpiresAt: now.Add(ttl)}
	m.mu.Lock()
	m.quotes[q.ID] = q
	m.mu.Unlock()
	return q, nil
}

func (m *MemoryRateSource) GetQuote(id string) (Quote, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	return q, ok
}

func (m *MemoryRateSource) Lookup(ctx context.Context, quoteID string) (Quote, error) {
	q, ok := m.GetQuote(quoteID)
	if !ok {
		return Quote{}, ErrUnknownQuote
	}
	return q, nil
}

func (m *MemoryRateSource) USDValue(ctx context.Context, currency string, amount decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	r, ok := m.usdRate[currency]
	m.mu.Unlock()
	if !ok {
		return decimal.Zero, ErrNoRate
	}
	return amount.Mul(r), nil
}

var (
	_ Source      = (*MemoryRateSource)(nil)
	_ PriceOracle = (*MemoryRateSource)(nil)
)

// RebalanceRequest is the rebalance-request payload the Builder posts to the
// exchange collaborator after committing an exchange group (spec.md §4.3
// case 4, "enqueues a liquidity-rebalance request ... to replenish the
// dst-currency system liquidity pool at market").
type RebalanceRequest struct {
	Currency  string
	Account   string
	Requested decimal.Decimal
	Reason    string
}

// ExchangeClient is the external liquidity-rebalancing collaborator
// (SPEC_FULL.md §1 Non-goals: the engine does not itself rebalance).
type ExchangeClient interface {
	RequestRebalance(ctx context.Context, req RebalanceRequest) error
}
