// Package balance implements the Balance Calculator: a pure function over
// the Ledger Store within an active scope, with an optional row-locking
// mode the Builder uses to enforce I2 without write-skew.
package balance

import (
	"context"

	"github.com/shopspring/decimal"

	"ledgercore/internal/ledger/store"
)

// Reader is the minimal slice of store.Store the calculator needs; keeping
// it narrow lets callers that only read balances depend on less.
type Reader interface {
	Balance(ctx context.Context, accountID string) (decimal.Decimal, error)
}

// Locker additionally exposes row-level locking over a set of accounts.
type Locker interface {
	LockAccounts(ctx context.Context, ids []string) (map[string]decimal.Decimal, error)
}

// Compute returns the current balance of a single account. Dr accounts are
// debit-normal (Σdr - Σcr, mirroring a blockchain wallet); Cr accounts are
// credit-normal (Σcr - Σdr, a claim against the custodian), both over
// transactions with status != cancelled.
func Compute(ctx context.Context, s Reader, accountID string) (decimal.Decimal, error) {
	return s.Balance(ctx, accountID)
}

// ComputeLocked locks every account in ids (ascending id order, taken by the
// store) and returns each one's balance under that lock, so a caller can
// decide whether a batch of debits would drive any of them negative without
// risking a concurrent write landing between the read and the write.
func ComputeLocked(ctx context.Context, s Locker, ids []string) (map[string]decimal.Decimal, error) {
	return s.LockAccounts(ctx, ids)
}

var _ Reader = store.Store(nil)
var _ Locker = store.Store(nil)
