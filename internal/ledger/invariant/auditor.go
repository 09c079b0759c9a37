// Package invariant implements the Invariant Auditor: periodic I1-I3
// checks over the ledger, writing alerts and optionally suspending
// mutations on violation (spec.md §4.7).
package invariant

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"ledgercore/internal/audit"
	"ledgercore/internal/ledger"
	"ledgercore/internal/ledger/report"
	"ledgercore/internal/ledger/store"
)

// OnChainBalanceReader is the external collaborator I1 depends on: the
// payment system's own view of a Dr account's on-chain balance
// (SPEC_FULL.md §1 Non-goals: the engine does not run a node itself).
type OnChainBalanceReader interface {
	OnChainBalance(ctx context.Context, address, currency string) (decimal.Decimal, error)
}

// Auditor runs I1-I3 on a timer (same Run-loop shape as the Scheduler and
// Liquidity Monitor).
type Auditor struct {
	Store   store.Store
	Report  *report.Service
	OnChain OnChainBalanceReader
	Audit   *audit.Service

	// SuspendOnViolation sets ledger.KeySuspendMutations in the KeyValue
	// journal on any violation, which the Builder consults pre-commit
	// (spec.md §4.7).
	SuspendOnViolation bool

	Interval time.Duration
	Clock    func() time.Time
}

func New(s store.Store, rep *report.Service, onChain OnChainBalanceReader, auditSvc *audit.Service, suspendOnViolation bool) *Auditor {
	return &Auditor{
		Store: s, Report: rep, OnChain: onChain, Audit: auditSvc,
		SuspendOnViolation: suspendOnViolation, Interval: time.Minute, Clock: time.Now,
	}
}

func (a *Auditor) now() time.Time { return a.Clock().UTC() }

// Run blocks, auditing at Interval until ctx is cancelled.
func (a *Auditor) Run(ctx context.Context, currencies []string) {
	ticker := time.NewTicker(a.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = a.Sweep(ctx, currencies)
		}
	}
}

// Sweep runs every check for every supplied currency, returning the first
// error encountered (if any) but always completing the full pass.
func (a *Auditor) Sweep(ctx context.Context, currencies []string) error {
	var firstErr error
	violated := false

	for _, currency := range currencies {
		if v, err := a.checkI2(ctx, currency); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else if v {
			violated = true
		}
		if v, err := a.checkI3(ctx, currency); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else if v {
			violated = true
		}
		if v, err := a.checkI1(ctx, currency); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else if v {
			violated = true
		}
	}

	if violated && a.SuspendOnViolation {
		if err := a.Store.PutKV(ctx, ledger.KeySuspendMutations, []byte("true"), a.now()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// checkI2 re-verifies non-negativity, a defense-in-depth pass over what
// insert_transactions already enforces at write time (spec.md I2).
func (a *Auditor) checkI2(ctx context.Context, currency string) (bool, error) {
	bad, err := a.Store.ListAccountsBelowZero(ctx, currency)
	if err != nil {
		return false, err
	}
	if len(bad) == 0 {
		return false, nil
	}
	for _, acc := range bad {
		if a.Audit != nil {
			_ = a.Audit.LogInvariantViolation(ctx, acc.ID, currency, "balance is negative")
		}
	}
	return true, nil
}

// checkI3 verifies Σbalance(Dr) = Σbalance(Cr) per currency.
func (a *Auditor) checkI3(ctx context.Context, currency string) (bool, error) {
	sheet, err := a.Report.BalanceSheet(ctx, report.BalanceSheetRequest{Currency: currency})
	if err != nil {
		return false, err
	}
	drift, err := decimal.NewFromString(sheet.Drift)
	if err != nil {
		return false, err
	}
	if drift.IsZero() {
		return false, nil
	}
	if a.Audit != nil {
		_ = a.Audit.LogInvariantViolation(ctx, "", currency, "dr/cr balance drift: "+sheet.Drift)
	}
	return true, nil
}

// checkI1 verifies every Dr account's ledger balance matches the
// on-chain balance the payment system reports at its address.
func (a *Auditor) checkI1(ctx context.Context, currency string) (bool, error) {
	if a.OnChain == nil {
		return false, nil
	}
	drAccounts, err := a.Store.ListSystemDrAccounts(ctx, currency)
	if err != nil {
		return false, err
	}
	violated := false
	for _, acc := range drAccounts {
		onChain, err := a.OnChain.OnChainBalance(ctx, acc.Address, currency)
		if err != nil {
			return violated, err
		}
		ledgerBal, err := a.Store.Balance(ctx, acc.ID)
		if err != nil {
			return violated, err
		}
		if !ledgerBal.Equal(onChain) {
			violated = true
			if a.Audit != nil {
				_ = a.Audit.LogInvariantViolation(ctx, acc.ID, currency,
					"ledger balance "+ledgerBal.String()+" does not match on-chain balance "+onChain.String())
			}
		}
	}
	return violated, nil
}
