// Package reconciler implements the Blockchain Reconciler: it ingests
// observed on-chain transactions, matches them against pending groups or
// known Dr-account addresses, advances ledger status accordingly, and
// records unmatched events as strange transactions (spec.md §4.4).
package reconciler

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"ledgercore/internal/audit"
	"ledgercore/internal/ledger"
	"ledgercore/internal/ledger/builder"
	"ledgercore/internal/ledger/rate"
	"ledgercore/internal/ledger/store"
	"ledgercore/pkg/bus"
)

// Reconciler runs the per-observation state machine described in spec.md
// §4.4. It never discovers blocks itself: observed transactions are handed
// in by an external chain-watching collaborator (out of scope, spec.md §1).
type Reconciler struct {
	Store   store.Store
	Builder *builder.Builder
	Prices  rate.PriceOracle
	Audit   *audit.Service
	Events  bus.Publisher
}

func New(s store.Store, b *builder.Builder, prices rate.PriceOracle, auditSvc *audit.Service, events bus.Publisher) *Reconciler {
	return &Reconciler{Store: s, Builder: b, Prices: prices, Audit: auditSvc, Events: events}
}

// Observe runs the state machine for one observed transaction. It is safe
// to call repeatedly with the same tx (P5): once a terminal outcome has
// been recorded against tx.Hash, later calls are no-ops.
func (r *Reconciler) Observe(ctx context.Context, tx ledger.BlockchainTransaction) error {
	toAccount, toErr := r.resolveDrAccount(ctx, tx.To, tx.Currency)
	fromAccount, fromErr := r.resolveDrAccount(ctx, tx.From, tx.Currency)

	pendingByHash, err := r.Store.FindPendingByHash(ctx, tx.Hash)
	if err != nil {
		return err
	}
	outboundMatch := fromErr == nil && len(pendingByHash) > 0
	inboundMatch := toErr == nil

	switch {
	case inboundMatch && outboundMatch:
		return r.strange(ctx, tx, "ambiguous: matches both an inbound deposit address and a pending withdrawal")
	case inboundMatch:
		return r.inbound(ctx, tx, toAccount)
	case outboundMatch:
		return r.outbound(ctx, tx, pendingByHash[0])
	default:
		return r.strange(ctx, tx, "unknown destination")
	}
}

func (r *Reconciler) resolveDrAccount(ctx context.Context, address, currency string) (ledger.Account, error) {
	if address == "" {
		return ledger.Account{}, ledger.ErrNotFound
	}
	accounts, err := r.Store.ListAccountsByAddress(ctx, address)
	if err != nil {
		return ledger.Account{}, err
	}
	for _, a := range accounts {
		if a.Kind == ledger.KindDr && a.Currency == currency {
			return a, nil
		}
	}
	return ledger.Account{}, ledger.ErrNotFound
}

// inbound handles a credit-direction observation: tx.To resolves to a known
// Dr account. A deposit only becomes spendable once its confirmations meet
// the currency's USD-value-scaled threshold (spec.md §4.4); until then the
// observation is neither applied nor marked seen, so a later call with more
// confirmations is re-evaluated rather than skipped.
func (r *Reconciler) inbound(ctx context.Context, tx ledger.BlockchainTransaction, dr ledger.Account) error {
	usdValue := decimal.Zero
	if r.Prices != nil {
		v, err := r.Prices.USDValue(ctx, tx.Currency, tx.Value)
		if err == nil {
			usdValue = v
		}
	}
	if tx.Confirmations < requiredConfirmations(tx.Currency, usdValue) {
		return nil
	}

	alreadySeen, err := r.Store.RecordObserved(ctx, tx)
	if err != nil {
		return err
	}
	if alreadySeen {
		return nil
	}

	observed := tx
	_, err = r.Builder.Submit(ctx, builder.Intent{
		ID:       tx.Hash,
		UserID:   dr.UserID,
		Kind:     builder.IntentDeposit,
		Observed: &observed,
	})
	return err
}

// outbound handles a debit-direction observation: tx.From resolves to a
// system Dr account with a pending withdrawal group awaiting exactly this
// hash. Confirming settles the actual on-chain fee (spec.md §4.3 case 3).
func (r *Reconciler) outbound(ctx context.Context, tx ledger.BlockchainTransaction, group ledger.TransactionGroup) error {
	alreadySeen, err := r.Store.RecordObserved(ctx, tx)
	if err != nil {
		return err
	}
	if alreadySeen {
		return nil
	}
	_, err = r.Builder.ConfirmWithdrawal(ctx, group.ID, tx.Hash, tx.Fee)
	return err
}

func (r *Reconciler) strange(ctx context.Context, tx ledger.BlockchainTransaction, reason string) error {
	alreadySeen, err := r.Store.RecordObserved(ctx, tx)
	if err != nil {
		return err
	}
	if alreadySeen {
		return nil
	}
	if err := r.Store.InsertStrange(ctx, ledger.StrangeBlockchainTransaction{
		BlockchainTransaction: tx,
		Commentary:            reason,
		CreatedAt:             time.Now().UTC(),
	}); err != nil {
		return err
	}
	if r.Audit != nil {
		_ = r.Audit.LogStrangeTransaction(ctx, tx.Currency, reason+": hash="+tx.Hash)
	}
	if r.Events != nil {
		_ = r.Events.Publish(ctx, "ledger.alert", map[string]any{
			"type":   "strange_transaction",
			"hash":   tx.Hash,
			"reason": reason,
		})
	}
	return nil
}
