package builder

import (
	"context"

	"ledgercore/internal/ledger"
)

// deposit records an already-observed, already-confirmed inbound blockchain
// transaction against the user's account pair (spec.md §4.3 case 1). The
// Reconciler is the only caller that builds an Intent of this kind; it has
// already checked the hash hasn't been seen and that confirmations clear the
// currency's threshold.
func (b *Builder) deposit(ctx context.Context, in Intent) (Result, error) {
	if in.Observed == nil || in.Observed.Value.Sign() <= 0 {
		return Result{}, ledger.ErrInvalidArgument
	}

	accs, err := b.Store.ListAccountsByAddress(ctx, in.Observed.To)
	if err != nil {
		return Result{}, err
	}
	var dr, cr *ledger.Account
	for i := range accs {
		a := accs[i]
		if a.Currency != in.Observed.Currency {
			continue
		}
		switch a.Kind {
		case ledger.KindDr:
			dr = &accs[i]
		case ledger.KindCr:
			cr = &accs[i]
		}
	}
	if dr == nil || cr == nil {
		return Result{}, ledger.ErrUnknownAccount
	}

	var out Result
	err = b.Store.WithTx(ctx, func(ctx context.Context) error {
		if _, err := b.Store.LockAccounts(ctx, []string{dr.ID, cr.ID}); err != nil {
			return err
		}
		tx := newTx(in.ID, dr.ID, cr.ID, in.Observed.Currency, in.Observed.Value)
		tx.Status = ledger.TxDone
		group := ledger.TransactionGroup{
			ID: in.ID, Kind: ledger.GroupDeposit, Status: ledger.GroupDone,
			UserID: in.UserID, BlockchainTxHash: in.Observed.Hash,
		}
		if err := b.Store.InsertTransactions(ctx, group, []ledger.Transaction{tx}); err != nil {
			return err
		}
		g, txs, err := b.Store.GetGroup(ctx, in.ID)
		if err != nil {
			return err
		}
		out = Result{Group: g, Transactions: txs}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	b.publish(ctx, out.Group)
	return out, nil
}
