package builder

import (
	"context"

	"ledgercore/internal/ledger"
)

// internalTransfer moves a claim between two Cr accounts without touching
// any blockchain wallet (spec.md §4.3 case 2).
func (b *Builder) internalTransfer(ctx context.Context, in Intent) (Result, error) {
	if in.FromAccount == "" || in.ToAccount == "" {
		return Result{}, ledger.ErrInvalidArgument
	}

	src, err := b.Store.GetAccount(ctx, in.FromAccount)
	if err != nil {
		return Result{}, err
	}
	if src.Kind != ledger.KindCr || src.UserID != in.UserID {
		return Result{}, ledger.ErrInvalidArgument
	}
	dst, err := b.Store.GetAccount(ctx, in.ToAccount)
	if err != nil {
		return Result{}, err
	}
	if dst.Kind != ledger.KindCr || dst.Currency != src.Currency {
		return Result{}, ledger.ErrCurrencyMismatch
	}

	var out Result
	err = b.Store.WithTx(ctx, func(ctx context.Context) error {
		if _, err := b.Store.LockAccounts(ctx, []string{src.ID, dst.ID}); err != nil {
			return err
		}
		tx := newTx(in.ID, src.ID, dst.ID, src.Currency, in.Value)
		tx.Status = ledger.TxDone
		group := ledger.TransactionGroup{ID: in.ID, Kind: ledger.GroupInternal, Status: ledger.GroupDone, UserID: in.UserID}
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
