package builder

import (
	"context"

	"ledgercore/internal/ledger"
	"ledgercore/internal/ledger/rate"
)

// exchange converts value from one currency's system liquidity pool to
// another at a previously quoted rate (spec.md §4.3 case 4). It posts a
// rebalance request to the exchange collaborator once the group commits;
// the collaborator owns actually replenishing the pool.
func (b *Builder) exchange(ctx context.Context, in Intent) (Result, error) {
	if in.FromAccount == "" || in.ToAccount == "" || in.QuoteID == "" {
		return Result{}, ledger.ErrInvalidArgument
	}
	if b.Rates == nil {
		return Result{}, ledger.ErrInvalidArgument
	}

	q, err := b.Rates.Lookup(ctx, in.QuoteID)
	if err != nil {
		return Result{}, err
	}
	if q.Expired(b.now()) {
		return Result{}, ledger.ErrRateExpired
	}
	if q.Src != in.FromCurrency || q.Dst != in.ToCurrency {
		return Result{}, ledger.ErrCurrencyMismatch
	}

	src, err := b.Store.GetAccount(ctx, in.FromAccount)
	if err != nil {
		return Result{}, err
	}
	if src.Kind != ledger.KindCr || src.UserID != in.UserID || src.Currency != in.FromCurrency {
		return Result{}, ledger.ErrInvalidArgument
	}
	dst, err := b.Store.GetAccount(ctx, in.ToAccount)
	if err != nil {
		return Result{}, err
	}
	if dst.Kind != ledger.KindCr || dst.UserID != in.UserID || dst.Currency != in.ToCurrency {
		return Result{}, ledger.ErrInvalidArgument
	}

	liquiditySrc, err := b.Store.FindSystemAccount(ctx, in.FromCurrency, ledger.TagSystemLiquidityCr)
	if err != nil {
		return Result{}, err
	}
	liquidityDst, err := b.Store.FindSystemAccount(ctx, in.ToCurrency, ledger.TagSystemLiquidityCr)
	if err != nil {
		return Result{}, err
	}

	dstValue := in.Value.Mul(q.Rate)

	var out Result
	err = b.Store.WithTx(ctx, func(ctx context.Context) error {
		if _, err := b.Store.LockAccounts(ctx, []string{src.ID, liquiditySrc.ID, liquidityDst.ID, dst.ID}); err != nil {
			return err
		}
		txOut := newTx(in.ID, src.ID, liquiditySrc.ID, in.FromCurrency, in.Value)
		txOut.Status = ledger.TxDone
		txIn := newTx(in.ID, liquidityDst.ID, dst.ID, in.ToCurrency, dstValue)
		txIn.Status = ledger.TxDone
		group := ledger.TransactionGroup{ID: in.ID, Kind: ledger.GroupExchange, Status: ledger.GroupDone, UserID: in.UserID}
		if err := b.Store.InsertTransactions(ctx, group, []ledger.Transaction{txOut, txIn}); err != nil {
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

	if b.Exchange != nil {
		_ = b.Exchange.RequestRebalance(ctx, rate.RebalanceRequest{
			Currency: in.ToCurrency, Account: liquidityDst.ID, Requested: dstValue,
			Reason: "exchange drawdown " + in.ID,
		})
	}
	return out, nil
}
