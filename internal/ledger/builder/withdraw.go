package builder

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"ledgercore/internal/ledger"
	"ledgercore/pkg/utils"
)

// withdraw selects enough system Dr accounts to cover the payout value,
// reserves the expected fee separately out of the user's claim, and leaves
// the group pending until the chain submission confirms (spec.md §4.3
// case 3). Once the group is committed, withdraw itself hands the broadcast
// to the Signer collaborator (when one is configured) and binds the returned
// hash to the group; ConfirmWithdrawal settles it.
func (b *Builder) withdraw(ctx context.Context, in Intent) (Result, error) {
	if in.FromAccount == "" || in.ToAddress == "" {
		return Result{}, ledger.ErrInvalidArgument
	}

	src, err := b.Store.GetAccount(ctx, in.FromAccount)
	if err != nil {
		return Result{}, err
	}
	if src.Kind != ledger.KindCr || src.UserID != in.UserID {
		return Result{}, ledger.ErrInvalidArgument
	}
	currency := src.Currency

	candidates, err := b.Store.ListSystemDrAccounts(ctx, currency)
	if err != nil {
		return Result{}, err
	}

	remaining := in.Value
	var legs []ledger.Transaction
	var sourceAddress string // address of the first Dr wallet drawn down, used for the broadcast
	for _, dr := range candidates {
		if remaining.Sign() <= 0 {
			break
		}
		if len(legs) >= 3 { // leave room for the fee-reserve leg, cap at 4 total
			break
		}
		if dr.Balance.Sign() <= 0 {
			continue
		}
		amount := dr.Balance
		if amount.GreaterThan(remaining) {
			amount = remaining
		}
		tx := newTx(in.ID, src.ID, dr.ID, currency, amount)
		legs = append(legs, tx)
		remaining = remaining.Sub(amount)
		if sourceAddress == "" {
			sourceAddress = dr.Address
		}
	}
	if remaining.Sign() > 0 {
		return Result{}, ledger.ErrInsufficientLiquidity
	}

	if in.ExpectedFee.Sign() > 0 {
		feesAcc, err := b.Store.FindSystemAccount(ctx, currency, ledger.TagSystemFeesCr)
		if err != nil {
			return Result{}, err
		}
		legs = append(legs, newTx(in.ID, src.ID, feesAcc.ID, currency, in.ExpectedFee))
	}

	ids := []string{src.ID}
	for _, tx := range legs {
		ids = append(ids, tx.CrAccountID)
	}

	var out Result
	err = b.Store.WithTx(ctx, func(ctx context.Context) error {
		if _, err := b.Store.LockAccounts(ctx, ids); err != nil {
			return err
		}
		group := ledger.TransactionGroup{ID: in.ID, Kind: ledger.GroupWithdrawal, Status: ledger.GroupPending, UserID: in.UserID}
		if err := b.Store.InsertTransactions(ctx, group, legs); err != nil {
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

	// Submitting to the chain is an outbound RPC (spec.md §5: a suspension
	// point outside any held lock). A TransientCollaboratorFailure here
	// leaves the group pending for the Reconciler to pick up later
	// (spec.md §7); it is not fatal to this call.
	if b.Signer != nil {
		pb := ledger.PendingBlockchainTransaction{From: sourceAddress, To: in.ToAddress, Currency: currency, Value: in.Value, Fee: in.ExpectedFee}
		var hash string
		signErr := utils.Retry(ctx, utils.RetryConfig{}, func() error {
			h, err := b.Signer.SignAndSubmit(ctx, pb)
			if err != nil {
				return err
			}
			hash = h
			return nil
		})
		if signErr == nil {
			_ = b.Store.InsertPendingSubmission(ctx, pb)
			if err := b.Store.BindBlockchainHash(ctx, out.Group.ID, hash); err == nil {
				out.Group.BlockchainTxHash = hash
			}
		}
	}

	return out, nil
}

// ConfirmWithdrawal settles a pending withdrawal once the chain submission
// has confirmed. It appends the actual-fee settlement leg (drawn from the
// fee reserve into the Dr wallet that paid the real network fee) and
// advances the group to done (spec.md §4.3 case 3, §8 scenario 4).
func (b *Builder) ConfirmWithdrawal(ctx context.Context, groupID, chainHash string, actualFee decimal.Decimal) (Result, error) {
	var out Result
	err := b.Store.WithTx(ctx, func(ctx context.Context) error {
		g, txs, err := b.Store.GetGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if g.Kind != ledger.GroupWithdrawal || g.Status != ledger.GroupPending {
			return ledger.ErrIllegalTransition
		}

		var feesAccountID, chosenDrID string
		for _, tx := range txs {
			cr, err := b.Store.GetAccount(ctx, tx.CrAccountID)
			if err != nil {
				return err
			}
			if cr.Name == ledger.TagSystemFeesCr {
				feesAccountID = cr.ID
			} else if cr.Kind == ledger.KindDr && chosenDrID == "" {
				chosenDrID = cr.ID
			}
		}

		if actualFee.Sign() > 0 && feesAccountID != "" && chosenDrID != "" {
			if _, err := b.Store.LockAccounts(ctx, []string{feesAccountID, chosenDrID}); err != nil {
				return err
			}
			settlement := newTx(groupID, feesAccountID, chosenDrID, txs[0].Currency, actualFee)
			settlement.Status = ledger.TxDone
			if err := b.Store.AppendTransaction(ctx, groupID, settlement); err != nil {
				if !errors.Is(err, ledger.ErrInsufficientFunds) {
					return err
				}
				// Fees reserve can't cover the real network fee (spec.md §4.3
				// case 3: "if insufficient, the group still completes but I5
				// alert fires"). Settle nothing and let the operator top up.
				if b.Audit != nil {
					_ = b.Audit.LogLiquidityAlert(ctx, feesAccountID, txs[0].Currency, "fees reserve insufficient to settle actual fee for group "+groupID)
				}
			}
		}

		if err := b.Store.UpdateGroupStatus(ctx, groupID, ledger.GroupDone, chainHash); err != nil {
			return err
		}
		g, txs, err = b.Store.GetGroup(ctx, groupID)
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
