// Package builder implements the Transaction Group Builder: it accepts a
// typed intent, validates it, constructs 1-4 ledger transactions, and
// commits them atomically through the Ledger Store. Every intent carries a
// client-supplied id used both as the TransactionGroup id and as the
// idempotency key (spec.md §4.3).
package builder

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"ledgercore/internal/audit"
	"ledgercore/internal/ledger"
	"ledgercore/internal/ledger/rate"
	"ledgercore/internal/ledger/store"
	"ledgercore/internal/rbac"
	"ledgercore/pkg/bus"
)

// Signer is the keystore/transaction-signing collaborator (out of scope
// per spec.md §1): given a pending withdrawal it returns the broadcast
// hash once it has signed and submitted the underlying chain transaction.
type Signer interface {
	SignAndSubmit(ctx context.Context, pb ledger.PendingBlockchainTransaction) (hash string, err error)
}

// Builder constructs and commits transaction groups.
type Builder struct {
	Store    store.Store
	Rates    rate.Source
	Exchange rate.ExchangeClient
	Signer   Signer
	Events   bus.Publisher
	Audit    *audit.Service

	Clock func() time.Time
}

func New(s store.Store, rates rate.Source, exchange rate.ExchangeClient, signer Signer, events bus.Publisher, auditSvc *audit.Service) *Builder {
	return &Builder{Store: s, Rates: rates, Exchange: exchange, Signer: signer, Events: events, Audit: auditSvc, Clock: time.Now}
}

func (b *Builder) now() time.Time { return b.Clock().UTC() }

// IntentKind is the tag of the variant the Builder dispatches on.
type IntentKind string

const (
	IntentDeposit  IntentKind = "deposit"
	IntentInternal IntentKind = "internal"
	IntentWithdraw IntentKind = "withdrawal"
	IntentExchange IntentKind = "exchange"
	IntentFeeAdj   IntentKind = "fee-adjust"
)

// Intent is the normalised inbound request contract from spec.md §6:
// {id, user_id, kind, from?, to?, to_type, from_currency, to_currency,
// value, fee?}. Id is the idempotency key.
type Intent struct {
	ID           string
	UserID       string
	Kind         IntentKind
	FromAccount  string
	ToAccount    string
	ToAddress    string
	FromCurrency string
	ToCurrency   string
	Value        decimal.Decimal
	ExpectedFee  decimal.Decimal

	// Deposit-only: the observed blockchain transaction being credited.
	Observed *ledger.BlockchainTransaction

	// Exchange-only: a quote obtained from rate.Source.Quote beforehand.
	QuoteID string

	// FeeAdjust-only.
	OperatorRole string
	Reason       string
}

// Result is what Submit returns: the committed (or replayed) group and its
// leaf transactions.
type Result struct {
	Group        ledger.TransactionGroup
	Transactions []ledger.Transaction
	Replayed     bool
}

// Submit dispatches an intent to its handler. Idempotency: if a group with
// intent.ID already exists, its prior outcome is returned unchanged and no
// new mutation happens (ledger.ErrIllegalTransition never surfaces to a
// well-behaved caller that reuses an id only for retries).
func (b *Builder) Submit(ctx context.Context, in Intent) (Result, error) {
	if in.ID == "" || in.UserID == "" {
		return Result{}, ledger.ErrInvalidArgument
	}
	// Deposit carries its value inside Observed, not Value; deposit() checks
	// it directly.
	if in.Kind != IntentDeposit && in.Value.Sign() <= 0 {
		return Result{}, ledger.ErrInvalidArgument
	}

	if suspended, err := b.suspended(ctx); err != nil {
		return Result{}, err
	} else if suspended {
		return Result{}, ledger.ErrSuspended
	}

	if g, txs, ok, err := b.Store.FindGroupByIdempotencyKey(ctx, in.ID); err != nil {
		return Result{}, err
	} else if ok {
		return Result{Group: g, Transactions: txs, Replayed: true}, nil
	}

	switch in.Kind {
	case IntentDeposit:
		return b.deposit(ctx, in)
	case IntentInternal:
		return b.internalTransfer(ctx, in)
	case IntentWithdraw:
		return b.withdraw(ctx, in)
	case IntentExchange:
		return b.exchange(ctx, in)
	case IntentFeeAdj:
		return b.feeAdjust(ctx, in)
	default:
		return Result{}, ledger.ErrInvalidArgument
	}
}

func (b *Builder) suspended(ctx context.Context) (bool, error) {
	kv, ok, err := b.Store.GetKV(ctx, ledger.KeySuspendMutations)
	if err != nil || !ok {
		return false, err
	}
	return len(kv.Value) > 0 && string(kv.Value) == "true", nil
}

func newTx(groupID, dr, cr, currency string, value decimal.Decimal) ledger.Transaction {
	return ledger.Transaction{
		ID: newID(), GroupID: groupID, DrAccountID: dr, CrAccountID: cr,
		Currency: currency, Value: value, Status: ledger.TxPending,
	}
}

func (b *Builder) publish(ctx context.Context, g ledger.TransactionGroup) {
	if b.Events == nil {
		return
	}
	var ids []string
	if _, txs, err := b.Store.GetGroup(ctx, g.ID); err == nil {
		for _, tx := range txs {
			ids = append(ids, tx.DrAccountID, tx.CrAccountID)
		}
	}
	_ = b.Events.Publish(ctx, "ledger.group.committed", map[string]any{
		"group_id":    g.ID,
		"kind":        g.Kind,
		"status":      g.Status,
		"account_ids": ids,
	})
}

// feeAdjust is the operator-only manual correction (spec.md §4.3 case 5).
func (b *Builder) feeAdjust(ctx context.Context, in Intent) (Result, error) {
	if !rbac.IsOperator(in.OperatorRole) {
		return Result{}, ledger.ErrInvalidArgument
	}
	if in.Reason == "" || in.FromAccount == "" || in.ToAccount == "" {
		return Result{}, ledger.ErrInvalidArgument
	}

	var out Result
	err := b.Store.WithTx(ctx, func(ctx context.Context) error {
		if _, err := b.Store.LockAccounts(ctx, []string{in.FromAccount, in.ToAccount}); err != nil {
			return err
		}
		tx := newTx(in.ID, in.FromAccount, in.ToAccount, in.FromCurrency, in.Value)
		tx.Status = ledger.TxDone
		group := ledger.TransactionGroup{ID: in.ID, Kind: ledger.GroupFeeAdjust, Status: ledger.GroupDone, UserID: in.UserID}
		if err := b.Store.InsertTransactions(ctx, group, []ledger.Transaction{tx}); err != nil {
			return err
		}
		g, txs, err := b.Store.GetGroup(ctx, in.ID)
		if err != nil {
			return err
		}
		out = Result{Group: g, Transactions: txs}
		if b.Audit != nil {
			_ = b.Audit.LogAdminAction(ctx, in.UserID, in.OperatorRole, in.ID, "fee-adjust: "+in.Reason)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	b.publish(ctx, out.Group)
	return out, nil
}
