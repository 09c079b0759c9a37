// Package store implements the Ledger Store: the transactional persistence
// layer over accounts, transactions, transaction groups, seen blockchain
// hashes, pending blockchain submissions, and the key/value journal.
//
// All mutating operations must run inside the scope opened by WithTx; the
// non-negative-balance check (I2) and the uniqueness constraints are
// enforced against live balances computed within that scope, never against
// a possibly-stale cached column.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"ledgercore/internal/ledger"
)

// TxFunc is the unit of work a mutating Store operation runs inside. A Store
// implementation carries any transaction handle it needs in the ctx passed
// to the callback.
type TxFunc func(ctx context.Context) error

// Store is the interface every engine component depends on. store.Postgres
// is the production implementation; store.Memory backs unit tests, in the
// teacher's "MemoryRepo ... not intended for production" tradition.
type Store interface {
	// WithTx runs fn atomically. Nested calls reuse the outer scope.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateAccountPair(ctx context.Context, userID, currency, address, name string) (dr, cr ledger.Account, err error)
	// CreateAccount creates a single, unpaired account, for bootstrapping
	// the named system accounts (system-liquidity-dr/cr, system-fees-cr)
	// that don't share a human deposit address with a counterpart.
	CreateAccount(ctx context.Context, userID, currency, address, name string, kind ledger.AccountKind) (ledger.Account, error)
	GetAccount(ctx context.Context, id string) (ledger.Account, error)
	ListAccountsByAddress(ctx context.Context, address string) ([]ledger.Account, error)
	FindSystemAccount(ctx context.Context, currency, tag string) (ledger.Account, error)
	ListSystemDrAccounts(ctx context.Context, currency string) ([]ledger.Account, error)

	// LockAccounts takes FOR-UPDATE-equivalent locks on the given accounts,
	// in ascending account-id order, and returns their live balances.
	LockAccounts(ctx context.Context, ids []string) (map[string]decimal.Decimal, error)
	Balance(ctx context.Context, accountID string) (decimal.Decimal, error)
	RebuildBalance(ctx context.Context, accountID string) (decimal.Decimal, error)

	// InsertTransactions inserts the group and its 1-4 leaf transactions
	// atomically. It rejects the whole batch (ledger.ErrInsufficientFunds)
	// if any resulting balance would go negative.
	InsertTransactions(ctx context.Context, group ledger.TransactionGroup, txs []ledger.Transaction) error
	AppendTransaction(ctx context.Context, groupID string, tx ledger.Transaction) error
	GetGroup(ctx context.Context, id string) (ledger.TransactionGroup, []ledger.Transaction, error)
	FindGroupByIdempotencyKey(ctx context.Context, key string) (ledger.TransactionGroup, []ledger.Transaction, bool, error)
	UpdateGroupStatus(ctx context.Context, groupID string, status ledger.GroupStatus, blockchainTxHash string) error
	// BindBlockchainHash attaches the broadcast hash to a still-pending
	// group once the signing collaborator has submitted it (spec.md §4.3
	// case 3: "blockchain-tx-hash bound after signing collaborator returns
	// it"). Unlike UpdateGroupStatus, this does not change group status.
	BindBlockchainHash(ctx context.Context, groupID, hash string) error
	FindPendingByHash(ctx context.Context, hash string) ([]ledger.TransactionGroup, error)

	RecordObserved(ctx context.Context, tx ledger.BlockchainTransaction) (alreadySeen bool, err error)
	InsertStrange(ctx context.Context, tx ledger.StrangeBlockchainTransaction) error
	InsertPendingSubmission(ctx context.Context, p ledger.PendingBlockchainTransaction) error

	GetKV(ctx context.Context, key string) (ledger.KeyValue, bool, error)
	PutKV(ctx context.Context, key string, value []byte, now time.Time) error
	ListKVPrefix(ctx context.Context, prefix string) ([]ledger.KeyValue, error)

	// SumBalances returns Σbalance(Dr, currency) and Σbalance(Cr, currency),
	// for the I3 / report.BalanceSheet cross-check.
	SumBalances(ctx context.Context, currency string) (drTotal, crTotal decimal.Decimal, err error)

	// ListAccountsBelowZero is the Invariant Auditor's self-contained I2
	// re-check: every account balance is already enforced non-negative at
	// insert time, so a non-empty result here means the insert-time check
	// was bypassed or live data has diverged from a rebuilt balance.
	ListAccountsBelowZero(ctx context.Context, currency string) ([]ledger.Account, error)
}
