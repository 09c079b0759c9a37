// Package ledger defines the entities shared by every engine component:
// accounts, transactions, transaction groups, and the blockchain-observation
// records the reconciler consumes and produces.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountKind distinguishes the two sides of every account pair.
// A Dr account mirrors a payment-system-controlled blockchain wallet;
// a Cr account represents a user's (or the system's) claim to funds.
type AccountKind string

const (
	KindDr AccountKind = "dr"
	KindCr AccountKind = "cr"
)

// Well-known system account name tags, present in every supported currency.
const (
	TagSystemLiquidityCr = "system-liquidity-cr"
	TagSystemLiquidityDr = "system-liquidity-dr"
	TagSystemFeesCr      = "system-fees-cr"
)

type Account struct {
	ID        string
	UserID    string
	Currency  string
	Address   string
	Name      string
	Kind      AccountKind
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxDone      TransactionStatus = "done"
	TxCancelled TransactionStatus = "cancelled"
)

// Transaction is the atomic leaf ledger entry. It is owned exclusively by
// its TransactionGroup and never outlives it as a standalone mutation unit.
type Transaction struct {
	ID          string
	GroupID     string
	DrAccountID string
	CrAccountID string
	Currency    string
	Value       decimal.Decimal
	Status      TransactionStatus
	HoldUntil   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type GroupKind string

const (
	GroupDeposit    GroupKind = "deposit"
	GroupWithdrawal GroupKind = "withdrawal"
	GroupInternal   GroupKind = "internal"
	GroupExchange   GroupKind = "exchange"
	GroupFeeAdjust  GroupKind = "fee-adjust"
)

type GroupStatus string

const (
	GroupPending   GroupStatus = "pending"
	GroupDone      GroupStatus = "done"
	GroupCancelled GroupStatus = "cancelled"
)

// TransactionGroup is the unit of user intent: an atomic bundle of 1-4
// ledger transactions. Membership never changes after commit.
type TransactionGroup struct {
	ID               string
	Kind             GroupKind
	Status           GroupStatus
	UserID           string
	BlockchainTxHash string
	TransactionIDs   []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// BlockchainTransaction is an observed, confirmed on-chain event.
type BlockchainTransaction struct {
	Hash          string
	From          string
	To            string
	Currency      string
	Value         decimal.Decimal
	Fee           decimal.Decimal
	BlockNumber   int64
	Confirmations int
	ObservedAt    time.Time
}

// PendingBlockchainTransaction is an outbound transaction awaiting inclusion.
type PendingBlockchainTransaction struct {
	Hash     string
	From     string
	To       string
	Currency string
	Value    decimal.Decimal
	Fee      decimal.Decimal
}

// StrangeBlockchainTransaction is an observed event the reconciler could not
// reconcile against any account or pending group.
type StrangeBlockchainTransaction struct {
	BlockchainTransaction
	Commentary string
	CreatedAt  time.Time
}

// SeenHash guards idempotent ingestion of observed transactions.
type SeenHash struct {
	Hash        string
	BlockNumber int64
	Currency    string
}

// KeyValue is the typed journal used for scheduler state, the global
// suspend flag, and other low-contention coordination state. Value holds
// opaque JSON; callers marshal/unmarshal their own shape.
type KeyValue struct {
	Key       string
	Value     []byte
	UpdatedAt time.Time
}

const KeySuspendMutations = "suspend_mutations"

func SystemAccountTag(kind AccountKind) string {
	if kind == KindDr {
		return TagSystemLiquidityDr
	}
	return TagSystemLiquidityCr
}
