// Package scheduler implements the Deferred Scheduler: deferred intents
// that wait on a time or balance condition before being submitted through
// the Builder (spec.md §4.5).
package scheduler

import (
	"time"

	"github.com/shopspring/decimal"

	"ledgercore/internal/ledger/builder"
)

// ConditionKind distinguishes the two deferral conditions spec.md §4.5
// names: a fixed point in time, or a balance threshold on an account.
type ConditionKind string

const (
	ConditionTime    ConditionKind = "time"
	ConditionBalance ConditionKind = "balance"
)

// BalanceOp is the comparison a balance condition evaluates.
type BalanceOp string

const (
	OpGTE BalanceOp = "gte"
	OpLTE BalanceOp = "lte"
)

// Condition is satisfied either once At has passed (time) or once Account's
// balance compares against Threshold per Op (balance).
type Condition struct {
	Kind      ConditionKind
	At        time.Time
	Account   string
	Currency  string
	Op        BalanceOp
	Threshold decimal.Decimal
}

// Status is the deferred record's lifecycle state (spec.md §4.5).
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusFired     Status = "fired"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Record is a deferred intent: id, pending intent, condition, optional
// expiry, status. Persisted in the KeyValue journal keyed by deferred id
// (keyPrefix + ID).
type Record struct {
	ID        string
	Intent    builder.Intent
	Condition Condition

	// ExpiresAt, if set, is the point past which the record is abandoned
	// in favor of ExpiryIntent rather than fired.
	ExpiresAt *time.Time

	// ExpiryIntent, if set, is submitted through the Builder when the
	// record expires before its condition is satisfied (typically a
	// refund via the dual intent, spec.md §4.5).
	ExpiryIntent *builder.Intent

	Status Status

	CreatedAt time.Time
	UpdatedAt time.Time
}

const keyPrefix = "scheduler:deferred:"

func keyFor(id string) string { return keyPrefix + id }
