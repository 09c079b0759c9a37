package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - actor and ip capture are best-effort; do not block critical flows on audit failures.
//
// Storage recommendation (Postgres):
// - Table audit_events with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.
// - Optional: partition by time for retention.

type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event (if applicable).
	// Empty for events the engine itself raises (invariant violations, strange
	// transactions) rather than a human action.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	// ActorRole may include hidden roles.
	ActorRole string `json:"actor_role,omitempty" db:"actor_role"`

	// IPAddress should capture the original client IP when available.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// Target identifiers (optional, depending on the event type).
	GroupID   string `json:"group_id,omitempty" db:"group_id"`
	AccountID string `json:"account_id,omitempty" db:"account_id"`
	Currency  string `json:"currency,omitempty" db:"currency"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	// EventTypeAdminAction records an operator-only fee-adjust / manual
	// correction intent (spec.md §4.3 case 5).
	EventTypeAdminAction EventType = "admin_action"
	// EventTypeInvariantViolation records an Invariant Auditor failure
	// (I1-I3); AccountID/Currency identify what failed.
	EventTypeInvariantViolation EventType = "invariant_violation"
	// EventTypeStrangeTransaction records an observed blockchain event the
	// Reconciler could not match to any account or pending group.
	EventTypeStrangeTransaction EventType = "strange_transaction"
	// EventTypeLiquidityAlert records the Liquidity Monitor finding a
	// system account below its configured floor.
	EventTypeLiquidityAlert EventType = "liquidity_alert"
	// EventTypeRebalanceRequested records a rebalance request posted to the
	// exchange collaborator.
	EventTypeRebalanceRequested EventType = "rebalance_requested"
	// EventTypeDeferredExpired records a Deferred Scheduler record that
	// expired before its condition was satisfied.
	EventTypeDeferredExpired EventType = "deferred_expired"
)
