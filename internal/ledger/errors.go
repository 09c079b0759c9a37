package ledger

import "errors"

// Error kinds and the policy each one carries, per the engine's error
// handling design: idempotent replays and caller-reportable rejections
// leave no state change; invariant violations abort the enclosing scope.
var (
	ErrNotFound              = errors.New("ledger: not found")
	ErrConflict              = errors.New("ledger: conflict")
	ErrInsufficientFunds     = errors.New("ledger: insufficient funds")
	ErrInsufficientLiquidity = errors.New("ledger: insufficient liquidity")
	ErrRateExpired           = errors.New("ledger: rate expired")
	ErrUnknownAccount        = errors.New("ledger: unknown account")
	ErrCurrencyMismatch      = errors.New("ledger: currency mismatch")
	ErrInvalidArgument       = errors.New("ledger: invalid argument")
	ErrInvariantViolation    = errors.New("ledger: invariant violation")
	ErrSuspended             = errors.New("ledger: mutations suspended")
	ErrIllegalTransition     = errors.New("ledger: illegal group status transition")
)
