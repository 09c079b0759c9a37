package ledger

import "github.com/shopspring/decimal"

// Contribution returns the signed effect one transaction leg has on an
// account's balance. Dr accounts are debit-normal (they mirror a blockchain
// wallet: value arriving at the address increases them), Cr accounts are
// credit-normal (a claim against the custodian, increased by a credit).
// isDrSide reports whether accountID occupies the dr_account_id column of
// the transaction being applied.
func Contribution(kind AccountKind, isDrSide bool, value decimal.Decimal) decimal.Decimal {
	positive := (isDrSide && kind == KindDr) || (!isDrSide && kind == KindCr)
	if positive {
		return value
	}
	return value.Neg()
}
