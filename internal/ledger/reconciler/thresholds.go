package reconciler

import "github.com/shopspring/decimal"

// confirmationRule is one USD-value breakpoint in a currency's confirmation
// threshold table (spec.md §4.4): a transaction worth less than Below USD
// needs Confirmations confirmations to become spendable.
type confirmationRule struct {
	Below         decimal.Decimal // exclusive upper bound; zero decimal means "no upper bound"
	Confirmations int
}

// confirmationTables is keyed by currency; rules are ordered ascending by
// Below so the first matching rule wins. The last rule in each table has a
// zero Below, meaning "else" (value ≥ every prior breakpoint).
var confirmationTables = map[string][]confirmationRule{
	"ETH": {
		{Below: decimal.RequireFromString("20"), Confirmations: 0},
		{Below: decimal.RequireFromString("50"), Confirmations: 1},
		{Below: decimal.RequireFromString("200"), Confirmations: 2},
		{Below: decimal.RequireFromString("500"), Confirmations: 3},
		{Below: decimal.RequireFromString("1000"), Confirmations: 4},
		{Below: decimal.RequireFromString("2000"), Confirmations: 5},
		{Below: decimal.RequireFromString("3000"), Confirmations: 6},
		{Below: decimal.RequireFromString("5000"), Confirmations: 8},
		{Confirmations: 12},
	},
	"BTC": {
		{Below: decimal.RequireFromString("100"), Confirmations: 0},
		{Below: decimal.RequireFromString("500"), Confirmations: 1},
		{Below: decimal.RequireFromString("1000"), Confirmations: 2},
		{Confirmations: 3},
	},
}

// requiredConfirmations looks up the confirmation threshold for usdValue in
// currency's table. An unrecognised currency conservatively requires the
// highest threshold in the ETH table, rather than defaulting to zero.
func requiredConfirmations(currency string, usdValue decimal.Decimal) int {
	rules, ok := confirmationTables[currency]
	if !ok {
		eth := confirmationTables["ETH"]
		return eth[len(eth)-1].Confirmations
	}
	for _, r := range rules {
		if r.Below.IsZero() {
			return r.Confirmations
		}
		if usdValue.LessThan(r.Below) {
			return r.Confirmations
		}
	}
	return rules[len(rules)-1].Confirmations
}
