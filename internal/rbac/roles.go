// Package rbac names the privileged roles the Builder consults when an
// intent claims operator authority (spec.md §4.3 case 5: "Fee adjust /
// manual correction (operator only)").
package rbac

const (
	RoleOperator   = "operator"
	RoleFinance    = "finance"
	RoleSuperAdmin = "super_admin"
)

// IsOperator reports whether role is allowed to submit operator-only
// intents (fee-adjust / manual correction).
func IsOperator(role string) bool {
	switch role {
	case RoleOperator, RoleFinance, RoleSuperAdmin:
		return true
	default:
		return false
	}
}
