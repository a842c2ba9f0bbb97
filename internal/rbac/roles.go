package rbac

// Role names. Keep these stable; they are embedded in issued tokens.
const (
	RoleManager     = "manager"
	RoleOperator    = "operator"
	RoleSuperAdmin  = "super_admin"
	RoleIntegration = "integration" // hidden role
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

func IsHiddenRole(role string) bool { return role == RoleIntegration }

// Known reports whether role is one this service issues tokens for.
func Known(role string) bool {
	switch role {
	case RoleManager, RoleOperator, RoleSuperAdmin, RoleIntegration:
		return true
	}
	return false
}
