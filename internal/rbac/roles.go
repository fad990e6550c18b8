package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
//
// owner       - workspace owner; full control of the workspace.
// operator    - day-to-day staff; schedules calls, reviews sessions and tasks.
// analyst     - read-only reporting access.
// super_admin - platform staff; bypasses role checks (not workspace checks).
const (
	RoleOwner      = "owner"
	RoleOperator   = "operator"
	RoleAnalyst    = "analyst"
	RoleSuperAdmin = "super_admin"
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }
