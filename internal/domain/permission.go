package domain

// ============================================================
// Permission matrix
// ============================================================

// Resource is a gated area of the dashboard.
type Resource string

const (
	ResourceDashboard   Resource = "dashboard"
	ResourceDemands     Resource = "demands"
	ResourceCalendar    Resource = "calendar"
	ResourceReports     Resource = "reports"
	ResourceUsers       Resource = "users"
	ResourceSettings    Resource = "settings"
	ResourcePermissions Resource = "permissions"
	ResourceLogs        Resource = "logs"
)

// KnownResources is the set every role must have a matrix row for.
var KnownResources = []Resource{
	ResourceDashboard,
	ResourceDemands,
	ResourceCalendar,
	ResourceReports,
	ResourceUsers,
	ResourceSettings,
	ResourcePermissions,
	ResourceLogs,
}

// Action is what a role wants to do on a resource.
type Action string

const (
	ActionView   Action = "view"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	return a == ActionView || a == ActionEdit || a == ActionDelete
}

// RolePermission is one row of the role_permissions table, unique on
// (role, resource).
type RolePermission struct {
	ID        string   `json:"id,omitempty"`
	Role      string   `json:"role"`
	Resource  Resource `json:"resource"`
	CanView   bool     `json:"can_view"`
	CanManage bool     `json:"can_manage"`
	CanDelete bool     `json:"can_delete"`
}

// PermissionSet is the in-memory form of a matrix row.
type PermissionSet struct {
	View   bool `json:"view"`
	Edit   bool `json:"edit"`
	Delete bool `json:"delete"`
}

// Allows reports whether the set grants a.
func (p PermissionSet) Allows(a Action) bool {
	switch a {
	case ActionView:
		return p.View
	case ActionEdit:
		return p.Edit
	case ActionDelete:
		return p.Delete
	}
	return false
}

// Set returns the row flags as a PermissionSet.
func (r RolePermission) Set() PermissionSet {
	return PermissionSet{View: r.CanView, Edit: r.CanManage, Delete: r.CanDelete}
}

// PermissionMatrix is the resolved matrix for one role.
type PermissionMatrix struct {
	Role      string                      `json:"role"`
	IsAdmin   bool                        `json:"is_admin"`
	Resources map[Resource]PermissionSet `json:"resources"`
}

// Admin roles bypass the matrix entirely.
var adminRoles = map[string]bool{
	"admin":         true,
	"administrador": true,
	"superadmin":    true,
}

// MaxPermissionLevel is the top tier of the legacy numeric level.
const MaxPermissionLevel = 3

// IsAdminRole reports whether role (any case) is administrative.
func IsAdminRole(role string) bool {
	return adminRoles[NormalizeRole(role)]
}

// EffectiveRole returns the authoritative role of a session. The legacy
// permission level only maps to admin when no role was ever assigned.
func EffectiveRole(role string, permissionLevel int) string {
	r := NormalizeRole(role)
	if r == "" && permissionLevel >= MaxPermissionLevel {
		return "admin"
	}
	return r
}
