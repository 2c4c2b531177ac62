package models

// PrincipalKind distinguishes session users from external systems
type PrincipalKind string

// Principal kinds
const (
	PrincipalUser     PrincipalKind = "user"
	PrincipalExternal PrincipalKind = "external"
)

// Principal is the authenticated caller attached to a request
type Principal struct {
	Kind PrincipalKind

	// Session users
	UserID   int
	Username string
	Email    string
	Role     UserRole

	// External systems
	SystemID    int
	SystemName  string
	APIKeyID    int
	Permissions []string
	// RateLimit is the system's budget in requests per minute; 0 is unlimited
	RateLimit int
}

// IsUser reports whether the principal is a session user
func (p *Principal) IsUser() bool {
	return p != nil && p.Kind == PrincipalUser
}

// IsExternal reports whether the principal is an external system
func (p *Principal) IsExternal() bool {
	return p != nil && p.Kind == PrincipalExternal
}

// IsAdmin reports whether the principal is an admin user
func (p *Principal) IsAdmin() bool {
	return p.IsUser() && p.Role == RoleAdmin
}

// Actor returns the lifecycle actor for this principal
func (p *Principal) Actor() Actor {
	switch {
	case p.IsUser():
		return UserActor(p.UserID, p.Username)
	case p.IsExternal():
		return SystemActor("system:" + p.SystemName)
	default:
		return SystemActor("anonymous")
	}
}

// Action is a capability checked before an operation runs
type Action string

// Actions understood by the capability check. External permissions share the
// same namespace, so feedback:submit and feedback:query are actions too.
const (
	ActionFeedbackCreate  Action = "feedback:create"
	ActionFeedbackRead    Action = "feedback:read"
	ActionFeedbackComment Action = "feedback:comment"
	ActionFeedbackManage  Action = "feedback:manage"
	ActionProfileManage   Action = "profile:manage"
	ActionCategoryRead    Action = "category:read"
	ActionCategoryManage  Action = "category:manage"
	ActionUserManage      Action = "user:manage"
	ActionSystemManage    Action = "system:manage"
	ActionFeedbackSubmit  Action = PermissionFeedbackSubmit
	ActionFeedbackQuery   Action = PermissionFeedbackQuery
)
