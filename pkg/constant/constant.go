package constant

import "time"

// Role ids as seeded in the roles table.
const (
	RoleAdmin     = 1
	RoleModerator = 2
	RoleUser      = 3

	DefaultUserRoleID = RoleUser
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"

	// IdentityLocalsKey is the fiber Locals key holding the authenticated identity.
	IdentityLocalsKey = "identity"
)

const (
	TokenIssuer     = "socialblog-auth"
	AccessAudience  = "access"
	RefreshAudience = "refresh"
)

const (
	DefaultChallengeTTL = 5 * time.Minute
	RiskWindow          = 30 * 24 * time.Hour

	VerifyActionApprove = "approve"
	VerifyActionReject  = "reject"
)

// Audit actions and statuses.
const (
	AuditActionRegister = "register"
	AuditActionLogin    = "login"
	AuditAction2FA      = "2fa"
	AuditActionRefresh  = "refresh"
	AuditActionLogout   = "logout"
	AuditActionLock     = "lock"
	AuditActionUnlock   = "unlock"

	AuditStatusSuccess = "success"
	AuditStatusFailed  = "failed"
	AuditStatusPending = "pending"
)
