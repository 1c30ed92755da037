package dto

import (
	"time"

	"github.com/socialblog/auth-service/internal/auth/domain"
)

type UserOutput struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FullName    *string    `json:"fullName"`
	RoleID      int        `json:"roleId"`
	RoleName    string     `json:"roleName,omitempty"`
	LockedAt    *time.Time `json:"lockedAt"`
	LockedUntil *time.Time `json:"lockedUntil"`
	LockReason  *string    `json:"lockReason"`
	LockedBy    *int64     `json:"lockedBy"`
	LastLoginAt *time.Time `json:"lastLoginAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// NewUserOutput strips credential material from an account.
func NewUserOutput(a *domain.Account) UserOutput {
	return UserOutput{
		ID:          a.ID,
		Username:    a.Username,
		Email:       a.Email,
		FullName:    a.FullName,
		RoleID:      a.RoleID,
		RoleName:    a.RoleName,
		LockedAt:    a.LockedAt,
		LockedUntil: a.LockedUntil,
		LockReason:  a.LockReason,
		LockedBy:    a.LockedBy,
		LastLoginAt: a.LastLoginAt,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

// Identity is what the session middleware attaches to a request.
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	RoleID   int    `json:"roleId"`
}

type SessionStatusResponse struct {
	Authenticated bool      `json:"authenticated"`
	User          *Identity `json:"user,omitempty"`
}

type LockInput struct {
	LockedUntil time.Time `json:"lockedUntil" validate:"required"`
	LockReason  string    `json:"lockReason" validate:"required,max=500"`
}

type AuditEntryOutput struct {
	ID        string    `json:"id"`
	UserID    *int64    `json:"userId"`
	Email     string    `json:"email,omitempty"`
	Action    string    `json:"action"`
	IPAddress string    `json:"ip"`
	MaskedIP  string    `json:"maskedIp"`
	UserAgent string    `json:"userAgent,omitempty"`
	Status    string    `json:"status"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"timestamp"`
}

func NewAuditEntryOutput(e domain.AuditEntry) AuditEntryOutput {
	return AuditEntryOutput{
		ID:        e.ID,
		UserID:    e.UserID,
		Email:     e.Email,
		Action:    e.Action,
		IPAddress: e.IPAddress,
		MaskedIP:  e.MaskedIP,
		UserAgent: e.UserAgent,
		Status:    e.Status,
		Details:   e.Details,
		CreatedAt: e.CreatedAt,
	}
}
