package domain

import "time"

type Account struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	FullName     *string
	RoleID       int
	RoleName     string
	LockedAt     *time.Time
	LockedUntil  *time.Time
	LockReason   *string
	LockedBy     *int64
	LastLoginIP  *string
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsLocked reports whether the lock is still in force at now.
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// LockExpired reports whether a lock is recorded but no longer in force.
func (a *Account) LockExpired(now time.Time) bool {
	return a.LockedUntil != nil && !now.Before(*a.LockedUntil)
}

func (a *Account) ClearLock() {
	a.LockedAt = nil
	a.LockedUntil = nil
	a.LockReason = nil
	a.LockedBy = nil
}

type AccountLock struct {
	LockedBy    int64
	LockedAt    time.Time
	LockedUntil time.Time
	Reason      string
}

// AccountUpdate is a partial update; nil fields are left untouched.
type AccountUpdate struct {
	FullName    *string
	LastLoginIP *string
	LastLoginAt *time.Time
}

func (u AccountUpdate) IsEmpty() bool {
	return u.FullName == nil && u.LastLoginIP == nil && u.LastLoginAt == nil
}

// PendingLoginChallenge is an unresolved step-up verification.
type PendingLoginChallenge struct {
	ID                string
	UserID            int64
	Code              string
	Token             string
	IPAddress         string
	DeviceFingerprint string
	ExpiresAt         time.Time
	CreatedAt         time.Time
}

func (c *PendingLoginChallenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

type RefreshToken struct {
	ID        int64
	UserID    int64
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (t *RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

type AuditEntry struct {
	ID        string
	UserID    *int64
	Email     string
	Action    string
	IPAddress string
	MaskedIP  string
	UserAgent string
	Status    string
	Details   string
	CreatedAt time.Time
}

type AuditFilter struct {
	UserID *int64
	IP     string
	Action string
	Limit  int
}
