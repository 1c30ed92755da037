package domain

//go:generate mockgen -destination=../../mocks/mock_domain.go -package=mocks github.com/socialblog/auth-service/internal/auth/domain UserRepository,Mailer,AuditLog,LoginLimiter,CaptchaVerifier,AuditRepository

import (
	"context"
	"time"
)

// Lookups return (nil, nil) when the row does not exist.
type AccountRepository interface {
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
	GetByID(ctx context.Context, id int64) (*Account, error)
	Create(ctx context.Context, account *Account) error
	UpdateAccount(ctx context.Context, id int64, update AccountUpdate) error
	Lock(ctx context.Context, id int64, lock AccountLock) (bool, error)
	Unlock(ctx context.Context, id int64) (bool, error)
}

type ChallengeRepository interface {
	CreateChallenge(ctx context.Context, challenge *PendingLoginChallenge) error
	GetChallengeByToken(ctx context.Context, token string) (*PendingLoginChallenge, error)
	// DeleteChallenge reports whether a row was removed.
	DeleteChallenge(ctx context.Context, id string) (bool, error)
}

type RefreshTokenRepository interface {
	StoreRefreshToken(ctx context.Context, rt *RefreshToken) error
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, token string) error
}

type AuditRepository interface {
	RecordAuditEntry(ctx context.Context, entry *AuditEntry) error
	QueryAuditEntries(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type UserRepository interface {
	AccountRepository
	ChallengeRepository
	RefreshTokenRepository
}

type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// AuditLog is an append-only sink of authentication events.
type AuditLog interface {
	Record(ctx context.Context, entry AuditEntry) error
	Query(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type LoginLimiter interface {
	Allow(ctx context.Context, email, ip string) error
	Fail(ctx context.Context, email, ip string) error
	Reset(ctx context.Context, email, ip string) error
}

type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

type Clock func() time.Time
