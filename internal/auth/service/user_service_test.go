package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/socialblog/auth-service/config"
	"github.com/socialblog/auth-service/internal/auth/domain"
	"github.com/socialblog/auth-service/internal/auth/dto"
	"github.com/socialblog/auth-service/internal/auth/service"
	autherror "github.com/socialblog/auth-service/internal/errors"
	"github.com/socialblog/auth-service/internal/mocks"
	authconstant "github.com/socialblog/auth-service/pkg/constant"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	repo    *mocks.MockUserRepository
	mailer  *mocks.MockMailer
	audit   *mocks.MockAuditLog
	limiter *mocks.MockLoginLimiter
	captcha *mocks.MockCaptchaVerifier
	tokens  *service.TokenService
	svc     *service.UserService
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	f := &fixture{
		repo:    mocks.NewMockUserRepository(ctrl),
		mailer:  mocks.NewMockMailer(ctrl),
		audit:   mocks.NewMockAuditLog(ctrl),
		limiter: mocks.NewMockLoginLimiter(ctrl),
		captcha: mocks.NewMockCaptchaVerifier(ctrl),
		now:     testNow,
	}
	clock := func() time.Time { return f.now }

	cfg := &config.Config{
		BcryptCost:         bcrypt.MinCost,
		ChallengeExpiryMin: 5,
		AppBaseURL:         "https://blog.example.com/",
		AppName:            "SocialBlog",
	}
	f.tokens = service.NewTokenService("access-secret", "refresh-secret", 15, 10080, service.WithTokenClock(clock))
	f.svc = service.NewUserService(f.repo, f.tokens, cfg,
		service.WithClock(clock),
		service.WithMailer(f.mailer),
		service.WithAuditLog(f.audit),
		service.WithLoginLimiter(f.limiter),
		service.WithCaptcha(f.captcha),
	)

	f.audit.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	return f
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func (f *fixture) account(t *testing.T) *domain.Account {
	lastIP := "1.2.3.4"
	lastLogin := f.now.Add(-24 * time.Hour)
	return &domain.Account{
		ID:           7,
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: hashOf(t, "password123"),
		RoleID:       authconstant.RoleUser,
		RoleName:     "user",
		LastLoginIP:  &lastIP,
		LastLoginAt:  &lastLogin,
	}
}

func (f *fixture) expectGate(email, ip string) {
	f.limiter.EXPECT().Allow(gomock.Any(), email, ip).Return(nil)
	f.captcha.EXPECT().Verify(gomock.Any(), "captcha", ip).Return(nil)
}

func loginInput(ip string) dto.LoginInput {
	return dto.LoginInput{
		Email:        "Alice@Example.com",
		Password:     "password123",
		CaptchaToken: "captcha",
		IPAddress:    ip,
		UserAgent:    "Mozilla/5.0",
	}
}

func TestUserService_Register_Success(t *testing.T) {
	f := newFixture(t)

	input := dto.RegisterInput{
		Username:  "alice",
		Email:     "Alice@Example.com",
		Password:  "password123",
		FullName:  "Alice Liddell",
		IPAddress: "1.2.3.4",
	}

	f.repo.EXPECT().GetByEmail(gomock.Any(), "alice@example.com").Return(nil, nil)
	f.repo.EXPECT().GetByUsername(gomock.Any(), "alice").Return(nil, nil)
	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, a *domain.Account) error {
		a.ID = 7
		return nil
	})
	f.repo.EXPECT().StoreRefreshToken(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, rt *domain.RefreshToken) error {
		assert.Equal(t, int64(7), rt.UserID)
		assert.Equal(t, testNow.Add(7*24*time.Hour), rt.ExpiresAt)
		return nil
	})

	account, session, err := f.svc.Register(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, int64(7), account.ID)
	assert.Equal(t, "alice@example.com", account.Email)
	assert.Equal(t, authconstant.DefaultUserRoleID, account.RoleID)
	assert.Equal(t, "Alice Liddell", *account.FullName)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte("password123")))

	claims, err := f.tokens.VerifyAccess(session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	_, err = f.tokens.VerifyRefresh(session.RefreshToken)
	assert.NoError(t, err)
}

func TestUserService_Register_Conflicts(t *testing.T) {
	t.Run("email in use", func(t *testing.T) {
		f := newFixture(t)
		f.repo.EXPECT().GetByEmail(gomock.Any(), "alice@example.com").Return(&domain.Account{ID: 1}, nil)

		account, _, err := f.svc.Register(context.Background(), dto.RegisterInput{Username: "alice", Email: "alice@example.com", Password: "password123"})
		assert.ErrorIs(t, err, autherror.ErrEmailAlreadyInUse)
		assert.Nil(t, account)
	})

	t.Run("username taken", func(t *testing.T) {
		f := newFixture(t)
		f.repo.EXPECT().GetByEmail(gomock.Any(), "alice@example.com").Return(nil, nil)
		f.repo.EXPECT().GetByUsername(gomock.Any(), "alice").Return(&domain.Account{ID: 1}, nil)

		_, _, err := f.svc.Register(context.Background(), dto.RegisterInput{Username: "alice", Email: "alice@example.com", Password: "password123"})
		assert.ErrorIs(t, err, autherror.ErrUsernameTaken)
	})

	t.Run("create fails", func(t *testing.T) {
		f := newFixture(t)
		f.repo.EXPECT().GetByEmail(gomock.Any(), gomock.Any()).Return(nil, nil)
		f.repo.EXPECT().GetByUsername(gomock.Any(), gomock.Any()).Return(nil, nil)
		f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("registration failed"))

		_, _, err := f.svc.Register(context.Background(), dto.RegisterInput{Username: "alice", Email: "alice@example.com", Password: "password123"})
		assert.EqualError(t, err, "registration failed")
	})
}

func TestUserService_Login_TrustedContext(t *testing.T) {
	f := newFixture(t)
	account := f.account(t)

	f.expectGate("alice@example.com", "1.2.3.4")
	f.repo.EXPECT().GetByEmail(gomock.Any(), "alice@example.com").Return(account, nil)
	f.limiter.EXPECT().Reset(gomock.Any(), "alice@example.com", "1.2.3.4").Return(nil)
	f.repo.EXPECT().StoreRefreshToken(gomock.Any(), gomock.Any()).Return(nil)
	f.repo.EXPECT().UpdateAccount(gomock.Any(), int64(7), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ int64, u domain.AccountUpdate) error {
			assert.Equal(t, "1.2.3.4", *u.LastLoginIP)
			assert.Equal(t, testNow, *u.LastLoginAt)
			return nil
		})

	outcome, err := f.svc.Login(context.Background(), loginInput("1.2.3.4"))
	require.NoError(t, err)

	authenticated, ok := outcome.(*service.LoginAuthenticated)
	require.True(t, ok)
	assert.Equal(t, int64(7), authenticated.Account.ID)
	assert.NotEmpty(t, authenticated.Session.AccessToken)
	assert.NotEmpty(t, authenticated.Session.RefreshToken)
	assert.Equal(t, testNow, *authenticated.Account.LastLoginAt)
}

func TestUserService_Login_HighRiskStartsChallenge(t *testing.T) {
	tests := []struct {
		name      string
		ip        string
		mutate    func(a *domain.Account)
		mailErr   error
		wantEmail bool
	}{
		{
			name:      "new ip",
			ip:        "9.9.9.9",
			wantEmail: true,
		},
		{
			name:      "first login",
			ip:        "1.2.3.4",
			mutate:    func(a *domain.Account) { a.LastLoginIP, a.LastLoginAt = nil, nil },
			wantEmail: true,
		},
		{
			name: "stale login",
			ip:   "1.2.3.4",
			mutate: func(a *domain.Account) {
				old := testNow.Add(-31 * 24 * time.Hour)
				a.LastLoginAt = &old
			},
			wantEmail: true,
		},
		{
			name:      "mail failure is not fatal",
			ip:        "9.9.9.9",
			mailErr:   errors.New("smtp down"),
			wantEmail: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			account := f.account(t)
			if tt.mutate != nil {
				tt.mutate(account)
			}

			var stored *domain.PendingLoginChallenge
			f.expectGate("alice@example.com", tt.ip)
			f.repo.EXPECT().GetByEmail(gomock.Any(), "alice@example.com").Return(account, nil)
			f.limiter.EXPECT().Reset(gomock.Any(), "alice@example.com", tt.ip).Return(nil)
			f.repo.EXPECT().CreateChallenge(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, c *domain.PendingLoginChallenge) error {
					stored = c
					return nil
				})
			f.mailer.EXPECT().Send(gomock.Any(), "alice@example.com", "SocialBlog - Confirm your sign-in", gomock.Any()).DoAndReturn(
				func(_ context.Context, _, _, html string) error {
					assert.Contains(t, html, "https://blog.example.com/verify-2fa?token="+stored.Token+"&amp;action=approve")
					assert.Contains(t, html, "https://blog.example.com/verify-2fa?token="+stored.Token+"&amp;action=reject")
					return tt.mailErr
				})

			outcome, err := f.svc.Login(context.Background(), loginInput(tt.ip))
			require.NoError(t, err)

			pending, ok := outcome.(*service.LoginPendingVerification)
			require.True(t, ok)
			assert.Equal(t, int64(7), pending.UserID)
			assert.Equal(t, tt.wantEmail, pending.EmailSent)
			assert.NotEmpty(t, pending.Message)

			require.NotNil(t, stored)
			assert.Equal(t, tt.ip, stored.IPAddress)
			assert.Equal(t, "Mozilla/5.0", stored.DeviceFingerprint)
			assert.Equal(t, testNow.Add(5*time.Minute), stored.ExpiresAt)
			assert.Len(t, stored.Token, 64)
		})
	}
}

func TestUserService_Login_Failures(t *testing.T) {
	t.Run("unknown email", func(t *testing.T) {
		f := newFixture(t)
		f.expectGate("alice@example.com", "1.2.3.4")
		f.repo.EXPECT().GetByEmail(gomock.Any(), "alice@example.com").Return(nil, nil)
		f.limiter.EXPECT().Fail(gomock.Any(), "alice@example.com", "1.2.3.4").Return(nil)

		outcome, err := f.svc.Login(context.Background(), loginInput("1.2.3.4"))
		assert.ErrorIs(t, err, autherror.ErrInvalidCredentials)
		assert.Nil(t, outcome)
	})

	t.Run("wrong password", func(t *testing.T) {
		f := newFixture(t)
		f.expectGate("alice@example.com", "1.2.3.4")
		f.repo.EXPECT().GetByEmail(gomock.Any(), "alice@example.com").Return(f.account(t), nil)
		f.limiter.EXPECT().Fail(gomock.Any(), "alice@example.com", "1.2.3.4").Return(autherror.ErrTooManyLoginAttempts)

		input := loginInput("1.2.3.4")
		input.Password = "wrong-password"
		_, err := f.svc.Login(context.Background(), input)
		assert.ErrorIs(t, err, autherror.ErrInvalidCredentials)
	})

	t.Run("throttled", func(t *testing.T) {
		f := newFixture(t)
		f.limiter.EXPECT().Allow(gomock.Any(), "alice@example.com", "1.2.3.4").Return(autherror.ErrTooManyLoginAttempts)

		_, err := f.svc.Login(context.Background(), loginInput("1.2.3.4"))
		assert.ErrorIs(t, err, autherror.ErrTooManyLoginAttempts)
	})

	t.Run("captcha rejected", func(t *testing.T) {
		f := newFixture(t)
		f.limiter.EXPECT().Allow(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
		f.captcha.EXPECT().Verify(gomock.Any(), "captcha", "1.2.3.4").Return(autherror.ErrCaptchaFailed)

		_, err := f.svc.Login(context.Background(), loginInput("1.2.3.4"))
		assert.ErrorIs(t, err, autherror.ErrCaptchaFailed)
	})

	t.Run("locked account", func(t *testing.T) {
		f := newFixture(t)
		account := f.account(t)
		until := testNow.Add(2 * time.Hour)
		account.LockedUntil = &until

		f.expectGate("alice@example.com", "1.2.3.4")
		f.repo.EXPECT().GetByEmail(gomock.Any(), "alice@example.com").Return(account, nil)
		f.limiter.EXPECT().Fail(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

		_, err := f.svc.Login(context.Background(), loginInput("1.2.3.4"))
		assert.ErrorIs(t, err, autherror.ErrAccountLocked)

		var locked *autherror.AccountLockedError
		require.ErrorAs(t, err, &locked)
		assert.Equal(t, until, locked.Until)
	})
}

func TestUserService_Login_ExpiredLockIsCleared(t *testing.T) {
	f := newFixture(t)
	account := f.account(t)
	lockedAt := testNow.Add(-2 * time.Hour)
	until := testNow.Add(-time.Minute)
	reason := "spam"
	account.LockedAt, account.LockedUntil, account.LockReason = &lockedAt, &until, &reason

	f.expectGate("alice@example.com", "1.2.3.4")
	f.repo.EXPECT().GetByEmail(gomock.Any(), "alice@example.com").Return(account, nil)
	f.repo.EXPECT().Unlock(gomock.Any(), int64(7)).Return(true, nil)
	f.limiter.EXPECT().Reset(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	f.repo.EXPECT().StoreRefreshToken(gomock.Any(), gomock.Any()).Return(nil)
	f.repo.EXPECT().UpdateAccount(gomock.Any(), int64(7), gomock.Any()).Return(nil)

	outcome, err := f.svc.Login(context.Background(), loginInput("1.2.3.4"))
	require.NoError(t, err)

	authenticated := outcome.(*service.LoginAuthenticated)
	assert.Nil(t, authenticated.Account.LockedUntil)
	assert.Nil(t, authenticated.Account.LockReason)
}

func (f *fixture) challenge() *domain.PendingLoginChallenge {
	return &domain.PendingLoginChallenge{
		ID:                "c-1",
		UserID:            7,
		Code:              "123456",
		Token:             strings.Repeat("ab", 32),
		IPAddress:         "9.9.9.9",
		DeviceFingerprint: "Mozilla/5.0",
		ExpiresAt:         f.now.Add(5 * time.Minute),
		CreatedAt:         f.now,
	}
}

func TestUserService_VerifyLoginChallenge_Approve(t *testing.T) {
	f := newFixture(t)
	c := f.challenge()

	f.repo.EXPECT().GetChallengeByToken(gomock.Any(), c.Token).Return(c, nil)
	f.repo.EXPECT().GetByID(gomock.Any(), int64(7)).Return(f.account(t), nil)
	f.repo.EXPECT().DeleteChallenge(gomock.Any(), "c-1").Return(true, nil)
	f.repo.EXPECT().StoreRefreshToken(gomock.Any(), gomock.Any()).Return(nil)
	f.repo.EXPECT().UpdateAccount(gomock.Any(), int64(7), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ int64, u domain.AccountUpdate) error {
			assert.Equal(t, "9.9.9.9", *u.LastLoginIP)
			return nil
		})

	outcome, err := f.svc.VerifyLoginChallenge(context.Background(), dto.VerifyChallengeInput{Token: c.Token, Action: "approve"})
	require.NoError(t, err)

	approved, ok := outcome.(*service.VerifyApproved)
	require.True(t, ok)
	assert.Equal(t, int64(7), approved.Account.ID)
	assert.NotEmpty(t, approved.Session.AccessToken)
}

func TestUserService_VerifyLoginChallenge_AtMostOnce(t *testing.T) {
	f := newFixture(t)
	c := f.challenge()

	t.Run("lost race to another click", func(t *testing.T) {
		f.repo.EXPECT().GetChallengeByToken(gomock.Any(), c.Token).Return(c, nil)
		f.repo.EXPECT().GetByID(gomock.Any(), int64(7)).Return(f.account(t), nil)
		f.repo.EXPECT().DeleteChallenge(gomock.Any(), "c-1").Return(false, nil)

		outcome, err := f.svc.VerifyLoginChallenge(context.Background(), dto.VerifyChallengeInput{Token: c.Token, Action: "approve"})
		assert.ErrorIs(t, err, autherror.ErrInvalidOrExpiredLink)
		assert.Nil(t, outcome)
	})

	t.Run("already consumed", func(t *testing.T) {
		f.repo.EXPECT().GetChallengeByToken(gomock.Any(), c.Token).Return(nil, nil)

		_, err := f.svc.VerifyLoginChallenge(context.Background(), dto.VerifyChallengeInput{Token: c.Token, Action: "reject"})
		assert.ErrorIs(t, err, autherror.ErrInvalidOrExpiredLink)
	})
}

func TestUserService_VerifyLoginChallenge_Expired(t *testing.T) {
	f := newFixture(t)
	c := f.challenge()
	c.ExpiresAt = f.now

	f.repo.EXPECT().GetChallengeByToken(gomock.Any(), c.Token).Return(c, nil)
	f.repo.EXPECT().DeleteChallenge(gomock.Any(), "c-1").Return(true, nil)

	_, err := f.svc.VerifyLoginChallenge(context.Background(), dto.VerifyChallengeInput{Token: c.Token, Action: "approve"})
	assert.ErrorIs(t, err, autherror.ErrInvalidOrExpiredLink)
}

func TestUserService_VerifyLoginChallenge_Reject(t *testing.T) {
	f := newFixture(t)
	c := f.challenge()

	f.repo.EXPECT().GetChallengeByToken(gomock.Any(), c.Token).Return(c, nil)
	f.repo.EXPECT().DeleteChallenge(gomock.Any(), "c-1").Return(true, nil)

	outcome, err := f.svc.VerifyLoginChallenge(context.Background(), dto.VerifyChallengeInput{Token: c.Token, Action: "reject"})
	require.NoError(t, err)

	rejected, ok := outcome.(*service.VerifyRejected)
	require.True(t, ok)
	assert.NotEmpty(t, rejected.Message)
}

func TestUserService_VerifyLoginChallenge_BadInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.VerifyLoginChallenge(context.Background(), dto.VerifyChallengeInput{Token: "x", Action: "maybe"})

	var validation *autherror.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Contains(t, validation.Fields, "action")
}

func TestUserService_VerifyLoginChallenge_LockedAccount(t *testing.T) {
	f := newFixture(t)
	c := f.challenge()
	account := f.account(t)
	until := f.now.Add(time.Hour)
	account.LockedUntil = &until

	f.repo.EXPECT().GetChallengeByToken(gomock.Any(), c.Token).Return(c, nil)
	f.repo.EXPECT().GetByID(gomock.Any(), int64(7)).Return(account, nil)

	_, err := f.svc.VerifyLoginChallenge(context.Background(), dto.VerifyChallengeInput{Token: c.Token, Action: "approve"})
	assert.ErrorIs(t, err, autherror.ErrAccountLocked)
}

func TestUserService_Refresh(t *testing.T) {
	f := newFixture(t)
	refresh, expiresAt, err := f.tokens.IssueRefresh(7)
	require.NoError(t, err)
	stored := &domain.RefreshToken{ID: 1, UserID: 7, Token: refresh, ExpiresAt: expiresAt}

	t.Run("missing", func(t *testing.T) {
		_, err := f.svc.Refresh(context.Background(), "", "1.2.3.4")
		assert.ErrorIs(t, err, autherror.ErrRefreshTokenMissing)
	})

	t.Run("not a refresh token", func(t *testing.T) {
		access, _, err := f.tokens.IssueAccess(f.account(t))
		require.NoError(t, err)
		f.repo.EXPECT().GetRefreshToken(gomock.Any(), access).Return(nil, nil)

		_, err = f.svc.Refresh(context.Background(), access, "1.2.3.4")
		assert.ErrorIs(t, err, autherror.ErrInvalidToken)
	})

	t.Run("not stored", func(t *testing.T) {
		f.repo.EXPECT().GetRefreshToken(gomock.Any(), refresh).Return(nil, nil)

		_, err := f.svc.Refresh(context.Background(), refresh, "1.2.3.4")
		assert.ErrorIs(t, err, autherror.ErrRefreshTokenNotFound)
	})

	t.Run("stored for another user", func(t *testing.T) {
		f.repo.EXPECT().GetRefreshToken(gomock.Any(), refresh).Return(&domain.RefreshToken{UserID: 8, Token: refresh, ExpiresAt: expiresAt}, nil)

		_, err := f.svc.Refresh(context.Background(), refresh, "1.2.3.4")
		assert.ErrorIs(t, err, autherror.ErrRefreshTokenNotFound)
	})

	t.Run("stored record expired", func(t *testing.T) {
		f.repo.EXPECT().GetRefreshToken(gomock.Any(), refresh).Return(&domain.RefreshToken{UserID: 7, Token: refresh, ExpiresAt: f.now.Add(-time.Second)}, nil)
		f.repo.EXPECT().DeleteRefreshToken(gomock.Any(), refresh).Return(nil)

		_, err := f.svc.Refresh(context.Background(), refresh, "1.2.3.4")
		assert.ErrorIs(t, err, autherror.ErrRefreshTokenExpired)
	})

	t.Run("account locked", func(t *testing.T) {
		account := f.account(t)
		until := f.now.Add(time.Hour)
		account.LockedUntil = &until
		f.repo.EXPECT().GetRefreshToken(gomock.Any(), refresh).Return(stored, nil)
		f.repo.EXPECT().GetByID(gomock.Any(), int64(7)).Return(account, nil)

		_, err := f.svc.Refresh(context.Background(), refresh, "1.2.3.4")
		assert.ErrorIs(t, err, autherror.ErrAccountLocked)
	})

	t.Run("success", func(t *testing.T) {
		f.repo.EXPECT().GetRefreshToken(gomock.Any(), refresh).Return(stored, nil)
		f.repo.EXPECT().GetByID(gomock.Any(), int64(7)).Return(f.account(t), nil)

		session, err := f.svc.Refresh(context.Background(), refresh, "1.2.3.4")
		require.NoError(t, err)
		assert.Empty(t, session.RefreshToken)

		claims, err := f.tokens.VerifyAccess(session.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "alice", claims.Username)
		assert.Equal(t, f.now.Add(15*time.Minute), session.AccessExpiresAt)
	})
}

func TestUserService_RefreshSignedExpiryPurgesRecord(t *testing.T) {
	t.Run("expired record is deleted", func(t *testing.T) {
		f := newFixture(t)
		refresh, expiresAt, err := f.tokens.IssueRefresh(7)
		require.NoError(t, err)

		f.now = f.now.Add(8 * 24 * time.Hour)
		f.repo.EXPECT().GetRefreshToken(gomock.Any(), refresh).
			Return(&domain.RefreshToken{ID: 1, UserID: 7, Token: refresh, ExpiresAt: expiresAt}, nil)
		f.repo.EXPECT().DeleteRefreshToken(gomock.Any(), refresh).Return(nil)

		_, err = f.svc.Refresh(context.Background(), refresh, "1.2.3.4")
		assert.ErrorIs(t, err, autherror.ErrInvalidToken)
	})

	t.Run("forged token with no record", func(t *testing.T) {
		f := newFixture(t)
		f.repo.EXPECT().GetRefreshToken(gomock.Any(), "forged").Return(nil, nil)

		_, err := f.svc.Refresh(context.Background(), "forged", "1.2.3.4")
		assert.ErrorIs(t, err, autherror.ErrInvalidToken)
	})

	t.Run("lookup failure still rejects", func(t *testing.T) {
		f := newFixture(t)
		f.repo.EXPECT().GetRefreshToken(gomock.Any(), "forged").Return(nil, errors.New("db down"))

		_, err := f.svc.Refresh(context.Background(), "forged", "1.2.3.4")
		assert.ErrorIs(t, err, autherror.ErrInvalidToken)
	})
}

func TestUserService_Logout(t *testing.T) {
	f := newFixture(t)
	identity := &dto.Identity{ID: 7, Username: "alice", Email: "alice@example.com", RoleID: authconstant.RoleUser}

	f.repo.EXPECT().DeleteRefreshToken(gomock.Any(), "rt").Return(nil)
	f.svc.Logout(context.Background(), identity, "rt", "1.2.3.4")

	f.repo.EXPECT().DeleteRefreshToken(gomock.Any(), "rt").Return(errors.New("db down"))
	f.svc.Logout(context.Background(), identity, "rt", "1.2.3.4")

	// No cookie, nothing to delete.
	f.svc.Logout(context.Background(), identity, "", "1.2.3.4")
}

func TestUserService_Me(t *testing.T) {
	f := newFixture(t)

	f.repo.EXPECT().GetByID(gomock.Any(), int64(404)).Return(nil, nil)
	_, err := f.svc.Me(context.Background(), 404)
	assert.ErrorIs(t, err, autherror.ErrUserNotFound)

	account := f.account(t)
	until := f.now.Add(time.Hour)
	account.LockedUntil = &until
	f.repo.EXPECT().GetByID(gomock.Any(), int64(7)).Return(account, nil)

	got, err := f.svc.Me(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, got.IsLocked(f.now))
}

func TestUserService_LockAndUnlock(t *testing.T) {
	f := newFixture(t)
	admin := &dto.Identity{ID: 1, Username: "root", RoleID: authconstant.RoleAdmin}
	until := f.now.Add(24 * time.Hour)

	t.Run("lock", func(t *testing.T) {
		f.repo.EXPECT().Lock(gomock.Any(), int64(7), domain.AccountLock{
			LockedBy:    1,
			LockedAt:    f.now,
			LockedUntil: until,
			Reason:      "spam",
		}).Return(true, nil)

		err := f.svc.LockAccount(context.Background(), admin, 7, dto.LockInput{LockedUntil: until, LockReason: " spam "})
		assert.NoError(t, err)
	})

	t.Run("lock in the past", func(t *testing.T) {
		err := f.svc.LockAccount(context.Background(), admin, 7, dto.LockInput{LockedUntil: f.now, LockReason: "spam"})

		var validation *autherror.ValidationError
		require.ErrorAs(t, err, &validation)
		assert.Contains(t, validation.Fields, "lockedUntil")
	})

	t.Run("lock unknown user", func(t *testing.T) {
		f.repo.EXPECT().Lock(gomock.Any(), int64(404), gomock.Any()).Return(false, nil)

		err := f.svc.LockAccount(context.Background(), admin, 404, dto.LockInput{LockedUntil: until, LockReason: "spam"})
		assert.ErrorIs(t, err, autherror.ErrUserNotFound)
	})

	t.Run("unlock", func(t *testing.T) {
		f.repo.EXPECT().Unlock(gomock.Any(), int64(7)).Return(true, nil)
		assert.NoError(t, f.svc.UnlockAccount(context.Background(), admin, 7))

		f.repo.EXPECT().Unlock(gomock.Any(), int64(404)).Return(false, nil)
		assert.ErrorIs(t, f.svc.UnlockAccount(context.Background(), admin, 404), autherror.ErrUserNotFound)
	})
}

func TestUserService_AuditTrail(t *testing.T) {
	ctrl := gomock.NewController(t)
	audit := mocks.NewMockAuditLog(ctrl)
	repo := mocks.NewMockUserRepository(ctrl)
	tokens := mocks.NewMockTokenGenerator(ctrl)

	svc := service.NewUserService(repo, tokens, &config.Config{}, service.WithAuditLog(audit))

	filter := domain.AuditFilter{IP: "1.2.3.4", Limit: 10}
	audit.EXPECT().Query(gomock.Any(), filter).Return([]domain.AuditEntry{{ID: "a-1"}}, nil)

	entries, err := svc.AuditTrail(context.Background(), filter)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestUserService_TokenFailureAbortsLogin(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockUserRepository(ctrl)
	tokens := mocks.NewMockTokenGenerator(ctrl)

	lastIP := "1.2.3.4"
	lastLogin := testNow.Add(-time.Hour)
	account := &domain.Account{ID: 7, Email: "alice@example.com", PasswordHash: hashOf(t, "password123"), LastLoginIP: &lastIP, LastLoginAt: &lastLogin}

	svc := service.NewUserService(repo, tokens, &config.Config{BcryptCost: bcrypt.MinCost},
		service.WithClock(func() time.Time { return testNow }))

	repo.EXPECT().GetByEmail(gomock.Any(), "alice@example.com").Return(account, nil)
	tokens.EXPECT().IssueAccess(account).Return("", time.Time{}, errors.New("signing failed"))

	_, err := svc.Login(context.Background(), dto.LoginInput{Email: "alice@example.com", Password: "password123", IPAddress: "1.2.3.4"})
	assert.ErrorContains(t, err, "signing failed")
}
