package service

import (
	"strings"
	"testing"
	"time"

	"github.com/socialblog/auth-service/internal/auth/domain"
	autherror "github.com/socialblog/auth-service/internal/errors"
	"github.com/socialblog/auth-service/pkg/constant"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAccount() *domain.Account {
	return &domain.Account{ID: 42, Username: "alice", Email: "alice@example.com", RoleID: constant.RoleUser}
}

func TestNewTokenService(t *testing.T) {
	tests := []struct {
		name           string
		accessSecret   string
		refreshSecret  string
		accessMinutes  int
		refreshMinutes int
	}{
		{
			name:           "default lifetimes",
			accessSecret:   "access-secret-key",
			refreshSecret:  "refresh-secret-key",
			accessMinutes:  15,
			refreshMinutes: 10080,
		},
		{
			name:           "custom lifetimes",
			accessSecret:   "a",
			refreshSecret:  "b",
			accessMinutes:  30,
			refreshMinutes: 2880,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := NewTokenService(tt.accessSecret, tt.refreshSecret, tt.accessMinutes, tt.refreshMinutes)

			assert.NotNil(t, ts)
			assert.Equal(t, tt.accessSecret, ts.AccessTokenSecret)
			assert.Equal(t, tt.refreshSecret, ts.RefreshTokenSecret)
			assert.Equal(t, time.Duration(tt.accessMinutes)*time.Minute, ts.GetAccessTokenExpiry())
			assert.Equal(t, time.Duration(tt.refreshMinutes)*time.Minute, ts.GetRefreshTokenExpiry())
		})
	}
}

func TestTokenService_AccessRoundTrip(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	ts := NewTokenService("access-secret", "refresh-secret", 15, 10080, WithTokenClock(func() time.Time { return now }))

	token, expiresAt, err := ts.IssueAccess(testAccount())
	require.NoError(t, err)
	assert.Equal(t, now.Add(15*time.Minute), expiresAt)

	claims, err := ts.VerifyAccess(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, constant.RoleUser, claims.RoleID)
	assert.Equal(t, "42", claims.Subject)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenService_RefreshRoundTrip(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	ts := NewTokenService("access-secret", "refresh-secret", 15, 10080, WithTokenClock(func() time.Time { return now }))

	token, expiresAt, err := ts.IssueRefresh(42)
	require.NoError(t, err)
	assert.Equal(t, now.Add(7*24*time.Hour), expiresAt)

	claims, err := ts.VerifyRefresh(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)

	other, _, err := ts.IssueRefresh(42)
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestTokenService_Expiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	ts := NewTokenService("access-secret", "refresh-secret", 15, 10080, WithTokenClock(clock))

	access, _, err := ts.IssueAccess(testAccount())
	require.NoError(t, err)
	refresh, _, err := ts.IssueRefresh(42)
	require.NoError(t, err)

	now = now.Add(14 * time.Minute)
	_, err = ts.VerifyAccess(access)
	assert.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = ts.VerifyAccess(access)
	assert.ErrorIs(t, err, autherror.ErrInvalidToken)

	_, err = ts.VerifyRefresh(refresh)
	assert.NoError(t, err)

	now = now.Add(7 * 24 * time.Hour)
	_, err = ts.VerifyRefresh(refresh)
	assert.ErrorIs(t, err, autherror.ErrInvalidToken)
}

func TestTokenService_ContextsAreSeparate(t *testing.T) {
	ts := NewTokenService("access-secret", "refresh-secret", 15, 10080)

	access, _, err := ts.IssueAccess(testAccount())
	require.NoError(t, err)
	refresh, _, err := ts.IssueRefresh(42)
	require.NoError(t, err)

	_, err = ts.VerifyRefresh(access)
	assert.ErrorIs(t, err, autherror.ErrInvalidToken)

	_, err = ts.VerifyAccess(refresh)
	assert.ErrorIs(t, err, autherror.ErrInvalidToken)

	// Same secrets but the audience still tells the two kinds apart.
	shared := NewTokenService("same", "same", 15, 10080)
	sharedRefresh, _, err := shared.IssueRefresh(42)
	require.NoError(t, err)
	_, err = shared.VerifyAccess(sharedRefresh)
	assert.ErrorIs(t, err, autherror.ErrInvalidToken)
}

func TestTokenService_RejectsForgedTokens(t *testing.T) {
	ts := NewTokenService("access-secret", "refresh-secret", 15, 10080)

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{
			name:  "empty",
			token: func(*testing.T) string { return "" },
		},
		{
			name:  "garbage",
			token: func(*testing.T) string { return "not.a.jwt" },
		},
		{
			name: "wrong secret",
			token: func(t *testing.T) string {
				other := NewTokenService("someone-else", "refresh-secret", 15, 10080)
				token, _, err := other.IssueAccess(testAccount())
				require.NoError(t, err)
				return token
			},
		},
		{
			name: "signature from another token",
			token: func(t *testing.T) string {
				first, _, err := ts.IssueAccess(testAccount())
				require.NoError(t, err)
				second, _, err := ts.IssueAccess(&domain.Account{ID: 1, Username: "root", RoleID: constant.RoleAdmin})
				require.NoError(t, err)
				a := strings.Split(first, ".")
				b := strings.Split(second, ".")
				return a[0] + "." + b[1] + "." + a[2]
			},
		},
		{
			name: "unsigned",
			token: func(t *testing.T) string {
				claims := AccessClaims{
					UserID: 42,
					RegisteredClaims: jwt.RegisteredClaims{
						Issuer:    constant.TokenIssuer,
						Audience:  jwt.ClaimStrings{constant.AccessAudience},
						ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
					},
				}
				token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
				require.NoError(t, err)
				return token
			},
		},
		{
			name: "missing expiry",
			token: func(t *testing.T) string {
				claims := AccessClaims{
					UserID: 42,
					RegisteredClaims: jwt.RegisteredClaims{
						Issuer:   constant.TokenIssuer,
						Audience: jwt.ClaimStrings{constant.AccessAudience},
					},
				}
				token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("access-secret"))
				require.NoError(t, err)
				return token
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ts.VerifyAccess(tt.token(t))
			assert.ErrorIs(t, err, autherror.ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}
