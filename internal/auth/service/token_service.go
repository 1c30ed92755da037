package service

//go:generate mockgen -destination=../../mocks/mock_token_generator.go -package=mocks github.com/socialblog/auth-service/internal/auth/service TokenGenerator

import (
	"strconv"
	"time"

	"github.com/socialblog/auth-service/internal/auth/domain"
	autherror "github.com/socialblog/auth-service/internal/errors"
	"github.com/socialblog/auth-service/pkg/constant"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenGenerator interface {
	IssueAccess(account *domain.Account) (string, time.Time, error)
	IssueRefresh(userID int64) (string, time.Time, error)
	VerifyAccess(tokenString string) (*AccessClaims, error)
	VerifyRefresh(tokenString string) (*RefreshClaims, error)
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
}

// TokenService signs access and refresh tokens with unrelated secrets, so
// neither kind verifies in the other's context.
type TokenService struct {
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	now                func() time.Time
}

type AccessClaims struct {
	jwt.RegisteredClaims
	UserID   int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	RoleID   int    `json:"roleId"`
}

type RefreshClaims struct {
	jwt.RegisteredClaims
	UserID int64 `json:"id"`
}

type TokenOption func(*TokenService)

func WithTokenClock(now func() time.Time) TokenOption {
	return func(ts *TokenService) { ts.now = now }
}

func NewTokenService(accessSecret, refreshSecret string, accessMinutes, refreshMinutes int, opts ...TokenOption) *TokenService {
	ts := &TokenService{
		AccessTokenSecret:  accessSecret,
		RefreshTokenSecret: refreshSecret,
		AccessTokenExpiry:  time.Duration(accessMinutes) * time.Minute,
		RefreshTokenExpiry: time.Duration(refreshMinutes) * time.Minute,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(ts)
	}
	return ts
}

func (ts *TokenService) IssueAccess(account *domain.Account) (string, time.Time, error) {
	now := ts.now()
	expiresAt := now.Add(ts.AccessTokenExpiry)

	claims := AccessClaims{
		UserID:           account.ID,
		Username:         account.Username,
		Email:            account.Email,
		RoleID:           account.RoleID,
		RegisteredClaims: ts.registered(account.ID, constant.AccessAudience, now, expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(ts.AccessTokenSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (ts *TokenService) IssueRefresh(userID int64) (string, time.Time, error) {
	now := ts.now()
	expiresAt := now.Add(ts.RefreshTokenExpiry)

	claims := RefreshClaims{
		UserID:           userID,
		RegisteredClaims: ts.registered(userID, constant.RefreshAudience, now, expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(ts.RefreshTokenSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// The jti keeps two tokens minted for the same user in the same second distinct.
func (ts *TokenService) registered(userID int64, audience string, now, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    constant.TokenIssuer,
		Subject:   strconv.FormatInt(userID, 10),
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
}

func (ts *TokenService) GetAccessTokenExpiry() time.Duration {
	return ts.AccessTokenExpiry
}

func (ts *TokenService) GetRefreshTokenExpiry() time.Duration {
	return ts.RefreshTokenExpiry
}

// VerifyAccess returns autherror.ErrInvalidToken for every kind of failure.
func (ts *TokenService) VerifyAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := ts.parse(tokenString, claims, ts.AccessTokenSecret, constant.AccessAudience); err != nil {
		return nil, autherror.ErrInvalidToken
	}
	return claims, nil
}

// VerifyRefresh returns autherror.ErrInvalidToken for every kind of failure.
func (ts *TokenService) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := ts.parse(tokenString, claims, ts.RefreshTokenSecret, constant.RefreshAudience); err != nil {
		return nil, autherror.ErrInvalidToken
	}
	return claims, nil
}

func (ts *TokenService) parse(tokenString string, claims jwt.Claims, secret, audience string) error {
	if tokenString == "" {
		return autherror.ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(constant.TokenIssuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.now),
	)
	if err != nil {
		return err
	}
	if !token.Valid {
		return autherror.ErrInvalidToken
	}
	return nil
}
