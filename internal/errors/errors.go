package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrTooManyLoginAttempts = errors.New("too many failed login attempts")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrEmailAlreadyInUse    = errors.New("email already registered")
	ErrUsernameTaken        = errors.New("username already taken")
	ErrRefreshTokenMissing  = errors.New("refresh token is required")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenExpired  = errors.New("refresh token expired")
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrInvalidOrExpiredLink = errors.New("invalid or expired link")
	ErrAccountLocked        = errors.New("account is locked")
	ErrUserNotFound         = errors.New("user not found")
	ErrForbidden            = errors.New("insufficient permissions")
	ErrUnauthenticated      = errors.New("authentication required")
	ErrCaptchaFailed        = errors.New("captcha verification failed")
)

// AccountLockedError carries the time at which the lock lifts.
type AccountLockedError struct {
	Until time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account is locked until %s", e.Until.UTC().Format(time.RFC3339))
}

func (e *AccountLockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// ValidationError maps request fields to a human readable problem.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}
