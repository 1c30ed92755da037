package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/socialblog/auth-service/internal/auth/domain"

	"github.com/google/uuid"
)

const challengeTokenBytes = 32

func newChallenge(userID int64, ip, userAgent string, now time.Time, ttl time.Duration) (*domain.PendingLoginChallenge, error) {
	code, err := generateVerificationCode()
	if err != nil {
		return nil, fmt.Errorf("generate verification code: %w", err)
	}

	token, err := generateChallengeToken()
	if err != nil {
		return nil, fmt.Errorf("generate challenge token: %w", err)
	}

	return &domain.PendingLoginChallenge{
		ID:                uuid.NewString(),
		UserID:            userID,
		Code:              code,
		Token:             token,
		IPAddress:         ip,
		DeviceFingerprint: userAgent,
		ExpiresAt:         now.Add(ttl),
		CreatedAt:         now,
	}, nil
}

// generateVerificationCode returns a uniform six-digit code in [100000, 999999].
func generateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// generateChallengeToken returns 64 hex characters; it is the link secret.
func generateChallengeToken() (string, error) {
	b := make([]byte, challengeTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
