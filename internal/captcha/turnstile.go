// Package captcha verifies Cloudflare Turnstile tokens submitted with a login.
package captcha

import (
	"context"
	"fmt"
	"time"

	autherror "github.com/socialblog/auth-service/internal/errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	SiteVerifyURL  = "https://challenges.cloudflare.com/turnstile/v0/siteverify"
	DefaultTimeout = 5 * time.Second
)

type siteVerifyRequest struct {
	Secret   string `json:"secret"`
	Response string `json:"response"`
	RemoteIP string `json:"remoteip,omitempty"`
}

type siteVerifyResponse struct {
	Success    bool     `json:"success"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

type Turnstile struct {
	secret  string
	url     string
	timeout time.Duration
	logger  *zap.Logger
}

type Option func(*Turnstile)

func WithEndpoint(url string) Option {
	return func(t *Turnstile) { t.url = url }
}

func WithTimeout(d time.Duration) Option {
	return func(t *Turnstile) { t.timeout = d }
}

func NewTurnstile(secret string, logger *zap.Logger, opts ...Option) *Turnstile {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Turnstile{
		secret:  secret,
		url:     SiteVerifyURL,
		timeout: DefaultTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Verify returns autherror.ErrCaptchaFailed unless Cloudflare accepts the token.
// Transport failures are treated as a rejection.
func (t *Turnstile) Verify(ctx context.Context, token, remoteIP string) error {
	if token == "" {
		return autherror.ErrCaptchaFailed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := t.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	agent := fiber.Post(t.url).
		Timeout(timeout).
		JSON(siteVerifyRequest{Secret: t.secret, Response: token, RemoteIP: remoteIP})

	var result siteVerifyResponse
	code, _, errs := agent.Struct(&result)
	if len(errs) > 0 {
		t.logger.Error("turnstile verification request failed", zap.Errors("errors", errs))
		return fmt.Errorf("%w: %v", autherror.ErrCaptchaFailed, errs[0])
	}
	if code != fiber.StatusOK {
		t.logger.Error("turnstile verification rejected request", zap.Int("status", code))
		return autherror.ErrCaptchaFailed
	}
	if !result.Success {
		t.logger.Info("turnstile token rejected", zap.Strings("error_codes", result.ErrorCodes))
		return autherror.ErrCaptchaFailed
	}
	return nil
}
