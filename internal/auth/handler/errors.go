package handler

import (
	"errors"
	"time"

	autherror "github.com/socialblog/auth-service/internal/errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	msgInvalidInput    = "invalid input"
	msgInternalError   = "internal server error"
	msgInvalidRefresh  = "invalid or expired refresh token"
	msgValidation      = "validation failed"
	msgAccountLocked   = "account is locked"
	msgTooManyAttempts = "too many failed login attempts, try again later"
)

var errUnknownOutcome = errors.New("unexpected service outcome")

// writeError is the single translation from service errors to HTTP answers.
func (h *AuthHandler) writeError(c *fiber.Ctx, err error) error {
	var validation *autherror.ValidationError
	if errors.As(err, &validation) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  msgValidation,
			"fields": validation.Fields,
		})
	}

	var locked *autherror.AccountLockedError
	if errors.As(err, &locked) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":        msgAccountLocked,
			"message":      locked.Error(),
			"locked_until": locked.Until.UTC().Format(time.RFC3339),
		})
	}

	switch {
	case errors.Is(err, autherror.ErrInvalidCredentials),
		errors.Is(err, autherror.ErrInvalidToken),
		errors.Is(err, autherror.ErrInvalidOrExpiredLink),
		errors.Is(err, autherror.ErrUnauthenticated):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})

	case errors.Is(err, autherror.ErrRefreshTokenNotFound),
		errors.Is(err, autherror.ErrRefreshTokenExpired):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": msgInvalidRefresh})

	case errors.Is(err, autherror.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})

	case errors.Is(err, autherror.ErrEmailAlreadyInUse),
		errors.Is(err, autherror.ErrUsernameTaken),
		errors.Is(err, autherror.ErrRefreshTokenMissing),
		errors.Is(err, autherror.ErrCaptchaFailed):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": errorMessage(err)})

	case errors.Is(err, autherror.ErrTooManyLoginAttempts):
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": msgTooManyAttempts})

	case errors.Is(err, autherror.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}

	h.logger.Error("request failed",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": msgInternalError})
}

// errorMessage strips wrapping so transport details never reach the client.
func errorMessage(err error) string {
	for _, sentinel := range []error{
		autherror.ErrEmailAlreadyInUse,
		autherror.ErrUsernameTaken,
		autherror.ErrRefreshTokenMissing,
		autherror.ErrCaptchaFailed,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

// ErrorHandler answers errors that escape handlers, such as unknown routes
// and recovered panics.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}

		logger.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": msgInternalError})
	}
}
