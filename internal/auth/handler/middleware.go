package handler

import (
	"strings"
	"time"

	"github.com/socialblog/auth-service/internal/auth/dto"
	autherror "github.com/socialblog/auth-service/internal/errors"
	"github.com/socialblog/auth-service/pkg/constant"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"
)

func (h *AuthHandler) identityFromCookie(c *fiber.Ctx) *dto.Identity {
	token := c.Cookies(constant.AccessTokenCookie)
	if token == "" {
		return nil
	}

	claims, err := h.tokenService.VerifyAccess(token)
	if err != nil {
		return nil
	}

	return &dto.Identity{
		ID:       claims.UserID,
		Username: claims.Username,
		Email:    claims.Email,
		RoleID:   claims.RoleID,
	}
}

// RequireAuth rejects the request unless it carries a valid access token cookie.
func (h *AuthHandler) RequireAuth(c *fiber.Ctx) error {
	identity := h.identityFromCookie(c)
	if identity == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": autherror.ErrUnauthenticated.Error(),
		})
	}

	c.Locals(constant.IdentityLocalsKey, identity)
	return c.Next()
}

// OptionalAuth attaches the identity when the token is valid and never rejects.
func (h *AuthHandler) OptionalAuth(c *fiber.Ctx) error {
	if identity := h.identityFromCookie(c); identity != nil {
		c.Locals(constant.IdentityLocalsKey, identity)
	}
	return c.Next()
}

// RequireRole must run after RequireAuth. It trusts the role in the token.
func RequireRole(roleIDs ...int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity := IdentityFrom(c)
		if identity == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": autherror.ErrUnauthenticated.Error(),
			})
		}

		for _, id := range roleIDs {
			if identity.RoleID == id {
				return c.Next()
			}
		}

		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": autherror.ErrForbidden.Error(),
		})
	}
}

func IdentityFrom(c *fiber.Ctx) *dto.Identity {
	identity, _ := c.Locals(constant.IdentityLocalsKey).(*dto.Identity)
	return identity
}

func RequestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", ClientIP(c)),
		}
		if id, ok := c.Locals("requestid").(string); ok {
			fields = append(fields, zap.String("request_id", id))
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}

		logger.Info("request", fields...)
		return err
	}
}

// CORS lets the frontend at appOrigin send the session cookies cross-origin.
// Credentials rule out a wildcard origin.
func CORS(appOrigin string) fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins:     strings.TrimRight(appOrigin, "/"),
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept",
		AllowCredentials: true,
		MaxAge:           600,
	})
}
