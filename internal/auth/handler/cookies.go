package handler

import (
	"time"

	"github.com/socialblog/auth-service/internal/auth/dto"
	"github.com/socialblog/auth-service/pkg/constant"

	"github.com/gofiber/fiber/v2"
)

type CookieConfig struct {
	Domain string
	Secure bool
}

func (cc CookieConfig) cookie(name, value string, expires time.Time) *fiber.Cookie {
	return &fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   cc.Domain,
		Expires:  expires,
		HTTPOnly: true,
		Secure:   cc.Secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	}
}

func (cc CookieConfig) setSession(c *fiber.Ctx, session *dto.Session) {
	cc.setAccess(c, session)
	if session.RefreshToken != "" {
		c.Cookie(cc.cookie(constant.RefreshTokenCookie, session.RefreshToken, session.RefreshExpiresAt))
	}
}

func (cc CookieConfig) setAccess(c *fiber.Ctx, session *dto.Session) {
	c.Cookie(cc.cookie(constant.AccessTokenCookie, session.AccessToken, session.AccessExpiresAt))
}

func (cc CookieConfig) clearSession(c *fiber.Ctx) {
	expired := time.Unix(0, 0)
	c.Cookie(cc.cookie(constant.AccessTokenCookie, "", expired))
	c.Cookie(cc.cookie(constant.RefreshTokenCookie, "", expired))
}
