package handler

import (
	"errors"
	"strconv"

	"github.com/socialblog/auth-service/internal/auth/domain"
	"github.com/socialblog/auth-service/internal/auth/dto"
	"github.com/socialblog/auth-service/internal/auth/service"
	autherror "github.com/socialblog/auth-service/internal/errors"
	"github.com/socialblog/auth-service/pkg/constant"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type AuthHandler struct {
	userService  *service.UserService
	tokenService service.TokenGenerator
	cookies      CookieConfig
	logger       *zap.Logger
}

func NewAuthHandler(userService *service.UserService, tokenService service.TokenGenerator, cookies CookieConfig, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		userService:  userService,
		tokenService: tokenService,
		cookies:      cookies,
		logger:       logger,
	}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var input dto.RegisterInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msgInvalidInput})
	}
	if err := dto.Validate(input); err != nil {
		return h.writeError(c, err)
	}

	input.IPAddress = ClientIP(c)
	input.UserAgent = string(c.Request().Header.UserAgent())

	account, session, err := h.userService.Register(c.UserContext(), input)
	if err != nil {
		return h.writeError(c, err)
	}

	h.cookies.setSession(c, session)
	return c.Status(fiber.StatusCreated).JSON(dto.RegisterResponse{User: dto.NewUserOutput(account)})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var input dto.LoginInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msgInvalidInput})
	}
	if err := dto.Validate(input); err != nil {
		return h.writeError(c, err)
	}

	input.IPAddress = ClientIP(c)
	input.UserAgent = string(c.Request().Header.UserAgent())

	outcome, err := h.userService.Login(c.UserContext(), input)
	if err != nil {
		return h.writeError(c, err)
	}

	switch o := outcome.(type) {
	case *service.LoginAuthenticated:
		h.cookies.setSession(c, o.Session)
		return c.Status(fiber.StatusOK).JSON(dto.LoginVerifiedResponse{
			RequiresVerification: false,
			User:                 dto.NewUserOutput(o.Account),
		})
	case *service.LoginPendingVerification:
		return c.Status(fiber.StatusOK).JSON(dto.LoginChallengeResponse{
			RequiresVerification: true,
			UserID:               o.UserID,
			Message:              o.Message,
		})
	}
	return h.writeError(c, errUnknownOutcome)
}

func (h *AuthHandler) VerifyEmail2FA(c *fiber.Ctx) error {
	var input dto.VerifyChallengeInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msgInvalidInput})
	}
	if err := dto.Validate(input); err != nil {
		return h.writeError(c, err)
	}

	outcome, err := h.userService.VerifyLoginChallenge(c.UserContext(), input)
	if err != nil {
		return h.writeError(c, err)
	}

	switch o := outcome.(type) {
	case *service.VerifyApproved:
		h.cookies.setSession(c, o.Session)
		return c.Status(fiber.StatusOK).JSON(dto.VerifyApprovedResponse{
			Approved: true,
			User:     dto.NewUserOutput(o.Account),
		})
	case *service.VerifyRejected:
		return c.Status(fiber.StatusOK).JSON(dto.VerifyRejectedResponse{
			Approved: false,
			Message:  o.Message,
		})
	}
	return h.writeError(c, errUnknownOutcome)
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	session, err := h.userService.Refresh(c.UserContext(), c.Cookies(constant.RefreshTokenCookie), ClientIP(c))
	if err != nil {
		if errors.Is(err, autherror.ErrInvalidToken) {
			err = autherror.ErrRefreshTokenNotFound
		}
		return h.writeError(c, err)
	}

	h.cookies.setAccess(c, session)
	return c.Status(fiber.StatusOK).JSON(dto.RefreshResponse{Success: true})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	identity := IdentityFrom(c)
	if identity == nil {
		return h.writeError(c, autherror.ErrUnauthenticated)
	}

	h.userService.Logout(c.UserContext(), identity, c.Cookies(constant.RefreshTokenCookie), ClientIP(c))

	h.cookies.clearSession(c)
	return c.Status(fiber.StatusOK).JSON(dto.MessageResponse{Message: "Logged out successfully"})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	identity := IdentityFrom(c)
	if identity == nil {
		return h.writeError(c, autherror.ErrUnauthenticated)
	}

	account, err := h.userService.Me(c.UserContext(), identity.ID)
	if err != nil {
		if errors.Is(err, autherror.ErrUserNotFound) {
			err = autherror.ErrUnauthenticated
		}
		return h.writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(dto.NewUserOutput(account))
}

// Session reports what the access token cookie says without touching storage.
func (h *AuthHandler) Session(c *fiber.Ctx) error {
	identity := IdentityFrom(c)
	return c.Status(fiber.StatusOK).JSON(dto.SessionStatusResponse{
		Authenticated: identity != nil,
		User:          identity,
	})
}

func (h *AuthHandler) LockUser(c *fiber.Ctx) error {
	targetID, err := userIDParam(c)
	if err != nil {
		return h.writeError(c, err)
	}

	var input dto.LockInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msgInvalidInput})
	}
	if err := dto.Validate(input); err != nil {
		return h.writeError(c, err)
	}

	if err := h.userService.LockAccount(c.UserContext(), IdentityFrom(c), targetID, input); err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(dto.MessageResponse{Message: "User locked"})
}

func (h *AuthHandler) UnlockUser(c *fiber.Ctx) error {
	targetID, err := userIDParam(c)
	if err != nil {
		return h.writeError(c, err)
	}

	if err := h.userService.UnlockAccount(c.UserContext(), IdentityFrom(c), targetID); err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(dto.MessageResponse{Message: "User unlocked"})
}

func (h *AuthHandler) AuditLog(c *fiber.Ctx) error {
	filter := domain.AuditFilter{
		IP:     c.Query("ip"),
		Action: c.Query("action"),
	}

	if raw := c.Query("userId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return h.writeError(c, autherror.NewValidationError("userId", "must be a number"))
		}
		filter.UserID = &id
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return h.writeError(c, autherror.NewValidationError("limit", "must be a positive number"))
		}
		filter.Limit = limit
	}

	entries, err := h.userService.AuditTrail(c.UserContext(), filter)
	if err != nil {
		return h.writeError(c, err)
	}

	out := make([]dto.AuditEntryOutput, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.NewAuditEntryOutput(e))
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"entries": out})
}

func userIDParam(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, autherror.NewValidationError("id", "must be a positive number")
	}
	return id, nil
}
