package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/socialblog/auth-service/config"
	"github.com/socialblog/auth-service/internal/auth/domain"
	"github.com/socialblog/auth-service/internal/auth/dto"
	autherror "github.com/socialblog/auth-service/internal/errors"
	"github.com/socialblog/auth-service/internal/mail"
	"github.com/socialblog/auth-service/pkg/constant"

	"go.uber.org/zap"
)

type UserService struct {
	repo         domain.UserRepository
	tokenService TokenGenerator
	hasher       PasswordHasher
	risk         *RiskEvaluator
	mailer       domain.Mailer
	audit        domain.AuditLog
	limiter      domain.LoginLimiter
	captcha      domain.CaptchaVerifier
	logger       *zap.Logger
	now          domain.Clock

	challengeTTL time.Duration
	mailTimeout  time.Duration
	appBaseURL   string
	appName      string
}

type Option func(*UserService)

func WithClock(now domain.Clock) Option {
	return func(s *UserService) { s.now = now }
}

func WithMailer(m domain.Mailer) Option {
	return func(s *UserService) { s.mailer = m }
}

func WithAuditLog(a domain.AuditLog) Option {
	return func(s *UserService) { s.audit = a }
}

func WithLoginLimiter(l domain.LoginLimiter) Option {
	return func(s *UserService) { s.limiter = l }
}

func WithCaptcha(c domain.CaptchaVerifier) Option {
	return func(s *UserService) { s.captcha = c }
}

func WithHasher(h PasswordHasher) Option {
	return func(s *UserService) { s.hasher = h }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *UserService) { s.logger = l }
}

func NewUserService(repo domain.UserRepository, tokenService TokenGenerator, cfg *config.Config, opts ...Option) *UserService {
	s := &UserService{
		repo:         repo,
		tokenService: tokenService,
		hasher:       NewBcryptHasher(cfg.BcryptCost),
		mailer:       nopMailer{},
		audit:        nopAudit{},
		limiter:      nopLimiter{},
		captcha:      nopCaptcha{},
		logger:       zap.NewNop(),
		now:          time.Now,
		challengeTTL: constant.DefaultChallengeTTL,
		mailTimeout:  time.Duration(config.DefaultMailTimeoutSeconds) * time.Second,
		appBaseURL:   strings.TrimRight(cfg.AppBaseURL, "/"),
		appName:      cfg.AppName,
	}
	if cfg.ChallengeExpiryMin > 0 {
		s.challengeTTL = time.Duration(cfg.ChallengeExpiryMin) * time.Minute
	}
	if cfg.MailTimeoutSeconds > 0 {
		s.mailTimeout = time.Duration(cfg.MailTimeoutSeconds) * time.Second
	}
	if s.appBaseURL == "" {
		s.appBaseURL = config.DefaultAppBaseURL
	}
	if s.appName == "" {
		s.appName = config.DefaultAppName
	}

	for _, opt := range opts {
		opt(s)
	}
	s.risk = NewRiskEvaluator(constant.RiskWindow, s.now)
	return s
}

func (s *UserService) Register(ctx context.Context, input dto.RegisterInput) (*domain.Account, *dto.Session, error) {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	input.Username = strings.TrimSpace(input.Username)

	existingUser, err := s.repo.GetByEmail(ctx, input.Email)
	if err != nil {
		return nil, nil, err
	}
	if existingUser != nil {
		return nil, nil, autherror.ErrEmailAlreadyInUse
	}

	existingUser, err = s.repo.GetByUsername(ctx, input.Username)
	if err != nil {
		return nil, nil, err
	}
	if existingUser != nil {
		return nil, nil, autherror.ErrUsernameTaken
	}

	hashedPassword, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	account := &domain.Account{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hashedPassword,
		RoleID:       constant.DefaultUserRoleID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if input.FullName != "" {
		fullName := input.FullName
		account.FullName = &fullName
	}

	if err := s.repo.Create(ctx, account); err != nil {
		return nil, nil, err
	}

	session, err := s.issueSession(ctx, account)
	if err != nil {
		return nil, nil, err
	}

	s.record(ctx, domain.AuditEntry{
		UserID:    &account.ID,
		Email:     account.Email,
		Action:    constant.AuditActionRegister,
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		Status:    constant.AuditStatusSuccess,
	})

	return account, session, nil
}

// LoginOutcome is either *LoginAuthenticated or *LoginPendingVerification.
type LoginOutcome interface {
	isLoginOutcome()
}

type LoginAuthenticated struct {
	Account *domain.Account
	Session *dto.Session
}

type LoginPendingVerification struct {
	UserID    int64
	Message   string
	EmailSent bool
}

func (*LoginAuthenticated) isLoginOutcome()       {}
func (*LoginPendingVerification) isLoginOutcome() {}

const pendingVerificationMessage = "We sent a confirmation link to your email. Approve the login to continue."

func (s *UserService) Login(ctx context.Context, input dto.LoginInput) (LoginOutcome, error) {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))

	if err := s.limiter.Allow(ctx, input.Email, input.IPAddress); err != nil {
		return nil, err
	}

	if err := s.captcha.Verify(ctx, input.CaptchaToken, input.IPAddress); err != nil {
		return nil, err
	}

	account, err := s.repo.GetByEmail(ctx, input.Email)
	if err != nil {
		return nil, err
	}
	if account == nil {
		s.loginFailed(ctx, nil, input, "unknown email")
		return nil, autherror.ErrInvalidCredentials
	}

	// The lock is checked before the password so a locked owner learns when to retry.
	if err := s.reconcileLock(ctx, account); err != nil {
		if errors.Is(err, autherror.ErrAccountLocked) {
			s.loginFailed(ctx, account, input, "account locked")
		}
		return nil, err
	}

	if !s.hasher.Verify(input.Password, account.PasswordHash) {
		s.loginFailed(ctx, account, input, "wrong password")
		return nil, autherror.ErrInvalidCredentials
	}

	if err := s.limiter.Reset(ctx, input.Email, input.IPAddress); err != nil {
		s.logger.Warn("failed to reset login throttle", zap.String("email", input.Email), zap.Error(err))
	}

	if s.risk.IsHighRisk(account.LastLoginIP, account.LastLoginAt, input.IPAddress) {
		return s.startChallenge(ctx, account, input)
	}

	session, err := s.completeLogin(ctx, account, input.IPAddress)
	if err != nil {
		return nil, err
	}

	s.record(ctx, domain.AuditEntry{
		UserID:    &account.ID,
		Email:     account.Email,
		Action:    constant.AuditActionLogin,
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		Status:    constant.AuditStatusSuccess,
	})

	return &LoginAuthenticated{Account: account, Session: session}, nil
}

func (s *UserService) loginFailed(ctx context.Context, account *domain.Account, input dto.LoginInput, reason string) {
	if err := s.limiter.Fail(ctx, input.Email, input.IPAddress); err != nil && !errors.Is(err, autherror.ErrTooManyLoginAttempts) {
		s.logger.Warn("failed to record failed login", zap.String("email", input.Email), zap.Error(err))
	}

	entry := domain.AuditEntry{
		Email:     input.Email,
		Action:    constant.AuditActionLogin,
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		Status:    constant.AuditStatusFailed,
		Details:   reason,
	}
	if account != nil {
		entry.UserID = &account.ID
	}
	s.record(ctx, entry)
}

func (s *UserService) startChallenge(ctx context.Context, account *domain.Account, input dto.LoginInput) (LoginOutcome, error) {
	challenge, err := newChallenge(account.ID, input.IPAddress, input.UserAgent, s.now(), s.challengeTTL)
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateChallenge(ctx, challenge); err != nil {
		return nil, err
	}

	sent := s.sendChallengeEmail(ctx, account, challenge)

	details := "approval email sent"
	if !sent {
		details = "approval email failed"
	}
	s.record(ctx, domain.AuditEntry{
		UserID:    &account.ID,
		Email:     account.Email,
		Action:    constant.AuditAction2FA,
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		Status:    constant.AuditStatusPending,
		Details:   details,
	})

	return &LoginPendingVerification{
		UserID:    account.ID,
		Message:   pendingVerificationMessage,
		EmailSent: sent,
	}, nil
}

// sendChallengeEmail never fails the login; the challenge is already stored.
func (s *UserService) sendChallengeEmail(ctx context.Context, account *domain.Account, challenge *domain.PendingLoginChallenge) bool {
	name := account.Username
	if account.FullName != nil && *account.FullName != "" {
		name = *account.FullName
	}

	subject, html, err := mail.RenderLoginApproval(mail.LoginApproval{
		AppName:    s.appName,
		UserName:   name,
		ApproveURL: s.verificationLink(challenge.Token, constant.VerifyActionApprove),
		RejectURL:  s.verificationLink(challenge.Token, constant.VerifyActionReject),
		IPAddress:  challenge.IPAddress,
		Device:     challenge.DeviceFingerprint,
		ExpiresIn:  s.challengeTTL,
	})
	if err != nil {
		s.logger.Error("failed to render approval email", zap.Int64("user_id", account.ID), zap.Error(err))
		return false
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.mailTimeout)
	defer cancel()

	if err := s.mailer.Send(sendCtx, account.Email, subject, html); err != nil {
		s.logger.Error("failed to send approval email",
			zap.Int64("user_id", account.ID),
			zap.String("challenge_id", challenge.ID),
			zap.Error(err))
		return false
	}
	return true
}

// VerifyOutcome is either *VerifyApproved or *VerifyRejected.
type VerifyOutcome interface {
	isVerifyOutcome()
}

type VerifyApproved struct {
	Account *domain.Account
	Session *dto.Session
}

type VerifyRejected struct {
	Message string
}

func (*VerifyApproved) isVerifyOutcome() {}
func (*VerifyRejected) isVerifyOutcome() {}

const rejectedLoginMessage = "The login attempt was rejected."

// VerifyLoginChallenge resolves an emailed approve/reject link. A challenge
// resolves at most once; any later use reports ErrInvalidOrExpiredLink.
func (s *UserService) VerifyLoginChallenge(ctx context.Context, input dto.VerifyChallengeInput) (VerifyOutcome, error) {
	if input.Action != constant.VerifyActionApprove && input.Action != constant.VerifyActionReject {
		return nil, autherror.NewValidationError("action", "must be one of: approve reject")
	}

	challenge, err := s.repo.GetChallengeByToken(ctx, input.Token)
	if err != nil {
		return nil, err
	}
	if challenge == nil {
		return nil, autherror.ErrInvalidOrExpiredLink
	}

	if challenge.Expired(s.now()) {
		if _, err := s.repo.DeleteChallenge(ctx, challenge.ID); err != nil {
			s.logger.Warn("failed to delete expired challenge", zap.String("challenge_id", challenge.ID), zap.Error(err))
		}
		return nil, autherror.ErrInvalidOrExpiredLink
	}

	if input.Action == constant.VerifyActionReject {
		if err := s.consumeChallenge(ctx, challenge); err != nil {
			return nil, err
		}
		s.record(ctx, domain.AuditEntry{
			UserID:    &challenge.UserID,
			Action:    constant.AuditAction2FA,
			IPAddress: challenge.IPAddress,
			UserAgent: challenge.DeviceFingerprint,
			Status:    constant.AuditStatusFailed,
			Details:   "login rejected by owner",
		})
		return &VerifyRejected{Message: rejectedLoginMessage}, nil
	}

	account, err := s.repo.GetByID(ctx, challenge.UserID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, autherror.ErrInvalidOrExpiredLink
	}

	if err := s.reconcileLock(ctx, account); err != nil {
		return nil, err
	}

	if err := s.consumeChallenge(ctx, challenge); err != nil {
		return nil, err
	}

	session, err := s.completeLogin(ctx, account, challenge.IPAddress)
	if err != nil {
		return nil, err
	}

	s.record(ctx, domain.AuditEntry{
		UserID:    &account.ID,
		Email:     account.Email,
		Action:    constant.AuditAction2FA,
		IPAddress: challenge.IPAddress,
		UserAgent: challenge.DeviceFingerprint,
		Status:    constant.AuditStatusSuccess,
		Details:   "login approved by owner",
	})

	return &VerifyApproved{Account: account, Session: session}, nil
}

// consumeChallenge deletes the row; losing a race to another click counts as an invalid link.
func (s *UserService) consumeChallenge(ctx context.Context, challenge *domain.PendingLoginChallenge) error {
	deleted, err := s.repo.DeleteChallenge(ctx, challenge.ID)
	if err != nil {
		return err
	}
	if !deleted {
		return autherror.ErrInvalidOrExpiredLink
	}
	return nil
}

// completeLogin mints tokens and stamps the login on the account.
func (s *UserService) completeLogin(ctx context.Context, account *domain.Account, ip string) (*dto.Session, error) {
	session, err := s.issueSession(ctx, account)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.repo.UpdateAccount(ctx, account.ID, domain.AccountUpdate{
		LastLoginIP: &ip,
		LastLoginAt: &now,
	}); err != nil {
		return nil, err
	}
	account.LastLoginIP = &ip
	account.LastLoginAt = &now

	return session, nil
}

func (s *UserService) issueSession(ctx context.Context, account *domain.Account) (*dto.Session, error) {
	accessToken, accessExpiresAt, err := s.tokenService.IssueAccess(account)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refreshToken, refreshExpiresAt, err := s.tokenService.IssueRefresh(account.ID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	if err := s.repo.StoreRefreshToken(ctx, &domain.RefreshToken{
		UserID:    account.ID,
		Token:     refreshToken,
		ExpiresAt: refreshExpiresAt,
		CreatedAt: s.now(),
	}); err != nil {
		return nil, err
	}

	return &dto.Session{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}

// Refresh mints a new access token. The refresh token itself is not rotated.
func (s *UserService) Refresh(ctx context.Context, refreshToken, ip string) (*dto.Session, error) {
	if refreshToken == "" {
		return nil, autherror.ErrRefreshTokenMissing
	}

	claims, err := s.tokenService.VerifyRefresh(refreshToken)
	if err != nil {
		// The signed expiry lapses no later than the stored one, so an
		// expired record is only ever seen here.
		s.purgeExpiredRefresh(ctx, refreshToken)
		return nil, autherror.ErrInvalidToken
	}

	stored, err := s.repo.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.UserID != claims.UserID {
		return nil, autherror.ErrRefreshTokenNotFound
	}

	if stored.Expired(s.now()) {
		if err := s.repo.DeleteRefreshToken(ctx, refreshToken); err != nil {
			s.logger.Warn("failed to delete expired refresh token", zap.Int64("user_id", stored.UserID), zap.Error(err))
		}
		return nil, autherror.ErrRefreshTokenExpired
	}

	account, err := s.repo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, autherror.ErrUserNotFound
	}

	if err := s.reconcileLock(ctx, account); err != nil {
		return nil, err
	}

	accessToken, expiresAt, err := s.tokenService.IssueAccess(account)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	s.record(ctx, domain.AuditEntry{
		UserID:    &account.ID,
		Email:     account.Email,
		Action:    constant.AuditActionRefresh,
		IPAddress: ip,
		Status:    constant.AuditStatusSuccess,
	})

	return &dto.Session{AccessToken: accessToken, AccessExpiresAt: expiresAt}, nil
}

func (s *UserService) purgeExpiredRefresh(ctx context.Context, refreshToken string) {
	stored, err := s.repo.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		s.logger.Warn("failed to look up rejected refresh token", zap.Error(err))
		return
	}
	if stored == nil || !stored.Expired(s.now()) {
		return
	}
	if err := s.repo.DeleteRefreshToken(ctx, refreshToken); err != nil {
		s.logger.Warn("failed to delete expired refresh token", zap.Int64("user_id", stored.UserID), zap.Error(err))
	}
}

// Logout forgets the refresh token if one was presented. It succeeds whether
// or not a stored record existed.
func (s *UserService) Logout(ctx context.Context, identity *dto.Identity, refreshToken string, ip string) {
	if refreshToken != "" {
		if err := s.repo.DeleteRefreshToken(ctx, refreshToken); err != nil {
			s.logger.Warn("failed to delete refresh token on logout", zap.Int64("user_id", identity.ID), zap.Error(err))
		}
	}

	s.record(ctx, domain.AuditEntry{
		UserID:    &identity.ID,
		Email:     identity.Email,
		Action:    constant.AuditActionLogout,
		IPAddress: ip,
		Status:    constant.AuditStatusSuccess,
	})
}

// Me loads the caller's profile, lifting an expired lock on the way.
func (s *UserService) Me(ctx context.Context, userID int64) (*domain.Account, error) {
	account, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, autherror.ErrUserNotFound
	}

	if err := s.reconcileLock(ctx, account); err != nil && !errors.Is(err, autherror.ErrAccountLocked) {
		return nil, err
	}
	return account, nil
}

// reconcileLock clears a lapsed lock in storage and returns
// *autherror.AccountLockedError while the lock is in force.
func (s *UserService) reconcileLock(ctx context.Context, account *domain.Account) error {
	now := s.now()

	if account.IsLocked(now) {
		return &autherror.AccountLockedError{Until: *account.LockedUntil}
	}

	if account.LockExpired(now) {
		if _, err := s.repo.Unlock(ctx, account.ID); err != nil {
			return err
		}
		account.ClearLock()
		s.logger.Info("lock expired, account unlocked", zap.Int64("user_id", account.ID))
	}
	return nil
}

func (s *UserService) LockAccount(ctx context.Context, admin *dto.Identity, targetID int64, input dto.LockInput) error {
	now := s.now()
	if !input.LockedUntil.After(now) {
		return autherror.NewValidationError("lockedUntil", "must be in the future")
	}
	reason := strings.TrimSpace(input.LockReason)
	if reason == "" {
		return autherror.NewValidationError("lockReason", "is required")
	}

	found, err := s.repo.Lock(ctx, targetID, domain.AccountLock{
		LockedBy:    admin.ID,
		LockedAt:    now,
		LockedUntil: input.LockedUntil,
		Reason:      reason,
	})
	if err != nil {
		return err
	}
	if !found {
		return autherror.ErrUserNotFound
	}

	s.record(ctx, domain.AuditEntry{
		UserID:  &targetID,
		Action:  constant.AuditActionLock,
		Status:  constant.AuditStatusSuccess,
		Details: fmt.Sprintf("locked by %d until %s: %s", admin.ID, input.LockedUntil.UTC().Format(time.RFC3339), reason),
	})
	return nil
}

func (s *UserService) UnlockAccount(ctx context.Context, admin *dto.Identity, targetID int64) error {
	found, err := s.repo.Unlock(ctx, targetID)
	if err != nil {
		return err
	}
	if !found {
		return autherror.ErrUserNotFound
	}

	s.record(ctx, domain.AuditEntry{
		UserID:  &targetID,
		Action:  constant.AuditActionUnlock,
		Status:  constant.AuditStatusSuccess,
		Details: fmt.Sprintf("unlocked by %d", admin.ID),
	})
	return nil
}

func (s *UserService) AuditTrail(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	return s.audit.Query(ctx, filter)
}

func (s *UserService) record(ctx context.Context, entry domain.AuditEntry) {
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit entry", zap.String("action", entry.Action), zap.Error(err))
	}
}

func (s *UserService) verificationLink(token, action string) string {
	return fmt.Sprintf("%s/verify-2fa?token=%s&action=%s", s.appBaseURL, token, action)
}

type nopMailer struct{}

func (nopMailer) Send(context.Context, string, string, string) error {
	return errors.New("no mailer configured")
}

type nopAudit struct{}

func (nopAudit) Record(context.Context, domain.AuditEntry) error { return nil }

func (nopAudit) Query(context.Context, domain.AuditFilter) ([]domain.AuditEntry, error) {
	return nil, nil
}

type nopLimiter struct{}

func (nopLimiter) Allow(context.Context, string, string) error { return nil }
func (nopLimiter) Fail(context.Context, string, string) error  { return nil }
func (nopLimiter) Reset(context.Context, string, string) error { return nil }

type nopCaptcha struct{}

func (nopCaptcha) Verify(context.Context, string, string) error { return nil }
