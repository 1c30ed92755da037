package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/socialblog/auth-service/config"
	"github.com/socialblog/auth-service/db"
	"github.com/socialblog/auth-service/internal/audit"
	"github.com/socialblog/auth-service/internal/auth/handler"
	repo "github.com/socialblog/auth-service/internal/auth/repository/postgres"
	"github.com/socialblog/auth-service/internal/auth/service"
	"github.com/socialblog/auth-service/internal/captcha"
	"github.com/socialblog/auth-service/internal/mail"
	"github.com/socialblog/auth-service/internal/ratelimit"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.IsProduction() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	return logger
}

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := db.NewPostgresPool(ctx, cfg.DBURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer dbPool.Close()

	if err := db.EnsureSchema(ctx, dbPool); err != nil {
		logger.Fatal("failed to apply schema", zap.Error(err))
	}
	userRepo := repo.NewPostgresRepository(dbPool)

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithAuditLog(audit.NewRecorder(userRepo, logger)),
	}

	redisClient, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
		opts = append(opts, service.WithLoginLimiter(ratelimit.NewLoginLimiter(redisClient, ratelimit.Config{
			MaxAttempts: cfg.LoginMaxAttempts,
			Window:      time.Duration(cfg.LoginWindowMinutes) * time.Minute,
		})))
	} else {
		logger.Warn("REDIS_URL not set, login throttling disabled")
	}

	if cfg.SMTPHost != "" {
		opts = append(opts, service.WithMailer(mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})))
	} else {
		logger.Warn("SMTP_HOST not set, approval emails are only logged")
		opts = append(opts, service.WithMailer(mail.NewLogMailer(logger)))
	}

	if cfg.TurnstileSecretKey != "" {
		opts = append(opts, service.WithCaptcha(captcha.NewTurnstile(cfg.TurnstileSecretKey, logger)))
	}

	tokenService := service.NewTokenService(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.AccessExpiryMin, cfg.RefreshExpiryMin)
	userService := service.NewUserService(userRepo, tokenService, cfg, opts...)
	authHandler := handler.NewAuthHandler(userService, tokenService, handler.CookieConfig{
		Domain: cfg.CookieDomain,
		Secure: cfg.IsProduction(),
	}, logger)

	app := fiber.New(fiber.Config{
		ErrorHandler: handler.ErrorHandler(logger),
		Immutable:    true,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(helmet.New())
	app.Use(handler.CORS(cfg.AppBaseURL))
	app.Use(handler.RequestLogger(logger))
	handler.RegisterRoutes(app, authHandler)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("auth service listening", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
	if err := app.Listen(":" + cfg.Port); err != nil {
		logger.Error("server stopped", zap.Error(err))
	}
}
