package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	DefaultPort                  = "8080"
	DefaultAccessTokenExpiryMin  = 15
	DefaultRefreshTokenExpiryMin = 7 * 24 * 60
	DefaultBcryptCost            = 10
	DefaultLoginMaxAttempts      = 5
	DefaultLoginWindowMinutes    = 15
	DefaultChallengeExpiryMin    = 5
	DefaultAppBaseURL            = "http://localhost:5173"
	DefaultAppName               = "SocialBlog"
	DefaultSMTPPort              = 587
	DefaultMailTimeoutSeconds    = 10
)

type Config struct {
	Env                string
	Port               string
	DBURL              string
	RedisURL           string
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessExpiryMin    int
	RefreshExpiryMin   int
	BcryptCost         int
	LoginMaxAttempts   int
	LoginWindowMinutes int
	ChallengeExpiryMin int
	AppBaseURL         string
	AppName            string
	CookieDomain       string
	SMTPHost           string
	SMTPPort           int
	SMTPUser           string
	SMTPPassword       string
	MailFrom           string
	MailTimeoutSeconds int
	TurnstileSecretKey string
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads config/.env.dev or config/.env.prod (chosen by ENV) and lets
// the process environment override any value found in the file.
func Load() *Config {
	env := getEnv("ENV", "development")

	fileName := ".env.dev"
	if env == "production" {
		fileName = ".env.prod"
	}
	fileVals, err := godotenv.Read(filepath.Join("config", fileName))
	if err != nil {
		fileVals = map[string]string{}
	}

	l := loader{file: fileVals}

	cfg := &Config{
		Env:                env,
		Port:               l.get("PORT", DefaultPort),
		DBURL:              l.must("DB_URL"),
		RedisURL:           l.get("REDIS_URL", ""),
		AccessTokenSecret:  l.must("ACCESS_TOKEN_SECRET"),
		RefreshTokenSecret: l.must("REFRESH_TOKEN_SECRET"),
		AccessExpiryMin:    l.getInt("ACCESS_TOKEN_EXPIRY", DefaultAccessTokenExpiryMin),
		RefreshExpiryMin:   l.getInt("REFRESH_TOKEN_EXPIRY", DefaultRefreshTokenExpiryMin),
		BcryptCost:         l.getInt("BCRYPT_COST", DefaultBcryptCost),
		LoginMaxAttempts:   l.getInt("LOGIN_MAX_ATTEMPTS", DefaultLoginMaxAttempts),
		LoginWindowMinutes: l.getInt("LOGIN_WINDOW_MINUTES", DefaultLoginWindowMinutes),
		ChallengeExpiryMin: l.getInt("CHALLENGE_EXPIRY", DefaultChallengeExpiryMin),
		AppBaseURL:         l.get("APP_BASE_URL", DefaultAppBaseURL),
		AppName:            l.get("APP_NAME", DefaultAppName),
		CookieDomain:       l.get("COOKIE_DOMAIN", ""),
		SMTPHost:           l.get("SMTP_HOST", ""),
		SMTPPort:           l.getInt("SMTP_PORT", DefaultSMTPPort),
		SMTPUser:           l.get("SMTP_USER", ""),
		SMTPPassword:       l.get("SMTP_PASSWORD", ""),
		MailFrom:           l.get("MAIL_FROM", "noreply@socialblog.com"),
		MailTimeoutSeconds: l.getInt("MAIL_TIMEOUT_SECONDS", DefaultMailTimeoutSeconds),
		TurnstileSecretKey: l.get("TURNSTILE_SECRET_KEY", ""),
	}

	if cfg.AccessTokenSecret == cfg.RefreshTokenSecret {
		log.Fatalf("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}

	return cfg
}

type loader struct {
	file map[string]string
}

func (l loader) lookup(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return l.file[key]
}

func (l loader) get(key, defaultVal string) string {
	if value := l.lookup(key); value != "" {
		return value
	}
	return defaultVal
}

func (l loader) must(key string) string {
	if value := l.lookup(key); value != "" {
		return value
	}
	log.Fatalf("Missing required config: %s", key)
	return ""
}

func (l loader) getInt(key string, defaultVal int) int {
	valStr := l.lookup(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Invalid value for %s, using default %d", key, defaultVal)
		return defaultVal
	}
	return val
}

func getEnv(key string, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}
