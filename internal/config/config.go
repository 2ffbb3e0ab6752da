package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ストアのバックエンド種別
const (
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Telegram
	TelegramToken   string
	TelegramAPIURL  string
	TelegramTimeout time.Duration
	WebhookSecret   string

	// Store
	StoreBackend            string
	DatabaseURL             string
	FirestoreProjectID      string
	FirebaseCredentialsFile string

	// Access policy
	AllowedEmailDomain string
	MaxFailedAttempts  int

	// Session
	SessionMaxAge int

	// Rate Limit（1チャットあたり1分間の上限）
	RateLimitCommands int
	RateLimitLogin    int

	// Worker
	CleanupInterval time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken == "" {
		missing = append(missing, "TELEGRAM_TOKEN")
	}

	cfg.StoreBackend = strings.ToLower(getEnvString("STORE_BACKEND", BackendPostgres))
	switch cfg.StoreBackend {
	case BackendPostgres:
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case BackendFirestore:
		cfg.FirestoreProjectID = os.Getenv("FIRESTORE_PROJECT_ID")
		if cfg.FirestoreProjectID == "" {
			missing = append(missing, "FIRESTORE_PROJECT_ID")
		}
	default:
		return nil, fmt.Errorf("unsupported STORE_BACKEND: %q (allowed: %s, %s)", cfg.StoreBackend, BackendPostgres, BackendFirestore)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.TelegramAPIURL = strings.TrimRight(getEnvString("TELEGRAM_API_URL", "https://api.telegram.org"), "/")
	cfg.TelegramTimeout = getEnvDuration("TELEGRAM_TIMEOUT", 10*time.Second)
	cfg.WebhookSecret = getEnvString("WEBHOOK_SECRET", "")
	cfg.FirebaseCredentialsFile = getEnvString("FIREBASE_CREDENTIALS_FILE", "firebase-credentials.json")
	cfg.AllowedEmailDomain = NormalizeDomain(getEnvString("ALLOWED_EMAIL_DOMAIN", "@muriarq.com"))
	cfg.MaxFailedAttempts = getEnvInt("MAX_FAILED_ATTEMPTS", 3)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 43200)
	cfg.RateLimitCommands = getEnvInt("RATE_LIMIT_COMMANDS", 30)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 5)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", time.Hour)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	// PaaS（Render等）はPORTを注入するため、SERVER_PORT未設定時のフォールバックとする
	cfg.ServerPort = getEnvString("SERVER_PORT", getEnvString("PORT", "8080"))
	cfg.BaseURL = strings.TrimRight(getEnvString("BASE_URL", ""), "/")

	// 空のドメインはHasSuffixが常に真になり、ドメイン検査が無効になる
	if cfg.AllowedEmailDomain == "" || cfg.AllowedEmailDomain == "@" {
		return nil, fmt.Errorf("ALLOWED_EMAIL_DOMAIN must not be empty, got %q", os.Getenv("ALLOWED_EMAIL_DOMAIN"))
	}
	if cfg.MaxFailedAttempts < 1 {
		return nil, fmt.Errorf("MAX_FAILED_ATTEMPTS must be at least 1, got %d", cfg.MaxFailedAttempts)
	}
	if cfg.SessionMaxAge < 1 {
		return nil, fmt.Errorf("SESSION_MAX_AGE must be at least 1, got %d", cfg.SessionMaxAge)
	}
	if cfg.RateLimitCommands < 1 {
		return nil, fmt.Errorf("RATE_LIMIT_COMMANDS must be at least 1, got %d", cfg.RateLimitCommands)
	}
	if cfg.RateLimitLogin < 1 {
		return nil, fmt.Errorf("RATE_LIMIT_LOGIN must be at least 1, got %d", cfg.RateLimitLogin)
	}
	if cfg.CleanupInterval <= 0 {
		return nil, fmt.Errorf("CLEANUP_INTERVAL must be positive, got %s", cfg.CleanupInterval)
	}

	return cfg, nil
}

// NormalizeDomain はドメインサフィックスを小文字にし、先頭に"@"を付与する。
// "Muriarq.com" と "@muriarq.com" はどちらも "@muriarq.com" になる。
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	if d == "" {
		return ""
	}
	if !strings.HasPrefix(d, "@") {
		d = "@" + d
	}
	return d
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
