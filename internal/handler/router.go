package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/muriarq/mailgate/internal/metrics"
	"github.com/muriarq/mailgate/internal/middleware"
	"github.com/muriarq/mailgate/internal/repository"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Updates       UpdateHandler
	HealthChecker repository.Pinger
	// Gathererがnilの場合は/metricsを公開しない
	Gatherer prometheus.Gatherer

	TelegramToken string
	WebhookSecret string

	Logger *slog.Logger
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware → SecurityHeadersMiddleware
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	healthHandler := NewHealthHandler(deps.HealthChecker, logger)
	webhookHandler := NewWebhookHandler(deps.Updates, deps.TelegramToken, deps.WebhookSecret, logger)

	r.Get("/", healthHandler.Root)
	r.Get("/health", healthHandler.Health)

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// Telegram Webhook（パスにBotトークンを含む）
	r.Post("/{token}", webhookHandler.ServeUpdate)

	return r
}
