package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/muriarq/mailgate/internal/middleware"
	"github.com/muriarq/mailgate/internal/model"
	"github.com/muriarq/mailgate/internal/repository"
)

// healthCheckTimeout はストアへの疎通確認のタイムアウト。
const healthCheckTimeout = 3 * time.Second

// rootMessage は GET / の応答本文。
const rootMessage = "Bot de Muriarq activo."

// HealthHandler は稼働確認用のエンドポイントを提供する。
type HealthHandler struct {
	store  repository.Pinger
	logger *slog.Logger
}

// NewHealthHandler はHealthHandlerを生成する。storeがnilの場合はストアを確認しない。
func NewHealthHandler(store repository.Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{store: store, logger: logger}
}

// Root は GET / を処理する。
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, rootMessage)
}

// Health は GET /health を処理する。ストアに接続できない場合は503を返す。
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		if err := h.store.PingContext(ctx); err != nil {
			h.logger.Warn("health check failed", slog.String("error", err.Error()))
			middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewStoreUnavailableError())
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
