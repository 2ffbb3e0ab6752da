// Package handler はHTTPエンドポイント（Telegram Webhook、ヘルスチェック）を提供する。
package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/muriarq/mailgate/internal/middleware"
	"github.com/muriarq/mailgate/internal/model"
	"github.com/muriarq/mailgate/internal/telegram"
)

// maxUpdateBodySize はWebhookで受け付けるUpdateの最大サイズ。
const maxUpdateBodySize = 1 << 20

// secretTokenHeader はsetWebhookで登録したsecret_tokenをTelegramが付与するヘッダー。
const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// UpdateHandler はTelegramのUpdateを処理するインターフェース。
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update telegram.Update) error
}

// WebhookHandler はTelegramからのWebhook呼び出しを受け付ける。
type WebhookHandler struct {
	updates UpdateHandler
	token   string
	secret  string
	logger  *slog.Logger
}

// NewWebhookHandler はWebhookHandlerを生成する。
// secretが空の場合はシークレットヘッダーを検証しない。
func NewWebhookHandler(updates UpdateHandler, token, secret string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		updates: updates,
		token:   token,
		secret:  secret,
		logger:  logger,
	}
}

// ServeUpdate は POST /{token} を処理する。
// パスのトークンが一致しない場合は404を返し、エンドポイントの存在を明かさない。
// Updateの処理結果に関わらず200を返し、Telegramの再送を発生させない。
func (h *WebhookHandler) ServeUpdate(w http.ResponseWriter, r *http.Request) {
	if !constantTimeEqual(chi.URLParam(r, "token"), h.token) {
		http.NotFound(w, r)
		return
	}

	if h.secret != "" && !constantTimeEqual(r.Header.Get(secretTokenHeader), h.secret) {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidWebhookSecretError())
		return
	}

	var update telegram.Update
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUpdateBodySize)).Decode(&update); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidUpdateError("invalid JSON"))
		return
	}

	if err := h.updates.HandleUpdate(r.Context(), update); err != nil {
		h.logger.Error("failed to handle update",
			slog.Int64("update_id", update.UpdateID),
			slog.String("error", err.Error()),
		)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "OK")
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
