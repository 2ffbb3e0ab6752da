package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/muriarq/mailgate/internal/metrics"
)

const (
	// DefaultAPIURL はTelegram Bot APIのベースURL。
	DefaultAPIURL = "https://api.telegram.org"
	// ParseModeHTML は返信本文のパースモード。
	ParseModeHTML = "HTML"
	// maxResponseSize はBot APIレスポンスの読み取り上限。
	maxResponseSize = 1 << 20
)

// APIError はBot APIがok=falseまたは2xx以外を返した場合のエラー。
type APIError struct {
	Method      string
	StatusCode  int
	Description string
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed with status %d: %s", e.Method, e.StatusCode, e.Description)
}

// Client はTelegram Bot APIのクライアント。
// ボットトークンはリクエストURLに含まれるため、ログやエラーにURLを出力しない。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	baseURL    string
	token      string
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLが空の場合はDefaultAPIURLを使用する。collectorがnilの場合はメトリクスを記録しない。
func NewClient(httpClient *http.Client, logger *slog.Logger, collector metrics.MetricsCollector, baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		metrics:    collector,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}
}

// SendMessage はチャットにHTMLパースモードのメッセージを送信する。
// replyToが0より大きい場合はそのメッセージへの返信として送信する。
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, replyTo int64) error {
	req := sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: ParseModeHTML,
	}
	if replyTo > 0 {
		req.ReplyParameters = &replyParameters{
			MessageID:                replyTo,
			AllowSendingWithoutReply: true,
		}
	}
	return c.call(ctx, "sendMessage", req)
}

// SetWebhook はWebhookのURLを登録する。
// secretが空でない場合、TelegramはX-Telegram-Bot-Api-Secret-Tokenヘッダーでそれを送り返す。
func (c *Client) SetWebhook(ctx context.Context, webhookURL, secret string) error {
	return c.call(ctx, "setWebhook", setWebhookRequest{
		URL:            webhookURL,
		SecretToken:    secret,
		AllowedUpdates: []string{"message"},
	})
}

// call はBot APIのメソッドをJSONで呼び出す。
func (c *Client) call(ctx context.Context, method string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	endpoint := c.baseURL + "/bot" + c.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request", method)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "mailgate/1.0")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RecordTelegramLatency(method, time.Since(start))
	if err != nil {
		c.metrics.RecordTelegramStatus(method, 0)
		err = stripURL(err)
		c.logger.Error("telegram request failed",
			slog.String("method", method),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to call telegram %s: %w", method, err)
	}
	defer resp.Body.Close()
	c.metrics.RecordTelegramStatus(method, resp.StatusCode)

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read telegram %s response: %w", method, err)
	}

	var result apiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		result.Description = http.StatusText(resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !result.OK {
		c.logger.Error("telegram returned an error",
			slog.String("method", method),
			slog.Int("http_status", resp.StatusCode),
			slog.String("description", result.Description),
		)
		return &APIError{Method: method, StatusCode: resp.StatusCode, Description: result.Description}
	}

	return nil
}

// stripURL はトークンを含むリクエストURLをエラーから取り除く。
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
