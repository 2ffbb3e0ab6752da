// Package telegram はTelegram Bot APIのWebhook Update型とメッセージ送信クライアントを提供する。
package telegram

// Update はWebhookで受信するTelegramのUpdate。
// このボットはテキストメッセージのみを扱うため、必要なフィールドだけを定義する。
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message はTelegramのメッセージ。
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text,omitempty"`
}

// Chat はメッセージの送信先チャット。
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// User はメッセージの送信者。
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

// sendMessageRequest はsendMessageのリクエストボディ。
type sendMessageRequest struct {
	ChatID          int64            `json:"chat_id"`
	Text            string           `json:"text"`
	ParseMode       string           `json:"parse_mode,omitempty"`
	ReplyParameters *replyParameters `json:"reply_parameters,omitempty"`
}

type replyParameters struct {
	MessageID                int64 `json:"message_id"`
	AllowSendingWithoutReply bool  `json:"allow_sending_without_reply"`
}

// setWebhookRequest はsetWebhookのリクエストボディ。
type setWebhookRequest struct {
	URL            string   `json:"url"`
	SecretToken    string   `json:"secret_token,omitempty"`
	AllowedUpdates []string `json:"allowed_updates"`
	DropPending    bool     `json:"drop_pending_updates"`
}

// apiResponse はBot APIの共通レスポンス形式。
type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}
