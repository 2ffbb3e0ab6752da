// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// Webhook等のHTTP応答で原因カテゴリと対処方法を返すために使う。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: webhook, validation, system
	Action   string // 呼び出し元向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidUpdate      = "INVALID_UPDATE"
	ErrCodeInvalidWebhookAuth = "INVALID_WEBHOOK_SECRET"
	ErrCodeStoreUnavailable   = "STORE_UNAVAILABLE"
)

// NewInvalidUpdateError はWebhookのリクエストボディが解析できない場合のエラーを生成する。
func NewInvalidUpdateError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidUpdate,
		Message:  fmt.Sprintf("Updateの解析に失敗しました: %s", reason),
		Category: "validation",
		Action:   "Telegram Bot APIのUpdate形式のJSONを送信してください。",
	}
}

// NewInvalidWebhookSecretError はシークレットトークンが一致しない場合のエラーを生成する。
func NewInvalidWebhookSecretError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidWebhookAuth,
		Message:  "Webhookのシークレットトークンが一致しません。",
		Category: "webhook",
		Action:   "setWebhookで登録したsecret_tokenを確認してください。",
	}
}

// NewStoreUnavailableError はデータストアに接続できない場合のエラーを生成する。
func NewStoreUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  "データストアに接続できません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// TransientError はデータストア障害など、呼び出し元が一時的な失敗として扱うべきエラー。
// このエラーが返った場合、アカウントと監査ログの状態は呼び出し前から変化していない。
type TransientError struct {
	Op  string
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError はTransientErrorを生成する。
func NewTransientError(op string, err error) *TransientError {
	return &TransientError{Op: op, Err: err}
}

// IsTransient はエラーチェーンにTransientErrorが含まれるかを返す。
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
