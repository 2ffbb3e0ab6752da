// Package model はドメインモデルを定義する。
package model

import "time"

// UnknownActor は監査レコードで操作主体を特定できない場合に使う識別子。
const UnknownActor = "unknown"

// Account はログイン可能なオペレーターのアカウントを表す。
// アカウントの作成とパスワードダイジェストの変更は外部のプロビジョニングで行い、
// このサービスは失敗回数・有効フラグ・最終アクセス日時のみを更新する。
type Account struct {
	ID                  string
	CredentialDigest    string
	Active              bool
	FailedAttempts      int
	AuthorizedResources []string
	LastAccessAt        *time.Time
}

// AuditRecord はアクセス判定1回分の監査ログ。追記のみで更新・削除はしない。
type AuditRecord struct {
	ID          string
	Actor       string
	RequestedBy string
	Resource    string
	Permitted   bool
	Detail      string
	OccurredAt  time.Time
}

// ChatSession はチャットとログイン済みアカウントの紐付けを表す。
type ChatSession struct {
	ChatID    string
	AccountID string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired はセッションが期限切れかどうかを返す。
func (s *ChatSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
