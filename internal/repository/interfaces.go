// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/muriarq/mailgate/internal/model"
)

// AccountRepository はアカウント（認証情報ストア）の永続化インターフェース。
// 失敗回数の加算とロックは読み出しと書き込みを分けず、1回の原子的な条件付き更新で行うこと。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// RecordFailure は有効なアカウントの失敗回数を1加算する。
	// 加算後の値がmaxAttempts以上になった場合は同じ更新でactive=falseにする。
	// 加算後の失敗回数と有効フラグを返す。
	// アカウントが存在しないか既に無効な場合は更新せずok=falseを返す。
	RecordFailure(ctx context.Context, id string, maxAttempts int) (attempts int, active bool, ok bool, err error)

	// RecordSuccess は有効なアカウントの失敗回数を0に戻し、最終アクセス日時を更新する。
	// アカウントが存在しないか既に無効な場合は更新せずfalseを返す。
	RecordSuccess(ctx context.Context, id string, at time.Time) (bool, error)

	// ListActiveByAuthorizedResource は許可リストにresourceを含む有効なアカウントのIDをID昇順で返す。
	ListActiveByAuthorizedResource(ctx context.Context, resource string) ([]string, error)
}

// AuditRepository は監査ログの追記専用インターフェース。
type AuditRepository interface {
	// Append は監査レコードを1件追記する。
	// 同じIDのレコードが既に存在する場合は何もしない（再送しても重複しない）。
	Append(ctx context.Context, record *model.AuditRecord) error
}

// ChatSessionRepository はチャットのログインセッションの永続化インターフェース。
type ChatSessionRepository interface {
	// Upsert はチャットのセッションを作成または置き換える。
	Upsert(ctx context.Context, session *model.ChatSession) error
	// FindByChatID はチャットのセッションを取得する。見つからない、または期限切れの場合はnilを返す。
	FindByChatID(ctx context.Context, chatID string) (*model.ChatSession, error)
	// DeleteByChatID はチャットのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByChatID(ctx context.Context, chatID string) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Pinger はストアの疎通確認用インターフェース。
type Pinger interface {
	PingContext(ctx context.Context) error
}
