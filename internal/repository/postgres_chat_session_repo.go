package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/muriarq/mailgate/internal/model"
)

// PostgresChatSessionRepo はPostgreSQLを使用したチャットセッションリポジトリ。
type PostgresChatSessionRepo struct {
	db *sql.DB
}

// NewPostgresChatSessionRepo はPostgresChatSessionRepoを生成する。
func NewPostgresChatSessionRepo(db *sql.DB) *PostgresChatSessionRepo {
	return &PostgresChatSessionRepo{db: db}
}

// Upsert はチャットのセッションを作成する。既存のセッションは新しいアカウントと期限で置き換える。
func (r *PostgresChatSessionRepo) Upsert(ctx context.Context, session *model.ChatSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (chat_id, account_id, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (chat_id) DO UPDATE
		 SET account_id = EXCLUDED.account_id,
		     expires_at = EXCLUDED.expires_at,
		     created_at = EXCLUDED.created_at`,
		session.ChatID, session.AccountID, session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert chat session: %w", err)
	}
	return nil
}

// FindByChatID はチャットのセッションを取得する。期限切れの場合はnilを返す。
func (r *PostgresChatSessionRepo) FindByChatID(ctx context.Context, chatID string) (*model.ChatSession, error) {
	session := &model.ChatSession{}
	err := r.db.QueryRowContext(ctx,
		`SELECT chat_id, account_id, expires_at, created_at
		 FROM chat_sessions
		 WHERE chat_id = $1 AND expires_at > now()`,
		chatID,
	).Scan(&session.ChatID, &session.AccountID, &session.ExpiresAt, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find chat session: %w", err)
	}

	return session, nil
}

// DeleteByChatID はチャットのセッションを削除する。
func (r *PostgresChatSessionRepo) DeleteByChatID(ctx context.Context, chatID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM chat_sessions WHERE chat_id = $1`,
		chatID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete chat session: %w", err)
	}
	return nil
}

// DeleteExpired は期限切れのセッションを削除する。
func (r *PostgresChatSessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM chat_sessions WHERE expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired chat sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ ChatSessionRepository = (*PostgresChatSessionRepo)(nil)
