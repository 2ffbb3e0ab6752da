package repository

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/muriarq/mailgate/internal/model"
)

// firestoreChatSession はsesiones_chatコレクションのドキュメント形式。
type firestoreChatSession struct {
	AccountID string    `firestore:"usuario"`
	ExpiresAt time.Time `firestore:"expira"`
	CreatedAt time.Time `firestore:"creada"`
}

// FirestoreChatSessionRepo はFirestoreを使用したチャットセッションリポジトリ。
type FirestoreChatSessionRepo struct {
	client *firestore.Client
	now    func() time.Time
}

// NewFirestoreChatSessionRepo はFirestoreChatSessionRepoを生成する。
func NewFirestoreChatSessionRepo(client *firestore.Client) *FirestoreChatSessionRepo {
	return &FirestoreChatSessionRepo{client: client, now: time.Now}
}

// Upsert はチャットIDをドキュメントIDとしてセッションを書き込む。
func (r *FirestoreChatSessionRepo) Upsert(ctx context.Context, session *model.ChatSession) error {
	_, err := r.client.Collection(chatSessionsCollection).Doc(session.ChatID).Set(ctx, firestoreChatSession{
		AccountID: session.AccountID,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert chat session: %w", err)
	}
	return nil
}

// FindByChatID はチャットのセッションを取得する。見つからない、または期限切れの場合はnilを返す。
func (r *FirestoreChatSessionRepo) FindByChatID(ctx context.Context, chatID string) (*model.ChatSession, error) {
	if !validDocumentID(chatID) {
		return nil, nil
	}

	snap, err := r.client.Collection(chatSessionsCollection).Doc(chatID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find chat session: %w", err)
	}

	var doc firestoreChatSession
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode chat session: %w", err)
	}

	session := &model.ChatSession{
		ChatID:    snap.Ref.ID,
		AccountID: doc.AccountID,
		ExpiresAt: doc.ExpiresAt,
		CreatedAt: doc.CreatedAt,
	}
	if session.Expired(r.now()) {
		return nil, nil
	}
	return session, nil
}

// DeleteByChatID はチャットのセッションを削除する。存在しないドキュメントの削除はエラーにならない。
func (r *FirestoreChatSessionRepo) DeleteByChatID(ctx context.Context, chatID string) error {
	if !validDocumentID(chatID) {
		return nil
	}
	if _, err := r.client.Collection(chatSessionsCollection).Doc(chatID).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete chat session: %w", err)
	}
	return nil
}

// DeleteExpired は期限切れのセッションを1件ずつ削除し、削除件数を返す。
func (r *FirestoreChatSessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	iter := r.client.Collection(chatSessionsCollection).
		Where("expira", "<=", now).
		Documents(ctx)
	defer iter.Stop()

	var deleted int64
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return deleted, fmt.Errorf("failed to query expired chat sessions: %w", err)
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return deleted, fmt.Errorf("failed to delete expired chat session: %w", err)
		}
		deleted++
	}
	return deleted, nil
}

// compile-time interface check
var _ ChatSessionRepository = (*FirestoreChatSessionRepo)(nil)
