package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/muriarq/mailgate/internal/model"
)

// Firestoreのコレクション名。既存ボットのデータをそのまま読めるよう名前を合わせている。
const (
	accountsCollection     = "usuarios"
	auditCollection        = "auditoria"
	chatSessionsCollection = "sesiones_chat"
)

// Firestoreのアカウントドキュメントのフィールド名。
const (
	fieldCredentialDigest    = "contrasena_hash"
	fieldActive              = "activo"
	fieldFailedAttempts      = "intentos_fallidos"
	fieldAuthorizedResources = "correos_autorizados"
	fieldLastAccessAt        = "ultimo_acceso"
)

// firestoreAccount はusuariosコレクションのドキュメント形式。
type firestoreAccount struct {
	CredentialDigest    string    `firestore:"contrasena_hash"`
	Active              bool      `firestore:"activo"`
	FailedAttempts      int       `firestore:"intentos_fallidos"`
	AuthorizedResources []string  `firestore:"correos_autorizados"`
	LastAccessAt        time.Time `firestore:"ultimo_acceso"`
}

func (d *firestoreAccount) toModel(id string) *model.Account {
	account := &model.Account{
		ID:                  id,
		CredentialDigest:    d.CredentialDigest,
		Active:              d.Active,
		FailedAttempts:      d.FailedAttempts,
		AuthorizedResources: d.AuthorizedResources,
	}
	if !d.LastAccessAt.IsZero() {
		t := d.LastAccessAt
		account.LastAccessAt = &t
	}
	return account
}

// FirestoreAccountRepo はFirestoreを使用したアカウントリポジトリ。
type FirestoreAccountRepo struct {
	client *firestore.Client
}

// NewFirestoreAccountRepo はFirestoreAccountRepoを生成する。
func NewFirestoreAccountRepo(client *firestore.Client) *FirestoreAccountRepo {
	return &FirestoreAccountRepo{client: client}
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *FirestoreAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	if !validDocumentID(id) {
		return nil, nil
	}

	snap, err := r.client.Collection(accountsCollection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}

	var doc firestoreAccount
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode account document: %w", err)
	}
	return doc.toModel(snap.Ref.ID), nil
}

// RecordFailure は失敗回数の加算と閾値到達時の無効化を1つのトランザクションで行う。
// トランザクション関数は競合時に再実行されるため、戻り値は毎回初期化する。
func (r *FirestoreAccountRepo) RecordFailure(ctx context.Context, id string, maxAttempts int) (int, bool, bool, error) {
	if !validDocumentID(id) {
		return 0, false, false, nil
	}

	ref := r.client.Collection(accountsCollection).Doc(id)

	var attempts int
	var active, ok bool
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		attempts, active, ok = 0, false, false

		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return nil
		}
		if err != nil {
			return err
		}

		var doc firestoreAccount
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		if !doc.Active {
			return nil
		}

		attempts = doc.FailedAttempts + 1
		active = attempts < maxAttempts
		ok = true

		updates := []firestore.Update{{Path: fieldFailedAttempts, Value: attempts}}
		if !active {
			updates = append(updates, firestore.Update{Path: fieldActive, Value: false})
		}
		return tx.Update(ref, updates)
	})
	if err != nil {
		return 0, false, false, fmt.Errorf("failed to record failed attempt: %w", err)
	}

	return attempts, active, ok, nil
}

// RecordSuccess は失敗回数のリセットと最終アクセス日時の更新を1つのトランザクションで行う。
func (r *FirestoreAccountRepo) RecordSuccess(ctx context.Context, id string, at time.Time) (bool, error) {
	if !validDocumentID(id) {
		return false, nil
	}

	ref := r.client.Collection(accountsCollection).Doc(id)

	var updated bool
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		updated = false

		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return nil
		}
		if err != nil {
			return err
		}

		var doc firestoreAccount
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		if !doc.Active {
			return nil
		}

		updated = true
		return tx.Update(ref, []firestore.Update{
			{Path: fieldFailedAttempts, Value: 0},
			{Path: fieldLastAccessAt, Value: at},
		})
	})
	if err != nil {
		return false, fmt.Errorf("failed to record successful login: %w", err)
	}

	return updated, nil
}

// ListActiveByAuthorizedResource は許可リストにresourceを含む有効なアカウントのIDをID昇順で返す。
func (r *FirestoreAccountRepo) ListActiveByAuthorizedResource(ctx context.Context, resource string) ([]string, error) {
	iter := r.client.Collection(accountsCollection).
		Where(fieldAuthorizedResources, "array-contains", resource).
		Where(fieldActive, "==", true).
		Documents(ctx)
	defer iter.Stop()

	var ids []string
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query accounts by authorized resource: %w", err)
		}
		ids = append(ids, snap.Ref.ID)
	}

	sort.Strings(ids)
	return ids, nil
}

// validDocumentID はFirestoreのドキュメントIDとして使える文字列かを判定する。
// "/"を含むIDはサブコレクションのパスとして解釈されるため、存在しないものとして扱う。
func validDocumentID(id string) bool {
	return id != "" && !strings.Contains(id, "/") && id != "." && id != ".."
}

// compile-time interface check
var _ AccountRepository = (*FirestoreAccountRepo)(nil)
