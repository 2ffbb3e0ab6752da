package repository

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/muriarq/mailgate/internal/model"
)

// firestoreAuditRecord はauditoriaコレクションのドキュメント形式。
type firestoreAuditRecord struct {
	Actor       string    `firestore:"usuario"`
	RequestedBy string    `firestore:"solicitado_por"`
	Resource    string    `firestore:"correo_solicitado"`
	Permitted   bool      `firestore:"acceso_permitido"`
	Detail      string    `firestore:"mensaje"`
	OccurredAt  time.Time `firestore:"fecha"`
}

// FirestoreAuditRepo はFirestoreを使用した監査ログリポジトリ。
type FirestoreAuditRepo struct {
	client *firestore.Client
}

// NewFirestoreAuditRepo はFirestoreAuditRepoを生成する。
func NewFirestoreAuditRepo(client *firestore.Client) *FirestoreAuditRepo {
	return &FirestoreAuditRepo{client: client}
}

// Append は監査レコードをIDをドキュメントIDとして作成する。
// Createは既存ドキュメントを上書きしないため、同じIDの再送はAlreadyExistsとなり無視する。
func (r *FirestoreAuditRepo) Append(ctx context.Context, record *model.AuditRecord) error {
	doc := firestoreAuditRecord{
		Actor:       record.Actor,
		RequestedBy: record.RequestedBy,
		Resource:    record.Resource,
		Permitted:   record.Permitted,
		Detail:      record.Detail,
		OccurredAt:  record.OccurredAt,
	}

	_, err := r.client.Collection(auditCollection).Doc(record.ID).Create(ctx, doc)
	if status.Code(err) == codes.AlreadyExists {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// compile-time interface check
var _ AuditRepository = (*FirestoreAuditRepo)(nil)
