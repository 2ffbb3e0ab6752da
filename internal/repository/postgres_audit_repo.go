package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/muriarq/mailgate/internal/model"
)

// PostgresAuditRepo はPostgreSQLを使用した監査ログリポジトリ。
// audit_recordsテーブルはトリガーでUPDATE/DELETEを拒否する追記専用テーブル。
type PostgresAuditRepo struct {
	db *sql.DB
}

// NewPostgresAuditRepo はPostgresAuditRepoを生成する。
func NewPostgresAuditRepo(db *sql.DB) *PostgresAuditRepo {
	return &PostgresAuditRepo{db: db}
}

// Append は監査レコードを1件追記する。同じIDが既にあれば何もしない。
func (r *PostgresAuditRepo) Append(ctx context.Context, record *model.AuditRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_records (id, actor, requested_by, resource, permitted, detail, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		record.ID, record.Actor, record.RequestedBy, record.Resource,
		record.Permitted, record.Detail, record.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// compile-time interface check
var _ AuditRepository = (*PostgresAuditRepo)(nil)
