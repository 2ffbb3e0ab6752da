package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/muriarq/mailgate/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	account := &model.Account{}
	var lastAccess sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT id, credential_digest, active, failed_attempts, authorized_resources, last_access_at
		 FROM accounts WHERE id = $1`,
		id,
	).Scan(
		&account.ID, &account.CredentialDigest, &account.Active, &account.FailedAttempts,
		pq.Array(&account.AuthorizedResources), &lastAccess,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}

	if lastAccess.Valid {
		t := lastAccess.Time
		account.LastAccessAt = &t
	}

	return account, nil
}

// RecordFailure は失敗回数の加算と閾値到達時の無効化を1つのUPDATE文で行う。
// SET句の右辺は更新前の行を参照するため、active列の判定には加算後の値を明示的に計算する。
// WHERE active により、並行する失敗でロック済みになった行は更新対象から外れる。
func (r *PostgresAccountRepo) RecordFailure(ctx context.Context, id string, maxAttempts int) (int, bool, bool, error) {
	var attempts int
	var active bool
	err := r.db.QueryRowContext(ctx,
		`UPDATE accounts
		 SET failed_attempts = failed_attempts + 1,
		     active = (failed_attempts + 1) < $2,
		     updated_at = now()
		 WHERE id = $1 AND active
		 RETURNING failed_attempts, active`,
		id, maxAttempts,
	).Scan(&attempts, &active)

	if err == sql.ErrNoRows {
		return 0, false, false, nil
	}
	if err != nil {
		return 0, false, false, fmt.Errorf("failed to record failed attempt: %w", err)
	}

	return attempts, active, true, nil
}

// RecordSuccess は失敗回数のリセットと最終アクセス日時の更新を1つのUPDATE文で行う。
func (r *PostgresAccountRepo) RecordSuccess(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts
		 SET failed_attempts = 0,
		     last_access_at = $2,
		     updated_at = now()
		 WHERE id = $1 AND active`,
		id, at,
	)
	if err != nil {
		return false, fmt.Errorf("failed to record successful login: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// ListActiveByAuthorizedResource は許可リストにresourceを含む有効なアカウントのIDを返す。
// authorized_resourcesのGINインデックスを使うため @> 演算子で検索する。
func (r *PostgresAccountRepo) ListActiveByAuthorizedResource(ctx context.Context, resource string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM accounts
		 WHERE authorized_resources @> $1 AND active
		 ORDER BY id`,
		pq.Array([]string{resource}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts by authorized resource: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan account ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}

	return ids, nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
