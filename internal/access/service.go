// Package access はメールアドレスの許可リストに基づくアクセス判定を提供する。
// 組織ドメイン外の形式チェックを通過した判定は、許可・拒否に関わらず必ず1件の監査レコードを残す。
package access

import (
	"context"
	"log/slog"
	"strings"

	"github.com/muriarq/mailgate/internal/metrics"
	"github.com/muriarq/mailgate/internal/model"
	"github.com/muriarq/mailgate/internal/repository"
)

// 監査レコードのmensaje欄に残す説明文
const (
	DetailDenied  = "Correo no autorizado para ningún usuario activo"
	DetailGranted = "Consulta simulada (pendiente integración Gmail)"
)

// AuditLogger は判定結果を監査ログに残すインターフェース。
type AuditLogger interface {
	LogGranted(ctx context.Context, actor, resource, detail string)
	LogDenied(ctx context.Context, requestedBy, resource, detail string)
}

// Service はアクセス判定のビジネスロジックを提供する。
type Service struct {
	accounts repository.AccountRepository
	audit    AuditLogger
	metrics  metrics.MetricsCollector
	domain   string
}

// NewService はServiceを生成する。
// domainは "@muriarq.com" のように先頭に"@"を含む小文字のサフィックスを指定する。
func NewService(
	accounts repository.AccountRepository,
	audit AuditLogger,
	collector metrics.MetricsCollector,
	domain string,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		accounts: accounts,
		audit:    audit,
		metrics:  collector,
		domain:   strings.ToLower(domain),
	}
}

// Domain は受け付ける組織ドメインのサフィックスを返す。
func (s *Service) Domain() string {
	return s.domain
}

// ResolveAccess はresourceIDの閲覧を許可された有効なアカウントを解決する。
// callerは判定を要求したログイン中のアカウントで、許可時の監査レコードの操作主体になる。
// エラーはデータストア障害（*model.TransientError）の場合のみ返す。
func (s *Service) ResolveAccess(ctx context.Context, caller, resourceID string) (model.AccessResult, error) {
	// 1. 小文字に正規化
	resource := strings.ToLower(strings.TrimSpace(resourceID))
	result := model.AccessResult{Resource: resource}

	// 2. 組織ドメイン外は判定せずに拒否する。監査対象外
	if !strings.HasSuffix(resource, s.domain) {
		result.Outcome = model.AccessRejectedFormat
		s.metrics.RecordAccessOutcome(string(result.Outcome))
		return result, nil
	}

	// 3. 許可リストに含む有効なアカウントを検索
	accounts, err := s.accounts.ListActiveByAuthorizedResource(ctx, resource)
	if err != nil {
		return model.AccessResult{}, model.NewTransientError("list authorized accounts", err)
	}

	// 4. 該当なし: 拒否を記録
	if len(accounts) == 0 {
		s.audit.LogDenied(ctx, caller, resource, DetailDenied)
		slog.Info("access denied",
			slog.String("caller", caller),
			slog.String("resource", resource),
		)
		result.Outcome = model.AccessDenied
		s.metrics.RecordAccessOutcome(string(result.Outcome))
		return result, nil
	}

	// 5. 該当あり: 要求したアカウントを操作主体として許可を記録
	s.audit.LogGranted(ctx, caller, resource, DetailGranted)
	slog.Info("access granted",
		slog.String("caller", caller),
		slog.String("resource", resource),
		slog.Int("authorized_accounts", len(accounts)),
	)
	result.Outcome = model.AccessGranted
	result.Accounts = accounts
	s.metrics.RecordAccessOutcome(string(result.Outcome))
	return result, nil
}
