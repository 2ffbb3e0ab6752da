// Package audit はアクセス判定の監査レコードを組み立てて監査ログに追記する。
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/muriarq/mailgate/internal/metrics"
	"github.com/muriarq/mailgate/internal/model"
	"github.com/muriarq/mailgate/internal/repository"
)

// Recorder は監査レコードを監査ログに追記する。
// 書き込み失敗はログとメトリクスに記録するのみで、再試行や呼び出し元への伝播はしない。
type Recorder struct {
	repo    repository.AuditRepository
	metrics metrics.MetricsCollector
	now     func() time.Time
	newID   func() string
}

// NewRecorder はRecorderを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewRecorder(repo repository.AuditRepository, collector metrics.MetricsCollector) *Recorder {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Recorder{
		repo:    repo,
		metrics: collector,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
}

// LogGranted は許可したアクセス判定を記録する。actorは判定を要求したアカウント。
func (r *Recorder) LogGranted(ctx context.Context, actor, resource, detail string) {
	r.record(ctx, actor, actor, resource, true, detail)
}

// LogDenied は拒否したアクセス判定を記録する。
// 許可リストに該当するアカウントがないため、操作主体は UnknownActor とする。
func (r *Recorder) LogDenied(ctx context.Context, requestedBy, resource, detail string) {
	r.record(ctx, model.UnknownActor, requestedBy, resource, false, detail)
}

func (r *Recorder) record(ctx context.Context, actor, requestedBy, resource string, permitted bool, detail string) {
	record := &model.AuditRecord{
		ID:          r.newID(),
		Actor:       actor,
		RequestedBy: requestedBy,
		Resource:    resource,
		Permitted:   permitted,
		Detail:      detail,
		OccurredAt:  r.now().UTC(),
	}

	if err := r.repo.Append(ctx, record); err != nil {
		r.metrics.RecordAuditFailure()
		slog.Error("failed to append audit record",
			slog.String("audit_id", record.ID),
			slog.String("actor", actor),
			slog.String("resource", resource),
			slog.Bool("permitted", permitted),
			slog.String("error", err.Error()),
		)
	}
}
