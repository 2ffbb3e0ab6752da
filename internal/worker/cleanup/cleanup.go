// Package cleanup は期限切れチャットセッションの定期削除ジョブを提供する。
// 期限切れのセッションは参照時にも無視されるため、このジョブはストアの肥大化を防ぐためだけに動く。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval は実行間隔が正でない場合に使う実行間隔。
const DefaultInterval = time.Hour

// SessionDeleter は期限切れセッションを削除するインターフェース。
// repository.ChatSessionRepository を受け付ける。
type SessionDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// CleanupJob は期限切れチャットセッションの削除ジョブ。
// 削除は冪等で、対象がない場合もエラーにならない。
type CleanupJob struct {
	sessions SessionDeleter
	logger   *slog.Logger
	now      func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(sessions SessionDeleter, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// Run は現在時刻より前に期限が切れたセッションを削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()

	deletedCount, err := j.sessions.DeleteExpired(ctx, start)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回実行し、その後intervalごとにRunを繰り返す。
// ctxがキャンセルされるまでブロックする。失敗はログに記録して次の周期で再試行する。
// intervalが正でない場合はDefaultIntervalで動く。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		j.logger.Warn("クリーンアップ間隔が不正なためデフォルト値を使用します",
			slog.Duration("interval", interval),
			slog.Duration("default", DefaultInterval),
		)
		interval = DefaultInterval
	}

	j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("セッションクリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}
