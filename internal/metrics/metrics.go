// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証・認可サービス、コマンドディスパッチャー、Telegramクライアントから利用する。
type MetricsCollector interface {
	RecordAuthOutcome(outcome string)
	RecordAccessOutcome(outcome string)
	RecordAuditFailure()
	RecordCommand(command string)
	RecordRateLimited(command string)
	RecordTelegramStatus(method string, statusCode int)
	RecordTelegramLatency(method string, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authOutcomes    *prometheus.CounterVec
	accessOutcomes  *prometheus.CounterVec
	auditFailures   prometheus.Counter
	commands        *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	telegramStatus  *prometheus.CounterVec
	telegramLatency *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailgate_auth_attempts_total",
			Help: "結果別の認証試行数",
		}, []string{"outcome"}),
		accessOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailgate_access_resolutions_total",
			Help: "結果別のアクセス判定数",
		}, []string{"outcome"}),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailgate_audit_append_failures_total",
			Help: "監査ログの書き込み失敗数",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailgate_commands_total",
			Help: "コマンド別の受信数",
		}, []string{"command"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailgate_rate_limited_total",
			Help: "レート制限で拒否したコマンド数",
		}, []string{"command"}),
		telegramStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailgate_telegram_requests_total",
			Help: "Telegram Bot APIメソッドとHTTPステータスコード別のリクエスト数",
		}, []string{"method", "status_code"}),
		telegramLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mailgate_telegram_latency_seconds",
			Help:    "Telegram Bot API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}

	reg.MustRegister(
		c.authOutcomes,
		c.accessOutcomes,
		c.auditFailures,
		c.commands,
		c.rateLimited,
		c.telegramStatus,
		c.telegramLatency,
	)

	return c
}

// RecordAuthOutcome は認証結果を記録する。
func (c *Collector) RecordAuthOutcome(outcome string) {
	c.authOutcomes.WithLabelValues(outcome).Inc()
}

// RecordAccessOutcome はアクセス判定結果を記録する。
func (c *Collector) RecordAccessOutcome(outcome string) {
	c.accessOutcomes.WithLabelValues(outcome).Inc()
}

// RecordAuditFailure は監査ログの書き込み失敗を記録する。
func (c *Collector) RecordAuditFailure() {
	c.auditFailures.Inc()
}

// RecordCommand はコマンドの受信を記録する。
func (c *Collector) RecordCommand(command string) {
	c.commands.WithLabelValues(command).Inc()
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited(command string) {
	c.rateLimited.WithLabelValues(command).Inc()
}

// RecordTelegramStatus はTelegram Bot APIのHTTPステータスコードを記録する。
// 通信エラーでレスポンスがない場合はstatusCode=0を渡す。
func (c *Collector) RecordTelegramStatus(method string, statusCode int) {
	c.telegramStatus.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
}

// RecordTelegramLatency はTelegram Bot API呼び出しのレイテンシを記録する。
func (c *Collector) RecordTelegramLatency(method string, duration time.Duration) {
	c.telegramLatency.WithLabelValues(method).Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NopCollector は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type NopCollector struct{}

func (NopCollector) RecordAuthOutcome(string)                    {}
func (NopCollector) RecordAccessOutcome(string)                  {}
func (NopCollector) RecordAuditFailure()                         {}
func (NopCollector) RecordCommand(string)                        {}
func (NopCollector) RecordRateLimited(string)                    {}
func (NopCollector) RecordTelegramStatus(string, int)            {}
func (NopCollector) RecordTelegramLatency(string, time.Duration) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
