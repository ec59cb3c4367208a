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
// 認証サービス、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordSessionEstablished(newStaff bool)
	RecordAuthFailure(operation, kind string)
	RecordPasswordChanged()
	RecordRateLimited(limitType string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordExpiredSessionsDeleted(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	sessionsEstablished *prometheus.CounterVec
	authFailures        *prometheus.CounterVec
	passwordChanges     prometheus.Counter
	rateLimited         *prometheus.CounterVec
	httpStatus          *prometheus.CounterVec
	requestLatency      prometheus.Histogram
	sessionsPurged      prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sessionsEstablished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staffportal_sessions_established_total",
			Help: "確立されたセッションの合計数（初回ログインか否か別）",
		}, []string{"staff"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staffportal_auth_failures_total",
			Help: "認証処理の失敗数（処理・失敗種別別）",
		}, []string{"operation", "kind"}),
		passwordChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "staffportal_password_changes_total",
			Help: "パスワード変更完了の合計数",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staffportal_rate_limited_total",
			Help: "レート制限で拒否されたリクエスト数",
		}, []string{"limit_type"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staffportal_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "staffportal_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "staffportal_expired_sessions_deleted_total",
			Help: "クリーンアップで削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.sessionsEstablished,
		c.authFailures,
		c.passwordChanges,
		c.rateLimited,
		c.httpStatus,
		c.requestLatency,
		c.sessionsPurged,
	)

	return c
}

// RecordSessionEstablished はセッション確立を記録する。
func (c *Collector) RecordSessionEstablished(newStaff bool) {
	label := "existing"
	if newStaff {
		label = "new"
	}
	c.sessionsEstablished.WithLabelValues(label).Inc()
}

// RecordAuthFailure は認証処理の失敗を記録する。
func (c *Collector) RecordAuthFailure(operation, kind string) {
	c.authFailures.WithLabelValues(operation, kind).Inc()
}

// RecordPasswordChanged はパスワード変更完了を記録する。
func (c *Collector) RecordPasswordChanged() {
	c.passwordChanges.Inc()
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited(limitType string) {
	c.rateLimited.WithLabelValues(limitType).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordExpiredSessionsDeleted は削除した期限切れセッション数を記録する。
func (c *Collector) RecordExpiredSessionsDeleted(count int64) {
	c.sessionsPurged.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// statusWriter はレスポンスのステータスコードを記録する。
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	if sw.status == 0 {
		sw.status = code
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if sw.status == 0 {
		sw.status = http.StatusOK
	}
	return sw.ResponseWriter.Write(b)
}

// NewHTTPMiddleware はレスポンスのステータスコードと処理時間を記録するミドルウェアを返す。
func NewHTTPMiddleware(c MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w}

			next.ServeHTTP(sw, r)

			if sw.status == 0 {
				sw.status = http.StatusOK
			}
			c.RecordHTTPStatus(sw.status)
			c.RecordRequestLatency(time.Since(start))
		})
	}
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
