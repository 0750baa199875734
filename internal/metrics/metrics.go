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
// ミドルウェアやHTTPクライアントから利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
	ObserveUpstream(method string, status int, duration time.Duration)
	RecordSession(outcome string)
	RecordWeeklyUpdated()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
	upstreamCalls   *prometheus.CounterVec
	upstreamLatency prometheus.Histogram
	sessions        *prometheus.CounterVec
	weekliesUpdated prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weekly_http_requests_total",
			Help: "ルート・ステータス別のHTTPリクエスト数",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "weekly_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weekly_oidc_requests_total",
			Help: "OpenID Connectプロバイダへのリクエスト数（status_code=0は通信失敗）",
		}, []string{"method", "status_code"}),
		upstreamLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "weekly_oidc_request_duration_seconds",
			Help:    "OpenID Connectプロバイダへのリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weekly_sessions_total",
			Help: "セッション検証結果別の件数",
		}, []string{"outcome"}),
		weekliesUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weekly_posts_updated_total",
			Help: "保存された週報の合計数",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.upstreamCalls,
		c.upstreamLatency,
		c.sessions,
		c.weekliesUpdated,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストの処理結果を記録する。
// routeはchiのルートパターンで、未マッチの場合は空になる。
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(route).Observe(duration.Seconds())
}

// ObserveUpstream はプロバイダへのリクエストを記録する。
// httpclient.Observerを満たす。
func (c *Collector) ObserveUpstream(method string, status int, duration time.Duration) {
	c.upstreamCalls.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.upstreamLatency.Observe(duration.Seconds())
}

// RecordSession はセッション検証の結果（valid / refreshed / invalid / error）を記録する。
func (c *Collector) RecordSession(outcome string) {
	c.sessions.WithLabelValues(outcome).Inc()
}

// RecordWeeklyUpdated は週報の保存を記録する。
func (c *Collector) RecordWeeklyUpdated() {
	c.weekliesUpdated.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
