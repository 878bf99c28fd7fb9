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
// 連携サービスおよびHTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordLinkSuccess()
	RecordLinkFailure(stage string)
	RecordExchangeLatency(duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	linkSuccess     prometheus.Counter
	linkFail        *prometheus.CounterVec
	exchangeLatency prometheus.Histogram
	httpStatus      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		linkSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shipman_link_success_total",
			Help: "セラーアカウント連携成功の合計数",
		}),
		linkFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shipman_link_fail_total",
			Help: "セラーアカウント連携失敗の段階別合計数",
		}, []string{"stage"}),
		exchangeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shipman_token_exchange_latency_seconds",
			Help:    "Mercado Livreトークン交換のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shipman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.linkSuccess,
		c.linkFail,
		c.exchangeLatency,
		c.httpStatus,
	)

	return c
}

// RecordLinkSuccess は連携成功を記録する。
func (c *Collector) RecordLinkSuccess() {
	c.linkSuccess.Inc()
}

// RecordLinkFailure は連携失敗を失敗段階（auth, input, state,
// token_exchange, profile_fetch, persistence）付きで記録する。
func (c *Collector) RecordLinkFailure(stage string) {
	c.linkFail.WithLabelValues(stage).Inc()
}

// RecordExchangeLatency はトークン交換のレイテンシを記録する。
func (c *Collector) RecordExchangeLatency(duration time.Duration) {
	c.exchangeLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
