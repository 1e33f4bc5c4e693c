package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты обработки webhook.
const (
	WebhookProcessed        = "processed"
	WebhookDuplicate        = "duplicate"
	WebhookIgnored          = "ignored"
	WebhookInvalidSignature = "invalid_signature"
	WebhookFailed           = "failed"
)

// Результаты фоновой записи корзины.
const (
	CartWriteOK       = "ok"
	CartWriteDegraded = "degraded"
	CartWriteFailed   = "failed"
)

// CheckoutMetrics содержит метрики корзины, checkout-сессий и webhook.
// Все методы безопасны для nil-получателя: компоненты без метрик просто их не пишут.
type CheckoutMetrics struct {
	sessionsCreated prometheus.Counter
	sessionsFailed  *prometheus.CounterVec

	webhookResults     *prometheus.CounterVec
	webhookDuration    prometheus.Histogram
	ordersMaterialized prometheus.Counter

	cartWrites        *prometheus.CounterVec
	persistQueueDepth prometheus.Gauge
}

// NewCheckoutMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCheckoutMetricsWithRegisterer регистрирует метрики в переданном registerer.
func NewCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		sessionsCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_sessions_created_total",
			Help: "Total number of checkout sessions created at the payment processor",
		}),
		sessionsFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_sessions_failed_total",
			Help: "Total number of checkout session creation failures by error kind",
		}, []string{"kind"}),
		webhookResults: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_webhook_deliveries_total",
			Help: "Total number of payment webhook deliveries by result",
		}, []string{"result"}),
		webhookDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_webhook_duration_seconds",
			Help:    "Duration of payment webhook handling in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		ordersMaterialized: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_materialized_total",
			Help: "Total number of orders created from completed checkout sessions",
		}),
		cartWrites: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_writes_total",
			Help: "Total number of background cart writes by result",
		}, []string{"result"}),
		persistQueueDepth: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_cart_persist_queue_depth",
			Help: "Number of cart snapshots waiting to be written",
		}),
	}
}

// RecordSessionCreated увеличивает счётчик созданных сессий.
func (m *CheckoutMetrics) RecordSessionCreated() {
	if m == nil {
		return
	}
	m.sessionsCreated.Inc()
}

// RecordSessionFailed учитывает неудачное создание сессии.
func (m *CheckoutMetrics) RecordSessionFailed(kind string) {
	if m == nil {
		return
	}
	m.sessionsFailed.WithLabelValues(kind).Inc()
}

// RecordWebhook учитывает доставку webhook и время её обработки.
func (m *CheckoutMetrics) RecordWebhook(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.webhookResults.WithLabelValues(result).Inc()
	m.webhookDuration.Observe(duration.Seconds())
}

// RecordOrderMaterialized увеличивает счётчик созданных заказов.
func (m *CheckoutMetrics) RecordOrderMaterialized() {
	if m == nil {
		return
	}
	m.ordersMaterialized.Inc()
}

// RecordCartWrite учитывает результат фоновой записи корзины.
func (m *CheckoutMetrics) RecordCartWrite(result string) {
	if m == nil {
		return
	}
	m.cartWrites.WithLabelValues(result).Inc()
}

// SetPersistQueueDepth выставляет размер очереди записей корзины.
func (m *CheckoutMetrics) SetPersistQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.persistQueueDepth.Set(float64(depth))
}
