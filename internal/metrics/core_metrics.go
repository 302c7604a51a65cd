package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CoreMetrics содержит метрики ядра фулфилмента: webhook-сверка, сток,
// уведомления о поступлении.
type CoreMetrics struct {
	// Счётчики webhook-событий по результату обработки.
	webhookEvents *prometheus.CounterVec
	// Гистограмма времени обработки webhook.
	webhookDuration prometheus.Histogram

	// Счётчики заказов
	ordersCreated     prometheus.Counter
	orderTransitions  *prometheus.CounterVec
	duplicateWebhooks prometheus.Counter

	// Счётчики стока
	oversellRejections prometheus.Counter
	lowStockSignals    *prometheus.CounterVec

	// Счётчики restock-подписок
	restockSubscriptions  prometheus.Counter
	restockNotifications  prometheus.Counter
	restockSweepDurations prometheus.Histogram
}

// NewCoreMetrics создаёт новый экземпляр метрик ядра.
func NewCoreMetrics() *CoreMetrics {
	return NewCoreMetricsWith(prometheus.DefaultRegisterer)
}

// NewCoreMetricsWith регистрирует метрики в произвольном Registerer.
// Используется в тестах с изолированным registry.
func NewCoreMetricsWith(registerer prometheus.Registerer) *CoreMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CoreMetrics{
		webhookEvents: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fulfillment_webhook_events_total",
			Help: "Total number of webhook deliveries grouped by outcome",
		}, []string{"outcome"}),
		webhookDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "fulfillment_webhook_duration_seconds",
			Help:    "Duration of webhook reconciliation in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_orders_created_total",
			Help: "Total number of orders created from reconciled webhooks",
		}),
		orderTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fulfillment_order_transitions_total",
			Help: "Total number of order status transitions grouped by target status",
		}, []string{"to"}),
		duplicateWebhooks: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_duplicate_webhooks_total",
			Help: "Total number of webhook deliveries recognized as duplicates",
		}),
		oversellRejections: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_oversell_rejections_total",
			Help: "Total number of stock decrements rejected for insufficient stock",
		}),
		lowStockSignals: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fulfillment_low_stock_signals_total",
			Help: "Total number of low-stock signals grouped by severity",
		}, []string{"severity"}),
		restockSubscriptions: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_restock_subscriptions_total",
			Help: "Total number of restock subscriptions created",
		}),
		restockNotifications: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_restock_notifications_total",
			Help: "Total number of back-in-stock notifications dispatched",
		}),
		restockSweepDurations: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "fulfillment_restock_sweep_duration_seconds",
			Help:    "Duration of restock dispatch sweeps in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
	}
}

// RecordWebhookEvent учитывает доставку webhook по результату.
func (m *CoreMetrics) RecordWebhookEvent(outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(outcome).Inc()
}

// RecordWebhookDuration фиксирует время обработки доставки.
func (m *CoreMetrics) RecordWebhookDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.webhookDuration.Observe(d.Seconds())
}

// RecordOrderCreated учитывает созданный заказ.
func (m *CoreMetrics) RecordOrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// RecordOrderTransition учитывает переход статуса.
func (m *CoreMetrics) RecordOrderTransition(to string) {
	if m == nil {
		return
	}
	m.orderTransitions.WithLabelValues(to).Inc()
}

// RecordDuplicateWebhook учитывает повторную доставку.
func (m *CoreMetrics) RecordDuplicateWebhook() {
	if m == nil {
		return
	}
	m.duplicateWebhooks.Inc()
}

// RecordOversellRejection учитывает отклонённое списание.
func (m *CoreMetrics) RecordOversellRejection() {
	if m == nil {
		return
	}
	m.oversellRejections.Inc()
}

// RecordLowStockSignal учитывает low-stock сигнал.
func (m *CoreMetrics) RecordLowStockSignal(severity string) {
	if m == nil {
		return
	}
	m.lowStockSignals.WithLabelValues(severity).Inc()
}

// RecordRestockSubscription учитывает созданную подписку.
func (m *CoreMetrics) RecordRestockSubscription() {
	if m == nil {
		return
	}
	m.restockSubscriptions.Inc()
}

// RecordRestockNotification учитывает отправленное back-in-stock уведомление.
func (m *CoreMetrics) RecordRestockNotification() {
	if m == nil {
		return
	}
	m.restockNotifications.Inc()
}

// RecordRestockSweepDuration фиксирует время sweep-прохода.
func (m *CoreMetrics) RecordRestockSweepDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.restockSweepDurations.Observe(d.Seconds())
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}
