package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CartMetrics содержит метрики ядра синхронизации корзины.
type CartMetrics struct {
	// Счётчики мутаций по виду и результату
	mutations *prometheus.CounterVec
	// Ответы, отброшенные из-за более нового запроса к той же цели
	superseded *prometheus.CounterVec
	// Уведомления подписчиков
	notifications prometheus.Counter

	// Удалённые вызовы
	remoteCalls        *prometheus.CounterVec
	remoteCallDuration *prometheus.HistogramVec

	// Gauge для незавершённых мутаций
	pendingMutations prometheus.Gauge
	// Количество товаров в последнем снимке
	itemCount prometheus.Gauge
}

// NewCartMetrics создаёт метрики в глобальном реестре Prometheus.
func NewCartMetrics() *CartMetrics {
	return NewCartMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCartMetricsWithRegisterer создаёт метрики в указанном реестре (для тестов).
func NewCartMetricsWithRegisterer(registerer prometheus.Registerer) *CartMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CartMetrics{
		mutations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_mutations_total",
			Help: "Total number of applied cart mutations grouped by kind and result",
		}, []string{"kind", "result"}),
		superseded: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_superseded_responses_total",
			Help: "Total number of cart responses discarded because a newer request for the same target was issued",
		}, []string{"kind"}),
		notifications: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_notifications_total",
			Help: "Total number of cart state notifications delivered to subscribers",
		}),
		remoteCalls: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_remote_calls_total",
			Help: "Total number of remote cart calls grouped by operation and result",
		}, []string{"op", "result"}),
		remoteCallDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_cart_remote_call_duration_seconds",
			Help:    "Duration of remote cart calls in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"op"}),
		pendingMutations: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_cart_pending_mutations",
			Help: "Number of cart targets with an outstanding remote mutation",
		}),
		itemCount: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_cart_item_count",
			Help: "Item count of the last known cart snapshot",
		}),
	}
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

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordMutation учитывает применённый результат мутации.
func (m *CartMetrics) RecordMutation(kind, result string) {
	m.mutations.WithLabelValues(kind, result).Inc()
}

// RecordSuperseded учитывает отброшенный устаревший ответ.
func (m *CartMetrics) RecordSuperseded(kind string) {
	m.superseded.WithLabelValues(kind).Inc()
}

// RecordNotification учитывает одну рассылку состояния подписчикам.
func (m *CartMetrics) RecordNotification() {
	m.notifications.Inc()
}

// SetPending выставляет число целей с незавершённой мутацией.
func (m *CartMetrics) SetPending(n int) {
	m.pendingMutations.Set(float64(n))
}

// SetItemCount выставляет количество товаров в текущем снимке.
func (m *CartMetrics) SetItemCount(n int) {
	m.itemCount.Set(float64(n))
}

// ObserveRemoteCall записывает результат и длительность удалённого вызова.
func (m *CartMetrics) ObserveRemoteCall(op, result string, duration time.Duration) {
	m.remoteCalls.WithLabelValues(op, result).Inc()
	m.remoteCallDuration.WithLabelValues(op).Observe(duration.Seconds())
}
