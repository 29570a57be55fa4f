// Package metrics exports feed and relay telemetry to Prometheus.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentstation/hitlfeed/pkg/events"
	"github.com/agentstation/hitlfeed/pkg/feed"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "hitlfeed"

// otherType is the type label used for event types outside the known set,
// which keeps label cardinality bounded.
const otherType = "other"

// FeedSource is the read side of a feed store.
type FeedSource interface {
	Stats() feed.Stats
	Connection() feed.ConnectionState
	Subscribe(fn feed.Listener) (unsubscribe func())
}

// FeedMetrics exports store counters, connection state and per-type arrivals.
type FeedMetrics struct {
	byType     *prometheus.CounterVec
	collectors []prometheus.Collector
}

// NewFeedMetrics registers gauges and counters that read src on every scrape.
// duplicates may be nil when no de-duplicating pipeline is in front of the store.
func NewFeedMetrics(namespace string, reg prometheus.Registerer, src FeedSource, duplicates func() uint64) (*FeedMetrics, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &FeedMetrics{
		byType: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_by_type_total",
			Help:      "Events added to the feed, by event type.",
		}, []string{"type"}),
	}

	m.collectors = []prometheus.Collector{
		m.byType,
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_ingested_total",
			Help:      "Events added to the feed since start.",
		}, func() float64 { return float64(src.Stats().Ingested) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_evicted_total",
			Help:      "Events pushed out of the feed by the retention cap.",
		}, func() float64 { return float64(src.Stats().Evicted) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_cleared_total",
			Help:      "Times the feed was cleared.",
		}, func() float64 { return float64(src.Stats().Cleared) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_size",
			Help:      "Events currently retained.",
		}, func() float64 { return float64(src.Stats().Size) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_capacity",
			Help:      "Maximum number of retained events.",
		}, func() float64 { return float64(src.Stats().Capacity) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upstream_connected",
			Help:      "1 when the upstream transport is connected.",
		}, func() float64 { return boolGauge(src.Connection().Connected) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upstream_reconnect_attempts",
			Help:      "Consecutive failed upstream connection attempts.",
		}, func() float64 { return float64(src.Connection().ReconnectAttempts) }),
	}
	if duplicates != nil {
		m.collectors = append(m.collectors, prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_duplicate_total",
			Help:      "Redelivered events dropped by de-duplication.",
		}, func() float64 { return float64(duplicates()) }))
	}

	for i, collector := range m.collectors {
		if err := reg.Register(collector); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				m.collectors[i] = are.ExistingCollector
				if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok && collector == m.byType {
					m.byType = existing
				}
				continue
			}
			return nil, fmt.Errorf("register feed metric: %w", err)
		}
	}
	return m, nil
}

// Observe counts each event added to src by type until the returned function is called.
func (m *FeedMetrics) Observe(src FeedSource) (stop func()) {
	return src.Subscribe(func(c feed.Change) {
		if c.Kind != feed.EventAdded {
			return
		}
		m.byType.WithLabelValues(typeLabel(c.Event.Type)).Inc()
	})
}

func typeLabel(t events.EventType) string {
	if t.IsKnown() {
		return string(t)
	}
	return otherType
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// HTTPObserver records relay request latency.
type HTTPObserver struct {
	duration *prometheus.HistogramVec
	requests *prometheus.CounterVec
}

// NewHTTPObserver registers request metrics with reg.
func NewHTTPObserver(namespace string, reg prometheus.Registerer) (*HTTPObserver, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &HTTPObserver{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of relay HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Relay HTTP requests by status code.",
		}, []string{"method", "route", "status"}),
	}
	for _, collector := range []prometheus.Collector{o.duration, o.requests} {
		if err := reg.Register(collector); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch existing := are.ExistingCollector.(type) {
				case *prometheus.HistogramVec:
					o.duration = existing
				case *prometheus.CounterVec:
					o.requests = existing
				}
				continue
			}
			return nil, fmt.Errorf("register http metric: %w", err)
		}
	}
	return o, nil
}

// ObserveRequest records one completed request. A nil observer is a no-op.
func (o *HTTPObserver) ObserveRequest(method, route string, status int, duration time.Duration) {
	if o == nil {
		return
	}
	o.duration.WithLabelValues(method, route).Observe(duration.Seconds())
	o.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
