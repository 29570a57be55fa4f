package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/hitlfeed/pkg/events"
	"github.com/agentstation/hitlfeed/pkg/feed"
)

func TestFeedMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := feed.NewStore(feed.WithCapacity(2))
	var dups uint64 = 3

	m, err := NewFeedMetrics("", reg, store, func() uint64 { return dups })
	require.NoError(t, err)
	stop := m.Observe(store)
	defer stop()

	store.AddEvent(events.SystemEvent{ID: "a", Type: events.GateCreated})
	store.AddEvent(events.SystemEvent{ID: "b", Type: events.GateCreated})
	store.AddEvent(events.SystemEvent{ID: "c", Type: "custom.thing"})
	store.SetConnected(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.byType.WithLabelValues("gate.created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.byType.WithLabelValues(otherType)))

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetGauge() != nil:
				values[mf.GetName()] = metric.GetGauge().GetValue()
			case metric.GetCounter() != nil && len(metric.GetLabel()) == 0:
				values[mf.GetName()] = metric.GetCounter().GetValue()
			}
		}
	}

	assert.Equal(t, 3.0, values["hitlfeed_events_ingested_total"])
	assert.Equal(t, 1.0, values["hitlfeed_events_evicted_total"])
	assert.Equal(t, 2.0, values["hitlfeed_feed_size"])
	assert.Equal(t, 2.0, values["hitlfeed_feed_capacity"])
	assert.Equal(t, 1.0, values["hitlfeed_upstream_connected"])
	assert.Equal(t, 3.0, values["hitlfeed_events_duplicate_total"])
}

func TestFeedMetricsStopObserving(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := feed.NewStore()
	m, err := NewFeedMetrics("test", reg, store, nil)
	require.NoError(t, err)

	stop := m.Observe(store)
	store.AddEvent(events.SystemEvent{ID: "a", Type: events.RunStarted})
	stop()
	store.AddEvent(events.SystemEvent{ID: "b", Type: events.RunStarted})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.byType.WithLabelValues("run.started")))
}

func TestHTTPObserverReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	first, err := NewHTTPObserver("", reg)
	require.NoError(t, err)
	second, err := NewHTTPObserver("", reg)
	require.NoError(t, err)

	first.ObserveRequest("GET", "/api/v1/events", 200, 10*time.Millisecond)
	second.ObserveRequest("GET", "/api/v1/events", 200, 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(first.requests.WithLabelValues("GET", "/api/v1/events", "200")))
}

func TestHTTPObserverNil(t *testing.T) {
	var o *HTTPObserver
	assert.NotPanics(t, func() {
		o.ObserveRequest("GET", "/", 200, time.Millisecond)
	})
}
