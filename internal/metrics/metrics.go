// Package metrics wraps the Prometheus collectors exported by the edge
// daemon: cache strategy outcomes, namespace lifecycle, realtime delivery,
// and push dispatch.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps prometheus collectors for the pulsar edge daemon.
type Metrics struct {
	registry *prometheus.Registry

	// Cache manager
	cacheHitsTotal       *prometheus.CounterVec
	cacheMissesTotal     *prometheus.CounterVec
	cacheWritesTotal     *prometheus.CounterVec
	offlineFallbackTotal prometheus.Counter
	offlineSynthTotal    prometheus.Counter
	assetsPrimedTotal    prometheus.Counter
	namespacesDropped    prometheus.Counter
	upstreamErrorsTotal  prometheus.Counter

	// Realtime client
	reconnectsTotal  prometheus.Counter
	authErrorsTotal  prometheus.Counter
	eventsTotal      *prometheus.CounterVec
	connectedGauge   prometheus.Gauge

	// Push dispatch
	pushShownTotal   prometheus.Counter
	pushClickedTotal *prometheus.CounterVec
}

// New creates the metrics set under the given namespace and registers it
// on a fresh registry together with the default Go and process collectors.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,

		cacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Cache hits served, by strategy",
			},
			[]string{"strategy"},
		),
		cacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Cache misses that went to the network, by strategy",
			},
			[]string{"strategy"},
		),
		cacheWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_writes_total",
				Help:      "Responses written to the cache, by strategy",
			},
			[]string{"strategy"},
		),
		offlineFallbackTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "offline_fallbacks_total",
				Help:      "Network-first requests served from cache after a network failure",
			},
		),
		offlineSynthTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "offline_synthesized_total",
				Help:      "Synthesized 503 Offline responses (network down, no cached copy)",
			},
		),
		assetsPrimedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "assets_primed_total",
				Help:      "Core assets primed into the cache at install time",
			},
		),
		namespacesDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_namespaces_dropped_total",
				Help:      "Superseded cache namespaces deleted at activation",
			},
		),
		upstreamErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_errors_total",
				Help:      "Upstream fetch failures",
			},
		),
		reconnectsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "realtime_reconnects_total",
				Help:      "Realtime reconnection attempts scheduled",
			},
		),
		authErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "realtime_auth_errors_total",
				Help:      "Realtime auth failures surfaced to the application",
			},
		),
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "realtime_events_total",
				Help:      "Realtime events dispatched to listeners, by channel",
			},
			[]string{"channel"},
		),
		connectedGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "realtime_connected",
				Help:      "1 while the realtime client is connected",
			},
		),
		pushShownTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "push_notifications_shown_total",
				Help:      "Push notifications displayed",
			},
		),
		pushClickedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "push_notifications_clicked_total",
				Help:      "Push notification clicks, by action",
			},
			[]string{"action"},
		),
	}

	registry.MustRegister(
		m.cacheHitsTotal,
		m.cacheMissesTotal,
		m.cacheWritesTotal,
		m.offlineFallbackTotal,
		m.offlineSynthTotal,
		m.assetsPrimedTotal,
		m.namespacesDropped,
		m.upstreamErrorsTotal,
		m.reconnectsTotal,
		m.authErrorsTotal,
		m.eventsTotal,
		m.connectedGauge,
		m.pushShownTotal,
		m.pushClickedTotal,
	)

	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Nil-safe recording helpers. Components accept a *Metrics that may be nil
// (e.g. in tests) and call these unconditionally.

func (m *Metrics) CacheHit(strategy string) {
	if m != nil {
		m.cacheHitsTotal.WithLabelValues(strategy).Inc()
	}
}

func (m *Metrics) CacheMiss(strategy string) {
	if m != nil {
		m.cacheMissesTotal.WithLabelValues(strategy).Inc()
	}
}

func (m *Metrics) CacheWrite(strategy string) {
	if m != nil {
		m.cacheWritesTotal.WithLabelValues(strategy).Inc()
	}
}

func (m *Metrics) OfflineFallback() {
	if m != nil {
		m.offlineFallbackTotal.Inc()
	}
}

func (m *Metrics) OfflineSynthesized() {
	if m != nil {
		m.offlineSynthTotal.Inc()
	}
}

func (m *Metrics) AssetPrimed() {
	if m != nil {
		m.assetsPrimedTotal.Inc()
	}
}

func (m *Metrics) NamespaceDropped() {
	if m != nil {
		m.namespacesDropped.Inc()
	}
}

func (m *Metrics) UpstreamError() {
	if m != nil {
		m.upstreamErrorsTotal.Inc()
	}
}

func (m *Metrics) ReconnectScheduled() {
	if m != nil {
		m.reconnectsTotal.Inc()
	}
}

func (m *Metrics) AuthError() {
	if m != nil {
		m.authErrorsTotal.Inc()
	}
}

func (m *Metrics) EventDispatched(channel string) {
	if m != nil {
		m.eventsTotal.WithLabelValues(channel).Inc()
	}
}

func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connectedGauge.Set(1)
	} else {
		m.connectedGauge.Set(0)
	}
}

func (m *Metrics) PushShown() {
	if m != nil {
		m.pushShownTotal.Inc()
	}
}

func (m *Metrics) PushClicked(action string) {
	if m != nil {
		m.pushClickedTotal.WithLabelValues(action).Inc()
	}
}
