package infra

import (
	"net/http"

	"market_sync/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Discard reasons reported by the engine.
const (
	ReasonUnsynced    = "unsynced"
	ReasonStale       = "stale"
	ReasonGap         = "gap"
	ReasonRegression  = "regression"
	ReasonInvalid     = "invalid"
	ReasonSuperseded  = "superseded"
	ReasonUnsolicited = "unsolicited"
)

// Metrics holds the session collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	eventsProcessed   *prometheus.CounterVec
	eventsDiscarded   *prometheus.CounterVec
	decodeErrors      prometheus.Counter
	reconnectAttempts prometheus.Counter
	tradeOutcomes     *prometheus.CounterVec
	connectionState   prometheus.Gauge
	epoch             prometheus.Gauge
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		eventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "market_sync",
			Name:      "events_processed_total",
			Help:      "Inbound events applied to the store, by event name.",
		}, []string{"event"}),
		eventsDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "market_sync",
			Name:      "events_discarded_total",
			Help:      "Inbound events dropped without effect, by event name and reason.",
		}, []string{"event", "reason"}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "market_sync",
			Name:      "decode_errors_total",
			Help:      "Frames rejected at the decode boundary.",
		}),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "market_sync",
			Name:      "reconnect_attempts_total",
			Help:      "Dial attempts after a lost connection.",
		}),
		tradeOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "market_sync",
			Name:      "trade_outcomes_total",
			Help:      "Resolved trades by result.",
		}, []string{"result"}),
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "market_sync",
			Name:      "connection_state",
			Help:      "0=disconnected 1=connecting 2=connected 3=reconnecting.",
		}),
		epoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "market_sync",
			Name:      "epoch",
			Help:      "Number of full snapshots accepted.",
		}),
	}

	m.registry.MustRegister(
		m.eventsProcessed,
		m.eventsDiscarded,
		m.decodeErrors,
		m.reconnectAttempts,
		m.tradeOutcomes,
		m.connectionState,
		m.epoch,
	)
	return m
}

// Registry exposes the private registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordEvent counts an applied event.
func (m *Metrics) RecordEvent(name string) {
	m.eventsProcessed.WithLabelValues(name).Inc()
}

// RecordDiscard counts a dropped event.
func (m *Metrics) RecordDiscard(name, reason string) {
	m.eventsDiscarded.WithLabelValues(name, reason).Inc()
}

// RecordDecodeError counts a rejected frame.
func (m *Metrics) RecordDecodeError() {
	m.decodeErrors.Inc()
}

// RecordReconnect counts one reconnect dial.
func (m *Metrics) RecordReconnect() {
	m.reconnectAttempts.Inc()
}

// RecordTrade counts a resolved trade. result is "SUCCESS" or a failure reason.
func (m *Metrics) RecordTrade(result string) {
	m.tradeOutcomes.WithLabelValues(result).Inc()
}

// SetConnectionState mirrors the engine's connection state.
func (m *Metrics) SetConnectionState(s domain.ConnectionState) {
	m.connectionState.Set(float64(s))
}

// SetEpoch mirrors the store epoch.
func (m *Metrics) SetEpoch(epoch uint64) {
	m.epoch.Set(float64(epoch))
}
