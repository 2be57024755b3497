package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for matchmaking, battles and the relay.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	MatchesFound       *prometheus.CounterVec
	MatchmakingWait    prometheus.Histogram
	BattlesCompleted   *prometheus.CounterVec
	RelayConnections   prometheus.Gauge
	RelaySubscriptions prometheus.Gauge
	RelayFrames        *prometheus.CounterVec
}

// New registers collectors on a fresh registry.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		MatchesFound: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "matchmaking",
				Name:      "matches_total",
				Help:      "Matches found, by opponent kind",
			},
			[]string{"opponent"},
		),
		MatchmakingWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "matchmaking",
				Name:      "wait_seconds",
				Help:      "Time spent in the lobby before a match",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
		),
		BattlesCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "battle",
				Name:      "completed_total",
				Help:      "Completed battles, by outcome and whether they ended in a forfeit",
			},
			[]string{"outcome", "forfeit"},
		),
		RelayConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "connections",
				Help:      "Open relay websocket connections",
			},
		),
		RelaySubscriptions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "subscriptions",
				Help:      "Channel subscriptions held by relay connections",
			},
		),
		RelayFrames: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "frames_total",
				Help:      "Frames received from relay clients, by type",
			},
			[]string{"type"},
		),
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveMatch(bot bool, waited time.Duration) {
	if m == nil {
		return
	}
	kind := "human"
	if bot {
		kind = "bot"
	}
	m.MatchesFound.WithLabelValues(kind).Inc()
	m.MatchmakingWait.Observe(waited.Seconds())
}

func (m *Metrics) ObserveBattle(outcome string, forfeit bool) {
	if m == nil {
		return
	}
	f := "false"
	if forfeit {
		f = "true"
	}
	m.BattlesCompleted.WithLabelValues(outcome, f).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.RelayConnections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.RelayConnections.Dec()
	}
}

func (m *Metrics) Subscribed(delta int) {
	if m != nil {
		m.RelaySubscriptions.Add(float64(delta))
	}
}

func (m *Metrics) Frame(frameType string) {
	if m != nil {
		m.RelayFrames.WithLabelValues(frameType).Inc()
	}
}
