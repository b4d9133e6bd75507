package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	StageRingToResolution  = "ring_to_resolution"
	StageAuthRoundTrip     = "auth_round_trip"
	StageDeliveryRoundTrip = "delivery_round_trip"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveCalls      prometheus.Gauge
	CallEvents       *prometheus.CounterVec
	CallResolutions  *prometheus.CounterVec
	AuthOutcomes     *prometheus.CounterVec
	WSMessages       *prometheus.CounterVec
	WSWriteErrors    *prometheus.CounterVec
	DeliveryErrors   *prometheus.CounterVec
	RingToResolution prometheus.Histogram
	AuthRoundTrip    prometheus.Histogram

	stages *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveCalls: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Number of calls ringing or authenticating.",
		}),
		CallEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_events_total",
			Help:      "Call session events by type.",
		}, []string{"event"}),
		CallResolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_resolutions_total",
			Help:      "Resolved calls by outcome.",
		}, []string{"outcome"}),
		AuthOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_outcomes_total",
			Help:      "Device authentication outcomes.",
		}, []string{"outcome"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		WSWriteErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_write_errors_total",
			Help:      "WebSocket write failures by operation.",
		}, []string{"op"}),
		DeliveryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_errors_total",
			Help:      "Failed action deliveries to the host.",
		}, []string{"sink"}),
		RingToResolution: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ring_to_resolution_seconds",
			Help:      "Time from ringing to a terminal outcome.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 45, 60, 120},
		}),
		AuthRoundTrip: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "auth_round_trip_seconds",
			Help:      "Time from answer request to authentication outcome.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 60},
		}),
		stages: newStageWindow(256),
	}
}

func (m *Metrics) CallStarted() {
	m.ActiveCalls.Inc()
	m.CallEvents.WithLabelValues("started").Inc()
}

func (m *Metrics) ObserveResolution(outcome string, ringing time.Duration) {
	m.ActiveCalls.Dec()
	m.CallEvents.WithLabelValues("resolved").Inc()
	m.CallResolutions.WithLabelValues(outcome).Inc()
	m.RingToResolution.Observe(ringing.Seconds())
	m.stages.Observe(StageRingToResolution, float64(ringing.Milliseconds()))
	m.stages.ObserveIndicator("outcome_" + outcome)
}

func (m *Metrics) ObserveAuth(outcome string, took time.Duration) {
	m.AuthOutcomes.WithLabelValues(outcome).Inc()
	m.AuthRoundTrip.Observe(took.Seconds())
	m.stages.Observe(StageAuthRoundTrip, float64(took.Milliseconds()))
}

func (m *Metrics) ObserveDrop(event string) {
	m.CallEvents.WithLabelValues("dropped_" + event).Inc()
	m.stages.ObserveIndicator("dropped_" + event)
}

func (m *Metrics) ObserveDelivery(sink string, took time.Duration, err error) {
	if err != nil {
		m.DeliveryErrors.WithLabelValues(sink).Inc()
		return
	}
	m.stages.Observe(StageDeliveryRoundTrip, float64(took.Milliseconds()))
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) SnapshotStages() StageSnapshot {
	return m.stages.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
