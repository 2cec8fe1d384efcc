// Package metrics exposes delivery counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scorelink/internal/models"
)

const namespace = "scorelink"

// Ack results
const (
	AckCleared    = "cleared"
	AckUnknownKey = "unknown_key"
	AckInvalid    = "invalid"
)

// Receipt results
const (
	ReceiptInserted   = "inserted"
	ReceiptDuplicate  = "duplicate"
	ReceiptMalformed  = "malformed"
	ReceiptStoreError = "store_error"
)

// Metrics owns a private registry so tests and multiple nodes in one process do not
// collide. All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	attempts          *prometheus.CounterVec
	attemptDuration   *prometheus.HistogramVec
	acks              *prometheus.CounterVec
	receipts          *prometheus.CounterVec
	ackSendFailures   prometheus.Counter
	pendingPresent    prometheus.Gauge
	pendingAttempts   prometheus.Gauge
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	connectedNodes    prometheus.Gauge
	supersededEntries prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_attempts_total",
			Help:      "Delivery attempts by outcome.",
		}, []string{"outcome"}),
		attemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_attempt_duration_seconds",
			Help:      "Time spent in one delivery attempt.",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"outcome"}),
		acks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acks_received_total",
			Help:      "Acknowledgments received by the sender, by result.",
		}, []string{"result"}),
		receipts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_received_total",
			Help:      "Results received by the peer, by result.",
		}, []string{"result"}),
		ackSendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ack_send_failures_total",
			Help:      "Acknowledgments the peer failed to send.",
		}),
		pendingPresent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_present",
			Help:      "1 while an unacknowledged result is stored.",
		}),
		pendingAttempts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_attempt_count",
			Help:      "Attempt count of the stored result.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		connectedNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_nodes",
			Help:      "Nodes with an open transport link.",
		}),
		supersededEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pending_superseded_total",
			Help:      "Unacknowledged results replaced by a newer one.",
		}),
	}

	m.registry.MustRegister(
		m.attempts,
		m.attemptDuration,
		m.acks,
		m.receipts,
		m.ackSendFailures,
		m.pendingPresent,
		m.pendingAttempts,
		m.httpRequests,
		m.httpDuration,
		m.connectedNodes,
		m.supersededEntries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RecordAttempt(outcome models.AttemptOutcome, d time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(string(outcome)).Inc()
	m.attemptDuration.WithLabelValues(string(outcome)).Observe(d.Seconds())
}

func (m *Metrics) RecordAck(result string) {
	if m == nil {
		return
	}
	m.acks.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordReceipt(result string) {
	if m == nil {
		return
	}
	m.receipts.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordAckSendFailure() {
	if m == nil {
		return
	}
	m.ackSendFailures.Inc()
}

func (m *Metrics) RecordSuperseded() {
	if m == nil {
		return
	}
	m.supersededEntries.Inc()
}

// SetPending mirrors the slot into gauges; nil means empty.
func (m *Metrics) SetPending(entry *models.PendingMessage) {
	if m == nil {
		return
	}
	if entry == nil {
		m.pendingPresent.Set(0)
		m.pendingAttempts.Set(0)
		return
	}
	m.pendingPresent.Set(1)
	m.pendingAttempts.Set(float64(entry.AttemptCount))
}

func (m *Metrics) SetConnectedNodes(n int) {
	if m == nil {
		return
	}
	m.connectedNodes.Set(float64(n))
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
