package chat

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Disconnect reasons recorded in the disconnects counter.
const (
	reasonEOF       = "eof"
	reasonReadError = "read_error"
	reasonSendError = "send_error"
	reasonPoller    = "poller_error"
	reasonShutdown  = "shutdown"
)

// Metrics holds the Prometheus collectors of a relay. A nil *Metrics records
// nothing, so servers built without WithMetrics pay no cost.
type Metrics struct {
	peers         prometheus.Gauge
	accepted      prometheus.Counter
	disconnects   *prometheus.CounterVec
	messages      prometheus.Counter
	bytesSent     prometheus.Counter
	backlogBytes  prometheus.Gauge
	updateSeconds prometheus.Histogram
}

// NewMetrics creates the relay collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		peers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "linechat",
			Name:      "peers",
			Help:      "Number of connected peers",
		}),
		accepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "linechat",
			Name:      "accepted_total",
			Help:      "Total number of accepted peer connections",
		}),
		disconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linechat",
			Name:      "disconnects_total",
			Help:      "Total number of peers removed, by reason",
		}, []string{"reason"}),
		messages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "linechat",
			Name:      "messages_total",
			Help:      "Total number of framed messages received from peers",
		}),
		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "linechat",
			Name:      "bytes_sent_total",
			Help:      "Total number of bytes written to peers",
		}),
		backlogBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "linechat",
			Name:      "backlog_bytes",
			Help:      "Bytes queued for peers but not yet written",
		}),
		updateSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "linechat",
			Name:      "update_seconds",
			Help:      "Time spent processing ready descriptors in one Update round",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		}),
	}
}

func (m *Metrics) peerAccepted() {
	if m == nil {
		return
	}
	m.accepted.Inc()
	m.peers.Inc()
}

func (m *Metrics) peerRemoved(reason string) {
	if m == nil {
		return
	}
	m.disconnects.WithLabelValues(reason).Inc()
	m.peers.Dec()
}

func (m *Metrics) messageReceived() {
	if m == nil {
		return
	}
	m.messages.Inc()
}

func (m *Metrics) sent(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesSent.Add(float64(n))
}

func (m *Metrics) setBacklog(n int) {
	if m == nil {
		return
	}
	m.backlogBytes.Set(float64(n))
}

func (m *Metrics) observeUpdate(start time.Time) {
	if m == nil {
		return
	}
	m.updateSeconds.Observe(time.Since(start).Seconds())
}
