package gateway

import (
	"log/slog"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Tyrowin/linechat/internal/config"
)

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the gateway logger. If nil, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithRegistry registers the gateway collectors with reg and serves reg's
// metrics on /metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(g *Gateway) {
		g.promRegistry = reg
	}
}

// Gateway accepts WebSocket sessions and connects each to the relay.
type Gateway struct {
	cfg      config.GatewayConfig
	upgrader websocket.Upgrader
	origins  *originPolicy
	dialer   net.Dialer
	sessions *Registry

	promRegistry *prometheus.Registry
	metrics      *metrics
	logger       *slog.Logger
}

type metrics struct {
	sessions prometheus.Gauge
	rejected *prometheus.CounterVec
	relayed  *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "linechat",
			Subsystem: "gateway",
			Name:      "sessions",
			Help:      "Number of open WebSocket sessions",
		}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linechat",
			Subsystem: "gateway",
			Name:      "rejected_messages_total",
			Help:      "Messages from browsers that were not relayed, by reason",
		}, []string{"reason"}),
		relayed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linechat",
			Subsystem: "gateway",
			Name:      "relayed_messages_total",
			Help:      "Messages passed through the gateway, by direction",
		}, []string{"direction"}),
	}
}

func (m *metrics) reject(reason string) {
	if m != nil {
		m.rejected.WithLabelValues(reason).Inc()
	}
}

func (m *metrics) relay(direction string) {
	if m != nil {
		m.relayed.WithLabelValues(direction).Inc()
	}
}

func (m *metrics) sessionOpened() {
	if m != nil {
		m.sessions.Inc()
	}
}

func (m *metrics) sessionClosed() {
	if m != nil {
		m.sessions.Dec()
	}
}

// New creates a gateway for cfg. cfg is sanitized with the package defaults
// for anything left unset.
func New(cfg config.GatewayConfig, opts ...Option) *Gateway {
	full := config.Config{Gateway: cfg}
	full.Sanitize()

	g := &Gateway{
		cfg:    full.Gateway,
		dialer: net.Dialer{Timeout: 5 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.promRegistry != nil {
		g.metrics = newMetrics(g.promRegistry)
	}

	g.origins = newOriginPolicy(g.cfg.AllowedOrigins, g.logger)
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.origins.checkOrigin,
	}
	g.sessions = newRegistry(g.logger, g.metrics)
	return g
}

// Sessions returns the registry of live sessions.
func (g *Gateway) Sessions() *Registry {
	return g.sessions
}

// Shutdown closes every session and waits up to timeout for them to finish.
func (g *Gateway) Shutdown(timeout time.Duration) error {
	return g.sessions.Shutdown(timeout)
}
