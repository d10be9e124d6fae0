// Package gateway wires HTTP handlers into a chi router.
package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes returns the gateway's HTTP handler: health on /, the WebSocket
// endpoint on /ws, the test page on /test and, when the gateway was built
// with a registry, metrics on /metrics.
func (g *Gateway) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", g.HealthHandler)
	r.HandleFunc("/ws", g.WebSocketHandler)
	r.Get("/test", g.TestPageHandler)
	if g.promRegistry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(g.promRegistry, promhttp.HandlerOpts{}))
	}
	return r
}
