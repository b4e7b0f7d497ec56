// Package http arma el router, los middlewares y el ciclo de vida del
// servidor.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/http/handlers"
)

// NewRouter arma el árbol de rutas v1. El webhook queda fuera de
// cualquier auth de aplicación: su auth es la firma del provider.
func NewRouter(h *handlers.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(WithRequestID)
	r.Use(WithRecover)
	r.Use(WithMetrics)
	r.Use(WithAccessLog)

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/webhooks/bank", h.Webhook)

		r.Route("/connections", func(r chi.Router) {
			r.Post("/", h.LinkConnection)
			r.Get("/", h.ListConnections)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetConnection)
				r.Delete("/", h.Disconnect)
				r.Post("/sync", h.TriggerSync)
				r.Post("/balances", h.SnapshotBalances)
			})
		})

		r.Route("/receipts", func(r chi.Router) {
			r.Get("/", h.ListReceipts)
			r.Get("/{id}", h.GetReceipt)
			r.Post("/{id}/verify", h.VerifyReceipt)
		})

		r.Get("/events/count", h.CountEvents)
	})

	return r
}
