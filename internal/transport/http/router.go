// Package httptransport wires the HTTP surface: the lookup API, health
// probe, and Prometheus scrape endpoint.
package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ipwatch/internal/lookup/handler"
)

// NewRouter assembles the router. Handlers register their own middleware
// chains; only process-level endpoints live here.
func NewRouter(lookup *handler.Handler) http.Handler {
	r := chi.NewRouter()

	lookup.Register(r)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
