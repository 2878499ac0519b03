package httpapi

import (
	"net/http"
	"time"

	"github.com/datacite/registry-search/pkg/health"
	"github.com/datacite/registry-search/pkg/metrics"
	"github.com/datacite/registry-search/pkg/middleware"
)

// NewRouter wires every entity type's routes plus the probe endpoints and
// wraps them in the shared middleware chain.
func NewRouter(h *Handler, checker *health.Checker, m *metrics.Metrics, requestTimeout time.Duration) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", checker.LiveHandler())
	mux.HandleFunc("GET /readyz", checker.ReadyHandler())

	for _, cfg := range h.configs {
		// The trailing wildcard absorbs slashes, so DOI keys like
		// 10.5438/0012 route as one id.
		mux.HandleFunc("GET /"+cfg.Type, h.list(cfg))
		mux.HandleFunc("GET /"+cfg.Type+"/{id...}", h.show(cfg))
		mux.HandleFunc("POST /"+cfg.Type, h.create(cfg))
		mux.HandleFunc("PUT /"+cfg.Type+"/{id...}", h.update(cfg))
		mux.HandleFunc("DELETE /"+cfg.Type+"/{id...}", h.del(cfg))
	}

	var handler http.Handler = mux
	handler = middleware.Timeout(requestTimeout)(handler)
	handler = middleware.Metrics(m)(handler)
	handler = middleware.Logging(handler)
	handler = middleware.RequestID(handler)
	return handler
}
