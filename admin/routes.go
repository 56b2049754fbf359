package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/subwave-io/subwave/rooms"
	"github.com/subwave-io/subwave/telemetry"
)

// RegisterRoutes registers the status API routes using chi router
func RegisterRoutes(mux *http.ServeMux, handlers *Handlers) {
	r := chi.NewRouter()

	r.Get("/status", handlers.handleStatus)
	r.Get("/rooms", handlers.handleRooms)

	r.Route("/connections/{connID}", func(r chi.Router) {
		r.Get("/", handlers.wrapWithConn(handlers.handleConnection))
		r.Delete("/", handlers.wrapWithConn(handlers.handleDropConnection))
	})

	mux.Handle("/", r)

	if metricsHandler := telemetry.GetMetricsHandler(); metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	log.Info().Msg("Status endpoints enabled at /status, /rooms, /connections/{connID}")
}

// wrapWithConn extracts the connection id URL param
func (h *Handlers) wrapWithConn(fn func(http.ResponseWriter, *http.Request, rooms.ConnectionID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connID := chi.URLParam(r, "connID")
		if connID == "" {
			writeErrorResponse(w, http.StatusBadRequest, "connection id is required")
			return
		}
		fn(w, r, rooms.ConnectionID(connID))
	}
}
