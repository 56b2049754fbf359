package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/subwave-io/subwave/rooms"
)

// Handlers serves the read-only status API over the subscription service
type Handlers struct {
	service *rooms.Service
	started time.Time
}

// NewHandlers creates a new Handlers instance
func NewHandlers(service *rooms.Service) *Handlers {
	return &Handlers{
		service: service,
		started: time.Now(),
	}
}

// handleStatus returns registry counts and uptime
func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := h.service.Stats()
	response := map[string]interface{}{
		"rooms":          stats.Rooms,
		"customers":      stats.Customers,
		"index_leaves":   stats.Leaves,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	}
	writeJSONResponse(w, response)
}

// handleRooms returns a snapshot of every live room
func (h *Handlers) handleRooms(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, h.service.Rooms())
}

// handleConnection returns the alias -> room bindings of one connection
func (h *Handlers) handleConnection(w http.ResponseWriter, r *http.Request, conn rooms.ConnectionID) {
	writeJSONResponse(w, h.service.Connection(conn))
}

// handleDropConnection force-removes every subscription of a connection.
// Partial failures are reported but the sweep always completes.
func (h *Handlers) handleDropConnection(w http.ResponseWriter, r *http.Request, conn rooms.ConnectionID) {
	if err := h.service.RemoveAllSubscriptions(conn); err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSONResponse(w, map[string]interface{}{"dropped": string(conn)})
}

// writeJSONResponse writes a success JSON response
func writeJSONResponse(w http.ResponseWriter, data interface{}) {
	response := map[string]interface{}{
		"data": data,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error JSON response
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	response := map[string]interface{}{
		"error": message,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}
