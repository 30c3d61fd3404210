package handlers

import (
	"net/http"
)

// HealthHandler handles the unauthenticated health endpoints:
//   - Liveness probe: is the process serving HTTP?
//   - Readiness probe: is the session table available?
type HealthHandler struct {
	sessions SessionManager
}

// NewHealthHandler creates a new health handler. sessions may be nil, in
// which case readiness reports unhealthy.
func NewHealthHandler(sessions SessionManager) *HealthHandler {
	return &HealthHandler{sessions: sessions}
}

// Liveness handles GET /health.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "opcuad",
	}))
}

// Readiness handles GET /health/ready. It returns 503 until a session
// manager is attached.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("session manager not initialized"))
		return
	}

	active := 0
	for _, d := range h.sessions.Sessions() {
		if d.State != "terminated" {
			active++
		}
	}
	writeJSON(w, http.StatusOK, healthyResponse(map[string]int{
		"sessions":        h.sessions.Len(),
		"active_sessions": active,
	}))
}
