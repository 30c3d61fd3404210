package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gopcua/opcua/ua"

	"github.com/marmos91/opcuad/internal/logger"
	"github.com/marmos91/opcuad/pkg/api/middleware"
	"github.com/marmos91/opcuad/pkg/session"
)

// SessionManager is the view of the session table the API needs.
type SessionManager interface {
	Sessions() []session.Diagnostics
	LookupByID(id string) (*session.Session, bool)
	CloseByID(id string) (*session.Session, error)
	Len() int
}

// SessionHandler serves session diagnostics and admin termination.
type SessionHandler struct {
	sessions SessionManager
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions SessionManager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// decodeSessionID URL-decodes the {id} parameter. A bare number is
// shorthand for the numeric node id in namespace 1 ("7" is "ns=1;i=7").
func decodeSessionID(encoded string) string {
	decoded, err := url.PathUnescape(encoded)
	if err != nil {
		decoded = encoded
	}
	if n, err := strconv.ParseUint(decoded, 10, 32); err == nil {
		return ua.NewNumericNodeID(1, uint32(n)).String()
	}
	return decoded
}

// List handles GET /api/v1/sessions.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse("session manager not initialized"))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(h.sessions.Sessions()))
}

// Get handles GET /api/v1/sessions/{id}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse("session manager not initialized"))
		return
	}
	s, ok := h.sessions.LookupByID(decodeSessionID(chi.URLParam(r, "id")))
	if !ok {
		NotFound(w, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, okResponse(s.Diagnostics()))
}

// Close handles DELETE /api/v1/sessions/{id}. Terminating an already
// terminated session yields 409.
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse("session manager not initialized"))
		return
	}
	id := decodeSessionID(chi.URLParam(r, "id"))

	if s, ok := h.sessions.LookupByID(id); ok && s.IsTerminated() {
		Conflict(w, "Session already terminated")
		return
	}

	s, err := h.sessions.CloseByID(id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			NotFound(w, "Session not found")
			return
		}
		BadRequest(w, err.Error())
		return
	}

	by := ""
	if claims := middleware.GetClaimsFromContext(r.Context()); claims != nil {
		by = claims.Subject
	}
	logger.Info("Session terminated by administrator",
		logger.KeySessionID, id,
		logger.KeyUser, by)

	writeJSON(w, http.StatusOK, okResponse(s.Diagnostics()))
}
