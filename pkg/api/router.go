package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/opcuad/internal/logger"
	"github.com/marmos91/opcuad/pkg/api/handlers"
	apimw "github.com/marmos91/opcuad/pkg/api/middleware"
	"github.com/marmos91/opcuad/pkg/identity"
)

// NewRouter builds the diagnostics routes:
//
//	GET    /health                 liveness
//	GET    /health/ready           readiness with session counts
//	GET    /api/v1/sessions        session diagnostics
//	GET    /api/v1/sessions/{id}   one session, {id} numeric or a node id
//	DELETE /api/v1/sessions/{id}   terminate; needs a bearer token with adminRole
func NewRouter(sessions handlers.SessionManager, tokens *identity.TokenValidator, adminRole string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	health := handlers.NewHealthHandler(sessions)
	r.Get("/health", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	sh := handlers.NewSessionHandler(sessions)
	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Get("/", sh.List)
		r.Get("/{id}", sh.Get)

		r.Group(func(r chi.Router) {
			r.Use(apimw.BearerAuth(tokens))
			r.Use(apimw.RequireRole(adminRole))
			r.Delete("/{id}", sh.Close)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// requestLogger writes one line per request. Probe traffic on /health
// is logged at DEBUG so it does not drown the session events.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log := logger.Info
		if strings.HasPrefix(r.URL.Path, "/health") {
			log = logger.Debug
		}
		log("API request",
			logger.KeyRequestID, middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			logger.KeyStatus, ww.Status(),
			logger.KeyClientAddr, r.RemoteAddr,
			logger.KeyDurationMs, logger.Duration(start),
		)
	})
}
