package server

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/taskmill/taskmill/internal/webapi"
	"github.com/taskmill/taskmill/pkg/monitor"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// requestLoggerMiddleware logs all incoming HTTP requests
func requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		log.Printf("%s %s %d %s reqid=%s", r.Method, r.URL.Path, wrapped.status,
			time.Since(start).Round(time.Millisecond), webapi.GetRequestID(r))
	})
}

// NewHandler builds the HTTP handler serving the task monitor API.
func NewHandler(mon *monitor.Monitor) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(webapi.RequestIDMiddleware)
	router.Use(requestLoggerMiddleware)
	router.Use(webapi.RecovererMiddleware)

	registerHealthRoutes(router)
	mon.RegisterRoutes(router)

	return router
}

func registerHealthRoutes(router chi.Router) {
	router.Method(http.MethodGet, "/health", webapi.Handler(func(w http.ResponseWriter, r *http.Request) error {
		response := map[string]any{
			"status":    "healthy",
			"service":   "taskmill",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		return webapi.WriteJSON(w, http.StatusOK, response)
	}))
	router.Method(http.MethodGet, "/health/live", webapi.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return webapi.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))
}
