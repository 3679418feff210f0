package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/metrics", promhttp.Handler().(http.HandlerFunc))
	r.Get("/api/health", s.handleHealthCheck)

	// The events stream stays outside the timeout group.
	r.Get("/api/events", s.handleEvents)

	r.Route("/api/pending-delete", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Post("/", s.handleStartDelete)
		r.Get("/", s.handleGetPending)
		r.Delete("/", s.handleUndo)
	})

	return r
}
