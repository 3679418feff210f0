package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"classdesk/internal/config"
	"classdesk/internal/countdown"
	"classdesk/internal/refresh"
	"classdesk/internal/store"
)

// Server is the agent's local control surface for the dashboard UI.
type Server struct {
	config     *config.Config
	router     http.Handler
	httpServer *http.Server
	controller *countdown.Controller
	store      store.Store
	signals    *refresh.Broadcaster
	logger     *zap.Logger
}

func NewServer(cfg *config.Config, ctrl *countdown.Controller, st store.Store, signals *refresh.Broadcaster, l *zap.Logger) *Server {
	s := &Server{
		config:     cfg,
		controller: ctrl,
		store:      st,
		signals:    signals,
		logger:     l,
	}
	s.router = s.setupRouter()
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%s", s.config.AgentPort),
		Handler:     s.router,
		ReadTimeout: 10 * time.Second,
		// No write timeout: /api/events is a long-lived SSE stream.
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
