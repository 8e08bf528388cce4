package httpapi

// this is entry point of the http request handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"gitlab.com/proxygrid.net/internal/core/ports/primary"
	"gitlab.com/proxygrid.net/internal/metrics"
)

type Server struct {
	addr    string
	router  *mux.Router
	handler *Handler
	mw      *MiddlewareProvider
	metrics *metrics.Collector
	logger  primary.Logger
	srv     *http.Server
}

// NewServer builds the management API server. mw may be nil, which
// leaves all routes unauthenticated.
func NewServer(addr string, handler *Handler, mw *MiddlewareProvider, collector *metrics.Collector, logger primary.Logger) *Server {
	return &Server{
		addr:    addr,
		handler: handler,
		mw:      mw,
		metrics: collector,
		logger:  logger,
	}
}

func (s *Server) Init() {
	r := mux.NewRouter()
	s.handler.RegisterRoutes(r, s.mw)
	r.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	s.router = r
}

func (s *Server) Start() {
	s.srv = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.logger.Info("HTTP server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down http server...")
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
