package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	app "github.com/seanotes/seanotes/internal/app"
	"github.com/seanotes/seanotes/internal/logging"
)

// Server runs the REST API as an application service.
type Server struct {
	srv  *http.Server
	log  *logging.Logger
	mu   sync.Mutex
	addr string
	done chan error
}

// NewServer builds a server listening on addr for the application's routes.
// WriteTimeout is left unset because /events streams stay open.
func NewServer(application *app.Application, addr string) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewHandler(application),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		log:  application.Logger().Named("http"),
		addr: addr,
	}
}

// Name implements system.Service.
func (s *Server) Name() string { return "http" }

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.done = make(chan error, 1)
	s.mu.Unlock()

	s.log.WithField("addr", s.addr).Info("HTTP server listening")
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			s.log.WithError(err).Error("HTTP server stopped")
		}
		s.done <- err
	}()
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return <-done
}
