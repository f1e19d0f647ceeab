// Package server constructs the roomcast HTTP service, applies production
// timeouts, and coordinates graceful shutdown of listeners and clients.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/Tyrowin/roomcast/internal/hub"
	"github.com/Tyrowin/roomcast/internal/metrics"
)

// RoomPolicy decides whether a room may be joined in a namespace. A nil error
// allows the join.
type RoomPolicy func(namespace, room string) error

// AllowAnyRoom accepts every non-empty room.
func AllowAnyRoom(string, string) error { return nil }

// AllowRooms restricts namespace to the listed rooms. Other namespaces are
// unaffected.
func AllowRooms(namespace string, rooms ...string) RoomPolicy {
	allowed := make(map[string]struct{}, len(rooms))
	for _, r := range rooms {
		allowed[r] = struct{}{}
	}

	return func(ns, room string) error {
		if ns != namespace {
			return nil
		}
		if _, ok := allowed[room]; !ok {
			return fmt.Errorf("room %q is not available in %s: %w", room, ns, hub.ErrInvalidRoom)
		}
		return nil
	}
}

// Server is the HTTP front of a hub.Hub.
type Server struct {
	cfg        *Config
	hub        *hub.Hub
	log        logrus.FieldLogger
	metrics    *metrics.Collector
	origins    *originPolicy
	rooms      RoomPolicy
	namespaces map[string]struct{}
	upgrader   websocket.Upgrader
	clients    *clientSet
	http       *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used by the server and its clients.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics exposes c on /metrics and counts rejected inbound events.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) {
		s.metrics = c
	}
}

// WithRoomPolicy sets the policy consulted on joinRoom.
func WithRoomPolicy(p RoomPolicy) Option {
	return func(s *Server) {
		if p != nil {
			s.rooms = p
		}
	}
}

// New creates a Server for h. A nil cfg uses the defaults. cfg is copied, so
// the caller's value is left untouched.
func New(cfg *Config, h *hub.Hub, opts ...Option) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	local := *cfg
	local.sanitize()
	cfg = &local

	s := &Server{
		cfg:        cfg,
		hub:        h,
		log:        logrus.StandardLogger(),
		rooms:      AllowAnyRoom,
		namespaces: make(map[string]struct{}, len(cfg.Namespaces)),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, ns := range cfg.Namespaces {
		s.namespaces[ns] = struct{}{}
	}
	s.origins = newOriginPolicy(cfg.AllowedOrigins, s.log)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}
	s.clients = newClientSet(s.log)
	s.http = CreateServer(cfg.Port, s.SetupRoutes())
	return s
}

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Handler returns the routed HTTP handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ClientCount returns the number of connected websocket clients.
func (s *Server) ClientCount() int {
	return s.clients.count()
}

// ListenAndServe serves until Shutdown is called. It returns nil after a
// graceful shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Infof("Server listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, closes every websocket client and
// waits for their goroutines until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server...")

	var err error
	if httpErr := s.http.Shutdown(ctx); httpErr != nil {
		err = multierr.Append(err, fmt.Errorf("http shutdown: %w", httpErr))
	}
	if clientErr := s.clients.shutdown(ctx); clientErr != nil {
		err = multierr.Append(err, fmt.Errorf("client shutdown: %w", clientErr))
	}

	if err != nil {
		s.log.WithError(err).Warn("Server shutdown incomplete")
		return err
	}
	s.log.Info("Server shutdown completed")
	return nil
}

func (s *Server) rejected(reason string) {
	if s.metrics != nil {
		s.metrics.Rejected(reason)
	}
}

func (s *Server) checkNamespace(ns string) error {
	if _, ok := s.namespaces[ns]; !ok {
		return fmt.Errorf("%q: %w", ns, ErrUnknownNamespace)
	}
	return nil
}
