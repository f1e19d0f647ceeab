// Package server wires HTTP handlers into a gorilla/mux router for the
// roomcast service.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRoutes returns the router serving websocket upgrades, health, stats
// and, when a collector is configured, Prometheus metrics.
func (s *Server) SetupRoutes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws/{namespace}", s.WebSocketHandler)
	r.HandleFunc("/health", HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.StatsHandler).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/", HealthHandler).Methods(http.MethodGet)
	return r
}
