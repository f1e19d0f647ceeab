// Package server exposes HTTP handlers, including namespaced WebSocket
// upgrades, health checks, and hub statistics.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

// WebSocketHandler handles WebSocket upgrade requests for /ws/{namespace}.
// It validates the method and namespace, upgrades the connection, and hands
// the new client to the client set, which attaches it and starts its pumps.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	namespace := normalizeNamespace(mux.Vars(r)["namespace"])
	if err := s.checkNamespace(namespace); err != nil {
		s.log.WithError(err).Info("Refused connection")
		http.Error(w, "Unknown namespace.", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := newClient(conn, s, namespace, r.RemoteAddr)
	if !s.clients.register(client) {
		client.writeCloseMessage()
		client.closeConnection()
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "roomcast server is running!")
}

// StatsHandler reports live namespace, room and connection totals as JSON.
func (s *Server) StatsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.hub.Stats()); err != nil {
		s.log.WithError(err).Warn("Error writing stats response")
	}
}
