// Package server defines the inbound websocket event envelope and utility helpers
// that are reused across client and handler logic.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// Inbound event names.
const (
	EventJoinRoom    = "joinRoom"
	EventChatMessage = "chatMessage"
	EventSetUsername = "setUsername"
)

var (
	// ErrSendBufferFull is returned by Client.Send when the outbound buffer is full.
	ErrSendBufferFull = errors.New("server: send buffer full")

	// ErrClientClosed is returned by Client.Send after the client was closed.
	ErrClientClosed = errors.New("server: client closed")

	// ErrUnknownNamespace is returned for namespaces outside the configured allow-list.
	ErrUnknownNamespace = errors.New("server: unknown namespace")

	errMissingRoom = errors.New("server: joinRoom requires a room name")
)

// InboundEvent is the envelope of every frame a client sends.
type InboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRequest is the payload of joinRoom. Clients may send either a bare room
// name or an object carrying a username as well.
type JoinRequest struct {
	RoomName string `json:"roomName"`
	Username string `json:"username,omitempty"`
}

func decodeJoinRequest(raw json.RawMessage) (JoinRequest, error) {
	var req JoinRequest
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &req.RoomName); err != nil {
			return JoinRequest{}, err
		}
	} else if err := json.Unmarshal(trimmed, &req); err != nil {
		return JoinRequest{}, err
	}

	if req.RoomName == "" {
		return JoinRequest{}, errMissingRoom
	}
	return req, nil
}

func decodeText(raw json.RawMessage) (string, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", err
	}
	return text, nil
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
