// Package testhelpers provides common utilities for testing the roomcast server.
//
// It contains reusable helpers for creating test servers, making HTTP
// requests, and driving websocket clients that speak the event envelope, so
// that server tests read as scenarios rather than plumbing.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// DefaultOrigin is the origin sent by ConnectWebSocket.
const DefaultOrigin = "http://localhost:8080"

// Timeout bounds every wait performed by the helpers.
const Timeout = 2 * time.Second

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that should be closed after use.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// WebSocketURL turns the test server URL into a ws:// URL for path.
func WebSocketURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err, "Failed to create request")

	resp, err := client.Do(req)
	require.NoError(t, err, "Failed to make request")
	return resp
}

// Dial opens a websocket with the given Origin header. The handshake response
// is returned so callers can inspect refused upgrades.
func Dial(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// Event is an outbound envelope as seen by a client.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(e.Data, v), "decode %s payload %s", e.Event, e.Data)
}

// Client is a websocket test client. A background reader feeds received
// events into a channel so that waiting for an event never poisons the
// connection with a read deadline.
type Client struct {
	t      *testing.T
	conn   *websocket.Conn
	events chan Event
	done   chan struct{}
}

// ConnectWebSocket dials url with DefaultOrigin and starts reading events.
// The connection is closed when the test ends.
func ConnectWebSocket(t *testing.T, url string) *Client {
	t.Helper()

	conn, _, err := Dial(url, DefaultOrigin)
	require.NoError(t, err, "Failed to connect to %s", url)

	c := &Client{
		t:      t,
		conn:   conn,
		events: make(chan Event, 256),
		done:   make(chan struct{}),
	}
	go c.read()
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func (c *Client) read() {
	defer close(c.done)
	defer close(c.events)
	for {
		var ev Event
		if err := c.conn.ReadJSON(&ev); err != nil {
			return
		}
		c.events <- ev
	}
}

// Send writes one inbound event.
func (c *Client) Send(event string, data any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(map[string]any{"event": event, "data": data}))
}

// SendRaw writes a raw text frame.
func (c *Client) SendRaw(data []byte) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, data))
}

// WaitFor returns the first event matching match, discarding the others.
func (c *Client) WaitFor(match func(Event) bool) Event {
	c.t.Helper()

	deadline := time.After(Timeout)
	for {
		select {
		case ev, ok := <-c.events:
			require.True(c.t, ok, "connection closed while waiting for event")
			if match(ev) {
				return ev
			}
		case <-deadline:
			require.FailNow(c.t, "timed out waiting for event")
			return Event{}
		}
	}
}

// WaitForEvent returns the next event with the given name.
func (c *Client) WaitForEvent(name string) Event {
	c.t.Helper()
	return c.WaitFor(func(ev Event) bool { return ev.Event == name })
}

// AssertNoEvent fails if an event matching match arrives within wait.
func (c *Client) AssertNoEvent(wait time.Duration, match func(Event) bool) {
	c.t.Helper()

	deadline := time.After(wait)
	for {
		select {
		case ev, ok := <-c.events:
			if !ok {
				return
			}
			if match(ev) {
				c.t.Errorf("unexpected %s event: %s", ev.Event, ev.Data)
				return
			}
		case <-deadline:
			return
		}
	}
}

// WaitClosed waits until the server closes the connection.
func (c *Client) WaitClosed() {
	c.t.Helper()

	select {
	case <-c.done:
	case <-time.After(Timeout):
		require.FailNow(c.t, "timed out waiting for connection to close")
	}
}

// Close gracefully closes the WebSocket connection.
func (c *Client) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}
