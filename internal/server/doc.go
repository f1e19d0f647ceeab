// Package server implements the HTTP and WebSocket transport for roomcast.
//
// The implementation is organized into specialized files for configuration, origin
// checks, rate limiting, client pumps, inbound event decoding, routing, and HTTP
// handlers. Membership, presence and broadcast live in the hub package; this
// package only translates websocket frames into hub operations and hub events
// back into frames.
package server
