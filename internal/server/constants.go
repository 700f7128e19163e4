// Package server provides the HTTP control API and the WebSocket display hub
package server

import "time"

// Server configuration constants
const (
	// Per-connection inbound rate limiting
	RateLimitMessages = 20          // Max messages per connection per window
	RateLimitWindow   = time.Second // Sliding window duration

	// Outbound queue per display client; a full queue drops the message
	ClientSendBuffer = 32

	// Bound on a single websocket write
	WriteTimeout = 5 * time.Second

	// Graceful shutdown budget for the HTTP server
	ShutdownTimeout = 5 * time.Second
)
