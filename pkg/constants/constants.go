// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Call-related constants
const (
	// RingTimeout is the maximum time a ringing call waits for an answer
	// before it is marked missed locally
	RingTimeout = 30 * time.Second

	// MaxCallDuration is the maximum allowed call duration (24 hours)
	MaxCallDuration = 24 * time.Hour

	// MissedCallNotice is the user-facing notice emitted on ring timeout
	MissedCallNotice = "Call ended • No answer"
)

// Typing presence constants
const (
	// TypingTTL is how long a typing marker stays visible without a refresh
	TypingTTL = 5 * time.Second

	// TypingSweepInterval is the cadence of the background expiry sweep
	TypingSweepInterval = 1 * time.Second
)

// Unread aggregation constants
const (
	// UnreadPollInterval is the cadence of the conversation summary poll
	UnreadPollInterval = 8 * time.Second
)

// Connection constants
const (
	// ReconnectDelay is the fixed wait before a reconnect attempt
	ReconnectDelay = 5 * time.Second

	// SendBufferSize is the maximum number of events buffered while the
	// channel is not connected; the oldest entry is dropped on overflow
	SendBufferSize = 64

	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 30 * time.Second

	// WebSocketWriteTimeout bounds a single frame write
	WebSocketWriteTimeout = 10 * time.Second
)

// Gateway constants
const (
	// GatewayTimeout is the default timeout for REST gateway requests
	GatewayTimeout = 10 * time.Second

	// DefaultPageSize is the default number of items per page
	DefaultPageSize = 20

	// MaxPageSize is the maximum number of items per page
	MaxPageSize = 100
)

// Daemon constants
const (
	// GracefulShutdownTimeout is the timeout for graceful daemon shutdown
	GracefulShutdownTimeout = 10 * time.Second
)
