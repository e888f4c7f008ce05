package consts

import "time"

// Wire limits
const (
	// RequestIDLength is the length of a request or discussion id
	RequestIDLength = 7
	// DefaultMaxLineBytes bounds a single protocol line, newline included
	DefaultMaxLineBytes = 64 * 1024
	// DefaultSendBuffer is the number of pushes queued per peer before drops
	DefaultSendBuffer = 64
)

// Connection limits
const (
	// DefaultMaxConnections caps concurrently served peers
	DefaultMaxConnections = 1024
	// DefaultHistorySize is the per-connection undo history length
	DefaultHistorySize = 32
)

// Timeouts for various operations
const (
	// Timeout1Second is a 1 second timeout
	Timeout1Second = 1 * time.Second
	// Timeout5Seconds is a 5 second timeout
	Timeout5Seconds = 5 * time.Second
	// Timeout10Seconds is a 10 second timeout
	Timeout10Seconds = 10 * time.Second
)

// Store defaults
const (
	// DefaultPollInterval is the change stream fallback poll interval
	DefaultPollInterval = 500 * time.Millisecond
	// MaxIDAttempts bounds discussion id collision retries
	MaxIDAttempts = 16
	// StreamBatchSize is the number of notifications read per poll
	StreamBatchSize = 64
)
