// Package constants provides shared constants used throughout the hitlfeed codebase.
// This includes feed limits, timeouts, and network settings that must stay
// consistent between the feed, the transport and the relay server.
package constants

import "time"

// Feed constants
const (
	// MaxEvents is the number of most recent events the store retains.
	MaxEvents = 100

	// AutoScrollThreshold is how close (in rows) to the bottom a view must be
	// for new events to keep it pinned to the bottom.
	AutoScrollThreshold = 10

	// WildcardEventType subscribes a handler to every event type.
	WildcardEventType = "*"

	// FallbackEventType is used when neither the transport nor the payload names a type.
	FallbackEventType = "unknown"

	// DedupCacheSize is the number of recent event IDs remembered for redelivery detection.
	DedupCacheSize = 1024
)

// Timeout constants define various timeout durations used in the application
const (
	// DefaultTimeout is the standard timeout for general operations
	DefaultTimeout = 10 * time.Second

	// ShutdownTimeout bounds graceful shutdown of servers and background workers
	ShutdownTimeout = 5 * time.Second

	// DialTimeout is the timeout for establishing a transport connection
	DialTimeout = 10 * time.Second

	// WriteWait is the time allowed to write a message to a websocket peer
	WriteWait = 10 * time.Second

	// PongWait is the time allowed to read the next pong message from a peer
	PongWait = 60 * time.Second

	// PingPeriod sends pings to peers with this period. Must be less than PongWait.
	PingPeriod = (PongWait * 9) / 10
)

// Reconnect constants
const (
	// ReconnectInitialInterval is the first delay before a reconnect attempt
	ReconnectInitialInterval = 500 * time.Millisecond

	// ReconnectMaxInterval caps the delay between reconnect attempts
	ReconnectMaxInterval = 30 * time.Second

	// ReconnectMultiplier grows the delay between consecutive attempts
	ReconnectMultiplier = 2.0
)

// Limit constants define various limits and capacities
const (
	// ChannelBufferSize is the default buffer size for fan-out channels
	ChannelBufferSize = 256

	// MaxInboundMessageSize bounds a single frame read from an upstream feed (1 MB)
	MaxInboundMessageSize = 1 << 20

	// MaxClientMessageSize bounds frames read from downstream relay clients
	MaxClientMessageSize = 512

	// MaxRequestBodySize bounds producer POST bodies (1 MB)
	MaxRequestBodySize = 1 << 20

	// DefaultHistoryLimit is the default number of archived events returned per query
	DefaultHistoryLimit = 100

	// MaxHistoryLimit is the maximum number of archived events returned per query
	MaxHistoryLimit = 1000
)

// Cache constants
const (
	// CacheTTL is the default time-to-live for cached feed snapshots
	CacheTTL = 5 * time.Minute

	// CacheCleanupInterval is how often to clean expired cache entries
	CacheCleanupInterval = 10 * time.Minute
)

// Simulator constants
const (
	// DefaultSimulateInterval is the delay between simulated events
	DefaultSimulateInterval = 750 * time.Millisecond
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644
)

// Path constants
const (
	// DefaultConfigFile is the default configuration file name in the user's home
	DefaultConfigFile = ".hitlfeed.yaml"

	// DefaultArchivePath is the default SQLite archive location
	DefaultArchivePath = "~/.hitlfeed/events.db"
)

// Format constants
const (
	// TimeFormatClock is the time format used in feed rows
	TimeFormatClock = "15:04:05"

	// TimeFormatLog is the format used in log files
	TimeFormatLog = "2006-01-02 15:04:05.000"
)
