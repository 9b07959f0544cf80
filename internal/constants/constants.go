// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for job event listeners
	EventChannelBuffer = 100

	// SSEHeartbeat is how often an idle event stream gets a comment line
	SSEHeartbeat = 15 * time.Second
)

// File upload constants
const (
	// MaxUploadSize is the multipart form memory limit in bytes (100MB);
	// larger parts spill to disk
	MaxUploadSize = 100 << 20
)

// Server constants
const (
	// RequestTimeout bounds a single HTTP request, composition included
	RequestTimeout = 5 * time.Minute

	// ShutdownTimeout is how long serve waits for in-flight requests on exit
	ShutdownTimeout = 30 * time.Second

	// JobRetention is how long finished ingest jobs stay queryable
	JobRetention = time.Hour
)

// Output naming
const (
	// OutputPrefix starts every composite file name
	OutputPrefix = "stitch-"
)
