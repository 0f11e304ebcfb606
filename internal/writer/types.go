package writer

import (
	"time"

	"github.com/google/uuid"
)

// WriterConfig holds batching settings.
type WriterConfig struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: time.Second,
	}
}

// WriterMetrics holds metrics for a writer.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64 // Failed flushes
	Dropped   int64 // Rows lost to failed flushes
	Flushes   int64
}

// eventRow represents a row in the relay_events table.
type eventRow struct {
	EventID   uuid.UUID
	Kind      string
	SessionID string
	At        int64  // Microseconds
	Payload   []byte // Message events only
	CloseCode int
	Reason    string
	Local     bool
	Error     string
	Attempt   int
	WaitMs    int64
}
