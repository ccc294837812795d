package xmodem

import (
	"io"
	"os"
	"time"
)

// Callbacks provides hooks for XMODEM transfer events.
// All callbacks are optional - nil callbacks use default behavior.
type Callbacks struct {
	// OnFileStart is called once the file is open, before waiting for the
	// receiver. size is -1 when unknown.
	OnFileStart func(filename string, size int64)

	// OnProgress is called periodically as blocks are acknowledged.
	// transferred counts payload bytes, excluding filler.
	OnProgress func(filename string, transferred, total int64, rate float64)

	// OnFileComplete is called when the receiver has acknowledged EOT.
	OnFileComplete func(filename string, bytesTransferred int64, duration time.Duration)

	// OnError is called when a transfer fails.
	// Return true to retry the file once from the start, false to abort.
	OnError func(err error, context string) bool

	// OnEvent is called for protocol events (debugging/logging).
	OnEvent func(event Event)

	// OnFileOpen is called when opening a file for reading.
	// If nil, the file is opened from the local filesystem.
	OnFileOpen func(filename string) (io.ReadCloser, os.FileInfo, error)
}

// Event represents a protocol event for logging/debugging.
type Event struct {
	Type      EventType
	Message   string
	Block     int
	Timestamp time.Time
}

// EventType categorizes protocol events.
type EventType int

const (
	EventReceiverReady EventType = iota
	EventBlockSent
	EventBlockResent
	EventBlockAcked
	EventBlockNaked
	EventEOTSent
	EventComplete
	EventError
	EventTimeout
	EventCancelled
)

func (t EventType) String() string {
	switch t {
	case EventReceiverReady:
		return "receiver ready"
	case EventBlockSent:
		return "block sent"
	case EventBlockResent:
		return "block resent"
	case EventBlockAcked:
		return "block acked"
	case EventBlockNaked:
		return "block naked"
	case EventEOTSent:
		return "EOT sent"
	case EventComplete:
		return "complete"
	case EventError:
		return "error"
	case EventTimeout:
		return "timeout"
	case EventCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// defaultCallbacks returns a set of callbacks with default implementations.
func defaultCallbacks() *Callbacks {
	return &Callbacks{
		OnFileStart:    func(string, int64) {},
		OnProgress:     func(string, int64, int64, float64) {},
		OnFileComplete: func(string, int64, time.Duration) {},
		OnError: func(error, string) bool {
			return false // Don't retry by default
		},
		OnEvent:    func(Event) {},
		OnFileOpen: nil, // Use default
	}
}

// mergeCallbacks merges user callbacks with defaults.
// User callbacks override defaults, nil callbacks use defaults.
func mergeCallbacks(user *Callbacks) *Callbacks {
	result := defaultCallbacks()
	if user == nil {
		return result
	}

	if user.OnFileStart != nil {
		result.OnFileStart = user.OnFileStart
	}
	if user.OnProgress != nil {
		result.OnProgress = user.OnProgress
	}
	if user.OnFileComplete != nil {
		result.OnFileComplete = user.OnFileComplete
	}
	if user.OnError != nil {
		result.OnError = user.OnError
	}
	if user.OnEvent != nil {
		result.OnEvent = user.OnEvent
	}

	// nil means use default
	result.OnFileOpen = user.OnFileOpen

	return result
}
