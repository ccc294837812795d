package xmodem

import (
	"sync"
	"time"
)

// ProgressTracker tracks acknowledged bytes and invokes progress callbacks.
type ProgressTracker struct {
	mu sync.Mutex

	clock Clock

	filename   string
	acked      int64
	total      int64
	blocks     int64
	startTime  time.Time
	lastUpdate time.Time
	lastBytes  int64

	callback       func(string, int64, int64, float64)
	updateInterval time.Duration
}

// ProgressStats is a snapshot of a transfer's progress.
type ProgressStats struct {
	Filename string
	Acked    int64
	Total    int64
	Blocks   int64
	Rate     float64
	Duration time.Duration
}

// NewProgressTracker creates a new progress tracker.
func NewProgressTracker(callback func(string, int64, int64, float64), interval time.Duration, clock Clock) *ProgressTracker {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	return &ProgressTracker{
		clock:          getClock(clock),
		callback:       callback,
		updateInterval: interval,
	}
}

// Start begins tracking a new file. total is -1 when unknown.
func (pt *ProgressTracker) Start(filename string, total int64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.filename = filename
	pt.total = total
	pt.acked = 0
	pt.blocks = 0
	pt.startTime = pt.clock.Now()
	pt.lastUpdate = pt.startTime
	pt.lastBytes = 0
}

// BlockAcked records an acknowledged block carrying n payload bytes and
// invokes the callback if enough time has passed.
func (pt *ProgressTracker) BlockAcked(n int) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.acked += int64(n)
	pt.blocks++

	now := pt.clock.Now()
	if now.Sub(pt.lastUpdate) < pt.updateInterval {
		return
	}

	elapsed := now.Sub(pt.lastUpdate).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(pt.acked-pt.lastBytes) / elapsed
	}

	if pt.callback != nil {
		pt.callback(pt.filename, pt.acked, pt.total, rate)
	}

	pt.lastUpdate = now
	pt.lastBytes = pt.acked
}

// Complete marks the transfer as complete and returns the duration.
func (pt *ProgressTracker) Complete() time.Duration {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	duration := pt.clock.Now().Sub(pt.startTime)

	if pt.callback != nil {
		pt.callback(pt.filename, pt.acked, pt.total, 0)
	}

	return duration
}

// Stats returns current progress statistics.
func (pt *ProgressTracker) Stats() ProgressStats {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	s := ProgressStats{
		Filename: pt.filename,
		Acked:    pt.acked,
		Total:    pt.total,
		Blocks:   pt.blocks,
		Duration: pt.clock.Now().Sub(pt.startTime),
	}
	if s.Duration.Seconds() > 0 {
		s.Rate = float64(s.Acked) / s.Duration.Seconds()
	}
	return s
}
