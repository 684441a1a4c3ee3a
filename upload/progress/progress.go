// Package progress provides throttled progress reporting for long-running
// transfers. Callbacks are rate-limited so a fast chunk loop can't flood the
// consumer, while the terminal 100% snapshot is always delivered exactly once.
package progress

import (
	"sync"
	"time"
)

// DefaultInterval is the minimum delay between two intermediate progress
// callbacks.
const DefaultInterval = 500 * time.Millisecond

// State is a snapshot of a transfer passed to the progress callback.
type State struct {
	BytesTransferred int64
	TotalBytes       int64
	Percentage       int
}

// Func receives throttled progress snapshots during a transfer.
type Func func(State)

// Throttler rate-limits progress callbacks for one transfer. Reported byte
// counts never regress, intermediate snapshots inside the throttle window are
// dropped, and the terminal snapshot is only ever emitted by Finish.
type Throttler struct {
	fn       Func
	total    int64
	interval time.Duration

	mu       sync.Mutex
	maxBytes int64
	lastEmit time.Time
	finished bool
}

// NewThrottler creates a throttler reporting to fn. A nil fn disables
// reporting entirely. A non-positive interval falls back to DefaultInterval.
func NewThrottler(fn Func, totalBytes int64, interval time.Duration) *Throttler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Throttler{fn: fn, total: totalBytes, interval: interval}
}

// Publish reports the cumulative number of transferred bytes. Values are
// clamped to the total and regressions are ignored. Publish never emits the
// terminal snapshot, even when all bytes are reported: that is reserved for
// Finish, once the transfer is confirmed complete.
func (t *Throttler) Publish(bytes int64) {
	if t == nil || t.fn == nil || t.total <= 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if bytes > t.total {
		bytes = t.total
	}
	if bytes <= t.maxBytes {
		return
	}
	t.maxBytes = bytes

	if t.finished || bytes >= t.total {
		return
	}

	now := time.Now()
	if !t.lastEmit.IsZero() && now.Sub(t.lastEmit) < t.interval {
		return
	}
	t.lastEmit = now

	t.fn(State{
		BytesTransferred: bytes,
		TotalBytes:       t.total,
		Percentage:       int(bytes * 100 / t.total),
	})
}

// Finish emits the terminal 100% snapshot. Repeated calls are no-ops.
func (t *Throttler) Finish() {
	if t == nil || t.fn == nil || t.total <= 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished {
		return
	}
	t.finished = true
	t.maxBytes = t.total

	t.fn(State{
		BytesTransferred: t.total,
		TotalBytes:       t.total,
		Percentage:       100,
	})
}
