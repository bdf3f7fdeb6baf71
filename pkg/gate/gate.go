// Package gate implements the fixed-interval publish gate that decouples
// inference cadence from remote write cadence.
//
// The gate keeps one piece of state, the time of the last admitted cycle.
// A cycle is admitted when at least Interval has elapsed since then; every
// other cycle is dropped. Nothing is queued and dropped counts are not
// replayed, so bursts are down-sampled rather than smoothed.
package gate

import (
	"sync"
	"time"
)

// DefaultInterval is the publish interval used when none is configured.
const DefaultInterval = time.Second

// Gate admits at most one cycle per interval.
type Gate struct {
	interval time.Duration

	mu   sync.Mutex
	last time.Time
	set  bool
}

// New creates a gate. A non-positive interval falls back to DefaultInterval.
// The first call to Admit always succeeds.
func New(interval time.Duration) *Gate {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Gate{interval: interval}
}

// Interval returns the configured interval.
func (g *Gate) Interval() time.Duration {
	return g.interval
}

// Admit reports whether a cycle at now may publish, and records now as the
// last publish time when it does.
func (g *Gate) Admit(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.set && now.Sub(g.last) < g.interval {
		return false
	}

	g.last = now
	g.set = true
	return true
}

// LastPublish returns the last admitted time and whether any cycle was
// admitted yet.
func (g *Gate) LastPublish() (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last, g.set
}
