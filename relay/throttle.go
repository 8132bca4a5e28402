package relay

import (
	"sync"
	"time"
)

// logThrottle suppresses repeats of the same endpoint+message pair within a
// window. A flapping relay produces one log line per window, not a flood.
type logThrottle struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
	now    func() time.Time
}

func newLogThrottle(window time.Duration) *logThrottle {
	return &logThrottle{
		window: window,
		seen:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether this endpoint+message pair should be logged, and
// records it if so.
func (t *logThrottle) Allow(endpoint, message string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := endpoint + "\x00" + message
	now := t.now()
	if last, ok := t.seen[key]; ok && now.Sub(last) < t.window {
		return false
	}

	// Opportunistic cleanup so the map does not grow with every distinct
	// error string a misbehaving relay invents.
	if len(t.seen) > 512 {
		for k, v := range t.seen {
			if now.Sub(v) >= t.window {
				delete(t.seen, k)
			}
		}
	}

	t.seen[key] = now
	return true
}
