// Package chat rate-limits in-room chat messages per connected client.
//
// Grounded on the teacher's internal/api/ratelimit.go IPRateLimiter: a
// sync.Map of per-key *rate.Limiter entries plus a background cleanup loop
// that evicts stale keys, generalized from per-IP HTTP request limiting to
// per-client chat-message limiting. Message fan-out itself stays in
// internal/room (applyChat), which is the only place that knows team
// membership; this package only answers "may clientID speak right now".
package chat

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config tunes the token bucket applied to every client.
type Config struct {
	MessagesPerSecond float64
	Burst             int
	CleanupInterval   time.Duration
	StaleAfter        time.Duration
}

// DefaultConfig permits a steady trickle of chat with room for a short burst,
// matching the teacher's chat.DefaultRateLimitConfig cadence (roughly one
// message per second with headroom to catch up after silence).
var DefaultConfig = Config{
	MessagesPerSecond: 1,
	Burst:             5,
	CleanupInterval:   5 * time.Minute,
	StaleAfter:        10 * time.Minute,
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is a per-client token bucket rate limiter. The zero value is not
// usable; construct with NewLimiter.
type Limiter struct {
	cfg      Config
	mu       sync.Mutex
	entries  map[string]*entry
	stopOnce sync.Once
	stop     chan struct{}
}

// NewLimiter constructs a Limiter and starts its background cleanup
// goroutine. Call Stop when the owning server shuts down.
func NewLimiter(cfg Config) *Limiter {
	l := &Limiter{
		cfg:     cfg,
		entries: make(map[string]*entry),
		stop:    make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether clientID may send a chat message now, consuming one
// token from its bucket if so.
func (l *Limiter) Allow(clientID string) bool {
	l.mu.Lock()
	e, ok := l.entries[clientID]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(l.cfg.MessagesPerSecond), l.cfg.Burst)}
		l.entries[clientID] = e
	}
	e.lastSeen = time.Now()
	l.mu.Unlock()

	return e.limiter.Allow()
}

// Forget drops a client's bucket immediately, used on disconnect so the
// cleanup loop never has to find it.
func (l *Limiter) Forget(clientID string) {
	l.mu.Lock()
	delete(l.entries, clientID)
	l.mu.Unlock()
}

// Stop halts the cleanup goroutine. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) cleanupLoop() {
	interval := l.cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-l.cfg.StaleAfter)
			l.mu.Lock()
			for id, e := range l.entries {
				if e.lastSeen.Before(cutoff) {
					delete(l.entries, id)
				}
			}
			l.mu.Unlock()
		}
	}
}
