package registration

import (
	"sync"
	"time"
)

// RateLimiterConfig holds the tuning knobs of the registration rate limiter.
type RateLimiterConfig struct {
	HourlyMax     int
	DailyMax      int
	BlockAfter    int // consecutive failures before an IP is blocked
	BlockDuration time.Duration
	Window        time.Duration // attempt history retention, normally 24h
}

// DefaultRateLimiterConfig returns the limits used in production.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		HourlyMax:     5,
		DailyMax:      20,
		BlockAfter:    10,
		BlockDuration: 30 * time.Minute,
		Window:        24 * time.Hour,
	}
}

// RateLimiter bounds registration attempts per source IP using a sliding
// window over the attempt history, plus an escalating block list for IPs
// that keep failing.
type RateLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	failures map[string]int
	blocked  map[string]time.Time // IP -> block expiry

	cfg  RateLimiterConfig
	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

// NewRateLimiter creates a new rate limiter and starts its cleanup goroutine.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		attempts: make(map[string][]time.Time),
		failures: make(map[string]int),
		blocked:  make(map[string]time.Time),
		cfg:      cfg,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Allow records an attempt for the IP and reports whether it is admitted.
// The attempt is recorded even when the answer is no, so denied attempts
// still count toward the window.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.pruneLocked(ip, now)

	allowed := true
	if until, ok := rl.blocked[ip]; ok {
		if now.Before(until) {
			allowed = false
		} else {
			delete(rl.blocked, ip)
		}
	}

	if allowed {
		hourAgo := now.Add(-time.Hour)
		var lastHour int
		for _, t := range rl.attempts[ip] {
			if t.After(hourAgo) {
				lastHour++
			}
		}
		if lastHour >= rl.cfg.HourlyMax || len(rl.attempts[ip]) >= rl.cfg.DailyMax {
			allowed = false
		}
	}

	rl.attempts[ip] = append(rl.attempts[ip], now)
	return allowed
}

// BlockedFor returns the remaining block TTL for the IP, zero if not blocked.
func (rl *RateLimiter) BlockedFor(ip string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	until, ok := rl.blocked[ip]
	if !ok {
		return 0
	}
	remaining := until.Sub(rl.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RecordFailure increments the IP's consecutive failure counter. Reaching
// the configured threshold places the IP on the block list.
func (rl *RateLimiter) RecordFailure(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.failures[ip]++
	if rl.failures[ip] >= rl.cfg.BlockAfter {
		rl.blocked[ip] = rl.now().Add(rl.cfg.BlockDuration)
	}
}

// RecordSuccess resets the IP's consecutive failure counter. The attempt
// history is untouched: successes still count toward the rate window.
func (rl *RateLimiter) RecordSuccess(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.failures[ip] = 0
}

// Snapshot returns the IP's consecutive failure count and the number of
// attempts in the last ten minutes, for risk scoring.
func (rl *RateLimiter) Snapshot(ip string) (failures, attemptsLast10Min int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-10 * time.Minute)
	for _, t := range rl.attempts[ip] {
		if t.After(cutoff) {
			attemptsLast10Min++
		}
	}
	return rl.failures[ip], attemptsLast10Min
}

// Close stops the cleanup goroutine.
func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

// pruneLocked drops attempt timestamps outside the retention window.
// Caller must hold rl.mu.
func (rl *RateLimiter) pruneLocked(ip string, now time.Time) {
	cutoff := now.Add(-rl.cfg.Window)
	reqs := rl.attempts[ip]
	filtered := reqs[:0]
	for _, t := range reqs {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) == 0 {
		delete(rl.attempts, ip)
	} else {
		rl.attempts[ip] = filtered
	}
}

// cleanup periodically removes stale entries to prevent memory leaks
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for ip := range rl.attempts {
				rl.pruneLocked(ip, now)
			}
			for ip, until := range rl.blocked {
				if now.After(until) {
					delete(rl.blocked, ip)
				}
			}
			for ip, n := range rl.failures {
				if n == 0 {
					delete(rl.failures, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}
