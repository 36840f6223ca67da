package registration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter() (*RateLimiter, *time.Time) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	rl.Close()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestRateLimiterHourlyCap(t *testing.T) {
	rl, now := newTestLimiter()

	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow("203.0.113.5"), "attempt %d within hourly quota must be allowed", i+1)
		*now = now.Add(time.Minute)
	}
	assert.False(t, rl.Allow("203.0.113.5"), "6th attempt within the hour must be rejected")
}

func TestRateLimiterHourlyWindowSlides(t *testing.T) {
	rl, now := newTestLimiter()

	for i := 0; i < 5; i++ {
		rl.Allow("10.0.0.1")
	}
	assert.False(t, rl.Allow("10.0.0.1"))

	// Once the burst ages past an hour the IP is admitted again.
	*now = now.Add(61 * time.Minute)
	assert.True(t, rl.Allow("10.0.0.1"))
}

func TestRateLimiterDailyCap(t *testing.T) {
	rl, now := newTestLimiter()

	allowed := 0
	for i := 0; i < 25; i++ {
		if rl.Allow("10.0.0.2") {
			allowed++
		}
		// Spread attempts so the hourly cap never trips.
		*now = now.Add(15 * time.Minute)
	}
	assert.Equal(t, 20, allowed, "only the daily quota of attempts may pass")
}

func TestRateLimiterBlocksAfterConsecutiveFailures(t *testing.T) {
	rl, now := newTestLimiter()

	for i := 0; i < 10; i++ {
		rl.RecordFailure("10.0.0.3")
	}
	assert.False(t, rl.Allow("10.0.0.3"), "blocked IP must be rejected regardless of quota")
	assert.Equal(t, 30*time.Minute, rl.BlockedFor("10.0.0.3"))

	*now = now.Add(31 * time.Minute)
	assert.True(t, rl.Allow("10.0.0.3"), "block must expire after its duration")
	assert.Zero(t, rl.BlockedFor("10.0.0.3"))
}

func TestRateLimiterSuccessResetsFailures(t *testing.T) {
	rl, _ := newTestLimiter()

	for i := 0; i < 9; i++ {
		rl.RecordFailure("10.0.0.4")
	}
	rl.RecordSuccess("10.0.0.4")
	rl.RecordFailure("10.0.0.4")
	assert.True(t, rl.Allow("10.0.0.4"), "failure counter must reset on success")
}

func TestRateLimiterSnapshot(t *testing.T) {
	rl, now := newTestLimiter()

	rl.Allow("10.0.0.5")
	rl.RecordFailure("10.0.0.5")
	*now = now.Add(5 * time.Minute)
	rl.Allow("10.0.0.5")

	failures, recent := rl.Snapshot("10.0.0.5")
	assert.Equal(t, 1, failures)
	assert.Equal(t, 2, recent)

	*now = now.Add(11 * time.Minute)
	_, recent = rl.Snapshot("10.0.0.5")
	assert.Zero(t, recent, "attempts older than ten minutes must not count")
}

func TestRateLimiterDeniedAttemptsStillCount(t *testing.T) {
	rl, _ := newTestLimiter()

	for i := 0; i < 8; i++ {
		rl.Allow("10.0.0.6")
	}
	_, recent := rl.Snapshot("10.0.0.6")
	assert.Equal(t, 8, recent, "denied attempts are still part of the history")
}
