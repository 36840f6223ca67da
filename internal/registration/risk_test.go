package registration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func baselineSignals() Signals {
	return Signals{
		RequestTime: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		HardwareID:  "HW-1234567890",
		MACCount:    2,
		UserAgent:   "ScreenAgent/2.1 (linux; arm64)",
	}
}

func TestScoreCleanRequestIsZero(t *testing.T) {
	assert.Zero(t, Score(baselineSignals()))
}

func TestScoreIndividualSignals(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Signals)
		want   float64
	}{
		{"two prior failures", func(s *Signals) { s.PriorFailures = 2 }, 1.0},
		{"failure penalty capped", func(s *Signals) { s.PriorFailures = 50 }, 3.0},
		{"off-hours request", func(s *Signals) { s.RequestTime = time.Date(2026, 3, 14, 3, 0, 0, 0, time.UTC) }, 1.0},
		{"late evening request", func(s *Signals) { s.RequestTime = time.Date(2026, 3, 14, 22, 0, 0, 0, time.UTC) }, 1.0},
		{"missing hardware id", func(s *Signals) { s.HardwareID = "" }, 2.0},
		{"short hardware id", func(s *Signals) { s.HardwareID = "abc" }, 2.0},
		{"no mac addresses", func(s *Signals) { s.MACCount = 0 }, 1.0},
		{"empty user agent", func(s *Signals) { s.UserAgent = "" }, 1.5},
		{"bot user agent", func(s *Signals) { s.UserAgent = "python-requests/2.31" }, 3.0},
		{"crawler user agent", func(s *Signals) { s.UserAgent = "Mozilla compatible GoogleBot" }, 3.0},
		{"attempt burst", func(s *Signals) { s.AttemptsLast10Min = 3 }, 2.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := baselineSignals()
			tt.mutate(&sig)
			assert.InDelta(t, tt.want, Score(sig), 1e-9)
		})
	}
}

func TestScoreMonotonicallyNonDecreasing(t *testing.T) {
	sig := baselineSignals()
	prev := Score(sig)

	steps := []func(*Signals){
		func(s *Signals) { s.PriorFailures = 4 },
		func(s *Signals) { s.RequestTime = time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC) },
		func(s *Signals) { s.HardwareID = "" },
		func(s *Signals) { s.MACCount = 0 },
		func(s *Signals) { s.UserAgent = "curl/8.0" },
		func(s *Signals) { s.AttemptsLast10Min = 5 },
	}
	for i, step := range steps {
		step(&sig)
		score := Score(sig)
		assert.GreaterOrEqual(t, score, prev, "adding negative signal %d must not lower the score", i)
		prev = score
	}
}

func TestScoreClampedToTen(t *testing.T) {
	sig := Signals{
		PriorFailures:     100,
		AttemptsLast10Min: 100,
		RequestTime:       time.Date(2026, 3, 14, 2, 0, 0, 0, time.UTC),
		HardwareID:        "",
		MACCount:          0,
		UserAgent:         "scrapy-bot/1.0",
	}
	assert.Equal(t, 10.0, Score(sig))
}

func TestFingerprintStable(t *testing.T) {
	headers := map[string]string{"Accept": "application/json", "Accept-Language": "en"}
	a := Fingerprint("Lobby-Screen-1", "ACME", headers, []string{"video", "html5"})
	b := Fingerprint("Lobby-Screen-1", "ACME", headers, []string{"html5", "video"})
	assert.Equal(t, a, b, "capability order must not change the fingerprint")
	assert.Len(t, a, 64)

	c := Fingerprint("Lobby-Screen-2", "ACME", headers, []string{"video", "html5"})
	assert.NotEqual(t, a, c)
}
