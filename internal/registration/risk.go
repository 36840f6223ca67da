package registration

import (
	"regexp"
	"time"
)

const (
	maxRiskScore = 10.0

	// HighRiskThreshold is the default score at which a device is
	// provisioned as PENDING_REVIEW instead of ACTIVE.
	HighRiskThreshold = 7.0
)

var botUserAgent = regexp.MustCompile(`(?i)(bot|crawler|spider|scraper|curl|wget|python-requests|headless)`)

// Signals are the inputs to the risk scorer. All of them are observations
// about a single registration attempt; the scorer itself holds no state.
type Signals struct {
	PriorFailures     int       // consecutive failed attempts from this IP
	AttemptsLast10Min int       // registration attempts from this IP in the last 10 minutes
	RequestTime       time.Time // evaluated in UTC
	HardwareID        string
	MACCount          int
	UserAgent         string
}

// Score combines the weighted signals into a 0-10 risk score. The score is
// advisory: it never blocks a registration, it only decides the device's
// initial status.
func Score(sig Signals) float64 {
	var score float64

	// Repeated failures from the same source.
	failurePenalty := 0.5 * float64(sig.PriorFailures)
	if failurePenalty > 3.0 {
		failurePenalty = 3.0
	}
	score += failurePenalty

	// Screens are installed during business hours.
	hour := sig.RequestTime.UTC().Hour()
	if hour < 6 || hour >= 22 {
		score += 1.0
	}

	// Real hardware reports a stable hardware ID.
	if len(sig.HardwareID) < 10 {
		score += 2.0
	}

	if sig.MACCount == 0 {
		score += 1.0
	}

	switch {
	case sig.UserAgent == "":
		score += 1.5
	case botUserAgent.MatchString(sig.UserAgent):
		score += 3.0
	}

	// Burst of attempts from one source.
	if sig.AttemptsLast10Min > 2 {
		score += 2.0
	}

	if score > maxRiskScore {
		score = maxRiskScore
	}
	if score < 0 {
		score = 0
	}
	return score
}
