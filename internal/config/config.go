package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL string
	Port        string
	JWTSecret   string

	// Risk/rate-limit tuning knobs. The defaults are empirical, not
	// correctness requirements, so every one of them is env-overridable.
	RiskHighThreshold float64
	HourlyAttemptMax  int
	DailyAttemptMax   int
	BlockFailureCount int
	BlockDuration     time.Duration
	AttemptRetention  time.Duration

	// Gateway tuning.
	HeartbeatPeriod     time.Duration
	HeartbeatStaleAfter time.Duration
	MailboxTTL          time.Duration
	MailboxMaxPerDevice int
	MailboxGCPeriod     time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port: "8080", // default port

		RiskHighThreshold: 7.0,
		HourlyAttemptMax:  5,
		DailyAttemptMax:   20,
		BlockFailureCount: 10,
		BlockDuration:     30 * time.Minute,
		AttemptRetention:  24 * time.Hour,

		HeartbeatPeriod:     5 * time.Minute,
		HeartbeatStaleAfter: 15 * time.Minute,
		MailboxTTL:          24 * time.Hour,
		MailboxMaxPerDevice: 100,
		MailboxGCPeriod:     time.Hour,
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	cfg.DatabaseURL = databaseURL

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	cfg.JWTSecret = jwtSecret

	var err error
	if cfg.RiskHighThreshold, err = envFloat("RISK_HIGH_THRESHOLD", cfg.RiskHighThreshold); err != nil {
		return nil, err
	}
	if cfg.HourlyAttemptMax, err = envInt("RATE_HOURLY_MAX", cfg.HourlyAttemptMax); err != nil {
		return nil, err
	}
	if cfg.DailyAttemptMax, err = envInt("RATE_DAILY_MAX", cfg.DailyAttemptMax); err != nil {
		return nil, err
	}
	if cfg.BlockFailureCount, err = envInt("BLOCK_FAILURE_COUNT", cfg.BlockFailureCount); err != nil {
		return nil, err
	}
	if cfg.BlockDuration, err = envDuration("BLOCK_DURATION", cfg.BlockDuration); err != nil {
		return nil, err
	}
	if cfg.AttemptRetention, err = envDuration("ATTEMPT_RETENTION", cfg.AttemptRetention); err != nil {
		return nil, err
	}
	if cfg.HeartbeatPeriod, err = envDuration("HEARTBEAT_PERIOD", cfg.HeartbeatPeriod); err != nil {
		return nil, err
	}
	if cfg.HeartbeatStaleAfter, err = envDuration("HEARTBEAT_STALE_AFTER", cfg.HeartbeatStaleAfter); err != nil {
		return nil, err
	}
	if cfg.MailboxTTL, err = envDuration("MAILBOX_TTL", cfg.MailboxTTL); err != nil {
		return nil, err
	}
	if cfg.MailboxMaxPerDevice, err = envInt("MAILBOX_MAX_PER_DEVICE", cfg.MailboxMaxPerDevice); err != nil {
		return nil, err
	}
	if cfg.MailboxGCPeriod, err = envDuration("MAILBOX_GC_PERIOD", cfg.MailboxGCPeriod); err != nil {
		return nil, err
	}

	return cfg, nil
}

func envFloat(name string, def float64) (float64, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return f, nil
}

func envInt(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return n, nil
}

func envDuration(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return d, nil
}
