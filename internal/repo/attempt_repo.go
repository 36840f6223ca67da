package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/screenfleet/server/internal/model"
)

// AttemptRepo defines the interface for registration attempt audit records.
// Attempts are append-only: they are inserted and pruned by age, never updated.
type AttemptRepo interface {
	Insert(ctx context.Context, a model.RegistrationAttempt) error
	CountByIPSince(ctx context.Context, sourceIP string, since time.Time) (int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type attemptRepo struct {
	db *sql.DB
}

// NewAttemptRepo creates a new AttemptRepo instance
func NewAttemptRepo(db *sql.DB) AttemptRepo {
	return &attemptRepo{db: db}
}

// Insert appends a registration attempt record
func (r *attemptRepo) Insert(ctx context.Context, a model.RegistrationAttempt) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO registration_attempts (source_ip, device_name, key_prefix, success, failure_reason)
		VALUES ($1, $2, $3, $4, $5)
	`, a.SourceIP, a.DeviceName, a.KeyPrefix, a.Success, a.FailureReason)
	if err != nil {
		return fmt.Errorf("insert registration attempt: %w", err)
	}
	return nil
}

// CountByIPSince counts attempts from an IP since the given time
func (r *attemptRepo) CountByIPSince(ctx context.Context, sourceIP string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM registration_attempts
		WHERE source_ip = $1 AND created_at >= $2
	`, sourceIP, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return count, nil
}

// DeleteOlderThan prunes attempt records past the retention window
func (r *attemptRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM registration_attempts WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune attempts: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
