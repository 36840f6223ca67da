package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// HeartbeatRepo defines the interface for persisted device heartbeats
type HeartbeatRepo interface {
	Record(ctx context.Context, deviceID uuid.UUID, status string, reportedAt time.Time) error
	// Latest returns the most recent heartbeat time for the device, or nil
	// if the device has never reported.
	Latest(ctx context.Context, deviceID uuid.UUID) (*time.Time, error)
}

type heartbeatRepo struct {
	db *sql.DB
}

// NewHeartbeatRepo creates a new HeartbeatRepo instance
func NewHeartbeatRepo(db *sql.DB) HeartbeatRepo {
	return &heartbeatRepo{db: db}
}

// Record inserts a heartbeat row
func (r *heartbeatRepo) Record(ctx context.Context, deviceID uuid.UUID, status string, reportedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO device_heartbeats (device_id, status, reported_at)
		VALUES ($1, $2, $3)
	`, deviceID, status, reportedAt)
	if err != nil {
		return fmt.Errorf("record heartbeat: %w", err)
	}
	return nil
}

// Latest returns the newest reported_at for the device
func (r *heartbeatRepo) Latest(ctx context.Context, deviceID uuid.UUID) (*time.Time, error) {
	var t time.Time
	err := r.db.QueryRowContext(ctx, `
		SELECT reported_at FROM device_heartbeats
		WHERE device_id = $1
		ORDER BY reported_at DESC
		LIMIT 1
	`, deviceID).Scan(&t)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query latest heartbeat: %w", err)
	}
	return &t, nil
}
