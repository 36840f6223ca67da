package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/screenfleet/server/internal/model"
)

// DeviceRepo defines the interface for device repository operations
type DeviceRepo interface {
	Create(ctx context.Context, d model.DeviceIdentity) (model.DeviceIdentity, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]model.DeviceIdentity, error)
	ListAll(ctx context.Context) ([]model.DeviceIdentity, error)
	UpdateLastSeen(ctx context.Context, id uuid.UUID, seenAt time.Time) error
}

type deviceRepo struct {
	db *sql.DB
}

// NewDeviceRepo creates a new DeviceRepo instance
func NewDeviceRepo(db *sql.DB) DeviceRepo {
	return &deviceRepo{db: db}
}

// Create persists a new device identity
func (r *deviceRepo) Create(ctx context.Context, d model.DeviceIdentity) (model.DeviceIdentity, error) {
	query := `
		INSERT INTO devices (company_id, name, status, fingerprint, ip_address, mac_addresses)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	var idStr string
	var createdAt time.Time
	err := r.db.QueryRowContext(ctx, query,
		d.CompanyID, d.Name, string(d.Status), d.Fingerprint, d.IPAddress, pq.Array(d.MACAddresses),
	).Scan(&idStr, &createdAt)
	if err != nil {
		return model.DeviceIdentity{}, fmt.Errorf("failed to create device: %w", err)
	}

	d.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.DeviceIdentity{}, fmt.Errorf("failed to parse device ID: %w", err)
	}
	d.CreatedAt = createdAt
	return d, nil
}

// Delete removes a device. Used by the registration pipeline to roll back
// a device whose key claim lost the race.
func (r *deviceRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	return nil
}

// ListByCompany returns all devices owned by the company
func (r *deviceRepo) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]model.DeviceIdentity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, company_id, name, status, fingerprint, ip_address, mac_addresses, created_at, last_seen_at
		FROM devices
		WHERE company_id = $1
		ORDER BY created_at
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list devices by company: %w", err)
	}
	defer rows.Close()
	return scanDevices(rows)
}

// ListAll returns every device in the fleet
func (r *deviceRepo) ListAll(ctx context.Context) ([]model.DeviceIdentity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, company_id, name, status, fingerprint, ip_address, mac_addresses, created_at, last_seen_at
		FROM devices
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list all devices: %w", err)
	}
	defer rows.Close()
	return scanDevices(rows)
}

// UpdateLastSeen stamps the device's last_seen_at
func (r *deviceRepo) UpdateLastSeen(ctx context.Context, id uuid.UUID, seenAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE devices SET last_seen_at = $2 WHERE id = $1
	`, id, seenAt)
	if err != nil {
		return fmt.Errorf("update last seen: %w", err)
	}
	return nil
}

func scanDevices(rows *sql.Rows) ([]model.DeviceIdentity, error) {
	var devices []model.DeviceIdentity
	for rows.Next() {
		var d model.DeviceIdentity
		var idStr, companyIDStr, status string
		var macs pq.StringArray
		if err := rows.Scan(&idStr, &companyIDStr, &d.Name, &status, &d.Fingerprint, &d.IPAddress, &macs, &d.CreatedAt, &d.LastSeenAt); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		var err error
		if d.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("parse device ID: %w", err)
		}
		if d.CompanyID, err = uuid.Parse(companyIDStr); err != nil {
			return nil, fmt.Errorf("parse company ID: %w", err)
		}
		d.Status = model.DeviceStatus(status)
		d.MACAddresses = []string(macs)
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate devices: %w", err)
	}
	return devices, nil
}
