package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/screenfleet/server/internal/model"
)

// ErrKeyNotFound is returned when a registration key does not exist.
var ErrKeyNotFound = fmt.Errorf("registration key not found")

// KeyRepo defines the interface for registration key operations
type KeyRepo interface {
	GetByKey(ctx context.Context, key string) (model.RegistrationKey, error)
	// MarkUsed atomically claims the key for a device. It returns false if
	// the key was already used, so two racing registrations can never both
	// succeed on the same key.
	MarkUsed(ctx context.Context, key string, deviceID uuid.UUID) (bool, error)
	Create(ctx context.Context, k model.RegistrationKey) error
}

type keyRepo struct {
	db *sql.DB
}

// NewKeyRepo creates a new KeyRepo instance
func NewKeyRepo(db *sql.DB) KeyRepo {
	return &keyRepo{db: db}
}

// GetByKey retrieves a registration key by its value
func (r *keyRepo) GetByKey(ctx context.Context, key string) (model.RegistrationKey, error) {
	query := `
		SELECT key, company_id, expires_at, used, used_by_device, created_at
		FROM registration_keys
		WHERE key = $1
	`
	var k model.RegistrationKey
	var companyIDStr string
	var usedBy sql.NullString
	err := r.db.QueryRowContext(ctx, query, key).Scan(
		&k.Key,
		&companyIDStr,
		&k.ExpiresAt,
		&k.Used,
		&usedBy,
		&k.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.RegistrationKey{}, ErrKeyNotFound
		}
		return model.RegistrationKey{}, fmt.Errorf("query registration key: %w", err)
	}
	k.CompanyID, err = uuid.Parse(companyIDStr)
	if err != nil {
		return model.RegistrationKey{}, fmt.Errorf("parse company ID: %w", err)
	}
	if usedBy.Valid && usedBy.String != "" {
		u, _ := uuid.Parse(usedBy.String)
		k.UsedByDevice = &u
	}
	return k, nil
}

// MarkUsed performs a conditional update so the used flag transitions exactly once.
// The WHERE used = FALSE clause is the critical section: of two concurrent
// registrations only one update matches a row.
func (r *keyRepo) MarkUsed(ctx context.Context, key string, deviceID uuid.UUID) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE registration_keys
		SET used = TRUE, used_by_device = $2
		WHERE key = $1 AND used = FALSE
	`, key, deviceID)
	if err != nil {
		return false, fmt.Errorf("mark key used: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark key used rows affected: %w", err)
	}
	return n == 1, nil
}

// Create inserts a new registration key
func (r *keyRepo) Create(ctx context.Context, k model.RegistrationKey) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO registration_keys (key, company_id, expires_at)
		VALUES ($1, $2, $3)
	`, k.Key, k.CompanyID, k.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert registration key: %w", err)
	}
	return nil
}
