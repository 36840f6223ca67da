package tests

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
)

const (
	// MigrationDir is the path to migrations relative to the module root.
	MigrationDir = "internal/db/migrations"
	// MigrationDirFromInternalTests is used when go test ./... runs tests from internal/tests.
	MigrationDirFromInternalTests = "../../internal/db/migrations"
)

// ResolveMigrationDir returns the first existing migrations directory,
// or empty string if none exists.
func ResolveMigrationDir() string {
	for _, dir := range []string{MigrationDir, MigrationDirFromInternalTests} {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			abs, _ := filepath.Abs(dir)
			return abs
		}
	}
	return ""
}

// RunMigrations runs goose Up using the resolved migration directory.
func RunMigrations(db *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	dir := ResolveMigrationDir()
	if dir == "" {
		return fmt.Errorf("migrations directory not found (tried %q, %q); run tests from the repo root", MigrationDir, MigrationDirFromInternalTests)
	}
	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// TruncateFleetTables truncates fleet tables for a clean test state.
func TruncateFleetTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, "TRUNCATE TABLE device_heartbeats, registration_attempts, devices, registration_keys, companies RESTART IDENTITY CASCADE")
	if err != nil {
		return fmt.Errorf("truncate fleet tables: %w", err)
	}
	return nil
}

// SeedCompanyAndKey inserts a company and an unused registration key,
// returning the company ID.
func SeedCompanyAndKey(ctx context.Context, db *sql.DB, name, orgCode, key string, expiresAt time.Time) (uuid.UUID, error) {
	var idStr string
	err := db.QueryRowContext(ctx, `
		INSERT INTO companies (name, org_code) VALUES ($1, $2) RETURNING id
	`, name, orgCode).Scan(&idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("seed company: %w", err)
	}
	companyID, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse company ID: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO registration_keys (key, company_id, expires_at) VALUES ($1, $2, $3)
	`, key, companyID, expiresAt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("seed registration key: %w", err)
	}
	return companyID, nil
}
