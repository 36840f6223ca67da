package model

import (
	"time"

	"github.com/google/uuid"
)

// DeviceStatus is the provisioning state of a registered device.
type DeviceStatus string

const (
	// DeviceStatusActive means the device was provisioned without reservations.
	DeviceStatusActive DeviceStatus = "ACTIVE"
	// DeviceStatusPendingReview gates high-risk registrations until an operator approves them.
	DeviceStatusPendingReview DeviceStatus = "PENDING_REVIEW"
)

// Company represents an organization that owns screens
type Company struct {
	ID        uuid.UUID
	Name      string
	OrgCode   string
	CreatedAt time.Time
}

// DeviceIdentity represents a registered screen in the fleet
type DeviceIdentity struct {
	ID           uuid.UUID
	CompanyID    uuid.UUID
	Name         string
	Status       DeviceStatus
	Fingerprint  string
	IPAddress    string
	MACAddresses []string
	CreatedAt    time.Time
	LastSeenAt   *time.Time
}

// RegistrationKey is a single-use secret authorizing exactly one device registration
type RegistrationKey struct {
	Key          string
	CompanyID    uuid.UUID
	ExpiresAt    time.Time
	Used         bool
	UsedByDevice *uuid.UUID
	CreatedAt    time.Time
}

// RegistrationAttempt is an append-only audit record of a registration call
type RegistrationAttempt struct {
	ID            uuid.UUID
	SourceIP      string
	DeviceName    string
	KeyPrefix     string
	Success       bool
	FailureReason string
	CreatedAt     time.Time
}

// Heartbeat is a device health report persisted for the monitor
type Heartbeat struct {
	ID         uuid.UUID
	DeviceID   uuid.UUID
	Status     string
	ReportedAt time.Time
}

// SecurityProfile captures the context of a high-risk registration.
// It is written to the log for audit, never persisted.
type SecurityProfile struct {
	Fingerprint string
	IP          string
	UserAgent   string
	RiskScore   float64
	Timestamp   time.Time
}
