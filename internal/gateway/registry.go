package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ConnectionEntry pairs a live transport with its connect time.
type ConnectionEntry struct {
	Transport   Transport
	ConnectedAt time.Time
}

// ConnectionRegistry maps device identities and operator sessions to their
// live transports. A single mutex guards both maps; fleets are thousands of
// devices, not millions, so contention is not a concern here.
type ConnectionRegistry struct {
	mu        sync.Mutex
	devices   map[uuid.UUID]*ConnectionEntry
	operators map[string]*ConnectionEntry
}

// NewConnectionRegistry creates an empty registry
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		devices:   make(map[uuid.UUID]*ConnectionEntry),
		operators: make(map[string]*ConnectionEntry),
	}
}

// PutDevice registers a device transport. A device holds at most one live
// connection: any previous transport is returned so the caller can close it
// (last writer wins).
func (r *ConnectionRegistry) PutDevice(deviceID uuid.UUID, t Transport) (replaced Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.devices[deviceID]; ok {
		replaced = prev.Transport
	}
	r.devices[deviceID] = &ConnectionEntry{Transport: t, ConnectedAt: time.Now()}
	return replaced
}

// RemoveDevice deregisters the device's transport. When expected is non-nil
// the entry is only removed if it still holds that transport, so a stale
// read loop finishing after a reconnect cannot evict the fresh connection.
func (r *ConnectionRegistry) RemoveDevice(deviceID uuid.UUID, expected Transport) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.devices[deviceID]
	if !ok {
		return false
	}
	if expected != nil && entry.Transport != expected {
		return false
	}
	delete(r.devices, deviceID)
	return true
}

// DeviceTransport returns the live transport for the device, if any.
func (r *ConnectionRegistry) DeviceTransport(deviceID uuid.UUID) (Transport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.devices[deviceID]
	if !ok {
		return nil, false
	}
	return entry.Transport, true
}

// IsDeviceConnected reports whether the device has a live connection.
func (r *ConnectionRegistry) IsDeviceConnected(deviceID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.devices[deviceID]
	return ok
}

// ConnectedDevices returns the IDs of all connected devices.
func (r *ConnectionRegistry) ConnectedDevices() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	return ids
}

// PutOperator registers an operator session transport.
func (r *ConnectionRegistry) PutOperator(sessionID string, t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operators[sessionID] = &ConnectionEntry{Transport: t, ConnectedAt: time.Now()}
}

// RemoveOperator deregisters an operator session. Double-removal is a no-op.
func (r *ConnectionRegistry) RemoveOperator(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.operators, sessionID)
}

// OperatorSnapshot returns the current operator sessions. Callers iterate
// the snapshot, never the live map, so sends cannot race with mutation.
func (r *ConnectionRegistry) OperatorSnapshot() map[string]Transport {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make(map[string]Transport, len(r.operators))
	for id, entry := range r.operators {
		snapshot[id] = entry.Transport
	}
	return snapshot
}
