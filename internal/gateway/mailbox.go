package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// MailboxEntry is a message queued for an offline device.
type MailboxEntry struct {
	Envelope   Envelope
	EnqueuedAt time.Time
}

// OfflineMailbox holds bounded, time-boxed per-device queues of undelivered
// messages. Entries past the TTL are dropped, never delivered.
type OfflineMailbox struct {
	mu           sync.Mutex
	queues       map[uuid.UUID][]MailboxEntry
	ttl          time.Duration
	maxPerDevice int
	now          func() time.Time
}

// NewOfflineMailbox creates a mailbox with the given entry TTL and per-device cap.
func NewOfflineMailbox(ttl time.Duration, maxPerDevice int) *OfflineMailbox {
	return &OfflineMailbox{
		queues:       make(map[uuid.UUID][]MailboxEntry),
		ttl:          ttl,
		maxPerDevice: maxPerDevice,
		now:          time.Now,
	}
}

// Enqueue appends a message to the device's queue. When the queue is full
// the oldest entry is dropped to make room.
func (m *OfflineMailbox) Enqueue(deviceID uuid.UUID, env Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[deviceID]
	if m.maxPerDevice > 0 && len(q) >= m.maxPerDevice {
		q = q[1:]
	}
	m.queues[deviceID] = append(q, MailboxEntry{Envelope: env, EnqueuedAt: m.now()})
}

// Drain removes and returns the device's queued messages in enqueue order,
// excluding any that expired while waiting.
func (m *OfflineMailbox) Drain(deviceID uuid.UUID) []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[deviceID]
	if !ok {
		return nil
	}
	delete(m.queues, deviceID)

	cutoff := m.now().Add(-m.ttl)
	out := make([]Envelope, 0, len(q))
	for _, entry := range q {
		if entry.EnqueuedAt.After(cutoff) {
			out = append(out, entry.Envelope)
		}
	}
	return out
}

// Len returns the number of queued entries for the device.
func (m *OfflineMailbox) Len(deviceID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[deviceID])
}

// CollectGarbage drops expired entries and removes devices whose queue
// became empty, so an idle fleet does not pin memory. Returns the number of
// dropped entries.
func (m *OfflineMailbox) CollectGarbage() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.ttl)
	dropped := 0
	for deviceID, q := range m.queues {
		kept := q[:0]
		for _, entry := range q {
			if entry.EnqueuedAt.After(cutoff) {
				kept = append(kept, entry)
			} else {
				dropped++
			}
		}
		if len(kept) == 0 {
			delete(m.queues, deviceID)
		} else {
			m.queues[deviceID] = kept
		}
	}
	return dropped
}
