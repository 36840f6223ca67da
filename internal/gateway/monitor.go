package gateway

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/screenfleet/server/internal/repo"
)

// HeartbeatMonitor periodically cross-references live connections with
// persisted heartbeat recency. A device is healthy only when both signals
// agree: an open socket whose heartbeats stopped is as dead as no socket.
type HeartbeatMonitor struct {
	registry   *ConnectionRegistry
	gateway    *Gateway
	devices    repo.DeviceRepo
	heartbeats repo.HeartbeatRepo

	period     time.Duration
	staleAfter time.Duration
	now        func() time.Time
}

// NewHeartbeatMonitor creates a monitor over the given registry and repos.
func NewHeartbeatMonitor(registry *ConnectionRegistry, gw *Gateway, devices repo.DeviceRepo, heartbeats repo.HeartbeatRepo, period, staleAfter time.Duration) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		registry:   registry,
		gateway:    gw,
		devices:    devices,
		heartbeats: heartbeats,
		period:     period,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Run executes the monitoring loop until the context is canceled. Errors in
// one iteration are logged and never terminate the loop.
func (m *HeartbeatMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Printf("heartbeat monitor iteration panicked: %v", r)
					}
				}()
				if err := m.Sweep(ctx); err != nil {
					log.Printf("heartbeat monitor sweep failed: %v", err)
				}
			}()
		}
	}
}

// Sweep checks the whole fleet once and reports offline devices to
// operators as a single batched alert, so a mass outage produces one event
// instead of a notification storm.
func (m *HeartbeatMonitor) Sweep(ctx context.Context) error {
	devices, err := m.devices.ListAll(ctx)
	if err != nil {
		return err
	}

	cutoff := m.now().Add(-m.staleAfter)
	var offline []string
	for _, d := range devices {
		if !m.registry.IsDeviceConnected(d.ID) {
			offline = append(offline, d.ID.String())
			continue
		}
		last, err := m.heartbeats.Latest(ctx, d.ID)
		if err != nil {
			log.Printf("heartbeat lookup failed for device %s: %v", d.ID, err)
			continue
		}
		if last == nil || last.Before(cutoff) {
			offline = append(offline, d.ID.String())
		}
	}

	if len(offline) == 0 {
		return nil
	}

	payload, err := json.Marshal(struct {
		DeviceIDs []string `json:"device_ids"`
		Count     int      `json:"count"`
	}{DeviceIDs: offline, Count: len(offline)})
	if err != nil {
		return err
	}

	log.Printf("heartbeat monitor: %d devices offline", len(offline))
	m.gateway.BroadcastToOperators(Envelope{Type: EventOfflineAlert, Data: payload})
	return nil
}
