package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/screenfleet/server/internal/repo"
)

// Gateway is the fleet-facing facade: it tracks live device and operator
// connections, routes inbound device messages, and delivers or queues
// outbound commands.
type Gateway struct {
	registry   *ConnectionRegistry
	mailbox    *OfflineMailbox
	devices    repo.DeviceRepo
	heartbeats repo.HeartbeatRepo

	gcPeriod time.Duration
	now      func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a gateway around the given registry and mailbox.
func New(registry *ConnectionRegistry, mailbox *OfflineMailbox, devices repo.DeviceRepo, heartbeats repo.HeartbeatRepo, gcPeriod time.Duration) *Gateway {
	return &Gateway{
		registry:   registry,
		mailbox:    mailbox,
		devices:    devices,
		heartbeats: heartbeats,
		gcPeriod:   gcPeriod,
		now:        time.Now,
	}
}

// Start launches the mailbox garbage collector. Close stops it.
func (g *Gateway) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.wg.Add(1)
	go g.runMailboxGC(ctx)
}

// Close stops background work and waits for it to finish.
func (g *Gateway) Close() {
	if g.cancel != nil {
		g.cancel()
	}
	g.wg.Wait()
}

// Connect registers a device transport. Reconnect is idempotent: an existing
// connection is replaced and closed. Queued mail is flushed in enqueue order
// before operators are told the device is online.
func (g *Gateway) Connect(ctx context.Context, deviceID uuid.UUID, t Transport) {
	if replaced := g.registry.PutDevice(deviceID, t); replaced != nil {
		_ = replaced.Close()
	}

	queued := g.mailbox.Drain(deviceID)
	for i, env := range queued {
		if err := t.Send(g.stamp(env)); err != nil {
			log.Printf("mailbox flush to device %s failed: %v", deviceID, err)
			// Put the undelivered tail back and drop the connection.
			for _, rest := range queued[i:] {
				g.mailbox.Enqueue(deviceID, rest)
			}
			g.Disconnect(ctx, deviceID, t)
			return
		}
	}

	g.notifyOperators(EventDeviceConnected, deviceID, nil)
}

// Disconnect removes the device's transport if it is still the registered
// one. Double-disconnect is a no-op.
func (g *Gateway) Disconnect(ctx context.Context, deviceID uuid.UUID, t Transport) {
	if !g.registry.RemoveDevice(deviceID, t) {
		return
	}
	if t != nil {
		_ = t.Close()
	}
	g.notifyOperators(EventDeviceDisconnected, deviceID, nil)
}

// SendToDevice delivers the message over the device's live connection, or
// queues it in the offline mailbox. Returns true when delivered
// synchronously. A transport failure is treated as a disconnect and the
// message degrades to queued, never to an error for the caller.
func (g *Gateway) SendToDevice(ctx context.Context, deviceID uuid.UUID, env Envelope) bool {
	env = g.stamp(env)

	if t, ok := g.registry.DeviceTransport(deviceID); ok {
		if err := t.Send(env); err == nil {
			return true
		}
		g.Disconnect(ctx, deviceID, t)
	}

	g.mailbox.Enqueue(deviceID, env)
	return false
}

// BroadcastToCompany sends the message to every device owned by the company.
// Individual device failures never abort the broadcast; the counts report
// how many deliveries were live versus queued.
func (g *Gateway) BroadcastToCompany(ctx context.Context, companyID uuid.UUID, env Envelope) (delivered, queued int, err error) {
	devices, err := g.devices.ListByCompany(ctx, companyID)
	if err != nil {
		return 0, 0, err
	}
	for _, d := range devices {
		if g.SendToDevice(ctx, d.ID, env) {
			delivered++
		} else {
			queued++
		}
	}
	return delivered, queued, nil
}

// BroadcastToOperators fans the event out to every operator session. A slow
// or dead operator socket only loses its own event: failures are collected
// during iteration and the sockets pruned afterwards.
func (g *Gateway) BroadcastToOperators(env Envelope) {
	env = g.stamp(env)

	snapshot := g.registry.OperatorSnapshot()
	var failed []string
	for sessionID, t := range snapshot {
		if err := t.Send(env); err != nil {
			failed = append(failed, sessionID)
		}
	}
	for _, sessionID := range failed {
		g.registry.RemoveOperator(sessionID)
		_ = snapshot[sessionID].Close()
	}
}

// ConnectOperator registers an operator session.
func (g *Gateway) ConnectOperator(sessionID string, t Transport) {
	g.registry.PutOperator(sessionID, t)
}

// DisconnectOperator removes an operator session.
func (g *Gateway) DisconnectOperator(sessionID string) {
	g.registry.RemoveOperator(sessionID)
}

// HandleInbound routes one raw frame from a device connection. Malformed or
// unknown frames are logged and dropped; they must never take the
// connection loop down.
func (g *Gateway) HandleInbound(ctx context.Context, deviceID uuid.UUID, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("dropping malformed frame from device %s: %v", deviceID, err)
		return
	}

	switch env.Type {
	case MsgHeartbeat:
		var hb struct {
			Status string `json:"status"`
		}
		_ = json.Unmarshal(env.Data, &hb)
		if err := g.heartbeats.Record(ctx, deviceID, hb.Status, g.now()); err != nil {
			log.Printf("failed to record heartbeat for device %s: %v", deviceID, err)
		}
		g.touch(ctx, deviceID)
		g.notifyOperators(EventDeviceHeartbeat, deviceID, env.Data)
	case MsgContentStatus:
		g.touch(ctx, deviceID)
		g.notifyOperators(EventContentStatus, deviceID, env.Data)
	case MsgError:
		log.Printf("device %s reported error: %s", deviceID, string(env.Data))
		g.touch(ctx, deviceID)
		g.notifyOperators(EventDeviceError, deviceID, env.Data)
	default:
		log.Printf("dropping unknown message type %q from device %s", env.Type, deviceID)
	}
}

// touch stamps the device's last-seen time; any well-formed inbound frame
// proves liveness.
func (g *Gateway) touch(ctx context.Context, deviceID uuid.UUID) {
	if err := g.devices.UpdateLastSeen(ctx, deviceID, g.now()); err != nil {
		log.Printf("failed to update last seen for device %s: %v", deviceID, err)
	}
}

func (g *Gateway) notifyOperators(eventType string, deviceID uuid.UUID, data json.RawMessage) {
	g.BroadcastToOperators(Envelope{
		Type:     eventType,
		DeviceID: deviceID.String(),
		Data:     data,
	})
}

func (g *Gateway) stamp(env Envelope) Envelope {
	if env.Timestamp.IsZero() {
		env.Timestamp = g.now()
	}
	return env
}

// runMailboxGC periodically drops expired mailbox entries. A bad iteration
// is logged and the loop keeps running.
func (g *Gateway) runMailboxGC(ctx context.Context) {
	defer g.wg.Done()
	ticker := time.NewTicker(g.gcPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Printf("mailbox GC iteration panicked: %v", r)
					}
				}()
				if dropped := g.mailbox.CollectGarbage(); dropped > 0 {
					log.Printf("mailbox GC dropped %d expired entries", dropped)
				}
			}()
		}
	}
}
