package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screenfleet/server/internal/model"
)

type fakeTransport struct {
	mu       sync.Mutex
	sent     []Envelope
	failSend bool
	closed   bool
}

func (f *fakeTransport) Send(env Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return fmt.Errorf("socket gone")
	}
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) sentTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]string, len(f.sent))
	for i, env := range f.sent {
		types[i] = env.Type
	}
	return types
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type memDeviceRepo struct {
	mu      sync.Mutex
	devices map[uuid.UUID]model.DeviceIdentity
}

func newMemDeviceRepo() *memDeviceRepo {
	return &memDeviceRepo{devices: make(map[uuid.UUID]model.DeviceIdentity)}
}

func (m *memDeviceRepo) add(companyID uuid.UUID) model.DeviceIdentity {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := model.DeviceIdentity{ID: uuid.New(), CompanyID: companyID, Status: model.DeviceStatusActive}
	m.devices[d.ID] = d
	return d
}

func (m *memDeviceRepo) Create(_ context.Context, d model.DeviceIdentity) (model.DeviceIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = uuid.New()
	m.devices[d.ID] = d
	return d, nil
}

func (m *memDeviceRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.devices, id)
	return nil
}

func (m *memDeviceRepo) ListByCompany(_ context.Context, companyID uuid.UUID) ([]model.DeviceIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.DeviceIdentity
	for _, d := range m.devices {
		if d.CompanyID == companyID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDeviceRepo) ListAll(_ context.Context) ([]model.DeviceIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.DeviceIdentity
	for _, d := range m.devices {
		out = append(out, d)
	}
	return out, nil
}

func (m *memDeviceRepo) UpdateLastSeen(_ context.Context, id uuid.UUID, seenAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if ok {
		d.LastSeenAt = &seenAt
		m.devices[id] = d
	}
	return nil
}

func (m *memDeviceRepo) lastSeen(id uuid.UUID) *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.devices[id].LastSeenAt
}

type memHeartbeatRepo struct {
	mu     sync.Mutex
	latest map[uuid.UUID]time.Time
}

func newMemHeartbeatRepo() *memHeartbeatRepo {
	return &memHeartbeatRepo{latest: make(map[uuid.UUID]time.Time)}
}

func (m *memHeartbeatRepo) Record(_ context.Context, deviceID uuid.UUID, _ string, reportedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[deviceID] = reportedAt
	return nil
}

func (m *memHeartbeatRepo) Latest(_ context.Context, deviceID uuid.UUID) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.latest[deviceID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

type gatewayFixture struct {
	gw         *Gateway
	registry   *ConnectionRegistry
	mailbox    *OfflineMailbox
	devices    *memDeviceRepo
	heartbeats *memHeartbeatRepo
}

func newGatewayFixture() *gatewayFixture {
	registry := NewConnectionRegistry()
	mailbox := NewOfflineMailbox(24*time.Hour, 100)
	devices := newMemDeviceRepo()
	heartbeats := newMemHeartbeatRepo()
	return &gatewayFixture{
		gw:         New(registry, mailbox, devices, heartbeats, time.Hour),
		registry:   registry,
		mailbox:    mailbox,
		devices:    devices,
		heartbeats: heartbeats,
	}
}

func TestSendToConnectedDeviceDeliversDirectly(t *testing.T) {
	fix := newGatewayFixture()
	deviceID := uuid.New()
	transport := &fakeTransport{}

	fix.gw.Connect(context.Background(), deviceID, transport)

	delivered := fix.gw.SendToDevice(context.Background(), deviceID, envOf("play"))
	assert.True(t, delivered)
	assert.Equal(t, []string{"play"}, transport.sentTypes())
	assert.Zero(t, fix.mailbox.Len(deviceID), "no mailbox entry for a live delivery")
}

func TestSendToOfflineDeviceQueues(t *testing.T) {
	fix := newGatewayFixture()
	deviceID := uuid.New()

	delivered := fix.gw.SendToDevice(context.Background(), deviceID, envOf("play"))
	assert.False(t, delivered)
	assert.Equal(t, 1, fix.mailbox.Len(deviceID), "exactly one entry must be queued")
}

func TestReconnectFlushesMailInOrder(t *testing.T) {
	fix := newGatewayFixture()
	deviceID := uuid.New()

	for _, cmd := range []string{"cmd-1", "cmd-2", "cmd-3"} {
		assert.False(t, fix.gw.SendToDevice(context.Background(), deviceID, envOf(cmd)))
	}

	transport := &fakeTransport{}
	fix.gw.Connect(context.Background(), deviceID, transport)

	assert.Equal(t, []string{"cmd-1", "cmd-2", "cmd-3"}, transport.sentTypes())
	assert.Zero(t, fix.mailbox.Len(deviceID), "mailbox must be empty after flush")

	for _, env := range transport.sent {
		assert.False(t, env.Timestamp.IsZero(), "outbound frames carry a server timestamp")
	}
}

func TestSendFailureDegradesToQueue(t *testing.T) {
	fix := newGatewayFixture()
	deviceID := uuid.New()
	transport := &fakeTransport{}
	fix.gw.Connect(context.Background(), deviceID, transport)
	transport.failSend = true

	delivered := fix.gw.SendToDevice(context.Background(), deviceID, envOf("play"))
	assert.False(t, delivered, "transport failure must degrade to queued, not error")
	assert.Equal(t, 1, fix.mailbox.Len(deviceID))
	assert.False(t, fix.registry.IsDeviceConnected(deviceID), "failed transport is treated as a disconnect")
	assert.True(t, transport.isClosed())
}

func TestReconnectReplacesPriorConnection(t *testing.T) {
	fix := newGatewayFixture()
	deviceID := uuid.New()
	first := &fakeTransport{}
	second := &fakeTransport{}

	fix.gw.Connect(context.Background(), deviceID, first)
	fix.gw.Connect(context.Background(), deviceID, second)
	assert.True(t, first.isClosed(), "replaced connection must be closed")

	// The stale connection's teardown must not evict the fresh one.
	fix.gw.Disconnect(context.Background(), deviceID, first)
	assert.True(t, fix.registry.IsDeviceConnected(deviceID))

	fix.gw.Disconnect(context.Background(), deviceID, second)
	assert.False(t, fix.registry.IsDeviceConnected(deviceID))
	// Double-disconnect is a no-op.
	fix.gw.Disconnect(context.Background(), deviceID, second)
}

func TestConnectAndDisconnectNotifyOperators(t *testing.T) {
	fix := newGatewayFixture()
	operator := &fakeTransport{}
	fix.gw.ConnectOperator("op-1", operator)

	deviceID := uuid.New()
	transport := &fakeTransport{}
	fix.gw.Connect(context.Background(), deviceID, transport)
	fix.gw.Disconnect(context.Background(), deviceID, transport)

	require.Equal(t, []string{EventDeviceConnected, EventDeviceDisconnected}, operator.sentTypes())
	assert.Equal(t, deviceID.String(), operator.sent[0].DeviceID)
}

func TestBroadcastToCompanyCountsDeliveredAndQueued(t *testing.T) {
	fix := newGatewayFixture()
	companyID := uuid.New()

	online := fix.devices.add(companyID)
	fix.devices.add(companyID)  // offline
	fix.devices.add(uuid.New()) // other company

	transport := &fakeTransport{}
	fix.gw.Connect(context.Background(), online.ID, transport)

	delivered, queued, err := fix.gw.BroadcastToCompany(context.Background(), companyID, envOf("refresh"))
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, queued)
	assert.Equal(t, []string{"refresh"}, transport.sentTypes())
}

func TestBroadcastToOperatorsPrunesDeadSockets(t *testing.T) {
	fix := newGatewayFixture()
	healthy := &fakeTransport{}
	dead := &fakeTransport{failSend: true}
	fix.gw.ConnectOperator("op-healthy", healthy)
	fix.gw.ConnectOperator("op-dead", dead)

	fix.gw.BroadcastToOperators(envOf("fleet_update"))

	assert.Equal(t, []string{"fleet_update"}, healthy.sentTypes())
	assert.True(t, dead.isClosed(), "dead operator socket must be pruned")

	// A second broadcast reaches only the healthy operator.
	fix.gw.BroadcastToOperators(envOf("fleet_update"))
	assert.Len(t, healthy.sentTypes(), 2)
}

func TestHandleInboundHeartbeat(t *testing.T) {
	fix := newGatewayFixture()
	device := fix.devices.add(uuid.New())
	operator := &fakeTransport{}
	fix.gw.ConnectOperator("op-1", operator)

	raw, _ := json.Marshal(map[string]interface{}{
		"type": MsgHeartbeat,
		"data": map[string]string{"status": "playing"},
	})
	fix.gw.HandleInbound(context.Background(), device.ID, raw)

	latest, err := fix.heartbeats.Latest(context.Background(), device.ID)
	require.NoError(t, err)
	require.NotNil(t, latest, "heartbeat must be persisted")
	require.NotNil(t, fix.devices.lastSeen(device.ID), "inbound traffic updates last seen")

	require.Len(t, operator.sent, 1)
	assert.Equal(t, EventDeviceHeartbeat, operator.sent[0].Type)
	assert.Equal(t, device.ID.String(), operator.sent[0].DeviceID)
}

func TestHandleInboundContentStatusAndError(t *testing.T) {
	fix := newGatewayFixture()
	device := fix.devices.add(uuid.New())
	operator := &fakeTransport{}
	fix.gw.ConnectOperator("op-1", operator)

	statusFrame, _ := json.Marshal(map[string]interface{}{"type": MsgContentStatus, "data": map[string]string{"asset": "promo.mp4"}})
	errorFrame, _ := json.Marshal(map[string]interface{}{"type": MsgError, "data": map[string]string{"message": "decode failed"}})
	fix.gw.HandleInbound(context.Background(), device.ID, statusFrame)
	fix.gw.HandleInbound(context.Background(), device.ID, errorFrame)

	assert.Equal(t, []string{EventContentStatus, EventDeviceError}, operator.sentTypes())
}

func TestHandleInboundToleratesGarbage(t *testing.T) {
	fix := newGatewayFixture()
	device := fix.devices.add(uuid.New())
	operator := &fakeTransport{}
	fix.gw.ConnectOperator("op-1", operator)

	fix.gw.HandleInbound(context.Background(), device.ID, []byte("{not json"))
	fix.gw.HandleInbound(context.Background(), device.ID, []byte(`{"type":"format_disk"}`))

	assert.Empty(t, operator.sentTypes(), "malformed and unknown frames are dropped silently")
}
