package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepBatchesOfflineDevicesIntoOneAlert(t *testing.T) {
	fix := newGatewayFixture()
	companyID := uuid.New()

	healthy := fix.devices.add(companyID)
	disconnected := fix.devices.add(companyID)
	silent := fix.devices.add(companyID) // socket open, heartbeats stopped

	now := time.Now()
	fix.gw.Connect(context.Background(), healthy.ID, &fakeTransport{})
	fix.gw.Connect(context.Background(), silent.ID, &fakeTransport{})
	require.NoError(t, fix.heartbeats.Record(context.Background(), healthy.ID, "playing", now))
	require.NoError(t, fix.heartbeats.Record(context.Background(), silent.ID, "playing", now.Add(-time.Hour)))

	operator := &fakeTransport{}
	fix.gw.ConnectOperator("op-1", operator)

	monitor := NewHeartbeatMonitor(fix.registry, fix.gw, fix.devices, fix.heartbeats, 5*time.Minute, 15*time.Minute)
	require.NoError(t, monitor.Sweep(context.Background()))

	require.Len(t, operator.sent, 1, "offline devices must be reported as one batched alert")
	alert := operator.sent[0]
	assert.Equal(t, EventOfflineAlert, alert.Type)

	var payload struct {
		DeviceIDs []string `json:"device_ids"`
		Count     int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(alert.Data, &payload))
	assert.Equal(t, 2, payload.Count)
	assert.ElementsMatch(t, []string{disconnected.ID.String(), silent.ID.String()}, payload.DeviceIDs)
}

func TestSweepAllHealthySendsNothing(t *testing.T) {
	fix := newGatewayFixture()
	device := fix.devices.add(uuid.New())

	fix.gw.Connect(context.Background(), device.ID, &fakeTransport{})
	require.NoError(t, fix.heartbeats.Record(context.Background(), device.ID, "playing", time.Now()))

	operator := &fakeTransport{}
	fix.gw.ConnectOperator("op-1", operator)

	monitor := NewHeartbeatMonitor(fix.registry, fix.gw, fix.devices, fix.heartbeats, 5*time.Minute, 15*time.Minute)
	require.NoError(t, monitor.Sweep(context.Background()))
	assert.Empty(t, operator.sentTypes())
}

func TestSweepDeviceWithoutAnyHeartbeat(t *testing.T) {
	fix := newGatewayFixture()
	device := fix.devices.add(uuid.New())
	fix.gw.Connect(context.Background(), device.ID, &fakeTransport{})

	operator := &fakeTransport{}
	fix.gw.ConnectOperator("op-1", operator)

	monitor := NewHeartbeatMonitor(fix.registry, fix.gw, fix.devices, fix.heartbeats, 5*time.Minute, 15*time.Minute)
	require.NoError(t, monitor.Sweep(context.Background()))

	require.Len(t, operator.sent, 1)
	assert.Equal(t, EventOfflineAlert, operator.sent[0].Type)
}
