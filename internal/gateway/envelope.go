package gateway

import (
	"encoding/json"
	"time"
)

// Inbound message types recognized on a device connection.
const (
	MsgHeartbeat     = "heartbeat"
	MsgContentStatus = "content_status"
	MsgError         = "error"
)

// Event types fanned out to operator connections.
const (
	EventDeviceConnected    = "device_connected"
	EventDeviceDisconnected = "device_disconnected"
	EventDeviceHeartbeat    = "device_heartbeat"
	EventContentStatus      = "content_status"
	EventDeviceError        = "device_error"
	EventOfflineAlert       = "offline_devices_alert"
)

// Envelope is the wire frame exchanged with devices and operators. Inbound
// frames carry type and data; outbound frames additionally get a
// server-added timestamp, and operator events carry the originating device.
type Envelope struct {
	Type      string          `json:"type"`
	DeviceID  string          `json:"deviceId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// Transport is a live bidirectional channel to a device or operator. Send
// must be safe for concurrent use.
type Transport interface {
	Send(env Envelope) error
	Close() error
}
