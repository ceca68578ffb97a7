package model

import "time"

// Subscriber roles for the websocket hello.
const (
	RoleViewer = "viewer"
	RoleBridge = "bridge"
)

// Server -> subscriber event kinds.
const (
	EventSnapshot     = "snapshot"      // full vehicle state snapshot
	EventVehicle      = "vehicle"       // incremental per-vehicle field update
	EventRawIn        = "raw_in"        // frame received from a hardware link
	EventRawOut       = "raw_out"       // frame written towards a hardware link
	EventBridgeStatus = "bridge_status" // periodic link health report
	EventCommandRaw   = "command_raw"   // encoded command frame for a bridge to relay
)

// Subscriber -> server message kinds.
const (
	ClientHello           = "hello"
	ClientSnapshotRequest = "snapshot_request"
	ClientCommand         = "command"
)

// Command names accepted on the websocket command path.
const (
	CommandArm     = "arm"
	CommandDisarm  = "disarm"
	CommandTakeoff = "takeoff"
	CommandSetMode = "set_mode"
)

// ClientMessage is any JSON message a websocket subscriber sends to the
// ground server. Type selects which fields are meaningful.
type ClientMessage struct {
	Type     string             `json:"type"`
	Role     string             `json:"role,omitempty"`      // hello
	Name     string             `json:"name,omitempty"`      // hello
	SystemID uint8              `json:"system_id,omitempty"` // command
	Command  string             `json:"command,omitempty"`   // command
	Params   map[string]float64 `json:"params,omitempty"`    // command
}

// ServerEvent is any JSON message the ground server pushes to a subscriber.
type ServerEvent struct {
	Type     string         `json:"type"`
	Vehicles []VehicleState `json:"vehicles,omitempty"`
	Vehicle  *VehicleState  `json:"vehicle,omitempty"`
	Fields   []string       `json:"fields,omitempty"`
	SystemID uint8          `json:"system_id,omitempty"`
	Data     []byte         `json:"data,omitempty"` // raw frame bytes (base64 in JSON)
	Status   *BridgeStatus  `json:"status,omitempty"`
}

// IngestRequest is the POST /api/ingest body: one opaque chunk as read from
// a hardware link, forwarded by a bridge.
type IngestRequest struct {
	BridgeID   string    `json:"bridge_id"`
	Data       []byte    `json:"data"` // base64 in JSON
	ReceivedAt time.Time `json:"received_at"`
}

// FrameRecord is the POST /api/frames body: one already-decoded frame.
type FrameRecord struct {
	SystemID    uint8     `json:"system_id"`
	ComponentID uint8     `json:"component_id"`
	MessageID   uint32    `json:"message_id"`
	Sequence    uint8     `json:"sequence"`
	Payload     []byte    `json:"payload"` // base64 in JSON
	Timestamp   time.Time `json:"timestamp"`
}

// BridgeStatus is the periodic health report for one hardware link bridge.
type BridgeStatus struct {
	BridgeID   string    `json:"bridge_id"`
	State      string    `json:"state"`
	BytesIn    uint64    `json:"bytes_in"`
	BytesOut   uint64    `json:"bytes_out"`
	ErrorCount uint64    `json:"error_count"`
	Uptime     float64   `json:"uptime_seconds"`
	LastActive time.Time `json:"last_active"`
}
