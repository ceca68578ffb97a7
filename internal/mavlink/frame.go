// Package mavlink implements the autopilot telemetry wire protocol: a
// streaming frame decoder, frame builders for the command path, and payload
// codecs for the message kinds the bridge understands.
//
// Frames are length-delimited binary records introduced by a start marker
// (0xFE for V1, 0xFD for V2). Acceptance is by declared length only; the
// trailing checksum bytes are carried but not verified, matching the
// behaviour of the deployed autopilot link.
package mavlink

import "time"

// Version identifies which wire framing a frame used.
type Version int

const (
	V1 Version = 1
	V2 Version = 2
)

func (v Version) String() string {
	if v == V2 {
		return "v2"
	}
	return "v1"
}

// Frame is one complete decoded unit of the telemetry protocol.
type Frame struct {
	Version     Version
	SystemID    uint8
	ComponentID uint8
	Sequence    uint8
	MessageID   uint32 // u8 on V1, u24 on V2
	Payload     []byte
	Raw         []byte // the frame exactly as it appeared on the wire
	ReceivedAt  time.Time
}
