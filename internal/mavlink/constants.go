package mavlink

import "fmt"

// Start markers for the two wire versions.
const (
	MarkerV1 byte = 0xFE
	MarkerV2 byte = 0xFD
)

// Header and trailer sizes. A complete frame is payload length plus
// this overhead (header, sequence/addressing and the two checksum bytes).
const (
	OverheadV1 = 8  // marker, len, seq, sys, comp, msgid, crc x2
	OverheadV2 = 12 // marker, len, incompat, compat, seq, sys, comp, msgid x3, crc x2
)

// MaxBufferLen caps the decoder's accumulation buffer. Garbage input that
// never completes a frame is discarded once the buffer grows past this.
const MaxBufferLen = 300

// Message ids from the common dialect that the aggregator understands.
const (
	MsgHeartbeat         = 0
	MsgAttitude          = 30
	MsgGlobalPositionInt = 33
	MsgCommandLong       = 76
	MsgBatteryStatus     = 147
)

// Heartbeat base_mode flag: bit 7 set means motors are armed.
const baseModeArmedFlag = 0x80

// copterModes maps ArduCopter custom_mode values to flight mode names.
var copterModes = map[uint32]string{
	0:  "STABILIZE",
	2:  "ALT_HOLD",
	3:  "AUTO",
	4:  "GUIDED",
	5:  "LOITER",
	6:  "RTL",
	9:  "LAND",
	16: "POSHOLD",
	17: "BRAKE",
}

// FlightModeName returns the mode name for an ArduCopter custom_mode value,
// or "MODE(<n>)" when the value is not in the table.
func FlightModeName(customMode uint32) string {
	if name, ok := copterModes[customMode]; ok {
		return name
	}
	return fmt.Sprintf("MODE(%d)", customMode)
}

// Command ids carried by COMMAND_LONG frames built for vehicles.
const (
	CmdComponentArmDisarm = 400
	CmdNavTakeoff         = 22
	CmdDoSetMode          = 176
)
