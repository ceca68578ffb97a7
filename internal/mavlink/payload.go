package mavlink

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Heartbeat is the HEARTBEAT payload (message id 0).
type Heartbeat struct {
	CustomMode     uint32
	Type           uint8
	Autopilot      uint8
	BaseMode       uint8
	SystemStatus   uint8
	MavlinkVersion uint8
}

// Armed reports whether the safety-armed flag is set in base_mode.
func (h Heartbeat) Armed() bool {
	return h.BaseMode&baseModeArmedFlag != 0
}

// DecodeHeartbeat parses a HEARTBEAT payload.
func DecodeHeartbeat(p []byte) (Heartbeat, error) {
	if len(p) < 9 {
		return Heartbeat{}, fmt.Errorf("heartbeat payload too short: %d bytes", len(p))
	}
	return Heartbeat{
		CustomMode:     binary.LittleEndian.Uint32(p[0:4]),
		Type:           p[4],
		Autopilot:      p[5],
		BaseMode:       p[6],
		SystemStatus:   p[7],
		MavlinkVersion: p[8],
	}, nil
}

// EncodeHeartbeat builds a HEARTBEAT payload.
func EncodeHeartbeat(h Heartbeat) []byte {
	p := make([]byte, 9)
	binary.LittleEndian.PutUint32(p[0:4], h.CustomMode)
	p[4] = h.Type
	p[5] = h.Autopilot
	p[6] = h.BaseMode
	p[7] = h.SystemStatus
	p[8] = h.MavlinkVersion
	return p
}

// GlobalPosition is the GLOBAL_POSITION_INT payload (message id 33).
// Coordinates are fixed-point: lat/lon in 1e7 degrees, altitudes in
// millimetres, velocities in cm/s, heading in centidegrees.
type GlobalPosition struct {
	TimeBootMs  uint32
	Lat         int32
	Lon         int32
	Alt         int32
	RelativeAlt int32
	Vx          int16
	Vy          int16
	Vz          int16
	Hdg         uint16
}

// DecodeGlobalPosition parses a GLOBAL_POSITION_INT payload.
func DecodeGlobalPosition(p []byte) (GlobalPosition, error) {
	if len(p) < 28 {
		return GlobalPosition{}, fmt.Errorf("global_position payload too short: %d bytes", len(p))
	}
	return GlobalPosition{
		TimeBootMs:  binary.LittleEndian.Uint32(p[0:4]),
		Lat:         int32(binary.LittleEndian.Uint32(p[4:8])),
		Lon:         int32(binary.LittleEndian.Uint32(p[8:12])),
		Alt:         int32(binary.LittleEndian.Uint32(p[12:16])),
		RelativeAlt: int32(binary.LittleEndian.Uint32(p[16:20])),
		Vx:          int16(binary.LittleEndian.Uint16(p[20:22])),
		Vy:          int16(binary.LittleEndian.Uint16(p[22:24])),
		Vz:          int16(binary.LittleEndian.Uint16(p[24:26])),
		Hdg:         binary.LittleEndian.Uint16(p[26:28]),
	}, nil
}

// EncodeGlobalPosition builds a GLOBAL_POSITION_INT payload.
func EncodeGlobalPosition(g GlobalPosition) []byte {
	p := make([]byte, 28)
	binary.LittleEndian.PutUint32(p[0:4], g.TimeBootMs)
	binary.LittleEndian.PutUint32(p[4:8], uint32(g.Lat))
	binary.LittleEndian.PutUint32(p[8:12], uint32(g.Lon))
	binary.LittleEndian.PutUint32(p[12:16], uint32(g.Alt))
	binary.LittleEndian.PutUint32(p[16:20], uint32(g.RelativeAlt))
	binary.LittleEndian.PutUint16(p[20:22], uint16(g.Vx))
	binary.LittleEndian.PutUint16(p[22:24], uint16(g.Vy))
	binary.LittleEndian.PutUint16(p[24:26], uint16(g.Vz))
	binary.LittleEndian.PutUint16(p[26:28], g.Hdg)
	return p
}

// Attitude is the ATTITUDE payload (message id 30). Angles are radians.
type Attitude struct {
	TimeBootMs uint32
	Roll       float32
	Pitch      float32
	Yaw        float32
	RollSpeed  float32
	PitchSpeed float32
	YawSpeed   float32
}

// DecodeAttitude parses an ATTITUDE payload.
func DecodeAttitude(p []byte) (Attitude, error) {
	if len(p) < 28 {
		return Attitude{}, fmt.Errorf("attitude payload too short: %d bytes", len(p))
	}
	f := func(off int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(p[off : off+4]))
	}
	return Attitude{
		TimeBootMs: binary.LittleEndian.Uint32(p[0:4]),
		Roll:       f(4),
		Pitch:      f(8),
		Yaw:        f(12),
		RollSpeed:  f(16),
		PitchSpeed: f(20),
		YawSpeed:   f(24),
	}, nil
}

// EncodeAttitude builds an ATTITUDE payload.
func EncodeAttitude(a Attitude) []byte {
	p := make([]byte, 28)
	binary.LittleEndian.PutUint32(p[0:4], a.TimeBootMs)
	put := func(off int, v float32) {
		binary.LittleEndian.PutUint32(p[off:off+4], math.Float32bits(v))
	}
	put(4, a.Roll)
	put(8, a.Pitch)
	put(12, a.Yaw)
	put(16, a.RollSpeed)
	put(20, a.PitchSpeed)
	put(24, a.YawSpeed)
	return p
}

// BatteryStatus is the BATTERY_STATUS payload (message id 147). Voltages is
// per-cell in millivolts; Remaining is percent, -1 when unknown.
type BatteryStatus struct {
	CurrentConsumed int32
	EnergyConsumed  int32
	Temperature     int16
	Voltages        [10]uint16
	CurrentBattery  int16
	ID              uint8
	Function        uint8
	Type            uint8
	Remaining       int8
}

// DecodeBatteryStatus parses a BATTERY_STATUS payload.
func DecodeBatteryStatus(p []byte) (BatteryStatus, error) {
	if len(p) < 36 {
		return BatteryStatus{}, fmt.Errorf("battery_status payload too short: %d bytes", len(p))
	}
	b := BatteryStatus{
		CurrentConsumed: int32(binary.LittleEndian.Uint32(p[0:4])),
		EnergyConsumed:  int32(binary.LittleEndian.Uint32(p[4:8])),
		Temperature:     int16(binary.LittleEndian.Uint16(p[8:10])),
		CurrentBattery:  int16(binary.LittleEndian.Uint16(p[30:32])),
		ID:              p[32],
		Function:        p[33],
		Type:            p[34],
		Remaining:       int8(p[35]),
	}
	for i := range b.Voltages {
		b.Voltages[i] = binary.LittleEndian.Uint16(p[10+2*i : 12+2*i])
	}
	return b, nil
}

// EncodeBatteryStatus builds a BATTERY_STATUS payload.
func EncodeBatteryStatus(b BatteryStatus) []byte {
	p := make([]byte, 36)
	binary.LittleEndian.PutUint32(p[0:4], uint32(b.CurrentConsumed))
	binary.LittleEndian.PutUint32(p[4:8], uint32(b.EnergyConsumed))
	binary.LittleEndian.PutUint16(p[8:10], uint16(b.Temperature))
	for i, v := range b.Voltages {
		binary.LittleEndian.PutUint16(p[10+2*i:12+2*i], v)
	}
	binary.LittleEndian.PutUint16(p[30:32], uint16(b.CurrentBattery))
	p[32] = b.ID
	p[33] = b.Function
	p[34] = b.Type
	p[35] = byte(b.Remaining)
	return p
}

// CommandLong is the COMMAND_LONG payload (message id 76), the generic
// parameterised command envelope sent ground -> vehicle.
type CommandLong struct {
	Params          [7]float32
	Command         uint16
	TargetSystem    uint8
	TargetComponent uint8
	Confirmation    uint8
}

// EncodeCommandLong builds a COMMAND_LONG payload.
func EncodeCommandLong(c CommandLong) []byte {
	p := make([]byte, 33)
	for i, v := range c.Params {
		binary.LittleEndian.PutUint32(p[4*i:4*i+4], math.Float32bits(v))
	}
	binary.LittleEndian.PutUint16(p[28:30], c.Command)
	p[30] = c.TargetSystem
	p[31] = c.TargetComponent
	p[32] = c.Confirmation
	return p
}

// DecodeCommandLong parses a COMMAND_LONG payload.
func DecodeCommandLong(p []byte) (CommandLong, error) {
	if len(p) < 33 {
		return CommandLong{}, fmt.Errorf("command_long payload too short: %d bytes", len(p))
	}
	var c CommandLong
	for i := range c.Params {
		c.Params[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[4*i : 4*i+4]))
	}
	c.Command = binary.LittleEndian.Uint16(p[28:30])
	c.TargetSystem = p[30]
	c.TargetComponent = p[31]
	c.Confirmation = p[32]
	return c, nil
}
