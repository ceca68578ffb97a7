package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mavbridge/internal/mavlink"
)

func frameOf(t *testing.T, systemID uint8, messageID uint32, payload []byte) mavlink.Frame {
	t.Helper()
	return mavlink.Frame{
		Version:    mavlink.V1,
		SystemID:   systemID,
		MessageID:  messageID,
		Payload:    payload,
		ReceivedAt: time.Now(),
	}
}

func TestApplyHeartbeat(t *testing.T) {
	f := NewFleet(5 * time.Second)
	hb := mavlink.EncodeHeartbeat(mavlink.Heartbeat{CustomMode: 5, BaseMode: 0x80})

	up, ok := f.Apply(frameOf(t, 1, mavlink.MsgHeartbeat, hb))
	require.True(t, ok)
	assert.Contains(t, up.Fields, FieldConnected)
	assert.Contains(t, up.Fields, FieldHeartbeat)
	assert.True(t, up.State.Connected)
	assert.True(t, up.State.Armed)
	assert.Equal(t, "LOITER", up.State.FlightMode)
	assert.False(t, up.State.LastHeartbeatAt.IsZero())

	// Second heartbeat: still connected, no connected transition reported.
	up, ok = f.Apply(frameOf(t, 1, mavlink.MsgHeartbeat, hb))
	require.True(t, ok)
	assert.NotContains(t, up.Fields, FieldConnected)
}

func TestApplyGlobalPositionScaling(t *testing.T) {
	f := NewFleet(5 * time.Second)
	gp := mavlink.EncodeGlobalPosition(mavlink.GlobalPosition{
		Lat:         473977420, // 47.3977420 deg
		Lon:         85455940,
		Alt:         488000, // 488 m MSL
		RelativeAlt: 12500,  // 12.5 m
		Vx:          300,    // 3 m/s
		Vy:          400,    // 4 m/s
		Hdg:         27500,  // 275 deg
	})

	up, ok := f.Apply(frameOf(t, 1, mavlink.MsgGlobalPositionInt, gp))
	require.True(t, ok)
	assert.InDelta(t, 47.3977420, up.State.Position.Lat, 1e-9)
	assert.InDelta(t, 8.5455940, up.State.Position.Lon, 1e-9)
	assert.InDelta(t, 488.0, up.State.Position.AltMSL, 1e-9)
	assert.InDelta(t, 12.5, up.State.Position.AltRelative, 1e-9)
	assert.InDelta(t, 5.0, up.State.Velocity.GroundSpeed, 1e-9) // hypot(3,4)
	assert.InDelta(t, 275.0, up.State.Velocity.Heading, 1e-9)
}

func TestApplyBatteryDoesNotTouchPositionOrAttitude(t *testing.T) {
	f := NewFleet(5 * time.Second)

	gp := mavlink.EncodeGlobalPosition(mavlink.GlobalPosition{Lat: 100000000, Lon: 200000000})
	_, ok := f.Apply(frameOf(t, 1, mavlink.MsgGlobalPositionInt, gp))
	require.True(t, ok)

	att := mavlink.EncodeAttitude(mavlink.Attitude{Roll: 0.25, Pitch: -0.5, Yaw: 1.5})
	_, ok = f.Apply(frameOf(t, 1, mavlink.MsgAttitude, att))
	require.True(t, ok)

	var bat mavlink.BatteryStatus
	bat.Remaining = 77
	bat.Voltages[0] = 12600
	up, ok := f.Apply(frameOf(t, 1, mavlink.MsgBatteryStatus, mavlink.EncodeBatteryStatus(bat)))
	require.True(t, ok)

	assert.Equal(t, []string{FieldBattery}, up.Fields)
	assert.Equal(t, 77, up.State.Battery.RemainingPercent)
	assert.InDelta(t, 12.6, up.State.Battery.Voltage, 1e-9)
	// untouched groups
	assert.InDelta(t, 10.0, up.State.Position.Lat, 1e-9)
	assert.InDelta(t, 20.0, up.State.Position.Lon, 1e-9)
	assert.InDelta(t, 0.25, up.State.Attitude.Roll, 1e-6)
}

func TestApplyKeepsVehiclesIndependent(t *testing.T) {
	f := NewFleet(5 * time.Second)
	hb := mavlink.EncodeHeartbeat(mavlink.Heartbeat{})

	_, ok := f.Apply(frameOf(t, 1, mavlink.MsgHeartbeat, hb))
	require.True(t, ok)
	_, ok = f.Apply(frameOf(t, 2, mavlink.MsgHeartbeat, hb))
	require.True(t, ok)

	gp := mavlink.EncodeGlobalPosition(mavlink.GlobalPosition{Lat: 100000000})
	_, ok = f.Apply(frameOf(t, 2, mavlink.MsgGlobalPositionInt, gp))
	require.True(t, ok)

	one, found := f.Vehicle(1)
	require.True(t, found)
	two, found := f.Vehicle(2)
	require.True(t, found)
	assert.Zero(t, one.Position.Lat)
	assert.InDelta(t, 10.0, two.Position.Lat, 1e-9)

	snap := f.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, uint8(1), snap[0].SystemID)
	assert.Equal(t, uint8(2), snap[1].SystemID)
}

func TestApplyUnknownMessageIsNoOp(t *testing.T) {
	f := NewFleet(5 * time.Second)
	up, ok := f.Apply(frameOf(t, 3, 4242, []byte{1, 2, 3}))
	assert.False(t, ok)
	assert.Empty(t, up.Fields)

	// The vehicle record exists (first frame creates it) but nothing beyond
	// liveness was set.
	st, found := f.Vehicle(3)
	require.True(t, found)
	assert.False(t, st.Connected)
	assert.False(t, st.LastSeenAt.IsZero())
}

func TestSnapshotReflectsMergedUpdates(t *testing.T) {
	f := NewFleet(5 * time.Second)
	hb := mavlink.EncodeHeartbeat(mavlink.Heartbeat{CustomMode: 6})
	gp := mavlink.EncodeGlobalPosition(mavlink.GlobalPosition{Lat: 150000000, RelativeAlt: 30000})
	var bat mavlink.BatteryStatus
	bat.Remaining = 50

	f.Apply(frameOf(t, 7, mavlink.MsgHeartbeat, hb))
	f.Apply(frameOf(t, 7, mavlink.MsgGlobalPositionInt, gp))
	f.Apply(frameOf(t, 7, mavlink.MsgBatteryStatus, mavlink.EncodeBatteryStatus(bat)))

	snap := f.Snapshot()
	require.Len(t, snap, 1)
	st := snap[0]
	assert.True(t, st.Connected)
	assert.Equal(t, "RTL", st.FlightMode)
	assert.InDelta(t, 15.0, st.Position.Lat, 1e-9)
	assert.InDelta(t, 30.0, st.Position.AltRelative, 1e-9)
	assert.Equal(t, 50, st.Battery.RemainingPercent)
}

func TestSweepStale(t *testing.T) {
	f := NewFleet(50 * time.Millisecond)
	hb := mavlink.EncodeHeartbeat(mavlink.Heartbeat{})

	fr := frameOf(t, 1, mavlink.MsgHeartbeat, hb)
	fr.ReceivedAt = time.Now().Add(-time.Second)
	_, ok := f.Apply(fr)
	require.True(t, ok)

	updates := f.SweepStale()
	require.Len(t, updates, 1)
	assert.False(t, updates[0].State.Connected)
	assert.Equal(t, []string{FieldConnected}, updates[0].Fields)

	// Already disconnected vehicles are not reported again.
	assert.Empty(t, f.SweepStale())
}
