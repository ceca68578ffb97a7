package mavlink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// heartbeat-sized V1 frame used across tests:
// marker, len=2, seq=0, sys=1, comp=2, msgid=0, payload AA BB, crc 00 00
var v1Frame = []byte{0xFE, 0x02, 0x00, 0x01, 0x02, 0x00, 0xAA, 0xBB, 0x00, 0x00}

func TestFeedV1SingleChunk(t *testing.T) {
	d := NewDecoder()
	frames := d.Feed(v1Frame)
	require.Len(t, frames, 1)

	f := frames[0]
	assert.Equal(t, V1, f.Version)
	assert.Equal(t, uint8(1), f.SystemID)
	assert.Equal(t, uint8(2), f.ComponentID)
	assert.Equal(t, uint32(0), f.MessageID)
	assert.Equal(t, []byte{0xAA, 0xBB}, f.Payload)
	assert.Equal(t, v1Frame, f.Raw)
	assert.False(t, f.ReceivedAt.IsZero())
	assert.Equal(t, 0, d.Buffered())
}

func TestFeedChunkBoundaryInvariance(t *testing.T) {
	whole := NewDecoder().Feed(v1Frame)
	require.Len(t, whole, 1)

	for split := 1; split < len(v1Frame); split++ {
		d := NewDecoder()
		frames := d.Feed(v1Frame[:split])
		assert.Empty(t, frames, "no frame should complete before the last byte (split %d)", split)
		frames = append(frames, d.Feed(v1Frame[split:])...)
		require.Len(t, frames, 1, "split %d", split)
		assert.Equal(t, whole[0].Payload, frames[0].Payload, "split %d", split)
		assert.Equal(t, whole[0].SystemID, frames[0].SystemID, "split %d", split)
		assert.Equal(t, whole[0].Raw, frames[0].Raw, "split %d", split)
	}
}

func TestFeedByteAtATime(t *testing.T) {
	d := NewDecoder()
	var frames []Frame
	for _, b := range v1Frame {
		frames = append(frames, d.Feed([]byte{b})...)
	}
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{0xAA, 0xBB}, frames[0].Payload)
}

func TestFeedNoMarkerNeverExceedsCap(t *testing.T) {
	d := NewDecoder()
	garbage := make([]byte, 4*MaxBufferLen)
	for i := range garbage {
		garbage[i] = byte(i % 0xFD) // never a start marker
	}
	frames := d.Feed(garbage)
	assert.Empty(t, frames)
	assert.LessOrEqual(t, d.Buffered(), MaxBufferLen)
}

func TestFeedSpuriousMarkerResynchronizes(t *testing.T) {
	d := NewDecoder()

	// First half of a valid frame, then a fresh marker: the interrupted
	// frame must never be emitted, the following one must.
	interrupted := v1Frame[:6]
	frames := d.Feed(interrupted)
	assert.Empty(t, frames)

	frames = d.Feed(v1Frame)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{0xAA, 0xBB}, frames[0].Payload)
}

func TestFeedMarkerInsidePayloadKillsFrame(t *testing.T) {
	// A frame whose payload carries a start marker byte is abandoned at that
	// byte; resynchronization is deliberate and lossy.
	bad := append([]byte(nil), v1Frame...)
	bad[6] = MarkerV1
	d := NewDecoder()
	frames := d.Feed(bad)
	assert.Empty(t, frames)
}

func TestFeedLeadingGarbageThenFrame(t *testing.T) {
	d := NewDecoder()
	input := append([]byte{0x00, 0x13, 0x37}, v1Frame...)
	frames := d.Feed(input)
	require.Len(t, frames, 1)
	assert.Equal(t, uint8(1), frames[0].SystemID)
}

func TestFeedBackToBackFrames(t *testing.T) {
	d := NewDecoder()
	input := append(append([]byte(nil), v1Frame...), v1Frame...)
	frames := d.Feed(input)
	require.Len(t, frames, 2)
}

func TestFeedV2Frame(t *testing.T) {
	// marker, len=3, incompat, compat, seq=7, sys=9, comp=1,
	// msgid=0x00014D (u24 LE), payload, crc
	v2 := []byte{
		0xFD, 0x03, 0x00, 0x00, 0x07, 0x09, 0x01,
		0x4D, 0x01, 0x00,
		0xDE, 0xAD, 0xBF,
		0x00, 0x00,
	}
	d := NewDecoder()
	frames := d.Feed(v2)
	require.Len(t, frames, 1)

	f := frames[0]
	assert.Equal(t, V2, f.Version)
	assert.Equal(t, uint8(9), f.SystemID)
	assert.Equal(t, uint8(1), f.ComponentID)
	assert.Equal(t, uint8(7), f.Sequence)
	assert.Equal(t, uint32(0x14D), f.MessageID)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBF}, f.Payload)
}

func TestEncoderDecoderRoundTrip(t *testing.T) {
	enc := NewEncoder(1, 1)
	hb := EncodeHeartbeat(Heartbeat{CustomMode: 6, BaseMode: 0x80, MavlinkVersion: 3})

	d := NewDecoder()
	frames := d.Feed(enc.BuildV1(MsgHeartbeat, hb))
	require.Len(t, frames, 1)
	assert.Equal(t, uint32(MsgHeartbeat), frames[0].MessageID)

	got, err := DecodeHeartbeat(frames[0].Payload)
	require.NoError(t, err)
	assert.True(t, got.Armed())
	assert.Equal(t, uint32(6), got.CustomMode)

	frames = d.Feed(enc.BuildV2(MsgBatteryStatus, EncodeBatteryStatus(BatteryStatus{Remaining: 55})))
	require.Len(t, frames, 1)
	assert.Equal(t, uint32(MsgBatteryStatus), frames[0].MessageID)
	assert.Equal(t, V2, frames[0].Version)
}
