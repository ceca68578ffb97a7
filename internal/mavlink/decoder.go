package mavlink

import (
	"encoding/binary"
	"time"
)

// Decoder accumulates raw link bytes and yields complete frames. It owns its
// buffer, keeps no other state, and never returns an error: malformed input
// either keeps accumulating or resets the buffer on the next start marker.
type Decoder struct {
	buf []byte
	now func() time.Time
}

// NewDecoder creates a decoder with an empty buffer.
func NewDecoder() *Decoder {
	return &Decoder{
		buf: make([]byte, 0, MaxBufferLen),
		now: time.Now,
	}
}

// Feed consumes one chunk of link bytes and returns the frames completed by
// it, in wire order. Chunks carry no alignment guarantee: a frame may span
// any number of Feed calls and the result is identical to feeding the same
// bytes in one call. Feed never blocks.
func (d *Decoder) Feed(chunk []byte) []Frame {
	var frames []Frame
	for _, b := range chunk {
		// A start marker always begins a new frame. Whatever was buffered
		// before it is unrecoverable and gets dropped.
		if b == MarkerV1 || b == MarkerV2 {
			d.buf = append(d.buf[:0], b)
			continue
		}
		d.buf = append(d.buf, b)

		if f, ok := d.tryComplete(); ok {
			frames = append(frames, f)
			d.buf = d.buf[:0]
			continue
		}
		if len(d.buf) > MaxBufferLen {
			d.buf = d.buf[:0]
		}
	}
	return frames
}

// tryComplete checks whether the buffer now holds one whole frame for the
// version declared by its first byte.
func (d *Decoder) tryComplete() (Frame, bool) {
	if len(d.buf) == 0 {
		return Frame{}, false
	}
	switch d.buf[0] {
	case MarkerV1:
		if len(d.buf) < OverheadV1 {
			return Frame{}, false
		}
		total := int(d.buf[1]) + OverheadV1
		if len(d.buf) < total {
			return Frame{}, false
		}
		raw := append([]byte(nil), d.buf[:total]...)
		return Frame{
			Version:     V1,
			Sequence:    raw[2],
			SystemID:    raw[3],
			ComponentID: raw[4],
			MessageID:   uint32(raw[5]),
			Payload:     raw[6 : 6+int(raw[1])],
			Raw:         raw,
			ReceivedAt:  d.now(),
		}, true
	case MarkerV2:
		if len(d.buf) < OverheadV2 {
			return Frame{}, false
		}
		total := int(d.buf[1]) + OverheadV2
		if len(d.buf) < total {
			return Frame{}, false
		}
		raw := append([]byte(nil), d.buf[:total]...)
		// Message id is 24-bit little-endian; pad to four bytes for decoding.
		msgID := binary.LittleEndian.Uint32(append([]byte{raw[7], raw[8], raw[9]}, 0))
		return Frame{
			Version:     V2,
			Sequence:    raw[4],
			SystemID:    raw[5],
			ComponentID: raw[6],
			MessageID:   msgID,
			Payload:     raw[10 : 10+int(raw[1])],
			Raw:         raw,
			ReceivedAt:  d.now(),
		}, true
	default:
		// Leading garbage with no marker yet; keep accumulating until the cap.
		return Frame{}, false
	}
}

// Buffered reports how many bytes are currently held waiting for a frame to
// complete. Exposed for diagnostics only.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}
