package core

import (
	"time"

	"mavbridge/internal/rawlog"
)

// ReplaySource plays a raw traffic capture back as a ChunkSource, so a
// recorded flight can be pushed through the relay pipeline without hardware.
// Reads end with io.EOF when the capture is exhausted; writes are discarded.
type ReplaySource struct {
	r      *rawlog.Reader
	speed  float64
	last   time.Time
	closed chan struct{}
}

// NewReplaySource opens a capture for playback. speed scales inter-chunk
// timing: 1.0 replays in real time, 0 as fast as possible.
func NewReplaySource(path string, speed float64) (*ReplaySource, error) {
	r, err := rawlog.OpenReader(path)
	if err != nil {
		return nil, err
	}
	return &ReplaySource{r: r, speed: speed, closed: make(chan struct{})}, nil
}

// ReadChunk returns the next inbound chunk of the capture, pacing itself by
// the recorded timestamps when a speed is set.
func (s *ReplaySource) ReadChunk() ([]byte, error) {
	for {
		rec, err := s.r.Next()
		if err != nil {
			return nil, err
		}
		if rec.Dir != rawlog.DirIn {
			continue
		}
		if s.speed > 0 && !s.last.IsZero() {
			gap := rec.At.Sub(s.last)
			if gap > 0 {
				select {
				case <-time.After(time.Duration(float64(gap) / s.speed)):
				case <-s.closed:
					return nil, rawlog.ErrReplayClosed
				}
			}
		}
		s.last = rec.At
		return rec.Data, nil
	}
}

// Write discards command bytes; a capture has no vehicle to talk to.
func (s *ReplaySource) Write(p []byte) (int, error) {
	return len(p), nil
}

// Close stops playback and releases the capture file.
func (s *ReplaySource) Close() error {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return s.r.Close()
}
