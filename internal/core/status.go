// Package core wires the relay pipeline together: the Bridge moves bytes
// between one hardware link and the ground server, and the GroundServer
// decodes, aggregates and fans telemetry out to live subscribers.
package core

import (
	"sync"
	"time"

	"mavbridge/internal/model"
)

// LinkState is the bridge's connection state machine. Transitions are driven
// by link events and the reconnect backoff timer, nothing else.
type LinkState int

const (
	Disconnected LinkState = iota
	Connecting
	Connected
	Degraded
)

func (s LinkState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Degraded:
		return "degraded"
	default:
		return "disconnected"
	}
}

// LinkStatus tracks health counters for one bridge link. All methods are safe
// for concurrent use; Report returns a consistent copy, never a torn read.
type LinkStatus struct {
	mu           sync.Mutex
	state        LinkState
	bytesIn      uint64
	bytesOut     uint64
	errorCount   uint64
	lastActivity time.Time
	startedAt    time.Time
}

// NewLinkStatus creates a status record in the Disconnected state.
func NewLinkStatus() *LinkStatus {
	return &LinkStatus{startedAt: time.Now()}
}

// SetState moves the state machine.
func (s *LinkStatus) SetState(state LinkState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// State returns the current state.
func (s *LinkStatus) State() LinkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AddIn accounts bytes received from the hardware link.
func (s *LinkStatus) AddIn(n int) {
	s.mu.Lock()
	s.bytesIn += uint64(n)
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// AddOut accounts bytes written to the hardware link.
func (s *LinkStatus) AddOut(n int) {
	s.mu.Lock()
	s.bytesOut += uint64(n)
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// AddError counts one failed remote delivery or link fault.
func (s *LinkStatus) AddError() {
	s.mu.Lock()
	s.errorCount++
	s.mu.Unlock()
}

// ResetCounters zeroes the byte and error counters, keeping state and uptime.
func (s *LinkStatus) ResetCounters() {
	s.mu.Lock()
	s.bytesIn, s.bytesOut, s.errorCount = 0, 0, 0
	s.mu.Unlock()
}

// Report builds the wire status record for the given bridge id.
func (s *LinkStatus) Report(bridgeID string) model.BridgeStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.BridgeStatus{
		BridgeID:   bridgeID,
		State:      s.state.String(),
		BytesIn:    s.bytesIn,
		BytesOut:   s.bytesOut,
		ErrorCount: s.errorCount,
		Uptime:     time.Since(s.startedAt).Seconds(),
		LastActive: s.lastActivity,
	}
}
