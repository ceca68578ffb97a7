// Package telemetry folds decoded frames into live per-vehicle state records.
//
// Each message kind is authoritative for one group of fields and never
// touches the others: heartbeats own liveness/arming/mode, position frames
// own GPS and velocity, attitude frames own orientation, battery frames own
// charge. Updates for one vehicle are serialized through that vehicle's own
// lock, so traffic for different system ids never contends.
package telemetry

import (
	"math"
	"sort"
	"sync"
	"time"

	"mavbridge/internal/mavlink"
	"mavbridge/internal/model"
)

// Field group names reported in Update.Fields.
const (
	FieldHeartbeat = "heartbeat"
	FieldPosition  = "position"
	FieldAttitude  = "attitude"
	FieldBattery   = "battery"
	FieldConnected = "connected"
)

// Update describes one applied frame: the resulting state snapshot and which
// field groups it changed.
type Update struct {
	State  model.VehicleState
	Fields []string
}

type vehicleEntry struct {
	mu    sync.Mutex
	state model.VehicleState
}

// Fleet is the aggregator: one VehicleState per system id, created on first
// frame, never destroyed, marked stale after the liveness window.
type Fleet struct {
	mu       sync.RWMutex
	vehicles map[uint8]*vehicleEntry
	liveness time.Duration
	now      func() time.Time
}

// NewFleet creates an empty fleet with the given liveness window.
func NewFleet(liveness time.Duration) *Fleet {
	return &Fleet{
		vehicles: make(map[uint8]*vehicleEntry),
		liveness: liveness,
		now:      time.Now,
	}
}

func (f *Fleet) entry(systemID uint8) *vehicleEntry {
	f.mu.RLock()
	e, ok := f.vehicles[systemID]
	f.mu.RUnlock()
	if ok {
		return e
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok = f.vehicles[systemID]; ok {
		return e
	}
	e = &vehicleEntry{state: model.VehicleState{SystemID: systemID, Battery: model.Battery{RemainingPercent: -1}}}
	f.vehicles[systemID] = e
	return e
}

// Apply folds one decoded frame into the state record for its system id.
// It returns the update and true when a known message kind changed fields;
// unknown message ids still refresh liveness but report false.
func (f *Fleet) Apply(frame mavlink.Frame) (Update, bool) {
	e := f.entry(frame.SystemID)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.LastSeenAt = frame.ReceivedAt
	var fields []string

	switch frame.MessageID {
	case mavlink.MsgHeartbeat:
		hb, err := mavlink.DecodeHeartbeat(frame.Payload)
		if err != nil {
			break
		}
		if !e.state.Connected {
			fields = append(fields, FieldConnected)
		}
		e.state.Connected = true
		e.state.LastHeartbeatAt = frame.ReceivedAt
		e.state.Armed = hb.Armed()
		e.state.FlightMode = mavlink.FlightModeName(hb.CustomMode)
		fields = append(fields, FieldHeartbeat)

	case mavlink.MsgGlobalPositionInt:
		gp, err := mavlink.DecodeGlobalPosition(frame.Payload)
		if err != nil {
			break
		}
		e.state.Position = model.Position{
			Lat:         float64(gp.Lat) * 1e-7,
			Lon:         float64(gp.Lon) * 1e-7,
			AltMSL:      float64(gp.Alt) * 1e-3,
			AltRelative: float64(gp.RelativeAlt) * 1e-3,
		}
		e.state.Velocity = model.Velocity{
			GroundSpeed: math.Hypot(float64(gp.Vx), float64(gp.Vy)) * 1e-2,
			Heading:     float64(gp.Hdg) * 1e-2,
		}
		fields = append(fields, FieldPosition)

	case mavlink.MsgAttitude:
		att, err := mavlink.DecodeAttitude(frame.Payload)
		if err != nil {
			break
		}
		e.state.Attitude = model.Attitude{
			Roll:  float64(att.Roll),
			Pitch: float64(att.Pitch),
			Yaw:   float64(att.Yaw),
		}
		fields = append(fields, FieldAttitude)

	case mavlink.MsgBatteryStatus:
		bat, err := mavlink.DecodeBatteryStatus(frame.Payload)
		if err != nil {
			break
		}
		e.state.Battery = model.Battery{
			RemainingPercent: int(bat.Remaining),
			Voltage:          float64(bat.Voltages[0]) * 1e-3,
		}
		fields = append(fields, FieldBattery)
	}

	if len(fields) == 0 {
		return Update{State: e.state}, false
	}
	return Update{State: e.state, Fields: fields}, true
}

// Vehicle returns a copy of one vehicle's state.
func (f *Fleet) Vehicle(systemID uint8) (model.VehicleState, bool) {
	f.mu.RLock()
	e, ok := f.vehicles[systemID]
	f.mu.RUnlock()
	if !ok {
		return model.VehicleState{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, true
}

// Snapshot returns copies of every vehicle record, ordered by system id.
func (f *Fleet) Snapshot() []model.VehicleState {
	f.mu.RLock()
	entries := make([]*vehicleEntry, 0, len(f.vehicles))
	for _, e := range f.vehicles {
		entries = append(entries, e)
	}
	f.mu.RUnlock()

	states := make([]model.VehicleState, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		states = append(states, e.state)
		e.mu.Unlock()
	}
	sort.Slice(states, func(i, j int) bool { return states[i].SystemID < states[j].SystemID })
	return states
}

// SweepStale marks vehicles silent for longer than the liveness window as
// disconnected and returns one update per newly stale vehicle.
func (f *Fleet) SweepStale() []Update {
	f.mu.RLock()
	entries := make([]*vehicleEntry, 0, len(f.vehicles))
	for _, e := range f.vehicles {
		entries = append(entries, e)
	}
	f.mu.RUnlock()

	cutoff := f.now().Add(-f.liveness)
	var updates []Update
	for _, e := range entries {
		e.mu.Lock()
		if e.state.Connected && e.state.LastSeenAt.Before(cutoff) {
			e.state.Connected = false
			updates = append(updates, Update{State: e.state, Fields: []string{FieldConnected}})
		}
		e.mu.Unlock()
	}
	return updates
}
