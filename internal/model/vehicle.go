// Package model defines shared message and state structures for mavbridge.
package model

import "time"

// Position is the last known GPS fix of a vehicle, in degrees and metres.
type Position struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	AltMSL      float64 `json:"alt_msl"`
	AltRelative float64 `json:"alt_relative"`
}

// Velocity is ground speed in m/s and heading in degrees.
type Velocity struct {
	GroundSpeed float64 `json:"ground_speed"`
	Heading     float64 `json:"heading"`
}

// Attitude is the vehicle orientation in radians.
type Attitude struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Battery is remaining charge in percent (-1 unknown) and first-cell voltage
// in volts.
type Battery struct {
	RemainingPercent int     `json:"remaining_percent"`
	Voltage          float64 `json:"voltage"`
}

// VehicleState is the live record kept per autopilot system id. Each field
// group is owned by one message kind and updated independently; a battery
// frame never touches position, and so on.
type VehicleState struct {
	SystemID        uint8     `json:"system_id"`
	Connected       bool      `json:"connected"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
	LastSeenAt      time.Time `json:"last_seen_at"`
	Position        Position  `json:"position"`
	Velocity        Velocity  `json:"velocity"`
	Attitude        Attitude  `json:"attitude"`
	Battery         Battery   `json:"battery"`
	Armed           bool      `json:"armed"`
	FlightMode      string    `json:"flight_mode"`
}
