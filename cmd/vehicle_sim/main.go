// Vehicle simulator program:
//   - Emits synthetic autopilot telemetry (heartbeat, position, attitude,
//     battery) at a fixed rate, flying a slow circle
//   - Writes frames to a serial device (-link) or posts chunks straight to the
//     ground server ingest endpoint (-remote), for benches without hardware
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mavbridge/internal/device"
	"mavbridge/internal/mavlink"
	"mavbridge/internal/model"
	"mavbridge/internal/util"
)

func main() {
	sysID := flag.Uint("sysid", 1, "simulated vehicle system id")
	linkPath := flag.String("link", "", "serial device to write frames to")
	baud := flag.Int("baud", 57600, "baud rate for -link")
	remote := flag.String("remote", "", "ground server base URL to post chunks to")
	hz := flag.Float64("hz", 2, "telemetry rate")
	useV2 := flag.Bool("v2", false, "emit V2 framing instead of V1")
	flag.Parse()

	if (*linkPath == "") == (*remote == "") {
		log.Fatal("exactly one of -link or -remote must be given")
	}

	deliver, cleanup, err := newSink(*linkPath, *baud, *remote)
	if err != nil {
		log.Fatalf("sim startup: %v", err)
	}
	defer cleanup()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	sim := newSimVehicle(uint8(*sysID), *useV2)
	ticker := time.NewTicker(time.Duration(float64(time.Second) / *hz))
	defer ticker.Stop()

	util.Info("sim vehicle %d: sending at %.1f Hz", *sysID, *hz)
	for {
		select {
		case <-stop:
			util.Info("sim vehicle %d stopped", *sysID)
			return
		case <-ticker.C:
			if err := deliver(sim.nextChunk()); err != nil {
				util.Warn("sim deliver: %v", err)
			}
		}
	}
}

// newSink returns the chunk delivery function for the chosen output.
func newSink(linkPath string, baud int, remote string) (func([]byte) error, func(), error) {
	if linkPath != "" {
		l, err := device.Open(model.BridgeConfig{
			LinkPath: linkPath, BaudRate: baud, DataBits: 8, StopBits: 1,
			Parity: "none", BufferSize: 1024,
		})
		if err != nil {
			return nil, nil, err
		}
		deliver := func(chunk []byte) error {
			_, werr := l.Write(chunk)
			return werr
		}
		return deliver, func() { _ = l.Close() }, nil
	}

	client := &http.Client{Timeout: 5 * time.Second}
	deliver := func(chunk []byte) error {
		body, err := json.Marshal(model.IngestRequest{
			BridgeID:   "sim",
			Data:       chunk,
			ReceivedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		resp, err := client.Post(remote+"/api/ingest", "application/json", bytes.NewReader(body))
		if err != nil {
			return err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.Body.Close()
	}
	return deliver, func() {}, nil
}

// simVehicle flies a slow circle around a fixed home point and drains its
// battery as it goes.
type simVehicle struct {
	enc     *mavlink.Encoder
	useV2   bool
	tick    int
	started time.Time
}

// home point: Hanoi, same bench coordinates the field units default to
const (
	homeLat = 21.0285
	homeLon = 105.8048
)

func newSimVehicle(systemID uint8, useV2 bool) *simVehicle {
	return &simVehicle{enc: mavlink.NewEncoder(systemID, 1), useV2: useV2, started: time.Now()}
}

func (s *simVehicle) build(messageID uint32, payload []byte) []byte {
	if s.useV2 {
		return s.enc.BuildV2(messageID, payload)
	}
	return s.enc.BuildV1(uint8(messageID), payload)
}

// nextChunk produces one tick's worth of frames as a single byte chunk.
func (s *simVehicle) nextChunk() []byte {
	s.tick++
	angle := float64(s.tick) * 0.05 // radians around the circle
	bootMs := uint32(time.Since(s.started).Milliseconds())

	var chunk []byte
	chunk = append(chunk, s.build(mavlink.MsgHeartbeat, mavlink.EncodeHeartbeat(mavlink.Heartbeat{
		CustomMode:     4,    // GUIDED
		BaseMode:       0x80, // armed
		MavlinkVersion: 3,
	}))...)

	lat := homeLat + 0.001*math.Sin(angle)
	lon := homeLon + 0.001*math.Cos(angle)
	chunk = append(chunk, s.build(mavlink.MsgGlobalPositionInt, mavlink.EncodeGlobalPosition(mavlink.GlobalPosition{
		TimeBootMs:  bootMs,
		Lat:         int32(lat * 1e7),
		Lon:         int32(lon * 1e7),
		Alt:         int32((50 + 10*math.Sin(angle)) * 1e3),
		RelativeAlt: int32(30 * 1e3),
		Vx:          int16(500 * math.Cos(angle)),
		Vy:          int16(500 * math.Sin(angle)),
		Hdg:         uint16(math.Mod(angle*180/math.Pi, 360) * 100),
	}))...)

	chunk = append(chunk, s.build(mavlink.MsgAttitude, mavlink.EncodeAttitude(mavlink.Attitude{
		TimeBootMs: bootMs,
		Roll:       float32(0.1 * math.Sin(angle)),
		Pitch:      float32(0.05 * math.Cos(angle)),
		Yaw:        float32(angle),
	}))...)

	if s.tick%5 == 0 {
		var bat mavlink.BatteryStatus
		bat.Remaining = int8(100 - (s.tick/5)%100)
		bat.Voltages[0] = 12600
		chunk = append(chunk, s.build(mavlink.MsgBatteryStatus, mavlink.EncodeBatteryStatus(bat))...)
	}
	return chunk
}
