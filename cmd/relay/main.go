// Relay program:
// - Opens a hardware telemetry link and relays raw chunks to the ground server
// - Keeps a live websocket session open for command frames flowing back
// - Can capture raw traffic to a file, or replay a capture instead of hardware
// - -list-ports prints the serial devices present and exits
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mavbridge/internal/core"
	"mavbridge/internal/device"
	"mavbridge/internal/model"
	"mavbridge/internal/rawlog"
	"mavbridge/internal/util"
)

func main() {
	configPath := flag.String("config", "", "YAML config file; overrides the link flags (bridge selected by -id)")
	id := flag.String("id", "relay01", "bridge id")
	link := flag.String("link", "/dev/ttyACM0", "hardware link device path")
	baud := flag.Int("baud", 57600, "baud rate")
	dataBits := flag.Int("data-bits", 8, "data bits")
	stopBits := flag.Int("stop-bits", 1, "stop bits")
	parity := flag.String("parity", "none", "parity: none|odd|even")
	bufSize := flag.Int("buffer", 1024, "link read buffer size in bytes")
	remote := flag.String("remote", "http://127.0.0.1:9000", "ground server base URL")
	frames := flag.Bool("frames", false, "submit decoded frames instead of raw chunks")
	record := flag.String("record", "", "capture raw link traffic to this file")
	replay := flag.String("replay", "", "replay a capture file instead of opening hardware")
	replaySpeed := flag.Float64("replay-speed", 1.0, "replay speed multiplier (0 = as fast as possible)")
	statusMs := flag.Int("status-interval-ms", 10000, "status report period")
	listPorts := flag.Bool("list-ports", false, "list serial devices and exit")
	flag.Parse()

	if *listPorts {
		ports, err := device.ListPorts()
		if err != nil {
			log.Fatalf("list ports: %v", err)
		}
		if len(ports) == 0 {
			fmt.Println("no serial ports found")
			return
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	cfg := model.BridgeConfig{
		ID:         *id,
		LinkPath:   *link,
		BaudRate:   *baud,
		DataBits:   *dataBits,
		StopBits:   *stopBits,
		Parity:     *parity,
		BufferSize: *bufSize,
		RemoteURL:  *remote,
	}
	if *configPath != "" {
		full, err := model.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		found := false
		for _, bc := range full.Bridges {
			if bc.ID == *id {
				cfg = bc
				found = true
				break
			}
		}
		if !found {
			log.Fatalf("bridge %q not found in %s", *id, *configPath)
		}
		*statusMs = full.Global.StatusIntervalMs
	}
	root := model.Config{Bridges: []model.BridgeConfig{cfg}}
	root.ApplyDefaults()
	cfg = root.Bridges[0]

	opts := core.BridgeOptions{
		SubmitFrames:   *frames,
		StatusInterval: time.Duration(*statusMs) * time.Millisecond,
	}

	if *record != "" {
		w, err := rawlog.NewWriter(*record)
		if err != nil {
			log.Fatalf("open capture: %v", err)
		}
		defer func() {
			if cerr := w.Close(); cerr != nil {
				util.Warn("close capture: %v", cerr)
			}
		}()
		opts.Capture = w
	}

	var dial core.LinkDialer
	if *replay != "" {
		opts.OneShot = true
		dial = func() (core.ChunkSource, error) {
			return core.NewReplaySource(*replay, *replaySpeed)
		}
	} else {
		dial = func() (core.ChunkSource, error) {
			return device.Open(cfg)
		}
	}

	b := core.NewBridge(cfg, dial, opts)
	if err := b.Start(); err != nil {
		log.Fatalf("relay startup: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
		util.Info("relay %s shutting down...", cfg.ID)
	case <-b.Done():
		util.Info("relay %s finished", cfg.ID)
	}
	b.Stop()

	report := b.Status()
	util.Info("relay %s stopped: in=%dB out=%dB errors=%d",
		report.BridgeID, report.BytesIn, report.BytesOut, report.ErrorCount)
}
