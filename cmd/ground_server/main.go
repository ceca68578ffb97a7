// Ground server program:
// - POST /api/ingest   : bridges post raw link chunks (JSON or octet-stream)
// - POST /api/frames   : bridges post already-decoded frames
// - POST /api/status   : bridges post periodic health reports
// - GET  /api/vehicles : current fleet snapshot
// - GET  /api/health   : connectivity probe used by bridge preflight
// - GET  /ws           : live subscriber sessions (viewers and bridges)
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mavbridge/internal/core"
	"mavbridge/internal/model"
	"mavbridge/internal/util"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	addr := flag.String("addr", ":9000", "listen address")
	livenessMs := flag.Int("liveness-ms", 5000, "mark a vehicle stale after this many ms of silence")
	flag.Parse()

	if *configPath != "" {
		cfg, err := model.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		*addr = cfg.Global.ServerAddr
		*livenessMs = cfg.Global.LivenessWindowMs
	}

	g := core.NewGroundServer(*addr, time.Duration(*livenessMs)*time.Millisecond)
	errCh := make(chan error, 1)
	go func() { errCh <- g.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
		util.Info("ground server shutting down...")
	case err := <-errCh:
		if err != nil {
			log.Fatalf("ground server: %v", err)
		}
		return
	}
	g.Stop()
	util.Info("ground server stopped")
}
