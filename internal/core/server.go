package core

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mavbridge/internal/hub"
	"mavbridge/internal/mavlink"
	"mavbridge/internal/model"
	"mavbridge/internal/telemetry"
	"mavbridge/internal/util"
)

// gcsSystemID is the sender identity stamped on command frames built by the
// ground server (the conventional ground-station ids).
const (
	gcsSystemID    = 255
	gcsComponentID = 190
)

// GroundServer is the remote ingestion endpoint and fan-out hub: it accepts
// raw chunks or decoded frames from bridges, folds them into the fleet,
// broadcasts events to websocket subscribers, and routes subscriber commands
// back to bridge sessions.
type GroundServer struct {
	addr     string
	fleet    *telemetry.Fleet
	events   *hub.Hub
	enc      *mavlink.Encoder
	upgrader websocket.Upgrader

	mu       sync.Mutex
	decoders map[string]*linkDecoder

	sweepEvery time.Duration
	server     *http.Server
	stop       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// linkDecoder serializes decoder access per bridge: ingest posts for one
// bridge may arrive on concurrent handler goroutines.
type linkDecoder struct {
	mu  sync.Mutex
	dec *mavlink.Decoder
}

func (ld *linkDecoder) feed(chunk []byte) []mavlink.Frame {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	return ld.dec.Feed(chunk)
}

// NewGroundServer constructs a server listening on addr, marking vehicles
// stale after the given liveness window.
func NewGroundServer(addr string, liveness time.Duration) *GroundServer {
	return &GroundServer{
		addr:       addr,
		fleet:      telemetry.NewFleet(liveness),
		events:     hub.New(),
		enc:        mavlink.NewEncoder(gcsSystemID, gcsComponentID),
		upgrader:   websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		decoders:   make(map[string]*linkDecoder),
		sweepEvery: liveness / 2,
		stop:       make(chan struct{}),
	}
}

// Handler returns the HTTP routing for the server. Split out so tests can
// mount it on httptest.
func (g *GroundServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", g.handleHealth)
	mux.HandleFunc("/api/ingest", g.handleIngest)
	mux.HandleFunc("/api/frames", g.handleFrames)
	mux.HandleFunc("/api/status", g.handleStatus)
	mux.HandleFunc("/api/vehicles", g.handleVehicles)
	mux.HandleFunc("/ws", g.handleWS)
	return mux
}

// Start launches the staleness sweeper and serves HTTP until Stop. It blocks.
func (g *GroundServer) Start() error {
	g.wg.Add(1)
	go g.sweepLoop()

	g.server = &http.Server{Addr: g.addr, Handler: g.Handler()}
	util.Info("ground server listening on %s", g.addr)
	if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down and waits for the sweeper.
func (g *GroundServer) Stop() {
	g.stopOnce.Do(func() { close(g.stop) })
	if g.server != nil {
		_ = g.server.Close()
	}
	g.wg.Wait()
}

// Fleet exposes the aggregator (the relay uses it when running link-local).
func (g *GroundServer) Fleet() *telemetry.Fleet {
	return g.fleet
}

func (g *GroundServer) sweepLoop() {
	defer g.wg.Done()
	every := g.sweepEvery
	if every <= 0 {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			for _, up := range g.fleet.SweepStale() {
				st := up.State
				util.Info("vehicle %d marked stale", st.SystemID)
				g.events.Publish(model.ServerEvent{
					Type:     model.EventVehicle,
					Vehicle:  &st,
					Fields:   up.Fields,
					SystemID: st.SystemID,
				})
			}
		}
	}
}

func (g *GroundServer) decoderFor(bridgeID string) *linkDecoder {
	g.mu.Lock()
	defer g.mu.Unlock()
	ld, ok := g.decoders[bridgeID]
	if !ok {
		ld = &linkDecoder{dec: mavlink.NewDecoder()}
		g.decoders[bridgeID] = ld
	}
	return ld
}

// applyFrame runs one decoded frame through the aggregator and publishes the
// raw receipt plus any field update.
func (g *GroundServer) applyFrame(f mavlink.Frame) {
	if len(f.Raw) > 0 {
		g.events.Publish(model.ServerEvent{Type: model.EventRawIn, SystemID: f.SystemID, Data: f.Raw})
	}
	up, ok := g.fleet.Apply(f)
	if !ok {
		return
	}
	st := up.State
	g.events.Publish(model.ServerEvent{
		Type:     model.EventVehicle,
		Vehicle:  &st,
		Fields:   up.Fields,
		SystemID: st.SystemID,
	})
}

func (g *GroundServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleIngest accepts one raw link chunk, either as an IngestRequest JSON
// body or as a bare octet-stream with the bridge id in the query string.
func (g *GroundServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req model.IngestRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/octet-stream") {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		req = model.IngestRequest{
			BridgeID:   r.URL.Query().Get("bridge"),
			Data:       data,
			ReceivedAt: time.Now(),
		}
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid ingest body", http.StatusBadRequest)
		return
	}
	if len(req.Data) == 0 {
		http.Error(w, "empty chunk", http.StatusBadRequest)
		return
	}
	for _, f := range g.decoderFor(req.BridgeID).feed(req.Data) {
		g.applyFrame(f)
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleFrames accepts one already-decoded frame as JSON.
func (g *GroundServer) handleFrames(w http.ResponseWriter, r *http.Request) {
	var rec model.FrameRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		http.Error(w, "invalid frame body", http.StatusBadRequest)
		return
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	g.applyFrame(mavlink.Frame{
		Version:     mavlink.V2,
		SystemID:    rec.SystemID,
		ComponentID: rec.ComponentID,
		Sequence:    rec.Sequence,
		MessageID:   rec.MessageID,
		Payload:     rec.Payload,
		ReceivedAt:  ts,
	})
	w.WriteHeader(http.StatusAccepted)
}

// handleStatus accepts a bridge health report and rebroadcasts it.
func (g *GroundServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	var st model.BridgeStatus
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		http.Error(w, "invalid status body", http.StatusBadRequest)
		return
	}
	g.events.Publish(model.ServerEvent{Type: model.EventBridgeStatus, Status: &st})
	w.WriteHeader(http.StatusAccepted)
}

// handleVehicles serves the current fleet snapshot as JSON.
func (g *GroundServer) handleVehicles(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(g.fleet.Snapshot()); err != nil {
		util.Warn("vehicles response: %v", err)
	}
}
