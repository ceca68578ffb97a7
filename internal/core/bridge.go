package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"mavbridge/internal/mavlink"
	"mavbridge/internal/model"
	"mavbridge/internal/rawlog"
	"mavbridge/internal/util"
)

// ChunkSource is the byte-oriented hardware link a bridge pumps from.
// device.Link implements it; a rawlog replay source does too.
type ChunkSource interface {
	ReadChunk() ([]byte, error)
	Write(p []byte) (int, error)
	Close() error
}

// LinkDialer opens (or reopens) the hardware link. The bridge calls it at
// startup and again on every reconnection attempt.
type LinkDialer func() (ChunkSource, error)

// ErrReconnectExhausted is reported when the reconnect attempt budget runs
// out and the bridge goes permanently Disconnected.
var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

// BridgeOptions carries the optional knobs of a bridge instance.
type BridgeOptions struct {
	SubmitFrames   bool           // POST decoded frames instead of raw chunks
	Capture        *rawlog.Writer // raw traffic capture, may be nil
	StatusInterval time.Duration  // health report period
	OneShot        bool           // no reconnect, no command session (relay scripts, replay)
}

// Bridge relays bytes between one hardware link and the ground server.
// Ingestion never blocks on remote delivery: each chunk is forwarded as an
// independent fire-and-forget POST and dropped on failure, by design.
type Bridge struct {
	cfg    model.BridgeConfig
	opts   BridgeOptions
	dial   LinkDialer
	client *http.Client
	dec    *mavlink.Decoder
	status *LinkStatus

	mu     sync.Mutex
	link   ChunkSource
	wsConn *websocket.Conn

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewBridge builds a bridge for one configured link. Nothing is opened until
// Start.
func NewBridge(cfg model.BridgeConfig, dial LinkDialer, opts BridgeOptions) *Bridge {
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = 10 * time.Second
	}
	return &Bridge{
		cfg:    cfg,
		opts:   opts,
		dial:   dial,
		client: &http.Client{Timeout: 5 * time.Second},
		dec:    mavlink.NewDecoder(),
		status: NewLinkStatus(),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Done is closed when the ingestion path has terminated for good: manual
// stop, replay end, or an exhausted reconnect budget.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Preflight performs the connectivity round-trip against the ground server.
// Startup must not proceed when it fails.
func Preflight(client *http.Client, remoteURL string, timeout time.Duration) error {
	if _, err := url.ParseRequestURI(remoteURL); err != nil {
		return fmt.Errorf("invalid remote URL %q: %w", remoteURL, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("preflight request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("preflight %s: %w", remoteURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("preflight %s: unexpected status %s", remoteURL, resp.Status)
	}
	return nil
}

// Start runs the preflight, opens the hardware link and launches the pump,
// status and command loops. It returns without blocking once steady state is
// reached, or an error when a startup precondition fails.
func (b *Bridge) Start() error {
	if err := Preflight(b.client, b.cfg.RemoteURL, 5*time.Second); err != nil {
		return err
	}

	b.status.SetState(Connecting)
	link, err := b.dial()
	if err != nil {
		b.status.SetState(Disconnected)
		return err
	}
	b.setLink(link)
	b.status.SetState(Connected)
	util.Info("bridge %s: link %s up, relaying to %s", b.cfg.ID, b.cfg.LinkPath, b.cfg.RemoteURL)

	b.wg.Add(2)
	go b.readLoop()
	go b.statusLoop()
	if !b.opts.OneShot {
		b.wg.Add(1)
		go b.commandLoop()
	}
	return nil
}

// Stop closes the bridge: the pending link read is cancelled by closing the
// link, backoff sleeps are interrupted, and all loops have exited before
// Stop returns. A stopped bridge never reconnects.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.stop)
		b.mu.Lock()
		if b.link != nil {
			_ = b.link.Close()
		}
		if b.wsConn != nil {
			_ = b.wsConn.Close()
		}
		b.mu.Unlock()
	})
	b.wg.Wait()
	b.status.SetState(Disconnected)
}

// Status returns the current health report.
func (b *Bridge) Status() model.BridgeStatus {
	return b.status.Report(b.cfg.ID)
}

func (b *Bridge) stopped() bool {
	select {
	case <-b.stop:
		return true
	default:
		return false
	}
}

func (b *Bridge) setLink(link ChunkSource) {
	b.mu.Lock()
	b.link = link
	b.mu.Unlock()
}

func (b *Bridge) currentLink() ChunkSource {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.link
}

// readLoop pumps the link until a read fault, then walks the reconnect
// policy. Exhausting the budget leaves the bridge permanently Disconnected.
func (b *Bridge) readLoop() {
	defer b.wg.Done()
	defer close(b.done)
	for {
		err := b.pump()
		if b.stopped() {
			return
		}
		if b.opts.OneShot {
			b.status.SetState(Disconnected)
			util.Info("bridge %s: link drained: %v", b.cfg.ID, err)
			return
		}
		b.status.SetState(Degraded)
		util.Warn("bridge %s: link fault: %v", b.cfg.ID, err)

		link, err := b.reconnect()
		if err != nil {
			b.status.SetState(Disconnected)
			util.Error("bridge %s: permanently disconnected: %v", b.cfg.ID, err)
			return
		}
		old := b.currentLink()
		if old != nil {
			_ = old.Close()
		}
		b.setLink(link)
		b.status.SetState(Connected)
		util.Info("bridge %s: link %s reopened", b.cfg.ID, b.cfg.LinkPath)
	}
}

// pump is the steady-state ingestion path: read a chunk, account it, capture
// it, and hand it off for remote delivery without waiting.
func (b *Bridge) pump() error {
	link := b.currentLink()
	for {
		chunk, err := link.ReadChunk()
		if err != nil {
			return err
		}
		b.status.AddIn(len(chunk))
		if b.opts.Capture != nil {
			if err := b.opts.Capture.Record(rawlog.DirIn, chunk); err != nil {
				util.Warn("bridge %s: capture write: %v", b.cfg.ID, err)
			}
		}
		if b.opts.SubmitFrames {
			frames := b.dec.Feed(chunk)
			for _, f := range frames {
				go b.forwardFrame(f)
			}
		} else {
			go b.forwardChunk(chunk)
		}
	}
}

// reconnectDelays precomputes the backoff schedule: base doubled per attempt
// and clamped at max.
func reconnectDelays(base, max time.Duration, attempts int) []time.Duration {
	bo := &backoff.Backoff{Min: base, Max: max, Factor: 2}
	delays := make([]time.Duration, attempts)
	for i := range delays {
		delays[i] = bo.ForAttempt(float64(i))
	}
	return delays
}

// reconnect redials the link with exponential backoff. It returns
// ErrReconnectExhausted once the attempt budget is spent, or early when the
// bridge is stopped mid-sleep.
func (b *Bridge) reconnect() (ChunkSource, error) {
	delays := reconnectDelays(
		time.Duration(b.cfg.ReconnectBaseMs)*time.Millisecond,
		time.Duration(b.cfg.ReconnectCapMs)*time.Millisecond,
		b.cfg.ReconnectMaxAttempts,
	)
	for attempt, delay := range delays {
		util.Info("bridge %s: reconnect attempt %d/%d in %s",
			b.cfg.ID, attempt+1, b.cfg.ReconnectMaxAttempts, delay)
		select {
		case <-b.stop:
			return nil, errors.New("bridge stopped")
		case <-time.After(delay):
		}
		link, err := b.dial()
		if err == nil {
			return link, nil
		}
		util.Warn("bridge %s: reconnect attempt %d failed: %v", b.cfg.ID, attempt+1, err)
	}
	return nil, ErrReconnectExhausted
}

// forwardChunk posts one raw chunk to the ingest endpoint. Failures count,
// nothing retries: sustained loss shows up in the status report only.
func (b *Bridge) forwardChunk(chunk []byte) {
	body, err := json.Marshal(model.IngestRequest{
		BridgeID:   b.cfg.ID,
		Data:       chunk,
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		b.status.AddError()
		return
	}
	b.post("/api/ingest", body)
}

// forwardFrame posts one decoded frame to the structured endpoint.
func (b *Bridge) forwardFrame(f mavlink.Frame) {
	body, err := json.Marshal(model.FrameRecord{
		SystemID:    f.SystemID,
		ComponentID: f.ComponentID,
		MessageID:   f.MessageID,
		Sequence:    f.Sequence,
		Payload:     f.Payload,
		Timestamp:   f.ReceivedAt.UTC(),
	})
	if err != nil {
		b.status.AddError()
		return
	}
	b.post("/api/frames", body)
}

func (b *Bridge) post(path string, body []byte) {
	resp, err := b.client.Post(b.cfg.RemoteURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		b.status.AddError()
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		b.status.AddError()
	}
}

// statusLoop logs and reports cumulative counters at a fixed interval.
func (b *Bridge) statusLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.opts.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			report := b.status.Report(b.cfg.ID)
			util.Info("bridge %s: state=%s in=%dB out=%dB errors=%d uptime=%.0fs",
				report.BridgeID, report.State, report.BytesIn, report.BytesOut,
				report.ErrorCount, report.Uptime)
			body, err := json.Marshal(report)
			if err == nil {
				go b.post("/api/status", body)
			}
		}
	}
}

// commandLoop keeps a live websocket session to the ground server and writes
// relayed command frames out the hardware link. Unexpected session drops
// reconnect with the same backoff policy as the link; a manual Stop does not.
func (b *Bridge) commandLoop() {
	defer b.wg.Done()
	wsURL, err := commandURL(b.cfg.RemoteURL)
	if err != nil {
		util.Error("bridge %s: command session disabled: %v", b.cfg.ID, err)
		return
	}

	bo := &backoff.Backoff{
		Min:    time.Duration(b.cfg.ReconnectBaseMs) * time.Millisecond,
		Max:    time.Duration(b.cfg.ReconnectCapMs) * time.Millisecond,
		Factor: 2,
	}
	attempts := 0
	for {
		conn, err := b.dialCommands(wsURL)
		if err == nil {
			bo.Reset()
			attempts = 0
			err = b.consumeCommands(conn)
		}
		if b.stopped() {
			return
		}
		util.Warn("bridge %s: command session dropped: %v", b.cfg.ID, err)

		attempts++
		if attempts > b.cfg.ReconnectMaxAttempts {
			util.Error("bridge %s: command session permanently down: %v",
				b.cfg.ID, ErrReconnectExhausted)
			return
		}
		select {
		case <-b.stop:
			return
		case <-time.After(bo.Duration()):
		}
	}
}

func (b *Bridge) dialCommands(wsURL string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		return nil, err
	}
	hello := model.ClientMessage{Type: model.ClientHello, Role: model.RoleBridge, Name: b.cfg.ID}
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return nil, err
	}
	b.mu.Lock()
	b.wsConn = conn
	b.mu.Unlock()
	if b.stopped() {
		// Stop ran between dialing and registering the conn; close it here
		// since Stop can no longer see it.
		_ = conn.Close()
		return nil, errors.New("bridge stopped")
	}
	return conn, nil
}

func (b *Bridge) consumeCommands(conn *websocket.Conn) error {
	defer func() { _ = conn.Close() }()
	for {
		var ev model.ServerEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return err
		}
		if ev.Type != model.EventCommandRaw || len(ev.Data) == 0 {
			continue
		}
		link := b.currentLink()
		if link == nil {
			continue
		}
		n, err := link.Write(ev.Data)
		if err != nil {
			b.status.AddError()
			util.Warn("bridge %s: command write failed: %v", b.cfg.ID, err)
			continue
		}
		b.status.AddOut(n)
		if b.opts.Capture != nil {
			_ = b.opts.Capture.Record(rawlog.DirOut, ev.Data)
		}
	}
}

// commandURL turns the configured HTTP(S) base URL into the websocket
// endpoint for the live session.
func commandURL(remote string) (string, error) {
	u, err := url.Parse(remote)
	if err != nil {
		return "", fmt.Errorf("invalid remote URL %q: %w", remote, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported remote scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}
