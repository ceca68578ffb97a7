package core

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mavbridge/internal/mavlink"
	"mavbridge/internal/model"
)

func testServer(t *testing.T) (*GroundServer, *httptest.Server) {
	t.Helper()
	g := NewGroundServer(":0", 5*time.Second)
	ts := httptest.NewServer(g.Handler())
	t.Cleanup(ts.Close)
	return g, ts
}

func postJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// heartbeatChunk builds one armed GUIDED-mode V1 heartbeat frame; the
// encoder stamps the system id, which is what the aggregator keys on.
func heartbeatChunk(t *testing.T, systemID uint8) []byte {
	t.Helper()
	enc := mavlink.NewEncoder(systemID, 1)
	hb := mavlink.EncodeHeartbeat(mavlink.Heartbeat{CustomMode: 4, BaseMode: 0x80})
	return enc.BuildV1(mavlink.MsgHeartbeat, hb)
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := testServer(t)
	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIngestUpdatesFleetSnapshot(t *testing.T) {
	g, ts := testServer(t)

	chunk := heartbeatChunk(t, 7)
	resp := postJSON(t, ts.URL+"/api/ingest", model.IngestRequest{BridgeID: "b1", Data: chunk})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	snap := g.Fleet().Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, uint8(7), snap[0].SystemID)
	assert.True(t, snap[0].Connected)
	assert.True(t, snap[0].Armed)
	assert.Equal(t, "GUIDED", snap[0].FlightMode)
}

func TestIngestChunkSplitAcrossPosts(t *testing.T) {
	g, ts := testServer(t)

	chunk := heartbeatChunk(t, 3)
	split := len(chunk) / 2
	postJSON(t, ts.URL+"/api/ingest", model.IngestRequest{BridgeID: "b1", Data: chunk[:split]})
	assert.Empty(t, g.Fleet().Snapshot())

	postJSON(t, ts.URL+"/api/ingest", model.IngestRequest{BridgeID: "b1", Data: chunk[split:]})
	snap := g.Fleet().Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, uint8(3), snap[0].SystemID)
}

func TestIngestOctetStream(t *testing.T) {
	g, ts := testServer(t)

	chunk := heartbeatChunk(t, 9)
	resp, err := http.Post(ts.URL+"/api/ingest?bridge=b2", "application/octet-stream", bytes.NewReader(chunk))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Len(t, g.Fleet().Snapshot(), 1)
}

func TestIngestRejectsGarbageBody(t *testing.T) {
	_, ts := testServer(t)
	resp, err := http.Post(ts.URL+"/api/ingest", "application/json", strings.NewReader("not json"))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFramesEndpoint(t *testing.T) {
	g, ts := testServer(t)

	rec := model.FrameRecord{
		SystemID:  5,
		MessageID: mavlink.MsgHeartbeat,
		Payload:   mavlink.EncodeHeartbeat(mavlink.Heartbeat{CustomMode: 6}),
		Timestamp: time.Now(),
	}
	resp := postJSON(t, ts.URL+"/api/frames", rec)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	st, ok := g.Fleet().Vehicle(5)
	require.True(t, ok)
	assert.Equal(t, "RTL", st.FlightMode)
}

func TestVehiclesEndpoint(t *testing.T) {
	_, ts := testServer(t)
	postJSON(t, ts.URL+"/api/ingest", model.IngestRequest{BridgeID: "b1", Data: heartbeatChunk(t, 1)})

	resp, err := http.Get(ts.URL + "/api/vehicles")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	var states []model.VehicleState
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&states))
	require.Len(t, states, 1)
	assert.Equal(t, uint8(1), states[0].SystemID)
}

func dialWS(t *testing.T, ts *httptest.Server, role, name string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.WriteJSON(model.ClientMessage{Type: model.ClientHello, Role: role, Name: name}))
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) model.ServerEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ev model.ServerEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestViewerSnapshotReflectsMergedUpdates(t *testing.T) {
	_, ts := testServer(t)

	// Three updates land before the subscriber ever connects.
	enc := mavlink.NewEncoder(2, 1)
	hb := enc.BuildV1(mavlink.MsgHeartbeat, mavlink.EncodeHeartbeat(mavlink.Heartbeat{CustomMode: 5}))
	gp := enc.BuildV1(mavlink.MsgGlobalPositionInt, mavlink.EncodeGlobalPosition(mavlink.GlobalPosition{Lat: 100000000}))
	var bat mavlink.BatteryStatus
	bat.Remaining = 42
	bs := enc.BuildV1(mavlink.MsgBatteryStatus, mavlink.EncodeBatteryStatus(bat))
	for _, chunk := range [][]byte{hb, gp, bs} {
		postJSON(t, ts.URL+"/api/ingest", model.IngestRequest{BridgeID: "b1", Data: chunk})
	}

	conn := dialWS(t, ts, model.RoleViewer, "dashboard")
	require.NoError(t, conn.WriteJSON(model.ClientMessage{Type: model.ClientSnapshotRequest}))

	ev := readEvent(t, conn)
	require.Equal(t, model.EventSnapshot, ev.Type)
	require.Len(t, ev.Vehicles, 1)
	st := ev.Vehicles[0]
	assert.True(t, st.Connected)
	assert.Equal(t, "LOITER", st.FlightMode)
	assert.InDelta(t, 10.0, st.Position.Lat, 1e-9)
	assert.Equal(t, 42, st.Battery.RemainingPercent)
}

func TestViewerReceivesIncrementalEvents(t *testing.T) {
	_, ts := testServer(t)
	conn := dialWS(t, ts, model.RoleViewer, "dashboard")

	// Give the session a moment to subscribe before publishing.
	time.Sleep(100 * time.Millisecond)
	postJSON(t, ts.URL+"/api/ingest", model.IngestRequest{BridgeID: "b1", Data: heartbeatChunk(t, 4)})

	raw := readEvent(t, conn)
	assert.Equal(t, model.EventRawIn, raw.Type)
	assert.NotEmpty(t, raw.Data)

	up := readEvent(t, conn)
	assert.Equal(t, model.EventVehicle, up.Type)
	require.NotNil(t, up.Vehicle)
	assert.Equal(t, uint8(4), up.Vehicle.SystemID)
}

func TestCommandRoutesToBridgeSession(t *testing.T) {
	_, ts := testServer(t)
	bridgeConn := dialWS(t, ts, model.RoleBridge, "b1")
	viewerConn := dialWS(t, ts, model.RoleViewer, "dashboard")

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, viewerConn.WriteJSON(model.ClientMessage{
		Type:     model.ClientCommand,
		SystemID: 6,
		Command:  model.CommandTakeoff,
		Params:   map[string]float64{"altitude": 25},
	}))

	ev := readEvent(t, bridgeConn)
	require.Equal(t, model.EventCommandRaw, ev.Type)
	assert.Equal(t, uint8(6), ev.SystemID)

	// The payload is a real V2 COMMAND_LONG frame addressed to the target.
	frames := mavlink.NewDecoder().Feed(ev.Data)
	require.Len(t, frames, 1)
	assert.Equal(t, uint32(mavlink.MsgCommandLong), frames[0].MessageID)
	cl, err := mavlink.DecodeCommandLong(frames[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, uint16(mavlink.CmdNavTakeoff), cl.Command)
	assert.Equal(t, uint8(6), cl.TargetSystem)
	assert.InDelta(t, 25.0, float64(cl.Params[6]), 1e-6)

	// The viewer sees the outbound frame mirrored as a raw event.
	out := readEvent(t, viewerConn)
	assert.Equal(t, model.EventRawOut, out.Type)
	assert.Equal(t, ev.Data, out.Data)
}

func TestStatusEndpointBroadcasts(t *testing.T) {
	_, ts := testServer(t)
	conn := dialWS(t, ts, model.RoleViewer, "dashboard")
	time.Sleep(100 * time.Millisecond)

	resp := postJSON(t, ts.URL+"/api/status", model.BridgeStatus{BridgeID: "b1", State: "connected", BytesIn: 10})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	ev := readEvent(t, conn)
	require.Equal(t, model.EventBridgeStatus, ev.Type)
	require.NotNil(t, ev.Status)
	assert.Equal(t, "b1", ev.Status.BridgeID)
	assert.Equal(t, uint64(10), ev.Status.BytesIn)
}
