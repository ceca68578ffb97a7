package core

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"mavbridge/internal/hub"
	"mavbridge/internal/mavlink"
	"mavbridge/internal/model"
	"mavbridge/internal/util"
)

const helloTimeout = 10 * time.Second

// handleWS upgrades a subscriber connection and runs its session. Every
// session gets its own hub subscription and its own writer goroutine, so one
// slow consumer never degrades another.
func (g *GroundServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	g.runSession(conn)
}

func (g *GroundServer) runSession(conn *websocket.Conn) {
	defer func() { _ = conn.Close() }()

	// The first message is the identity handshake. A missing or malformed
	// hello defaults the session to a plain viewer.
	role, name := model.RoleViewer, conn.RemoteAddr().String()
	_ = conn.SetReadDeadline(time.Now().Add(helloTimeout))
	var helloMsg model.ClientMessage
	if err := conn.ReadJSON(&helloMsg); err != nil {
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	if helloMsg.Type == model.ClientHello {
		if helloMsg.Role == model.RoleBridge {
			role = model.RoleBridge
		}
		if helloMsg.Name != "" {
			name = helloMsg.Name
		}
	}
	util.Info("subscriber connected: %s (%s)", name, role)
	defer util.Info("subscriber disconnected: %s (%s)", name, role)

	events, cancel := g.events.Subscribe(hub.DefaultBuffer)
	defer cancel()
	direct := make(chan model.ServerEvent, 4)

	// Writer: single goroutine owns all writes on this conn. Exits when the
	// subscription is cancelled or the write path breaks.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if !wantsEvent(role, ev.Type) {
					continue
				}
				if err := conn.WriteJSON(ev); err != nil {
					_ = conn.Close()
					return
				}
			case ev := <-direct:
				if err := conn.WriteJSON(ev); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	// Reader: handles snapshot requests and command submissions until the
	// peer goes away.
	for {
		var msg model.ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case model.ClientSnapshotRequest:
			ev := model.ServerEvent{Type: model.EventSnapshot, Vehicles: g.fleet.Snapshot()}
			select {
			case direct <- ev:
			default: // subscriber is not draining; it can re-request
			}
		case model.ClientCommand:
			g.dispatchCommand(name, msg)
		}
	}
	cancel()
	<-writerDone
}

// wantsEvent filters the shared event stream per role: bridges only care
// about command frames to relay, viewers get everything else.
func wantsEvent(role, eventType string) bool {
	if role == model.RoleBridge {
		return eventType == model.EventCommandRaw
	}
	return eventType != model.EventCommandRaw
}

// dispatchCommand encodes a named command into a wire frame and publishes it
// for bridge sessions to relay, mirroring it to viewers as a raw-out event.
func (g *GroundServer) dispatchCommand(from string, msg model.ClientMessage) {
	frame, err := g.encodeCommand(msg)
	if err != nil {
		util.Warn("command from %s rejected: %v", from, err)
		return
	}
	util.Info("command %s for vehicle %d from %s", msg.Command, msg.SystemID, from)
	g.events.Publish(model.ServerEvent{Type: model.EventCommandRaw, SystemID: msg.SystemID, Data: frame})
	g.events.Publish(model.ServerEvent{Type: model.EventRawOut, SystemID: msg.SystemID, Data: frame})
}

// encodeCommand maps the websocket command vocabulary onto COMMAND_LONG
// frames addressed to the target vehicle.
func (g *GroundServer) encodeCommand(msg model.ClientMessage) ([]byte, error) {
	cl := mavlink.CommandLong{
		TargetSystem:    msg.SystemID,
		TargetComponent: 1,
	}
	switch msg.Command {
	case model.CommandArm:
		cl.Command = mavlink.CmdComponentArmDisarm
		cl.Params[0] = 1
	case model.CommandDisarm:
		cl.Command = mavlink.CmdComponentArmDisarm
		cl.Params[0] = 0
	case model.CommandTakeoff:
		cl.Command = mavlink.CmdNavTakeoff
		cl.Params[6] = float32(msg.Params["altitude"])
	case model.CommandSetMode:
		cl.Command = mavlink.CmdDoSetMode
		cl.Params[0] = 1 // custom mode enabled
		cl.Params[1] = float32(msg.Params["mode"])
	default:
		return nil, fmt.Errorf("unknown command %q", msg.Command)
	}
	return g.enc.BuildV2(mavlink.MsgCommandLong, mavlink.EncodeCommandLong(cl)), nil
}
