// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/webdarts/signaling-service/internal/middleware"
	"github.com/webdarts/signaling-service/internal/relay"
)

// wsEvent is the envelope every inbound signaling event arrives in.
type wsEvent struct {
	Type     string          `json:"type"`
	RoomID   string          `json:"roomId,omitempty"`
	Username string          `json:"username,omitempty"`
	IsHost   bool            `json:"isHost,omitempty"`
	Target   string          `json:"targetConnectionId,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// HandleWS upgrades the connection and runs the signaling session until the
// peer disconnects. Each connection gets an opaque id that peers use as the
// relay target.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{"signaling"},
		OriginPatterns: s.cfg.AllowedOrigins,
	})
	if err != nil {
		s.logger.Warnf("websocket accept error: %v", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	if c.Subprotocol() != "signaling" {
		c.Close(BadSubprotocolError, "client must speak the signaling subprotocol")
		return
	}

	connID := uuid.NewString()
	client := s.relay.Attach(connID, 32)
	middleware.LogWebSocketConnect(s.logger, r.RemoteAddr, connID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go s.writePump(ctx, c, client)

	// Hand the client its identity first; everything targeted depends on it.
	s.relay.Send(connID, "connected", relay.Message{"connectionId": connID})

	readErr := s.readPump(ctx, c, connID)

	// Disconnect is an implicit leave. leave is idempotent, so an explicit
	// leave-video-room followed by the socket closing is fine.
	s.leave(context.Background(), connID)
	s.relay.Detach(connID)
	middleware.LogWebSocketDisconnect(s.logger, r.RemoteAddr, connID, readErr)
}

// readPump processes inbound events in arrival order until the connection
// drops. A bad event only poisons itself, never the connection.
func (s *Server) readPump(ctx context.Context, c *websocket.Conn, connID string) error {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return nil
			}
			if strings.Contains(err.Error(), "context canceled") {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		var ev wsEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.logger.WithField("connection", connID).Warnf("invalid event json: %v", err)
			s.relay.Send(connID, "error", relay.Message{"message": "invalid JSON payload"})
			continue
		}
		s.dispatch(ctx, connID, ev)
	}
}

func (s *Server) dispatch(ctx context.Context, connID string, ev wsEvent) {
	switch ev.Type {
	case "join-video-room":
		s.handleJoin(ctx, connID, ev)

	case "webrtc-offer", "webrtc-answer", "webrtc-ice-candidate", "webrtc-signal", "room-pong":
		if ev.Target == "" {
			s.relay.Send(connID, "error", relay.Message{"message": "targetConnectionId is required"})
			return
		}
		s.relay.Relay(ev.Type, connID, ev.Target, relayPayload(ev))

	case "room-ping":
		// Peer discovery: reaches everyone else in the sender's room.
		if roomID, ok := s.tracker.RoomOf(connID); ok {
			s.relay.Broadcast(roomID, connID, "room-ping", relayPayload(ev))
		}

	case "leave-video-room":
		s.leave(ctx, connID)

	default:
		s.logger.WithFields(logrus.Fields{
			"connection": connID,
			"type":       ev.Type,
		}).Warn("unknown event type")
		s.relay.Send(connID, "error", relay.Message{"message": "unknown event type: " + ev.Type})
	}
}

func (s *Server) handleJoin(ctx context.Context, connID string, ev wsEvent) {
	if ev.RoomID == "" {
		s.relay.Send(connID, "error", relay.Message{"message": "roomId is required"})
		return
	}

	prev := s.tracker.RegisterJoin(connID, ev.RoomID, ev.Username, ev.IsHost)
	if prev != nil {
		s.relay.Broadcast(prev.RoomID, connID, "user-left", relay.Message{
			"connectionId": connID,
			"username":     prev.Username,
		})
		s.monitor.OnLeave(ctx, prev.RoomID, connID)
	}

	s.monitor.OnJoin(ctx, ev.RoomID, connID)

	peers := s.tracker.Participants(ev.RoomID, connID)
	users := make([]relay.Message, 0, len(peers))
	for _, p := range peers {
		users = append(users, relay.Message{
			"connectionId": p.ID,
			"username":     p.Username,
			"isHost":       p.IsHost,
		})
	}
	s.relay.Send(connID, "room-users", relay.Message{
		"roomId": ev.RoomID,
		"users":  users,
	})

	s.relay.Broadcast(ev.RoomID, connID, "user-joined", relay.Message{
		"connectionId": connID,
		"username":     ev.Username,
		"isHost":       ev.IsHost,
	})
}

// leave removes the connection from its room, tells the remaining peers, and
// lets the lifecycle monitor tear the room down if it emptied. Safe to call
// more than once per connection.
func (s *Server) leave(ctx context.Context, connID string) {
	info := s.tracker.Unregister(connID)
	if info == nil {
		return
	}
	s.relay.Broadcast(info.RoomID, connID, "user-left", relay.Message{
		"connectionId": connID,
		"username":     info.Username,
	})
	s.monitor.OnLeave(ctx, info.RoomID, connID)
}

func (s *Server) writePump(ctx context.Context, c *websocket.Conn, client *relay.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-client.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Warnf("failed to marshal outgoing msg for %s: %v", client.ID, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// relayPayload lifts the opaque payload out of an inbound event. The server
// never inspects handshake payloads.
func relayPayload(ev wsEvent) relay.Message {
	if len(ev.Payload) == 0 {
		return nil
	}
	return relay.Message{"payload": ev.Payload}
}
