// internal/relay/relay.go
package relay

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/webdarts/signaling-service/internal/tracker"
)

// Message is a JSON-ready signaling event.
type Message = map[string]interface{}

// Client is the send side of one live connection. Messages are queued on
// OutChan and drained by the connection's write pump.
type Client struct {
	ID      string
	OutChan chan Message
}

// write queues msg without blocking. Reports false when the channel is full
// or closed for sending.
func (c *Client) write(msg Message) bool {
	select {
	case c.OutChan <- msg:
		return true
	default:
		return false
	}
}

// Relay routes WebRTC handshake messages between connections. Targeted
// delivery is room-scoped: a message only reaches its target when sender and
// target are tracked in the same room, otherwise it is dropped silently.
// Delivery is fire-and-forget; there are no acknowledgments.
type Relay struct {
	mu      sync.Mutex
	clients map[string]*Client
	tracker *tracker.Tracker
	logger  *logrus.Logger
}

func New(tr *tracker.Tracker, logger *logrus.Logger) *Relay {
	return &Relay{
		clients: make(map[string]*Client),
		tracker: tr,
		logger:  logger,
	}
}

// Attach registers a connection's send side and returns its client.
func (r *Relay) Attach(connID string, buffer int) *Client {
	client := &Client{
		ID:      connID,
		OutChan: make(chan Message, buffer),
	}
	r.mu.Lock()
	r.clients[connID] = client
	r.mu.Unlock()
	return client
}

// Detach removes the client, stopping further delivery. The out channel is
// left open so concurrent sends racing the detach cannot panic; the write
// pump exits through its context instead.
func (r *Relay) Detach(connID string) {
	r.mu.Lock()
	delete(r.clients, connID)
	r.mu.Unlock()
}

func (r *Relay) client(connID string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[connID]
	return c, ok
}

// Send delivers a server-originated event directly to one connection,
// bypassing the room-scope check.
func (r *Relay) Send(connID, kind string, payload Message) {
	client, ok := r.client(connID)
	if !ok {
		r.logger.WithFields(logrus.Fields{"kind": kind, "target": connID}).
			Debug("send to unknown connection dropped")
		return
	}
	if !client.write(envelope(kind, "", payload)) {
		r.logger.WithFields(logrus.Fields{"kind": kind, "target": connID}).
			Warn("send queue full, message dropped")
	}
}

// Relay delivers a peer-to-peer signaling message to target, tagged with the
// sender's connection id. The message is dropped, not errored, when the
// target is unknown or sits in a different room: that covers both cross-room
// injection attempts and the race where the target already left.
func (r *Relay) Relay(kind, from, target string, payload Message) {
	fromRoom, fromTracked := r.tracker.RoomOf(from)
	targetRoom, targetTracked := r.tracker.RoomOf(target)
	if !fromTracked || !targetTracked || fromRoom != targetRoom {
		r.logger.WithFields(logrus.Fields{
			"kind":   kind,
			"from":   from,
			"target": target,
		}).Info("relay dropped: target not in sender's room")
		return
	}

	client, ok := r.client(target)
	if !ok {
		r.logger.WithFields(logrus.Fields{"kind": kind, "target": target}).
			Info("relay dropped: target has no live client")
		return
	}
	if !client.write(envelope(kind, from, payload)) {
		r.logger.WithFields(logrus.Fields{"kind": kind, "target": target}).
			Warn("relay queue full, message dropped")
	}
}

// Broadcast fans a message out to every tracked connection in the room
// except from (pass "" to reach everyone).
func (r *Relay) Broadcast(roomID, from, kind string, payload Message) {
	for _, p := range r.tracker.Participants(roomID, from) {
		client, ok := r.client(p.ID)
		if !ok {
			continue
		}
		if !client.write(envelope(kind, from, payload)) {
			r.logger.WithFields(logrus.Fields{"kind": kind, "target": p.ID}).
				Warn("broadcast queue full, message dropped")
		}
	}
}

func envelope(kind, from string, payload Message) Message {
	msg := Message{"type": kind}
	if from != "" {
		msg["from"] = from
	}
	for k, v := range payload {
		if k == "type" || k == "from" {
			continue
		}
		msg[k] = v
	}
	return msg
}
