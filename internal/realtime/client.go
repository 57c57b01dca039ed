package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"comunitarr/internal/models"
	"comunitarr/pkg/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Inbound frame types.
const (
	FrameSendMessage = "send_message"
	FrameTyping      = "typing"
	FramePing        = "ping"
)

// Frame is a message received from a subscriber.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type SendRequest struct {
	Content  string `json:"content"`
	Kind     string `json:"kind"`
	MediaURL string `json:"media_url"`
	ClientID string `json:"client_id"`
}

// Sender posts messages received over a socket through the regular forum path.
type Sender interface {
	SendFromSocket(ctx context.Context, who auth.Identity, key models.RoomKey, req SendRequest) error
}

func NewUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed["*"] || allowed[origin]
		},
	}
}

type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	identity  auth.Identity
	senderID  string
	name      string
	key       models.RoomKey
	delivered *idRing
	sender    Sender
}

func newClient(hub *Hub, conn *websocket.Conn, who auth.Identity, key models.RoomKey, sender Sender) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		identity:  who,
		senderID:  who.UserID.Hex(),
		name:      who.Name,
		key:       key,
		delivered: newIDRing(512),
		sender:    sender,
	}
}

// Serve subscribes conn to the room and pumps frames until either side closes.
func (h *Hub) Serve(conn *websocket.Conn, who auth.Identity, key models.RoomKey, sender Sender) {
	client := newClient(h, conn, who, key, sender)
	if !h.subscribe(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (h *Hub) subscribe(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unsubscribe(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unsubscribe(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).Warn("websocket read error")
			}
			return
		}
		c.handle(frame)
	}
}

func (c *Client) handle(frame Frame) {
	switch frame.Type {
	case FrameSendMessage:
		var req SendRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil || req.Content == "" {
			c.reply(Event{Type: EventError, Data: map[string]string{"error": "Invalid message payload"}})
			return
		}
		if c.sender == nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := c.sender.SendFromSocket(ctx, c.identity, c.key, req); err != nil {
			c.hub.log.WithError(err).WithFields(logrus.Fields{"user_id": c.senderID, "room": c.key.String()}).Warn("failed to post socket message")
			c.reply(Event{Type: EventError, Data: map[string]string{"error": "Message rejected"}})
		}

	case FrameTyping:
		c.hub.PublishTyping(c.key, models.TypingIndicator{SenderID: c.senderID, Name: c.name})

	case FramePing:
		c.reply(Event{Type: EventPong})
	}
}

// reply writes directly to this client, bypassing the room broadcast.
func (c *Client) reply(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	c.hub.mutex.RLock()
	defer c.hub.mutex.RUnlock()
	if !c.hub.clients[c.key][c] {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// one frame per event, clients parse JSON per message
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// idRing remembers the last n message ids delivered to a client.
type idRing struct {
	ids  []string
	seen map[string]struct{}
	next int
}

func newIDRing(n int) *idRing {
	return &idRing{ids: make([]string, n), seen: make(map[string]struct{}, n)}
}

// add records id and reports false if it was already present.
func (r *idRing) add(id string) bool {
	if _, ok := r.seen[id]; ok {
		return false
	}
	if old := r.ids[r.next]; old != "" {
		delete(r.seen, old)
	}
	r.ids[r.next] = id
	r.seen[id] = struct{}{}
	r.next = (r.next + 1) % len(r.ids)
	return true
}
