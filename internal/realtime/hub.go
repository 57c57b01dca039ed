// Package realtime fans forum events out to websocket subscribers of a room.
package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"comunitarr/internal/models"
)

const (
	EventMessage = "message"
	EventTyping  = "typing"
	EventSystem  = "system"
	EventPong    = "pong"
	EventError   = "error"
)

// Event is the frame written to subscribers.
type Event struct {
	Type  string          `json:"type"`
	Room  *models.RoomKey `json:"room,omitempty"`
	Data  interface{}     `json:"data,omitempty"`
	Alert *Alert          `json:"alert,omitempty"`
}

// Alert tells the client which side effects to play for an event.
type Alert struct {
	Sound   bool `json:"sound"`
	Vibrate bool `json:"vibrate"`
}

type envelope struct {
	key      models.RoomKey
	kind     string
	msgID    string
	senderID string
	content  string
	data     interface{}
}

type Hub struct {
	// Подписчики по комнатам
	clients map[models.RoomKey]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *envelope
	done       chan struct{}

	mutex sync.RWMutex
	log   *logrus.Entry
}

func NewHub(log *logrus.Entry) *Hub {
	return &Hub{
		clients:    make(map[models.RoomKey]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *envelope, 256),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run dispatches events until ctx is cancelled, then closes every subscriber.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for key, clients := range h.clients {
				for client := range clients {
					close(client.send)
				}
				delete(h.clients, key)
			}
			h.mutex.Unlock()
			return nil

		case client := <-h.register:
			h.mutex.Lock()
			if h.clients[client.key] == nil {
				h.clients[client.key] = make(map[*Client]bool)
			}
			h.clients[client.key][client] = true
			h.mutex.Unlock()
			h.log.WithFields(logrus.Fields{"room": client.key.String(), "user_id": client.senderID}).Debug("client subscribed")

		case client := <-h.unregister:
			h.remove(client)
			h.log.WithFields(logrus.Fields{"room": client.key.String(), "user_id": client.senderID}).Debug("client unsubscribed")

		case env := <-h.broadcast:
			h.dispatch(env)
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if clients, ok := h.clients[client.key]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client.send)
			if len(clients) == 0 {
				delete(h.clients, client.key)
			}
		}
	}
}

func (h *Hub) dispatch(env *envelope) {
	h.mutex.RLock()
	targets := make([]*Client, 0, len(h.clients[env.key]))
	for client := range h.clients[env.key] {
		targets = append(targets, client)
	}
	h.mutex.RUnlock()

	var data json.RawMessage
	if env.data != nil {
		var err error
		if data, err = json.Marshal(env.data); err != nil {
			h.log.WithError(err).WithField("room", env.key.String()).Error("failed to marshal event data")
			return
		}
	}

	key := env.key
	for _, client := range targets {
		ev := Event{Type: env.kind, Room: &key}
		if data != nil {
			ev.Data = data
		}

		switch env.kind {
		case EventMessage:
			if env.msgID != "" && !client.delivered.add(env.msgID) {
				continue
			}
			if env.senderID != client.senderID {
				ev.Alert = &Alert{Sound: true, Vibrate: mentions(env.content, client.name)}
			}
		case EventTyping:
			if env.senderID == client.senderID {
				continue
			}
		}

		payload, err := json.Marshal(ev)
		if err != nil {
			h.log.WithError(err).WithField("user_id", client.senderID).Error("failed to marshal event")
			continue
		}

		select {
		case client.send <- payload:
		default:
			// медленный клиент
			h.log.WithField("user_id", client.senderID).Warn("dropping slow websocket client")
			h.remove(client)
		}
	}
}

func (h *Hub) publish(env *envelope) {
	select {
	case h.broadcast <- env:
	case <-h.done:
	default:
		h.log.WithField("room", env.key.String()).Warn("hub backlog full, event dropped")
	}
}

// PublishMessage delivers a real or virtual forum message to the room.
func (h *Hub) PublishMessage(key models.RoomKey, msg *models.ForumMessage) {
	id := msg.ClientID
	if id == "" && !msg.ID.IsZero() {
		id = msg.ID.Hex()
	}
	h.publish(&envelope{
		key:      key,
		kind:     EventMessage,
		msgID:    id,
		senderID: msg.SenderID(),
		content:  msg.Content,
		data:     msg,
	})
}

func (h *Hub) PublishTyping(key models.RoomKey, typing models.TypingIndicator) {
	h.publish(&envelope{key: key, kind: EventTyping, senderID: typing.SenderID, data: typing})
}

func (h *Hub) PublishSystem(key models.RoomKey, data interface{}) {
	h.publish(&envelope{key: key, kind: EventSystem, data: data})
}

func (h *Hub) ConnectionsCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	n := 0
	for _, clients := range h.clients {
		n += len(clients)
	}
	return n
}

// mentions reports whether content addresses name as @name, case-insensitive.
func mentions(content, name string) bool {
	first := strings.Fields(name)
	if len(first) == 0 {
		return false
	}
	handle := "@" + strings.ToLower(first[0])
	text := strings.ToLower(content)

	for i := strings.Index(text, handle); i >= 0; {
		end := i + len(handle)
		if end == len(text) {
			return true
		}
		if r, _ := utf8.DecodeRuneInString(text[end:]); !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return true
		}
		next := strings.Index(text[end:], handle)
		if next < 0 {
			break
		}
		i = end + next
	}
	return false
}
