package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/goleak"

	"comunitarr/internal/logger"
	"comunitarr/internal/models"
	"comunitarr/pkg/auth"
)

var room = models.RoomKey{Neighborhood: "serrallo", Room: "general"}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func identity(name string) auth.Identity {
	return auth.Identity{UserID: primitive.NewObjectID(), Name: name, Neighborhood: room.Neighborhood, Role: "USER"}
}

func subscribe(t *testing.T, h *Hub, who auth.Identity, key models.RoomKey) *Client {
	t.Helper()
	c := newClient(h, nil, who, key, nil)
	require.True(t, h.subscribe(c))
	require.Eventually(t, func() bool {
		h.mutex.RLock()
		defer h.mutex.RUnlock()
		return h.clients[key][c]
	}, time.Second, time.Millisecond)
	return c
}

func next(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case payload := <-c.send:
		var ev Event
		require.NoError(t, json.Unmarshal(payload, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return Event{}
	}
}

func quiet(t *testing.T, c *Client) {
	t.Helper()
	select {
	case payload := <-c.send:
		t.Fatalf("unexpected event %s", payload)
	case <-time.After(30 * time.Millisecond):
	}
}

func message(from auth.Identity, content string) *models.ForumMessage {
	return &models.ForumMessage{
		ID:           primitive.NewObjectID(),
		ClientID:     primitive.NewObjectID().Hex(),
		Neighborhood: room.Neighborhood,
		Room:         room.Room,
		UserID:       from.UserID,
		AuthorName:   from.Name,
		Content:      content,
		Kind:         models.MessageKindText,
		CreatedAt:    time.Now(),
	}
}

func TestMessageAlerts(t *testing.T) {
	h := startHub(t)
	marta, joan := identity("Marta Soler"), identity("Joan")
	mc := subscribe(t, h, marta, room)
	jc := subscribe(t, h, joan, room)

	h.PublishMessage(room, message(marta, "Hola @joan, ¿vienes?"))

	own := next(t, mc)
	assert.Equal(t, EventMessage, own.Type)
	assert.Nil(t, own.Alert, "no alert for own message")

	other := next(t, jc)
	require.NotNil(t, other.Alert)
	assert.True(t, other.Alert.Sound)
	assert.True(t, other.Alert.Vibrate)

	h.PublishMessage(room, message(joan, "Claro"))
	got := next(t, mc)
	require.NotNil(t, got.Alert)
	assert.True(t, got.Alert.Sound)
	assert.False(t, got.Alert.Vibrate)
	next(t, jc)
}

func TestMessageDeliveredOnce(t *testing.T) {
	h := startHub(t)
	c := subscribe(t, h, identity("Marta"), room)

	msg := message(identity("Joan"), "hola")
	h.PublishMessage(room, msg)
	h.PublishMessage(room, msg)

	next(t, c)
	quiet(t, c)
}

func TestRoomsAreIsolated(t *testing.T) {
	h := startHub(t)
	other := models.RoomKey{Neighborhood: "eixample", Room: "general"}
	a := subscribe(t, h, identity("Marta"), room)
	b := subscribe(t, h, identity("Joan"), other)

	h.PublishMessage(room, message(identity("Pau"), "hola"))
	next(t, a)
	quiet(t, b)
}

func TestTypingSkipsSender(t *testing.T) {
	h := startHub(t)
	marta := identity("Marta")
	mc := subscribe(t, h, marta, room)
	jc := subscribe(t, h, identity("Joan"), room)

	h.PublishTyping(room, models.TypingIndicator{SenderID: marta.UserID.Hex(), Name: "Marta"})
	ev := next(t, jc)
	assert.Equal(t, EventTyping, ev.Type)
	assert.Nil(t, ev.Alert)
	quiet(t, mc)

	h.PublishTyping(room, models.TypingIndicator{SenderID: "persona:pere", Name: "Pere", IsVirtual: true})
	next(t, mc)
	next(t, jc)
}

func TestSlowConsumerIsDropped(t *testing.T) {
	h := startHub(t)
	c := subscribe(t, h, identity("Marta"), room)

	i := 0
	require.Eventually(t, func() bool {
		for ; i <= sendBuffer; i++ {
			h.PublishSystem(room, i)
		}
		h.PublishSystem(room, i)
		return h.ConnectionsCount() == 0
	}, time.Second, time.Millisecond)
	n := 0
	for range c.send {
		n++
	}
	assert.Equal(t, sendBuffer, n)
}

func TestUnsubscribe(t *testing.T) {
	h := startHub(t)
	c := subscribe(t, h, identity("Marta"), room)
	assert.Equal(t, 1, h.ConnectionsCount())

	h.unsubscribe(c)
	require.Eventually(t, func() bool { return h.ConnectionsCount() == 0 }, time.Second, time.Millisecond)
	_, open := <-c.send
	assert.False(t, open)
}

func TestMentions(t *testing.T) {
	tests := []struct {
		content string
		name    string
		want    bool
	}{
		{"@marta mira esto", "Marta", true},
		{"hola @MARTA!", "Marta Soler", true},
		{"hola @martina", "Marta", false},
		{"@martina y @marta", "Marta", true},
		{"hola marta", "Marta", false},
		{"@núria", "Núria", true},
		{"@marta", "", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mentions(tt.content, tt.name), tt.content)
	}
}

type recordingSender struct {
	mu   sync.Mutex
	reqs []SendRequest
	hub  *Hub
	who  auth.Identity
}

func (s *recordingSender) SendFromSocket(_ context.Context, who auth.Identity, key models.RoomKey, req SendRequest) error {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()

	msg := message(who, req.Content)
	msg.ClientID = req.ClientID
	s.hub.PublishMessage(key, msg)
	return nil
}

func TestServeOverWebsocket(t *testing.T) {
	h := startHub(t)
	who := identity("Marta")
	sender := &recordingSender{hub: h}
	upgrader := NewUpgrader([]string{"*"})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.Serve(conn, who, room, sender)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": FramePing}))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventPong, ev.Type)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": FrameSendMessage,
		"data": map[string]string{"content": "bon dia", "client_id": "c-1"},
	}))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventMessage, ev.Type)
	assert.Nil(t, ev.Alert)

	sender.mu.Lock()
	require.Len(t, sender.reqs, 1)
	assert.Equal(t, "c-1", sender.reqs[0].ClientID)
	sender.mu.Unlock()

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": FrameSendMessage, "data": map[string]string{}}))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventError, ev.Type)

	conn.Close()
	require.Eventually(t, func() bool { return h.ConnectionsCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestUnencodableEventIsDroppedForWholeRoom(t *testing.T) {
	h := startHub(t)
	mc := subscribe(t, h, identity("Marta"), room)
	jc := subscribe(t, h, identity("Joan"), room)

	h.PublishSystem(room, map[string]interface{}{"bad": make(chan int)})
	h.PublishSystem(room, map[string]string{"text": "corte de agua"})

	for _, c := range []*Client{mc, jc} {
		ev := next(t, c)
		assert.Equal(t, EventSystem, ev.Type)
		assert.Equal(t, map[string]interface{}{"text": "corte de agua"}, ev.Data)
	}
	assert.Equal(t, 2, h.ConnectionsCount())
}
