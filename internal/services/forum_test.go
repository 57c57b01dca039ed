package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comunitarr/internal/chatsim"
	"comunitarr/internal/logger"
	"comunitarr/internal/models"
)

func newForum(f *fixture) (*ForumService, *fakeHub, *fakeSim) {
	hub, sim := &fakeHub{}, &fakeSim{}
	svc := NewForumService(f.store, f.points, hub, logger.Discard())
	svc.now = f.now
	svc.SetSimulator(sim)
	return svc, hub, sim
}

func TestPostMessage(t *testing.T) {
	f := newFixture()
	svc, hub, sim := newForum(f)
	marta := f.user("Marta", models.RoleUser)

	res, err := svc.PostMessage(context.Background(), marta, PostMessageInput{Content: "  Bon dia, veïns!  "})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.False(t, res.Queued)
	assert.Equal(t, "Bon dia, veïns!", res.Message.Content)
	assert.Equal(t, models.DefaultRoom, res.Message.Room)
	assert.Equal(t, barrio, res.Message.Neighborhood)
	assert.Equal(t, models.MessageKindText, res.Message.Kind)
	assert.NotEmpty(t, res.Message.ClientID)

	require.Len(t, hub.published(), 1)
	require.Len(t, sim.handled, 1)
	assert.Equal(t, res.Message.ClientID, sim.handled[0].ID)
	assert.Equal(t, "Marta", sim.handled[0].AuthorName)
	assert.Equal(t, 1, f.profile(t, marta.UserID).ComuniPoints)
}

func TestPostMessageIsIdempotentPerClientID(t *testing.T) {
	f := newFixture()
	svc, hub, sim := newForum(f)
	marta := f.user("Marta", models.RoleUser)
	in := PostMessageInput{Content: "hola", ClientID: "c-42", Room: "Fiestas"}

	first, err := svc.PostMessage(context.Background(), marta, in)
	require.NoError(t, err)
	second, err := svc.PostMessage(context.Background(), marta, in)
	require.NoError(t, err)

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, first.Message.ID, second.Message.ID)
	assert.Equal(t, "fiestas", first.Message.Room)
	assert.Len(t, hub.published(), 1)
	assert.Len(t, sim.handled, 1)
	assert.Equal(t, 1, f.profile(t, marta.UserID).ComuniPoints)

	// a fresh service only has the store to go on
	other, _, _ := newForum(f)
	third, err := other.PostMessage(context.Background(), marta, in)
	require.NoError(t, err)
	assert.False(t, third.Created)
	assert.Equal(t, first.Message.ID, third.Message.ID)
}

func TestPostMessageValidation(t *testing.T) {
	f := newFixture()
	svc, _, _ := newForum(f)
	marta := f.user("Marta", models.RoleUser)

	tests := []struct {
		name string
		in   PostMessageInput
	}{
		{"empty", PostMessageInput{Content: "   "}},
		{"too long", PostMessageInput{Content: strings.Repeat("a", 1001)}},
		{"bad kind", PostMessageInput{Content: "hola", Kind: "video"}},
		{"bad room", PostMessageInput{Content: "hola", Room: "sala de estar"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.PostMessage(context.Background(), marta, tt.in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestPostMessageQueuedByOutbox(t *testing.T) {
	f := newFixture()
	f.store.Queued = true
	svc, hub, _ := newForum(f)

	res, err := svc.PostMessage(context.Background(), f.user("Marta", models.RoleUser), PostMessageInput{Content: "hola"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.True(t, res.Queued)
	assert.Len(t, hub.published(), 1)
}

func TestPostMessageStoreFailureReleasesClientID(t *testing.T) {
	f := newFixture()
	svc, hub, _ := newForum(f)
	marta := f.user("Marta", models.RoleUser)
	in := PostMessageInput{Content: "hola", ClientID: "c-1"}

	f.store.FailWith = errors.New("disk full")
	_, err := svc.PostMessage(context.Background(), marta, in)
	require.Error(t, err)
	assert.Empty(t, hub.published())

	f.store.FailWith = nil
	res, err := svc.PostMessage(context.Background(), marta, in)
	require.NoError(t, err)
	assert.True(t, res.Created)
}

func TestListMessagesMergesVirtualReplies(t *testing.T) {
	f := newFixture()
	svc, hub, _ := newForum(f)
	marta := f.user("Marta", models.RoleUser)
	key := models.RoomKey{Neighborhood: barrio, Room: models.DefaultRoom}

	_, err := svc.PostMessage(context.Background(), marta, PostMessageInput{Content: "primero"})
	require.NoError(t, err)

	f.clock = f.clock.Add(time.Minute)
	svc.PublishReply(chatsim.Reply{
		Key:     key,
		Persona: chatsim.Persona{ID: "pere", Name: "Pere"},
		Content: "virtual",
	})

	f.clock = f.clock.Add(time.Minute)
	_, err = svc.PostMessage(context.Background(), marta, PostMessageInput{Content: "segundo"})
	require.NoError(t, err)

	msgs, err := svc.ListMessages(context.Background(), barrio, "", time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "segundo", msgs[0].Content)
	assert.Equal(t, "virtual", msgs[1].Content)
	assert.True(t, msgs[1].IsVirtual)
	assert.Equal(t, "pere", msgs[1].PersonaID)
	assert.Equal(t, "primero", msgs[2].Content)

	page, err := svc.ListMessages(context.Background(), barrio, "general", msgs[0].CreatedAt, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "virtual", page[0].Content)

	published := hub.published()
	assert.True(t, published[1].IsVirtual)
	assert.Equal(t, "persona:pere", published[1].SenderID())

	other, err := svc.ListMessages(context.Background(), "eixample", "general", time.Time{}, 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestVirtualLogIsBounded(t *testing.T) {
	f := newFixture()
	svc, _, _ := newForum(f)
	key := models.RoomKey{Neighborhood: barrio, Room: models.DefaultRoom}

	for i := 0; i < virtualLogSize+10; i++ {
		f.clock = f.clock.Add(time.Second)
		svc.PublishReply(chatsim.Reply{Key: key, Persona: chatsim.Persona{ID: "pere"}, Content: "x"})
	}
	msgs, err := svc.ListMessages(context.Background(), barrio, "", f.clock.Add(time.Hour), maxMessagePage)
	require.NoError(t, err)
	assert.Len(t, msgs, virtualLogSize)
}

func TestPublishTypingMarksVirtual(t *testing.T) {
	f := newFixture()
	svc, hub, _ := newForum(f)

	svc.PublishTyping(models.RoomKey{Neighborhood: barrio, Room: "general"}, chatsim.Persona{ID: "nuria", Name: "Núria"})
	require.Len(t, hub.typing, 1)
	assert.Equal(t, models.TypingIndicator{SenderID: "persona:nuria", Name: "Núria", IsVirtual: true}, hub.typing[0])
}

func TestDeleteMessage(t *testing.T) {
	f := newFixture()
	svc, _, _ := newForum(f)
	marta := f.user("Marta", models.RoleUser)
	joan := f.user("Joan", models.RoleUser)
	mod := f.user("Mod", models.RoleModerator)

	res, err := svc.PostMessage(context.Background(), marta, PostMessageInput{Content: "hola"})
	require.NoError(t, err)
	assert.ErrorIs(t, svc.DeleteMessage(context.Background(), joan, res.Message.ID), ErrForbidden)
	assert.NoError(t, svc.DeleteMessage(context.Background(), marta, res.Message.ID))

	res, err = svc.PostMessage(context.Background(), marta, PostMessageInput{Content: "otra"})
	require.NoError(t, err)
	assert.NoError(t, svc.DeleteMessage(context.Background(), mod, res.Message.ID))
	assert.ErrorIs(t, svc.DeleteMessage(context.Background(), mod, res.Message.ID), ErrNotFound)
}
