package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"comunitarr/internal/chatsim"
	"comunitarr/internal/logger"
	"comunitarr/internal/models"
	"comunitarr/internal/repository"
	"comunitarr/internal/repository/memstore"
	"comunitarr/pkg/auth"
)

var (
	_ ForumStore        = (*memstore.Store)(nil)
	_ AnnouncementStore = (*memstore.Store)(nil)
	_ IncidentStore     = (*memstore.Store)(nil)
	_ UserStore         = (*memstore.Store)(nil)
	_ NotificationStore = (*memstore.Store)(nil)
	_ CatalogStore      = (*memstore.Store)(nil)
	_ OrderStore        = (*memstore.Store)(nil)

	_ ForumStore        = (*repository.Mongo)(nil)
	_ AnnouncementStore = (*repository.Mongo)(nil)
	_ IncidentStore     = (*repository.Mongo)(nil)
	_ UserStore         = (*repository.Mongo)(nil)
	_ NotificationStore = (*repository.Mongo)(nil)
	_ CatalogStore      = (*repository.Mongo)(nil)
	_ OrderStore        = (*repository.Mongo)(nil)
)

const barrio = "serrallo"

type fakeHub struct {
	mu       sync.Mutex
	messages []*models.ForumMessage
	typing   []models.TypingIndicator
}

func (h *fakeHub) PublishMessage(_ models.RoomKey, msg *models.ForumMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
}

func (h *fakeHub) PublishTyping(_ models.RoomKey, t models.TypingIndicator) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.typing = append(h.typing, t)
}

func (h *fakeHub) published() []*models.ForumMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*models.ForumMessage(nil), h.messages...)
}

type fakeSim struct {
	handled []chatsim.Message
}

func (f *fakeSim) Handle(msg chatsim.Message) {
	f.handled = append(f.handled, msg)
}

type fixture struct {
	store  *memstore.Store
	points *PointsService
	clock  time.Time
}

func newFixture() *fixture {
	store := memstore.New()
	return &fixture{
		store:  store,
		points: NewPointsService(store, logger.Discard()),
		clock:  time.Date(2024, 9, 23, 10, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) now() time.Time { return f.clock }

func (f *fixture) user(name string, role models.UserRole) auth.Identity {
	u := f.store.AddUser(models.User{DisplayName: name, Neighborhood: barrio, Role: string(role)})
	return auth.Identity{UserID: u.ID, Name: name, Neighborhood: barrio, Role: string(role)}
}

func (f *fixture) profile(t *testing.T, id primitive.ObjectID) *models.User {
	t.Helper()
	u, err := f.store.FindUserByID(context.Background(), id)
	if err != nil {
		t.Fatalf("user %s: %v", id.Hex(), err)
	}
	return u
}
