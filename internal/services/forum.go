package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"comunitarr/internal/chatsim"
	"comunitarr/internal/models"
	"comunitarr/pkg/auth"
	"comunitarr/pkg/validator"
)

const (
	defaultMessagePage = 50
	maxMessagePage     = 100
	virtualLogSize     = 50
	recentClientIDs    = 1000
)

// MessageSimulator reacts to real forum messages with virtual neighbor replies.
type MessageSimulator interface {
	Handle(msg chatsim.Message)
}

type PostMessageInput struct {
	Room     string `json:"room" binding:"omitempty,slug"`
	Content  string `json:"content" binding:"required,max=1000"`
	Kind     string `json:"kind" binding:"omitempty,oneof=text image link"`
	MediaURL string `json:"media_url" binding:"omitempty,url,max=500"`
	ClientID string `json:"client_id" binding:"omitempty,max=64"`
}

type PostResult struct {
	Message *models.ForumMessage `json:"message"`
	Created bool                 `json:"created"`
	Queued  bool                 `json:"queued"`
}

type ForumService struct {
	store  ForumStore
	points *PointsService
	hub    Broadcaster
	sim    MessageSimulator
	log    *logrus.Entry
	now    func() time.Time

	mu      sync.Mutex
	virtual map[models.RoomKey][]*models.ForumMessage
	seen    map[string]*models.ForumMessage
	seenLog []string
}

func NewForumService(store ForumStore, points *PointsService, hub Broadcaster, log *logrus.Entry) *ForumService {
	return &ForumService{
		store:   store,
		points:  points,
		hub:     hub,
		log:     log,
		now:     time.Now,
		virtual: make(map[models.RoomKey][]*models.ForumMessage),
		seen:    make(map[string]*models.ForumMessage),
	}
}

// SetSimulator attaches the chat simulator; it needs the service as its publisher.
func (s *ForumService) SetSimulator(sim MessageSimulator) {
	s.sim = sim
}

func roomKey(neighborhood, room string) models.RoomKey {
	room = strings.ToLower(strings.TrimSpace(room))
	if room == "" {
		room = models.DefaultRoom
	}
	return models.RoomKey{Neighborhood: neighborhood, Room: room}
}

// PostMessage stores a real message, then fans it out and hands it to the simulator.
// Posting a client id already seen in the room returns the stored message with Created=false.
func (s *ForumService) PostMessage(ctx context.Context, who auth.Identity, in PostMessageInput) (PostResult, error) {
	in.Content = strings.TrimSpace(in.Content)
	in.Room = strings.ToLower(strings.TrimSpace(in.Room))
	if err := validator.Struct(in); err != nil {
		return PostResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if in.Kind == "" {
		in.Kind = models.MessageKindText
	}
	if in.ClientID == "" {
		in.ClientID = uuid.NewString()
	}

	key := roomKey(who.Neighborhood, in.Room)
	if existing, err := s.findDuplicate(ctx, key, in.ClientID); err != nil || existing != nil {
		return PostResult{Message: existing}, err
	}

	msg := &models.ForumMessage{
		ID:           primitive.NewObjectID(),
		ClientID:     in.ClientID,
		Neighborhood: key.Neighborhood,
		Room:         key.Room,
		UserID:       who.UserID,
		AuthorName:   who.Name,
		Content:      in.Content,
		Kind:         in.Kind,
		MediaURL:     in.MediaURL,
		CreatedAt:    s.now().UTC().Truncate(time.Millisecond),
	}

	if !s.claim(key, msg) {
		return PostResult{Message: s.seenMessage(key, msg.ClientID)}, nil
	}

	queued, err := s.store.InsertMessage(ctx, msg)
	if errors.Is(err, models.ErrDuplicate) {
		s.release(key, msg.ClientID)
		existing, ferr := s.store.FindMessageByClientID(ctx, key, msg.ClientID)
		if ferr != nil {
			return PostResult{}, fmt.Errorf("failed to load duplicate message: %w", ferr)
		}
		return PostResult{Message: existing}, nil
	}
	if err != nil {
		s.release(key, msg.ClientID)
		return PostResult{}, fmt.Errorf("failed to store message: %w", err)
	}

	s.points.awardQuietly(ctx, who.UserID, models.ActionForumMessage)
	s.hub.PublishMessage(key, msg)
	if s.sim != nil {
		s.sim.Handle(chatsim.Message{
			ID:         msg.ClientID,
			Key:        key,
			AuthorID:   msg.SenderID(),
			AuthorName: msg.AuthorName,
			Content:    msg.Content,
		})
	}

	return PostResult{Message: msg, Created: true, Queued: queued}, nil
}

func (s *ForumService) findDuplicate(ctx context.Context, key models.RoomKey, clientID string) (*models.ForumMessage, error) {
	if m := s.seenMessage(key, clientID); m != nil {
		return m, nil
	}
	m, err := s.store.FindMessageByClientID(ctx, key, clientID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check client id: %w", err)
	}
	return m, nil
}

func seenKey(key models.RoomKey, clientID string) string {
	return key.String() + "|" + clientID
}

func (s *ForumService) seenMessage(key models.RoomKey, clientID string) *models.ForumMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[seenKey(key, clientID)]
}

// claim records the client id; false means a concurrent post already holds it.
func (s *ForumService) claim(key models.RoomKey, msg *models.ForumMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := seenKey(key, msg.ClientID)
	if _, ok := s.seen[k]; ok {
		return false
	}
	s.seen[k] = msg
	s.seenLog = append(s.seenLog, k)
	if over := len(s.seenLog) - recentClientIDs; over > 0 {
		for _, old := range s.seenLog[:over] {
			delete(s.seen, old)
		}
		s.seenLog = append(s.seenLog[:0], s.seenLog[over:]...)
	}
	return true
}

func (s *ForumService) release(key models.RoomKey, clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, seenKey(key, clientID))
}

// ListMessages returns a page of the room, newest first, with virtual replies merged in.
func (s *ForumService) ListMessages(ctx context.Context, neighborhood, room string, before time.Time, limit int) ([]*models.ForumMessage, error) {
	if limit <= 0 {
		limit = defaultMessagePage
	}
	if limit > maxMessagePage {
		limit = maxMessagePage
	}
	if before.IsZero() {
		before = s.now().Add(time.Second)
	}

	key := roomKey(neighborhood, room)
	stored, err := s.store.ListMessages(ctx, key, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	s.mu.Lock()
	merged := make([]*models.ForumMessage, 0, len(stored)+len(s.virtual[key]))
	merged = append(merged, stored...)
	for _, v := range s.virtual[key] {
		if v.CreatedAt.Before(before) {
			merged = append(merged, v)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func (s *ForumService) DeleteMessage(ctx context.Context, who auth.Identity, id primitive.ObjectID) error {
	msg, err := s.store.FindMessageByID(ctx, id)
	if err != nil {
		return err
	}
	role, _ := models.ParseRole(who.Role)
	if msg.Neighborhood != who.Neighborhood && !role.IsModerator() {
		return ErrNotFound
	}
	if !msg.CanBeDeletedBy(who.UserID, role) {
		return ErrForbidden
	}
	if err := s.store.DeleteMessage(ctx, id); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// PublishTyping shows a virtual neighbor composing a reply.
func (s *ForumService) PublishTyping(key models.RoomKey, p chatsim.Persona) {
	s.hub.PublishTyping(key, models.TypingIndicator{
		SenderID:  "persona:" + p.ID,
		Name:      p.Name,
		IsVirtual: true,
	})
}

// PublishReply delivers a virtual reply and keeps it in the room's in-memory log.
func (s *ForumService) PublishReply(r chatsim.Reply) {
	msg := &models.ForumMessage{
		ID:           primitive.NewObjectID(),
		ClientID:     uuid.NewString(),
		Neighborhood: r.Key.Neighborhood,
		Room:         r.Key.Room,
		AuthorName:   r.Persona.Name,
		AvatarURL:    r.Persona.Avatar,
		Content:      r.Content,
		Kind:         models.MessageKindText,
		IsVirtual:    true,
		PersonaID:    r.Persona.ID,
		CreatedAt:    s.now().UTC().Truncate(time.Millisecond),
	}

	s.mu.Lock()
	log := append(s.virtual[r.Key], msg)
	if over := len(log) - virtualLogSize; over > 0 {
		log = append(log[:0], log[over:]...)
	}
	s.virtual[r.Key] = log
	s.mu.Unlock()

	s.hub.PublishMessage(r.Key, msg)
	s.log.WithFields(logrus.Fields{
		"room":      r.Key.String(),
		"persona":   r.Persona.ID,
		"topic":     r.Topic,
		"sequence":  r.Sequence,
		"generated": r.Generated,
	}).Debug("virtual reply published")
}
