// Package memstore is an in-memory implementation of the service stores,
// used by tests and by the server when started with the memory backend.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"comunitarr/internal/models"
	"comunitarr/internal/utils"
)

type Store struct {
	mu sync.RWMutex

	users         map[primitive.ObjectID]*models.User
	messages      map[primitive.ObjectID]*models.ForumMessage
	announcements map[primitive.ObjectID]*models.Announcement
	incidents     map[primitive.ObjectID]*models.Incident
	notifications map[primitive.ObjectID]*models.Notification
	devices       map[string]*models.DeviceToken
	products      map[primitive.ObjectID]*models.Product
	orders        map[primitive.ObjectID]*models.Order

	// Queued makes inserts behind the fallback outbox report queued=true.
	Queued bool
	// FailWith, when set, is returned by every write.
	FailWith error
}

func New() *Store {
	return &Store{
		users:         make(map[primitive.ObjectID]*models.User),
		messages:      make(map[primitive.ObjectID]*models.ForumMessage),
		announcements: make(map[primitive.ObjectID]*models.Announcement),
		incidents:     make(map[primitive.ObjectID]*models.Incident),
		notifications: make(map[primitive.ObjectID]*models.Notification),
		devices:       make(map[string]*models.DeviceToken),
		products:      make(map[primitive.ObjectID]*models.Product),
		orders:        make(map[primitive.ObjectID]*models.Order),
	}
}

func (s *Store) writeErr() error {
	return s.FailWith
}

func page(n, pg, limit int) (int, int) {
	start := (pg - 1) * limit
	if start > n {
		start = n
	}
	end := start + limit
	if end > n {
		end = n
	}
	return start, end
}

// Users

// AddUser seeds a user and returns it with an id.
func (s *Store) AddUser(u models.User) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	if u.Role == "" {
		u.Role = string(models.RoleUser)
	}
	s.users[u.ID] = &u
	c := u
	return &c
}

func (s *Store) FindUserByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (s *Store) IncrementCounters(_ context.Context, id primitive.ObjectID, points, karma int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr(); err != nil {
		return err
	}
	u, ok := s.users[id]
	if !ok {
		return models.ErrNotFound
	}
	u.ComuniPoints += points
	u.Karma += karma
	return nil
}

func (s *Store) TopUsers(_ context.Context, neighborhood string, limit int) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.User
	for _, u := range s.users {
		if u.Neighborhood == neighborhood && !u.IsBlocked {
			c := *u
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ComuniPoints != out[j].ComuniPoints {
			return out[i].ComuniPoints > out[j].ComuniPoints
		}
		return out[i].Karma > out[j].Karma
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UserIDsInNeighborhood(_ context.Context, neighborhood string) ([]primitive.ObjectID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []primitive.ObjectID
	for _, u := range s.users {
		if u.Neighborhood == neighborhood && !u.IsBlocked {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

// Forum

func (s *Store) InsertMessage(_ context.Context, msg *models.ForumMessage) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr(); err != nil {
		return false, err
	}
	for _, m := range s.messages {
		if m.Neighborhood == msg.Neighborhood && m.Room == msg.Room && m.ClientID == msg.ClientID {
			return false, models.ErrDuplicate
		}
	}
	c := *msg
	s.messages[msg.ID] = &c
	return s.Queued, nil
}

func (s *Store) FindMessageByClientID(_ context.Context, key models.RoomKey, clientID string) (*models.ForumMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages {
		if m.Key() == key && m.ClientID == clientID {
			c := *m
			return &c, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *Store) FindMessageByID(_ context.Context, id primitive.ObjectID) (*models.ForumMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *m
	return &c, nil
}

func (s *Store) ListMessages(_ context.Context, key models.RoomKey, before time.Time, limit int) ([]*models.ForumMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ForumMessage
	for _, m := range s.messages {
		if m.Key() == key && m.CreatedAt.Before(before) {
			c := *m
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) DeleteMessage(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr(); err != nil {
		return err
	}
	if _, ok := s.messages[id]; !ok {
		return models.ErrNotFound
	}
	delete(s.messages, id)
	return nil
}

// Announcements

func (s *Store) InsertAnnouncement(_ context.Context, a *models.Announcement) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr(); err != nil {
		return false, err
	}
	c := *a
	s.announcements[a.ID] = &c
	return s.Queued, nil
}

func (s *Store) FindAnnouncementByID(_ context.Context, id primitive.ObjectID) (*models.Announcement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.announcements[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (s *Store) ListAnnouncements(_ context.Context, f models.AnnouncementFilter) ([]*models.Announcement, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Announcement
	for _, a := range s.announcements {
		if a.Neighborhood != f.Neighborhood || a.IsExpired(f.Now) {
			continue
		}
		if f.Category != "" && a.Category != f.Category {
			continue
		}
		c := *a
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsPinned != out[j].IsPinned {
			return out[i].IsPinned
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	start, end := page(len(out), f.Page, f.Limit)
	return out[start:end], int64(len(out)), nil
}

func (s *Store) UpdateAnnouncement(_ context.Context, id primitive.ObjectID, u models.AnnouncementUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr(); err != nil {
		return err
	}
	a, ok := s.announcements[id]
	if !ok {
		return models.ErrNotFound
	}
	u.Apply(a)
	return nil
}

func (s *Store) DeleteAnnouncement(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr(); err != nil {
		return err
	}
	if _, ok := s.announcements[id]; !ok {
		return models.ErrNotFound
	}
	delete(s.announcements, id)
	return nil
}

// Incidents

func copyIncident(i *models.Incident) *models.Incident {
	c := *i
	c.Upvotes = append([]primitive.ObjectID{}, i.Upvotes...)
	c.Photos = append([]string{}, i.Photos...)
	return &c
}

func (s *Store) InsertIncident(_ context.Context, i *models.Incident) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr(); err != nil {
		return false, err
	}
	s.incidents[i.ID] = copyIncident(i)
	return s.Queued, nil
}

func (s *Store) FindIncidentByID(_ context.Context, id primitive.ObjectID) (*models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.incidents[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyIncident(i), nil
}

func (s *Store) ListIncidents(_ context.Context, f models.IncidentFilter) ([]*models.Incident, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Incident
	for _, i := range s.incidents {
		if i.Neighborhood != f.Neighborhood {
			continue
		}
		if (f.Status != "" && i.Status != f.Status) || (f.Category != "" && i.Category != f.Category) {
			continue
		}
		out = append(out, copyIncident(i))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	start, end := page(len(out), f.Page, f.Limit)
	return out[start:end], int64(len(out)), nil
}

// NearbyIncidents returns the neighborhood's incidents within radiusKm of center, closest first.
func (s *Store) NearbyIncidents(_ context.Context, neighborhood string, center models.Location, radiusKm float64, limit int) ([]*models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Incident
	for _, i := range s.incidents {
		if i.Neighborhood != neighborhood {
			continue
		}
		if utils.CalculateDistance(center, i.Location) > radiusKm {
			continue
		}
		out = append(out, copyIncident(i))
	}
	sort.Slice(out, func(a, b int) bool {
		return utils.CalculateDistance(center, out[a].Location) < utils.CalculateDistance(center, out[b].Location)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) AddIncidentUpvote(_ context.Context, id, userID primitive.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr(); err != nil {
		return false, err
	}
	i, ok := s.incidents[id]
	if !ok {
		return false, models.ErrNotFound
	}
	if i.HasUserUpvoted(userID) {
		return false, nil
	}
	i.Upvotes = append(i.Upvotes, userID)
	return true, nil
}

func (s *Store) RemoveIncidentUpvote(_ context.Context, id, userID primitive.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr(); err != nil {
		return false, err
	}
	i, ok := s.incidents[id]
	if !ok {
		return false, models.ErrNotFound
	}
	for n, u := range i.Upvotes {
		if u == userID {
			i.Upvotes = append(i.Upvotes[:n], i.Upvotes[n+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) TransitionIncident(_ context.Context, id primitive.ObjectID, from, to string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr(); err != nil {
		return false, err
	}
	i, ok := s.incidents[id]
	if !ok || i.Status != from {
		return false, nil
	}
	i.Status = to
	i.UpdatedAt = at
	if to == models.IncidentStatusResolved {
		resolved := at
		i.ResolvedAt = &resolved
	}
	return true, nil
}

func (s *Store) DeleteIncident(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr(); err != nil {
		return err
	}
	if _, ok := s.incidents[id]; !ok {
		return models.ErrNotFound
	}
	delete(s.incidents, id)
	return nil
}

// Notifications

func (s *Store) InsertNotifications(_ context.Context, batch []*models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr(); err != nil {
		return err
	}
	for _, n := range batch {
		c := *n
		s.notifications[n.ID] = &c
	}
	return nil
}

func (s *Store) ListNotifications(_ context.Context, userID primitive.ObjectID, unreadOnly bool, limit int) ([]*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Notification
	for _, n := range s.notifications {
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		c := *n
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, id, userID primitive.ObjectID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.UserID != userID {
		return false, nil
	}
	if !n.IsRead {
		n.IsRead = true
		n.ReadAt = &at
	}
	return true, nil
}

func (s *Store) MarkAllNotificationsRead(_ context.Context, userID primitive.ObjectID, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, n := range s.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			readAt := at
			n.ReadAt = &readAt
			count++
		}
	}
	return count, nil
}

func (s *Store) MarkNotificationsSent(_ context.Context, ids []primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if n, ok := s.notifications[id]; ok {
			n.IsSent = true
		}
	}
	return nil
}

// Notifications returns every stored notification of a user, for assertions.
func (s *Store) Notifications(userID primitive.ObjectID) []models.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	return out
}

func (s *Store) UpsertDeviceToken(_ context.Context, t *models.DeviceToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr(); err != nil {
		return err
	}
	if existing, ok := s.devices[t.FCMToken]; ok {
		existing.UserID = t.UserID
		existing.Platform = t.Platform
		existing.IsActive = true
		existing.UpdatedAt = t.UpdatedAt
		return nil
	}
	c := *t
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	s.devices[t.FCMToken] = &c
	return nil
}

func (s *Store) ActiveDeviceTokens(_ context.Context, userIDs []primitive.ObjectID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[primitive.ObjectID]bool, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = true
	}
	var out []string
	for _, d := range s.devices {
		if d.IsActive && wanted[d.UserID] {
			out = append(out, d.FCMToken)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) DeactivateDeviceTokens(_ context.Context, tokens []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tokens {
		if d, ok := s.devices[t]; ok {
			d.IsActive = false
		}
	}
	return nil
}

// Storefront

func (s *Store) InsertProduct(_ context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr(); err != nil {
		return err
	}
	for _, existing := range s.products {
		if existing.SKU == p.SKU {
			return models.ErrDuplicate
		}
	}
	c := *p
	s.products[p.ID] = &c
	return nil
}

func (s *Store) FindProductByID(_ context.Context, id primitive.ObjectID) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (s *Store) ListProducts(_ context.Context, f models.ProductFilter) ([]*models.Product, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Product
	for _, p := range s.products {
		if (f.ActiveOnly && !p.IsActive) || (f.Category != "" && p.Category != f.Category) {
			continue
		}
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	start, end := page(len(out), f.Page, f.Limit)
	return out[start:end], int64(len(out)), nil
}

func (s *Store) UpdateProduct(_ context.Context, id primitive.ObjectID, u models.ProductUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr(); err != nil {
		return err
	}
	p, ok := s.products[id]
	if !ok {
		return models.ErrNotFound
	}
	u.Apply(p)
	return nil
}

func (s *Store) ReserveStock(_ context.Context, id primitive.ObjectID, qty int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr(); err != nil {
		return false, err
	}
	p, ok := s.products[id]
	if !ok || !p.IsActive || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	return true, nil
}

func (s *Store) ReleaseStock(_ context.Context, id primitive.ObjectID, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return models.ErrNotFound
	}
	p.Stock += qty
	return nil
}

func (s *Store) InsertOrder(_ context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr(); err != nil {
		return err
	}
	c := *o
	c.Items = append([]models.OrderItem{}, o.Items...)
	s.orders[o.ID] = &c
	return nil
}

func (s *Store) FindOrderByID(_ context.Context, id primitive.ObjectID) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *o
	c.Items = append([]models.OrderItem{}, o.Items...)
	return &c, nil
}

func (s *Store) ListOrdersByUser(_ context.Context, userID primitive.ObjectID, limit int) ([]*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			c := *o
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) TransitionOrder(_ context.Context, id primitive.ObjectID, from, to string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr(); err != nil {
		return false, err
	}
	o, ok := s.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = at
	return true, nil
}
