package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"comunitarr/internal/models"
)

// Stores are declared here, by their consumer. internal/repository provides
// the Mongo implementation and internal/repository/memstore an in-memory one.

type ForumStore interface {
	// InsertMessage reports queued=true when the write went to the local outbox.
	InsertMessage(ctx context.Context, msg *models.ForumMessage) (bool, error)
	FindMessageByClientID(ctx context.Context, key models.RoomKey, clientID string) (*models.ForumMessage, error)
	FindMessageByID(ctx context.Context, id primitive.ObjectID) (*models.ForumMessage, error)
	// ListMessages returns messages older than before, newest first.
	ListMessages(ctx context.Context, key models.RoomKey, before time.Time, limit int) ([]*models.ForumMessage, error)
	DeleteMessage(ctx context.Context, id primitive.ObjectID) error
}

type AnnouncementStore interface {
	InsertAnnouncement(ctx context.Context, a *models.Announcement) (bool, error)
	FindAnnouncementByID(ctx context.Context, id primitive.ObjectID) (*models.Announcement, error)
	// ListAnnouncements orders pinned first, then newest, skipping expired ones.
	ListAnnouncements(ctx context.Context, filter models.AnnouncementFilter) ([]*models.Announcement, int64, error)
	UpdateAnnouncement(ctx context.Context, id primitive.ObjectID, update models.AnnouncementUpdate) error
	DeleteAnnouncement(ctx context.Context, id primitive.ObjectID) error
}

type IncidentStore interface {
	InsertIncident(ctx context.Context, incident *models.Incident) (bool, error)
	FindIncidentByID(ctx context.Context, id primitive.ObjectID) (*models.Incident, error)
	ListIncidents(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, int64, error)
	// NearbyIncidents returns incidents of the neighborhood inside the circle, unordered.
	NearbyIncidents(ctx context.Context, neighborhood string, center models.Location, radiusKm float64, limit int) ([]*models.Incident, error)
	// AddIncidentUpvote reports false when the user had already upvoted.
	AddIncidentUpvote(ctx context.Context, id, userID primitive.ObjectID) (bool, error)
	RemoveIncidentUpvote(ctx context.Context, id, userID primitive.ObjectID) (bool, error)
	// TransitionIncident changes the status only if it still equals from.
	TransitionIncident(ctx context.Context, id primitive.ObjectID, from, to string, at time.Time) (bool, error)
	DeleteIncident(ctx context.Context, id primitive.ObjectID) error
}

type UserStore interface {
	FindUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	IncrementCounters(ctx context.Context, id primitive.ObjectID, points, karma int) error
	TopUsers(ctx context.Context, neighborhood string, limit int) ([]*models.User, error)
	UserIDsInNeighborhood(ctx context.Context, neighborhood string) ([]primitive.ObjectID, error)
}

type NotificationStore interface {
	InsertNotifications(ctx context.Context, notifications []*models.Notification) error
	ListNotifications(ctx context.Context, userID primitive.ObjectID, unreadOnly bool, limit int) ([]*models.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID primitive.ObjectID, at time.Time) (bool, error)
	MarkAllNotificationsRead(ctx context.Context, userID primitive.ObjectID, at time.Time) (int64, error)
	MarkNotificationsSent(ctx context.Context, ids []primitive.ObjectID) error
	UpsertDeviceToken(ctx context.Context, token *models.DeviceToken) error
	ActiveDeviceTokens(ctx context.Context, userIDs []primitive.ObjectID) ([]string, error)
	DeactivateDeviceTokens(ctx context.Context, tokens []string) error
}

type CatalogStore interface {
	InsertProduct(ctx context.Context, p *models.Product) error
	FindProductByID(ctx context.Context, id primitive.ObjectID) (*models.Product, error)
	ListProducts(ctx context.Context, filter models.ProductFilter) ([]*models.Product, int64, error)
	UpdateProduct(ctx context.Context, id primitive.ObjectID, update models.ProductUpdate) error
	// ReserveStock decrements stock only when at least qty units are left.
	ReserveStock(ctx context.Context, id primitive.ObjectID, qty int) (bool, error)
	ReleaseStock(ctx context.Context, id primitive.ObjectID, qty int) error
}

type OrderStore interface {
	InsertOrder(ctx context.Context, o *models.Order) error
	FindOrderByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID primitive.ObjectID, limit int) ([]*models.Order, error)
	TransitionOrder(ctx context.Context, id primitive.ObjectID, from, to string, at time.Time) (bool, error)
}

// Broadcaster pushes forum events to realtime subscribers.
type Broadcaster interface {
	PublishMessage(key models.RoomKey, msg *models.ForumMessage)
	PublishTyping(key models.RoomKey, typing models.TypingIndicator)
}
