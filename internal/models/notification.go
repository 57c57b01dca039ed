package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Notification struct {
	ID        primitive.ObjectID     `bson:"_id,omitempty" json:"id,omitempty"`
	UserID    primitive.ObjectID     `bson:"user_id" json:"user_id"`
	Type      string                 `bson:"type" json:"type"`
	Title     string                 `bson:"title" json:"title"`
	Body      string                 `bson:"body" json:"body"`
	RelatedID *primitive.ObjectID    `bson:"related_id,omitempty" json:"related_id,omitempty"`
	Data      map[string]interface{} `bson:"data,omitempty" json:"data,omitempty"`
	IsRead    bool                   `bson:"is_read" json:"is_read"`
	IsSent    bool                   `bson:"is_sent" json:"is_sent"`
	ReadAt    *time.Time             `bson:"read_at,omitempty" json:"read_at,omitempty"`
	CreatedAt time.Time              `bson:"created_at" json:"created_at"`
}

// Типи сповіщень
const (
	NotificationTypeIncident     = "incident"
	NotificationTypeAnnouncement = "announcement"
	NotificationTypeOrder        = "order"
	NotificationTypeSystem       = "system"
)

type DeviceToken struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	FCMToken  string             `bson:"fcm_token" json:"fcm_token"`
	Platform  string             `bson:"platform" json:"platform"` // android, ios, web
	IsActive  bool               `bson:"is_active" json:"is_active"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}
