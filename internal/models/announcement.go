// internal/models/announcement.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Announcement struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Neighborhood string             `bson:"neighborhood" json:"neighborhood"`
	AuthorID     primitive.ObjectID `bson:"author_id" json:"author_id"`
	AuthorName   string             `bson:"author_name" json:"author_name"`

	Title    string `bson:"title" json:"title"`
	Body     string `bson:"body" json:"body"`
	Category string `bson:"category" json:"category"`

	IsPinned bool `bson:"is_pinned" json:"is_pinned"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
}

// Категории объявлений
const (
	AnnouncementCategoryGeneral   = "general"
	AnnouncementCategoryEvent     = "event"
	AnnouncementCategoryLostFound = "lost_found"
	AnnouncementCategoryAlert     = "alert"
	AnnouncementCategoryOffer     = "offer"
)

// DefaultAnnouncementTTL applies when the author does not set an expiry.
const DefaultAnnouncementTTL = 30 * 24 * time.Hour

type AnnouncementFilter struct {
	Neighborhood string
	Category     string
	Now          time.Time
	Page         int
	Limit        int
}

// AnnouncementUpdate carries only the fields being changed.
type AnnouncementUpdate struct {
	Title     *string
	Body      *string
	Category  *string
	IsPinned  *bool
	ExpiresAt *time.Time
	UpdatedAt time.Time
}

func (a *Announcement) IsExpired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

func (a *Announcement) CanBeEditedBy(userID primitive.ObjectID) bool {
	return a.AuthorID == userID
}

func (a *Announcement) CanBeDeletedBy(userID primitive.ObjectID, role UserRole) bool {
	// Модераторы могут удалять любые объявления
	if role.IsModerator() {
		return true
	}
	return a.AuthorID == userID
}

// Apply mutates a copy the way the store applies the update.
func (u AnnouncementUpdate) Apply(a *Announcement) {
	if u.Title != nil {
		a.Title = *u.Title
	}
	if u.Body != nil {
		a.Body = *u.Body
	}
	if u.Category != nil {
		a.Category = *u.Category
	}
	if u.IsPinned != nil {
		a.IsPinned = *u.IsPinned
	}
	if u.ExpiresAt != nil {
		a.ExpiresAt = *u.ExpiresAt
	}
	a.UpdatedAt = u.UpdatedAt
}
