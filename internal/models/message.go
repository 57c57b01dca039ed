package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RoomKey identifies a forum room; the neighborhood is the partition.
type RoomKey struct {
	Neighborhood string `json:"neighborhood"`
	Room         string `json:"room"`
}

func (k RoomKey) String() string {
	return k.Neighborhood + "/" + k.Room
}

const DefaultRoom = "general"

type ForumMessage struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	ClientID     string             `bson:"client_id" json:"client_id"`
	Neighborhood string             `bson:"neighborhood" json:"neighborhood"`
	Room         string             `bson:"room" json:"room"`

	UserID     primitive.ObjectID `bson:"user_id,omitempty" json:"user_id,omitempty"`
	AuthorName string             `bson:"author_name" json:"author_name"`
	AvatarURL  string             `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`

	Content  string `bson:"content" json:"content"`
	Kind     string `bson:"kind" json:"kind"`
	MediaURL string `bson:"media_url,omitempty" json:"media_url,omitempty"`

	// Virtual neighbor replies are never stored
	IsVirtual bool   `bson:"is_virtual" json:"is_virtual"`
	PersonaID string `bson:"persona_id,omitempty" json:"persona_id,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

const (
	MessageKindText  = "text"
	MessageKindImage = "image"
	MessageKindLink  = "link"
)

func (m *ForumMessage) Key() RoomKey {
	return RoomKey{Neighborhood: m.Neighborhood, Room: m.Room}
}

// SenderID is the user id for real messages and the persona id for virtual ones.
func (m *ForumMessage) SenderID() string {
	if m.IsVirtual {
		return "persona:" + m.PersonaID
	}
	return m.UserID.Hex()
}

func (m *ForumMessage) CanBeDeletedBy(userID primitive.ObjectID, role UserRole) bool {
	if m.IsVirtual {
		return false
	}
	if role.IsModerator() {
		return true
	}
	return m.UserID == userID
}

// TypingIndicator is published while someone (or a virtual neighbor) composes a message.
type TypingIndicator struct {
	SenderID  string `json:"sender_id"`
	Name      string `json:"name"`
	IsVirtual bool   `json:"is_virtual"`
}
