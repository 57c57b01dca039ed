package models

import (
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type User struct {
	ID    primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Email string             `bson:"email" json:"email"`

	DisplayName  string `bson:"display_name" json:"display_name"`
	AvatarURL    string `bson:"avatar_url" json:"avatar_url"`
	Neighborhood string `bson:"neighborhood" json:"neighborhood"`
	Street       string `bson:"street" json:"street"`

	Role      string `bson:"role" json:"role"`
	IsBlocked bool   `bson:"is_blocked" json:"is_blocked"`

	// ComuniPoints / Karma
	ComuniPoints int `bson:"comuni_points" json:"comuni_points"`
	Karma        int `bson:"karma" json:"karma"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Level grows with the square root of the points: 0-49 is level 1, 50-199 level 2, 200-449 level 3...
func Level(points int) int {
	if points <= 0 {
		return 1
	}
	return 1 + int(math.Sqrt(float64(points)/50))
}

func (u *User) Level() int {
	return Level(u.ComuniPoints)
}

// PointsToNextLevel returns how many points are missing for the next level.
func (u *User) PointsToNextLevel() int {
	next := u.Level() // level L starts at 50*(L-1)^2
	return 50*next*next - u.ComuniPoints
}
