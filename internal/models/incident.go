// internal/models/incident.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Incident struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Neighborhood string             `bson:"neighborhood" json:"neighborhood"`
	ReporterID   primitive.ObjectID `bson:"reporter_id" json:"reporter_id"`
	ReporterName string             `bson:"reporter_name" json:"reporter_name"`

	Title       string `bson:"title" json:"title"`
	Description string `bson:"description" json:"description"`
	Category    string `bson:"category" json:"category"`
	Severity    string `bson:"severity" json:"severity"`

	Location Location `bson:"location" json:"location"`
	Address  string   `bson:"address" json:"address"`
	Photos   []string `bson:"photos" json:"photos"`

	Status  string               `bson:"status" json:"status"`
	Upvotes []primitive.ObjectID `bson:"upvotes" json:"upvotes"`

	CreatedAt  time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `bson:"updated_at" json:"updated_at"`
	ResolvedAt *time.Time `bson:"resolved_at,omitempty" json:"resolved_at,omitempty"`

	// Filled by nearby queries only
	DistanceKm *float64 `bson:"-" json:"distance_km,omitempty"`
}

const (
	IncidentCategorySecurity       = "security"
	IncidentCategoryInfrastructure = "infrastructure"
	IncidentCategoryNoise          = "noise"
	IncidentCategoryCleaning       = "cleaning"
	IncidentCategoryTraffic        = "traffic"
	IncidentCategoryOther          = "other"
)

const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

const (
	IncidentStatusOpen       = "open"
	IncidentStatusInProgress = "in_progress"
	IncidentStatusResolved   = "resolved"
	IncidentStatusDismissed  = "dismissed"
)

var incidentTransitions = map[string][]string{
	IncidentStatusOpen:       {IncidentStatusInProgress, IncidentStatusDismissed},
	IncidentStatusInProgress: {IncidentStatusResolved, IncidentStatusDismissed},
}

// CanTransition reports whether an incident may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range incidentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (i *Incident) IsTerminal() bool {
	return i.Status == IncidentStatusResolved || i.Status == IncidentStatusDismissed
}

func (i *Incident) HasUserUpvoted(userID primitive.ObjectID) bool {
	for _, id := range i.Upvotes {
		if id == userID {
			return true
		}
	}
	return false
}

func (i *Incident) UpvoteCount() int {
	return len(i.Upvotes)
}

func (i *Incident) CanBeDeletedBy(userID primitive.ObjectID, role UserRole) bool {
	if role.IsModerator() {
		return true
	}
	return i.ReporterID == userID
}

type IncidentFilter struct {
	Neighborhood string
	Status       string
	Category     string
	Page         int
	Limit        int
}
