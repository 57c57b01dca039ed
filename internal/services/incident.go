package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"comunitarr/internal/models"
	"comunitarr/internal/utils"
	"comunitarr/pkg/auth"
	"comunitarr/pkg/validator"
)

const (
	defaultNearbyRadiusKm = 1.0
	maxNearbyRadiusKm     = 20.0
	defaultNearbyLimit    = 50
)

// Notifier delivers stored and pushed notifications.
type Notifier interface {
	NotifyNeighborhood(ctx context.Context, neighborhood string, except primitive.ObjectID, n NotificationInput) error
	NotifyUser(ctx context.Context, userID primitive.ObjectID, n NotificationInput) error
}

type ReportIncidentInput struct {
	Title       string   `json:"title" binding:"required,min=5,max=200"`
	Description string   `json:"description" binding:"required,min=10,max=4000"`
	Category    string   `json:"category" binding:"required,oneof=security infrastructure noise cleaning traffic other"`
	Severity    string   `json:"severity" binding:"omitempty,oneof=low medium high critical"`
	Latitude    *float64 `json:"latitude" binding:"required,min=-90,max=90"`
	Longitude   *float64 `json:"longitude" binding:"required,min=-180,max=180"`
	Address     string   `json:"address" binding:"max=300"`
	Photos      []string `json:"photos" binding:"max=6,dive,url"`
}

type IncidentService struct {
	store    IncidentStore
	points   *PointsService
	notifier Notifier
	log      *logrus.Entry
	now      func() time.Time
}

func NewIncidentService(store IncidentStore, points *PointsService, notifier Notifier, log *logrus.Entry) *IncidentService {
	return &IncidentService{store: store, points: points, notifier: notifier, log: log, now: time.Now}
}

func (s *IncidentService) Report(ctx context.Context, who auth.Identity, in ReportIncidentInput) (*models.Incident, bool, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := validator.Struct(in); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if in.Severity == "" {
		in.Severity = models.SeverityMedium
	}
	if in.Photos == nil {
		in.Photos = []string{}
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	incident := &models.Incident{
		ID:           primitive.NewObjectID(),
		Neighborhood: who.Neighborhood,
		ReporterID:   who.UserID,
		ReporterName: who.Name,
		Title:        in.Title,
		Description:  in.Description,
		Category:     in.Category,
		Severity:     in.Severity,
		Location:     models.NewPoint(*in.Latitude, *in.Longitude),
		Address:      in.Address,
		Photos:       in.Photos,
		Status:       models.IncidentStatusOpen,
		Upvotes:      []primitive.ObjectID{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	queued, err := s.store.InsertIncident(ctx, incident)
	if err != nil {
		return nil, false, fmt.Errorf("failed to report incident: %w", err)
	}

	s.points.awardQuietly(ctx, who.UserID, models.ActionIncidentReport)

	if incident.Severity == models.SeverityCritical && s.notifier != nil {
		id := incident.ID
		err := s.notifier.NotifyNeighborhood(ctx, incident.Neighborhood, who.UserID, NotificationInput{
			Type:      models.NotificationTypeIncident,
			Title:     "Incidencia crítica en el barrio",
			Body:      incident.Title,
			RelatedID: &id,
			Data: map[string]interface{}{
				"incident_id": id.Hex(),
				"category":    incident.Category,
				"action":      "open_incident",
			},
		})
		if err != nil {
			s.log.WithError(err).WithField("incident_id", id.Hex()).Warn("critical incident notification failed")
		}
	}

	return incident, queued, nil
}

func (s *IncidentService) List(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, int64, error) {
	filter.Page, filter.Limit = NormalizePage(filter.Page, filter.Limit)
	items, total, err := s.store.ListIncidents(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list incidents: %w", err)
	}
	return items, total, nil
}

// Nearby returns incidents within radiusKm of (lat, lng), closest first.
func (s *IncidentService) Nearby(ctx context.Context, neighborhood string, lat, lng, radiusKm float64, limit int) ([]*models.Incident, error) {
	center := models.NewPoint(lat, lng)
	if !center.IsValid() {
		return nil, fmt.Errorf("%w: invalid coordinates", ErrInvalidInput)
	}
	if radiusKm <= 0 {
		radiusKm = defaultNearbyRadiusKm
	}
	if radiusKm > maxNearbyRadiusKm {
		radiusKm = maxNearbyRadiusKm
	}
	if limit <= 0 || limit > maxPageSize {
		limit = defaultNearbyLimit
	}

	found, err := s.store.NearbyIncidents(ctx, neighborhood, center, radiusKm, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search nearby incidents: %w", err)
	}

	result := make([]*models.Incident, 0, len(found))
	for _, incident := range found {
		d := utils.CalculateDistance(center, incident.Location)
		if d > radiusKm {
			continue
		}
		incident.DistanceKm = &d
		result = append(result, incident)
	}
	sort.Slice(result, func(i, j int) bool {
		return *result[i].DistanceKm < *result[j].DistanceKm
	})
	return result, nil
}

func (s *IncidentService) Get(ctx context.Context, who auth.Identity, id primitive.ObjectID) (*models.Incident, error) {
	incident, err := s.store.FindIncidentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	role, _ := models.ParseRole(who.Role)
	if incident.Neighborhood != who.Neighborhood && !role.IsModerator() {
		return nil, ErrNotFound
	}
	return incident, nil
}

// Upvote is idempotent; the reporter earns karma once per voter.
func (s *IncidentService) Upvote(ctx context.Context, who auth.Identity, id primitive.ObjectID) (*models.Incident, error) {
	incident, err := s.Get(ctx, who, id)
	if err != nil {
		return nil, err
	}
	if incident.ReporterID == who.UserID {
		return nil, ErrForbidden
	}

	added, err := s.store.AddIncidentUpvote(ctx, id, who.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to upvote incident: %w", err)
	}
	if added {
		s.points.awardQuietly(ctx, incident.ReporterID, models.ActionUpvoteReceived)
	}
	return s.store.FindIncidentByID(ctx, id)
}

// RemoveUpvote takes back the karma the vote earned.
func (s *IncidentService) RemoveUpvote(ctx context.Context, who auth.Identity, id primitive.ObjectID) (*models.Incident, error) {
	incident, err := s.Get(ctx, who, id)
	if err != nil {
		return nil, err
	}

	removed, err := s.store.RemoveIncidentUpvote(ctx, id, who.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to remove upvote: %w", err)
	}
	if removed {
		reward, _ := models.RewardFor(models.ActionUpvoteReceived)
		if err := s.points.users.IncrementCounters(ctx, incident.ReporterID, -reward.Points, -reward.Karma); err != nil {
			s.log.WithError(err).WithField("user_id", incident.ReporterID.Hex()).Warn("karma not reverted")
		}
	}
	return s.store.FindIncidentByID(ctx, id)
}

// ChangeStatus moves an incident along open -> in_progress -> resolved, or to dismissed.
func (s *IncidentService) ChangeStatus(ctx context.Context, who auth.Identity, id primitive.ObjectID, to string) (*models.Incident, error) {
	role, _ := models.ParseRole(who.Role)
	if !role.HasPermission(models.PermManageIncidents) {
		return nil, ErrForbidden
	}

	incident, err := s.store.FindIncidentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(incident.Status, to) {
		return nil, fmt.Errorf("%w: cannot move incident from %s to %s", ErrConflict, incident.Status, to)
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	ok, err := s.store.TransitionIncident(ctx, id, incident.Status, to, now)
	if err != nil {
		return nil, fmt.Errorf("failed to change incident status: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: incident status changed concurrently", ErrConflict)
	}

	if to == models.IncidentStatusResolved {
		s.points.awardQuietly(ctx, incident.ReporterID, models.ActionIncidentResolved)
	}

	if s.notifier != nil {
		err := s.notifier.NotifyUser(ctx, incident.ReporterID, NotificationInput{
			Type:      models.NotificationTypeIncident,
			Title:     "Tu incidencia ha cambiado de estado",
			Body:      fmt.Sprintf("%s: %s", incident.Title, statusLabel(to)),
			RelatedID: &incident.ID,
			Data: map[string]interface{}{
				"incident_id": incident.ID.Hex(),
				"status":      to,
				"action":      "open_incident",
			},
		})
		if err != nil {
			s.log.WithError(err).WithField("incident_id", id.Hex()).Warn("status change notification failed")
		}
	}

	return s.store.FindIncidentByID(ctx, id)
}

func statusLabel(status string) string {
	switch status {
	case models.IncidentStatusInProgress:
		return "en curso"
	case models.IncidentStatusResolved:
		return "resuelta"
	case models.IncidentStatusDismissed:
		return "descartada"
	default:
		return "abierta"
	}
}

func (s *IncidentService) Delete(ctx context.Context, who auth.Identity, id primitive.ObjectID) error {
	incident, err := s.Get(ctx, who, id)
	if err != nil {
		return err
	}
	role, _ := models.ParseRole(who.Role)
	if !incident.CanBeDeletedBy(who.UserID, role) {
		return ErrForbidden
	}
	if err := s.store.DeleteIncident(ctx, id); err != nil {
		return fmt.Errorf("failed to delete incident: %w", err)
	}
	return nil
}
