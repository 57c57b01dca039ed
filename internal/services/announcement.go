package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"comunitarr/internal/models"
	"comunitarr/pkg/auth"
	"comunitarr/pkg/validator"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type CreateAnnouncementInput struct {
	Title     string     `json:"title" binding:"required,min=5,max=200"`
	Body      string     `json:"body" binding:"required,min=10,max=4000"`
	Category  string     `json:"category" binding:"required,oneof=general event lost_found alert offer"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type UpdateAnnouncementInput struct {
	Title     *string    `json:"title" binding:"omitempty,min=5,max=200"`
	Body      *string    `json:"body" binding:"omitempty,min=10,max=4000"`
	Category  *string    `json:"category" binding:"omitempty,oneof=general event lost_found alert offer"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type AnnouncementService struct {
	store  AnnouncementStore
	points *PointsService
	log    *logrus.Entry
	now    func() time.Time
}

func NewAnnouncementService(store AnnouncementStore, points *PointsService, log *logrus.Entry) *AnnouncementService {
	return &AnnouncementService{store: store, points: points, log: log, now: time.Now}
}

// NormalizePage applies the default page size and caps it.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}

func (s *AnnouncementService) Create(ctx context.Context, who auth.Identity, in CreateAnnouncementInput) (*models.Announcement, bool, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Body = strings.TrimSpace(in.Body)
	if err := validator.Struct(in); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	expiresAt := now.Add(models.DefaultAnnouncementTTL)
	if in.ExpiresAt != nil {
		if !in.ExpiresAt.After(now) {
			return nil, false, fmt.Errorf("%w: expires_at must be in the future", ErrInvalidInput)
		}
		expiresAt = in.ExpiresAt.UTC()
	}

	a := &models.Announcement{
		ID:           primitive.NewObjectID(),
		Neighborhood: who.Neighborhood,
		AuthorID:     who.UserID,
		AuthorName:   who.Name,
		Title:        in.Title,
		Body:         in.Body,
		Category:     in.Category,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    expiresAt,
	}

	queued, err := s.store.InsertAnnouncement(ctx, a)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create announcement: %w", err)
	}

	s.points.awardQuietly(ctx, who.UserID, models.ActionAnnouncement)
	return a, queued, nil
}

func (s *AnnouncementService) List(ctx context.Context, neighborhood, category string, page, limit int) ([]*models.Announcement, int64, error) {
	page, limit = NormalizePage(page, limit)
	items, total, err := s.store.ListAnnouncements(ctx, models.AnnouncementFilter{
		Neighborhood: neighborhood,
		Category:     category,
		Now:          s.now(),
		Page:         page,
		Limit:        limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list announcements: %w", err)
	}
	return items, total, nil
}

// Get hides announcements of other neighborhoods from non-moderators.
func (s *AnnouncementService) Get(ctx context.Context, who auth.Identity, id primitive.ObjectID) (*models.Announcement, error) {
	a, err := s.store.FindAnnouncementByID(ctx, id)
	if err != nil {
		return nil, err
	}
	role, _ := models.ParseRole(who.Role)
	if a.Neighborhood != who.Neighborhood && !role.IsModerator() {
		return nil, ErrNotFound
	}
	return a, nil
}

func (s *AnnouncementService) Update(ctx context.Context, who auth.Identity, id primitive.ObjectID, in UpdateAnnouncementInput) (*models.Announcement, error) {
	if err := validator.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	a, err := s.Get(ctx, who, id)
	if err != nil {
		return nil, err
	}
	if !a.CanBeEditedBy(who.UserID) {
		return nil, ErrForbidden
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return nil, fmt.Errorf("%w: expires_at must be in the future", ErrInvalidInput)
	}

	update := models.AnnouncementUpdate{
		Title:     in.Title,
		Body:      in.Body,
		Category:  in.Category,
		ExpiresAt: in.ExpiresAt,
		UpdatedAt: now,
	}
	if err := s.store.UpdateAnnouncement(ctx, id, update); err != nil {
		return nil, fmt.Errorf("failed to update announcement: %w", err)
	}

	update.Apply(a)
	return a, nil
}

func (s *AnnouncementService) Delete(ctx context.Context, who auth.Identity, id primitive.ObjectID) error {
	a, err := s.Get(ctx, who, id)
	if err != nil {
		return err
	}
	role, _ := models.ParseRole(who.Role)
	if !a.CanBeDeletedBy(who.UserID, role) {
		return ErrForbidden
	}
	if err := s.store.DeleteAnnouncement(ctx, id); err != nil {
		return fmt.Errorf("failed to delete announcement: %w", err)
	}
	return nil
}

// SetPinned is restricted to moderators.
func (s *AnnouncementService) SetPinned(ctx context.Context, who auth.Identity, id primitive.ObjectID, pinned bool) (*models.Announcement, error) {
	role, _ := models.ParseRole(who.Role)
	if !role.HasPermission(models.PermModerateContent) {
		return nil, ErrForbidden
	}

	a, err := s.store.FindAnnouncementByID(ctx, id)
	if err != nil {
		return nil, err
	}

	update := models.AnnouncementUpdate{IsPinned: &pinned, UpdatedAt: s.now().UTC().Truncate(time.Millisecond)}
	if err := s.store.UpdateAnnouncement(ctx, id, update); err != nil {
		return nil, fmt.Errorf("failed to pin announcement: %w", err)
	}

	update.Apply(a)
	s.log.WithFields(logrus.Fields{"announcement_id": id.Hex(), "pinned": pinned, "by": who.UserID.Hex()}).Info("announcement pin changed")
	return a, nil
}
