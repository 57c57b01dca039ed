package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"comunitarr/internal/database"
	"comunitarr/internal/models"
)

func (m *Mongo) InsertAnnouncement(ctx context.Context, a *models.Announcement) (bool, error) {
	return m.insertDurable(ctx, database.CollectionAnnouncements, a)
}

func (m *Mongo) FindAnnouncementByID(ctx context.Context, id primitive.ObjectID) (*models.Announcement, error) {
	var a models.Announcement
	if err := m.findOne(ctx, database.CollectionAnnouncements, bson.M{"_id": id}, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (m *Mongo) ListAnnouncements(ctx context.Context, f models.AnnouncementFilter) ([]*models.Announcement, int64, error) {
	filter := bson.M{
		"neighborhood": f.Neighborhood,
		"expires_at":   bson.M{"$gt": f.Now},
	}
	if f.Category != "" {
		filter["category"] = f.Category
	}

	// закрепленные сверху, затем новые
	sort := bson.D{{Key: "is_pinned", Value: -1}, {Key: "created_at", Value: -1}}
	return paged[models.Announcement](ctx, m.coll(database.CollectionAnnouncements), filter, sort, f.Page, f.Limit)
}

func (m *Mongo) UpdateAnnouncement(ctx context.Context, id primitive.ObjectID, u models.AnnouncementUpdate) error {
	set := bson.M{"updated_at": u.UpdatedAt}
	if u.Title != nil {
		set["title"] = *u.Title
	}
	if u.Body != nil {
		set["body"] = *u.Body
	}
	if u.Category != nil {
		set["category"] = *u.Category
	}
	if u.IsPinned != nil {
		set["is_pinned"] = *u.IsPinned
	}
	if u.ExpiresAt != nil {
		set["expires_at"] = *u.ExpiresAt
	}

	res, err := m.coll(database.CollectionAnnouncements).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (m *Mongo) DeleteAnnouncement(ctx context.Context, id primitive.ObjectID) error {
	return m.deleteByID(ctx, database.CollectionAnnouncements, id)
}
