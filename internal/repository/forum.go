package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"comunitarr/internal/database"
	"comunitarr/internal/models"
)

func (m *Mongo) InsertMessage(ctx context.Context, msg *models.ForumMessage) (bool, error) {
	return m.insertDurable(ctx, database.CollectionForum, msg)
}

func (m *Mongo) FindMessageByClientID(ctx context.Context, key models.RoomKey, clientID string) (*models.ForumMessage, error) {
	var msg models.ForumMessage
	err := m.findOne(ctx, database.CollectionForum, bson.M{
		"neighborhood": key.Neighborhood,
		"room":         key.Room,
		"client_id":    clientID,
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (m *Mongo) FindMessageByID(ctx context.Context, id primitive.ObjectID) (*models.ForumMessage, error) {
	var msg models.ForumMessage
	if err := m.findOne(ctx, database.CollectionForum, bson.M{"_id": id}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (m *Mongo) ListMessages(ctx context.Context, key models.RoomKey, before time.Time, limit int) ([]*models.ForumMessage, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := m.coll(database.CollectionForum).Find(ctx, bson.M{
		"neighborhood": key.Neighborhood,
		"room":         key.Room,
		"created_at":   bson.M{"$lt": before},
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	messages := make([]*models.ForumMessage, 0, limit)
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (m *Mongo) DeleteMessage(ctx context.Context, id primitive.ObjectID) error {
	return m.deleteByID(ctx, database.CollectionForum, id)
}
