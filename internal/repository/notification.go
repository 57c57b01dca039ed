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

func (m *Mongo) InsertNotifications(ctx context.Context, notifications []*models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(notifications))
	for _, n := range notifications {
		docs = append(docs, n)
	}
	_, err := m.coll(database.CollectionNotifications).InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	return err
}

func (m *Mongo) ListNotifications(ctx context.Context, userID primitive.ObjectID, unreadOnly bool, limit int) ([]*models.Notification, error) {
	filter := bson.M{"user_id": userID}
	if unreadOnly {
		filter["is_read"] = false
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := m.coll(database.CollectionNotifications).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	notifications := make([]*models.Notification, 0, limit)
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

func (m *Mongo) MarkNotificationRead(ctx context.Context, id, userID primitive.ObjectID, at time.Time) (bool, error) {
	res, err := m.coll(database.CollectionNotifications).UpdateOne(ctx,
		bson.M{"_id": id, "user_id": userID},
		bson.M{"$set": bson.M{"is_read": true, "read_at": at}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (m *Mongo) MarkAllNotificationsRead(ctx context.Context, userID primitive.ObjectID, at time.Time) (int64, error) {
	res, err := m.coll(database.CollectionNotifications).UpdateMany(ctx,
		bson.M{"user_id": userID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true, "read_at": at}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (m *Mongo) MarkNotificationsSent(ctx context.Context, ids []primitive.ObjectID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := m.coll(database.CollectionNotifications).UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M{"is_sent": true}},
	)
	return err
}

// UpsertDeviceToken moves a token to its latest owner and reactivates it.
func (m *Mongo) UpsertDeviceToken(ctx context.Context, t *models.DeviceToken) error {
	_, err := m.coll(database.CollectionDeviceTokens).UpdateOne(ctx,
		bson.M{"fcm_token": t.FCMToken},
		bson.M{
			"$set": bson.M{
				"user_id":    t.UserID,
				"platform":   t.Platform,
				"is_active":  true,
				"updated_at": t.UpdatedAt,
			},
			"$setOnInsert": bson.M{"created_at": t.CreatedAt},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (m *Mongo) ActiveDeviceTokens(ctx context.Context, userIDs []primitive.ObjectID) ([]string, error) {
	cursor, err := m.coll(database.CollectionDeviceTokens).Find(ctx, bson.M{
		"user_id":   bson.M{"$in": userIDs},
		"is_active": true,
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var tokens []string
	for cursor.Next(ctx) {
		var dt models.DeviceToken
		if err := cursor.Decode(&dt); err != nil {
			continue
		}
		tokens = append(tokens, dt.FCMToken)
	}
	return tokens, cursor.Err()
}

func (m *Mongo) DeactivateDeviceTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	_, err := m.coll(database.CollectionDeviceTokens).UpdateMany(ctx,
		bson.M{"fcm_token": bson.M{"$in": tokens}},
		bson.M{"$set": bson.M{"is_active": false, "updated_at": m.now().UTC()}},
	)
	return err
}
