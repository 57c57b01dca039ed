// Package repository stores the domain in MongoDB. Content inserts go
// through the fallback writer so they survive a Mongo outage.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"comunitarr/internal/database"
	"comunitarr/internal/fallback"
	"comunitarr/internal/models"
)

type Mongo struct {
	db     *mongo.Database
	writer *fallback.Writer
	now    func() time.Time
}

func NewMongo(db *mongo.Database, writer *fallback.Writer) *Mongo {
	return &Mongo{db: db, writer: writer, now: time.Now}
}

func (m *Mongo) coll(name string) *mongo.Collection {
	return m.db.Collection(name)
}

// insertDurable writes through the outbox writer; queued=true means Mongo was unreachable.
func (m *Mongo) insertDurable(ctx context.Context, collection string, doc interface{}) (bool, error) {
	queued, err := m.writer.Insert(ctx, collection, doc)
	if mongo.IsDuplicateKeyError(err) {
		return false, models.ErrDuplicate
	}
	return queued, err
}

func (m *Mongo) findOne(ctx context.Context, collection string, filter bson.M, out interface{}) error {
	err := m.coll(collection).FindOne(ctx, filter).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.ErrNotFound
	}
	return err
}

func (m *Mongo) deleteByID(ctx context.Context, collection string, id primitive.ObjectID) error {
	res, err := m.coll(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (m *Mongo) exists(ctx context.Context, collection string, id primitive.ObjectID) (bool, error) {
	n, err := m.coll(collection).CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	return n > 0, err
}

// paged runs a filtered, sorted page query and the matching count.
func paged[T any](ctx context.Context, c *mongo.Collection, filter bson.M, sort bson.D, page, limit int) ([]*T, int64, error) {
	skip := int64((page - 1) * limit)
	opts := options.Find().
		SetSort(sort).
		SetSkip(skip).
		SetLimit(int64(limit))

	cursor, err := c.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	items := make([]*T, 0, limit)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, 0, fmt.Errorf("failed to decode %s: %w", c.Name(), err)
	}

	total, err := c.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Users

func (m *Mongo) FindUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	if err := m.findOne(ctx, database.CollectionUsers, bson.M{"_id": id}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (m *Mongo) IncrementCounters(ctx context.Context, id primitive.ObjectID, points, karma int) error {
	res, err := m.coll(database.CollectionUsers).UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$inc": bson.M{"comuni_points": points, "karma": karma},
		"$set": bson.M{"updated_at": m.now().UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (m *Mongo) TopUsers(ctx context.Context, neighborhood string, limit int) ([]*models.User, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "comuni_points", Value: -1}, {Key: "karma", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := m.coll(database.CollectionUsers).Find(ctx, bson.M{
		"neighborhood": neighborhood,
		"is_blocked":   bson.M{"$ne": true},
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []*models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (m *Mongo) UserIDsInNeighborhood(ctx context.Context, neighborhood string) ([]primitive.ObjectID, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cursor, err := m.coll(database.CollectionUsers).Find(ctx, bson.M{
		"neighborhood": neighborhood,
		"is_blocked":   bson.M{"$ne": true},
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var ids []primitive.ObjectID
	for cursor.Next(ctx) {
		var doc struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			continue
		}
		ids = append(ids, doc.ID)
	}
	return ids, cursor.Err()
}

// BackfillCounters sets comuni_points and karma to zero where missing and
// returns the number of users touched.
func (m *Mongo) BackfillCounters(ctx context.Context) (int64, error) {
	var touched int64
	for _, field := range []string{"comuni_points", "karma"} {
		res, err := m.coll(database.CollectionUsers).UpdateMany(ctx,
			bson.M{field: bson.M{"$exists": false}},
			bson.M{"$set": bson.M{field: 0, "updated_at": m.now().UTC()}},
		)
		if err != nil {
			return touched, fmt.Errorf("failed to backfill %s: %w", field, err)
		}
		touched += res.ModifiedCount
	}
	return touched, nil
}

// BackfillRoles gives users without a role USER, or MODERATOR when the
// legacy is_moderator flag is set.
func (m *Mongo) BackfillRoles(ctx context.Context) (int64, error) {
	res, err := m.coll(database.CollectionUsers).UpdateMany(ctx,
		bson.M{
			"$or": []bson.M{
				{"role": bson.M{"$exists": false}},
				{"role": ""},
			},
		},
		[]bson.M{
			{
				"$set": bson.M{
					"role": bson.M{
						"$cond": bson.A{"$is_moderator", string(models.RoleModerator), string(models.RoleUser)},
					},
				},
			},
		},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to backfill roles: %w", err)
	}
	return res.ModifiedCount, nil
}
