package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"comunitarr/internal/database"
	"comunitarr/internal/models"
	"comunitarr/internal/utils"
)

func (m *Mongo) InsertIncident(ctx context.Context, incident *models.Incident) (bool, error) {
	return m.insertDurable(ctx, database.CollectionIncidents, incident)
}

func (m *Mongo) FindIncidentByID(ctx context.Context, id primitive.ObjectID) (*models.Incident, error) {
	var incident models.Incident
	if err := m.findOne(ctx, database.CollectionIncidents, bson.M{"_id": id}, &incident); err != nil {
		return nil, err
	}
	return &incident, nil
}

func (m *Mongo) ListIncidents(ctx context.Context, f models.IncidentFilter) ([]*models.Incident, int64, error) {
	filter := bson.M{"neighborhood": f.Neighborhood}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	sort := bson.D{{Key: "created_at", Value: -1}}
	return paged[models.Incident](ctx, m.coll(database.CollectionIncidents), filter, sort, f.Page, f.Limit)
}

func (m *Mongo) NearbyIncidents(ctx context.Context, neighborhood string, center models.Location, radiusKm float64, limit int) ([]*models.Incident, error) {
	filter := bson.M{
		"neighborhood": neighborhood,
		"location": bson.M{
			"$geoWithin": bson.M{
				"$centerSphere": bson.A{
					bson.A{center.Lng(), center.Lat()},
					utils.RadiusToRadians(radiusKm),
				},
			},
		},
	}

	cursor, err := m.coll(database.CollectionIncidents).Find(ctx, filter, options.Find().SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var incidents []*models.Incident
	if err := cursor.All(ctx, &incidents); err != nil {
		return nil, err
	}
	return incidents, nil
}

func (m *Mongo) AddIncidentUpvote(ctx context.Context, id, userID primitive.ObjectID) (bool, error) {
	res, err := m.coll(database.CollectionIncidents).UpdateOne(ctx,
		bson.M{"_id": id, "upvotes": bson.M{"$ne": userID}},
		bson.M{
			"$push": bson.M{"upvotes": userID},
			"$set":  bson.M{"updated_at": m.now().UTC()},
		},
	)
	if err != nil {
		return false, err
	}
	if res.ModifiedCount == 1 {
		return true, nil
	}
	return false, m.mustExist(ctx, id)
}

func (m *Mongo) RemoveIncidentUpvote(ctx context.Context, id, userID primitive.ObjectID) (bool, error) {
	res, err := m.coll(database.CollectionIncidents).UpdateOne(ctx,
		bson.M{"_id": id, "upvotes": userID},
		bson.M{
			"$pull": bson.M{"upvotes": userID},
			"$set":  bson.M{"updated_at": m.now().UTC()},
		},
	)
	if err != nil {
		return false, err
	}
	if res.ModifiedCount == 1 {
		return true, nil
	}
	return false, m.mustExist(ctx, id)
}

func (m *Mongo) mustExist(ctx context.Context, id primitive.ObjectID) error {
	ok, err := m.exists(ctx, database.CollectionIncidents, id)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrNotFound
	}
	return nil
}

func (m *Mongo) TransitionIncident(ctx context.Context, id primitive.ObjectID, from, to string, at time.Time) (bool, error) {
	set := bson.M{"status": to, "updated_at": at}
	if to == models.IncidentStatusResolved {
		set["resolved_at"] = at
	}

	res, err := m.coll(database.CollectionIncidents).UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (m *Mongo) DeleteIncident(ctx context.Context, id primitive.ObjectID) error {
	return m.deleteByID(ctx, database.CollectionIncidents, id)
}
