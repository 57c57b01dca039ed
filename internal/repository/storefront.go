package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"comunitarr/internal/database"
	"comunitarr/internal/models"
)

func (m *Mongo) InsertProduct(ctx context.Context, p *models.Product) error {
	_, err := m.coll(database.CollectionProducts).InsertOne(ctx, p)
	if mongo.IsDuplicateKeyError(err) {
		return models.ErrDuplicate
	}
	return err
}

func (m *Mongo) FindProductByID(ctx context.Context, id primitive.ObjectID) (*models.Product, error) {
	var p models.Product
	if err := m.findOne(ctx, database.CollectionProducts, bson.M{"_id": id}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (m *Mongo) ListProducts(ctx context.Context, f models.ProductFilter) ([]*models.Product, int64, error) {
	filter := bson.M{}
	if f.ActiveOnly {
		filter["is_active"] = true
	}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	return paged[models.Product](ctx, m.coll(database.CollectionProducts), filter, bson.D{{Key: "name", Value: 1}}, f.Page, f.Limit)
}

func (m *Mongo) UpdateProduct(ctx context.Context, id primitive.ObjectID, u models.ProductUpdate) error {
	set := bson.M{"updated_at": u.UpdatedAt}
	if u.Name != nil {
		set["name"] = *u.Name
	}
	if u.Description != nil {
		set["description"] = *u.Description
	}
	if u.Category != nil {
		set["category"] = *u.Category
	}
	if u.PriceCents != nil {
		set["price_cents"] = *u.PriceCents
	}
	if u.Stock != nil {
		set["stock"] = *u.Stock
	}
	if u.Images != nil {
		set["images"] = u.Images
	}
	if u.IsActive != nil {
		set["is_active"] = *u.IsActive
	}

	res, err := m.coll(database.CollectionProducts).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ReserveStock is a conditional decrement, so concurrent checkouts cannot oversell.
func (m *Mongo) ReserveStock(ctx context.Context, id primitive.ObjectID, qty int) (bool, error) {
	res, err := m.coll(database.CollectionProducts).UpdateOne(ctx,
		bson.M{"_id": id, "is_active": true, "stock": bson.M{"$gte": qty}},
		bson.M{"$inc": bson.M{"stock": -qty}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (m *Mongo) ReleaseStock(ctx context.Context, id primitive.ObjectID, qty int) error {
	res, err := m.coll(database.CollectionProducts).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"stock": qty}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (m *Mongo) InsertOrder(ctx context.Context, o *models.Order) error {
	_, err := m.coll(database.CollectionOrders).InsertOne(ctx, o)
	return err
}

func (m *Mongo) FindOrderByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	var o models.Order
	if err := m.findOne(ctx, database.CollectionOrders, bson.M{"_id": id}, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (m *Mongo) ListOrdersByUser(ctx context.Context, userID primitive.ObjectID, limit int) ([]*models.Order, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := m.coll(database.CollectionOrders).Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	orders := make([]*models.Order, 0, limit)
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (m *Mongo) TransitionOrder(ctx context.Context, id primitive.ObjectID, from, to string, at time.Time) (bool, error) {
	res, err := m.coll(database.CollectionOrders).UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "updated_at": at}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}
