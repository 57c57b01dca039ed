// internal/database/mongodb.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"comunitarr/internal/config"
)

// Collection names.
const (
	CollectionUsers         = "users"
	CollectionForum         = "forum_messages"
	CollectionAnnouncements = "announcements"
	CollectionIncidents     = "incidents"
	CollectionNotifications = "notifications"
	CollectionDeviceTokens  = "device_tokens"
	CollectionProducts      = "products"
	CollectionOrders        = "orders"
)

type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
	log      *logrus.Entry
}

func NewMongoDB(cfg *config.Config, log *logrus.Entry) (*MongoDB, error) {
	timeout := time.Duration(cfg.MongoTimeout) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Настройки клиента
	clientOptions := options.Client().
		ApplyURI(cfg.MongoURI).
		SetMaxPoolSize(100).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(timeout)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.WithField("database", cfg.DatabaseName).Info("connected to MongoDB")

	return &MongoDB{
		Client:   client,
		Database: client.Database(cfg.DatabaseName),
		log:      log,
	}, nil
}

// Ping is used by the readiness probe.
func (m *MongoDB) Ping(ctx context.Context) error {
	return m.Client.Ping(ctx, readpref.Primary())
}

func (m *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := m.Client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}

	m.log.Info("disconnected from MongoDB")
	return nil
}

// Indexes lists the indexes of every collection.
// ВАЖНО: bson.D, чтобы сохранить порядок ключей
func Indexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		CollectionUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
			{Keys: bson.D{{Key: "neighborhood", Value: 1}, {Key: "comuni_points", Value: -1}}},
		},
		CollectionForum: {
			// история комнаты
			{Keys: bson.D{{Key: "neighborhood", Value: 1}, {Key: "room", Value: 1}, {Key: "created_at", Value: -1}}},
			// идемпотентность по client_id
			{
				Keys:    bson.D{{Key: "neighborhood", Value: 1}, {Key: "room", Value: 1}, {Key: "client_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
		CollectionAnnouncements: {
			{Keys: bson.D{{Key: "neighborhood", Value: 1}, {Key: "is_pinned", Value: -1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "neighborhood", Value: 1}, {Key: "category", Value: 1}}},
			{Keys: bson.D{{Key: "author_id", Value: 1}}},
			{Keys: bson.D{{Key: "expires_at", Value: 1}}},
		},
		CollectionIncidents: {
			{Keys: bson.D{{Key: "neighborhood", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "neighborhood", Value: 1}, {Key: "category", Value: 1}}},
			{Keys: bson.D{{Key: "location", Value: "2dsphere"}}},
			{Keys: bson.D{{Key: "reporter_id", Value: 1}}},
		},
		CollectionNotifications: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "is_read", Value: 1}}},
		},
		CollectionDeviceTokens: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
			{Keys: bson.D{{Key: "fcm_token", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		CollectionProducts: {
			{Keys: bson.D{{Key: "sku", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "is_active", Value: 1}, {Key: "category", Value: 1}, {Key: "name", Value: 1}}},
		},
		CollectionOrders: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
	}
}

// CreateIndexes создает индексы для всех коллекций.
func (m *MongoDB) CreateIndexes(ctx context.Context) error {
	for name, idx := range Indexes() {
		if _, err := m.Database.Collection(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("failed to create indexes for %s: %w", name, err)
		}
		m.log.WithFields(logrus.Fields{"collection": name, "indexes": len(idx)}).Debug("indexes ensured")
	}

	m.log.Info("✅ indexes created for all collections")
	return nil
}
