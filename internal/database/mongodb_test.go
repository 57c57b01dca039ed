package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestIndexesCoverEveryCollection(t *testing.T) {
	idx := Indexes()
	for _, name := range []string{
		CollectionUsers, CollectionForum, CollectionAnnouncements, CollectionIncidents,
		CollectionNotifications, CollectionDeviceTokens, CollectionProducts, CollectionOrders,
	} {
		assert.NotEmpty(t, idx[name], name)
	}
}

func TestForumClientIDIndexIsUnique(t *testing.T) {
	var found bool
	for _, m := range Indexes()[CollectionForum] {
		keys, ok := m.Keys.(bson.D)
		require.True(t, ok)
		if len(keys) == 3 && keys[2].Key == "client_id" {
			require.NotNil(t, m.Options)
			require.NotNil(t, m.Options.Unique)
			found = *m.Options.Unique
		}
	}
	assert.True(t, found)
}

func TestIncidentsHaveGeoIndex(t *testing.T) {
	var geo bool
	for _, m := range Indexes()[CollectionIncidents] {
		keys := m.Keys.(bson.D)
		if keys[0].Key == "location" && keys[0].Value == "2dsphere" {
			geo = true
		}
	}
	assert.True(t, geo)
}
