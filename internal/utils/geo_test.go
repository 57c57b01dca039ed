package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"comunitarr/internal/models"
)

func TestCalculateDistance(t *testing.T) {
	// Rambla Nova -> Serrallo, Tarragona
	rambla := models.NewPoint(41.1167, 1.2533)
	serrallo := models.NewPoint(41.1078, 1.2392)

	d := CalculateDistance(rambla, serrallo)
	assert.InDelta(t, 1.5, d, 0.2)
	assert.InDelta(t, d, CalculateDistance(serrallo, rambla), 1e-9)
	assert.Zero(t, CalculateDistance(rambla, rambla))

	// Tarragona -> Barcelona is roughly 82 km
	assert.InDelta(t, 82, CalculateDistance(rambla, models.NewPoint(41.3874, 2.1686)), 3)
}

func TestRadiusToRadians(t *testing.T) {
	assert.InDelta(t, 1.0, RadiusToRadians(6371), 1e-12)
}
