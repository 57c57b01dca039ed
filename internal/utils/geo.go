package utils

import (
	"math"

	"comunitarr/internal/models"
)

const earthRadiusKm = 6371

// CalculateDistance returns the great-circle distance in kilometres (Haversine).
func CalculateDistance(loc1, loc2 models.Location) float64 {
	lat1Rad := toRadians(loc1.Lat())
	lon1Rad := toRadians(loc1.Lng())
	lat2Rad := toRadians(loc2.Lat())
	lon2Rad := toRadians(loc2.Lng())

	deltaLat := lat2Rad - lat1Rad
	deltaLon := lon2Rad - lon1Rad

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// RadiusToRadians converts kilometres to the angle $centerSphere expects.
func RadiusToRadians(km float64) float64 {
	return km / earthRadiusKm
}

func toRadians(degrees float64) float64 {
	return degrees * (math.Pi / 180)
}
