package models

// Location is a GeoJSON point, coordinates are [longitude, latitude].
type Location struct {
	Type        string    `bson:"type" json:"type"`
	Coordinates []float64 `bson:"coordinates" json:"coordinates" binding:"len=2"`
}

func NewPoint(lat, lng float64) Location {
	return Location{Type: "Point", Coordinates: []float64{lng, lat}}
}

func (l Location) Lat() float64 {
	if len(l.Coordinates) != 2 {
		return 0
	}
	return l.Coordinates[1]
}

func (l Location) Lng() float64 {
	if len(l.Coordinates) != 2 {
		return 0
	}
	return l.Coordinates[0]
}

func (l Location) IsValid() bool {
	if l.Type != "Point" || len(l.Coordinates) != 2 {
		return false
	}
	lat, lng := l.Lat(), l.Lng()
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
