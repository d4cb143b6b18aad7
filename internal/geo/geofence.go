package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used by the haversine distance.
const EarthRadiusMeters = 6371000.0

// Radius policy bounds for a session geofence, in meters.
const (
	MinRadius = 10
	MaxRadius = 500
)

// Point is a coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
}

// Geofence is the circular region a check-in must originate from.
type Geofence struct {
	Lat    float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon    float64 `json:"lon" validate:"gte=-180,lte=180"`
	Radius float64 `json:"radius" validate:"gte=10,lte=500"`
}

// Center returns the geofence center point.
func (g Geofence) Center() Point {
	return Point{Lat: g.Lat, Lon: g.Lon}
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// IsWithin reports whether p lies inside g, boundary included.
func IsWithin(p Point, g Geofence) bool {
	return Distance(p, g.Center()) <= g.Radius
}

// ValidCoordinates reports whether p is a finite coordinate in lat/lon range.
func ValidCoordinates(p Point) bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}
