package geo

import (
	"math"

	"github.com/example/ride-dispatch/internal/models"
)

const earthRadiusKm = 6371.0

// DistanceKm is the great-circle (haversine) distance between two points,
// in kilometers, rounded to two decimals. NaN coordinates propagate.
func DistanceKm(a, b models.Coord) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return math.Round(earthRadiusKm*c*100) / 100
}

// Valid reports whether a coordinate is a usable GPS fix.
func Valid(c models.Coord) bool {
	return !math.IsNaN(c.Lat) && !math.IsNaN(c.Lng) &&
		c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// PickupETASeconds is a naive straight-line ETA at a fixed speed.
// In prod use a routing engine.
func PickupETASeconds(distanceKm, speedMps float64) float64 {
	if speedMps <= 0 {
		speedMps = 8.0 // ~28.8 km/h default city speed
	}
	return distanceKm * 1000 / speedMps
}

// RecommendedRadiusKm suggests a search radius for the current conditions.
// It is advisory only; the matcher filters by the caller-supplied radius.
//
// Policy: base 3 km, widened to 5 km during peak windows (07:00-09:00 and
// 17:00-20:00 inclusive), +2 km when fewer than 5 riders are available,
// +1 km for 5-9, +3 km outside urban areas, capped at 10 km.
func RecommendedRadiusKm(hourOfDay, availableRiderCount int, isUrban bool) float64 {
	radius := 3.0
	if (hourOfDay >= 7 && hourOfDay <= 9) || (hourOfDay >= 17 && hourOfDay <= 20) {
		radius = 5.0
	}
	switch {
	case availableRiderCount < 5:
		radius += 2
	case availableRiderCount < 10:
		radius += 1
	}
	if !isUrban {
		radius += 3
	}
	return math.Min(radius, 10)
}
