// README: Pure geographic helpers shared by the nearby index and the mileage fallback.
package location

import (
	"math"

	"marketpace/internal/types"
)

const (
	earthRadiusKm = 6371.0
	kmPerMile     = 1.609344
)

// haversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

func DistanceKm(a, b types.Point) float64 {
	return haversineKm(a.Lat, a.Lng, b.Lat, b.Lng)
}

// DistanceMiles is the straight-line distance in statute miles.
func DistanceMiles(a, b types.Point) float64 {
	return DistanceKm(a, b) / kmPerMile
}

func MilesToKm(mi float64) float64 {
	return mi * kmPerMile
}
