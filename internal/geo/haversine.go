// Package geo holds the great-circle math used by the review submission gate.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius of the spherical approximation.
const EarthRadiusMeters = 6_371_000.0

// DistanceMeters returns the haversine distance between two WGS-84 points.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Pow(math.Sin(dLon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// Within reports whether the two points are at most radius meters apart.
func Within(lat1, lon1, lat2, lon2, radius float64) bool {
	return DistanceMeters(lat1, lon1, lat2, lon2) <= radius
}

// OffsetNorth returns the latitude reached by moving meters due north from lat.
func OffsetNorth(lat, meters float64) float64 {
	return lat + meters/EarthRadiusMeters*180/math.Pi
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
