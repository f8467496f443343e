package geo

import "math"

// earthRadiusMeters is the mean Earth radius used for great-circle math.
const earthRadiusMeters = 6371000.0

// Distance returns the haversine great-circle distance in meters between two
// coordinates. Inputs must already be range-checked; out-of-range values
// propagate as NaN rather than erroring.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := radians(lat1)
	phi2 := radians(lat2)
	dPhi := radians(lat2 - lat1)
	dLambda := radians(lng2 - lng1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// WithinRadius reports whether the point lies inside the circle centered at
// (centerLat, centerLng). The boundary is inclusive: a point at exactly
// radiusMeters counts as inside.
func WithinRadius(centerLat, centerLng, pointLat, pointLng, radiusMeters float64) bool {
	return Distance(centerLat, centerLng, pointLat, pointLng) <= radiusMeters
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
