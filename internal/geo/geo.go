// Package geo provides the distance math used for hole matching and the
// projection helpers used when recording fixes.
package geo

import (
	"fmt"
	"math"
)

// earthRadiusMeters is the mean Earth radius used by the haversine formula.
const earthRadiusMeters = 6371000.0

// HaversineDistance returns the great-circle distance in meters between two
// WGS84 coordinates given in degrees.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := radians(lat1)
	phi2 := radians(lat2)
	deltaPhi := radians(lat2 - lat1)
	deltaLambda := radians(lon2 - lon1)

	a := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// Distance3D combines the great-circle distance with the vertical separation
// via the Pythagorean theorem. It treats the vertical leg as orthogonal to the
// curved horizontal leg, which is an approximation only valid at the short
// ranges this system works with. When either elevation is nil it falls back
// to the plain great-circle distance.
func Distance3D(lat1, lon1 float64, elev1 *float64, lat2, lon2 float64, elev2 *float64) float64 {
	horizontal := HaversineDistance(lat1, lon1, lat2, lon2)
	if elev1 == nil || elev2 == nil {
		return horizontal
	}
	vertical := math.Abs(*elev1 - *elev2)
	return math.Sqrt(horizontal*horizontal + vertical*vertical)
}

// FormatDistance renders a distance for log output, e.g. "15.3m" or "1.20km".
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%.1fm", meters)
	}
	return fmt.Sprintf("%.2fkm", meters/1000)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
