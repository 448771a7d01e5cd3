// Package match finds the drillhole nearest to a position fix.
package match

import (
	"math"
	"sort"

	"github.com/wintech-vn/drilltrack/internal/geo"
	"github.com/wintech-vn/drilltrack/internal/model"
)

// FindNearest returns the hole closest to the fix and its great-circle
// distance in meters. Holes without coordinates are never considered.
// Comparison is strict, so the first hole encountered wins exact ties.
// Returns (nil, +Inf) when no hole has coordinates.
//
// The distance gate is the caller's concern: a returned match may still be
// farther than the configured maximum.
func FindNearest(holes []model.Hole, fix model.PositionFix) (*model.Hole, float64) {
	var nearest *model.Hole
	minDistance := math.Inf(1)

	for i := range holes {
		h := &holes[i]
		if !h.HasCoordinates() {
			continue
		}
		d := geo.HaversineDistance(fix.Latitude, fix.Longitude, *h.Latitude, *h.Longitude)
		if d < minDistance {
			minDistance = d
			nearest = h
		}
	}

	return nearest, minDistance
}

// Ranked pairs a hole with its distance from a fix.
type Ranked struct {
	Hole     model.Hole
	Distance float64
}

// SortedByDistance returns the holes with coordinates ordered nearest-first,
// using the 3D distance when both the fix and the hole carry an elevation.
// maxDistance <= 0 means no gate; limit <= 0 means no cap. The sort is stable
// so equidistant holes keep their API order.
func SortedByDistance(holes []model.Hole, fix model.PositionFix, maxDistance float64, limit int) []Ranked {
	ranked := make([]Ranked, 0, len(holes))
	for _, h := range holes {
		if !h.HasCoordinates() {
			continue
		}
		d := geo.Distance3D(fix.Latitude, fix.Longitude, fix.Elevation, *h.Latitude, *h.Longitude, h.Elevation)
		if maxDistance > 0 && d > maxDistance {
			continue
		}
		ranked = append(ranked, Ranked{Hole: h, Distance: d})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Distance < ranked[j].Distance
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
