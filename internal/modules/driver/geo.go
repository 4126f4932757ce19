// README: Pure geographic helpers for ranking drivers by distance.
package driver

import (
	"math"

	"dispatch/internal/types"
)

const earthRadiusKm = 6371.0

// haversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func haversineKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// WithinRadius keeps eligible drivers that have a location no farther than
// radiusKm from p, nearest first. Equal distances keep input order.
func WithinRadius(drivers []Driver, p types.Point, radiusKm float64) []Candidate {
	out := make([]Candidate, 0, len(drivers))
	for _, d := range drivers {
		if !d.Eligible() || d.LastLocation == nil || !d.LastLocation.Valid() {
			continue
		}
		dist := haversineKm(d.LastLocation.Point, p)
		if dist <= radiusKm {
			out = append(out, Candidate{Driver: d, DistanceKm: dist})
		}
	}
	sortByDistance(out, func(c Candidate) float64 { return c.DistanceKm })
	return out
}

// sortByDistance performs an insertion sort (fine for small N) on any slice
// where each element exposes a distance via the accessor function.
func sortByDistance[T any](items []T, dist func(T) float64) {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && dist(items[j]) > dist(key) {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}
