// Package georef implements linear referencing along river polylines:
// projecting coordinates onto a river and expressing positions as river miles.
//
// All distances are geodesic. Segments are great-circle edges and lengths are
// haversine distances on a sphere of radius EarthRadiusMiles.
package georef

import (
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"

	"github.com/abelzeko/riverflow/internal/entities"
)

// EarthRadiusMiles is the mean Earth radius used for every distance in this package.
const EarthRadiusMiles = 3958.8

// DistanceMiles returns the haversine distance between two coordinates.
func DistanceMiles(a, b entities.Coord) float64 {
	return angleMiles(toLatLng(a).Distance(toLatLng(b)))
}

// LengthMiles returns the along-line length of a polyline.
func LengthMiles(vertices []entities.Coord) float64 {
	var total float64
	for i := 0; i+1 < len(vertices); i++ {
		total += DistanceMiles(vertices[i], vertices[i+1])
	}
	return total
}

func toLatLng(c entities.Coord) s2.LatLng {
	return s2.LatLngFromDegrees(c.Lat, c.Lon)
}

func toPoint(c entities.Coord) s2.Point {
	return s2.PointFromLatLng(toLatLng(c))
}

func toCoord(p s2.Point) entities.Coord {
	ll := s2.LatLngFromPoint(p)
	return entities.Coord{Lon: ll.Lng.Degrees(), Lat: ll.Lat.Degrees()}
}

func angleMiles(a s1.Angle) float64 {
	return a.Radians() * EarthRadiusMiles
}
