package georef

import (
	"math"

	"github.com/golang/geo/s2"
	"github.com/rotisserie/eris"

	"github.com/abelzeko/riverflow/internal/entities"
)

// ValidateGeometry checks that vertices describe a usable river course: at
// least two valid, distinct vertices forming a path that never crosses itself.
func ValidateGeometry(vertices []entities.Coord) error {
	if len(vertices) < 2 {
		return eris.Wrapf(ErrDegenerateGeometry, "%d vertices", len(vertices))
	}

	seen := make(map[entities.Coord]int, len(vertices))
	for i, c := range vertices {
		if !validCoord(c) {
			return eris.Wrapf(ErrInvalidCoordinate, "vertex %d (%f, %f)", i, c.Lon, c.Lat)
		}
		if j, ok := seen[c]; ok {
			return eris.Wrapf(ErrDuplicateVertex, "vertex %d repeats vertex %d", i, j)
		}
		seen[c] = i
	}

	points := make([]s2.Point, len(vertices))
	for i, c := range vertices {
		points[i] = toPoint(c)
	}
	for i := 0; i+1 < len(points); i++ {
		// adjacent segments share a vertex and always touch
		for j := i + 2; j+1 < len(points); j++ {
			if s2.CrossingSign(points[i], points[i+1], points[j], points[j+1]) == s2.Cross {
				return eris.Wrapf(ErrSelfIntersecting, "segment %d crosses segment %d", i, j)
			}
		}
	}
	return nil
}

func validCoord(c entities.Coord) bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}
