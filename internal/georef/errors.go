package georef

import "github.com/rotisserie/eris"

var (
	// ErrDegenerateGeometry is returned when a river has fewer than two vertices.
	ErrDegenerateGeometry = eris.New("georef: degenerate geometry")
	// ErrDuplicateVertex is returned when a vertex appears more than once in a course.
	ErrDuplicateVertex = eris.New("georef: duplicate vertex")
	// ErrSelfIntersecting is returned when two non-adjacent segments cross.
	ErrSelfIntersecting = eris.New("georef: self-intersecting course")
	// ErrInvalidCoordinate is returned for latitudes or longitudes out of range.
	ErrInvalidCoordinate = eris.New("georef: invalid coordinate")
	// ErrMileOutOfRange is returned when a mile lies beyond either end of a river.
	ErrMileOutOfRange = eris.New("georef: mile out of range")
	// ErrDirectionUnverifiable is returned when too few located markers exist to check direction.
	ErrDirectionUnverifiable = eris.New("georef: direction cannot be verified")
)
