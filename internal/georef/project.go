package georef

import (
	"math"

	"github.com/golang/geo/s2"
	"github.com/rotisserie/eris"

	"github.com/abelzeko/riverflow/internal/entities"
)

// tieEpsilonMiles is the distance under which two candidate segments are
// considered equally close to a point.
const tieEpsilonMiles = 1e-9

// Projection is the result of snapping a coordinate onto a river.
type Projection struct {
	Snapped              entities.Coord
	MileFromHeadwaters   float64
	AlongLineMiles       float64 // Distance from Vertices[0], regardless of direction
	DistanceOffLineMiles float64
	SegmentIndex         int
}

type segmentHit struct {
	index   int
	snapped s2.Point
	off     float64
	along   float64
}

// ProjectOntoRiver snaps p onto the nearest point of the river's course and
// returns its river mile measured from the headwaters.
func ProjectOntoRiver(river *entities.River, p entities.Coord) (Projection, error) {
	if river == nil {
		return Projection{}, eris.Wrap(ErrDegenerateGeometry, "nil river")
	}
	v := river.Vertices
	if len(v) < 2 {
		return Projection{}, eris.Wrapf(ErrDegenerateGeometry, "river %d has %d vertices", river.ID, len(v))
	}

	x := toPoint(p)
	hits := make([]segmentHit, 0, len(v)-1)
	var along float64
	for i := 0; i+1 < len(v); i++ {
		a, b := toPoint(v[i]), toPoint(v[i+1])
		snapped := s2.Project(x, a, b)
		hits = append(hits, segmentHit{
			index:   i,
			snapped: snapped,
			off:     angleMiles(x.Distance(snapped)),
			along:   along + angleMiles(a.Distance(snapped)),
		})
		along += angleMiles(a.Distance(b))
	}
	total := along

	best := -1
	var bestMile float64
	for i, h := range hits {
		mile := mileFromAlong(h.along, total, river.HeadwatersFirst)
		if best < 0 {
			best, bestMile = i, mile
			continue
		}
		d := h.off - hits[best].off
		switch {
		case d < -tieEpsilonMiles:
			best, bestMile = i, mile
		case math.Abs(d) <= tieEpsilonMiles && mile < bestMile:
			// upstream first
			best, bestMile = i, mile
		}
	}

	h := hits[best]
	return Projection{
		Snapped:              toCoord(h.snapped),
		MileFromHeadwaters:   bestMile,
		AlongLineMiles:       h.along,
		DistanceOffLineMiles: h.off,
		SegmentIndex:         h.index,
	}, nil
}

// PointAtMile returns the coordinate on the river at the given river mile.
func PointAtMile(river *entities.River, mile float64) (entities.Coord, error) {
	if river == nil || len(river.Vertices) < 2 {
		return entities.Coord{}, eris.Wrap(ErrDegenerateGeometry, "point at mile")
	}
	v := river.Vertices
	total := LengthMiles(v)
	if mile < 0 || mile > total+tieEpsilonMiles || math.IsNaN(mile) {
		return entities.Coord{}, eris.Wrapf(ErrMileOutOfRange, "mile %.3f not within [0, %.3f]", mile, total)
	}
	target := mileFromAlong(mile, total, river.HeadwatersFirst)

	var along float64
	for i := 0; i+1 < len(v); i++ {
		seg := DistanceMiles(v[i], v[i+1])
		if seg == 0 {
			continue
		}
		if along+seg >= target {
			t := (target - along) / seg
			return toCoord(s2.Interpolate(t, toPoint(v[i]), toPoint(v[i+1]))), nil
		}
		along += seg
	}
	return v[len(v)-1], nil
}

// Reverse returns a copy of river with its vertex order and direction flag flipped.
// River miles of every point are unchanged by the reversal.
func Reverse(river *entities.River) *entities.River {
	out := *river
	out.Vertices = make([]entities.Coord, len(river.Vertices))
	for i, c := range river.Vertices {
		out.Vertices[len(river.Vertices)-1-i] = c
	}
	out.HeadwatersFirst = !river.HeadwatersFirst
	return &out
}

// mileFromAlong converts along-line distance from vertex 0 to miles from the
// headwaters. The conversion is its own inverse.
func mileFromAlong(along, total float64, headwatersFirst bool) float64 {
	if headwatersFirst {
		return along
	}
	return total - along
}
