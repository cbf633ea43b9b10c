package georef

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelzeko/riverflow/internal/entities"
)

func verticalRiver() *entities.River {
	return &entities.River{
		ID:              1,
		Slug:            "test-fork",
		Vertices:        []entities.Coord{{Lon: -91.0, Lat: 37.0}, {Lon: -91.0, Lat: 36.5}},
		HeadwatersFirst: true,
	}
}

func zigzagRiver() *entities.River {
	return &entities.River{
		ID: 2,
		Vertices: []entities.Coord{
			{Lon: -91.00, Lat: 37.00},
			{Lon: -91.05, Lat: 36.90},
			{Lon: -91.00, Lat: 36.80},
			{Lon: -91.10, Lat: 36.70},
			{Lon: -91.12, Lat: 36.55},
		},
		HeadwatersFirst: true,
	}
}

func degreesToMiles(deg float64) float64 {
	return deg * math.Pi / 180 * EarthRadiusMiles
}

func TestProjectOntoRiver_VerticalExample(t *testing.T) {
	river := verticalRiver()

	p, err := ProjectOntoRiver(river, entities.Coord{Lon: -91.0, Lat: 36.8})
	require.NoError(t, err)

	assert.InDelta(t, degreesToMiles(0.2), p.MileFromHeadwaters, 1e-6)
	assert.InDelta(t, 13.82, p.MileFromHeadwaters, 0.01)
	assert.InDelta(t, 0, p.DistanceOffLineMiles, 1e-6)
	assert.InDelta(t, -91.0, p.Snapped.Lon, 1e-9)
	assert.InDelta(t, 36.8, p.Snapped.Lat, 1e-9)
	assert.InDelta(t, 34.55, LengthMiles(river.Vertices), 0.01)
}

func TestProjectOntoRiver_OffLinePoint(t *testing.T) {
	river := verticalRiver()

	p, err := ProjectOntoRiver(river, entities.Coord{Lon: -90.9, Lat: 36.8})
	require.NoError(t, err)

	assert.InDelta(t, 13.82, p.MileFromHeadwaters, 0.05)
	assert.InDelta(t, -91.0, p.Snapped.Lon, 1e-6)
	// 0.1 degree of longitude at 36.8N is a little under 5.6 miles
	assert.InDelta(t, 5.53, p.DistanceOffLineMiles, 0.05)
}

func TestProjectOntoRiver_ClampsToEndpoints(t *testing.T) {
	river := verticalRiver()

	north, err := ProjectOntoRiver(river, entities.Coord{Lon: -91.0, Lat: 37.3})
	require.NoError(t, err)
	assert.InDelta(t, 0, north.MileFromHeadwaters, 1e-9)
	assert.InDelta(t, 37.0, north.Snapped.Lat, 1e-9)

	south, err := ProjectOntoRiver(river, entities.Coord{Lon: -91.0, Lat: 36.0})
	require.NoError(t, err)
	assert.InDelta(t, LengthMiles(river.Vertices), south.MileFromHeadwaters, 1e-9)
}

func TestProjectOntoRiver_Degenerate(t *testing.T) {
	tests := []struct {
		name  string
		river *entities.River
	}{
		{"nil river", nil},
		{"no vertices", &entities.River{ID: 3}},
		{"single vertex", &entities.River{ID: 4, Vertices: []entities.Coord{{Lon: -91, Lat: 37}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ProjectOntoRiver(tt.river, entities.Coord{Lon: -91, Lat: 37})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDegenerateGeometry)
			assert.Zero(t, p)
		})
	}
}

func TestProjectOntoRiver_Deterministic(t *testing.T) {
	river := zigzagRiver()
	pt := entities.Coord{Lon: -91.04, Lat: 36.83}

	first, err := ProjectOntoRiver(river, pt)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		again, err := ProjectOntoRiver(river, pt)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestProjectOntoRiver_Monotonic(t *testing.T) {
	river := zigzagRiver()
	total := LengthMiles(river.Vertices)

	prev := -1.0
	for m := 0.0; m <= total; m += total / 40 {
		pt, err := PointAtMile(river, m)
		require.NoError(t, err)

		p, err := ProjectOntoRiver(river, pt)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p.MileFromHeadwaters, prev, "mile %.3f", m)
		assert.InDelta(t, m, p.MileFromHeadwaters, 1e-6)
		prev = p.MileFromHeadwaters
	}
}

func TestProjectOntoRiver_DirectionInvariance(t *testing.T) {
	river := zigzagRiver()
	reversed := Reverse(river)
	require.False(t, reversed.HeadwatersFirst)
	require.Equal(t, river.Vertices[0], reversed.Vertices[len(reversed.Vertices)-1])

	points := []entities.Coord{
		{Lon: -91.00, Lat: 37.00},
		{Lon: -91.04, Lat: 36.83},
		{Lon: -91.08, Lat: 36.71},
		{Lon: -91.20, Lat: 36.60},
		{Lon: -90.90, Lat: 36.95},
	}
	for _, pt := range points {
		a, err := ProjectOntoRiver(river, pt)
		require.NoError(t, err)
		b, err := ProjectOntoRiver(reversed, pt)
		require.NoError(t, err)

		assert.InDelta(t, a.MileFromHeadwaters, b.MileFromHeadwaters, 1e-9)
		assert.InDelta(t, a.DistanceOffLineMiles, b.DistanceOffLineMiles, 1e-9)
	}
}

func TestProjectOntoRiver_TiePrefersUpstream(t *testing.T) {
	// U-shaped course: the point sits exactly between the two arms.
	river := &entities.River{
		ID: 5,
		Vertices: []entities.Coord{
			{Lon: 0, Lat: 1}, {Lon: 0, Lat: 0}, {Lon: 1, Lat: 0}, {Lon: 1, Lat: 1},
		},
		HeadwatersFirst: true,
	}
	pt := entities.Coord{Lon: 0.5, Lat: 0.9}

	p, err := ProjectOntoRiver(river, pt)
	require.NoError(t, err)
	assert.Equal(t, 0, p.SegmentIndex)

	river.HeadwatersFirst = false
	p, err = ProjectOntoRiver(river, pt)
	require.NoError(t, err)
	assert.Equal(t, 2, p.SegmentIndex)
	assert.Less(t, p.MileFromHeadwaters, LengthMiles(river.Vertices)/2)
}

func TestPointAtMile(t *testing.T) {
	river := verticalRiver()

	c, err := PointAtMile(river, degreesToMiles(0.2))
	require.NoError(t, err)
	assert.InDelta(t, 36.8, c.Lat, 1e-9)

	river.HeadwatersFirst = false
	c, err = PointAtMile(river, degreesToMiles(0.2))
	require.NoError(t, err)
	assert.InDelta(t, 36.7, c.Lat, 1e-9)

	_, err = PointAtMile(river, -1)
	assert.ErrorIs(t, err, ErrMileOutOfRange)
	_, err = PointAtMile(river, 100)
	assert.ErrorIs(t, err, ErrMileOutOfRange)
}
