package repository

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/abelzeko/riverflow/internal/entities"
)

// encodeCourse converts river vertices to EWKB LineString bytes with SRID 4326.
func encodeCourse(vertices []entities.Coord) ([]byte, error) {
	flat := make([]float64, 0, len(vertices)*2)
	for _, c := range vertices {
		flat = append(flat, c.Lon, c.Lat)
	}
	ls := geom.NewLineStringFlat(geom.XY, flat).SetSRID(4326)

	data, err := ewkb.Marshal(ls, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "repository: encode course")
	}
	return data, nil
}

// decodeCourse reads river vertices from EWKB LineString bytes.
func decodeCourse(data []byte) ([]entities.Coord, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "repository: decode course")
	}
	ls, ok := g.(*geom.LineString)
	if !ok {
		return nil, eris.Errorf("repository: course is %T, want LineString", g)
	}
	out := make([]entities.Coord, 0, ls.NumCoords())
	for _, c := range ls.Coords() {
		out = append(out, entities.Coord{Lon: c[0], Lat: c[1]})
	}
	return out, nil
}
