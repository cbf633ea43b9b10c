package georef

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-polyline"

	"github.com/abelzeko/riverflow/internal/entities"
)

// FromGeoJSON reads a river course from a GeoJSON LineString, a single-part
// MultiLineString, or a Feature / FeatureCollection wrapping one.
func FromGeoJSON(data []byte) ([]entities.Coord, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, eris.Wrap(err, "georef: read geojson type")
	}

	var g geom.T
	switch head.Type {
	case "FeatureCollection":
		var fc geojson.FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, eris.Wrap(err, "georef: decode feature collection")
		}
		if len(fc.Features) != 1 {
			return nil, eris.Errorf("georef: expected 1 feature, got %d", len(fc.Features))
		}
		g = fc.Features[0].Geometry
	case "Feature":
		var f geojson.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, eris.Wrap(err, "georef: decode feature")
		}
		g = f.Geometry
	default:
		if err := geojson.Unmarshal(data, &g); err != nil {
			return nil, eris.Wrap(err, "georef: decode geometry")
		}
	}

	return coordsFromGeom(g)
}

func coordsFromGeom(g geom.T) ([]entities.Coord, error) {
	switch t := g.(type) {
	case *geom.LineString:
		return lineCoords(t), nil
	case *geom.MultiLineString:
		if t.NumLineStrings() != 1 {
			return nil, eris.Errorf("georef: multilinestring has %d parts, want 1", t.NumLineStrings())
		}
		return lineCoords(t.LineString(0)), nil
	case nil:
		return nil, eris.New("georef: missing geometry")
	default:
		return nil, eris.Errorf("georef: unsupported geometry %T", g)
	}
}

func lineCoords(ls *geom.LineString) []entities.Coord {
	out := make([]entities.Coord, 0, ls.NumCoords())
	for _, c := range ls.Coords() {
		out = append(out, entities.Coord{Lon: c[0], Lat: c[1]})
	}
	return out
}

// FromEncodedPolyline decodes a Google encoded polyline (lat/lng order, 1e5 precision).
func FromEncodedPolyline(encoded string) ([]entities.Coord, error) {
	coords, rest, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, eris.Wrap(err, "georef: decode polyline")
	}
	if len(rest) > 0 {
		return nil, eris.Errorf("georef: %d trailing bytes after polyline", len(rest))
	}
	out := make([]entities.Coord, 0, len(coords))
	for _, c := range coords {
		out = append(out, entities.Coord{Lat: c[0], Lon: c[1]})
	}
	return out, nil
}

// EncodePolyline encodes vertices as a Google encoded polyline.
func EncodePolyline(vertices []entities.Coord) string {
	coords := make([][]float64, 0, len(vertices))
	for _, c := range vertices {
		coords = append(coords, []float64{c.Lat, c.Lon})
	}
	return string(polyline.EncodeCoords(coords))
}
