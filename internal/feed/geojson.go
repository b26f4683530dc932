package feed

import (
	"encoding/json"
	"fmt"
)

// FeatureCollection is a decoded GeoJSON product. Polygons carries one entry
// per MultiPolygon feature, in feature order.
type FeatureCollection struct {
	Product  string
	Polygons []PolygonFeature
}

// PolygonFeature is one MultiPolygon feature flattened into (lat, lon) rings
// with its SPC properties attached.
type PolygonFeature struct {
	Title string     // product tag supplied by the caller, e.g. "tornado"
	Rings [][]LatLon // outer and hole rings, flattened across polygons
	Props Properties
}

// LatLon is a coordinate pair in latitude-first order, reordered from
// GeoJSON's lon-before-lat.
type LatLon struct {
	Lat float64
	Lon float64
}

// Properties is the SPC attribute set attached to each shape feature.
type Properties struct {
	DN     int    `json:"DN"`     // probability bucket or categorical code
	Valid  string `json:"VALID"`  // yyyymmddHHMM strings
	Expire string `json:"EXPIRE"`
	Issue  string `json:"ISSUE"`
	Label  string `json:"LABEL"`  // e.g. "SLGT", "0.10", "SIGN"
	Label2 string `json:"LABEL2"` // human description
	Stroke string `json:"stroke"`
	Fill   string `json:"fill"`
}

// geojson wire types; geometry coordinates stay raw until the type literal
// is checked.
type rawCollection struct {
	Type     string       `json:"type"`
	Features []rawFeature `json:"features"`
}

type rawFeature struct {
	Type       string      `json:"type"`
	Geometry   rawGeometry `json:"geometry"`
	Properties Properties  `json:"properties"`
}

type rawGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// DecodeGeoJSON decodes an SPC shape product. Only MultiPolygon geometries
// produce polygons; features with any other geometry type decode as empty
// for that feature rather than failing, so upstream schema drift on one feed
// must not halt the others. Structurally corrupt JSON returns a *ParseError;
// the caller substitutes an empty collection.
func DecodeGeoJSON(product string, data []byte) (FeatureCollection, error) {
	var raw rawCollection
	if err := json.Unmarshal(data, &raw); err != nil {
		return FeatureCollection{}, &ParseError{Feed: product, Err: err}
	}
	if raw.Type != "FeatureCollection" {
		return FeatureCollection{}, &ParseError{Feed: product, Err: fmt.Errorf("unexpected type %q", raw.Type)}
	}

	fc := FeatureCollection{Product: product}
	for _, f := range raw.Features {
		pf := PolygonFeature{Title: product, Props: f.Properties}
		if f.Geometry.Type == "MultiPolygon" && len(f.Geometry.Coordinates) > 0 {
			rings, err := flattenMultiPolygon(f.Geometry.Coordinates)
			if err != nil {
				return FeatureCollection{}, &ParseError{Feed: product, Err: err}
			}
			pf.Rings = rings
		}
		fc.Polygons = append(fc.Polygons, pf)
	}
	return fc, nil
}

// flattenMultiPolygon unnests [polygon][ring][point][lon,lat] into ordered
// latitude-first rings, dropping the polygon level of nesting.
func flattenMultiPolygon(coords json.RawMessage) ([][]LatLon, error) {
	var nested [][][][2]float64
	if err := json.Unmarshal(coords, &nested); err != nil {
		return nil, fmt.Errorf("multipolygon coordinates: %w", err)
	}

	var rings [][]LatLon
	for _, polygon := range nested {
		for _, ring := range polygon {
			out := make([]LatLon, 0, len(ring))
			for _, pt := range ring {
				out = append(out, LatLon{Lat: pt[1], Lon: pt[0]})
			}
			rings = append(rings, out)
		}
	}
	return rings, nil
}
