package boundary

import (
	"encoding/json"
	"fmt"

	"github.com/border-inspection/tourgen/geodesy"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"
)

// parseGeoJSON accepts a FeatureCollection, a single Feature or a bare
// geometry. Only outer rings of Polygon and MultiPolygon geometries are
// considered.
func parseGeoJSON(blob []byte) (*document, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(blob, &probe); err != nil {
		return nil, errors.Wrap(err, "geojson")
	}

	doc := &document{tags: map[string]string{}}
	switch probe.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(blob)
		if err != nil {
			return nil, errors.Wrap(err, "geojson")
		}
		for _, f := range fc.Features {
			doc.addFeature(f)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(blob)
		if err != nil {
			return nil, errors.Wrap(err, "geojson")
		}
		doc.addFeature(f)
	case "":
		return nil, errors.New("geojson: missing type")
	default:
		g, err := geojson.UnmarshalGeometry(blob)
		if err != nil {
			return nil, errors.Wrap(err, "geojson")
		}
		doc.addGeometry(g.Geometry())
	}
	return doc, nil
}

func (d *document) addFeature(f *geojson.Feature) {
	if f == nil {
		return
	}
	before := len(d.rings)
	d.addGeometry(f.Geometry)
	if len(d.rings) == before || len(d.tags) > 0 {
		return
	}
	// Features written by the fetch command keep the OSM tags nested under
	// "tags"; other producers put them at the top level.
	props := map[string]interface{}(f.Properties)
	if nested, ok := props["tags"].(map[string]interface{}); ok {
		props = nested
	}
	for k, v := range props {
		if s, ok := v.(string); ok {
			d.tags[k] = s
		} else if v != nil {
			d.tags[k] = fmt.Sprint(v)
		}
	}
}

func (d *document) addGeometry(g orb.Geometry) {
	switch g := g.(type) {
	case orb.Polygon:
		d.addPolygon(g)
	case orb.MultiPolygon:
		for _, p := range g {
			d.addPolygon(p)
		}
	case orb.Collection:
		for _, member := range g {
			d.addGeometry(member)
		}
	}
}

func (d *document) addPolygon(p orb.Polygon) {
	if len(p) == 0 {
		return
	}
	outer := p[0]
	ring := make([]geodesy.Point, len(outer))
	for i, pt := range outer {
		ring[i] = geodesy.Point{Lon: pt.Lon(), Lat: pt.Lat()}
	}
	d.rings = append(d.rings, ring)
}
