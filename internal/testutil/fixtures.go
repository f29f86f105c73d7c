package testutil

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

// SquareKML is a two-polygon KML document. The second polygon is the longer
// one: a one-degree square at the equator traced with an extra midpoint.
const SquareKML = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
<Document>
  <Placemark>
    <name>Austria</name>
    <MultiGeometry>
      <Polygon><outerBoundaryIs><LinearRing><coordinates>10,10 10.1,10 10.1,10.1 10,10</coordinates></LinearRing></outerBoundaryIs></Polygon>
      <Polygon>
        <outerBoundaryIs><LinearRing><coordinates>
          0,0 0.5,0 1,0 1,1 0,1 0,0
        </coordinates></LinearRing></outerBoundaryIs>
        <innerBoundaryIs><LinearRing><coordinates>0.2,0.2 0.3,0.2 0.3,0.3 0.2,0.2 0.25,0.25 0.2,0.2 0.2,0.2</coordinates></LinearRing></innerBoundaryIs>
      </Polygon>
    </MultiGeometry>
  </Placemark>
</Document>
</kml>`

// SquareGeoJSON is a FeatureCollection holding the unit square as a
// MultiPolygon with a smaller island, tagged the way the fetch command tags
// its output.
const SquareGeoJSON = `{
  "type": "FeatureCollection",
  "features": [{
    "type": "Feature",
    "properties": {"tags": {"ISO3166-1:alpha3": "NOR", "name:en": "Kingdom of Squares", "admin_level": "2"}},
    "geometry": {
      "type": "MultiPolygon",
      "coordinates": [
        [[[10, 10], [10.1, 10], [10.1, 10.1], [10, 10]]],
        [[[0, 0], [1, 0], [1, 1], [0, 1], [0, 0]]]
      ]
    }
  }]
}`

// KMZ wraps a KML document into a KMZ archive.
func KMZ(t *testing.T, kml string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("doc.kml")
	if err != nil {
		t.Fatalf("error creating kmz: %v", err)
	}
	if _, err := w.Write([]byte(kml)); err != nil {
		t.Fatalf("error writing kmz: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("error closing kmz: %v", err)
	}
	return buf.Bytes()
}

// WriteFixture stores data on the filesystem, creating parent directories.
func WriteFixture(t *testing.T, fs afero.Fs, name string, data []byte) string {
	t.Helper()
	if i := strings.LastIndex(name, "/"); i > 0 {
		if err := fs.MkdirAll(name[:i], 0755); err != nil {
			t.Fatalf("error creating fixture dir: %v", err)
		}
	}
	if err := afero.WriteFile(fs, name, data, 0644); err != nil {
		t.Fatalf("error writing fixture %s: %v", name, err)
	}
	return name
}

// RingKML renders a KML document with a single polygon made of the given
// lon/lat pairs.
func RingKML(points [][2]float64) string {
	coords := make([]string, len(points))
	for i, p := range points {
		coords[i] = fmt.Sprintf("%g,%g,0", p[0], p[1])
	}
	return `<kml><Document><Placemark><Polygon><outerBoundaryIs><LinearRing><coordinates>` +
		strings.Join(coords, " ") +
		`</coordinates></LinearRing></outerBoundaryIs></Polygon></Placemark></Document></kml>`
}
