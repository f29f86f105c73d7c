package boundary

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"io/ioutil"
	"strings"

	"github.com/border-inspection/tourgen/geodesy"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// parseKML walks the document looking for Polygon outer boundaries. Polygons
// may be nested at any depth (Folder, Placemark, MultiGeometry), so the
// decoder is driven token by token instead of through fixed structs.
func parseKML(blob []byte) (*document, error) {
	doc := &document{tags: map[string]string{}}
	dec := xml.NewDecoder(bytes.NewReader(blob))

	var (
		stack []string
		text  strings.Builder
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "kml")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name.Local)
			text.Reset()
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			switch {
			case t.Name.Local == "coordinates" && within(stack, "outerBoundaryIs"):
				ring, err := parseCoordinates(text.String())
				if err != nil {
					return nil, err
				}
				doc.rings = append(doc.rings, ring)
			case t.Name.Local == "name" && within(stack, "Placemark"):
				if _, ok := doc.tags["name"]; !ok {
					doc.tags["name"] = strings.TrimSpace(text.String())
				}
			}
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			text.Reset()
		}
	}
	return doc, nil
}

// parseKMZ opens the zipped archive and parses the first KML document in it,
// preferring doc.kml.
func parseKMZ(blob []byte) (*document, error) {
	zr, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return nil, errors.Wrap(err, "kmz")
	}
	var entry *zip.File
	for _, f := range zr.File {
		if !strings.HasSuffix(strings.ToLower(f.Name), ".kml") {
			continue
		}
		if entry == nil || f.Name == "doc.kml" {
			entry = f
		}
	}
	if entry == nil {
		return nil, errors.Wrap(NoRingErr, "kmz archive has no kml document")
	}
	rc, err := entry.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "kmz: cannot open %s", entry.Name)
	}
	defer rc.Close()
	data, err := ioutil.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "kmz: cannot read %s", entry.Name)
	}
	return parseKML(data)
}

// parseCoordinates reads "lon,lat[,alt]" tuples separated by whitespace.
func parseCoordinates(s string) ([]geodesy.Point, error) {
	tuples := strings.Fields(s)
	ring := make([]geodesy.Point, 0, len(tuples))
	for _, tuple := range tuples {
		vals := strings.Split(tuple, ",")
		if len(vals) < 2 {
			return nil, errors.Errorf("kml: malformed coordinate %q", tuple)
		}
		lon, err := cast.ToFloat64E(strings.TrimSpace(vals[0]))
		if err != nil {
			return nil, errors.Wrapf(err, "kml: malformed longitude in %q", tuple)
		}
		lat, err := cast.ToFloat64E(strings.TrimSpace(vals[1]))
		if err != nil {
			return nil, errors.Wrapf(err, "kml: malformed latitude in %q", tuple)
		}
		ring = append(ring, geodesy.Point{Lon: lon, Lat: lat})
	}
	return ring, nil
}

func within(stack []string, name string) bool {
	for _, s := range stack {
		if s == name {
			return true
		}
	}
	return false
}
