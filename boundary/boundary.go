// Package boundary loads border polygons from KML, KMZ and GeoJSON files and
// picks the ring a tour is generated for.
package boundary

import (
	"context"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/border-inspection/tourgen/geodesy"
	"github.com/border-inspection/tourgen/s3"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

var (
	NoRingErr            = errors.New("no polygon ring found")
	UnsupportedFormatErr = errors.New("unsupported boundary format")
)

// Ring is an ordered sequence of points outlining one polygon. The first and
// last points may or may not be equal.
type Ring []geodesy.Point

// Boundary is the result of loading a boundary file.
type Boundary struct {
	// Name is the base name of the source file without extension.
	Name string

	// DisplayName is a human-readable name, e.g. "The Republic of Austria".
	DisplayName string

	// Ring is the longest outer ring found in the source.
	Ring Ring

	// Rings is the number of outer rings the source contained.
	Rings int
}

// document is what every format parser produces.
type document struct {
	rings [][]geodesy.Point
	tags  map[string]string
}

// Loader reads boundary files from the local filesystem or S3.
type Loader struct {
	fs     afero.Fs
	s3     s3.ObjectStorage
	logger logrus.FieldLogger
}

// NewLoader returns a Loader. The object storage may be nil when no s3://
// sources are expected.
func NewLoader(logger logrus.FieldLogger, fs afero.Fs, storage s3.ObjectStorage) *Loader {
	return &Loader{fs: fs, s3: storage, logger: logger}
}

// LoadLongestRing loads the source and returns the ring with the most
// vertices along with the display name of the boundary.
func (l *Loader) LoadLongestRing(ctx context.Context, uri string) (*Boundary, error) {
	localPath, cleanup, err := l.fetch(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	blob, err := afero.ReadFile(l.fs, localPath)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read %s", uri)
	}

	name := baseName(uri)
	var doc *document
	switch strings.ToLower(path.Ext(sourcePath(uri))) {
	case ".kml":
		doc, err = parseKML(blob)
	case ".kmz":
		doc, err = parseKMZ(blob)
	case ".geojson", ".json":
		doc, err = parseGeoJSON(blob)
	default:
		err = errors.Wrap(UnsupportedFormatErr, uri)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "cannot parse %s", uri)
	}

	var longest []geodesy.Point
	for i, ring := range doc.rings {
		l.logger.WithFields(logrus.Fields{"file": name, "ring": i + 1, "points": len(ring)}).Debug("Read polygon ring")
		if len(ring) > len(longest) {
			longest = ring
		}
	}
	if len(longest) < 2 {
		return nil, errors.Wrap(NoRingErr, uri)
	}
	for _, p := range longest {
		if err := geodesy.Validate(p); err != nil {
			return nil, errors.Wrapf(err, "invalid boundary %s", uri)
		}
	}

	return &Boundary{
		Name:        name,
		DisplayName: DisplayName(name, doc.tags),
		Ring:        Ring(longest),
		Rings:       len(doc.rings),
	}, nil
}

// fetch makes the source available on the loader filesystem.
func (l *Loader) fetch(ctx context.Context, uri string) (string, func(), error) {
	noop := func() {}
	if !strings.HasPrefix(uri, "s3://") {
		return uri, noop, nil
	}
	if l.s3 == nil {
		return "", noop, errors.Errorf("cannot load %s: object storage is not configured", uri)
	}
	f, err := afero.TempFile(l.fs, "", "boundary-*"+path.Ext(sourcePath(uri)))
	if err != nil {
		return "", noop, errors.Wrap(err, "cannot create temporary file")
	}
	cleanup := func() {
		f.Close()
		_ = l.fs.Remove(f.Name())
	}
	n, err := l.s3.Download(ctx, f, uri)
	if err != nil {
		cleanup()
		return "", noop, errors.Wrapf(err, "cannot download %s", uri)
	}
	l.logger.WithFields(logrus.Fields{"uri": uri, "bytes": n}).Debug("Downloaded boundary")
	return f.Name(), cleanup, nil
}

// sourcePath strips the scheme, host and query from object URIs.
func sourcePath(uri string) string {
	if u, err := url.Parse(uri); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		return u.Path
	}
	return uri
}

func baseName(uri string) string {
	base := filepath.Base(sourcePath(uri))
	return strings.TrimSuffix(base, filepath.Ext(base))
}
