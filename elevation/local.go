package elevation

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"

	"github.com/border-inspection/tourgen/metrics"

	"github.com/paulmach/orb/maptile"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Local reads elevations from terrain-RGB tiles stored as {z}/{x}/{y}.png
// below a directory.
type Local struct {
	*tileSet
	fs  afero.Fs
	dir string
}

var _ Provider = (*Local)(nil)

// NewLocal returns a Local provider reading tiles from dir.
func NewLocal(fs afero.Fs, dir string, zoom int) *Local {
	l := &Local{fs: fs, dir: strings.TrimSuffix(dir, "/")}
	l.tileSet = newTileSet(zoom, l.read)
	return l
}

func (l *Local) ID() string {
	return fmt.Sprintf("local-z%d", l.zoom)
}

func (l *Local) Elevation(ctx context.Context, lon, lat float64) (float64, error) {
	metrics.ElevationQueries.WithLabelValues(string(KindLocal)).Inc()
	return l.elevation(ctx, lon, lat)
}

func (l *Local) read(_ context.Context, t maptile.Tile) (image.Image, error) {
	name := fmt.Sprintf("%s/%d/%d/%d.png", l.dir, t.Z, t.X, t.Y)
	f, err := l.fs.Open(name)
	if err != nil {
		return nil, errors.Wrap(TileNotFoundErr, name)
	}
	defer f.Close()
	return decodeTile(f, name)
}

func decodeTile(r io.Reader, name string) (image.Image, error) {
	img, err := png.Decode(r)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode tile %s", name)
	}
	return img, nil
}
