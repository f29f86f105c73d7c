package elevation

import (
	"context"
	"image"
	"math"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// DefaultZoom is the zoom level elevation tiles are read at.
const DefaultZoom = 14

// memoSize bounds the number of decoded tiles kept in memory.
const memoSize = 64

// Decode converts a terrain-RGB pixel into meters.
func Decode(r, g, b uint8) float64 {
	return -10000 + float64(int(r)*65536+int(g)*256+int(b))*0.1
}

// pixelElevation reads the elevation at lon/lat out of the tile image. The
// pixel is picked by linear position within the tile bounds.
func pixelElevation(img image.Image, bound orb.Bound, lon, lat float64) float64 {
	b := img.Bounds()
	w, h := float64(b.Dx()-1), float64(b.Dy()-1)
	x := clamp(int(math.Round(w*(lon-bound.Min.Lon())/(bound.Max.Lon()-bound.Min.Lon()))), 0, b.Dx()-1)
	y := clamp(int(math.Round(h*(lat-bound.Max.Lat())/(bound.Min.Lat()-bound.Max.Lat()))), 0, b.Dy()-1)
	r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
	return Decode(uint8(r>>8), uint8(g>>8), uint8(bl>>8))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// tileLoader fetches the image of one tile.
type tileLoader func(ctx context.Context, t maptile.Tile) (image.Image, error)

// tileSet answers elevation queries from terrain-RGB tiles, keeping the
// most recently decoded ones in memory.
type tileSet struct {
	zoom maptile.Zoom
	load tileLoader

	mu    sync.Mutex
	memo  map[maptile.Tile]image.Image
	order []maptile.Tile
}

func newTileSet(zoom int, load tileLoader) *tileSet {
	if zoom <= 0 {
		zoom = DefaultZoom
	}
	return &tileSet{
		zoom: maptile.Zoom(zoom),
		load: load,
		memo: map[maptile.Tile]image.Image{},
	}
}

func (s *tileSet) elevation(ctx context.Context, lon, lat float64) (float64, error) {
	t := maptile.At(orb.Point{lon, lat}, s.zoom)
	img, err := s.tile(ctx, t)
	if err != nil {
		return 0, err
	}
	return pixelElevation(img, t.Bound(), lon, lat), nil
}

func (s *tileSet) tile(ctx context.Context, t maptile.Tile) (image.Image, error) {
	s.mu.Lock()
	img, ok := s.memo[t]
	s.mu.Unlock()
	if ok {
		return img, nil
	}

	img, err := s.load(ctx, t)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.memo[t]; !ok {
		if len(s.order) >= memoSize {
			delete(s.memo, s.order[0])
			s.order = s.order[1:]
		}
		s.memo[t] = img
		s.order = append(s.order, t)
	}
	return img, nil
}
