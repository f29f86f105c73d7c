package tour

import (
	"math"

	"github.com/border-inspection/tourgen/boundary"
	"github.com/border-inspection/tourgen/geodesy"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
	"github.com/pkg/errors"
)

// Path is a ring after rotation, simplification and interpolation.
type Path struct {
	Points []geodesy.Point

	// TurningPoints holds, for every vertex of the interpolated ring, its
	// index in Points.
	TurningPoints []int
}

// Rotate returns a copy of the ring that starts at the given index.
func Rotate(ring boundary.Ring, start int) (boundary.Ring, error) {
	if start < 0 || start >= len(ring) {
		return nil, errors.Wrapf(IndexOutOfRangeErr, "start index %d, ring has %d points", start, len(ring))
	}
	rotated := make(boundary.Ring, 0, len(ring))
	rotated = append(rotated, ring[start:]...)
	return append(rotated, ring[:start]...), nil
}

// IndexOf returns the index of the first ring point equal to target.
func IndexOf(ring boundary.Ring, target geodesy.Point) (int, error) {
	for i, p := range ring {
		if p == target {
			return i, nil
		}
	}
	return -1, errors.Wrapf(PointNotFoundErr, "%s is not a vertex of the %d-point ring", target, len(ring))
}

// RotateTo rotates the ring so that it starts at target. The index target
// was found at is returned as well.
func RotateTo(ring boundary.Ring, target geodesy.Point) (boundary.Ring, int, error) {
	i, err := IndexOf(ring, target)
	if err != nil {
		return nil, -1, err
	}
	rotated, err := Rotate(ring, i)
	return rotated, i, err
}

// Reverse returns the ring in opposite order.
func Reverse(ring boundary.Ring) boundary.Ring {
	reversed := make(boundary.Ring, len(ring))
	for i, p := range ring {
		reversed[len(ring)-1-i] = p
	}
	return reversed
}

// Simplify reduces the vertex count with Douglas-Peucker in degree space.
// The first and last points are always kept, a non-positive tolerance
// returns the ring unchanged.
func Simplify(ring boundary.Ring, tolerance float64) boundary.Ring {
	if tolerance <= 0 || len(ring) < 3 {
		return append(boundary.Ring(nil), ring...)
	}
	ls := make(orb.LineString, len(ring))
	for i, p := range ring {
		ls[i] = orb.Point{p.Lon, p.Lat}
	}
	ls = simplify.DouglasPeucker(tolerance).LineString(ls)
	simplified := make(boundary.Ring, len(ls))
	for i, p := range ls {
		simplified[i] = geodesy.Point{Lon: p.Lon(), Lat: p.Lat()}
	}
	return simplified
}

// Interpolate inserts evenly spaced points (linearly in lon/lat) so that
// consecutive points are no more than maxSpacingKm apart.
func Interpolate(ring boundary.Ring, maxSpacingKm float64) (*Path, error) {
	if maxSpacingKm <= 0 || math.IsNaN(maxSpacingKm) {
		return nil, errors.Wrapf(InvalidConfigurationErr, "altitude sampling interval must be positive, got %g", maxSpacingKm)
	}
	if len(ring) < 2 {
		return nil, errors.Errorf("cannot interpolate a ring of %d points", len(ring))
	}

	path := &Path{TurningPoints: make([]int, 0, len(ring))}
	for i := 0; i < len(ring)-1; i++ {
		prv, nxt := ring[i], ring[i+1]
		path.TurningPoints = append(path.TurningPoints, len(path.Points))
		n := int(math.Ceil(geodesy.Distance(prv, nxt) / maxSpacingKm))
		if n < 1 {
			n = 1
		}
		for j := 0; j < n; j++ {
			path.Points = append(path.Points, geodesy.Point{
				Lon: prv.Lon + float64(j)*(nxt.Lon-prv.Lon)/float64(n),
				Lat: prv.Lat + float64(j)*(nxt.Lat-prv.Lat)/float64(n),
			})
		}
	}
	path.TurningPoints = append(path.TurningPoints, len(path.Points))
	path.Points = append(path.Points, ring[len(ring)-1])
	return path, nil
}
