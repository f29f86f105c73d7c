package tour

import (
	"testing"

	"github.com/border-inspection/tourgen/boundary"
	"github.com/border-inspection/tourgen/geodesy"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var square = boundary.Ring{{Lon: 0, Lat: 0}, {Lon: 1, Lat: 0}, {Lon: 1, Lat: 1}, {Lon: 0, Lat: 1}}

func TestRotate(t *testing.T) {
	rotated, err := Rotate(square, 1)
	require.NoError(t, err)
	assert.Equal(t, boundary.Ring{{Lon: 1, Lat: 0}, {Lon: 1, Lat: 1}, {Lon: 0, Lat: 1}, {Lon: 0, Lat: 0}}, rotated)

	rotated, err = Rotate(square, 0)
	require.NoError(t, err)
	assert.Equal(t, square, rotated)

	for _, i := range []int{-1, 4, 100} {
		_, err := Rotate(square, i)
		assert.Equal(t, IndexOutOfRangeErr, errors.Cause(err), "index %d", i)
		assert.Contains(t, err.Error(), "4 points")
	}
}

func TestRotateTo(t *testing.T) {
	ring := boundary.Ring{{Lon: 0, Lat: 0}, {Lon: 1, Lat: 0}, {Lon: 1, Lat: 1}, {Lon: 1, Lat: 0}}
	rotated, index, err := RotateTo(ring, geodesy.Point{Lon: 1, Lat: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, index)
	assert.Equal(t, boundary.Ring{{Lon: 1, Lat: 0}, {Lon: 1, Lat: 1}, {Lon: 1, Lat: 0}, {Lon: 0, Lat: 0}}, rotated)

	_, _, err = RotateTo(ring, geodesy.Point{Lon: 1, Lat: 0.5})
	assert.Equal(t, PointNotFoundErr, errors.Cause(err))
	assert.Contains(t, err.Error(), "1,0.5")
	assert.Contains(t, err.Error(), "4-point")
}

func TestReverse(t *testing.T) {
	assert.Equal(t, boundary.Ring{{Lon: 0, Lat: 1}, {Lon: 1, Lat: 1}, {Lon: 1, Lat: 0}, {Lon: 0, Lat: 0}}, Reverse(square))
	assert.Equal(t, boundary.Ring{{Lon: 0, Lat: 0}, {Lon: 1, Lat: 0}, {Lon: 1, Lat: 1}, {Lon: 0, Lat: 1}}, square, "input must not change")
	assert.Empty(t, Reverse(nil))
}

func TestSimplify(t *testing.T) {
	collinear := boundary.Ring{{Lon: 0, Lat: 0}, {Lon: 0.5, Lat: 0}, {Lon: 1, Lat: 0}, {Lon: 1, Lat: 0.5}, {Lon: 1, Lat: 1}, {Lon: 0, Lat: 1}, {Lon: 0, Lat: 0}}

	assert.Equal(t, collinear, Simplify(collinear, 0))
	assert.Equal(t, collinear, Simplify(collinear, -1))

	simplified := Simplify(collinear, 0.01)
	assert.Equal(t, boundary.Ring{{Lon: 0, Lat: 0}, {Lon: 1, Lat: 0}, {Lon: 1, Lat: 1}, {Lon: 0, Lat: 1}, {Lon: 0, Lat: 0}}, simplified)
	assert.Len(t, collinear, 7, "input must not change")

	// Endpoints are always kept.
	coarse := Simplify(collinear, 10)
	assert.Equal(t, collinear[0], coarse[0])
	assert.Equal(t, collinear[len(collinear)-1], coarse[len(coarse)-1])
}

func TestInterpolate(t *testing.T) {
	const spacing = 5.0
	path, err := Interpolate(square, spacing)
	require.NoError(t, err)

	// Every ring vertex is an exact element of the output, at its turning
	// point index.
	require.Len(t, path.TurningPoints, len(square))
	for i, v := range square {
		assert.Equal(t, v, path.Points[path.TurningPoints[i]])
	}
	assert.Equal(t, 0, path.TurningPoints[0])
	assert.Equal(t, len(path.Points)-1, path.TurningPoints[len(square)-1])

	for i := 1; i < len(path.Points); i++ {
		d := geodesy.Distance(path.Points[i-1], path.Points[i])
		assert.LessOrEqual(t, d, spacing+1e-6, "points %d and %d", i-1, i)
	}

	// 111.2 km per side at 5 km spacing makes 23 steps per side.
	assert.Len(t, path.Points, 3*23+1)
}

func TestInterpolate_ZeroLengthSegment(t *testing.T) {
	path, err := Interpolate(boundary.Ring{{Lon: 0, Lat: 0}, {Lon: 0, Lat: 0}, {Lon: 0, Lat: 0.01}}, 0.2)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 7}, path.TurningPoints)
	assert.Equal(t, geodesy.Point{}, path.Points[0])
	assert.Equal(t, geodesy.Point{}, path.Points[1])
	assert.Equal(t, geodesy.Point{Lon: 0, Lat: 0.01}, path.Points[7])
}

func TestInterpolate_Errors(t *testing.T) {
	_, err := Interpolate(square, 0)
	assert.Equal(t, InvalidConfigurationErr, errors.Cause(err))

	_, err = Interpolate(boundary.Ring{{Lon: 0, Lat: 0}}, 1)
	assert.Error(t, err)
}
