package tour

import (
	"context"
	"math"

	"github.com/border-inspection/tourgen/elevation"
	"github.com/border-inspection/tourgen/geodesy"

	"github.com/pkg/errors"
)

// ReelIndices picks n evenly spaced indices out of a path of the given
// length, by position rather than by distance.
func ReelIndices(length, n int) ([]int, error) {
	if n <= 0 || n > length {
		return nil, errors.Wrapf(InvalidConfigurationErr, "movie reel of %d frames does not fit a path of %d points", n, length)
	}
	indices := make([]int, n)
	for i := range indices {
		indices[i] = int(math.Round(float64(length) * float64(i) / float64(n)))
	}
	return indices, nil
}

// reelKeyframes returns one keyframe per reel frame. The camera looks back
// along the path into each selected point, and no smoothing is applied.
func reelKeyframes(ctx context.Context, points []geodesy.Point, n int, geo Geometry, fb *elevation.Fallback, progress Progress) ([]Keyframe, error) {
	indices, err := ReelIndices(len(points), n)
	if err != nil {
		return nil, err
	}

	ad := geodesy.AngularDistance(geo.Ground)
	pois := make([]geodesy.Point, n)
	cameras := make([]geodesy.Point, n)
	for k, i := range indices {
		var bearing float64
		switch {
		case i+1 < len(points):
			bearing = geodesy.Bearing(points[i+1], points[i])
		case i > 0:
			bearing = geodesy.Bearing(points[i], points[i-1])
		}
		pois[k] = points[i]
		cameras[k] = geodesy.Destination(points[i], bearing, ad)
	}

	poiAltitudes, err := elevations(ctx, fb, pois, progress)
	if err != nil {
		return nil, err
	}
	cameraAltitudes, err := elevations(ctx, fb, cameras, progress)
	if err != nil {
		return nil, err
	}

	keyframes := make([]Keyframe, n)
	for k := range indices {
		keyframes[k] = newKeyframe(k, cameras[k], cameraAltitudes[k]+geo.Vertical, pois[k], poiAltitudes[k])
	}
	return keyframes, nil
}
