package tour

import (
	"context"
	"math"

	"github.com/border-inspection/tourgen/elevation"
	"github.com/border-inspection/tourgen/geodesy"
)

// Affine mappings into the coordinate space of the animation tool.
const (
	latitudeOffset        = 0.5
	poiLongitudeOffset    = 0.2442333785617368
	poiLongitudeScale     = 0.1221167 / 90
	cameraLongitudeOffset = 0.5780096
	cameraLongitudeScale  = 0.02603647 / 90
	altitudeScale         = 1.535686e-08
)

// NormalizeLatitude maps degrees of latitude into [0, 1].
func NormalizeLatitude(deg float64) float64 {
	return deg/180 + latitudeOffset
}

// NormalizePOILongitude maps the longitude of the point of interest.
func NormalizePOILongitude(deg float64) float64 {
	return poiLongitudeOffset + deg*poiLongitudeScale
}

// NormalizeCameraLongitude maps the longitude of the camera.
func NormalizeCameraLongitude(deg float64) float64 {
	return cameraLongitudeOffset + deg*cameraLongitudeScale
}

// NormalizeAltitude maps meters above sea level.
func NormalizeAltitude(m float64) float64 {
	return m * altitudeScale
}

// TimedPoint is a path point with its position in time.
type TimedPoint struct {
	geodesy.Point

	// DistanceKm is the distance travelled from the first point.
	DistanceKm float64

	// Frame is the video frame the point is reached at.
	Frame int

	// Bearing points towards the next point, in radians. The last point
	// repeats the bearing of the one before it.
	Bearing float64
}

// Timed pairs every point with its travelled distance, frame offset and
// forward bearing.
func Timed(points []geodesy.Point, offsets []int) []TimedPoint {
	distances := CumulativeDistances(points)
	timed := make([]TimedPoint, len(points))
	for i, p := range points {
		timed[i] = TimedPoint{Point: p, DistanceKm: distances[i]}
		if i < len(offsets) {
			timed[i].Frame = offsets[i]
		}
		if i+1 < len(points) {
			timed[i].Bearing = geodesy.Bearing(p, points[i+1])
		} else if i > 0 {
			timed[i].Bearing = timed[i-1].Bearing
		}
	}
	return timed
}

// Keyframe is the camera state at one point of the tour.
type Keyframe struct {
	Frame int

	Camera         geodesy.Point
	CameraAltitude float64

	POI         geodesy.Point
	POIAltitude float64

	// Normalized values in the coordinate space of the animation tool.
	CameraLongitude float64
	CameraLatitude  float64
	CameraElevation float64
	POILongitude    float64
	POILatitude     float64
	POIElevation    float64
}

func newKeyframe(frame int, camera geodesy.Point, cameraAltitude float64, poi geodesy.Point, poiAltitude float64) Keyframe {
	return Keyframe{
		Frame:           frame,
		Camera:          camera,
		CameraAltitude:  cameraAltitude,
		POI:             poi,
		POIAltitude:     poiAltitude,
		CameraLongitude: NormalizeCameraLongitude(camera.Lon),
		CameraLatitude:  NormalizeLatitude(camera.Lat),
		CameraElevation: NormalizeAltitude(cameraAltitude),
		POILongitude:    NormalizePOILongitude(poi.Lon),
		POILatitude:     NormalizeLatitude(poi.Lat),
		POIElevation:    NormalizeAltitude(poiAltitude),
	}
}

// Smooth applies a three point moving average. The first and last values
// are kept as they are.
func Smooth(values []float64) []float64 {
	smoothed := append([]float64(nil), values...)
	for i := 1; i < len(values)-1; i++ {
		smoothed[i] = (values[i-1] + values[i] + values[i+1]) / 3
	}
	return smoothed
}

// Progress receives one tick per elevation query.
type Progress interface {
	Add(int) error
}

type nopProgress struct{}

func (nopProgress) Add(int) error { return nil }

// elevations queries the ground elevation for every point in order.
func elevations(ctx context.Context, fb *elevation.Fallback, points []geodesy.Point, progress Progress) ([]float64, error) {
	values := make([]float64, len(points))
	for i, p := range points {
		v, err := fb.At(ctx, p)
		if err != nil {
			return nil, err
		}
		values[i] = v
		_ = progress.Add(1)
	}
	return values, nil
}

// cameraKeyframes places the camera behind every point, looking at it from
// the configured distance. Ground elevations under the camera are smoothed.
func cameraKeyframes(ctx context.Context, timed []TimedPoint, geo Geometry, fb *elevation.Fallback, progress Progress) ([]Keyframe, error) {
	pois := make([]geodesy.Point, len(timed))
	cameras := make([]geodesy.Point, len(timed))
	ad := geodesy.AngularDistance(geo.Ground)
	for i, tp := range timed {
		pois[i] = tp.Point
		cameras[i] = geodesy.Destination(tp.Point, tp.Bearing+math.Pi, ad)
	}

	poiAltitudes, err := elevations(ctx, fb, pois, progress)
	if err != nil {
		return nil, err
	}
	cameraAltitudes, err := elevations(ctx, fb, cameras, progress)
	if err != nil {
		return nil, err
	}
	cameraAltitudes = Smooth(cameraAltitudes)

	keyframes := make([]Keyframe, len(timed))
	for i, tp := range timed {
		keyframes[i] = newKeyframe(tp.Frame, cameras[i], cameraAltitudes[i]+geo.Vertical, pois[i], poiAltitudes[i])
	}
	return keyframes, nil
}
