package tour

import (
	"fmt"
	"math"

	"github.com/border-inspection/tourgen/geodesy"

	"github.com/pkg/errors"
)

// CumulativeDistances returns the running great-circle distance in km from
// the first point, which is always 0.
func CumulativeDistances(points []geodesy.Point) []float64 {
	if len(points) == 0 {
		return nil
	}
	distances := make([]float64, len(points))
	for i := 1; i < len(points); i++ {
		distances[i] = distances[i-1] + geodesy.Distance(points[i-1], points[i])
	}
	return distances
}

// DistanceToFrame quantizes a distance travelled at constant ground speed
// into a video frame index.
func DistanceToFrame(km, speedKmh float64, frameRate int) int {
	return int(math.Round(km * 3600 * float64(frameRate) / speedKmh))
}

// FrameOffsets returns the frame index of every point and the total number
// of frames, which counts the frame of the first point too.
func FrameOffsets(points []geodesy.Point, speedKmh float64, frameRate int) (int, []int, error) {
	if speedKmh <= 0 || frameRate <= 0 {
		return 0, nil, errors.Wrapf(InvalidConfigurationErr, "speed %g km/h and frame rate %d must be positive", speedKmh, frameRate)
	}
	if len(points) == 0 {
		return 0, nil, nil
	}
	distances := CumulativeDistances(points)
	offsets := make([]int, len(distances))
	for i, d := range distances {
		offsets[i] = DistanceToFrame(d, speedKmh, frameRate)
	}
	return offsets[len(offsets)-1] + 1, offsets, nil
}

// PartBoundaryIndices splits a path into parts of up to chunkFrames frames.
// A boundary is the first point at or past every multiple of chunkFrames.
// The returned indices start at 0 and are strictly increasing; every part
// spans from one boundary to the next. A positive maxParts caps the number of
// parts, in which case the last boundary may come before the end of the
// path.
func PartBoundaryIndices(offsets []int, chunkFrames, maxParts int) []int {
	if len(offsets) == 0 {
		return nil
	}
	last := len(offsets) - 1
	if chunkFrames <= 0 {
		if last == 0 {
			return []int{0}
		}
		return []int{0, last}
	}

	full := func(indices []int) bool {
		return maxParts > 0 && len(indices)-1 >= maxParts
	}
	indices := []int{0}
	i := 0
	for frame := chunkFrames; frame < offsets[last] && !full(indices); frame += chunkFrames {
		for i < last && offsets[i] < frame {
			i++
		}
		if i == indices[len(indices)-1] {
			continue
		}
		indices = append(indices, i)
	}
	if indices[len(indices)-1] != last && !full(indices) {
		indices = append(indices, last)
	}
	return indices
}

// AvoidTurningPoints moves interior part boundaries that fall on a ring
// vertex one point forward, so that parts do not start or end on a turn.
// Boundaries are only moved when the sequence stays strictly increasing.
func AvoidTurningPoints(bounds, turningPoints []int, last int) []int {
	turning := make(map[int]bool, len(turningPoints))
	for _, t := range turningPoints {
		turning[t] = true
	}
	moved := append([]int(nil), bounds...)
	for i := 1; i < len(moved)-1; i++ {
		b := moved[i]
		if !turning[b] || b+1 >= moved[i+1] || b+1 > last {
			continue
		}
		moved[i] = b + 1
	}
	return moved
}

// FormatRuntime renders seconds as e.g. "1h 2m 3s".
func FormatRuntime(seconds float64) string {
	return fmt.Sprintf("%dh %dm %ds",
		int(math.Floor(seconds/3600)),
		int(math.Floor(math.Mod(seconds, 3600)/60)),
		int(math.Round(math.Mod(seconds, 60))))
}
