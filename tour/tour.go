// Package tour turns a border ring into a timed camera trajectory: the ring
// is rotated, simplified and resampled, every point is given a frame offset
// at constant ground speed, and camera keyframes are placed behind the
// points and split into parts of bounded length.
package tour

import (
	"github.com/border-inspection/tourgen/boundary"

	"github.com/pkg/errors"
)

var (
	InvalidConfigurationErr = errors.New("invalid configuration")
	PointNotFoundErr        = errors.New("start point not found")
	IndexOutOfRangeErr      = errors.New("start index out of range")
)

// Part is a contiguous range of keyframes rendered as one video.
type Part struct {
	// Number is 1-based and includes the configured part offset.
	Number int

	// StartIndex and EndIndex are inclusive keyframe indices. The end of a
	// part is the start of the next one.
	StartIndex int
	EndIndex   int

	StartFrame int
	EndFrame   int

	// Times holds the time of every keyframe of the part relative to its
	// duration, from 0 to 1.
	Times []float64
}

// Duration is the number of frames the part spans.
func (p Part) Duration() int {
	return p.EndFrame - p.StartFrame
}

// Keyframes returns the keyframes of the part.
func (p Part) Keyframes(all []Keyframe) []Keyframe {
	if p.EndIndex >= len(all) {
		return nil
	}
	return all[p.StartIndex : p.EndIndex+1]
}

// Tour is everything generated for one boundary.
type Tour struct {
	Name        string
	DisplayName string

	Geometry Geometry

	// Outline is the ring after reversal, rotation and simplification.
	Outline boundary.Ring

	// TotalDistanceKm and TotalFrames describe the complete outline, before
	// any part limit is applied.
	TotalDistanceKm float64
	TotalFrames     int

	Path  *Path
	Timed []TimedPoint

	// Frames is the number of frames covered by the keyframes.
	Frames int

	Keyframes []Keyframe
	Parts     []Part

	// Reel is set for movie reels.
	Reel int

	Warnings []string
}

// Runtime returns the runtime of the complete outline in seconds.
func (t *Tour) Runtime(frameRate int) float64 {
	if frameRate <= 0 {
		return 0
	}
	return float64(t.TotalFrames) / float64(frameRate)
}

// Distance returns the length of the generated path in km.
func (t *Tour) Distance() float64 {
	if len(t.Timed) == 0 {
		return 0
	}
	return t.Timed[len(t.Timed)-1].DistanceKm
}

// relativeTimes returns the times of the given frame offsets relative to the
// part they belong to.
func relativeTimes(offsets []int, start, end int) []float64 {
	duration := end - start
	times := make([]float64, len(offsets))
	if duration == 0 {
		return times
	}
	for i, o := range offsets {
		times[i] = float64(o-start) / float64(duration)
	}
	return times
}

func buildParts(offsets, bounds []int, fromPart int) []Part {
	if len(bounds) < 2 {
		if len(bounds) == 1 {
			i := bounds[0]
			return []Part{{
				Number:     fromPart + 1,
				StartIndex: i,
				EndIndex:   i,
				StartFrame: offsets[i],
				EndFrame:   offsets[i],
				Times:      []float64{0},
			}}
		}
		return nil
	}
	parts := make([]Part, 0, len(bounds)-1)
	for n := 0; n < len(bounds)-1; n++ {
		start, end := bounds[n], bounds[n+1]
		parts = append(parts, Part{
			Number:     fromPart + n + 1,
			StartIndex: start,
			EndIndex:   end,
			StartFrame: offsets[start],
			EndFrame:   offsets[end],
			Times:      relativeTimes(offsets[start:end+1], offsets[start], offsets[end]),
		})
	}
	return parts
}
