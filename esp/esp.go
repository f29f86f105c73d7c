// Package esp builds the keyframe projects read by the animation tool and the
// shell scripts that encode the footage rendered from them.
package esp

import (
	"fmt"
	"math"

	"github.com/border-inspection/tourgen/tour"
)

// ModelVersion of the project documents written by this package.
const ModelVersion = 16

// Metadata describes one project file. It replaces the configuration that
// used to be encoded into file names.
type Metadata struct {
	// Name is the file name stem of the tour, e.g. "AUT".
	Name string

	// DisplayName is the human readable name shown on title cards.
	DisplayName string

	// Part is the number of the part, Parts the number of parts written.
	Part  int
	Parts int

	// Digits is the zero padding of part numbers.
	Digits int

	// Reel is the number of frames of a movie reel, 0 for regular tours.
	Reel int

	// FrameRate is the render export frame rate, VideoFrameRate the one of
	// the encoded video.
	FrameRate      int
	VideoFrameRate int

	// Width of the rendered images, the aspect ratio is fixed at 16:9.
	Width int

	// Duration of the part in frames.
	Duration int

	// Runtime of the complete tour in seconds.
	Runtime float64

	SpeedKmh float64
	Geometry tour.Geometry
}

// Height derives the image height from the width.
func (m Metadata) Height() int {
	return int(math.Round(float64(m.Width) * 9 / 16))
}

// FileName is the name of the project without extension.
func (m Metadata) FileName() string {
	if m.Reel > 0 {
		return ReelName(m.Name, m.Reel)
	}
	return PartName(m.Name, m.Part, m.Digits)
}

// PartName names a part, e.g. "AUTpt03".
func PartName(name string, number, digits int) string {
	return fmt.Sprintf("%spt%0*d", name, digits, number)
}

// ReelName names the movie reel of a tour, e.g. "AUT-reel13".
func ReelName(name string, frames int) string {
	return fmt.Sprintf("%s-reel%d", name, frames)
}

// PartDigits is the number of digits part numbers are padded to when a tour
// of totalFrames is split into chunks of splitFrames.
func PartDigits(totalFrames, splitFrames int) int {
	if splitFrames <= 0 || totalFrames <= splitFrames {
		return 1
	}
	digits := int(math.Ceil(math.Log10(float64(totalFrames) / float64(splitFrames))))
	if digits < 1 {
		return 1
	}
	return digits
}

// NewMetadata returns the metadata of every part of a generated tour. Part
// numbers are padded for the complete outline, so a batch limited by
// from_part and max_parts names its parts like a full run does.
func NewMetadata(t *tour.Tour, cfg tour.Config, video VideoConfig) []Metadata {
	digits := PartDigits(t.TotalFrames, cfg.SplitFrames)
	metas := make([]Metadata, 0, len(t.Parts))
	for _, p := range t.Parts {
		metas = append(metas, Metadata{
			Name:           t.Name,
			DisplayName:    t.DisplayName,
			Part:           p.Number,
			Parts:          len(t.Parts),
			Digits:         digits,
			Reel:           t.Reel,
			FrameRate:      cfg.FrameRate,
			VideoFrameRate: video.VideoFrameRate,
			Width:          video.Width,
			Duration:       p.Duration(),
			Runtime:        t.Runtime(cfg.FrameRate),
			SpeedKmh:       cfg.SpeedKmh,
			Geometry:       t.Geometry,
		})
	}
	return metas
}
