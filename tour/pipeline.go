package tour

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/border-inspection/tourgen/boundary"
	"github.com/border-inspection/tourgen/elevation"
	"github.com/border-inspection/tourgen/geodesy"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Config holds the tour parameters shared by every boundary of a run.
type Config struct {
	// SpeedKmh is the ground speed of the animation.
	SpeedKmh float64 `mapstructure:"speed_kmh"`

	// Tilt is the downward camera angle in degrees, 90 looks straight down.
	Tilt float64 `mapstructure:"tilt"`

	// Distance between the camera and the targeted point, in meters.
	Distance float64 `mapstructure:"distance"`

	// VerticalDistance and GroundDistance override Distance when positive.
	VerticalDistance float64 `mapstructure:"vertical_distance"`
	GroundDistance   float64 `mapstructure:"ground_distance"`

	// AltitudeEveryKm is the maximum spacing of resampled points.
	AltitudeEveryKm float64 `mapstructure:"altitude_every_km"`

	// FrameRate is the render export frame rate, set from the video section.
	FrameRate int `mapstructure:"-"`

	// SplitFrames is the maximum length of a part, 0 disables splitting.
	SplitFrames int `mapstructure:"split_frames"`

	// MaxParts limits the number of parts written, 0 means no limit.
	MaxParts int `mapstructure:"max_parts"`

	// FromPart offsets part numbers.
	FromPart int `mapstructure:"from_part"`

	// Simplify is the Douglas-Peucker tolerance in degrees, 0 disables it.
	Simplify float64 `mapstructure:"simplify"`

	// Skip moves the start of the tour forward by this many ring points.
	Skip int `mapstructure:"skip"`

	// StartPoint is an optional lon/lat ring vertex the tour starts at. It
	// takes precedence over Skip.
	StartPoint []float64 `mapstructure:"start_point"`

	// CCW keeps the enclosed area to the left of the tour.
	CCW bool `mapstructure:"ccw"`

	// MovieReel, when positive, generates a reel of that many keyframes
	// instead of a regular tour.
	MovieReel int `mapstructure:"movie_reel"`

	// AvoidTurningPoints moves part boundaries off ring vertices.
	AvoidTurningPoints bool `mapstructure:"avoid_turning_points"`
}

// Validate reports every problem with the configuration in a single error
// wrapping InvalidConfigurationErr.
func (c Config) Validate() error {
	var problems []string
	if c.SpeedKmh <= 0 {
		problems = append(problems, fmt.Sprintf("speed must be positive, got %g km/h", c.SpeedKmh))
	}
	if c.FrameRate <= 0 {
		problems = append(problems, fmt.Sprintf("frame rate must be positive, got %d", c.FrameRate))
	}
	if c.AltitudeEveryKm <= 0 {
		problems = append(problems, fmt.Sprintf("altitude sampling interval must be positive, got %g km", c.AltitudeEveryKm))
	}
	if c.Tilt <= 0 || c.Tilt > 90 {
		problems = append(problems, fmt.Sprintf("tilt must be within (0, 90], got %g", c.Tilt))
	}
	if c.VerticalDistance < 0 || c.GroundDistance < 0 {
		problems = append(problems, "camera distances cannot be negative")
	}
	if c.Distance <= 0 && (c.VerticalDistance <= 0 || c.GroundDistance <= 0) {
		problems = append(problems, fmt.Sprintf("distance must be positive, got %g m", c.Distance))
	}
	if c.SplitFrames < 0 {
		problems = append(problems, fmt.Sprintf("split frames cannot be negative, got %d", c.SplitFrames))
	}
	if c.MaxParts < 0 || c.FromPart < 0 || c.Skip < 0 || c.MovieReel < 0 {
		problems = append(problems, "max parts, from part, skip and movie reel cannot be negative")
	}
	if c.Simplify < 0 {
		problems = append(problems, fmt.Sprintf("simplification tolerance cannot be negative, got %g", c.Simplify))
	}
	if len(c.StartPoint) != 0 && len(c.StartPoint) != 2 {
		problems = append(problems, fmt.Sprintf("start point needs a longitude and a latitude, got %v", c.StartPoint))
	}
	if len(problems) > 0 {
		return errors.Wrap(InvalidConfigurationErr, strings.Join(problems, "; "))
	}
	return nil
}

// Geometry is the camera placement relative to the targeted point.
type Geometry struct {
	// Vertical is the height of the camera above the ground, in meters.
	Vertical float64

	// Ground is the horizontal distance from the camera to the point.
	Ground float64

	// EffectiveTilt is the resulting camera angle in whole degrees.
	EffectiveTilt int
}

// CameraDistance is the direct distance from camera to point.
func (g Geometry) CameraDistance() float64 {
	return math.Hypot(g.Vertical, g.Ground)
}

// Geometry derives the camera placement. An explicit vertical or ground
// distance overrides Distance; when only one is given the other one is
// derived from the tilt.
func (c Config) Geometry() Geometry {
	tilt := c.Tilt * math.Pi / 180
	vertical := c.Distance * math.Sin(tilt)
	ground := c.Distance * math.Cos(tilt)
	if c.VerticalDistance > 0 {
		vertical = c.VerticalDistance
	}
	if c.GroundDistance > 0 {
		ground = c.GroundDistance
	}
	switch {
	case c.VerticalDistance <= 0 && c.GroundDistance > 0:
		vertical = ground * math.Tan(tilt)
	case c.GroundDistance <= 0 && c.VerticalDistance > 0:
		ground = vertical / math.Tan(tilt)
	}
	return Geometry{
		Vertical:      vertical,
		Ground:        ground,
		EffectiveTilt: int(math.Round(math.Atan(vertical/ground) * 180 / math.Pi)),
	}
}

// Overrides are per-job changes to a Config, decoded from a query string.
type Overrides struct {
	SpeedKmh           *float64  `schema:"kmh"`
	Tilt               *float64  `schema:"tilt"`
	Distance           *float64  `schema:"distance"`
	VerticalDistance   *float64  `schema:"vd"`
	GroundDistance     *float64  `schema:"gd"`
	AltitudeEveryKm    *float64  `schema:"altitudeevery"`
	SplitFrames        *int      `schema:"split"`
	MaxParts           *int      `schema:"nparts"`
	FromPart           *int      `schema:"frompart"`
	Simplify           *float64  `schema:"simplify"`
	Skip               *int      `schema:"skip"`
	StartPoint         []float64 `schema:"startpoint"`
	CCW                *bool     `schema:"ccw"`
	MovieReel          *int      `schema:"moviereel"`
	AvoidTurningPoints *bool     `schema:"avoidturningpoints"`
}

// Apply returns a copy of the configuration with the overrides set.
func (c Config) Apply(o Overrides) Config {
	setFloat := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	setInt := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	setFloat(&c.SpeedKmh, o.SpeedKmh)
	setFloat(&c.Tilt, o.Tilt)
	setFloat(&c.Distance, o.Distance)
	setFloat(&c.VerticalDistance, o.VerticalDistance)
	setFloat(&c.GroundDistance, o.GroundDistance)
	setFloat(&c.AltitudeEveryKm, o.AltitudeEveryKm)
	setFloat(&c.Simplify, o.Simplify)
	setInt(&c.SplitFrames, o.SplitFrames)
	setInt(&c.MaxParts, o.MaxParts)
	setInt(&c.FromPart, o.FromPart)
	setInt(&c.Skip, o.Skip)
	setInt(&c.MovieReel, o.MovieReel)
	if o.StartPoint != nil {
		c.StartPoint = append([]float64(nil), o.StartPoint...)
	}
	if o.CCW != nil {
		c.CCW = *o.CCW
	}
	if o.AvoidTurningPoints != nil {
		c.AvoidTurningPoints = *o.AvoidTurningPoints
	}
	return c
}

// Generator lays out tours for boundaries.
type Generator struct {
	config   Config
	geometry Geometry
	provider elevation.Provider
	logger   logrus.FieldLogger
	progress func(total int, description string) Progress
}

// Option configures a Generator.
type Option func(*Generator)

// WithProgress reports elevation queries to a progress indicator created
// for every batch of queries.
func WithProgress(fn func(total int, description string) Progress) Option {
	return func(g *Generator) {
		g.progress = fn
	}
}

// NewGenerator validates the configuration and returns a Generator. The
// provider may be nil when only Plan is used.
func NewGenerator(logger logrus.FieldLogger, config Config, provider elevation.Provider, opts ...Option) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	g := &Generator{
		config:   config,
		geometry: config.Geometry(),
		provider: provider,
		logger:   logger,
		progress: func(int, string) Progress { return nopProgress{} },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Config returns the configuration of the generator.
func (g *Generator) Config() Config {
	return g.config
}

// Plan lays out the tour without querying elevations: the resampled path,
// its timing and the parts. Keyframes are left empty.
func (g *Generator) Plan(ctx context.Context, b *boundary.Boundary) (*Tour, error) {
	cfg := g.config
	logger := g.logger.WithField("file", b.Name)

	ring := append(boundary.Ring(nil), b.Ring...)
	logger.WithField("points", len(ring)).Info("Loaded border outline")
	if len(ring) < 2 {
		return nil, errors.Wrapf(boundary.NoRingErr, "%s has %d points", b.Name, len(ring))
	}

	if cfg.CCW {
		ring = Reverse(ring)
	}

	var err error
	switch {
	case len(cfg.StartPoint) == 2:
		target := geodesy.Point{Lon: cfg.StartPoint[0], Lat: cfg.StartPoint[1]}
		var index int
		ring, index, err = RotateTo(ring, target)
		if err != nil {
			return nil, err
		}
		logger.WithFields(logrus.Fields{"start": target.String(), "index": index}).Info("Moved starting point of tour")
	case cfg.Skip > 0:
		ring, err = Rotate(ring, cfg.Skip)
		if err != nil {
			return nil, err
		}
		logger.WithField("skip", cfg.Skip).Info("Moved starting point of tour forward")
	}

	if cfg.Simplify > 0 {
		before := len(ring)
		ring = Simplify(ring, cfg.Simplify)
		logger.WithFields(logrus.Fields{"from": before, "to": len(ring)}).Info("Simplified tour")
	}

	t := &Tour{
		Name:        b.Name,
		DisplayName: b.DisplayName,
		Geometry:    g.geometry,
		Outline:     ring,
		Reel:        cfg.MovieReel,
	}

	// The runtime of the complete tour is reported before trimming.
	distances := CumulativeDistances(ring)
	t.TotalDistanceKm = distances[len(distances)-1]
	t.TotalFrames = DistanceToFrame(t.TotalDistanceKm, cfg.SpeedKmh, cfg.FrameRate) + 1
	logger.WithFields(logrus.Fields{
		"km":      math.Round(t.TotalDistanceKm),
		"runtime": FormatRuntime(t.Runtime(cfg.FrameRate)),
		"frames":  t.TotalFrames,
	}).Info("Total runtime of the complete tour")

	coarse := ring
	if cfg.SplitFrames > 0 && cfg.MovieReel == 0 {
		_, offsets, err := FrameOffsets(ring, cfg.SpeedKmh, cfg.FrameRate)
		if err != nil {
			return nil, err
		}
		bounds := PartBoundaryIndices(offsets, cfg.SplitFrames, cfg.MaxParts)
		frames := make([]int, len(bounds))
		for i, idx := range bounds {
			frames[i] = offsets[idx]
		}
		logger.WithFields(logrus.Fields{"parts": len(bounds) - 1, "split": cfg.SplitFrames, "frames": fmt.Sprint(frames)}).Debug("Preliminary split")
		coarse = ring[:bounds[len(bounds)-1]+1]
		if len(coarse) < 2 {
			coarse = ring[:2]
		}
	}

	path, err := Interpolate(coarse, cfg.AltitudeEveryKm)
	if err != nil {
		return nil, err
	}
	t.Path = path
	logger.WithField("keyframes", len(path.Points)).Info("Interpolated tour")

	frames, offsets, err := FrameOffsets(path.Points, cfg.SpeedKmh, cfg.FrameRate)
	if err != nil {
		return nil, err
	}
	t.Timed = Timed(path.Points, offsets)
	t.Frames = frames

	var bounds []int
	if cfg.MovieReel > 0 {
		if _, err := ReelIndices(len(path.Points), cfg.MovieReel); err != nil {
			return nil, err
		}
		t.Frames = cfg.MovieReel
		offsets = make([]int, cfg.MovieReel)
		for i := range offsets {
			offsets[i] = i
		}
		bounds = PartBoundaryIndices(offsets, 0, 0)
	} else {
		bounds = PartBoundaryIndices(offsets, cfg.SplitFrames, cfg.MaxParts)
		if cfg.AvoidTurningPoints {
			bounds = AvoidTurningPoints(bounds, path.TurningPoints, len(offsets)-1)
		}
	}
	t.Parts = buildParts(offsets, bounds, cfg.FromPart)

	logger.WithFields(logrus.Fields{
		"km":       math.Round(t.Distance()),
		"frames":   t.Frames,
		"runtime":  FormatRuntime(float64(t.Frames) / float64(cfg.FrameRate)),
		"parts":    len(t.Parts),
		"keyframe": fmt.Sprintf("every ~%d frames", t.Frames/len(path.Points)),
	}).Info("Laid out tour")
	return t, nil
}

// Generate lays out the tour and computes the camera keyframes, querying
// the elevation of every point of interest and camera position.
func (g *Generator) Generate(ctx context.Context, b *boundary.Boundary) (*Tour, error) {
	if g.provider == nil {
		return nil, errors.New("no elevation provider configured")
	}
	t, err := g.Plan(ctx, b)
	if err != nil {
		return nil, err
	}

	logger := g.logger.WithField("file", b.Name)
	fb := elevation.NewFallback(g.provider, logger)

	if t.Reel > 0 {
		logger.WithField("frames", t.Reel).Info("Creating movie reel")
		progress := g.progress(2*t.Reel, "elevations")
		t.Keyframes, err = reelKeyframes(ctx, t.Path.Points, t.Reel, t.Geometry, fb, progress)
	} else {
		logger.WithField("queries", 2*len(t.Timed)).Info("Querying ground elevations")
		progress := g.progress(2*len(t.Timed), "elevations")
		t.Keyframes, err = cameraKeyframes(ctx, t.Timed, t.Geometry, fb, progress)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "cannot compute keyframes of %s", b.Name)
	}
	t.Warnings = fb.Warnings()
	if len(t.Warnings) > 0 {
		logger.WithField("substitutions", len(t.Warnings)).Warn("Some elevations were substituted")
	}
	return t, nil
}
