package app

import (
	"context"
	"fmt"
	"io"

	"github.com/border-inspection/tourgen/boundary"
	"github.com/border-inspection/tourgen/esp"
	"github.com/border-inspection/tourgen/tour"

	"github.com/go-logfmt/logfmt"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func NewCmdPlan(logger logrus.FieldLogger, out io.Writer, config *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan FILE...",
		Short: "Print the timing and the parts of tours without querying elevations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doPlan(cmd.Context(), logger, out, afero.NewOsFs(), config, args)
		},
	}
	addTourFlags(cmd.Flags())
	return cmd
}

// doPlan writes one logfmt record per tour followed by one per part.
func doPlan(ctx context.Context, logger logrus.FieldLogger, out io.Writer, fs afero.Fs, config *Config, files []string) error {
	storage, err := objectStorage(logger, config, files...)
	if err != nil {
		return err
	}
	g, err := tour.NewGenerator(logger, config.Tour, nil)
	if err != nil {
		return err
	}
	loader := boundary.NewLoader(logger, fs, storage)
	enc := logfmt.NewEncoder(out)
	fps := float64(config.Tour.FrameRate)

	failed := 0
	for _, file := range files {
		b, err := loader.LoadLongestRing(ctx, file)
		if err == nil {
			var t *tour.Tour
			t, err = g.Plan(ctx, b)
			if err == nil {
				err = encodePlan(enc, t, config, fps)
			}
		}
		if err != nil {
			if errors.Cause(err) == context.Canceled {
				return err
			}
			logger.WithField("file", file).WithError(err).Error("Tour could not be planned")
			failed++
		}
	}
	if failed > 0 {
		return errors.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

func encodePlan(enc *logfmt.Encoder, t *tour.Tour, config *Config, fps float64) error {
	err := enc.EncodeKeyvals(
		"tour", t.Name,
		"name", t.DisplayName,
		"km", fmt.Sprintf("%.1f", t.TotalDistanceKm),
		"frames", t.TotalFrames,
		"runtime", tour.FormatRuntime(t.Runtime(config.Tour.FrameRate)),
		"points", len(t.Path.Points),
		"tilt", t.Geometry.EffectiveTilt,
		"parts", len(t.Parts),
	)
	if err != nil {
		return err
	}
	if err := enc.EndRecord(); err != nil {
		return err
	}
	for i, meta := range esp.NewMetadata(t, config.Tour, config.Video) {
		p := t.Parts[i]
		err := enc.EncodeKeyvals(
			"tour", t.Name,
			"part", meta.FileName(),
			"keyframes", p.EndIndex-p.StartIndex+1,
			"start", p.StartFrame,
			"end", p.EndFrame,
			"runtime", tour.FormatRuntime(float64(p.Duration())/fps),
		)
		if err != nil {
			return err
		}
		if err := enc.EndRecord(); err != nil {
			return err
		}
	}
	return nil
}
