package app

import (
	"context"
	"io"
	"math"

	"github.com/border-inspection/tourgen/boundary"
	"github.com/border-inspection/tourgen/esp"
	"github.com/border-inspection/tourgen/metrics"
	"github.com/border-inspection/tourgen/tour"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func NewCmdTour(logger logrus.FieldLogger, stderr io.Writer, config *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tour FILE...",
		Short: "Generate the tours of border files",
		Long: `Generate the tours of border files.

Files are KML, KMZ or GeoJSON documents, read from the local filesystem or
from S3 when given as s3://bucket/key. The longest polygon ring of every file
is toured and written as Earth Studio projects and encoding scripts into the
output directory.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doTour(cmd.Context(), logger, stderr, afero.NewOsFs(), config, args)
		},
	}
	addTourFlags(cmd.Flags())
	cmd.Flags().String("out", "", "Output directory")
	return cmd
}

func doTour(ctx context.Context, logger logrus.FieldLogger, stderr io.Writer, fs afero.Fs, config *Config, files []string) error {
	storage, err := objectStorage(logger, config, files...)
	if err != nil {
		return err
	}
	provider, cache, err := elevationProvider(logger, config, fs)
	if err != nil {
		return err
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.WithError(err).Warn("Elevation cache could not be closed")
		}
	}()

	g, err := tour.NewGenerator(logger, config.Tour, provider, tour.WithProgress(progressBars(stderr)))
	if err != nil {
		return err
	}
	loader := boundary.NewLoader(logger, fs, storage)
	writer := esp.NewWriter(logger, fs, config.Output, config.Video)

	failed := 0
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger := logger.WithField("file", file)
		written, err := generateFile(ctx, logger, g, loader, writer, config.Tour, file)
		if err != nil {
			if errors.Cause(err) == context.Canceled {
				return err
			}
			logger.WithError(err).Error("Tour could not be generated")
			metrics.FilesFailed.Inc()
			failed++
			continue
		}
		metrics.FilesProcessed.Inc()
		logger.WithField("files", len(written)).Info("Tour written")
	}
	if failed > 0 {
		return errors.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

func generateFile(ctx context.Context, logger logrus.FieldLogger, g *tour.Generator, loader *boundary.Loader, writer *esp.Writer, cfg tour.Config, file string) ([]string, error) {
	b, err := loader.LoadLongestRing(ctx, file)
	if err != nil {
		return nil, err
	}
	t, err := g.Generate(ctx, b)
	if err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"km":      math.Round(t.Distance()),
		"parts":   len(t.Parts),
		"runtime": tour.FormatRuntime(float64(t.Frames) / float64(cfg.FrameRate)),
	}).Info("Generated tour")
	return writer.Write(t, cfg)
}
