package app

import (
	"context"
	"fmt"
	"io"

	"github.com/border-inspection/tourgen/boundary"
	"github.com/border-inspection/tourgen/preview"
	"github.com/border-inspection/tourgen/tour"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func NewCmdPreview(logger logrus.FieldLogger, out io.Writer, config *Config) *cobra.Command {
	var width, height int
	cmd := &cobra.Command{
		Use:   "preview FILE",
		Short: "Draw the tour of a border file in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doPreview(cmd.Context(), logger, out, afero.NewOsFs(), config, args[0], width, height)
		},
	}
	addTourFlags(cmd.Flags())
	cmd.Flags().IntVar(&width, "width", 72, "Width in characters")
	cmd.Flags().IntVar(&height, "height", 24, "Height in lines")
	return cmd
}

func doPreview(ctx context.Context, logger logrus.FieldLogger, out io.Writer, fs afero.Fs, config *Config, file string, width, height int) error {
	storage, err := objectStorage(logger, config, file)
	if err != nil {
		return err
	}
	b, err := boundary.NewLoader(logger, fs, storage).LoadLongestRing(ctx, file)
	if err != nil {
		return err
	}
	g, err := tour.NewGenerator(logger, config.Tour, nil)
	if err != nil {
		return err
	}
	t, err := g.Plan(ctx, b)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, preview.Render(t, width, height))
	return err
}
