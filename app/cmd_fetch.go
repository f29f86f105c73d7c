package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/border-inspection/tourgen/overpass"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func NewCmdFetch(logger logrus.FieldLogger, config *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch [ISO3...]",
		Short: "Download country borders from OpenStreetMap",
		Long: `Download country borders from the Overpass API.

Every country given by its ISO 3166-1 alpha-3 code, or every country known to
Overpass when none is given, is written as GeoJSON to
<dir>/<admin level>/<code>.geojson. Existing files are kept.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			codes := make([]string, len(args))
			for i, arg := range args {
				codes[i] = strings.ToUpper(arg)
			}
			client := overpass.NewClient(logger, &http.Client{Timeout: 10 * time.Minute}, config.Overpass.URL)
			fetcher := overpass.NewFetcher(logger, client, afero.NewOsFs(), config.Overpass.Dir, config.Overpass.AdminLevel)
			written, err := fetcher.Fetch(cmd.Context(), codes)
			logger.WithField("written", len(written)).Info("Fetched borders")
			return err
		},
	}
	cmd.Flags().Int("admin-level", 0, "OpenStreetMap admin level")
	cmd.Flags().String("borders", "", "Output directory")
	return cmd
}
