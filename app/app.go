package app

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const defaultLogLevel = logrus.WarnLevel

var (
	configFile     string
	verbosityLevel string
)

// flagKeys maps command flags to the configuration keys they override.
var flagKeys = map[string]string{
	"kmh":                  "tour.speed_kmh",
	"tilt":                 "tour.tilt",
	"distance":             "tour.distance",
	"altitude-every":       "tour.altitude_every_km",
	"split":                "tour.split_frames",
	"nparts":               "tour.max_parts",
	"frompart":             "tour.from_part",
	"simplify":             "tour.simplify",
	"skip":                 "tour.skip",
	"startpoint":           "tour.start_point",
	"ccw":                  "tour.ccw",
	"moviereel":            "tour.movie_reel",
	"avoid-turning-points": "tour.avoid_turning_points",
	"out":                  "output.dir",
	"admin-level":          "overpass.admin_level",
	"borders":              "overpass.dir",
	"metrics-addr":         "worker.metrics_addr",
}

// Run executes the command line. Interrupting the process cancels the
// context of the running command.
func Run(out, stderr io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	c := RootCommand(out, stderr)
	return c.ExecuteContext(ctx)
}

func RootCommand(out, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tourgen",
		Short:         "Border inspection tour generator",
		SilenceErrors: true,
	}

	cmd.SetOut(out)
	cmd.SetErr(stderr)
	cmd.Root().SilenceUsage = true

	verbosityLevel = ""
	configFile = ""

	config := &Config{}
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(config, cmd.Flags()); err != nil {
			return err
		}

		if verbosityLevel == "" {
			verbosityLevel = config.Logging.Level
		}
		if err := setUpLogger(out, verbosityLevel); err != nil {
			return err
		}

		return nil
	}

	cmd.AddCommand(NewCmdTour(logrus.WithField("cmd", "tour"), stderr, config))
	cmd.AddCommand(NewCmdPlan(logrus.WithField("cmd", "plan"), out, config))
	cmd.AddCommand(NewCmdPreview(logrus.WithField("cmd", "preview"), out, config))
	cmd.AddCommand(NewCmdFetch(logrus.WithField("cmd", "fetch"), config))
	cmd.AddCommand(NewCmdValidate(out))
	cmd.AddCommand(NewCmdWorker(logrus.WithField("cmd", "worker"), config))
	cmd.AddCommand(NewCmdConfig(out, config))
	cmd.AddCommand(NewCmdVersion(out))

	cmd.PersistentFlags().StringVarP(&verbosityLevel, "verbosity", "v", "", "Log level (debug, info, warn, error, fatal, panic)")
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file")

	return cmd
}

// addTourFlags adds the flags shared by the commands laying out tours.
func addTourFlags(flags *pflag.FlagSet) {
	flags.Float64("kmh", 0, "Ground speed in km/h")
	flags.Float64("tilt", 0, "Camera tilt in degrees")
	flags.Float64("distance", 0, "Camera distance in meters")
	flags.Float64("altitude-every", 0, "Maximum spacing of the resampled tour in km")
	flags.Int("split", 0, "Maximum number of frames per part")
	flags.Int("nparts", 0, "Maximum number of parts")
	flags.Int("frompart", 0, "Offset of the part numbers")
	flags.Float64("simplify", 0, "Douglas-Peucker tolerance in degrees")
	flags.Int("skip", 0, "Number of border points to skip at the start")
	flags.String("startpoint", "", "Start the tour at this border point, given as lon,lat")
	flags.Bool("ccw", false, "Keep the enclosed area to the left of the camera")
	flags.Int("moviereel", 0, "Generate a movie reel with this many keyframes")
	flags.Bool("avoid-turning-points", false, "Move part boundaries off border corners")
}

func setUpLogger(out io.Writer, level string) error {
	if level == "" {
		level = defaultLogLevel.String()
	}
	logrus.SetOutput(out)
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return errors.Wrap(err, "parsing log level")
	}
	logrus.SetLevel(lvl)
	return nil
}
