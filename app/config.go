package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/border-inspection/tourgen/elevation"
	"github.com/border-inspection/tourgen/esp"
	"github.com/border-inspection/tourgen/tour"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const defaultConfig = `# Border inspection tour generator

################################## LOGGING ####################################

[logging]

#
# Logging verbosity level.
# Supported values: "DEBUG", "INFO", "WARN", "ERROR", "FATAL" or "PANIC".
#
level = "INFO"

################################## TOUR #######################################

[tour]

#
# Ground speed of the animation in km/h.
#
speed_kmh = 50.0

#
# Camera angle in degrees, 90 looks straight down, and distance between the
# camera and the border in meters. A positive vertical or ground distance
# overrides the distance.
#
tilt = 40.0
distance = 400.0
vertical_distance = 0.0
ground_distance = 0.0

#
# Maximum spacing of the resampled tour in km. One elevation is queried for
# every resampled point and every camera position.
#
altitude_every_km = 5.0

#
# Maximum number of frames per part, 0 disables splitting. max_parts limits
# the number of parts written and from_part offsets their numbers.
#
split_frames = 0
max_parts = 0
from_part = 0

#
# Douglas-Peucker tolerance in degrees, 0 disables simplification.
#
simplify = 0.0

#
# Starting point of the tour: skip this many points of the border, or start
# at the given [lon, lat] border point.
#
skip = 0
start_point = []

#
# Keep the enclosed area to the left of the camera.
#
ccw = false

#
# Number of keyframes of a movie reel, 0 generates a regular tour.
#
movie_reel = 0

#
# Move part boundaries off the corners of the border.
#
avoid_turning_points = false

################################## VIDEO ######################################

[video]

width = 1280

#
# Render export frame rate and frame rate of the encoded video.
#
frame_rate = 25
video_frame_rate = 25

#
# Length of the intro cross-fades in seconds.
#
fade = 1.2

video_args = "-c:v libx264 -preset slow -crf 20 -pix_fmt yuv420p"
container_args = "-movflags +faststart"

#
# Directory holding the rendered footage, one directory per part.
#
footage_dir = "footage"

#
# Optional filter removing the logo from the footage, e.g.
# "removelogo=earthlogo.bmp".
#
logo_filter = ""

################################## OUTPUT #####################################

[output]

dir = "data"
esp = true
sh = true

################################## ELEVATION ##################################

[elevation]

#
# Elevation provider: "remote" queries terrain-RGB tiles over HTTP, "local"
# reads the same tiles from tile_dir.
#
provider = "remote"
url = "https://api.mapbox.com/v4/mapbox.terrain-rgb/{z}/{x}/{y}.pngraw?access_token={token}"
token = ""
tile_dir = "tiles"
zoom = 14

[cache]

#
# Elevation cache: "file", "memory", "dynamodb", "valkey" or "none".
#
backend = "file"
path = "elevation-cache.json"
dynamodb_table = "tourgen_elevation_cache"
valkey_addr = "127.0.0.1:6379"
valkey_prefix = "tourgen:elevation:"

################################## OVERPASS ###################################

[overpass]

url = "https://overpass-api.de/api/interpreter"
admin_level = 2
dir = "borders"

################################## WORKER #####################################

[worker]

#
# AWS SQS queue URL, e.g. "https://queue.amazonaws.com/80398EXAMPLE/MyQueue".
#
# The worker will receive jobs from this queue.
#
queue_url = ""

#
# AWS SNS topic ARNs, e.g. "arn:aws:sns:us-east-2:444455556666:results".
#
# Results are published to result_topic_arn, failures to error_topic_arn.
#
result_topic_arn = ""
error_topic_arn = ""

#
# Name of the table used to remember received jobs (DynamoDB). Empty disables
# the check for redelivered jobs.
#
repository_table = ""

#
# S3 prefix the written files are uploaded to, e.g. "s3://bucket/tours".
#
output_uri = ""

metrics_addr = ":6060"

################################## AWS ########################################

[aws]

s3_profile = ""
s3_endpoint = ""

dynamodb_profile = ""
dynamodb_endpoint = ""

sqs_profile = ""
sqs_endpoint = ""

sns_profile = ""
sns_endpoint = ""
`

type Config struct {
	v *viper.Viper

	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`

	Tour tour.Config `mapstructure:"tour"`

	Video esp.VideoConfig `mapstructure:"video"`

	Output esp.OutputConfig `mapstructure:"output"`

	Elevation elevation.Config `mapstructure:"elevation"`

	Cache elevation.CacheConfig `mapstructure:"cache"`

	Overpass struct {
		URL        string `mapstructure:"url"`
		AdminLevel int    `mapstructure:"admin_level"`
		Dir        string `mapstructure:"dir"`
	} `mapstructure:"overpass"`

	Worker struct {
		QueueURL        string `mapstructure:"queue_url"`
		ResultTopicARN  string `mapstructure:"result_topic_arn"`
		ErrorTopicARN   string `mapstructure:"error_topic_arn"`
		RepositoryTable string `mapstructure:"repository_table"`
		OutputURI       string `mapstructure:"output_uri"`
		MetricsAddr     string `mapstructure:"metrics_addr"`
	} `mapstructure:"worker"`

	AWS struct {
		S3Profile        string `mapstructure:"s3_profile"`
		S3Endpoint       string `mapstructure:"s3_endpoint"`
		DynamoDBProfile  string `mapstructure:"dynamodb_profile"`
		DynamoDBEndpoint string `mapstructure:"dynamodb_endpoint"`
		SQSProfile       string `mapstructure:"sqs_profile"`
		SQSEndpoint      string `mapstructure:"sqs_endpoint"`
		SNSProfile       string `mapstructure:"sns_profile"`
		SNSEndpoint      string `mapstructure:"sns_endpoint"`
	} `mapstructure:"aws"`
}

// Validate reports every problem with the configuration in a single error
// wrapping tour.InvalidConfigurationErr.
func (c Config) Validate() error {
	var problems []string
	if err := c.Tour.Validate(); err != nil {
		problems = append(problems, strings.TrimSuffix(err.Error(), ": "+tour.InvalidConfigurationErr.Error()))
	}
	if c.Video.Width <= 0 {
		problems = append(problems, fmt.Sprintf("video width must be positive, got %d", c.Video.Width))
	}
	if c.Video.VideoFrameRate <= 0 {
		problems = append(problems, fmt.Sprintf("video frame rate must be positive, got %d", c.Video.VideoFrameRate))
	}
	if c.Video.Fade < 0 {
		problems = append(problems, fmt.Sprintf("fade cannot be negative, got %g", c.Video.Fade))
	}
	if _, err := elevation.ParseKind(c.Elevation.Provider); err != nil {
		problems = append(problems, err.Error())
	}
	switch c.Cache.Backend {
	case "file", "memory", "dynamodb", "valkey", "none", "":
	default:
		problems = append(problems, fmt.Sprintf("unknown cache backend %q", c.Cache.Backend))
	}
	if c.Overpass.AdminLevel < 1 {
		problems = append(problems, fmt.Sprintf("admin level must be positive, got %d", c.Overpass.AdminLevel))
	}
	if len(problems) > 0 {
		return errors.Wrap(tour.InvalidConfigurationErr, strings.Join(problems, "; "))
	}
	return nil
}

func (c Config) String() string {
	if c.v == nil {
		return ""
	}
	tmpfile, err := os.CreateTemp("", "config.*.toml")
	if err != nil {
		return err.Error()
	}
	tmpfile.Close()
	defer os.Remove(tmpfile.Name())
	if err := c.v.WriteConfigAs(tmpfile.Name()); err != nil {
		return err.Error()
	}
	blob, err := os.ReadFile(tmpfile.Name())
	if err != nil {
		return err.Error()
	}
	return string(blob)
}

func loadConfig(c *Config, flags *pflag.FlagSet) error {
	v := viper.New()

	v.SetEnvPrefix("TOURGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("tourgen")
	v.SetConfigType("toml")
	v.AddConfigPath("$HOME/.config/")
	v.AddConfigPath("/etc/tourgen/")

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	// Read our default configuration.
	if err := v.ReadConfig(strings.NewReader(defaultConfig)); err != nil {
		panic(err) // Not in the user path.
	}

	// Include configuration file provided by the user.
	if err := v.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return errors.Wrap(err, "cannot read configuration file")
		}
	}

	for name, key := range flagKeys {
		if flag := flags.Lookup(name); flag != nil {
			if err := v.BindPFlag(key, flag); err != nil {
				return err
			}
		}
	}

	if err := v.Unmarshal(c); err != nil {
		return errors.Wrap(err, "configuration unmarshaling failed")
	}
	c.Tour.FrameRate = c.Video.FrameRate

	if err := c.Validate(); err != nil {
		return errors.Wrap(err, "config did not pass validation")
	}

	c.v = v

	return nil
}
