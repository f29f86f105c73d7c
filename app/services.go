package app

import (
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/border-inspection/tourgen/elevation"
	"github.com/border-inspection/tourgen/s3"
	"github.com/border-inspection/tourgen/tour"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

type logrusProxy struct {
	logger logrus.FieldLogger
}

func (l logrusProxy) Log(args ...interface{}) {
	l.logger.WithField("client", "aws").Debug(args...)
}

// awsSession returns a session using NewSessionWithOptions meaning that it
// relies on the SDK defaults but also the user config files and environment.
//
// AWS_S3_FORCE_PATH_STYLE is a made-up environment string that the SDK does
// not look up.
func awsSession(logger logrus.FieldLogger, profile, endpoint string) (*session.Session, error) {
	options := session.Options{}
	if profile != "" {
		options.Profile = profile
	}
	if endpoint != "" {
		options.Config.WithEndpoint(endpoint)
	}
	if res, ok := os.LookupEnv("AWS_S3_FORCE_PATH_STYLE"); ok {
		enabled, _ := strconv.ParseBool(res)
		options.Config.WithS3ForcePathStyle(enabled)
	}
	if logrus.GetLevel() == logrus.DebugLevel {
		options.Config.WithCredentialsChainVerboseErrors(true)
	}
	options.Config.WithLogger(logrusProxy{logger: logger})
	return session.NewSessionWithOptions(options)
}

// objectStorage returns the S3 client, or nil when none of the URIs given
// lives in S3.
func objectStorage(logger logrus.FieldLogger, config *Config, uris ...string) (s3.ObjectStorage, error) {
	needed := false
	for _, uri := range uris {
		if strings.HasPrefix(uri, "s3://") {
			needed = true
		}
	}
	if !needed {
		return nil, nil
	}
	sess, err := awsSession(logger, config.AWS.S3Profile, config.AWS.S3Endpoint)
	if err != nil {
		return nil, err
	}
	return s3.New(sess), nil
}

// elevationProvider builds the configured provider behind the configured
// cache. The cache must be closed once the run is over.
func elevationProvider(logger logrus.FieldLogger, config *Config, fs afero.Fs) (elevation.Provider, io.Closer, error) {
	provider, err := elevation.NewProvider(logger, config.Elevation, fs, http.DefaultClient)
	if err != nil {
		return nil, nil, err
	}

	var dynamodbClient dynamodbiface.DynamoDBAPI
	if strings.EqualFold(config.Cache.Backend, "dynamodb") {
		sess, err := awsSession(logger, config.AWS.DynamoDBProfile, config.AWS.DynamoDBEndpoint)
		if err != nil {
			return nil, nil, err
		}
		dynamodbClient = dynamodb.New(sess)
	}
	cache, err := elevation.OpenCache(config.Cache, fs, dynamodbClient)
	if err != nil {
		return nil, nil, err
	}
	logger.WithFields(logrus.Fields{"provider": provider.ID(), "cache": config.Cache.Backend}).Debug("Elevation provider ready")

	return elevation.WithCache(logger, provider, cache), cache, nil
}

type nopProgress struct{}

func (nopProgress) Add(int) error { return nil }

// progressBars draws elevation queries on w unless debug logging would
// interleave with the bar.
func progressBars(w io.Writer) func(total int, description string) tour.Progress {
	return func(total int, description string) tour.Progress {
		if logrus.IsLevelEnabled(logrus.DebugLevel) {
			return nopProgress{}
		}
		return progressbar.NewOptions(total,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(description),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}
}
