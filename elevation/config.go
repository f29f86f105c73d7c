package elevation

import (
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

var UnknownCacheErr = errors.New("unknown elevation cache backend")

// Config selects and configures the provider.
type Config struct {
	Provider string `mapstructure:"provider"`
	URL      string `mapstructure:"url"`
	Token    string `mapstructure:"token"`
	TileDir  string `mapstructure:"tile_dir"`
	Zoom     int    `mapstructure:"zoom"`
}

// CacheConfig selects and configures the cache backend.
type CacheConfig struct {
	Backend       string `mapstructure:"backend"`
	Path          string `mapstructure:"path"`
	DynamoDBTable string `mapstructure:"dynamodb_table"`
	ValkeyAddr    string `mapstructure:"valkey_addr"`
	ValkeyPrefix  string `mapstructure:"valkey_prefix"`
}

// NewProvider builds the configured provider.
func NewProvider(logger logrus.FieldLogger, config Config, fs afero.Fs, client *http.Client) (Provider, error) {
	kind, err := ParseKind(config.Provider)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindLocal:
		if config.TileDir == "" {
			return nil, errors.New("local elevation provider needs a tile directory")
		}
		return NewLocal(fs, config.TileDir, config.Zoom), nil
	default:
		if config.Token == "" && strings.Contains(config.URL, "{token}") {
			logger.Warn("Elevation provider URL expects a token but none is configured")
		}
		return NewRemote(logger, client, config.URL, config.Token, config.Zoom), nil
	}
}

// OpenCache opens the configured cache backend. The DynamoDB client is only
// used by the dynamodb backend and may be nil otherwise.
func OpenCache(config CacheConfig, fs afero.Fs, dynamo dynamodbiface.DynamoDBAPI) (Cache, error) {
	switch strings.ToLower(config.Backend) {
	case "", "none":
		return NopCache{}, nil
	case "memory":
		return NewMemoryCache(), nil
	case "file":
		if config.Path == "" {
			return nil, errors.New("file cache needs a path")
		}
		return OpenFileCache(fs, config.Path)
	case "dynamodb":
		if dynamo == nil || config.DynamoDBTable == "" {
			return nil, errors.New("dynamodb cache needs a client and a table")
		}
		return NewDynamoDBCache(dynamo, config.DynamoDBTable), nil
	case "valkey":
		if config.ValkeyAddr == "" {
			return nil, errors.New("valkey cache needs an address")
		}
		return NewValkeyCache(config.ValkeyAddr, config.ValkeyPrefix)
	}
	return nil, errors.Wrap(UnknownCacheErr, config.Backend)
}
