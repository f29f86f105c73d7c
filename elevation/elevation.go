// Package elevation answers ground elevation queries from terrain-RGB tiles,
// either fetched from a tile API or read from a local directory, with a
// pluggable memoizing cache in front.
package elevation

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	NoElevationDataErr = errors.New("no elevation data")
	UnknownKindErr     = errors.New("unknown elevation provider")
	TileNotFoundErr    = errors.New("elevation tile not found")
)

// Provider answers point elevation queries in meters.
type Provider interface {
	// ID identifies the provider in cache keys.
	ID() string

	Elevation(ctx context.Context, lon, lat float64) (float64, error)
}

// Kind selects the provider implementation.
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// ParseKind validates a provider name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindLocal, KindRemote:
		return k, nil
	}
	return "", errors.Wrap(UnknownKindErr, s)
}

// Key is the cache key of a query: the provider ID and the exact
// coordinates.
func Key(providerID string, lon, lat float64) string {
	return fmt.Sprintf("%s|%v|%v", providerID, lon, lat)
}
