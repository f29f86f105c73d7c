package elevation

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/border-inspection/tourgen/metrics"

	"github.com/cenkalti/backoff/v3"
	"github.com/paulmach/orb/maptile"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultURL is the Mapbox terrain-RGB tile endpoint.
const DefaultURL = "https://api.mapbox.com/v4/mapbox.terrain-rgb/{z}/{x}/{y}.pngraw?access_token={token}"

// Remote reads elevations from terrain-RGB tiles served over HTTP.
type Remote struct {
	*tileSet
	client   *http.Client
	template string
	token    string
	logger   logrus.FieldLogger

	// NewBackOff returns the retry policy of a tile request.
	NewBackOff func() backoff.BackOff
}

var _ Provider = (*Remote)(nil)

// NewRemote returns a Remote provider. The template may contain the {z},
// {x}, {y} and {token} placeholders.
func NewRemote(logger logrus.FieldLogger, client *http.Client, template, token string, zoom int) *Remote {
	if client == nil {
		client = http.DefaultClient
	}
	if template == "" {
		template = DefaultURL
	}
	r := &Remote{
		client:   client,
		template: template,
		token:    token,
		logger:   logger,
		NewBackOff: func() backoff.BackOff {
			return &backoff.ExponentialBackOff{
				InitialInterval:     500 * time.Millisecond,
				RandomizationFactor: 0.5,
				Multiplier:          1.5,
				MaxInterval:         10 * time.Second,
				MaxElapsedTime:      2 * time.Minute,
				Clock:               backoff.SystemClock,
			}
		},
	}
	r.tileSet = newTileSet(zoom, r.fetch)
	return r
}

func (r *Remote) ID() string {
	return fmt.Sprintf("remote-z%d", r.zoom)
}

func (r *Remote) Elevation(ctx context.Context, lon, lat float64) (float64, error) {
	metrics.ElevationQueries.WithLabelValues(string(KindRemote)).Inc()
	return r.elevation(ctx, lon, lat)
}

func (r *Remote) tileURL(t maptile.Tile) string {
	return strings.NewReplacer(
		"{z}", strconv.Itoa(int(t.Z)),
		"{x}", strconv.Itoa(int(t.X)),
		"{y}", strconv.Itoa(int(t.Y)),
		"{token}", r.token,
	).Replace(r.template)
}

// fetch downloads and decodes one tile, retrying on transport and server
// errors.
func (r *Remote) fetch(ctx context.Context, t maptile.Tile) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.tileURL(t), nil)
	if err != nil {
		return nil, err
	}

	var img image.Image
	op := func() error {
		resp, err := r.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(errors.Wrapf(TileNotFoundErr, "%d/%d/%d", t.Z, t.X, t.Y))
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("unexpected status code: %d (%s)", resp.StatusCode, resp.Status)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("unexpected status code: %d (%s)", resp.StatusCode, resp.Status))
		}
		img, err = decodeTile(resp.Body, fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y))
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(r.NewBackOff(), ctx)); err != nil {
		return nil, err
	}
	r.logger.WithFields(logrus.Fields{"z": t.Z, "x": t.X, "y": t.Y}).Debug("Fetched elevation tile")
	return img, nil
}
