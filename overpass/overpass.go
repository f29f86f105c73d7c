// Package overpass downloads administrative boundaries from the OSM Overpass
// API and converts them into GeoJSON features.
package overpass

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultURL is the interpreter endpoint of the main Overpass instance.
const DefaultURL = "https://overpass-api.de/api/interpreter"

var NotFoundErr = errors.New("no boundary relation found")

// Client sends queries to an Overpass interpreter.
type Client struct {
	client *http.Client
	url    string
	logger logrus.FieldLogger

	// NewBackOff returns the retry policy of a query. Overpass answers 429
	// and 504 when it is busy.
	NewBackOff func() backoff.BackOff
}

func NewClient(logger logrus.FieldLogger, client *http.Client, endpoint string) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	if endpoint == "" {
		endpoint = DefaultURL
	}
	return &Client{
		client: client,
		url:    endpoint,
		logger: logger,
		NewBackOff: func() backoff.BackOff {
			return &backoff.ExponentialBackOff{
				InitialInterval:     2 * time.Second,
				RandomizationFactor: 0.5,
				Multiplier:          2,
				MaxInterval:         time.Minute,
				MaxElapsedTime:      10 * time.Minute,
				Clock:               backoff.SystemClock,
			}
		},
	}
}

// query posts an Overpass QL query and returns the response body.
func (c *Client) query(ctx context.Context, q string) ([]byte, error) {
	form := url.Values{"data": {q}}.Encode()

	var blob []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			c.logger.WithField("status", resp.StatusCode).Debug("Overpass is busy, retrying")
			return fmt.Errorf("unexpected status code: %d (%s)", resp.StatusCode, resp.Status)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("unexpected status code: %d (%s)", resp.StatusCode, resp.Status))
		}
		blob, err = ioutil.ReadAll(resp.Body)
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(c.NewBackOff(), ctx)); err != nil {
		return nil, errors.Wrap(err, "overpass query failed")
	}
	return blob, nil
}

// CountryCodes lists the ISO 3166-1 alpha-3 codes of all relations at the
// given admin level, following what OSM considers de-facto states.
func (c *Client) CountryCodes(ctx context.Context, adminLevel int) ([]string, error) {
	q := fmt.Sprintf(`[out:csv("ISO3166-1:alpha3")];rel[admin_level=%d]["ISO3166-1:alpha3"];out;`, adminLevel)
	blob, err := c.query(ctx, q)
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(string(blob))
	if len(fields) == 0 {
		return nil, nil
	}
	// The first field is the column header.
	seen := map[string]bool{}
	var codes []string
	for _, code := range fields[1:] {
		if seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
	}
	return codes, nil
}

type response struct {
	Elements []element `json:"elements"`
}

type element struct {
	Type    string            `json:"type"`
	ID      int64             `json:"id"`
	Tags    map[string]string `json:"tags"`
	Members []member          `json:"members"`
}

type member struct {
	Type     string  `json:"type"`
	Ref      int64   `json:"ref"`
	Role     string  `json:"role"`
	Geometry []coord `json:"geometry"`
}

type coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Boundary downloads the administrative boundary of a country. Land areas
// and claimed boundaries carrying the same code are excluded. Every relation
// becomes one feature whose properties hold the OSM type, id and tags.
func (c *Client) Boundary(ctx context.Context, iso3 string, adminLevel int) (*geojson.FeatureCollection, error) {
	q := fmt.Sprintf(`[out:json];rel["ISO3166-1:alpha3"=%s][boundary=administrative][admin_level=%d][type!=land_area];out geom;`, iso3, adminLevel)
	blob, err := c.query(ctx, q)
	if err != nil {
		return nil, err
	}
	var resp response
	if err := json.NewDecoder(bytes.NewReader(blob)).Decode(&resp); err != nil {
		return nil, errors.Wrap(err, "cannot decode overpass response")
	}

	fc := geojson.NewFeatureCollection()
	for _, el := range resp.Elements {
		if el.Type != "relation" {
			continue
		}
		rings, open := assembleRings(el.Members)
		if open > 0 {
			c.logger.WithFields(logrus.Fields{"relation": el.ID, "open": open}).Warn("Dropped ways that do not form closed rings")
		}
		if len(rings) == 0 {
			continue
		}
		var geom orb.Geometry
		if len(rings) == 1 {
			geom = orb.Polygon{rings[0]}
		} else {
			mp := make(orb.MultiPolygon, len(rings))
			for i, r := range rings {
				mp[i] = orb.Polygon{r}
			}
			geom = mp
		}
		f := geojson.NewFeature(geom)
		f.Properties["type"] = el.Type
		f.Properties["id"] = el.ID
		tags := map[string]interface{}{}
		for k, v := range el.Tags {
			tags[k] = v
		}
		f.Properties["tags"] = tags
		fc.Append(f)
	}
	if len(fc.Features) == 0 {
		return nil, errors.Wrapf(NotFoundErr, "%s at admin level %d", iso3, adminLevel)
	}
	return fc, nil
}

// AdminLevel returns the admin_level tag of the first feature.
func AdminLevel(fc *geojson.FeatureCollection) string {
	if fc == nil || len(fc.Features) == 0 {
		return ""
	}
	tags, ok := fc.Features[0].Properties["tags"].(map[string]interface{})
	if !ok {
		return ""
	}
	level, _ := tags["admin_level"].(string)
	return level
}
