package overpass

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/border-inspection/tourgen/boundary"

	"github.com/cenkalti/backoff/v3"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const squareRelation = `{
  "elements": [{
    "type": "relation",
    "id": 2978650,
    "tags": {"ISO3166-1:alpha3": "NOR", "admin_level": "2", "boundary": "administrative", "name:en": "Norway"},
    "members": [
      {"type": "node", "ref": 1, "role": "admin_centre", "lat": 0.5, "lon": 0.5},
      {"type": "way", "ref": 10, "role": "outer", "geometry": [{"lat": 0, "lon": 0}, {"lat": 0, "lon": 1}, {"lat": 1, "lon": 1}]},
      {"type": "way", "ref": 11, "role": "inner", "geometry": [{"lat": 0.2, "lon": 0.2}, {"lat": 0.2, "lon": 0.3}, {"lat": 0.3, "lon": 0.3}, {"lat": 0.2, "lon": 0.2}]},
      {"type": "way", "ref": 12, "role": "outer", "geometry": [{"lat": 0, "lon": 0}, {"lat": 1, "lon": 0}, {"lat": 1, "lon": 1}]},
      {"type": "way", "ref": 13, "role": "outer", "geometry": [{"lat": 5, "lon": 5}, {"lat": 6, "lon": 6}]}
    ]
  }]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	logger, _ := test.NewNullLogger()
	c := NewClient(logger, srv.Client(), srv.URL)
	c.NewBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)
	}
	return c, srv
}

func TestClient_CountryCodes(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, `[out:csv("ISO3166-1:alpha3")];rel[admin_level=2]["ISO3166-1:alpha3"];out;`, r.PostForm.Get("data"))
		w.Write([]byte("ISO3166-1:alpha3\nAUT\nNOR\nAUT\n"))
	})
	defer srv.Close()

	codes, err := c.CountryCodes(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"AUT", "NOR"}, codes)
}

func TestClient_Boundary(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Contains(t, r.PostForm.Get("data"), `rel["ISO3166-1:alpha3"=NOR][boundary=administrative][admin_level=2][type!=land_area];out geom;`)
		w.Write([]byte(squareRelation))
	})
	defer srv.Close()

	fc, err := c.Boundary(context.Background(), "NOR", 2)
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)

	f := fc.Features[0]
	poly, ok := f.Geometry.(orb.Polygon)
	require.True(t, ok)
	assert.Equal(t, orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}, poly[0])
	assert.Equal(t, "relation", f.Properties["type"])
	assert.Equal(t, "2", AdminLevel(fc))
}

func TestClient_Boundary_NotFound(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"elements": []}`))
	})
	defer srv.Close()

	_, err := c.Boundary(context.Background(), "ATA", 2)
	assert.Equal(t, NotFoundErr, errors.Cause(err))
}

func TestClient_Retry(t *testing.T) {
	var requests int32
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ISO3166-1:alpha3\nAUT\n"))
	})
	defer srv.Close()

	codes, err := c.CountryCodes(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"AUT"}, codes)
	assert.EqualValues(t, 3, atomic.LoadInt32(&requests))

	atomic.StoreInt32(&requests, 0)
	bad, srv2 := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusBadRequest)
	})
	defer srv2.Close()
	_, err = bad.CountryCodes(context.Background(), 2)
	assert.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&requests))
}

func TestAssembleRings(t *testing.T) {
	way := func(points ...float64) member {
		m := member{Type: "way", Role: "outer"}
		for i := 0; i < len(points); i += 2 {
			m.Geometry = append(m.Geometry, coord{Lon: points[i], Lat: points[i+1]})
		}
		return m
	}

	rings, open := assembleRings([]member{
		way(0, 0, 1, 0),
		way(1, 1, 0, 1, 0, 0),
		way(1, 0, 1, 1),
		way(10, 10, 11, 10, 11, 11, 10, 10),
	})
	assert.Equal(t, 0, open)
	require.Len(t, rings, 2)
	assert.Equal(t, orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}, rings[0])
	assert.Len(t, rings[1], 4)

	rings, open = assembleRings([]member{way(0, 0, 1, 0), way(1, 0, 2, 0)})
	assert.Empty(t, rings)
	assert.Equal(t, 1, open)
}

func TestFetcher(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		q := r.PostForm.Get("data")
		switch {
		case strings.HasPrefix(q, "[out:csv"):
			w.Write([]byte("ISO3166-1:alpha3\nAUT\nNOR\nXXX\n"))
		case strings.Contains(q, "=NOR]"):
			w.Write([]byte(squareRelation))
		case strings.Contains(q, "=AUT]"):
			t.Error("existing border fetched again")
		default:
			w.Write([]byte(`{"elements": []}`))
		}
	})
	defer srv.Close()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/2/AUT.geojson", []byte("{}"), 0644))
	logger, _ := test.NewNullLogger()

	written, err := NewFetcher(logger, c, fs, "/data", 2).Fetch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"/data/2/NOR.geojson"}, written)

	b, err := boundary.NewLoader(logger, fs, nil).LoadLongestRing(context.Background(), "/data/2/NOR.geojson")
	require.NoError(t, err)
	assert.Equal(t, "Norway", b.DisplayName)
	assert.Len(t, b.Ring, 5)
}
