package elevation

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/border-inspection/tourgen/geodesy"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/cenkalti/backoff/v3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// stubProvider returns the queued values in order, then repeats the last.
type stubProvider struct {
	values []float64
	errs   []error
	calls  int
}

func (s *stubProvider) ID() string { return "stub" }

func (s *stubProvider) Elevation(ctx context.Context, lon, lat float64) (float64, error) {
	i := s.calls
	s.calls++
	if i >= len(s.values) {
		i = len(s.values) - 1
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.values[i], err
}

// terrainPNG encodes a tile filled with the terrain-RGB color of the given
// elevation.
func terrainPNG(t *testing.T, meters float64) []byte {
	t.Helper()
	v := int(math.Round((meters + 10000) * 10))
	c := color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
	img := image.NewNRGBA(image.Rect(0, 0, 256, 256))
	for y := 0; y < 256; y++ {
		for x := 0; x < 256; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	assert.Equal(t, -10000.0, Decode(0, 0, 0))
	assert.InDelta(t, 0, Decode(1, 134, 160), 1e-9)
	assert.InDelta(t, 100, Decode(1, 138, 136), 1e-9)
}

func TestPixelElevation(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 256, 256))
	img.SetNRGBA(0, 0, color.NRGBA{R: 1, G: 138, B: 136, A: 255})
	img.SetNRGBA(255, 255, color.NRGBA{R: 1, G: 134, B: 160, A: 255})
	bound := orb.Bound{Min: orb.Point{10, 40}, Max: orb.Point{11, 41}}

	// Upper left is west/north, lower right east/south.
	assert.InDelta(t, 100, pixelElevation(img, bound, 10, 41), 1e-9)
	assert.InDelta(t, 0, pixelElevation(img, bound, 11, 40), 1e-9)
	// Out of bounds coordinates are clamped.
	assert.InDelta(t, 100, pixelElevation(img, bound, 9, 42), 1e-9)
}

func TestRemote(t *testing.T) {
	tile := terrainPNG(t, 512)
	var requests int32
	var lastPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		lastPath = r.URL.Path + "?" + r.URL.RawQuery
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(tile)
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	remote := NewRemote(logger, srv.Client(), srv.URL+"/{z}/{x}/{y}.pngraw?access_token={token}", "secret", 14)
	remote.NewBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)
	}

	v, err := remote.Elevation(context.Background(), 16.37, 48.21)
	require.NoError(t, err)
	assert.InDelta(t, 512, v, 1e-9)

	want := maptile.At(orb.Point{16.37, 48.21}, 14)
	assert.Equal(t, fmt.Sprintf("/14/%d/%d.pngraw?access_token=secret", want.X, want.Y), lastPath)
	assert.Equal(t, "remote-z14", remote.ID())

	// The same tile is not fetched again.
	_, err = remote.Elevation(context.Background(), 16.3701, 48.2101)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&requests))
}

func TestRemote_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	remote := NewRemote(logger, srv.Client(), srv.URL+"/{z}/{x}/{y}.png", "", 0)
	_, err := remote.Elevation(context.Background(), 0, 0)
	assert.Equal(t, TileNotFoundErr, errors.Cause(err))
}

func TestLocal(t *testing.T) {
	fs := afero.NewMemMapFs()
	tile := maptile.At(orb.Point{9.5, 47.1}, 12)
	name := fmt.Sprintf("/tiles/12/%d/%d.png", tile.X, tile.Y)
	require.NoError(t, afero.WriteFile(fs, name, terrainPNG(t, 1200), 0644))

	local := NewLocal(fs, "/tiles/", 12)
	v, err := local.Elevation(context.Background(), 9.5, 47.1)
	require.NoError(t, err)
	assert.InDelta(t, 1200, v, 1e-9)
	assert.Equal(t, "local-z12", local.ID())

	_, err = local.Elevation(context.Background(), -70, -30)
	assert.Equal(t, TileNotFoundErr, errors.Cause(err))
}

func TestCachedProvider(t *testing.T) {
	logger, _ := test.NewNullLogger()
	stub := &stubProvider{values: []float64{0, 250}, errs: []error{errors.New("timeout")}}
	cache := NewMemoryCache()
	provider := WithCache(logger, stub, cache)

	// Errors are not cached.
	_, err := provider.Elevation(context.Background(), 1, 2)
	assert.Error(t, err)
	assert.Equal(t, 0, cache.Len())

	v, err := provider.Elevation(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 250.0, v)

	v, err = provider.Elevation(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 250.0, v)
	assert.Equal(t, 2, stub.calls)
	assert.Equal(t, 1, cache.Len())

	cached, ok, _ := cache.Get(context.Background(), Key("stub", 1, 2))
	assert.True(t, ok)
	assert.Equal(t, 250.0, cached)
}

func TestFileCache(t *testing.T) {
	fs := afero.NewMemMapFs()
	ctx := context.Background()

	cache, err := OpenFileCache(fs, "/var/cache/tourgen/elevation.json")
	require.NoError(t, err)
	_, ok, _ := cache.Get(ctx, "a")
	assert.False(t, ok)
	require.NoError(t, cache.Put(ctx, "a", 12.5))
	require.NoError(t, cache.Put(ctx, "b", -3))
	require.NoError(t, cache.Close())

	reopened, err := OpenFileCache(fs, "/var/cache/tourgen/elevation.json")
	require.NoError(t, err)
	v, ok, err := reopened.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 12.5, v)
	v, ok, _ = reopened.Get(ctx, "b")
	assert.True(t, ok)
	assert.Equal(t, -3.0, v)

	require.NoError(t, afero.WriteFile(fs, "/broken.json", []byte("{"), 0644))
	_, err = OpenFileCache(fs, "/broken.json")
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "/null.json", []byte("null"), 0644))
	empty, err := OpenFileCache(fs, "/null.json")
	require.NoError(t, err)
	assert.NoError(t, empty.Put(ctx, "c", 7))
	assert.Equal(t, 1, empty.Len())
}

func TestCachedProvider_Flush(t *testing.T) {
	fs := afero.NewMemMapFs()
	ctx := context.Background()
	file, err := OpenFileCache(fs, "/elevation.json")
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	cached := WithCache(logger, &stubProvider{values: []float64{250}}, file)

	_, err = cached.Elevation(ctx, 1, 2)
	require.NoError(t, err)
	exists, _ := afero.Exists(fs, "/elevation.json")
	assert.False(t, exists)

	require.NoError(t, cached.Flush())
	reopened, err := OpenFileCache(fs, "/elevation.json")
	require.NoError(t, err)
	v, ok, _ := reopened.Get(ctx, Key("stub", 1, 2))
	assert.True(t, ok)
	assert.Equal(t, 250.0, v)

	assert.NoError(t, WithCache(logger, &stubProvider{values: []float64{1}}, NewMemoryCache()).Flush())
}

type dynamock struct {
	dynamodbiface.DynamoDBAPI
	mock.Mock
}

func (m *dynamock) GetItemWithContext(ctx aws.Context, input *dynamodb.GetItemInput, opts ...request.Option) (*dynamodb.GetItemOutput, error) {
	args := m.Called(ctx, input)
	return args.Get(0).(*dynamodb.GetItemOutput), args.Error(1)
}

func (m *dynamock) PutItemWithContext(ctx aws.Context, input *dynamodb.PutItemInput, opts ...request.Option) (*dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, input)
	return args.Get(0).(*dynamodb.PutItemOutput), args.Error(1)
}

func TestDynamoDBCache(t *testing.T) {
	ctx := context.Background()
	client := &dynamock{}
	cache := NewDynamoDBCache(client, "elevations")

	client.On("GetItemWithContext", ctx, &dynamodb.GetItemInput{
		TableName: aws.String("elevations"),
		Key:       map[string]*dynamodb.AttributeValue{"key": {S: aws.String("hit")}},
	}).Return(&dynamodb.GetItemOutput{Item: map[string]*dynamodb.AttributeValue{
		"key":       {S: aws.String("hit")},
		"elevation": {N: aws.String("431.7")},
	}}, nil)
	client.On("GetItemWithContext", ctx, &dynamodb.GetItemInput{
		TableName: aws.String("elevations"),
		Key:       map[string]*dynamodb.AttributeValue{"key": {S: aws.String("miss")}},
	}).Return(&dynamodb.GetItemOutput{}, nil)
	client.On("PutItemWithContext", ctx, &dynamodb.PutItemInput{
		TableName: aws.String("elevations"),
		Item: map[string]*dynamodb.AttributeValue{
			"key":       {S: aws.String("new")},
			"elevation": {N: aws.String("12")},
		},
	}).Return(&dynamodb.PutItemOutput{}, nil)

	v, ok, err := cache.Get(ctx, "hit")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 431.7, v)

	_, ok, err = cache.Get(ctx, "miss")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, cache.Put(ctx, "new", 12))
	assert.NoError(t, cache.Close())
	client.AssertExpectations(t)
}

func TestFallback(t *testing.T) {
	logger, hook := test.NewNullLogger()
	p := geodesy.Point{Lon: 16, Lat: 48}

	t.Run("invalid first value", func(t *testing.T) {
		fb := NewFallback(&stubProvider{values: []float64{-1}}, logger)
		_, err := fb.At(context.Background(), p)
		assert.Equal(t, NoElevationDataErr, errors.Cause(err))
	})

	t.Run("provider error first", func(t *testing.T) {
		fb := NewFallback(&stubProvider{values: []float64{0}, errs: []error{errors.New("boom")}}, logger)
		_, err := fb.At(context.Background(), p)
		assert.Equal(t, NoElevationDataErr, errors.Cause(err))
	})

	t.Run("substitutes last good value", func(t *testing.T) {
		hook.Reset()
		stub := &stubProvider{
			values: []float64{300, -1, 0, 320},
			errs:   []error{nil, nil, errors.New("boom")},
		}
		fb := NewFallback(stub, logger)
		var got []float64
		for i := 0; i < 4; i++ {
			v, err := fb.At(context.Background(), p)
			require.NoError(t, err)
			got = append(got, v)
		}
		assert.Equal(t, []float64{300, 300, 300, 320}, got)
		assert.Len(t, fb.Warnings(), 2)
		assert.Len(t, hook.Entries, 2)
		last, ok := fb.Last()
		assert.True(t, ok)
		assert.Equal(t, 320.0, last)
	})

	t.Run("cancellation is not substituted", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		stub := &stubProvider{values: []float64{300, 0}, errs: []error{nil, context.Canceled}}
		fb := NewFallback(stub, logger)
		_, err := fb.At(ctx, p)
		require.NoError(t, err)
		cancel()
		_, err = fb.At(ctx, p)
		assert.Equal(t, context.Canceled, err)
	})
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Remote ")
	require.NoError(t, err)
	assert.Equal(t, KindRemote, k)
	_, err = ParseKind("gpsinfo")
	assert.Equal(t, UnknownKindErr, errors.Cause(err))
}

func TestOpenCache(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, tc := range []struct {
		config  CacheConfig
		want    interface{}
		wantErr bool
	}{
		{CacheConfig{}, NopCache{}, false},
		{CacheConfig{Backend: "memory"}, &MemoryCache{}, false},
		{CacheConfig{Backend: "file", Path: "/cache.json"}, &FileCache{}, false},
		{CacheConfig{Backend: "file"}, nil, true},
		{CacheConfig{Backend: "dynamodb", DynamoDBTable: "t"}, nil, true},
		{CacheConfig{Backend: "percache"}, nil, true},
	} {
		cache, err := OpenCache(tc.config, fs, nil)
		if tc.wantErr {
			assert.Error(t, err, tc.config.Backend)
			continue
		}
		require.NoError(t, err)
		assert.IsType(t, tc.want, cache)
	}
}

// TestValkeyCache needs a server, e.g.
// TOURGEN_TEST_VALKEY_ADDR=127.0.0.1:6379 go test ./elevation/
func TestValkeyCache(t *testing.T) {
	addr := os.Getenv("TOURGEN_TEST_VALKEY_ADDR")
	if addr == "" {
		t.Skip("TOURGEN_TEST_VALKEY_ADDR is not set")
	}
	prefix := fmt.Sprintf("tourgen:test:%d:", time.Now().UnixNano())
	cache, err := NewValkeyCache(addr, prefix)
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	_, ok, err := cache.Get(ctx, "remote-z14|16.37|48.2")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Put(ctx, "remote-z14|16.37|48.2", 171.3))
	v, ok, err := cache.Get(ctx, "remote-z14|16.37|48.2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 171.3, v)
}
