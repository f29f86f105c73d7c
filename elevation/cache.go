package elevation

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/border-inspection/tourgen/metrics"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Cache memoizes successful elevation queries. Only values are stored,
// errors never are.
type Cache interface {
	Get(ctx context.Context, key string) (value float64, ok bool, err error)
	Put(ctx context.Context, key string, value float64) error
	Close() error
}

// Flusher is implemented by caches and providers holding values that are
// only persisted on demand.
type Flusher interface {
	Flush() error
}

// CachedProvider answers queries from the cache first and stores every
// value the wrapped provider returns.
type CachedProvider struct {
	provider Provider
	cache    Cache
	logger   logrus.FieldLogger
}

var _ Provider = (*CachedProvider)(nil)

// WithCache wraps a provider with a cache. Cache failures are logged and
// otherwise ignored.
func WithCache(logger logrus.FieldLogger, provider Provider, cache Cache) *CachedProvider {
	return &CachedProvider{provider: provider, cache: cache, logger: logger}
}

func (c *CachedProvider) ID() string {
	return c.provider.ID()
}

// Flush persists the cache when its backend buffers values, as FileCache
// does.
func (c *CachedProvider) Flush() error {
	if f, ok := c.cache.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

func (c *CachedProvider) Elevation(ctx context.Context, lon, lat float64) (float64, error) {
	key := Key(c.provider.ID(), lon, lat)
	v, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Elevation cache lookup failed")
	}
	if ok {
		metrics.CacheHits.Inc()
		return v, nil
	}
	metrics.CacheMisses.Inc()
	v, err = c.provider.Elevation(ctx, lon, lat)
	if err != nil {
		return 0, err
	}
	if err := c.cache.Put(ctx, key, v); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Cannot store elevation")
	}
	return v, nil
}

// MemoryCache keeps values for the lifetime of the process.
type MemoryCache struct {
	mu     sync.RWMutex
	values map[string]float64
}

var _ Cache = (*MemoryCache)(nil)

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{values: map[string]float64{}}
}

func (c *MemoryCache) Get(_ context.Context, key string) (float64, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *MemoryCache) Put(_ context.Context, key string, value float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *MemoryCache) Close() error { return nil }

// Len returns the number of cached values.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

// FileCache is a MemoryCache loaded from and flushed to a JSON document, so
// values survive across runs.
type FileCache struct {
	*MemoryCache
	fs    afero.Fs
	path  string
	dirty bool
}

var (
	_ Cache   = (*FileCache)(nil)
	_ Flusher = (*FileCache)(nil)
)

// OpenFileCache loads the cache document at path. A missing document is not
// an error.
func OpenFileCache(fs afero.Fs, path string) (*FileCache, error) {
	c := &FileCache{MemoryCache: NewMemoryCache(), fs: fs, path: path}
	blob, err := afero.ReadFile(fs, path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read elevation cache %s", path)
	}
	if len(blob) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(blob, &c.values); err != nil {
		return nil, errors.Wrapf(err, "cannot parse elevation cache %s", path)
	}
	if c.values == nil {
		c.values = map[string]float64{}
	}
	return c, nil
}

func (c *FileCache) Put(ctx context.Context, key string, value float64) error {
	if err := c.MemoryCache.Put(ctx, key, value); err != nil {
		return err
	}
	c.mu.Lock()
	c.dirty = true
	c.mu.Unlock()
	return nil
}

// Close writes the document when values were added.
func (c *FileCache) Close() error {
	return c.Flush()
}

// Flush writes the document when values were added since the last flush.
func (c *FileCache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}
	blob, err := json.Marshal(c.values)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(c.path); dir != "" {
		if err := c.fs.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "cannot create directory of %s", c.path)
		}
	}
	tmp := c.path + ".tmp"
	if err := afero.WriteFile(c.fs, tmp, blob, 0644); err != nil {
		return errors.Wrapf(err, "cannot write elevation cache %s", c.path)
	}
	if err := c.fs.Rename(tmp, c.path); err != nil {
		return errors.Wrapf(err, "cannot write elevation cache %s", c.path)
	}
	c.dirty = false
	return nil
}

// NopCache stores nothing.
type NopCache struct{}

var _ Cache = NopCache{}

func (NopCache) Get(context.Context, string) (float64, bool, error) { return 0, false, nil }
func (NopCache) Put(context.Context, string, float64) error         { return nil }
func (NopCache) Close() error                                       { return nil }
