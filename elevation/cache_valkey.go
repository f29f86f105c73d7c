package elevation

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/valkey-io/valkey-go"
)

// ValkeyCache shares elevations through a Valkey (Redis-compatible) server.
// Entries do not expire.
type ValkeyCache struct {
	client valkey.Client
	prefix string
}

var _ Cache = (*ValkeyCache)(nil)

// NewValkeyCache connects to the server at addr. Keys are stored with the
// given prefix.
func NewValkeyCache(addr, prefix string) (*ValkeyCache, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, errors.Wrap(err, "valkey connect")
	}
	return &ValkeyCache{client: client, prefix: prefix}, nil
}

func (c *ValkeyCache) Get(ctx context.Context, key string) (float64, bool, error) {
	v, err := c.client.Do(ctx, c.client.B().Get().Key(c.prefix+key).Build()).AsFloat64()
	if valkey.IsValkeyNil(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (c *ValkeyCache) Put(ctx context.Context, key string, value float64) error {
	cmd := c.client.Do(ctx,
		c.client.B().Set().Key(c.prefix+key).Value(strconv.FormatFloat(value, 'g', -1, 64)).Build(),
	)
	return cmd.Error()
}

func (c *ValkeyCache) Close() error {
	c.client.Close()
	return nil
}
