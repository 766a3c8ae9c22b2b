package batch

import (
	"bytes"
	"encoding/gob"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/aSeaFood/STER/IO"
	"github.com/aSeaFood/STER/params"
	"github.com/pkg/errors"
)

// Cache keeps encoded evaluation batches between epochs. Dev and test
// batches never change once the vocabulary is built, so they are encoded
// once and decoded from the cache afterwards.
type Cache struct {
	c *fastcache.Cache
}

// NewCache allocates a cache of at most maxBytes.
func NewCache(maxBytes int) *Cache {
	return &Cache{c: fastcache.New(maxBytes)}
}

// Encoded returns the batch stored under key, encoding and storing it first
// when it is missing.
func (c *Cache) Encoded(key string, samples []IO.Sample, ctx *params.Context, cfg params.TrainingConfig, forTraining bool) (*Batch, error) {
	if raw := c.c.GetBig(nil, []byte(key)); len(raw) > 0 {
		var b Batch
		if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&b); err == nil {
			return &b, nil
		}
	}
	b, err := Encode(samples, ctx, cfg, forTraining)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(b); err != nil {
		return nil, errors.Wrapf(err, "cache batch %s", key)
	}
	c.c.SetBig([]byte(key), buf.Bytes())
	return b, nil
}
