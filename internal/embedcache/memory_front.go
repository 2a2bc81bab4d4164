package embedcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// WrapMemoryFront layers an in-memory expiring LRU in front of the durable
// cache so hot (model, text) pairs skip disk entirely. Writes go through to
// the durable layer; the front only absorbs reads. Invalidations on the
// durable layer do not reach the front, so a removed entry can still be
// served from memory for up to ttl.
func WrapMemoryFront(next Getter, size int, ttl time.Duration) Getter {
	if next == nil || size <= 0 || ttl <= 0 {
		return next
	}
	return &memoryFront{
		next:  next,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type memoryFront struct {
	next  Getter
	cache *expirable.LRU[string, []float32]
}

func (m *memoryFront) Get(ctx context.Context, modelName, text string) ([]float32, bool) {
	key := Key(modelName, text)
	if cached, ok := m.cache.Get(key); ok {
		logutil.GetLogger(ctx).Debug("embedding cache hit (memory)", zap.String("model", modelName))
		return cloneVector(cached), true
	}
	vec, ok := m.next.Get(ctx, modelName, text)
	if !ok {
		return nil, false
	}
	m.cache.Add(key, cloneVector(vec))
	return vec, true
}

func (m *memoryFront) Put(ctx context.Context, modelName, text string, vec []float32, meta map[string]string) error {
	if err := m.next.Put(ctx, modelName, text, vec, meta); err != nil {
		return err
	}
	m.cache.Add(Key(modelName, text), cloneVector(vec))
	return nil
}

func cloneVector(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
