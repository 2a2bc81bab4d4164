// Package embedcache is the durable (model, text) -> vector cache that sits
// between the pipeline and the embedding provider. Bookkeeping lives in a
// single JSON index file; vector payloads are stored one file per key,
// sharded by key prefix. The index is persisted on every mutation so a crash
// never loses more than the call in flight.
package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/scriptvec/scriptvec/internal/codec"
	"github.com/scriptvec/scriptvec/internal/model"
	apperrors "github.com/scriptvec/scriptvec/internal/pkg/errors"
)

const (
	indexFileName = "index.json"
	payloadDir    = "payloads"
	payloadExt    = ".vec"
)

type Config struct {
	Dir        string `json:"dir"`
	MaxEntries int    `json:"max_entries"`
	Policy     Policy `json:"policy"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

// Getter is the cache surface the pipeline consumes.
type Getter interface {
	Get(ctx context.Context, modelName, text string) ([]float32, bool)
	Put(ctx context.Context, modelName, text string, vec []float32, meta map[string]string) error
}

// Cache owns its index and payload directory exclusively: one process per
// directory, and no internal locking. Callers that share a Cache across
// goroutines must serialize access themselves.
type Cache struct {
	dir        string
	maxEntries int
	policy     Policy
	ttl        time.Duration
	index      map[string]*model.CacheEntry

	hits      int64
	misses    int64
	evictions int64

	now func() time.Time
}

func New(cfg Config) (*Cache, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("cache.dir is required")
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyLRU
	}
	if !cfg.Policy.valid() {
		return nil, fmt.Errorf("cache.policy must be one of lru/lfu/fifo/ttl, got %q", cfg.Policy)
	}
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if cfg.Policy == PolicyTTL && ttl <= 0 {
		return nil, fmt.Errorf("cache.ttl_seconds is required for ttl policy")
	}
	if err := os.MkdirAll(filepath.Join(cfg.Dir, payloadDir), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create cache dir: %v", apperrors.ErrStorage, err)
	}
	c := &Cache{
		dir:        cfg.Dir,
		maxEntries: cfg.MaxEntries,
		policy:     cfg.Policy,
		ttl:        ttl,
		index:      make(map[string]*model.CacheEntry),
		now:        time.Now,
	}
	if err := c.loadIndex(); err != nil {
		return nil, err
	}
	return c, nil
}

// Key derives the deterministic cache key for a (model, text) pair.
func Key(modelName, text string) string {
	sum := sha256.Sum256([]byte(modelName + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached vector for (model, text), or ok=false on a miss.
// Under the TTL policy an over-age entry is dropped on the spot and reported
// as a miss. An index entry whose payload file is gone is likewise dropped.
func (c *Cache) Get(ctx context.Context, modelName, text string) ([]float32, bool) {
	key := Key(modelName, text)
	entry, ok := c.index[key]
	if !ok {
		c.misses++
		return nil, false
	}
	now := c.now()
	if c.policy == PolicyTTL && c.expired(entry, now) {
		logutil.GetLogger(ctx).Debug("cache entry expired", zap.String("key", key), zap.String("model", modelName))
		c.dropEntry(ctx, key)
		c.misses++
		return nil, false
	}
	data, err := os.ReadFile(c.payloadPath(key))
	if err != nil {
		if !os.IsNotExist(err) {
			logutil.GetLogger(ctx).Warn("cache payload unreadable", zap.String("key", key), zap.Error(err))
		}
		c.dropEntry(ctx, key)
		c.misses++
		return nil, false
	}
	vec, err := codec.Decode(data)
	if err != nil {
		logutil.GetLogger(ctx).Warn("cache payload corrupt", zap.String("key", key), zap.Error(err))
		c.dropEntry(ctx, key)
		c.misses++
		return nil, false
	}
	entry.Atime = now.Unix()
	entry.AccessCount++
	if err := c.persistIndex(); err != nil {
		logutil.GetLogger(ctx).Warn("persist cache index", zap.Error(err))
	}
	c.hits++
	logutil.GetLogger(ctx).Debug("embedding cache hit", zap.String("model", modelName))
	return vec, true
}

// Put stores a vector for (model, text), evicting one entry first when the
// cache is at capacity. The payload is written before the index entry
// commits, so a failed write never leaves the index pointing at nothing.
func (c *Cache) Put(ctx context.Context, modelName, text string, vec []float32, meta map[string]string) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: refusing to cache empty vector", apperrors.ErrValidation)
	}
	key := Key(modelName, text)
	if _, exists := c.index[key]; !exists && len(c.index) >= c.maxEntries {
		if victim, ok := pickEvictionCandidate(c.policy, c.index, c.now(), c.ttl); ok {
			logutil.GetLogger(ctx).Debug("evicting cache entry",
				zap.String("policy", string(c.policy)),
				zap.String("key", victim),
			)
			c.removePayload(victim)
			delete(c.index, victim)
			c.evictions++
		}
	}
	path := c.payloadPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: create payload shard: %v", apperrors.ErrStorage, err)
	}
	if err := os.WriteFile(path, codec.Encode(vec), 0o644); err != nil {
		return fmt.Errorf("%w: write payload: %v", apperrors.ErrStorage, err)
	}
	now := c.now().Unix()
	entry, exists := c.index[key]
	if exists {
		entry.Atime = now
		entry.Metadata = meta
	} else {
		c.index[key] = &model.CacheEntry{
			Key:       key,
			ModelName: modelName,
			Ctime:     now,
			Atime:     now,
			Metadata:  meta,
		}
	}
	return c.persistIndex()
}

// Invalidate removes one entry. Removing an absent entry is not an error.
func (c *Cache) Invalidate(ctx context.Context, modelName, text string) error {
	key := Key(modelName, text)
	if _, ok := c.index[key]; !ok {
		return nil
	}
	c.dropEntry(ctx, key)
	return c.persistIndex()
}

// InvalidateModel removes every entry belonging to a model and returns the
// count removed.
func (c *Cache) InvalidateModel(ctx context.Context, modelName string) (int, error) {
	removed := 0
	for key, entry := range c.index {
		if entry.ModelName != modelName {
			continue
		}
		c.removePayload(key)
		delete(c.index, key)
		removed++
	}
	if removed == 0 {
		return 0, nil
	}
	logutil.GetLogger(ctx).Info("invalidated model entries", zap.String("model", modelName), zap.Int("removed", removed))
	return removed, c.persistIndex()
}

// Clear empties the cache entirely.
func (c *Cache) Clear(ctx context.Context) error {
	for key := range c.index {
		c.removePayload(key)
		delete(c.index, key)
	}
	logutil.GetLogger(ctx).Info("cache cleared")
	return c.persistIndex()
}

// CleanupOlderThan removes entries created more than maxAge ago, regardless
// of policy, and returns the count removed.
func (c *Cache) CleanupOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := c.now().Add(-maxAge).Unix()
	removed := 0
	for key, entry := range c.index {
		if entry.Ctime >= cutoff {
			continue
		}
		c.removePayload(key)
		delete(c.index, key)
		removed++
	}
	if removed == 0 {
		return 0, nil
	}
	logutil.GetLogger(ctx).Info("cache cleanup", zap.Int("removed", removed))
	return removed, c.persistIndex()
}

func (c *Cache) Stats() model.CacheStats {
	byModel := make(map[string]int)
	for _, entry := range c.index {
		byModel[entry.ModelName]++
	}
	return model.CacheStats{
		Entries:    len(c.index),
		MaxEntries: c.maxEntries,
		Hits:       c.hits,
		Misses:     c.misses,
		Evictions:  c.evictions,
		Policy:     string(c.policy),
		ByModel:    byModel,
	}
}

func (c *Cache) expired(entry *model.CacheEntry, now time.Time) bool {
	return c.ttl > 0 && now.Unix()-entry.Ctime > int64(c.ttl/time.Second)
}

func (c *Cache) dropEntry(ctx context.Context, key string) {
	c.removePayload(key)
	delete(c.index, key)
	if err := c.persistIndex(); err != nil {
		logutil.GetLogger(ctx).Warn("persist cache index", zap.Error(err))
	}
}

func (c *Cache) removePayload(key string) {
	_ = os.Remove(c.payloadPath(key))
}

func (c *Cache) payloadPath(key string) string {
	shard := key
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(c.dir, payloadDir, shard, key+payloadExt)
}

func (c *Cache) indexPath() string {
	return filepath.Join(c.dir, indexFileName)
}

func (c *Cache) loadIndex() error {
	data, err := os.ReadFile(c.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: read cache index: %v", apperrors.ErrStorage, err)
	}
	index := make(map[string]*model.CacheEntry)
	if err := json.Unmarshal(data, &index); err != nil {
		return fmt.Errorf("%w: decode cache index: %v", apperrors.ErrStorage, err)
	}
	c.index = index
	return nil
}

func (c *Cache) persistIndex() error {
	data, err := json.Marshal(c.index)
	if err != nil {
		return fmt.Errorf("%w: encode cache index: %v", apperrors.ErrStorage, err)
	}
	if err := os.WriteFile(c.indexPath(), data, 0o644); err != nil {
		return fmt.Errorf("%w: write cache index: %v", apperrors.ErrStorage, err)
	}
	return nil
}
