package job

import (
	"context"
	"time"

	"github.com/scriptvec/scriptvec/internal/embedcache"
)

// CacheCleanupJob ages out embedding cache entries past the configured
// maximum age, independent of the cache's eviction policy.
type CacheCleanupJob struct {
	cache      *embedcache.Cache
	maxAgeDays int
}

func NewCacheCleanupJob(cache *embedcache.Cache, maxAgeDays int) *CacheCleanupJob {
	return &CacheCleanupJob{cache: cache, maxAgeDays: maxAgeDays}
}

func (j *CacheCleanupJob) Name() string {
	return "embedding_cache_cleanup"
}

func (j *CacheCleanupJob) Run(ctx context.Context) error {
	if j.cache == nil {
		return nil
	}
	maxAgeDays := j.maxAgeDays
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	_, err := j.cache.CleanupOlderThan(ctx, time.Duration(maxAgeDays)*24*time.Hour)
	return err
}
