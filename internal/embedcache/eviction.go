package embedcache

import (
	"time"

	"github.com/scriptvec/scriptvec/internal/model"
)

// Policy names one of the closed set of eviction strategies. Each policy is
// a pure candidate-picker over the index; the cache applies the choice.
type Policy string

const (
	PolicyLRU  Policy = "lru"
	PolicyLFU  Policy = "lfu"
	PolicyFIFO Policy = "fifo"
	// PolicyTTL evicts the oldest entry past its lifetime. When the cache
	// is full and nothing has expired yet it falls back to FIFO, so even
	// non-expired entries are not eviction-exempt under pressure.
	PolicyTTL Policy = "ttl"
)

func (p Policy) valid() bool {
	switch p {
	case PolicyLRU, PolicyLFU, PolicyFIFO, PolicyTTL:
		return true
	}
	return false
}

// pickEvictionCandidate returns the key to evict under the given policy, or
// ok=false for an empty index. Ties always resolve the same way: time fields
// first, then the key itself, so identical timestamps cannot make eviction
// order depend on map iteration.
func pickEvictionCandidate(policy Policy, index map[string]*model.CacheEntry, now time.Time, ttl time.Duration) (string, bool) {
	switch policy {
	case PolicyLFU:
		return pickMin(index, func(a, b *model.CacheEntry) bool {
			if a.AccessCount != b.AccessCount {
				return a.AccessCount < b.AccessCount
			}
			if a.Ctime != b.Ctime {
				return a.Ctime < b.Ctime
			}
			return a.Key < b.Key
		})
	case PolicyFIFO:
		return pickMin(index, byCreation)
	case PolicyTTL:
		cutoff := now.Add(-ttl).Unix()
		if key, ok := pickMinWhere(index, byCreation, func(e *model.CacheEntry) bool {
			return e.Ctime < cutoff
		}); ok {
			return key, true
		}
		return pickMin(index, byCreation)
	default: // PolicyLRU
		return pickMin(index, func(a, b *model.CacheEntry) bool {
			if a.Atime != b.Atime {
				return a.Atime < b.Atime
			}
			if a.Ctime != b.Ctime {
				return a.Ctime < b.Ctime
			}
			return a.Key < b.Key
		})
	}
}

func byCreation(a, b *model.CacheEntry) bool {
	if a.Ctime != b.Ctime {
		return a.Ctime < b.Ctime
	}
	return a.Key < b.Key
}

func pickMin(index map[string]*model.CacheEntry, less func(a, b *model.CacheEntry) bool) (string, bool) {
	return pickMinWhere(index, less, nil)
}

func pickMinWhere(index map[string]*model.CacheEntry, less func(a, b *model.CacheEntry) bool, filter func(*model.CacheEntry) bool) (string, bool) {
	var best *model.CacheEntry
	for _, entry := range index {
		if filter != nil && !filter(entry) {
			continue
		}
		if best == nil || less(entry, best) {
			best = entry
		}
	}
	if best == nil {
		return "", false
	}
	return best.Key, true
}
