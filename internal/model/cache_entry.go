package model

// CacheEntry is the bookkeeping record for one cached embedding. The vector
// payload lives in its own file; the entry only references it by key.
type CacheEntry struct {
	Key         string            `json:"key"`
	ModelName   string            `json:"model_name"`
	Ctime       int64             `json:"ctime"`
	Atime       int64             `json:"atime"`
	AccessCount int64             `json:"access_count"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// CacheStats is a point-in-time summary of the cache.
type CacheStats struct {
	Entries    int            `json:"entries"`
	MaxEntries int            `json:"max_entries"`
	Hits       int64          `json:"hits"`
	Misses     int64          `json:"misses"`
	Evictions  int64          `json:"evictions"`
	Policy     string         `json:"policy"`
	ByModel    map[string]int `json:"by_model,omitempty"`
}
