package model

// StoredEmbedding is a committed vector keyed by (entity type, entity id,
// model). At most one record exists per model per entity.
type StoredEmbedding struct {
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	ModelName  string            `json:"model_name"`
	Embedding  []float32         `json:"embedding"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Mtime      int64             `json:"mtime"`
}

// SearchResult is one ranked hit from a vector store search.
type SearchResult struct {
	EntityID string            `json:"entity_id"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
