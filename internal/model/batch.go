package model

// BatchItem is one unit of embedding work.
type BatchItem struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// BatchResult is the outcome for one BatchItem. Embedding is nil when the
// item failed; Error then carries the reason.
type BatchResult struct {
	ID        string            `json:"id"`
	Embedding []float32         `json:"embedding,omitempty"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Failed reports whether the item produced no vector.
func (r *BatchResult) Failed() bool {
	return r.Error != "" || len(r.Embedding) == 0
}
