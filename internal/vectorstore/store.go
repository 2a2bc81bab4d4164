// Package vectorstore holds durable storage for committed embedding
// vectors, keyed by (entity type, entity id, model). Backends register
// themselves by type name; a hybrid composition layers a primary over an
// optional secondary.
package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/scriptvec/scriptvec/internal/model"
	"github.com/scriptvec/scriptvec/internal/similarity"
)

// Store is the backend contract. Retrieve returns ErrNotFound for a missing
// record; Search returns ErrNotSupported on backends without an index, a
// capability limit that stays distinguishable from transient failure.
type Store interface {
	Store(ctx context.Context, rec *model.StoredEmbedding) error
	Retrieve(ctx context.Context, entityType, entityID, modelName string) (*model.StoredEmbedding, error)
	Delete(ctx context.Context, entityType, entityID, modelName string) error
	Exists(ctx context.Context, entityType, entityID, modelName string) (bool, error)
	Search(ctx context.Context, query []float32, opts SearchOptions) ([]model.SearchResult, error)
}

type SearchOptions struct {
	EntityType string
	ModelName  string
	Limit      int
	Threshold  float64
	Metric     similarity.Metric
	Filters    map[string]string
}

type Config struct {
	Type      string      `json:"type"`
	Args      interface{} `json:"args"`
	Secondary *Config     `json:"secondary,omitempty"`
}

type Factory func(args interface{}) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

// New builds the configured backend, wrapped in a hybrid composition when a
// secondary is configured.
func New(cfg Config) (Store, error) {
	primary, err := newBackend(cfg.Type, cfg.Args)
	if err != nil {
		return nil, err
	}
	if cfg.Secondary == nil {
		return primary, nil
	}
	secondary, err := newBackend(cfg.Secondary.Type, cfg.Secondary.Args)
	if err != nil {
		return nil, err
	}
	return NewHybrid(primary, secondary), nil
}

func newBackend(typ string, args interface{}) (Store, error) {
	key := strings.ToLower(strings.TrimSpace(typ))
	if key == "" {
		return nil, fmt.Errorf("store.type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported vector store type: %s", typ)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("store config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode store config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode store config: %w", err)
	}
	return nil
}

// sanitizeModel makes a model name safe for use as a path segment.
func sanitizeModel(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	if sb.Len() == 0 {
		return "unknown"
	}
	return sb.String()
}
