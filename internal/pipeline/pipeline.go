// Package pipeline is the top-level embedding façade: preprocess the text,
// consult the cache, send misses to the batch processor, write results
// through, and optionally persist committed vectors to the vector store.
package pipeline

import (
	"context"
	"fmt"
	"strconv"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/scriptvec/scriptvec/internal/batch"
	"github.com/scriptvec/scriptvec/internal/embedcache"
	"github.com/scriptvec/scriptvec/internal/model"
	"github.com/scriptvec/scriptvec/internal/modelregistry"
	"github.com/scriptvec/scriptvec/internal/similarity"
	"github.com/scriptvec/scriptvec/internal/vectorstore"
)

type Config struct {
	ModelName  string `json:"model_name"`
	Dimensions int    `json:"dimensions"`
}

// Pipeline coordinates cache, processor, registry and store. Like the cache
// it wraps, it has no internal locking; serialize shared use externally.
type Pipeline struct {
	cache      embedcache.Getter
	processor  *batch.Processor
	registry   *modelregistry.Registry
	store      vectorstore.Store
	cfg        Config
	preprocess func(string) string
}

// New builds a pipeline. store may be nil when nothing should be committed.
func New(cache embedcache.Getter, processor *batch.Processor, registry *modelregistry.Registry, store vectorstore.Store, cfg Config) (*Pipeline, error) {
	if cache == nil || processor == nil {
		return nil, fmt.Errorf("cache and processor are required")
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if registry == nil {
		registry = modelregistry.NewWithDefaults()
	}
	if cfg.Dimensions > 0 {
		if err := registry.Validate(cfg.ModelName, cfg.Dimensions); err != nil {
			return nil, err
		}
	}
	return &Pipeline{
		cache:      cache,
		processor:  processor,
		registry:   registry,
		store:      store,
		cfg:        cfg,
		preprocess: DefaultPreprocess,
	}, nil
}

// GenerateEmbedding embeds one text, serving repeats from the cache. A cache
// write failure is logged but does not fail the call; the vector was already
// generated.
func (p *Pipeline) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	pre := p.preprocess(text)
	if pre == "" {
		return nil, fmt.Errorf("empty text after preprocessing")
	}
	if vec, ok := p.cache.Get(ctx, p.cfg.ModelName, pre); ok {
		return vec, nil
	}
	results := p.processor.ProcessBatch(ctx, []model.BatchItem{{ID: "0", Text: pre}}, p.cfg.ModelName, p.cfg.Dimensions)
	result := results[0]
	if result.Failed() {
		return nil, fmt.Errorf("generate embedding: %s", result.Error)
	}
	p.checkDimension(ctx, result.Embedding)
	if err := p.cache.Put(ctx, p.cfg.ModelName, pre, result.Embedding, nil); err != nil {
		logutil.GetLogger(ctx).Warn("cache write-through failed", zap.Error(err))
	}
	return result.Embedding, nil
}

// GenerateBatch embeds many texts, submitting only cache misses to the
// processor and reassembling results in input order. Failures surface per
// item; the call itself only reports partial success.
func (p *Pipeline) GenerateBatch(ctx context.Context, texts []string) []model.BatchResult {
	results := make([]model.BatchResult, len(texts))
	var missItems []model.BatchItem
	missIndex := make(map[string]int)
	for i, text := range texts {
		id := strconv.Itoa(i)
		pre := p.preprocess(text)
		if pre == "" {
			results[i] = model.BatchResult{ID: id, Error: "empty text after preprocessing"}
			continue
		}
		if vec, ok := p.cache.Get(ctx, p.cfg.ModelName, pre); ok {
			results[i] = model.BatchResult{ID: id, Embedding: vec}
			continue
		}
		missIndex[id] = i
		missItems = append(missItems, model.BatchItem{ID: id, Text: pre})
	}
	if len(missItems) == 0 {
		return results
	}
	logutil.GetLogger(ctx).Debug("embedding batch",
		zap.Int("total", len(texts)),
		zap.Int("misses", len(missItems)),
	)
	for i, res := range p.processor.ProcessBatch(ctx, missItems, p.cfg.ModelName, p.cfg.Dimensions) {
		idx := missIndex[res.ID]
		results[idx] = res
		if res.Failed() {
			continue
		}
		p.checkDimension(ctx, res.Embedding)
		if err := p.cache.Put(ctx, p.cfg.ModelName, missItems[i].Text, res.Embedding, nil); err != nil {
			logutil.GetLogger(ctx).Warn("cache write-through failed", zap.String("item_id", res.ID), zap.Error(err))
		}
	}
	return results
}

// GenerateScreenplayEmbedding runs one call with the screenplay-aware
// preprocessor, restoring the previous one afterwards even on failure.
func (p *Pipeline) GenerateScreenplayEmbedding(ctx context.Context, text string) ([]float32, error) {
	prev := p.preprocess
	p.preprocess = ScreenplayPreprocess
	defer func() { p.preprocess = prev }()
	return p.GenerateEmbedding(ctx, text)
}

// EmbedAndStore embeds text and commits the vector to the store under the
// entity key.
func (p *Pipeline) EmbedAndStore(ctx context.Context, entityType, entityID, text string, meta map[string]string) error {
	if p.store == nil {
		return fmt.Errorf("no vector store configured")
	}
	vec, err := p.GenerateEmbedding(ctx, text)
	if err != nil {
		return err
	}
	return p.store.Store(ctx, &model.StoredEmbedding{
		EntityType: entityType,
		EntityID:   entityID,
		ModelName:  p.cfg.ModelName,
		Embedding:  vec,
		Metadata:   meta,
	})
}

// Search embeds the query text and ranks stored vectors against it.
func (p *Pipeline) Search(ctx context.Context, query, entityType string, limit int, threshold float64) ([]model.SearchResult, error) {
	if p.store == nil {
		return nil, fmt.Errorf("no vector store configured")
	}
	vec, err := p.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, err
	}
	return p.store.Search(ctx, vec, vectorstore.SearchOptions{
		EntityType: entityType,
		ModelName:  p.cfg.ModelName,
		Limit:      limit,
		Threshold:  threshold,
		Metric:     similarity.MetricCosine,
	})
}

// checkDimension compares the returned width against the registry. A
// mismatch is logged, not fatal: the provider already spent the call and the
// vector may still be usable downstream.
func (p *Pipeline) checkDimension(ctx context.Context, vec []float32) {
	want := p.cfg.Dimensions
	if want == 0 {
		if dim, ok := p.registry.Dimensions(p.cfg.ModelName); ok {
			want = dim
		}
	}
	if want > 0 && len(vec) != want {
		logutil.GetLogger(ctx).Warn("unexpected embedding dimension",
			zap.String("model", p.cfg.ModelName),
			zap.Int("want", want),
			zap.Int("got", len(vec)),
		)
	}
}
