// Package batch drives bounded-parallel embedding calls against an
// unreliable provider: a fixed number of calls in flight, exponential
// backoff between retries, and per-item failures that never abort their
// siblings.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/scriptvec/scriptvec/internal/ai"
	"github.com/scriptvec/scriptvec/internal/model"
	"github.com/scriptvec/scriptvec/internal/modelregistry"
	"github.com/scriptvec/scriptvec/internal/similarity"
)

type Config struct {
	Concurrency   int   `json:"concurrency"`
	RetryAttempts int   `json:"retry_attempts"`
	BaseDelayMS   int64 `json:"base_delay_ms"`
	BatchSize     int   `json:"batch_size"`
	ChunkSize     int   `json:"chunk_size"`
	ChunkOverlap  int   `json:"chunk_overlap"`
}

func (c *Config) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.BaseDelayMS <= 0 {
		c.BaseDelayMS = 200
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 4000
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = 200
	}
}

type Processor struct {
	provider ai.IEmbedProvider
	registry *modelregistry.Registry
	cfg      Config

	// gate bounds provider calls in flight. Acquired before every call
	// attempt, released unconditionally after, so a failed call can never
	// leak a permit.
	gate chan struct{}
}

func NewProcessor(provider ai.IEmbedProvider, registry *modelregistry.Registry, cfg Config) *Processor {
	cfg.applyDefaults()
	if registry == nil {
		registry = modelregistry.NewWithDefaults()
	}
	return &Processor{
		provider: provider,
		registry: registry,
		cfg:      cfg,
		gate:     make(chan struct{}, cfg.Concurrency),
	}
}

// ProcessBatch embeds every item and returns one result per item in input
// order, regardless of completion order. Items run concurrently up to the
// configured limit.
func (p *Processor) ProcessBatch(ctx context.Context, items []model.BatchItem, modelName string, dimensions int) []model.BatchResult {
	results := make([]model.BatchResult, len(items))
	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = p.processItem(ctx, items[idx], modelName, dimensions)
		}(i)
	}
	wg.Wait()
	return results
}

// ProcessParallel splits items into fixed-size batches, runs the batches
// concurrently, and flattens the results back into input order. The shared
// gate keeps total provider calls bounded across batches.
func (p *Processor) ProcessParallel(ctx context.Context, items []model.BatchItem, modelName string, dimensions int) []model.BatchResult {
	size := p.cfg.BatchSize
	type span struct{ lo, hi int }
	var spans []span
	for lo := 0; lo < len(items); lo += size {
		hi := lo + size
		if hi > len(items) {
			hi = len(items)
		}
		spans = append(spans, span{lo, hi})
	}
	results := make([]model.BatchResult, len(items))
	var wg sync.WaitGroup
	for _, s := range spans {
		wg.Add(1)
		go func(s span) {
			defer wg.Done()
			copy(results[s.lo:s.hi], p.ProcessBatch(ctx, items[s.lo:s.hi], modelName, dimensions))
		}(s)
	}
	wg.Wait()
	return results
}

// ProcessStream consumes items until the source closes, buffering them into
// fixed-size batches and emitting one result slice per completed batch.
// Ordering holds within a batch only. progress, when non-nil, receives the
// running item total after each batch.
func (p *Processor) ProcessStream(ctx context.Context, source <-chan model.BatchItem, modelName string, dimensions int, progress func(total int)) <-chan []model.BatchResult {
	out := make(chan []model.BatchResult)
	go func() {
		defer close(out)
		total := 0
		buf := make([]model.BatchItem, 0, p.cfg.BatchSize)
		flush := func() {
			if len(buf) == 0 {
				return
			}
			results := p.ProcessBatch(ctx, buf, modelName, dimensions)
			total += len(buf)
			buf = buf[:0]
			out <- results
			if progress != nil {
				progress(total)
			}
		}
		for item := range source {
			buf = append(buf, item)
			if len(buf) >= p.cfg.BatchSize {
				flush()
			}
		}
		flush()
	}()
	return out
}

// ProcessWithChunking embeds items whose text exceeds the chunk limit piece
// by piece. With aggregate set, each item's successful chunk vectors are
// averaged into one result; an item whose chunks all failed gets an explicit
// error, never a zero vector. Without aggregate, chunk results are returned
// individually, tagged with the parent id and chunk index.
func (p *Processor) ProcessWithChunking(ctx context.Context, items []model.BatchItem, modelName string, dimensions int, aggregate bool) []model.BatchResult {
	type chunkSpan struct {
		item   model.BatchItem
		lo, hi int // index range in the expanded item list
	}
	var expanded []model.BatchItem
	spans := make([]chunkSpan, 0, len(items))
	for _, item := range items {
		chunks := p.ChunkText(item.Text)
		lo := len(expanded)
		if len(chunks) == 1 {
			expanded = append(expanded, item)
		} else {
			for i, chunk := range chunks {
				meta := map[string]string{
					"parent_id":   item.ID,
					"chunk_index": fmt.Sprintf("%d", i),
				}
				for k, v := range item.Metadata {
					if _, taken := meta[k]; !taken {
						meta[k] = v
					}
				}
				expanded = append(expanded, model.BatchItem{
					ID:       fmt.Sprintf("%s#%d", item.ID, i),
					Text:     chunk,
					Metadata: meta,
				})
			}
		}
		spans = append(spans, chunkSpan{item: item, lo: lo, hi: len(expanded)})
	}

	chunkResults := p.ProcessBatch(ctx, expanded, modelName, dimensions)
	if !aggregate {
		return chunkResults
	}

	results := make([]model.BatchResult, 0, len(items))
	for _, s := range spans {
		if s.hi-s.lo == 1 {
			results = append(results, chunkResults[s.lo])
			continue
		}
		var vectors [][]float32
		for _, r := range chunkResults[s.lo:s.hi] {
			if !r.Failed() {
				vectors = append(vectors, r.Embedding)
			}
		}
		if len(vectors) == 0 {
			results = append(results, model.BatchResult{
				ID:       s.item.ID,
				Error:    fmt.Sprintf("all %d chunks failed", s.hi-s.lo),
				Metadata: s.item.Metadata,
			})
			continue
		}
		mean, err := similarity.Centroid(vectors)
		if err != nil {
			results = append(results, model.BatchResult{
				ID:       s.item.ID,
				Error:    fmt.Sprintf("aggregate chunks: %v", err),
				Metadata: s.item.Metadata,
			})
			continue
		}
		results = append(results, model.BatchResult{
			ID:        s.item.ID,
			Embedding: mean,
			Metadata:  s.item.Metadata,
		})
	}
	return results
}

func (p *Processor) processItem(ctx context.Context, item model.BatchItem, modelName string, dimensions int) model.BatchResult {
	logger := logutil.GetLogger(ctx).With(zap.String("item_id", item.ID), zap.String("model", modelName))
	var lastErr error
	for attempt := 0; attempt < p.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(p.cfg.BaseDelayMS) * time.Millisecond << (attempt - 1)
			logger.Debug("retrying embedding", zap.Int("attempt", attempt), zap.Duration("delay", delay))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				lastErr = ctx.Err()
				return model.BatchResult{ID: item.ID, Error: lastErr.Error(), Metadata: item.Metadata}
			}
		}
		vec, err := p.callProvider(ctx, item.Text, modelName, dimensions)
		if err != nil {
			lastErr = err
			continue
		}
		if err := p.registry.ValidateVector(vec, ""); err != nil {
			lastErr = err
			continue
		}
		return model.BatchResult{ID: item.ID, Embedding: vec, Metadata: item.Metadata}
	}
	logger.Warn("embedding failed after retries", zap.Int("attempts", p.cfg.RetryAttempts), zap.Error(lastErr))
	return model.BatchResult{ID: item.ID, Error: lastErr.Error(), Metadata: item.Metadata}
}

func (p *Processor) callProvider(ctx context.Context, text, modelName string, dimensions int) ([]float32, error) {
	p.gate <- struct{}{}
	defer func() { <-p.gate }()
	return p.provider.Embed(ctx, modelName, text, dimensions)
}
