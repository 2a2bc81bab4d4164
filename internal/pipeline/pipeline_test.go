package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scriptvec/scriptvec/internal/batch"
	"github.com/scriptvec/scriptvec/internal/embedcache"
	"github.com/scriptvec/scriptvec/internal/vectorstore"
)

// countingProvider returns a vector derived from the text and records every
// text it was asked to embed.
type countingProvider struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]bool
}

func newCountingProvider() *countingProvider {
	return &countingProvider{calls: make(map[string]int), fail: make(map[string]bool)}
}

func (c *countingProvider) Name() string { return "counting" }

func (c *countingProvider) Embed(ctx context.Context, modelName, text string, dimensions int) ([]float32, error) {
	c.mu.Lock()
	c.calls[text]++
	failed := c.fail[text]
	c.mu.Unlock()
	if failed {
		return nil, fmt.Errorf("scripted failure")
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

func (c *countingProvider) callCount(text string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[text]
}

func (c *countingProvider) totalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.calls {
		total += n
	}
	return total
}

func newTestPipeline(t *testing.T, provider *countingProvider, store vectorstore.Store) *Pipeline {
	t.Helper()
	cache, err := embedcache.New(embedcache.Config{Dir: t.TempDir(), MaxEntries: 100})
	require.NoError(t, err)
	processor := batch.NewProcessor(provider, nil, batch.Config{RetryAttempts: 1, BaseDelayMS: 1})
	p, err := New(cache, processor, nil, store, Config{ModelName: "test-model"})
	require.NoError(t, err)
	return p
}

func TestGenerateEmbeddingServesRepeatsFromCache(t *testing.T) {
	provider := newCountingProvider()
	p := newTestPipeline(t, provider, nil)
	ctx := context.Background()

	first, err := p.GenerateEmbedding(ctx, "the detective enters")
	require.NoError(t, err)
	// Whitespace variants normalize to the same cache key.
	second, err := p.GenerateEmbedding(ctx, "  the   detective enters ")
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, 1, provider.totalCalls())
}

func TestGenerateEmbeddingRejectsEmptyText(t *testing.T) {
	p := newTestPipeline(t, newCountingProvider(), nil)
	_, err := p.GenerateEmbedding(context.Background(), "   \n\t ")
	require.Error(t, err)
}

func TestGenerateBatchSubmitsOnlyMisses(t *testing.T) {
	provider := newCountingProvider()
	p := newTestPipeline(t, provider, nil)
	ctx := context.Background()

	_, err := p.GenerateEmbedding(ctx, "already cached")
	require.NoError(t, err)
	require.Equal(t, 1, provider.totalCalls())

	results := p.GenerateBatch(ctx, []string{"already cached", "fresh one", "another fresh"})
	require.Len(t, results, 3)
	for _, r := range results {
		require.False(t, r.Failed())
	}
	require.Equal(t, 1, provider.callCount("already cached"))
	require.Equal(t, 1, provider.callCount("fresh one"))
	require.Equal(t, 3, provider.totalCalls())
}

func TestGenerateBatchPartialFailure(t *testing.T) {
	provider := newCountingProvider()
	provider.fail["bad apple"] = true
	p := newTestPipeline(t, provider, nil)

	results := p.GenerateBatch(context.Background(), []string{"good one", "bad apple", ""})
	require.Len(t, results, 3)
	require.False(t, results[0].Failed())
	require.True(t, results[1].Failed())
	require.Contains(t, results[1].Error, "scripted failure")
	require.True(t, results[2].Failed())
	require.Contains(t, results[2].Error, "empty text")
}

func TestGenerateScreenplayEmbeddingSwapsAndRestoresPreprocessor(t *testing.T) {
	provider := newCountingProvider()
	p := newTestPipeline(t, provider, nil)
	ctx := context.Background()

	script := "INT. COFFEE SHOP - DAY\n\nJOHN\nI need the files.\n\nCUT TO:"
	_, err := p.GenerateScreenplayEmbedding(ctx, script)
	require.NoError(t, err)
	require.Equal(t, 1, provider.callCount("INT. Coffee Shop - Day John I need the files."))

	// The next plain call must use the default preprocessor again.
	_, err = p.GenerateEmbedding(ctx, "CUT TO:")
	require.NoError(t, err)
	require.Equal(t, 1, provider.callCount("CUT TO:"))
}

func TestEmbedAndStoreThenSearch(t *testing.T) {
	provider := newCountingProvider()
	store, err := vectorstore.New(vectorstore.Config{Type: "file", Args: map[string]interface{}{"root": t.TempDir()}})
	require.NoError(t, err)
	p := newTestPipeline(t, provider, store)
	ctx := context.Background()

	require.NoError(t, p.EmbedAndStore(ctx, "scene", "s1", "rooftop chase", map[string]string{"act": "3"}))
	require.NoError(t, p.EmbedAndStore(ctx, "scene", "s2", "quiet dinner conversation", nil))

	results, err := p.Search(ctx, "rooftop chase", "scene", 1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "s1", results[0].EntityID)
	require.Equal(t, "3", results[0].Metadata["act"])
}

func TestEmbedAndStoreWithoutStore(t *testing.T) {
	p := newTestPipeline(t, newCountingProvider(), nil)
	err := p.EmbedAndStore(context.Background(), "scene", "s1", "text", nil)
	require.Error(t, err)
	_, err = p.Search(context.Background(), "query", "scene", 5, 0)
	require.Error(t, err)
}
