package vectorstore

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/scriptvec/scriptvec/internal/pkg/errors"
	"github.com/scriptvec/scriptvec/internal/similarity"
)

func TestPGMetricExprs(t *testing.T) {
	score, order, err := pgMetricExprs(similarity.MetricCosine)
	require.NoError(t, err)
	require.Equal(t, "1 - (embedding <=> $1)", score)
	require.Equal(t, "embedding <=> $1", order)

	_, _, err = pgMetricExprs("")
	require.NoError(t, err)

	_, _, err = pgMetricExprs(similarity.MetricManhattan)
	require.ErrorIs(t, err, apperrors.ErrNotSupported)
}

func TestPGSearchQueryFiltersInsideWhereClause(t *testing.T) {
	sqlStr, args, err := pgSearchQuery([]float32{1, 0}, SearchOptions{
		EntityType: "scene",
		ModelName:  "m",
		Limit:      2,
		Threshold:  0.5,
		Metric:     similarity.MetricCosine,
		Filters:    map[string]string{"act": "1"},
	})
	require.NoError(t, err)
	// Filters and threshold must constrain the row set before LIMIT applies,
	// so a filtered search is never starved by higher-ranked non-matches.
	require.Contains(t, sqlStr, "metadata @> $4::jsonb")
	require.Contains(t, sqlStr, "1 - (embedding <=> $1) >= $5")
	require.Contains(t, sqlStr, "LIMIT $6")
	require.Len(t, args, 6)
	require.Equal(t, []byte(`{"act":"1"}`), args[3])
	require.Equal(t, 0.5, args[4])
	require.Equal(t, 2, args[5])
}

func TestPGSearchQueryDefaults(t *testing.T) {
	sqlStr, args, err := pgSearchQuery([]float32{1}, SearchOptions{EntityType: "scene", ModelName: "m"})
	require.NoError(t, err)
	require.Contains(t, sqlStr, "WHERE entity_type = $2 AND model_name = $3")
	require.NotContains(t, sqlStr, "@>")
	require.Contains(t, sqlStr, "LIMIT $4")
	require.Len(t, args, 4)
	require.Equal(t, 10, args[3])

	_, _, err = pgSearchQuery([]float32{1}, SearchOptions{Metric: similarity.MetricManhattan})
	require.ErrorIs(t, err, apperrors.ErrNotSupported)
}

// Needs a Postgres instance with the pgvector extension. Set TEST_DB_HOST
// (plus TEST_DB_USER / TEST_DB_PASSWORD / TEST_DB_NAME as needed) to run.
func newPGTestStore(t *testing.T) Store {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set, skipping postgres tests")
	}
	args := map[string]interface{}{
		"host":     host,
		"port":     5432,
		"user":     envOr("TEST_DB_USER", "postgres"),
		"password": envOr("TEST_DB_PASSWORD", "postgres"),
		"db_name":  envOr("TEST_DB_NAME", "scriptvec_test"),
		"ssl_mode": "disable",
	}
	s, err := New(Config{Type: "pgvector", Args: args})
	require.NoError(t, err)
	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestPGStoreRoundTrip(t *testing.T) {
	s := newPGTestStore(t)
	ctx := context.Background()
	rec := sceneRecord("pg-s1", []float32{0.1, 0.2, 0.3}, map[string]string{"act": "1"})
	t.Cleanup(func() { _ = s.Delete(ctx, rec.EntityType, rec.EntityID, rec.ModelName) })

	require.NoError(t, s.Store(ctx, rec))
	// Upsert replaces the vector in place.
	rec.Embedding = []float32{0.4, 0.5, 0.6}
	require.NoError(t, s.Store(ctx, rec))

	got, err := s.Retrieve(ctx, rec.EntityType, rec.EntityID, rec.ModelName)
	require.NoError(t, err)
	require.Equal(t, rec.Embedding, got.Embedding)
	require.Equal(t, rec.Metadata, got.Metadata)

	ok, err := s.Exists(ctx, rec.EntityType, rec.EntityID, rec.ModelName)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Delete(ctx, rec.EntityType, rec.EntityID, rec.ModelName))
	require.ErrorIs(t, s.Delete(ctx, rec.EntityType, rec.EntityID, rec.ModelName), apperrors.ErrNotFound)
	_, err = s.Retrieve(ctx, rec.EntityType, rec.EntityID, rec.ModelName)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPGStoreSearch(t *testing.T) {
	s := newPGTestStore(t)
	ctx := context.Background()
	records := []struct {
		id   string
		vec  []float32
		meta map[string]string
	}{
		{"pg-exact", []float32{1, 0, 0}, map[string]string{"act": "1"}},
		{"pg-close", []float32{0.9, 0.1, 0}, map[string]string{"act": "2"}},
		{"pg-orthogonal", []float32{0, 1, 0}, map[string]string{"act": "1"}},
	}
	for _, r := range records {
		rec := sceneRecord(r.id, r.vec, r.meta)
		require.NoError(t, s.Store(ctx, rec))
		t.Cleanup(func() { _ = s.Delete(ctx, rec.EntityType, rec.EntityID, rec.ModelName) })
	}

	results, err := s.Search(ctx, []float32{1, 0, 0}, SearchOptions{
		EntityType: "scene",
		ModelName:  "text-embedding-3-small",
		Limit:      2,
		Metric:     similarity.MetricCosine,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "pg-exact", results[0].EntityID)
	require.Equal(t, "pg-close", results[1].EntityID)

	// act=1 matches rank first and third; the filtered limit must still
	// return both instead of losing the lower-ranked one to the cutoff.
	results, err = s.Search(ctx, []float32{1, 0, 0}, SearchOptions{
		EntityType: "scene",
		ModelName:  "text-embedding-3-small",
		Limit:      2,
		Metric:     similarity.MetricCosine,
		Filters:    map[string]string{"act": "1"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "pg-exact", results[0].EntityID)
	require.Equal(t, "pg-orthogonal", results[1].EntityID)

	_, err = s.Search(ctx, []float32{1, 0, 0}, SearchOptions{
		EntityType: "scene",
		ModelName:  "text-embedding-3-small",
		Metric:     similarity.MetricManhattan,
	})
	require.ErrorIs(t, err, apperrors.ErrNotSupported)
}
