package vectorstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scriptvec/scriptvec/internal/model"
	apperrors "github.com/scriptvec/scriptvec/internal/pkg/errors"
)

// stubStore is an in-memory backend with injectable failures, used to drive
// the hybrid composition from both sides.
type stubStore struct {
	records map[string]*model.StoredEmbedding

	storeErr    error
	retrieveErr error
	deleteErr   error
	searchErr   error
	searchHits  []model.SearchResult

	storeCalls  int
	searchCalls int
}

func newStubStore() *stubStore {
	return &stubStore{records: make(map[string]*model.StoredEmbedding)}
}

func stubKey(entityType, entityID, modelName string) string {
	return entityType + "/" + entityID + "/" + modelName
}

func (s *stubStore) Store(ctx context.Context, rec *model.StoredEmbedding) error {
	s.storeCalls++
	if s.storeErr != nil {
		return s.storeErr
	}
	s.records[stubKey(rec.EntityType, rec.EntityID, rec.ModelName)] = rec
	return nil
}

func (s *stubStore) Retrieve(ctx context.Context, entityType, entityID, modelName string) (*model.StoredEmbedding, error) {
	if s.retrieveErr != nil {
		return nil, s.retrieveErr
	}
	rec, ok := s.records[stubKey(entityType, entityID, modelName)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return rec, nil
}

func (s *stubStore) Delete(ctx context.Context, entityType, entityID, modelName string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	key := stubKey(entityType, entityID, modelName)
	if _, ok := s.records[key]; !ok {
		return apperrors.ErrNotFound
	}
	delete(s.records, key)
	return nil
}

func (s *stubStore) Exists(ctx context.Context, entityType, entityID, modelName string) (bool, error) {
	_, ok := s.records[stubKey(entityType, entityID, modelName)]
	return ok, nil
}

func (s *stubStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]model.SearchResult, error) {
	s.searchCalls++
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.searchHits, nil
}

func hybridRecord() *model.StoredEmbedding {
	return &model.StoredEmbedding{EntityType: "scene", EntityID: "s1", ModelName: "m", Embedding: []float32{1, 2}}
}

func TestHybridStoreWritesBothToleratesSecondaryFailure(t *testing.T) {
	primary, secondary := newStubStore(), newStubStore()
	h := NewHybrid(primary, secondary)
	ctx := context.Background()

	require.NoError(t, h.Store(ctx, hybridRecord()))
	require.Len(t, primary.records, 1)
	require.Len(t, secondary.records, 1)

	secondary.storeErr = fmt.Errorf("archive offline")
	rec := hybridRecord()
	rec.EntityID = "s2"
	require.NoError(t, h.Store(ctx, rec))
	require.Len(t, primary.records, 2)

	primary.storeErr = fmt.Errorf("disk full")
	rec.EntityID = "s3"
	require.Error(t, h.Store(ctx, rec))
}

func TestHybridRetrieveFallsBackAndRepopulates(t *testing.T) {
	primary, secondary := newStubStore(), newStubStore()
	h := NewHybrid(primary, secondary)
	ctx := context.Background()

	rec := hybridRecord()
	secondary.records[stubKey(rec.EntityType, rec.EntityID, rec.ModelName)] = rec

	got, err := h.Retrieve(ctx, "scene", "s1", "m")
	require.NoError(t, err)
	require.Equal(t, rec.Embedding, got.Embedding)
	// The miss repopulated the primary.
	require.Len(t, primary.records, 1)
}

func TestHybridRetrieveRepopulationFailureDoesNotAffectResult(t *testing.T) {
	primary, secondary := newStubStore(), newStubStore()
	primary.storeErr = fmt.Errorf("read only")
	h := NewHybrid(primary, secondary)
	ctx := context.Background()

	rec := hybridRecord()
	secondary.records[stubKey(rec.EntityType, rec.EntityID, rec.ModelName)] = rec

	got, err := h.Retrieve(ctx, "scene", "s1", "m")
	require.NoError(t, err)
	require.Equal(t, rec.Embedding, got.Embedding)
}

func TestHybridRetrieveMissingEverywhere(t *testing.T) {
	h := NewHybrid(newStubStore(), newStubStore())
	_, err := h.Retrieve(context.Background(), "scene", "absent", "m")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestHybridDeleteSucceedsIfEitherSucceeds(t *testing.T) {
	primary, secondary := newStubStore(), newStubStore()
	h := NewHybrid(primary, secondary)
	ctx := context.Background()

	rec := hybridRecord()
	primary.records[stubKey(rec.EntityType, rec.EntityID, rec.ModelName)] = rec
	require.NoError(t, h.Delete(ctx, "scene", "s1", "m"))

	// Missing in both now.
	require.Error(t, h.Delete(ctx, "scene", "s1", "m"))
}

func TestHybridExistsChecksBoth(t *testing.T) {
	primary, secondary := newStubStore(), newStubStore()
	h := NewHybrid(primary, secondary)
	ctx := context.Background()

	rec := hybridRecord()
	secondary.records[stubKey(rec.EntityType, rec.EntityID, rec.ModelName)] = rec

	ok, err := h.Exists(ctx, "scene", "s1", "m")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = h.Exists(ctx, "scene", "other", "m")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHybridSearchFallsBackOnCapabilityErrorOnly(t *testing.T) {
	primary, secondary := newStubStore(), newStubStore()
	h := NewHybrid(primary, secondary)
	ctx := context.Background()

	primary.searchErr = fmt.Errorf("%w: no similarity index", apperrors.ErrNotSupported)
	secondary.searchHits = []model.SearchResult{{EntityID: "hit", Score: 0.9}}

	results, err := h.Search(ctx, []float32{1}, SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "hit", results[0].EntityID)

	// Transient failures are not capability limits and must surface.
	primary.searchErr = fmt.Errorf("connection reset")
	secondary.searchCalls = 0
	_, err = h.Search(ctx, []float32{1}, SearchOptions{})
	require.Error(t, err)
	require.Zero(t, secondary.searchCalls)
}

func TestNewHybridWithoutSecondaryReturnsPrimary(t *testing.T) {
	primary := newStubStore()
	require.Equal(t, Store(primary), NewHybrid(primary, nil))
}
