package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/scriptvec/scriptvec/internal/model"
	apperrors "github.com/scriptvec/scriptvec/internal/pkg/errors"
)

// hybridStore layers a primary backend over a secondary. Writes go to both,
// tolerating secondary failure; reads fall back to the secondary on a
// primary miss and repopulate the primary best-effort. The two backends get
// independent, unsynchronized calls; each owns its own concurrency safety.
type hybridStore struct {
	primary   Store
	secondary Store
}

func NewHybrid(primary, secondary Store) Store {
	if secondary == nil {
		return primary
	}
	return &hybridStore{primary: primary, secondary: secondary}
}

func (h *hybridStore) Store(ctx context.Context, rec *model.StoredEmbedding) error {
	if err := h.primary.Store(ctx, rec); err != nil {
		return err
	}
	if err := h.secondary.Store(ctx, rec); err != nil {
		logutil.GetLogger(ctx).Warn("secondary store write failed",
			zap.String("entity_id", rec.EntityID),
			zap.Error(err),
		)
	}
	return nil
}

func (h *hybridStore) Retrieve(ctx context.Context, entityType, entityID, modelName string) (*model.StoredEmbedding, error) {
	rec, err := h.primary.Retrieve(ctx, entityType, entityID, modelName)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		logutil.GetLogger(ctx).Warn("primary retrieve failed, trying secondary",
			zap.String("entity_id", entityID),
			zap.Error(err),
		)
	}
	rec, err = h.secondary.Retrieve(ctx, entityType, entityID, modelName)
	if err != nil {
		return nil, err
	}
	// Repopulation is best-effort: its failure must not affect this call.
	if err := h.primary.Store(ctx, rec); err != nil {
		logutil.GetLogger(ctx).Warn("primary repopulation failed",
			zap.String("entity_id", entityID),
			zap.Error(err),
		)
	}
	return rec, nil
}

func (h *hybridStore) Delete(ctx context.Context, entityType, entityID, modelName string) error {
	errPrimary := h.primary.Delete(ctx, entityType, entityID, modelName)
	errSecondary := h.secondary.Delete(ctx, entityType, entityID, modelName)
	if errPrimary == nil || errSecondary == nil {
		return nil
	}
	return fmt.Errorf("delete failed on both backends: primary: %v; secondary: %w", errPrimary, errSecondary)
}

func (h *hybridStore) Exists(ctx context.Context, entityType, entityID, modelName string) (bool, error) {
	ok, errPrimary := h.primary.Exists(ctx, entityType, entityID, modelName)
	if errPrimary == nil && ok {
		return true, nil
	}
	ok, errSecondary := h.secondary.Exists(ctx, entityType, entityID, modelName)
	if errSecondary == nil {
		return ok, nil
	}
	if errPrimary == nil {
		return false, nil
	}
	return false, errSecondary
}

func (h *hybridStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]model.SearchResult, error) {
	results, err := h.primary.Search(ctx, query, opts)
	if err == nil {
		return results, nil
	}
	if !errors.Is(err, apperrors.ErrNotSupported) {
		return nil, err
	}
	return h.secondary.Search(ctx, query, opts)
}
