package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/scriptvec/scriptvec/internal/codec"
	"github.com/scriptvec/scriptvec/internal/model"
	apperrors "github.com/scriptvec/scriptvec/internal/pkg/errors"
	"github.com/scriptvec/scriptvec/internal/similarity"
)

const (
	vectorExt = ".vec"
	metaExt   = ".meta.json"
)

type fileConfig struct {
	Root string `json:"root"`
}

// fileStore is the content-addressed backend: one payload file per record at
// root/<sanitized-model>/<entity-type>/<entity-id>.vec, with an optional
// metadata sidecar. Search scans the model/type directory and ranks with the
// similarity engine.
type fileStore struct {
	root string
}

func init() {
	Register("file", createFileStore)
}

func createFileStore(args interface{}) (Store, error) {
	cfg := &fileConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Root == "" {
		return nil, fmt.Errorf("file store root is required")
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create store root: %v", apperrors.ErrStorage, err)
	}
	return &fileStore{root: cfg.Root}, nil
}

func (s *fileStore) recordPath(entityType, entityID, modelName string) (string, error) {
	if entityType == "" || entityID == "" || modelName == "" {
		return "", fmt.Errorf("%w: entity type, id and model are required", apperrors.ErrValidation)
	}
	for _, part := range []string{entityType, entityID} {
		if strings.ContainsAny(part, "/\\") {
			return "", fmt.Errorf("%w: invalid path segment %q", apperrors.ErrValidation, part)
		}
	}
	return filepath.Join(s.root, sanitizeModel(modelName), entityType, entityID+vectorExt), nil
}

func (s *fileStore) Store(ctx context.Context, rec *model.StoredEmbedding) error {
	path, err := s.recordPath(rec.EntityType, rec.EntityID, rec.ModelName)
	if err != nil {
		return err
	}
	if len(rec.Embedding) == 0 {
		return fmt.Errorf("%w: empty embedding", apperrors.ErrValidation)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: create record dir: %v", apperrors.ErrStorage, err)
	}
	if err := os.WriteFile(path, codec.Encode(rec.Embedding), 0o644); err != nil {
		return fmt.Errorf("%w: write vector: %v", apperrors.ErrStorage, err)
	}
	metaPath := strings.TrimSuffix(path, vectorExt) + metaExt
	if len(rec.Metadata) == 0 {
		_ = os.Remove(metaPath)
		return nil
	}
	data, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("%w: encode metadata: %v", apperrors.ErrStorage, err)
	}
	if err := os.WriteFile(metaPath, data, 0o644); err != nil {
		return fmt.Errorf("%w: write metadata: %v", apperrors.ErrStorage, err)
	}
	return nil
}

func (s *fileStore) Retrieve(ctx context.Context, entityType, entityID, modelName string) (*model.StoredEmbedding, error) {
	path, err := s.recordPath(entityType, entityID, modelName)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("%w: read vector: %v", apperrors.ErrStorage, err)
	}
	vec, err := codec.Decode(data)
	if err != nil {
		return nil, err
	}
	rec := &model.StoredEmbedding{
		EntityType: entityType,
		EntityID:   entityID,
		ModelName:  modelName,
		Embedding:  vec,
	}
	metaPath := strings.TrimSuffix(path, vectorExt) + metaExt
	if metaData, err := os.ReadFile(metaPath); err == nil {
		if err := json.Unmarshal(metaData, &rec.Metadata); err != nil {
			logutil.GetLogger(ctx).Warn("corrupt metadata sidecar", zap.String("path", metaPath), zap.Error(err))
		}
	}
	return rec, nil
}

func (s *fileStore) Delete(ctx context.Context, entityType, entityID, modelName string) error {
	path, err := s.recordPath(entityType, entityID, modelName)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("%w: delete vector: %v", apperrors.ErrStorage, err)
	}
	_ = os.Remove(strings.TrimSuffix(path, vectorExt) + metaExt)
	return nil
}

func (s *fileStore) Exists(ctx context.Context, entityType, entityID, modelName string) (bool, error) {
	path, err := s.recordPath(entityType, entityID, modelName)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: stat vector: %v", apperrors.ErrStorage, err)
	}
	return true, nil
}

func (s *fileStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]model.SearchResult, error) {
	dir := filepath.Join(s.root, sanitizeModel(opts.ModelName), opts.EntityType)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: scan store dir: %v", apperrors.ErrStorage, err)
	}
	var (
		ids     []string
		vectors [][]float32
		metas   []map[string]string
	)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, vectorExt) {
			continue
		}
		entityID := strings.TrimSuffix(name, vectorExt)
		rec, err := s.Retrieve(ctx, opts.EntityType, entityID, opts.ModelName)
		if err != nil {
			logutil.GetLogger(ctx).Warn("skipping unreadable record", zap.String("entity_id", entityID), zap.Error(err))
			continue
		}
		if !matchFilters(rec.Metadata, opts.Filters) {
			continue
		}
		ids = append(ids, entityID)
		vectors = append(vectors, rec.Embedding)
		metas = append(metas, rec.Metadata)
	}
	matches := similarity.FindMostSimilar(query, vectors, opts.Limit, opts.Threshold, opts.Metric)
	results := make([]model.SearchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, model.SearchResult{
			EntityID: ids[m.Index],
			Score:    m.Score,
			Metadata: metas[m.Index],
		})
	}
	return results, nil
}

func matchFilters(meta, filters map[string]string) bool {
	for k, v := range filters {
		if meta[k] != v {
			return false
		}
	}
	return true
}
