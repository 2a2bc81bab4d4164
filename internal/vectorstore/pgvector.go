package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/scriptvec/scriptvec/internal/config"
	"github.com/scriptvec/scriptvec/internal/db"
	"github.com/scriptvec/scriptvec/internal/model"
	"github.com/scriptvec/scriptvec/internal/pkg/dbutil"
	apperrors "github.com/scriptvec/scriptvec/internal/pkg/errors"
	"github.com/scriptvec/scriptvec/internal/similarity"
)

// pgStore keeps committed vectors in Postgres with the pgvector extension
// and answers search with native distance operators, so ranking happens in
// the database instead of a directory scan.
type pgStore struct {
	db *sql.DB
}

func init() {
	Register("pgvector", createPGStore)
}

func createPGStore(args interface{}) (Store, error) {
	cfg := &config.DatabaseConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	conn, err := db.Open(*cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: open postgres: %v", apperrors.ErrStorage, err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		return nil, fmt.Errorf("%w: migrations: %v", apperrors.ErrStorage, err)
	}
	return &pgStore{db: conn}, nil
}

func (s *pgStore) Store(ctx context.Context, rec *model.StoredEmbedding) error {
	if rec.EntityType == "" || rec.EntityID == "" || rec.ModelName == "" {
		return fmt.Errorf("%w: entity type, id and model are required", apperrors.ErrValidation)
	}
	if len(rec.Embedding) == 0 {
		return fmt.Errorf("%w: empty embedding", apperrors.ErrValidation)
	}
	var metaBlob []byte
	if len(rec.Metadata) > 0 {
		var err error
		metaBlob, err = json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("%w: encode metadata: %v", apperrors.ErrStorage, err)
		}
	}
	const query = `
		INSERT INTO embeddings (entity_type, entity_id, model_name, embedding, metadata, mtime)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (entity_type, entity_id, model_name) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			mtime = EXCLUDED.mtime
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.EntityType,
		rec.EntityID,
		rec.ModelName,
		pgvector.NewVector(rec.Embedding),
		metaBlob,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("%w: upsert embedding: %v", apperrors.ErrStorage, err)
	}
	return nil
}

func (s *pgStore) Retrieve(ctx context.Context, entityType, entityID, modelName string) (*model.StoredEmbedding, error) {
	const query = `
		SELECT embedding, metadata, mtime
		FROM embeddings
		WHERE entity_type = $1 AND entity_id = $2 AND model_name = $3
	`
	row := s.db.QueryRowContext(ctx, query, entityType, entityID, modelName)
	var (
		embedding pgvector.Vector
		metaBlob  []byte
		mtime     int64
	)
	if err := row.Scan(&embedding, &metaBlob, &mtime); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("%w: scan embedding: %v", apperrors.ErrStorage, err)
	}
	rec := &model.StoredEmbedding{
		EntityType: entityType,
		EntityID:   entityID,
		ModelName:  modelName,
		Embedding:  embedding.Slice(),
		Mtime:      mtime,
	}
	if len(metaBlob) > 0 {
		if err := json.Unmarshal(metaBlob, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("%w: decode metadata: %v", apperrors.ErrStorage, err)
		}
	}
	return rec, nil
}

func (s *pgStore) Delete(ctx context.Context, entityType, entityID, modelName string) error {
	where := map[string]interface{}{
		"entity_type": entityType,
		"entity_id":   entityID,
		"model_name":  modelName,
	}
	sqlStr, args, err := builder.BuildDelete("embeddings", where)
	if err != nil {
		return fmt.Errorf("%w: build delete: %v", apperrors.ErrStorage, err)
	}
	res, err := s.db.ExecContext(ctx, dbutil.Finalize(sqlStr), args...)
	if err != nil {
		return fmt.Errorf("%w: delete embedding: %v", apperrors.ErrStorage, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", apperrors.ErrStorage, err)
	}
	if affected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (s *pgStore) Exists(ctx context.Context, entityType, entityID, modelName string) (bool, error) {
	where := map[string]interface{}{
		"entity_type": entityType,
		"entity_id":   entityID,
		"model_name":  modelName,
	}
	sqlStr, args, err := builder.BuildSelect("embeddings", where, []string{"1"})
	if err != nil {
		return false, fmt.Errorf("%w: build select: %v", apperrors.ErrStorage, err)
	}
	var one int
	if err := s.db.QueryRowContext(ctx, dbutil.Finalize(sqlStr), args...).Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("%w: query embedding: %v", apperrors.ErrStorage, err)
	}
	return true, nil
}

func (s *pgStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]model.SearchResult, error) {
	sqlStr, args, err := pgSearchQuery(query, opts)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: search embeddings: %v", apperrors.ErrStorage, err)
	}
	defer rows.Close()
	var results []model.SearchResult
	for rows.Next() {
		var (
			entityID string
			metaBlob []byte
			score    float64
		)
		if err := rows.Scan(&entityID, &metaBlob, &score); err != nil {
			return nil, fmt.Errorf("%w: scan search row: %v", apperrors.ErrStorage, err)
		}
		result := model.SearchResult{EntityID: entityID, Score: score}
		if len(metaBlob) > 0 {
			_ = json.Unmarshal(metaBlob, &result.Metadata)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// pgSearchQuery builds the ranked search statement. Threshold and metadata
// filters live in the WHERE clause, so LIMIT counts matching rows only and a
// filtered search fills its limit whenever enough matching records exist.
func pgSearchQuery(query []float32, opts SearchOptions) (string, []interface{}, error) {
	scoreExpr, orderExpr, err := pgMetricExprs(opts.Metric)
	if err != nil {
		return "", nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	args := []interface{}{pgvector.NewVector(query), opts.EntityType, opts.ModelName}
	conds := []string{"entity_type = $2", "model_name = $3"}
	if len(opts.Filters) > 0 {
		blob, err := json.Marshal(opts.Filters)
		if err != nil {
			return "", nil, fmt.Errorf("%w: encode filters: %v", apperrors.ErrStorage, err)
		}
		args = append(args, blob)
		conds = append(conds, fmt.Sprintf("metadata @> $%d::jsonb", len(args)))
	}
	if opts.Threshold > 0 {
		args = append(args, opts.Threshold)
		conds = append(conds, fmt.Sprintf("%s >= $%d", scoreExpr, len(args)))
	}
	args = append(args, limit)
	sqlStr := fmt.Sprintf(`
		SELECT entity_id, metadata, %s AS score
		FROM embeddings
		WHERE %s
		ORDER BY %s
		LIMIT $%d
	`, scoreExpr, strings.Join(conds, " AND "), orderExpr, len(args))
	return sqlStr, args, nil
}

// pgMetricExprs maps a similarity metric onto pgvector operators, keeping
// scores on the same higher-is-better scale as the similarity engine.
func pgMetricExprs(metric similarity.Metric) (score, order string, err error) {
	switch metric {
	case similarity.MetricCosine, "":
		return "1 - (embedding <=> $1)", "embedding <=> $1", nil
	case similarity.MetricEuclidean:
		return "exp(-(embedding <-> $1))", "embedding <-> $1", nil
	case similarity.MetricDot:
		return "-(embedding <#> $1)", "embedding <#> $1", nil
	default:
		return "", "", fmt.Errorf("%w: metric %q on pgvector store", apperrors.ErrNotSupported, metric)
	}
}
