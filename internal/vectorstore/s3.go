package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/scriptvec/scriptvec/internal/codec"
	"github.com/scriptvec/scriptvec/internal/model"
	apperrors "github.com/scriptvec/scriptvec/internal/pkg/errors"
)

type s3Config struct {
	Endpoint  string `json:"endpoint"`
	SecretID  string `json:"secret_id"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Prefix    string `json:"prefix"`
}

// s3Store archives vector records under the same content-addressed key
// scheme as the file backend. It has no index, so Search is a capability
// error, not a transient one.
type s3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

func init() {
	Register("s3", createS3Store)
}

func createS3Store(args interface{}) (Store, error) {
	cfg := &s3Config{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Bucket == "" || cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 bucket/secret_id/secret_key are required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.SecretID, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &s3Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (s *s3Store) objectKey(entityType, entityID, modelName string) (string, error) {
	if entityType == "" || entityID == "" || modelName == "" {
		return "", fmt.Errorf("%w: entity type, id and model are required", apperrors.ErrValidation)
	}
	key := path.Join(sanitizeModel(modelName), entityType, entityID+vectorExt)
	if s.prefix != "" {
		key = path.Join(s.prefix, key)
	}
	return key, nil
}

func (s *s3Store) Store(ctx context.Context, rec *model.StoredEmbedding) error {
	key, err := s.objectKey(rec.EntityType, rec.EntityID, rec.ModelName)
	if err != nil {
		return err
	}
	if len(rec.Embedding) == 0 {
		return fmt.Errorf("%w: empty embedding", apperrors.ErrValidation)
	}
	data := codec.Encode(rec.Embedding)
	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}); err != nil {
		return fmt.Errorf("%w: s3 put: %v", apperrors.ErrStorage, err)
	}
	metaKey := metaKeyFor(key)
	if len(rec.Metadata) == 0 {
		_, _ = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(metaKey),
		})
		return nil
	}
	metaData, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("%w: encode metadata: %v", apperrors.ErrStorage, err)
	}
	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(metaKey),
		Body:   bytes.NewReader(metaData),
	}); err != nil {
		return fmt.Errorf("%w: s3 put metadata: %v", apperrors.ErrStorage, err)
	}
	return nil
}

func (s *s3Store) Retrieve(ctx context.Context, entityType, entityID, modelName string) (*model.StoredEmbedding, error) {
	key, err := s.objectKey(entityType, entityID, modelName)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("%w: s3 get: %v", apperrors.ErrStorage, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: s3 read: %v", apperrors.ErrStorage, err)
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
	if metaOut, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(metaKeyFor(key)),
	}); err == nil {
		metaData, readErr := io.ReadAll(metaOut.Body)
		metaOut.Body.Close()
		if readErr == nil {
			_ = json.Unmarshal(metaData, &rec.Metadata)
		}
	}
	return rec, nil
}

func (s *s3Store) Delete(ctx context.Context, entityType, entityID, modelName string) error {
	key, err := s.objectKey(entityType, entityID, modelName)
	if err != nil {
		return err
	}
	exists, err := s.Exists(ctx, entityType, entityID, modelName)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.ErrNotFound
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("%w: s3 delete: %v", apperrors.ErrStorage, err)
	}
	_, _ = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(metaKeyFor(key)),
	})
	return nil
}

func (s *s3Store) Exists(ctx context.Context, entityType, entityID, modelName string) (bool, error) {
	key, err := s.objectKey(entityType, entityID, modelName)
	if err != nil {
		return false, err
	}
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		var notFound *s3types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: s3 head: %v", apperrors.ErrStorage, err)
	}
	return true, nil
}

func (s *s3Store) Search(ctx context.Context, query []float32, opts SearchOptions) ([]model.SearchResult, error) {
	return nil, fmt.Errorf("%w: s3 store has no similarity index", apperrors.ErrNotSupported)
}

func metaKeyFor(vectorKey string) string {
	return vectorKey[:len(vectorKey)-len(vectorExt)] + metaExt
}
