package modelregistry

import (
	"fmt"
	"math"

	apperrors "github.com/scriptvec/scriptvec/internal/pkg/errors"
)

// ModelSpec describes the vector constraints of one embedding model. A model
// either requires its exact fixed dimension, or accepts any width inside
// [MinDimension, MaxDimension] when AllowCustom is set.
type ModelSpec struct {
	Dimension    int
	TokenLimit   int
	AllowCustom  bool
	MinDimension int
	MaxDimension int
}

// Registry maps model names to their dimension constraints. Unknown models
// validate as ok: their vectors are unverifiable, not guaranteed.
type Registry struct {
	models map[string]ModelSpec
}

func New() *Registry {
	return &Registry{models: make(map[string]ModelSpec)}
}

// NewWithDefaults returns a registry pre-seeded with the models the bundled
// providers speak.
func NewWithDefaults() *Registry {
	r := New()
	r.Register("text-embedding-3-small", ModelSpec{Dimension: 1536, TokenLimit: 8191, AllowCustom: true, MinDimension: 2, MaxDimension: 1536})
	r.Register("text-embedding-3-large", ModelSpec{Dimension: 3072, TokenLimit: 8191, AllowCustom: true, MinDimension: 256, MaxDimension: 3072})
	r.Register("text-embedding-ada-002", ModelSpec{Dimension: 1536, TokenLimit: 8191})
	r.Register("gemini-embedding-001", ModelSpec{Dimension: 3072, TokenLimit: 2048, AllowCustom: true, MinDimension: 128, MaxDimension: 3072})
	return r
}

func (r *Registry) Register(name string, spec ModelSpec) {
	if name == "" || spec.Dimension <= 0 {
		return
	}
	if spec.AllowCustom {
		if spec.MinDimension <= 0 {
			spec.MinDimension = 1
		}
		if spec.MaxDimension < spec.MinDimension {
			spec.MaxDimension = spec.Dimension
		}
	}
	r.models[name] = spec
}

func (r *Registry) Has(name string) bool {
	_, ok := r.models[name]
	return ok
}

// Dimensions returns the fixed dimension of a known model, or ok=false for
// an unknown one.
func (r *Registry) Dimensions(name string) (int, bool) {
	spec, ok := r.models[name]
	if !ok {
		return 0, false
	}
	return spec.Dimension, true
}

// Validate checks a requested dimension against the model's constraints.
// Unknown models always pass.
func (r *Registry) Validate(name string, dim int) error {
	spec, ok := r.models[name]
	if !ok {
		return nil
	}
	if dim == spec.Dimension {
		return nil
	}
	if !spec.AllowCustom {
		return fmt.Errorf("%w: model %s requires dimension %d, got %d", apperrors.ErrValidation, name, spec.Dimension, dim)
	}
	if dim < spec.MinDimension || dim > spec.MaxDimension {
		return fmt.Errorf("%w: model %s accepts dimensions %d-%d, got %d", apperrors.ErrValidation, name, spec.MinDimension, spec.MaxDimension, dim)
	}
	return nil
}

// Normalize forces a vector to the target width: zero-padded on the right if
// shorter, truncated on the right if longer. Lossy; fallback use only.
func Normalize(vec []float32, dim int) []float32 {
	if dim <= 0 || len(vec) == dim {
		return vec
	}
	out := make([]float32, dim)
	copy(out, vec)
	return out
}

// ValidateVector rejects empty vectors, NaN/Inf entries, and wrong lengths
// for known models.
func (r *Registry) ValidateVector(vec []float32, modelName string) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", apperrors.ErrValidation)
	}
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) {
			return fmt.Errorf("%w: NaN at index %d", apperrors.ErrValidation, i)
		}
		if math.IsInf(f, 0) {
			return fmt.Errorf("%w: Inf at index %d", apperrors.ErrValidation, i)
		}
	}
	if modelName != "" {
		if err := r.Validate(modelName, len(vec)); err != nil {
			return err
		}
	}
	return nil
}
