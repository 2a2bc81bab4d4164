package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/scriptvec/scriptvec/internal/pkg/errors"
)

// ErrUnavailable is returned by providers that are not configured.
var ErrUnavailable = fmt.Errorf("%w: ai provider unavailable", apperrors.ErrProvider)

// IEmbedProvider is the single capability the batch processor depends on.
// dimensions <= 0 means the model's default width. A failed or empty
// response is an error; callers decide retry policy.
type IEmbedProvider interface {
	Name() string
	Embed(ctx context.Context, model string, text string, dimensions int) ([]float32, error)
}

type ProviderFactory func(args interface{}) (IEmbedProvider, error)

var registry = map[string]ProviderFactory{}

func Register(name string, factory ProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func NewProvider(name string, args interface{}) (IEmbedProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("provider.type is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported ai provider: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("ai provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}
