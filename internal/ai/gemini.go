package ai

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/scriptvec/scriptvec/internal/pkg/errors"
	"google.golang.org/genai"
)

type geminiConfig struct {
	APIKey   string `json:"api_key"`
	TaskType string `json:"task_type"`
}

type geminiProvider struct {
	apiKey   string
	taskType string
}

func (p *geminiProvider) Name() string {
	return "gemini"
}

func (p *geminiProvider) Embed(ctx context.Context, model string, text string, dimensions int) ([]float32, error) {
	if p.apiKey == "" {
		return nil, ErrUnavailable
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	config := &genai.EmbedContentConfig{}
	if p.taskType != "" {
		config.TaskType = p.taskType
	}
	if dimensions > 0 {
		d := int32(dimensions)
		config.OutputDimensionality = &d
	}
	resp, err := client.Models.EmbedContent(
		ctx,
		model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}},
		config,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrProvider, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("%w: no embedding values returned", apperrors.ErrProvider)
	}
	return resp.Embeddings[0].Values, nil
}

func createGeminiFactory(args interface{}) (IEmbedProvider, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	provider := &geminiProvider{
		apiKey:   strings.TrimSpace(cfg.APIKey),
		taskType: strings.TrimSpace(cfg.TaskType),
	}
	return provider, nil
}

func init() {
	Register("gemini", createGeminiFactory)
}
