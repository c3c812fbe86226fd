package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	appcfg "github.com/studyspace/core/internal/config"
	"github.com/studyspace/core/internal/models"
)

// Embedder turns texts into fixed-dimension vectors.
type Embedder interface {
	// EmbedTexts embeds a batch of texts, one vector per input in order.
	EmbedTexts(ctx context.Context, texts []string) ([]models.Vector, error)
	// Dimensions reports the configured vector dimensionality.
	Dimensions() int
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	client openaiclient.Client
	model  string
	dims   int
}

func NewOpenAIEmbedder(cfg appcfg.EmbeddingConfig) (*OpenAIEmbedder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("embedding api key is empty")
	}

	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
	}
	if normalized := normalizeOpenAIBaseURL(cfg.Endpoint); normalized != "" {
		opts = append(opts, openaioption.WithBaseURL(normalized))
	}

	return &OpenAIEmbedder{
		client: openaiclient.NewClient(opts...),
		model:  cfg.Model,
		dims:   cfg.Dimensions,
	}, nil
}

func (e *OpenAIEmbedder) Dimensions() int { return e.dims }

func (e *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([]models.Vector, error) {
	if len(texts) == 0 {
		return []models.Vector{}, nil
	}

	params := openaiclient.EmbeddingNewParams{
		Model: openaiclient.EmbeddingModel(e.model),
		Input: openaiclient.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	}
	if e.dims > 0 {
		params.Dimensions = openaiclient.Int(int64(e.dims))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, err
	}

	out := make([]models.Vector, len(texts))
	for _, d := range resp.Data {
		vec := make(models.Vector, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		if d.Index >= 0 && int(d.Index) < len(out) {
			out[d.Index] = vec
		}
	}
	for i := range out {
		if out[i] == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return out, nil
}
