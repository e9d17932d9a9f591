package openai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = openai.SmallEmbedding3

// Embedder calls the OpenAI embeddings endpoint, or any compatible server
// reachable at baseURL.
type Embedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// NewEmbedder creates an embedder. dimensions <= 0 keeps the model default.
func NewEmbedder(apiKey, baseURL, model, organization string, dimensions int) (*Embedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if organization != "" {
		config.OrgID = organization
	}
	m := openai.EmbeddingModel(model)
	if model == "" {
		m = DefaultModel
	}
	return &Embedder{
		client:     openai.NewClientWithConfig(config),
		model:      m,
		dimensions: dimensions,
	}, nil
}

// Embed returns the embedding of text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai returned no embeddings for model %s", e.model)
	}
	return resp.Data[0].Embedding, nil
}

// Model names the embedding model.
func (e *Embedder) Model() string { return string(e.model) }
