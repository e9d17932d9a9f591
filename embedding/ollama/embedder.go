package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

type Model string

const (
	ModelMXBAI Model = "mxbai-embed-large"
	ModelNomic Model = "nomic-embed-text"
)

// Embedder calls a local or remote Ollama server for embeddings.
type Embedder struct {
	client *api.Client
	model  Model
}

// NewEmbedder creates an embedder. An empty host falls back to OLLAMA_HOST.
func NewEmbedder(host string, model Model) (*Embedder, error) {
	if model == "" {
		model = ModelMXBAI
	}
	var client *api.Client
	if host != "" {
		baseURL, err := parseHost(host)
		if err != nil {
			return nil, fmt.Errorf("invalid host: %w", err)
		}
		client = api.NewClient(baseURL, &http.Client{})
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
	}
	return &Embedder{client: client, model: model}, nil
}

func parseHost(host string) (*url.URL, error) {
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return url.Parse(host)
}

// Embed returns the embedding of text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: string(e.model),
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama returned no embeddings for model %s", e.model)
	}
	return resp.Embeddings[0], nil
}

// Model names the embedding model.
func (e *Embedder) Model() string { return string(e.model) }
