// Package embedding turns text into vectors through a pluggable provider,
// with preprocessing, a bounded TTL cache and single-flight deduplication.
package embedding

import (
	"context"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/aschepis/backscratcher/memtier/memory"
)

// Generator wraps a provider. It implements memory.Embedder itself, so it can
// be handed to anything that accepts a provider.
type Generator struct {
	provider memory.Embedder
	cache    *Cache
	group    singleflight.Group
	cfg      Config
	logger   zerolog.Logger
}

var _ memory.Embedder = (*Generator)(nil)

// NewGenerator creates a Generator. cache may be shared between generators
// because keys include the model name.
func NewGenerator(provider memory.Embedder, cache *Cache, cfg Config, logger zerolog.Logger) *Generator {
	return &Generator{
		provider: provider,
		cache:    cache,
		cfg:      cfg,
		logger:   logger.With().Str("component", "embedding").Str("model", provider.Model()).Logger(),
	}
}

// Model names the provider's model.
func (g *Generator) Model() string { return g.provider.Model() }

// Embed implements memory.Embedder.
func (g *Generator) Embed(ctx context.Context, text string) ([]float32, error) {
	return g.Generate(ctx, text)
}

// Generate returns the embedding of text. Concurrent requests for the same
// text share one provider call; failures are never cached.
func (g *Generator) Generate(ctx context.Context, text string) ([]float32, error) {
	clean := Preprocess(text, g.cfg.MaxTextLength)
	if clean == "" {
		return nil, memory.NewValidationError("cannot embed empty text", nil)
	}
	key := Key(g.Model(), clean)
	if vec, ok := g.cache.Get(key); ok {
		return vec, nil
	}

	ch := g.group.DoChan(key, func() (interface{}, error) {
		// Shared by every waiter, so not bound to this caller's context.
		vec, err := g.provider.Embed(context.WithoutCancel(ctx), clean)
		if err != nil {
			return nil, err
		}
		if len(vec) == 0 {
			return nil, memory.NewEmbeddingUnavailableError("provider returned an empty vector", nil)
		}
		g.cache.Set(key, vec)
		return vec, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			g.logger.Error().Err(res.Err).Msg("Embedding provider failed")
			if memory.IsEmbeddingUnavailable(res.Err) {
				return nil, res.Err
			}
			return nil, memory.NewEmbeddingUnavailableError("embedding provider failed", res.Err)
		}
		vec := res.Val.([]float32)
		return append([]float32(nil), vec...), nil
	}
}

// Invalidate drops the cached vector for text.
func (g *Generator) Invalidate(text string) {
	g.cache.Delete(Key(g.Model(), Preprocess(text, g.cfg.MaxTextLength)))
}

// Preprocess strips control characters, collapses whitespace, trims, and
// truncates to maxRunes.
func Preprocess(text string, maxRunes int) string {
	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	out := b.String()
	if maxRunes > 0 {
		if rs := []rune(out); len(rs) > maxRunes {
			out = strings.TrimSpace(string(rs[:maxRunes]))
		}
	}
	return out
}
