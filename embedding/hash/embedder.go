// Package hash provides a deterministic, dependency-free embedder. Texts that
// share words get similar vectors, which is enough for offline use and tests.
package hash

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultDimensions is the vector length used when none is given.
const DefaultDimensions = 256

// Embedder hashes words onto a fixed number of dimensions.
type Embedder struct {
	dimensions int
}

// NewEmbedder creates an embedder producing vectors of the given length.
func NewEmbedder(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &Embedder{dimensions: dimensions}
}

// Embed returns a unit vector (or the zero vector for text without words).
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	embedding := make([]float32, e.dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, word := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		sum := h.Sum32()
		// Each word influences 3 dimensions.
		for i := uint32(0); i < 3; i++ {
			dim := int((sum + i*2654435761) % uint32(e.dimensions)) // nolint:gosec // bounded by dimensions
			embedding[dim] += float32(math.Sin(float64(sum+i)*0.1) + 1.0)
		}
	}

	var magnitude float64
	for _, v := range embedding {
		magnitude += float64(v) * float64(v)
	}
	if magnitude > 0 {
		norm := float32(math.Sqrt(magnitude))
		for i := range embedding {
			embedding[i] /= norm
		}
	}
	return embedding, nil
}

// Model names the embedding scheme, including its dimension.
func (e *Embedder) Model() string { return fmt.Sprintf("fnv-hash-%d", e.dimensions) }
