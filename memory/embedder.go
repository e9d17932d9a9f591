package memory

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
)

// Embedder is a pluggable interface for getting embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Model names the embedding model. Vectors from different models are
	// never compared or reused.
	Model() string
}

// EncodeEmbedding encodes a []float32 into a []byte for storage.
func EncodeEmbedding(vec []float32) []byte {
	if vec == nil {
		return nil
	}
	b := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

// DecodeEmbedding decodes a []byte into a []float32.
func DecodeEmbedding(b []byte) ([]float32, error) {
	if b == nil {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, errors.New("invalid embedding blob length")
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
