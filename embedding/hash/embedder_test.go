package hash

import (
	"context"
	"math"
	"testing"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestEmbedder_Deterministic(t *testing.T) {
	e := NewEmbedder(64)
	a, _ := e.Embed(context.Background(), "Neural networks learn")
	b, _ := e.Embed(context.Background(), "neural   NETWORKS learn!")
	if len(a) != 64 {
		t.Fatalf("dimensions = %d", len(a))
	}
	if c := cosine(a, b); c < 0.9999 {
		t.Fatalf("same words should give the same vector, cosine=%f", c)
	}
}

func TestEmbedder_OverlapIsMoreSimilar(t *testing.T) {
	e := NewEmbedder(128)
	ctx := context.Background()
	q, _ := e.Embed(ctx, "deep learning models")
	near, _ := e.Embed(ctx, "deep learning research")
	far, _ := e.Embed(ctx, "banana bread recipe")
	if cosine(q, near) <= cosine(q, far) {
		t.Fatalf("overlapping text should be closer")
	}
}

func TestEmbedder_EmptyTextIsZeroVector(t *testing.T) {
	v, err := NewEmbedder(8).Embed(context.Background(), "  ...  ")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for _, x := range v {
		if x != 0 {
			t.Fatalf("expected zero vector, got %v", v)
		}
	}
	if NewEmbedder(0).Model() != "fnv-hash-256" {
		t.Fatalf("default model name wrong")
	}
}
