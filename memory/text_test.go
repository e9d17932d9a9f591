package memory

import (
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{-2, 0.5, 4}

	ab, err := CosineSimilarity(a, b)
	if err != nil {
		t.Fatalf("CosineSimilarity: %v", err)
	}
	ba, _ := CosineSimilarity(b, a)
	if ab != ba {
		t.Errorf("not symmetric: %f vs %f", ab, ba)
	}
	if ab < -1 || ab > 1 {
		t.Errorf("out of range: %f", ab)
	}
	self, _ := CosineSimilarity(a, a)
	if math.Abs(self-1) > 1e-9 {
		t.Errorf("self similarity = %f, want 1", self)
	}
	zero, err := CosineSimilarity([]float32{0, 0, 0}, a)
	if err != nil || zero != 0 {
		t.Errorf("zero vector similarity = %f, %v", zero, err)
	}
	if _, err := CosineSimilarity(a, []float32{1, 2}); !IsDimensionMismatch(err) {
		t.Errorf("expected dimension mismatch, got %v", err)
	}
}

func TestTokenize(t *testing.T) {
	if toks := Tokenize("Hello, hello WORLD!"); len(toks) != 2 || toks[0] != "hello" || toks[1] != "world" {
		t.Errorf("Tokenize = %v", toks)
	}
	if toks := Tokenize("Über-café 42"); len(toks) != 3 || toks[0] != "über" {
		t.Errorf("Tokenize unicode = %v", toks)
	}
}
