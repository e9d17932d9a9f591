package memory

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestParseEnums(t *testing.T) {
	if _, err := ParseType("TEXT"); err != nil {
		t.Fatalf("ParseType(TEXT): %v", err)
	}
	if _, err := ParseType("hologram"); !IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if tier, err := ParseTier(" warm "); err != nil || tier != TierWarm {
		t.Fatalf("ParseTier(warm) = %q, %v", tier, err)
	}
	if _, err := ParseTier("lukewarm"); !IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := ParseRelationshipType("causal"); err != nil {
		t.Fatalf("ParseRelationshipType(causal): %v", err)
	}
	if _, err := ParseRelationshipType("friend"); !IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTierRank(t *testing.T) {
	if !(TierCold.Rank() < TierWarm.Rank() && TierWarm.Rank() < TierHot.Rank()) {
		t.Fatalf("unexpected tier ordering")
	}
	if Tier("x").Rank() != -1 {
		t.Fatalf("invalid tier should rank -1")
	}
}

func TestClampHelpers(t *testing.T) {
	cases := []struct {
		in, want int
	}{{-5, 0}, {0, 0}, {50, 50}, {100, 100}, {250, 100}}
	for _, c := range cases {
		if got := ClampImportance(c.in); got != c.want {
			t.Errorf("ClampImportance(%d) = %d, want %d", c.in, got, c.want)
		}
	}
	if Clamp01(math.NaN()) != 0 || Clamp01(-1) != 0 || Clamp01(2) != 1 || Clamp01(0.4) != 0.4 {
		t.Errorf("Clamp01 out of range")
	}
}

func TestEntityCloneIsDeep(t *testing.T) {
	e := &Entity{ID: "a", Tags: []string{"x"}, Metadata: map[string]interface{}{"k": "v"}}
	c := e.Clone()
	c.Tags[0] = "y"
	c.Metadata["k"] = "w"
	if e.Tags[0] != "x" || e.Metadata["k"] != "v" {
		t.Fatalf("clone shares state with original")
	}
	if !e.HasTag(" X ") {
		t.Fatalf("HasTag should be case-insensitive")
	}
}

func TestRelationshipOther(t *testing.T) {
	r := &Relationship{FromID: "a", ToID: "b"}
	if r.Other("a") != "b" || r.Other("b") != "a" {
		t.Fatalf("Other returned wrong endpoint")
	}
}

func TestErrorHelpers(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("save: %w", NewPersistenceError("insert memory", cause))
	if !IsPersistenceError(err) {
		t.Fatalf("expected persistence error")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause should be reachable through Unwrap")
	}
	if IsNotFound(err) {
		t.Fatalf("persistence error must not report not found")
	}

	typed := NewNotFoundError("memory x")
	if got := NewPersistenceError("wrap", typed); got != typed {
		t.Fatalf("typed errors should pass through NewPersistenceError")
	}
	if !IsAccessDenied(NewAccessDeniedError("no", nil)) ||
		!IsEmbeddingUnavailable(NewEmbeddingUnavailableError("down", cause)) ||
		!IsDimensionMismatch(NewDimensionMismatchError("3 != 4")) ||
		!IsShutdown(NewShutdownError("stopped")) {
		t.Fatalf("Is* helpers did not match their constructors")
	}
}

func TestEmbeddingCodecRoundTrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 3}
	got, err := DecodeEmbedding(EncodeEmbedding(vec))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Fatalf("index %d: got %v want %v", i, got[i], vec[i])
		}
	}
	if _, err := DecodeEmbedding([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for truncated blob")
	}
}

func TestDisplayText(t *testing.T) {
	if got := DisplayText("plain"); got != "plain" {
		t.Errorf("string: %q", got)
	}
	if got := DisplayText(map[string]interface{}{"title": "Trip", "text": "Flight to Oslo"}); got != "Flight to Oslo" {
		t.Errorf("map: %q", got)
	}
	if got := DisplayText([]interface{}{"a", map[string]interface{}{"content": "b"}}); got != "a b" {
		t.Errorf("slice: %q", got)
	}
	if got := DisplayText(map[string]interface{}{"n": 1}); got != `{"n":1}` {
		t.Errorf("fallback json: %q", got)
	}
}
