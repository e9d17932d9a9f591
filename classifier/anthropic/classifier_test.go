package anthropic

import (
	"context"
	"errors"
	"strings"
	"testing"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/memtier/memory"
)

type stubMessages struct {
	answer string
	err    error
	got    anthropic.MessageNewParams
}

func (s *stubMessages) New(_ context.Context, body anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	s.got = body
	if s.err != nil {
		return nil, s.err
	}
	return &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{{Type: "text", Text: s.answer}},
	}, nil
}

func TestParseLabel(t *testing.T) {
	tests := []struct {
		answer   string
		wantType memory.RelationshipType
		wantConf float64
		wantErr  bool
	}{
		{answer: "causal 0.9", wantType: memory.RelCausal, wantConf: 0.9},
		{answer: "  Temporal 0.25.\nbecause both happened today", wantType: memory.RelTemporal, wantConf: 0.25},
		{answer: "similar", wantType: memory.RelSimilar, wantConf: 1},
		{answer: "references 3", wantType: memory.RelReferences, wantConf: 1},
		{answer: "", wantErr: true},
		{answer: "unrelated 0.5", wantErr: true},
		{answer: "related high", wantErr: true},
	}
	for _, tt := range tests {
		gotType, gotConf, err := ParseLabel(tt.answer)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseLabel(%q) expected error", tt.answer)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLabel(%q) unexpected error: %v", tt.answer, err)
			continue
		}
		if gotType != tt.wantType || gotConf != tt.wantConf {
			t.Errorf("ParseLabel(%q) = %s %v, want %s %v", tt.answer, gotType, gotConf, tt.wantType, tt.wantConf)
		}
	}
}

func TestClassify(t *testing.T) {
	stub := &stubMessages{answer: "causal 0.8"}
	c := newClassifier(stub, "", 0, zerolog.Nop())

	from := &memory.Entity{ID: "a", Content: "the deploy failed"}
	to := &memory.Entity{ID: "b", Content: "the pager went off"}
	relType, conf, err := c.Classify(context.Background(), from, to)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if relType != memory.RelCausal || conf != 0.8 {
		t.Errorf("Classify = %s %v, want causal 0.8", relType, conf)
	}
	if string(stub.got.Model) != DefaultModel {
		t.Errorf("model = %s, want %s", stub.got.Model, DefaultModel)
	}
	if stub.got.MaxTokens != 64 {
		t.Errorf("max tokens = %d, want 64", stub.got.MaxTokens)
	}
	if len(stub.got.Messages) != 1 {
		t.Fatalf("expected one message, got %d", len(stub.got.Messages))
	}
}

func TestClassifyError(t *testing.T) {
	stub := &stubMessages{err: errors.New("overloaded")}
	c := newClassifier(stub, "claude-test", 16, zerolog.Nop())

	_, _, err := c.Classify(context.Background(), &memory.Entity{ID: "a"}, &memory.Entity{ID: "b"})
	if err == nil || !strings.Contains(err.Error(), "overloaded") {
		t.Fatalf("expected wrapped provider error, got %v", err)
	}
}

func TestNewClassifierRequiresKey(t *testing.T) {
	if _, err := NewClassifier("", "", 0, zerolog.Nop()); err == nil {
		t.Fatal("expected error for empty api key")
	}
}
