// Package anthropic labels discovered relationships with a Claude model.
package anthropic

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/memtier/graph"
	"github.com/aschepis/backscratcher/memtier/memory"
)

const systemPrompt = `You classify how two notes relate.
Answer with exactly one line: <type> <confidence>
type is one of: references, similar, related, causal, temporal
confidence is a number between 0 and 1.`

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-3-5-haiku-latest"

type messages interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Classifier implements graph.Classifier.
type Classifier struct {
	messages  messages
	model     string
	maxTokens int64
	logger    zerolog.Logger
}

var _ graph.Classifier = (*Classifier)(nil)

// NewClassifier creates a Classifier with the given API key.
func NewClassifier(apiKey, model string, maxTokens int64, logger zerolog.Logger) (*Classifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return newClassifier(&client.Messages, model, maxTokens, logger), nil
}

func newClassifier(m messages, model string, maxTokens int64, logger zerolog.Logger) *Classifier {
	if model == "" {
		model = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = 64
	}
	return &Classifier{
		messages:  m,
		model:     model,
		maxTokens: maxTokens,
		logger:    logger.With().Str("component", "classifier").Str("model", model).Logger(),
	}
}

// Classify asks the model for the relationship type between from and to.
func (c *Classifier) Classify(ctx context.Context, from, to *memory.Entity) (memory.RelationshipType, float64, error) {
	prompt := fmt.Sprintf("Note A:\n%s\n\nNote B:\n%s", from.Content, to.Content)
	message, err := c.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
	})
	if err != nil {
		return "", 0, fmt.Errorf("classify %s -> %s: %w", from.ID, to.ID, err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	relType, confidence, err := ParseLabel(text.String())
	if err != nil {
		return "", 0, err
	}
	c.logger.Debug().
		Str("from", from.ID).
		Str("to", to.ID).
		Str("type", string(relType)).
		Float64("confidence", confidence).
		Msg("Classified relationship")
	return relType, confidence, nil
}

// ParseLabel reads a "<type> <confidence>" answer. A missing confidence
// reads as 1.
func ParseLabel(answer string) (memory.RelationshipType, float64, error) {
	line := strings.TrimSpace(answer)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", 0, fmt.Errorf("empty classification")
	}
	relType, err := memory.ParseRelationshipType(strings.Trim(fields[0], ".,:"))
	if err != nil {
		return "", 0, err
	}
	confidence := 1.0
	if len(fields) > 1 {
		confidence, err = strconv.ParseFloat(strings.TrimRight(fields[1], ".,"), 64)
		if err != nil {
			return "", 0, fmt.Errorf("invalid confidence %q: %w", fields[1], err)
		}
	}
	return relType, memory.Clamp01(confidence), nil
}
