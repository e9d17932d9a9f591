package search

import (
	"strings"

	"github.com/samber/lo"

	"github.com/aschepis/backscratcher/memtier/memory"
)

const (
	coverageWeight = 0.7
	phraseWeight   = 0.3
)

// LexicalScore rates content against a query: the share of query tokens
// found in the content plus a bonus when the whole phrase appears.
func LexicalScore(query, content string) float64 {
	tokens := memory.Tokenize(query)
	if len(tokens) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	found := lo.CountBy(tokens, func(tok string) bool { return strings.Contains(lower, tok) })
	score := coverageWeight * float64(found) / float64(len(tokens))
	if found == len(tokens) {
		phrase := " " + strings.Join(memory.Words(query), " ") + " "
		if strings.Contains(" "+strings.Join(memory.Words(content), " ")+" ", phrase) {
			score += phraseWeight
		}
	}
	return score
}
