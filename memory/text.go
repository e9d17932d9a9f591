package memory

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/samber/lo"
)

// Words lower-cases text and splits it on anything that is not a letter or
// digit.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Tokenize returns the distinct Words of text in first-seen order.
func Tokenize(text string) []string {
	return lo.Uniq(Words(text))
}

// CosineSimilarity between two equal-length vectors. A zero vector on either
// side yields 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, NewDimensionMismatchError(fmt.Sprintf("vector lengths differ: %d != %d", len(a), len(b)))
	}
	var dot, na, nb float64
	for i := range a {
		fa, fb := float64(a[i]), float64(b[i])
		dot += fa * fb
		na += fa * fa
		nb += fb * fb
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// Rounding can push parallel vectors slightly past 1.
	return math.Max(-1, math.Min(1, sim)), nil
}
