// Package scoring maps message text to a bounded lead score used to pick the
// sales pitch.
package scoring

import "regexp"

// Score bounds. The scorer is pure: identical input always yields identical
// output, regardless of call order.
const (
	MinScore = 0
	MaxScore = 6
)

var (
	urgencyPattern   = regexp.MustCompile(`(?i)\b(crise|desesperad[oa]|urgente|emerg[eê]ncia)\b`)
	payingPattern    = regexp.MustCompile(`(?i)\b(cart[aã]o|pix|particular|posso pagar)\b`)
	objectionPattern = regexp.MustCompile(`(?i)\b(caro|muito caro|sem dinheiro|n[aã]o posso)\b`)
)

// Score returns the lead score for text: +3 for urgency signals, +2 for
// paying intent, -2 for price objection, clamped to [0,6].
func Score(text string) int {
	s := 0
	if urgencyPattern.MatchString(text) {
		s += 3
	}
	if payingPattern.MatchString(text) {
		s += 2
	}
	if objectionPattern.MatchString(text) {
		s -= 2
	}
	if s < MinScore {
		return MinScore
	}
	if s > MaxScore {
		return MaxScore
	}
	return s
}
