// Package similarity scores how alike two task descriptions are, so
// near-duplicate tasks can be merged instead of scheduled twice.
package similarity

import (
	"strings"
	"unicode"
)

// Scorer judges the similarity of two task descriptions on a [0,1]
// scale. Implementations may be rule-based or learned; the scheduling
// core only consumes the score.
type Scorer interface {
	Score(a, b string) float64
}

// Decision classifies a similarity score against fixed thresholds.
type Decision string

const (
	// DecisionAutoMerge means the tasks are near-certain duplicates.
	DecisionAutoMerge Decision = "auto_merge"
	// DecisionConfirm means a human should decide.
	DecisionConfirm Decision = "confirm"
	// DecisionCreateNew means the tasks are distinct.
	DecisionCreateNew Decision = "create_new"
)

// Bands holds the classification thresholds. Scores at or above
// AutoMerge merge automatically; scores at or above Confirm ask for
// confirmation; anything lower creates a new task.
type Bands struct {
	AutoMerge float64
	Confirm   float64
}

// DefaultBands are the stock thresholds.
var DefaultBands = Bands{AutoMerge: 0.85, Confirm: 0.55}

// Classify maps a score into a decision.
func (b Bands) Classify(score float64) Decision {
	switch {
	case score >= b.AutoMerge:
		return DecisionAutoMerge
	case score >= b.Confirm:
		return DecisionConfirm
	default:
		return DecisionCreateNew
	}
}

// TokenOverlap is the default Scorer: Jaccard similarity over
// lowercased word tokens.
type TokenOverlap struct{}

// Score computes the ratio of shared to total distinct tokens. Two
// empty descriptions score 1; one empty description scores 0.
func (TokenOverlap) Score(a, b string) float64 {
	ta := tokens(a)
	tb := tokens(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	union := make(map[string]bool, len(ta)+len(tb))
	for tok := range ta {
		union[tok] = true
	}
	for tok := range tb {
		union[tok] = true
	}
	shared := 0
	for tok := range ta {
		if tb[tok] {
			shared++
		}
	}
	return float64(shared) / float64(len(union))
}

func tokens(s string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		out[tok] = true
	}
	return out
}

var _ Scorer = TokenOverlap{}
