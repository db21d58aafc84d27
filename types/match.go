package types

import "fmt"

// MatchKind classifies how strongly two URLs match.
type MatchKind int

// MatchKind values, strongest first. Classification returns the highest
// applicable kind only.
const (
	MatchNone MatchKind = iota
	MatchFuzzy
	MatchSubstring
	MatchWordBoundary
	MatchExact
)

func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "Exact"
	case MatchWordBoundary:
		return "WordBoundary"
	case MatchSubstring:
		return "Substring"
	case MatchFuzzy:
		return "Fuzzy"
	case MatchNone:
		return "None"
	default:
		return fmt.Sprintf("MatchKind(%d)", int(k))
	}
}

// Conclusive reports whether the kind resolves a duplicate without caller
// involvement.
func (k MatchKind) Conclusive() bool {
	return k == MatchExact || k == MatchWordBoundary
}

// SimilarityMatch is the result of classifying a pair of URLs. Transient,
// never persisted.
type SimilarityMatch struct {
	URLA string
	URLB string
	Kind MatchKind
	// Score is the normalized similarity ratio in [0,1]. Only meaningful
	// for Fuzzy and None kinds; structural kinds report 1.
	Score float64
}
