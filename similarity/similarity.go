// Package similarity classifies pairs of URLs by match strength. It is the
// pure, stateless core used by the sync engine's duplicate detection.
package similarity

import (
	"net/url"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/marksync/marksync/types"
)

// DefaultFuzzyThreshold is the score at or above which a pair with no
// structural match is classified Fuzzy.
const DefaultFuzzyThreshold = 0.8

// fuzzyWeight scales the levenshtein ratio before it is compared against the
// threshold. Structural tiers score 1.0; capping the ratio tier at 0.7 keeps
// pure string similarity from crossing the default threshold, so short
// same-domain URLs with unrelated paths are not mistaken for duplicates.
const fuzzyWeight = 0.7

// boundary chars that make a prefix a word-boundary match.
const boundaryChars = "/-_"

// Normalize canonicalizes a URL for comparison: lowercases it, drops the
// scheme, a leading www., the default port, query and fragment, and any
// trailing slash. Unparseable input falls back to the lowercased raw string.
func Normalize(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	parseable := lowered
	if !strings.Contains(parseable, "://") {
		parseable = "http://" + parseable
	}
	u, err := url.Parse(parseable)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(lowered, "/")
	}
	host := u.Host
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimSuffix(host, ":80")
	host = strings.TrimSuffix(host, ":443")
	path := strings.TrimSuffix(u.Path, "/")
	return host + path
}

// Domain returns the host part of a normalized URL, used for bucketing.
func Domain(normalized string) string {
	if i := strings.IndexByte(normalized, '/'); i >= 0 {
		return normalized[:i]
	}
	return normalized
}

// Classify compares two URLs and returns the strongest applicable match
// kind. It is deterministic and symmetric. threshold gates the Fuzzy kind;
// pass DefaultFuzzyThreshold unless configured otherwise.
func Classify(urlA, urlB string, threshold float64) types.SimilarityMatch {
	m := types.SimilarityMatch{URLA: urlA, URLB: urlB}
	na, nb := Normalize(urlA), Normalize(urlB)

	if na == nb {
		m.Kind = types.MatchExact
		m.Score = 1
		return m
	}

	short, long := na, nb
	if len(short) > len(long) {
		short, long = long, short
	}

	if strings.HasPrefix(long, short) && strings.IndexByte(boundaryChars, long[len(short)]) >= 0 {
		m.Kind = types.MatchWordBoundary
		m.Score = 1
		return m
	}

	if strings.Contains(long, short) {
		m.Kind = types.MatchSubstring
		m.Score = 1
		return m
	}

	ratio := levenshtein.Similarity(na, nb, levenshtein.NewParams())
	m.Score = fuzzyWeight * ratio
	if m.Score >= threshold {
		m.Kind = types.MatchFuzzy
	} else {
		m.Kind = types.MatchNone
	}
	return m
}
