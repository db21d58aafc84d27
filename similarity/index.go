package similarity

import (
	"sort"

	"github.com/marksync/marksync/types"
)

// Index buckets a collection's bookmarks by domain so pairwise matching
// against tens of thousands of entries stays within interactive bounds. It
// is built once per merge and not safe for concurrent mutation.
type Index struct {
	buckets   map[string][]types.Bookmark
	threshold float64
}

// NewIndex builds an index over the given bookmarks.
func NewIndex(bookmarks []types.Bookmark, threshold float64) *Index {
	idx := &Index{
		buckets:   make(map[string][]types.Bookmark),
		threshold: threshold,
	}
	for _, b := range bookmarks {
		idx.Add(b)
	}
	return idx
}

// Add inserts a bookmark into its domain bucket.
func (idx *Index) Add(b types.Bookmark) {
	domain := Domain(Normalize(b.URL))
	idx.buckets[domain] = append(idx.buckets[domain], b)
}

// BestMatch classifies url against every bookmark sharing its domain and
// returns the strongest match together with the bookmark that produced it.
// Kind is MatchNone when the bucket holds nothing comparable.
func (idx *Index) BestMatch(url string) (types.Bookmark, types.SimilarityMatch) {
	var (
		best   types.SimilarityMatch
		bestBm types.Bookmark
	)
	best.Kind = types.MatchNone
	for _, candidate := range idx.buckets[Domain(Normalize(url))] {
		m := Classify(url, candidate.URL, idx.threshold)
		if m.Kind > best.Kind || (m.Kind == best.Kind && m.Score > best.Score) {
			best = m
			bestBm = candidate
			if best.Kind == types.MatchExact {
				break
			}
		}
	}
	return bestBm, best
}

// ScoredBookmark pairs a bookmark with its similarity score against a query
// URL.
type ScoredBookmark struct {
	Bookmark types.Bookmark
	Score    float64
}

// FindSimilar returns bookmarks in the same domain bucket whose similarity
// score against url meets the threshold, strongest first.
func (idx *Index) FindSimilar(url string, threshold float64) []ScoredBookmark {
	var out []ScoredBookmark
	for _, candidate := range idx.buckets[Domain(Normalize(url))] {
		m := Classify(url, candidate.URL, threshold)
		if m.Kind == types.MatchNone {
			continue
		}
		out = append(out, ScoredBookmark{Bookmark: candidate, Score: m.Score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
