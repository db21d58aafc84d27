package types

// ResolvedDuplicate records a duplicate pair the merge resolved on its own,
// together with the kind of match that proved it.
type ResolvedDuplicate struct {
	Local    Bookmark
	Incoming Bookmark
	Kind     MatchKind
	// KeptLocal is true when the local copy survived.
	KeptLocal bool
}

// DuplicateCandidate is a fuzzy pair the merge could not resolve on its own.
// It is surfaced to the caller for a manual decision.
type DuplicateCandidate struct {
	Local    Bookmark
	Incoming Bookmark
	Score    float64
}

// MergeResult is the outcome of a two-way sync. It preserves the folder
// structure of the recipient collection and is handed off to the external
// persistence collaborator; the merge never deletes local bookmarks.
type MergeResult struct {
	// Added are incoming bookmarks with no local match, keeping their
	// original folder paths.
	Added []Bookmark
	// Updated are local bookmarks replaced by a fresher incoming copy.
	Updated []Bookmark
	// Duplicates are pairs resolved automatically by the timestamp policy.
	Duplicates []ResolvedDuplicate
	// Candidates are ambiguous fuzzy pairs requiring caller decision.
	Candidates []DuplicateCandidate
}

// Empty reports whether the merge changed nothing and surfaced nothing.
func (r *MergeResult) Empty() bool {
	return len(r.Added) == 0 && len(r.Updated) == 0 && len(r.Candidates) == 0
}
