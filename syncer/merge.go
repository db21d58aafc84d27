package syncer

import (
	"github.com/google/uuid"

	"github.com/marksync/marksync/similarity"
	"github.com/marksync/marksync/types"
)

// Policy controls duplicate resolution during a merge.
type Policy struct {
	// FuzzyThreshold gates the Fuzzy similarity kind.
	FuzzyThreshold float64
	// TieBreak picks the survivor when duplicate timestamps are equal.
	TieBreak TieBreak
}

// Merge reconciles incoming bookmarks against the local collection, applying
// the changes in memory and returning them as a MergeResult for the
// persistence collaborator. The merge never deletes local bookmarks.
//
// Duplicate policy: an Exact or WordBoundary match resolves automatically,
// keeping the copy with the later timestamp (the tie break picks the local
// copy unless configured otherwise). A Substring or Fuzzy match is
// ambiguous; the pair is surfaced as a duplicate candidate and the incoming
// copy is not merged. Unmatched bookmarks are added under their original
// folder path, which is created locally when absent.
//
// The operation is idempotent: merging the same incoming set again yields
// empty add and update sets, because every previously added bookmark now
// matches itself exactly with an equal timestamp.
func Merge(local *types.Collection, incoming []types.Bookmark, policy Policy) *types.MergeResult {
	result := &types.MergeResult{}
	idx := similarity.NewIndex(local.All(), policy.FuzzyThreshold)

	for _, in := range incoming {
		if !in.Valid() {
			continue
		}
		matched, m := idx.BestMatch(in.URL)
		switch {
		case m.Kind.Conclusive():
			dup := types.ResolvedDuplicate{
				Local:    matched,
				Incoming: in,
				Kind:     m.Kind,
			}
			if incomingWins(matched, in, policy.TieBreak) {
				updated := matched
				updated.URL = in.URL
				updated.Title = in.Title
				updated.ModifiedAt = in.ModifiedAt
				if err := local.Update(updated); err == nil {
					result.Updated = append(result.Updated, updated)
				}
			} else {
				dup.KeptLocal = true
			}
			result.Duplicates = append(result.Duplicates, dup)

		case m.Kind != types.MatchNone:
			result.Candidates = append(result.Candidates, types.DuplicateCandidate{
				Local:    matched,
				Incoming: in,
				Score:    m.Score,
			})

		default:
			added := in
			// incoming IDs are only unique within their own source
			if local.Find(added.ID) != nil {
				added.ID = uuid.NewString()
			}
			if err := local.Add(added); err != nil {
				continue
			}
			idx.Add(added)
			result.Added = append(result.Added, added)
		}
	}
	return result
}

func incomingWins(local, incoming types.Bookmark, tie TieBreak) bool {
	if incoming.ModifiedAt.After(local.ModifiedAt) {
		return true
	}
	if incoming.ModifiedAt.Equal(local.ModifiedAt) {
		return tie == TieRemote
	}
	return false
}
