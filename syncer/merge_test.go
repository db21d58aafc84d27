package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marksync/marksync/types"
)

func defaultPolicy() Policy {
	return Policy{FuzzyThreshold: 0.8, TieBreak: TieLocal}
}

func entry(id, url string, modified int64, path ...string) types.Bookmark {
	return types.Bookmark{
		ID:         id,
		URL:        url,
		Title:      id,
		FolderPath: path,
		Browser:    types.BrowserChrome,
		ModifiedAt: time.Unix(modified, 0),
	}
}

func TestMergeAddsUnmatched(t *testing.T) {
	r := require.New(t)
	local := types.NewCollection(types.BrowserChrome)
	r.NoError(local.Add(entry("local-1", "https://example.com/existing", 100)))

	incoming := []types.Bookmark{
		entry("remote-1", "https://other.org/new", 100, "Work", "Projects"),
	}
	result := Merge(local, incoming, defaultPolicy())

	r.Len(result.Added, 1)
	r.Empty(result.Updated)
	r.Empty(result.Duplicates)
	r.Empty(result.Candidates)

	// landed under its original folder path, created on demand
	folder := local.FolderAt([]string{"Work", "Projects"})
	r.NotNil(folder)
	r.Len(folder.Bookmarks, 1)
	r.Equal(2, local.Len())
}

func TestMergeExactKeepsNewer(t *testing.T) {
	r := require.New(t)
	local := types.NewCollection(types.BrowserChrome)
	r.NoError(local.Add(entry("local-1", "https://example.com/page", 100)))

	// same page, fresher remote copy, cosmetic URL differences
	in := entry("remote-1", "https://www.example.com/page/", 200)
	in.Title = "fresher"
	result := Merge(local, []types.Bookmark{in}, defaultPolicy())

	r.Empty(result.Added)
	r.Len(result.Updated, 1)
	r.Len(result.Duplicates, 1)
	r.Equal(types.MatchExact, result.Duplicates[0].Kind)
	r.False(result.Duplicates[0].KeptLocal)

	got := local.Find("local-1")
	r.NotNil(got)
	r.Equal("fresher", got.Title)
	r.Equal(1, local.Len())
}

func TestMergeExactKeepsLocalWhenNewer(t *testing.T) {
	r := require.New(t)
	local := types.NewCollection(types.BrowserChrome)
	r.NoError(local.Add(entry("local-1", "https://example.com/page", 200)))

	stale := entry("remote-1", "https://example.com/page", 100)
	stale.Title = "stale"
	result := Merge(local, []types.Bookmark{stale}, defaultPolicy())

	r.Empty(result.Updated)
	r.Len(result.Duplicates, 1)
	r.True(result.Duplicates[0].KeptLocal)
	r.Equal("local-1", local.Find("local-1").Title)
}

func TestMergeTieBreak(t *testing.T) {
	r := require.New(t)
	for _, tc := range []struct {
		tie       TieBreak
		keptLocal bool
	}{
		{TieLocal, true},
		{TieRemote, false},
	} {
		local := types.NewCollection(types.BrowserChrome)
		r.NoError(local.Add(entry("local-1", "https://example.com/page", 100)))

		in := entry("remote-1", "https://example.com/page", 100)
		in.Title = "remote"
		policy := defaultPolicy()
		policy.TieBreak = tc.tie
		result := Merge(local, []types.Bookmark{in}, policy)

		r.Len(result.Duplicates, 1)
		r.Equal(tc.keptLocal, result.Duplicates[0].KeptLocal)
	}
}

func TestMergeWordBoundaryResolvesAutomatically(t *testing.T) {
	r := require.New(t)
	local := types.NewCollection(types.BrowserChrome)
	r.NoError(local.Add(entry("local-1", "https://example.com/docs", 100)))

	in := entry("remote-1", "https://example.com/docs-archive", 200)
	result := Merge(local, []types.Bookmark{in}, defaultPolicy())

	r.Len(result.Duplicates, 1)
	r.Equal(types.MatchWordBoundary, result.Duplicates[0].Kind)
	r.Empty(result.Candidates)
	r.Empty(result.Added)
}

func TestMergeFuzzySurfacesCandidate(t *testing.T) {
	r := require.New(t)
	local := types.NewCollection(types.BrowserChrome)
	r.NoError(local.Add(entry("local-1", "https://example.com/documentation", 100)))

	in := entry("remote-1", "https://example.com/documentatoin", 200)
	policy := defaultPolicy()
	policy.FuzzyThreshold = 0.5
	result := Merge(local, []types.Bookmark{in}, policy)

	r.Empty(result.Added)
	r.Empty(result.Updated)
	r.Len(result.Candidates, 1)
	r.Equal("local-1", result.Candidates[0].Local.ID)
	r.Equal("remote-1", result.Candidates[0].Incoming.ID)
	r.Greater(result.Candidates[0].Score, 0.5)
	// the ambiguous copy is not merged
	r.Equal(1, local.Len())
}

func TestMergeAddsDistinctSiblingPages(t *testing.T) {
	r := require.New(t)
	local := types.NewCollection(types.BrowserChrome)
	r.NoError(local.Add(entry("local-1", "https://example.com/a", 100)))

	in := entry("remote-1", "https://example.com/b", 100)
	result := Merge(local, []types.Bookmark{in}, defaultPolicy())

	r.Len(result.Added, 1)
	r.Empty(result.Candidates)
	r.Equal(2, local.Len())
}

func TestMergeIDCollisionGetsFreshID(t *testing.T) {
	r := require.New(t)
	local := types.NewCollection(types.BrowserChrome)
	r.NoError(local.Add(entry("shared-id", "https://example.com/a", 100)))

	in := entry("shared-id", "https://unrelated.org/b", 100)
	result := Merge(local, []types.Bookmark{in}, defaultPolicy())

	r.Len(result.Added, 1)
	r.NotEqual("shared-id", result.Added[0].ID)
	r.Equal(2, local.Len())
}

func TestMergeSkipsInvalid(t *testing.T) {
	local := types.NewCollection(types.BrowserChrome)
	result := Merge(local, []types.Bookmark{{ID: "x"}, {URL: "https://example.com"}}, defaultPolicy())
	require.True(t, result.Empty())
	require.Zero(t, local.Len())
}

func TestMergeIdempotent(t *testing.T) {
	r := require.New(t)
	local := types.NewCollection(types.BrowserChrome)
	r.NoError(local.Add(entry("local-1", "https://example.com/page", 100)))

	incoming := []types.Bookmark{
		entry("remote-1", "https://example.com/page", 200),
		entry("remote-2", "https://other.org/fresh", 150, "Reading"),
	}

	first := Merge(local, incoming, defaultPolicy())
	r.Len(first.Added, 1)
	r.Len(first.Updated, 1)

	second := Merge(local, incoming, defaultPolicy())
	r.Empty(second.Added)
	r.Empty(second.Updated)
	// duplicates are still reported, but everything is kept local now
	for _, d := range second.Duplicates {
		r.True(d.KeptLocal)
	}
	r.Equal(2, local.Len())
}

func TestMergeNeverDeletes(t *testing.T) {
	r := require.New(t)
	local := types.NewCollection(types.BrowserChrome)
	for _, b := range []types.Bookmark{
		entry("a", "https://example.com/a", 100),
		entry("b", "https://example.com/b", 100, "Work"),
		entry("c", "https://example.com/c", 100),
	} {
		r.NoError(local.Add(b))
	}

	Merge(local, []types.Bookmark{entry("remote", "https://example.com/a", 500)}, defaultPolicy())
	r.Equal(3, local.Len())
	for _, id := range []string{"a", "b", "c"} {
		r.NotNil(local.Find(id))
	}
}
