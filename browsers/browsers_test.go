package browsers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marksync/marksync/types"
)

type fakeParser struct {
	tag  types.BrowserTag
	coll *types.Collection
	err  error
}

func (p *fakeParser) Browser() types.BrowserTag { return p.tag }

func (p *fakeParser) Parse(context.Context) (*types.Collection, error) {
	return p.coll, p.err
}

type fakePersister struct {
	tag  types.BrowserTag
	got  *types.MergeResult
	err  error
}

func (p *fakePersister) Browser() types.BrowserTag { return p.tag }

func (p *fakePersister) Persist(_ context.Context, result *types.MergeResult) error {
	p.got = result
	return p.err
}

func TestRegistryLookup(t *testing.T) {
	r := require.New(t)
	reg := NewRegistry()

	_, err := reg.Parser(types.BrowserChrome)
	r.ErrorIs(err, ErrNotFound)
	_, err = reg.Persister(types.BrowserChrome)
	r.ErrorIs(err, ErrNotFound)

	coll := types.NewCollection(types.BrowserChrome)
	reg.RegisterParser(&fakeParser{tag: types.BrowserChrome, coll: coll})
	reg.RegisterParser(&fakeParser{tag: types.BrowserFirefox, coll: coll})

	p, err := reg.Parser(types.BrowserChrome)
	r.NoError(err)
	r.Equal(types.BrowserChrome, p.Browser())

	r.Equal([]types.BrowserTag{types.BrowserChrome, types.BrowserFirefox}, reg.SupportedBrowsers())
}

func TestParseBrowserBookmarks(t *testing.T) {
	r := require.New(t)
	reg := NewRegistry()
	coll := types.NewCollection(types.BrowserFirefox)
	reg.RegisterParser(&fakeParser{tag: types.BrowserFirefox, coll: coll})

	got, err := reg.ParseBrowserBookmarks(context.Background(), types.BrowserFirefox)
	r.NoError(err)
	r.Same(coll, got)

	_, err = reg.ParseBrowserBookmarks(context.Background(), types.BrowserSafari)
	r.ErrorIs(err, ErrNotFound)

	reg.RegisterParser(&fakeParser{tag: types.BrowserSafari, err: ErrParse})
	_, err = reg.ParseBrowserBookmarks(context.Background(), types.BrowserSafari)
	r.ErrorIs(err, ErrParse)
}

func TestPersistMergedCollection(t *testing.T) {
	r := require.New(t)
	reg := NewRegistry()
	sink := &fakePersister{tag: types.BrowserChrome}
	reg.RegisterPersister(sink)

	result := &types.MergeResult{Added: []types.Bookmark{{ID: "a", URL: "https://example.com"}}}
	r.NoError(reg.PersistMergedCollection(context.Background(), result, types.BrowserChrome))
	r.Same(result, sink.got)

	r.ErrorIs(reg.PersistMergedCollection(context.Background(), result, types.BrowserEdge), ErrNotFound)
}
