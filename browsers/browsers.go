// Package browsers defines the narrow interfaces to the per-browser
// collaborators: parsers translating native bookmark storage into the common
// model, and persisters writing merged results back. The core never reads or
// writes browser files itself; one capability implementation per browser is
// registered here and selected by registry lookup.
package browsers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/marksync/marksync/types"
)

var (
	// ErrNotFound marks a browser with no bookmark storage present. The
	// core treats it as "no data available", not fatal.
	ErrNotFound = errors.New("bookmark storage not found")
	// ErrParse marks unreadable or malformed native storage.
	ErrParse = errors.New("bookmark storage unparseable")
)

// Parser reads a browser's native bookmark storage into the common model.
type Parser interface {
	// Browser returns the tag this parser serves.
	Browser() types.BrowserTag
	// Parse loads the collection. Fails with ErrNotFound or ErrParse.
	Parse(ctx context.Context) (*types.Collection, error)
}

// Persister writes a merge result back to a browser's native storage.
type Persister interface {
	// Browser returns the tag this persister serves.
	Browser() types.BrowserTag
	// Persist commits the merge result. The in-memory merge is never
	// rolled back on failure; the caller may retry independently.
	Persist(ctx context.Context, result *types.MergeResult) error
}

// Registry holds the registered per-browser capabilities.
type Registry struct {
	mu         sync.RWMutex
	parsers    map[types.BrowserTag]Parser
	persisters map[types.BrowserTag]Persister
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		parsers:    make(map[types.BrowserTag]Parser),
		persisters: make(map[types.BrowserTag]Persister),
	}
}

// RegisterParser adds a parser for its browser, replacing any previous one.
func (r *Registry) RegisterParser(p Parser) {
	r.mu.Lock()
	r.parsers[p.Browser()] = p
	r.mu.Unlock()
}

// RegisterPersister adds a persister for its browser.
func (r *Registry) RegisterPersister(p Persister) {
	r.mu.Lock()
	r.persisters[p.Browser()] = p
	r.mu.Unlock()
}

// Parser returns the parser for the tag.
func (r *Registry) Parser(tag types.BrowserTag) (Parser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parsers[tag]
	if !ok {
		return nil, fmt.Errorf("%w: no parser for %s", ErrNotFound, tag)
	}
	return p, nil
}

// Persister returns the persister for the tag.
func (r *Registry) Persister(tag types.BrowserTag) (Persister, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.persisters[tag]
	if !ok {
		return nil, fmt.Errorf("%w: no persister for %s", ErrNotFound, tag)
	}
	return p, nil
}

// SupportedBrowsers lists the tags with a registered parser, sorted.
func (r *Registry) SupportedBrowsers() []types.BrowserTag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.BrowserTag, 0, len(r.parsers))
	for tag := range r.parsers {
		out = append(out, tag)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseBrowserBookmarks loads the collection for the tag, mapping a missing
// parser to ErrNotFound.
func (r *Registry) ParseBrowserBookmarks(ctx context.Context, tag types.BrowserTag) (*types.Collection, error) {
	p, err := r.Parser(tag)
	if err != nil {
		return nil, err
	}
	return p.Parse(ctx)
}

// PersistMergedCollection writes the merge result back through the
// registered persister for the tag.
func (r *Registry) PersistMergedCollection(ctx context.Context, result *types.MergeResult, tag types.BrowserTag) error {
	p, err := r.Persister(tag)
	if err != nil {
		return err
	}
	return p.Persist(ctx, result)
}
