// Package types defines the normalized bookmark model shared by all marksync
// components, along with peer registry entries and merge results.
package types

import (
	"strings"
	"time"
)

// BrowserTag identifies the browser a collection or bookmark originated from.
type BrowserTag string

// Known browser tags. Parsers for these are registered by the external
// per-browser collaborators, not by the core.
const (
	BrowserChrome  BrowserTag = "Chrome"
	BrowserFirefox BrowserTag = "Firefox"
	BrowserSafari  BrowserTag = "Safari"
	BrowserEdge    BrowserTag = "Edge"
	BrowserBrave   BrowserTag = "Brave"
	BrowserOpera   BrowserTag = "Opera"
	BrowserVivaldi BrowserTag = "Vivaldi"
	BrowserUnknown BrowserTag = "Unknown"
)

// Bookmark is a single bookmark entry, normalized from whatever native
// storage the source browser keeps.
type Bookmark struct {
	// ID is stable within its source collection.
	ID string
	// URL is the bookmark target. Never empty for a valid bookmark.
	URL string
	// Title is the user-visible name.
	Title string
	// FolderPath is the ordered sequence of folder names owning this
	// bookmark, root first. Empty means the collection root.
	FolderPath []string
	// Browser tags the source the bookmark came from.
	Browser BrowserTag
	// ModifiedAt is the last-modified timestamp used for duplicate
	// resolution.
	ModifiedAt time.Time
}

// Valid reports whether the bookmark satisfies the model invariants.
func (b *Bookmark) Valid() bool {
	return b.ID != "" && b.URL != ""
}

// PathString renders the owning folder path as a single /-joined string.
func (b *Bookmark) PathString() string {
	return strings.Join(b.FolderPath, "/")
}

// MatchesQuery reports whether the bookmark title or URL contains the query,
// case-insensitively.
func (b *Bookmark) MatchesQuery(query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(b.Title), q) ||
		strings.Contains(strings.ToLower(b.URL), q)
}
