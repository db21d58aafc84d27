package types

import (
	"fmt"
)

// Folder is a node in a collection's folder tree. Sibling folder names are
// unique; the tree is acyclic by construction.
type Folder struct {
	Name      string
	Folders   []*Folder
	Bookmarks []Bookmark
}

// Child returns the sub-folder with the given name, or nil.
func (f *Folder) Child(name string) *Folder {
	for _, sub := range f.Folders {
		if sub.Name == name {
			return sub
		}
	}
	return nil
}

// ensureChild returns the sub-folder with the given name, creating it if
// absent. Sibling uniqueness is preserved.
func (f *Folder) ensureChild(name string) *Folder {
	if sub := f.Child(name); sub != nil {
		return sub
	}
	sub := &Folder{Name: name}
	f.Folders = append(f.Folders, sub)
	return sub
}

// Collection is an ordered tree of folders holding bookmarks, tagged with its
// source and a version counter bumped on every mutation.
type Collection struct {
	Source  BrowserTag
	Version uint64
	Root    *Folder
}

// NewCollection creates an empty collection for the given source.
func NewCollection(source BrowserTag) *Collection {
	return &Collection{Source: source, Root: &Folder{}}
}

// EnsureFolder walks the path from the root, creating folders as needed, and
// returns the final folder. An empty path returns the root.
func (c *Collection) EnsureFolder(path []string) *Folder {
	cur := c.Root
	for _, name := range path {
		cur = cur.ensureChild(name)
	}
	return cur
}

// FolderAt returns the folder at path, or nil if any segment is missing.
func (c *Collection) FolderAt(path []string) *Folder {
	cur := c.Root
	for _, name := range path {
		cur = cur.Child(name)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Add inserts a bookmark under its FolderPath, creating folders as needed.
// It returns an error if the bookmark is invalid or its ID already exists.
func (c *Collection) Add(b Bookmark) error {
	if !b.Valid() {
		return fmt.Errorf("invalid bookmark %q: empty id or url", b.ID)
	}
	if existing := c.Find(b.ID); existing != nil {
		return fmt.Errorf("duplicate bookmark id %q", b.ID)
	}
	folder := c.EnsureFolder(b.FolderPath)
	folder.Bookmarks = append(folder.Bookmarks, b)
	c.Version++
	return nil
}

// Update replaces the bookmark with the same ID in place. The bookmark stays
// in its current folder; only URL, title and timestamp are updated.
func (c *Collection) Update(b Bookmark) error {
	var done bool
	c.walk(c.Root, nil, func(folder *Folder, _ []string) bool {
		for i := range folder.Bookmarks {
			if folder.Bookmarks[i].ID == b.ID {
				folder.Bookmarks[i].URL = b.URL
				folder.Bookmarks[i].Title = b.Title
				folder.Bookmarks[i].ModifiedAt = b.ModifiedAt
				done = true
				return false
			}
		}
		return true
	})
	if !done {
		return fmt.Errorf("bookmark id %q not found", b.ID)
	}
	c.Version++
	return nil
}

// Find returns the bookmark with the given ID, or nil.
func (c *Collection) Find(id string) *Bookmark {
	var found *Bookmark
	c.walk(c.Root, nil, func(folder *Folder, _ []string) bool {
		for i := range folder.Bookmarks {
			if folder.Bookmarks[i].ID == id {
				found = &folder.Bookmarks[i]
				return false
			}
		}
		return true
	})
	return found
}

// All returns every bookmark in the collection in tree order, with the
// FolderPath of each entry set to its actual location.
func (c *Collection) All() []Bookmark {
	var out []Bookmark
	c.walk(c.Root, nil, func(folder *Folder, path []string) bool {
		for _, b := range folder.Bookmarks {
			b.FolderPath = append([]string(nil), path...)
			out = append(out, b)
		}
		return true
	})
	return out
}

// Len returns the number of bookmarks in the collection.
func (c *Collection) Len() int {
	n := 0
	c.walk(c.Root, nil, func(folder *Folder, _ []string) bool {
		n += len(folder.Bookmarks)
		return true
	})
	return n
}

// Search returns bookmarks whose title or URL contains the query,
// case-insensitively.
func (c *Collection) Search(query string) []Bookmark {
	var out []Bookmark
	for _, b := range c.All() {
		if b.MatchesQuery(query) {
			out = append(out, b)
		}
	}
	return out
}

// walk visits folders depth-first. The visitor returns false to stop.
func (c *Collection) walk(f *Folder, path []string, visit func(*Folder, []string) bool) bool {
	if !visit(f, path) {
		return false
	}
	for _, sub := range f.Folders {
		if !c.walk(sub, append(path, sub.Name), visit) {
			return false
		}
	}
	return true
}
