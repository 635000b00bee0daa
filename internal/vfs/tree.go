// Package vfs holds the in-memory staging tree of a project's output files.
package vfs

import (
	"iter"

	"go_sitegen/internal/model"
)

// File is one staged file
type File struct {
	Content     string
	Type        model.FileType
	SectionType string // empty when not tied to a content section
	TokensUsed  int
}

// Tree is an ordered path -> File mapping. Paths are taken verbatim.
// Overwriting a path keeps its original position. Not safe for concurrent use.
type Tree struct {
	order []string
	files map[string]File
}

// New returns an empty tree
func New() *Tree {
	return &Tree{files: make(map[string]File)}
}

// AddFile inserts or overwrites path; last write wins
func (t *Tree) AddFile(path, content string, kind model.FileType) {
	t.Put(path, File{Content: content, Type: kind})
}

// Put inserts or overwrites path with full file metadata
func (t *Tree) Put(path string, f File) {
	if _, ok := t.files[path]; !ok {
		t.order = append(t.order, path)
	}
	t.files[path] = f
}

// GetFile returns the file at path
func (t *Tree) GetFile(path string) (File, bool) {
	f, ok := t.files[path]
	return f, ok
}

// RemoveFile deletes path and reports whether it existed
func (t *Tree) RemoveFile(path string) bool {
	if _, ok := t.files[path]; !ok {
		return false
	}
	delete(t.files, path)
	for i, p := range t.order {
		if p == path {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// Entries yields (path, file) in insertion order. Each call starts over.
func (t *Tree) Entries() iter.Seq2[string, File] {
	return func(yield func(string, File) bool) {
		for _, p := range t.order {
			f, ok := t.files[p]
			if !ok {
				continue
			}
			if !yield(p, f) {
				return
			}
		}
	}
}

// Paths returns a copy of the paths in insertion order
func (t *Tree) Paths() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Size is the number of distinct paths
func (t *Tree) Size() int {
	return len(t.files)
}

// Merge copies every entry of other into t; other wins on collision
func (t *Tree) Merge(other *Tree) {
	if other == nil {
		return
	}
	for p, f := range other.Entries() {
		t.Put(p, f)
	}
}

// TotalTokens sums TokensUsed over all files
func (t *Tree) TotalTokens() int {
	total := 0
	for _, f := range t.files {
		total += f.TokensUsed
	}
	return total
}
