// Package workspace is the registry of open documents. It stands in for the
// host editor's buffer list: every document has a stable id, a path, and an
// anchor table that line edits are applied to.
package workspace

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/entrhq/waymark/pkg/anchor"
	"github.com/entrhq/waymark/pkg/types"
)

// Document is an open document.
type Document struct {
	ID   string
	Path string

	// Listed documents are visible to the user and take part in identity
	// sweeps. Scratch and help documents are unlisted.
	Listed bool

	Anchors *anchor.Table
}

// Named reports whether the document is backed by a file path.
func (d *Document) Named() bool {
	return d.Path != ""
}

// OpenOption customizes Open.
type OpenOption func(*Document)

// Unlisted opens the document as unlisted.
func Unlisted() OpenOption {
	return func(d *Document) { d.Listed = false }
}

// Workspace tracks open documents in open order.
type Workspace struct {
	mu     sync.RWMutex
	docs   map[string]*Document
	byPath map[string]string
	order  []string
}

// New creates an empty workspace.
func New() *Workspace {
	return &Workspace{
		docs:   make(map[string]*Document),
		byPath: make(map[string]string),
	}
}

// Open registers path with lineCount lines. Opening a path that is already
// open returns the existing document with created false. An empty path opens
// an unnamed document.
func (w *Workspace) Open(path string, lineCount int, opts ...OpenOption) (doc *Document, created bool) {
	if path != "" {
		path = filepath.Clean(path)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if path != "" {
		if id, ok := w.byPath[path]; ok {
			return w.docs[id], false
		}
	}

	doc = &Document{
		ID:      uuid.New().String(),
		Path:    path,
		Listed:  true,
		Anchors: anchor.NewTable(lineCount),
	}
	for _, opt := range opts {
		opt(doc)
	}

	w.docs[doc.ID] = doc
	if path != "" {
		w.byPath[path] = doc.ID
	}
	w.order = append(w.order, doc.ID)
	return doc, true
}

// Get returns the document with the given id.
func (w *Workspace) Get(id string) (*Document, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	doc, ok := w.docs[id]
	return doc, ok
}

// FindByPath returns the open document for path.
func (w *Workspace) FindByPath(path string) (*Document, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	id, ok := w.byPath[filepath.Clean(path)]
	if !ok {
		return nil, false
	}
	return w.docs[id], true
}

// Lookup returns the path and anchor table of a document.
func (w *Workspace) Lookup(id string) (path string, anchors *anchor.Table, ok bool) {
	doc, ok := w.Get(id)
	if !ok {
		return "", nil, false
	}
	return doc.Path, doc.Anchors, true
}

// Close forgets the document and its anchors.
func (w *Workspace) Close(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	doc, ok := w.docs[id]
	if !ok {
		return fmt.Errorf("workspace: %w: %s", types.ErrUnknownDocument, id)
	}
	doc.Anchors.Clear()
	delete(w.docs, id)
	if doc.Path != "" {
		delete(w.byPath, doc.Path)
	}
	for i, other := range w.order {
		if other == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	return nil
}

// Documents returns every open document in open order.
func (w *Workspace) Documents() []*Document {
	w.mu.RLock()
	defer w.mu.RUnlock()
	docs := make([]*Document, 0, len(w.order))
	for _, id := range w.order {
		docs = append(docs, w.docs[id])
	}
	return docs
}

// ListedIDs returns the ids of listed, named documents in open order.
func (w *Workspace) ListedIDs() []string {
	var ids []string
	for _, doc := range w.Documents() {
		if doc.Listed && doc.Named() {
			ids = append(ids, doc.ID)
		}
	}
	return ids
}

// InsertLines applies a line insertion to the document's anchors.
func (w *Workspace) InsertLines(id string, at, n int) error {
	doc, err := w.mustGet(id)
	if err != nil {
		return err
	}
	doc.Anchors.InsertLines(at, n)
	return nil
}

// DeleteLines applies a line deletion to the document's anchors.
func (w *Workspace) DeleteLines(id string, from, n int) error {
	doc, err := w.mustGet(id)
	if err != nil {
		return err
	}
	doc.Anchors.DeleteLines(from, n)
	return nil
}

// ReplaceLines applies a replacement of oldCount lines by newCount lines.
func (w *Workspace) ReplaceLines(id string, from, oldCount, newCount int) error {
	doc, err := w.mustGet(id)
	if err != nil {
		return err
	}
	doc.Anchors.ReplaceLines(from, oldCount, newCount)
	return nil
}

// Truncate resizes the document to lineCount lines, as after a reload.
func (w *Workspace) Truncate(id string, lineCount int) error {
	doc, err := w.mustGet(id)
	if err != nil {
		return err
	}
	doc.Anchors.SetLineCount(lineCount)
	return nil
}

func (w *Workspace) mustGet(id string) (*Document, error) {
	doc, ok := w.Get(id)
	if !ok {
		return nil, fmt.Errorf("workspace: %w: %s", types.ErrUnknownDocument, id)
	}
	return doc, nil
}
