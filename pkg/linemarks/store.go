// Package linemarks keeps per-document line bookmarks.
//
// Each open document has an ordered list of {line, col} marks. Every mark
// owns an anchor in the document's anchor table so it follows its line as
// text is edited; the stored line number catches up with the anchor when
// Update runs. Writes are debounced per document and only happen when the
// list differs from what was last written.
//
// A Store is not safe for concurrent use. Call it from the scheduler loop.
package linemarks

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/entrhq/waymark/pkg/anchor"
	"github.com/entrhq/waymark/pkg/fsutil"
	"github.com/entrhq/waymark/pkg/identity"
	"github.com/entrhq/waymark/pkg/logging"
	"github.com/entrhq/waymark/pkg/scheduler"
	"github.com/entrhq/waymark/pkg/types"
)

// DefaultDebounce is the quiet period before a document's marks are written.
const DefaultDebounce = 100 * time.Millisecond

// ErrNotLoaded is returned when a document's marks cannot be loaded, such as
// for a document without a path.
var ErrNotLoaded = errors.New("linemarks: document not loaded")

// Bookmark is one line mark.
type Bookmark struct {
	Line int `json:"line"`
	Col  int `json:"col"`

	anchor anchor.ID
}

// Documents resolves document ids to their path and anchor table.
type Documents interface {
	Lookup(id string) (path string, anchors *anchor.Table, ok bool)
}

// Identity supplies the branch key marks are stored under.
type Identity interface {
	BranchKey() string
}

// WriteFunc persists data at path.
type WriteFunc func(path string, data []byte, perm os.FileMode) error

// Options configures a Store.
type Options struct {
	// Dir holds the backing files, normally <save_path>/lines.
	Dir string

	// Debounce delays writes. Zero means DefaultDebounce.
	Debounce time.Duration

	// SortOnWrite orders marks by line before each write.
	SortOnWrite bool

	// WriteFile replaces fsutil.WriteFileAtomic.
	WriteFile WriteFunc
}

type docState struct {
	marks  []Bookmark
	loaded bool

	// synced is the list as last written or read.
	synced    []Bookmark
	hasSynced bool

	timer scheduler.Timer

	// file is the backing file chosen at load time. Writes go here even if
	// the identity has changed since, so a flush before a migration lands
	// under the old identity.
	file string
}

// Store is the line-level bookmark store.
type Store struct {
	opts     Options
	identity Identity
	docs     Documents
	sched    scheduler.Scheduler
	emitter  types.Emitter
	logger   *logging.Logger

	states map[string]*docState
}

// New creates a store.
func New(opts Options, identity Identity, docs Documents, sched scheduler.Scheduler, emitter types.Emitter, logger *logging.Logger) *Store {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.WriteFile == nil {
		opts.WriteFile = fsutil.WriteFileAtomic
	}
	if emitter == nil {
		emitter = types.NopEmitter
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Store{
		opts:     opts,
		identity: identity,
		docs:     docs,
		sched:    sched,
		emitter:  emitter,
		logger:   logger,
		states:   make(map[string]*docState),
	}
}

// FileFor returns the backing file for the document path under the current
// identity.
func (s *Store) FileFor(path string) string {
	return filepath.Join(s.opts.Dir, s.identity.BranchKey(), identity.DocumentKey(path))
}

func (s *Store) lookup(doc string) (string, *anchor.Table, error) {
	path, anchors, ok := s.docs.Lookup(doc)
	if !ok {
		return "", nil, fmt.Errorf("linemarks: %w: %s", types.ErrUnknownDocument, doc)
	}
	return path, anchors, nil
}

// Loaded reports whether the document's marks are in memory.
func (s *Store) Loaded(doc string) bool {
	st, ok := s.states[doc]
	return ok && st.loaded
}

// LoadedIDs returns the ids of every loaded document.
func (s *Store) LoadedIDs() []string {
	ids := make([]string, 0, len(s.states))
	for id, st := range s.states {
		if st.loaded {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Load reads the document's marks from disk and places their anchors. It
// does nothing when the marks are loaded and unchanged since the last sync.
// A missing file loads as an empty list. A file that cannot be decoded also
// loads as empty and raises a warning; the file itself is left alone.
func (s *Store) Load(doc string) error {
	path, anchors, err := s.lookup(doc)
	if err != nil {
		return err
	}
	if path == "" {
		return fmt.Errorf("%w: %s has no path", ErrNotLoaded, doc)
	}

	st := s.states[doc]
	if st != nil && st.loaded && st.hasSynced && equal(st.marks, st.synced) {
		return nil
	}

	file := s.FileFor(path)
	marks, err := s.read(doc, file)
	if err != nil {
		return err
	}

	if st == nil {
		st = &docState{}
		s.states[doc] = st
	}
	for _, m := range st.marks {
		anchors.Remove(m.anchor)
	}
	for i := range marks {
		marks[i].anchor = anchors.Set(marks[i].Line)
	}

	st.marks = marks
	st.synced = clone(marks)
	st.hasSynced = true
	st.loaded = true
	st.file = file

	s.emitter.Emit(types.NewMarksUpdatedEvent(doc))
	return nil
}

func (s *Store) read(doc, file string) ([]Bookmark, error) {
	data, err := fsutil.ReadFileOrEmpty(file)
	if err != nil {
		s.logger.Warnf("reading line bookmarks for %s: %v", doc, err)
		return nil, nil
	}

	marks, err := decode(data)
	if err != nil {
		msg := fmt.Sprintf("ignoring corrupt bookmark file %s: %v", file, err)
		s.logger.Warnf("%s", msg)
		s.emitter.Emit(types.NewWarningEvent(doc, msg))
		return nil, nil
	}
	return marks, nil
}

// decode parses the JSON array format. Empty content is an empty list.
func decode(data []byte) ([]Bookmark, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var raw []Bookmark
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	marks := make([]Bookmark, 0, len(raw))
	for _, m := range raw {
		if m.Line < 1 {
			continue
		}
		if m.Col < 0 {
			m.Col = 0
		}
		marks = append(marks, m)
	}
	return marks, nil
}

// encode produces the JSON array format. An empty list encodes as nothing.
func encode(marks []Bookmark) ([]byte, error) {
	if len(marks) == 0 {
		return []byte{}, nil
	}
	return json.Marshal(marks)
}

// ensureLoaded returns the document's state, loading it first if needed.
func (s *Store) ensureLoaded(doc string) (*docState, *anchor.Table, error) {
	if !s.Loaded(doc) {
		if err := s.Load(doc); err != nil {
			return nil, nil, err
		}
	}
	_, anchors, err := s.lookup(doc)
	if err != nil {
		return nil, nil, err
	}
	return s.states[doc], anchors, nil
}

// Save adds a mark at line and col. An identical mark is not added twice.
func (s *Store) Save(doc string, line, col int) error {
	if line < 1 {
		return fmt.Errorf("linemarks: invalid line %d", line)
	}
	if col < 0 {
		col = 0
	}

	st, anchors, err := s.ensureLoaded(doc)
	if err != nil {
		return err
	}
	for _, m := range st.marks {
		if m.Line == line && m.Col == col {
			return nil
		}
	}

	st.marks = append(st.marks, Bookmark{Line: line, Col: col, anchor: anchors.Set(line)})
	s.changed(doc)
	return nil
}

// Remove deletes the mark at the 1-based index. An unloaded document or an
// index out of range does nothing.
func (s *Store) Remove(index int, doc string) {
	st := s.states[doc]
	if st == nil || !st.loaded || index < 1 || index > len(st.marks) {
		return
	}
	if _, anchors, err := s.lookup(doc); err == nil {
		anchors.Remove(st.marks[index-1].anchor)
	}
	st.marks = append(st.marks[:index-1], st.marks[index:]...)
	s.changed(doc)
}

// RemoveAtLine deletes every mark currently on line, following anchors that
// have moved since the last Update. It reports whether anything was removed.
func (s *Store) RemoveAtLine(doc string, line int) bool {
	st := s.states[doc]
	if st == nil || !st.loaded {
		return false
	}
	_, anchors, err := s.lookup(doc)
	if err != nil {
		return false
	}

	kept := st.marks[:0]
	removed := false
	for _, m := range st.marks {
		if currentLine(anchors, m) == line {
			anchors.Remove(m.anchor)
			removed = true
			continue
		}
		kept = append(kept, m)
	}
	st.marks = kept
	if removed {
		s.changed(doc)
	}
	return removed
}

// Toggle removes the marks on line if there are any and adds one otherwise.
func (s *Store) Toggle(doc string, line, col int) error {
	if _, _, err := s.ensureLoaded(doc); err != nil {
		return err
	}
	if s.RemoveAtLine(doc, line) {
		return nil
	}
	return s.Save(doc, line, col)
}

// Clear removes every mark and anchor of the document.
func (s *Store) Clear(doc string) error {
	st, anchors, err := s.ensureLoaded(doc)
	if err != nil {
		return err
	}
	st.marks = nil
	anchors.Clear()
	s.changed(doc)
	return nil
}

// Update reconciles stored lines with the anchors. A mark adopts its
// anchor's line when that line is still inside the document. Marks whose
// line was deleted or now lies past the end are dropped, and of several
// marks sharing a line only the first is kept.
func (s *Store) Update(doc string) {
	st := s.states[doc]
	if st == nil || !st.loaded {
		return
	}
	_, anchors, err := s.lookup(doc)
	if err != nil {
		return
	}
	lineCount := anchors.LineCount()

	dirty := false
	seen := make(map[int]struct{}, len(st.marks))
	kept := make([]Bookmark, 0, len(st.marks))
	for _, m := range st.marks {
		line, ok := anchors.Line(m.anchor)
		if !ok {
			dirty = true
			continue
		}
		if line != m.Line && line >= 1 && line <= lineCount {
			m.Line = line
			dirty = true
		}
		if m.Line > lineCount {
			anchors.Remove(m.anchor)
			dirty = true
			continue
		}
		if _, dup := seen[m.Line]; dup {
			anchors.Remove(m.anchor)
			dirty = true
			continue
		}
		seen[m.Line] = struct{}{}
		kept = append(kept, m)
	}

	if dirty {
		st.marks = kept
		s.changed(doc)
	}
}

// Get returns a copy of the document's marks.
func (s *Store) Get(doc string) []Bookmark {
	st := s.states[doc]
	if st == nil {
		return nil
	}
	return clone(st.marks)
}

// InvalidateCache forgets the document's marks and snapshot and cancels its
// pending write. Anchors are left to the caller.
func (s *Store) InvalidateCache(doc string) {
	st := s.states[doc]
	if st == nil {
		return
	}
	if st.timer != nil {
		st.timer.Stop()
	}
	delete(s.states, doc)
}

// Sync schedules a debounced write, replacing any write already pending for
// the document.
func (s *Store) Sync(doc string) {
	st := s.states[doc]
	if st == nil || !st.loaded {
		return
	}
	if st.timer != nil {
		st.timer.Stop()
	}
	st.timer = s.sched.AfterFunc(s.opts.Debounce, func() {
		if s.states[doc] != st {
			return
		}
		st.timer = nil
		_ = s.write(doc, st)
	})
}

// SyncNow cancels the pending write and writes immediately.
func (s *Store) SyncNow(doc string) error {
	st := s.states[doc]
	if st == nil || !st.loaded {
		return nil
	}
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	return s.write(doc, st)
}

// Close flushes the document and releases its marks and anchors.
func (s *Store) Close(doc string) error {
	st := s.states[doc]
	if st == nil {
		return nil
	}
	err := s.SyncNow(doc)
	if _, anchors, lerr := s.lookup(doc); lerr == nil {
		for _, m := range st.marks {
			anchors.Remove(m.anchor)
		}
	}
	delete(s.states, doc)
	return err
}

func (s *Store) write(doc string, st *docState) error {
	if st.hasSynced && equal(st.marks, st.synced) {
		return nil
	}
	if s.opts.SortOnWrite {
		sort.SliceStable(st.marks, func(i, j int) bool {
			return st.marks[i].Line < st.marks[j].Line
		})
	}

	data, err := encode(st.marks)
	if err != nil {
		return fmt.Errorf("linemarks: encoding %s: %w", doc, err)
	}
	if err := s.opts.WriteFile(st.file, data, 0o644); err != nil {
		s.logger.Errorf("writing line bookmarks to %s: %v", st.file, err)
		return fmt.Errorf("linemarks: writing %s: %w", st.file, err)
	}

	st.synced = clone(st.marks)
	st.hasSynced = true
	s.logger.Debugf("wrote %d line bookmarks to %s", len(st.marks), st.file)
	return nil
}

// changed schedules a write and notifies subscribers.
func (s *Store) changed(doc string) {
	s.Sync(doc)
	s.emitter.Emit(types.NewMarksUpdatedEvent(doc))
}

func currentLine(anchors *anchor.Table, m Bookmark) int {
	if line, ok := anchors.Line(m.anchor); ok {
		return line
	}
	return m.Line
}

func equal(a, b []Bookmark) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Line != b[i].Line || a[i].Col != b[i].Col {
			return false
		}
	}
	return true
}

func clone(marks []Bookmark) []Bookmark {
	if marks == nil {
		return nil
	}
	return append([]Bookmark(nil), marks...)
}
