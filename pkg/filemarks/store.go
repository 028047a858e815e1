// Package filemarks keeps the file-level bookmark lists.
//
// Two lists exist per scope: a branch list, keyed by the branch key, and a
// permanent list, keyed by the scope key, that survives branch switches. A
// path lives in at most one of them. Users see the merged view, branch
// entries first.
package filemarks

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/entrhq/waymark/pkg/fsutil"
	"github.com/entrhq/waymark/pkg/logging"
	"github.com/entrhq/waymark/pkg/pathmatch"
	"github.com/entrhq/waymark/pkg/types"
)

// PermanentSuffix is appended to the scope key to name the permanent list.
const PermanentSuffix = ".permanent"

// Identity supplies the keys the lists are stored under.
type Identity interface {
	ScopeKey() string
	BranchKey() string
	ScopeRoot() string
}

// Opener opens a resolved absolute path.
type Opener interface {
	Open(path string) error
}

// Options configures a Store.
type Options struct {
	// Dir holds the backing files, normally <save_path>/files.
	Dir string

	// SeparateByBranch enables the branch/permanent split.
	SeparateByBranch bool

	// Global stores absolute paths in one unscoped list.
	Global bool

	// RelativePath stores paths relative to the scope root.
	RelativePath bool

	// Exclude rejects matching paths. May be nil.
	Exclude *pathmatch.Matcher
}

// Store is the file-level bookmark store.
type Store struct {
	mu       sync.Mutex
	opts     Options
	identity Identity
	opener   Opener
	emitter  types.Emitter
	logger   *logging.Logger

	branch       []string
	permanent    []string
	merged       []string
	permanentSet map[string]struct{}

	// Files the lists were last loaded from. Mutations are written back
	// to these.
	branchFile    string
	permanentFile string
}

// New creates a store. Nothing is read until LoadCacheFile.
func New(opts Options, identity Identity, opener Opener, emitter types.Emitter, logger *logging.Logger) *Store {
	if emitter == nil {
		emitter = types.NopEmitter
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Store{
		opts:         opts,
		identity:     identity,
		opener:       opener,
		emitter:      emitter,
		logger:       logger,
		permanentSet: make(map[string]struct{}),
	}
}

// permanentEnabled reports whether permanent bookmarks are meaningful.
func (s *Store) permanentEnabled() bool {
	return s.opts.SeparateByBranch && !s.opts.Global
}

// BranchFile returns the backing file of the branch list under the current
// identity.
func (s *Store) BranchFile() string {
	return filepath.Join(s.opts.Dir, s.identity.BranchKey())
}

// PermanentFile returns the backing file of the permanent list under the
// current identity, or "" when permanent bookmarks are disabled.
func (s *Store) PermanentFile() string {
	if !s.permanentEnabled() {
		return ""
	}
	return filepath.Join(s.opts.Dir, s.identity.ScopeKey()+PermanentSuffix)
}

// LoadCacheFile re-reads both lists under the current identity and rebuilds
// the merged view.
func (s *Store) LoadCacheFile() {
	branchFile := s.BranchFile()
	permanentFile := s.PermanentFile()

	branch := s.readList(branchFile)
	var permanent []string
	if permanentFile != "" {
		permanent = s.readList(permanentFile)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.branchFile = branchFile
	s.permanentFile = permanentFile
	s.branch = branch
	s.permanent = permanent
	s.rebuild()
}

func (s *Store) readList(path string) []string {
	data, err := fsutil.ReadFileOrEmpty(path)
	if err != nil {
		s.logger.Warnf("reading bookmarks: %v", err)
		return nil
	}
	return parseList(data)
}

// rebuild recomputes the merged view. Callers hold s.mu.
func (s *Store) rebuild() {
	s.permanentSet = make(map[string]struct{}, len(s.permanent))
	for _, p := range s.permanent {
		s.permanentSet[p] = struct{}{}
	}

	seen := make(map[string]struct{}, len(s.branch)+len(s.permanent))
	merged := make([]string, 0, len(s.branch)+len(s.permanent))
	for _, list := range [][]string{s.branch, s.permanent} {
		for _, p := range list {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			merged = append(merged, p)
		}
	}
	s.merged = merged
}

// parseList decodes the newline-joined file format, dropping blank lines and
// repeated entries.
func parseList(data []byte) []string {
	var list []string
	seen := make(map[string]struct{})
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		list = append(list, line)
	}
	return list
}

func formatList(list []string) []byte {
	return []byte(strings.Join(list, "\n"))
}

// flush writes both lists to the files they were loaded from. Callers hold
// s.mu.
func (s *Store) flush() error {
	if s.branchFile == "" {
		s.branchFile = s.BranchFile()
		s.permanentFile = s.PermanentFile()
	}
	if err := fsutil.WriteFileAtomic(s.branchFile, formatList(s.branch), 0o644); err != nil {
		return fmt.Errorf("filemarks: saving branch list: %w", err)
	}
	if s.permanentFile != "" {
		if err := fsutil.WriteFileAtomic(s.permanentFile, formatList(s.permanent), 0o644); err != nil {
			return fmt.Errorf("filemarks: saving permanent list: %w", err)
		}
	}
	return nil
}

// commit persists a mutation, reloads and notifies.
func (s *Store) commit() error {
	s.mu.Lock()
	err := s.flush()
	s.mu.Unlock()
	if err != nil {
		s.logger.Errorf("%v", err)
		return err
	}

	s.LoadCacheFile()
	s.emitter.Emit(types.NewBookmarksUpdatedEvent())
	return nil
}

// Normalize converts path to its stored form. With relative paths enabled, a
// path inside the scope root is made relative and gets a "./" prefix unless
// it contains whitespace. Otherwise the path is made absolute.
func (s *Store) Normalize(path string) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}
	root := s.identity.ScopeRoot()

	if s.opts.Global || !s.opts.RelativePath {
		return s.absolute(root, path)
	}

	if filepath.IsAbs(path) && root != "" {
		if rel, err := filepath.Rel(root, path); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			path = rel
		}
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}

	path = filepath.Clean(path)
	if !strings.ContainsFunc(path, unicode.IsSpace) {
		path = "." + string(filepath.Separator) + path
	}
	return path
}

// absolute resolves a stored or user-supplied path against root.
func (s *Store) absolute(root, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	if root != "" && !s.opts.Global {
		return filepath.Join(root, path)
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

func (s *Store) excluded(path, normalized string) bool {
	if s.opts.Exclude.Match(path) || s.opts.Exclude.Match(normalized) {
		s.logger.Debugf("not bookmarking excluded path %s", path)
		return true
	}
	return false
}

// Save adds path to the branch list. A path already in the branch list is
// left alone; a permanent one is moved to the branch list.
func (s *Store) Save(path string) error {
	p := s.Normalize(path)
	if p == "" || s.excluded(path, p) {
		return nil
	}

	s.mu.Lock()
	if indexOf(s.branch, p) > 0 {
		s.mu.Unlock()
		return nil
	}
	if _, ok := s.permanentSet[p]; ok {
		s.permanent = without(s.permanent, p)
	}
	s.branch = append(s.branch, p)
	s.mu.Unlock()

	return s.commit()
}

// Remove deletes path from the permanent list if present, otherwise from
// the branch list.
func (s *Store) Remove(path string) error {
	p := s.Normalize(path)

	s.mu.Lock()
	switch {
	case indexOf(s.permanent, p) > 0:
		s.permanent = without(s.permanent, p)
	case indexOf(s.branch, p) > 0:
		s.branch = without(s.branch, p)
	default:
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	return s.commit()
}

// SavePermanent adds path to the permanent list, taking it out of the branch
// list. Without branch separation it is Save.
func (s *Store) SavePermanent(path string) error {
	if !s.permanentEnabled() {
		return s.Save(path)
	}
	p := s.Normalize(path)
	if p == "" || s.excluded(path, p) {
		return nil
	}

	s.mu.Lock()
	if _, ok := s.permanentSet[p]; ok {
		s.mu.Unlock()
		return nil
	}
	s.branch = without(s.branch, p)
	s.permanent = append(s.permanent, p)
	s.mu.Unlock()

	return s.commit()
}

// RemovePermanent deletes path from the permanent list only. Without branch
// separation it is Remove.
func (s *Store) RemovePermanent(path string) error {
	if !s.permanentEnabled() {
		return s.Remove(path)
	}
	p := s.Normalize(path)

	s.mu.Lock()
	if _, ok := s.permanentSet[p]; !ok {
		s.mu.Unlock()
		return nil
	}
	s.permanent = without(s.permanent, p)
	s.mu.Unlock()

	return s.commit()
}

// Toggle removes path if it is bookmarked and saves it otherwise.
func (s *Store) Toggle(path string) error {
	if _, ok := s.IsSaved(path); ok {
		return s.Remove(path)
	}
	return s.Save(path)
}

// TogglePermanent is Toggle for the permanent list.
func (s *Store) TogglePermanent(path string) error {
	if !s.permanentEnabled() {
		return s.Toggle(path)
	}
	if _, ok := s.IsSavedPermanent(path); ok {
		return s.RemovePermanent(path)
	}
	return s.SavePermanent(path)
}

// Clear empties the branch list. Permanent bookmarks survive.
func (s *Store) Clear() error {
	s.mu.Lock()
	if len(s.branch) == 0 {
		s.mu.Unlock()
		return nil
	}
	s.branch = nil
	s.mu.Unlock()

	return s.commit()
}

// IsSaved returns the 1-based position of path in the merged view.
func (s *Store) IsSaved(path string) (int, bool) {
	p := s.Normalize(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.merged, p)
	return i, i > 0
}

// IsSavedPermanent returns the 1-based position of path in the permanent
// list.
func (s *Store) IsSavedPermanent(path string) (int, bool) {
	p := s.Normalize(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.permanent, p)
	return i, i > 0
}

// List returns a copy of the merged view.
func (s *Store) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.merged...)
}

// Branch returns a copy of the branch list.
func (s *Store) Branch() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.branch...)
}

// Permanent returns a copy of the permanent list.
func (s *Store) Permanent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.permanent...)
}

// Path resolves the 1-based index in the merged view to an absolute path.
func (s *Store) Path(index int) (string, bool) {
	s.mu.Lock()
	if index < 1 || index > len(s.merged) {
		s.mu.Unlock()
		return "", false
	}
	p := s.merged[index-1]
	s.mu.Unlock()
	return s.Resolve(p), true
}

// Resolve turns a stored entry into an absolute path.
func (s *Store) Resolve(stored string) string {
	return s.absolute(s.identity.ScopeRoot(), stored)
}

// GoTo opens the entry at the 1-based index of the merged view. An index out
// of range does nothing.
func (s *Store) GoTo(index int) error {
	path, ok := s.Path(index)
	if !ok {
		return nil
	}
	return s.open(path)
}

func (s *Store) open(path string) error {
	if s.opener == nil {
		return nil
	}
	if err := s.opener.Open(path); err != nil {
		return fmt.Errorf("filemarks: opening %s: %w", path, err)
	}
	return nil
}

// Next opens the entry after current in the merged view, wrapping around.
func (s *Store) Next(current string) error {
	return s.step(s.List(), current, nextIndex)
}

// Previous opens the entry before current in the merged view.
func (s *Store) Previous(current string) error {
	return s.step(s.List(), current, previousIndex)
}

// NextLocal is Next restricted to the branch list.
func (s *Store) NextLocal(current string) error {
	return s.step(s.Branch(), current, nextIndex)
}

// PreviousLocal is Previous restricted to the branch list.
func (s *Store) PreviousLocal(current string) error {
	return s.step(s.Branch(), current, previousIndex)
}

// NextGlobal is Next restricted to the permanent list.
func (s *Store) NextGlobal(current string) error {
	return s.step(s.Permanent(), current, nextIndex)
}

// PreviousGlobal is Previous restricted to the permanent list.
func (s *Store) PreviousGlobal(current string) error {
	return s.step(s.Permanent(), current, previousIndex)
}

func (s *Store) step(list []string, current string, move func(i, n int) int) error {
	if len(list) == 0 {
		return nil
	}
	target := list[move(indexOf(list, s.Normalize(current)), len(list))-1]

	if i, ok := s.IsSaved(target); ok {
		return s.GoTo(i)
	}
	return s.open(s.Resolve(target))
}

// nextIndex implements forward wraparound over n entries. i is 1-based, 0
// when the current entry is absent.
func nextIndex(i, n int) int {
	if i < 1 || i >= n {
		return 1
	}
	return i + 1
}

// previousIndex implements backward wraparound.
func previousIndex(i, n int) int {
	if i <= 1 {
		return n
	}
	return i - 1
}

// indexOf returns the 1-based position of v in list, or 0.
func indexOf(list []string, v string) int {
	if v == "" {
		return 0
	}
	for i, p := range list {
		if p == v {
			return i + 1
		}
	}
	return 0
}

func without(list []string, v string) []string {
	out := list[:0:0]
	for _, p := range list {
		if p != v {
			out = append(out, p)
		}
	}
	return out
}
