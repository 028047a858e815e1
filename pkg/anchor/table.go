// Package anchor tracks live line positions inside an open document.
//
// An anchor is a handle that follows its line as lines are inserted or
// deleted above it, the way editor marks do. Tracking works at line
// granularity: edits are applied as whole-line insertions and deletions, and
// an anchor whose line is deleted is dropped rather than moved, so it reports
// no position until it is set again. Column positions are not tracked.
package anchor

import "sync"

// ID identifies an anchor within its Table.
type ID uint64

// Table holds the anchors of one document together with its line count.
type Table struct {
	mu        sync.Mutex
	next      ID
	lines     map[ID]int
	lineCount int
}

// NewTable creates a table for a document with lineCount lines.
func NewTable(lineCount int) *Table {
	if lineCount < 0 {
		lineCount = 0
	}
	return &Table{lines: make(map[ID]int), lineCount: lineCount}
}

// Set places a new anchor on line (1-based) and returns its handle.
func (t *Table) Set(line int) ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.lines[t.next] = line
	return t.next
}

// Line reports the anchor's current line. ok is false when the anchor was
// removed, cleared or its line was deleted.
func (t *Table) Line(id ID) (line int, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	line, ok = t.lines[id]
	return line, ok
}

// Remove drops a single anchor.
func (t *Table) Remove(id ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lines, id)
}

// Clear drops every anchor.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = make(map[ID]int)
}

// Len returns the number of live anchors.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lines)
}

// LineCount returns the document's current number of lines.
func (t *Table) LineCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lineCount
}

// InsertLines records n new lines starting at line at. Anchors on at or
// below it move down by n.
func (t *Table) InsertLines(at, n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	at = clamp(at, 1, t.lineCount+1)
	for id, line := range t.lines {
		if line >= at {
			t.lines[id] = line + n
		}
	}
	t.lineCount += n
}

// DeleteLines records the removal of n lines starting at line from. Anchors
// inside the removed range are dropped; anchors below it move up by n.
func (t *Table) DeleteLines(from, n int) {
	if n <= 0 || from > t.LineCount() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if from < 1 {
		n -= 1 - from
		from = 1
	}
	if end := from + n - 1; end > t.lineCount {
		n = t.lineCount - from + 1
	}
	if n <= 0 {
		return
	}

	for id, line := range t.lines {
		switch {
		case line < from:
		case line < from+n:
			delete(t.lines, id)
		default:
			t.lines[id] = line - n
		}
	}
	t.lineCount -= n
}

// ReplaceLines records that oldCount lines starting at from were replaced by
// newCount lines. Anchors on the replaced lines are dropped.
func (t *Table) ReplaceLines(from, oldCount, newCount int) {
	t.DeleteLines(from, oldCount)
	t.InsertLines(from, newCount)
}

// SetLineCount resizes the document without a positional edit, as when its
// content is reloaded. Shrinking drops anchors past the new end.
func (t *Table) SetLineCount(count int) {
	if count < 0 {
		count = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, line := range t.lines {
		if line > count {
			delete(t.lines, id)
		}
	}
	t.lineCount = count
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
