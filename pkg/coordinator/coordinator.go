// Package coordinator keeps both bookmark stores in step with the identity
// resolver. When the scope or branch changes it reloads the file list and
// migrates every open document's line marks to the new identity.
//
// All entry points run on the scheduler loop.
package coordinator

import (
	"context"
	"time"

	"github.com/entrhq/waymark/pkg/logging"
	"github.com/entrhq/waymark/pkg/pathmatch"
	"github.com/entrhq/waymark/pkg/scheduler"
	"github.com/entrhq/waymark/pkg/types"
	"github.com/entrhq/waymark/pkg/workspace"
)

// State is the coordinator's resolution state.
type State int

const (
	// StateStable means the stores are loaded under the current identity.
	StateStable State = iota
	// StateResolving means an identity fetch is outstanding.
	StateResolving
)

func (s State) String() string {
	if s == StateResolving {
		return "resolving"
	}
	return "stable"
}

// Resolver is the part of identity.Resolver the coordinator drives.
type Resolver interface {
	ScopeKey() string
	BranchKey() string
	BranchAsync(fn func(branch string, ok bool))
	PrimeBranch(branch string)
	InvalidateBranch()
	Invalidate()
	SetWorkingDir(dir string)
}

// FileStore reloads the file-level lists.
type FileStore interface {
	LoadCacheFile()
}

// LineStore is the part of linemarks.Store a sweep uses.
type LineStore interface {
	SyncNow(doc string) error
	InvalidateCache(doc string)
	Load(doc string) error
}

// Identity is a (scope key, branch key) pair.
type Identity struct {
	ScopeKey  string
	BranchKey string
}

// Coordinator reacts to identity change signals.
type Coordinator struct {
	resolver Resolver
	files    FileStore
	lines    LineStore
	docs     *workspace.Workspace
	sched    scheduler.Scheduler
	emitter  types.Emitter
	exclude  *pathmatch.Matcher
	logger   *logging.Logger

	state    State
	gen      uint64
	identity Identity
}

// New creates a coordinator. Call Init once the stores are loaded.
func New(resolver Resolver, files FileStore, lines LineStore, docs *workspace.Workspace, sched scheduler.Scheduler, emitter types.Emitter, exclude *pathmatch.Matcher, logger *logging.Logger) *Coordinator {
	if emitter == nil {
		emitter = types.NopEmitter
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Coordinator{
		resolver: resolver,
		files:    files,
		lines:    lines,
		docs:     docs,
		sched:    sched,
		emitter:  emitter,
		exclude:  exclude,
		logger:   logger,
	}
}

// Init records the current identity as the baseline without a sweep.
func (c *Coordinator) Init() {
	c.identity = c.current()
	c.state = StateStable
}

// State returns the current state.
func (c *Coordinator) State() State {
	return c.state
}

// Identity returns the identity the stores are loaded under.
func (c *Coordinator) Identity() Identity {
	return c.identity
}

func (c *Coordinator) current() Identity {
	return Identity{ScopeKey: c.resolver.ScopeKey(), BranchKey: c.resolver.BranchKey()}
}

// OnBranchChanged handles a branch switch. A non-empty branch is trusted and
// stored directly; an empty one forces a lookup.
func (c *Coordinator) OnBranchChanged(branch string) {
	c.resolver.InvalidateBranch()
	if branch != "" {
		c.resolver.PrimeBranch(branch)
	}
	c.refresh("branch changed")
}

// OnDirectoryChanged moves the resolver to dir.
func (c *Coordinator) OnDirectoryChanged(dir string) {
	c.resolver.SetWorkingDir(dir)
	c.refresh("directory changed")
}

// RefreshAll drops every cached identity answer and re-resolves.
func (c *Coordinator) RefreshAll() {
	c.resolver.Invalidate()
	c.refresh("refresh")
}

// Poll re-checks the identity. The branch is only fetched again once the
// cached value has expired.
func (c *Coordinator) Poll() {
	c.refresh("poll")
}

// Start polls every interval until ctx is done. A non-positive interval
// disables polling.
func (c *Coordinator) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	var tick func()
	tick = func() {
		if ctx.Err() != nil {
			return
		}
		c.Poll()
		c.sched.AfterFunc(interval, tick)
	}
	c.sched.AfterFunc(interval, tick)
}

func (c *Coordinator) refresh(reason string) {
	c.gen++
	gen := c.gen
	c.state = StateResolving
	c.logger.Debugf("resolving identity (%s, generation %d)", reason, gen)

	c.resolver.BranchAsync(func(string, bool) {
		c.complete(gen)
	})
}

func (c *Coordinator) complete(gen uint64) {
	if gen != c.gen {
		c.logger.Debugf("discarding identity result of generation %d, current is %d", gen, c.gen)
		return
	}
	c.state = StateStable

	next := c.current()
	if next == c.identity {
		return
	}

	previous := c.identity
	c.identity = next
	c.logger.Infof("identity changed from %s to %s", previous.BranchKey, next.BranchKey)

	c.files.LoadCacheFile()
	c.emitter.Emit(types.NewIdentityChangedEvent())
	c.sched.Post(c.sweep)
}

// sweep moves the line marks of every open, listed, named document to the
// current identity: pending writes are flushed to the files they were loaded
// from, then the marks are reloaded from the new location.
func (c *Coordinator) sweep() {
	for _, doc := range c.docs.Documents() {
		if !doc.Listed || !doc.Named() || c.exclude.Match(doc.Path) {
			continue
		}
		if err := c.lines.SyncNow(doc.ID); err != nil {
			c.logger.Errorf("flushing %s before identity change: %v", doc.Path, err)
		}
		c.lines.InvalidateCache(doc.ID)
		doc.Anchors.Clear()
		if err := c.lines.Load(doc.ID); err != nil {
			c.logger.Warnf("reloading line bookmarks for %s: %v", doc.Path, err)
		}
	}
}
