// Package identity resolves where bookmarks belong: the scope key derived from
// the working directory or repository, and the active branch.
//
// The branch is answered from a TTL cache. Refreshing it runs the backend on
// a separate goroutine and delivers the result back on the scheduler loop, so
// callers on the loop never block on a subprocess.
package identity

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/entrhq/waymark/pkg/config"
	"github.com/entrhq/waymark/pkg/logging"
	"github.com/entrhq/waymark/pkg/scheduler"
)

// Options configures a Resolver.
type Options struct {
	Mode             config.ScopeMode
	SeparateByBranch bool
}

// BranchResult is the outcome of an asynchronous branch lookup.
type BranchResult struct {
	Branch string
	OK     bool
}

// Resolver answers identity questions for one working directory.
type Resolver struct {
	mu    sync.Mutex
	dir   string
	roots map[string]string

	opts    Options
	backend Backend
	sched   scheduler.Scheduler
	cache   *Cache
	logger  *logging.Logger
}

// NewResolver creates a resolver for dir. The cache is owned by the caller
// so several resolvers can be tested or run side by side.
func NewResolver(dir string, backend Backend, sched scheduler.Scheduler, cache *Cache, opts Options, logger *logging.Logger) *Resolver {
	if opts.Mode == "" {
		opts.Mode = config.ScopeCwd
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Resolver{
		dir:     filepath.Clean(dir),
		roots:   make(map[string]string),
		opts:    opts,
		backend: backend,
		sched:   sched,
		cache:   cache,
		logger:  logger,
	}
}

// Cache returns the resolver's cache.
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// Global reports whether scoping is bypassed.
func (r *Resolver) Global() bool {
	return r.opts.Mode == config.ScopeGlobal
}

// WorkingDir returns the directory identity is resolved for.
func (r *Resolver) WorkingDir() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dir
}

// SetWorkingDir switches to another directory and drops cached answers.
func (r *Resolver) SetWorkingDir(dir string) {
	r.mu.Lock()
	r.dir = filepath.Clean(dir)
	r.mu.Unlock()
	r.Invalidate()
}

// ScopeRoot returns the directory relative bookmarks are resolved against.
// It is empty in global mode.
func (r *Resolver) ScopeRoot() string {
	dir := r.WorkingDir()
	switch r.opts.Mode {
	case config.ScopeGlobal:
		return ""
	case config.ScopeRepoRoot, config.ScopeRepoCommonDir:
		return r.repoRoot(dir)
	default:
		return dir
	}
}

// repoRoot resolves the repository root synchronously, remembering the answer
// per directory until the next invalidation. Outside a repository it falls
// back to dir.
func (r *Resolver) repoRoot(dir string) string {
	r.mu.Lock()
	root, ok := r.roots[dir]
	r.mu.Unlock()
	if ok {
		return root
	}

	ctx := context.Background()
	var err error
	if r.opts.Mode == config.ScopeRepoCommonDir {
		var common string
		if common, err = r.backend.CommonDir(ctx, dir); err == nil {
			root = common
			if filepath.Base(common) == ".git" {
				root = filepath.Dir(common)
			}
		}
	} else {
		root, err = r.backend.Toplevel(ctx, dir)
	}
	if err != nil || root == "" {
		r.logger.Debugf("no repository root for %s, using the directory: %v", dir, err)
		root = dir
	}

	r.mu.Lock()
	r.roots[dir] = root
	r.mu.Unlock()
	return root
}

// ScopeKey returns the normalized key of the current scope.
func (r *Resolver) ScopeKey() string {
	if r.Global() {
		return GlobalKey
	}
	return Normalize(r.ScopeRoot())
}

// BranchKey qualifies the scope key with the cached branch when branch
// separation is enabled.
func (r *Resolver) BranchKey() string {
	if r.Global() {
		return GlobalKey
	}
	key := r.ScopeKey()
	if !r.opts.SeparateByBranch {
		return key
	}
	if branch, ok := r.Branch(); ok {
		return key + "-" + Normalize(branch)
	}
	return key
}

// Branch returns the cached branch without blocking. ok is false when the
// cache is empty or the last lookup found no branch.
func (r *Resolver) Branch() (string, bool) {
	branch, known, _ := r.cache.Branch(r.sched.Now())
	return branch, known && branch != ""
}

// BranchFresh reports whether the cached branch is within its TTL.
func (r *Resolver) BranchFresh() bool {
	_, known, fresh := r.cache.Branch(r.sched.Now())
	return known && fresh
}

// BranchAsync delivers the current branch to fn. A fresh cache entry is
// delivered synchronously; otherwise the backend is queried off the loop and
// fn runs on the loop once the answer arrives.
func (r *Resolver) BranchAsync(fn func(branch string, ok bool)) {
	r.fetchBranch(context.Background(), fn)
}

// RefreshBranch is the channel form of BranchAsync. The channel receives
// exactly one result.
func (r *Resolver) RefreshBranch(ctx context.Context) <-chan BranchResult {
	ch := make(chan BranchResult, 1)
	r.fetchBranch(ctx, func(branch string, ok bool) {
		ch <- BranchResult{Branch: branch, OK: ok}
		close(ch)
	})
	return ch
}

func (r *Resolver) fetchBranch(ctx context.Context, fn func(string, bool)) {
	if branch, known, fresh := r.cache.Branch(r.sched.Now()); known && fresh {
		fn(branch, branch != "")
		return
	}

	gen := r.cache.Issue()
	dir := r.WorkingDir()
	issuedAt := r.sched.Now()

	go func() {
		branch, err := r.backend.Branch(ctx, dir)
		if err != nil {
			// Not being in a repository is a steady state, not an error.
			r.logger.Debugf("branch lookup in %s failed: %v", dir, err)
			branch = ""
		}

		r.sched.Post(func() {
			if !r.cache.StoreBranch(gen, branch, r.sched.Now()) {
				r.logger.Debugf("discarding stale branch result %q (fetch %d issued %s)", branch, gen, issuedAt.Format("15:04:05.000"))
				current, _ := r.Branch()
				fn(current, current != "")
				return
			}
			fn(branch, branch != "")
		})
	}()
}

// ResolveNow queries the branch synchronously and stores it. It is meant for
// start-up, before the loop is running.
func (r *Resolver) ResolveNow(ctx context.Context) (string, bool) {
	gen := r.cache.Issue()
	branch, err := r.backend.Branch(ctx, r.WorkingDir())
	if err != nil {
		r.logger.Debugf("branch lookup failed: %v", err)
		branch = ""
	}
	r.cache.StoreBranch(gen, branch, r.sched.Now())
	return r.Branch()
}

// PrimeBranch stores a branch reported by an integrator, superseding any
// fetch still in flight.
func (r *Resolver) PrimeBranch(branch string) {
	r.cache.StoreBranch(r.cache.Issue(), branch, r.sched.Now())
}

// IsRepo returns the cached repository flag without blocking.
func (r *Resolver) IsRepo() (isRepo, known bool) {
	isRepo, known, _ = r.cache.IsRepo(r.sched.Now())
	return isRepo, known
}

// IsRepoAsync follows the BranchAsync pattern for the repository flag.
func (r *Resolver) IsRepoAsync(fn func(isRepo bool)) {
	if isRepo, known, fresh := r.cache.IsRepo(r.sched.Now()); known && fresh {
		fn(isRepo)
		return
	}

	gen := r.cache.Issue()
	dir := r.WorkingDir()

	go func() {
		isRepo, err := r.backend.IsRepo(context.Background(), dir)
		if err != nil {
			r.logger.Debugf("repository check in %s failed: %v", dir, err)
			isRepo = false
		}

		r.sched.Post(func() {
			if !r.cache.StoreIsRepo(gen, isRepo, r.sched.Now()) {
				current, _ := r.IsRepo()
				fn(current)
				return
			}
			fn(isRepo)
		})
	}()
}

// InvalidateBranch forgets the cached branch.
func (r *Resolver) InvalidateBranch() {
	r.cache.InvalidateBranch()
}

// Invalidate forgets every cached answer, including repository roots.
func (r *Resolver) Invalidate() {
	r.cache.Invalidate()
	r.mu.Lock()
	r.roots = make(map[string]string)
	r.mu.Unlock()
}
