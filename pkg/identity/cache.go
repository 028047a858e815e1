package identity

import (
	"sync"
	"time"
)

// DefaultTTL is how long a resolved branch or repository flag is trusted.
const DefaultTTL = time.Second

// Cache holds the last resolved branch and repository flag.
//
// Every fetch takes a generation number when it is issued. A completion is
// applied only if its generation is newer than the last applied one and
// newer than the last invalidation, so a slow, older fetch can never
// overwrite a newer answer.
type Cache struct {
	mu  sync.Mutex
	ttl time.Duration

	issued uint64

	branch          string
	branchKnown     bool
	branchFetchedAt time.Time
	branchApplied   uint64
	branchFloor     uint64

	isRepo        bool
	repoKnown     bool
	repoFetchedAt time.Time
	repoApplied   uint64
	repoFloor     uint64
}

// NewCache creates an empty cache. A non-positive ttl means DefaultTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{ttl: ttl}
}

// TTL returns the freshness window.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Issue hands out the generation for a new fetch.
func (c *Cache) Issue() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued++
	return c.issued
}

// Branch returns the cached branch. known is false if nothing has been
// stored since creation or the last invalidation; a failed lookup is stored
// as known with an empty branch.
func (c *Cache) Branch(now time.Time) (branch string, known, fresh bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.branchKnown {
		return "", false, false
	}
	return c.branch, true, now.Sub(c.branchFetchedAt) < c.ttl
}

// StoreBranch applies the result of fetch gen. It reports false, leaving the
// cache untouched, when the result is stale.
func (c *Cache) StoreBranch(gen uint64, branch string, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen <= c.branchApplied || gen <= c.branchFloor {
		return false
	}
	c.branch = branch
	c.branchKnown = true
	c.branchFetchedAt = at
	c.branchApplied = gen
	return true
}

// IsRepo mirrors Branch for the repository flag.
func (c *Cache) IsRepo(now time.Time) (isRepo, known, fresh bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.repoKnown {
		return false, false, false
	}
	return c.isRepo, true, now.Sub(c.repoFetchedAt) < c.ttl
}

// StoreIsRepo mirrors StoreBranch for the repository flag.
func (c *Cache) StoreIsRepo(gen uint64, isRepo bool, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen <= c.repoApplied || gen <= c.repoFloor {
		return false
	}
	c.isRepo = isRepo
	c.repoKnown = true
	c.repoFetchedAt = at
	c.repoApplied = gen
	return true
}

// InvalidateBranch forgets the branch and marks every fetch issued so far as
// stale.
func (c *Cache) InvalidateBranch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.branch = ""
	c.branchKnown = false
	c.branchFetchedAt = time.Time{}
	c.branchFloor = c.issued
}

// Invalidate clears every cached field.
func (c *Cache) Invalidate() {
	c.InvalidateBranch()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.isRepo = false
	c.repoKnown = false
	c.repoFetchedAt = time.Time{}
	c.repoFloor = c.issued
}
