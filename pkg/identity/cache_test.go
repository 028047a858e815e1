package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_Freshness(t *testing.T) {
	c := NewCache(time.Second)
	start := time.Unix(1000, 0)

	_, known, _ := c.Branch(start)
	assert.False(t, known)

	assert.True(t, c.StoreBranch(c.Issue(), "main", start))

	branch, known, fresh := c.Branch(start.Add(999 * time.Millisecond))
	assert.Equal(t, "main", branch)
	assert.True(t, known)
	assert.True(t, fresh)

	_, known, fresh = c.Branch(start.Add(time.Second))
	assert.True(t, known)
	assert.False(t, fresh)
}

func TestCache_StaleGenerations(t *testing.T) {
	c := NewCache(0)
	assert.Equal(t, DefaultTTL, c.TTL())
	now := time.Unix(0, 0)

	older := c.Issue()
	newer := c.Issue()

	assert.True(t, c.StoreBranch(newer, "new", now))
	assert.False(t, c.StoreBranch(older, "old", now))
	assert.False(t, c.StoreBranch(newer, "again", now), "a generation applies once")

	branch, _, _ := c.Branch(now)
	assert.Equal(t, "new", branch)
}

func TestCache_InvalidateSetsFloor(t *testing.T) {
	c := NewCache(time.Second)
	now := time.Unix(0, 0)

	inFlight := c.Issue()
	repoInFlight := c.Issue()
	c.Invalidate()

	assert.False(t, c.StoreBranch(inFlight, "main", now))
	assert.False(t, c.StoreIsRepo(repoInFlight, true, now))

	assert.True(t, c.StoreIsRepo(c.Issue(), true, now))
	isRepo, known, fresh := c.IsRepo(now)
	assert.True(t, isRepo)
	assert.True(t, known)
	assert.True(t, fresh)
}

func TestCache_InvalidateBranchKeepsRepoFlag(t *testing.T) {
	c := NewCache(time.Second)
	now := time.Unix(0, 0)

	c.StoreIsRepo(c.Issue(), true, now)
	c.StoreBranch(c.Issue(), "main", now)
	c.InvalidateBranch()

	_, known, _ := c.Branch(now)
	assert.False(t, known)
	_, known, _ = c.IsRepo(now)
	assert.True(t, known)
}
