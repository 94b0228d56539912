package rocketfilter

import (
	"sync"

	"github.com/emirpasic/gods/sets/linkedhashset"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

type empty = struct{}

// HashSet is a plain set of hashes, used where iteration order is
// immaterial (e.g. the excluded set passed to walkDFS).
type HashSet = map[plumbing.Hash]empty

// NewHashSetFromCommits collects the hashes of the commits into a HashSet.
func NewHashSetFromCommits(commits []*object.Commit) HashSet {
	result := make(HashSet)
	for _, c := range commits {
		if c == nil {
			continue
		}
		result[c.Hash] = empty{}
	}
	return result
}

// DiscardedSet is the set of source-commit-ids dropped by the commit
// filter, the tree filter, or tree-pruning (spec §3). It is backed by an
// insertion-ordered set, but nothing iterates it: ParentResolver only tests
// membership, and takes the order of a discarded commit's own parents from
// its ParentsOf callback.
type DiscardedSet struct {
	mu  sync.RWMutex
	set *linkedhashset.Set
}

// NewDiscardedSet creates an empty DiscardedSet.
func NewDiscardedSet() *DiscardedSet {
	return &DiscardedSet{set: linkedhashset.New()}
}

// Add marks id as discarded.
func (d *DiscardedSet) Add(id plumbing.Hash) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.set.Add(id)
}

// Contains reports whether id has been discarded.
func (d *DiscardedSet) Contains(id plumbing.Hash) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.set.Contains(id)
}

// Len returns the number of discarded commits.
func (d *DiscardedSet) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.set.Size()
}

// CommitMap is the mapping from source-commit-id to rewritten-commit-id
// (spec §3): exactly one entry per source commit ever evaluated that was
// not discarded, monotonic (entries are never removed).
type CommitMap struct {
	mu sync.RWMutex
	m  map[plumbing.Hash]plumbing.Hash
}

// NewCommitMap creates an empty CommitMap.
func NewCommitMap() *CommitMap {
	return &CommitMap{m: make(map[plumbing.Hash]plumbing.Hash)}
}

// Set records that source maps to rewritten.
func (c *CommitMap) Set(source, rewritten plumbing.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[source] = rewritten
}

// Get returns the image of source, and whether it was found.
func (c *CommitMap) Get(source plumbing.Hash) (plumbing.Hash, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[source]
	return v, ok
}

// Len returns the number of entries recorded.
func (c *CommitMap) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
