package rocketfilter

import (
	"sync"

	"github.com/go-git/go-git/v5/plumbing"
)

// ParentResolver implements spec §4.5: given a source commit id that
// appears as a parent somewhere in the range being rewritten, resolve it to
// the list of hashes that should actually appear as parents in the
// rewritten graph.
//
//   - If id has already been rewritten, its image under CommitMap is the
//     (single) answer.
//   - If id was discarded, its own source parents are tried in order and
//     resolved recursively; the first one that resolves to a non-empty
//     result is the answer (spec §4.5), so a discarded commit never turns
//     an otherwise-single-parent descendant into a merge by pulling in more
//     than one replacement ancestor.
//   - Otherwise id lies outside the range this run touched (a boundary
//     commit) and is passed through unchanged.
//
// Results are memoised per id in a mutex-guarded cache, so Resolve is safe
// to call from more than one goroutine; CommitRewriter itself calls it from
// its single, sequential commit loop.
type ParentResolver struct {
	CommitMap *CommitMap
	Discarded *DiscardedSet

	// ParentsOf returns the recorded source parent ids of a discarded
	// commit, in order. It must succeed for every id ever added to
	// Discarded.
	ParentsOf func(plumbing.Hash) ([]plumbing.Hash, error)

	mu    sync.Mutex
	cache map[plumbing.Hash][]plumbing.Hash
}

// NewParentResolver wires a ParentResolver against the CommitMap and
// DiscardedSet a CommitRewriter run shares across all commits, plus a
// lookup for a discarded commit's own source parents.
func NewParentResolver(cm *CommitMap, ds *DiscardedSet, parentsOf func(plumbing.Hash) ([]plumbing.Hash, error)) *ParentResolver {
	return &ParentResolver{
		CommitMap: cm,
		Discarded: ds,
		ParentsOf: parentsOf,
		cache:     make(map[plumbing.Hash][]plumbing.Hash),
	}
}

// Resolve returns the replacement parent hashes for id, memoised.
func (r *ParentResolver) Resolve(id plumbing.Hash) ([]plumbing.Hash, error) {
	r.mu.Lock()
	if cached, ok := r.cache[id]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	result, err := r.resolve(id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[id] = result
	r.mu.Unlock()
	return result, nil
}

func (r *ParentResolver) resolve(id plumbing.Hash) ([]plumbing.Hash, error) {
	if mapped, ok := r.CommitMap.Get(id); ok {
		return []plumbing.Hash{mapped}, nil
	}

	if !r.Discarded.Contains(id) {
		return []plumbing.Hash{id}, nil
	}

	sourceParents, err := r.ParentsOf(id)
	if err != nil {
		return nil, err
	}

	for _, p := range sourceParents {
		resolved, err := r.Resolve(p)
		if err != nil {
			return nil, err
		}
		if len(resolved) > 0 {
			return resolved, nil
		}
	}
	return nil, nil
}
