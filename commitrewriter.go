package rocketfilter

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// CommitRewriter implements spec §4.4: the per-commit state machine driving
// the commit predicate, the tree filter, parent remapping and the prune
// decision. Rewrite is meant to be called once per commit, strictly in
// topological order (parents before children) and strictly sequentially —
// spec §5 only allows TreeBuilder's inner leaf evaluation to fan out, not
// this outer loop — so CommitRewriter keeps its own per-run bookkeeping
// (hashesTree) unsynchronised.
type CommitRewriter struct {
	CommitMap *CommitMap
	Discarded *DiscardedSet
	Resolver  *ParentResolver
	Tree      *TreeBuilder

	CommitPredicate CompiledPredicate
	Repo            *RepoHandle

	Source storer.EncodedObjectStorer
	Dest   storer.Storer

	PreserveMergeCommits bool
	Detach               bool

	// hashesTree remembers the tree hash behind every rewritten-or-boundary
	// commit id this run has touched, so the prune decision can compare a
	// candidate parent's tree against the current commit's without
	// re-decoding it from scratch every time.
	hashesTree map[plumbing.Hash]plumbing.Hash
}

// NewCommitRewriter wires a CommitRewriter for one run.
func NewCommitRewriter(
	cm *CommitMap,
	discarded *DiscardedSet,
	resolver *ParentResolver,
	tree *TreeBuilder,
	commitPredicate CompiledPredicate,
	repo *RepoHandle,
	source storer.EncodedObjectStorer,
	dest storer.Storer,
	preserveMergeCommits bool,
	detach bool,
) *CommitRewriter {
	return &CommitRewriter{
		CommitMap:            cm,
		Discarded:            discarded,
		Resolver:             resolver,
		Tree:                 tree,
		CommitPredicate:      commitPredicate,
		Repo:                 repo,
		Source:               source,
		Dest:                 dest,
		PreserveMergeCommits: preserveMergeCommits,
		Detach:               detach,
		hashesTree:           make(map[plumbing.Hash]plumbing.Hash),
	}
}

// Rewrite processes one source commit: the body of spec §4.4's outer loop.
func (cr *CommitRewriter) Rewrite(ctx context.Context, c *object.Commit) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	source := newSourceCommit(c)
	mc := newMutableCommit(source)

	if cr.CommitPredicate != nil {
		env := &PredicateEnv{Repo: cr.Repo, Commit: mc}
		if err := cr.CommitPredicate.Invoke(ctx, env); err != nil {
			return err
		}
		if mc.IsDiscarded() {
			cr.Discarded.Add(source.ID)
			return nil
		}
	}

	newTreeHash := source.TreeID
	if !cr.Tree.Keep.Empty() || !cr.Tree.Remove.Empty() {
		t, err := c.Tree()
		if err != nil {
			return fmt.Errorf("failed to obtain tree for commit %s: %w", source.ID.String(), err)
		}
		hash, discard, err := cr.Tree.Build(ctx, mc, t)
		if err != nil {
			return err
		}
		if discard {
			cr.Discarded.Add(source.ID)
			return nil
		}
		newTreeHash = hash
	}

	newParents, boundaryParents, err := cr.resolveParents(source.ID, source.ParentIDs)
	if err != nil {
		return err
	}

	if prunedTo, ok := cr.pruneTarget(newParents, newTreeHash); ok {
		cr.CommitMap.Set(source.ID, prunedTo)
		return nil
	}

	if cr.Detach && len(boundaryParents) > 0 {
		kept := newParents[:0:0]
		for _, p := range newParents {
			if !boundaryParents[p] {
				kept = append(kept, p)
			}
		}
		newParents = kept
	}

	mc.Lock()
	newCommit := &object.Commit{
		TreeHash:     newTreeHash,
		ParentHashes: newParents,
		Author:       mc.Author.toSignature(),
		Committer:    mc.Committer.toSignature(),
		Message:      string(mc.Message),
		Encoding:     object.MessageEncoding(mc.Encoding),
	}
	mc.Unlock()

	newHash, err := GetHash(newCommit)
	if err != nil {
		return fmt.Errorf("failed to obtain new hash for commit: %w", err)
	}
	newCommit.Hash = *newHash

	if err := updateHashAndSave(ctx, newCommit, cr.Dest); err != nil {
		return fmt.Errorf("failed to save commit: %w", err)
	}

	cr.hashesTree[newCommit.Hash] = newTreeHash
	cr.CommitMap.Set(source.ID, newCommit.Hash)
	return nil
}

// resolveParents maps a commit's original parent ids onto the ids that
// should parent its rewritten form. Every original parent — in range or
// not — is routed through ParentResolver.Resolve uniformly, so a boundary
// parent (outside the processed range) comes back unchanged via the same
// path a rewritten or discarded one does. Detach is deliberately NOT
// applied here: spec §4.4 strips boundary parents only after the prune
// decision (step 5), so that decision always sees the real parent count
// and tree set, not one already thinned by Detach. The returned map flags
// which of the resolved hashes are unchanged boundary passthroughs, for
// the caller to strip once it knows no prune occurred.
func (cr *CommitRewriter) resolveParents(current plumbing.Hash, originals []plumbing.Hash) ([]plumbing.Hash, map[plumbing.Hash]bool, error) {
	var result []plumbing.Hash
	seen := make(map[plumbing.Hash]bool, len(originals))
	boundary := make(map[plumbing.Hash]bool, len(originals))

	add := func(h plumbing.Hash, isBoundary bool) {
		if !seen[h] {
			seen[h] = true
			result = append(result, h)
		}
		if isBoundary {
			boundary[h] = true
		}
	}

	for _, id := range originals {
		_, known := cr.CommitMap.Get(id)
		inRange := known || cr.Discarded.Contains(id)

		resolved, err := cr.Resolver.Resolve(id)
		if err != nil {
			return nil, nil, &ParentRemapFailureError{Commit: current, Parent: id}
		}
		for _, rp := range resolved {
			add(rp, !inRange)
		}
	}

	return result, boundary, nil
}

// pruneTarget implements the ordinary-prune rule this tool inherited from
// its tree-filtering ancestor: a commit whose rewritten tree is identical
// to one of its new parents' trees collapses into that parent instead of
// being materialised. Merge commits (2+ new parents) are exempt from this
// when PreserveMergeCommits is set; once remapping leaves only a single new
// parent, a commit is no longer a merge for this purpose regardless of how
// many parents it started with (SPEC_FULL.md §13).
func (cr *CommitRewriter) pruneTarget(newParents []plumbing.Hash, newTree plumbing.Hash) (plumbing.Hash, bool) {
	if len(newParents) == 0 {
		return plumbing.ZeroHash, false
	}
	if len(newParents) >= 2 && cr.PreserveMergeCommits {
		return plumbing.ZeroHash, false
	}

	for _, p := range newParents {
		pTree, err := cr.treeOf(p)
		if err != nil {
			continue
		}
		if pTree == newTree {
			return p, true
		}
	}
	return plumbing.ZeroHash, false
}

func (cr *CommitRewriter) treeOf(hash plumbing.Hash) (plumbing.Hash, error) {
	if t, ok := cr.hashesTree[hash]; ok {
		return t, nil
	}
	c, err := object.GetCommit(cr.Source, hash)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	cr.hashesTree[hash] = c.TreeHash
	return c.TreeHash, nil
}
