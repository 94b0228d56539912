package rocketfilter

import (
	"context"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// TreeBuilder implements spec §4.3: a depth-first walk of a source tree,
// dispatching one EntryEvaluator task per leaf onto a Scheduler for the
// keep-phase, then again over the survivors for the remove-phase, and
// finally materialising whatever remains into a new tree. Directory
// entries are only ever recursed into, never themselves admitted (spec
// §4.2) — a directory's presence in the rewritten tree is purely a
// consequence of at least one descendant leaf surviving both phases.
type TreeBuilder struct {
	Evaluator *EntryEvaluator
	Keep      *PatternSet
	Remove    *PatternSet
	Repo      *RepoHandle
	Dest      storer.Storer
	Parallel  bool
}

// NewTreeBuilder wires the pieces a TreeBuilder needs: the shared
// EntryEvaluator, the keep/remove PatternSets for this run, the RepoHandle
// exposed to predicates, the destination storer new blobs/trees are written
// to, and whether Scheduler should run tasks concurrently.
func NewTreeBuilder(evaluator *EntryEvaluator, keep, remove *PatternSet, repo *RepoHandle, dest storer.Storer, parallel bool) *TreeBuilder {
	return &TreeBuilder{
		Evaluator: evaluator,
		Keep:      keep,
		Remove:    remove,
		Repo:      repo,
		Dest:      dest,
		Parallel:  parallel,
	}
}

// leafHandle is one non-directory entry discovered during the initial,
// serial listing pass, paired with enough context to resolve its blob size
// and binary-ness lazily, inside the (possibly concurrent) evaluation task.
type leafHandle struct {
	path      string
	container *object.Tree
	goEntry   object.TreeEntry
	entry     *MutableEntry
}

// Build walks source from its root and returns the hash of the resulting
// tree. The bool return is true when the working set ended up empty or a
// predicate set commit.Discard during evaluation — spec §4.4 step 2 treats
// either outcome as grounds to drop the whole commit.
func (b *TreeBuilder) Build(ctx context.Context, commit *MutableCommit, source *object.Tree) (plumbing.Hash, bool, error) {
	var leaves []*leafHandle
	if err := b.listLeaves(source, "", &leaves); err != nil {
		return plumbing.ZeroHash, false, err
	}

	ws := newWorkingSet()

	keepSched := NewScheduler(ctx, b.Parallel)
	for _, lh := range leaves {
		lh := lh
		keepSched.Go(func() error {
			if err := b.resolveLeaf(lh); err != nil {
				return err
			}
			action, err := b.Evaluator.Evaluate(ctx, b.Repo, commit, lh.entry, b.Keep, PolarityKeep)
			if err != nil {
				return err
			}
			if action == actionAdmit {
				ws.admit(lh.entry)
			}
			return nil
		})
	}
	if err := keepSched.Wait(); err != nil {
		return plumbing.ZeroHash, false, err
	}
	if commit.IsDiscarded() {
		return plumbing.ZeroHash, true, nil
	}

	removeSched := NewScheduler(ctx, b.Parallel)
	for _, e := range ws.snapshot() {
		e := e
		removeSched.Go(func() error {
			action, err := b.Evaluator.Evaluate(ctx, b.Repo, commit, e, b.Remove, PolarityRemove)
			if err != nil {
				return err
			}
			if action == actionEvict {
				ws.evict(e)
			}
			return nil
		})
	}
	if err := removeSched.Wait(); err != nil {
		return plumbing.ZeroHash, false, err
	}
	if commit.IsDiscarded() {
		return plumbing.ZeroHash, true, nil
	}

	final := ws.snapshot()
	if len(final) == 0 {
		return plumbing.ZeroHash, true, nil
	}

	root, err := b.materialise(ctx, final)
	if err != nil {
		return plumbing.ZeroHash, false, err
	}
	return root, false, nil
}

func (b *TreeBuilder) listLeaves(t *object.Tree, prefix string, out *[]*leafHandle) error {
	for _, e := range t.Entries {
		p := e.Name
		if prefix != "" {
			p = prefix + "/" + e.Name
		}
		if e.Mode == filemode.Dir {
			sub, err := t.Tree(e.Name)
			if err != nil {
				return err
			}
			if err := b.listLeaves(sub, p, out); err != nil {
				return err
			}
			continue
		}
		*out = append(*out, &leafHandle{path: p, container: t, goEntry: e})
	}
	return nil
}

func (b *TreeBuilder) resolveLeaf(lh *leafHandle) error {
	mode := entryModeFromFileMode(lh.goEntry.Mode)
	te := TreeEntry{
		Path:   lh.path,
		Name:   lh.goEntry.Name,
		Mode:   mode,
		Target: lh.goEntry.Hash,
	}

	if mode == ModeSubmoduleLink {
		te.Size = SubmoduleSizeSentinel
	} else {
		f, err := lh.container.TreeEntryFile(&lh.goEntry)
		if err != nil {
			return err
		}
		te.Size = f.Size
		isBinary, err := f.IsBinary()
		if err != nil {
			return err
		}
		te.IsBinary = isBinary
	}

	lh.entry = newMutableEntry(te, false)
	return nil
}

// treeNode is a directory being assembled bottom-up out of the final
// working set, keyed by path segment.
type treeNode struct {
	children map[string]*treeNode
	leaf     *MutableEntry
}

func (b *TreeBuilder) materialise(ctx context.Context, entries []*MutableEntry) (plumbing.Hash, error) {
	root := &treeNode{children: map[string]*treeNode{}}
	for _, e := range entries {
		parts := strings.Split(e.Entry.Path, "/")
		cur := root
		for i, part := range parts {
			if i == len(parts)-1 {
				cur.children[part] = &treeNode{leaf: e}
				continue
			}
			child, ok := cur.children[part]
			if !ok {
				child = &treeNode{children: map[string]*treeNode{}}
				cur.children[part] = child
			}
			cur = child
		}
	}
	return b.saveNode(ctx, root)
}

func (b *TreeBuilder) saveNode(ctx context.Context, n *treeNode) (plumbing.Hash, error) {
	var goEntries []object.TreeEntry
	for name, child := range n.children {
		if child.leaf != nil {
			e := child.leaf
			mode := e.Entry.Mode
			target := e.Entry.Target
			if e.Replacement != nil {
				mode = e.Replacement.Mode
				h, err := saveBlob(ctx, b.Dest, e.Replacement.Content)
				if err != nil {
					return plumbing.ZeroHash, err
				}
				target = h
			}
			goEntries = append(goEntries, object.TreeEntry{Name: name, Mode: mode.toFileMode(), Hash: target})
			continue
		}

		h, err := b.saveNode(ctx, child)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		goEntries = append(goEntries, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: h})
	}

	t, err := saveTree(ctx, b.Dest, goEntries)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return t.Hash, nil
}
