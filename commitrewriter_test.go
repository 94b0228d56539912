package rocketfilter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
)

var errFakeResolverFailure = errors.New("fake resolver failure")

func newTestRewriter(s *memory.Storage) (*CommitRewriter, *CommitMap, *DiscardedSet) {
	cm := NewCommitMap()
	discarded := NewDiscardedSet()
	keep := &PatternSet{}
	remove := &PatternSet{}
	tb := NewTreeBuilder(NewEntryEvaluator(false), keep, remove, &RepoHandle{}, s, false)
	resolver := NewParentResolver(cm, discarded, func(h plumbing.Hash) ([]plumbing.Hash, error) {
		c, err := object.GetCommit(s, h)
		if err != nil {
			return nil, err
		}
		return c.ParentHashes, nil
	})
	cr := NewCommitRewriter(cm, discarded, resolver, tb, nil, &RepoHandle{}, s, s, false, false)
	return cr, cm, discarded
}

func commitWith(ctx context.Context, t *testing.T, s *memory.Storage, treeHash plumbing.Hash, parents []plumbing.Hash, message, pgp string) *object.Commit {
	t.Helper()
	sig := object.Signature{Name: "a", Email: "a@example.com", When: time.Unix(0, 0)}
	c := &object.Commit{
		TreeHash:     treeHash,
		ParentHashes: parents,
		Author:       sig,
		Committer:    sig,
		Message:      message,
		PGPSignature: pgp,
	}
	h, err := GetHash(c)
	if err != nil {
		t.Fatal(err)
	}
	c.Hash = *h
	if err := updateHashAndSave(ctx, c, s); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestCommitRewriterPrunesIdenticalTree(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStorage()

	blobHash, err := saveBlob(ctx, s, []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	tree, err := saveTree(ctx, s, []object.TreeEntry{{Name: "a.txt", Mode: filemode.Regular, Hash: blobHash}})
	if err != nil {
		t.Fatal(err)
	}

	root := commitWith(ctx, t, s, tree.Hash, nil, "root", "")
	child := commitWith(ctx, t, s, tree.Hash, []plumbing.Hash{root.Hash}, "no-op change", "fake-signature")

	cr, cm, _ := newTestRewriter(s)
	if err := cr.Rewrite(ctx, root); err != nil {
		t.Fatal(err)
	}
	if err := cr.Rewrite(ctx, child); err != nil {
		t.Fatal(err)
	}

	newRoot, ok := cm.Get(root.Hash)
	if !ok {
		t.Fatal("expected root to be mapped")
	}
	newChild, ok := cm.Get(child.Hash)
	if !ok {
		t.Fatal("expected child to be mapped")
	}
	if newChild != newRoot {
		t.Fatalf("expected child to be pruned onto root, got newChild=%s newRoot=%s", newChild, newRoot)
	}
}

func TestCommitRewriterStripsGPGSignature(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStorage()

	blob1, err := saveBlob(ctx, s, []byte("one"))
	if err != nil {
		t.Fatal(err)
	}
	blob2, err := saveBlob(ctx, s, []byte("two"))
	if err != nil {
		t.Fatal(err)
	}
	rootTree, err := saveTree(ctx, s, []object.TreeEntry{{Name: "a.txt", Mode: filemode.Regular, Hash: blob1}})
	if err != nil {
		t.Fatal(err)
	}
	childTree, err := saveTree(ctx, s, []object.TreeEntry{
		{Name: "a.txt", Mode: filemode.Regular, Hash: blob1},
		{Name: "b.txt", Mode: filemode.Regular, Hash: blob2},
	})
	if err != nil {
		t.Fatal(err)
	}

	root := commitWith(ctx, t, s, rootTree.Hash, nil, "root", "")
	child := commitWith(ctx, t, s, childTree.Hash, []plumbing.Hash{root.Hash}, "signed change", "-----BEGIN PGP SIGNATURE-----\nfake\n-----END PGP SIGNATURE-----")

	cr, cm, _ := newTestRewriter(s)
	if err := cr.Rewrite(ctx, root); err != nil {
		t.Fatal(err)
	}
	if err := cr.Rewrite(ctx, child); err != nil {
		t.Fatal(err)
	}

	newChild, ok := cm.Get(child.Hash)
	if !ok {
		t.Fatal("expected child to be mapped")
	}
	rewritten, err := object.GetCommit(s, newChild)
	if err != nil {
		t.Fatal(err)
	}
	if rewritten.PGPSignature != "" {
		t.Fatal("expected the rewritten commit to carry no GPG signature")
	}
}

func TestCommitRewriterCommitPredicateDiscard(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStorage()

	blobHash, err := saveBlob(ctx, s, []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	tree, err := saveTree(ctx, s, []object.TreeEntry{{Name: "a.txt", Mode: filemode.Regular, Hash: blobHash}})
	if err != nil {
		t.Fatal(err)
	}
	root := commitWith(ctx, t, s, tree.Hash, nil, "drop me", "")

	cr, cm, discarded := newTestRewriter(s)
	host := NewStarlarkHost()
	pred, err := host.Compile("drop-all", "commit.discard = True")
	if err != nil {
		t.Fatal(err)
	}
	cr.CommitPredicate = pred

	if err := cr.Rewrite(ctx, root); err != nil {
		t.Fatal(err)
	}
	if _, ok := cm.Get(root.Hash); ok {
		t.Fatal("expected a discarded commit to not appear in CommitMap")
	}
	if !discarded.Contains(root.Hash) {
		t.Fatal("expected the commit to be recorded as discarded")
	}
}

func TestCommitRewriterPassesThroughBoundaryParentWithoutDetach(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStorage()

	blobHash, err := saveBlob(ctx, s, []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	tree, err := saveTree(ctx, s, []object.TreeEntry{{Name: "a.txt", Mode: filemode.Regular, Hash: blobHash}})
	if err != nil {
		t.Fatal(err)
	}

	// boundary is never passed to Rewrite, and is neither in CommitMap nor
	// Discarded: it stands in for a commit outside the processed range.
	boundary := plumbing.NewHash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	child := commitWith(ctx, t, s, tree.Hash, []plumbing.Hash{boundary}, "child of a boundary commit", "")

	cr, cm, _ := newTestRewriter(s)
	cr.Detach = false

	if err := cr.Rewrite(ctx, child); err != nil {
		t.Fatal(err)
	}
	newChild, ok := cm.Get(child.Hash)
	if !ok {
		t.Fatal("expected child to be mapped")
	}
	rewritten, err := object.GetCommit(s, newChild)
	if err != nil {
		t.Fatal(err)
	}
	if len(rewritten.ParentHashes) != 1 || rewritten.ParentHashes[0] != boundary {
		t.Fatalf("expected the boundary parent to be passed through unchanged, got %v", rewritten.ParentHashes)
	}
}

func TestCommitRewriterDetachDropsBoundaryParent(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStorage()

	blobHash, err := saveBlob(ctx, s, []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	tree, err := saveTree(ctx, s, []object.TreeEntry{{Name: "a.txt", Mode: filemode.Regular, Hash: blobHash}})
	if err != nil {
		t.Fatal(err)
	}

	boundary := plumbing.NewHash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	child := commitWith(ctx, t, s, tree.Hash, []plumbing.Hash{boundary}, "child of a boundary commit", "")

	cr, cm, _ := newTestRewriter(s)
	cr.Detach = true

	if err := cr.Rewrite(ctx, child); err != nil {
		t.Fatal(err)
	}
	newChild, ok := cm.Get(child.Hash)
	if !ok {
		t.Fatal("expected child to be mapped")
	}
	rewritten, err := object.GetCommit(s, newChild)
	if err != nil {
		t.Fatal(err)
	}
	if len(rewritten.ParentHashes) != 0 {
		t.Fatalf("expected Detach to drop the boundary parent entirely, got %v", rewritten.ParentHashes)
	}
}

func TestCommitRewriterPrunesMergeWithoutPreserveMergeCommits(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStorage()

	blob1, err := saveBlob(ctx, s, []byte("one"))
	if err != nil {
		t.Fatal(err)
	}
	blob2, err := saveBlob(ctx, s, []byte("two"))
	if err != nil {
		t.Fatal(err)
	}
	tree1, err := saveTree(ctx, s, []object.TreeEntry{{Name: "a.txt", Mode: filemode.Regular, Hash: blob1}})
	if err != nil {
		t.Fatal(err)
	}
	tree2, err := saveTree(ctx, s, []object.TreeEntry{{Name: "b.txt", Mode: filemode.Regular, Hash: blob2}})
	if err != nil {
		t.Fatal(err)
	}

	p1 := commitWith(ctx, t, s, tree1.Hash, nil, "p1", "")
	p2 := commitWith(ctx, t, s, tree2.Hash, nil, "p2", "")
	// merge's own tree matches p1's exactly, so it is a no-op merge.
	merge := commitWith(ctx, t, s, tree1.Hash, []plumbing.Hash{p1.Hash, p2.Hash}, "merge", "")

	cr, cm, _ := newTestRewriter(s)
	cr.PreserveMergeCommits = false

	for _, c := range []*object.Commit{p1, p2, merge} {
		if err := cr.Rewrite(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	newP1, ok := cm.Get(p1.Hash)
	if !ok {
		t.Fatal("expected p1 to be mapped")
	}
	newMerge, ok := cm.Get(merge.Hash)
	if !ok {
		t.Fatal("expected merge to be mapped")
	}
	if newMerge != newP1 {
		t.Fatalf("expected the no-op merge to prune onto p1, got newMerge=%s newP1=%s", newMerge, newP1)
	}
}

func TestCommitRewriterPreserveMergeCommitsSkipsPrune(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStorage()

	blob1, err := saveBlob(ctx, s, []byte("one"))
	if err != nil {
		t.Fatal(err)
	}
	blob2, err := saveBlob(ctx, s, []byte("two"))
	if err != nil {
		t.Fatal(err)
	}
	tree1, err := saveTree(ctx, s, []object.TreeEntry{{Name: "a.txt", Mode: filemode.Regular, Hash: blob1}})
	if err != nil {
		t.Fatal(err)
	}
	tree2, err := saveTree(ctx, s, []object.TreeEntry{{Name: "b.txt", Mode: filemode.Regular, Hash: blob2}})
	if err != nil {
		t.Fatal(err)
	}

	p1 := commitWith(ctx, t, s, tree1.Hash, nil, "p1", "")
	p2 := commitWith(ctx, t, s, tree2.Hash, nil, "p2", "")
	merge := commitWith(ctx, t, s, tree1.Hash, []plumbing.Hash{p1.Hash, p2.Hash}, "merge", "")

	cr, cm, _ := newTestRewriter(s)
	cr.PreserveMergeCommits = true

	for _, c := range []*object.Commit{p1, p2, merge} {
		if err := cr.Rewrite(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	newP1, ok := cm.Get(p1.Hash)
	if !ok {
		t.Fatal("expected p1 to be mapped")
	}
	newP2, ok := cm.Get(p2.Hash)
	if !ok {
		t.Fatal("expected p2 to be mapped")
	}
	newMerge, ok := cm.Get(merge.Hash)
	if !ok {
		t.Fatal("expected merge to be mapped")
	}
	if newMerge == newP1 {
		t.Fatal("expected PreserveMergeCommits to keep the merge from being pruned onto p1")
	}
	rewritten, err := object.GetCommit(s, newMerge)
	if err != nil {
		t.Fatal(err)
	}
	if len(rewritten.ParentHashes) != 2 || rewritten.ParentHashes[0] != newP1 || rewritten.ParentHashes[1] != newP2 {
		t.Fatalf("expected the preserved merge to keep both parents, got %v", rewritten.ParentHashes)
	}
}

func TestCommitRewriterPrunesOntoBoundaryParent(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStorage()

	blobHash, err := saveBlob(ctx, s, []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	tree, err := saveTree(ctx, s, []object.TreeEntry{{Name: "a.txt", Mode: filemode.Regular, Hash: blobHash}})
	if err != nil {
		t.Fatal(err)
	}

	// boundary stands in for a commit outside the processed range whose
	// tree happens to already match what child rewrites to: without this
	// prune opportunity, child would stay materialised as a redundant
	// no-op commit on top of a range it never touched.
	boundary := commitWith(ctx, t, s, tree.Hash, nil, "boundary ancestor", "")
	child := commitWith(ctx, t, s, tree.Hash, []plumbing.Hash{boundary.Hash}, "no-op descendant of a boundary commit", "")

	cr, cm, _ := newTestRewriter(s)

	if err := cr.Rewrite(ctx, child); err != nil {
		t.Fatal(err)
	}
	newChild, ok := cm.Get(child.Hash)
	if !ok {
		t.Fatal("expected child to be mapped")
	}
	if newChild != boundary.Hash {
		t.Fatalf("expected child to prune onto the boundary parent, got newChild=%s want=%s", newChild, boundary.Hash)
	}
}

func TestCommitRewriterDetachStripsBoundaryOnlyAfterPruneDecision(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStorage()

	blob1, err := saveBlob(ctx, s, []byte("one"))
	if err != nil {
		t.Fatal(err)
	}
	blob2, err := saveBlob(ctx, s, []byte("two"))
	if err != nil {
		t.Fatal(err)
	}
	tree1, err := saveTree(ctx, s, []object.TreeEntry{{Name: "a.txt", Mode: filemode.Regular, Hash: blob1}})
	if err != nil {
		t.Fatal(err)
	}
	tree2, err := saveTree(ctx, s, []object.TreeEntry{{Name: "b.txt", Mode: filemode.Regular, Hash: blob2}})
	if err != nil {
		t.Fatal(err)
	}

	p1 := commitWith(ctx, t, s, tree1.Hash, nil, "p1", "")
	// boundary is a second parent outside the processed range: never
	// passed to Rewrite, so it is neither mapped nor discarded.
	boundary := commitWith(ctx, t, s, tree2.Hash, nil, "boundary", "")
	// merge's own tree matches p1's exactly: if Detach stripped the
	// boundary parent before the prune decision ran, pruneTarget would see
	// a single-parent commit whose tree matches that parent and prune it
	// onto p1 — silently bypassing PreserveMergeCommits, which only guards
	// commits the prune check still recognises as having 2+ parents.
	merge := commitWith(ctx, t, s, tree1.Hash, []plumbing.Hash{p1.Hash, boundary.Hash}, "merge", "")

	cr, cm, _ := newTestRewriter(s)
	cr.Detach = true
	cr.PreserveMergeCommits = true

	if err := cr.Rewrite(ctx, p1); err != nil {
		t.Fatal(err)
	}
	if err := cr.Rewrite(ctx, merge); err != nil {
		t.Fatal(err)
	}

	newP1, ok := cm.Get(p1.Hash)
	if !ok {
		t.Fatal("expected p1 to be mapped")
	}
	newMerge, ok := cm.Get(merge.Hash)
	if !ok {
		t.Fatal("expected merge to be mapped")
	}
	// The prune decision must see both parents (2 >= 2, PreserveMergeCommits
	// set) and refuse to prune, even though Detach will later strip the
	// boundary parent down to a single surviving parent. If Detach-dropping
	// ran before the prune check instead, newParents would already be down
	// to [newP1] by the time pruneTarget saw it, losing the merge guard.
	if newMerge == newP1 {
		t.Fatal("expected the merge guard to see both parents before Detach stripped the boundary one")
	}

	rewritten, err := object.GetCommit(s, newMerge)
	if err != nil {
		t.Fatal(err)
	}
	if len(rewritten.ParentHashes) != 1 || rewritten.ParentHashes[0] != newP1 {
		t.Fatalf("expected Detach to strip the boundary parent after the prune decision, got %v", rewritten.ParentHashes)
	}
}

func TestCommitRewriterParentRemapFailure(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStorage()

	blobHash, err := saveBlob(ctx, s, []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	tree, err := saveTree(ctx, s, []object.TreeEntry{{Name: "a.txt", Mode: filemode.Regular, Hash: blobHash}})
	if err != nil {
		t.Fatal(err)
	}

	cm := NewCommitMap()
	discarded := NewDiscardedSet()
	keep := &PatternSet{}
	remove := &PatternSet{}
	tb := NewTreeBuilder(NewEntryEvaluator(false), keep, remove, &RepoHandle{}, s, false)
	boom := plumbing.NewHash("9999999999999999999999999999999999999999")
	resolver := NewParentResolver(cm, discarded, func(h plumbing.Hash) ([]plumbing.Hash, error) {
		return nil, errFakeResolverFailure
	})
	cr := NewCommitRewriter(cm, discarded, resolver, tb, nil, &RepoHandle{}, s, s, false, false)

	discarded.Add(boom)
	child := commitWith(ctx, t, s, tree.Hash, []plumbing.Hash{boom}, "orphaned reference", "")

	err = cr.Rewrite(ctx, child)
	if err == nil {
		t.Fatal("expected a parent remap failure")
	}
	if _, ok := err.(*ParentRemapFailureError); !ok {
		t.Fatalf("expected *ParentRemapFailureError, got %T", err)
	}
}
