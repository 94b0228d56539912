package rocketfilter

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
)

func TestParentResolverResolvesThroughDiscardedCommit(t *testing.T) {
	cm := NewCommitMap()
	discarded := NewDiscardedSet()

	a := plumbing.NewHash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	b := plumbing.NewHash("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	newA := plumbing.NewHash("dddddddddddddddddddddddddddddddddddddddd")

	// b was discarded by the commit filter; its own parent is a, which was
	// kept and rewritten to newA.
	cm.Set(a, newA)
	discarded.Add(b)

	resolver := NewParentResolver(cm, discarded, func(h plumbing.Hash) ([]plumbing.Hash, error) {
		if h == b {
			return []plumbing.Hash{a}, nil
		}
		t.Fatalf("unexpected ParentsOf(%s)", h)
		return nil, nil
	})

	got, err := resolver.Resolve(b)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != newA {
		t.Fatalf("expected [newA], got %v", got)
	}
}

func TestParentResolverPassesThroughBoundaryCommit(t *testing.T) {
	cm := NewCommitMap()
	discarded := NewDiscardedSet()
	c := plumbing.NewHash("cccccccccccccccccccccccccccccccccccccccc")

	resolver := NewParentResolver(cm, discarded, func(h plumbing.Hash) ([]plumbing.Hash, error) {
		t.Fatalf("ParentsOf should not be called for an unmapped, non-discarded commit")
		return nil, nil
	})

	got, err := resolver.Resolve(c)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != c {
		t.Fatalf("expected boundary passthrough [c], got %v", got)
	}
}

func TestParentResolverIndependentDiscardedCommitsResolveToSameAncestor(t *testing.T) {
	cm := NewCommitMap()
	discarded := NewDiscardedSet()

	a := plumbing.NewHash("1111111111111111111111111111111111111111")
	b := plumbing.NewHash("2222222222222222222222222222222222222222")
	shared := plumbing.NewHash("3333333333333333333333333333333333333333")
	newShared := plumbing.NewHash("4444444444444444444444444444444444444444")

	// a and b are both discarded, single-parent commits that both descend
	// from the same kept commit, shared. Resolving each independently
	// should land on the same image.
	cm.Set(shared, newShared)
	discarded.Add(a)
	discarded.Add(b)

	resolver := NewParentResolver(cm, discarded, func(h plumbing.Hash) ([]plumbing.Hash, error) {
		switch h {
		case a, b:
			return []plumbing.Hash{shared}, nil
		}
		t.Fatalf("unexpected ParentsOf(%s)", h)
		return nil, nil
	})

	gotA, err := resolver.Resolve(a)
	if err != nil {
		t.Fatal(err)
	}
	gotB, err := resolver.Resolve(b)
	if err != nil {
		t.Fatal(err)
	}
	if len(gotA) != 1 || gotA[0] != newShared {
		t.Fatalf("expected [newShared] for a, got %v", gotA)
	}
	if len(gotB) != 1 || gotB[0] != newShared {
		t.Fatalf("expected [newShared] for b, got %v", gotB)
	}
}

// TestParentResolverDiscardedMergeDoesNotFanOut is the regression case for a
// discarded two-parent merge commit: resolving it must try its source
// parents in order and stop at the first non-empty result, not splice every
// parent's image into the answer. Otherwise a descendant that had the
// discarded merge as its sole parent would itself be turned into a merge.
func TestParentResolverDiscardedMergeDoesNotFanOut(t *testing.T) {
	cm := NewCommitMap()
	discarded := NewDiscardedSet()

	x := plumbing.NewHash("5555555555555555555555555555555555555555")
	y := plumbing.NewHash("6666666666666666666666666666666666666666")
	discardedMerge := plumbing.NewHash("7777777777777777777777777777777777777777")
	newX := plumbing.NewHash("8888888888888888888888888888888888888888")
	newY := plumbing.NewHash("9999999999999999999999999999999999999999")

	cm.Set(x, newX)
	cm.Set(y, newY)
	discarded.Add(discardedMerge)

	resolver := NewParentResolver(cm, discarded, func(h plumbing.Hash) ([]plumbing.Hash, error) {
		if h == discardedMerge {
			return []plumbing.Hash{x, y}, nil
		}
		t.Fatalf("unexpected ParentsOf(%s)", h)
		return nil, nil
	})

	got, err := resolver.Resolve(discardedMerge)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != newX {
		t.Fatalf("expected resolution to stop at the first non-empty parent [newX], got %v", got)
	}
}
