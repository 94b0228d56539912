package rocketfilter

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/emirpasic/gods/stacks/arraystack"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// RevisionRange is the parsed form of the revspec argument from spec §4.6:
// either a single commit (rewrite everything reachable from it) or a
// from..to range (rewrite everything reachable from "to" but not from
// "from").
type RevisionRange struct {
	Single bool
	From   plumbing.Hash // zero for Single
	To     plumbing.Hash
}

// ParseRevisionRange implements spec §4.6. An empty spec defaults to
// Single(HEAD). Merge-base forms ("a...b") are rejected outright: resolving
// them requires a full merge-base search this tool has no use for once
// "from" is meant to denote an exclusion boundary, not a common ancestor.
func ParseRevisionRange(spec string, resolve func(string) (plumbing.Hash, error)) (RevisionRange, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = "HEAD"
	}

	if strings.Contains(spec, "...") {
		return RevisionRange{}, &InvalidRevspecError{
			Revspec: spec,
			Detail:  "merge-base (\"...\") revspecs are not supported",
		}
	}

	if idx := strings.Index(spec, ".."); idx >= 0 {
		fromStr := spec[:idx]
		toStr := spec[idx+2:]
		if fromStr == "" || toStr == "" {
			return RevisionRange{}, &InvalidRevspecError{
				Revspec: spec,
				Detail:  "range revspecs require both endpoints",
			}
		}
		from, err := resolve(fromStr)
		if err != nil {
			return RevisionRange{}, &InvalidRevspecError{Revspec: spec, Detail: err.Error()}
		}
		to, err := resolve(toStr)
		if err != nil {
			return RevisionRange{}, &InvalidRevspecError{Revspec: spec, Detail: err.Error()}
		}
		return RevisionRange{From: from, To: to}, nil
	}

	to, err := resolve(spec)
	if err != nil {
		return RevisionRange{}, &InvalidRevspecError{Revspec: spec, Detail: err.Error()}
	}
	return RevisionRange{Single: true, To: to}, nil
}

// dfsNode and dfsBuilder are walkDFS's bookkeeping, adapted directly from
// the single-head walker this generalises: instead of stopping at a fixed
// root set, the walk here also stops at commits already known to be
// excluded (the "from" side of a range) and respects an optional generation
// cap (spec §12.3's --max-depth). The explicit stack is an arraystack
// rather than a bare slice so that the walk's own state lives in the same
// kind of ordered container DiscardedSet (hashset.go) already uses.
type dfsNode struct {
	data       *object.Commit
	nparent    int
	nextvisit  int
	generation int
}

type dfsBuilder struct {
	seen  map[plumbing.Hash]empty
	stack *arraystack.Stack
}

func newDFSBuilder() *dfsBuilder {
	return &dfsBuilder{stack: arraystack.New(), seen: make(map[plumbing.Hash]empty)}
}

func (b *dfsBuilder) add(v *object.Commit, generation int) {
	if _, seen := b.seen[v.Hash]; seen {
		return
	}
	b.seen[v.Hash] = empty{}
	b.stack.Push(&dfsNode{data: v, nparent: v.NumParents(), generation: generation})
}

func (b *dfsBuilder) pop() error {
	if _, ok := b.stack.Pop(); !ok {
		return fmt.Errorf("failed to pop empty stack")
	}
	return nil
}

func (b *dfsBuilder) top() *dfsNode {
	v, ok := b.stack.Peek()
	if !ok {
		return nil
	}
	return v.(*dfsNode)
}

// walkDFS returns a deterministic depth-first traversal from head, with
// head last in the returned slice and a boundary/root commit first —
// i.e. parents always precede children, the order CommitRewriter needs to
// process commits in (spec §2.3/§5: "outer commit loop ... walks the
// revision range in topological order, parents before children").
//
// The walk follows the first parent, then the second, and so on, so among
// commits at the same depth the result matches `git log --first-parent`
// history for as long as it stays on first-parent edges.
//
// excluded stops the walk from descending past a commit (the "from" side
// of a range); maxGeneration, if positive, caps how many generations back
// from head are visited at all.
func walkDFS(ctx context.Context, head *object.Commit, excluded HashSet, maxGeneration int) ([]*object.Commit, error) {
	result := make([]*object.Commit, 0)
	b := newDFSBuilder()
	b.add(head, 0)

	if excluded == nil {
		excluded = make(HashSet)
	}
	if maxGeneration <= 0 {
		maxGeneration = math.MaxInt
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		current := b.top()
		if current == nil {
			break
		}

		_, isBoundary := excluded[current.data.Hash]

		switch {
		case isBoundary:
			if err := b.pop(); err != nil {
				return nil, err
			}
		case current.nextvisit == current.nparent:
			result = append(result, current.data)
			if err := b.pop(); err != nil {
				return nil, err
			}
		case current.generation >= maxGeneration-1:
			result = append(result, current.data)
			if err := b.pop(); err != nil {
				return nil, err
			}
		default:
			p, err := current.data.Parent(current.nextvisit)
			if err != nil {
				return nil, fmt.Errorf("cannot get parent %d for %s: %w", current.nextvisit, current.data.Hash.String(), err)
			}
			current.nextvisit++
			b.add(p, current.generation+1)
		}
	}

	return result, nil
}

// Resolve walks the range and returns the commits to rewrite, oldest (or
// furthest-boundary) first. For a Single range, every commit reachable from
// To is included and excluded is empty; for a range, commits reachable from
// From (and From itself) are excluded.
func (rr RevisionRange) Resolve(ctx context.Context, getCommit func(plumbing.Hash) (*object.Commit, error), maxGeneration int) ([]*object.Commit, error) {
	head, err := getCommit(rr.To)
	if err != nil {
		return nil, fmt.Errorf("resolving revision range head %s: %w", rr.To.String(), err)
	}

	excluded := make(HashSet)
	if !rr.Single {
		fromCommit, err := getCommit(rr.From)
		if err != nil {
			return nil, fmt.Errorf("resolving revision range base %s: %w", rr.From.String(), err)
		}
		closure, err := walkDFS(ctx, fromCommit, nil, 0)
		if err != nil {
			return nil, err
		}
		excluded = NewHashSetFromCommits(closure)
	}

	return walkDFS(ctx, head, excluded, maxGeneration)
}
