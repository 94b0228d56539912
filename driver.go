package rocketfilter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Driver implements spec §4.7: validate a RunConfig, orchestrate a
// CommitRewriter across the resolved revision range, and write the
// resulting branch ref. It is the single entry point cmd/git-rocket-filter
// calls into.
type Driver struct {
	Config *RunConfig
}

// NewDriver wraps cfg in a Driver ready to Run.
func NewDriver(cfg *RunConfig) *Driver {
	return &Driver{Config: cfg}
}

// Run executes one filtering pass end to end: validation, the revision
// range walk, the per-commit rewrite, and the final branch-ref write.
func (d *Driver) Run(ctx context.Context) error {
	cfg := d.Config

	if cfg.RepoDir == "" {
		cfg.RepoDir = "."
	}
	if cfg.Branch == "" {
		return ErrMissingBranchName
	}

	storage, err := openRepository(cfg.RepoDir)
	if err != nil {
		return err
	}

	if branchExists(storage, cfg.Branch) && !cfg.Force {
		return ErrBranchExistsNoForce
	}

	keepText, err := resolvePatternText(cfg.KeepPatterns, cfg.KeepPatternFile)
	if err != nil {
		return fmt.Errorf("reading keep patterns: %w", err)
	}
	removeText, err := resolvePatternText(cfg.RemovePatterns, cfg.RemovePatternFile)
	if err != nil {
		return fmt.Errorf("reading remove patterns: %w", err)
	}
	commitFilterText, err := resolveCommitFilterText(cfg.CommitFilter, cfg.CommitFilterFile)
	if err != nil {
		return fmt.Errorf("reading commit filter: %w", err)
	}

	if keepText == "" && removeText == "" && commitFilterText == "" {
		return ErrMissingFilter
	}

	host := NewStarlarkHost()

	keep, err := NewPatternSet(keepText, PolarityKeep, nil, host)
	if err != nil {
		return err
	}
	remove, err := NewPatternSet(removeText, PolarityRemove, nil, host)
	if err != nil {
		return err
	}

	var commitPredicate CompiledPredicate
	if commitFilterText != "" {
		commitPredicate, err = host.Compile("commit-filter", commitFilterText)
		if err != nil {
			return err
		}
	}

	resolve := makeRevResolver(storage)
	rr, err := ParseRevisionRange(cfg.Revspec, resolve)
	if err != nil {
		return err
	}

	commits, err := rr.Resolve(ctx, func(h plumbing.Hash) (*object.Commit, error) {
		return getCommit(storage, h)
	}, cfg.MaxDepth)
	if err != nil {
		return err
	}

	if cfg.CheckPatches || cfg.StrictCheckPatches {
		if err := d.checkPatches(commits, keep, remove, cfg.StrictCheckPatches); err != nil {
			return err
		}
	}

	repo := &RepoHandle{Path: cfg.RepoDir}
	cm := NewCommitMap()
	discarded := NewDiscardedSet()
	evaluator := NewEntryEvaluator(cfg.IncludeLinks)
	treeBuilder := NewTreeBuilder(evaluator, keep, remove, repo, storage, !cfg.DisableThreads)
	parentResolver := NewParentResolver(cm, discarded, func(h plumbing.Hash) ([]plumbing.Hash, error) {
		c, err := getCommit(storage, h)
		if err != nil {
			return nil, err
		}
		return c.ParentHashes, nil
	})
	rewriter := NewCommitRewriter(
		cm, discarded, parentResolver, treeBuilder,
		commitPredicate, repo, storage, storage,
		cfg.PreserveMergeCommits, cfg.Detach,
	)

	for i, c := range commits {
		if err := rewriter.Rewrite(ctx, c); err != nil {
			return err
		}
		if cfg.Verbose {
			slog.Info("rewrote commit", "index", i, "total", len(commits), "commit", c.Hash)
		}
	}

	newHead, ok := cm.Get(rr.To)
	if !ok {
		return fmt.Errorf("revision range produced no commits: head %s was discarded or pruned away entirely", rr.To)
	}

	return writeBranchRef(storage, cfg.Branch, newHead, false)
}

// checkPatches implements the --check-patches/--strict-check-patches
// supplemental feature (SPEC_FULL.md §12.1) ahead of the actual rewrite.
// Root commits have no parent to diff against and are skipped: there is no
// patch, only a full tree, to check against the filter.
func (d *Driver) checkPatches(commits []*object.Commit, keep, remove *PatternSet, strict bool) error {
	for _, c := range commits {
		if c.NumParents() == 0 {
			continue
		}
		parent, err := c.Parent(0)
		if err != nil {
			return fmt.Errorf("check-patches: resolving parent of %s: %w", c.Hash, err)
		}
		parentTree, err := parent.Tree()
		if err != nil {
			return err
		}
		tree, err := c.Tree()
		if err != nil {
			return err
		}
		changes, err := parentTree.Diff(tree)
		if err != nil {
			return fmt.Errorf("check-patches: diffing %s: %w", c.Hash, err)
		}
		patch, err := changes.Patch()
		if err != nil {
			return fmt.Errorf("check-patches: building patch for %s: %w", c.Hash, err)
		}

		result := CheckFilePatchesAgainstFilter(patch.FilePatches(), keep, remove)
		if err := result.ToError(); err != nil {
			if strict {
				return fmt.Errorf("commit %s touches paths the filter would drop: %w", c.Hash, err)
			}
			slog.Warn("commit touches paths the filter would drop", "commit", c.Hash, "detail", err)
		}
	}
	return nil
}
