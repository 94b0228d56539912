package rocketfilter

import "context"

// entryAction is the result of evaluating one tree-entry against one
// PatternSet/polarity pair (spec §4.2).
type entryAction int

const (
	actionNone entryAction = iota
	actionAdmit
	actionEvict
)

// EntryEvaluator implements spec §4.2: given a commit, a tree-entry,
// a PatternSet and a polarity, it decides whether the entry joins (keep) or
// leaves (remove) the working set, and whether a predicate replaced its
// blob.
type EntryEvaluator struct {
	IncludeLinks bool
}

// NewEntryEvaluator creates an EntryEvaluator. includeLinks mirrors
// spec §4.2's "iff the include-links option is enabled" clause for the
// empty-PatternSet/keep-everything special case.
func NewEntryEvaluator(includeLinks bool) *EntryEvaluator {
	return &EntryEvaluator{IncludeLinks: includeLinks}
}

// Evaluate runs the decision procedure from spec §4.2. It never mutates the
// working set itself — TreeBuilder applies the returned action — so that
// EntryEvaluator stays free of the concurrency/identity concerns that
// belong to the working set (spec §5, §9).
func (ev *EntryEvaluator) Evaluate(
	ctx context.Context,
	repo *RepoHandle,
	commit *MutableCommit,
	entry *MutableEntry,
	patterns *PatternSet,
	polarity Polarity,
) (entryAction, error) {
	if err := ctx.Err(); err != nil {
		return actionNone, err
	}

	if patterns.Empty() {
		if polarity != PolarityKeep {
			return actionNone, nil
		}
		if entry.Entry.Mode == ModeSubmoduleLink && !ev.IncludeLinks {
			return actionNone, nil
		}
		return actionAdmit, nil
	}

	matched := patterns.Match(entry.Entry.Path)
	if matched == nil {
		return actionNone, nil
	}

	if !matched.Rule.HasPredicate() {
		if polarity == PolarityKeep {
			return actionAdmit, nil
		}
		return actionEvict, nil
	}

	entry.Discard = polarity == PolarityRemove

	env := &PredicateEnv{
		Repo:    repo,
		Pattern: matched.Rule.Glob,
		Commit:  commit,
		Entry:   entry,
	}
	if err := matched.Rule.Predicate.Invoke(ctx, env); err != nil {
		return actionNone, err
	}

	if commit.IsDiscarded() {
		// Whole-commit drop: propagate upward. The caller (TreeBuilder)
		// checks commit.Discard after its barriers; there is nothing
		// further to do for this entry.
		return actionNone, nil
	}

	reaffirmedDefault := entry.Discard == (polarity == PolarityRemove)

	admit := polarity == PolarityKeep
	if !reaffirmedDefault {
		admit = !admit
	}

	if admit {
		return actionAdmit, nil
	}
	return actionEvict, nil
}
