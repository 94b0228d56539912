package rocketfilter

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
)

var (
	// ErrMissingBranchName is returned when no output branch name was given.
	ErrMissingBranchName = errors.New("missing branch name")
	// ErrBranchExistsNoForce is returned when the output branch already
	// exists and --force was not given.
	ErrBranchExistsNoForce = errors.New("branch already exists, use force to overwrite")
	// ErrMissingFilter is returned when neither a commit filter nor a tree
	// filter was configured.
	ErrMissingFilter = errors.New("no commit or tree filter configured")
	// ErrInvalidRepository is returned when the configured repo-dir does not
	// contain a git repository.
	ErrInvalidRepository = errors.New("not a valid git repository")
)

// InvalidRevspecError reports a revspec that failed to parse or that is
// semantically rejected (merge-base form).
type InvalidRevspecError struct {
	Revspec string
	Detail  string
}

func (e *InvalidRevspecError) Error() string {
	return fmt.Sprintf("invalid revspec %q: %s", e.Revspec, e.Detail)
}

// PatternParseError reports a failure while parsing a pattern block.
type PatternParseError struct {
	Reason string
	Line   int
}

func (e *PatternParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("pattern parse error at line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("pattern parse error: %s", e.Reason)
}

// PredicateCompilationError reports a user predicate that failed to
// compile. Diagnostics carries the host's error text (e.g. line/column from
// the embedded script compiler) and Source is an indented dump of the
// generated source that was compiled.
type PredicateCompilationError struct {
	Diagnostics string
	Source      string
}

func (e *PredicateCompilationError) Error() string {
	dump := indentLines(e.Source)
	return fmt.Sprintf("predicate failed to compile: %s\n%s", e.Diagnostics, dump)
}

func indentLines(s string) string {
	if s == "" {
		return ""
	}
	out := "    "
	for _, r := range s {
		out += string(r)
		if r == '\n' {
			out += "    "
		}
	}
	return out
}

// PredicateRuntimeError reports a user predicate that raised a failure
// during evaluation against a specific source commit.
type PredicateRuntimeError struct {
	SourceCommitID plumbing.Hash
	Message        string
}

func (e *PredicateRuntimeError) Error() string {
	return fmt.Sprintf("predicate failed evaluating commit %s: %s", e.SourceCommitID, e.Message)
}

// ParentRemapFailureError indicates an internal invariant violation: a
// parent could not be resolved and is not outside the processed range.
type ParentRemapFailureError struct {
	Commit plumbing.Hash
	Parent plumbing.Hash
}

func (e *ParentRemapFailureError) Error() string {
	return fmt.Sprintf("failed to remap parent %s of commit %s", e.Parent, e.Commit)
}
