package rocketfilter

import (
	"context"
	"fmt"

	"go.starlark.net/starlark"
)

// RepoHandle is the opaque repository handle predicates observe as `repo`
// (spec §6 Predicate environment).
type RepoHandle struct {
	// Path is the repository's on-disk path, or empty for in-memory repos.
	Path string
}

// PredicateEnv is the full set of values a predicate invocation observes.
// Pattern and Entry are only populated for tree (entry) predicates.
type PredicateEnv struct {
	Repo    *RepoHandle
	Pattern string
	Commit  *MutableCommit
	Entry   *MutableEntry
}

// CompiledPredicate is a predicate that has been compiled and is ready to be
// invoked repeatedly. See spec §9's design note.
type CompiledPredicate interface {
	Invoke(ctx context.Context, env *PredicateEnv) error
}

// PredicateHost abstracts the scripting engine used to compile and run user
// predicate text. The rewrite engine depends only on this interface — see
// spec §9 — so a different embedded-script runtime can be swapped in
// without touching PatternSet/EntryEvaluator/CommitRewriter.
type PredicateHost interface {
	Compile(name, source string) (CompiledPredicate, error)
}

// StarlarkHost compiles and runs predicates written in Starlark, the
// Python-like configuration language used elsewhere in the git tooling
// ecosystem this engine borrows from.
type StarlarkHost struct{}

// NewStarlarkHost creates a PredicateHost backed by go.starlark.net.
func NewStarlarkHost() *StarlarkHost {
	return &StarlarkHost{}
}

type starlarkPredicate struct {
	name   string
	source string
}

// Compile parses and resolves the predicate without running it, so syntax
// and name-resolution errors surface at configuration time rather than at
// first use against real commits. A statement that only fails when executed
// (e.g. assigning to the read-only commit.id) passes Compile and is reported
// by Invoke as a *PredicateRuntimeError. The validated source is then
// re-executed (via starlark.ExecFile, which compiles internally) on every
// Invoke — Starlark's parse+compile cost is negligible next to the tree
// walk it runs inside of.
func (h *StarlarkHost) Compile(name, source string) (CompiledPredicate, error) {
	isPredeclared := func(n string) bool {
		switch n {
		case "repo", "commit", "entry", "pattern":
			return true
		}
		return false
	}

	if _, _, err := starlark.SourceProgram(name, source, isPredeclared); err != nil {
		return nil, &PredicateCompilationError{
			Diagnostics: err.Error(),
			Source:      source,
		}
	}

	return &starlarkPredicate{name: name, source: source}, nil
}

func (p *starlarkPredicate) Invoke(ctx context.Context, env *PredicateEnv) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	predeclared := starlark.StringDict{
		"repo":   newStarlarkRepo(env.Repo),
		"commit": newStarlarkCommit(env.Commit),
	}
	if env.Entry != nil {
		predeclared["entry"] = newStarlarkEntry(env.Entry)
		predeclared["pattern"] = starlark.String(env.Pattern)
	}

	thread := &starlark.Thread{Name: p.name}
	if _, err := starlark.ExecFile(thread, p.name, p.source, predeclared); err != nil {
		return &PredicateRuntimeError{
			SourceCommitID: env.Commit.ID,
			Message:        err.Error(),
		}
	}

	return nil
}

// starlarkRepo exposes RepoHandle to predicate scripts.
type starlarkRepo struct {
	handle *RepoHandle
}

func newStarlarkRepo(h *RepoHandle) *starlarkRepo {
	if h == nil {
		h = &RepoHandle{}
	}
	return &starlarkRepo{handle: h}
}

func (r *starlarkRepo) String() string        { return fmt.Sprintf("repo(%q)", r.handle.Path) }
func (r *starlarkRepo) Type() string          { return "repo" }
func (r *starlarkRepo) Freeze()               {}
func (r *starlarkRepo) Truth() starlark.Bool   { return starlark.True }
func (r *starlarkRepo) Hash() (uint32, error) { return 0, fmt.Errorf("repo is not hashable") }

func (r *starlarkRepo) Attr(name string) (starlark.Value, error) {
	if name == "path" {
		return starlark.String(r.handle.Path), nil
	}
	return nil, nil
}

func (r *starlarkRepo) AttrNames() []string { return []string{"path"} }

// starlarkCommit exposes MutableCommit to predicate scripts.
type starlarkCommit struct {
	c *MutableCommit
}

func newStarlarkCommit(c *MutableCommit) *starlarkCommit {
	return &starlarkCommit{c: c}
}

func (c *starlarkCommit) String() string       { return fmt.Sprintf("commit(%s)", c.c.ID) }
func (c *starlarkCommit) Type() string         { return "commit" }
func (c *starlarkCommit) Freeze()              {}
func (c *starlarkCommit) Truth() starlark.Bool { return starlark.True }
func (c *starlarkCommit) Hash() (uint32, error) {
	return 0, fmt.Errorf("commit is not hashable")
}

var commitAttrNames = []string{
	"id", "message", "discard",
	"author_name", "author_email",
	"committer_name", "committer_email",
}

func (c *starlarkCommit) AttrNames() []string { return commitAttrNames }

func (c *starlarkCommit) Attr(name string) (starlark.Value, error) {
	c.c.Lock()
	defer c.c.Unlock()
	switch name {
	case "id":
		return starlark.String(c.c.ID.String()), nil
	case "message":
		return starlark.String(string(c.c.Message)), nil
	case "discard":
		return starlark.Bool(c.c.Discard), nil
	case "author_name":
		return starlark.String(c.c.Author.Name), nil
	case "author_email":
		return starlark.String(c.c.Author.Email), nil
	case "committer_name":
		return starlark.String(c.c.Committer.Name), nil
	case "committer_email":
		return starlark.String(c.c.Committer.Email), nil
	}
	return nil, nil
}

func (c *starlarkCommit) SetField(name string, val starlark.Value) error {
	c.c.Lock()
	defer c.c.Unlock()
	switch name {
	case "message":
		s, ok := starlark.AsString(val)
		if !ok {
			return fmt.Errorf("commit.message must be a string")
		}
		c.c.Message = []byte(s)
		return nil
	case "discard":
		b, ok := val.(starlark.Bool)
		if !ok {
			return fmt.Errorf("commit.discard must be a bool")
		}
		c.c.Discard = bool(b)
		return nil
	case "author_name":
		s, ok := starlark.AsString(val)
		if !ok {
			return fmt.Errorf("commit.author_name must be a string")
		}
		c.c.Author.Name = s
		return nil
	case "author_email":
		s, ok := starlark.AsString(val)
		if !ok {
			return fmt.Errorf("commit.author_email must be a string")
		}
		c.c.Author.Email = s
		return nil
	case "committer_name":
		s, ok := starlark.AsString(val)
		if !ok {
			return fmt.Errorf("commit.committer_name must be a string")
		}
		c.c.Committer.Name = s
		return nil
	case "committer_email":
		s, ok := starlark.AsString(val)
		if !ok {
			return fmt.Errorf("commit.committer_email must be a string")
		}
		c.c.Committer.Email = s
		return nil
	case "id":
		return fmt.Errorf("commit.id is read-only")
	}
	return starlark.NoSuchAttrError(fmt.Sprintf("commit has no attribute %q", name))
}

// starlarkEntry exposes MutableEntry to predicate scripts.
type starlarkEntry struct {
	e *MutableEntry
}

func newStarlarkEntry(e *MutableEntry) *starlarkEntry {
	return &starlarkEntry{e: e}
}

func (e *starlarkEntry) String() string       { return fmt.Sprintf("entry(%s)", e.e.Entry.Path) }
func (e *starlarkEntry) Type() string         { return "entry" }
func (e *starlarkEntry) Freeze()              {}
func (e *starlarkEntry) Truth() starlark.Bool { return starlark.True }
func (e *starlarkEntry) Hash() (uint32, error) {
	return 0, fmt.Errorf("entry is not hashable")
}

var entryAttrNames = []string{
	"path", "name", "mode", "size", "is_binary", "discard", "content",
}

func (e *starlarkEntry) AttrNames() []string { return entryAttrNames }

func entryModeName(m EntryMode) string {
	switch m {
	case ModeExecutable:
		return "executable"
	case ModeSymlink:
		return "symlink"
	case ModeSubmoduleLink:
		return "submodule"
	case ModeTree:
		return "tree"
	default:
		return "regular"
	}
}

func (e *starlarkEntry) Attr(name string) (starlark.Value, error) {
	switch name {
	case "path":
		return starlark.String(e.e.Entry.Path), nil
	case "name":
		return starlark.String(e.e.Entry.Name), nil
	case "mode":
		return starlark.String(entryModeName(e.e.Entry.Mode)), nil
	case "size":
		return starlark.MakeInt64(e.e.Entry.Size), nil
	case "is_binary":
		return starlark.Bool(e.e.Entry.IsBinary), nil
	case "discard":
		return starlark.Bool(e.e.Discard), nil
	case "content":
		if e.e.Replacement != nil {
			return starlark.String(e.e.Replacement.Content), nil
		}
		return starlark.None, nil
	}
	return nil, nil
}

func (e *starlarkEntry) SetField(name string, val starlark.Value) error {
	switch name {
	case "discard":
		b, ok := val.(starlark.Bool)
		if !ok {
			return fmt.Errorf("entry.discard must be a bool")
		}
		e.e.Discard = bool(b)
		return nil
	case "content":
		s, ok := starlark.AsString(val)
		if !ok {
			return fmt.Errorf("entry.content must be a string")
		}
		mode := e.e.Entry.Mode
		if e.e.Replacement != nil {
			mode = e.e.Replacement.Mode
		}
		e.e.Replacement = &ReplacementBlob{Content: []byte(s), Mode: mode}
		return nil
	case "path", "name", "mode", "size", "is_binary":
		return fmt.Errorf("entry.%s is read-only", name)
	}
	return starlark.NoSuchAttrError(fmt.Sprintf("entry has no attribute %q", name))
}
