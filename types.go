package rocketfilter

import (
	"sync"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// gitignorePattern is the compiled form of a PatternRule's glob, cached to
// avoid reparsing it on every PatternSet.Match call.
type gitignorePattern = gitignore.Pattern

// Identity mirrors go-git's object.Signature: a name/email/timestamp triple
// used for both author and committer.
type Identity struct {
	Name  string
	Email string
	When  time.Time
}

func identityFromSignature(s object.Signature) Identity {
	return Identity{Name: s.Name, Email: s.Email, When: s.When}
}

func (id Identity) toSignature() object.Signature {
	return object.Signature{Name: id.Name, Email: id.Email, When: id.When}
}

// SourceCommit is a read-only handle to a commit in the input repository.
// See spec §3.
type SourceCommit struct {
	ID        plumbing.Hash
	Author    Identity
	Committer Identity
	Message   []byte
	Encoding  string
	TreeID    plumbing.Hash
	ParentIDs []plumbing.Hash

	underlying *object.Commit
}

func newSourceCommit(c *object.Commit) *SourceCommit {
	return &SourceCommit{
		ID:         c.Hash,
		Author:     identityFromSignature(c.Author),
		Committer:  identityFromSignature(c.Committer),
		Message:    []byte(c.Message),
		Encoding:   string(c.Encoding),
		TreeID:     c.TreeHash,
		ParentIDs:  append([]plumbing.Hash(nil), c.ParentHashes...),
		underlying: c,
	}
}

// MutableCommit is the working copy of a SourceCommit passed to the commit
// predicate. Everything but ID and ParentIDs is writable.
//
// During the keep/remove phases (spec §5), every leaf-evaluation goroutine
// TreeBuilder schedules for the same commit is handed the same
// *MutableCommit, since an entry predicate's env carries the commit it
// belongs to alongside the entry itself. mu guards every field below that a
// predicate can read or write, so two entry predicates racing to flip
// Discard (or touch Author/Committer/Message) don't trip the race detector
// or tear a write, the same way workingSet's mu guards its own map against
// the identical fan-out.
type MutableCommit struct {
	ID        plumbing.Hash
	ParentIDs []plumbing.Hash

	mu sync.Mutex

	Author    Identity
	Committer Identity
	Message   []byte
	Encoding  string

	// Discard marks the commit for exclusion from the rewritten history.
	Discard bool

	// Tag is an opaque slot carried on the commit; the engine never reads
	// it. The Starlark predicate host does not expose it to scripts, and a
	// fresh MutableCommit with a nil Tag is built for every source commit.
	Tag any
}

func newMutableCommit(s *SourceCommit) *MutableCommit {
	return &MutableCommit{
		ID:        s.ID,
		ParentIDs: s.ParentIDs,
		Author:    s.Author,
		Committer: s.Committer,
		Message:   append([]byte(nil), s.Message...),
		Encoding:  s.Encoding,
	}
}

// Lock and Unlock make MutableCommit a sync.Locker over its own mutable
// fields (everything but ID/ParentIDs, which are never written after
// construction), for callers that read or write more than one field at a
// time and need that block to be atomic.
func (c *MutableCommit) Lock()   { c.mu.Lock() }
func (c *MutableCommit) Unlock() { c.mu.Unlock() }

// IsDiscarded reports Discard under lock.
func (c *MutableCommit) IsDiscarded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Discard
}

// EntryMode enumerates the kinds a TreeEntry can take.
type EntryMode int

const (
	ModeRegular EntryMode = iota
	ModeExecutable
	ModeSymlink
	ModeSubmoduleLink
	ModeTree
)

func entryModeFromFileMode(m filemode.FileMode) EntryMode {
	switch m {
	case filemode.Executable:
		return ModeExecutable
	case filemode.Symlink:
		return ModeSymlink
	case filemode.Submodule:
		return ModeSubmoduleLink
	case filemode.Dir:
		return ModeTree
	default:
		return ModeRegular
	}
}

func (m EntryMode) toFileMode() filemode.FileMode {
	switch m {
	case ModeExecutable:
		return filemode.Executable
	case ModeSymlink:
		return filemode.Symlink
	case ModeSubmoduleLink:
		return filemode.Submodule
	case ModeTree:
		return filemode.Dir
	default:
		return filemode.Regular
	}
}

// SubmoduleSizeSentinel is the value TreeEntry.Size carries for
// ModeSubmoduleLink entries, since submodule links have no blob size. See
// SPEC_FULL.md §13 (Open Question decision).
const SubmoduleSizeSentinel = -1

// TreeEntry describes one entry of a tree being walked by the TreeBuilder.
// See spec §3.
type TreeEntry struct {
	Path     string
	Name     string
	Mode     EntryMode
	Target   plumbing.Hash
	Size     int64
	IsBinary bool
}

// ReplacementBlob is installed by a predicate onto a MutableEntry to replace
// the underlying blob's content and/or mode.
type ReplacementBlob struct {
	Content []byte
	Mode    EntryMode
}

// MutableEntry is the working copy presented to a per-entry predicate.
// See spec §3.
type MutableEntry struct {
	Entry TreeEntry

	// Discard defaults to false for the keep polarity and true for the
	// remove polarity (see EntryEvaluator, spec §4.2).
	Discard bool

	// Replacement, when non-nil, is installed onto the working set instead
	// of Entry's original target/mode.
	Replacement *ReplacementBlob
}

func newMutableEntry(e TreeEntry, defaultDiscard bool) *MutableEntry {
	return &MutableEntry{Entry: e, Discard: defaultDiscard}
}

// Polarity is the side of a PatternRule a match came from.
type Polarity int

const (
	PolarityKeep Polarity = iota
	PolarityRemove
)

func (p Polarity) String() string {
	if p == PolarityKeep {
		return "keep"
	}
	return "remove"
}

// PatternRule is one rule parsed out of a keep/remove pattern block.
// See spec §3/§4.1.
type PatternRule struct {
	Glob      string
	Predicate CompiledPredicate
	Origin    Polarity
	Index     int

	compiledGlob gitignorePattern
}

// HasPredicate reports whether the rule carries a compiled predicate, as
// opposed to being a pure gitignore-style pattern.
func (r *PatternRule) HasPredicate() bool {
	return r != nil && r.Predicate != nil
}

// MatchedRule is the result of PatternSet.match for a path: either nil (no
// match) or a rule — possibly synthetic, carrying no predicate, for a pure
// gitignore hit.
type MatchedRule struct {
	Rule *PatternRule
}
