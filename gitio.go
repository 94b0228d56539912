package rocketfilter

import (
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

// errHexStringTooShort is returned by decodeHashHex when the decoded bytes
// are too short to be a sha1.
var errHexStringTooShort = errors.New("hex encoded byte slice is too short for hash")

// decodeHashHex decodes a hex-encoded sha1 into a plumbing.Hash. It differs
// from plumbing.NewHash, which ignores hex.DecodeString errors and never
// checks the decoded length, in that both are checked here: this is the form
// a revspec token on the command line actually needs.
func decodeHashHex(str string) (plumbing.Hash, error) {
	v, err := hex.DecodeString(str)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if len(v) < 20 {
		return plumbing.ZeroHash, errHexStringTooShort
	}
	var h plumbing.Hash
	copy(h[:], v)
	return h, nil
}

// openRepository opens the on-disk .git directory at dir as a
// filesystem.Storage, the same way a command-line tool built on go-git
// reads straight from a repository's object database without going through
// a full git.Repository.
func openRepository(dir string) (*filesystem.Storage, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	fs := osfs.New(abs)
	storage := filesystem.NewStorage(fs, cache.NewObjectLRUDefault())
	if _, err := storage.Reference(plumbing.HEAD); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRepository, dir, err)
	}
	return storage, nil
}

// resolveHead returns the hash HEAD points at, following one level of
// symbolic indirection (HEAD -> refs/heads/<branch> -> hash), which is as
// far as a freshly-cloned or freshly-initialised repository's HEAD ever
// indirects.
func resolveHead(s *filesystem.Storage) (plumbing.Hash, error) {
	head, err := s.Reference(plumbing.HEAD)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if head.Hash().IsZero() {
		head, err = s.Reference(head.Target())
		if err != nil {
			return plumbing.ZeroHash, err
		}
	}
	return head.Hash(), nil
}

// makeRevResolver builds the resolve callback ParseRevisionRange needs: it
// accepts either a full hex hash or the literal "HEAD".
func makeRevResolver(s *filesystem.Storage) func(string) (plumbing.Hash, error) {
	return func(token string) (plumbing.Hash, error) {
		if token == "HEAD" {
			return resolveHead(s)
		}
		return decodeHashHex(token)
	}
}

// branchExists reports whether branch already has a reference.
func branchExists(s *filesystem.Storage, branch string) bool {
	_, err := s.Reference(plumbing.NewBranchReferenceName(branch))
	return err == nil
}

// writeBranchRef points branch at head, optionally making it the
// repository's symbolic HEAD too. An existing ref by that name is always
// overwritten; callers must have already checked branchExists against Force
// themselves (Driver.Run does), this just performs the write.
func writeBranchRef(s *filesystem.Storage, branch string, head plumbing.Hash, setHead bool) error {
	refName := plumbing.NewBranchReferenceName(branch)
	if err := s.SetReference(plumbing.NewHashReference(refName, head)); err != nil {
		return fmt.Errorf("failed to write branch ref %s: %w", branch, err)
	}
	if setHead {
		if err := s.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, refName)); err != nil {
			return fmt.Errorf("failed to update HEAD: %w", err)
		}
	}
	return nil
}

func getCommit(s *filesystem.Storage, h plumbing.Hash) (*object.Commit, error) {
	return object.GetCommit(s, h)
}
