package rocketfilter

import (
	"context"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// encodable is satisfied by object.Commit, object.Tree and any other
// plumbing object that can encode itself into a plumbing.EncodedObject.
type encodable interface {
	Encode(o plumbing.EncodedObject) error
}

// computeHash encodes obj into a throwaway MemoryObject purely to learn its
// hash, without touching the destination storer.
func computeHash(obj encodable) (plumbing.Hash, error) {
	mem := &plumbing.MemoryObject{}
	if err := obj.Encode(mem); err != nil {
		return plumbing.ZeroHash, err
	}
	return mem.Hash(), nil
}

// GetHash returns the hash a commit would have once encoded, without
// writing it anywhere.
func GetHash(c *object.Commit) (*plumbing.Hash, error) {
	h, err := computeHash(c)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// updateHashAndSave re-encodes obj and writes it to s. Callers that need the
// final hash ahead of time (e.g. to stamp it onto the object before saving,
// mirroring how a commit's own Hash field is set) should call GetHash/
// computeHash first; this only persists the encoding.
func updateHashAndSave(ctx context.Context, obj encodable, s storer.Storer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mem := &plumbing.MemoryObject{}
	if err := obj.Encode(mem); err != nil {
		return err
	}
	_, err := s.SetEncodedObject(mem)
	return err
}

// saveBlob writes content as a new blob object and returns its hash.
func saveBlob(ctx context.Context, s storer.Storer, content []byte) (plumbing.Hash, error) {
	if err := ctx.Err(); err != nil {
		return plumbing.ZeroHash, err
	}
	obj := s.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)

	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := w.Write(content); err != nil {
		_ = w.Close()
		return plumbing.ZeroHash, err
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, err
	}

	return s.SetEncodedObject(obj)
}

// treeEntrySortKey is the name git sorts a tree entry under: directory entries
// sort as though their name carried a trailing separator, so that e.g.
// "foo.txt" sorts before the directory "foo" but after a file named "foo".
func treeEntrySortKey(e object.TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}

func sortTreeEntries(entries []object.TreeEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return strings.Compare(treeEntrySortKey(entries[i]), treeEntrySortKey(entries[j])) < 0
	})
}

// saveTree builds and persists a tree object from already-resolved entries
// (every entry's Hash must already point at a saved blob/tree), returning
// the resulting *object.Tree with its Hash populated.
func saveTree(ctx context.Context, s storer.Storer, entries []object.TreeEntry) (*object.Tree, error) {
	sortTreeEntries(entries)

	t := &object.Tree{Entries: entries}
	h, err := computeHash(t)
	if err != nil {
		return nil, err
	}
	t.Hash = h

	if err := updateHashAndSave(ctx, t, s); err != nil {
		return nil, err
	}
	return t, nil
}
