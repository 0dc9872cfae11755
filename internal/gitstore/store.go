// Package gitstore is the Object Access Adapter: the narrow, read-only
// contract the rest of GitSnapFS uses to pull commits, trees, blobs and
// refs out of a Git object store. It is a thin wrapper around a single
// go-git repository, chosen so that every other package only depends on
// this interface and never on go-git directly.
package gitstore

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
)

// ErrNotFound is returned by any lookup that cannot find the named
// object. Callers (the Path Resolver) must distinguish this from IoError.
var ErrNotFound = errors.New("gitstore: not found")

// ErrIO wraps an underlying I/O failure (corrupt pack, disk error) that is
// distinct from a clean not-found result.
type ErrIO struct {
	Op  string
	Err error
}

func (e *ErrIO) Error() string { return fmt.Sprintf("gitstore: %s: %v", e.Op, e.Err) }
func (e *ErrIO) Unwrap() error { return e.Err }

// Namespace selects which ref namespace to enumerate.
type Namespace int

const (
	NamespaceBranches Namespace = iota
	NamespaceTags
)

// TreeEntry is one entry of a directory snapshot, in store order (go-git
// already returns tree entries in canonical sorted order).
type TreeEntry struct {
	Name string
	Mode filemode.FileMode
	OID  plumbing.Hash
}

// CommitInfo is the subset of commit metadata the resolver needs.
type CommitInfo struct {
	TreeOID       plumbing.Hash
	CommitterTime time.Time
}

// Store is the Object Access Adapter contract. Every method is a pure
// read; none mutate the underlying repository.
type Store interface {
	// FindCommit resolves a commit object. Returns ErrNotFound if oid
	// does not name a commit.
	FindCommit(oid plumbing.Hash) (CommitInfo, error)

	// FindTree returns a tree's entries in store order.
	FindTree(oid plumbing.Hash) ([]TreeEntry, error)

	// FindBlob streams a blob's content.
	FindBlob(oid plumbing.Hash) (io.ReadCloser, error)

	// BlobSize returns a blob's size without reading its content.
	BlobSize(oid plumbing.Hash) (uint64, error)

	// ResolveRef resolves HEAD, refs/heads/<name> or refs/tags/<name> to
	// the OID of the commit it ultimately names. Annotated tags are
	// peeled; a tag pointing at a tree or blob (not a commit) is
	// reported as ErrNotFound, per spec Open Question (a).
	ResolveRef(name string) (plumbing.Hash, error)

	// EnumerateRefs lists refs under a namespace, in byte-lexicographic
	// order by short ref name (e.g. "main", not "refs/heads/main").
	EnumerateRefs(ns Namespace) ([]string, error)

	// HashSize reports the object id width in bytes. Always 20: go-git
	// v5's object model is SHA-1 only (see repoStore.HashSize).
	HashSize() int
}

// repoStore is the go-git backed implementation of Store.
type repoStore struct {
	repo *git.Repository
}

// Open opens a bare repository or a worktree's .git directory at path.
func Open(path string) (Store, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("gitstore: open %s: %w", path, err)
	}
	return &repoStore{repo: repo}, nil
}

func (s *repoStore) FindCommit(oid plumbing.Hash) (CommitInfo, error) {
	c, err := s.repo.CommitObject(oid)
	if err == plumbing.ErrObjectNotFound {
		return CommitInfo{}, ErrNotFound
	}
	if err != nil {
		return CommitInfo{}, &ErrIO{Op: "FindCommit", Err: err}
	}
	return CommitInfo{TreeOID: c.TreeHash, CommitterTime: c.Committer.When}, nil
}

func (s *repoStore) FindTree(oid plumbing.Hash) ([]TreeEntry, error) {
	t, err := s.repo.TreeObject(oid)
	if err == plumbing.ErrObjectNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &ErrIO{Op: "FindTree", Err: err}
	}

	entries := make([]TreeEntry, 0, len(t.Entries))
	for _, e := range t.Entries {
		entries = append(entries, TreeEntry{Name: e.Name, Mode: e.Mode, OID: e.Hash})
	}
	return entries, nil
}

func (s *repoStore) FindBlob(oid plumbing.Hash) (io.ReadCloser, error) {
	b, err := s.repo.BlobObject(oid)
	if err == plumbing.ErrObjectNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &ErrIO{Op: "FindBlob", Err: err}
	}
	r, err := b.Reader()
	if err != nil {
		return nil, &ErrIO{Op: "FindBlob.Reader", Err: err}
	}
	return r, nil
}

func (s *repoStore) BlobSize(oid plumbing.Hash) (uint64, error) {
	b, err := s.repo.BlobObject(oid)
	if err == plumbing.ErrObjectNotFound {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, &ErrIO{Op: "BlobSize", Err: err}
	}
	return uint64(b.Size), nil
}

func (s *repoStore) ResolveRef(name string) (plumbing.Hash, error) {
	var refName plumbing.ReferenceName
	switch {
	case name == "HEAD":
		refName = plumbing.HEAD
	default:
		refName = plumbing.ReferenceName(name)
	}

	ref, err := s.repo.Reference(refName, true)
	if err == plumbing.ErrReferenceNotFound {
		return plumbing.ZeroHash, ErrNotFound
	}
	if err != nil {
		return plumbing.ZeroHash, &ErrIO{Op: "ResolveRef", Err: err}
	}

	return s.peelToCommit(ref.Hash())
}

// peelToCommit follows annotated tag objects down to the commit they
// name. A tag that ultimately points at a tree or blob is ErrNotFound:
// the spec only supports commit-pointing refs.
func (s *repoStore) peelToCommit(oid plumbing.Hash) (plumbing.Hash, error) {
	seen := map[plumbing.Hash]bool{}
	for {
		if seen[oid] {
			return plumbing.ZeroHash, ErrNotFound
		}
		seen[oid] = true

		if _, err := s.repo.CommitObject(oid); err == nil {
			return oid, nil
		}

		tag, err := s.repo.TagObject(oid)
		if err != nil {
			return plumbing.ZeroHash, ErrNotFound
		}
		oid = tag.Target
	}
}

func (s *repoStore) EnumerateRefs(ns Namespace) ([]string, error) {
	var prefix string
	switch ns {
	case NamespaceBranches:
		prefix = "refs/heads/"
	case NamespaceTags:
		prefix = "refs/tags/"
	}

	iter, err := s.repo.References()
	if err != nil {
		return nil, &ErrIO{Op: "EnumerateRefs", Err: err}
	}
	defer iter.Close()

	var names []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		n := string(ref.Name())
		if len(n) > len(prefix) && n[:len(prefix)] == prefix {
			names = append(names, n[len(prefix):])
		}
		return nil
	})
	if err != nil {
		return nil, &ErrIO{Op: "EnumerateRefs.ForEach", Err: err}
	}

	sort.Strings(names)
	return names, nil
}

func (s *repoStore) HashSize() int {
	// go-git/v5's plumbing.Hash is a fixed 20-byte SHA-1 array; the
	// SHA-256 object format (plumbing/hash256.go) is a distinct type
	// this adapter does not yet expose through Store, so we report the
	// hash size the wrapped plumbing.Hash actually carries.
	return len(plumbing.ZeroHash)
}

