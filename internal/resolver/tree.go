package resolver

import (
	"encoding/hex"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/gitsnapfs/gitsnapfs/internal/fserrno"
	"github.com/gitsnapfs/gitsnapfs/internal/gitstore"
	"github.com/gitsnapfs/gitsnapfs/internal/ino"
)

// treeEntry is gitstore's view of one tree entry; aliased here so the
// rest of this file reads in the resolver's own vocabulary.
type treeEntry = gitstore.TreeEntry

// parseHexOID validates name as a full lowercase hex object id of
// exactly hashSize bytes. Any other form — wrong length, uppercase,
// non-hex characters, a short id — is rejected; the caller turns that
// into ENOENT, never EINVAL (spec §4.C: this is the "does not exist"
// surface).
func parseHexOID(name string, hashSize int) (plumbing.Hash, bool) {
	if len(name) != hashSize*2 {
		return plumbing.ZeroHash, false
	}
	for _, c := range name {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return plumbing.ZeroHash, false
		}
	}
	b, err := hex.DecodeString(name)
	if err != nil || len(b) != hashSize {
		return plumbing.ZeroHash, false
	}
	var h plumbing.Hash
	copy(h[:], b)
	return h, true
}

// treeEntries returns a tree's entries, consulting the decode cache
// first.
func (f *FS) treeEntries(oid plumbing.Hash) ([]treeEntry, error) {
	if f.trees != nil {
		if cached, ok := f.trees.Get(oid); ok {
			return cached, nil
		}
	}

	entries, err := f.store.FindTree(oid)
	if err != nil {
		return nil, err
	}
	if f.trees != nil {
		f.trees.Add(oid, entries)
	}
	return entries, nil
}

// lookupTreeChild resolves a name inside a tree- or gitlink-backed
// directory inode (§4.C "Parent is a tree inode").
func (f *FS) lookupTreeChild(parentIno uint64, name string, out *fuse.EntryOut) fuse.Status {
	oid, tag, err := f.ledger.Bound(parentIno)
	if err != nil {
		return fserrno.ToErrno(fserrno.ErrStale)
	}
	if tag == ino.TagGitlink {
		// Gitlinks surface as empty directories; nothing ever resolves
		// beneath one.
		return fuse.ENOENT
	}
	if tag != ino.TagTree {
		return fuse.ENOENT
	}

	entries, err := f.treeEntries(oid)
	if err != nil {
		return fserrno.ToErrno(err)
	}

	for _, e := range entries {
		if e.Name != name {
			continue
		}
		return f.fillTreeEntry(parentIno, e, out)
	}
	return fuse.ENOENT
}

// resolvedChild is what a tree entry turns into once its inode has been
// allocated: everything GetAttr/Lookup/ReadDir need to report it.
type resolvedChild struct {
	ino  uint64
	kind entryKind
	perm uint32
	size uint64
	t    time.Time
}

// resolveChild allocates (or recovers) the inode for one tree entry and
// assembles its reportable attributes. Shared by lookupTreeChild (which
// needs the full EntryOut) and readdir (which only needs ino + type).
func (f *FS) resolveChild(parentIno uint64, e treeEntry) (resolvedChild, fuse.Status) {
	var (
		tag  ino.Tag
		kind entryKind
		perm uint32
	)

	switch e.Mode {
	case filemode.Dir:
		tag, kind, perm = ino.TagTree, kindDir, 0o555
	case filemode.Regular:
		tag, kind, perm = ino.TagBlob, kindFile, 0o444
	case filemode.Executable:
		tag, kind, perm = ino.TagBlob, kindFile, 0o555
	case filemode.Symlink:
		tag, kind, perm = ino.TagSymlink, kindSymlink, 0o777
	case filemode.Submodule:
		tag, kind, perm = ino.TagGitlink, kindDir, 0o555
	default:
		return resolvedChild{}, fserrno.ToErrno(fserrno.ErrNotSupported)
	}

	childIno, err := f.ledger.Allocate(e.OID, tag)
	if err != nil {
		return resolvedChild{}, fserrno.ToErrno(err)
	}

	t := f.mountTime
	if parentTime, ok := f.ledger.TimeHint(parentIno); ok {
		f.ledger.HintTime(childIno, parentTime)
		t = parentTime
	} else if hinted, ok := f.ledger.TimeHint(childIno); ok {
		t = hinted
	}

	var size uint64
	switch tag {
	case ino.TagBlob, ino.TagSymlink:
		sz, err := f.store.BlobSize(e.OID)
		if err != nil {
			return resolvedChild{}, fserrno.ToErrno(err)
		}
		size = sz
	}

	return resolvedChild{ino: childIno, kind: kind, perm: perm, size: size, t: t}, fuse.OK
}

func (f *FS) fillTreeEntry(parentIno uint64, e treeEntry, out *fuse.EntryOut) fuse.Status {
	rc, status := f.resolveChild(parentIno, e)
	if status != fuse.OK {
		return status
	}
	f.fillEntry(out, rc.ino, rc.kind, rc.perm, rc.size, rc.t, f.cfg.AttrTTL)
	return fuse.OK
}

// entryKind is this package's FUSE-agnostic notion of what a path
// resolves to.
type entryKind int

const (
	kindDir entryKind = iota
	kindFile
	kindSymlink
)

const (
	sIFDIR = 0o040000
	sIFREG = 0o100000
	sIFLNK = 0o120000
)

func attrFor(inode uint64, kind entryKind, perm uint32, size uint64, t time.Time) fuse.Attr {
	var typeBits uint32
	nlink := uint32(1)
	switch kind {
	case kindDir:
		typeBits = sIFDIR
		nlink = 2
	case kindSymlink:
		typeBits = sIFLNK
	default:
		typeBits = sIFREG
	}

	sec := uint64(t.Unix())
	nsec := uint32(t.Nanosecond())

	return fuse.Attr{
		Ino:       inode,
		Size:      size,
		Blocks:    (size + 511) / 512,
		Mode:      typeBits | perm,
		Nlink:     nlink,
		Atime:     sec,
		Mtime:     sec,
		Ctime:     sec,
		Atimensec: nsec,
		Mtimensec: nsec,
		Ctimensec: nsec,
	}
}

func (f *FS) fillEntry(out *fuse.EntryOut, inode uint64, kind entryKind, perm uint32, size uint64, t time.Time, ttl time.Duration) {
	out.NodeId = inode
	out.Generation = 1
	out.Attr = attrFor(inode, kind, perm, size, t)
	out.SetEntryTimeout(ttl)
	out.SetAttrTimeout(ttl)
}
