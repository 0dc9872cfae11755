package resolver

import (
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/gitsnapfs/gitsnapfs/internal/fserrno"
	"github.com/gitsnapfs/gitsnapfs/internal/gitstore"
	"github.com/gitsnapfs/gitsnapfs/internal/ino"
)

// dirListing is one entry as readdir/readdirplus need it: a name, its
// allocated inode, and the FUSE dirent type bits (S_IFDIR/S_IFREG/
// S_IFLNK — the type nibble only, not permission bits).
type dirListing struct {
	name string
	ino  uint64
	mode uint32
}

func typeBitsOf(kind entryKind) uint32 {
	switch kind {
	case kindDir:
		return sIFDIR
	case kindSymlink:
		return sIFLNK
	default:
		return sIFREG
	}
}

// listing returns the ordered entries for a directory inode. Ordering
// must be identical across processes and across re-exec (§3 "Directory
// entry"): tree directories rely on the Git store's already-canonical
// order, ref directories are sorted lexicographically by EnumerateRefs,
// and the fixed synthetic directories are listed in the literal order
// written below.
func (f *FS) listing(inode uint64) ([]dirListing, fuse.Status) {
	switch inode {
	case rootIno:
		return []dirListing{
			{"commits", syntheticIno(commitsIno), sIFDIR},
			{"branches", syntheticIno(branchesIno), sIFDIR},
			{"tags", syntheticIno(tagsIno), sIFDIR},
			{"HEAD", syntheticIno(headIno), sIFLNK},
			{".gitsnapfs", syntheticIno(controlIno), sIFDIR},
		}, fuse.OK

	case syntheticIno(commitsIno):
		// Deliberately empty: the spec forbids enumerating /commits.
		return nil, fuse.OK

	case syntheticIno(branchesIno):
		return f.refListing(gitstore.NamespaceBranches, "refs/heads/")

	case syntheticIno(tagsIno):
		return f.refListing(gitstore.NamespaceTags, "refs/tags/")

	case syntheticIno(controlIno):
		return []dirListing{
			{"version", syntheticIno(controlVersion), sIFREG},
			{"ledger-stats", syntheticIno(controlStats), sIFREG},
		}, fuse.OK

	default:
		return f.treeListing(inode)
	}
}

// refListing enumerates one ref namespace, allocating (and thus
// stabilizing) the symlink inode for every name exactly as lookupRef
// would.
func (f *FS) refListing(ns gitstore.Namespace, prefix string) ([]dirListing, fuse.Status) {
	names, err := f.store.EnumerateRefs(ns)
	if err != nil {
		return nil, fserrno.ToErrno(err)
	}

	out := make([]dirListing, 0, len(names))
	for _, name := range names {
		oid, err := f.store.ResolveRef(prefix + name)
		if err != nil {
			// A ref that fails to resolve (e.g. an annotated tag
			// pointing at a tree) is simply omitted from the listing,
			// consistent with it also being ENOENT on direct lookup.
			continue
		}
		childIno, err := f.ledger.Allocate(oid, ino.TagCommit)
		if err != nil {
			continue
		}
		out = append(out, dirListing{name: name, ino: childIno, mode: sIFLNK})
	}
	return out, fuse.OK
}

func (f *FS) treeListing(inode uint64) ([]dirListing, fuse.Status) {
	oid, tag, err := f.ledger.Bound(inode)
	if err != nil {
		return nil, fserrno.ToErrno(fserrno.ErrStale)
	}
	if tag == ino.TagGitlink {
		return nil, fuse.OK
	}
	if tag != ino.TagTree {
		return nil, fuse.OK
	}

	entries, err := f.treeEntries(oid)
	if err != nil {
		return nil, fserrno.ToErrno(err)
	}

	out := make([]dirListing, 0, len(entries))
	for _, e := range entries {
		rc, status := f.resolveChild(inode, e)
		if status != fuse.OK {
			return nil, status
		}
		out = append(out, dirListing{name: e.Name, ino: rc.ino, mode: typeBitsOf(rc.kind)})
	}
	return out, fuse.OK
}

// ReadDir implements the plain (name, child_ino, kind) enumeration.
func (f *FS) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	defer f.gate.Enter()()

	entries, status := f.listing(input.NodeId)
	if status != fuse.OK {
		return status
	}

	for i := int(input.Offset); i < len(entries); i++ {
		e := entries[i]
		if !out.AddDirEntry(fuse.DirEntry{Name: e.name, Mode: e.mode, Ino: e.ino}) {
			break
		}
	}
	return fuse.OK
}

// ReadDirPlus composes readdir with getattr for each entry (§4.C).
func (f *FS) ReadDirPlus(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	defer f.gate.Enter()()

	entries, status := f.listing(input.NodeId)
	if status != fuse.OK {
		return status
	}

	for i := int(input.Offset); i < len(entries); i++ {
		e := entries[i]
		entryOut := out.AddDirLookupEntry(fuse.DirEntry{Name: e.name, Mode: e.mode, Ino: e.ino})
		if entryOut == nil {
			break
		}
		if attrStatus := f.fillAttrByIno(e.ino, entryOut); attrStatus != fuse.OK {
			return attrStatus
		}
	}
	return fuse.OK
}

// fillAttrByIno fills entryOut with the attributes for an inode already
// known to exist (just produced by listing). Avoids recomputing the
// ledger lookup logic split across Lookup/GetAttr a third time.
func (f *FS) fillAttrByIno(inode uint64, entryOut *fuse.EntryOut) fuse.Status {
	var attrOut fuse.AttrOut
	if status := f.getAttr(inode, &attrOut); status != fuse.OK {
		return status
	}
	entryOut.NodeId = inode
	entryOut.Generation = 1
	entryOut.Attr = attrOut.Attr
	// Reuse the TTL getAttr chose for this kind of inode (entry, attr or
	// ref TTL), so a listing caches each entry exactly as long as Lookup.
	entryOut.EntryValid, entryOut.EntryValidNsec = attrOut.AttrValid, attrOut.AttrValidNsec
	entryOut.AttrValid, entryOut.AttrValidNsec = attrOut.AttrValid, attrOut.AttrValidNsec
	return fuse.OK
}
