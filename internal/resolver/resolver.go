// Package resolver implements the Path Resolver: it answers every kernel
// filesystem request directly against fuse.RawFileSystem, translating
// (parent-inode, name) lookups and file-handle reads into Git object
// fetches and back into FUSE replies. It holds no long-lived state of its
// own; the Inode Allocator's ledger is the only thing that survives a
// hot upgrade, which is why every method here can be reconstructed from
// (store, ledger) alone.
package resolver

import (
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"

	"github.com/gitsnapfs/gitsnapfs/internal/fserrno"
	"github.com/gitsnapfs/gitsnapfs/internal/gitstore"
	"github.com/gitsnapfs/gitsnapfs/internal/ino"
	"github.com/gitsnapfs/gitsnapfs/internal/objcache"
	"github.com/gitsnapfs/gitsnapfs/internal/upgrade"
)

// Synthetic roots: the fixed, small inode numbers assigned at startup
// (§3/§4.C's static topology). Never bound in the ledger.
//
// rootIno is the one exception to the tag-shifted synthetic scheme
// below: FUSE hardcodes the mount root's inode to 1 (FUSE_ROOT_ID) at
// the protocol level, before any of this filesystem's own tagging comes
// into play, so it cannot be shifted into the synthetic tag's range like
// every other fixed entry is. Every other synthetic path is built with
// ino.SyntheticIno so it carries the synthetic tag nibble and is
// structurally disjoint from any Git-derived inode.
const (
	rootIno        uint64 = 1
	commitsIno            = 2
	branchesIno           = 3
	tagsIno               = 4
	headIno               = 5
	controlIno            = 6
	controlVersion        = 7
	controlStats          = 8
)

// Config carries the TTL knobs from the CLI (spec §6/§4.D).
type Config struct {
	AttrTTL  time.Duration
	EntryTTL time.Duration
	RefTTL   time.Duration
}

// FS is the raw FUSE filesystem. Embedding fuse.NewDefaultRawFileSystem()
// supplies ENOSYS-returning defaults for anything we don't override,
// which is almost nothing here: every RawFileSystem method is meaningful
// under a read-only, fully-synthesized tree.
type FS struct {
	fuse.RawFileSystem

	store  gitstore.Store
	ledger *ino.Ledger
	trees  *objcache.TreeCache
	blobs  *objcache.BlobCache
	cfg    Config
	log    *zap.Logger

	server    *fuse.Server
	mountTime time.Time
	version   string
	hashSize  int
	debug     bool

	// gate is the quiesce barrier the Hot-Upgrade Coordinator raises
	// around an exec handover (§4.E step 1). Nil until SetGate is
	// called; every suspension point admits unconditionally until then.
	gate *upgrade.Gate
}

// SetGate wires the resolver's dispatch into the coordinator's quiesce
// barrier. Safe to call once, before the filesystem is mounted.
func (f *FS) SetGate(g *upgrade.Gate) { f.gate = g }

// New builds a resolver over store, backed by ledger for inode
// stability and by trees/blobs for the optional decode caches.
func New(store gitstore.Store, ledger *ino.Ledger, trees *objcache.TreeCache, blobs *objcache.BlobCache, cfg Config, log *zap.Logger, version string) *FS {
	return &FS{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		store:         store,
		ledger:        ledger,
		trees:         trees,
		blobs:         blobs,
		cfg:           cfg,
		log:           log,
		mountTime:     time.Now(),
		version:       version,
		hashSize:      store.HashSize(),
	}
}

func (f *FS) String() string { return "gitsnapfs" }

func (f *FS) SetDebug(debug bool) { f.debug = debug }

// Init captures the server handle so the Ref-Freshness Notifier (running
// in a separate goroutine outside this package) can reach EntryNotify.
func (f *FS) Init(server *fuse.Server) { f.server = server }

// Server returns the fuse.Server captured by Init, once mounted.
func (f *FS) Server() *fuse.Server { return f.server }

// NotifyBranches, NotifyTags and NotifyHead are the Ref-Freshness
// Notifier's only way to reach into the resolver: for every name under
// the changed namespace, issue notify_entry_invalidate(parent_ino,
// name) (§4.D) so the kernel re-issues lookup instead of serving a
// stale symlink target. A nil server (not yet mounted, or mounted
// without a live channel) makes these harmless no-ops.
func (f *FS) NotifyBranches() error {
	return f.notifyNamespace(gitstore.NamespaceBranches, syntheticIno(branchesIno))
}

func (f *FS) NotifyTags() error {
	return f.notifyNamespace(gitstore.NamespaceTags, syntheticIno(tagsIno))
}

func (f *FS) NotifyHead() error {
	if f.server == nil {
		return nil
	}
	return f.server.EntryNotify(rootIno, "HEAD")
}

func (f *FS) notifyNamespace(ns gitstore.Namespace, parent uint64) error {
	if f.server == nil {
		return nil
	}
	names, err := f.store.EnumerateRefs(ns)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := f.server.EntryNotify(parent, name); err != nil {
			return err
		}
	}
	return nil
}

func syntheticIno(small uint64) uint64 { return ino.SyntheticIno(small) }

// Lookup implements (parent_ino, name) → entry-reply per §4.C.
func (f *FS) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	defer f.gate.Enter()()

	switch header.NodeId {
	case rootIno:
		return f.lookupRoot(name, out)
	case syntheticIno(commitsIno):
		return f.lookupCommit(name, out)
	case syntheticIno(branchesIno):
		return f.lookupRef(gitstore.NamespaceBranches, "refs/heads/", name, out)
	case syntheticIno(tagsIno):
		return f.lookupRef(gitstore.NamespaceTags, "refs/tags/", name, out)
	case syntheticIno(controlIno):
		return f.lookupControl(name, out)
	default:
		return f.lookupTreeChild(header.NodeId, name, out)
	}
}

func (f *FS) lookupRoot(name string, out *fuse.EntryOut) fuse.Status {
	switch name {
	case "commits":
		f.fillEntry(out, syntheticIno(commitsIno), kindDir, 0o555, 0, f.mountTime, f.cfg.EntryTTL)
	case "branches":
		f.fillEntry(out, syntheticIno(branchesIno), kindDir, 0o555, 0, f.mountTime, f.cfg.EntryTTL)
	case "tags":
		f.fillEntry(out, syntheticIno(tagsIno), kindDir, 0o555, 0, f.mountTime, f.cfg.EntryTTL)
	case "HEAD":
		f.fillEntry(out, syntheticIno(headIno), kindSymlink, 0o777, f.headTargetLen(), f.mountTime, f.cfg.RefTTL)
	case ".gitsnapfs":
		f.fillEntry(out, syntheticIno(controlIno), kindDir, 0o555, 0, f.mountTime, f.cfg.EntryTTL)
	default:
		return fuse.ENOENT
	}
	return fuse.OK
}

func (f *FS) lookupControl(name string, out *fuse.EntryOut) fuse.Status {
	switch name {
	case "version":
		f.fillEntry(out, syntheticIno(controlVersion), kindFile, 0o444, uint64(len(f.version)), f.mountTime, f.cfg.EntryTTL)
	case "ledger-stats":
		f.fillEntry(out, syntheticIno(controlStats), kindFile, 0o444, uint64(len(f.ledgerStats())), f.mountTime, f.cfg.EntryTTL)
	default:
		return fuse.ENOENT
	}
	return fuse.OK
}

// lookupCommit resolves /commits/<hex-oid>. The spec is explicit that a
// malformed name (wrong length, non-hex, short id) is ENOENT, never
// EINVAL: the "does not exist" surface, not a protocol error.
func (f *FS) lookupCommit(name string, out *fuse.EntryOut) fuse.Status {
	oid, ok := parseHexOID(name, f.hashSize)
	if !ok {
		return fuse.ENOENT
	}

	info, err := f.store.FindCommit(oid)
	if err != nil {
		return fserrno.ToErrno(err)
	}

	childIno, err := f.ledger.Allocate(info.TreeOID, ino.TagTree)
	if err != nil {
		return fserrno.ToErrno(err)
	}
	f.ledger.HintTime(childIno, info.CommitterTime)

	f.fillEntry(out, childIno, kindDir, 0o555, 0, info.CommitterTime, f.cfg.AttrTTL)
	return fuse.OK
}

// lookupRef resolves one entry of /branches or /tags. The allocated
// inode is keyed on TagCommit: the tree walker below never allocates
// that tag for a real tree entry (gitlinks get TagGitlink, git symlinks
// get TagSymlink), so it is free to mean "a ref symlink pointing at this
// commit" without colliding with any Git-derived object.
func (f *FS) lookupRef(ns gitstore.Namespace, prefix, name string, out *fuse.EntryOut) fuse.Status {
	oid, err := f.store.ResolveRef(prefix + name)
	if err != nil {
		return fserrno.ToErrno(err)
	}

	childIno, err := f.ledger.Allocate(oid, ino.TagCommit)
	if err != nil {
		return fserrno.ToErrno(err)
	}

	target := refTarget(oid, f.hashSize)
	f.fillEntry(out, childIno, kindSymlink, 0o777, uint64(len(target)), f.mountTime, f.cfg.RefTTL)
	return fuse.OK
}

func (f *FS) headTargetLen() uint64 {
	oid, err := f.store.ResolveRef("HEAD")
	if err != nil {
		return 0
	}
	return uint64(len(refTarget(oid, f.hashSize)))
}

// refTarget builds the "../commits/<oid>" symlink content shared by
// /HEAD, /branches/* and /tags/*.
func refTarget(oid plumbing.Hash, hashSize int) string {
	return "../commits/" + oid.String()[:hashSize*2]
}
