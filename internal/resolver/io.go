package resolver

import (
	"fmt"
	"io"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/gitsnapfs/gitsnapfs/internal/fserrno"
	"github.com/gitsnapfs/gitsnapfs/internal/ino"
)

const oAccmode = 0o3

// Open implements §4.C: any read-only access mode is accepted; anything
// else (write, read-write) is EROFS. The returned handle is simply the
// inode (fh = ino), so no per-handle state is ever allocated — this is
// what lets a file descriptor survive a hot upgrade untouched.
func (f *FS) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	if input.Flags&oAccmode != 0 {
		return fserrno.ToErrno(fserrno.ErrReadOnly)
	}
	out.Fh = input.NodeId
	return fuse.OK
}

func (f *FS) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	out.Fh = input.NodeId
	return fuse.OK
}

func (f *FS) Release(cancel <-chan struct{}, input *fuse.ReleaseIn) {}

func (f *FS) ReleaseDir(input *fuse.ReleaseIn) {}

// Read implements read(ino, offset, length) → bytes, serving the
// substring [offset, min(offset+length, size)) and zero bytes past end
// (§4.C) rather than an error.
func (f *FS) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	defer f.gate.Enter()()

	inode := input.Fh

	if content, ok := f.controlContent(inode); ok {
		return sliceResult(content, input.Offset, buf), fuse.OK
	}

	oid, tag, err := f.ledger.Bound(inode)
	if err != nil {
		return nil, fserrno.ToErrno(fserrno.ErrStale)
	}
	if tag != ino.TagBlob {
		return nil, fuse.EIO
	}

	data, err := f.blobContent(oid)
	if err != nil {
		return nil, fserrno.ToErrno(err)
	}
	return sliceResult(data, input.Offset, buf), fuse.OK
}

func sliceResult(data []byte, offset uint64, buf []byte) fuse.ReadResult {
	if offset >= uint64(len(data)) {
		return fuse.ReadResultData(nil)
	}
	end := offset + uint64(len(buf))
	if end > uint64(len(data)) {
		end = uint64(len(data))
	}
	n := copy(buf, data[offset:end])
	return fuse.ReadResultData(buf[:n])
}

// blobContent returns a blob's full content, consulting and populating
// the small-blob cache.
func (f *FS) blobContent(oid plumbing.Hash) ([]byte, error) {
	if f.blobs != nil {
		if cached, ok := f.blobs.Get(oid); ok {
			return cached, nil
		}
	}

	rc, err := f.store.FindBlob(oid)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	if f.blobs != nil {
		f.blobs.Add(oid, data)
	}
	return data, nil
}

// Readlink implements readlink(ino) → bytes (§4.C): Git symlinks return
// their blob content verbatim; /HEAD, /branches/*, /tags/* return the
// synthesized "../commits/<oid>" target.
func (f *FS) Readlink(cancel <-chan struct{}, header *fuse.InHeader) ([]byte, fuse.Status) {
	defer f.gate.Enter()()

	if header.NodeId == syntheticIno(headIno) {
		oid, err := f.store.ResolveRef("HEAD")
		if err != nil {
			return nil, fserrno.ToErrno(err)
		}
		return []byte(refTarget(oid, f.hashSize)), fuse.OK
	}

	oid, tag, err := f.ledger.Bound(header.NodeId)
	if err != nil {
		return nil, fserrno.ToErrno(fserrno.ErrStale)
	}

	switch tag {
	case ino.TagCommit:
		return []byte(refTarget(oid, f.hashSize)), fuse.OK
	case ino.TagSymlink:
		data, err := f.blobContent(oid)
		if err != nil {
			return nil, fserrno.ToErrno(err)
		}
		return data, fuse.OK
	default:
		return nil, fuse.EINVAL
	}
}

// Access grants read access universally (every entry is world-readable
// per §4.C's mode table) and refuses any write-mode check, since nothing
// in this filesystem is ever writable.
func (f *FS) Access(cancel <-chan struct{}, input *fuse.AccessIn) fuse.Status {
	const wOK = 0o2
	if input.Mask&wOK != 0 {
		return fserrno.ToErrno(fserrno.ErrReadOnly)
	}
	return fuse.OK
}

// Flush/Fsync/FsyncDir are no-ops: nothing ever accumulates dirty data
// to synchronize, since every mutating request is refused up front.
func (f *FS) Flush(cancel <-chan struct{}, input *fuse.FlushIn) fuse.Status { return fuse.OK }
func (f *FS) Fsync(cancel <-chan struct{}, input *fuse.FsyncIn) fuse.Status { return fuse.OK }
func (f *FS) FsyncDir(cancel <-chan struct{}, input *fuse.FsyncIn) fuse.Status { return fuse.OK }

func (f *FS) StatFs(cancel <-chan struct{}, header *fuse.InHeader, out *fuse.StatfsOut) fuse.Status {
	out.Bsize = 4096
	out.Frsize = 4096
	out.NameLen = 255
	return fuse.OK
}

// controlContent serves the supplemented ".gitsnapfs" control files.
func (f *FS) controlContent(inode uint64) ([]byte, bool) {
	switch inode {
	case syntheticIno(controlVersion):
		return []byte(f.version), true
	case syntheticIno(controlStats):
		return []byte(f.ledgerStats()), true
	default:
		return nil, false
	}
}

func (f *FS) ledgerStats() string {
	return fmt.Sprintf("bound=%d\nclash=%d\n", f.ledger.Len(), f.ledger.ClashCount())
}
