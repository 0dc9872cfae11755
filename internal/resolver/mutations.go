package resolver

import (
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/gitsnapfs/gitsnapfs/internal/fserrno"
)

// Every mutating RawFileSystem method maps to EROFS, and every xattr
// read maps to ENOTSUP, per §4.C/§7's read-only law (property 3: "for
// every mutating request kind, the reply is EROFS regardless of inode
// or arguments").

func (f *FS) SetAttr(cancel <-chan struct{}, input *fuse.SetAttrIn, out *fuse.AttrOut) fuse.Status {
	return fserrno.ToErrno(fserrno.ErrReadOnly)
}

func (f *FS) Mknod(cancel <-chan struct{}, input *fuse.MknodIn, name string, out *fuse.EntryOut) fuse.Status {
	return fserrno.ToErrno(fserrno.ErrReadOnly)
}

func (f *FS) Mkdir(cancel <-chan struct{}, input *fuse.MkdirIn, name string, out *fuse.EntryOut) fuse.Status {
	return fserrno.ToErrno(fserrno.ErrReadOnly)
}

func (f *FS) Unlink(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	return fserrno.ToErrno(fserrno.ErrReadOnly)
}

func (f *FS) Rmdir(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	return fserrno.ToErrno(fserrno.ErrReadOnly)
}

func (f *FS) Rename(cancel <-chan struct{}, input *fuse.RenameIn, oldName, newName string) fuse.Status {
	return fserrno.ToErrno(fserrno.ErrReadOnly)
}

func (f *FS) Link(cancel <-chan struct{}, input *fuse.LinkIn, name string, out *fuse.EntryOut) fuse.Status {
	return fserrno.ToErrno(fserrno.ErrReadOnly)
}

func (f *FS) Symlink(cancel <-chan struct{}, header *fuse.InHeader, target, name string, out *fuse.EntryOut) fuse.Status {
	return fserrno.ToErrno(fserrno.ErrReadOnly)
}

func (f *FS) Create(cancel <-chan struct{}, input *fuse.CreateIn, name string, out *fuse.CreateOut) fuse.Status {
	return fserrno.ToErrno(fserrno.ErrReadOnly)
}

func (f *FS) Write(cancel <-chan struct{}, input *fuse.WriteIn, data []byte) (uint32, fuse.Status) {
	return 0, fserrno.ToErrno(fserrno.ErrReadOnly)
}

func (f *FS) Fallocate(cancel <-chan struct{}, input *fuse.FallocateIn) fuse.Status {
	return fserrno.ToErrno(fserrno.ErrReadOnly)
}

func (f *FS) CopyFileRange(cancel <-chan struct{}, input *fuse.CopyFileRangeIn) (uint32, fuse.Status) {
	return 0, fserrno.ToErrno(fserrno.ErrReadOnly)
}

func (f *FS) SetXAttr(cancel <-chan struct{}, input *fuse.SetXAttrIn, attr string, data []byte) fuse.Status {
	return fserrno.ToErrno(fserrno.ErrReadOnly)
}

func (f *FS) RemoveXAttr(cancel <-chan struct{}, header *fuse.InHeader, attr string) fuse.Status {
	return fserrno.ToErrno(fserrno.ErrReadOnly)
}

func (f *FS) GetXAttr(cancel <-chan struct{}, header *fuse.InHeader, attr string, dest []byte) (uint32, fuse.Status) {
	return 0, fserrno.ToErrno(fserrno.ErrNotSupported)
}

func (f *FS) ListXAttr(cancel <-chan struct{}, header *fuse.InHeader, dest []byte) (uint32, fuse.Status) {
	return 0, fserrno.ToErrno(fserrno.ErrNotSupported)
}

// Byte-range locks are meaningless on a filesystem that never accepts a
// write; valid-but-unimplemented per §7's ENOTSUP bucket.
func (f *FS) GetLk(cancel <-chan struct{}, input *fuse.LkIn, out *fuse.LkOut) fuse.Status {
	return fserrno.ToErrno(fserrno.ErrNotSupported)
}

func (f *FS) SetLk(cancel <-chan struct{}, input *fuse.LkIn) fuse.Status {
	return fserrno.ToErrno(fserrno.ErrNotSupported)
}

func (f *FS) SetLkw(cancel <-chan struct{}, input *fuse.LkIn) fuse.Status {
	return fserrno.ToErrno(fserrno.ErrNotSupported)
}

func (f *FS) Lseek(cancel <-chan struct{}, in *fuse.LseekIn, out *fuse.LseekOut) fuse.Status {
	return fserrno.ToErrno(fserrno.ErrNotSupported)
}
