package upgrade

import "github.com/hanwen/go-fuse/v2/fuse"

// NewServer mounts fsImpl at the coordinator's mountpoint through
// go-fuse's own fuse.NewServer(fs, mountpoint, opts) — the only
// publicly exported constructor the library offers, and it always
// performs its own mount(2)/fusermount3 call. A hot upgrade's successor
// calls this exactly the same way a first launch does; what makes the
// handover possible is Upgrade unmounting the predecessor's channel
// immediately beforehand, so this mount(2) call has a clear path to
// bind to.
func (c *Coordinator) NewServer(fsImpl fuse.RawFileSystem, opts *fuse.MountOptions) (*fuse.Server, error) {
	opts.FsName = "gitsnapfs"
	opts.Name = "gitsnapfs"
	return fuse.NewServer(fsImpl, c.mountpoint, opts)
}
