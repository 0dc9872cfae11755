// Package fserrno is the single translation point from the core's
// errors to the POSIX-equivalent filesystem error kinds the FUSE kernel
// channel expects (spec §7). The Path Resolver turns its error values
// into replies through ToErrno; a few fixed statuses (ENOENT for an
// unknown fixed name or a malformed commit id, EIO/EINVAL for an
// operation on the wrong kind of inode) it returns directly.
package fserrno

import (
	"errors"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/gitsnapfs/gitsnapfs/internal/gitstore"
	"github.com/gitsnapfs/gitsnapfs/internal/ino"
)

// Sentinel errors the resolver raises for conditions gitstore/ino do not
// already carry a distinct error for.
var (
	// ErrStale marks an inode absent from the ledger and not synthetic.
	ErrStale = errors.New("fserrno: stale inode")
	// ErrReadOnly marks any mutating request.
	ErrReadOnly = errors.New("fserrno: read-only filesystem")
	// ErrNotSupported marks xattr reads and unimplemented-but-valid ops.
	ErrNotSupported = errors.New("fserrno: not supported")
	// ErrMalformedName marks a /commits child name that is not a
	// well-formed lowercase hex oid of the repository's hash size.
	ErrMalformedName = errors.New("fserrno: malformed name")
)

// EUCLEAN and ESTALE (Linux errno 117 and 116) have no named constants
// in hanwen/go-fuse/v2/fuse's Status list; fuse.Status is a plain
// defined uint32, so the numeric errno value is the idiomatic way to
// reach them.
const (
	EUCLEAN = 117
	ESTALE  = 116
	ENOTSUP = 95
)

// ToErrno maps an error (nil meaning success) to the fuse.Status the raw
// RawFileSystem API returns.
func ToErrno(err error) fuse.Status {
	switch {
	case err == nil:
		return fuse.OK
	case errors.Is(err, gitstore.ErrNotFound), errors.Is(err, ErrMalformedName):
		return fuse.ENOENT
	case errors.Is(err, ino.ErrClash):
		return fuse.Status(EUCLEAN)
	case errors.Is(err, ErrStale):
		return fuse.Status(ESTALE)
	case errors.Is(err, ErrReadOnly):
		return fuse.EROFS
	case errors.Is(err, ErrNotSupported):
		return fuse.Status(ENOTSUP)
	default:
		return fuse.EIO
	}
}
