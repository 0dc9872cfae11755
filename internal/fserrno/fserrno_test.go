package fserrno

import (
	"errors"
	"testing"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/gitsnapfs/gitsnapfs/internal/gitstore"
	"github.com/gitsnapfs/gitsnapfs/internal/ino"
)

func TestToErrno(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want fuse.Status
	}{
		{"nil", nil, fuse.OK},
		{"not found", gitstore.ErrNotFound, fuse.ENOENT},
		{"malformed name", ErrMalformedName, fuse.ENOENT},
		{"clash", ino.ErrClash, fuse.Status(EUCLEAN)},
		{"stale", ErrStale, fuse.Status(ESTALE)},
		{"read only", ErrReadOnly, fuse.EROFS},
		{"not supported", ErrNotSupported, fuse.Status(ENOTSUP)},
		{"unknown", errors.New("boom"), fuse.EIO},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ToErrno(c.err); got != c.want {
				t.Errorf("ToErrno(%v) = %v, want %v", c.err, got, c.want)
			}
		})
	}
}

func TestToErrnoWrappedError(t *testing.T) {
	wrapped := &gitstore.ErrIO{Op: "FindBlob", Err: errors.New("disk error")}
	if got := ToErrno(wrapped); got != fuse.EIO {
		t.Errorf("ToErrno(wrapped io error) = %v, want EIO", got)
	}
}
