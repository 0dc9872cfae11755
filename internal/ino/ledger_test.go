package ino

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
)

func hash(b byte) plumbing.Hash {
	var h plumbing.Hash
	h[len(h)-1] = b
	return h
}

func TestAllocateIsIdempotent(t *testing.T) {
	l := New()

	oid := hash(1)
	got1, err := l.Allocate(oid, TagBlob)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	got2, err := l.Allocate(oid, TagBlob)
	if err != nil {
		t.Fatalf("Allocate (again): %v", err)
	}
	if got1 != got2 {
		t.Fatalf("got %d and %d for the same (oid, tag), want equal", got1, got2)
	}
}

func TestAllocateReportsClashOnCandidateCollision(t *testing.T) {
	l := New()

	// Two distinct oids whose low 60 bits happen to collide: construct
	// them by hand rather than hunting for a real SHA-1 collision.
	var a, b plumbing.Hash
	a[0] = 1
	b[0] = 2

	candidate := Candidate(a, TagBlob)
	if Candidate(b, TagBlob) != candidate {
		t.Fatalf("test fixture invalid: a and b do not share a candidate inode")
	}

	if _, err := l.Allocate(a, TagBlob); err != nil {
		t.Fatalf("Allocate(a): %v", err)
	}
	if _, err := l.Allocate(b, TagBlob); err != ErrClash {
		t.Fatalf("Allocate(b) = %v, want ErrClash", err)
	}

	if !l.IsClash(candidate) {
		t.Errorf("IsClash(%d) = false, want true", candidate)
	}
	if l.ClashCount() != 1 {
		t.Errorf("ClashCount() = %d, want 1", l.ClashCount())
	}

	// The first writer still wins: a's binding is unaffected.
	oid, tag, err := l.Bound(candidate)
	if err != nil {
		t.Fatalf("Bound: %v", err)
	}
	if oid != a || tag != TagBlob {
		t.Errorf("Bound(%d) = (%v, %v), want (%v, %v)", candidate, oid, tag, a, TagBlob)
	}
}

func TestBoundUnknownInode(t *testing.T) {
	l := New()
	if _, _, err := l.Bound(12345); err != ErrUnbound {
		t.Errorf("Bound(unknown) = %v, want ErrUnbound", err)
	}
}

func TestSyntheticInoDisjointFromRealTags(t *testing.T) {
	oid := hash(7)
	for _, tag := range []Tag{TagBlob, TagTree, TagCommit, TagSymlink, TagGitlink} {
		real := Candidate(oid, tag)
		synthetic := SyntheticIno(real & lowBitsMask)
		if real == synthetic {
			t.Errorf("Candidate(tag=%d) collided with SyntheticIno", tag)
		}
	}
}

func TestHintTimeFirstWriteWins(t *testing.T) {
	l := New()
	const target = 42

	first := time.Unix(1000, 0)
	second := time.Unix(2000, 0)

	l.HintTime(target, first)
	l.HintTime(target, second)

	got, ok := l.TimeHint(target)
	if !ok {
		t.Fatalf("TimeHint: not found")
	}
	if !got.Equal(first) {
		t.Errorf("TimeHint = %v, want %v (first write should win)", got, first)
	}
}

func TestOpenReplaysAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.bin")

	l1, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	oid := hash(9)
	ino, err := l1.Allocate(oid, TagTree)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := l1.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := l1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	l2, err := Open(path)
	if err != nil {
		t.Fatalf("Open (reload): %v", err)
	}
	defer l2.Close()

	gotOID, gotTag, err := l2.Bound(ino)
	if err != nil {
		t.Fatalf("Bound after reload: %v", err)
	}
	if gotOID != oid || gotTag != TagTree {
		t.Errorf("Bound after reload = (%v, %v), want (%v, %v)", gotOID, gotTag, oid, TagTree)
	}
}

func TestOpenToleratesTruncatedTailRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.bin")

	l1, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := l1.Allocate(hash(3), TagBlob); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, err := l1.Allocate(hash(4), TagBlob); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	l1.Close()

	// Simulate a crash mid-write: truncate off the last few bytes of the
	// second record.
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if err := os.Truncate(path, info.Size()-5); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	l2, err := Open(path)
	if err != nil {
		t.Fatalf("Open after truncation: %v", err)
	}
	defer l2.Close()

	if l2.Len() != 1 {
		t.Errorf("Len() = %d after truncated tail, want 1 (only the complete record survives)", l2.Len())
	}
}
