// Package ino implements the Inode Allocator: it derives stable 64-bit
// inode numbers from Git object ids, detects and polices collisions, and
// persists the resulting ledger across hot-upgrade re-execs.
package ino

import (
	"errors"
	"sync"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
)

// Tag is the 4-bit object-type tag packed into the top nibble of an
// inode. Real Git objects use Blob/Tree/Commit/Symlink; Gitlink is this
// implementation's own tag for submodule placeholder directories
// (disjoint from both real objects and the synthetic roots); Synthetic
// marks the fixed roots ("/", "/commits", ...). The spec's prose names
// the synthetic tag "0x7F" — under the mandatory 4-bit mask that value
// collapses to 0xF, which is what we store.
type Tag uint8

const (
	TagBlob      Tag = 0
	TagTree      Tag = 1
	TagCommit    Tag = 2
	TagSymlink   Tag = 3
	TagGitlink   Tag = 4
	TagSynthetic Tag = 0xF
)

const tagShift = 60
const tagMask = 0xF
const lowBitsMask = (uint64(1) << tagShift) - 1

// ErrClash is returned by Allocate when a candidate inode is already
// bound to a different (oid, tag) pair. The caller must surface this as
// EUCLEAN; the existing binding is unaffected.
var ErrClash = errors.New("ino: collision")

// ErrUnbound is returned by Bound for an inode the ledger has never
// assigned.
var ErrUnbound = errors.New("ino: unbound")

type binding struct {
	oid plumbing.Hash
	tag Tag
}

// Ledger maps (oid, tag) pairs to inode numbers and tracks collisions.
// Safe for concurrent use; reads dominate, writes are rare (first touch
// of a distinct object only).
type Ledger struct {
	mu   sync.RWMutex
	byNo map[uint64]binding
	clash map[uint64]bool

	// mtimeHints carries the commit-relative timestamp (spec §3) that
	// should be attached to an inode's attributes. It is deliberately
	// not part of the persisted ledger record (§6's on-disk format has
	// no timestamp field): the first lookup that reaches an inode
	// after a hot upgrade or restart repopulates it, same as the rest
	// of a stateless resolver would recompute on demand.
	mtimeHints map[uint64]time.Time

	journal *journal // nil if no --state-file was configured
}

// New creates an empty in-memory ledger with no persistence.
func New() *Ledger {
	return &Ledger{
		byNo:       make(map[uint64]binding),
		clash:      make(map[uint64]bool),
		mtimeHints: make(map[uint64]time.Time),
	}
}

// Open loads a ledger from a state file, replaying every record written
// by a prior process (including one this process is taking over from
// across a hot upgrade). Future allocations are appended to the same
// file. An empty path behaves like New (no persistence).
func Open(path string) (*Ledger, error) {
	l := New()
	if path == "" {
		return l, nil
	}

	j, records, err := openJournal(path)
	if err != nil {
		return nil, err
	}
	l.journal = j

	for _, r := range records {
		l.byNo[r.ino] = binding{oid: r.oid, tag: r.tag}
		if r.clash {
			l.clash[r.ino] = true
		}
	}
	return l, nil
}

// Flush fsyncs the backing state file, if one is configured. The
// Hot-Upgrade Coordinator calls this once, while the quiesce barrier is
// held and before it unmounts and execs.
func (l *Ledger) Flush() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.journal.Sync()
}

// Close releases the backing state file, if any.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.journal.Close()
}

// Candidate computes the inode an (oid, tag) pair would occupy, without
// consulting or mutating the ledger.
func Candidate(oid plumbing.Hash, tag Tag) uint64 {
	low := lowBits(oid)
	return low | (uint64(tag&tagMask) << tagShift)
}

// SyntheticIno builds one of the fixed, small inode numbers for the
// synthetic roots ("/", "/commits", "/branches", "/tags", "/HEAD", the
// ".gitsnapfs" control directory and its children). These never enter
// the ledger and never clash: the TagSynthetic nibble is disjoint from
// every tag a real Git object can carry.
func SyntheticIno(small uint64) uint64 {
	return (small & lowBitsMask) | (uint64(TagSynthetic) << tagShift)
}

func lowBits(oid plumbing.Hash) uint64 {
	var v uint64
	// Use the low 8 bytes of the oid's 20-byte SHA-1 representation —
	// plenty of entropy for the low 60 bits we keep.
	b := oid[:]
	n := len(b)
	for i := 0; i < 8 && i < n; i++ {
		v = (v << 8) | uint64(b[n-1-i])
	}
	return v & lowBitsMask
}

// Allocate binds (oid, tag) to an inode, or reports ErrClash if the
// candidate inode is already bound to a different pair. Concurrent
// callers racing on the same candidate converge on exactly one winner.
func (l *Ledger) Allocate(oid plumbing.Hash, tag Tag) (uint64, error) {
	candidate := Candidate(oid, tag)
	want := binding{oid: oid, tag: tag}

	l.mu.Lock()
	defer l.mu.Unlock()

	existing, ok := l.byNo[candidate]
	if !ok {
		l.byNo[candidate] = want
		if l.journal != nil {
			l.journal.append(candidate, oid, tag, false)
		}
		return candidate, nil
	}
	if existing == want {
		return candidate, nil
	}

	l.clash[candidate] = true
	if l.journal != nil {
		l.journal.append(candidate, existing.oid, existing.tag, true)
	}
	return 0, ErrClash
}

// Bound returns the winning (oid, tag) bound to ino, if any.
func (l *Ledger) Bound(inode uint64) (plumbing.Hash, Tag, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	b, ok := l.byNo[inode]
	if !ok {
		return plumbing.ZeroHash, 0, ErrUnbound
	}
	return b.oid, b.tag, nil
}

// HintTime records the commit-relative timestamp (§3) an inode should
// report, the first time it is observed. Later calls for the same inode
// are no-ops: like the rest of the ledger, the first binding wins.
func (l *Ledger) HintTime(inode uint64, t time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.mtimeHints[inode]; !ok {
		l.mtimeHints[inode] = t
	}
}

// TimeHint returns the timestamp previously recorded by HintTime, if
// any.
func (l *Ledger) TimeHint(inode uint64) (time.Time, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.mtimeHints[inode]
	return t, ok
}

// IsClash reports whether ino has ever had a losing allocation attempt.
func (l *Ledger) IsClash(inode uint64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.clash[inode]
}

// Len reports how many distinct inodes are currently bound (for
// operational visibility, e.g. .gitsnapfs/ledger-stats).
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byNo)
}

// ClashCount reports how many inodes have recorded a losing allocation.
func (l *Ledger) ClashCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.clash)
}
