// Package upgrade implements the Hot-Upgrade Coordinator: it drains
// in-flight work behind a quiesce barrier, serializes the inode ledger,
// unmounts its own channel, and re-executes the running binary so that
// the successor can bind a fresh one in its place.
package upgrade

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/gitsnapfs/gitsnapfs/internal/ino"
)

// EnvState carries the ledger path across exec, so the successor reopens
// the same state file rather than starting from an empty ledger.
const EnvState = "GITSNAPFS_STATE"

// DefaultQuiesceWait bounds how long Upgrade hunts for a quiescent fixed
// point before committing to the handover regardless.
const DefaultQuiesceWait = 200 * time.Millisecond

// drainPollInterval is the pause between quiesce/resume samples while
// hunting for a fixed point: short enough that DefaultQuiesceWait still
// means something, long enough that a freshly-admitted request has a
// real chance to finish before the next sample.
const drainPollInterval = 5 * time.Millisecond

// Coordinator owns the mountpoint and performs the upgrade sequence.
//
// hanwen/go-fuse/v2 exposes exactly one public way to bind a
// RawFileSystem to a kernel channel: fuse.NewServer(fs, mountpoint,
// opts), which performs its own mount(2)/fusermount3 call against a
// path. There is no exported constructor that adopts an already-open
// /dev/fuse fd, so a hot upgrade cannot hand the live channel to its
// successor the way a raw fd-passing scheme would; it can only arrange
// for the successor's own mount(2) call to have a clear path to bind
// to. Coordinator does that by unmounting only after every in-flight
// request has drained, then exec-ing immediately, so the successor's
// first action is to mount fresh at the same path.
type Coordinator struct {
	Gate *Gate

	mountpoint  string
	quiesceWait time.Duration
	ledger      *ino.Ledger
	stateFile   string
	log         *zap.Logger
}

// Options configures a Coordinator at startup.
type Options struct {
	Mountpoint  string
	StateFile   string
	QuiesceWait time.Duration
	Ledger      *ino.Ledger
	Log         *zap.Logger
}

// Open prepares a Coordinator. It performs no mount syscall itself —
// NewServer does that — so Open's behavior is identical whether this is
// the first launch of the daemon or the process a predecessor's Upgrade
// just exec'd into.
func Open(opts Options) (*Coordinator, error) {
	if opts.Mountpoint == "" {
		return nil, fmt.Errorf("upgrade: mountpoint is required")
	}
	quiesceWait := opts.QuiesceWait
	if quiesceWait <= 0 {
		quiesceWait = DefaultQuiesceWait
	}
	return &Coordinator{
		Gate:        &Gate{},
		mountpoint:  opts.Mountpoint,
		quiesceWait: quiesceWait,
		ledger:      opts.Ledger,
		stateFile:   opts.StateFile,
		log:         opts.Log,
	}, nil
}

// Resumed reports whether this process is the successor of a
// predecessor's Upgrade rather than a fresh start, judged by the
// state-handover environment variable that only that path sets.
func (c *Coordinator) Resumed() bool {
	return os.Getenv(EnvState) != ""
}

// Upgrade runs the handover sequence: drain in-flight requests to a
// quiescent fixed point, flush the ledger, unmount the channel, and exec
// the same binary with the same argument vector. On success this
// function never returns (the process image is replaced). On failure
// before the unmount it reopens the gate and returns the error, and
// serving continues on the old binary; a failure after the unmount
// cannot be recovered in-process, since the mount this daemon was
// serving no longer exists.
func (c *Coordinator) Upgrade(argv []string) error {
	c.drainToFixedPoint()

	if c.ledger != nil {
		if err := c.ledger.Flush(); err != nil {
			c.Gate.Resume()
			return fmt.Errorf("upgrade: flush ledger: %w", err)
		}
	}

	// Unmounting here, rather than leaving the channel open for the
	// successor to adopt, is what lets the successor's NewServer
	// mount(2) call succeed at all: every in-flight request has already
	// been replied to by drainToFixedPoint, so nothing is stranded by
	// tearing the channel down.
	if err := unix.Unmount(c.mountpoint, 0); err != nil {
		c.Gate.Resume()
		return fmt.Errorf("upgrade: unmount: %w", err)
	}

	env := os.Environ()
	if c.stateFile != "" {
		env = append(env, EnvState+"="+c.stateFile)
	}

	if c.log != nil {
		c.log.Info("upgrade: executing", zap.String("mountpoint", c.mountpoint), zap.Strings("argv", argv))
	}

	err := unix.Exec(argv[0], argv, env)
	// unix.Exec only returns on failure. The mountpoint is already
	// unmounted, so Resume here only prevents new requests from
	// deadlocking against a gate nobody will ever reopen; it does not
	// restore service, since there is no channel left to serve.
	c.Gate.Resume()
	return fmt.Errorf("upgrade: exec failed after unmount: %w", err)
}

// drainToFixedPoint repeatedly quiesces the gate, reopens it for one
// short pause, and re-samples the gate's entry counter, until a full
// pause passes with no new request observed — including one that was
// dequeued from the kernel channel and is merely blocked waiting to
// enter — or the overall budget is spent. It always returns with the
// gate held shut.
func (c *Coordinator) drainToFixedPoint() {
	deadline := time.Now().Add(c.quiesceWait)

	c.Gate.Quiesce()
	for time.Now().Before(deadline) {
		before := c.Gate.entryCount()
		c.Gate.Resume()
		time.Sleep(drainPollInterval)
		c.Gate.Quiesce()
		if c.Gate.entryCount() == before {
			return
		}
	}
}
