package upgrade

import (
	"os"
	"testing"
	"time"
)

func TestOpenRequiresMountpoint(t *testing.T) {
	if _, err := Open(Options{}); err == nil {
		t.Fatalf("Open with no mountpoint succeeded, want an error")
	}
}

func TestResumedReflectsEnvState(t *testing.T) {
	os.Unsetenv(EnvState)
	c, err := Open(Options{Mountpoint: "/mnt"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if c.Resumed() {
		t.Errorf("Resumed() = true with no env set, want false")
	}

	t.Setenv(EnvState, "/var/lib/gitsnapfs/ledger")
	if !c.Resumed() {
		t.Errorf("Resumed() = false with %s set, want true", EnvState)
	}
}

func TestUpgradeFailsOnUnmountAndResumesGate(t *testing.T) {
	c := &Coordinator{
		Gate:        &Gate{},
		quiesceWait: time.Millisecond,
		mountpoint:  "/nonexistent/gitsnapfs-mountpoint",
	}

	if err := c.Upgrade([]string{"/nonexistent/gitsnapfs"}); err == nil {
		t.Fatalf("Upgrade against a non-mountpoint succeeded, want an error")
	}

	// The gate must not be left quiesced: RLock must succeed immediately,
	// not block behind a still-held writer lock.
	if !c.Gate.mu.TryRLock() {
		t.Fatalf("gate left quiesced after a failed upgrade attempt")
	}
	c.Gate.mu.RUnlock()
}

func TestDrainToFixedPointWaitsForInFlightRequest(t *testing.T) {
	c := &Coordinator{
		Gate:        &Gate{},
		quiesceWait: 100 * time.Millisecond,
	}

	leave := c.Gate.Enter()
	go func() {
		time.Sleep(10 * time.Millisecond)
		leave()
	}()

	done := make(chan struct{})
	go func() {
		c.drainToFixedPoint()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("drainToFixedPoint never returned")
	}
	c.Gate.Resume()
}

func TestDrainToFixedPointDoesNotStrandALateEntrant(t *testing.T) {
	c := &Coordinator{
		Gate:        &Gate{},
		quiesceWait: 80 * time.Millisecond,
	}

	// Simulate a request the kernel dequeues during the drain's first
	// pause: it must be allowed to run to completion before
	// drainToFixedPoint commits, not abandoned mid-flight.
	finished := make(chan struct{})
	go func() {
		time.Sleep(drainPollInterval / 2)
		leave := c.Gate.Enter()
		defer leave()
		time.Sleep(2 * drainPollInterval)
		close(finished)
	}()

	c.drainToFixedPoint()

	select {
	case <-finished:
	default:
		t.Fatalf("drainToFixedPoint committed before the late entrant finished")
	}
	c.Gate.Resume()
}
