package upgrade

import (
	"testing"
	"time"
)

func TestGateEnterNilIsNoop(t *testing.T) {
	var g *Gate
	leave := g.Enter()
	leave()
}

func TestGateQuiesceBlocksNewEntrants(t *testing.T) {
	g := &Gate{}

	leave := g.Enter()
	leave()

	g.Quiesce()

	entered := make(chan struct{})
	go func() {
		defer g.Enter()()
		close(entered)
	}()

	select {
	case <-entered:
		t.Fatalf("Enter() proceeded while quiesced")
	case <-time.After(50 * time.Millisecond):
	}

	g.Resume()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatalf("Enter() never proceeded after Resume()")
	}
}

func TestGateQuiesceWaitsForInFlightEntrants(t *testing.T) {
	g := &Gate{}
	leave := g.Enter()

	quiesced := make(chan struct{})
	go func() {
		g.Quiesce()
		close(quiesced)
	}()

	select {
	case <-quiesced:
		t.Fatalf("Quiesce() returned while a request was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	leave()

	select {
	case <-quiesced:
	case <-time.After(time.Second):
		t.Fatalf("Quiesce() never returned after the in-flight request left")
	}
	g.Resume()
}
