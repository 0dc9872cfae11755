package refwatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fakeNotifier struct {
	branches chan struct{}
	tags     chan struct{}
	head     chan struct{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		branches: make(chan struct{}, 8),
		tags:     make(chan struct{}, 8),
		head:     make(chan struct{}, 8),
	}
}

func (f *fakeNotifier) NotifyBranches() error { f.branches <- struct{}{}; return nil }
func (f *fakeNotifier) NotifyTags() error     { f.tags <- struct{}{}; return nil }
func (f *fakeNotifier) NotifyHead() error     { f.head <- struct{}{}; return nil }

func waitFor(t *testing.T, ch chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestWatchNotifiesOnBranchChange(t *testing.T) {
	repo := t.TempDir()
	if err := os.MkdirAll(filepath.Join(repo, "refs", "heads"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(repo, "HEAD"), []byte("ref: refs/heads/main\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	notifier := newFakeNotifier()
	w, err := Watch(repo, notifier, nil)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(repo, "refs", "heads", "main"), []byte("deadbeef\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	waitFor(t, notifier.branches, "NotifyBranches")
}

func TestWatchNotifiesOnHeadChange(t *testing.T) {
	repo := t.TempDir()
	if err := os.MkdirAll(filepath.Join(repo, "refs", "heads"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	headPath := filepath.Join(repo, "HEAD")
	if err := os.WriteFile(headPath, []byte("ref: refs/heads/main\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	notifier := newFakeNotifier()
	w, err := Watch(repo, notifier, nil)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(headPath, []byte("ref: refs/heads/other\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	waitFor(t, notifier.head, "NotifyHead")
}

func TestWatchTolerantOfMissingTagsDirectory(t *testing.T) {
	repo := t.TempDir()
	if err := os.MkdirAll(filepath.Join(repo, "refs", "heads"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(repo, "HEAD"), []byte("ref: refs/heads/main\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	// No refs/tags, no packed-refs: Watch must still succeed.

	w, err := Watch(repo, newFakeNotifier(), nil)
	if err != nil {
		t.Fatalf("Watch with no tags/packed-refs: %v", err)
	}
	w.Close()
}
