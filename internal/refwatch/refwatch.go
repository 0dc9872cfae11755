// Package refwatch implements the Ref-Freshness Notifier: it watches a
// repository's ref storage and tells the kernel to invalidate cached
// dentries as soon as a branch, tag, or HEAD moves, so a reader never
// follows a symlink to a commit that ref no longer names.
package refwatch

import (
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Notifier is the narrow slice of the Path Resolver this package
// depends on — just enough to push invalidations, nothing about how
// inodes or the ledger work.
type Notifier interface {
	NotifyBranches() error
	NotifyTags() error
	NotifyHead() error
}

// Watcher subscribes to a repository's ref-related paths and forwards
// change events to a Notifier. Commit trees are immutable under their
// OID and are never invalidated — only the three ref-backed directories
// can ever point somewhere new.
type Watcher struct {
	watcher  *fsnotify.Watcher
	notifier Notifier
	log      *zap.Logger
	done     chan struct{}
}

// Watch starts watching <repoPath>/refs/heads, <repoPath>/refs/tags,
// <repoPath>/HEAD and <repoPath>/packed-refs. If construction fails
// (e.g. the host's inotify watch limit is exhausted), the caller falls
// back to the resolver's own TTL-based staleness bound (§4.D) — this
// function returning an error is not fatal to mounting.
func Watch(repoPath string, notifier Notifier, log *zap.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	watchTargets := []string{
		filepath.Join(repoPath, "refs", "heads"),
		filepath.Join(repoPath, "refs", "tags"),
		filepath.Join(repoPath, "HEAD"),
		filepath.Join(repoPath, "packed-refs"),
	}
	for _, target := range watchTargets {
		if err := w.Add(target); err != nil {
			// A missing refs/tags directory (no tags yet) or absent
			// packed-refs (repo never gc'd) is normal, not fatal; any
			// other error is surfaced.
			if !isMissingPath(err) {
				w.Close()
				return nil, err
			}
		}
	}

	watcher := &Watcher{watcher: w, notifier: notifier, log: log, done: make(chan struct{})}
	go watcher.run(repoPath)
	return watcher, nil
}

func isMissingPath(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func (w *Watcher) run(repoPath string) {
	headPath := filepath.Join(repoPath, "HEAD")
	packedRefsPath := filepath.Join(repoPath, "packed-refs")
	heads := filepath.Join(repoPath, "refs", "heads")
	tags := filepath.Join(repoPath, "refs", "tags")

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.dispatch(event, headPath, packedRefsPath, heads, tags)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.Warn("refwatch: watch error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) dispatch(event fsnotify.Event, headPath, packedRefsPath, heads, tags string) {
	var err error
	switch {
	case event.Name == headPath:
		err = w.notifier.NotifyHead()
	case event.Name == packedRefsPath:
		// packed-refs can fold in branches, tags, or both; invalidate
		// every namespace rather than parse the file to find out which.
		err = w.notifier.NotifyBranches()
		if err == nil {
			err = w.notifier.NotifyTags()
		}
	case strings.HasPrefix(event.Name, heads+string(filepath.Separator)):
		err = w.notifier.NotifyBranches()
	case strings.HasPrefix(event.Name, tags+string(filepath.Separator)):
		err = w.notifier.NotifyTags()
	default:
		return
	}
	if err != nil && w.log != nil {
		w.log.Warn("refwatch: notify failed", zap.Error(err))
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
