// Package config binds the command-line surface from spec §6 to a typed
// Config, via pflag so it composes with the cobra root command.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// Config holds every flag the core depends on, plus the debug flag this
// implementation adds on top of the distilled surface.
type Config struct {
	Repo       string
	Mountpoint string
	AllowOther bool

	AttrTTL  time.Duration
	EntryTTL time.Duration
	RefTTL   time.Duration

	TreeCache      int
	BlobSmallCache uint64

	StateFile string

	Debug bool
}

// Defaults matches §6's documented flag defaults.
func Defaults() *Config {
	return &Config{
		AttrTTL:        300 * time.Second,
		EntryTTL:       300 * time.Second,
		RefTTL:         2 * time.Second,
		TreeCache:      4096,
		BlobSmallCache: 128 << 20,
	}
}

// BindFlags registers every flag from §6 (plus --debug) onto fs.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Repo, "repo", c.Repo, "path to a bare repository or a worktree's .git directory")
	fs.StringVar(&c.Mountpoint, "mountpoint", c.Mountpoint, "existing empty directory to mount on")
	fs.BoolVar(&c.AllowOther, "allow-other", c.AllowOther, "pass allow_other through to the mount syscall")

	fs.DurationVar(&c.AttrTTL, "attr-ttl", c.AttrTTL, "attribute cache TTL for entries under /commits")
	fs.DurationVar(&c.EntryTTL, "entry-ttl", c.EntryTTL, "dentry cache TTL for static topology entries")
	fs.DurationVar(&c.RefTTL, "ref-ttl", c.RefTTL, "attribute/dentry TTL for /branches, /tags and /HEAD")

	fs.IntVar(&c.TreeCache, "tree-cache", c.TreeCache, "LRU bound (entry count) for decoded trees")
	fs.Uint64Var(&c.BlobSmallCache, "blob-small-cache", c.BlobSmallCache, "LRU bound (bytes) for small blob content")

	fs.StringVar(&c.StateFile, "state-file", c.StateFile, "ledger persistence path, carried across hot upgrade")

	fs.BoolVar(&c.Debug, "debug", c.Debug, "verbose logging and go-fuse debug tracing")
}

// Validate checks the required flags and rejects an obviously
// unusable combination before anything touches the repository or the
// mount syscall.
func (c *Config) Validate() error {
	if c.Repo == "" {
		return fmt.Errorf("config: --repo is required")
	}
	if c.Mountpoint == "" {
		return fmt.Errorf("config: --mountpoint is required")
	}
	if c.TreeCache < 0 {
		return fmt.Errorf("config: --tree-cache must not be negative")
	}
	return nil
}
