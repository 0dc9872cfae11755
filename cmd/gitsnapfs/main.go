// Command gitsnapfs mounts a Git repository's commit/tree/blob graph as
// a read-only FUSE filesystem.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gitsnapfs/gitsnapfs/internal/config"
	"github.com/gitsnapfs/gitsnapfs/internal/gitstore"
	"github.com/gitsnapfs/gitsnapfs/internal/ino"
	"github.com/gitsnapfs/gitsnapfs/internal/objcache"
	"github.com/gitsnapfs/gitsnapfs/internal/refwatch"
	"github.com/gitsnapfs/gitsnapfs/internal/resolver"
	"github.com/gitsnapfs/gitsnapfs/internal/upgrade"
)

// version is the string served at /.gitsnapfs/version; overridden at
// build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg := config.Defaults()

	root := &cobra.Command{
		Use:   "gitsnapfs",
		Short: "Mount a Git repository's history as a read-only filesystem",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}
	cfg.BindFlags(root.Flags())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := newLogger(cfg.Debug)
	defer log.Sync()

	store, err := gitstore.Open(cfg.Repo)
	if err != nil {
		log.Error("open repository", zap.Error(err))
		return err
	}

	ledger, err := ino.Open(cfg.StateFile)
	if err != nil {
		log.Error("open ledger", zap.Error(err))
		return err
	}
	defer ledger.Close()

	coord, err := upgrade.Open(upgrade.Options{
		Mountpoint: cfg.Mountpoint,
		StateFile:  cfg.StateFile,
		Ledger:     ledger,
		Log:        log,
	})
	if err != nil {
		log.Error("open fuse channel", zap.Error(err))
		return err
	}

	trees := objcache.NewTreeCache(cfg.TreeCache)
	blobs := objcache.NewBlobCache(cfg.BlobSmallCache)

	rcfg := resolver.Config{
		AttrTTL:  cfg.AttrTTL,
		EntryTTL: cfg.EntryTTL,
		RefTTL:   cfg.RefTTL,
	}
	fsImpl := resolver.New(store, ledger, trees, blobs, rcfg, log, version)
	fsImpl.SetGate(coord.Gate)
	fsImpl.SetDebug(cfg.Debug)

	server, err := coord.NewServer(fsImpl, &fuse.MountOptions{
		AllowOther: cfg.AllowOther,
		Debug:      cfg.Debug,
	})
	if err != nil {
		log.Error("start fuse server", zap.Error(err))
		return err
	}

	watcher, err := refwatch.Watch(cfg.Repo, fsImpl, log)
	if err != nil {
		log.Warn("ref watcher unavailable, falling back to TTL staleness", zap.Error(err))
	} else {
		defer watcher.Close()
	}

	argv, err := selfArgv()
	if err != nil {
		log.Error("resolve executable path", zap.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR2)
	go func() {
		for range sigCh {
			log.Info("upgrade trigger received")
			if err := coord.Upgrade(argv); err != nil {
				log.Error("hot upgrade failed, continuing to serve", zap.Error(err))
			}
		}
	}()

	log.Info("mounted", zap.String("repo", cfg.Repo), zap.String("mountpoint", cfg.Mountpoint), zap.Bool("resumed", coord.Resumed()))

	server.Serve()
	return nil
}

// selfArgv resolves the running binary's own path and argument vector,
// for the exec handover in §4.E step 4 ("the same argument vector").
func selfArgv() ([]string, error) {
	self, err := exec.LookPath(os.Args[0])
	if err != nil {
		return nil, fmt.Errorf("resolve self: %w", err)
	}
	argv := append([]string{self}, os.Args[1:]...)
	return argv, nil
}

func newLogger(debug bool) *zap.Logger {
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		l, _ := cfg.Build()
		return l
	}
	l, _ := zap.NewProduction()
	return l
}
