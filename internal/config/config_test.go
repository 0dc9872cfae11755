package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := Defaults()
	require.Equal(t, 300*time.Second, c.AttrTTL)
	require.Equal(t, 2*time.Second, c.RefTTL)
	require.Equal(t, 4096, c.TreeCache)
	require.EqualValues(t, 128<<20, c.BlobSmallCache)
}

func TestValidateRequiresRepo(t *testing.T) {
	c := Defaults()
	c.Mountpoint = "/mnt"
	require.Error(t, c.Validate())
}

func TestValidateRequiresMountpoint(t *testing.T) {
	c := Defaults()
	c.Repo = "/repo"
	require.Error(t, c.Validate())

	c.Mountpoint = "/mnt"
	require.NoError(t, c.Validate())
}

func TestValidateRejectsNegativeTreeCache(t *testing.T) {
	c := Defaults()
	c.Repo = "/repo"
	c.Mountpoint = "/mnt"
	c.TreeCache = -1
	require.Error(t, c.Validate())
}

func TestBindFlagsRegistersEveryFlag(t *testing.T) {
	c := Defaults()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	c.BindFlags(fs)

	want := []string{
		"repo", "mountpoint", "allow-other",
		"attr-ttl", "entry-ttl", "ref-ttl",
		"tree-cache", "blob-small-cache",
		"state-file", "debug",
	}
	for _, name := range want {
		require.NotNilf(t, fs.Lookup(name), "flag %q not registered", name)
	}

	require.NoError(t, fs.Parse([]string{"--repo=/r", "--mountpoint=/m", "--debug"}))
	require.Equal(t, "/r", c.Repo)
	require.Equal(t, "/m", c.Mountpoint)
	require.True(t, c.Debug)
}
