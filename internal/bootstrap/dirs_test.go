package bootstrap

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestProvision_Idempotent(t *testing.T) {
	root := t.TempDir()
	p := Provisioner{Root: root, Logger: zerolog.Nop()}
	first, err := p.Provision()
	require.NoError(t, err)
	require.Len(t, first, len(RequiredDirs))
	for _, name := range RequiredDirs {
		fi, err := os.Stat(filepath.Join(root, name))
		require.NoError(t, err)
		require.True(t, fi.IsDir())
	}
	keep := filepath.Join(root, "voice_embeddings", "speaker.json")
	require.NoError(t, os.WriteFile(keep, []byte("{}"), 0o644))

	second, err := p.Provision()
	require.NoError(t, err)
	require.Equal(t, first, second)
	_, err = os.Stat(keep)
	require.NoError(t, err, "existing content must survive")
}

func TestProvision_CustomCachePath(t *testing.T) {
	root := t.TempDir()
	cache := filepath.Join(t.TempDir(), "models")
	paths, err := Provisioner{Root: root, CachePath: cache}.Provision()
	require.NoError(t, err)
	require.Contains(t, paths, cache)
	require.NotContains(t, paths, filepath.Join(root, "cache"))
}

func TestProvision_FileInTheWay(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "outputs"), []byte("x"), 0o644))
	_, err := Provisioner{Root: root}.Provision()
	require.Error(t, err)
	stage, ok := StageOf(err)
	require.True(t, ok)
	require.Equal(t, StageProvisionDirs, stage)
	require.Contains(t, err.Error(), "outputs")
}

func TestProvision_ReadOnlyRoot(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	root := filepath.Join(t.TempDir(), "ro")
	require.NoError(t, os.Mkdir(root, 0o555))
	t.Cleanup(func() { _ = os.Chmod(root, 0o755) })
	_, err := Provisioner{Root: root}.Provision()
	require.True(t, IsFatal(err))
}

func TestProvision_EmptyRoot(t *testing.T) {
	_, err := Provisioner{}.Provision()
	require.True(t, IsFatal(err))
}
