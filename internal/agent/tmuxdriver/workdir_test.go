package tmuxdriver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveWorkingDirEmptyIsNoop(t *testing.T) {
	got, err := resolveWorkingDir("")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolveWorkingDirExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := resolveWorkingDir("~")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(home), got)
}

func TestResolveWorkingDirExpandsHomeSubdir(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	sub := filepath.Join(home, "tfclaw-workdir-test")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	defer os.RemoveAll(sub)

	got, err := resolveWorkingDir("~/tfclaw-workdir-test")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(sub), got)
}

func TestResolveWorkingDirRejectsTildeNotAtStart(t *testing.T) {
	dir := t.TempDir()
	_, err := resolveWorkingDir(filepath.Join(dir, "~", "bar"))
	assert.Error(t, err)
}

func TestResolveWorkingDirExistingDir(t *testing.T) {
	dir := t.TempDir()
	got, err := resolveWorkingDir(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(dir), got)
}

func TestResolveWorkingDirNonexistentPath(t *testing.T) {
	_, err := resolveWorkingDir("/nonexistent/path/that/does/not/exist")
	assert.Error(t, err)
}

func TestResolveWorkingDirFileNotDir(t *testing.T) {
	f, err := os.CreateTemp("", "tfclaw-resolve-workdir-*")
	require.NoError(t, err)
	defer os.Remove(f.Name())
	f.Close()

	_, err = resolveWorkingDir(f.Name())
	assert.Error(t, err)
}

func TestResolveWorkingDirRelativePath(t *testing.T) {
	got, err := resolveWorkingDir(".")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
}
