package gitops

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, args := range [][]string{
		{"init"},
		{"config", "user.email", "test@example.com"},
		{"config", "user.name", "test"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Skipf("git unavailable: %v (%s)", err, out)
		}
	}
	return dir
}

func TestCheckpoint_CommitsDirtyTree(t *testing.T) {
	dir := initRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page_01.html"), []byte("<html></html>"), 0o644))

	c := NewCheckpointer(dir)
	require.NoError(t, c.Checkpoint(context.Background(), "宝宝辅食添加", "0123456789abcdef"))

	out, err := c.git(context.Background(), "log", "--oneline")
	require.NoError(t, err)
	require.Contains(t, out, "宝宝辅食添加")
	require.Contains(t, out, "01234567")
}

func TestCheckpoint_CleanTreeIsNoOp(t *testing.T) {
	dir := initRepo(t)
	c := NewCheckpointer(dir)

	require.NoError(t, c.Checkpoint(context.Background(), "topic", "run"))

	_, err := c.git(context.Background(), "log", "--oneline")
	require.Error(t, err) // no commits were made
}

func TestCheckpoint_OutsideRepoFails(t *testing.T) {
	c := NewCheckpointer(t.TempDir())
	require.Error(t, c.Checkpoint(context.Background(), "topic", "run"))
}

func TestShortID(t *testing.T) {
	require.Equal(t, "abcd1234", shortID("abcd1234ef"))
	require.Equal(t, "run", shortID("run"))
}
