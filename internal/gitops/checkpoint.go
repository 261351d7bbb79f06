// Package gitops commits generated artifacts as checkpoints after a run.
// All failures are reported to the caller but are advisory: a failed commit
// never fails a content run.
package gitops

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"redcube/internal/logging"
)

// Checkpointer stages and commits changes in a repository.
type Checkpointer struct {
	repoPath string
}

// NewCheckpointer returns a checkpointer rooted at repoPath.
func NewCheckpointer(repoPath string) *Checkpointer {
	if repoPath == "" {
		repoPath = "."
	}
	return &Checkpointer{repoPath: repoPath}
}

// Checkpoint stages everything and commits with a message derived from the
// run context. A clean tree is not an error; it just skips the commit.
func (c *Checkpointer) Checkpoint(ctx context.Context, topic, runID string) error {
	dirty, err := c.hasChanges(ctx)
	if err != nil {
		return err
	}
	if !dirty {
		logging.Git("nothing to commit for topic %q", topic)
		return nil
	}

	if _, err := c.git(ctx, "add", "-A"); err != nil {
		return fmt.Errorf("stage changes: %w", err)
	}

	msg := fmt.Sprintf("feat: 生成内容包 %s (run %s)", topic, shortID(runID))
	if _, err := c.git(ctx, "commit", "-m", msg); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	hash, err := c.git(ctx, "rev-parse", "--short", "HEAD")
	if err == nil {
		logging.Git("checkpoint %s: %s", hash, msg)
	}
	return nil
}

func (c *Checkpointer) hasChanges(ctx context.Context) (bool, error) {
	out, err := c.git(ctx, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("git status: %w", err)
	}
	return out != "", nil
}

func (c *Checkpointer) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.repoPath
	out, err := cmd.CombinedOutput()
	trimmed := strings.TrimSpace(string(out))
	if err != nil {
		return trimmed, fmt.Errorf("git %s: %v (%s)", args[0], err, trimmed)
	}
	return trimmed, nil
}

func shortID(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}
