package sync

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const (
	gitAuthorName  = "switchboard"
	gitAuthorEmail = "switchboard@localhost"
)

// GitDestination commits each snapshot to a file in a local clone and pushes
// it to origin.
type GitDestination struct {
	repo   string
	file   string
	branch string
}

// NewGitDestination targets file (relative to the clone at repo) on branch.
func NewGitDestination(repo, file, branch string) *GitDestination {
	if file == "" {
		file = DefaultSnapshotKey
	}
	if branch == "" {
		branch = "main"
	}
	return &GitDestination{repo: repo, file: filepath.ToSlash(file), branch: branch}
}

func (d *GitDestination) Name() string { return "git" }

// Write commits data only when it differs from the committed file. A
// missing remote branch is created by the push.
func (d *GitDestination) Write(ctx context.Context, data []byte) error {
	if _, err := d.git(ctx, "checkout", d.branch); err != nil {
		return err
	}
	// The branch may not exist on origin yet.
	_, _ = d.git(ctx, "pull", "--ff-only", "origin", d.branch)

	if err := writeFileAtomic(filepath.Join(d.repo, filepath.FromSlash(d.file)), data); err != nil {
		return err
	}

	status, err := d.git(ctx, "status", "--porcelain", "--", d.file)
	if err != nil {
		return err
	}
	if strings.TrimSpace(status) == "" {
		return nil
	}

	if _, err := d.git(ctx, "add", "--", d.file); err != nil {
		return err
	}
	if _, err := d.git(ctx,
		"-c", "user.name="+gitAuthorName,
		"-c", "user.email="+gitAuthorEmail,
		"commit", "--quiet", "-m", "switchboard: update "+d.file); err != nil {
		return err
	}
	if _, err := d.git(ctx, "push", "--quiet", "origin", d.branch); err != nil {
		return err
	}
	return nil
}

// git runs a git subcommand in the clone and returns its stdout. Failures
// carry git's stderr.
func (d *GitDestination) git(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = d.repo
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		sub := args[0]
		for i := 0; i+1 < len(args) && args[i] == "-c"; i += 2 {
			sub = args[i+2]
		}
		return "", fmt.Errorf("git %s: %w: %s", sub, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// writeFileAtomic replaces path via a temp file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".switchboard-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
