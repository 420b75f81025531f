// Package gitvc is the version-control collaborator for the apply
// pipeline: staging, commit, and working-tree inspection for a
// generated app's repository, via the git CLI.
package gitvc

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Git is the subset of version-control operations the pipeline needs.
// Interface for testing.
type Git interface {
	Stage(ctx context.Context, repoDir, path string) error
	Remove(ctx context.Context, repoDir, path string) error
	IsWorkingTreeClean(ctx context.Context, repoDir string) (bool, error)
	Commit(ctx context.Context, repoDir, message string) error
	ChangedFiles(ctx context.Context, repoDir string) ([]string, error)
}

// ExecGit implements Git by calling git commands in the repo directory.
type ExecGit struct{}

func (g *ExecGit) Stage(ctx context.Context, repoDir, path string) error {
	_, err := runGit(ctx, repoDir, "add", "--", path)
	return err
}

// Remove stages a deletion of a path already unlinked by the pipeline.
// `add --all` records the removal without requiring the file to exist.
func (g *ExecGit) Remove(ctx context.Context, repoDir, path string) error {
	_, err := runGit(ctx, repoDir, "add", "--all", "--", path)
	return err
}

// IsWorkingTreeClean reports whether the index and working tree match
// HEAD, i.e. whether a commit would be empty.
func (g *ExecGit) IsWorkingTreeClean(ctx context.Context, repoDir string) (bool, error) {
	out, err := runGitRaw(ctx, repoDir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "", nil
}

func (g *ExecGit) Commit(ctx context.Context, repoDir, message string) error {
	_, err := runGit(ctx, repoDir, "commit", "-m", message)
	return err
}

// ChangedFiles lists paths that differ from HEAD (staged, unstaged, or
// untracked), used to report files changed outside the action batch.
func (g *ExecGit) ChangedFiles(ctx context.Context, repoDir string) ([]string, error) {
	out, err := runGitRaw(ctx, repoDir, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	out = strings.TrimRight(out, "\n")
	if out == "" {
		return nil, nil
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		// Porcelain lines are "XY path"; renames are "XY old -> new".
		if len(line) < 4 {
			continue
		}
		p := line[3:]
		if i := strings.Index(p, " -> "); i >= 0 {
			p = p[i+4:]
		}
		files = append(files, strings.Trim(p, `"`))
	}
	return files, nil
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := runGitRaw(ctx, dir, args...)
	return strings.TrimSpace(out), err
}

// runGitRaw preserves the output verbatim. Porcelain status columns are
// positional and may be blank, so leading whitespace is significant.
func runGitRaw(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return string(out), nil
}
