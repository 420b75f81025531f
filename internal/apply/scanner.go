package apply

import (
	"context"
	"sort"

	"github.com/blazelab/blaze/internal/gitvc"
)

// GitScanner implements Scanner using git status: any path that differs
// from HEAD and was not touched by the batch is an extra file.
type GitScanner struct {
	git gitvc.Git
}

// NewGitScanner creates a GitScanner over the given Git runner.
func NewGitScanner(git gitvc.Git) *GitScanner {
	return &GitScanner{git: git}
}

func (s *GitScanner) ExtraFiles(ctx context.Context, repoDir string, batchPaths map[string]bool) ([]string, error) {
	changed, err := s.git.ChangedFiles(ctx, repoDir)
	if err != nil {
		return nil, err
	}
	var extra []string
	for _, f := range changed {
		if !batchPaths[f] {
			extra = append(extra, f)
		}
	}
	sort.Strings(extra)
	return extra, nil
}
