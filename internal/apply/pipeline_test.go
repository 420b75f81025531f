package apply

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blazelab/blaze/internal/workspace"
)

// fakeGit records calls and lets tests script the clean check.
type fakeGit struct {
	staged  []string
	removed []string
	commits []string
	clean   bool
	changed []string
}

func (g *fakeGit) Stage(_ context.Context, _, path string) error {
	g.staged = append(g.staged, path)
	return nil
}

func (g *fakeGit) Remove(_ context.Context, _, path string) error {
	g.removed = append(g.removed, path)
	return nil
}

func (g *fakeGit) IsWorkingTreeClean(_ context.Context, _ string) (bool, error) {
	return g.clean, nil
}

func (g *fakeGit) Commit(_ context.Context, _, message string) error {
	g.commits = append(g.commits, message)
	return nil
}

func (g *fakeGit) ChangedFiles(_ context.Context, _ string) ([]string, error) {
	return g.changed, nil
}

// newTestPipeline builds a pipeline over a temp apps root with one app
// directory created, returning the pipeline, the fake git, and the app dir.
func newTestPipeline(t *testing.T) (*Pipeline, *fakeGit, string) {
	t.Helper()
	root := t.TempDir()
	appDir := filepath.Join(root, "demo")
	if err := os.MkdirAll(appDir, 0o755); err != nil {
		t.Fatalf("mkdir app dir: %v", err)
	}
	git := &fakeGit{}
	p := NewPipeline(workspace.NewResolver(root), git, nil, nil)
	return p, git, appDir
}

func TestApply_NoTags_FastPath(t *testing.T) {
	p, git, _ := newTestPipeline(t)

	res := p.Apply(context.Background(), "Just prose, nothing to do.", "demo")

	if res.UpdatedFiles {
		t.Error("UpdatedFiles = true, want false")
	}
	if res.Error != "" {
		t.Errorf("Error = %q, want empty", res.Error)
	}
	if len(git.staged) != 0 || len(git.commits) != 0 {
		t.Errorf("git was called on fast path: staged=%v commits=%v", git.staged, git.commits)
	}
}

func TestApply_Write_CommitsOnce(t *testing.T) {
	p, git, appDir := newTestPipeline(t)

	res := p.Apply(context.Background(),
		`<blaze-write path="src/file1.js">console.log("hi");</blaze-write>`, "demo")

	if !res.UpdatedFiles {
		t.Fatalf("UpdatedFiles = false, want true (error: %q)", res.Error)
	}
	data, err := os.ReadFile(filepath.Join(appDir, "src", "file1.js"))
	if err != nil {
		t.Fatalf("read written file: %v", err)
	}
	if string(data) != `console.log("hi");` {
		t.Errorf("content = %q", data)
	}
	if len(git.commits) != 1 {
		t.Fatalf("commits = %d, want exactly 1", len(git.commits))
	}
	if !strings.Contains(git.commits[0], "wrote 1 file(s)") {
		t.Errorf("commit message = %q, want it to contain %q", git.commits[0], "wrote 1 file(s)")
	}
	if res.Counts.Wrote != 1 {
		t.Errorf("Counts.Wrote = %d, want 1", res.Counts.Wrote)
	}
}

func TestApply_Write_CleanTreeSkipsCommit(t *testing.T) {
	p, git, _ := newTestPipeline(t)
	git.clean = true

	res := p.Apply(context.Background(),
		`<blaze-write path="src/file1.js">same content</blaze-write>`, "demo")

	if res.UpdatedFiles {
		t.Error("UpdatedFiles = true, want false when the tree is unchanged")
	}
	if len(git.staged) != 1 || git.staged[0] != "src/file1.js" {
		t.Errorf("staged = %v, want the write staged", git.staged)
	}
	if len(git.commits) != 0 {
		t.Errorf("commits = %v, want none", git.commits)
	}
}

func TestApply_MixedBatch_CommitMessage(t *testing.T) {
	p, git, appDir := newTestPipeline(t)
	mustWrite(t, filepath.Join(appDir, "old.js"), "old")
	mustWrite(t, filepath.Join(appDir, "junk.tmp"), "x")

	text := `<blaze-write path="new.js">fresh</blaze-write>
<blaze-rename from="old.js" to="renamed.js"></blaze-rename>
<blaze-delete path="junk.tmp"></blaze-delete>`

	res := p.Apply(context.Background(), text, "demo")

	if !res.UpdatedFiles {
		t.Fatalf("UpdatedFiles = false, want true (error: %q)", res.Error)
	}
	if len(git.commits) != 1 {
		t.Fatalf("commits = %d, want 1", len(git.commits))
	}
	want := "wrote 1 file(s), renamed 1 file(s), deleted 1 file(s)"
	if !strings.Contains(git.commits[0], want) {
		t.Errorf("commit message = %q, want it to contain %q", git.commits[0], want)
	}
	if _, err := os.Stat(filepath.Join(appDir, "renamed.js")); err != nil {
		t.Errorf("renamed.js missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(appDir, "old.js")); !os.IsNotExist(err) {
		t.Error("old.js still exists after rename")
	}
	if _, err := os.Stat(filepath.Join(appDir, "junk.tmp")); !os.IsNotExist(err) {
		t.Error("junk.tmp still exists after delete")
	}
}

func TestApply_RenameMissingSource_NoOp(t *testing.T) {
	p, git, _ := newTestPipeline(t)

	res := p.Apply(context.Background(),
		`<blaze-rename from="ghost.js" to="real.js"></blaze-rename>`, "demo")

	if res.UpdatedFiles {
		t.Error("UpdatedFiles = true, want false")
	}
	if res.Error != "" {
		t.Errorf("Error = %q, want empty — missing rename source is a no-op", res.Error)
	}
	if len(git.staged) != 0 || len(git.removed) != 0 {
		t.Errorf("git touched for no-op rename: staged=%v removed=%v", git.staged, git.removed)
	}
	if len(res.Outcomes) != 1 || res.Outcomes[0].Result != OutcomeNoOp {
		t.Errorf("Outcomes = %+v, want a single noop", res.Outcomes)
	}
}

func TestApply_DeleteMissingPath_NoOp(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	res := p.Apply(context.Background(),
		`<blaze-delete path="never-existed.txt"></blaze-delete>`, "demo")

	if res.Error != "" {
		t.Errorf("Error = %q, want empty", res.Error)
	}
	if len(res.Outcomes) != 1 || res.Outcomes[0].Result != OutcomeNoOp {
		t.Errorf("Outcomes = %+v, want a single noop", res.Outcomes)
	}
}

func TestApply_SearchReplace_Success(t *testing.T) {
	p, _, appDir := newTestPipeline(t)
	mustWrite(t, filepath.Join(appDir, "main.ts"), "const x = 1;\nconst y = 1;\n")

	text := "<blaze-search-replace path=\"main.ts\">\n" +
		"<<<<<<< SEARCH\nconst x = 1;\n=======\nconst x = 2;\n>>>>>>> REPLACE\n" +
		"</blaze-search-replace>"

	res := p.Apply(context.Background(), text, "demo")

	if !res.UpdatedFiles {
		t.Fatalf("UpdatedFiles = false, want true (error: %q)", res.Error)
	}
	data, _ := os.ReadFile(filepath.Join(appDir, "main.ts"))
	want := "const x = 2;\nconst y = 1;\n"
	if string(data) != want {
		t.Errorf("content = %q, want %q", data, want)
	}
}

func TestApply_SearchReplaceNotFound_DoesNotBlockWrite(t *testing.T) {
	p, git, appDir := newTestPipeline(t)
	mustWrite(t, filepath.Join(appDir, "main.ts"), "actual content\n")

	text := "<blaze-search-replace path=\"main.ts\">\n" +
		"<<<<<<< SEARCH\nnot present\n=======\nreplacement\n>>>>>>> REPLACE\n" +
		"</blaze-search-replace>\n" +
		"<blaze-write path=\"main.ts\">rewritten\n</blaze-write>"

	res := p.Apply(context.Background(), text, "demo")

	if !res.UpdatedFiles {
		t.Fatalf("UpdatedFiles = false, want true — the write must still commit (error: %q)", res.Error)
	}
	if len(git.commits) != 1 {
		t.Fatalf("commits = %d, want exactly 1", len(git.commits))
	}
	if !strings.Contains(res.Error, "search text not found") {
		t.Errorf("Error = %q, want it to report the search-replace failure", res.Error)
	}
	data, _ := os.ReadFile(filepath.Join(appDir, "main.ts"))
	if string(data) != "rewritten" {
		t.Errorf("content = %q, want the write result", data)
	}
}

func TestApply_OnlyFailedSearchReplace_SurfacesError(t *testing.T) {
	p, git, appDir := newTestPipeline(t)
	mustWrite(t, filepath.Join(appDir, "a.txt"), "hello\n")

	text := "<blaze-search-replace path=\"a.txt\">\n" +
		"<<<<<<< SEARCH\nmissing\n=======\nx\n>>>>>>> REPLACE\n" +
		"</blaze-search-replace>"

	res := p.Apply(context.Background(), text, "demo")

	if res.UpdatedFiles {
		t.Error("UpdatedFiles = true, want false")
	}
	if !strings.Contains(res.Error, "no changes applied") || !strings.Contains(res.Error, "search text not found") {
		t.Errorf("Error = %q, want the aggregated search-replace failure", res.Error)
	}
	if len(git.commits) != 0 {
		t.Errorf("commits = %v, want none", git.commits)
	}
}

func TestApply_WriteOutsideAppDir_Fatal(t *testing.T) {
	p, git, _ := newTestPipeline(t)

	res := p.Apply(context.Background(),
		`<blaze-write path="../escape.txt">nope</blaze-write>`, "demo")

	if res.UpdatedFiles {
		t.Error("UpdatedFiles = true, want false")
	}
	if res.Error == "" {
		t.Error("Error empty, want a fatal path error")
	}
	if len(git.commits) != 0 {
		t.Errorf("commits = %v, want none after fatal error", git.commits)
	}
}

func TestApply_ExtraFilesPassthrough(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "demo"), 0o755); err != nil {
		t.Fatal(err)
	}
	git := &fakeGit{changed: []string{"src/file1.js", "stray.log"}}
	p := NewPipeline(workspace.NewResolver(root), git, NewGitScanner(git), nil)

	res := p.Apply(context.Background(),
		`<blaze-write path="src/file1.js">x</blaze-write>`, "demo")

	if !res.UpdatedFiles {
		t.Fatalf("UpdatedFiles = false (error: %q)", res.Error)
	}
	if len(res.ExtraFiles) != 1 || res.ExtraFiles[0] != "stray.log" {
		t.Errorf("ExtraFiles = %v, want [stray.log] — batch paths excluded", res.ExtraFiles)
	}
}

func TestCommitMessage_OmitsZeroClauses(t *testing.T) {
	tests := []struct {
		counts Counts
		want   string
	}{
		{Counts{Wrote: 2}, "[blaze] wrote 2 file(s)"},
		{Counts{Wrote: 1, Deleted: 3}, "[blaze] wrote 1 file(s), deleted 3 file(s)"},
		{Counts{Renamed: 1, Edited: 2}, "[blaze] renamed 1 file(s), edited 2 file(s)"},
	}
	for _, tt := range tests {
		if got := commitMessage(tt.counts); got != tt.want {
			t.Errorf("commitMessage(%+v) = %q, want %q", tt.counts, got, tt.want)
		}
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
