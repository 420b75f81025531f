package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/blazelab/blaze/internal/apply"
	"github.com/blazelab/blaze/internal/autofix"
	"github.com/blazelab/blaze/internal/config"
	"github.com/blazelab/blaze/internal/report"
	"github.com/blazelab/blaze/internal/store"
	"github.com/blazelab/blaze/internal/workspace"
)

type fakeGit struct {
	staged  []string
	removed []string
	commits []string
	clean   bool
}

func (g *fakeGit) Stage(ctx context.Context, repoDir, path string) error {
	g.staged = append(g.staged, path)
	return nil
}

func (g *fakeGit) Remove(ctx context.Context, repoDir, path string) error {
	g.removed = append(g.removed, path)
	return nil
}

func (g *fakeGit) IsWorkingTreeClean(ctx context.Context, repoDir string) (bool, error) {
	return g.clean, nil
}

func (g *fakeGit) Commit(ctx context.Context, repoDir, message string) error {
	g.commits = append(g.commits, message)
	return nil
}

func (g *fakeGit) ChangedFiles(ctx context.Context, repoDir string) ([]string, error) {
	return nil, nil
}

type fakeRequester struct {
	calls []autofix.Incident
}

func (r *fakeRequester) RequestFix(ctx context.Context, appID, chatID string, inc autofix.Incident, attemptNumber int) error {
	r.calls = append(r.calls, inc)
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *fakeGit, *store.Store) {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "myapp"), 0o755); err != nil {
		t.Fatalf("mkdir app: %v", err)
	}
	git := &fakeGit{}
	pipeline := apply.NewPipeline(workspace.NewResolver(root), git, nil, nil)

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{}
	return New(pipeline, st, cfg, nil), git, st
}

func TestHandleResponseAppliesAndPersists(t *testing.T) {
	e, git, st := newTestEngine(t)

	raw := "Creating your page.\n\n<blaze-write path=\"src/index.ts\">\nexport {}\n</blaze-write>\n\n<blaze-chat-summary>Todo app</blaze-chat-summary>"
	resp, err := e.HandleResponse(context.Background(), "myapp", "c1", raw)
	if err != nil {
		t.Fatalf("HandleResponse: %v", err)
	}

	if !resp.Result.UpdatedFiles {
		t.Error("expected a commit")
	}
	if len(git.commits) != 1 {
		t.Fatalf("got %d commits, want 1", len(git.commits))
	}

	// Display hides control tags; persisted keeps them plus the status block.
	if strings.Contains(resp.Display, "<blaze-") {
		t.Errorf("display leaked control tags: %q", resp.Display)
	}
	if !strings.Contains(resp.Display, "Creating your page.") {
		t.Errorf("display lost prose: %q", resp.Display)
	}
	if !strings.Contains(resp.Persisted, "<blaze-status") {
		t.Errorf("persisted text missing status block: %q", resp.Persisted)
	}

	msgs, err := st.GetMessages("c1")
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != "assistant" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}

	c, err := st.GetChat("c1")
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if c.Title != "Todo app" {
		t.Errorf("chat title = %q, want %q", c.Title, "Todo app")
	}

	records, err := st.GetApplyHistory("myapp", 10)
	if err != nil {
		t.Fatalf("apply history: %v", err)
	}
	if len(records) != 1 || records[0].Wrote != 1 || !records[0].Committed {
		t.Errorf("unexpected apply record: %+v", records)
	}
}

func TestHandleResponsePlainProse(t *testing.T) {
	e, git, st := newTestEngine(t)

	resp, err := e.HandleResponse(context.Background(), "myapp", "c1", "Just an explanation, no actions.")
	if err != nil {
		t.Fatalf("HandleResponse: %v", err)
	}
	if resp.Result.UpdatedFiles {
		t.Error("expected no commit")
	}
	if len(git.commits) != 0 {
		t.Errorf("got %d commits, want 0", len(git.commits))
	}
	// No batch means no status block appended.
	if strings.Contains(resp.Persisted, "<blaze-status") {
		t.Errorf("unexpected status block: %q", resp.Persisted)
	}

	msgs, err := st.GetMessages("c1")
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
}

func TestHandleResponseActionsOnlyPlaceholder(t *testing.T) {
	e, _, _ := newTestEngine(t)

	raw := "<blaze-write path=\"src/a.ts\">\nexport {}\n</blaze-write>"
	resp, err := e.HandleResponse(context.Background(), "myapp", "c1", raw)
	if err != nil {
		t.Fatalf("HandleResponse: %v", err)
	}
	if resp.Display != report.ActionsOnlyPlaceholder {
		t.Errorf("display = %q, want the actions-only placeholder", resp.Display)
	}
}

func TestHandleUserMessageCreatesChat(t *testing.T) {
	e, _, st := newTestEngine(t)

	if _, err := e.HandleUserMessage("myapp", "c1", "make it blue"); err != nil {
		t.Fatalf("HandleUserMessage: %v", err)
	}
	c, err := st.GetChat("c1")
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if c == nil || c.AppID != "myapp" {
		t.Fatalf("chat not created: %+v", c)
	}
}

func TestHandleIncidentAutoFlow(t *testing.T) {
	e, _, st := newTestEngine(t)
	req := &fakeRequester{}
	inc := autofix.NewIncident(autofix.SourceServerStderr, "TypeError: boom", "src/main.ts", time.Now())

	d, err := e.HandleIncident(context.Background(), "myapp", "c1", inc, autofix.ModeAuto, req)
	if err != nil {
		t.Fatalf("HandleIncident: %v", err)
	}
	if !d.Allowed || d.AttemptNumber != 1 {
		t.Fatalf("unexpected decision: %+v", d)
	}
	if len(req.calls) != 1 {
		t.Fatalf("got %d fix requests, want 1", len(req.calls))
	}

	attempts, err := st.GetFixAttempts("myapp", 10)
	if err != nil {
		t.Fatalf("get fix attempts: %v", err)
	}
	if len(attempts) != 1 || attempts[0].AttemptNumber != 1 {
		t.Fatalf("unexpected attempts: %+v", attempts)
	}

	// Second occurrence inside the cooldown window is blocked.
	d, err = e.HandleIncident(context.Background(), "myapp", "c1", inc, autofix.ModeAuto, req)
	if err != nil {
		t.Fatalf("HandleIncident: %v", err)
	}
	if d.Allowed || d.Reason != autofix.ReasonCooldown {
		t.Fatalf("unexpected decision: %+v", d)
	}
	if len(req.calls) != 1 {
		t.Errorf("blocked incident still dispatched: %d calls", len(req.calls))
	}
}

func TestHandleIncidentManualNotRecorded(t *testing.T) {
	e, _, st := newTestEngine(t)
	inc := autofix.NewIncident(autofix.SourcePreviewBuild, "SyntaxError: unexpected token", "src/app.tsx", time.Now())

	d, err := e.HandleIncident(context.Background(), "myapp", "c1", inc, autofix.ModeManual, &fakeRequester{})
	if err != nil {
		t.Fatalf("HandleIncident: %v", err)
	}
	if !d.Allowed || d.Reason != autofix.ReasonManual {
		t.Fatalf("unexpected decision: %+v", d)
	}

	attempts, err := st.GetFixAttempts("myapp", 10)
	if err != nil {
		t.Fatalf("get fix attempts: %v", err)
	}
	if len(attempts) != 0 {
		t.Errorf("manual attempt was recorded: %+v", attempts)
	}
}

func TestHandleIncidentDisabled(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.cfg.AutoFix.Disabled = true
	inc := autofix.NewIncident(autofix.SourceServerStderr, "boom", "", time.Now())

	d, err := e.HandleIncident(context.Background(), "myapp", "c1", inc, autofix.ModeAuto, nil)
	if err != nil {
		t.Fatalf("HandleIncident: %v", err)
	}
	if d.Allowed || d.Reason != autofix.ReasonDisabled {
		t.Fatalf("unexpected decision: %+v", d)
	}

	// Manual bypasses the disable switch.
	d, err = e.HandleIncident(context.Background(), "myapp", "c1", inc, autofix.ModeManual, nil)
	if err != nil {
		t.Fatalf("HandleIncident: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("manual blocked by disable switch: %+v", d)
	}
}

func TestHandleIncidentNonActionable(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.cfg.AutoFix.ExtraNonActionable = []string{"disk quota exceeded"}

	builtin := autofix.NewIncident(autofix.SourceServerStderr, "Cannot connect to the Docker daemon", "", time.Now())
	d, err := e.HandleIncident(context.Background(), "myapp", "c1", builtin, autofix.ModeAuto, nil)
	if err != nil {
		t.Fatalf("HandleIncident: %v", err)
	}
	if d.Allowed || d.Reason != autofix.ReasonNonActionable {
		t.Fatalf("unexpected decision: %+v", d)
	}

	extra := autofix.NewIncident(autofix.SourceServerStderr, "write failed: Disk Quota Exceeded", "", time.Now())
	d, err = e.HandleIncident(context.Background(), "myapp", "c1", extra, autofix.ModeAuto, nil)
	if err != nil {
		t.Fatalf("HandleIncident: %v", err)
	}
	if d.Allowed || d.Reason != autofix.ReasonNonActionable {
		t.Fatalf("configured pattern not honored: %+v", d)
	}
}

func TestHandleIncidentContextSwitchResetsBudget(t *testing.T) {
	e, _, _ := newTestEngine(t)
	inc := autofix.NewIncident(autofix.SourceServerStderr, "boom", "src/main.ts", time.Now())

	d, err := e.HandleIncident(context.Background(), "myapp", "c1", inc, autofix.ModeAuto, nil)
	if err != nil {
		t.Fatalf("HandleIncident: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("first attempt blocked: %+v", d)
	}

	// A different chat gets a fresh budget.
	d, err = e.HandleIncident(context.Background(), "myapp", "c2", inc, autofix.ModeAuto, nil)
	if err != nil {
		t.Fatalf("HandleIncident: %v", err)
	}
	if !d.Allowed || d.AttemptNumber != 1 {
		t.Fatalf("budget leaked across chats: %+v", d)
	}
}
