// Package apply turns a parsed action batch into filesystem mutations
// against an app's working directory, with one version-control commit
// summarizing the whole batch.
//
// Error policy: filesystem failures are fatal to the batch, a missing
// search text is recoverable and recorded per action, and a missing
// rename/delete target is a deliberate no-op. Apply never panics and
// never returns a Go error; every outcome lands in the Result.
package apply

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/blazelab/blaze/internal/fsutil"
	"github.com/blazelab/blaze/internal/gitvc"
	"github.com/blazelab/blaze/internal/tags"
	"github.com/blazelab/blaze/internal/workspace"
)

// Outcome names what happened to one attempted action.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeNoOp    Outcome = "noop"
	OutcomeFailed  Outcome = "failed"
)

// ActionOutcome records the result of a single action for logging and
// the status report.
type ActionOutcome struct {
	Kind   tags.Kind `json:"kind"`
	Path   string    `json:"path"`
	Result Outcome   `json:"result"`
	Detail string    `json:"detail,omitempty"`
}

// Counts tallies committed mutations per kind, in commit-message order.
type Counts struct {
	Wrote   int `json:"wrote"`
	Renamed int `json:"renamed"`
	Deleted int `json:"deleted"`
	Edited  int `json:"edited"`
}

// Result is the outcome of applying one response's actions.
// UpdatedFiles is true if and only if a commit was produced.
type Result struct {
	UpdatedFiles    bool            `json:"updated_files"`
	Error           string          `json:"error,omitempty"`
	ExtraFiles      []string        `json:"extra_files,omitempty"`
	ExtraFilesError string          `json:"extra_files_error,omitempty"`
	Counts          Counts          `json:"counts"`
	Outcomes        []ActionOutcome `json:"outcomes,omitempty"`
}

// Scanner reports files changed in the working tree that were not part
// of the action batch. It is an external collaborator; its findings are
// passed through into the Result unchanged.
type Scanner interface {
	ExtraFiles(ctx context.Context, repoDir string, batchPaths map[string]bool) ([]string, error)
}

// Pipeline applies action batches for apps resolved by the resolver.
type Pipeline struct {
	resolver *workspace.Resolver
	git      gitvc.Git
	scanner  Scanner // optional
	logger   *zap.Logger
}

// NewPipeline creates a Pipeline. scanner may be nil.
func NewPipeline(resolver *workspace.Resolver, git gitvc.Git, scanner Scanner, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{resolver: resolver, git: git, scanner: scanner, logger: logger}
}

// Apply extracts every action from the full response text and applies
// them against the app's working directory: writes, then renames, then
// deletes, then search-replaces, each kind in document order. At most
// one commit is attempted per call.
func (p *Pipeline) Apply(ctx context.Context, fullText, appID string) Result {
	batch := tags.Extract(fullText)
	if batch.Empty() {
		return Result{}
	}

	repoDir, err := p.resolver.AppDir(appID)
	if err != nil {
		return Result{Error: err.Error()}
	}

	st := &batchState{batchPaths: make(map[string]bool)}

	if res, fatal := p.applyWrites(ctx, repoDir, appID, batch.Writes, st); fatal {
		return res
	}
	if res, fatal := p.applyRenames(ctx, repoDir, appID, batch.Renames, st); fatal {
		return res
	}
	if res, fatal := p.applyDeletes(ctx, repoDir, appID, batch.Deletes, st); fatal {
		return res
	}
	if res, fatal := p.applySearchReplaces(ctx, repoDir, appID, batch.SearchReplaces, st); fatal {
		return res
	}

	srError := ""
	if len(st.srFailures) > 0 {
		srError = strings.Join(st.srFailures, "; ")
	}

	if !st.staged {
		res := Result{Counts: st.counts, Outcomes: st.outcomes}
		if srError != "" {
			// Nothing else was applied, so the search-replace failures
			// are the headline.
			res.Error = "no changes applied: " + srError
		}
		return res
	}

	res := Result{Counts: st.counts, Outcomes: st.outcomes, Error: srError}
	if p.scanner != nil {
		extra, err := p.scanner.ExtraFiles(ctx, repoDir, st.batchPaths)
		if err != nil {
			res.ExtraFilesError = err.Error()
		} else {
			res.ExtraFiles = extra
		}
	}

	clean, err := p.git.IsWorkingTreeClean(ctx, repoDir)
	if err != nil {
		res.Error = joinErrors(srError, fmt.Sprintf("check working tree: %v", err))
		return res
	}
	if clean {
		// A write reproduced existing content byte for byte; an empty
		// commit would be noise.
		p.logger.Info("working tree unchanged after staging, skipping commit",
			zap.String("app", appID))
		return res
	}

	msg := commitMessage(st.counts)
	if err := p.git.Commit(ctx, repoDir, msg); err != nil {
		res.Error = joinErrors(srError, fmt.Sprintf("commit: %v", err))
		return res
	}

	p.logger.Info("applied response actions",
		zap.String("app", appID),
		zap.Int("wrote", st.counts.Wrote),
		zap.Int("renamed", st.counts.Renamed),
		zap.Int("deleted", st.counts.Deleted),
		zap.Int("edited", st.counts.Edited))

	res.UpdatedFiles = true
	return res
}

// batchState accumulates per-call progress across the four kinds.
type batchState struct {
	staged     bool
	counts     Counts
	outcomes   []ActionOutcome
	srFailures []string
	batchPaths map[string]bool
}

// applyWrites writes every file in order. Any failure aborts the whole
// apply: a partially-written generated codebase must not be committed.
func (p *Pipeline) applyWrites(ctx context.Context, repoDir, appID string, writes []tags.WriteAction, st *batchState) (Result, bool) {
	for _, w := range writes {
		abs, err := p.resolver.Resolve(appID, w.Path)
		if err != nil {
			return p.fatal(st, tags.KindWrite, w.Path, err), true
		}
		if err := fsutil.WriteAtomic(abs, []byte(w.Content)); err != nil {
			return p.fatal(st, tags.KindWrite, w.Path, err), true
		}
		if err := p.git.Stage(ctx, repoDir, w.Path); err != nil {
			return p.fatal(st, tags.KindWrite, w.Path, err), true
		}
		st.staged = true
		st.counts.Wrote++
		st.batchPaths[w.Path] = true
		st.outcomes = append(st.outcomes, ActionOutcome{Kind: tags.KindWrite, Path: w.Path, Result: OutcomeApplied})
	}
	return Result{}, false
}

func (p *Pipeline) applyRenames(ctx context.Context, repoDir, appID string, renames []tags.RenameAction, st *batchState) (Result, bool) {
	for _, r := range renames {
		fromAbs, err := p.resolver.Resolve(appID, r.From)
		if err != nil {
			return p.fatal(st, tags.KindRename, r.From, err), true
		}
		toAbs, err := p.resolver.Resolve(appID, r.To)
		if err != nil {
			return p.fatal(st, tags.KindRename, r.To, err), true
		}
		if _, err := os.Stat(fromAbs); os.IsNotExist(err) {
			// The model may reference a path it hallucinated or that a
			// manual edit already moved. Expected, not an error.
			st.outcomes = append(st.outcomes, ActionOutcome{Kind: tags.KindRename, Path: r.From, Result: OutcomeNoOp, Detail: "source does not exist"})
			continue
		}
		if err := os.MkdirAll(filepath.Dir(toAbs), 0o755); err != nil {
			return p.fatal(st, tags.KindRename, r.To, fmt.Errorf("mkdir: %w", err)), true
		}
		if err := os.Rename(fromAbs, toAbs); err != nil {
			return p.fatal(st, tags.KindRename, r.From, fmt.Errorf("rename: %w", err)), true
		}
		if err := p.git.Stage(ctx, repoDir, r.To); err != nil {
			return p.fatal(st, tags.KindRename, r.To, err), true
		}
		if err := p.git.Remove(ctx, repoDir, r.From); err != nil {
			return p.fatal(st, tags.KindRename, r.From, err), true
		}
		st.staged = true
		st.counts.Renamed++
		st.batchPaths[r.From] = true
		st.batchPaths[r.To] = true
		st.outcomes = append(st.outcomes, ActionOutcome{Kind: tags.KindRename, Path: r.To, Result: OutcomeApplied})
	}
	return Result{}, false
}

func (p *Pipeline) applyDeletes(ctx context.Context, repoDir, appID string, deletes []tags.DeleteAction, st *batchState) (Result, bool) {
	for _, d := range deletes {
		abs, err := p.resolver.Resolve(appID, d.Path)
		if err != nil {
			return p.fatal(st, tags.KindDelete, d.Path, err), true
		}
		if _, err := os.Stat(abs); os.IsNotExist(err) {
			st.outcomes = append(st.outcomes, ActionOutcome{Kind: tags.KindDelete, Path: d.Path, Result: OutcomeNoOp, Detail: "path does not exist"})
			continue
		}
		if err := os.Remove(abs); err != nil {
			return p.fatal(st, tags.KindDelete, d.Path, fmt.Errorf("delete: %w", err)), true
		}
		if err := p.git.Remove(ctx, repoDir, d.Path); err != nil {
			return p.fatal(st, tags.KindDelete, d.Path, err), true
		}
		st.staged = true
		st.counts.Deleted++
		st.batchPaths[d.Path] = true
		st.outcomes = append(st.outcomes, ActionOutcome{Kind: tags.KindDelete, Path: d.Path, Result: OutcomeApplied})
	}
	return Result{}, false
}

// applySearchReplaces applies exact-text substitutions. A missing
// search text is recorded and skipped; it never blocks sibling actions
// or the batch commit.
func (p *Pipeline) applySearchReplaces(ctx context.Context, repoDir, appID string, edits []tags.SearchReplaceAction, st *batchState) (Result, bool) {
	for _, sr := range edits {
		abs, err := p.resolver.Resolve(appID, sr.Path)
		if err != nil {
			st.recordSRFailure(sr.Path, err.Error())
			continue
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			st.recordSRFailure(sr.Path, fmt.Sprintf("read: %v", err))
			continue
		}
		content := string(data)
		if !strings.Contains(content, sr.Search) {
			st.recordSRFailure(sr.Path, "search text not found")
			continue
		}
		updated := strings.Replace(content, sr.Search, sr.Replace, 1)
		if err := fsutil.WriteAtomic(abs, []byte(updated)); err != nil {
			return p.fatal(st, tags.KindSearchReplace, sr.Path, err), true
		}
		if err := p.git.Stage(ctx, repoDir, sr.Path); err != nil {
			return p.fatal(st, tags.KindSearchReplace, sr.Path, err), true
		}
		st.staged = true
		st.counts.Edited++
		st.batchPaths[sr.Path] = true
		st.outcomes = append(st.outcomes, ActionOutcome{Kind: tags.KindSearchReplace, Path: sr.Path, Result: OutcomeApplied})
	}
	return Result{}, false
}

func (st *batchState) recordSRFailure(path, detail string) {
	st.srFailures = append(st.srFailures, fmt.Sprintf("search/replace %s: %s", path, detail))
	st.outcomes = append(st.outcomes, ActionOutcome{Kind: tags.KindSearchReplace, Path: path, Result: OutcomeFailed, Detail: detail})
}

// fatal records the failed action and builds the abort Result. Staged
// changes from this batch are abandoned uncommitted.
func (p *Pipeline) fatal(st *batchState, kind tags.Kind, path string, err error) Result {
	st.outcomes = append(st.outcomes, ActionOutcome{Kind: kind, Path: path, Result: OutcomeFailed, Detail: err.Error()})
	p.logger.Error("apply aborted",
		zap.String("kind", string(kind)),
		zap.String("path", path),
		zap.Error(err))
	return Result{
		Error:    fmt.Sprintf("%s %s: %v", kind, path, err),
		Counts:   st.counts,
		Outcomes: st.outcomes,
	}
}

// commitMessage enumerates non-zero per-kind counts in fixed order.
func commitMessage(c Counts) string {
	var parts []string
	if c.Wrote > 0 {
		parts = append(parts, fmt.Sprintf("wrote %d file(s)", c.Wrote))
	}
	if c.Renamed > 0 {
		parts = append(parts, fmt.Sprintf("renamed %d file(s)", c.Renamed))
	}
	if c.Deleted > 0 {
		parts = append(parts, fmt.Sprintf("deleted %d file(s)", c.Deleted))
	}
	if c.Edited > 0 {
		parts = append(parts, fmt.Sprintf("edited %d file(s)", c.Edited))
	}
	return "[blaze] " + strings.Join(parts, ", ")
}

func joinErrors(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}
