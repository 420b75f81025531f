// Package engine coordinates the response lifecycle: persisting
// assistant turns, applying their action batches, and gating automatic
// remediation requests through the policy state.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/blazelab/blaze/internal/apply"
	"github.com/blazelab/blaze/internal/autofix"
	"github.com/blazelab/blaze/internal/config"
	"github.com/blazelab/blaze/internal/report"
	"github.com/blazelab/blaze/internal/store"
	"github.com/blazelab/blaze/internal/stream"
	"github.com/blazelab/blaze/internal/tags"
)

// FixRequester dispatches an approved remediation request, typically by
// composing a new user turn describing the error. Implementations must
// not block past the context.
type FixRequester interface {
	RequestFix(ctx context.Context, appID, chatID string, inc autofix.Incident, attemptNumber int) error
}

// Response is the outcome of handling one completed assistant turn.
type Response struct {
	// Display is the sanitized text shown to the user: control tags
	// removed, excess blank lines collapsed.
	Display string
	// Persisted is the full text stored in the chat history, with the
	// apply status block appended.
	Persisted string
	// MessageID is the stored message's row ID.
	MessageID int
	// Result is the apply outcome for the turn's action batch.
	Result apply.Result
}

// Engine ties the apply pipeline, the store and the remediation policy
// together for one daemon process.
type Engine struct {
	pipeline *apply.Pipeline
	store    *store.Store
	cfg      *config.Config
	logger   *zap.Logger

	mu     sync.Mutex
	policy *autofix.State
}

// New creates an Engine. logger may be nil.
func New(pipeline *apply.Pipeline, st *store.Store, cfg *config.Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{pipeline: pipeline, store: st, cfg: cfg, logger: logger}
}

// HandleResponse processes one completed assistant turn for a chat:
// applies the action batch against the app's working tree, appends a
// status block, persists the message, and updates the chat title when
// the turn carried a summary tag.
func (e *Engine) HandleResponse(ctx context.Context, appID, chatID, raw string) (*Response, error) {
	if err := e.ensureChat(appID, chatID); err != nil {
		return nil, err
	}

	result := e.pipeline.Apply(ctx, raw, appID)

	persisted := raw
	if batch := tags.Extract(raw); !batch.Empty() {
		persisted = report.AppendStatus(raw, result)
		if batch.ChatSummary != "" {
			if err := e.store.SetChatTitle(chatID, batch.ChatSummary); err != nil {
				e.logger.Warn("set chat title", zap.String("chat", chatID), zap.Error(err))
			}
		}
	}

	msgID, err := e.store.AddMessage(chatID, "assistant", persisted)
	if err != nil {
		return nil, fmt.Errorf("persist assistant message: %w", err)
	}

	committed := result.UpdatedFiles
	if err := e.store.LogApplyResult(appID, chatID, &result, committed); err != nil {
		e.logger.Warn("log apply result", zap.String("app", appID), zap.Error(err))
	}

	display := stream.Sanitize(persisted)
	if display == "" {
		display = report.ActionsOnlyPlaceholder
	}

	return &Response{
		Display:   display,
		Persisted: persisted,
		MessageID: msgID,
		Result:    result,
	}, nil
}

// HandleUserMessage persists a user turn, creating the chat if needed.
func (e *Engine) HandleUserMessage(appID, chatID, content string) (int, error) {
	if err := e.ensureChat(appID, chatID); err != nil {
		return 0, err
	}
	return e.store.AddMessage(chatID, "user", content)
}

func (e *Engine) ensureChat(appID, chatID string) error {
	c, err := e.store.GetChat(chatID)
	if err != nil {
		return err
	}
	if c != nil {
		return nil
	}
	return e.store.CreateChat(chatID, appID, "")
}

// HandleIncident gates a detected incident through the remediation
// policy and, when allowed, records the attempt and dispatches the fix
// request. The decision is returned either way.
func (e *Engine) HandleIncident(ctx context.Context, appID, chatID string, inc autofix.Incident, mode autofix.Mode, requester FixRequester) (autofix.Decision, error) {
	if mode == autofix.ModeAuto && e.cfg.AutoFix.Disabled {
		return autofix.Decision{Allowed: false, Reason: autofix.ReasonDisabled}, nil
	}
	if !e.isActionable(inc.PrimaryError) {
		return autofix.Decision{Allowed: false, Reason: autofix.ReasonNonActionable}, nil
	}

	now := time.Now()

	e.mu.Lock()
	e.policy = autofix.SyncContext(e.policy, appID, chatID)
	decision := e.policy.ShouldTrigger(mode, inc.Fingerprint, now)
	if decision.Allowed {
		e.policy = e.policy.RecordAttempt(mode, inc.Fingerprint, now)
	}
	e.mu.Unlock()

	if !decision.Allowed {
		e.logger.Info("remediation blocked",
			zap.String("app", appID),
			zap.String("fingerprint", inc.Fingerprint),
			zap.String("reason", string(decision.Reason)))
		return decision, nil
	}

	if mode == autofix.ModeAuto {
		if err := e.store.LogFixAttempt(appID, chatID, inc.Fingerprint, string(inc.Source), inc.PrimaryError, decision.AttemptNumber); err != nil {
			e.logger.Warn("log fix attempt", zap.String("app", appID), zap.Error(err))
		}
	}

	if requester != nil {
		if err := requester.RequestFix(ctx, appID, chatID, inc, decision.AttemptNumber); err != nil {
			return decision, fmt.Errorf("dispatch fix request: %w", err)
		}
	}

	e.logger.Info("remediation dispatched",
		zap.String("app", appID),
		zap.String("source", string(inc.Source)),
		zap.Int("attempt", decision.AttemptNumber))
	return decision, nil
}

// isActionable layers any configured extra patterns on top of the
// built-in non-actionable list. Extra patterns are plain substrings,
// matched case-insensitively.
func (e *Engine) isActionable(errText string) bool {
	if !autofix.IsActionable(errText) {
		return false
	}
	lower := strings.ToLower(errText)
	for _, pat := range e.cfg.AutoFix.ExtraNonActionable {
		if pat != "" && strings.Contains(lower, strings.ToLower(pat)) {
			return false
		}
	}
	return true
}
