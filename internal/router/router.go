// Package router implements the top-level policy orchestrator: it
// validates a request, runs the AI provider chain, applies the Decision
// Engine, materializes deferred tasks, persists conversation turns, and
// always emits the canonical response envelope.
package router

import (
	"context"
	"fmt"

	"conduit/internal/config"
	"conduit/internal/convstore"
	"conduit/internal/decision"
	"conduit/internal/deferredtask"
	"conduit/internal/errcode"
	"conduit/internal/promptbuilder"
	"conduit/internal/providerrunner"

	"github.com/charmbracelet/log"
)

// Router orchestrates one request end to end. It holds no long-lived
// request state: every field is either immutable configuration or a
// stateless collaborator.
type Router struct {
	cfg     *config.Config
	runner  *providerrunner.Runner
	store   *convstore.Store
	creator *deferredtask.Creator
	logger  *log.Logger
}

func New(cfg *config.Config, logger *log.Logger) *Router {
	runner := providerrunner.New(providerrunner.Config{
		RepoRoot:        cfg.RepoRoot,
		ProviderCmd:     cfg.ProviderCmd,
		ProviderTimeout: cfg.ProviderTimeout,
	}, logger.With("component", "providerrunner"))

	store := convstore.New(cfg.RuntimeDir, cfg.ContextTurns)

	creator := &deferredtask.Creator{
		Cmd:      cfg.TaskCreatorCmd,
		RepoRoot: cfg.RepoRoot,
		Timeout:  cfg.TaskCreatorTimeout,
	}

	return &Router{cfg: cfg, runner: runner, store: store, creator: creator, logger: logger.With("component", "router")}
}

// Handle runs the full policy pipeline and always returns a valid
// Response, never an error: every failure is packaged into the envelope.
func (rt *Router) Handle(ctx context.Context, req Request) Response {
	if err := validate(req); err != nil {
		ce, _ := errcode.AsCoded(err)
		return FailureEnvelope(req.RequestID, nil, ce.Code, err)
	}

	mode := effectiveMode(req.Mode)
	channel := NormalizeChannel(req.Channel)
	convID := conversationID(req)

	if mode == ModeAsyncOnly {
		return rt.handleAsyncOnly(ctx, req, convID)
	}

	recent, err := rt.store.LoadRecent(convID)
	if err != nil {
		rt.logger.Error("failed to load conversation", "conversation_id", convID, "error", err)
		recent = nil
	}

	systemPrompt := promptbuilder.ReadSystemPrompt(rt.cfg.SystemPromptFile)
	prompt := promptbuilder.Build(systemPrompt, recent, req, convID, mode, channel)

	output, providerUsed, err := rt.runProviders(ctx, req, prompt)
	if err != nil {
		ce, _ := errcode.AsCoded(err)
		var providerUsedPtr *string
		if providerUsed != "" {
			s := string(providerUsed)
			providerUsedPtr = &s
		}
		return FailureEnvelope(req.RequestID, providerUsedPtr, ce.Code, err)
	}

	outcome := decision.Classify(mode, channel, output)
	finalDecision := outcome.Decision
	replyText := outcome.ReplyText

	if finalDecision.Kind == DecisionAsyncDraftCreated && finalDecision.TaskID == nil {
		finalDecision, replyText = rt.materializeTask(ctx, req.Text, finalDecision, replyText)
	}

	if err := rt.store.Append(convID, RoleUser, req.Text); err != nil {
		rt.logger.Error("failed to append user record", "error", err)
	}
	if err := rt.store.Append(convID, RoleAssistant, replyText); err != nil {
		rt.logger.Error("failed to append assistant record", "error", err)
	}

	providerUsedStr := string(providerUsed)
	return Response{
		Status:       StatusSuccess,
		RequestID:    req.RequestID,
		ProviderUsed: &providerUsedStr,
		ReplyText:    replyText,
		Decision:     finalDecision,
		ErrorCode:    nil,
		Error:        nil,
	}
}

// handleAsyncOnly short-circuits before any provider is invoked: the
// request always becomes a deferred task, never a direct reply.
func (rt *Router) handleAsyncOnly(ctx context.Context, req Request, convID string) Response {
	if !rt.cfg.AsyncTasksEnabled() {
		return FailureEnvelope(req.RequestID, nil, errcode.AsyncTasksDisabled, fmt.Errorf("async-tasks feature is not enabled"))
	}

	title := firstN(req.Text, 80)
	taskID, err := rt.creator.Create(ctx, title, req.Text)
	if err != nil {
		return FailureEnvelope(req.RequestID, nil, errcode.AsyncDraftFailed, err)
	}

	replyText := fmt.Sprintf("Task created (task_id=%s).", taskID)
	if err := rt.store.Append(convID, RoleUser, req.Text); err != nil {
		rt.logger.Error("failed to append user record", "error", err)
	}
	if err := rt.store.Append(convID, RoleAssistant, replyText); err != nil {
		rt.logger.Error("failed to append assistant record", "error", err)
	}

	priority := "normal"
	return Response{
		Status:       StatusSuccess,
		RequestID:    req.RequestID,
		ProviderUsed: nil,
		ReplyText:    replyText,
		Decision: Decision{
			Kind:              DecisionAsyncDraftCreated,
			TaskID:            &taskID,
			PrioritySuggested: &priority,
		},
	}
}

// runProviders executes the AI call in either strict mode (a single
// pinned provider, no fallback) or fallback mode (priority order, first
// success wins).
func (rt *Router) runProviders(ctx context.Context, req Request, prompt string) (string, Provider, error) {
	if req.Provider != "" {
		p := Provider(req.Provider)
		out, err := rt.runner.Run(ctx, string(p), prompt)
		if err != nil {
			return "", p, errcode.Wrap(errcode.ProviderLockedFailed, err)
		}
		return out, p, nil
	}

	var lastErr error
	for _, name := range rt.cfg.ProviderPriority {
		out, err := rt.runner.Run(ctx, name, prompt)
		if err == nil {
			return out, Provider(name), nil
		}
		rt.logger.Debug("provider failed, trying next", "provider", name, "error", err)
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no providers configured")
	}
	return "", "", errcode.Wrap(errcode.AllProvidersFailed, lastErr)
}

// materializeTask fills in a task_id for an async_draft_created decision
// that the provider proposed but did not itself create. If task creation
// is disabled or fails, the decision degrades to a direct reply rather
// than leaving a dangling task_id-less async decision on the wire.
func (rt *Router) materializeTask(ctx context.Context, text string, d Decision, replyText string) (Decision, string) {
	if !rt.cfg.AsyncTasksEnabled() {
		return Decision{Kind: DecisionDirectReply}, replyText
	}

	title := firstN(text, 80)
	taskID, err := rt.creator.Create(ctx, title, text)
	if err != nil {
		rt.logger.Warn("deferred task creation failed, degrading to direct reply", "error", err)
		return Decision{Kind: DecisionDirectReply}, replyText + "\n\n(Note: could not create a follow-up task.)"
	}

	d.TaskID = &taskID
	if d.PrioritySuggested == nil {
		normal := "normal"
		d.PrioritySuggested = &normal
	}
	return d, replyText
}
