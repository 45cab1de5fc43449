// Package taskexec runs one deferred task file end to end: it builds a
// fixed-shape prompt from the task body, calls the Router as a subprocess
// (preserving an independently observable hop between the task runner and
// the policy engine), and on success or failure writes a structured log
// and, on failure, moves the task file into a sibling error directory.
package taskexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"conduit/internal/router"

	"gopkg.in/yaml.v3"
)

var statusLine = regexp.MustCompile(`(?m)^status:.*$`)

// FailedError reports that a task ran to completion and was moved to the
// error/ directory after a router or provider failure, as opposed to an
// error returned by Run's own file handling (a bug or a missing file),
// which callers should treat as distinct from a handled task failure.
type FailedError struct {
	TaskID    string
	ErrorCode string
	Msg       string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("task %s failed: %s: %s", e.TaskID, e.ErrorCode, e.Msg)
}

// Executor runs task files by invoking gatewaydPath as a subprocess with
// the "router" subcommand, feeding it a JSON request on stdin.
type Executor struct {
	GatewaydPath  string
	RouterTimeout time.Duration
}

// frontmatter is the subset of task-file YAML frontmatter the executor
// reads. Unknown keys are preserved verbatim by editing the raw text
// rather than re-marshaling the whole document.
type frontmatter struct {
	Provider string `yaml:"provider"`
}

// Run executes one task file, identified by taskID and title. Router- and
// provider-level failures are handled internally (the task file is moved
// to error/, a log is written) but are still reported to the caller as a
// *FailedError, so a single `task run <file>` invocation exits non-zero on
// a failed task the same way it would on an infrastructure error. Batch
// callers that want to keep processing the rest of a directory on a
// per-task failure should treat any non-nil error the same way, rather
// than special-casing *FailedError.
func (e *Executor) Run(ctx context.Context, taskFile, taskID, title string) error {
	raw, err := os.ReadFile(taskFile)
	if err != nil {
		return fmt.Errorf("taskexec: read task file: %w", err)
	}

	fm, body := splitFrontmatter(string(raw))
	var meta frontmatter
	if fm != "" {
		_ = yaml.Unmarshal([]byte(fm), &meta)
	}
	provider := strings.ToLower(strings.TrimSpace(meta.Provider))

	taskRoot := filepath.Dir(filepath.Dir(taskFile))
	logFile := filepath.Join(taskRoot, "logs", strings.TrimSuffix(filepath.Base(taskFile), filepath.Ext(taskFile))+".log")

	prompt := buildPrompt(taskID, title, body)

	resp, err := e.callRouter(ctx, taskID, prompt, provider)
	if err != nil {
		if markErr := e.markError(taskFile, taskID, title, provider, "router_exception", err.Error(), logFile); markErr != nil {
			return markErr
		}
		return &FailedError{TaskID: taskID, ErrorCode: "router_exception", Msg: err.Error()}
	}

	providerUsed := provider
	if resp.ProviderUsed != nil && *resp.ProviderUsed != "" {
		providerUsed = *resp.ProviderUsed
	}

	if resp.Status != router.StatusSuccess || strings.TrimSpace(resp.ReplyText) == "" {
		errCode := "router_failed"
		if resp.ErrorCode != nil {
			errCode = *resp.ErrorCode
		}
		errText := fmt.Sprintf("router returned status=%s", resp.Status)
		if resp.Error != nil {
			errText = *resp.Error
		}
		if markErr := e.markError(taskFile, taskID, title, providerUsed, errCode, errText, logFile); markErr != nil {
			return markErr
		}
		return &FailedError{TaskID: taskID, ErrorCode: errCode, Msg: errText}
	}

	return writeLog(logFile, taskID, title, "success", providerUsed, resp.ReplyText, "", "")
}

// callRouter invokes the gatewayd binary's router subcommand: a JSON
// request on stdin, a JSON response on stdout. The response is parsed
// from stdout even when the process exits non-zero, since the router
// always emits a valid envelope on its own failure paths; only a total
// crash with no parseable stdout synthesizes a router_crashed envelope.
func (e *Executor) callRouter(ctx context.Context, taskID, prompt, provider string) (router.Response, error) {
	timeout := e.RouterTimeout
	if timeout <= 0 {
		timeout = 310 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := router.Request{
		RequestID: "task_" + taskID,
		SessionID: "task_" + taskID,
		UserID:    "solar-async-tasks",
		Text:      prompt,
		Channel:   "async-task",
		Mode:      "direct_only",
	}
	if provider != "" {
		req.Provider = provider
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return router.Response{}, fmt.Errorf("taskexec: encode router request: %w", err)
	}

	cmd := exec.CommandContext(runCtx, e.GatewaydPath, "router")
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	out := strings.TrimSpace(stdout.String())
	if out != "" {
		var resp router.Response
		if jsonErr := json.Unmarshal([]byte(out), &resp); jsonErr == nil {
			return resp, nil
		}
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return syntheticCrash(req.RequestID, provider, "router_timeout", "router call timed out"), nil
	}

	errMsg := strings.TrimSpace(stderr.String())
	if errMsg == "" {
		errMsg = out
	}
	if errMsg == "" {
		errMsg = "router crashed with no output"
	}
	_ = runErr
	return syntheticCrash(req.RequestID, provider, "router_crashed", errMsg), nil
}

func syntheticCrash(requestID, provider, code, msg string) router.Response {
	var providerPtr *string
	if provider != "" {
		providerPtr = &provider
	}
	return router.Response{
		Status:       router.StatusFailed,
		RequestID:    requestID,
		ProviderUsed: providerPtr,
		ReplyText:    "",
		Decision:     router.Decision{Kind: router.DecisionDirectReply},
		ErrorCode:    &code,
		Error:        &msg,
	}
}

func buildPrompt(taskID, title, body string) string {
	var b strings.Builder
	b.WriteString("You are executing a deferred asynchronous task.\n")
	b.WriteString("Follow the task instructions exactly as written in the task body.\n")
	b.WriteString("If the task asks to act as an agent and use a skill, do so.\n\n")
	fmt.Fprintf(&b, "Task ID: %s\n", taskID)
	fmt.Fprintf(&b, "Task Title: %s\n\n", title)
	b.WriteString("Task Body:\n")
	b.WriteString(body)
	return b.String()
}

// splitFrontmatter separates a leading "---\n...\n---\n" YAML block from
// the rest of the document. Returns ("", raw) if there is no frontmatter.
func splitFrontmatter(raw string) (fm string, body string) {
	lines := strings.Split(raw, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", strings.TrimSpace(raw)
	}
	var fmLines, bodyLines []string
	closed := false
	for _, line := range lines[1:] {
		if !closed && strings.TrimSpace(line) == "---" {
			closed = true
			continue
		}
		if !closed {
			fmLines = append(fmLines, line)
		} else {
			bodyLines = append(bodyLines, line)
		}
	}
	return strings.Join(fmLines, "\n"), strings.TrimSpace(strings.Join(bodyLines, "\n"))
}

func writeLog(logFile, taskID, title, outcome, providerUsed, resultText, errorText, errorCode string) error {
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return fmt.Errorf("taskexec: mkdir log dir: %w", err)
	}
	if providerUsed == "" {
		providerUsed = "unknown"
	}
	var b strings.Builder
	b.WriteString("# Async Task Execution\n\n")
	fmt.Fprintf(&b, "- outcome: %s\n", outcome)
	fmt.Fprintf(&b, "- task_id: %s\n", taskID)
	fmt.Fprintf(&b, "- title: %s\n", title)
	fmt.Fprintf(&b, "- executed_at: %s\n", time.Now().UTC().Format("2006-01-02T15:04:05Z"))
	fmt.Fprintf(&b, "- provider_used: %s\n\n", providerUsed)
	if outcome == "success" {
		b.WriteString("## Result\n\n")
		b.WriteString(resultText)
	} else {
		b.WriteString("## Error\n\n")
		fmt.Fprintf(&b, "- error_code: %s\n", orUnknown(errorCode))
		fmt.Fprintf(&b, "- error: %s\n", orUnknown(errorText))
	}
	return os.WriteFile(logFile, []byte(b.String()), 0o644)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

// markError rewrites the task's status to error, appends an execution
// error block, writes the log, and moves the file to the sibling error/
// directory.
func (e *Executor) markError(taskFile, taskID, title, providerUsed, errorCode, errorText, logFile string) error {
	raw, err := os.ReadFile(taskFile)
	if err != nil {
		return fmt.Errorf("taskexec: re-read task file for error marking: %w", err)
	}
	content := statusLine.ReplaceAllString(string(raw), "status: error")

	ts := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	content += fmt.Sprintf("\n\n## Execution Error\n- time: %s\n- provider_attempted: %s\n- error_code: %s\n- error: %s\n",
		ts, orUnknown(providerUsed), orUnknown(errorCode), errorText)

	if err := os.WriteFile(taskFile, []byte(content), 0o644); err != nil {
		return fmt.Errorf("taskexec: write updated task file: %w", err)
	}

	if err := writeLog(logFile, taskID, title, "error", providerUsed, "", errorText, errorCode); err != nil {
		return err
	}

	errorDir := filepath.Join(filepath.Dir(filepath.Dir(taskFile)), "error")
	if err := os.MkdirAll(errorDir, 0o755); err != nil {
		return fmt.Errorf("taskexec: mkdir error dir: %w", err)
	}
	dest := filepath.Join(errorDir, filepath.Base(taskFile))
	if err := os.Rename(taskFile, dest); err != nil {
		return fmt.Errorf("taskexec: move task file to error dir: %w", err)
	}
	return nil
}
