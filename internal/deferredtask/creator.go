// Package deferredtask invokes the external task-creator subprocess and
// extracts the identifier it produced.
package deferredtask

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/anmitsu/go-shlex"
)

var taskIDLine = regexp.MustCompile(`(?i)task_id\s*:\s*(\S.*)$`)

// Creator invokes the configured external task-creator command.
type Creator struct {
	Cmd     string // raw shell command, e.g. "solar-task create"
	RepoRoot string
	Timeout time.Duration
}

// Create spawns the creator with (title, description) as positional
// arguments and returns the extracted task identifier.
func (c *Creator) Create(ctx context.Context, title, description string) (string, error) {
	if strings.TrimSpace(c.Cmd) == "" {
		return "", fmt.Errorf("deferredtask: no task creator command configured")
	}
	parts, err := shlex.Split(c.Cmd, true)
	if err != nil || len(parts) == 0 {
		return "", fmt.Errorf("deferredtask: invalid creator command %q: %w", c.Cmd, err)
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, parts[1:]...), title, description)
	cmd := exec.CommandContext(runCtx, parts[0], args...)
	cmd.Dir = c.RepoRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("deferredtask: creator timed out after %s", timeout)
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		if msg == "" {
			msg = "task creator returned non-zero"
		}
		return "", fmt.Errorf("deferredtask: %s", msg)
	}

	taskID, ok := extractTaskID(stdout.String())
	if !ok {
		return "", fmt.Errorf("deferredtask: could not extract task id from creator output")
	}
	return taskID, nil
}

// extractTaskID looks first for a line matching `*task_id*: <value>`
// (case-insensitive), then falls back to the last non-empty output line.
func extractTaskID(output string) (string, bool) {
	lines := strings.Split(output, "\n")
	for _, line := range lines {
		if m := taskIDLine.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			return strings.TrimSpace(m[1]), true
		}
	}

	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" {
			return line, true
		}
	}
	return "", false
}
