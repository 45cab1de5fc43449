package taskexec

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFakeGatewayd(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gatewayd.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func writeTaskFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	active := filepath.Join(dir, "active")
	require.NoError(t, os.MkdirAll(active, 0o755))
	path := filepath.Join(active, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const sampleTask = `---
status: active
provider: claude
---
Water the office plants and report back.`

func TestRun_SuccessWritesLogAndLeavesTaskInPlace(t *testing.T) {
	root := t.TempDir()
	taskFile := writeTaskFile(t, root, "t1.md", sampleTask)

	gatewayd := writeFakeGatewayd(t, `cat > /dev/null; echo '{"status":"success","request_id":"task_T1","provider_used":"claude","reply_text":"Done.","decision":{"kind":"direct_reply"}}'`)
	exec := &Executor{GatewaydPath: gatewayd, RouterTimeout: 2 * time.Second}

	err := exec.Run(context.Background(), taskFile, "T1", "Water the plants")
	require.NoError(t, err)

	require.FileExists(t, taskFile)
	logFile := filepath.Join(root, "logs", "t1.log")
	require.FileExists(t, logFile)
	data, _ := os.ReadFile(logFile)
	require.Contains(t, string(data), "outcome: success")
}

func TestRun_RouterFailureMovesTaskToErrorDir(t *testing.T) {
	root := t.TempDir()
	taskFile := writeTaskFile(t, root, "t2.md", sampleTask)

	gatewayd := writeFakeGatewayd(t, `cat > /dev/null; echo '{"status":"failed","request_id":"task_T2","error_code":"all_providers_failed","error":"boom","decision":{"kind":"direct_reply"}}'; exit 1`)
	exec := &Executor{GatewaydPath: gatewayd, RouterTimeout: 2 * time.Second}

	err := exec.Run(context.Background(), taskFile, "T2", "Water the plants")
	require.Error(t, err)
	var failedErr *FailedError
	require.True(t, errors.As(err, &failedErr))
	require.Equal(t, "T2", failedErr.TaskID)
	require.Equal(t, "all_providers_failed", failedErr.ErrorCode)

	require.NoFileExists(t, taskFile)
	errFile := filepath.Join(root, "error", "t2.md")
	require.FileExists(t, errFile)
	data, _ := os.ReadFile(errFile)
	require.Contains(t, string(data), "status: error")
	require.Contains(t, string(data), "## Execution Error")
}

func TestRun_RouterCrashWithNoOutputSynthesizesCrashEnvelope(t *testing.T) {
	root := t.TempDir()
	taskFile := writeTaskFile(t, root, "t3.md", sampleTask)

	gatewayd := writeFakeGatewayd(t, `cat > /dev/null; echo "not json" 1>&2; exit 2`)
	exec := &Executor{GatewaydPath: gatewayd, RouterTimeout: 2 * time.Second}

	err := exec.Run(context.Background(), taskFile, "T3", "Water the plants")
	require.Error(t, err)
	var failedErr *FailedError
	require.True(t, errors.As(err, &failedErr))

	require.NoFileExists(t, taskFile)
	errFile := filepath.Join(root, "error", "t3.md")
	data, _ := os.ReadFile(errFile)
	require.Contains(t, string(data), "router_crashed")
}

func TestRun_MissingTaskFileReturnsError(t *testing.T) {
	exec := &Executor{GatewaydPath: "/bin/true"}
	err := exec.Run(context.Background(), "/nonexistent/task.md", "T4", "title")
	require.Error(t, err)
	var failedErr *FailedError
	require.False(t, errors.As(err, &failedErr), "a missing task file is an infrastructure error, not a handled task failure")
}
