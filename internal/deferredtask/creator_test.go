package deferredtask

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "creator.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestCreate_ExplicitTaskIDLine(t *testing.T) {
	script := writeScript(t, `echo "creating..."; echo "task_id: T42"`)
	c := &Creator{Cmd: script, RepoRoot: t.TempDir(), Timeout: time.Second}
	id, err := c.Create(context.Background(), "title", "desc")
	require.NoError(t, err)
	require.Equal(t, "T42", id)
}

func TestCreate_FallsBackToLastLine(t *testing.T) {
	script := writeScript(t, `echo "creating..."; echo "T99"`)
	c := &Creator{Cmd: script, RepoRoot: t.TempDir(), Timeout: time.Second}
	id, err := c.Create(context.Background(), "title", "desc")
	require.NoError(t, err)
	require.Equal(t, "T99", id)
}

func TestCreate_NonzeroExitFails(t *testing.T) {
	script := writeScript(t, `echo "bad" 1>&2; exit 1`)
	c := &Creator{Cmd: script, RepoRoot: t.TempDir(), Timeout: time.Second}
	_, err := c.Create(context.Background(), "title", "desc")
	require.Error(t, err)
}

func TestCreate_NoOutputFails(t *testing.T) {
	script := writeScript(t, `true`)
	c := &Creator{Cmd: script, RepoRoot: t.TempDir(), Timeout: time.Second}
	_, err := c.Create(context.Background(), "title", "desc")
	require.Error(t, err)
}

func TestCreate_PassesTitleAndDescriptionAsArgs(t *testing.T) {
	script := writeScript(t, `echo "task_id: $1-$2"`)
	c := &Creator{Cmd: script, RepoRoot: t.TempDir(), Timeout: time.Second}
	id, err := c.Create(context.Background(), "mytitle", "mydesc")
	require.NoError(t, err)
	require.Equal(t, "mytitle-mydesc", id)
}
