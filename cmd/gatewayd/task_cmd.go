package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"conduit/internal/config"
	"conduit/internal/taskexec"

	"github.com/spf13/cobra"
)

var taskDir string

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Deferred task execution",
}

var taskRunCmd = &cobra.Command{
	Use:   "run [task-file]",
	Short: "Execute one or all active deferred task files",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return runOneTask(args[0])
		}
		return runAllActiveTasks()
	},
}

func init() {
	taskRunCmd.Flags().StringVar(&taskDir, "dir", "", "task root directory (defaults to $SOLAR_ROUTER_REPO_ROOT/sun/tasks)")
	taskCmd.AddCommand(taskRunCmd)
}

func gatewaydSelfPath() (string, error) {
	return os.Executable()
}

func newExecutor(cfg *config.Config) (*taskexec.Executor, error) {
	self, err := gatewaydSelfPath()
	if err != nil {
		return nil, fmt.Errorf("resolve gatewayd binary path: %w", err)
	}
	return &taskexec.Executor{GatewaydPath: self, RouterTimeout: cfg.RouterTimeout}, nil
}

func runOneTask(path string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	exec, err := newExecutor(cfg)
	if err != nil {
		return err
	}

	taskID, title := taskIdentity(path)
	return exec.Run(context.Background(), path, taskID, title)
}

func runAllActiveTasks() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	root := taskDir
	if root == "" {
		root = filepath.Join(cfg.RepoRoot, "sun", "tasks")
	}
	activeDir := filepath.Join(root, "active")

	entries, err := os.ReadDir(activeDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read active task directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".md") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	exec, err := newExecutor(cfg)
	if err != nil {
		return err
	}

	for _, name := range names {
		path := filepath.Join(activeDir, name)
		taskID, title := taskIdentity(path)
		if err := exec.Run(context.Background(), path, taskID, title); err != nil {
			fmt.Fprintf(os.Stderr, "task %s: %v\n", name, err)
		}
	}
	return nil
}

// taskIdentity derives a task_id and title from the file name when the
// caller does not supply them explicitly: the stem is the id, and the
// stem with underscores turned to spaces is a readable title.
func taskIdentity(path string) (string, string) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	title := strings.ReplaceAll(stem, "_", " ")
	return stem, title
}
