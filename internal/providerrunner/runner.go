// Package providerrunner executes an AI provider CLI as a subprocess and
// returns its text output, or a typed failure.
package providerrunner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/anmitsu/go-shlex"
	"github.com/charmbracelet/log"
)

// FailureKind is the stable classification of a provider invocation
// failure, independent of the underlying OS error text.
type FailureKind string

const (
	FailureExecutableNotFound FailureKind = "executable_not_found"
	FailureNonzeroExit        FailureKind = "nonzero_exit"
	FailureEmptyOutput        FailureKind = "empty_output"
	FailureOAuthPrompt        FailureKind = "oauth_prompt_detected"
	FailureTimeout            FailureKind = "timeout"
)

// Error wraps a FailureKind with the underlying message.
type Error struct {
	Kind     FailureKind
	Provider string
	Msg      string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %s", e.Provider, e.Kind, e.Msg)
}

var fallbackSearchPaths = []string{"/opt/homebrew/bin", "/usr/local/bin", "/usr/bin", "/bin"}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)

const (
	geminiAuthURLSentinel  = "Please visit the following URL to authorize the application"
	geminiAuthCodeSentinel = "Enter the authorization code:"
)

// Config is the subset of gateway configuration the Runner needs.
type Config struct {
	RepoRoot        string
	ProviderCmd     map[string]string // provider -> raw command string
	ProviderTimeout time.Duration
}

// Runner executes provider subprocesses.
type Runner struct {
	cfg    Config
	logger *log.Logger
}

func New(cfg Config, logger *log.Logger) *Runner {
	return &Runner{cfg: cfg, logger: logger}
}

// Run invokes the named provider with prompt as its final positional
// argument and returns its trimmed stdout, or a typed *Error.
func (r *Runner) Run(ctx context.Context, provider, prompt string) (string, error) {
	cmd, err := r.resolveCommand(provider)
	if err != nil {
		return "", &Error{Kind: FailureExecutableNotFound, Provider: provider, Msg: err.Error()}
	}

	args := append(append([]string{}, cmd[1:]...), prompt)

	timeout := r.cfg.ProviderTimeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execCmd := exec.CommandContext(runCtx, cmd[0], args...)
	execCmd.Dir = r.cfg.RepoRoot
	execCmd.Env = r.buildEnv(provider)
	execCmd.SysProcAttr = setProcessGroup()

	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	startErr := execCmd.Start()
	if startErr != nil {
		return "", &Error{Kind: FailureExecutableNotFound, Provider: provider, Msg: startErr.Error()}
	}

	waitErr := execCmd.Wait()

	if runCtx.Err() == context.DeadlineExceeded {
		killProcessGroup(execCmd)
		return "", &Error{Kind: FailureTimeout, Provider: provider, Msg: fmt.Sprintf("exceeded %s", timeout)}
	}

	if waitErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		if msg == "" {
			msg = "provider returned non-zero"
		}
		r.logger.Debug("provider exited non-zero", "provider", provider, "error", waitErr)
		return "", &Error{Kind: FailureNonzeroExit, Provider: provider, Msg: msg}
	}

	output := strings.TrimSpace(stdout.String())
	if output == "" {
		return "", &Error{Kind: FailureEmptyOutput, Provider: provider, Msg: "provider returned empty output"}
	}

	if provider == "gemini" {
		cleaned := ansiEscape.ReplaceAllString(output, "")
		if strings.Contains(cleaned, geminiAuthURLSentinel) || strings.Contains(cleaned, geminiAuthCodeSentinel) {
			return "", &Error{
				Kind:     FailureOAuthPrompt,
				Provider: provider,
				Msg:      "gemini returned OAuth prompt in headless mode; credentials are not usable for non-interactive execution",
			}
		}
	}

	return output, nil
}

func (r *Runner) resolveCommand(provider string) ([]string, error) {
	raw := strings.TrimSpace(r.cfg.ProviderCmd[provider])
	if raw == "" {
		return nil, errors.New("empty provider command configured")
	}
	parts, err := shlex.Split(raw, true)
	if err != nil || len(parts) == 0 {
		return nil, fmt.Errorf("invalid provider command %q: %w", raw, err)
	}

	found, err := exec.LookPath(parts[0])
	if err != nil {
		found, err = lookPathIn(parts[0], fallbackSearchPaths)
		if err != nil {
			return nil, fmt.Errorf("client binary not found: %s", parts[0])
		}
	}
	parts[0] = found
	return parts, nil
}

func lookPathIn(name string, dirs []string) (string, error) {
	for _, dir := range dirs {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s not found in fallback paths", name)
}

func (r *Runner) buildEnv(provider string) []string {
	env := os.Environ()
	if provider != "gemini" {
		return env
	}
	hasKey := func(key string) bool {
		prefix := key + "="
		for _, e := range env {
			if strings.HasPrefix(e, prefix) {
				return true
			}
		}
		return false
	}
	if !hasKey("GEMINI_CLI_HOME") {
		if home, err := os.UserHomeDir(); err == nil {
			env = append(env, "GEMINI_CLI_HOME="+home)
		}
	}
	if !hasKey("GEMINI_FORCE_ENCRYPTED_FILE_STORAGE") {
		env = append(env, "GEMINI_FORCE_ENCRYPTED_FILE_STORAGE=false")
	}
	return env
}

func setProcessGroup() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		_ = cmd.Process.Kill()
		return
	}
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
}
