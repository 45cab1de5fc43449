// Package config assembles the gateway's configuration entirely from the
// process environment. There is no config file: every field below is
// backed by one or more environment variables, read once at startup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config is the fully resolved, validated configuration for a gatewayd
// process. Build one with Load and treat it as immutable afterward.
type Config struct {
	RepoRoot string

	ProviderCmd      map[string]string // provider -> raw shell command (before $PATH resolution)
	ProviderPriority []string
	ContextTurns     int

	RuntimeDir       string
	SystemPromptFile string

	ProviderTimeout time.Duration
	RouterTimeout   time.Duration

	Features map[string]bool

	TaskCreatorCmd  string
	TaskCreatorTimeout time.Duration

	TelegramDedupTTL time.Duration

	HTTPHost        string
	HTTPPort        int
	HTTPWebhookBase string

	WSHost string
	WSPort int
	WSPath string

	TelegramBotToken     string
	TelegramParseMode    string
	TelegramDisablePreview string

	LogLevel  string
	LogFormat string
}

const (
	defaultProviderTimeoutSec = 300
	defaultRouterTimeoutSec   = 310
	defaultContextTurns       = 12
	defaultTaskCreatorTimeout = 30 * time.Second
	defaultDedupTTLSeconds    = 43200
)

var defaultProviderCmds = map[string]string{
	"codex":  "codex exec --skip-git-repo-check --full-auto --",
	"claude": "claude -p --permission-mode bypassPermissions --no-session-persistence",
	"gemini": "gemini -y -p",
}

// Load reads the environment and returns a validated Config.
func Load() (*Config, error) {
	repoRoot := getenv("SOLAR_ROUTER_REPO_ROOT", "")
	if repoRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("config: resolve repo root: %w", err)
		}
		repoRoot = wd
	}

	codexCmd := defaultProviderCmds["codex"]
	if home, err := os.UserHomeDir(); err == nil {
		codexCmd = fmt.Sprintf("codex exec --skip-git-repo-check --full-auto -C %s --add-dir %s --", repoRoot, filepath.Join(home, ".codex"))
	}

	cmds := map[string]string{
		"codex":  providerCmd("codex", codexCmd),
		"claude": providerCmd("claude", defaultProviderCmds["claude"]),
		"gemini": providerCmd("gemini", defaultProviderCmds["gemini"]),
	}

	priority := splitCSV(getenvChain("SOLAR_ROUTER_PROVIDER_PRIORITY", "SOLAR_AI_PROVIDER_PRIORITY", "codex,claude,gemini"))

	contextTurns, err := intEnvChain("SOLAR_ROUTER_CONTEXT_TURNS", "SOLAR_CONTEXT_TURNS", defaultContextTurns)
	if err != nil {
		return nil, err
	}

	runtimeDir := resolvePath(repoRoot, getenvChain("SOLAR_ROUTER_RUNTIME_DIR", "SOLAR_RUNTIME_DIR", "sun/runtime/router"))
	systemPromptFile := resolvePath(repoRoot, getenvChain("SOLAR_ROUTER_SYSTEM_PROMPT_FILE", "SOLAR_SYSTEM_PROMPT_FILE", "core/skills/solar-router/assets/system_prompt.md"))

	providerTimeoutSec, err := intEnvChain("SOLAR_ROUTER_PROVIDER_TIMEOUT_SEC", "SOLAR_AI_PROVIDER_TIMEOUT_SEC", defaultProviderTimeoutSec)
	if err != nil {
		return nil, err
	}
	routerTimeoutSec, err := intEnvChain("SOLAR_ROUTER_TIMEOUT_SEC", "SOLAR_AI_ROUTER_TIMEOUT_SEC", defaultRouterTimeoutSec)
	if err != nil {
		return nil, err
	}

	features := map[string]bool{}
	for _, f := range splitCSV(getenv("SOLAR_SYSTEM_FEATURES", "")) {
		features[f] = true
	}

	dedupTTLSec, err := intEnv("SOLAR_TELEGRAM_DEDUP_TTL_SECONDS", defaultDedupTTLSeconds)
	if err != nil {
		return nil, err
	}

	httpPort, err := intEnv("SOLAR_HTTP_PORT", 8787)
	if err != nil {
		return nil, err
	}
	wsPort, err := intEnv("SOLAR_WS_PORT", 8765)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		RepoRoot:         repoRoot,
		ProviderCmd:      cmds,
		ProviderPriority: priority,
		ContextTurns:     contextTurns,

		RuntimeDir:       runtimeDir,
		SystemPromptFile: systemPromptFile,

		ProviderTimeout: time.Duration(providerTimeoutSec) * time.Second,
		RouterTimeout:   time.Duration(routerTimeoutSec) * time.Second,

		Features: features,

		TaskCreatorCmd:     getenvChain("SOLAR_ROUTER_TASK_CREATOR_CMD", "SOLAR_ASYNC_TASK_CREATOR_CMD", ""),
		TaskCreatorTimeout: defaultTaskCreatorTimeout,

		TelegramDedupTTL: time.Duration(dedupTTLSec) * time.Second,

		HTTPHost:        getenv("SOLAR_HTTP_HOST", "127.0.0.1"),
		HTTPPort:        httpPort,
		HTTPWebhookBase: strings.TrimSuffix(getenv("SOLAR_HTTP_WEBHOOK_BASE", "/webhook"), "/"),

		WSHost: getenv("SOLAR_WS_HOST", "127.0.0.1"),
		WSPort: wsPort,
		WSPath: getenv("SOLAR_WS_PATH", "/ws"),

		TelegramBotToken:       getenv("TELEGRAM_BOT_TOKEN", ""),
		TelegramParseMode:      getenv("TELEGRAM_PARSE_MODE", "Markdown"),
		TelegramDisablePreview: getenv("TELEGRAM_DISABLE_PREVIEW", "true"),

		LogLevel:  getenv("SOLAR_LOG_LEVEL", "info"),
		LogFormat: getenv("SOLAR_LOG_FORMAT", "text"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects a handful of configuration states that would otherwise
// surface as confusing failures much later (empty priority list, turns < 0).
func (c *Config) Validate() error {
	if c.ContextTurns < 0 {
		return fmt.Errorf("config: SOLAR_ROUTER_CONTEXT_TURNS must be >= 0, got %d", c.ContextTurns)
	}
	if len(c.ProviderPriority) == 0 {
		return fmt.Errorf("config: provider priority list is empty")
	}
	for _, p := range c.ProviderPriority {
		if !validProvider(p) {
			return fmt.Errorf("config: unsupported provider %q in priority list", p)
		}
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("config: invalid SOLAR_HTTP_PORT %d", c.HTTPPort)
	}
	if c.WSPort <= 0 || c.WSPort > 65535 {
		return fmt.Errorf("config: invalid SOLAR_WS_PORT %d", c.WSPort)
	}
	return nil
}

// AsyncTasksEnabled reports whether the async-tasks feature flag is set.
func (c *Config) AsyncTasksEnabled() bool {
	return c.Features["async-tasks"]
}

func validProvider(p string) bool {
	switch p {
	case "codex", "claude", "gemini":
		return true
	}
	return false
}

func providerCmd(provider, builtinDefault string) string {
	newKey := "SOLAR_ROUTER_" + strings.ToUpper(provider) + "_CMD"
	oldKey := "SOLAR_AI_" + strings.ToUpper(provider) + "_CMD"
	return getenvChain(newKey, oldKey, builtinDefault)
}

func resolvePath(repoRoot, raw string) string {
	if filepath.IsAbs(raw) {
		return raw
	}
	return filepath.Join(repoRoot, raw)
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getenvChain(newKey, oldKey, def string) string {
	if v, ok := os.LookupEnv(newKey); ok && v != "" {
		return v
	}
	if v, ok := os.LookupEnv(oldKey); ok && v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer, got %q", key, v)
	}
	return n, nil
}

func intEnvChain(newKey, oldKey string, def int) (int, error) {
	if v, ok := os.LookupEnv(newKey); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("config: %s must be an integer, got %q", newKey, v)
		}
		return n, nil
	}
	if v, ok := os.LookupEnv(oldKey); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("config: %s must be an integer, got %q", oldKey, v)
		}
		return n, nil
	}
	return def, nil
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return dedupe(out)
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
