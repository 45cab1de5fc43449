package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func withEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{"codex", "claude", "gemini"}, cfg.ProviderPriority)
	require.Equal(t, defaultContextTurns, cfg.ContextTurns)
	require.False(t, cfg.AsyncTasksEnabled())
	require.Equal(t, "127.0.0.1", cfg.HTTPHost)
	require.Equal(t, 8787, cfg.HTTPPort)
	require.Equal(t, "/webhook", cfg.HTTPWebhookBase)
}

func TestLoad_NewEnvOverridesLegacy(t *testing.T) {
	withEnv(t, map[string]string{
		"SOLAR_AI_CODEX_CMD":    "legacy-codex",
		"SOLAR_ROUTER_CODEX_CMD": "new-codex",
	})
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "new-codex", cfg.ProviderCmd["codex"])
}

func TestLoad_LegacyEnvUsedWhenNewAbsent(t *testing.T) {
	withEnv(t, map[string]string{"SOLAR_AI_CLAUDE_CMD": "legacy-claude"})
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "legacy-claude", cfg.ProviderCmd["claude"])
}

func TestLoad_FeatureFlags(t *testing.T) {
	withEnv(t, map[string]string{"SOLAR_SYSTEM_FEATURES": "async-tasks, other-flag"})
	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.AsyncTasksEnabled())
	require.True(t, cfg.Features["other-flag"])
}

func TestValidate_RejectsEmptyPriority(t *testing.T) {
	cfg := &Config{ProviderPriority: nil}
	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnsupportedProvider(t *testing.T) {
	cfg := &Config{ProviderPriority: []string{"codex", "bogus"}, HTTPPort: 80, WSPort: 80}
	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsNegativeContextTurns(t *testing.T) {
	cfg := &Config{ProviderPriority: []string{"codex"}, ContextTurns: -1, HTTPPort: 80, WSPort: 80}
	require.Error(t, cfg.Validate())
}
