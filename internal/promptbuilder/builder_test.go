package promptbuilder

import (
	"os"
	"path/filepath"
	"testing"

	"conduit/internal/convstore"
	"conduit/internal/router"

	"github.com/stretchr/testify/require"
)

func TestReadSystemPrompt_Default(t *testing.T) {
	require.Equal(t, defaultSystemPrompt, ReadSystemPrompt(filepath.Join(t.TempDir(), "missing.md")))
}

func TestReadSystemPrompt_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompt.md")
	require.NoError(t, os.WriteFile(path, []byte("  Custom prompt  \n"), 0o644))
	require.Equal(t, "Custom prompt", ReadSystemPrompt(path))
}

func TestBuild_AutoModeIncludesJSONTrailer(t *testing.T) {
	req := router.Request{Text: "hi"}
	prompt := Build("sys", nil, req, "conv1", router.ModeAuto, router.ChannelTelegram)
	require.Contains(t, prompt, "conversation_id: conv1")
	require.Contains(t, prompt, "channel: telegram")
	require.Contains(t, prompt, `"decision"`)
	require.Contains(t, prompt, "Current user message:\nhi")
}

func TestBuild_DirectOnlyTrailer(t *testing.T) {
	req := router.Request{Text: "hi"}
	prompt := Build("sys", nil, req, "conv1", router.ModeDirectOnly, router.ChannelOther)
	require.Contains(t, prompt, "Respond directly to the current user message.")
	require.NotContains(t, prompt, `"decision"`)
}

func TestBuild_RecentTurnsIncluded(t *testing.T) {
	recent := []convstore.Record{
		{Role: convstore.RoleUser, Text: "earlier question"},
		{Role: convstore.RoleAssistant, Text: "earlier answer"},
	}
	prompt := Build("sys", recent, router.Request{Text: "now"}, "c", router.ModeAuto, router.ChannelOther)
	require.Contains(t, prompt, "USER: earlier question")
	require.Contains(t, prompt, "ASSISTANT: earlier answer")
}

func TestBuild_OmitsRecentTurnsHeaderWhenEmpty(t *testing.T) {
	prompt := Build("sys", nil, router.Request{Text: "now"}, "c", router.ModeAuto, router.ChannelOther)
	require.NotContains(t, prompt, "Recent turns")
}
