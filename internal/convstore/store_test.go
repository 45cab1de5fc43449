package convstore

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"user@example.com", "user_example.com"},
		{"", "unknown"},
		{"   ", "unknown"},
		{"telegram:12345", "telegram_12345"},
		{strings.Repeat("a", 200), strings.Repeat("a", 120)},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, SanitizeID(tc.in))
	}
}

func TestSanitizeID_Idempotent(t *testing.T) {
	for _, in := range []string{"a b/c", strings.Repeat("x!", 100), ""} {
		once := SanitizeID(in)
		twice := SanitizeID(once)
		require.Equal(t, once, twice)
		require.LessOrEqual(t, len(once), maxIDLength)
	}
}

func TestAppendAndLoadRecent(t *testing.T) {
	s := New(t.TempDir(), 2)
	require.NoError(t, s.Append("conv1", RoleUser, "hi"))
	require.NoError(t, s.Append("conv1", RoleAssistant, "hello"))

	recs, err := s.LoadRecent("conv1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, RoleUser, recs[0].Role)
	require.Equal(t, "hi", recs[0].Text)
	require.Equal(t, RoleAssistant, recs[1].Role)
}

func TestLoadRecent_MissingFileReturnsEmpty(t *testing.T) {
	s := New(t.TempDir(), 2)
	recs, err := s.LoadRecent("nope")
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestLoadRecent_WindowBound(t *testing.T) {
	s := New(t.TempDir(), 1) // keep = 2
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append("conv", RoleUser, "u"))
		require.NoError(t, s.Append("conv", RoleAssistant, "a"))
	}
	recs, err := s.LoadRecent("conv")
	require.NoError(t, err)
	require.Len(t, recs, 2)
}

func TestLoadRecent_SkipsMalformedLines(t *testing.T) {
	s := New(t.TempDir(), 5)
	require.NoError(t, s.Append("conv", RoleUser, "ok"))
	path := s.path("conv")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, _ = f.WriteString("not json\n")
	_, _ = f.WriteString(`{"role":"system","text":"ignored"}` + "\n")
	_, _ = f.WriteString(`{"role":"user","text":""}` + "\n")
	require.NoError(t, f.Close())

	recs, err := s.LoadRecent("conv")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "ok", recs[0].Text)
}

func TestAppend_EscapesNonASCII(t *testing.T) {
	s := New(t.TempDir(), 5)
	require.NoError(t, s.Append("conv", RoleUser, "héllo"))
	raw, err := os.ReadFile(s.path("conv"))
	require.NoError(t, err)
	require.NotContains(t, string(raw), "é")
	require.Contains(t, string(raw), "\\u00e9")
}
