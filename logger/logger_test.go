package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"":        InfoLevel,
		"warning": WarnLevel,
		"warn":    WarnLevel,
		" error ": ErrorLevel,
		"fatal":   FatalLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown level")
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "debug", LevelString(DebugLevel))
	assert.Equal(t, "warn", LevelString(WarnLevel))
	assert.Equal(t, "level(9)", LevelString(9))
}

func TestSlogLogger_JSONOutput(t *testing.T) {
	t.Setenv("ENV", "")

	var buf bytes.Buffer
	l := NewSlogWithOptions(Options{Level: InfoLevel, Format: FormatJSON, Output: &buf})

	l.Debug("hidden")
	l.Info("link: channel opened", "path", "/dev/ttyS1")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	assert.Equal(t, "link: channel opened", rec["msg"])
	assert.Equal(t, "/dev/ttyS1", rec["path"])
	assert.Contains(t, rec, "ts")
}

func TestSlogLogger_SetLevelSharedWithChildren(t *testing.T) {
	t.Setenv("ENV", "")

	var buf bytes.Buffer
	l := NewSlogWithOptions(Options{Level: ErrorLevel, Output: &buf})
	child := l.With("component", "dispatch")

	child.Info("dropped")
	assert.Zero(t, buf.Len())

	l.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, child.Level())

	child.Debug("kept")
	assert.Contains(t, buf.String(), `"component":"dispatch"`)
}

func TestSlogLogger_ConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogWithOptions(Options{Level: InfoLevel, Format: FormatConsole, Output: &buf})

	l.Warn("fec: corrected block", "symbols", 3)
	assert.Contains(t, buf.String(), "fec: corrected block")
}

func TestSetDefault(t *testing.T) {
	orig := GetLogger()
	t.Cleanup(func() { SetDefault(orig) })

	m := NewMockLogger().AllowAll()
	SetDefault(m)
	SetDefault(nil)

	Info("hello", "k", 1)
	assert.Equal(t, []string{"hello"}, m.Messages("Info"))
}
