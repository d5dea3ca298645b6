package log_test

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appLog "racecal/internal/log"
)

func capture(t *testing.T, level appLog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	appLog.SetOutput(&buf)
	appLog.SetLevel(level)
	t.Cleanup(func() {
		appLog.SetOutput(os.Stderr)
		appLog.SetLevel(appLog.LevelInfo)
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want appLog.Level
	}{
		{"debug", appLog.LevelDebug},
		{"INFO", appLog.LevelInfo},
		{"", appLog.LevelInfo},
		{"warning", appLog.LevelWarn},
		{" error ", appLog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := appLog.ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := appLog.ParseLevel("chatty")
	assert.Error(t, err)
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t, appLog.LevelWarn)

	appLog.Debug("hidden debug")
	appLog.Info("hidden info")
	appLog.Warn("shown warn")
	appLog.Error("shown error", errors.New("boom"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown warn")
	assert.Contains(t, out, "[ERROR] shown error err=boom")
}

func TestKeyValueFormatting(t *testing.T) {
	buf := capture(t, appLog.LevelDebug)

	appLog.Info("schedule built", "view", "blocks", "label", "Block 1", "rows", 5, "dangling")

	out := buf.String()
	assert.Contains(t, out, "view=blocks")
	assert.Contains(t, out, `label="Block 1"`)
	assert.Contains(t, out, "rows=5")
	assert.NotContains(t, out, "dangling")
}
