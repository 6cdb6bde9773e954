// © Copyright 2025-2026, Streamweave - https://streamweave.dev
// SPDX-License-Identifier: Apache-2.0

package chunked

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadLoggingOptions(t *testing.T) {
	appRoot := t.TempDir()
	doc, err := yaml.Marshal(map[string]any{"level": "debug", "json": true})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(appRoot, "mycmd.logging.yaml"), doc, 0o644))

	opts, err := LoadLoggingOptions(appRoot, "mycmd")
	require.NoError(t, err)
	assert.Equal(t, LoggingOptions{Level: "debug", JSON: true}, opts)
}

func TestLoadLoggingOptionsMissingFile(t *testing.T) {
	opts, err := LoadLoggingOptions(t.TempDir(), "mycmd")
	require.NoError(t, err)
	assert.Equal(t, LoggingOptions{}, opts)
}

func TestLoadLoggingOptionsMalformed(t *testing.T) {
	appRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(appRoot, "mycmd.logging.yaml"), []byte("level: [\n"), 0o644))

	_, err := LoadLoggingOptions(appRoot, "mycmd")
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"  WARN ", slog.LevelWarn},
		{"Error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), "level %q", tt.in)
	}
}
