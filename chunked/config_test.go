// © Copyright 2025-2026, Streamweave - https://streamweave.dev
// SPDX-License-Identifier: Apache-2.0

package chunked

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeConfig renders settings through the frame codec so that the nil
// dropping rule applies, the same path a real configuration response takes.
func encodeConfig(t *testing.T, s Settings) *Metadata {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteChunk(&buf, s.render(), nil))
	chunk, err := ReadChunk(bufio.NewReader(&buf))
	require.NoError(t, err)
	return chunk.Metadata
}

func TestStreamingSettingsRender(t *testing.T) {
	m := encodeConfig(t, DefaultStreamingSettings())
	assert.Equal(t, []string{"type", "distributed", "generating"}, m.Keys())
	assert.Equal(t, "streaming", m.GetString(MetaType))
	assert.True(t, m.GetBool("distributed"))
	assert.False(t, m.GetBool("generating"))

	max := int64(50000)
	preview := false
	m = encodeConfig(t, StreamingSettings{
		MaxInputs:      &max,
		RequiredFields: []string{"_raw", "host"},
		RunInPreview:   &preview,
	})
	v, _ := m.Get("maxinputs")
	assert.Equal(t, int64(50000), v)
	fields, _ := m.Get("required_fields")
	assert.Equal(t, []any{"_raw", "host"}, fields)
	assert.False(t, m.GetBool("distributed"))
	assert.False(t, m.GetBool("run_in_preview"))
}

func TestGeneratingSettingsRender(t *testing.T) {
	m := encodeConfig(t, GeneratingSettings{GeneratesTimeOrder: true, Local: true})
	assert.Equal(t, "generating", m.GetString(MetaType))
	assert.True(t, m.GetBool("generating"))
	assert.True(t, m.GetBool("generates_timeorder"))
	assert.False(t, m.GetBool("streaming"))
	assert.True(t, m.GetBool("local"))
}

func TestEventingSettingsRender(t *testing.T) {
	m := encodeConfig(t, EventingSettings{})
	assert.Equal(t, []string{"type"}, m.Keys())
	assert.Equal(t, "eventing", m.GetString(MetaType))

	m = encodeConfig(t, EventingSettings{RequiredFields: []string{"source"}})
	fields, _ := m.Get("required_fields")
	assert.Equal(t, []any{"source"}, fields)
}

func TestReportingSettingsRender(t *testing.T) {
	m := encodeConfig(t, ReportingSettings{})
	assert.Equal(t, []string{"type", "requires_preop"}, m.Keys())
	assert.Equal(t, "reporting", m.GetString(MetaType))
	assert.False(t, m.GetBool("requires_preop"))

	m = encodeConfig(t, ReportingSettings{
		RequiresPreop:  true,
		StreamingPreop: "prestats count by host",
	})
	assert.True(t, m.GetBool("requires_preop"))
	assert.Equal(t, "prestats count by host", m.GetString("streaming_preop"))
}
