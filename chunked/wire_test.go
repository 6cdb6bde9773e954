// © Copyright 2025-2026, Streamweave - https://streamweave.dev
// SPDX-License-Identifier: Apache-2.0

package chunked

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteChunkExactFraming(t *testing.T) {
	var buf bytes.Buffer
	meta := NewMetadata().Set("action", "getinfo").Set("preview", false)
	body := []byte("a,b\r\n1,2\r\n")

	require.NoError(t, WriteChunk(&buf, meta, body))

	wantMeta := `{"action":"getinfo","preview":false}`
	want := fmt.Sprintf("chunked 1.0,%d,%d\n%s%s", len(wantMeta), len(body), wantMeta, body)
	assert.Equal(t, want, buf.String())
}

func TestWriteChunkDropsNilValues(t *testing.T) {
	var buf bytes.Buffer
	meta := NewMetadata().
		Set("type", "streaming").
		Set("maxinputs", nil).
		Set("distributed", true)

	require.NoError(t, WriteChunk(&buf, meta, nil))
	assert.True(t, strings.HasPrefix(buf.String(), "chunked 1.0,"))
	assert.Contains(t, buf.String(), `{"type":"streaming","distributed":true}`)
	assert.NotContains(t, buf.String(), "maxinputs")
}

func TestReadChunkRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	meta := NewMetadata().Set("finished", true).Set("n", int64(3))
	body := []byte("x\r\n1\r\n2\r\n3\r\n")
	require.NoError(t, WriteChunk(&buf, meta, body))

	chunk, err := ReadChunk(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.True(t, chunk.Metadata.GetBool(MetaFinished))
	n, _ := chunk.Metadata.Get("n")
	assert.Equal(t, int64(3), n)
	assert.Equal(t, body, chunk.Body)
}

func TestReadChunkHeaderWhitespace(t *testing.T) {
	in := "chunked  1.0 , 2 , 3 \n{}abc"
	chunk, err := ReadChunk(bufio.NewReader(strings.NewReader(in)))
	require.NoError(t, err)
	assert.Equal(t, 0, chunk.Metadata.Len())
	assert.Equal(t, []byte("abc"), chunk.Body)
}

func TestReadChunkCleanEOF(t *testing.T) {
	_, err := ReadChunk(bufio.NewReader(strings.NewReader("")))
	assert.Equal(t, io.EOF, err)
}

func TestReadChunkMalformedHeader(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"wrong prefix", "chunky 1.0,0,0\n"},
		{"wrong version", "chunked 2.0,0,0\n"},
		{"missing length", "chunked 1.0,7\n"},
		{"negative length", "chunked 1.0,-1,0\n"},
		{"no newline", "chunked 1.0,0,0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadChunk(bufio.NewReader(strings.NewReader(tt.in)))
			assert.ErrorIs(t, err, ErrProtocol)
		})
	}
}

func TestReadChunkTruncated(t *testing.T) {
	// Header promises more metadata and body bytes than the stream holds.
	_, err := ReadChunk(bufio.NewReader(strings.NewReader("chunked 1.0,10,0\n{}")))
	assert.ErrorIs(t, err, ErrProtocol)

	_, err = ReadChunk(bufio.NewReader(strings.NewReader("chunked 1.0,2,10\n{}abc")))
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestWriteChunkEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteChunk(&buf, nil, nil))
	assert.Equal(t, "chunked 1.0,0,0\n", buf.String())

	chunk, err := ReadChunk(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Nil(t, chunk.Metadata)
	assert.Empty(t, chunk.Body)
}
