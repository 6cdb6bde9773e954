// © Copyright 2025-2026, Streamweave - https://streamweave.dev
// SPDX-License-Identifier: Apache-2.0

package chunked

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drainChunks reads every chunk remaining in the stream.
func drainChunks(t *testing.T, r io.Reader) []*Chunk {
	t.Helper()
	br := bufio.NewReader(r)
	var chunks []*Chunk
	for {
		chunk, err := ReadChunk(br)
		if err == io.EOF {
			return chunks
		}
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
}

func countRows(t *testing.T, body []byte) int {
	t.Helper()
	rr := NewRecordReader(bytes.NewReader(body))
	n := 0
	for range rr.All() {
		n++
	}
	require.NoError(t, rr.Err())
	return n
}

func TestWriterThresholdSplitsChunks(t *testing.T) {
	var buf bytes.Buffer
	w := NewRecordWriter(&buf, 10)
	w.WriteMessage(SeverityInfo, "starting up")

	for i := range 31 {
		require.NoError(t, w.WriteRecord(NewRecord().Set("n", fmt.Sprint(i))))
	}
	require.NoError(t, w.Flush(true))

	chunks := drainChunks(t, &buf)
	require.Len(t, chunks, 4)

	assert.Equal(t, []int{10, 10, 10, 1}, []int{
		countRows(t, chunks[0].Body),
		countRows(t, chunks[1].Body),
		countRows(t, chunks[2].Body),
		countRows(t, chunks[3].Body),
	})

	// The three automatic flushes are partial; the explicit one is final.
	assert.True(t, chunks[0].Metadata.GetBool(MetaPartial))
	assert.True(t, chunks[1].Metadata.GetBool(MetaPartial))
	assert.True(t, chunks[2].Metadata.GetBool(MetaPartial))
	assert.False(t, chunks[3].Metadata.GetBool(MetaPartial))
	assert.True(t, chunks[3].Metadata.GetBool(MetaFinished))

	// Inspector state rides the first chunk written after it accumulated,
	// and only that chunk.
	inspector, ok := chunks[0].Metadata.Get(MetaInspector)
	require.True(t, ok)
	msg, _ := inspector.(*Metadata).Get("message.0.INFO")
	assert.Equal(t, "starting up", msg)
	for _, chunk := range chunks[1:] {
		_, ok := chunk.Metadata.Get(MetaInspector)
		assert.False(t, ok)
	}
}

func TestWriterMessageSequenceSpansChunks(t *testing.T) {
	var buf bytes.Buffer
	w := NewRecordWriter(&buf, DefaultMaxRowsPerChunk)

	w.WriteMessage(SeverityWarn, "first")
	require.NoError(t, w.Flush(false))
	w.WriteMessage(SeverityWarn, "second")
	require.NoError(t, w.Flush(true))

	chunks := drainChunks(t, &buf)
	require.Len(t, chunks, 2)

	first, _ := chunks[0].Metadata.Get(MetaInspector)
	_, ok := first.(*Metadata).Get("message.0.WARN")
	assert.True(t, ok)

	// The sequence number does not restart after a flush.
	second, _ := chunks[1].Metadata.Get(MetaInspector)
	_, ok = second.(*Metadata).Get("message.1.WARN")
	assert.True(t, ok)
}

func TestWriterClosedAfterTerminalFlush(t *testing.T) {
	var buf bytes.Buffer
	w := NewRecordWriter(&buf, DefaultMaxRowsPerChunk)

	require.NoError(t, w.WriteRecord(NewRecord().Set("a", "1")))
	require.NoError(t, w.Flush(true))
	require.True(t, w.Closed())

	err := w.WriteRecord(NewRecord().Set("a", "2"))
	assert.ErrorIs(t, err, ErrUsage)
	assert.ErrorIs(t, w.Flush(false), ErrUsage)

	// Nothing extra written.
	assert.Len(t, drainChunks(t, &buf), 1)
}

func TestWriterEmptyFlushWritesZeroRowChunk(t *testing.T) {
	var buf bytes.Buffer
	w := NewRecordWriter(&buf, DefaultMaxRowsPerChunk)
	require.NoError(t, w.Flush(false))

	chunks := drainChunks(t, &buf)
	require.Len(t, chunks, 1)
	assert.Empty(t, chunks[0].Body)
	assert.Nil(t, chunks[0].Metadata)
	assert.False(t, w.Closed())
}

func TestWriterColumnSetResetsPerChunk(t *testing.T) {
	var buf bytes.Buffer
	w := NewRecordWriter(&buf, 1)

	require.NoError(t, w.WriteRecord(NewRecord().Set("a", "1")))
	require.NoError(t, w.WriteRecord(NewRecord().Set("b", "2")))
	require.NoError(t, w.Flush(true))

	chunks := drainChunks(t, &buf)
	require.Len(t, chunks, 3)
	assert.Contains(t, string(chunks[0].Body), "a,__mv_a")
	assert.Contains(t, string(chunks[1].Body), "b,__mv_b")
}

func TestWriterStatistics(t *testing.T) {
	var buf bytes.Buffer
	w := NewRecordWriter(&buf, 10)
	stats := &RunStatistics{}
	w.setStatistics(stats)

	for i := range 15 {
		require.NoError(t, w.WriteRecord(NewRecord().Set("n", fmt.Sprint(i))))
	}
	require.NoError(t, w.Flush(true))

	assert.Equal(t, int64(2), stats.OutputChunks)
	assert.Equal(t, int64(15), stats.OutputRows)
	assert.Positive(t, stats.OutputBytes)
}

func TestWriteConfiguration(t *testing.T) {
	var buf bytes.Buffer
	w := NewRecordWriter(&buf, DefaultMaxRowsPerChunk)
	w.WriteMessage(SeverityInfo, "will show configuration")

	settings := DefaultStreamingSettings()
	require.NoError(t, w.WriteConfiguration(settings.render()))

	br := bufio.NewReader(&buf)
	chunk, err := ReadChunk(br)
	require.NoError(t, err)
	assert.Equal(t, "streaming", chunk.Metadata.GetString(MetaType))
	assert.True(t, chunk.Metadata.GetBool("distributed"))
	_, hasInspector := chunk.Metadata.Get(MetaInspector)
	assert.True(t, hasInspector)
	assert.Empty(t, chunk.Body)

	// The configuration chunk is followed by a separating newline.
	b, err := br.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), b)

	// The writer stays usable for the execution phase.
	assert.False(t, w.Closed())
	require.NoError(t, w.WriteRecord(NewRecord().Set("a", "1")))
	require.NoError(t, w.Flush(true))
}
