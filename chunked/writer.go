// © Copyright 2025-2026, Streamweave - https://streamweave.dev
// SPDX-License-Identifier: Apache-2.0

package chunked

import (
	"bytes"
	"fmt"
	"io"
)

// DefaultMaxRowsPerChunk is the row-count threshold at which the writer
// performs an automatic partial flush.
const DefaultMaxRowsPerChunk = 50000

// RecordWriter buffers encoded rows and emits them as chunks. The first
// record written since the last flush locks the chunk's fixed column set;
// reaching the row threshold triggers an automatic partial flush. Inspector
// messages and metrics accumulate across the writer's lifetime and are
// attached to the next emitted chunk's metadata.
//
// A writer is owned by a single goroutine; the protocol is strictly
// synchronous.
type RecordWriter struct {
	out             io.Writer
	maxRowsPerChunk int
	buffer          bytes.Buffer
	bodyWriter      *bodyWriter
	columns         fixedColumns
	inspector       *Inspector
	rowCount        int
	closed          bool
	stats           *RunStatistics
}

// NewRecordWriter creates a writer emitting chunks to out. A non-positive
// maxRowsPerChunk selects DefaultMaxRowsPerChunk.
func NewRecordWriter(out io.Writer, maxRowsPerChunk int) *RecordWriter {
	if maxRowsPerChunk <= 0 {
		maxRowsPerChunk = DefaultMaxRowsPerChunk
	}
	w := &RecordWriter{
		out:             out,
		maxRowsPerChunk: maxRowsPerChunk,
		inspector:       newInspector(),
	}
	w.bodyWriter = newBodyWriter(&w.buffer)
	return w
}

// setStatistics attaches per-run I/O counters updated on every flush.
func (w *RecordWriter) setStatistics(stats *RunStatistics) { w.stats = stats }

// WriteRecord encodes and buffers one record. The first record since the
// last flush captures the fixed column set from this record's shape; later
// records are encoded against that exact set. Reaching the row threshold
// flushes a partial chunk and resets the row buffer and column set.
func (w *RecordWriter) WriteRecord(rec *Record) error {
	if w.closed {
		return &UsageError{Message: "WriteRecord called after the terminal flush"}
	}
	if w.columns == nil {
		w.columns = captureColumns(rec)
		if err := w.bodyWriter.Write(w.columns.headerRow()); err != nil {
			return err
		}
	}
	if err := w.bodyWriter.Write(w.columns.encodeRecord(rec)); err != nil {
		return err
	}
	w.rowCount++
	if w.rowCount >= w.maxRowsPerChunk {
		return w.flush(false, true)
	}
	return nil
}

// WriteMessage appends one formatted message to the inspector under the next
// sequence number. It never triggers a flush.
func (w *RecordWriter) WriteMessage(severity Severity, format string, args ...any) {
	w.inspector.Message(severity, fmt.Sprintf(format, args...))
}

// WriteMetric records a named metric in the inspector. It never triggers a
// flush.
func (w *RecordWriter) WriteMetric(name string, value SearchMetric) {
	w.inspector.Metric(name, value)
}

// Flush writes the buffered rows, possibly zero, as one chunk with the
// accumulated inspector state attached as metadata. When finished is true
// the chunk carries the finished flag and the writer transitions to its
// terminal Closed state: any further WriteRecord or Flush fails with a
// *UsageError.
func (w *RecordWriter) Flush(finished bool) error {
	if w.closed {
		return &UsageError{Message: "Flush called after the terminal flush"}
	}
	return w.flush(finished, false)
}

func (w *RecordWriter) flush(finished, partial bool) error {
	w.bodyWriter.Flush()
	if err := w.bodyWriter.Error(); err != nil {
		return err
	}

	var metadata *Metadata
	if w.inspector.Len() > 0 || finished || partial {
		metadata = NewMetadata()
		if w.inspector.Len() > 0 {
			metadata.Set(MetaInspector, w.inspector.snapshot())
		}
		if finished {
			metadata.Set(MetaFinished, true)
		}
		if partial {
			metadata.Set(MetaPartial, true)
		}
	}

	body := w.buffer.Bytes()
	rows := w.rowCount
	if err := WriteChunk(w.out, metadata, body); err != nil {
		return err
	}
	if w.stats != nil {
		w.stats.RecordOutput(int64(rows), int64(len(body)))
	}

	// The inspector is cleared only after the chunk embedding it was
	// written; its message sequence numbering carries across chunks.
	w.inspector.reset()
	w.buffer.Reset()
	w.columns = nil
	w.rowCount = 0
	w.closed = finished
	return nil
}

// WriteConfiguration emits the configuration-response chunk: the rendered
// settings plus the accumulated inspector state, with an empty body. The
// host expects a separating newline after this chunk.
func (w *RecordWriter) WriteConfiguration(settings *Metadata) error {
	if w.closed {
		return &UsageError{Message: "WriteConfiguration called after the terminal flush"}
	}
	metadata := NewMetadata()
	for _, k := range settings.Keys() {
		v, _ := settings.Get(k)
		metadata.Set(k, v)
	}
	if w.inspector.Len() > 0 {
		metadata.Set(MetaInspector, w.inspector.snapshot())
	}
	if err := WriteChunk(w.out, metadata, nil); err != nil {
		return err
	}
	if _, err := io.WriteString(w.out, "\n"); err != nil {
		return err
	}
	if f, ok := w.out.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return err
		}
	}
	w.inspector.reset()
	return nil
}

// Closed reports whether the terminal flush has happened.
func (w *RecordWriter) Closed() bool { return w.closed }
