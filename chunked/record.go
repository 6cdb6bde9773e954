// © Copyright 2025-2026, Streamweave - https://streamweave.dev
// SPDX-License-Identifier: Apache-2.0

package chunked

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"
)

// mvPrefix names the companion column that carries the escaped encoding of a
// multi-valued field: field "x" pairs with companion column "__mv_x".
const mvPrefix = "__mv_"

// Record is one tabular row: an ordered mapping of field name to value. A
// value is a scalar or a multi-value sequence of scalars. Records are
// created per row read from a chunk body and consumed by a transform or a
// writer.
type Record struct {
	keys   []string
	values map[string]any
}

// NewRecord creates an empty record.
func NewRecord() *Record {
	return &Record{values: make(map[string]any)}
}

// Set inserts or replaces the value under name, preserving insertion order.
func (r *Record) Set(name string, value any) *Record {
	if _, ok := r.values[name]; !ok {
		r.keys = append(r.keys, name)
	}
	r.values[name] = value
	return r
}

// Get returns the value under name and whether it is present.
func (r *Record) Get(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Delete removes name, preserving the order of the remaining fields.
func (r *Record) Delete(name string) {
	if _, ok := r.values[name]; !ok {
		return
	}
	delete(r.values, name)
	for i, k := range r.keys {
		if k == name {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Fields returns the field names in insertion order. The slice is shared;
// callers must not modify it.
func (r *Record) Fields() []string { return r.keys }

// Len returns the number of fields.
func (r *Record) Len() int { return len(r.keys) }

// fixedColumns is the ordered field layout locked in by the first record
// written into a chunk. Every field emits a base column and a __mv_
// companion column; all subsequent records in the chunk are encoded against
// this exact set.
type fixedColumns []string

// captureColumns derives the fixed column set from a record's shape.
func captureColumns(rec *Record) fixedColumns {
	return fixedColumns(rec.Fields())
}

// headerRow returns the wire header: a base and companion column per field.
func (c fixedColumns) headerRow() []string {
	row := make([]string, 0, 2*len(c))
	for _, name := range c {
		row = append(row, name, mvPrefix+name)
	}
	return row
}

// encodeRecord encodes one record against the fixed column set. Fields
// absent from the set are dropped; set fields absent from the record are
// emitted empty.
func (c fixedColumns) encodeRecord(rec *Record) []string {
	row := make([]string, 0, 2*len(c))
	for _, name := range c {
		v, ok := rec.Get(name)
		if !ok {
			row = append(row, "", "")
			continue
		}
		base, companion := encodeCell(v)
		row = append(row, base, companion)
	}
	return row
}

// encodeCell converts one field value into its base and companion cells.
//
// A sequence of more than one element writes the elements joined by newlines
// into the base cell and the escaped multi-value encoding into the companion
// cell. A one-element sequence collapses to a scalar base cell. An empty
// sequence leaves both cells empty. Scalars occupy the base cell alone;
// delimiter, quote, and newline characters are handled by the CSV layer.
func encodeCell(value any) (base, companion string) {
	items, ok := sequenceOf(value)
	if !ok {
		return scalarString(value), ""
	}
	switch len(items) {
	case 0:
		return "", ""
	case 1:
		return items[0], ""
	}

	escaped := make([]string, len(items))
	for i, item := range items {
		escaped[i] = strings.ReplaceAll(item, "$", "$$")
	}
	return strings.Join(items, "\n"), "$" + strings.Join(escaped, "$;$") + "$"
}

// sequenceOf reports whether value is a multi-value sequence and returns its
// elements stringified.
func sequenceOf(value any) ([]string, bool) {
	switch seq := value.(type) {
	case []string:
		return seq, true
	case []any:
		items := make([]string, len(seq))
		for i, v := range seq {
			items[i] = scalarString(v)
		}
		return items, true
	}
	return nil, false
}

// scalarString renders a scalar the way the host expects it on the wire.
func scalarString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		// The host's multi-value convention for booleans.
		if v {
			return "t"
		}
		return "f"
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}

// decodeList decodes the companion-cell grammar: each element wrapped in $,
// a literal $ escaped as $$, elements separated by ; between the closing $
// of one element and the opening $ of the next. Malformed input (an
// unterminated $ run, or stray characters between elements) reports ok ==
// false; by protocol contract the field then decodes to an absent value
// rather than failing the row.
func decodeList(mv string) (values []string, ok bool) {
	if len(mv) == 0 {
		return nil, false
	}
	var value strings.Builder
	inValue := false
	for i := 0; i < len(mv); i++ {
		c := mv[i]
		if !inValue {
			if c == '$' {
				inValue = true
			} else if c != ';' {
				return nil, false
			}
			continue
		}
		switch {
		case c == '$' && i+1 < len(mv) && mv[i+1] == '$':
			value.WriteByte('$')
			i++
		case c == '$':
			inValue = false
			values = append(values, value.String())
			value.Reset()
		default:
			value.WriteByte(c)
		}
	}
	if inValue {
		return nil, false
	}
	return values, true
}

// bodyWriter writes rows in the host's CSV dialect: comma delimiter,
// double-quote quoting, CRLF row terminator. Field bytes pass through
// intact, unlike encoding/csv's writer, whose CRLF mode rewrites the
// newlines that join multi-value base cells and drops carriage returns.
// Only the row terminator is CRLF.
type bodyWriter struct {
	w   io.Writer
	err error
}

func newBodyWriter(w io.Writer) *bodyWriter { return &bodyWriter{w: w} }

// Write emits one row. A cell containing a delimiter, quote, or line-break
// byte is quoted, with inner quotes doubled. After a write error the writer
// is inert and every later call reports that first error.
func (bw *bodyWriter) Write(row []string) error {
	if bw.err != nil {
		return bw.err
	}
	var sb strings.Builder
	for i, cell := range row {
		if i > 0 {
			sb.WriteByte(',')
		}
		if strings.ContainsAny(cell, ",\"\r\n") {
			sb.WriteByte('"')
			sb.WriteString(strings.ReplaceAll(cell, `"`, `""`))
			sb.WriteByte('"')
		} else {
			sb.WriteString(cell)
		}
	}
	sb.WriteString("\r\n")
	_, bw.err = io.WriteString(bw.w, sb.String())
	return bw.err
}

// Flush is a no-op: rows reach the underlying writer as they are composed.
func (bw *bodyWriter) Flush() {}

// Error returns the first write error, or nil.
func (bw *bodyWriter) Error() error { return bw.err }

// MarshalRecords encodes records as one chunk body. The first record fixes
// the column set. Hosts and tests use this to build input chunks; commands
// write through [RecordWriter] instead.
func MarshalRecords(records []*Record) ([]byte, error) {
	var buf bytes.Buffer
	w := newBodyWriter(&buf)
	var columns fixedColumns
	for _, rec := range records {
		if columns == nil {
			columns = captureColumns(rec)
			if err := w.Write(columns.headerRow()); err != nil {
				return nil, err
			}
		}
		if err := w.Write(columns.encodeRecord(rec)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RecordReader decodes the records of one chunk body. It is a lazy,
// single-use sequence: the first row read is the column header, every later
// row is one record, and the reader cannot be restarted. Companion columns
// that are present and non-empty override their base column's value.
type RecordReader struct {
	cr     *csv.Reader
	header []string
	err    error
}

// NewRecordReader creates a reader over one chunk body.
func NewRecordReader(r io.Reader) *RecordReader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	return &RecordReader{cr: cr}
}

// All iterates the remaining records. Iteration stops early on a malformed
// body; the cause is then available from Err.
func (rr *RecordReader) All() iter.Seq[*Record] {
	return func(yield func(*Record) bool) {
		if rr.err != nil {
			return
		}
		if rr.header == nil {
			header, err := rr.cr.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				rr.err = &ProtocolError{Message: "reading body header row", Err: err}
				return
			}
			rr.header = header
		}
		for {
			row, err := rr.cr.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				rr.err = &ProtocolError{Message: "reading body row", Err: err}
				return
			}
			if !yield(rr.decodeRow(row)) {
				return
			}
		}
	}
}

// Err returns the first error encountered while iterating, or nil.
func (rr *RecordReader) Err() error { return rr.err }

// decodeRow builds one record from a body row, applying companion-column
// overrides after the base pass so field order follows the base columns.
func (rr *RecordReader) decodeRow(row []string) *Record {
	rec := NewRecord()
	baseNames := make(map[string]bool, len(rr.header))
	for _, name := range rr.header {
		if !strings.HasPrefix(name, mvPrefix) {
			baseNames[name] = true
		}
	}

	for i, name := range rr.header {
		if i >= len(row) || strings.HasPrefix(name, mvPrefix) {
			continue
		}
		rec.Set(name, row[i])
	}

	for i, name := range rr.header {
		if i >= len(row) || !strings.HasPrefix(name, mvPrefix) {
			continue
		}
		cell := row[i]
		if cell == "" {
			continue
		}
		base := strings.TrimPrefix(name, mvPrefix)
		if !baseNames[base] {
			// Defensive fallback: a companion with no base counterpart is
			// kept as a literal value under the companion's own name.
			rec.Set(name, cell)
			continue
		}
		if values, ok := decodeList(cell); ok {
			rec.Set(base, values)
		} else {
			rec.Delete(base)
		}
	}
	return rec
}
