// © Copyright 2025-2026, Streamweave - https://streamweave.dev
// SPDX-License-Identifier: Apache-2.0

package chunked

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
)

// Chunk is one framed unit of the protocol: an optional metadata tree and a
// raw body of delimited-text rows.
type Chunk struct {
	Metadata *Metadata
	Body     []byte
}

// headerPattern matches the chunk header line. The host is permitted to pad
// the version tag and the two lengths with whitespace.
var headerPattern = regexp.MustCompile(`^chunked\s+1\.0\s*,\s*(\d+)\s*,\s*(\d+)\s*$`)

// ReadChunk reads one chunk from the stream. A clean EOF before any header
// byte returns (nil, io.EOF): the host closed the stream, which is a normal
// termination signal, not an error. A header that does not parse, or a
// stream that ends before the declared metadata or body lengths have been
// read, is a *ProtocolError.
func ReadChunk(r *bufio.Reader) (*Chunk, error) {
	header, err := r.ReadString('\n')
	if err == io.EOF && header == "" {
		return nil, io.EOF
	}
	if err != nil {
		return nil, &ProtocolError{Message: "reading chunk header", Err: err}
	}

	m := headerPattern.FindStringSubmatch(header[:len(header)-1])
	if m == nil {
		return nil, &ProtocolError{Message: fmt.Sprintf("failed to parse transport header: %q", header)}
	}

	metaLen, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, &ProtocolError{Message: "parsing metadata length", Err: err}
	}
	bodyLen, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, &ProtocolError{Message: "parsing body length", Err: err}
	}

	metaBytes := make([]byte, metaLen)
	if _, err := io.ReadFull(r, metaBytes); err != nil {
		return nil, &ProtocolError{Message: fmt.Sprintf("short read of %d metadata bytes", metaLen), Err: err}
	}
	metadata, err := DecodeMetadata(metaBytes)
	if err != nil {
		return nil, err
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, &ProtocolError{Message: fmt.Sprintf("short read of %d body bytes", bodyLen), Err: err}
	}

	return &Chunk{Metadata: metadata, Body: body}, nil
}

// WriteChunk writes one chunk to the stream. Metadata keys holding nil are
// dropped before serialization and the header lengths are computed from the
// actual serialized byte counts. The stream is flushed before returning,
// upholding the synchronous one-chunk-at-a-time exchange contract with the
// host.
func WriteChunk(w io.Writer, metadata *Metadata, body []byte) error {
	var metaBytes []byte
	if metadata != nil {
		filtered := NewMetadata()
		for _, k := range metadata.Keys() {
			if v, _ := metadata.Get(k); v != nil {
				filtered.Set(k, v)
			}
		}
		var err error
		if metaBytes, err = filtered.Encode(); err != nil {
			return &ProtocolError{Message: "encoding chunk metadata", Err: err}
		}
	}

	header := fmt.Sprintf("chunked %s,%d,%d\n", ProtocolVersion, len(metaBytes), len(body))
	if _, err := io.WriteString(w, header); err != nil {
		return &ProtocolError{Message: "writing chunk header", Err: err}
	}
	// Skip zero-length writes: on an unbuffered io.Pipe a zero-length Write
	// still blocks for a reader, but ReadChunk's io.ReadFull of an empty
	// buffer never issues the matching Read, deadlocking both ends.
	if len(metaBytes) > 0 {
		if _, err := w.Write(metaBytes); err != nil {
			return &ProtocolError{Message: "writing chunk metadata", Err: err}
		}
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return &ProtocolError{Message: "writing chunk body", Err: err}
		}
	}

	if f, ok := w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return &ProtocolError{Message: "flushing chunk", Err: err}
		}
	}
	return nil
}
