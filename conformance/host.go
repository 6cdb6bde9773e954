// © Copyright 2025-2026, Streamweave - https://streamweave.dev
// SPDX-License-Identifier: Apache-2.0

package conformance

import (
	"bufio"
	"bytes"
	"io"

	"github.com/streamweave/chunked-go/chunked"
)

// Exchange is one chunk received from the command, with its body decoded
// into records.
type Exchange struct {
	Metadata *chunked.Metadata
	Records  []*chunked.Record
}

// Finished reports whether the chunk carried the terminal flag.
func (e *Exchange) Finished() bool { return e.Metadata.GetBool(chunked.MetaFinished) }

// Partial reports whether the chunk is part of a multi-chunk response.
func (e *Exchange) Partial() bool { return e.Metadata.GetBool(chunked.MetaPartial) }

// Host drives a command through the protocol from the host's side of the
// pipe: it issues the getinfo handshake, reads the configuration response,
// and exchanges execute chunks in lockstep.
type Host struct {
	w io.Writer
	r *bufio.Reader
}

// NewHost creates a host over the pipe pair connected to a command.
func NewHost(toCommand io.Writer, fromCommand io.Reader) *Host {
	return &Host{w: toCommand, r: bufio.NewReader(fromCommand)}
}

// Getinfo sends the handshake chunk carrying the search arguments and
// returns the configuration response. The separating newline the command
// writes after its configuration chunk is consumed here.
func (h *Host) Getinfo(args ...string) (*Exchange, error) {
	meta := chunked.NewMetadata()
	meta.Set(chunked.MetaAction, "getinfo")
	return h.GetinfoMetadata(meta, args...)
}

// GetinfoMetadata is Getinfo with caller-supplied handshake metadata, for
// exercising keys such as infoPath. The action key is forced to getinfo.
func (h *Host) GetinfoMetadata(meta *chunked.Metadata, args ...string) (*Exchange, error) {
	meta.Set(chunked.MetaAction, "getinfo")
	tokens := make([]any, len(args))
	for i, a := range args {
		tokens[i] = a
	}
	meta.Set(chunked.MetaArgs, tokens)

	if err := chunked.WriteChunk(h.w, meta, nil); err != nil {
		return nil, err
	}
	ex, err := h.read()
	if err != nil {
		return nil, err
	}
	if b, err := h.r.ReadByte(); err == nil && b != '\n' {
		_ = h.r.UnreadByte()
	}
	return ex, nil
}

// Execute sends one execute chunk built from records and collects the
// command's response: one final chunk, preceded by any partial chunks.
func (h *Host) Execute(records []*chunked.Record, finished bool) ([]*Exchange, error) {
	body, err := chunked.MarshalRecords(records)
	if err != nil {
		return nil, err
	}
	meta := chunked.NewMetadata()
	meta.Set(chunked.MetaAction, "execute")
	if finished {
		meta.Set(chunked.MetaFinished, true)
	}
	if err := chunked.WriteChunk(h.w, meta, body); err != nil {
		return nil, err
	}

	var exchanges []*Exchange
	for {
		ex, err := h.read()
		if err != nil {
			return exchanges, err
		}
		exchanges = append(exchanges, ex)
		if !ex.Partial() {
			return exchanges, nil
		}
	}
}

func (h *Host) read() (*Exchange, error) {
	chunk, err := chunked.ReadChunk(h.r)
	if err != nil {
		return nil, err
	}
	ex := &Exchange{Metadata: chunk.Metadata}
	reader := chunked.NewRecordReader(bytes.NewReader(chunk.Body))
	for rec := range reader.All() {
		ex.Records = append(ex.Records, rec)
	}
	if err := reader.Err(); err != nil {
		return nil, err
	}
	return ex, nil
}

// Session couples a Host to a command running over in-memory pipes.
type Session struct {
	*Host
	toCommand *io.PipeWriter
	done      chan error
}

// StartSession runs cmd over a pair of in-memory pipes and returns the host
// side. Close the session to end the command's input and collect its run
// error.
func StartSession(cmd *chunked.Command) *Session {
	commandIn, hostOut := io.Pipe()
	hostIn, commandOut := io.Pipe()

	s := &Session{
		Host:      NewHost(hostOut, hostIn),
		toCommand: hostOut,
		done:      make(chan error, 1),
	}
	go func() {
		err := cmd.Run(commandIn, commandOut)
		commandOut.CloseWithError(err)
		s.done <- err
	}()
	return s
}

// Close signals EOF to the command and returns its run error.
func (s *Session) Close() error {
	_ = s.toCommand.Close()
	return <-s.done
}
