// Copyright 2025-2026, Streamweave - https://streamweave.dev
// SPDX-License-Identifier: Apache-2.0

// Package chunked implements the worker side of the "chunked 1.0" external
// search command protocol: a synchronous, length-prefixed exchange of
// JSON metadata and CSV record bodies over a subprocess's stdin/stdout.
//
// Each transmission unit is a chunk: a header line of the form
//
//	chunked 1.0,<metadata length>,<body length>\n
//
// followed by exactly that many bytes of JSON metadata and CSV body. The
// host opens every invocation with a getinfo handshake chunk carrying the
// search arguments; the command answers with one configuration chunk, then
// the two sides exchange execute chunks in lockstep until the host sets the
// terminal flag or closes the pipe.
//
// # Variants
//
// A command participates in the pipeline in one of four ways:
//
//   - Generating: produces records without reading input. Register with
//     [NewGeneratingCommand].
//   - Streaming: transforms records one input chunk at a time, anywhere in
//     the pipeline. Register with [NewStreamingCommand].
//   - Eventing: transforms whole events at the search head, one input chunk
//     at a time. Register with [NewEventingCommand].
//   - Reporting: reduces the complete input to a reporting data structure,
//     optionally preceded by a distributed map phase registered with
//     [Command.SetMap]. Register with [NewReportingCommand].
//
// Variant functions consume and produce records as iterator sequences;
// [RecordWriter] buffers output rows and emits partial chunks when a row
// threshold is crossed, so commands can produce results far larger than
// memory.
//
// # Records
//
// Record field values round-trip through the CSV body with a companion
// __mv_ column per field encoding multi-value cells: each element wrapped
// in $…$, literal $ doubled, elements joined with ;. Single-element values
// collapse to plain scalars on the wire.
//
// # Search line options
//
// Options are declared with [NewOptionSet] and validators such as
// [Boolean] or [IntegerBetween]. Every handshake argument token is
// processed before any decision is made, and all failures are reported to
// the host together.
//
// # Compatibility
//
// The wire format is the Splunk custom search command protocol, version 2
// ("chunked"), as spoken by the splunklib.searchcommands Python package.
package chunked
