// © Copyright 2025-2026, Streamweave - https://streamweave.dev
// SPDX-License-Identifier: Apache-2.0

package chunked

import (
	"context"
	"time"
)

// ExecutionHook provides observability callpoints around one command
// invocation: OnRunStart fires after a successful handshake, OnRunEnd after
// the execution loop finishes or faults.
type ExecutionHook interface {
	OnRunStart(ctx context.Context, info RunInfo) (context.Context, HookToken)
	OnRunEnd(ctx context.Context, token HookToken, info RunInfo, stats *RunStatistics, err error)
}

// HookToken is an opaque value returned by OnRunStart and passed back to
// OnRunEnd. Only meaningful to the ExecutionHook that created it.
type HookToken any

// RunInfo carries invocation metadata passed to hooks.
type RunInfo struct {
	Command      string   // command name
	Variant      string   // configuration type tag: streaming, generating, ...
	InvocationID string   // generated per invocation
	Fieldnames   []string // output field names from the handshake args
}

// RunStatistics holds per-invocation I/O counters.
type RunStatistics struct {
	InputChunks  int64
	OutputChunks int64
	InputRows    int64
	OutputRows   int64
	InputBytes   int64
	OutputBytes  int64
}

// RecordInput records one input chunk of the given body size. Row counts
// are added separately as the lazy record sequence is consumed.
func (s *RunStatistics) RecordInput(bodyBytes int64) {
	s.InputChunks++
	s.InputBytes += bodyBytes
}

// AddInputRows adds decoded input rows to the counters.
func (s *RunStatistics) AddInputRows(n int64) {
	s.InputRows += n
}

// RecordOutput records one output chunk with the given row count and body
// size.
func (s *RunStatistics) RecordOutput(rows, bodyBytes int64) {
	s.OutputChunks++
	s.OutputRows += rows
	s.OutputBytes += bodyBytes
}

// Metric summarizes the counters as an inspector metric.
func (s *RunStatistics) Metric(elapsed time.Duration) SearchMetric {
	return NewSearchMetric(elapsed.Seconds(), s.InputChunks, s.InputRows, s.OutputRows)
}
