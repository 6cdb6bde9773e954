// © Copyright 2025-2026, Streamweave - https://streamweave.dev
// SPDX-License-Identifier: Apache-2.0

package chunked

import (
	"fmt"

	gojson "github.com/goccy/go-json"
)

// Severity classifies an inspector message reported to the host.
type Severity string

const (
	// SeverityFatal is the most severe level, used for conditions that
	// terminate command processing.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates a failed operation.
	SeverityError Severity = "ERROR"
	// SeverityWarn indicates a condition that may require attention.
	SeverityWarn Severity = "WARN"
	// SeverityInfo indicates a normal informational message.
	SeverityInfo Severity = "INFO"
	// SeverityDebug is the least severe level, used for diagnostics.
	SeverityDebug Severity = "DEBUG"
)

// SearchMetric is the 4-tuple value of an inspector metric. All components
// are optional; absent components serialize as null.
type SearchMetric struct {
	ElapsedSeconds  *float64
	InvocationCount *int64
	InputCount      *int64
	OutputCount     *int64
}

// NewSearchMetric builds a SearchMetric with every component present.
func NewSearchMetric(elapsedSeconds float64, invocations, inputCount, outputCount int64) SearchMetric {
	return SearchMetric{
		ElapsedSeconds:  &elapsedSeconds,
		InvocationCount: &invocations,
		InputCount:      &inputCount,
		OutputCount:     &outputCount,
	}
}

// MarshalJSON serializes the metric as a 4-element array, matching the wire
// form the host expects.
func (m SearchMetric) MarshalJSON() ([]byte, error) {
	return gojson.Marshal([]any{marshalComponent(m.ElapsedSeconds), marshalComponent(m.InvocationCount),
		marshalComponent(m.InputCount), marshalComponent(m.OutputCount)})
}

func marshalComponent[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// Inspector accumulates the messages and metrics a command reports to its
// host. Message keys carry a sequence number that increases monotonically
// for the life of the owning writer, across every chunk it emits; the
// accumulated state is cleared only immediately after being embedded into an
// emitted chunk's metadata.
type Inspector struct {
	state      *Metadata
	messageSeq int
}

func newInspector() *Inspector {
	return &Inspector{state: NewMetadata()}
}

// Message appends one message under the next sequence number.
func (i *Inspector) Message(severity Severity, text string) {
	i.state.Set(fmt.Sprintf("message.%d.%s", i.messageSeq, severity), text)
	i.messageSeq++
}

// Metric records the metric value under name, replacing any prior value.
func (i *Inspector) Metric(name string, value SearchMetric) {
	i.state.Set("metric."+name, value)
}

// Len returns the number of accumulated entries.
func (i *Inspector) Len() int { return i.state.Len() }

// snapshot returns the accumulated state without clearing it. The writer
// clears the state with reset only after the chunk embedding it has been
// written successfully.
func (i *Inspector) snapshot() *Metadata { return i.state }

// reset clears the accumulated state. The message sequence counter is not
// reset: sequence numbers are shared across all chunks of the writer's
// lifetime.
func (i *Inspector) reset() {
	i.state = NewMetadata()
}
