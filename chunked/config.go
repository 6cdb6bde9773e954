// © Copyright 2025-2026, Streamweave - https://streamweave.dev
// SPDX-License-Identifier: Apache-2.0

package chunked

// Settings is the variant-specific configuration a command declares to the
// host during the getInfo exchange. Implementations are plain structs with
// defaults; they are validated once at construction, never introspected at
// runtime.
type Settings interface {
	// Type returns the fixed command-type tag ("streaming", "generating",
	// "eventing", or "reporting").
	Type() string
	// render produces the ordered configuration-response metadata. Keys
	// holding nil are dropped by the frame codec before serialization, so
	// optional settings may always be present here.
	render() *Metadata
}

// StreamingSettings configures a streaming (distributable transforming)
// command.
type StreamingSettings struct {
	// Distributed permits the host to run the command remotely on indexer
	// peers. Default true.
	Distributed bool
	// Generating marks a streaming command that produces events rather
	// than transforming them. Default false.
	Generating bool
	// MaxInputs caps the number of events per input chunk, or is absent.
	MaxInputs *int64
	// RequiredFields lists the fields this command needs from the
	// generating search, or is absent: no declared requirement. Setting it
	// enables selected-fields mode.
	RequiredFields []string
	// RunInPreview chooses whether the command runs while generating
	// preview results, or is absent for the host default.
	RunInPreview *bool
}

// DefaultStreamingSettings returns streaming settings with the protocol
// defaults.
func DefaultStreamingSettings() StreamingSettings {
	return StreamingSettings{Distributed: true}
}

func (s StreamingSettings) Type() string { return "streaming" }

func (s StreamingSettings) render() *Metadata {
	m := NewMetadata()
	m.Set(MetaType, s.Type())
	m.Set("distributed", s.Distributed)
	m.Set("generating", s.Generating)
	m.Set("maxinputs", optional(s.MaxInputs))
	if s.RequiredFields != nil {
		m.Set("required_fields", s.RequiredFields)
	} else {
		m.Set("required_fields", nil)
	}
	m.Set("run_in_preview", optional(s.RunInPreview))
	return m
}

// GeneratingSettings configures a generating command, which reads no input
// and must stand at the front of the pipeline.
type GeneratingSettings struct {
	// GeneratesTimeOrder declares that records are produced in time order.
	GeneratesTimeOrder bool
	// Streaming permits the host to distribute the command to indexers.
	Streaming bool
	// Local pins the command to the search head.
	Local bool
}

func (s GeneratingSettings) Type() string { return "generating" }

func (s GeneratingSettings) render() *Metadata {
	m := NewMetadata()
	m.Set(MetaType, s.Type())
	m.Set("generating", true)
	m.Set("generates_timeorder", s.GeneratesTimeOrder)
	m.Set("streaming", s.Streaming)
	m.Set("local", s.Local)
	return m
}

// EventingSettings configures an eventing command, which transforms records
// in the events pipeline and always runs on the search head.
type EventingSettings struct {
	// RequiredFields lists the fields this command needs, or is absent.
	RequiredFields []string
}

func (s EventingSettings) Type() string { return "eventing" }

func (s EventingSettings) render() *Metadata {
	m := NewMetadata()
	m.Set(MetaType, s.Type())
	if s.RequiredFields != nil {
		m.Set("required_fields", s.RequiredFields)
	} else {
		m.Set("required_fields", nil)
	}
	return m
}

// ReportingSettings configures a reporting command, whose reduce phase runs
// on the search head over the complete input.
type ReportingSettings struct {
	// RequiresPreop guarantees the map phase runs; when false the host may
	// skip it as an optimization.
	RequiresPreop bool
	// StreamingPreop is the map-phase search string dispatched to peers,
	// or empty when the command declares no map phase.
	StreamingPreop string
	// RunInPreview chooses whether the command runs while generating
	// preview results, or is absent for the host default.
	RunInPreview *bool
}

func (s ReportingSettings) Type() string { return "reporting" }

func (s ReportingSettings) render() *Metadata {
	m := NewMetadata()
	m.Set(MetaType, s.Type())
	m.Set("requires_preop", s.RequiresPreop)
	if s.StreamingPreop != "" {
		m.Set("streaming_preop", s.StreamingPreop)
	} else {
		m.Set("streaming_preop", nil)
	}
	m.Set("run_in_preview", optional(s.RunInPreview))
	return m
}

// optional lifts a *T into the metadata value space: nil stays nil and is
// dropped from the wire.
func optional[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
