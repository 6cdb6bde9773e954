package chunked

import (
	"fmt"
	"runtime"
	"strings"
)

// Sentinels for use with errors.Is to check whether any error in a chain is
// one of the protocol error kinds.
var (
	ErrProtocol      = &ProtocolError{}
	ErrConfiguration = &ConfigurationError{}
	ErrUsage         = &UsageError{}
	ErrTransform     = &TransformFault{}
)

// ProtocolError reports a malformed or truncated frame on the transport.
// It is unrecoverable: the process exits non-zero without attempting
// further writes on the stream.
type ProtocolError struct {
	Message string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %v", e.Message, e.Err)
	}
	return "protocol: " + e.Message
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Is supports errors.Is by matching any *ProtocolError target.
func (e *ProtocolError) Is(target error) bool {
	_, ok := target.(*ProtocolError)
	return ok
}

// ConfigurationError aggregates the option failures collected during the
// handshake exchange. Failures are buffered, not raised one at a time, so
// that a command invocation with several mistakes reports all of them.
type ConfigurationError struct {
	Messages []string
}

func (e *ConfigurationError) Error() string {
	if len(e.Messages) == 0 {
		return "configuration: invalid arguments"
	}
	return "configuration: " + strings.Join(e.Messages, "; ")
}

// Is supports errors.Is by matching any *ConfigurationError target.
func (e *ConfigurationError) Is(target error) bool {
	_, ok := target.(*ConfigurationError)
	return ok
}

// UsageError reports a programming-contract violation, such as writing a
// record through a writer that has performed its terminal flush. It always
// fails loudly and is never swallowed.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string { return "usage: " + e.Message }

// Is supports errors.Is by matching any *UsageError target.
func (e *UsageError) Is(target error) bool {
	_, ok := target.(*UsageError)
	return ok
}

// SourceFrame is a single frame of the call stack captured when a transform
// fault is recovered.
type SourceFrame struct {
	File     string
	Line     int
	Function string
}

// TransformFault wraps an unhandled fault raised by variant-specific logic
// during the execution loop. It is recovered at the lifecycle boundary and
// reported to the host as a single error message carrying the originating
// source location.
type TransformFault struct {
	Err    error
	Frames []SourceFrame
}

func (e *TransformFault) Error() string {
	if len(e.Frames) > 0 {
		f := e.Frames[0]
		return fmt.Sprintf("%v at %q, line %d", e.Err, f.File, f.Line)
	}
	return e.Err.Error()
}

func (e *TransformFault) Unwrap() error { return e.Err }

// Is supports errors.Is by matching any *TransformFault target.
func (e *TransformFault) Is(target error) bool {
	_, ok := target.(*TransformFault)
	return ok
}

// newTransformFault builds a TransformFault from a recovered panic value,
// capturing up to five frames of the originating call stack. skip counts
// additional callers of newTransformFault to omit, as for runtime.Callers.
func newTransformFault(rv any, skip int) *TransformFault {
	err, ok := rv.(error)
	if !ok {
		err = fmt.Errorf("%v", rv)
	}

	var frames []SourceFrame
	pcs := make([]uintptr, 16)
	n := runtime.Callers(skip+2, pcs)
	if n > 0 {
		callerFrames := runtime.CallersFrames(pcs[:n])
		for len(frames) < 5 {
			frame, more := callerFrames.Next()
			// Skip runtime internals so the first frame names user code.
			if !strings.HasPrefix(frame.Function, "runtime.") {
				frames = append(frames, SourceFrame{
					File:     frame.File,
					Line:     frame.Line,
					Function: frame.Function,
				})
			}
			if !more {
				break
			}
		}
	}

	return &TransformFault{Err: err, Frames: frames}
}
