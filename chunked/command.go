// © Copyright 2025-2026, Streamweave - https://streamweave.dev
// SPDX-License-Identifier: Apache-2.0

package chunked

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
)

// Variant identifies how a command participates in the search pipeline.
type Variant string

const (
	// VariantGenerating identifies a command that produces records without
	// reading any input.
	VariantGenerating Variant = "generating"
	// VariantStreaming identifies a command that transforms records one
	// input chunk at a time.
	VariantStreaming Variant = "streaming"
	// VariantEventing identifies a command that transforms events one input
	// chunk at a time, running at the search head.
	VariantEventing Variant = "eventing"
	// VariantReporting identifies a command that reduces the full input to a
	// reporting data structure, optionally preceded by a distributed map
	// phase.
	VariantReporting Variant = "reporting"
)

// phaseMap is the argument token the host passes when it dispatches the
// distributed map phase of a reporting command.
const phaseMap = "__map__"

// GenerateFunc produces the output records of a generating command.
type GenerateFunc func(ctx context.Context, inv *Invocation) iter.Seq[*Record]

// TransformFunc maps a sequence of input records to a sequence of output
// records. Streaming and eventing commands receive one call per input
// chunk; a reporting reduce receives a single call whose input spans every
// input chunk.
type TransformFunc func(ctx context.Context, inv *Invocation, records iter.Seq[*Record]) iter.Seq[*Record]

// Invocation carries the per-run state handed to variant functions and the
// Prepare hook: the handshake metadata, the parsed fieldnames and options,
// and the settings that will be rendered into the configuration chunk.
type Invocation struct {
	// Command is the command name.
	Command string
	// Variant is the command's pipeline participation mode.
	Variant Variant
	// InvocationID is a generated identifier for this run, carried in logs
	// and hook info.
	InvocationID string
	// Metadata is the complete handshake chunk metadata.
	Metadata *Metadata
	// Fieldnames holds the bare handshake argument tokens, in order.
	Fieldnames []string
	// Options is the command's option set with handshake values applied.
	Options *OptionSet
	// Settings will be rendered into the configuration chunk. Prepare may
	// replace it before the chunk is written.
	Settings Settings

	writer   *RecordWriter
	logger   *slog.Logger
	finished bool

	infoOnce sync.Once
	info     *SearchResultsInfo
	infoErr  error
}

// Finish signals that no further input is wanted. The chunk written for the
// current iteration carries the terminal flag and no further input is read.
func (inv *Invocation) Finish() { inv.finished = true }

// Finished reports whether Finish has been called.
func (inv *Invocation) Finished() bool { return inv.finished }

// Logger returns the invocation-scoped process logger.
func (inv *Invocation) Logger() *slog.Logger { return inv.logger }

// WriteMessage records a host-facing message in the pending inspector state.
func (inv *Invocation) WriteMessage(severity Severity, format string, args ...any) {
	inv.writer.WriteMessage(severity, format, args...)
}

// WriteMetric records a named metric in the pending inspector state.
func (inv *Invocation) WriteMetric(name string, value SearchMetric) {
	inv.writer.WriteMetric(name, value)
}

// SearchResultsInfo lazily loads the info file named by the handshake
// metadata. It returns os.ErrNotExist when the host did not pass a path.
func (inv *Invocation) SearchResultsInfo() (*SearchResultsInfo, error) {
	inv.infoOnce.Do(func() {
		path := inv.Metadata.GetString(MetaInfoPath)
		if path == "" {
			inv.infoErr = os.ErrNotExist
			return
		}
		inv.info, inv.infoErr = LoadSearchResultsInfo(path)
	})
	return inv.info, inv.infoErr
}

// Command runs one external search command invocation over a chunked
// reader/writer pair: handshake, configuration, then the variant's
// execution loop.
type Command struct {
	name     string
	variant  Variant
	options  *OptionSet
	settings Settings
	prepare  func(inv *Invocation) error

	generate GenerateFunc
	stream   TransformFunc
	reduce   TransformFunc
	mapFn    TransformFunc
	mapSet   Settings

	logger          *slog.Logger
	hook            ExecutionHook
	maxRowsPerChunk int
}

func newCommand(name string, variant Variant, settings Settings) *Command {
	return &Command{
		name:            name,
		variant:         variant,
		options:         NewOptionSet(),
		settings:        settings,
		maxRowsPerChunk: DefaultMaxRowsPerChunk,
	}
}

// NewGeneratingCommand creates a command that produces records without
// reading input.
func NewGeneratingCommand(name string, fn GenerateFunc) *Command {
	c := newCommand(name, VariantGenerating, GeneratingSettings{})
	c.generate = fn
	return c
}

// NewStreamingCommand creates a command that transforms records one input
// chunk at a time.
func NewStreamingCommand(name string, fn TransformFunc) *Command {
	c := newCommand(name, VariantStreaming, DefaultStreamingSettings())
	c.stream = fn
	return c
}

// NewEventingCommand creates a command that transforms events one input
// chunk at a time.
func NewEventingCommand(name string, fn TransformFunc) *Command {
	c := newCommand(name, VariantEventing, EventingSettings{})
	c.stream = fn
	return c
}

// NewReportingCommand creates a command that reduces the full input to a
// reporting data structure.
func NewReportingCommand(name string, reduce TransformFunc) *Command {
	c := newCommand(name, VariantReporting, ReportingSettings{})
	c.reduce = reduce
	return c
}

// SetOptions declares the options the command accepts on its search line.
func (c *Command) SetOptions(options *OptionSet) { c.options = options }

// SetSettings replaces the settings rendered into the configuration chunk.
// The settings' type tag must match the command's variant.
func (c *Command) SetSettings(settings Settings) {
	if Variant(settings.Type()) != c.variant {
		panic(fmt.Sprintf("chunked: %s command cannot carry %s settings", c.variant, settings.Type()))
	}
	c.settings = settings
}

// SetPrepare registers a hook that runs after the handshake arguments are
// applied and before the configuration chunk is written. It may examine the
// invocation and replace inv.Settings.
func (c *Command) SetPrepare(fn func(inv *Invocation) error) { c.prepare = fn }

// SetMap registers the distributed map phase of a reporting command,
// dispatched when the host passes the map phase argument. The optional
// settings default to distributed streaming.
func (c *Command) SetMap(fn TransformFunc, settings Settings) {
	if c.variant != VariantReporting {
		panic(fmt.Sprintf("chunked: %s command cannot carry a map phase", c.variant))
	}
	c.mapFn = fn
	c.mapSet = settings
}

// SetLogger sets the process logger. The default is slog.Default.
func (c *Command) SetLogger(logger *slog.Logger) { c.logger = logger }

// SetExecutionHook registers a hook that is called around each invocation.
func (c *Command) SetExecutionHook(hook ExecutionHook) { c.hook = hook }

// SetMaxRowsPerChunk sets the buffered-row threshold that triggers partial
// output chunks.
func (c *Command) SetMaxRowsPerChunk(n int) { c.maxRowsPerChunk = n }

// RunStdio runs the command over stdin/stdout and exits non-zero on error.
// If stdin or stdout is connected to a terminal, a warning is printed to
// stderr.
func (c *Command) RunStdio() {
	// Ignore SIGPIPE so writes to a closed host pipe surface as errors
	// instead of killing the process.
	signal.Ignore(syscall.SIGPIPE)

	if isTerminal(os.Stdin) || isTerminal(os.Stdout) {
		fmt.Fprintln(os.Stderr,
			"WARNING: This process speaks the chunked search protocol on stdin/stdout "+
				"and is not intended to be run interactively.\n"+
				"It should be launched as a search-time subprocess by the host.")
	}
	if err := c.Run(os.Stdin, os.Stdout); err != nil {
		os.Exit(1)
	}
}

// isTerminal reports whether f is connected to a terminal.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// Run runs one complete invocation over the given reader/writer pair.
func (c *Command) Run(in io.Reader, out io.Writer) error {
	return c.RunContext(context.Background(), in, out)
}

// RunContext runs one complete invocation with a context.
func (c *Command) RunContext(ctx context.Context, in io.Reader, out io.Writer) error {
	r := bufio.NewReader(in)

	handshake, err := ReadChunk(r)
	if err != nil {
		if err == io.EOF {
			err = &ProtocolError{Message: "input closed before handshake"}
		}
		c.baseLogger().Error("handshake read failed", "command", c.name, "err", err)
		return err
	}
	if action := handshake.Metadata.GetString(MetaAction); action != "getinfo" {
		err := &ProtocolError{Message: fmt.Sprintf("expected getinfo handshake, got action %q", action)}
		c.baseLogger().Error("handshake rejected", "command", c.name, "err", err)
		return err
	}

	inv := &Invocation{
		Command:      c.name,
		Variant:      c.variant,
		InvocationID: uuid.NewString(),
		Metadata:     handshake.Metadata,
		Options:      c.options,
		Settings:     c.settings,
	}
	inv.logger = c.baseLogger().With("command", c.name, "invocation", inv.InvocationID)

	confErrs, mapPhase := c.applyArguments(inv, handshake.Metadata.GetList(MetaArgs))
	if mapPhase {
		inv.Settings = c.mapSet
		if inv.Settings == nil {
			inv.Settings = DefaultStreamingSettings()
		}
	}

	writer := NewRecordWriter(out, c.maxRowsPerChunk)
	stats := &RunStatistics{}
	writer.setStatistics(stats)
	inv.writer = writer

	if err := c.configure(inv, writer, confErrs); err != nil {
		return err
	}

	info := RunInfo{
		Command:      c.name,
		Variant:      string(c.variant),
		InvocationID: inv.InvocationID,
		Fieldnames:   inv.Fieldnames,
	}

	var hookToken HookToken
	var hookActive bool
	if c.hook != nil {
		func() {
			defer func() {
				if rv := recover(); rv != nil {
					inv.logger.Error("execution hook start panic", "err", rv)
				}
			}()
			var hookCtx context.Context
			hookCtx, hookToken = c.hook.OnRunStart(ctx, info)
			if hookCtx != nil {
				ctx = hookCtx
			}
			hookActive = true
		}()
	}

	runErr := c.execute(ctx, r, inv, mapPhase, stats)

	if hookActive {
		func() {
			defer func() {
				if rv := recover(); rv != nil {
					inv.logger.Error("execution hook end panic", "err", rv)
				}
			}()
			c.hook.OnRunEnd(ctx, hookToken, info, stats, runErr)
		}()
	}

	return runErr
}

func (c *Command) baseLogger() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.Default()
}

// applyArguments processes every handshake argument token before any
// decision is made: bare tokens become fieldnames, name=value tokens become
// option assignments, and failures are buffered rather than aborting early.
// It also reports whether the host dispatched the map phase of a reporting
// command.
func (c *Command) applyArguments(inv *Invocation, args []any) (confErrs []string, mapPhase bool) {
	c.options.Reset()
	for _, arg := range args {
		token, ok := arg.(string)
		if !ok {
			confErrs = append(confErrs, fmt.Sprintf("unexpected argument: %v", arg))
			continue
		}
		if token == phaseMap && c.variant == VariantReporting {
			mapPhase = true
			continue
		}
		name, value, isOption := strings.Cut(token, "=")
		if !isOption {
			inv.Fieldnames = append(inv.Fieldnames, token)
			continue
		}
		if err := c.options.Set(name, value); err != nil {
			confErrs = append(confErrs, err.Error())
		}
	}

	switch missing := c.options.Missing(); {
	case len(missing) == 1:
		confErrs = append(confErrs, fmt.Sprintf("a value for %q is required", missing[0]))
	case len(missing) > 1:
		confErrs = append(confErrs, "values for these options are required: "+strings.Join(missing, ", "))
	}
	return confErrs, mapPhase
}

// configure runs the Prepare hook and writes the configuration chunk, or
// reports every buffered handshake failure at once without writing one.
func (c *Command) configure(inv *Invocation, writer *RecordWriter, confErrs []string) error {
	if len(confErrs) == 0 && c.prepare != nil {
		if err := c.prepare(inv); err != nil {
			confErrs = append(confErrs, err.Error())
		}
	}
	if len(confErrs) > 0 {
		for _, msg := range confErrs {
			inv.logger.Error("configuration rejected", "err", msg)
		}
		return &ConfigurationError{Messages: confErrs}
	}
	return writer.WriteConfiguration(inv.Settings.render())
}

// execute dispatches the variant's execution loop with fault recovery:
// a panic anywhere in the variant function is reported as a single ERROR
// message carrying the originating source location, and the invocation
// fails.
func (c *Command) execute(ctx context.Context, r *bufio.Reader, inv *Invocation, mapPhase bool, stats *RunStatistics) (err error) {
	defer func() {
		if rv := recover(); rv != nil {
			fault := newTransformFault(rv, 2)
			inv.logger.Error("transform fault", "err", fault)
			if !inv.writer.Closed() {
				inv.writer.WriteMessage(SeverityError, "%s", fault.Error())
				if flushErr := inv.writer.Flush(true); flushErr != nil {
					inv.logger.Error("fault report write failed", "err", flushErr)
				}
			}
			err = fault
		}
	}()

	switch {
	case c.variant == VariantGenerating:
		return c.executeGenerating(ctx, r, inv)
	case mapPhase:
		if c.mapFn == nil {
			return &ProtocolError{Message: "map phase requested but no map is registered"}
		}
		return c.executeStreaming(ctx, r, inv, c.mapFn, stats)
	case c.variant == VariantStreaming || c.variant == VariantEventing:
		return c.executeStreaming(ctx, r, inv, c.stream, stats)
	default:
		return c.executeReporting(ctx, r, inv, stats)
	}
}

// executeGenerating runs the generator exactly once and closes the output
// with the terminal flag. The execute request is consumed for lockstep but
// its body is never read.
func (c *Command) executeGenerating(ctx context.Context, r *bufio.Reader, inv *Invocation) error {
	if _, err := ReadChunk(r); err != nil && err != io.EOF {
		return err
	}
	for rec := range c.generate(ctx, inv) {
		if err := inv.writer.WriteRecord(rec); err != nil {
			return err
		}
	}
	return inv.writer.Flush(true)
}

// executeStreaming is the per-chunk lockstep loop shared by streaming and
// eventing commands and the reporting map phase: decode one input chunk,
// transform its records, write the response. A clean EOF terminates the
// invocation; the terminal input flag or Invocation.Finish closes the
// output.
func (c *Command) executeStreaming(ctx context.Context, r *bufio.Reader, inv *Invocation, fn TransformFunc, stats *RunStatistics) error {
	for {
		chunk, err := ReadChunk(r)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		stats.RecordInput(int64(len(chunk.Body)))

		reader := NewRecordReader(bytes.NewReader(chunk.Body))
		for rec := range fn(ctx, inv, countRecords(reader.All(), stats)) {
			if err := inv.writer.WriteRecord(rec); err != nil {
				return err
			}
		}
		if err := reader.Err(); err != nil {
			return &ProtocolError{Message: "decoding input records", Err: err}
		}

		done := chunk.Metadata.GetBool(MetaFinished) || inv.finished
		if err := inv.writer.Flush(done); err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// executeReporting feeds the reduce function a single record sequence
// spanning every input chunk. Lockstep is preserved by answering each
// non-final input chunk with an empty response; the reduced output follows
// the final one.
func (c *Command) executeReporting(ctx context.Context, r *bufio.Reader, inv *Invocation, stats *RunStatistics) error {
	var inputErr error
	input := func(yield func(*Record) bool) {
		for {
			chunk, err := ReadChunk(r)
			if err != nil {
				if err != io.EOF {
					inputErr = err
				}
				return
			}
			stats.RecordInput(int64(len(chunk.Body)))

			reader := NewRecordReader(bytes.NewReader(chunk.Body))
			for rec := range countRecords(reader.All(), stats) {
				if !yield(rec) {
					return
				}
			}
			if err := reader.Err(); err != nil {
				inputErr = &ProtocolError{Message: "decoding input records", Err: err}
				return
			}
			if chunk.Metadata.GetBool(MetaFinished) || inv.finished {
				return
			}
			if inputErr = inv.writer.Flush(false); inputErr != nil {
				return
			}
		}
	}

	for rec := range c.reduce(ctx, inv, input) {
		if err := inv.writer.WriteRecord(rec); err != nil {
			return err
		}
	}
	if inputErr != nil {
		return inputErr
	}
	return inv.writer.Flush(true)
}

// countRecords counts consumed input rows without altering the sequence.
func countRecords(records iter.Seq[*Record], stats *RunStatistics) iter.Seq[*Record] {
	return func(yield func(*Record) bool) {
		for rec := range records {
			stats.AddInputRows(1)
			if !yield(rec) {
				return
			}
		}
	}
}
