// © Copyright 2025-2026, Streamweave - https://streamweave.dev
// SPDX-License-Identifier: Apache-2.0

package conformance

import (
	"context"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/streamweave/chunked-go/chunked"
)

// GenerateText returns the generatetext reference command: a generating
// command producing count records whose _raw field repeats the given text.
func GenerateText() *chunked.Command {
	cmd := chunked.NewGeneratingCommand("generatetext",
		func(_ context.Context, inv *chunked.Invocation) iter.Seq[*chunked.Record] {
			count := inv.Options.GetInt("count")
			text := inv.Options.GetString("text")
			return func(yield func(*chunked.Record) bool) {
				for i := int64(1); i <= count; i++ {
					rec := chunked.NewRecord().
						Set("_serial", i).
						Set("_time", time.Now().Unix()).
						Set("_raw", strings.TrimSpace(strings.Repeat(text+" ", int(i))))
					if !yield(rec) {
						return
					}
				}
			}
		})
	cmd.SetOptions(chunked.NewOptionSet(
		chunked.Option{Name: "count", Required: true, Validate: chunked.IntegerBetween(1, 1<<31)},
		chunked.Option{Name: "text", Required: true},
	))
	return cmd
}

// FilterKeep returns the filterkeep reference command: a streaming command
// that keeps only the records whose named field contains the given
// substring.
func FilterKeep() *chunked.Command {
	cmd := chunked.NewStreamingCommand("filterkeep",
		func(_ context.Context, inv *chunked.Invocation, records iter.Seq[*chunked.Record]) iter.Seq[*chunked.Record] {
			field := inv.Options.GetString("field")
			contains := inv.Options.GetString("contains")
			return func(yield func(*chunked.Record) bool) {
				for rec := range records {
					v, _ := rec.Get(field)
					s, _ := v.(string)
					if !strings.Contains(s, contains) {
						continue
					}
					if !yield(rec) {
						return
					}
				}
			}
		})
	cmd.SetOptions(chunked.NewOptionSet(
		chunked.Option{Name: "field", Required: true, Validate: chunked.Fieldname()},
		chunked.Option{Name: "contains", Required: true},
	))
	return cmd
}

// SumReport returns the sumreport reference command: a reporting command
// that sums its argument fields across the whole input, with a map phase
// that pre-aggregates each input chunk.
func SumReport() *chunked.Command {
	cmd := chunked.NewReportingCommand("sumreport", sumRecords)
	cmd.SetMap(sumRecords, nil)
	return cmd
}

// sumRecords serves as both phases of sumreport: sums are associative, so
// reducing the map phase's per-chunk sums equals summing the raw input.
func sumRecords(_ context.Context, inv *chunked.Invocation, records iter.Seq[*chunked.Record]) iter.Seq[*chunked.Record] {
	return func(yield func(*chunked.Record) bool) {
		totals := make(map[string]float64, len(inv.Fieldnames))
		for rec := range records {
			for _, field := range inv.Fieldnames {
				v, _ := rec.Get(field)
				if s, ok := v.(string); ok {
					totals[field] += parseFloat(s)
				}
			}
		}
		out := chunked.NewRecord()
		for _, field := range inv.Fieldnames {
			out.Set(field, totals[field])
		}
		yield(out)
	}
}

// Panic returns the panic reference command: a streaming command that
// fails partway through its first chunk, for exercising fault reporting.
func Panic() *chunked.Command {
	cmd := chunked.NewStreamingCommand("panic",
		func(_ context.Context, inv *chunked.Invocation, records iter.Seq[*chunked.Record]) iter.Seq[*chunked.Record] {
			return func(yield func(*chunked.Record) bool) {
				for range records {
					panic(inv.Options.GetString("message"))
				}
			}
		})
	cmd.SetOptions(chunked.NewOptionSet(
		chunked.Option{Name: "message", Default: "boom"},
	))
	return cmd
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}
