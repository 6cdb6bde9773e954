// © Copyright 2025-2026, Streamweave - https://streamweave.dev
// SPDX-License-Identifier: Apache-2.0

// Command chunked-conformance-go speaks the chunked protocol on
// stdin/stdout as one of the reference commands, selected by name. It is
// launched as a subprocess by external conformance harnesses.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/streamweave/chunked-go/chunked"
	"github.com/streamweave/chunked-go/conformance"
)

func main() {
	command := pflag.String("command", "generatetext", "reference command to run: generatetext, filterkeep, sumreport, panic")
	logLevel := pflag.String("log-level", "info", "process log level: debug, info, warn, error")
	logJSON := pflag.Bool("log-json", false, "emit process logs as JSON")
	pflag.Parse()

	chunked.ConfigureLogging(chunked.LoggingOptions{Level: *logLevel, JSON: *logJSON})

	var cmd *chunked.Command
	switch *command {
	case "generatetext":
		cmd = conformance.GenerateText()
	case "filterkeep":
		cmd = conformance.FilterKeep()
	case "sumreport":
		cmd = conformance.SumReport()
	case "panic":
		cmd = conformance.Panic()
	default:
		fmt.Fprintf(os.Stderr, "unknown reference command %q\n", *command)
		os.Exit(2)
	}

	cmd.RunStdio()
}
