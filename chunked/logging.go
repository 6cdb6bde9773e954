// © Copyright 2025-2026, Streamweave - https://streamweave.dev
// SPDX-License-Identifier: Apache-2.0

package chunked

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// LoggingOptions controls the process logger. All output goes to stderr:
// stdout belongs to the protocol.
type LoggingOptions struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

// ConfigureLogging installs the default process logger.
func ConfigureLogging(opts LoggingOptions) {
	cfg := &slog.HandlerOptions{Level: parseLevel(opts.Level)}
	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(os.Stderr, cfg)
	} else {
		h = slog.NewTextHandler(os.Stderr, cfg)
	}
	slog.SetDefault(slog.New(h))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadLoggingOptions reads <appRoot>/<command>.logging.yaml. A missing file
// yields the zero options, not an error.
func LoadLoggingOptions(appRoot, command string) (LoggingOptions, error) {
	path := filepath.Join(appRoot, command+".logging.yaml")
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return LoggingOptions{}, nil
		}
		return LoggingOptions{}, err
	}
	var opts LoggingOptions
	if err := k.Unmarshal("", &opts); err != nil {
		return LoggingOptions{}, err
	}
	return opts, nil
}
