// © Copyright 2025-2026, Streamweave - https://streamweave.dev
// SPDX-License-Identifier: Apache-2.0

package chunked

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// SearchResultsInfo exposes the side-channel key/value info file the host
// writes alongside an invocation. It populates derived properties only; the
// lifecycle itself never depends on it. The host must be configured to pass
// the file's location, which then arrives as the infoPath handshake
// metadata key.
type SearchResultsInfo struct {
	properties *Metadata
}

// LoadSearchResultsInfo reads the two-row CSV info file at path. A file
// with a .gz suffix is decompressed transparently. Field names are
// normalized (a leading underscore is stripped, dots become underscores)
// and values are converted: empty cells to nil, integral numbers to int64,
// other numbers to float64.
func LoadSearchResultsInfo(path string) (*SearchResultsInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("decompressing info file %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	names, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading info file header: %w", err)
	}
	values, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading info file values: %w", err)
	}
	if len(values) < len(names) {
		return nil, fmt.Errorf("info file has %d values for %d fields", len(values), len(names))
	}

	properties := NewMetadata()
	for i, name := range names {
		properties.Set(normalizeInfoField(name), convertInfoValue(name, values[i]))
	}
	return &SearchResultsInfo{properties: properties}, nil
}

// Property returns the converted value of the normalized field name, or nil.
func (info *SearchResultsInfo) Property(name string) any {
	v, _ := info.properties.Get(name)
	return v
}

// StringProperty returns the field as a string, or "".
func (info *SearchResultsInfo) StringProperty(name string) string {
	s, _ := info.Property(name).(string)
	return s
}

// IntProperty returns the field as an int64, or 0.
func (info *SearchResultsInfo) IntProperty(name string) int64 {
	n, _ := info.Property(name).(int64)
	return n
}

// CountMap parses the countMap field: a ;-delimited alternating list of
// names and counts.
func (info *SearchResultsInfo) CountMap() map[string]int64 {
	raw, _ := info.Property("countMap").(string)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ";")
	counts := make(map[string]int64, len(parts)/2)
	for i := 0; i+1 < len(parts); i += 2 {
		if parts[i] == "" {
			continue
		}
		n, err := strconv.ParseInt(parts[i+1], 10, 64)
		if err != nil {
			continue
		}
		counts[parts[i]] = n
	}
	return counts
}

func normalizeInfoField(name string) string {
	name = strings.TrimPrefix(name, "_")
	return strings.ReplaceAll(name, ".", "_")
}

// convertInfoValue keeps countMap raw for CountMap's micro-parse, turns
// empty cells into nil, and converts numeric cells, keeping integral values
// as int64.
func convertInfoValue(name, value string) any {
	if name == "countMap" {
		return value
	}
	if value == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	}
	return value
}
