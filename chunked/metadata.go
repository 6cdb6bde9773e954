package chunked

import (
	"bytes"
	"fmt"
	"strings"

	gojson "github.com/goccy/go-json"
)

// Well-known metadata keys used in the chunked wire protocol. These appear in
// the JSON metadata segment of a chunk.
const (
	MetaAction    = "action"
	MetaArgs      = "args"
	MetaFinished  = "finished"
	MetaPartial   = "partial"
	MetaInspector = "inspector"
	MetaType      = "type"
	MetaPreview   = "preview"
	MetaInfoPath  = "infoPath"

	// ProtocolVersion is the version tag carried in every chunk header.
	ProtocolVersion = "1.0"
)

// Metadata is an ordered string-keyed mapping carried in the metadata segment
// of a chunk. Values are one of: string, int64, float64, bool, nil,
// *Metadata (nested object), or []any (sequence). Key insertion order is
// preserved through encode and decode, and integers are never silently
// widened to floats.
type Metadata struct {
	keys   []string
	values map[string]any
}

// NewMetadata creates an empty ordered metadata mapping.
func NewMetadata() *Metadata {
	return &Metadata{values: make(map[string]any)}
}

// Set inserts or replaces the value under key. A new key is appended after
// all existing keys; replacing a value keeps the key's original position.
func (m *Metadata) Set(key string, value any) *Metadata {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
	return m
}

// Get returns the value under key and whether it is present.
func (m *Metadata) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Delete removes key, preserving the order of the remaining keys.
func (m *Metadata) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of keys.
func (m *Metadata) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order. The slice is shared; callers
// must not modify it.
func (m *Metadata) Keys() []string {
	if m == nil {
		return nil
	}
	return m.keys
}

// GetString returns the string value under key, or "" if absent or not a
// string.
func (m *Metadata) GetString(key string) string {
	if m == nil {
		return ""
	}
	s, _ := m.values[key].(string)
	return s
}

// GetBool returns the bool value under key, or false if absent or not a bool.
func (m *Metadata) GetBool(key string) bool {
	if m == nil {
		return false
	}
	b, _ := m.values[key].(bool)
	return b
}

// GetList returns the sequence value under key, or nil.
func (m *Metadata) GetList(key string) []any {
	if m == nil {
		return nil
	}
	l, _ := m.values[key].([]any)
	return l
}

// Encode serializes the metadata as compact JSON, reproducing the in-memory
// key order. Nil receivers encode to zero bytes.
func (m *Metadata) Encode() ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := encodeValue(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case *Metadata:
		buf.WriteByte('{')
		for i, k := range val.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := gojson.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := encodeValue(buf, val.values[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case []string:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		// Scalars and anything providing its own MarshalJSON, such as
		// SearchMetric.
		data, err := gojson.Marshal(val)
		if err != nil {
			return fmt.Errorf("encoding metadata value %v: %w", val, err)
		}
		buf.Write(data)
	}
	return nil
}

// DecodeMetadata parses one JSON object into an ordered metadata tree.
// Object key order is preserved, and numeric literals keep their wire form:
// a value written as 5 decodes as int64, 5.0 as float64. Zero bytes decode
// to nil.
func DecodeMetadata(data []byte) (*Metadata, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dec := gojson.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, &ProtocolError{Message: "decoding chunk metadata", Err: err}
	}
	m, ok := v.(*Metadata)
	if !ok {
		return nil, &ProtocolError{Message: fmt.Sprintf("chunk metadata is %T, expected an object", v)}
	}
	return m, nil
}

func decodeValue(dec *gojson.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *gojson.Decoder, tok gojson.Token) (any, error) {
	switch t := tok.(type) {
	case gojson.Delim:
		switch t {
		case '{':
			obj := NewMetadata()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is %T, expected string", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, val)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return obj, nil
		case '[':
			var seq []any
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				seq = append(seq, item)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			if seq == nil {
				seq = []any{}
			}
			return seq, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %q", t)
	case gojson.Number:
		return decodeNumber(t)
	default:
		// string, bool, or nil
		return t, nil
	}
}

// decodeNumber keeps the integer/float distinction of the wire form.
func decodeNumber(n gojson.Number) (any, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
	}
	return n.Float64()
}
