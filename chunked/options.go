// © Copyright 2025-2026, Streamweave - https://streamweave.dev
// SPDX-License-Identifier: Apache-2.0

package chunked

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ValidateFunc converts a raw option token value into a typed value, or
// reports why it is not acceptable.
type ValidateFunc func(raw string) (any, error)

// Option declares one command option. Options are set through name=value
// tokens of the handshake args list; a Required option that is never
// supplied fails configuration.
type Option struct {
	Name     string
	Default  any
	Required bool
	Validate ValidateFunc
}

// OptionSet holds a command's declared options and the values assigned to
// them during the handshake.
type OptionSet struct {
	order   []string
	options map[string]Option
	values  map[string]any
	set     map[string]bool
}

// NewOptionSet builds a set from declarations. Duplicate names are a
// registration bug and panic.
func NewOptionSet(options ...Option) *OptionSet {
	s := &OptionSet{
		options: make(map[string]Option, len(options)),
		values:  make(map[string]any),
		set:     make(map[string]bool),
	}
	for _, opt := range options {
		if _, dup := s.options[opt.Name]; dup {
			panic(fmt.Sprintf("chunked: option %q declared twice", opt.Name))
		}
		s.options[opt.Name] = opt
		s.order = append(s.order, opt.Name)
	}
	return s
}

// Set assigns the raw token value to the named option after validation.
// The returned error text is host-facing; the lifecycle buffers it rather
// than failing on the first bad token.
func (s *OptionSet) Set(name, raw string) error {
	opt, ok := s.options[name]
	if !ok {
		return fmt.Errorf("unrecognized option: %s=%s", name, raw)
	}
	value := any(raw)
	if opt.Validate != nil {
		v, err := opt.Validate(raw)
		if err != nil {
			return fmt.Errorf("illegal value: %s=%s: %v", name, raw, err)
		}
		value = v
	}
	s.values[name] = value
	s.set[name] = true
	return nil
}

// Get returns the assigned value, or the declared default when unset.
func (s *OptionSet) Get(name string) any {
	if s.set[name] {
		return s.values[name]
	}
	return s.options[name].Default
}

// IsSet reports whether the option was assigned during the handshake.
func (s *OptionSet) IsSet(name string) bool { return s.set[name] }

// GetString returns the option value as a string.
func (s *OptionSet) GetString(name string) string {
	v, _ := s.Get(name).(string)
	return v
}

// GetBool returns the option value as a bool.
func (s *OptionSet) GetBool(name string) bool {
	v, _ := s.Get(name).(bool)
	return v
}

// GetInt returns the option value as an int64.
func (s *OptionSet) GetInt(name string) int64 {
	v, _ := s.Get(name).(int64)
	return v
}

// GetFloat returns the option value as a float64.
func (s *OptionSet) GetFloat(name string) float64 {
	v, _ := s.Get(name).(float64)
	return v
}

// Missing returns the names of required options never supplied, in
// declaration order.
func (s *OptionSet) Missing() []string {
	var missing []string
	for _, name := range s.order {
		if s.options[name].Required && !s.set[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

// Reset clears every assignment back to defaults.
func (s *OptionSet) Reset() {
	s.values = make(map[string]any)
	s.set = make(map[string]bool)
}

// --- Validators ---

// Boolean validates t/f style boolean tokens.
func Boolean() ValidateFunc {
	return func(raw string) (any, error) {
		switch strings.ToLower(raw) {
		case "1", "t", "true", "y", "yes":
			return true, nil
		case "0", "f", "false", "n", "no":
			return false, nil
		}
		return nil, fmt.Errorf("expected a boolean, got %q", raw)
	}
}

// Integer validates whole-number tokens.
func Integer() ValidateFunc {
	return func(raw string) (any, error) {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("expected an integer, got %q", raw)
		}
		return v, nil
	}
}

// IntegerBetween validates whole-number tokens within [lo, hi].
func IntegerBetween(lo, hi int64) ValidateFunc {
	inner := Integer()
	return func(raw string) (any, error) {
		v, err := inner(raw)
		if err != nil {
			return nil, err
		}
		n := v.(int64)
		if n < lo || n > hi {
			return nil, fmt.Errorf("expected an integer in [%d, %d], got %d", lo, hi, n)
		}
		return n, nil
	}
}

// Float validates numeric tokens.
func Float() ValidateFunc {
	return func(raw string) (any, error) {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("expected a number, got %q", raw)
		}
		return v, nil
	}
}

var fieldnamePattern = regexp.MustCompile(`^[_.a-zA-Z-][_.a-zA-Z0-9-]*$`)

// Fieldname validates field-name tokens.
func Fieldname() ValidateFunc {
	return func(raw string) (any, error) {
		if !fieldnamePattern.MatchString(raw) {
			return nil, fmt.Errorf("expected a field name, got %q", raw)
		}
		return raw, nil
	}
}

// OneOf validates membership in a fixed value set.
func OneOf(values ...string) ValidateFunc {
	return func(raw string) (any, error) {
		for _, v := range values {
			if raw == v {
				return raw, nil
			}
		}
		return nil, fmt.Errorf("expected one of %s, got %q", strings.Join(values, ", "), raw)
	}
}

// Duration validates Go duration tokens, e.g. "30s" or "5m".
func Duration() ValidateFunc {
	return func(raw string) (any, error) {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("expected a duration, got %q", raw)
		}
		return d, nil
	}
}
