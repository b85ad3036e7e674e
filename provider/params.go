package provider

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// reserved are the characters separating parameters in the canonical form.
// Keys may not contain them; values escape them with a backslash.
const reserved = `:-\`

var valueEscaper = strings.NewReplacer(`\`, `\\`, `:`, `\:`, `-`, `\-`)

// Params is an opaque key/value configuration for building or searching an index.
// The zero value is an empty parameter set.
type Params struct {
	values map[string]string
}

// NewParams copies values into a new Params. Keys are trimmed and must be non-empty.
func NewParams(values map[string]string) (Params, error) {
	out := make(map[string]string, len(values))
	for k, v := range values {
		key := strings.TrimSpace(k)
		if key == "" {
			return Params{}, fmt.Errorf("%w: empty parameter name", ErrInvalidParams)
		}
		if strings.ContainsAny(key, reserved) {
			return Params{}, fmt.Errorf("%w: parameter name %q contains a reserved character", ErrInvalidParams, key)
		}
		out[key] = strings.TrimSpace(v)
	}
	return Params{values: out}, nil
}

// ParseParams parses the canonical "key:value-key:value" form produced by String.
// Reserved characters inside values are backslash-escaped ("seed:\-1").
// The empty string yields an empty Params.
func ParseParams(s string) (Params, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Params{}, nil
	}
	values := make(map[string]string)
	for _, part := range splitUnescaped(s, '-') {
		k, raw, ok := strings.Cut(part, ":")
		if !ok || k == "" {
			return Params{}, fmt.Errorf("%w: unexpected parameter format %q", ErrInvalidParams, part)
		}
		v, err := unescapeValue(raw)
		if err != nil {
			return Params{}, fmt.Errorf("%w: parameter %q: %w", ErrInvalidParams, k, err)
		}
		if _, dup := values[k]; dup {
			return Params{}, fmt.Errorf("%w: duplicate parameter %q", ErrInvalidParams, k)
		}
		values[k] = v
	}
	return NewParams(values)
}

// splitUnescaped splits s at every sep not preceded by a backslash.
// Escape sequences are kept for unescapeValue.
func splitUnescaped(s string, sep byte) []string {
	var (
		parts   []string
		start   int
		escaped bool
	)
	for i := 0; i < len(s); i++ {
		switch {
		case escaped:
			escaped = false
		case s[i] == '\\':
			escaped = true
		case s[i] == sep:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

func unescapeValue(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 == len(s) || !strings.ContainsRune(reserved, rune(s[i+1])) {
			return "", fmt.Errorf("invalid escape in %q", s)
		}
		i++
		b.WriteByte(s[i])
	}
	return b.String(), nil
}

// MustParseParams is like ParseParams but panics on error. Intended for tests and literals.
func MustParseParams(s string) Params {
	p, err := ParseParams(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Get returns the value for key.
func (p Params) Get(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Len returns the number of parameters.
func (p Params) Len() int { return len(p.values) }

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	return slices.Sorted(maps.Keys(p.values))
}

// Map returns a copy of the underlying values.
func (p Params) Map() map[string]string {
	return maps.Clone(p.values)
}

// String returns the canonical sorted "key:value-key:value" form with
// reserved characters in values escaped.
func (p Params) String() string {
	keys := p.Keys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ":" + valueEscaper.Replace(p.values[k])
	}
	return strings.Join(parts, "-")
}

// Equal reports whether p and o hold the same key/value pairs.
func (p Params) Equal(o Params) bool {
	return maps.Equal(p.values, o.values)
}

// Decode decodes p into out, a pointer to a struct tagged with `param:"name"`.
// Values are converted weakly ("16" into an int field), and unknown keys are rejected.
// Fields absent from p keep their current value, so callers pre-fill defaults.
func Decode(p Params, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "param",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	in := make(map[string]any, len(p.values))
	for k, v := range p.values {
		in[k] = v
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return nil
}

// Key returns an identity key for p. Two Params share a key iff they are Equal.
func (p Params) Key() string { return p.String() }
