// Package validate parses flat key/value input (query strings, JSON bodies)
// against an ordered schema of typed fields.
//
// Fields are evaluated in declaration order and the first failure wins. No
// destination is written unless every field parsed, so a failed Validate
// leaves the caller's struct untouched.
package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

type Kind string

const (
	MissingField   Kind = "MissingField"
	InvalidInteger Kind = "InvalidInteger"
	InvalidFloat   Kind = "InvalidFloat"
	InvalidAddress Kind = "InvalidAddress"
	InvalidValue   Kind = "InvalidValue"
)

// Error names the failing field and why. Its message is meant to be shown to
// the caller verbatim.
type Error struct {
	Field  string
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	switch e.Kind {
	case MissingField:
		return "Missing required field: " + e.Field
	case InvalidInteger:
		return fmt.Sprintf("Invalid Integer field %s: %s", e.Field, e.Reason)
	case InvalidFloat:
		return fmt.Sprintf("Invalid Float field %s: %s", e.Field, e.Reason)
	case InvalidAddress:
		return fmt.Sprintf("Invalid Address field %s: %s", e.Field, e.Reason)
	default:
		return fmt.Sprintf("Invalid field %s: %s", e.Field, e.Reason)
	}
}

// Source yields raw values by key; ok is false when the key is absent.
type Source interface {
	Get(key string) (value string, ok bool)
}

// Query adapts url.Values. An empty value counts as absent.
type Query url.Values

func (q Query) Get(key string) (string, bool) {
	v := url.Values(q).Get(key)
	return v, v != ""
}

// JSONBody adapts a decoded JSON object. Strings pass through, numbers and
// booleans are rendered in their JSON form, null counts as absent.
type JSONBody map[string]any

func (b JSONBody) Get(key string) (string, bool) {
	v, ok := b[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, t != ""
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(raw), true
	}
}

// Field is one schema entry. Parse returns a commit func that stores the
// parsed value; commits run only after the whole schema succeeded.
type Field interface {
	Name() string
	Required() bool
	Parse(raw string) (commit func(), err error)
}

type Schema []Field

func (s Schema) Validate(src Source) error {
	commits := make([]func(), 0, len(s))
	for _, f := range s {
		raw, ok := src.Get(f.Name())
		if !ok {
			if f.Required() {
				return &Error{Field: f.Name(), Kind: MissingField, Reason: "missing"}
			}
			continue
		}
		commit, err := f.Parse(raw)
		if err != nil {
			return err
		}
		commits = append(commits, commit)
	}
	for _, c := range commits {
		c()
	}
	return nil
}

// Parser converts a raw value, reporting failures as *Error for the named field.
type Parser[T any] func(name, raw string) (T, error)

type field[T any] struct {
	name     string
	required bool
	dst      *T
	parse    Parser[T]
}

func (f *field[T]) Name() string   { return f.name }
func (f *field[T]) Required() bool { return f.required }

func (f *field[T]) Parse(raw string) (func(), error) {
	v, err := f.parse(f.name, raw)
	if err != nil {
		return nil, err
	}
	return func() { *f.dst = v }, nil
}

// Bind makes a required field from any parser.
func Bind[T any](name string, dst *T, p Parser[T]) Field {
	return &field[T]{name: name, required: true, dst: dst, parse: p}
}

// Optional makes a field that is skipped when absent, leaving dst unchanged.
func Optional[T any](name string, dst *T, p Parser[T]) Field {
	return &field[T]{name: name, required: false, dst: dst, parse: p}
}

func Int(name string, dst *int64) Field { return Bind(name, dst, ParseInt) }

func Float(name string, dst *float64) Field { return Bind(name, dst, ParseFloat) }

func PositiveFloat(name string, dst *float64) Field { return Bind(name, dst, ParsePositiveFloat) }

func Address(name string, dst *common.Address) Field { return Bind(name, dst, ParseAddress) }

func String(name string, dst *string) Field { return Bind(name, dst, ParseString) }

// Custom wraps a plain conversion func; its errors become InvalidValue.
func Custom[T any](name string, dst *T, fn func(raw string) (T, error)) Field {
	return Bind(name, dst, func(name, raw string) (T, error) {
		v, err := fn(raw)
		if err != nil {
			var zero T
			return zero, &Error{Field: name, Kind: InvalidValue, Reason: err.Error()}
		}
		return v, nil
	})
}

func ParseInt(name, raw string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, &Error{Field: name, Kind: InvalidInteger, Reason: "Not a number"}
	}
	return n, nil
}

// ParseFloat accepts finite decimal numbers only. Hex mantissas, NaN and the
// infinities all parse in strconv but have no token amount.
func ParseFloat(name, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || strings.ContainsAny(raw, "xX") {
		return 0, &Error{Field: name, Kind: InvalidFloat, Reason: "Not a number"}
	}
	return f, nil
}

func ParsePositiveFloat(name, raw string) (float64, error) {
	f, err := ParseFloat(name, raw)
	if err != nil {
		return 0, err
	}
	if f <= 0 {
		return 0, &Error{Field: name, Kind: InvalidFloat, Reason: "must be positive"}
	}
	return f, nil
}

// ParseAddress accepts any 0x-prefixed 40 hex digit string regardless of
// checksum casing.
func ParseAddress(name, raw string) (common.Address, error) {
	if !strings.HasPrefix(raw, "0x") && !strings.HasPrefix(raw, "0X") || !common.IsHexAddress(raw) {
		return common.Address{}, &Error{Field: name, Kind: InvalidAddress, Reason: raw}
	}
	return common.HexToAddress(raw), nil
}

func ParseString(_, raw string) (string, error) {
	return raw, nil
}
