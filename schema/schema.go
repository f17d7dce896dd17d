// Package schema describes the shape of data flowing into and out of a model.
//
// A Schema is an ordered set of named fields, each carrying one of a closed set
// of type tags. It validates arbitrary values against itself and exports itself
// as a JSON Schema (draft 2020-12) document for documentation tooling.
//
// Schemas built with New are strict: fields not declared in the schema are a
// violation. Schemas built with NewOpen accept and ignore unknown fields. The
// policy is written into the exported document as additionalProperties.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
)

// Type is the type tag of a schema field.
type Type string

const (
	TypeNumber  Type = "number"
	TypeInteger Type = "integer"
	TypeString  Type = "string"
	TypeBoolean Type = "boolean"
	TypeObject  Type = "object"
)

// Draft is the JSON Schema dialect used by exported documents.
const Draft = "https://json-schema.org/draft/2020-12/schema"

// Field is a single named entry of a Schema.
type Field struct {
	Name        string
	Type        Type
	Required    bool
	Description string
	Enum        []string
	Nested      *Schema
}

// FieldOption customizes a Field.
type FieldOption func(*Field)

// Optional marks a field as not required.
func Optional() FieldOption {
	return func(f *Field) { f.Required = false }
}

// Describe attaches a human readable description to a field.
func Describe(text string) FieldOption {
	return func(f *Field) { f.Description = text }
}

// OneOf restricts a string field to a fixed set of values.
func OneOf(values ...string) FieldOption {
	return func(f *Field) { f.Enum = append([]string(nil), values...) }
}

func newField(name string, t Type, opts []FieldOption) Field {
	f := Field{Name: name, Type: t, Required: true}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

func Number(name string, opts ...FieldOption) Field  { return newField(name, TypeNumber, opts) }
func Integer(name string, opts ...FieldOption) Field { return newField(name, TypeInteger, opts) }
func String(name string, opts ...FieldOption) Field  { return newField(name, TypeString, opts) }
func Boolean(name string, opts ...FieldOption) Field { return newField(name, TypeBoolean, opts) }

// Object declares a nested mapping validated by its own schema.
func Object(name string, nested *Schema, opts ...FieldOption) Field {
	f := newField(name, TypeObject, opts)
	f.Nested = nested
	return f
}

// Schema is immutable once built and safe for concurrent use.
type Schema struct {
	fields       []Field
	index        map[string]int
	allowUnknown bool
}

// New builds a strict schema. Field names must be non-empty and unique.
func New(fields ...Field) (*Schema, error) {
	return build(false, fields)
}

// NewOpen builds a schema that ignores fields it does not declare.
func NewOpen(fields ...Field) (*Schema, error) {
	return build(true, fields)
}

// MustNew is like New but panics on an invalid declaration. It is meant for
// package-level schema variables.
func MustNew(fields ...Field) *Schema {
	s, err := New(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

func build(allowUnknown bool, fields []Field) (*Schema, error) {
	if len(fields) == 0 {
		return nil, errors.New("schema: at least one field is required")
	}
	s := &Schema{
		fields:       make([]Field, 0, len(fields)),
		index:        make(map[string]int, len(fields)),
		allowUnknown: allowUnknown,
	}
	for _, f := range fields {
		if f.Name == "" {
			return nil, errors.New("schema: empty field name")
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate field %q", f.Name)
		}
		switch f.Type {
		case TypeNumber, TypeInteger, TypeBoolean:
			if len(f.Enum) > 0 {
				return nil, fmt.Errorf("schema: field %q: enum is only supported on strings", f.Name)
			}
		case TypeString:
		case TypeObject:
			if f.Nested == nil {
				return nil, fmt.Errorf("schema: object field %q has no nested schema", f.Name)
			}
		default:
			return nil, fmt.Errorf("schema: field %q has unknown type %q", f.Name, f.Type)
		}
		f.Enum = append([]string(nil), f.Enum...)
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s, nil
}

// Fields returns a copy of the declared fields in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field looks up a declared field by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// AllowsUnknown reports whether undeclared fields are accepted.
func (s *Schema) AllowsUnknown() bool {
	return s.allowUnknown
}

// Validate checks value against the schema. It returns nil or a
// *ValidationError listing every violation found.
func (s *Schema) Validate(value any) error {
	var violations []Violation
	s.validate("", value, &violations)
	if len(violations) == 0 {
		return nil
	}
	sort.SliceStable(violations, func(i, j int) bool {
		return violations[i].Path < violations[j].Path
	})
	return &ValidationError{Violations: violations}
}

func (s *Schema) validate(prefix string, value any, out *[]Violation) {
	obj, ok := asObject(value)
	if !ok {
		*out = append(*out, Violation{
			Path:     pathOrRoot(prefix),
			Expected: string(TypeObject),
			Actual:   describe(value),
			Reason:   ReasonWrongType,
		})
		return
	}

	for _, f := range s.fields {
		path := join(prefix, f.Name)
		v, present := obj[f.Name]
		if !present {
			if f.Required {
				*out = append(*out, Violation{
					Path:     path,
					Expected: string(f.Type),
					Actual:   "missing",
					Reason:   ReasonMissing,
				})
			}
			continue
		}
		f.check(path, v, out)
	}

	if s.allowUnknown {
		return
	}
	for name, v := range obj {
		if _, declared := s.index[name]; declared {
			continue
		}
		*out = append(*out, Violation{
			Path:     join(prefix, name),
			Expected: "no such field",
			Actual:   describe(v),
			Reason:   ReasonUnknown,
		})
	}
}

func (f Field) check(path string, v any, out *[]Violation) {
	wrong := func() {
		*out = append(*out, Violation{
			Path:     path,
			Expected: string(f.Type),
			Actual:   describe(v),
			Reason:   ReasonWrongType,
		})
	}

	switch f.Type {
	case TypeNumber:
		if !isNumber(v) {
			wrong()
		}
	case TypeInteger:
		if !isInteger(v) {
			wrong()
		}
	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			wrong()
		}
	case TypeString:
		str, ok := v.(string)
		if !ok {
			wrong()
			return
		}
		if len(f.Enum) > 0 && !contains(f.Enum, str) {
			*out = append(*out, Violation{
				Path:     path,
				Expected: fmt.Sprintf("one of %v", f.Enum),
				Actual:   fmt.Sprintf("%q", str),
				Reason:   ReasonNotAllowed,
			})
		}
	case TypeObject:
		f.Nested.validate(path, v, out)
	}
}

// isNumber accepts finite floats only: JSON has no NaN or infinity.
func isNumber(v any) bool {
	f, ok := asFloat(v)
	return ok && isFinite(f)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func isInteger(v any) bool {
	switch n := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case json.Number:
		if _, err := n.Int64(); err == nil {
			return true
		}
	}
	if f, ok := asFloat(v); ok {
		return isFinite(f) && f == math.Trunc(f)
	}
	return false
}

func asObject(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	m := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		m[iter.Key().String()] = iter.Value().Interface()
	}
	return m, true
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float32, float64, json.Number:
		f, _ := asFloat(v)
		switch {
		case math.IsNaN(f):
			return "NaN"
		case math.IsInf(f, 0):
			return "Inf"
		}
		return "number"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "integer"
	}
	if _, ok := asObject(v); ok {
		return "object"
	}
	return reflect.TypeOf(v).String()
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func pathOrRoot(p string) string {
	if p == "" {
		return "$"
	}
	return p
}
