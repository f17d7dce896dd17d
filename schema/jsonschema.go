package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// JSONSchema exports the schema as a JSON Schema document identified by id.
// The document lists every field with its type, the required fields in
// declaration order and the unknown-field policy.
func (s *Schema) JSONSchema(id string) map[string]any {
	doc := s.object()
	doc["$schema"] = Draft
	if id != "" {
		doc["$id"] = id
	}
	return doc
}

// MarshalJSONSchema is JSONSchema encoded as indented JSON.
func (s *Schema) MarshalJSONSchema(id string) ([]byte, error) {
	return json.MarshalIndent(s.JSONSchema(id), "", "  ")
}

func (s *Schema) object() map[string]any {
	properties := make(map[string]any, len(s.fields))
	required := make([]string, 0, len(s.fields))
	for _, f := range s.fields {
		properties[f.Name] = f.property()
		if f.Required {
			required = append(required, f.Name)
		}
	}
	return map[string]any{
		"type":                 string(TypeObject),
		"properties":           properties,
		"required":             required,
		"additionalProperties": s.allowUnknown,
	}
}

func (f Field) property() map[string]any {
	var prop map[string]any
	if f.Type == TypeObject {
		prop = f.Nested.object()
	} else {
		prop = map[string]any{"type": string(f.Type)}
	}
	if f.Description != "" {
		prop["description"] = f.Description
	}
	if len(f.Enum) > 0 {
		prop["enum"] = append([]string(nil), f.Enum...)
	}
	return prop
}

// Compiled is an exported schema document compiled by an independent JSON
// Schema validator.
type Compiled struct {
	id     string
	schema *jsonschema.Schema
}

// Compile exports the schema under id and compiles the resulting document.
func (s *Schema) Compile(id string) (*Compiled, error) {
	doc, err := s.MarshalJSONSchema(id)
	if err != nil {
		return nil, fmt.Errorf("marshal schema %s: %w", id, err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(id, bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", id, err)
	}
	compiled, err := compiler.Compile(id)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", id, err)
	}
	return &Compiled{id: id, schema: compiled}, nil
}

// ID returns the document identifier the schema was compiled under.
func (c *Compiled) ID() string {
	return c.id
}

// Validate checks value against the compiled document. The value is passed
// through a JSON round trip first so Go values are seen the way a JSON
// consumer of the document would see them.
func (c *Compiled) Validate(value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode value: %w", err)
	}
	return c.schema.Validate(doc)
}
