package entity

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/joseph-ayodele/docflow/constants"
)

// FieldSpec describes one schema field. Format only applies to date fields.
// Keys the client does not model (examples, hints) are kept in Extra so a
// round trip through the client never drops them.
type FieldSpec struct {
	Name        string
	Type        constants.FieldType
	Required    bool
	Nullable    bool
	Description string
	Format      string
	Extra       map[string]json.RawMessage
}

var fieldSpecKnownKeys = map[string]struct{}{
	"type": {}, "required": {}, "nullable": {}, "description": {}, "format": {},
}

func (f FieldSpec) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(f.Extra)+5)
	for k, v := range f.Extra {
		out[k] = v
	}
	out["type"] = f.Type
	out["required"] = f.Required
	out["nullable"] = f.Nullable
	if f.Description != "" {
		out["description"] = f.Description
	}
	if f.Format != "" {
		out["format"] = f.Format
	}
	return json.Marshal(out)
}

func (f *FieldSpec) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var env struct {
		Type        string  `json:"type"`
		Required    bool    `json:"required"`
		Nullable    *bool   `json:"nullable"`
		Description string  `json:"description"`
		Format      *string `json:"format"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	ft, _ := constants.CanonicalizeFieldType(env.Type)
	f.Type = ft
	f.Required = env.Required
	f.Nullable = env.Nullable == nil || *env.Nullable
	f.Description = env.Description
	f.Format = ""
	if env.Format != nil {
		f.Format = *env.Format
	}
	f.Extra = nil
	for k, v := range raw {
		if _, known := fieldSpecKnownKeys[k]; known {
			continue
		}
		if f.Extra == nil {
			f.Extra = make(map[string]json.RawMessage)
		}
		f.Extra[k] = v
	}
	return nil
}

// Schema is the ordered field definition used for extraction and column order.
type Schema struct {
	fields []FieldSpec
}

// NewSchema builds a schema from specs in order. Later duplicates replace earlier ones.
func NewSchema(specs ...FieldSpec) Schema {
	var s Schema
	for _, spec := range specs {
		s.Put(spec)
	}
	return s
}

func (s Schema) Len() int { return len(s.fields) }

// Names returns field names in schema order.
func (s Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

func (s Schema) Field(name string) (FieldSpec, bool) {
	for _, f := range s.fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

func (s Schema) Fields() []FieldSpec {
	return append([]FieldSpec(nil), s.fields...)
}

// Put adds spec, or replaces the field with the same name in place.
func (s *Schema) Put(spec FieldSpec) {
	for i := range s.fields {
		if s.fields[i].Name == spec.Name {
			s.fields[i] = spec
			return
		}
	}
	s.fields = append(s.fields, spec)
}

// Remove deletes a field, reporting whether it existed.
func (s *Schema) Remove(name string) bool {
	for i := range s.fields {
		if s.fields[i].Name == name {
			s.fields = append(s.fields[:i], s.fields[i+1:]...)
			return true
		}
	}
	return false
}

func (s Schema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range s.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(f)
		if err != nil {
			return nil, fmt.Errorf("schema field %q: %w", f.Name, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *Schema) UnmarshalJSON(data []byte) error {
	*s = Schema{}
	return decodeOrderedObject(data, func(key string, raw json.RawMessage) error {
		var spec FieldSpec
		if err := json.Unmarshal(raw, &spec); err != nil {
			return fmt.Errorf("schema field %q: %w", key, err)
		}
		spec.Name = key
		s.Put(spec)
		return nil
	})
}
