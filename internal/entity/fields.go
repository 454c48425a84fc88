package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Fields is an insertion-ordered map of schema field name to extracted value.
// JSON encoding keeps the order the server sent.
type Fields struct {
	keys   []string
	values map[string]any
}

// NewFields builds Fields from alternating key/value pairs.
func NewFields(kv ...any) Fields {
	var f Fields
	for i := 0; i+1 < len(kv); i += 2 {
		f.Set(fmt.Sprint(kv[i]), kv[i+1])
	}
	return f
}

func (f Fields) Get(name string) (any, bool) {
	v, ok := f.values[name]
	return v, ok
}

// Set stores value under name, appending name if it is new.
func (f *Fields) Set(name string, value any) {
	if f.values == nil {
		f.values = make(map[string]any)
	}
	if _, ok := f.values[name]; !ok {
		f.keys = append(f.keys, name)
	}
	f.values[name] = value
}

func (f Fields) Keys() []string {
	return append([]string(nil), f.keys...)
}

func (f Fields) Len() int {
	return len(f.keys)
}

func (f Fields) Clone() Fields {
	out := Fields{keys: append([]string(nil), f.keys...)}
	if f.values != nil {
		out.values = make(map[string]any, len(f.values))
		for k, v := range f.values {
			out.values[k] = v
		}
	}
	return out
}

func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range f.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(f.values[k])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (f *Fields) UnmarshalJSON(data []byte) error {
	*f = Fields{}
	return decodeOrderedObject(data, func(key string, raw json.RawMessage) error {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		f.Set(key, v)
		return nil
	})
}

// DisplayValue renders a field value the way an editable cell shows it.
// nil renders as the empty string.
func DisplayValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// ValuesEqual compares two field values by their displayed form.
func ValuesEqual(a, b any) bool {
	return DisplayValue(a) == DisplayValue(b)
}

// decodeOrderedObject walks a JSON object in document order.
// A JSON null is treated as an empty object.
func decodeOrderedObject(data []byte, fn func(key string, raw json.RawMessage) error) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("value for %q: %w", key, err)
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
