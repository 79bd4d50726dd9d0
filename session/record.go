package session

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// Field is one named value of a record
type Field struct {
	Name  string
	Value any
}

// Record is one row: an ordered list of named values.
// Records are immutable; With returns a copy.
type Record struct {
	fields []Field
}

// NewRecord builds a record from fields, in order
func NewRecord(fields ...Field) Record {
	return Record{fields: append([]Field(nil), fields...)}
}

// Len returns the number of fields
func (r Record) Len() int {
	return len(r.fields)
}

// Fields returns a copy of the fields in order
func (r Record) Fields() []Field {
	return append([]Field(nil), r.fields...)
}

// Columns returns the field names in order
func (r Record) Columns() []string {
	names := make([]string, len(r.fields))
	for i, f := range r.fields {
		names[i] = f.Name
	}
	return names
}

// Values returns the field values in order
func (r Record) Values() []any {
	values := make([]any, len(r.fields))
	for i, f := range r.fields {
		values[i] = f.Value
	}
	return values
}

// Get returns the value of the named field. An exact match wins; otherwise
// names are compared case-insensitively, as SQL identifiers are.
func (r Record) Get(name string) (any, bool) {
	for _, f := range r.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	for _, f := range r.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return nil, false
}

// With returns a copy of r with name set to value. An existing field keeps
// its position; a new field is appended.
func (r Record) With(name string, value any) Record {
	fields := make([]Field, len(r.fields), len(r.fields)+1)
	copy(fields, r.fields)
	for i := range fields {
		if strings.EqualFold(fields[i].Name, name) {
			fields[i].Value = value
			return Record{fields: fields}
		}
	}
	return Record{fields: append(fields, Field{Name: name, Value: value})}
}

// MarshalJSON encodes the record as a JSON object with keys in column order
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// JSON returns the record as JSON object text
func (r Record) JSON() (string, error) {
	b, err := r.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// normalizeValue converts driver values into the types records carry.
// Valid UTF-8 byte slices become strings so they encode as JSON text.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		if utf8.Valid(b) {
			return string(b)
		}
		return append([]byte(nil), b...)
	}
	return v
}
