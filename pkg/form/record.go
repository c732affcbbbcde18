// Package form holds the partially-filled record a voice session collects.
//
// A Record belongs to exactly one session. Scalar fields are either unset or a
// non-empty string; list fields are insertion-ordered sets compared by exact
// string. Setters never unset a field.
package form

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Sentinel errors for the form package.
var (
	// ErrUnknownField indicates the schema has no such field.
	ErrUnknownField = errors.New("form: unknown field")

	// ErrWrongKind indicates Set on a list field or Add on a scalar field.
	ErrWrongKind = errors.New("form: wrong field kind")

	// ErrEmptyValue indicates a blank value, which would unset the field.
	ErrEmptyValue = errors.New("empty value")

	// ErrNotAllowed indicates a value outside a strict Choice.
	ErrNotAllowed = errors.New("value not allowed")
)

// Record is the structured, partially-filled set of fields for one session.
// It is safe for concurrent use.
type Record struct {
	schema Schema

	mu      sync.RWMutex
	scalars map[string]string
	lists   map[string][]string
}

// New creates an all-unset record for schema.
func New(schema Schema) *Record {
	r := &Record{schema: schema}
	r.reset()
	return r
}

// Schema returns the record's schema.
func (r *Record) Schema() Schema {
	return r.schema
}

// Reset returns every field to unset.
func (r *Record) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
}

func (r *Record) reset() {
	r.scalars = make(map[string]string)
	r.lists = make(map[string][]string)
}

func (r *Record) field(name string, kind Kind) (Field, error) {
	f, ok := r.schema.Field(name)
	if !ok {
		return Field{}, fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	if f.Kind != kind {
		return Field{}, fmt.Errorf("%w: %s is a %s field", ErrWrongKind, name, f.Kind)
	}
	return f, nil
}

// Set overwrites a scalar field and returns the stored (normalized) value.
func (r *Record) Set(name, raw string) (string, error) {
	f, err := r.field(name, Scalar)
	if err != nil {
		return "", err
	}
	v, err := f.Check(raw)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.scalars[name] = v
	r.mu.Unlock()
	return v, nil
}

// Add appends value to a list field unless an identical string is present.
// It reports whether the list grew.
func (r *Record) Add(name, raw string) (bool, error) {
	f, err := r.field(name, List)
	if err != nil {
		return false, err
	}
	v, err := f.Check(raw)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.lists[name], v) {
		return false, nil
	}
	r.lists[name] = append(r.lists[name], v)
	return true, nil
}

// Get returns a scalar value and whether it is set.
func (r *Record) Get(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.scalars[name]
	return v, ok
}

// Value returns a scalar value, or "" when unset.
func (r *Record) Value(name string) string {
	v, _ := r.Get(name)
	return v
}

// List returns a copy of a list field.
func (r *Record) List(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.lists[name])
}

// Missing returns the required fields that are still unset, in schema order.
func (r *Record) Missing() []Field {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Field
	for _, f := range r.schema.Fields {
		if !f.Required {
			continue
		}
		if f.Kind == Scalar && r.scalars[f.Name] == "" {
			out = append(out, f)
		}
		if f.Kind == List && len(r.lists[f.Name]) == 0 {
			out = append(out, f)
		}
	}
	return out
}

// MissingLabels returns the spoken labels of Missing.
func (r *Record) MissingLabels() []string {
	missing := r.Missing()
	labels := make([]string, len(missing))
	for i, f := range missing {
		labels[i] = f.Label
	}
	return labels
}

// NextUnset returns the first unset scalar field in schema order,
// required fields first.
func (r *Record) NextUnset() (Field, bool) {
	if missing := r.Missing(); len(missing) > 0 {
		return missing[0], true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.schema.Fields {
		if f.Kind == Scalar && r.scalars[f.Name] == "" {
			return f, true
		}
	}
	return Field{}, false
}

// IsEmpty reports whether nothing has been set.
func (r *Record) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.scalars) > 0 {
		return false
	}
	for _, l := range r.lists {
		if len(l) > 0 {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (r *Record) Clone() *Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := New(r.schema)
	for k, v := range r.scalars {
		c.scalars[k] = v
	}
	for k, v := range r.lists {
		c.lists[k] = slices.Clone(v)
	}
	return c
}

// Fields returns the record as an ordered list of key/value pairs.
// Unset scalars are nil, lists are never nil.
func (r *Record) Fields() []KV {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]KV, 0, len(r.schema.Fields))
	for _, f := range r.schema.Fields {
		kv := KV{Key: f.Name}
		switch f.Kind {
		case List:
			l := slices.Clone(r.lists[f.Name])
			if l == nil {
				l = []string{}
			}
			kv.Value = l
		default:
			if v, ok := r.scalars[f.Name]; ok {
				kv.Value = v
			}
		}
		out = append(out, kv)
	}
	return out
}

// MarshalJSON encodes the record as an object in schema order.
func (r *Record) MarshalJSON() ([]byte, error) {
	return MarshalKV(r.Fields())
}

// KV is one ordered key/value pair.
type KV struct {
	Key   string
	Value any
}

// MarshalKV encodes pairs as a JSON object, preserving order.
func MarshalKV(pairs []KV) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(kv.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(kv.Value)
		if err != nil {
			return nil, fmt.Errorf("form: encode %s: %w", kv.Key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
