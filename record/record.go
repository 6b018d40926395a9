package record

import (
	"fmt"
	"math"
	"strings"
)

// Record is one row of the table: field values keyed by schema name plus
// an optional persisted embedding. A nil Embedding means the row has not
// been embedded yet.
type Record struct {
	schema    Schema
	values    map[string]Value
	Embedding []float32
}

func New(schema Schema) Record {
	return Record{
		schema: schema,
		values: map[string]Value{},
	}
}

func (r Record) Schema() Schema {
	return r.schema
}

func (r Record) ID() string {
	return r.Get(r.schema.identifier).String()
}

func (r Record) Get(name string) Value {
	if r.values == nil {
		return Absent()
	}
	return r.values[name]
}

// Set stores v under name. Names outside the schema are rejected.
func (r *Record) Set(name string, v Value) error {
	f, ok := r.schema.Field(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	if r.values == nil {
		r.values = map[string]Value{}
	}
	if v.present && !v.numeric && f.Kind.Numeric() {
		// numeric fields supplied as text are parsed so that the
		// canonical rendering does not depend on the input formatting
		if parsed, ok := parse(f.Kind, v.text); ok {
			v = parsed
		}
	}
	r.values[name] = v
	return nil
}

// SetText parses raw into the kind declared for name. Blank text is
// stored as absent.
func (r *Record) SetText(name string, raw string) error {
	f, ok := r.schema.Field(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	v, _ := parse(f.Kind, raw)
	return r.Set(name, v)
}

// Label extracts the numeric training target. It fails with
// ErrLabelAbsent when the label is missing and with a *SerializationError
// when it is present but not a finite number.
func (r Record) Label() (float64, error) {
	v := r.Get(r.schema.label)
	if v.IsEmpty() {
		return 0, ErrLabelAbsent
	}
	f, ok := v.Float()
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &SerializationError{ID: r.ID(), Field: r.schema.label, Raw: v.String()}
	}
	return f, nil
}

// Present lists the names of fields holding non-empty values, in schema
// order.
func (r Record) Present() []string {
	names := []string{}
	for _, f := range r.schema.fields {
		if !r.Get(f.Name).IsEmpty() {
			names = append(names, f.Name)
		}
	}
	return names
}

func (r Record) Clone() Record {
	cpy := New(r.schema)
	for k, v := range r.values {
		cpy.values[k] = v
	}
	if r.Embedding != nil {
		cpy.Embedding = append([]float32(nil), r.Embedding...)
	}
	return cpy
}

// FromMap builds a record from loosely typed input such as decoded JSON.
// Strings are parsed by field kind, numbers are taken as-is, nil is absent.
func FromMap(schema Schema, payload map[string]any) (Record, error) {
	rec := New(schema)
	for name, raw := range payload {
		name = strings.TrimSpace(name)
		if name == ColumnEmbeddings {
			continue
		}
		var err error
		switch v := raw.(type) {
		case nil:
			err = rec.Set(name, Absent())
		case string:
			err = rec.SetText(name, v)
		case float64:
			err = rec.Set(name, Number(v))
		case float32:
			err = rec.Set(name, Number(float64(v)))
		case int:
			err = rec.Set(name, Integer(int64(v)))
		case int64:
			err = rec.Set(name, Integer(v))
		case bool:
			err = rec.SetText(name, fmt.Sprintf("%t", v))
		default:
			err = rec.SetText(name, fmt.Sprintf("%v", v))
		}
		if err != nil {
			return Record{}, err
		}
	}
	return rec, nil
}
