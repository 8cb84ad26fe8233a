package telemetry

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrFieldKind is returned by Schema.Normalize when a raw value cannot be
// represented as the kind its field declares.
var ErrFieldKind = errors.New("telemetry: field value does not match schema")

type Kind int

const (
	KindFloat Kind = iota
	KindInt
	KindBool
	KindEnum
)

var kindNames = map[Kind]string{
	KindFloat: "float",
	KindInt:   "int",
	KindBool:  "bool",
	KindEnum:  "enum",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// FieldSpec declares one named telemetry field. Values lists the permitted
// names of an enum field; an integer raw value is read as an index into it.
type FieldSpec struct {
	Name   string
	Kind   Kind
	Unit   string
	Values []string
}

// Schema is the fixed set of fields the pipeline understands. Raw source
// readings are validated against it exactly once, in Normalize; everything
// downstream works with typed Fields.
type Schema struct {
	specs  []FieldSpec
	byName map[string]int
}

// NewSchema builds a schema from specs. It panics on an empty or duplicate
// name since schemas are declared in code.
func NewSchema(specs ...FieldSpec) Schema {
	s := Schema{
		specs:  make([]FieldSpec, len(specs)),
		byName: make(map[string]int, len(specs)),
	}
	for i, spec := range specs {
		if spec.Name == "" {
			panic("telemetry: schema field with empty name")
		}
		if _, dup := s.byName[spec.Name]; dup {
			panic("telemetry: duplicate schema field " + spec.Name)
		}
		s.specs[i] = spec
		s.byName[spec.Name] = i
	}
	return s
}

// Extend returns a new schema holding the receiver's fields followed by specs.
func (s Schema) Extend(specs ...FieldSpec) Schema {
	all := make([]FieldSpec, 0, len(s.specs)+len(specs))
	all = append(all, s.specs...)
	all = append(all, specs...)
	return NewSchema(all...)
}

func (s Schema) Lookup(name string) (FieldSpec, bool) {
	i, ok := s.byName[name]
	if !ok {
		return FieldSpec{}, false
	}
	return s.specs[i], true
}

func (s Schema) Len() int { return len(s.specs) }

// Specs returns a copy of the declared fields in declaration order.
func (s Schema) Specs() []FieldSpec {
	out := make([]FieldSpec, len(s.specs))
	copy(out, s.specs)
	return out
}

// Normalize converts a raw reading into Fields. Names the schema does not
// declare are skipped, as are nil values (the source had nothing for that
// field this tick). Any value that cannot be converted fails the whole
// reading so a half-valid snapshot is never produced.
func (s Schema) Normalize(raw map[string]any) (Fields, error) {
	out := make([]Field, 0, len(raw))
	for name, v := range raw {
		if v == nil {
			continue
		}
		spec, ok := s.Lookup(name)
		if !ok {
			continue
		}
		val, err := spec.convert(v)
		if err != nil {
			return Fields{}, fmt.Errorf("%w: %s: %v", ErrFieldKind, name, err)
		}
		out = append(out, Field{Name: name, Value: val})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return Fields{list: out}, nil
}

func (spec FieldSpec) convert(v any) (Value, error) {
	switch spec.Kind {
	case KindFloat:
		f, ok := toFloat(v)
		if !ok {
			return Value{}, fmt.Errorf("want float, got %T", v)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Value{}, fmt.Errorf("non-finite value %v", f)
		}
		return FloatValue(f), nil

	case KindInt:
		if i, ok := toInt(v); ok {
			return IntValue(i), nil
		}
		f, ok := toFloat(v)
		if !ok {
			return Value{}, fmt.Errorf("want int, got %T", v)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Value{}, fmt.Errorf("non-finite value %v", f)
		}
		t := math.Trunc(f)
		if t < -(1<<63) || t >= 1<<63 {
			return Value{}, fmt.Errorf("value %v overflows int64", f)
		}
		return IntValue(int64(t)), nil

	case KindBool:
		switch b := v.(type) {
		case bool:
			return BoolValue(b), nil
		}
		if i, ok := toInt(v); ok {
			return BoolValue(i != 0), nil
		}
		return Value{}, fmt.Errorf("want bool, got %T", v)

	case KindEnum:
		if str, ok := v.(string); ok {
			for _, allowed := range spec.Values {
				if allowed == str {
					return EnumValue(str), nil
				}
			}
			return Value{}, fmt.Errorf("%q is not one of %v", str, spec.Values)
		}
		if i, ok := toInt(v); ok {
			if i < 0 || int(i) >= len(spec.Values) {
				return Value{}, fmt.Errorf("enum index %d out of range", i)
			}
			return EnumValue(spec.Values[i]), nil
		}
		return Value{}, fmt.Errorf("want enum, got %T", v)
	}
	return Value{}, fmt.Errorf("unsupported kind %v", spec.Kind)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	if i, ok := toInt(v); ok {
		return float64(i), true
	}
	return 0, false
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}
