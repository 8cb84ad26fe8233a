package telemetry

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
)

// Value is a single typed telemetry value.
type Value struct {
	kind Kind
	f    float64
	i    int64
	b    bool
	s    string
}

func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }
func IntValue(i int64) Value     { return Value{kind: KindInt, i: i} }
func BoolValue(b bool) Value     { return Value{kind: KindBool, b: b} }
func EnumValue(s string) Value   { return Value{kind: KindEnum, s: s} }

func (v Value) Kind() Kind { return v.kind }

// Float returns the value as a float64. Ints widen, bools map to 0/1 and
// enums read as 0.
func (v Value) Float() float64 {
	switch v.kind {
	case KindFloat:
		return v.f
	case KindInt:
		return float64(v.i)
	case KindBool:
		if v.b {
			return 1
		}
	}
	return 0
}

func (v Value) Int() int64 {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return int64(v.f)
	case KindBool:
		if v.b {
			return 1
		}
	}
	return 0
}

func (v Value) Bool() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindBool:
		return strconv.FormatBool(v.b)
	}
	return v.s
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindFloat:
		return json.Marshal(v.f)
	case KindInt:
		return json.Marshal(v.i)
	case KindBool:
		return json.Marshal(v.b)
	}
	return json.Marshal(v.s)
}

type Field struct {
	Name  string
	Value Value
}

// Fields is an immutable, name-ordered set of typed values. The zero value
// is an empty set. Methods never modify the receiver; With returns a copy.
type Fields struct {
	list []Field
}

// NewFields builds a Fields set directly, bypassing schema validation. Later
// duplicates win.
func NewFields(fields ...Field) Fields {
	return Fields{}.With(fields...)
}

func (f Fields) index(name string) (int, bool) {
	i := sort.Search(len(f.list), func(i int) bool { return f.list[i].Name >= name })
	return i, i < len(f.list) && f.list[i].Name == name
}

func (f Fields) Get(name string) (Value, bool) {
	i, ok := f.index(name)
	if !ok {
		return Value{}, false
	}
	return f.list[i].Value, true
}

func (f Fields) Has(name string) bool {
	_, ok := f.index(name)
	return ok
}

func (f Fields) Float(name string) float64 {
	v, _ := f.Get(name)
	return v.Float()
}

func (f Fields) Int(name string) int64 {
	v, _ := f.Get(name)
	return v.Int()
}

func (f Fields) Bool(name string) bool {
	v, _ := f.Get(name)
	return v.Bool()
}

func (f Fields) Enum(name string) string {
	v, ok := f.Get(name)
	if !ok || v.kind != KindEnum {
		return ""
	}
	return v.s
}

func (f Fields) Len() int { return len(f.list) }

// Each calls fn for every field in name order.
func (f Fields) Each(fn func(name string, v Value)) {
	for _, fld := range f.list {
		fn(fld.Name, fld.Value)
	}
}

// With returns a new set holding the receiver's fields overlaid with extra.
func (f Fields) With(extra ...Field) Fields {
	if len(extra) == 0 {
		return f
	}
	merged := make(map[string]Value, len(f.list)+len(extra))
	for _, fld := range f.list {
		merged[fld.Name] = fld.Value
	}
	for _, fld := range extra {
		merged[fld.Name] = fld.Value
	}
	out := make([]Field, 0, len(merged))
	for name, v := range merged {
		out = append(out, Field{Name: name, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return Fields{list: out}
}

// Map returns the fields as plain Go values, e.g. for templating or tests.
func (f Fields) Map() map[string]any {
	m := make(map[string]any, len(f.list))
	for _, fld := range f.list {
		switch fld.Value.kind {
		case KindFloat:
			m[fld.Name] = fld.Value.f
		case KindInt:
			m[fld.Name] = fld.Value.i
		case KindBool:
			m[fld.Name] = fld.Value.b
		default:
			m[fld.Name] = fld.Value.s
		}
	}
	return m
}

// MarshalJSON encodes the set as a flat object in name order.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, fld := range f.list {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(fld.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		val, err := fld.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
