package event

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Shape is the variant held by a Value.
type Shape uint8

// Every Value is exactly one of these shapes.
const (
	ShapeNull Shape = iota
	ShapeScalar
	ShapeComposite
	ShapeArray
)

// String implements fmt.Stringer.
func (s Shape) String() string {
	switch s {
	case ShapeNull:
		return `null`
	case ShapeScalar:
		return `scalar`
	case ShapeComposite:
		return `composite`
	case ShapeArray:
		return `array`
	}
	return fmt.Sprintf(`Shape(%d)`, uint8(s))
}

// Value is an immutable instance of a Type. Scalars hold a single primitive,
// composites hold one Value per declared field in declaration order and arrays
// hold zero or more Values of their element type. The zero Value is invalid.
type Value struct {
	typ    *Type
	shape  Shape
	num    int64
	flt    float64
	str    string
	fields []Value
	elems  []Value
}

// Null returns the null value of t, which must be nullable.
func Null(t *Type) (Value, error) {
	if t == nil || !t.Nullable() {
		return Value{}, mismatch(`type %v is not nullable`, t)
	}
	return Value{typ: t, shape: ShapeNull}, nil
}

// Scalar returns a value of the primitive type t holding v. Integer kinds accept
// any Go integer that fits the width of the kind, float kinds accept float32 and
// float64, Boolean accepts bool and String accepts string. A nil v is the null
// string.
func Scalar(t *Type, v interface{}) (Value, error) {
	if t == nil || !t.Primitive() {
		return Value{}, mismatch(`type %v is not primitive`, t)
	}
	if v == nil {
		return Null(t)
	}

	out := Value{typ: t, shape: ShapeScalar}
	switch t.kind {
	case Boolean:
		b, ok := v.(bool)
		if !ok {
			return Value{}, mismatch(`%T is not assignable to %v`, v, t.kind)
		}
		if b {
			out.num = 1
		}
	case String:
		s, ok := v.(string)
		if !ok {
			return Value{}, mismatch(`%T is not assignable to %v`, v, t.kind)
		}
		out.str = s
	case Float, Double:
		f, ok := toFloat(v)
		if !ok {
			return Value{}, mismatch(`%T is not assignable to %v`, v, t.kind)
		}
		if t.kind == Float {
			f = float64(float32(f))
		}
		out.flt = f
	default:
		n, ok := toInt(v)
		if !ok {
			return Value{}, mismatch(`%T is not assignable to %v`, v, t.kind)
		}
		if !fits(t.kind, n) {
			return Value{}, mismatch(`%d overflows %v`, n, t.kind)
		}
		out.num = n
	}
	return out, nil
}

// Array returns an array of elem holding vs. Every element must be bound to
// elem exactly, or be its null value.
func Array(elem *Type, vs ...Value) (Value, error) {
	if elem == nil {
		return Value{}, mismatch(`array has no element type`)
	}
	for i, v := range vs {
		if v.typ != elem || v.shape == ShapeArray {
			return Value{}, mismatch(`array element %d is %v, expected %v`, i, v.typ, elem)
		}
	}
	return Value{typ: elem, shape: ShapeArray, elems: append([]Value(nil), vs...)}, nil
}

// NewComposite returns a composite of t from fields given in declaration order.
// Unlike a ValueBuilder nothing is defaulted: the field count must match and
// every field must be bound to the type id the field declares. A type that was
// declared but never registered fails with ErrUnknownType.
func NewComposite(t *Type, fields []Value) (Value, error) {
	if t == nil || t.kind != Composite {
		return Value{}, mismatch(`type %v is not composite`, t)
	}
	if !t.defined {
		return Value{}, unknownType(`type %v was declared but never registered`, t.name)
	}
	if len(fields) != len(t.fields) {
		return Value{}, mismatch(`%v expects %d fields; got %d`,
			t.name, len(t.fields), len(fields))
	}
	for i, f := range t.fields {
		v := fields[i]
		switch {
		case v.typ == nil:
			return Value{}, mismatch(`field %v.%v is missing`, t.name, f.Name)
		case v.typ.id != f.Type:
			return Value{}, mismatch(`field %v.%v is %v, expected type id %d`,
				t.name, f.Name, v.typ, f.Type)
		case f.Array != (v.shape == ShapeArray):
			return Value{}, mismatch(`field %v.%v array mismatch`, t.name, f.Name)
		case v.shape == ShapeNull && !v.typ.Nullable():
			return Value{}, mismatch(`field %v.%v may not be null`, t.name, f.Name)
		}
	}
	return Value{typ: t, shape: ShapeComposite, fields: append([]Value(nil), fields...)}, nil
}

// IsValid returns false for the zero Value.
func (v Value) IsValid() bool { return v.typ != nil }

// Type returns the type this value is bound to. Arrays are bound to their
// element type.
func (v Value) Type() *Type { return v.typ }

// Shape returns the variant held by v.
func (v Value) Shape() Shape { return v.shape }

// IsNull reports whether v is a null value.
func (v Value) IsNull() bool { return v.shape == ShapeNull }

// Int returns the value of an integer, char or boolean scalar.
func (v Value) Int() int64 { return v.num }

// Float returns the value of a float or double scalar.
func (v Value) Float() float64 { return v.flt }

// Bool returns the value of a boolean scalar.
func (v Value) Bool() bool { return v.num != 0 }

// Str returns the value of a string scalar, the null string is empty.
func (v Value) Str() string { return v.str }

// Interface returns the scalar as the natural Go type of its kind, or nil for
// null, composite and array values.
func (v Value) Interface() interface{} {
	if v.shape != ShapeScalar {
		return nil
	}
	switch v.typ.kind {
	case Byte:
		return int8(v.num)
	case Char:
		return uint16(v.num)
	case Short:
		return int16(v.num)
	case Int:
		return int32(v.num)
	case Long:
		return v.num
	case Float:
		return float32(v.flt)
	case Double:
		return v.flt
	case Boolean:
		return v.num != 0
	case String:
		return v.str
	}
	return nil
}

// NumField returns the number of fields of a composite.
func (v Value) NumField() int { return len(v.fields) }

// FieldAt returns the i'th field of a composite.
func (v Value) FieldAt(i int) Value { return v.fields[i] }

// Field returns the field of a composite with the given name.
func (v Value) Field(name string) (Value, bool) {
	if v.shape != ShapeComposite {
		return Value{}, false
	}
	_, i, ok := v.typ.FieldByName(name)
	if !ok {
		return Value{}, false
	}
	return v.fields[i], true
}

// Fields returns a copy of the fields of a composite.
func (v Value) Fields() []Value { return append([]Value(nil), v.fields...) }

// Len returns the number of elements of an array.
func (v Value) Len() int { return len(v.elems) }

// Index returns the i'th element of an array.
func (v Value) Index(i int) Value { return v.elems[i] }

// Elems returns a copy of the elements of an array.
func (v Value) Elems() []Value { return append([]Value(nil), v.elems...) }

// Equal reports whether v and o are structurally equal. Types are compared by
// id and name, so values decoded against a rebuilt registry compare equal to
// the values they were encoded from.
func (v Value) Equal(o Value) bool {
	if (v.typ == nil) != (o.typ == nil) {
		return false
	}
	if v.typ != nil && (v.typ.id != o.typ.id || v.typ.name != o.typ.name) {
		return false
	}
	if v.shape != o.shape {
		return false
	}

	switch v.shape {
	case ShapeScalar:
		if v.typ.kind == Float || v.typ.kind == Double {
			return math.Float64bits(v.flt) == math.Float64bits(o.flt)
		}
		return v.num == o.num && v.str == o.str
	case ShapeComposite:
		return equalSlice(v.fields, o.fields)
	case ShapeArray:
		return equalSlice(v.elems, o.elems)
	}
	return true
}

func equalSlice(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer.
func (v Value) String() string {
	var b strings.Builder
	v.format(&b)
	return b.String()
}

func (v Value) format(b *strings.Builder) {
	switch v.shape {
	case ShapeNull:
		b.WriteString(`null`)
	case ShapeScalar:
		if v.typ.kind == String {
			b.WriteString(strconv.Quote(v.str))
			return
		}
		fmt.Fprint(b, v.Interface())
	case ShapeComposite:
		b.WriteString(v.typ.name)
		b.WriteByte('{')
		for i, f := range v.fields {
			if i > 0 {
				b.WriteString(`, `)
			}
			b.WriteString(v.typ.fields[i].Name)
			b.WriteString(`: `)
			f.format(b)
		}
		b.WriteByte('}')
	case ShapeArray:
		b.WriteByte('[')
		for i, e := range v.elems {
			if i > 0 {
				b.WriteString(`, `)
			}
			e.format(b)
		}
		b.WriteByte(']')
	}
}

func toInt(v interface{}) (int64, bool) {
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
		return int64(n), uint64(n) <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	if n, ok := toInt(v); ok {
		return float64(n), true
	}
	return 0, false
}

func fits(k Kind, n int64) bool {
	switch k {
	case Byte:
		return math.MinInt8 <= n && n <= math.MaxInt8
	case Char:
		return 0 <= n && n <= math.MaxUint16
	case Short:
		return math.MinInt16 <= n && n <= math.MaxInt16
	case Int:
		return math.MinInt32 <= n && n <= math.MaxInt32
	}
	return true
}
