package encoding

import (
	"github.com/pkg/errors"

	"github.com/cstockton/go-jfr/event"
)

// These are the value codec funcs, shared by the Encoder, the constant pool
// store and the Decoder.
//
// encodeFields ->
//   (Array field) ->
//     putUint(count), encodeValue ...
//   encodeValue ->
//     (Null) -> string tag 0 | pool index 0
//     (String) -> tag 1 | tag 2 + index | tag 3 + utf-8
//     (Primitive) -> putInt | putFloat32 | putFloat64
//     (Pooled) -> ConstantPools.Intern -> encodeFields ...
//     (Composite) -> encodeFields ...
//
// The constant pool store is passed along explicitly, pooled values nested at
// any depth are interned in the same chunk scoped store. When the store is
// bound to a registry every nested value must be of the exact type its field
// declares in that registry.

// encodeFields writes the fields of the composite v in declaration order.
func encodeFields(w *buffer, v event.Value, cp *ConstantPools) error {
	t := v.Type()
	if err := cp.checkType(t); err != nil {
		return err
	}
	if v.Shape() != event.ShapeComposite || v.NumField() != t.NumField() {
		return errors.Wrapf(event.ErrTypeMismatch, `%v is not a complete %v`, v.Shape(), t.Name())
	}
	for i := 0; i < t.NumField(); i++ {
		f, fv := t.Field(i), v.FieldAt(i)
		if err := cp.checkField(t, f, fv); err != nil {
			return err
		}
		if !f.Array {
			if err := encodeValue(w, fv, cp); err != nil {
				return err
			}
			continue
		}

		w.putUint(uint64(fv.Len()))
		for j := 0; j < fv.Len(); j++ {
			if err := encodeValue(w, fv.Index(j), cp); err != nil {
				return err
			}
		}
	}
	return nil
}

// encodeValue writes a single, non array, value.
func encodeValue(w *buffer, v event.Value, cp *ConstantPools) error {
	t := v.Type()
	switch {
	case t.Kind() == event.String:
		switch {
		case v.IsNull():
			w.putString(``, true)
		case v.Str() != `` && cp.pooledString(v.Str()):
			idx, err := cp.Intern(v)
			if err != nil {
				return err
			}
			w.putStringRef(idx)
		default:
			w.putString(v.Str(), false)
		}
	case t.Kind() == event.Float:
		w.putFloat32(float32(v.Float()))
	case t.Kind() == event.Double:
		w.putFloat64(v.Float())
	case t.Primitive():
		w.putInt(t.Kind(), v.Int())
	case t.Pooled():
		idx, err := cp.Intern(v)
		if err != nil {
			return err
		}
		w.putUint(idx)
	case v.IsNull():
		return errors.Wrapf(event.ErrTypeMismatch, `%v may not be null`, t.Name())
	default:
		return encodeFields(w, v, cp)
	}
	return nil
}

// poolKey identifies one constant pool entry within a chunk.
type poolKey struct {
	typ event.ID
	idx uint64
}

// decodeFields reads the fields of a composite of type t from r. When build is
// false the values are only consumed, which is how constant pool entries are
// delimited before they are resolved.
func (s *state) decodeFields(t *event.Type, r *Stream, build bool) (event.Value, error) {
	var fields []event.Value
	if build {
		fields = make([]event.Value, t.NumField())
	}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		ft, ok := s.md.Type(f.Type)
		if !ok {
			return event.Value{}, invalidf(`field %v.%v has unknown type id %d`, t.Name(), f.Name, f.Type)
		}
		if !f.Array {
			v, err := s.decodeValue(ft, r, build)
			if err != nil {
				return event.Value{}, err
			}
			if build {
				fields[i] = v
			}
			continue
		}

		n, err := r.ReadUint()
		if err != nil {
			return event.Value{}, err
		}
		if maxMakeSize < n {
			return event.Value{}, invalidf(
				`array %v.%v length %v exceeds allocation limit(%v)`, t.Name(), f.Name, n, maxMakeSize)
		}

		var elems []event.Value
		for j := uint64(0); j < n; j++ {
			v, err := s.decodeValue(ft, r, build)
			if err != nil {
				return event.Value{}, err
			}
			if build {
				elems = append(elems, v)
			}
		}
		if build {
			if fields[i], err = event.Array(ft, elems...); err != nil {
				return event.Value{}, invalidf(`field %v.%v: %v`, t.Name(), f.Name, err)
			}
		}
	}

	if !build {
		return event.Value{}, nil
	}
	v, err := event.NewComposite(t, fields)
	if err != nil {
		return event.Value{}, invalidf(`%v`, err)
	}
	return v, nil
}

// decodeValue reads a single, non array, value of type t from r.
func (s *state) decodeValue(t *event.Type, r *Stream, build bool) (event.Value, error) {
	var (
		x   interface{}
		err error
	)
	switch t.Kind() {
	case event.String:
		ref, err := r.ReadStringRef()
		if err != nil || !build {
			return event.Value{}, err
		}
		switch {
		case ref.Null:
			return event.Null(t)
		case ref.Pooled:
			return s.resolve(t, ref.Index)
		}
		x = ref.Value
	case event.Float:
		x, err = r.ReadFloat32()
	case event.Double:
		x, err = r.ReadFloat64()
	case event.Boolean:
		x, err = r.ReadBool()
	case event.Composite:
		if !t.Pooled() {
			return s.decodeFields(t, r, build)
		}
		idx, err := r.ReadUint()
		if err != nil || !build {
			return event.Value{}, err
		}
		return s.resolve(t, idx)
	default:
		x, err = r.ReadInt(t.Kind())
	}
	if err != nil || !build {
		return event.Value{}, err
	}

	v, err := event.Scalar(t, x)
	if err != nil {
		return event.Value{}, invalidf(`at 0x%x: %v`, r.Position(), err)
	}
	return v, nil
}
