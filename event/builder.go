package event

// ValueBuilder assigns the fields of a composite value under construction.
// Every assignment is checked against the declared field type when it is made,
// the first failure is kept and also fails the enclosing NewValue.
type ValueBuilder struct {
	reg    *Registry
	t      *Type
	fields []Value
	set    []bool
	err    error
}

// NewValue builds a composite value of t. Fields not assigned by fn are set to
// the default of their type, see Zero.
func (r *Registry) NewValue(t *Type, fn func(b *ValueBuilder) error) (Value, error) {
	if err := r.checkComposite(t); err != nil {
		return Value{}, err
	}

	b := &ValueBuilder{
		reg:    r,
		t:      t,
		fields: make([]Value, len(t.fields)),
		set:    make([]bool, len(t.fields)),
	}
	if fn != nil {
		if err := fn(b); err != nil {
			return Value{}, err
		}
	}
	if b.err != nil {
		return Value{}, b.err
	}
	return b.value(), nil
}

func (b *ValueBuilder) value() Value {
	for i, f := range b.t.fields {
		if !b.set[i] {
			b.fields[i] = b.reg.zeroField(f)
		}
	}
	return Value{typ: b.t, shape: ShapeComposite, fields: b.fields}
}

func (r *Registry) checkComposite(t *Type) error {
	switch {
	case t == nil:
		return unknownType(`nil type`)
	case !r.owns(t):
		return unknownType(`type %q is not registered with this registry`, t.name)
	case !t.defined:
		return unknownType(`type %q was declared but never registered`, t.name)
	case t.kind != Composite:
		return mismatch(`type %q is not composite`, t.name)
	}
	return nil
}

// Type returns the type being built.
func (b *ValueBuilder) Type() *Type { return b.t }

// Put assigns v to the named field. A value of a subtype is projected onto the
// declared field type. Array fields take an array value, see PutArray.
func (b *ValueBuilder) Put(name string, v Value) error {
	if b.err != nil {
		return b.err
	}
	f, i, err := b.field(name)
	if err != nil {
		return b.fail(err)
	}
	if v, err = b.reg.assign(b.t, f, v); err != nil {
		return b.fail(err)
	}
	b.fields[i], b.set[i] = v, true
	return nil
}

// PutScalar assigns a Go value to a primitive field, see Scalar. Array fields
// receive a single element array.
func (b *ValueBuilder) PutScalar(name string, x interface{}) error {
	return b.PutScalars(name, x)
}

// PutScalars assigns Go values to a primitive array field, or a single Go value
// to a primitive field.
func (b *ValueBuilder) PutScalars(name string, xs ...interface{}) error {
	if b.err != nil {
		return b.err
	}
	f, _, err := b.field(name)
	if err != nil {
		return b.fail(err)
	}
	ft := b.reg.types[f.Type]

	vs := make([]Value, len(xs))
	for i, x := range xs {
		if vs[i], err = Scalar(ft, x); err != nil {
			return b.fail(mismatch(`field %v.%v: %v`, b.t.name, name, err))
		}
	}
	if f.Array {
		return b.PutArray(name, vs...)
	}
	if len(vs) != 1 {
		return b.fail(mismatch(`field %v.%v takes one value; got %d`, b.t.name, name, len(vs)))
	}
	return b.Put(name, vs[0])
}

// PutNull assigns null to the named field, which must have a nullable type.
func (b *ValueBuilder) PutNull(name string) error {
	if b.err != nil {
		return b.err
	}
	f, _, err := b.field(name)
	if err != nil {
		return b.fail(err)
	}
	if f.Array {
		return b.fail(mismatch(`array field %v.%v may not be null`, b.t.name, name))
	}
	v, err := Null(b.reg.types[f.Type])
	if err != nil {
		return b.fail(mismatch(`field %v.%v: %v`, b.t.name, name, err))
	}
	return b.Put(name, v)
}

// PutArray assigns the elements vs to the named array field.
func (b *ValueBuilder) PutArray(name string, vs ...Value) error {
	if b.err != nil {
		return b.err
	}
	f, _, err := b.field(name)
	if err != nil {
		return b.fail(err)
	}
	if !f.Array {
		return b.fail(mismatch(`field %v.%v is not an array`, b.t.name, name))
	}
	return b.Put(name, Value{typ: b.reg.types[f.Type], shape: ShapeArray, elems: vs})
}

// PutValue builds a composite value of the named field's type with fn and
// assigns it.
func (b *ValueBuilder) PutValue(name string, fn func(b *ValueBuilder) error) error {
	if b.err != nil {
		return b.err
	}
	f, _, err := b.field(name)
	if err != nil {
		return b.fail(err)
	}
	if f.Array {
		return b.fail(mismatch(`field %v.%v is an array`, b.t.name, name))
	}
	v, err := b.reg.NewValue(b.reg.types[f.Type], fn)
	if err != nil {
		return b.fail(err)
	}
	return b.Put(name, v)
}

func (b *ValueBuilder) field(name string) (Field, int, error) {
	f, i, ok := b.t.FieldByName(name)
	if !ok {
		return f, i, mismatch(`type %q has no field %q`, b.t.name, name)
	}
	return f, i, nil
}

func (b *ValueBuilder) fail(err error) error {
	if b.err == nil {
		b.err = err
	}
	return err
}

// Zero returns the default value of t: null for nullable types, the zero scalar
// for primitives and a composite of zero fields otherwise.
func (r *Registry) Zero(t *Type) Value {
	switch {
	case t.Nullable():
		return Value{typ: t, shape: ShapeNull}
	case t.Primitive():
		return Value{typ: t, shape: ShapeScalar}
	}

	fields := make([]Value, len(t.fields))
	for i, f := range t.fields {
		fields[i] = r.zeroField(f)
	}
	return Value{typ: t, shape: ShapeComposite, fields: fields}
}

func (r *Registry) zeroField(f Field) Value {
	ft := r.types[f.Type]
	if f.Array {
		return Value{typ: ft, shape: ShapeArray}
	}
	return r.Zero(ft)
}

// assign checks v against field f of owner and returns it bound to the declared
// field type.
func (r *Registry) assign(owner *Type, f Field, v Value) (Value, error) {
	ft := r.types[f.Type]
	if !v.IsValid() {
		return Value{}, mismatch(`field %v.%v: invalid value`, owner.name, f.Name)
	}
	if f.Array != (v.shape == ShapeArray) {
		return Value{}, mismatch(`field %v.%v: array mismatch`, owner.name, f.Name)
	}
	if !f.Array {
		out, err := r.assignOne(ft, v)
		if err != nil {
			return Value{}, mismatch(`field %v.%v: %v`, owner.name, f.Name, err)
		}
		return out, nil
	}

	elems := make([]Value, len(v.elems))
	for i, e := range v.elems {
		out, err := r.assignOne(ft, e)
		if err != nil {
			return Value{}, mismatch(`field %v.%v[%d]: %v`, owner.name, f.Name, i, err)
		}
		elems[i] = out
	}
	return Value{typ: ft, shape: ShapeArray, elems: elems}, nil
}

func (r *Registry) assignOne(ft *Type, v Value) (Value, error) {
	switch {
	case !v.IsValid() || v.shape == ShapeArray:
		return Value{}, mismatch(`expected a single %v`, ft.name)
	case v.shape == ShapeNull:
		if !ft.Nullable() {
			return Value{}, mismatch(`%v may not be null`, ft.name)
		}
		return Value{typ: ft, shape: ShapeNull}, nil
	case v.typ == ft:
		return v, nil
	case ft.Primitive() || v.typ.Primitive():
		return Value{}, mismatch(`%v is not assignable to %v`, v.typ.name, ft.name)
	case !r.owns(v.typ):
		return Value{}, unknownType(`type %q is not registered with this registry`, v.typ.name)
	case !r.IsSubtype(v.typ, ft):
		return Value{}, mismatch(`%v is not assignable to %v`, v.typ.name, ft.name)
	}
	return r.project(ft, v)
}

// project narrows a value of a subtype to the fields of ft.
func (r *Registry) project(ft *Type, v Value) (Value, error) {
	fields := make([]Value, len(ft.fields))
	for i, f := range ft.fields {
		sf, j, ok := v.typ.FieldByName(f.Name)
		if !ok || sf.Type != f.Type || sf.Array != f.Array {
			return Value{}, mismatch(`%v does not provide field %v of %v`,
				v.typ.name, f.Name, ft.name)
		}
		fields[i] = v.fields[j]
	}
	return Value{typ: ft, shape: ShapeComposite, fields: fields}, nil
}
