package event

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

func TestKind(t *testing.T) {
	tests := []struct {
		kind Kind
		prim bool
		name string
		str  string
	}{
		{Composite, false, `composite`, `composite`},
		{Byte, true, `byte`, `byte`},
		{Char, true, `char`, `char`},
		{Long, true, `long`, `long`},
		{String, true, `java.lang.String`, `string`},
		{kindCount, false, ``, `Kind(10)`},
	}
	for _, test := range tests {
		if exp, got := test.prim, test.kind.Primitive(); exp != got {
			t.Errorf(`exp %v.Primitive() %v; got %v`, test.kind, exp, got)
		}
		if exp, got := test.name, test.kind.TypeName(); exp != got {
			t.Errorf(`exp TypeName %q; got %q`, exp, got)
		}
		if exp, got := test.str, test.kind.String(); exp != got {
			t.Errorf(`exp String %q; got %q`, exp, got)
		}
	}
}

func TestRegistryBuiltins(t *testing.T) {
	r := NewRegistry()
	for k := Byte; k < kindCount; k++ {
		typ := r.Builtin(k)
		if typ == nil {
			t.Fatalf(`exp non-nil builtin for %v`, k)
		}
		if !typ.Builtin() || !typ.Primitive() || typ.Kind() != k {
			t.Fatalf(`exp builtin primitive %v; got %v`, k, typ)
		}
		if typ.ID() < MinID {
			t.Fatalf(`exp id >= %d; got %d`, MinID, typ.ID())
		}
		if got, ok := r.Lookup(k.TypeName()); !ok || got != typ {
			t.Fatalf(`exp Lookup(%q) to return the builtin`, k.TypeName())
		}
	}
	if typ := r.Builtin(Composite); typ != nil {
		t.Fatalf(`exp nil builtin for Composite; got %v`, typ)
	}

	names := []string{
		TypeTickspan, TypeTicks, TypeThreadGroup, TypeThread, TypeSymbol,
		TypeClass, TypeClassLoader, TypeModule, TypePackage, TypeMethod,
		TypeFrameType, TypeStackFrame, TypeStackTrace,
	}
	for _, name := range names {
		typ, ok := r.Lookup(name)
		if !ok {
			t.Fatalf(`exp well known type %q`, name)
		}
		if !typ.Pooled() || !typ.Builtin() || !typ.Defined() {
			t.Fatalf(`exp %q to be a defined pooled builtin; got %v`, name, typ)
		}
	}

	t.Run(`SelfReference`, func(t *testing.T) {
		tg, _ := r.Lookup(TypeThreadGroup)
		f, _, ok := tg.FieldByName(`parent`)
		if !ok || f.Type != tg.ID() {
			t.Fatalf(`exp parent field to reference thread group; got %v`, f)
		}
	})
	t.Run(`MutualReference`, func(t *testing.T) {
		class, _ := r.Lookup(TypeClass)
		loader, _ := r.Lookup(TypeClassLoader)
		f, _, _ := class.FieldByName(`classLoader`)
		if f.Type != loader.ID() {
			t.Fatalf(`exp class.classLoader -> %d; got %d`, loader.ID(), f.Type)
		}
		f, _, _ = loader.FieldByName(`type`)
		if f.Type != class.ID() {
			t.Fatalf(`exp classLoader.type -> %d; got %d`, class.ID(), f.Type)
		}
	})
	t.Run(`StackTrace`, func(t *testing.T) {
		st, _ := r.Lookup(TypeStackTrace)
		f, _, ok := st.FieldByName(`frames`)
		if !ok || !f.Array {
			t.Fatalf(`exp frames to be an array field; got %v`, f)
		}
	})
}

func TestRegister(t *testing.T) {
	r := NewRegistry()
	long := r.Builtin(Long)

	point, err := r.Register(`test.Point`, func(b *Builder) error {
		if err := b.AddField(`x`, long, false); err != nil {
			return err
		}
		return b.AddFieldByName(`y`, `long`, false)
	})
	if err != nil {
		t.Fatalf(`exp nil err; got %v`, err)
	}
	if exp, got := 2, point.NumField(); exp != got {
		t.Fatalf(`exp %d fields; got %d`, exp, got)
	}
	if point.Pooled() || point.Builtin() || point.Nullable() {
		t.Fatalf(`exp plain composite; got %v`, point)
	}
	if got, ok := r.Type(point.ID()); !ok || got != point {
		t.Fatal(`exp Type(id) to return the registered type`)
	}

	t.Run(`Duplicate`, func(t *testing.T) {
		_, err := r.Register(`test.Point`, nil)
		if !errors.Is(err, ErrDuplicateType) {
			t.Fatalf(`exp ErrDuplicateType; got %v`, err)
		}
		_, err = r.Register(`long`, nil)
		if !errors.Is(err, ErrDuplicateType) {
			t.Fatalf(`exp ErrDuplicateType for builtin name; got %v`, err)
		}
	})
	t.Run(`UnknownType`, func(t *testing.T) {
		other := NewRegistry()
		n := r.Len()
		_, err := r.Register(`test.Bad`, func(b *Builder) error {
			return b.AddField(`v`, other.Builtin(Int), false)
		})
		if !errors.Is(err, ErrUnknownType) {
			t.Fatalf(`exp ErrUnknownType; got %v`, err)
		}
		_, err = r.Register(`test.Bad`, func(b *Builder) error {
			return b.AddFieldByName(`v`, `no.such.Type`, false)
		})
		if !errors.Is(err, ErrUnknownType) {
			t.Fatalf(`exp ErrUnknownType; got %v`, err)
		}
		if exp, got := n, r.Len(); exp != got {
			t.Fatalf(`exp failed registration to leave %d types; got %d`, exp, got)
		}
	})
	t.Run(`IgnoredError`, func(t *testing.T) {
		_, err := r.Register(`test.Ignored`, func(b *Builder) error {
			b.AddField(`v`, nil, false)
			return nil
		})
		if !errors.Is(err, ErrUnknownType) {
			t.Fatalf(`exp ErrUnknownType; got %v`, err)
		}
	})
	t.Run(`FieldTwice`, func(t *testing.T) {
		_, err := r.Register(`test.Twice`, func(b *Builder) error {
			b.AddField(`v`, long, false)
			return b.AddField(`v`, long, false)
		})
		if err == nil {
			t.Fatal(`exp non-nil err`)
		}
	})
	t.Run(`InlineSelf`, func(t *testing.T) {
		_, err := r.Register(`test.Node`, func(b *Builder) error {
			return b.AddField(`next`, b.Self(), false)
		})
		if !errors.Is(err, ErrTypeMismatch) {
			t.Fatalf(`exp ErrTypeMismatch; got %v`, err)
		}

		node, err := r.Register(`test.Node`, func(b *Builder) error {
			return b.AddField(`next`, b.Self(), false)
		}, WithPool())
		if err != nil {
			t.Fatalf(`exp nil err; got %v`, err)
		}
		if f := node.Field(0); f.Type != node.ID() {
			t.Fatalf(`exp self reference; got %v`, f)
		}

		tree, err := r.Register(`test.Tree`, func(b *Builder) error {
			return b.AddField(`children`, b.Self(), true)
		})
		if err != nil {
			t.Fatalf(`exp nil err for array self reference; got %v`, err)
		}
		if tree.Pooled() {
			t.Fatal(`exp unpooled tree`)
		}
	})
}

func TestDeclare(t *testing.T) {
	r := NewRegistry()
	decl, err := r.Declare(`test.B`)
	if err != nil {
		t.Fatalf(`exp nil err; got %v`, err)
	}
	if decl.Defined() || !decl.Pooled() {
		t.Fatalf(`exp undefined pooled declaration; got %v`, decl)
	}
	if again, _ := r.Declare(`test.B`); again != decl {
		t.Fatal(`exp Declare to return the existing declaration`)
	}
	if _, err := r.Declare(`int`); !errors.Is(err, ErrDuplicateType) {
		t.Fatalf(`exp ErrDuplicateType for primitive name; got %v`, err)
	}

	a, err := r.Register(`test.A`, func(b *Builder) error {
		return b.AddField(`b`, decl, false)
	}, WithPool())
	if err != nil {
		t.Fatalf(`exp nil err; got %v`, err)
	}

	if _, err := r.NewValue(decl, nil); !errors.Is(err, ErrUnknownType) {
		t.Fatalf(`exp ErrUnknownType for undefined type; got %v`, err)
	}
	if _, err := NewComposite(decl, nil); !errors.Is(err, ErrUnknownType) {
		t.Fatalf(`exp ErrUnknownType from NewComposite; got %v`, err)
	}

	id := decl.ID()
	b, err := r.Register(`test.B`, func(b *Builder) error {
		return b.AddField(`a`, a, false)
	})
	if err != nil {
		t.Fatalf(`exp nil err; got %v`, err)
	}
	if b != decl || b.ID() != id {
		t.Fatal(`exp declaration to be completed in place`)
	}
	if !b.Defined() || !b.Pooled() || b.NumField() != 1 {
		t.Fatalf(`exp defined pooled type with one field; got %v`, b)
	}
	if _, err := r.Register(`test.B`, nil); !errors.Is(err, ErrDuplicateType) {
		t.Fatalf(`exp ErrDuplicateType; got %v`, err)
	}
}

func TestRegisterEvent(t *testing.T) {
	r := NewRegistry()
	typ, err := r.RegisterEvent(`test.Sample`, func(b *Builder) error {
		return b.AddField(`value`, r.Builtin(Double), false)
	})
	if err != nil {
		t.Fatalf(`exp nil err; got %v`, err)
	}
	if exp, got := EventSuper, typ.Super(); exp != got {
		t.Fatalf(`exp super %q; got %q`, exp, got)
	}

	var names []string
	for _, f := range typ.Fields() {
		names = append(names, f.Name)
	}
	exp := []string{FieldStackTrace, FieldEventThread, FieldStartTime, `value`}
	if diff := cmp.Diff(exp, names); diff != `` {
		t.Fatalf(`unexpected fields (-exp +got):\n%v`, diff)
	}

	t.Run(`Override`, func(t *testing.T) {
		typ, err := r.RegisterEvent(`test.Override`, func(b *Builder) error {
			return b.AddField(FieldStartTime, r.Builtin(Int), false)
		})
		if err != nil {
			t.Fatalf(`exp nil err; got %v`, err)
		}
		if exp, got := 3, typ.NumField(); exp != got {
			t.Fatalf(`exp %d fields; got %d`, exp, got)
		}
		f, i, _ := typ.FieldByName(FieldStartTime)
		if i != 2 || f.Type != r.Builtin(Int).ID() {
			t.Fatalf(`exp startTime replaced in place with int; got %v at %d`, f, i)
		}
	})
	t.Run(`Empty`, func(t *testing.T) {
		typ, err := r.RegisterEvent(`test.Empty`, nil)
		if err != nil {
			t.Fatalf(`exp nil err; got %v`, err)
		}
		if exp, got := 3, typ.NumField(); exp != got {
			t.Fatalf(`exp %d fields; got %d`, exp, got)
		}
	})
}

func TestIsSubtype(t *testing.T) {
	r := NewRegistry()
	base, _ := r.Register(`test.Base`, func(b *Builder) error {
		return b.AddField(`id`, r.Builtin(Long), false)
	})
	mid, _ := r.Register(`test.Mid`, func(b *Builder) error {
		return b.AddField(`id`, r.Builtin(Long), false)
	}, WithSuper(`test.Base`))
	leaf, _ := r.Register(`test.Leaf`, func(b *Builder) error {
		return b.AddField(`id`, r.Builtin(Long), false)
	}, WithSuper(`test.Mid`))
	ev, _ := r.RegisterEvent(`test.Event`, nil)

	tests := []struct {
		sub, super *Type
		exp        bool
	}{
		{leaf, leaf, true},
		{leaf, mid, true},
		{leaf, base, true},
		{mid, base, true},
		{base, leaf, false},
		{ev, base, false},
		{nil, base, false},
	}
	for _, test := range tests {
		if got := r.IsSubtype(test.sub, test.super); got != test.exp {
			t.Errorf(`exp IsSubtype(%v, %v) %v; got %v`, test.sub, test.super, test.exp, got)
		}
	}
}

func TestNewRegistryFrom(t *testing.T) {
	r := NewRegistry()
	sample, err := r.RegisterEvent(`test.Sample`, func(b *Builder) error {
		return b.AddField(`tags`, r.Builtin(String), true)
	})
	if err != nil {
		t.Fatal(err)
	}

	var descs []Descriptor
	for _, typ := range r.Types() {
		descs = append(descs, typ.Descriptor())
	}

	// reverse to show order does not matter
	for i, j := 0, len(descs)-1; i < j; i, j = i+1, j-1 {
		descs[i], descs[j] = descs[j], descs[i]
	}
	got, err := NewRegistryFrom(descs)
	if err != nil {
		t.Fatalf(`exp nil err; got %v`, err)
	}
	if exp, n := r.Len(), got.Len(); exp != n {
		t.Fatalf(`exp %d types; got %d`, exp, n)
	}
	for _, typ := range r.Types() {
		other, ok := got.Type(typ.ID())
		if !ok {
			t.Fatalf(`exp type id %d`, typ.ID())
		}
		if diff := cmp.Diff(typ.Descriptor(), other.Descriptor()); diff != `` {
			t.Fatalf(`descriptor mismatch (-exp +got):\n%v`, diff)
		}
		if typ.Kind() != other.Kind() {
			t.Fatalf(`exp kind %v; got %v`, typ.Kind(), other.Kind())
		}
	}
	if typ, _ := got.Lookup(sample.Name()); typ.Super() != EventSuper {
		t.Fatalf(`exp super to survive; got %q`, typ.Super())
	}

	t.Run(`Errors`, func(t *testing.T) {
		tests := []struct {
			name  string
			descs []Descriptor
			exp   error
		}{
			{`DuplicateID`, []Descriptor{
				{ID: 20, Name: `a`}, {ID: 20, Name: `b`},
			}, ErrDuplicateType},
			{`DuplicateName`, []Descriptor{
				{ID: 20, Name: `a`}, {ID: 21, Name: `a`},
			}, ErrDuplicateType},
			{`UnknownField`, []Descriptor{
				{ID: 20, Name: `a`, Fields: []Field{{Name: `f`, Type: 99}}},
			}, ErrUnknownType},
			{`InlineCycle`, []Descriptor{
				{ID: 20, Name: `a`, Fields: []Field{{Name: `b`, Type: 21}}},
				{ID: 21, Name: `b`, Fields: []Field{{Name: `a`, Type: 20}}},
			}, ErrTypeMismatch},
			{`PrimitiveFields`, []Descriptor{
				{ID: 20, Name: `int`, Builtin: true, Fields: []Field{{Name: `f`, Type: 20}}},
			}, ErrTypeMismatch},
			{`UnknownAnnotation`, []Descriptor{
				{ID: 20, Name: `a`, Annotations: []Annotation{{Type: 99}}},
			}, ErrUnknownType},
			{`UnknownFieldAnnotation`, []Descriptor{
				{ID: 20, Name: `a`, Fields: []Field{
					{Name: `f`, Type: 20, Array: true, Annotations: []Annotation{{Type: 99, Value: `x`}}},
				}},
			}, ErrUnknownType},
		}
		for _, test := range tests {
			t.Run(test.name, func(t *testing.T) {
				_, err := NewRegistryFrom(test.descs)
				if !errors.Is(err, test.exp) {
					t.Fatalf(`exp %v; got %v`, test.exp, err)
				}
			})
		}

		if _, err := NewRegistryFrom([]Descriptor{{ID: 1, Name: `a`}}); err == nil {
			t.Fatal(`exp err for reserved id`)
		}
	})
	t.Run(`PooledCycle`, func(t *testing.T) {
		_, err := NewRegistryFrom([]Descriptor{
			{ID: 20, Name: `a`, Pooled: true, Fields: []Field{{Name: `b`, Type: 21}}},
			{ID: 21, Name: `b`, Pooled: true, Fields: []Field{{Name: `a`, Type: 20}}},
		})
		if err != nil {
			t.Fatalf(`exp nil err; got %v`, err)
		}
	})
}

func TestRegisterAnnotation(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{TypeLabel, TypeDescription, TypeTimestamp, TypeTimespan, TypeUnsigned} {
		typ, ok := r.Lookup(name)
		if !ok {
			t.Fatalf(`exp builtin annotation %q`, name)
		}
		if !typ.IsAnnotation() || !typ.Builtin() || typ.Pooled() {
			t.Fatalf(`exp unpooled builtin annotation; got %v`, typ)
		}
	}
	label, _ := r.Lookup(TypeLabel)
	ts, _ := r.Lookup(TypeTimestamp)

	sample, err := r.RegisterEvent(`test.Sample`, nil)
	if err != nil {
		t.Fatalf(`exp nil err; got %v`, err)
	}
	f, _, _ := sample.FieldByName(FieldStartTime)
	exp := []Annotation{{Type: ts.ID(), Value: TimestampTicks}}
	if diff := cmp.Diff(exp, f.Annotations); diff != `` {
		t.Fatalf(`unexpected startTime annotations (-exp +got):\n%v`, diff)
	}

	unit, err := r.RegisterAnnotation(`test.Unit`, func(b *Builder) error {
		return b.AddFieldByName(`value`, `java.lang.String`, false)
	}, WithPool())
	if err != nil {
		t.Fatalf(`exp nil err; got %v`, err)
	}
	if !unit.IsAnnotation() || unit.Pooled() || unit.Super() != AnnotationSuper {
		t.Fatalf(`exp unpooled annotation type; got %v`, unit)
	}

	typ, err := r.Register(`test.Annotated`, func(b *Builder) error {
		if err := b.AddFieldByName(`size`, `long`, false); err != nil {
			return err
		}
		if err := b.AnnotateField(`size`, unit, `bytes`); err != nil {
			return err
		}
		return b.AnnotateField(`size`, label, ``)
	}, WithAnnotation(label, `Annotated`))
	if err != nil {
		t.Fatalf(`exp nil err; got %v`, err)
	}
	if diff := cmp.Diff([]Annotation{{Type: label.ID(), Value: `Annotated`}}, typ.Annotations()); diff != `` {
		t.Fatalf(`unexpected type annotations (-exp +got):\n%v`, diff)
	}
	size, _, _ := typ.FieldByName(`size`)
	exp = []Annotation{{Type: unit.ID(), Value: `bytes`}, {Type: label.ID()}}
	if diff := cmp.Diff(exp, size.Annotations); diff != `` {
		t.Fatalf(`unexpected field annotations (-exp +got):\n%v`, diff)
	}
	if diff := cmp.Diff(typ.Annotations(), typ.Descriptor().Annotations); diff != `` {
		t.Fatalf(`exp descriptor to carry annotations:\n%v`, diff)
	}

	t.Run(`Errors`, func(t *testing.T) {
		other := NewRegistry()
		otherLabel, _ := other.Lookup(TypeLabel)
		tests := []struct {
			name string
			fn   BuildFunc
			opts []TypeOption
			exp  error
		}{
			{`NotAnnotation`, nil, []TypeOption{WithAnnotation(r.Builtin(Long), ``)}, ErrTypeMismatch},
			{`Foreign`, nil, []TypeOption{WithAnnotation(otherLabel, ``)}, ErrUnknownType},
			{`Nil`, nil, []TypeOption{WithAnnotation(nil, ``)}, ErrUnknownType},
			{`FieldForeign`, func(b *Builder) error {
				b.AddFieldByName(`n`, `int`, false)
				b.AnnotateField(`n`, otherLabel, `n`)
				return nil
			}, nil, ErrUnknownType},
			{`FieldNotAnnotation`, func(b *Builder) error {
				b.AddFieldByName(`n`, `int`, false)
				return b.AnnotateField(`n`, typ, `n`)
			}, nil, ErrTypeMismatch},
		}
		for _, test := range tests {
			t.Run(test.name, func(t *testing.T) {
				_, err := r.Register(`test.Bad`+test.name, test.fn, test.opts...)
				if !errors.Is(err, test.exp) {
					t.Fatalf(`exp %v; got %v`, test.exp, err)
				}
			})
		}

		_, err := r.Register(`test.NoField`, func(b *Builder) error {
			return b.AnnotateField(`missing`, label, ``)
		})
		if err == nil {
			t.Fatal(`exp err annotating a missing field`)
		}
	})
}
