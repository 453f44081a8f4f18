package event

import (
	"fmt"
	"strings"
)

// ID identifies a Type within a single registry. IDs read from a recording are
// only meaningful inside the chunk that declared them.
type ID uint64

// MinID is the first ID handed out by a Registry, IDs below it are reserved for
// framing records such as the metadata and constant pool events.
const MinID ID = 16

// Kind is the shape of values a Type describes, either one of the primitive
// kinds or Composite.
type Kind uint8

// These are the kinds a type may have. Every primitive kind has exactly one
// builtin Type in a Registry.
const (
	Composite Kind = iota
	Byte
	Char
	Short
	Int
	Long
	Float
	Double
	Boolean
	String
	kindCount
)

var kindNames = [kindCount]string{
	Composite: `composite`,
	Byte:      `byte`,
	Char:      `char`,
	Short:     `short`,
	Int:       `int`,
	Long:      `long`,
	Float:     `float`,
	Double:    `double`,
	Boolean:   `boolean`,
	String:    `java.lang.String`,
}

// Primitive returns true if k is one of the builtin scalar kinds.
func (k Kind) Primitive() bool {
	return Composite < k && k < kindCount
}

// TypeName returns the name the builtin Type of this kind is registered under.
func (k Kind) TypeName() string {
	if k < kindCount {
		return kindNames[k]
	}
	return ``
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k >= kindCount {
		return fmt.Sprintf(`Kind(%d)`, uint8(k))
	}
	if k == String {
		return `string`
	}
	return kindNames[k]
}

// kindOf returns the primitive kind registered under name, or Composite.
func kindOf(name string) Kind {
	for k := Byte; k < kindCount; k++ {
		if kindNames[k] == name {
			return k
		}
	}
	return Composite
}

// Field is a single named member of a composite Type. The referenced type is
// held by ID so types may refer to themselves or to each other.
type Field struct {
	Name        string
	Type        ID
	Array       bool
	Annotations []Annotation
}

// Annotation attaches an annotation type, and an optional value, to a type or
// a field. An empty Value is written as null.
type Annotation struct {
	Type  ID
	Value string
}

// String implements fmt.Stringer.
func (f Field) String() string {
	if f.Array {
		return fmt.Sprintf(`%v:#%d[]`, f.Name, f.Type)
	}
	return fmt.Sprintf(`%v:#%d`, f.Name, f.Type)
}

// Type is an immutable schema for values, all of its attributes are fixed when
// it is registered.
type Type struct {
	id      ID
	name    string
	super   string
	kind    Kind
	builtin bool
	pooled  bool
	defined bool
	fields  []Field
	annots  []Annotation
}

// ID returns the numeric identifier of this type.
func (t *Type) ID() ID { return t.id }

// Name returns the fully qualified type name.
func (t *Type) Name() string { return t.name }

// Super returns the name of the supertype, or an empty string.
func (t *Type) Super() string { return t.super }

// Kind returns the kind of values this type describes.
func (t *Type) Kind() Kind { return t.kind }

// Builtin reports whether the type is pre-registered in every registry.
func (t *Type) Builtin() bool { return t.builtin }

// Pooled reports whether values of this type are written to a constant pool and
// referenced by index.
func (t *Type) Pooled() bool { return t.pooled }

// Defined is false for a type that was forward declared and never registered.
func (t *Type) Defined() bool { return t.defined }

// IsAnnotation reports whether t extends AnnotationSuper.
func (t *Type) IsAnnotation() bool { return t.super == AnnotationSuper }

// Annotations returns a copy of the annotations of the type itself.
func (t *Type) Annotations() []Annotation {
	return append([]Annotation(nil), t.annots...)
}

// Primitive reports whether this is one of the builtin scalar types.
func (t *Type) Primitive() bool { return t.kind.Primitive() }

// Nullable reports whether values of this type may be null. Only strings and
// pooled composites, which use index 0 for null, may be.
func (t *Type) Nullable() bool {
	return t.kind == String || (t.kind == Composite && t.pooled)
}

// NumField returns the number of declared fields.
func (t *Type) NumField() int { return len(t.fields) }

// Field returns the i'th field.
func (t *Type) Field(i int) Field { return t.fields[i] }

// Fields returns a copy of the declared fields in declaration order.
func (t *Type) Fields() []Field {
	out := make([]Field, len(t.fields))
	copy(out, t.fields)
	return out
}

// FieldByName returns the field with the given name and its position.
func (t *Type) FieldByName(name string) (Field, int, bool) {
	for i, f := range t.fields {
		if f.Name == name {
			return f, i, true
		}
	}
	return Field{}, -1, false
}

// Descriptor returns the wire description of this type.
func (t *Type) Descriptor() Descriptor {
	return Descriptor{
		ID:          t.id,
		Name:        t.name,
		Super:       t.super,
		Builtin:     t.builtin,
		Pooled:      t.pooled,
		Fields:      t.Fields(),
		Annotations: t.Annotations(),
	}
}

// String implements fmt.Stringer.
func (t *Type) String() string {
	if t == nil {
		return `Type(nil)`
	}
	if t.Primitive() {
		return fmt.Sprintf(`%v(#%d)`, t.name, t.id)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `%v(#%d`, t.name, t.id)
	if t.super != `` {
		fmt.Fprintf(&b, ` extends %v`, t.super)
	}
	if t.pooled {
		b.WriteString(` pooled`)
	}
	b.WriteString(` [`)
	for i, f := range t.fields {
		if i > 0 {
			b.WriteString(`, `)
		}
		b.WriteString(f.String())
	}
	b.WriteString(`])`)
	return b.String()
}

// Descriptor is the serializable form of a Type as carried by a metadata event.
type Descriptor struct {
	ID          ID
	Name        string
	Super       string
	Builtin     bool
	Pooled      bool
	Fields      []Field
	Annotations []Annotation
}
