package event

import (
	"sort"

	"github.com/pkg/errors"
)

// EventSuper is the supertype name of every type registered by RegisterEvent.
const EventSuper = `jdk.jfr.Event`

// AnnotationSuper is the supertype name of every type registered by
// RegisterAnnotation.
const AnnotationSuper = `java.lang.annotation.Annotation`

// Registry is an arena of Types indexed by ID. Fields refer to other types by
// ID so self-referencing and mutually referencing types need no special
// ownership. A Registry is not safe for concurrent mutation.
type Registry struct {
	types    map[ID]*Type
	byName   map[string]*Type
	builtins [kindCount]*Type
	next     ID
}

// NewRegistry returns a registry with the builtin primitive types and the well
// known composite types already registered.
func NewRegistry() *Registry {
	r := newRegistry()
	r.registerBuiltins()
	return r
}

func newRegistry() *Registry {
	return &Registry{
		types:  make(map[ID]*Type),
		byName: make(map[string]*Type),
		next:   MinID,
	}
}

// NewRegistryFrom rebuilds a registry from type descriptors, typically the ones
// carried in the metadata event of a chunk. The IDs of the descriptors are
// kept as is. Field references are resolved once every descriptor is loaded so
// descriptors may appear in any order.
func NewRegistryFrom(descs []Descriptor) (*Registry, error) {
	r := newRegistry()
	for _, d := range descs {
		if d.ID < MinID {
			return nil, errors.Errorf(`type %q uses reserved id %d`, d.Name, d.ID)
		}
		if _, ok := r.types[d.ID]; ok {
			return nil, errors.Wrapf(ErrDuplicateType, `type id %d declared twice`, d.ID)
		}
		if _, ok := r.byName[d.Name]; ok {
			return nil, duplicateType(d.Name)
		}

		kind := Composite
		if d.Builtin {
			kind = kindOf(d.Name)
		}
		if kind.Primitive() && len(d.Fields) > 0 {
			return nil, mismatch(`primitive type %q may not declare fields`, d.Name)
		}

		t := &Type{
			id:      d.ID,
			name:    d.Name,
			super:   d.Super,
			kind:    kind,
			builtin: d.Builtin,
			pooled:  d.Pooled && kind == Composite,
			defined: true,
			fields:  append([]Field(nil), d.Fields...),
			annots:  append([]Annotation(nil), d.Annotations...),
		}
		r.add(t)
	}

	for _, t := range r.types {
		for _, a := range t.annots {
			if _, ok := r.types[a.Type]; !ok {
				return nil, unknownType(
					`type %v is annotated with type id %d`, t.name, a.Type)
			}
		}
		for _, f := range t.fields {
			if _, ok := r.types[f.Type]; !ok {
				return nil, unknownType(
					`field %v.%v references type id %d`, t.name, f.Name, f.Type)
			}
			for _, a := range f.Annotations {
				if _, ok := r.types[a.Type]; !ok {
					return nil, unknownType(
						`field %v.%v is annotated with type id %d`, t.name, f.Name, a.Type)
				}
			}
		}
	}
	if err := r.checkInlineCycles(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) add(t *Type) {
	r.types[t.id] = t
	r.byName[t.name] = t
	if t.kind.Primitive() && t.builtin {
		r.builtins[t.kind] = t
	}
	if t.id >= r.next {
		r.next = t.id + 1
	}
}

// owns returns true if t was registered with this registry.
func (r *Registry) owns(t *Type) bool {
	return t != nil && r.types[t.id] == t
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	return len(r.types)
}

// Builtin returns the builtin Type for the primitive kind k. It returns nil for
// Composite, or for registries rebuilt from metadata that did not declare it.
func (r *Registry) Builtin(k Kind) *Type {
	if !k.Primitive() {
		return nil
	}
	return r.builtins[k]
}

// Lookup returns the type registered under name.
func (r *Registry) Lookup(name string) (*Type, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Type returns the type with the given id.
func (r *Registry) Type(id ID) (*Type, bool) {
	t, ok := r.types[id]
	return t, ok
}

// Types returns every registered type ordered by ID.
func (r *Registry) Types() []*Type {
	out := make([]*Type, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// IsSubtype reports whether sub is super or has super somewhere along its chain
// of supertype names.
func (r *Registry) IsSubtype(sub, super *Type) bool {
	if sub == nil || super == nil {
		return false
	}
	if sub == super {
		return true
	}

	seen := map[string]bool{sub.name: true}
	for name := sub.super; name != ``; {
		if name == super.name {
			return true
		}
		if seen[name] {
			return false
		}
		seen[name] = true

		t, ok := r.byName[name]
		if !ok {
			return false
		}
		name = t.super
	}
	return false
}

// TypeOption configures a type during registration.
type TypeOption func(*typeConfig)

type typeConfig struct {
	super    string
	pooled   bool
	builtin  bool
	implicit []Field
	annots   []annotationOption
}

type annotationOption struct {
	typ   *Type
	value string
}

// WithSuper sets the supertype name of the registered type.
func WithSuper(name string) TypeOption {
	return func(c *typeConfig) { c.super = name }
}

// WithPool marks the registered type as using a constant pool.
func WithPool() TypeOption {
	return func(c *typeConfig) { c.pooled = true }
}

// WithAnnotation annotates the registered type with the annotation type ann,
// which must be registered with the same registry by RegisterAnnotation.
func WithAnnotation(ann *Type, value string) TypeOption {
	return func(c *typeConfig) {
		c.annots = append(c.annots, annotationOption{ann, value})
	}
}

// annotation returns the annotation of ann holding value. It fails with
// ErrUnknownType when ann belongs to another registry and ErrTypeMismatch when
// it is not an annotation type.
func (r *Registry) annotation(ann *Type, value string) (Annotation, error) {
	switch {
	case !r.owns(ann):
		return Annotation{}, unknownType(`annotation type %v is not registered`, ann)
	case !ann.IsAnnotation():
		return Annotation{}, mismatch(`type %v does not extend %v`, ann.name, AnnotationSuper)
	}
	return Annotation{Type: ann.id, Value: value}, nil
}

// BuildFunc declares the fields of a type being registered.
type BuildFunc func(b *Builder) error

// Register creates a composite type named name whose fields are declared by fn.
// It fails with ErrDuplicateType if the name is already registered, and with
// whatever error fn returns. A name that was only forward declared by Declare
// is completed in place and keeps its ID.
func (r *Registry) Register(name string, fn BuildFunc, opts ...TypeOption) (*Type, error) {
	var cfg typeConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return r.register(name, fn, cfg)
}

// RegisterEvent registers an event type. Event types extend EventSuper and
// start with the implicit fields stackTrace, eventThread and startTime. A field
// of the same name declared by fn replaces the implicit one.
func (r *Registry) RegisterEvent(name string, fn BuildFunc, opts ...TypeOption) (*Type, error) {
	cfg := typeConfig{super: EventSuper}
	for _, opt := range opts {
		opt(&cfg)
	}

	st, ok := r.byName[TypeStackTrace]
	if !ok {
		return nil, unknownType(`implicit field type %q`, TypeStackTrace)
	}
	th, ok := r.byName[TypeThread]
	if !ok {
		return nil, unknownType(`implicit field type %q`, TypeThread)
	}
	long := r.Builtin(Long)
	if long == nil {
		return nil, unknownType(`implicit field type %q`, Long.TypeName())
	}
	start := Field{Name: FieldStartTime, Type: long.id}
	if ts, ok := r.byName[TypeTimestamp]; ok {
		start.Annotations = []Annotation{{Type: ts.id, Value: TimestampTicks}}
	}
	cfg.implicit = []Field{
		{Name: FieldStackTrace, Type: st.id},
		{Name: FieldEventThread, Type: th.id},
		start,
	}
	return r.register(name, fn, cfg)
}

// RegisterAnnotation registers an annotation type. Annotation types extend
// AnnotationSuper and may be attached to types with WithAnnotation and to
// fields with Builder.AnnotateField.
func (r *Registry) RegisterAnnotation(name string, fn BuildFunc, opts ...TypeOption) (*Type, error) {
	var cfg typeConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.super = AnnotationSuper
	cfg.pooled = false
	return r.register(name, fn, cfg)
}

// Declare reserves an ID for a pooled composite type that will be registered
// later, allowing types to reference each other before either body exists.
// Declaring a name that already exists returns the existing type.
func (r *Registry) Declare(name string) (*Type, error) {
	if name == `` {
		return nil, errors.New(`type name must not be empty`)
	}
	if t, ok := r.byName[name]; ok {
		if t.Primitive() {
			return nil, duplicateType(name)
		}
		return t, nil
	}

	t := &Type{id: r.next, name: name, kind: Composite, pooled: true}
	r.add(t)
	return t, nil
}

func (r *Registry) register(name string, fn BuildFunc, cfg typeConfig) (*Type, error) {
	if name == `` {
		return nil, errors.New(`type name must not be empty`)
	}

	shell, declared := r.byName[name]
	if declared && shell.defined {
		return nil, duplicateType(name)
	}

	id := r.next
	if declared {
		id = shell.id
	}
	t := &Type{
		id:      id,
		name:    name,
		super:   cfg.super,
		kind:    Composite,
		builtin: cfg.builtin,
		pooled:  cfg.pooled || declared,
		defined: true,
	}
	for _, o := range cfg.annots {
		a, err := r.annotation(o.typ, o.value)
		if err != nil {
			return nil, err
		}
		t.annots = append(t.annots, a)
	}

	b := &Builder{reg: r, t: t, implicit: make(map[string]bool)}
	for _, f := range cfg.implicit {
		t.fields = append(t.fields, f)
		b.implicit[f.Name] = true
	}
	if fn != nil {
		if err := fn(b); err != nil {
			return nil, err
		}
	}
	if b.err != nil {
		return nil, b.err
	}

	if declared {
		*shell = *t
		return shell, nil
	}
	r.add(t)
	return t, nil
}

// checkInlineCycles rejects type graphs where a composite contains itself
// through non-pooled, non-array fields, such values could never terminate.
func (r *Registry) checkInlineCycles() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[ID]int, len(r.types))

	var visit func(t *Type) error
	visit = func(t *Type) error {
		switch state[t.id] {
		case visiting:
			return mismatch(`type %q contains itself inline`, t.name)
		case done:
			return nil
		}
		state[t.id] = visiting
		for _, f := range t.fields {
			ft := r.types[f.Type]
			if f.Array || ft.pooled || ft.kind != Composite {
				continue
			}
			if err := visit(ft); err != nil {
				return err
			}
		}
		state[t.id] = done
		return nil
	}

	for _, t := range r.Types() {
		if err := visit(t); err != nil {
			return err
		}
	}
	return nil
}

// Builder declares the fields of a type during Register.
type Builder struct {
	reg      *Registry
	t        *Type
	implicit map[string]bool
	err      error
}

// Name returns the name of the type under construction.
func (b *Builder) Name() string { return b.t.name }

// Self returns the type under construction so fields may reference it.
func (b *Builder) Self() *Type { return b.t }

// AddField appends a field named name referencing typ. It fails with
// ErrUnknownType when typ was not registered with the same registry. Once a
// call fails the registration fails, even if the error is ignored.
func (b *Builder) AddField(name string, typ *Type, isArray bool) error {
	if b.err != nil {
		return b.err
	}

	var err error
	switch {
	case name == ``:
		err = errors.Errorf(`type %q: field name must not be empty`, b.t.name)
	case typ == nil:
		err = unknownType(`field %v.%v has no type`, b.t.name, name)
	case typ != b.t && !b.reg.owns(typ):
		err = unknownType(`field %v.%v references type %q from another registry`,
			b.t.name, name, typ.name)
	case typ == b.t && !isArray && !b.t.pooled:
		err = mismatch(`field %v.%v: inline self reference requires a pooled type`,
			b.t.name, name)
	}
	if err != nil {
		b.err = err
		return err
	}

	f := Field{Name: name, Type: typ.id, Array: isArray}
	if _, i, ok := b.t.FieldByName(name); ok {
		if !b.implicit[name] {
			b.err = errors.Errorf(`field %v.%v declared twice`, b.t.name, name)
			return b.err
		}
		delete(b.implicit, name)
		b.t.fields[i] = f
		return nil
	}
	b.t.fields = append(b.t.fields, f)
	return nil
}

// AnnotateField attaches the annotation type ann, holding value, to the field
// named name which must already be declared. Failures are recorded like those
// of AddField.
func (b *Builder) AnnotateField(name string, ann *Type, value string) error {
	if b.err != nil {
		return b.err
	}
	_, i, ok := b.t.FieldByName(name)
	if !ok {
		b.err = errors.Errorf(`type %q has no field %q to annotate`, b.t.name, name)
		return b.err
	}
	a, err := b.reg.annotation(ann, value)
	if err != nil {
		b.err = err
		return err
	}

	f := &b.t.fields[i]
	f.Annotations = append(append([]Annotation(nil), f.Annotations...), a)
	return nil
}

// AddFieldByName is like AddField but resolves the field type by name. The name
// of the type under construction refers to itself.
func (b *Builder) AddFieldByName(name, typeName string, isArray bool) error {
	if b.err != nil {
		return b.err
	}
	if typeName == b.t.name {
		return b.AddField(name, b.t, isArray)
	}

	typ, ok := b.reg.byName[typeName]
	if !ok {
		b.err = unknownType(`field %v.%v references type %q`, b.t.name, name, typeName)
		return b.err
	}
	return b.AddField(name, typ, isArray)
}
