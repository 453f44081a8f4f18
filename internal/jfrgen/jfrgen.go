// Package jfrgen generates recordings from YAML descriptions.
//
// A description declares types in the order they are registered and the
// events of every chunk:
//
//	compressed: true
//	types:
//	  - name: demo.Frame
//	    pooled: true
//	    fields:
//	      - {name: name, type: java.lang.String}
//	      - {name: parent, type: demo.Frame}
//	  - name: demo.Sample
//	    event: true
//	    fields:
//	      - {name: value, type: long}
//	      - {name: frames, type: demo.Frame, array: true}
//	chunks:
//	  - events:
//	      - type: demo.Sample
//	        repeat: 2
//	        fields:
//	          value: 7
//	          frames: [{name: main}, {name: run, parent: {name: main}}]
//
// Pooled types may be referenced before they are declared. Fields that are not
// given take their zero value, null fields are written as YAML null. Types with
// annotation set declare annotation types, which types and fields reference
// by name:
//
//	  - name: demo.Unit
//	    annotation: true
//	    fields: [{name: value, type: java.lang.String}]
//	  - name: demo.Alloc
//	    event: true
//	    annotations: [{type: jdk.jfr.Label, value: Allocation}]
//	    fields:
//	      - name: size
//	        type: long
//	        annotations: [{type: demo.Unit, value: bytes}]
package jfrgen

import (
	"io"
	"os"
	"slices"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/cstockton/go-jfr/encoding"
	"github.com/cstockton/go-jfr/event"
)

// Description of a recording.
type Description struct {
	Compressed     *bool   `yaml:"compressed"`
	StringPool     int     `yaml:"stringPool"`
	TicksPerSecond int64   `yaml:"ticksPerSecond"`
	Types          []Type  `yaml:"types"`
	Chunks         []Chunk `yaml:"chunks"`
}

// Type declares a composite type.
type Type struct {
	Name        string       `yaml:"name"`
	Super       string       `yaml:"super"`
	Event       bool         `yaml:"event"`
	Pooled      bool         `yaml:"pooled"`
	Annotation  bool         `yaml:"annotation"`
	Annotations []Annotation `yaml:"annotations"`
	Fields      []Field      `yaml:"fields"`
}

// Field declares a field of a Type.
type Field struct {
	Name        string       `yaml:"name"`
	Type        string       `yaml:"type"`
	Array       bool         `yaml:"array"`
	Annotations []Annotation `yaml:"annotations"`
}

// Annotation references an annotation type by name.
type Annotation struct {
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
}

// Chunk lists the events of a single chunk. A chunk without events is written
// as an empty chunk.
type Chunk struct {
	Events []Event `yaml:"events"`
}

// Event describes an event value, written Repeat times when Repeat is greater
// than one.
type Event struct {
	Type   string                 `yaml:"type"`
	Repeat int                    `yaml:"repeat"`
	Fields map[string]interface{} `yaml:"fields"`
}

// Stats reports what Generate wrote.
type Stats struct {
	Types  int
	Chunks int
	Events int
}

// Parse parses a YAML description, unknown keys are rejected.
func Parse(b []byte) (*Description, error) {
	d := new(Description)
	if err := yaml.UnmarshalWithOptions(b, d, yaml.DisallowUnknownField()); err != nil {
		return nil, errors.Wrap(err, `parse description`)
	}
	return d, nil
}

// ParseFile parses the YAML description in the named file.
func ParseFile(path string) (*Description, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Options returns the encoder options declared by d.
func (d *Description) Options() []encoding.Option {
	var opts []encoding.Option
	if d.Compressed != nil {
		opts = append(opts, encoding.WithCompressedInts(*d.Compressed))
	}
	if d.StringPool > 0 {
		opts = append(opts, encoding.WithStringPool(d.StringPool))
	}
	if d.TicksPerSecond > 0 {
		opts = append(opts, encoding.WithTicksPerSecond(d.TicksPerSecond))
	}
	return opts
}

// Registry registers the types of d in a new registry.
func (d *Description) Registry() (*event.Registry, error) {
	reg := event.NewRegistry()
	for _, t := range d.Types {
		if t.Pooled {
			if _, err := reg.Declare(t.Name); err != nil {
				return nil, errors.Wrapf(err, `declare %v`, t.Name)
			}
		}
	}

	for _, t := range d.Types {
		t := t
		build := func(b *event.Builder) error {
			for _, f := range t.Fields {
				if err := b.AddFieldByName(f.Name, f.Type, f.Array); err != nil {
					return err
				}
				for _, a := range f.Annotations {
					at, err := lookupAnnotation(reg, a)
					if err != nil {
						return err
					}
					if err := b.AnnotateField(f.Name, at, a.Value); err != nil {
						return err
					}
				}
			}
			return nil
		}

		var opts []event.TypeOption
		if t.Super != `` {
			opts = append(opts, event.WithSuper(t.Super))
		}
		if t.Pooled {
			opts = append(opts, event.WithPool())
		}
		for _, a := range t.Annotations {
			at, err := lookupAnnotation(reg, a)
			if err != nil {
				return nil, errors.Wrapf(err, `register %v`, t.Name)
			}
			opts = append(opts, event.WithAnnotation(at, a.Value))
		}

		var err error
		switch {
		case t.Annotation:
			_, err = reg.RegisterAnnotation(t.Name, build, opts...)
		case t.Event:
			_, err = reg.RegisterEvent(t.Name, build, opts...)
		default:
			_, err = reg.Register(t.Name, build, opts...)
		}
		if err != nil {
			return nil, errors.Wrapf(err, `register %v`, t.Name)
		}
	}
	return reg, nil
}

func lookupAnnotation(reg *event.Registry, a Annotation) (*event.Type, error) {
	t, ok := reg.Lookup(a.Type)
	if !ok {
		return nil, errors.Wrapf(event.ErrUnknownType, `annotation type %q`, a.Type)
	}
	return t, nil
}

// Generate writes the recording described by d to w. The options of d are
// applied after opts. If w is an io.Closer it is closed once the recording
// is finished.
func Generate(d *Description, w io.Writer, opts ...encoding.Option) (Stats, error) {
	var st Stats
	reg, err := d.Registry()
	if err != nil {
		return st, err
	}
	st.Types = len(d.Types)

	opts = append(append(opts, encoding.WithRegistry(reg)), d.Options()...)
	enc := encoding.NewEncoder(w, opts...)
	for i, c := range d.Chunks {
		if err := enc.BeginChunk(); err != nil {
			return st, err
		}
		for j, e := range c.Events {
			v, err := NewValue(reg, e.Type, e.Fields)
			if err != nil {
				return st, errors.Wrapf(err, `chunk %d event %d`, i+1, j+1)
			}
			for n := 0; n < max(e.Repeat, 1); n++ {
				if err := enc.WriteEvent(v); err != nil {
					return st, err
				}
				st.Events++
			}
		}
		if err := enc.FinishChunk(); err != nil {
			return st, err
		}
		st.Chunks++
	}
	return st, enc.FinishRecording()
}

// NewValue builds a value of the named type from YAML decoded fields.
func NewValue(reg *event.Registry, typeName string, fields map[string]interface{}) (event.Value, error) {
	t, ok := reg.Lookup(typeName)
	if !ok {
		return event.Value{}, errors.Wrapf(event.ErrUnknownType, `type %q`, typeName)
	}
	return newValue(reg, t, fields)
}

func newValue(reg *event.Registry, t *event.Type, x interface{}) (event.Value, error) {
	switch {
	case x == nil:
		if t.Primitive() && !t.Nullable() {
			return reg.Zero(t), nil
		}
		return event.Null(t)
	case t.Primitive():
		if s, ok := x.(string); ok && t.Kind() == event.Char && len([]rune(s)) == 1 {
			x = []rune(s)[0]
		}
		return event.Scalar(t, x)
	}

	m, ok := x.(map[string]interface{})
	if !ok {
		return event.Value{}, errors.Wrapf(event.ErrTypeMismatch, `%v expects a mapping; got %T`, t.Name(), x)
	}
	return reg.NewValue(t, func(b *event.ValueBuilder) error {
		names := lo.Keys(m)
		slices.Sort(names)
		for _, name := range names {
			if err := putField(reg, b, name, m[name]); err != nil {
				return err
			}
		}
		return nil
	})
}

func putField(reg *event.Registry, b *event.ValueBuilder, name string, x interface{}) error {
	f, _, ok := b.Type().FieldByName(name)
	if !ok {
		return errors.Wrapf(event.ErrTypeMismatch, `%v has no field %q`, b.Type().Name(), name)
	}
	ft, _ := reg.Type(f.Type)
	if !f.Array {
		v, err := newValue(reg, ft, x)
		if err != nil {
			return errors.Wrapf(err, `field %v`, name)
		}
		return b.Put(name, v)
	}

	var xs []interface{}
	if x != nil {
		if xs, ok = x.([]interface{}); !ok {
			return errors.Wrapf(event.ErrTypeMismatch, `field %v expects a sequence; got %T`, name, x)
		}
	}
	elems := make([]event.Value, len(xs))
	for i, e := range xs {
		v, err := newValue(reg, ft, e)
		if err != nil {
			return errors.Wrapf(err, `field %v[%d]`, name, i)
		}
		elems[i] = v
	}
	return b.PutArray(name, elems...)
}
