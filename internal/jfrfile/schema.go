package jfrfile

import (
	"fmt"

	"github.com/cstockton/go-jfr/event"
)

// Names of the types registered by NewSchema.
const (
	TypeSample = `demo.Sample`
	TypeNode   = `demo.Node`
	TypeVisit  = `demo.Visit`
)

// Schema is the set of types fixture recordings are built from.
type Schema struct {
	Registry *event.Registry

	// Sample is an event with primitive, string and builtin pooled fields.
	Sample *event.Type

	// Node is a pooled type whose parent field references itself.
	Node *event.Type

	// Visit is an event holding a Node and the path of Nodes leading to it.
	Visit *event.Type
}

// NewSchema registers the fixture types in a new registry.
func NewSchema() (*Schema, error) {
	reg := event.NewRegistry()
	s := &Schema{Registry: reg}

	var err error
	s.Sample, err = reg.RegisterEvent(TypeSample, func(b *event.Builder) error {
		if err := b.AddFieldByName(`value`, `long`, false); err != nil {
			return err
		}
		if err := b.AddFieldByName(`label`, `java.lang.String`, false); err != nil {
			return err
		}
		if err := b.AddFieldByName(`ratio`, `double`, false); err != nil {
			return err
		}
		return b.AddFieldByName(`flags`, `byte`, true)
	})
	if err != nil {
		return nil, err
	}

	s.Node, err = reg.Register(TypeNode, func(b *event.Builder) error {
		if err := b.AddFieldByName(`name`, `java.lang.String`, false); err != nil {
			return err
		}
		return b.AddField(`parent`, b.Self(), false)
	}, event.WithPool())
	if err != nil {
		return nil, err
	}

	s.Visit, err = reg.RegisterEvent(TypeVisit, func(b *event.Builder) error {
		if err := b.AddField(`node`, s.Node, false); err != nil {
			return err
		}
		return b.AddField(`path`, s.Node, true)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewSample returns the i'th sample event. Labels repeat every three samples.
func (s *Schema) NewSample(i int) (event.Value, error) {
	reg := s.Registry
	frameType, _ := reg.Lookup(event.TypeStackFrame)
	frame, err := reg.NewValue(frameType, func(b *event.ValueBuilder) error {
		b.PutValue(`method`, func(b *event.ValueBuilder) error {
			b.PutValue(`name`, func(b *event.ValueBuilder) error {
				return b.PutScalar(`string`, `run`)
			})
			return b.PutScalar(`modifiers`, 1)
		})
		b.PutValue(`type`, func(b *event.ValueBuilder) error {
			return b.PutScalar(`description`, `Interpreted`)
		})
		return b.PutScalar(`lineNumber`, 10+i)
	})
	if err != nil {
		return event.Value{}, err
	}

	return reg.NewValue(s.Sample, func(b *event.ValueBuilder) error {
		b.PutScalar(`value`, int64(i))
		b.PutScalar(`label`, fmt.Sprintf(`sample-%d`, i%3))
		b.PutScalar(`ratio`, float64(i)/2)
		b.PutScalars(`flags`, int8(i), int8(-i))
		b.PutScalar(event.FieldStartTime, int64(i)*1000)
		b.PutValue(event.FieldEventThread, func(b *event.ValueBuilder) error {
			b.PutScalar(`osName`, `main`)
			b.PutScalar(`osThreadId`, 1)
			b.PutScalar(`javaName`, `main`)
			return b.PutValue(`group`, func(b *event.ValueBuilder) error {
				return b.PutScalar(`name`, `system`)
			})
		})
		return b.PutValue(event.FieldStackTrace, func(b *event.ValueBuilder) error {
			return b.PutArray(`frames`, frame)
		})
	})
}

// NewNode returns a chain of depth nodes named n0 to n<depth-1>, the last
// node is returned along with every node leading to it.
func (s *Schema) NewNode(depth int) (event.Value, []event.Value, error) {
	var (
		cur  event.Value
		path []event.Value
		err  error
	)
	for i := 0; i < depth; i++ {
		parent := cur
		cur, err = s.Registry.NewValue(s.Node, func(b *event.ValueBuilder) error {
			b.PutScalar(`name`, fmt.Sprintf(`n%d`, i))
			if parent.IsValid() {
				return b.Put(`parent`, parent)
			}
			return nil
		})
		if err != nil {
			return event.Value{}, nil, err
		}
		path = append(path, cur)
	}
	return cur, path, nil
}

// NewVisit returns a visit of the deepest node of a chain of depth nodes.
func (s *Schema) NewVisit(depth int) (event.Value, error) {
	node, path, err := s.NewNode(depth)
	if err != nil {
		return event.Value{}, err
	}
	return s.Registry.NewValue(s.Visit, func(b *event.ValueBuilder) error {
		b.Put(`node`, node)
		return b.PutArray(`path`, path...)
	})
}
