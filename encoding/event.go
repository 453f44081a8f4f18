package encoding

import (
	"fmt"

	"github.com/cstockton/go-jfr/event"
)

// Event is a regular event record rebuilt by a Decoder. Its Type belongs to
// the registry decoded from the metadata of the chunk it was read from, so
// types of events from different chunks should be compared by name.
type Event struct {
	// Chunk is the 1-based index of the chunk holding the event.
	Chunk int

	// Type is the type of Value.
	Type *event.Type

	// Value holds every field of the event with constant pool references
	// already resolved.
	Value event.Value

	// Size is the total size of the record in bytes.
	Size int64
}

// Field returns the value of the named top level field.
func (e *Event) Field(name string) (event.Value, bool) {
	return e.Value.Field(name)
}

// String implements fmt.Stringer by returning a helpful string describing this
// event.
func (e *Event) String() string {
	if e.Type == nil {
		return `encoding.Event(invalid)`
	}
	return fmt.Sprintf(`encoding.Event(chunk=%d size=%d) %v`, e.Chunk, e.Size, e.Value)
}
