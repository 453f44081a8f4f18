package encoding

import (
	"io"

	"github.com/cstockton/go-jfr/event"
)

// HandlerFunc is called by a Decoder for every regular event in a recording.
// A non-nil error stops decoding and is returned from Err.
type HandlerFunc func(evt *Event) error

// Decoder is a Listener that rebuilds every regular event of a recording as
// an *Event, resolving constant pool references with the pools of the chunk
// holding the event.
//
// Events of a chunk are delivered once the whole chunk has been parsed, so
// constant pool records may appear anywhere in the chunk.
type Decoder struct {
	fn      HandlerFunc
	err     error
	st      *state
	pending []record
	events  int
}

type record struct {
	id   event.ID
	view *Stream
	size int64
}

var _ Listener = (*Decoder)(nil)

// NewDecoder returns a Decoder delivering events to fn.
func NewDecoder(fn HandlerFunc) *Decoder {
	return &Decoder{fn: fn}
}

// Decode parses the recording read from r, calling fn for every event.
func Decode(r io.Reader, fn HandlerFunc, opts ...ParserOption) error {
	d := NewDecoder(fn)
	if err := NewParser(r, opts...).Parse(d); err != nil {
		return err
	}
	return d.Err()
}

// Err returns the first error that occurred while decoding events or from the
// HandlerFunc.
func (d *Decoder) Err() error {
	return d.err
}

// Events returns the number of events delivered so far.
func (d *Decoder) Events() int {
	return d.events
}

// OnRecordingStart implements Listener.
func (d *Decoder) OnRecordingStart() {}

// OnRecordingEnd implements Listener.
func (d *Decoder) OnRecordingEnd() {
	d.st, d.pending = nil, nil
}

// OnChunkStart implements Listener.
func (d *Decoder) OnChunkStart(index int, h Header) bool {
	if d.err != nil {
		return false
	}
	d.st = newState(index, h.Compressed())
	d.pending = d.pending[:0]
	return true
}

// OnMetadata implements Listener.
func (d *Decoder) OnMetadata(md *Metadata) bool {
	d.st.md = md
	return true
}

// OnEvent implements Listener.
func (d *Decoder) OnEvent(typeID event.ID, view *Stream, size int64) bool {
	if typeID == ConstantPoolID {
		if err := d.st.addPool(view); err != nil {
			d.err = err
			return false
		}
		return true
	}
	d.pending = append(d.pending, record{id: typeID, view: view, size: size})
	return true
}

// OnChunkEnd implements Listener.
func (d *Decoder) OnChunkEnd(index int, interrupted bool) bool {
	defer func() { d.pending = d.pending[:0] }()
	if d.err != nil {
		return false
	}
	if interrupted {
		return true
	}

	for _, rec := range d.pending {
		evt, err := d.st.decode(rec.id, rec.view, rec.size)
		if err != nil {
			d.err = err
			return false
		}
		if err := d.fn(evt); err != nil {
			d.err = err
			return false
		}
		d.events++
	}
	return true
}
