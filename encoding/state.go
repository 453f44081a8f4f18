package encoding

import (
	"github.com/cstockton/go-jfr/event"
)

// state holds what a Decoder knows about the chunk being decoded: its metadata
// and the raw constant pool entries. Pool entries are only delimited when
// their record is seen, they are decoded on first reference and cached.
type state struct {
	chunk      int
	md         *Metadata
	compressed bool

	pools  map[event.ID]map[uint64][]byte
	values map[poolKey]event.Value

	// entries being resolved, to detect pool references to themselves
	active map[poolKey]bool
}

func newState(chunk int, compressed bool) *state {
	return &state{
		chunk:      chunk,
		compressed: compressed,
		pools:      make(map[event.ID]map[uint64][]byte),
		values:     make(map[poolKey]event.Value),
		active:     make(map[poolKey]bool),
	}
}

// addPool records the entries of a constant pool record payload.
func (s *state) addPool(r *Stream) error {
	if s.md == nil {
		return invalidf(`constant pool at 0x%x precedes metadata`, r.Position())
	}

	id, err := r.ReadUint()
	if err != nil {
		return err
	}
	t, ok := s.md.Type(event.ID(id))
	if !ok {
		return invalidf(`constant pool for unknown type id %d`, id)
	}
	if !t.Pooled() && t.Kind() != event.String {
		return invalidf(`constant pool for type %v which is not pooled`, t.Name())
	}

	n, err := r.ReadUint()
	if err != nil {
		return err
	}
	if maxMakeSize < n {
		return invalidf(`constant pool count %v exceeds allocation limit(%v)`, n, maxMakeSize)
	}

	pool, ok := s.pools[t.ID()]
	if !ok {
		pool = make(map[uint64][]byte, n)
		s.pools[t.ID()] = pool
	}
	for i := uint64(0); i < n; i++ {
		idx, err := r.ReadUint()
		if err != nil {
			return err
		}
		if idx == 0 {
			return invalidf(`constant pool %v declares index 0`, t.Name())
		}
		if _, ok := pool[idx]; ok {
			return invalidf(`constant pool %v declares index %d twice`, t.Name(), idx)
		}

		start := r.Offset()
		if err := s.skipEntry(t, r); err != nil {
			return err
		}
		pool[idx] = r.buf[start:r.Offset()]
	}
	if r.Remaining() > 0 {
		return invalidf(`%d trailing bytes in constant pool %v`, r.Remaining(), t.Name())
	}
	return nil
}

func (s *state) skipEntry(t *event.Type, r *Stream) error {
	if t.Kind() == event.String {
		_, _, err := r.ReadString()
		return err
	}
	_, err := s.decodeFields(t, r, false)
	return err
}

// resolve returns the value at index idx of the constant pool of t.
func (s *state) resolve(t *event.Type, idx uint64) (event.Value, error) {
	if idx == 0 {
		return event.Null(t)
	}

	key := poolKey{typ: t.ID(), idx: idx}
	if v, ok := s.values[key]; ok {
		return v, nil
	}
	raw, ok := s.pools[t.ID()][idx]
	if !ok {
		return event.Value{}, invalidf(`constant pool %v has no index %d`, t.Name(), idx)
	}
	if s.active[key] {
		return event.Value{}, invalidf(`constant pool %v index %d references itself`, t.Name(), idx)
	}
	s.active[key] = true
	defer delete(s.active, key)

	var (
		v   event.Value
		err error
		r   = NewStream(raw, s.compressed)
	)
	if t.Kind() == event.String {
		str, null, rerr := r.ReadString()
		switch {
		case rerr != nil:
			err = rerr
		case null:
			v, err = event.Null(t)
		default:
			v, err = event.Scalar(t, str)
		}
	} else {
		v, err = s.decodeFields(t, r, true)
	}
	if err != nil {
		return event.Value{}, err
	}

	s.values[key] = v
	return v, nil
}

// decode rebuilds the event of type id from the record payload r.
func (s *state) decode(id event.ID, r *Stream, size int64) (*Event, error) {
	pos := r.Position()
	t, ok := s.md.Type(id)
	if !ok {
		return nil, invalidf(`event at 0x%x has unknown type id %d`, pos, id)
	}
	if t.Primitive() {
		return nil, invalidf(`event at 0x%x has primitive type %v`, pos, t.Name())
	}

	v, err := s.decodeFields(t, r, true)
	if err != nil {
		return nil, err
	}
	if r.Remaining() > 0 {
		return nil, invalidf(`%d trailing bytes in event %v at 0x%x`, r.Remaining(), t.Name(), pos)
	}
	return &Event{Chunk: s.chunk, Type: t, Value: v, Size: size}, nil
}
