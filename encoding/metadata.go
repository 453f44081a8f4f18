package encoding

import (
	"slices"

	"github.com/samber/lo"

	"github.com/cstockton/go-jfr/event"
)

// Metadata is the decoded metadata record of a chunk. The Registry is rebuilt
// from the declared types and is only valid for the chunk it was read from.
type Metadata struct {
	Offset   int64
	Size     int64
	Types    []event.Descriptor
	Registry *event.Registry
}

// Type returns the declared type with the given ID.
func (md *Metadata) Type(id event.ID) (*event.Type, bool) {
	return md.Registry.Type(id)
}

// metadataClosure returns every type reachable from the touched IDs through
// field references, annotations and supertype names, ordered by ID.
func metadataClosure(reg *event.Registry, touched map[event.ID]bool) []*event.Type {
	seen := make(map[event.ID]*event.Type, len(touched))
	queue := lo.Keys(touched)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, ok := seen[id]; ok {
			continue
		}
		t, ok := reg.Type(id)
		if !ok {
			continue
		}
		seen[id] = t

		for _, a := range t.Annotations() {
			queue = append(queue, a.Type)
		}
		for _, f := range t.Fields() {
			queue = append(queue, f.Type)
			for _, a := range f.Annotations {
				queue = append(queue, a.Type)
			}
		}
		if super, ok := reg.Lookup(t.Super()); ok {
			queue = append(queue, super.ID())
		}
	}

	ids := lo.Keys(seen)
	slices.Sort(ids)
	return lo.Map(ids, func(id event.ID, _ int) *event.Type { return seen[id] })
}

// encodeMetadata returns the payload of a metadata record declaring types.
// Each type is written as its id, name, supertype, builtin and pooled flags,
// annotations and then fields. Each field is its name, type id, array flag and
// annotations.
func encodeMetadata(types []*event.Type, compressed bool) []byte {
	w := &buffer{compressed: compressed}
	w.putUint(uint64(len(types)))
	for _, t := range types {
		w.putUint(uint64(t.ID()))
		w.putString(t.Name(), false)
		w.putString(t.Super(), t.Super() == ``)
		w.putBool(t.Builtin())
		w.putBool(t.Pooled())
		putAnnotations(w, t.Annotations())
		w.putUint(uint64(t.NumField()))
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			w.putString(f.Name, false)
			w.putUint(uint64(f.Type))
			w.putBool(f.Array)
			putAnnotations(w, f.Annotations)
		}
	}
	return w.Bytes()
}

func putAnnotations(w *buffer, annots []event.Annotation) {
	w.putUint(uint64(len(annots)))
	for _, a := range annots {
		w.putUint(uint64(a.Type))
		w.putString(a.Value, a.Value == ``)
	}
}

func readAnnotations(s *Stream) ([]event.Annotation, error) {
	n, err := s.ReadUint()
	if err != nil {
		return nil, err
	}
	if maxMakeSize < n {
		return nil, invalidf(`annotation count %v exceeds allocation limit(%v)`, n, maxMakeSize)
	}
	if n == 0 {
		return nil, nil
	}

	annots := make([]event.Annotation, n)
	for i := range annots {
		typ, err := s.ReadUint()
		if err != nil {
			return nil, err
		}
		annots[i].Type = event.ID(typ)
		if annots[i].Value, _, err = s.ReadString(); err != nil {
			return nil, err
		}
	}
	return annots, nil
}

// decodeMetadata decodes the payload of a metadata record. Trailing bytes are
// only tolerated when lenient is set, which is the case for newer minor
// versions.
func decodeMetadata(s *Stream, lenient bool) ([]event.Descriptor, error) {
	count, err := s.ReadUint()
	if err != nil {
		return nil, err
	}
	if maxMakeSize < count {
		return nil, invalidf(`type count %v exceeds allocation limit(%v)`, count, maxMakeSize)
	}

	descs := make([]event.Descriptor, 0, count)
	for i := uint64(0); i < count; i++ {
		d, err := decodeDescriptor(s)
		if err != nil {
			return nil, err
		}
		descs = append(descs, d)
	}
	if !lenient && s.Remaining() > 0 {
		return nil, invalidf(`%d trailing bytes in metadata`, s.Remaining())
	}
	return descs, nil
}

func decodeDescriptor(s *Stream) (d event.Descriptor, err error) {
	id, err := s.ReadUint()
	if err != nil {
		return d, err
	}
	d.ID = event.ID(id)

	var null bool
	if d.Name, null, err = s.ReadString(); err != nil {
		return d, err
	}
	if null || d.Name == `` {
		return d, invalidf(`type id %d has no name`, id)
	}
	if d.Super, _, err = s.ReadString(); err != nil {
		return d, err
	}
	if d.Builtin, err = s.ReadBool(); err != nil {
		return d, err
	}
	if d.Pooled, err = s.ReadBool(); err != nil {
		return d, err
	}
	if d.Annotations, err = readAnnotations(s); err != nil {
		return d, err
	}

	n, err := s.ReadUint()
	if err != nil {
		return d, err
	}
	if maxMakeSize < n {
		return d, invalidf(`field count %v exceeds allocation limit(%v)`, n, maxMakeSize)
	}
	d.Fields = make([]event.Field, n)
	for i := range d.Fields {
		f := &d.Fields[i]
		if f.Name, _, err = s.ReadString(); err != nil {
			return d, err
		}
		typ, err := s.ReadUint()
		if err != nil {
			return d, err
		}
		f.Type = event.ID(typ)
		if f.Array, err = s.ReadBool(); err != nil {
			return d, err
		}
		if f.Annotations, err = readAnnotations(s); err != nil {
			return d, err
		}
	}
	return d, nil
}

// readMetadata decodes the metadata record found at the metadata offset of the
// chunk held by s.
func readMetadata(s *Stream, h Header) (*Metadata, error) {
	if err := s.Skip(int(h.MetadataOffset) - s.Offset()); err != nil {
		return nil, err
	}

	off := s.Position()
	typeID, payload, size, err := s.ReadRecord()
	if err != nil {
		return nil, err
	}
	if typeID != MetadataID {
		return nil, invalidf(`expected metadata record at 0x%x; got type id %d`, off, typeID)
	}

	lenient := h.Version.Minor > Latest.Minor
	descs, err := decodeMetadata(payload, lenient)
	if err != nil {
		return nil, err
	}
	reg, err := event.NewRegistryFrom(descs)
	if err != nil {
		return nil, invalidf(`metadata at 0x%x: %v`, off, err)
	}
	return &Metadata{Offset: off, Size: size, Types: descs, Registry: reg}, nil
}
