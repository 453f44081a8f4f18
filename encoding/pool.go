package encoding

import (
	"github.com/pkg/errors"

	"github.com/cstockton/go-jfr/event"
)

// ConstantPools is the chunk scoped constant pool store. Every pooled type gets
// its own pool mapping distinct values to indexes starting at 1, index 0 is
// the null reference. Values are keyed by their encoded fields so equal values
// share an index regardless of identity. A new store is needed for each chunk.
type ConstantPools struct {
	compressed bool
	reg        *event.Registry
	pools      map[event.ID]*constantPool
	order      []*constantPool

	// strings of at least strMin bytes are pooled when strType is set.
	strType *event.Type
	strMin  int
}

type constantPool struct {
	typ     *event.Type
	index   map[string]uint64
	entries [][]byte
}

// NewConstantPools returns an empty store whose entries are encoded in the
// given integer mode.
func NewConstantPools(compressed bool) *ConstantPools {
	return &ConstantPools{
		compressed: compressed,
		pools:      make(map[event.ID]*constantPool),
	}
}

// bind restricts the store to values whose types, at any depth, were
// registered with reg.
func (p *ConstantPools) bind(reg *event.Registry) {
	p.reg = reg
}

// checkType returns an error unless values of t may be encoded by p.
func (p *ConstantPools) checkType(t *event.Type) error {
	if p.reg != nil {
		if rt, ok := p.reg.Type(t.ID()); !ok || rt != t {
			return errors.Wrapf(event.ErrTypeMismatch, `type %v is not registered with this encoder`, t.Name())
		}
	}
	if !t.Defined() {
		return errors.Wrapf(event.ErrUnknownType, `type %v was declared but never registered`, t.Name())
	}
	return nil
}

// checkField returns an error unless fv may be encoded as field f of t.
func (p *ConstantPools) checkField(t *event.Type, f event.Field, fv event.Value) error {
	ft := fv.Type()
	switch {
	case ft == nil:
		return errors.Wrapf(event.ErrTypeMismatch, `field %v.%v is missing`, t.Name(), f.Name)
	case ft.ID() != f.Type:
		return errors.Wrapf(event.ErrTypeMismatch, `field %v.%v is %v, expected type id %d`,
			t.Name(), f.Name, ft.Name(), f.Type)
	case f.Array != (fv.Shape() == event.ShapeArray):
		return errors.Wrapf(event.ErrTypeMismatch, `field %v.%v array mismatch`, t.Name(), f.Name)
	}
	return p.checkType(ft)
}

// poolStrings enables string pooling for strings of at least min bytes.
func (p *ConstantPools) poolStrings(str *event.Type, min int) {
	if min < 1 {
		min = 1
	}
	p.strType, p.strMin = str, min
}

func (p *ConstantPools) pooledString(s string) bool {
	return p.strType != nil && len(s) >= p.strMin
}

// Intern returns the index of v in the pool of its type, adding it when no
// equal value was interned before. Pooled values nested in v are interned in
// the same store first. Null values are always index 0.
func (p *ConstantPools) Intern(v event.Value) (uint64, error) {
	if !v.IsValid() {
		return 0, errors.Wrap(event.ErrTypeMismatch, `intern invalid value`)
	}
	if v.IsNull() {
		return 0, nil
	}

	t := v.Type()
	if err := p.checkType(t); err != nil {
		return 0, err
	}
	if t.Kind() == event.String && v.Shape() == event.ShapeScalar {
		w := buffer{compressed: p.compressed}
		w.putString(v.Str(), false)
		return p.add(t, v.Str(), w.Bytes()), nil
	}
	if !t.Pooled() || v.Shape() != event.ShapeComposite {
		return 0, errors.Wrapf(event.ErrTypeMismatch, `%v values are not pooled`, t.Name())
	}

	w := buffer{compressed: p.compressed}
	if err := encodeFields(&w, v, p); err != nil {
		return 0, err
	}
	return p.add(t, string(w.Bytes()), w.Bytes()), nil
}

func (p *ConstantPools) add(t *event.Type, key string, body []byte) uint64 {
	cp, ok := p.pools[t.ID()]
	if !ok {
		cp = &constantPool{typ: t, index: make(map[string]uint64)}
		p.pools[t.ID()] = cp
		p.order = append(p.order, cp)
	}
	if idx, ok := cp.index[key]; ok {
		return idx
	}

	cp.entries = append(cp.entries, body)
	idx := uint64(len(cp.entries))
	cp.index[key] = idx
	return idx
}

// Len returns the total number of entries across all pools.
func (p *ConstantPools) Len() (n int) {
	for _, cp := range p.order {
		n += len(cp.entries)
	}
	return
}

// Entries returns the number of entries in the pool of t.
func (p *ConstantPools) Entries(t *event.Type) int {
	if cp, ok := p.pools[t.ID()]; ok {
		return len(cp.entries)
	}
	return 0
}

// Types returns the pooled types with at least one entry in first use order.
func (p *ConstantPools) Types() []*event.Type {
	out := make([]*event.Type, len(p.order))
	for i, cp := range p.order {
		out[i] = cp.typ
	}
	return out
}

// Flush appends one constant pool record per type to b: the type ID, the entry
// count and then every entry in insertion order as its index followed by its
// encoded fields.
func (p *ConstantPools) Flush(b []byte) []byte {
	w := &buffer{b: b, compressed: p.compressed}
	payload := &buffer{compressed: p.compressed}
	for _, cp := range p.order {
		payload.Reset()
		payload.putUint(uint64(cp.typ.ID()))
		payload.putUint(uint64(len(cp.entries)))
		for i, body := range cp.entries {
			payload.putUint(uint64(i + 1))
			payload.b = append(payload.b, body...)
		}
		w.putRecord(ConstantPoolID, payload.Bytes())
	}
	return w.Bytes()
}
