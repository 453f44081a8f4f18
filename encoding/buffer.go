package encoding

import (
	"encoding/binary"
	"math"

	"github.com/cstockton/go-jfr/event"
)

// buffer accumulates encoded bytes in one integer mode. It never fails, errors
// only surface when its contents are written to the sink.
type buffer struct {
	b          []byte
	compressed bool
}

func (w *buffer) Len() int      { return len(w.b) }
func (w *buffer) Bytes() []byte { return w.b }
func (w *buffer) Reset()        { w.b = w.b[:0] }

func (w *buffer) putByte(v byte) {
	w.b = append(w.b, v)
}

func (w *buffer) putBool(v bool) {
	if v {
		w.b = append(w.b, 1)
		return
	}
	w.b = append(w.b, 0)
}

// putUint writes a framing integer.
func (w *buffer) putUint(v uint64) {
	if w.compressed {
		w.b = AppendUvarint(w.b, v)
		return
	}
	w.b = binary.BigEndian.AppendUint64(w.b, v)
}

// putInt writes an integer scalar of kind k, see Stream.ReadInt.
func (w *buffer) putInt(k event.Kind, v int64) {
	switch k {
	case event.Byte, event.Boolean:
		w.b = append(w.b, byte(v))
		return
	}

	if w.compressed {
		if k == event.Char {
			w.b = AppendUvarint(w.b, uint64(uint16(v)))
			return
		}
		w.b = AppendVarint(w.b, v)
		return
	}

	switch k {
	case event.Char, event.Short:
		w.b = binary.BigEndian.AppendUint16(w.b, uint16(v))
	case event.Int:
		w.b = binary.BigEndian.AppendUint32(w.b, uint32(v))
	default:
		w.b = binary.BigEndian.AppendUint64(w.b, uint64(v))
	}
}

func (w *buffer) putFloat32(v float32) {
	w.b = binary.BigEndian.AppendUint32(w.b, math.Float32bits(v))
}

func (w *buffer) putFloat64(v float64) {
	w.b = binary.BigEndian.AppendUint64(w.b, math.Float64bits(v))
}

func (w *buffer) putString(s string, null bool) {
	switch {
	case null:
		w.b = append(w.b, stringNull)
	case s == ``:
		w.b = append(w.b, stringEmpty)
	default:
		w.b = append(w.b, stringUTF8)
		w.putUint(uint64(len(s)))
		w.b = append(w.b, s...)
	}
}

func (w *buffer) putStringRef(idx uint64) {
	w.b = append(w.b, stringPool)
	w.putUint(idx)
}

// putRecord frames payload as a record of the given type. The size includes
// the size field itself.
func (w *buffer) putRecord(typeID uint64, payload []byte) {
	if !w.compressed {
		w.putUint(uint64(8 + 8 + len(payload)))
		w.putUint(typeID)
		w.b = append(w.b, payload...)
		return
	}

	rest := UvarintLen(typeID) + len(payload)
	size := rest + 1
	for UvarintLen(uint64(size))+rest != size {
		size = rest + UvarintLen(uint64(size))
	}
	w.putUint(uint64(size))
	w.putUint(typeID)
	w.b = append(w.b, payload...)
}
