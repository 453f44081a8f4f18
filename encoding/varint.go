package encoding

import (
	"io"

	"github.com/pkg/errors"
)

// AppendUvarint appends v to b as an unsigned LEB128 varint, least significant
// group first.
func AppendUvarint(b []byte, v uint64) []byte {
	for ; v >= 0x80; v >>= 7 {
		b = append(b, 0x80|byte(v))
	}
	return append(b, byte(v))
}

// AppendVarint appends v to b zig-zag encoded.
func AppendVarint(b []byte, v int64) []byte {
	return AppendUvarint(b, ZigZag(v))
}

// WriteUvarint will write one unsigned LEB128 encoded value to w.
func WriteUvarint(w io.ByteWriter, v uint64) error {
	for ; v >= 0x80; v >>= 7 {
		if err := w.WriteByte(0x80 | byte(v)); err != nil {
			return ioFailure(`write varint`, err)
		}
	}
	if err := w.WriteByte(byte(v)); err != nil {
		return ioFailure(`write varint`, err)
	}
	return nil
}

// WriteVarint will write one zig-zag LEB128 encoded value to w.
func WriteVarint(w io.ByteWriter, v int64) error {
	return WriteUvarint(w, ZigZag(v))
}

// ReadUvarint will read one unsigned LEB128 encoded value from r. It returns
// ErrTruncatedInput when r ends before the last byte of the value and
// ErrVarintOverflow when the value spans more than 10 bytes or does not fit in
// 64 bits.
func ReadUvarint(r io.ByteReader) (uint64, error) {
	var v, y uint64
	for i := 0; i < maxVarintLen; i, y = i+1, y+7 {
		byt, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return 0, errors.Wrap(ErrTruncatedInput, `read varint`)
			}
			return 0, ioFailure(`read varint`, err)
		}

		if i == maxVarintLen-1 && byt > 1 {
			return 0, ErrVarintOverflow
		}
		v |= uint64(byt&0x7f) << y
		if byt&0x80 == 0 {
			return v, nil
		}
	}
	return 0, ErrVarintOverflow
}

// ReadVarint will read one zig-zag LEB128 encoded value from r.
func ReadVarint(r io.ByteReader) (int64, error) {
	v, err := ReadUvarint(r)
	return UnZigZag(v), err
}

// UvarintLen returns the number of bytes AppendUvarint uses for v.
func UvarintLen(v uint64) int {
	n := 1
	for ; v >= 0x80; v >>= 7 {
		n++
	}
	return n
}

// ZigZag maps signed integers to unsigned ones so values of small magnitude
// have short encodings.
func ZigZag(v int64) uint64 {
	return uint64(v<<1) ^ uint64(v>>63)
}

// UnZigZag reverses ZigZag.
func UnZigZag(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}
