package encoding

import (
	"encoding/binary"
	"io"
	"math"
	"unicode/utf8"

	"github.com/cstockton/go-jfr/event"
)

// Stream is a read only view over a bounded region of a chunk with a forward
// cursor. Integers are decoded according to the integer mode of the chunk the
// bytes came from. Views handed to a Listener are only valid until the
// OnChunkEnd call of their chunk returns.
type Stream struct {
	buf        []byte
	off        int
	base       int64
	compressed bool
}

// NewStream returns a view over b. When compressed is true integers are read as
// varints, otherwise as fixed width big endian values.
func NewStream(b []byte, compressed bool) *Stream {
	return &Stream{buf: b, compressed: compressed}
}

// Compressed reports the integer mode of this view.
func (s *Stream) Compressed() bool { return s.compressed }

// Len returns the size of the whole view.
func (s *Stream) Len() int { return len(s.buf) }

// Remaining returns the number of unread bytes.
func (s *Stream) Remaining() int { return len(s.buf) - s.off }

// Offset returns the cursor position relative to the start of the view.
func (s *Stream) Offset() int { return s.off }

// Position returns the cursor position relative to the start of the chunk.
func (s *Stream) Position() int64 { return s.base + int64(s.off) }

// Bytes returns the unread bytes without copying them.
func (s *Stream) Bytes() []byte { return s.buf[s.off:] }

// ReadByte implements io.ByteReader.
func (s *Stream) ReadByte() (byte, error) {
	if s.off >= len(s.buf) {
		return 0, io.EOF
	}
	b := s.buf[s.off]
	s.off++
	return b, nil
}

// Next returns the next n bytes without copying them.
func (s *Stream) Next(n int) ([]byte, error) {
	if n < 0 || n > s.Remaining() {
		return nil, truncatedf(`need %d bytes at 0x%x; have %d`, n, s.Position(), s.Remaining())
	}
	b := s.buf[s.off : s.off+n]
	s.off += n
	return b, nil
}

// Skip advances the cursor by n bytes.
func (s *Stream) Skip(n int) error {
	_, err := s.Next(n)
	return err
}

// Sub returns a view over the next n bytes and advances past them.
func (s *Stream) Sub(n int) (*Stream, error) {
	pos := s.Position()
	b, err := s.Next(n)
	if err != nil {
		return nil, err
	}
	return &Stream{buf: b, base: pos, compressed: s.compressed}, nil
}

// ReadUvarint reads an unsigned varint regardless of the integer mode.
func (s *Stream) ReadUvarint() (uint64, error) {
	return ReadUvarint(s)
}

// ReadVarint reads a zig-zag varint regardless of the integer mode.
func (s *Stream) ReadVarint() (int64, error) {
	return ReadVarint(s)
}

// ReadUint reads a framing integer such as a size, count, type ID or constant
// pool index.
func (s *Stream) ReadUint() (uint64, error) {
	if s.compressed {
		return s.ReadUvarint()
	}
	b, err := s.Next(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// ReadInt reads an integer scalar of the given kind, which must be one of
// Byte, Char, Short, Int, Long or Boolean.
func (s *Stream) ReadInt(k event.Kind) (int64, error) {
	switch k {
	case event.Byte:
		b, err := s.ReadByteValue()
		return int64(int8(b)), err
	case event.Boolean:
		b, err := s.ReadByteValue()
		return int64(b), err
	}

	if s.compressed {
		if k == event.Char {
			v, err := s.ReadUvarint()
			return int64(v), err
		}
		return s.ReadVarint()
	}

	switch k {
	case event.Char:
		b, err := s.Next(2)
		if err != nil {
			return 0, err
		}
		return int64(binary.BigEndian.Uint16(b)), nil
	case event.Short:
		b, err := s.Next(2)
		if err != nil {
			return 0, err
		}
		return int64(int16(binary.BigEndian.Uint16(b))), nil
	case event.Int:
		b, err := s.Next(4)
		if err != nil {
			return 0, err
		}
		return int64(int32(binary.BigEndian.Uint32(b))), nil
	case event.Long:
		b, err := s.Next(8)
		if err != nil {
			return 0, err
		}
		return int64(binary.BigEndian.Uint64(b)), nil
	}
	return 0, invalidf(`kind %v is not an integer`, k)
}

// ReadByteValue reads a single byte, failing with ErrTruncatedInput at the end
// of the view.
func (s *Stream) ReadByteValue() (byte, error) {
	b, err := s.ReadByte()
	if err != nil {
		return 0, truncatedf(`need 1 byte at 0x%x`, s.Position())
	}
	return b, nil
}

// ReadBool reads a boolean byte.
func (s *Stream) ReadBool() (bool, error) {
	b, err := s.ReadByteValue()
	return b != 0, err
}

// ReadFloat32 reads a big endian IEEE-754 float.
func (s *Stream) ReadFloat32() (float32, error) {
	b, err := s.Next(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b)), nil
}

// ReadFloat64 reads a big endian IEEE-754 double.
func (s *Stream) ReadFloat64() (float64, error) {
	b, err := s.Next(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

// StringRef is a decoded string slot, it either holds the string or, when
// Pooled is true, the index of the string in the constant pool of the builtin
// string type.
type StringRef struct {
	Null   bool
	Pooled bool
	Index  uint64
	Value  string
}

// ReadStringRef reads an encoded string which may reference the string pool.
func (s *Stream) ReadStringRef() (StringRef, error) {
	pos := s.Position()
	tag, err := s.ReadByteValue()
	if err != nil {
		return StringRef{}, err
	}

	switch tag {
	case stringNull:
		return StringRef{Null: true}, nil
	case stringEmpty:
		return StringRef{}, nil
	case stringPool:
		idx, err := s.ReadUint()
		if err != nil {
			return StringRef{}, err
		}
		return StringRef{Pooled: true, Index: idx}, nil
	case stringUTF8:
		n, err := s.ReadUint()
		if err != nil {
			return StringRef{}, err
		}
		if n > uint64(s.Remaining()) {
			return StringRef{}, truncatedf(`string of %d bytes at 0x%x`, n, pos)
		}
		b, _ := s.Next(int(n))
		if !utf8.Valid(b) {
			return StringRef{}, invalidf(`string at 0x%x is not valid utf-8`, pos)
		}
		return StringRef{Value: string(b)}, nil
	}
	return StringRef{}, invalidf(`unknown string encoding %d at 0x%x`, tag, pos)
}

// ReadString reads an encoded string that may not reference a constant pool.
func (s *Stream) ReadString() (str string, null bool, err error) {
	pos := s.Position()
	ref, err := s.ReadStringRef()
	if err != nil {
		return ``, false, err
	}
	if ref.Pooled {
		return ``, false, invalidf(`unexpected pooled string at 0x%x`, pos)
	}
	return ref.Value, ref.Null, nil
}

// ReadRecord reads the size and type ID framing a record and returns a view
// over its payload along with the total size of the record.
func (s *Stream) ReadRecord() (typeID uint64, payload *Stream, size int64, err error) {
	start := s.off
	pos := s.Position()

	n, err := s.ReadUint()
	if err != nil {
		return 0, nil, 0, err
	}
	head := uint64(s.off - start)
	if n <= head {
		return 0, nil, 0, invalidf(`record at 0x%x has size %d`, pos, n)
	}
	if n-head > uint64(s.Remaining()) {
		return 0, nil, 0, truncatedf(`record at 0x%x has size %d; %d bytes remain`,
			pos, n, s.Remaining()+int(head))
	}

	body, _ := s.Sub(int(n - head))
	if typeID, err = body.ReadUint(); err != nil {
		return 0, nil, 0, invalidf(`record at 0x%x: %v`, pos, err)
	}
	rest, _ := body.Sub(body.Remaining())
	return typeID, rest, int64(n), nil
}
