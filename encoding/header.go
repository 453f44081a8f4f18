package encoding

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Header is the fixed size header at the start of every chunk. All offsets are
// relative to the first byte of the chunk.
type Header struct {
	Version        Version
	Size           int64
	CPOffset       int64
	MetadataOffset int64
	StartNanos     int64
	DurationNanos  int64
	StartTicks     int64
	TicksPerSecond int64
	Generation     uint8
	Flags          uint16
}

// Compressed reports whether body integers are varints.
func (h Header) Compressed() bool {
	return h.Flags&FlagCompressedInts != 0
}

// Start returns the wall clock start time of the chunk.
func (h Header) Start() time.Time {
	return time.Unix(0, h.StartNanos)
}

// Duration returns the duration of the chunk.
func (h Header) Duration() time.Duration {
	return time.Duration(h.DurationNanos)
}

// String implements fmt.Stringer.
func (h Header) String() string {
	return fmt.Sprintf(`Header(%v size=%d cp=%d meta=%d start=%v dur=%v gen=%d compressed=%v)`,
		h.Version, h.Size, h.CPOffset, h.MetadataOffset,
		h.Start().UTC().Format(time.RFC3339Nano), h.Duration(), h.Generation, h.Compressed())
}

// AppendBinary appends the encoded header to b.
func (h Header) AppendBinary(b []byte) []byte {
	b = append(b, Magic[:]...)
	b = binary.BigEndian.AppendUint16(b, h.Version.Major)
	b = binary.BigEndian.AppendUint16(b, h.Version.Minor)
	for _, v := range [...]int64{
		h.Size, h.CPOffset, h.MetadataOffset, h.StartNanos,
		h.DurationNanos, h.StartTicks, h.TicksPerSecond,
	} {
		b = binary.BigEndian.AppendUint64(b, uint64(v))
	}
	b = append(b, h.Generation, 0)
	return binary.BigEndian.AppendUint16(b, h.Flags)
}

// decodeHeader will read a header consisting of exactly HeaderSize bytes from r.
// A clean io.EOF before the first byte is returned as is so callers can tell
// the end of a recording apart from a truncated chunk.
func decodeHeader(r io.Reader) (Header, error) {
	var b [HeaderSize]byte
	if n, err := io.ReadFull(r, b[:]); err != nil {
		if err == io.EOF {
			return Header{}, io.EOF
		}
		if err != io.ErrUnexpectedEOF {
			return Header{}, ioFailure(`read chunk header`, err)
		}

		// Small lookahead here for more intuitive error reporting.
		m := n
		if m > len(Magic) {
			m = len(Magic)
		}
		if string(b[:m]) != string(Magic[:m]) {
			return Header{}, invalidf(`missing chunk magic`)
		}
		return Header{}, truncatedf(`chunk header has %d of %d bytes`, n, HeaderSize)
	}
	return parseHeader(b[:])
}

func parseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, truncatedf(`chunk header has %d of %d bytes`, len(b), HeaderSize)
	}
	if string(b[:4]) != string(Magic[:]) {
		return Header{}, invalidf(`missing chunk magic`)
	}

	var h Header
	h.Version.Major = binary.BigEndian.Uint16(b[4:])
	h.Version.Minor = binary.BigEndian.Uint16(b[6:])
	if !h.Version.Supported() {
		return Header{}, invalidf(`unsupported chunk %v`, h.Version)
	}

	fields := [...]*int64{
		&h.Size, &h.CPOffset, &h.MetadataOffset, &h.StartNanos,
		&h.DurationNanos, &h.StartTicks, &h.TicksPerSecond,
	}
	for i, p := range fields {
		*p = int64(binary.BigEndian.Uint64(b[8+i*8:]))
	}
	h.Generation = b[64]
	h.Flags = binary.BigEndian.Uint16(b[66:])
	return h, h.validate()
}

func (h Header) validate() error {
	switch {
	case h.Size < HeaderSize || h.Size > maxChunkSize:
		return invalidf(`chunk size %d out of range`, h.Size)
	case h.MetadataOffset < HeaderSize || h.MetadataOffset >= h.Size:
		return invalidf(`metadata offset %d out of range for chunk size %d`,
			h.MetadataOffset, h.Size)
	case h.CPOffset != 0 && (h.CPOffset <= h.MetadataOffset || h.CPOffset >= h.Size):
		return invalidf(`constant pool offset %d out of range`, h.CPOffset)
	case h.TicksPerSecond < 0 || h.DurationNanos < 0:
		return invalidf(`negative clock fields`)
	}
	return nil
}
