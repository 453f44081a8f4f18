// Package encoding implements a chunked binary recording format: an Encoder
// that writes typed event values into self contained chunks and a streaming
// Parser that reads them back, chunk by chunk, through a Listener. For a higher
// level interface see the parent jfr package.
//
// Overview
//
// A recording is a plain concatenation of chunks. Every chunk starts with a
// fixed 68 byte header followed by a metadata record declaring each type used
// in the chunk, one constant pool record per pooled type and finally the event
// records themselves. Type IDs and constant pool indexes are scoped to the
// chunk that declares them, so any chunk may be decoded on its own.
//
// Every record is framed by its total size and a type ID. The metadata record
// uses MetadataID and constant pool records use ConstantPoolID, every other ID
// refers to a type declared by the metadata record of the same chunk.
//
// Integers
//
// The header is always fixed width big endian. Integers inside the body are
// either LEB128 varints or fixed width big endian depending on the
// FlagCompressedInts bit of the header flags. Signed varints are zig-zag
// encoded. Floating point values are always written as big endian IEEE-754.
//
// Compatibility
//
// Chunks with a different major version are rejected with ErrInvalidFormat.
// Chunks with a newer minor version are read, any header bytes beyond the ones
// known to this package are skipped by honoring the metadata offset.
package encoding

import (
	"fmt"

	"github.com/pkg/errors"
)

// Version of the chunk format declared in every chunk header.
type Version struct {
	Major, Minor uint16
}

// Latest is the version written by the Encoder.
var Latest = Version{Major: 2, Minor: 0}

// Supported returns true if chunks of this version can be decoded.
func (v Version) Supported() bool {
	return v.Major == Latest.Major
}

// String implements fmt.Stringer.
func (v Version) String() string {
	return fmt.Sprintf(`Version(%d.%d)`, v.Major, v.Minor)
}

const (

	// HeaderSize is the size of the fixed chunk header.
	HeaderSize = 68

	// MetadataID is the reserved type ID of metadata records.
	MetadataID = 0

	// ConstantPoolID is the reserved type ID of constant pool records.
	ConstantPoolID = 1

	// FlagCompressedInts marks chunks whose body integers are varints.
	FlagCompressedInts uint16 = 1 << 0
)

// Magic are the leading bytes of every chunk.
var Magic = [4]byte{'F', 'L', 'R', 0}

const (
	// Guards against a bad recording or decoder bug from causing oom
	maxMakeSize  = 1e6
	maxChunkSize = 1 << 31

	// Maximum number of bytes to encode uint64 in base-128.
	maxVarintLen = 10
)

// String encodings, the first byte of every encoded string.
const (
	stringNull  byte = 0
	stringEmpty byte = 1
	stringPool  byte = 2
	stringUTF8  byte = 3
)

var (

	// ErrTruncatedInput occurs when the input ends in the middle of a value,
	// record or chunk.
	ErrTruncatedInput = errors.New(`truncated input`)

	// ErrInvalidFormat occurs when the input is not a recording, or is
	// structurally inconsistent.
	ErrInvalidFormat = errors.New(`invalid format`)

	// ErrVarintOverflow occurs when a varint does not terminate within 10 bytes.
	ErrVarintOverflow = errors.New(`varint overflows 64 bits`)

	// ErrIO is matched by every *IOError with errors.Is.
	ErrIO = errors.New(`io failure`)

	// ErrClosed occurs when an Encoder is used after FinishRecording.
	ErrClosed = errors.New(`recording is finished`)
)

// IOError is returned when the underlying reader or writer fails.
type IOError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *IOError) Error() string {
	return fmt.Sprintf(`%v: %v: %v`, ErrIO, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *IOError) Unwrap() error { return e.Err }

// Is reports whether target is ErrIO.
func (e *IOError) Is(target error) bool { return target == ErrIO }

func ioFailure(op string, err error) error {
	return &IOError{Op: op, Err: err}
}

func invalidf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidFormat, format, args...)
}

func truncatedf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrTruncatedInput, format, args...)
}
