package encoding

import (
	"bufio"
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
)

var gzipMagic = []byte{0x1f, 0x8b}

// sniff returns a reader over the recording held by r, transparently
// decompressing it when it begins with the gzip magic.
func sniff(r *bufio.Reader) (*bufio.Reader, error) {
	b, err := r.Peek(len(gzipMagic))
	if err != nil || !bytes.Equal(b, gzipMagic) {
		// Short or failing input is reported by the first header read.
		return r, nil
	}

	zr, err := gzip.NewReader(r)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, truncatedf(`gzip header: %v`, err)
		}
		return nil, invalidf(`gzip header: %v`, err)
	}
	return bufio.NewReader(zr), nil
}

func newBufioReader(r io.Reader) *bufio.Reader {
	if buf, ok := r.(*bufio.Reader); ok {
		return buf
	}
	return bufio.NewReader(r)
}

// readChunk reads one whole chunk from r, the header is validated before any
// of the body is read. It returns io.EOF only when r ends cleanly between
// chunks. When limit is positive larger chunks are rejected.
func readChunk(r io.Reader, limit int64) (Header, []byte, error) {
	h, err := decodeHeader(r)
	if err != nil {
		return h, nil, err
	}
	if limit > 0 && h.Size > limit {
		return h, nil, invalidf(`chunk size %d exceeds limit(%d)`, h.Size, limit)
	}

	// Grown as the body arrives, a bogus size in a short input will not
	// allocate the declared size up front.
	var buf bytes.Buffer
	buf.Grow(int(min(h.Size, 1<<20)))
	buf.Write(h.AppendBinary(make([]byte, 0, HeaderSize)))
	if _, err := buf.ReadFrom(io.LimitReader(r, h.Size-HeaderSize)); err != nil {
		if err == io.ErrUnexpectedEOF {
			return h, nil, truncatedf(`chunk body: %v`, err)
		}
		return h, nil, ioFailure(`read chunk body`, err)
	}
	if int64(buf.Len()) != h.Size {
		return h, nil, truncatedf(`chunk declares %d bytes; got %d`, h.Size, buf.Len())
	}
	return h, buf.Bytes(), nil
}

// ChunkReader splits a recording into its chunks without decoding them.
type ChunkReader struct {
	r     *bufio.Reader
	err   error
	init  bool
	limit int64
}

// NewChunkReader returns a ChunkReader over the recording read from r. Gzip
// compressed recordings are decompressed transparently. Of the parser options
// only WithChunkLimit applies.
func NewChunkReader(r io.Reader, opts ...ParserOption) *ChunkReader {
	var p Parser
	for _, opt := range opts {
		opt(&p)
	}
	return &ChunkReader{r: newBufioReader(r), limit: p.limit}
}

// Next returns the bytes of the next chunk, header included. It returns io.EOF
// once the recording ends cleanly, any other error is permanent.
func (c *ChunkReader) Next() ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	if !c.init {
		c.init = true
		if c.r, c.err = sniff(c.r); c.err != nil {
			return nil, c.err
		}
	}

	_, b, err := readChunk(c.r, c.limit)
	if err != nil {
		c.err = err
		return nil, err
	}
	return b, nil
}
