package encoding

import (
	"bufio"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/cstockton/go-jfr/event"
)

// Listener receives the structure of a recording from a Parser. Methods that
// return a bool may cancel parsing by returning false:
//
//   OnChunkStart -> OnChunkEnd(index, true), no further chunks are parsed
//   OnMetadata   -> OnChunkEnd(index, true), parsing resumes at the next chunk
//   OnEvent      -> OnChunkEnd(index, true), parsing resumes at the next chunk
//   OnChunkEnd   -> no further chunks are parsed
//
// OnRecordingStart and OnRecordingEnd are always called exactly once, even
// when parsing fails.
type Listener interface {
	OnRecordingStart()
	OnChunkStart(index int, h Header) bool
	OnMetadata(md *Metadata) bool

	// OnEvent is called for every record following the metadata record,
	// constant pool records are delivered with the ConstantPoolID type ID.
	// The view covers the record payload after its size and type ID, it is
	// only valid until OnChunkEnd returns for the chunk holding it.
	OnEvent(typeID event.ID, view *Stream, size int64) bool
	OnChunkEnd(index int, interrupted bool) bool
	OnRecordingEnd()
}

// NopListener implements every Listener method by doing nothing and never
// cancelling, it may be embedded to implement only some of them.
type NopListener struct{}

func (NopListener) OnRecordingStart() {}
func (NopListener) OnChunkStart(index int, h Header) bool { return true }
func (NopListener) OnMetadata(md *Metadata) bool { return true }
func (NopListener) OnEvent(typeID event.ID, v *Stream, n int64) bool { return true }
func (NopListener) OnChunkEnd(index int, interrupted bool) bool { return true }
func (NopListener) OnRecordingEnd() {}

// ParserOption configures a Parser.
type ParserOption func(p *Parser)

// WithParserLogger sets the logger parse progress is reported to at debug
// level.
func WithParserLogger(log logrus.FieldLogger) ParserOption {
	return func(p *Parser) { p.log = log }
}

// WithChunkLimit rejects chunks declaring a size above n bytes with
// ErrInvalidFormat.
func WithChunkLimit(n int64) ParserOption {
	return func(p *Parser) { p.limit = n }
}

// Parser reads a recording chunk by chunk and reports its structure to a
// Listener. Every chunk is read into memory whole before any of its records
// are delivered.
type Parser struct {
	r     *bufio.Reader
	log   logrus.FieldLogger
	limit int64
}

// NewParser returns a new parser that reads from r. If the given r is a
// bufio.Reader then the parser will use it for buffering, otherwise creating
// a new bufio.Reader. Gzip compressed recordings are decompressed
// transparently.
func NewParser(r io.Reader, opts ...ParserOption) *Parser {
	p := &Parser{r: newBufioReader(r), log: discardLogger()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse reads the recording until it ends, fails or l cancels it. A recording
// without any bytes is valid and holds no chunks. Errors in a chunk header
// are returned without any chunk callbacks, errors within an announced chunk
// are returned after OnChunkEnd(index, true).
func (p *Parser) Parse(l Listener) error {
	l.OnRecordingStart()
	defer l.OnRecordingEnd()

	r, err := sniff(p.r)
	if err != nil {
		return err
	}
	for i := 1; ; i++ {
		h, b, err := readChunk(r, p.limit)
		if err == io.EOF {
			p.log.WithField(`chunks`, i-1).Debug(`finished recording`)
			return nil
		}
		if err != nil {
			return err
		}

		more, err := p.parseChunk(i, h, b, l)
		if err != nil {
			p.log.WithError(err).WithField(`chunk`, i).Debug(`failed chunk`)
			return err
		}
		if !more {
			p.log.WithField(`chunk`, i).Debug(`parsing cancelled`)
			return nil
		}
	}
}

// parseChunk delivers a single chunk to l and reports if parsing may continue
// with the next one.
func (p *Parser) parseChunk(i int, h Header, b []byte, l Listener) (bool, error) {
	p.log.WithFields(logrus.Fields{
		`chunk`:      i,
		`size`:       h.Size,
		`generation`: h.Generation,
		`version`:    h.Version.String(),
	}).Debug(`parsing chunk`)

	if !l.OnChunkStart(i, h) {
		l.OnChunkEnd(i, true)
		return false, nil
	}

	s := NewStream(b, h.Compressed())
	md, err := readMetadata(s, h)
	if err != nil {
		l.OnChunkEnd(i, true)
		return false, err
	}
	if !l.OnMetadata(md) {
		return l.OnChunkEnd(i, true), nil
	}

	var events int
	for s.Remaining() > 0 {
		pos := s.Position()
		typeID, view, size, err := s.ReadRecord()
		if err != nil {
			l.OnChunkEnd(i, true)
			return false, err
		}
		if typeID == MetadataID {
			l.OnChunkEnd(i, true)
			return false, invalidf(`second metadata record at 0x%x`, pos)
		}
		if !l.OnEvent(event.ID(typeID), view, size) {
			return l.OnChunkEnd(i, true), nil
		}
		events++
	}

	p.log.WithFields(logrus.Fields{`chunk`: i, `events`: events}).Debug(`parsed chunk`)
	return l.OnChunkEnd(i, false), nil
}
