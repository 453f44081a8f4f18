package encoding

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/cstockton/go-jfr/event"
)

// ChunkState is the state of the chunk an Encoder is writing.
type ChunkState int

// Chunk states, a chunk moves from Empty to Open when it is begun or receives
// its first event, and from Open to Flushed once it is written to the sink.
const (
	ChunkEmpty ChunkState = iota
	ChunkOpen
	ChunkFlushed
)

// String implements fmt.Stringer.
func (s ChunkState) String() string {
	switch s {
	case ChunkEmpty:
		return `Empty`
	case ChunkOpen:
		return `Open`
	case ChunkFlushed:
		return `Flushed`
	}
	return `ChunkState(invalid)`
}

// Option configures an Encoder.
type Option func(e *Encoder)

// WithCompressedInts selects the integer mode of chunk bodies, varints when
// true which is the default.
func WithCompressedInts(v bool) Option {
	return func(e *Encoder) { e.compressed = v }
}

// WithStringPool interns strings of at least min bytes into the constant pool
// of the builtin string type.
func WithStringPool(min int) Option {
	return func(e *Encoder) {
		if min < 1 {
			min = 1
		}
		e.strMin = min
	}
}

// WithRegistry sets the registry events must be built from. When not given
// the Encoder creates its own, see Registry.
func WithRegistry(reg *event.Registry) Option {
	return func(e *Encoder) { e.reg = reg }
}

// WithLogger sets the logger chunk flushes are reported to at debug level.
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Encoder) { e.log = log }
}

// WithClock sets the clock used for chunk start times and durations.
func WithClock(now func() time.Time) Option {
	return func(e *Encoder) { e.now = now }
}

// WithTicksPerSecond sets the tick frequency declared in chunk headers.
func WithTicksPerSecond(n int64) Option {
	return func(e *Encoder) { e.tps = n }
}

// WithMaxChunkSize finishes the open chunk once its events occupy at least n
// bytes, the next event starts a new chunk.
func WithMaxChunkSize(n int) Option {
	return func(e *Encoder) { e.maxChunk = n }
}

// Encoder writes events to an output stream as a sequence of self contained
// chunks.
//
// Events are buffered until the chunk is finished, at which point the
// metadata and constant pools for the events it holds are written ahead of
// them. The first failure of the output stream is permanent, all future calls
// will return the same *IOError.
type Encoder struct {
	w          *offsetWriter
	err        error
	closed     bool
	reg        *event.Registry
	log        logrus.FieldLogger
	now        func() time.Time
	tps        int64
	compressed bool
	strMin     int
	maxChunk   int

	// state of the current chunk
	state   ChunkState
	gen     uint8
	chunks  int
	start   time.Time
	count   int
	touched map[event.ID]bool
	pools   *ConstantPools
	events  buffer
	scratch buffer
}

// NewEncoder returns a new encoder that emits chunks to w. If w implements
// io.Closer it is closed by FinishRecording.
func NewEncoder(w io.Writer, opts ...Option) *Encoder {
	e := &Encoder{
		w:          &offsetWriter{w: w},
		log:        discardLogger(),
		now:        time.Now,
		tps:        1e9,
		compressed: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.reg == nil {
		e.reg = event.NewRegistry()
	}
	return e
}

// Create creates or truncates the named file and returns an Encoder writing to
// it. The file is closed by FinishRecording.
func Create(path string, opts ...Option) (*Encoder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, ioFailure(`create recording`, err)
	}
	return NewEncoder(f, opts...), nil
}

// Registry returns the registry events written to e must be built from.
func (e *Encoder) Registry() *event.Registry {
	return e.reg
}

// State returns the state of the current chunk.
func (e *Encoder) State() ChunkState {
	return e.state
}

// Chunks returns the number of chunks written so far.
func (e *Encoder) Chunks() int {
	return e.chunks
}

// Err returns the first error that occurred while writing, once an error
// occurs all future calls to Err() will return the same value.
func (e *Encoder) Err() error {
	return e.err
}

func (e *Encoder) check() error {
	if e.err != nil {
		return e.err
	}
	if e.closed {
		return ErrClosed
	}
	return nil
}

// BeginChunk opens a new chunk with fresh constant pools. It does nothing if
// a chunk is already open.
func (e *Encoder) BeginChunk() error {
	if err := e.check(); err != nil {
		return err
	}
	if e.state == ChunkOpen {
		return nil
	}

	e.pools = NewConstantPools(e.compressed)
	e.pools.bind(e.reg)
	if e.strMin > 0 {
		e.pools.poolStrings(e.reg.Builtin(event.String), e.strMin)
	}
	e.touched = make(map[event.ID]bool)
	e.events = buffer{compressed: e.compressed}
	e.scratch = buffer{compressed: e.compressed}
	e.count = 0
	e.start = e.now()
	e.state = ChunkOpen
	return nil
}

// WriteEvent appends v to the open chunk, opening one if needed. The value
// must be a non-null composite whose type was registered in the registry of
// e, pooled values it holds are interned into the constant pools of the chunk.
func (e *Encoder) WriteEvent(v event.Value) error {
	if err := e.check(); err != nil {
		return err
	}
	if !v.IsValid() || v.Shape() != event.ShapeComposite {
		return errors.Wrapf(event.ErrTypeMismatch, `event must be a composite value; got %v`, v.Shape())
	}
	t := v.Type()
	if rt, ok := e.reg.Type(t.ID()); !ok || rt != t {
		return errors.Wrapf(event.ErrTypeMismatch, `event type %v is not registered with this encoder`, t.Name())
	}
	if err := e.BeginChunk(); err != nil {
		return err
	}

	e.scratch.Reset()
	if err := encodeFields(&e.scratch, v, e.pools); err != nil {
		return err
	}
	e.touched[t.ID()] = true
	e.events.putRecord(uint64(t.ID()), e.scratch.Bytes())
	e.count++

	if e.maxChunk > 0 && e.events.Len() >= e.maxChunk {
		return e.FinishChunk()
	}
	return nil
}

// FinishChunk writes the open chunk to the output stream: the header, the
// metadata record, the constant pool records and then the buffered events.
// It does nothing when no chunk is open.
func (e *Encoder) FinishChunk() error {
	if err := e.check(); err != nil {
		return err
	}
	if e.state != ChunkOpen {
		return nil
	}

	for _, t := range e.pools.Types() {
		e.touched[t.ID()] = true
	}
	types := metadataClosure(e.reg, e.touched)

	body := &buffer{compressed: e.compressed}
	body.putRecord(MetadataID, encodeMetadata(types, e.compressed))

	var cpOffset int64
	if e.pools.Len() > 0 {
		cpOffset = int64(HeaderSize + body.Len())
		body.b = e.pools.Flush(body.b)
	}
	body.b = append(body.b, e.events.Bytes()...)

	end := e.now()
	dur := end.Sub(e.start)
	if dur < 0 {
		dur = 0
	}
	h := Header{
		Version:        Latest,
		Size:           int64(HeaderSize + body.Len()),
		CPOffset:       cpOffset,
		MetadataOffset: HeaderSize,
		StartNanos:     e.start.UnixNano(),
		DurationNanos:  int64(dur),
		StartTicks:     e.ticks(e.start),
		TicksPerSecond: e.tps,
		Generation:     e.gen,
	}
	if e.compressed {
		h.Flags |= FlagCompressedInts
	}

	out := h.AppendBinary(make([]byte, 0, h.Size))
	out = append(out, body.Bytes()...)
	if err := e.write(out); err != nil {
		return err
	}

	e.log.WithFields(logrus.Fields{
		`chunk`:      e.chunks + 1,
		`size`:       h.Size,
		`events`:     e.count,
		`types`:      len(types),
		`pooled`:     e.pools.Len(),
		`generation`: e.gen,
	}).Debug(`finished chunk`)

	e.chunks++
	e.gen++
	e.state = ChunkFlushed
	e.pools, e.touched = nil, nil
	e.events, e.scratch = buffer{}, buffer{}
	return nil
}

// RotateChunk finishes the open chunk and begins a new one.
func (e *Encoder) RotateChunk() error {
	if err := e.FinishChunk(); err != nil {
		return err
	}
	return e.BeginChunk()
}

// FinishRecording finishes the open chunk and closes the output stream if it
// is an io.Closer. The Encoder may not be used afterwards.
func (e *Encoder) FinishRecording() error {
	if e.closed {
		return ErrClosed
	}
	err := e.FinishChunk()
	e.closed = true

	if c, ok := e.w.w.(io.Closer); ok {
		if cerr := c.Close(); cerr != nil {
			err = multierr.Append(err, ioFailure(`close recording`, cerr))
		}
	}
	return err
}

func (e *Encoder) write(b []byte) error {
	n, err := e.w.Write(b)
	if err == nil && n != len(b) {
		err = io.ErrShortWrite
	}
	if err != nil {
		e.err = ioFailure(`write chunk`, errors.Wrapf(err, `at 0x%x`, e.w.Off()))
		return e.err
	}
	return nil
}

// ticks converts a wall clock time into the tick unit of chunk headers.
func (e *Encoder) ticks(t time.Time) int64 {
	nanos := t.UnixNano()
	if e.tps == 1e9 {
		return nanos
	}
	sec, rem := nanos/1e9, nanos%1e9
	return sec*e.tps + rem*e.tps/1e9
}

type offsetWriter struct {
	w   io.Writer
	off int64
}

func (r *offsetWriter) Off() int64 {
	return r.off
}

func (r *offsetWriter) Write(p []byte) (n int, err error) {
	n, err = r.w.Write(p)
	r.off += int64(n)
	return
}

func discardLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
