package encoding

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cstockton/go-jfr/event"
)

func TestNewEncoder(t *testing.T) {
	enc := NewEncoder(io.Discard)
	if enc == nil {
		t.Fatal(`expected non-nil encoder`)
	}
	if enc.Registry() == nil {
		t.Fatal(`expected a default registry`)
	}
	if exp, got := ChunkEmpty, enc.State(); exp != got {
		t.Fatalf(`exp state %v; got %v`, exp, got)
	}
	if !enc.compressed {
		t.Fatal(`exp compressed integers by default`)
	}
	if err := enc.Err(); err != nil {
		t.Fatalf(`exp nil Err; got %v`, err)
	}
}

func TestEncoderStates(t *testing.T) {
	tt := newTestTypes(t)
	var buf bytes.Buffer
	enc := NewEncoder(&buf, WithRegistry(tt.reg), WithClock(testClock))

	// finishing an empty chunk writes nothing
	require.NoError(t, enc.FinishChunk())
	assert.Equal(t, ChunkEmpty, enc.State())
	assert.Equal(t, 0, buf.Len())

	require.NoError(t, enc.WriteEvent(tt.newSample(t, 1)))
	assert.Equal(t, ChunkOpen, enc.State())
	assert.Equal(t, 0, buf.Len())

	require.NoError(t, enc.FinishChunk())
	assert.Equal(t, ChunkFlushed, enc.State())
	assert.Equal(t, 1, enc.Chunks())
	n := buf.Len()
	assert.True(t, n > HeaderSize)

	require.NoError(t, enc.FinishChunk())
	assert.Equal(t, n, buf.Len())

	require.NoError(t, enc.BeginChunk())
	assert.Equal(t, ChunkOpen, enc.State())
	require.NoError(t, enc.BeginChunk())
	require.NoError(t, enc.RotateChunk())
	assert.Equal(t, ChunkOpen, enc.State())
	assert.Equal(t, 2, enc.Chunks())

	require.NoError(t, enc.FinishRecording())
	assert.Equal(t, 3, enc.Chunks())
	assert.Equal(t, ChunkFlushed, enc.State())

	for _, err := range []error{
		enc.WriteEvent(tt.newSample(t, 2)),
		enc.BeginChunk(),
		enc.FinishChunk(),
		enc.FinishRecording(),
	} {
		assert.True(t, errors.Is(err, ErrClosed), `got %v`, err)
	}

	events := decodeAll(t, buf.Bytes())
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].Chunk)
}

func TestEncoderMismatch(t *testing.T) {
	tt := newTestTypes(t)
	enc := NewEncoder(io.Discard, WithRegistry(tt.reg))

	other := newTestTypes(t)
	node := tt.newNode(t, 1)
	null, err := event.Null(tt.node)
	require.NoError(t, err)
	long, err := event.Scalar(tt.reg.Builtin(event.Long), 1)
	require.NoError(t, err)

	for name, v := range map[string]event.Value{
		`Invalid`:  {},
		`Null`:     null,
		`Scalar`:   long,
		`Foreign`:  other.newSample(t, 1),
		`Inherent`: node,
	} {
		err := enc.WriteEvent(v)
		if name == `Inherent` {
			// pooled composites are valid events too
			assert.NoError(t, err, name)
			continue
		}
		assert.True(t, errors.Is(err, event.ErrTypeMismatch), `%v: got %v`, name, err)
	}

	// mismatches are not sticky
	assert.NoError(t, enc.Err())
	assert.NoError(t, enc.WriteEvent(tt.newSample(t, 1)))
}

// implicitNulls returns the default implicit event fields of reg.
func implicitNulls(t *testing.T, reg *event.Registry) []event.Value {
	st, _ := reg.Lookup(event.TypeStackTrace)
	th, _ := reg.Lookup(event.TypeThread)
	stNull, err := event.Null(st)
	require.NoError(t, err)
	thNull, err := event.Null(th)
	require.NoError(t, err)
	start, err := event.Scalar(reg.Builtin(event.Long), 0)
	require.NoError(t, err)
	return []event.Value{stNull, thNull, start}
}

func TestEncoderNestedMismatch(t *testing.T) {
	// both registries hand out the same id to their first composite
	a, b := event.NewRegistry(), event.NewRegistry()
	x, err := a.Register(`test.X`, func(bld *event.Builder) error {
		return bld.AddFieldByName(`n`, `long`, false)
	})
	require.NoError(t, err)
	y, err := b.Register(`test.Y`, func(bld *event.Builder) error {
		return bld.AddFieldByName(`s`, `java.lang.String`, false)
	})
	require.NoError(t, err)
	require.Equal(t, x.ID(), y.ID())

	holder, err := a.RegisterEvent(`test.XHolder`, func(bld *event.Builder) error {
		if err := bld.AddField(`x`, x, false); err != nil {
			return err
		}
		return bld.AddField(`xs`, x, true)
	})
	require.NoError(t, err)

	yv, err := b.NewValue(y, func(vb *event.ValueBuilder) error {
		return vb.PutScalar(`s`, `foreign`)
	})
	require.NoError(t, err)
	xv, err := a.NewValue(x, func(vb *event.ValueBuilder) error {
		return vb.PutScalar(`n`, 1)
	})
	require.NoError(t, err)
	foreignLong, err := event.Scalar(b.Builtin(event.Long), 1)
	require.NoError(t, err)
	xForeignField, err := event.NewComposite(x, []event.Value{foreignLong})
	require.NoError(t, err)

	arr := func(vs ...event.Value) event.Value {
		v, err := event.Array(vs[0].Type(), vs...)
		require.NoError(t, err)
		return v
	}
	tests := []struct {
		name  string
		x, xs event.Value
	}{
		{`Inline`, yv, arr(xv)},
		{`ArrayElement`, xv, arr(yv)},
		{`Nested`, xForeignField, arr(xv)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			fields := append(implicitNulls(t, a), test.x, test.xs)
			v, err := event.NewComposite(holder, fields)
			require.NoError(t, err)

			var buf bytes.Buffer
			enc := NewEncoder(&buf, WithRegistry(a))
			err = enc.WriteEvent(v)
			assert.True(t, errors.Is(err, event.ErrTypeMismatch), `got %v`, err)
			assert.NoError(t, enc.Err())
		})
	}

	t.Run(`Valid`, func(t *testing.T) {
		fields := append(implicitNulls(t, a), xv, arr(xv, xv))
		v, err := event.NewComposite(holder, fields)
		require.NoError(t, err)

		var buf bytes.Buffer
		enc := NewEncoder(&buf, WithRegistry(a))
		require.NoError(t, enc.WriteEvent(v))
		require.NoError(t, enc.FinishRecording())
		events := decodeAll(t, buf.Bytes())
		require.Len(t, events, 1)
		assert.Equal(t, `test.X{n: 1}`, events[0].Value.FieldAt(3).String())
	})
}

func TestEncoderUndefinedType(t *testing.T) {
	reg := event.NewRegistry()
	later, err := reg.Declare(`test.Later`)
	require.NoError(t, err)
	ev, err := reg.RegisterEvent(`test.Early`, func(b *event.Builder) error {
		return b.AddField(`later`, later, false)
	})
	require.NoError(t, err)

	_, err = event.NewComposite(later, nil)
	assert.True(t, errors.Is(err, event.ErrUnknownType), `got %v`, err)

	null, err := event.Null(later)
	require.NoError(t, err)
	v, err := event.NewComposite(ev, append(implicitNulls(t, reg), null))
	require.NoError(t, err)

	enc := NewEncoder(io.Discard, WithRegistry(reg))
	err = enc.WriteEvent(v)
	assert.True(t, errors.Is(err, event.ErrUnknownType), `got %v`, err)
}

func TestEncoderErrors(t *testing.T) {
	tt := newTestTypes(t)
	sentinel := errors.New(`sentinel`)

	for _, limit := range []int{0, 1, HeaderSize, HeaderSize + 10} {
		w := &rwLimiter{w: io.Discard, n: limit, err: sentinel}
		enc := NewEncoder(w, WithRegistry(tt.reg))
		require.NoError(t, enc.WriteEvent(tt.newSample(t, 1)))

		err := enc.FinishChunk()
		if !errors.Is(err, ErrIO) || !errors.Is(err, sentinel) {
			t.Fatalf(`exp IOError wrapping sentinel; got %v`, err)
		}
		for i := 0; i < 3; i++ {
			if got := enc.Err(); got != err {
				t.Fatalf(`exp err to remain unchanged; got %v`, got)
			}
			if got := enc.WriteEvent(tt.newSample(t, 2)); got != err {
				t.Fatalf(`exp sticky err from WriteEvent; got %v`, got)
			}
		}

		// the sink is still closed
		got := enc.FinishRecording()
		assert.True(t, errors.Is(got, ErrIO))
		assert.Equal(t, 1, w.closed)
	}

	t.Run(`ShortWrite`, func(t *testing.T) {
		w := &rwLimiter{w: io.Discard, n: 10}
		enc := NewEncoder(w, WithRegistry(tt.reg))
		require.NoError(t, enc.WriteEvent(tt.newSample(t, 1)))
		err := enc.FinishRecording()
		assert.True(t, errors.Is(err, io.ErrShortWrite), `got %v`, err)
	})
	t.Run(`Close`, func(t *testing.T) {
		w := &closeFailer{err: sentinel}
		enc := NewEncoder(w, WithRegistry(tt.reg))
		require.NoError(t, enc.WriteEvent(tt.newSample(t, 1)))
		err := enc.FinishRecording()
		assert.True(t, errors.Is(err, ErrIO), `got %v`, err)
		assert.True(t, errors.Is(err, sentinel), `got %v`, err)
		assert.True(t, w.Len() > HeaderSize)
	})
}

func TestEncoderChunkLayout(t *testing.T) {
	tt := newTestTypes(t)
	for _, compressed := range []bool{true, false} {
		var buf bytes.Buffer
		enc := NewEncoder(&buf,
			WithRegistry(tt.reg),
			WithClock(testClock),
			WithCompressedInts(compressed),
			WithTicksPerSecond(1000))
		require.NoError(t, enc.WriteEvent(tt.newVisit(t, 2)))
		require.NoError(t, enc.WriteEvent(tt.newSample(t, 1)))
		require.NoError(t, enc.RotateChunk())
		require.NoError(t, enc.WriteEvent(tt.newSample(t, 2)))
		require.NoError(t, enc.FinishRecording())

		cr := NewChunkReader(bytes.NewReader(buf.Bytes()))
		for gen := 0; gen < 2; gen++ {
			b, err := cr.Next()
			require.NoError(t, err)

			h, err := parseHeader(b)
			require.NoError(t, err)
			assert.Equal(t, Latest, h.Version)
			assert.Equal(t, int64(len(b)), h.Size)
			assert.Equal(t, int64(HeaderSize), h.MetadataOffset)
			assert.Equal(t, compressed, h.Compressed())
			assert.Equal(t, uint8(gen), h.Generation)
			assert.Equal(t, testEpoch.UnixNano(), h.StartNanos)
			assert.Equal(t, testEpoch.UnixNano()/1e6, h.StartTicks)
			assert.Equal(t, int64(1000), h.TicksPerSecond)
			assert.Equal(t, int64(0), h.DurationNanos)

			// the first chunk has pooled nodes, the second none
			s := NewStream(b, compressed)
			require.NoError(t, s.Skip(HeaderSize))
			typeID, _, size, err := s.ReadRecord()
			require.NoError(t, err)
			assert.Equal(t, uint64(MetadataID), typeID)
			if gen == 0 {
				assert.Equal(t, HeaderSize+size, h.CPOffset)
				typeID, _, _, err = s.ReadRecord()
				require.NoError(t, err)
				assert.Equal(t, uint64(ConstantPoolID), typeID)
			} else {
				assert.Equal(t, int64(0), h.CPOffset)
			}
		}
		_, err := cr.Next()
		assert.Equal(t, io.EOF, err)
	}
}

func TestEncoderMaxChunkSize(t *testing.T) {
	tt := newTestTypes(t)
	var buf bytes.Buffer
	enc := NewEncoder(&buf, WithRegistry(tt.reg), WithMaxChunkSize(1))
	for i := 0; i < 3; i++ {
		require.NoError(t, enc.WriteEvent(tt.newSample(t, i)))
		assert.Equal(t, ChunkFlushed, enc.State())
	}
	require.NoError(t, enc.FinishRecording())
	assert.Equal(t, 3, enc.Chunks())

	events := decodeAll(t, buf.Bytes())
	require.Len(t, events, 3)
	for i, evt := range events {
		assert.Equal(t, i+1, evt.Chunk)
	}
}

func TestEncoderPoolsPerChunk(t *testing.T) {
	tt := newTestTypes(t)
	var buf bytes.Buffer
	enc := NewEncoder(&buf, WithRegistry(tt.reg))

	// equal values share one entry within a chunk
	for i := 0; i < 3; i++ {
		require.NoError(t, enc.WriteEvent(tt.newVisit(t, 2)))
	}
	assert.Equal(t, 2, enc.pools.Entries(tt.node))
	require.NoError(t, enc.RotateChunk())

	// and are interned again in the next chunk
	assert.Equal(t, 0, enc.pools.Entries(tt.node))
	require.NoError(t, enc.WriteEvent(tt.newVisit(t, 2)))
	assert.Equal(t, 2, enc.pools.Entries(tt.node))
	require.NoError(t, enc.FinishRecording())

	events := decodeAll(t, buf.Bytes())
	require.Len(t, events, 4)
	for _, evt := range events {
		node, ok := evt.Field(`node`)
		require.True(t, ok)
		assert.Equal(t, `test.Node{name: "node1", parent: test.Node{name: "node0", parent: null}}`, node.String())
	}
}

func TestEncoderLogging(t *testing.T) {
	tt := newTestTypes(t)
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	enc := NewEncoder(io.Discard, WithRegistry(tt.reg), WithLogger(log))
	require.NoError(t, enc.WriteEvent(tt.newSample(t, 1)))
	require.NoError(t, enc.WriteEvent(tt.newSample(t, 2)))
	require.NoError(t, enc.FinishRecording())

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, `finished chunk`, entry.Message)
	assert.Equal(t, 1, entry.Data[`chunk`])
	assert.Equal(t, 2, entry.Data[`events`])
	assert.Equal(t, uint8(0), entry.Data[`generation`])
}

func TestCreate(t *testing.T) {
	tt := newTestTypes(t)
	path := filepath.Join(t.TempDir(), `out.jfr`)

	enc, err := Create(path, WithRegistry(tt.reg), WithClock(func() time.Time { return testEpoch }))
	require.NoError(t, err)
	require.NoError(t, enc.WriteEvent(tt.newSample(t, 1)))
	require.NoError(t, enc.FinishRecording())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, decodeAll(t, b), 1)

	_, err = Create(filepath.Join(t.TempDir(), `missing`, `out.jfr`))
	assert.True(t, errors.Is(err, ErrIO), `got %v`, err)
}

func TestChunkState(t *testing.T) {
	for exp, s := range map[string]ChunkState{
		`Empty`:               ChunkEmpty,
		`Open`:                ChunkOpen,
		`Flushed`:             ChunkFlushed,
		`ChunkState(invalid)`: ChunkState(9),
	} {
		if got := s.String(); got != exp {
			t.Fatalf(`exp %v; got %v`, exp, got)
		}
	}
}
