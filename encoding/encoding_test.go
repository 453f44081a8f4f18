package encoding

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cstockton/go-jfr/event"
)

var testEpoch = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func testClock() time.Time { return testEpoch }

// rwLimiter fails once more than n bytes were written, with err or
// io.ErrShortWrite when err is nil.
type rwLimiter struct {
	w   io.Writer
	n   int
	err error

	closed int
}

func (l *rwLimiter) Write(p []byte) (int, error) {
	if len(p) > l.n {
		n, _ := l.w.Write(p[:l.n])
		l.n = 0
		if l.err != nil {
			return n, l.err
		}
		return n, nil
	}
	l.n -= len(p)
	return l.w.Write(p)
}

func (l *rwLimiter) Close() error {
	l.closed++
	return nil
}

type closeFailer struct {
	bytes.Buffer
	err error
}

func (c *closeFailer) Close() error { return c.err }

type testTypes struct {
	reg     *event.Registry
	sample  *event.Type
	node    *event.Type
	visit   *event.Type
	base    *event.Type
	derived *event.Type
	holder  *event.Type
}

func newTestTypes(t testing.TB) *testTypes {
	tt := &testTypes{reg: event.NewRegistry()}

	var err error
	tt.sample, err = tt.reg.RegisterEvent(`test.Sample`, func(b *event.Builder) error {
		for _, f := range []struct{ name, typ string }{
			{`id`, `long`},
			{`name`, `java.lang.String`},
			{`ok`, `boolean`},
			{`ratio`, `float`},
			{`big`, `double`},
			{`small`, `short`},
			{`ch`, `char`},
			{`b`, `byte`},
			{`i`, `int`},
		} {
			if err := b.AddFieldByName(f.name, f.typ, false); err != nil {
				return err
			}
		}
		return b.AddFieldByName(`tags`, `java.lang.String`, true)
	})
	require.NoError(t, err)

	tt.node, err = tt.reg.Register(`test.Node`, func(b *event.Builder) error {
		if err := b.AddFieldByName(`name`, `java.lang.String`, false); err != nil {
			return err
		}
		return b.AddField(`parent`, b.Self(), false)
	}, event.WithPool())
	require.NoError(t, err)

	tt.visit, err = tt.reg.RegisterEvent(`test.Visit`, func(b *event.Builder) error {
		if err := b.AddField(`node`, tt.node, false); err != nil {
			return err
		}
		return b.AddField(`nodes`, tt.node, true)
	})
	require.NoError(t, err)

	tt.base, err = tt.reg.Register(`test.Base`, func(b *event.Builder) error {
		return b.AddFieldByName(`name`, `java.lang.String`, false)
	})
	require.NoError(t, err)

	tt.derived, err = tt.reg.Register(`test.Derived`, func(b *event.Builder) error {
		if err := b.AddFieldByName(`name`, `java.lang.String`, false); err != nil {
			return err
		}
		return b.AddFieldByName(`extra`, `int`, false)
	}, event.WithSuper(`test.Base`))
	require.NoError(t, err)

	tt.holder, err = tt.reg.RegisterEvent(`test.Holder`, func(b *event.Builder) error {
		return b.AddField(`base`, tt.base, false)
	})
	require.NoError(t, err)
	return tt
}

func (tt *testTypes) newSample(t testing.TB, i int) event.Value {
	v, err := tt.reg.NewValue(tt.sample, func(b *event.ValueBuilder) error {
		b.PutScalar(`id`, int64(i)*-7919)
		b.PutScalar(`name`, fmt.Sprintf(`sample %d`, i))
		b.PutScalar(`ok`, i%2 == 0)
		b.PutScalar(`ratio`, float32(i)/3)
		b.PutScalar(`big`, float64(i)*1e10)
		b.PutScalar(`small`, int16(-i))
		b.PutScalar(`ch`, uint16('a'+i%26))
		b.PutScalar(`b`, int8(i%128))
		b.PutScalar(`i`, int32(i)<<20)
		b.PutScalar(event.FieldStartTime, int64(i)*1000)
		return b.PutScalars(`tags`, `a`, ``, `tag long enough`)
	})
	require.NoError(t, err)
	return v
}

func (tt *testTypes) newNode(t testing.TB, depth int) event.Value {
	var cur event.Value
	for i := 0; i < depth; i++ {
		parent := cur
		v, err := tt.reg.NewValue(tt.node, func(b *event.ValueBuilder) error {
			b.PutScalar(`name`, fmt.Sprintf(`node%d`, i))
			if parent.IsValid() {
				return b.Put(`parent`, parent)
			}
			return nil
		})
		require.NoError(t, err)
		cur = v
	}
	return cur
}

func (tt *testTypes) newVisit(t testing.TB, depth int) event.Value {
	node := tt.newNode(t, depth)
	v, err := tt.reg.NewValue(tt.visit, func(b *event.ValueBuilder) error {
		b.Put(`node`, node)
		return b.PutArray(`nodes`, node, node)
	})
	require.NoError(t, err)
	return v
}

// encodeAll writes every value, one chunk per slice, and returns the recording.
func encodeAll(t testing.TB, tt *testTypes, chunks [][]event.Value, opts ...Option) []byte {
	var buf bytes.Buffer
	opts = append([]Option{WithRegistry(tt.reg), WithClock(testClock)}, opts...)
	enc := NewEncoder(&buf, opts...)
	for _, chunk := range chunks {
		for _, v := range chunk {
			require.NoError(t, enc.WriteEvent(v))
		}
		require.NoError(t, enc.FinishChunk())
	}
	require.NoError(t, enc.FinishRecording())
	return buf.Bytes()
}

// decodeAll decodes every event in b.
func decodeAll(t testing.TB, b []byte) []*Event {
	var out []*Event
	err := Decode(bytes.NewReader(b), func(evt *Event) error {
		out = append(out, evt)
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestErrors(t *testing.T) {
	cause := errors.New(`disk on fire`)
	err := ioFailure(`write chunk`, cause)
	if !errors.Is(err, ErrIO) {
		t.Fatal(`exp IOError to match ErrIO`)
	}
	if !errors.Is(err, cause) {
		t.Fatal(`exp IOError to unwrap to its cause`)
	}
	var ioErr *IOError
	if !errors.As(err, &ioErr) || ioErr.Op != `write chunk` {
		t.Fatalf(`exp *IOError with op; got %v`, err)
	}
	if exp, got := `io failure: write chunk: disk on fire`, err.Error(); exp != got {
		t.Fatalf(`exp %q; got %q`, exp, got)
	}

	if !errors.Is(invalidf(`x %d`, 1), ErrInvalidFormat) {
		t.Fatal(`exp invalidf to match ErrInvalidFormat`)
	}
	if !errors.Is(truncatedf(`x`), ErrTruncatedInput) {
		t.Fatal(`exp truncatedf to match ErrTruncatedInput`)
	}
	if errors.Is(invalidf(`x`), ErrIO) {
		t.Fatal(`exp invalidf to not match ErrIO`)
	}
}

func TestVersion(t *testing.T) {
	tests := []struct {
		v   Version
		exp bool
	}{
		{Latest, true},
		{Version{2, 1}, true},
		{Version{2, 9}, true},
		{Version{1, 0}, false},
		{Version{3, 0}, false},
	}
	for _, test := range tests {
		if got := test.v.Supported(); got != test.exp {
			t.Fatalf(`exp %v.Supported() to be %v; got %v`, test.v, test.exp, got)
		}
	}
	if exp, got := `Version(2.0)`, Latest.String(); exp != got {
		t.Fatalf(`exp %v; got %v`, exp, got)
	}
}
