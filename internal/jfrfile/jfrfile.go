// Package jfrfile provides fixture recordings for tests and benchmarks.
package jfrfile

import (
	"bytes"
	"time"

	"github.com/pkg/errors"

	"github.com/cstockton/go-jfr/encoding"
	"github.com/cstockton/go-jfr/event"
)

// Names of the recordings returned by Load.
var Names = []string{
	`empty.jfr`,
	`single.jfr`,
	`two_chunks.jfr`,
	`pooled.jfr`,
	`fixed.jfr`,
	`strings.jfr`,
}

// Epoch is the start time of every chunk in a fixture recording.
var Epoch = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

// Recording is a fixture recording held in memory.
type Recording struct {
	Name       string
	Chunks     int
	Events     int
	Compressed bool
	Size       int
	Data       []byte
}

// Bytes returns a copy of the recording.
func (r Recording) Bytes() []byte {
	out := make([]byte, len(r.Data))
	copy(out, r.Data)
	return out
}

// Reader returns a reader over the recording.
func (r Recording) Reader() *bytes.Reader {
	return bytes.NewReader(r.Data)
}

type fixture struct {
	name      string
	chunks    int
	perChunk  int
	opts      []encoding.Option
	newEvent  func(s *Schema, i int) (event.Value, error)
	fixedInts bool
}

func samples(s *Schema, i int) (event.Value, error) { return s.NewSample(i) }

func visits(s *Schema, i int) (event.Value, error) { return s.NewVisit(2 + i%2) }

func mixed(s *Schema, i int) (event.Value, error) {
	if i%2 == 0 {
		return s.NewSample(i)
	}
	return s.NewVisit(3)
}

var fixtures = []fixture{
	{name: `empty.jfr`},
	{name: `single.jfr`, chunks: 1, perChunk: 3, newEvent: samples},
	{name: `two_chunks.jfr`, chunks: 2, perChunk: 2, newEvent: samples},
	{name: `pooled.jfr`, chunks: 1, perChunk: 4, newEvent: visits},
	{name: `fixed.jfr`, chunks: 2, perChunk: 4, newEvent: mixed, fixedInts: true,
		opts: []encoding.Option{encoding.WithCompressedInts(false)}},
	{name: `strings.jfr`, chunks: 1, perChunk: 6, newEvent: samples,
		opts: []encoding.Option{encoding.WithStringPool(4)}},
}

// Load generates every fixture recording.
func Load() (out RecordingList, err error) {
	for _, fx := range fixtures {
		rec, err := generate(fx)
		if err != nil {
			return nil, errors.Wrapf(err, `generate %v`, fx.name)
		}
		out = append(out, rec)
	}
	return
}

func generate(fx fixture) (*Recording, error) {
	s, err := NewSchema()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	opts := append([]encoding.Option{
		encoding.WithRegistry(s.Registry),
		encoding.WithClock(func() time.Time { return Epoch }),
	}, fx.opts...)
	enc := encoding.NewEncoder(&buf, opts...)

	var n int
	for c := 0; c < fx.chunks; c++ {
		for i := 0; i < fx.perChunk; i++ {
			v, err := fx.newEvent(s, n)
			if err != nil {
				return nil, err
			}
			if err := enc.WriteEvent(v); err != nil {
				return nil, err
			}
			n++
		}
		if err := enc.FinishChunk(); err != nil {
			return nil, err
		}
	}
	if err := enc.FinishRecording(); err != nil {
		return nil, err
	}

	return &Recording{
		Name:       fx.name,
		Chunks:     fx.chunks,
		Events:     n,
		Compressed: !fx.fixedInts,
		Size:       buf.Len(),
		Data:       buf.Bytes(),
	}, nil
}

// RecordingList is a list of fixture recordings.
type RecordingList []*Recording

func (s RecordingList) String() string {
	var buf bytes.Buffer
	if len(s) == 0 {
		return `RecordingList()`
	}

	buf.WriteString(`RecordingList(` + s[0].Name)
	for _, rec := range s[1:] {
		buf.WriteString(`, ` + rec.Name)
	}
	return buf.String() + `)`
}

func (s RecordingList) ByName(name string) (out RecordingList) {
	for _, rec := range s {
		if rec.Name == name {
			out = append(out, rec)
		}
	}
	return
}

func (s RecordingList) ByChunks(n int) (out RecordingList) {
	for _, rec := range s {
		if rec.Chunks == n {
			out = append(out, rec)
		}
	}
	return
}

func (s RecordingList) ByMaxSize(n int) (out RecordingList) {
	for _, rec := range s {
		if rec.Size < n {
			out = append(out, rec)
		}
	}
	return
}

// Get returns the named recording, it panics if there is no such recording.
func (s RecordingList) Get(name string) *Recording {
	for _, rec := range s {
		if rec.Name == name {
			return rec
		}
	}
	panic(`jfrfile: no recording named ` + name)
}
