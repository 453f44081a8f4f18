// Package jfr reads and writes recordings of typed events. A recording is a
// sequence of self contained chunks, each declaring the types and constant
// pools its events use, see the encoding package for the format and the
// event package for the type system.
package jfr

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/cstockton/go-jfr/encoding"
	"github.com/cstockton/go-jfr/event"
)

// Record writes events to w as a single chunk recording. Every event must be
// built from reg. If w is an io.Closer it is closed once the recording is
// written, or once an event is rejected, in which case the events before it
// are still written.
func Record(w io.Writer, reg *event.Registry, events ...event.Value) error {
	enc := encoding.NewEncoder(w, encoding.WithRegistry(reg))
	for i, v := range events {
		if err := enc.WriteEvent(v); err != nil {
			return multierr.Append(errors.Wrapf(err, `event %d`, i), enc.FinishRecording())
		}
	}
	return enc.FinishRecording()
}

// Walk calls fn for every event of the recording stored in the named file, in
// the order they were written. The file may be gzip compressed.
func Walk(path string, fn encoding.HandlerFunc, opts ...encoding.ParserOption) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return encoding.Decode(f, fn, opts...)
}

// ReadFile returns every event of the recording stored in the named file.
func ReadFile(path string, opts ...encoding.ParserOption) ([]*encoding.Event, error) {
	var events []*encoding.Event
	err := Walk(path, func(evt *encoding.Event) error {
		events = append(events, evt)
		return nil
	}, opts...)
	return events, err
}
