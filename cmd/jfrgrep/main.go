package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"runtime"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/cstockton/go-jfr/encoding"
	"github.com/cstockton/go-jfr/event"
)

const (
	flagFieldUsage   = "only match events with a field value matching `path=regexp`, may be repeated"
	flagInvertUsage  = "invert matching, like grep -v"
	flagCountUsage   = "print the number of matching events per recording only"
	flagNoColorUsage = "disable colored output, the default when stdout is not a terminal"
	flagDebugUsage   = "log parser progress to stderr"
)

func newApp() *cli.App {
	return &cli.App{
		Name:        `jfrgrep`,
		Usage:       `print events whose type name matches a regexp`,
		ArgsUsage:   `<type-regexp> [recordings...]`,
		Description: help,

		// field filters hold regexps which may contain commas
		DisableSliceFlagSeparator: true,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: `field`, Aliases: []string{`f`}, Usage: flagFieldUsage},
			&cli.BoolFlag{Name: `invert`, Aliases: []string{`v`}, Usage: flagInvertUsage},
			&cli.BoolFlag{Name: `count`, Aliases: []string{`c`}, Usage: flagCountUsage},
			&cli.BoolFlag{Name: `no-color`, Usage: flagNoColorUsage, EnvVars: []string{`NO_COLOR`}},
			&cli.BoolFlag{Name: `debug`, Aliases: []string{`d`}, Usage: flagDebugUsage, EnvVars: []string{`JFR_DEBUG`}},
		},
		Action: run,
	}
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if err := newApp().Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func newLogger(c *cli.Context) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(c.App.ErrWriter)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if c.Bool(`debug`) {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

func useColor(c *cli.Context) bool {
	if c.Bool(`no-color`) {
		return false
	}
	f, ok := c.App.Writer.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func openInput(c *cli.Context, name string) (io.ReadCloser, error) {
	if name == `-` {
		return io.NopCloser(c.App.Reader), nil
	}
	return os.Open(name)
}

// fieldFilter matches values found at path. Array indexes are ignored, the
// path `stackTrace.frames.lineNumber` matches the line number of every frame.
type fieldFilter struct {
	path string
	re   *regexp.Regexp
}

func parseFieldFilter(s string) (fieldFilter, error) {
	path, expr, ok := strings.Cut(s, `=`)
	if !ok || path == `` {
		return fieldFilter{}, errors.Errorf(`field filter %q must be of the form path=regexp`, s)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return fieldFilter{}, errors.Wrapf(err, `field filter %q`, s)
	}
	return fieldFilter{path: path, re: re}, nil
}

var indexes = regexp.MustCompile(`\[\d+\]`)

var errFound = errors.New(`found`)

func (f fieldFilter) match(v event.Value) bool {
	err := event.Walk(v, func(path string, v event.Value) error {
		if indexes.ReplaceAllString(path, ``) != f.path {
			return nil
		}
		if f.re.MatchString(valueText(v)) {
			return errFound
		}
		return event.SkipValue
	})
	return err == errFound
}

// valueText returns the text field filters are matched against, strings are
// not quoted.
func valueText(v event.Value) string {
	switch {
	case v.IsNull():
		return `null`
	case v.Shape() == event.ShapeScalar && v.Type().Kind() == event.String:
		return v.Str()
	case v.Shape() == event.ShapeScalar:
		return fmt.Sprint(v.Interface())
	}
	return v.String()
}

type matcher struct {
	typ    *regexp.Regexp
	fields []fieldFilter
	invert bool
}

func (m *matcher) match(evt *encoding.Event) bool {
	ok := m.typ.MatchString(evt.Type.Name()) &&
		lo.EveryBy(m.fields, func(f fieldFilter) bool { return f.match(evt.Value) })
	return ok != m.invert
}

type grep struct {
	m     *matcher
	log   logrus.FieldLogger
	count bool
	file  *color.Color
	typ   *color.Color
}

func newGrep(c *cli.Context) (*grep, error) {
	if c.NArg() < 1 {
		return nil, errors.New(`missing type regexp`)
	}
	typ, err := regexp.Compile(c.Args().First())
	if err != nil {
		return nil, errors.Wrap(err, `type regexp`)
	}
	var fields []fieldFilter
	for _, s := range c.StringSlice(`field`) {
		f, err := parseFieldFilter(s)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}

	g := &grep{
		m:     &matcher{typ: typ, fields: fields, invert: c.Bool(`invert`)},
		log:   newLogger(c),
		count: c.Bool(`count`),
		file:  color.New(color.FgMagenta),
		typ:   color.New(color.FgCyan),
	}
	if !useColor(c) {
		g.file.DisableColor()
		g.typ.DisableColor()
	}
	return g, nil
}

func run(c *cli.Context) error {
	g, err := newGrep(c)
	if err != nil {
		return err
	}
	args := c.Args().Tail()
	if len(args) == 0 {
		args = []string{`-`}
	}

	outs := make([]bytes.Buffer, len(args))
	errs := make([]error, len(args))

	var eg errgroup.Group
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i, arg := range args {
		i, arg := i, arg
		eg.Go(func() error {
			r, err := openInput(c, arg)
			if err != nil {
				errs[i] = err
				return nil
			}
			defer r.Close()
			errs[i] = g.grep(&outs[i], arg, r)
			return nil
		})
	}
	eg.Wait()

	for i := range outs {
		if _, err := c.App.Writer.Write(outs[i].Bytes()); err != nil {
			return err
		}
	}
	return multierr.Combine(errs...)
}

// grep prints the matching events of the recording read from r to w.
func (g *grep) grep(w io.Writer, name string, r io.Reader) error {
	var n int
	err := encoding.Decode(r, func(evt *encoding.Event) error {
		if !g.m.match(evt) {
			return nil
		}
		n++
		if !g.count {
			fmt.Fprintf(w, "%v:%d: %v %v\n",
				g.file.Sprint(name), evt.Chunk, g.typ.Sprint(evt.Type.Name()), evt.Value)
		}
		return nil
	}, encoding.WithParserLogger(g.log.WithField(`file`, name)))

	if g.count {
		fmt.Fprintf(w, "%v:%d\n", g.file.Sprint(name), n)
	}
	return errors.Wrap(err, name)
}

var help = `Prints the events of recordings whose type name matches a regexp, each
line is prefixed with the recording name and chunk index.

Example:

  # Print every sample event
  jfrgrep 'Sample$' test.jfr

  # Print samples labelled sample-1 from stdin
  cat test.jfr | jfrgrep --field label=^sample-1$ 'Sample$'

  # Count events other than samples across recordings
  jfrgrep -v -c 'Sample$' a.jfr b.jfr`
