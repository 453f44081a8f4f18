package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"runtime"
	"slices"
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
	flagSummaryUsage = "print chunk headers and event counts per type only"
	flagNoColorUsage = "disable colored output, the default when stdout is not a terminal"
	flagDebugUsage   = "log parser progress to stderr"
	flagLimitUsage   = "reject chunks larger than this many bytes, 0 for no limit"
)

func newApp() *cli.App {
	return &cli.App{
		Name:        `jfrcat`,
		Usage:       `print the chunks, types and events of recordings`,
		ArgsUsage:   `[recordings...]`,
		Description: help,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: `summary`, Aliases: []string{`s`}, Usage: flagSummaryUsage},
			&cli.BoolFlag{Name: `no-color`, Usage: flagNoColorUsage, EnvVars: []string{`NO_COLOR`}},
			&cli.BoolFlag{Name: `debug`, Aliases: []string{`d`}, Usage: flagDebugUsage, EnvVars: []string{`JFR_DEBUG`}},
			&cli.Int64Flag{Name: `limit`, Usage: flagLimitUsage},
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

type printer struct {
	log     logrus.FieldLogger
	summary bool
	limit   int64
	title   *color.Color
	chunk   *color.Color
	typ     *color.Color
}

func newPrinter(c *cli.Context) *printer {
	p := &printer{
		log:     newLogger(c),
		summary: c.Bool(`summary`),
		limit:   c.Int64(`limit`),
		title:   color.New(color.FgGreen, color.Bold),
		chunk:   color.New(color.FgYellow),
		typ:     color.New(color.FgCyan),
	}
	if !useColor(c) {
		for _, col := range []*color.Color{p.title, p.chunk, p.typ} {
			col.DisableColor()
		}
	}
	return p
}

func run(c *cli.Context) error {
	p := newPrinter(c)
	args := c.Args().Slice()
	if len(args) == 0 {
		args = []string{`-`}
	}

	outs := make([]bytes.Buffer, len(args))
	errs := make([]error, len(args))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, arg := range args {
		i, arg := i, arg
		g.Go(func() error {
			r, err := openInput(c, arg)
			if err != nil {
				errs[i] = err
				return nil
			}
			defer r.Close()
			errs[i] = p.cat(&outs[i], arg, r)
			return nil
		})
	}
	g.Wait()

	for i := range outs {
		if _, err := c.App.Writer.Write(outs[i].Bytes()); err != nil {
			return err
		}
	}
	return multierr.Combine(errs...)
}

// cat prints the recording read from r to w.
func (p *printer) cat(w io.Writer, name string, r io.Reader) error {
	fmt.Fprintln(w, p.title.Sprintf(`== %v ==`, name))

	l := &catListener{p: p, w: w, counts: make(map[string]int)}
	l.Decoder = encoding.NewDecoder(l.onEvent)

	parser := encoding.NewParser(r,
		encoding.WithParserLogger(p.log.WithField(`file`, name)),
		encoding.WithChunkLimit(p.limit))
	err := parser.Parse(l)
	if err == nil {
		err = l.Err()
	}

	if p.summary {
		names := lo.Keys(l.counts)
		slices.Sort(names)
		for _, n := range names {
			fmt.Fprintf(w, "  %v %d\n", p.typ.Sprint(n), l.counts[n])
		}
	}
	fmt.Fprintf(w, "%d chunks, %d events\n", l.chunks, l.Events())
	return errors.Wrap(err, name)
}

// catListener prints chunk boundaries and metadata before handing them to the
// embedded Decoder.
type catListener struct {
	*encoding.Decoder
	p      *printer
	w      io.Writer
	chunks int
	counts map[string]int
}

func (l *catListener) OnChunkStart(index int, h encoding.Header) bool {
	l.chunks++
	fmt.Fprintf(l.w, "%v %v\n", l.p.chunk.Sprintf(`chunk %d`, index), h)
	return l.Decoder.OnChunkStart(index, h)
}

func (l *catListener) OnMetadata(md *encoding.Metadata) bool {
	if !l.p.summary {
		names := lo.FilterMap(md.Types, func(d event.Descriptor, _ int) (string, bool) {
			return d.Name, !d.Builtin
		})
		fmt.Fprintf(l.w, "  %d types: %v\n", len(md.Types), strings.Join(names, `, `))
	}
	return l.Decoder.OnMetadata(md)
}

func (l *catListener) onEvent(evt *encoding.Event) error {
	l.counts[evt.Type.Name()]++
	if !l.p.summary {
		fmt.Fprintf(l.w, "  %v %v\n", l.p.typ.Sprint(evt.Type.Name()), evt.Value)
	}
	return nil
}

var help = `Prints recordings to stdout, for every chunk the header, the user types
declared by its metadata and each decoded event.

Example:

  # If no recordings are given, read stdin
  cat test.jfr | jfrcat

  # Recordings are decoded concurrently and printed in order
  jfrcat a.jfr b.jfr.gz

  # Only count events per type
  jfrcat --summary a.jfr`
