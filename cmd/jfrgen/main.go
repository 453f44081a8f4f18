package main

import (
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/cstockton/go-jfr/encoding"
	"github.com/cstockton/go-jfr/internal/jfrgen"
)

const (
	flagOutputUsage = "write the recording to `FILE` instead of stdout"
	flagGzipUsage   = "gzip compress the recording"
	flagFixedUsage  = "write fixed width integers, overriding the description"
	flagDebugUsage  = "log every finished chunk to stderr"
)

func newApp() *cli.App {
	return &cli.App{
		Name:        `jfrgen`,
		Usage:       `generate a recording from a YAML description`,
		ArgsUsage:   `<description.yaml>`,
		Description: help,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: `output`, Aliases: []string{`o`}, Usage: flagOutputUsage, TakesFile: true},
			&cli.BoolFlag{Name: `gzip`, Aliases: []string{`z`}, Usage: flagGzipUsage},
			&cli.BoolFlag{Name: `fixed`, Usage: flagFixedUsage},
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

// writer hides the Close method of the output so the encoder leaves it open.
type writer struct {
	io.Writer
}

func run(c *cli.Context) (err error) {
	if c.NArg() != 1 {
		return errors.New(`expected exactly one description`)
	}
	log := newLogger(c)

	d, err := jfrgen.ParseFile(c.Args().First())
	if err != nil {
		return err
	}
	if c.Bool(`fixed`) {
		compressed := false
		d.Compressed = &compressed
	}

	var out io.Writer = c.App.Writer
	if path := c.String(`output`); path != `` {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer func() {
			err = multierr.Append(err, f.Close())
		}()
		out = f
	}

	w := io.Writer(writer{out})
	var gz *gzip.Writer
	if c.Bool(`gzip`) {
		gz = gzip.NewWriter(out)
		w = writer{gz}
	}

	st, err := jfrgen.Generate(d, w, encoding.WithLogger(log))
	if gz != nil {
		err = multierr.Append(err, gz.Close())
	}
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		`types`:  st.Types,
		`chunks`: st.Chunks,
		`events`: st.Events,
	}).Info(`generated recording`)
	return nil
}

var help = `Writes a recording generated from a YAML description of types and the events
of every chunk, see the package documentation of internal/jfrgen.

Example:

  # Write a recording to stdout and print it
  jfrgen testdata/sample.yaml | jfrcat

  # Write a gzip compressed recording with fixed width integers
  jfrgen --gzip --fixed -o sample.jfr.gz testdata/sample.yaml`
