// Command huffscan measures and applies Huffman coding over fixed-width
// symbols of arbitrary bit width.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/seiflotfy/huffscan"
	"github.com/seiflotfy/huffscan/cache"
	"github.com/seiflotfy/huffscan/config"
	"github.com/seiflotfy/huffscan/errs"
	"github.com/seiflotfy/huffscan/source"
	"github.com/seiflotfy/huffscan/stats"
	"github.com/seiflotfy/huffscan/units"
)

const progName = "huffscan"

const usageMessageRaw = `
Usage: huffscan SUBCOMMAND [FLAGS] ARG

Subcommands:
  stats SOURCE
    Scan SOURCE, build its code and print a report.
  scan -o FILE SOURCE
    Scan SOURCE and write the symbol container to FILE.
  inspect FILE
    Read a symbol container and print a report.
  compress -o FILE SOURCE
    Encode SOURCE and write the archive to FILE.
  decompress -o FILE ARCHIVE
    Decode ARCHIVE and write the original bytes to FILE.

SOURCE is a file path, or ":SIZE" (for example ":70 MB") for random bytes.
Run "huffscan SUBCOMMAND -h" for the flags shared by all subcommands.
`

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func usageMessage() string {
	return strings.TrimLeft(usageMessageRaw, "\n")
}

type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usageErrorf(format string, args ...interface{}) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// env is what a subcommand runs with.
type env struct {
	cfg    *config.Configuration
	log    *logrus.Logger
	args   []string
	output string
	stdout io.Writer
}

type command struct {
	output bool // takes -o
	run    func(*env) error
}

var commands = map[string]command{
	"stats":      {run: runStats},
	"scan":       {output: true, run: runScan},
	"inspect":    {run: runInspect},
	"compress":   {output: true, run: runCompress},
	"decompress": {output: true, run: runDecompress},
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usageMessage())
		return exitUsage
	}
	name := args[0]
	if name == "help" || name == "-h" || name == "--help" {
		fmt.Fprint(stdout, usageMessage())
		return exitOK
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "%s: unknown subcommand %q\n%s", progName, name, usageMessage())
		return exitUsage
	}

	fs := flag.NewFlagSet(progName+" "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var output string
	if cmd.output {
		fs.StringVar(&output, "o", "", "Output file")
	}
	cfg, err := config.Parse(fs, args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		return report(stderr, err, exitUsage)
	}

	e := &env{cfg: cfg, log: cfg.NewLogger(), args: fs.Args(), output: output, stdout: stdout}
	e.log.SetOutput(stderr)
	if cmd.output && output == "" {
		return report(stderr, usageErrorf("%s needs -o FILE", name), exitUsage)
	}
	if len(e.args) != 1 {
		return report(stderr, usageErrorf("%s takes exactly one argument, got %d", name, len(e.args)), exitUsage)
	}

	start := time.Now()
	if err := cmd.run(e); err != nil {
		var ue *usageError
		if errors.As(err, &ue) {
			return report(stderr, err, exitUsage)
		}
		return report(stderr, err, exitError)
	}
	e.log.WithFields(logrus.Fields{"command": name, "elapsed": time.Since(start)}).Debug("done")
	return exitOK
}

func report(stderr io.Writer, err error, code int) int {
	var ue *usageError
	if errors.As(err, &ue) {
		fmt.Fprintf(stderr, "%s: %s\n%s", progName, ue.msg, usageMessage())
		return code
	}
	fmt.Fprintf(stderr, "error: %s: %s\n", errs.Kind(err), err)
	return code
}

// scan loads the source and scans it through the cache.
func (e *env) scan() (*huffscan.SegmentedBuffer, error) {
	arg := e.args[0]
	buf, err := e.cfg.Loader(e.log).Load(arg)
	if err != nil {
		return nil, err
	}
	scans, err := cache.New(e.cfg.Cache.Entries, e.cfg.Cache.Dir, e.log)
	if err != nil {
		return nil, err
	}
	title := arg
	if source.IsRandom(arg) {
		title = ""
	}
	return scans.Scan(title, buf, e.cfg.Scan.DataBits, e.cfg.Scan.Method, e.cfg.Scan.SizeOfSize)
}

func (e *env) report(sb *huffscan.SegmentedBuffer) error {
	var cb *huffscan.Codebook
	if sb.Total() > 0 {
		var err error
		if cb, err = sb.BuildCodebook(); err != nil {
			return err
		}
	}
	r, err := stats.Compute(sb, cb)
	if err != nil {
		return err
	}
	return r.Render(e.stdout)
}

func runStats(e *env) error {
	sb, err := e.scan()
	if err != nil {
		return err
	}
	return e.report(sb)
}

func runScan(e *env) error {
	sb, err := e.scan()
	if err != nil {
		return err
	}
	data, err := sb.MarshalBinary()
	if err != nil {
		return err
	}
	if err := os.WriteFile(e.output, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", e.output)
	}
	fmt.Fprintf(e.stdout, "%s: %d unique of %d symbols, container %s\n",
		e.output, sb.Unique(), sb.Total(), units.Format(uint64(len(data))))
	return nil
}

func runInspect(e *env) error {
	data, err := os.ReadFile(e.args[0])
	if err != nil {
		return errors.Wrapf(err, "read %s", e.args[0])
	}
	sb := new(huffscan.SegmentedBuffer)
	if err := sb.UnmarshalBinary(data); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s: %d-bit %s symbols, size of size %d\n",
		e.args[0], sb.DataBits, sb.Method, sb.SizeOfSize)
	return e.report(sb)
}

func runCompress(e *env) error {
	buf, err := e.cfg.Loader(e.log).Load(e.args[0])
	if err != nil {
		return err
	}
	enc, err := huffscan.NewEncoder(e.cfg.Scan.DataBits, e.cfg.Scan.Method, e.cfg.Options(e.log)...)
	if err != nil {
		return err
	}
	a, err := enc.Encode(buf)
	if err != nil {
		return err
	}
	data, err := a.MarshalBinary()
	if err != nil {
		return err
	}
	if err := os.WriteFile(e.output, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", e.output)
	}
	fmt.Fprintf(e.stdout, "%s: %s -> %s (%s payload, %d bits)\n", e.output,
		units.Format(uint64(len(buf))), units.Format(uint64(len(data))), a.Compression(), a.PayloadBits)
	return nil
}

func runDecompress(e *env) error {
	data, err := os.ReadFile(e.args[0])
	if err != nil {
		return errors.Wrapf(err, "read %s", e.args[0])
	}
	var a huffscan.Archive
	if err := a.UnmarshalBinary(data); err != nil {
		return err
	}
	out, err := a.Decode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(e.output, out, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", e.output)
	}
	fmt.Fprintf(e.stdout, "%s: %s\n", e.output, units.Format(uint64(len(out))))
	return nil
}
