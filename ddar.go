// Package ddar drives the chunking engine from the command line: it maintains
// deduplicating archives in the manner of ar(1), or merely analyzes how a set
// of files chunks.
package ddar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/anjor/ddar/internal/archive"
	ddchunker "github.com/anjor/ddar/internal/chunker"
	"github.com/anjor/ddar/internal/logging"

	"github.com/charmbracelet/log"
	"github.com/pborman/getopt/v2"
)

type Ddar struct {
	// speederization shortcut flags for internal logic
	emitChunks bool

	mode          string
	args          []string
	cfg           config
	chunkerCfg    ddchunker.Config
	archiveParams archive.Params
	statSummary   statSummary
	logger        *log.Logger
	stdout        io.Writer
	stderr        io.Writer
	mu            sync.Mutex
	seenChunks    seenChunks
}

// NewFromArgv is NewWithWriters over the process stdio, terminating the
// process on help requests and argument errors.
func NewFromArgv(argv []string) *Ddar {
	d, errs := NewWithWriters(argv, os.Stdout, os.Stderr)
	if len(errs) == 1 && errors.Is(errs[0], ErrHelp) {
		os.Exit(0)
	}
	if len(errs) > 0 {
		logArgParseErrors(os.Stderr, errs)
		os.Exit(2)
	}
	return d
}

// NewWithWriters parses argv, validating everything that can be validated
// before touching any archive. All problems found are returned together.
func NewWithWriters(argv []string, stdout, stderr io.Writer) (*Ddar, []error) {

	d := &Ddar{
		cfg:         defaultConfig(),
		statSummary: setStatSummary(),
		stdout:      stdout,
		stderr:      stderr,
	}
	d.statSummary.SysStats.ArgvInitial = getInitialArgs(argv)

	cfg := &d.cfg
	if err := cfg.initArgvParser(); err != nil {
		return nil, []error{err}
	}

	// accumulator for multiple errors, to present to the user all at once
	var argParseErrs []error
	if err := cfg.optSet.Getopt(arStyleArgv(argv), nil); err != nil {
		argParseErrs = append(argParseErrs, err)
	}
	d.args = cfg.optSet.Args()

	if cfg.Help || cfg.HelpAll {
		cfg.printUsage(stderr)
		return nil, []error{ErrHelp}
	}

	// bail early: nothing below is meaningful over unparseable options
	if len(argParseErrs) > 0 {
		return nil, argParseErrs
	}

	var err error
	if d.logger, err = logging.New(stderr, cfg.LogLevel); err != nil {
		argParseErrs = append(argParseErrs, fmt.Errorf("invalid --log-level: %w", err))
	}

	argParseErrs = append(argParseErrs, d.setupMode()...)
	argParseErrs = append(argParseErrs, d.setupChunking()...)
	if d.mode != "" {
		argParseErrs = append(argParseErrs, d.setupEmitters(stdout, stderr)...)
	}

	if len(argParseErrs) > 0 {
		if len(cfg.erroredChunkers) > 0 {
			printChunkerUsage(stderr, cfg.erroredChunkers)
		}
		return nil, argParseErrs
	}

	// Opts check out - take a snapshot of what we ended up with
	cfg.optSet.VisitAll(func(o getopt.Option) {
		switch o.LongName() {
		case "help", "help-all", "":
			// do nothing for these
		default:
			d.statSummary.SysStats.ArgvExpanded = append(
				d.statSummary.SysStats.ArgvExpanded, fmt.Sprintf(`--%s=%s`,
					o.LongName(),
					o.Value().String(),
				),
			)
		}
	})
	sort.Strings(d.statSummary.SysStats.ArgvExpanded)

	d.statSummary.Mode = d.mode
	d.statSummary.Chunker = cfg.requestedChunker
	d.statSummary.Hash = cfg.hashFunc

	return d, nil
}

func getInitialArgs(argv []string) []string {
	if len(argv) < 2 {
		return []string{}
	}
	return append([]string(nil), argv[1:]...)
}

func logArgParseErrors(out io.Writer, errs []error) {
	fmt.Fprint(out, "\nFatal error parsing arguments:\n\n")
	for _, e := range errs {
		fmt.Fprintf(out, "\t%s\n", e)
	}
	fmt.Fprint(out, "\nTry -h or --help-all for usage\n\n")
}

// Run executes the requested mode. The error of the first failing member or
// source is returned, wrapped with its name.
func (d *Ddar) Run(ctx context.Context) (err error) {
	ru0, haveRusage := sampleRusage()
	t0 := time.Now()
	defer func() {
		d.statSummary.SysStats.ElapsedNsecs = time.Since(t0).Nanoseconds()
		if ru1, ok := sampleRusage(); ok && haveRusage {
			d.statSummary.SysStats.accountRusage(ru0, ru1)
		}
	}()

	switch d.mode {
	case modeScan:
		return d.runScan(ctx)
	case modeAdd:
		return d.runAdd(ctx)
	case modeExtract:
		return d.runExtract(ctx)
	case modeDelete:
		return d.runDelete()
	case modeList:
		return d.runList()
	case modeFsck:
		return d.runFsck(ctx)
	default:
		return fmt.Errorf("unknown mode '%s'", d.mode)
	}
}

func (d *Ddar) Logger() *log.Logger { return d.logger }
