package ddar

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"sort"
	"strings"

	"github.com/anjor/ddar/internal/archive"
	ddchunker "github.com/anjor/ddar/internal/chunker"
	"github.com/anjor/ddar/internal/digest"
	"github.com/anjor/ddar/internal/logging"
	"github.com/anjor/ddar/internal/util/text"

	"github.com/pborman/getopt/v2"
	"github.com/pborman/options"
)

type emissionTargets map[string]io.Writer

const (
	emNone        = "none"
	emStatsText   = "stats-text"
	emStatsJsonl  = "stats-jsonl"
	emChunksJsonl = "chunks-jsonl"
	emChunksCsv   = "chunks-csv"
)

const (
	modeAdd     = "add"
	modeList    = "list"
	modeExtract = "extract"
	modeDelete  = "delete"
	modeFsck    = "fsck"
	modeScan    = "scan"
)

// ErrHelp is returned in place of argument errors after the usage was shown
// on request.
var ErrHelp = errors.New("help requested")

func defaultConfig() config {
	return config{
		emitters: emissionTargets{
			emNone:        nil,
			emStatsText:   nil,
			emStatsJsonl:  nil,
			emChunksJsonl: nil,
			emChunksCsv:   nil,
		},
		emittersStdErr:   []string{emNone},
		emittersStdOut:   []string{emNone},
		hashFunc:         digest.DefaultHasher,
		compression:      archive.DefaultCompression,
		digestEncoding:   digest.DefaultEncoding,
		ioMode:           string(ddchunker.IOAsync),
		requestedChunker: ddchunker.DefaultChunker,
		RingSegments:     ddchunker.DefaultSegments,
		Jobs:             runtime.NumCPU(),
		LogLevel:         logging.DefaultLevel,
	}
}

func (cfg *config) printUsage(out io.Writer) {
	cfg.optSet.PrintUsage(out)
	if cfg.HelpAll || len(cfg.erroredChunkers) > 0 {
		printChunkerUsage(out, cfg.erroredChunkers)
	} else {
		fmt.Fprint(out, "\nTry --help-all for more info\n\n")
	}
}

func printChunkerUsage(out io.Writer, listChunkers []string) {

	// if nothing was requested explicitly - list everything
	if len(listChunkers) == 0 {
		for name := range ddchunker.AvailableChunkers {
			listChunkers = append(listChunkers, name)
		}
	}

	fmt.Fprint(out, "\n")
	sort.Strings(listChunkers)
	for _, name := range listChunkers {
		fmt.Fprintf(
			out,
			"[C]hunker '%s'\n",
			name,
		)
		_, h := ddchunker.AvailableChunkers[name](nil)
		if len(h) == 0 {
			fmt.Fprint(out, "  -- no helptext available --\n\n")
		} else {
			for _, l := range h {
				fmt.Fprintln(out, l)
			}
		}
	}

	fmt.Fprint(out, "\n")
}

func (cfg *config) initArgvParser() error {
	// The default documented way of using pborman/options is to muck with globals
	// Operate over objects instead, allowing us to re-parse argv multiple times
	o := getopt.New()
	if err := options.RegisterSet("", cfg, o); err != nil {
		return fmt.Errorf("option set registration failed: %s", err)
	}
	cfg.optSet = o

	o.SetParameters("archive [member...]")

	o.Flag(&cfg.Add, 'q', "Same as -r")

	// Several options have the help-text assembled programmatically
	o.FlagLong(&cfg.hashFunc, "hash", 0, "Hash function naming stored objects, one of: "+text.AvailableMapKeys(digest.AvailableHashers)+
		". Fixed at archive creation. Default:",
		"algname",
	)
	o.FlagLong(&cfg.compression, "compression", 0, "Compression of stored objects, one of: "+text.AvailableMapKeys(archive.AvailableCompressions)+
		". Fixed at archive creation. Default:",
		"codec",
	)
	o.FlagLong(&cfg.requestedChunker, "chunker", 0,
		"Stream chunking algorithm. One of: "+text.AvailableMapKeys(ddchunker.AvailableChunkers)+". Fixed at archive creation. Default:",
		"chname_opt1_opt2_..._optN",
	)
	o.FlagLong(&cfg.ioMode, "io-mode", 0,
		fmt.Sprintf("Reading strategy, '%s' overlaps reads with chunking, '%s' does not. Default:", ddchunker.IOAsync, ddchunker.IOSync),
		"mode",
	)
	o.FlagLong(&cfg.digestEncoding, "digest-encoding", 0, "Rendering of digests in emitted records, one of: "+text.AvailableMapKeys(digest.AvailableEncodings)+
		". Default:",
		"encoding",
	)
	o.FlagLong(&cfg.emittersStdErr, "emit-stderr", 0, fmt.Sprintf(
		"One or more emitters to activate on stdERR. Available emitters are %s. Default: ",
		text.AvailableMapKeys(cfg.emitters),
	), "comma,sep,emitters")
	o.FlagLong(&cfg.emittersStdOut, "emit-stdout", 0,
		"One or more emitters to activate on stdOUT. Available emitters same as above. Default: ",
		"comma,sep,emitters",
	)

	return nil
}

// arStyleArgv makes the leading hyphen of the first argument optional, so that
// `ddar rv archive file` works the way it does with ar(1).
func arStyleArgv(argv []string) []string {
	if len(argv) < 2 || argv[1] == "" || argv[1][0] == '-' {
		return argv
	}
	out := append([]string(nil), argv...)
	out[1] = "-" + out[1]
	return out
}

func (d *Ddar) setupMode() (argErrs []error) {
	cfg := &d.cfg

	var selected []string
	for _, m := range []struct {
		name string
		set  bool
	}{
		{modeAdd, cfg.Add},
		{modeList, cfg.List},
		{modeExtract, cfg.Extract},
		{modeDelete, cfg.Delete},
		{modeFsck, cfg.Fsck},
		{modeScan, cfg.Scan},
	} {
		if m.set {
			selected = append(selected, m.name)
		}
	}
	if len(selected) != 1 {
		return []error{fmt.Errorf("exactly one of -r, -t, -x, -d, --fsck or --scan must be given")}
	}
	d.mode = selected[0]

	if d.mode != modeScan && len(d.args) == 0 {
		return []error{fmt.Errorf("an archive directory must be given")}
	}

	switch d.mode {
	case modeAdd:
		if len(d.args) < 2 {
			argErrs = append(argErrs, fmt.Errorf("nothing to add: at least one file must be given"))
		}
		for i, fn := range d.args[1:] {
			if fn == "-" && (i > 0 || cfg.Name == "") {
				argErrs = append(argErrs, fmt.Errorf("adding from stdIN requires it to be the first file, named via --name"))
			}
		}
	case modeExtract, modeDelete:
		if len(d.args) < 2 {
			argErrs = append(argErrs, fmt.Errorf("at least one member name must be given"))
		}
	case modeFsck:
		if len(d.args) > 1 {
			argErrs = append(argErrs, fmt.Errorf("unexpected parameter(s) after the archive: %s...", d.args[1]))
		}
	case modeScan:
		var stdins int
		for _, fn := range d.args {
			if fn == "-" {
				stdins++
			}
		}
		if stdins > 1 {
			argErrs = append(argErrs, fmt.Errorf("stdIN ('-') may be scanned only once"))
		}
	}

	if cfg.Name != "" && d.mode != modeAdd {
		argErrs = append(argErrs, fmt.Errorf("--name is only valid when adding"))
	}
	if cfg.OutputName != "" && d.mode != modeExtract {
		argErrs = append(argErrs, fmt.Errorf("-o is only valid when extracting"))
	}

	return
}

func (d *Ddar) setupEmitters(stdout, stderr io.Writer) (argErrs []error) {

	cfg := &d.cfg

	// scanning without any output is pointless: default to a summary
	if d.mode == modeScan && !cfg.optSet.IsSet("emit-stderr") && !cfg.optSet.IsSet("emit-stdout") {
		cfg.emittersStdErr = []string{emStatsText}
	}

	activeStderr := make(map[string]bool, len(cfg.emittersStdErr))
	for _, s := range cfg.emittersStdErr {
		activeStderr[s] = true
		if val, exists := cfg.emitters[s]; !exists {
			argErrs = append(argErrs, fmt.Errorf("invalid emitter '%s' specified for --emit-stderr. Available emitters are: %s",
				s,
				text.AvailableMapKeys(cfg.emitters),
			))
		} else if s == emNone {
			continue
		} else if val != nil {
			argErrs = append(argErrs, fmt.Errorf("Emitter '%s' specified more than once", s))
		} else {
			cfg.emitters[s] = stderr
		}
	}
	activeStdout := make(map[string]bool, len(cfg.emittersStdOut))
	for _, s := range cfg.emittersStdOut {
		activeStdout[s] = true
		if val, exists := cfg.emitters[s]; !exists {
			argErrs = append(argErrs, fmt.Errorf("invalid emitter '%s' specified for --emit-stdout. Available emitters are: %s",
				s,
				text.AvailableMapKeys(cfg.emitters),
			))
		} else if s == emNone {
			continue
		} else if val != nil {
			argErrs = append(argErrs, fmt.Errorf("Emitter '%s' specified more than once", s))
		} else {
			cfg.emitters[s] = stdout
		}
	}

	for _, exclusiveEmitter := range []string{
		emNone,
		emStatsText,
	} {
		if activeStderr[exclusiveEmitter] && len(activeStderr) > 1 {
			argErrs = append(argErrs, fmt.Errorf(
				"When specified, emitter '%s' must be the sole argument to --emit-stderr",
				exclusiveEmitter,
			))
		}
		if activeStdout[exclusiveEmitter] && len(activeStdout) > 1 {
			argErrs = append(argErrs, fmt.Errorf(
				"When specified, emitter '%s' must be the sole argument to --emit-stdout",
				exclusiveEmitter,
			))
		}
	}

	// extracted content and records can not share stdOUT
	if d.mode == modeExtract && len(d.args) > 1 && !activeStdout[emNone] {
		for i, tag := range d.args[1:] {
			if d.extractTarget(i, tag) == "-" {
				argErrs = append(argErrs, fmt.Errorf("extracting to stdOUT conflicts with --emit-stdout"))
				break
			}
		}
	}

	// set shortcuts based on emitter config
	d.emitChunks = cfg.emitters[emChunksJsonl] != nil || cfg.emitters[emChunksCsv] != nil

	return
}

func (d *Ddar) setupChunking() (argErrs []error) {

	cfg := &d.cfg

	if _, exists := digest.AvailableHashers[cfg.hashFunc]; !exists {
		argErrs = append(argErrs, fmt.Errorf(
			"Hash function '%s' requested via '--hash=algname' is not valid. Available hash names are %s",
			cfg.hashFunc,
			text.AvailableMapKeys(digest.AvailableHashers),
		))
	}
	if _, exists := archive.AvailableCompressions[cfg.compression]; !exists {
		argErrs = append(argErrs, fmt.Errorf(
			"Compression '%s' requested via '--compression=codec' is not valid. Available compressions are %s",
			cfg.compression,
			text.AvailableMapKeys(archive.AvailableCompressions),
		))
	}
	if _, exists := digest.AvailableEncodings[cfg.digestEncoding]; !exists {
		argErrs = append(argErrs, fmt.Errorf(
			"Digest encoding '%s' is not valid. Available encodings are %s",
			cfg.digestEncoding,
			text.AvailableMapKeys(digest.AvailableEncodings),
		))
	}

	switch ddchunker.IOMode(cfg.ioMode) {
	case ddchunker.IOSync, ddchunker.IOAsync:
	default:
		argErrs = append(argErrs, fmt.Errorf(
			"--io-mode must be either '%s' or '%s', not '%s'",
			ddchunker.IOSync,
			ddchunker.IOAsync,
			cfg.ioMode,
		))
	}

	if cfg.Jobs < 1 {
		argErrs = append(argErrs, fmt.Errorf("the value of --jobs must be at least 1"))
	}
	if cfg.RingBufferSize < 0 {
		argErrs = append(argErrs, fmt.Errorf("the value of --ring-buffer-size may not be negative"))
	}

	chunkerCfg, initErrors := ddchunker.FromSpec(cfg.requestedChunker)
	if len(initErrors) > 0 {
		name := strings.Split(cfg.requestedChunker, "_")[0]
		if _, exists := ddchunker.AvailableChunkers[name]; exists {
			cfg.erroredChunkers = append(cfg.erroredChunkers, name)
		}
		for _, e := range initErrors {
			argErrs = append(argErrs, fmt.Errorf(
				"Initialization of chunker '%s' failed: %s",
				name,
				e,
			))
		}
		return
	}

	if len(argErrs) > 0 {
		return
	}

	d.chunkerCfg = d.withIOSettings(chunkerCfg)
	if err := d.chunkerCfg.Validate(); err != nil {
		argErrs = append(argErrs, err)
	}

	d.archiveParams = archive.Params{
		Hash:        cfg.hashFunc,
		Compression: cfg.compression,
		Chunker:     cfg.requestedChunker,
	}

	return
}

// withIOSettings applies the io related options to a chunking configuration.
func (d *Ddar) withIOSettings(c ddchunker.Config) ddchunker.Config {
	c.IOMode = ddchunker.IOMode(d.cfg.ioMode)
	c.BufferSize = d.cfg.RingBufferSize
	c.Segments = d.cfg.RingSegments
	c.DropCache = d.cfg.DropCache
	return c
}

// checkArchiveParams rejects explicitly requested creation-time parameters an
// existing archive does not use.
func (d *Ddar) checkArchiveParams(p archive.Params) (errs []error) {
	for _, c := range []struct {
		opt, requested, actual string
	}{
		{"hash", d.archiveParams.Hash, p.Hash},
		{"compression", d.archiveParams.Compression, p.Compression},
		{"chunker", d.archiveParams.Chunker, p.Chunker},
	} {
		if d.cfg.optSet.IsSet(c.opt) && c.requested != c.actual {
			errs = append(errs, fmt.Errorf(
				"--%s=%s requested, but the archive was created with --%s=%s",
				c.opt, c.requested,
				c.opt, c.actual,
			))
		}
	}
	return
}
