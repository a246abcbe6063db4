package ddar

import "github.com/pborman/getopt/v2"

type config struct {
	optSet *getopt.Set

	// where to output
	emitters emissionTargets

	//
	// Bulk of CLI options definition starts here, the rest further down in initArgvParser()
	//

	Help    bool `getopt:"-h --help     Display basic help"`
	HelpAll bool `getopt:"--help-all    Display full help including the options of every available chunker"`

	// modes, exactly one must be given
	Add     bool `getopt:"-r --add      Add members to the archive, creating the archive if it does not exist"`
	List    bool `getopt:"-t --list     List archive members, optionally only the ones matching the given glob patterns"`
	Extract bool `getopt:"-x --extract  Extract members from the archive"`
	Delete  bool `getopt:"-d --delete   Delete members from the archive"`
	Fsck    bool `getopt:"--fsck        Check the archive for errors"`
	Scan    bool `getopt:"--scan        Chunk the given files (stdIN when none) without an archive, reporting chunks and statistics"`

	Verbose    bool   `getopt:"-v --verbose  Include size, chunk count and creation time when listing members"`
	Name       string `getopt:"--name=NAME   Use NAME as the member name of the first added file, required when adding from stdIN"`
	OutputName string `getopt:"-o=NAME       Use NAME as the destination of the first extracted member ('-' for stdOUT)"`

	RingBufferSize int    `getopt:"--ring-buffer-size=bytes The size of the read buffer, 0 selects segments * max(4MiB, maximum chunk size). Default:"`
	RingSegments   int    `getopt:"--ring-segments=integer  (EXPERT SETTING) Amount of equally sized segments the read buffer is split into: minimum 2 in sync and 3 in async mode. Default:"`
	DropCache      bool   `getopt:"--drop-cache             Evict consumed input from the OS page cache (regular files on linux only)"`
	Jobs           int    `getopt:"--jobs=integer           Amount of sources chunked (--scan) or objects verified (--fsck) concurrently. Default:"`
	LogLevel       string `getopt:"--log-level=level        Verbosity of diagnostics on stdERR, one of 'debug', 'info', 'warn', 'error'. Default:"`

	emittersStdErr []string // Emitter spec: option/helptext in initArgvParser()
	emittersStdOut []string // Emitter spec: option/helptext in initArgvParser()

	hashFunc         string // hash function to use: option/helptext in initArgvParser()
	compression      string // object compression: option/helptext in initArgvParser()
	digestEncoding   string // digest rendering in emitted records: option/helptext in initArgvParser()
	ioMode           string // chunker io backend: option/helptext in initArgvParser()
	requestedChunker string // Chunker: option/helptext in initArgvParser()

	// no-option-attached, instantiation error accumulator
	erroredChunkers []string
}
