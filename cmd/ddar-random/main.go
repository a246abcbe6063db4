// ddar-random writes a reproducible pseudo-random stream of the given length
// to stdOUT, seeded from whatever is supplied on stdIN.
package main

import (
	"bufio"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/anjor/ddar/internal/util/randstream"
	"github.com/anjor/ddar/internal/util/stream"

	"github.com/pborman/getopt/v2"
)

func main() {
	o := getopt.New()
	o.SetParameters("<length> < seedfile")
	help := o.BoolLong("help", 'h', "Display help")

	if err := o.Getopt(os.Args, nil); err != nil || *help || o.NArgs() != 1 {
		o.PrintUsage(os.Stderr)
		if *help {
			os.Exit(0)
		}
		os.Exit(2)
	}

	length, err := strconv.ParseInt(o.Arg(0), 10, 64)
	if err != nil || length < 0 {
		log.Fatalf("length must be a non-negative integer, not '%s'", o.Arg(0))
	}

	if stream.IsTTY(os.Stdout) {
		log.Fatal("refusing to write random bytes to a terminal")
	}

	seed, err := io.ReadAll(os.Stdin)
	if err != nil {
		log.Fatalf("unexpected error reading the seed from stdIN: %s", err)
	}

	out := bufio.NewWriterSize(os.Stdout, 1<<20)
	if _, err := io.Copy(out, randstream.New(randstream.SeedFromBytes(seed), length)); err != nil {
		log.Fatalf("writing the stream failed: %s", err)
	}
	if err := out.Flush(); err != nil {
		log.Fatalf("writing the stream failed: %s", err)
	}
}
