package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/anjor/ddar"
	"github.com/anjor/ddar/internal/archive"
)

func main() {

	// Parse CLI and initialize everything
	// On error it will exit on its own
	d := ddar.NewFromArgv(os.Args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	processErr := d.Run(ctx)

	if err := d.OutputSummary(); err != nil && processErr == nil {
		processErr = err
	}

	if processErr != nil {
		// fsck findings were already listed, only the verdict is left
		if !errors.Is(processErr, archive.ErrCorrupt) {
			d.Logger().Error("processing failed", "err", processErr)
		} else {
			fmt.Fprintln(os.Stderr, processErr)
		}
		stop()
		os.Exit(1)
	}
}
