//go:build !windows
// +build !windows

package ddchunker

import (
	"errors"

	"golang.org/x/sys/unix"
)

func isInterrupted(err error) bool {
	return err != nil && errors.Is(err, unix.EINTR)
}
