package stream

import (
	"os"

	"golang.org/x/sys/unix"
)

var ReadOptimizations = []Optimization{
	{
		Name: "sequential access",
		Action: func(f *os.File, s os.FileInfo) error {
			if !s.Mode().IsRegular() {
				return os.ErrInvalid
			}
			return unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
		},
	},
	{
		Name: "pipe buffer size",
		Action: func(f *os.File, s os.FileInfo) error {
			if s.Mode()&os.ModeNamedPipe == 0 {
				return os.ErrInvalid
			}
			// best effort, the kernel caps this at /proc/sys/fs/pipe-max-size
			_, err := unix.FcntlInt(f.Fd(), unix.F_SETPIPE_SZ, 1024*1024)
			return err
		},
	},
}

// DropCache evicts an already consumed file range from the page cache.
func DropCache(f *os.File, off, length int64) error {
	return unix.Fadvise(int(f.Fd()), off, length, unix.FADV_DONTNEED)
}
