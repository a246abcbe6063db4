//go:build !windows

package ddar

import (
	"runtime"

	"golang.org/x/sys/unix"
)

func sampleRusage() (rusage, bool) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return rusage{}, false
	}

	maxRss := int64(ru.Maxrss)
	if runtime.GOOS != "darwin" {
		// KiB everywhere but on mac
		maxRss *= 1024
	}

	return rusage{
		userNsecs: unix.TimevalToNsec(ru.Utime),
		sysNsecs:  unix.TimevalToNsec(ru.Stime),
		maxRss:    maxRss,
		minFlt:    int64(ru.Minflt),
		majFlt:    int64(ru.Majflt),
		inBlock:   int64(ru.Inblock),
		outBlock:  int64(ru.Oublock),
		signals:   int64(ru.Nsignals),
		volCtxSw:  int64(ru.Nvcsw),
		invCtxSw:  int64(ru.Nivcsw),
	}, true
}
