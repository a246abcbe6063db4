package logging

import (
	"io"

	"github.com/charmbracelet/log"
)

const DefaultLevel = "info"

func New(w io.Writer, level string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	return log.NewWithOptions(w, log.Options{
		Prefix: "ddar",
		Level:  lvl,
	}), nil
}

// Discard is handy for library callers and tests that do not care.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}
