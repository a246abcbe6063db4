package stream

import (
	"os"

	"github.com/mattn/go-isatty"
)

// Optimization is an advisory hint applied to an open file. Action returns
// os.ErrInvalid when the hint does not apply to the file type or platform.
type Optimization struct {
	Name   string
	Action func(f *os.File, s os.FileInfo) error
}

func IsTTY(w interface{}) bool {
	if f, isFh := w.(*os.File); isFh {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}
