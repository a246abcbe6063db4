package ddchunker

import (
	"errors"
	"fmt"
	"io"

	"github.com/anjor/ddar/internal/constants"
)

var (
	ErrNotAttached = errors.New("chunker has no source attached")
	ErrNotStarted  = errors.New("chunker was not started via Begin()")
	ErrClosed      = errors.New("chunker is closed")
)

// Chunk describes one span of the stream. Data holds one or two ranges of the
// ring buffer (two when the chunk straddles the buffer end), valid only until
// the following Next() call.
type Chunk struct {
	_      constants.Incomparabe
	Offset int64
	Size   int
	Data   [2][]byte
	Last   bool
	Forced bool
}

// Bytes returns a private copy of the chunk content.
func (c Chunk) Bytes() []byte {
	out := make([]byte, 0, c.Size)
	out = append(out, c.Data[0]...)
	return append(out, c.Data[1]...)
}

func (c Chunk) WriteTo(w io.Writer) (n int64, err error) {
	for _, d := range c.Data {
		if len(d) == 0 {
			continue
		}
		var wn int
		wn, err = w.Write(d)
		n += int64(wn)
		if err != nil {
			return
		}
	}
	return
}

type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid chunker configuration: %s %s", e.Field, e.Reason)
}

// IoError is fatal to the Chunker instance that returned it.
type IoError struct {
	Op     string
	Offset int64
	Err    error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("%s failed at stream offset %d: %s", e.Op, e.Offset, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }

type Stats struct {
	Chunks     int64
	ForcedCuts int64
	BytesRead  int64
	ReadCalls  int64
	Refills    int64
	ShortReads int64
	Waits      int64
	WaitNsecs  int64
}
