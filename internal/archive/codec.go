package archive

import (
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// codec instances keep reusable state and are not safe for concurrent use.
type codec interface {
	compress(w io.Writer, spans [2][]byte) error
	decompress(r io.Reader, w io.Writer) (int64, error)
}

const DefaultCompression = "zstd"

var AvailableCompressions = map[string]func() (codec, error){
	"none": func() (codec, error) { return noneCodec{}, nil },
	"zstd": newZstdCodec,
	"lz4":  func() (codec, error) { return &lz4Codec{w: lz4.NewWriter(nil), r: lz4.NewReader(nil)}, nil },
	"xz":   func() (codec, error) { return xzCodec{}, nil },
}

func writeSpans(w io.Writer, spans [2][]byte) error {
	for _, s := range spans {
		if len(s) == 0 {
			continue
		}
		if _, err := w.Write(s); err != nil {
			return err
		}
	}
	return nil
}

type noneCodec struct{}

func (noneCodec) compress(w io.Writer, spans [2][]byte) error { return writeSpans(w, spans) }
func (noneCodec) decompress(r io.Reader, w io.Writer) (int64, error) {
	return io.Copy(w, r)
}

type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec() (codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return &zstdCodec{enc: enc, dec: dec}, nil
}

func (c *zstdCodec) compress(w io.Writer, spans [2][]byte) error {
	c.enc.Reset(w)
	if err := writeSpans(c.enc, spans); err != nil {
		return err
	}
	return c.enc.Close()
}

func (c *zstdCodec) decompress(r io.Reader, w io.Writer) (int64, error) {
	if err := c.dec.Reset(r); err != nil {
		return 0, err
	}
	return io.Copy(w, c.dec)
}

type lz4Codec struct {
	w *lz4.Writer
	r *lz4.Reader
}

func (c *lz4Codec) compress(w io.Writer, spans [2][]byte) error {
	c.w.Reset(w)
	if err := writeSpans(c.w, spans); err != nil {
		return err
	}
	return c.w.Close()
}

func (c *lz4Codec) decompress(r io.Reader, w io.Writer) (int64, error) {
	c.r.Reset(r)
	return io.Copy(w, c.r)
}

type xzCodec struct{}

func (xzCodec) compress(w io.Writer, spans [2][]byte) error {
	xw, err := xz.NewWriter(w)
	if err != nil {
		return err
	}
	if err := writeSpans(xw, spans); err != nil {
		return err
	}
	return xw.Close()
}

func (xzCodec) decompress(r io.Reader, w io.Writer) (int64, error) {
	xr, err := xz.NewReader(r)
	if err != nil {
		return 0, err
	}
	return io.Copy(w, xr)
}
