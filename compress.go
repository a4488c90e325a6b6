package memdump

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Compression is the encoding of the raw snapshot blob on disk.
type Compression uint8

const (
	NoCompression Compression = iota
	ZstdCompression
)

var compressionNames = [...]string{"none", "zstd"}

func (c Compression) String() string {
	if int(c) < len(compressionNames) {
		return compressionNames[c]
	}
	return fmt.Sprintf("Compression(%d)", c)
}

func ParseCompression(s string) (Compression, error) {
	for i, name := range compressionNames {
		if s == name {
			return Compression(i), nil
		}
	}
	return 0, fmt.Errorf("unknown compression %q", s)
}

func (c Compression) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Compression) UnmarshalText(text []byte) (err error) {
	*c, err = ParseCompression(string(text))
	return
}

// ext is appended to the blob file name.
func (c Compression) ext() string {
	if c == ZstdCompression {
		return ".zst"
	}
	return ""
}

// newCompressedWriter wraps w, the returned closer flushes the compressor without closing w.
func newCompressedWriter(w io.Writer, c Compression) (io.Writer, io.Closer, error) {
	if c == NoCompression {
		return w, io.NopCloser(nil), nil
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, nil, err
	}
	return enc, enc, nil
}

// readCompressed decodes a zstd stream into dst, which must be filled exactly.
func readCompressed(r io.Reader, dst []byte) error {
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return err
	}
	defer dec.Close()

	if _, err = io.ReadFull(dec, dst); err != nil {
		return err
	}
	var probe [1]byte
	if n, _ := dec.Read(probe[:]); n != 0 {
		return fmt.Errorf("stream is longer than %d bytes", len(dst))
	}
	return nil
}
