package internal

import (
	"io"

	"github.com/exascience/cram"
)

// ReadFull is io.ReadFull with panics in place of errors. A short read
// counts as malformed input.
func ReadFull(r io.Reader, p []byte) {
	if _, err := io.ReadFull(r, p); err != nil {
		panic(cram.Malformedf("unexpected end of stream: %v", err))
	}
}

// ReadByte reads a single byte with panics in place of errors.
func ReadByte(r io.ByteReader) byte {
	b, err := r.ReadByte()
	if err != nil {
		panic(cram.Malformedf("unexpected end of stream: %v", err))
	}
	return b
}

// WriteFull is w.Write with panics in place of errors.
func WriteFull(w io.Writer, p []byte) {
	if _, err := w.Write(p); err != nil {
		panic(err)
	}
}
