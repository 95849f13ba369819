package internal

import (
	"github.com/exascience/cram"
)

/*
Reader is a cursor over a byte slice for the wire formats of the
entropy codecs. All methods panic with *cram.Error values on overruns,
so that decode loops stay free of error plumbing; the error boundaries
of this library recover such panics into ordinary errors.

Multi-byte integers are little-endian, matching the codec formats.
*/
type Reader struct {
	Data []byte
	Pos  int
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.Data) - r.Pos
}

func (r *Reader) overrun() {
	panic(cram.Malformedf("unexpected end of stream at offset %d", r.Pos))
}

// U8 reads a single byte.
func (r *Reader) U8() byte {
	if r.Pos >= len(r.Data) {
		r.overrun()
	}
	b := r.Data[r.Pos]
	r.Pos++
	return b
}

// U16 reads a 16-bit little-endian value.
func (r *Reader) U16() uint32 {
	if r.Pos+2 > len(r.Data) {
		r.overrun()
	}
	v := uint32(r.Data[r.Pos]) | uint32(r.Data[r.Pos+1])<<8
	r.Pos += 2
	return v
}

// U32 reads a 32-bit little-endian value.
func (r *Reader) U32() uint32 {
	if r.Pos+4 > len(r.Data) {
		r.overrun()
	}
	v := uint32(r.Data[r.Pos]) | uint32(r.Data[r.Pos+1])<<8 | uint32(r.Data[r.Pos+2])<<16 | uint32(r.Data[r.Pos+3])<<24
	r.Pos += 4
	return v
}

// ITF8 reads an ITF8-encoded 32-bit value. The number of continuation
// bytes is given by the leading one bits of the first byte.
func (r *Reader) ITF8() int32 {
	b := uint32(r.U8())
	switch {
	case b < 0x80:
		return int32(b)
	case b < 0xC0:
		return int32((b<<8 | uint32(r.U8())) & 0x3FFF)
	case b < 0xE0:
		return int32((b<<16 | uint32(r.U8())<<8 | uint32(r.U8())) & 0x1FFFFF)
	case b < 0xF0:
		return int32((b<<24 | uint32(r.U8())<<16 | uint32(r.U8())<<8 | uint32(r.U8())) & 0x0FFFFFFF)
	default:
		// The fifth byte contributes its low 4 bits only.
		v := b&0xF<<28 | uint32(r.U8())<<20 | uint32(r.U8())<<12 | uint32(r.U8())<<4
		return int32(v | uint32(r.U8())&0xF)
	}
}

// LTF8 reads an LTF8-encoded 64-bit value.
func (r *Reader) LTF8() int64 {
	b := r.U8()
	n := 0
	for m := byte(0x80); m > 0 && b&m != 0; m >>= 1 {
		n++
	}
	v := uint64(b) & (0xFF >> uint(n))
	for ; n > 0; n-- {
		v = v<<8 | uint64(r.U8())
	}
	return int64(v)
}

// Uint7 reads a uint7-encoded value, big-endian chunks of 7 bits with
// the high bit marking continuation.
func (r *Reader) Uint7() uint32 {
	var v uint32
	for i := 0; i < 5; i++ {
		b := r.U8()
		v = v<<7 | uint32(b&0x7F)
		if b&0x80 == 0 {
			return v
		}
	}
	panic(cram.Malformedf("uint7 value does not fit in 32 bits at offset %d", r.Pos))
}

// Bytes reads the next n bytes. The result aliases the underlying data.
func (r *Reader) Bytes(n int) []byte {
	if n < 0 || r.Pos+n > len(r.Data) {
		r.overrun()
	}
	p := r.Data[r.Pos : r.Pos+n]
	r.Pos += n
	return p
}
