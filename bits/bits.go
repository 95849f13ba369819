// cram: a high-performance library for the CRAM sequencing data format.
// Copyright (c) 2022-2024 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/cram/blob/master/LICENSE.txt>.

// Package bits implements the MSB-first bit streams that back the core
// data blocks of CRAM slices. Within each byte the most significant
// bit comes first, and multi-bit values are written most significant
// bit first with no alignment between values.
//
// Readers and writers panic with *cram.Error values on exhausted or
// misused streams; the file-level entry points of this library recover
// such panics into ordinary errors.
package bits

import (
	"github.com/exascience/cram"
)

// Reader reads an MSB-first bit stream from a byte slice.
type Reader struct {
	data  []byte
	index int
	cur   byte
	left  int
}

// NewReader returns a Reader over data. The Reader does not copy data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// ReadBit reads a single bit.
func (r *Reader) ReadBit() int {
	if r.left == 0 {
		if r.index == len(r.data) {
			panic(cram.Malformedf("bit stream exhausted at byte %d", r.index))
		}
		r.cur = r.data[r.index]
		r.index++
		r.left = 8
	}
	r.left--
	return int(r.cur>>uint(r.left)) & 1
}

// ReadBits reads n bits, 0 <= n <= 32, and returns them as the low
// bits of the result.
func (r *Reader) ReadBits(n int) uint32 {
	if n < 0 || n > 32 {
		panic(cram.DomainViolationf("cannot read %d bits at once", n))
	}
	var v uint32
	for ; n > 0; n-- {
		v = v<<1 | uint32(r.ReadBit())
	}
	return v
}

// Align discards the remaining bits of the current byte so that the
// next read starts on a byte boundary.
func (r *Reader) Align() {
	r.left = 0
}

// Writer assembles an MSB-first bit stream.
type Writer struct {
	data []byte
	acc  byte
	n    int
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// WriteBit writes a single bit; any nonzero b writes a one bit.
func (w *Writer) WriteBit(b int) {
	w.acc <<= 1
	if b != 0 {
		w.acc |= 1
	}
	if w.n++; w.n == 8 {
		w.data = append(w.data, w.acc)
		w.acc = 0
		w.n = 0
	}
}

// WriteBits writes the low n bits of v, 0 <= n <= 32, most significant
// bit first.
func (w *Writer) WriteBits(v uint32, n int) {
	if n < 0 || n > 32 {
		panic(cram.DomainViolationf("cannot write %d bits at once", n))
	}
	for i := n - 1; i >= 0; i-- {
		w.WriteBit(int(v>>uint(i)) & 1)
	}
}

// Len returns the number of bits written so far.
func (w *Writer) Len() int {
	return len(w.data)*8 + w.n
}

// Bytes pads the stream with zero bits to a byte boundary and returns
// the accumulated bytes. The Writer remains usable; further writes
// start on the byte boundary.
func (w *Writer) Bytes() []byte {
	for w.n != 0 {
		w.WriteBit(0)
	}
	return w.data
}
