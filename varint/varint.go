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

// Package varint implements the compact variable-length integer
// encodings of the CRAM format: ITF8 for 32-bit values, LTF8 for
// 64-bit values, and the big-endian 7-bit chunked uint7 used by the
// rANS-Nx16, name-tokenizer, and quality-codec sub-formats.
//
// ITF8 and LTF8 store the number of continuation bytes as leading one
// bits in the first byte, followed by the value in big-endian order.
// Negative values always take the longest form and round-trip through
// their two's complement bits.
package varint

import (
	"io"

	"github.com/exascience/cram"
)

// Maximum encoded sizes in bytes.
const (
	MaxLenITF8  = 5
	MaxLenLTF8  = 9
	MaxLenUint7 = 5
)

// AppendITF8 appends the ITF8 encoding of v to p and returns the
// extended slice.
func AppendITF8(p []byte, v int32) []byte {
	u := uint32(v)
	switch {
	case u>>7 == 0:
		return append(p, byte(u))
	case u>>14 == 0:
		return append(p, byte(u>>8)|0x80, byte(u))
	case u>>21 == 0:
		return append(p, byte(u>>16)|0xC0, byte(u>>8), byte(u))
	case u>>28 == 0:
		return append(p, byte(u>>24)|0xE0, byte(u>>16), byte(u>>8), byte(u))
	default:
		return append(p, byte(u>>28)|0xF0, byte(u>>20), byte(u>>12), byte(u>>4), byte(u&0xF))
	}
}

// ReadITF8 reads an ITF8-encoded value from r.
func ReadITF8(r io.ByteReader) (int32, error) {
	b1, err := r.ReadByte()
	if err != nil {
		return 0, cram.Malformedf("truncated ITF8 value: %v", err)
	}
	var tail [4]byte
	n := itf8TailLen(b1)
	for i := 0; i < n; i++ {
		if tail[i], err = r.ReadByte(); err != nil {
			return 0, cram.Malformedf("truncated ITF8 value: %v", err)
		}
	}
	switch n {
	case 0:
		return int32(b1), nil
	case 1:
		return int32((uint32(b1)<<8 | uint32(tail[0])) & 0x3FFF), nil
	case 2:
		return int32((uint32(b1)<<16 | uint32(tail[0])<<8 | uint32(tail[1])) & 0x1FFFFF), nil
	case 3:
		return int32((uint32(b1)<<24 | uint32(tail[0])<<16 | uint32(tail[1])<<8 | uint32(tail[2])) & 0x0FFFFFFF), nil
	default:
		// The fifth byte contributes its low 4 bits only.
		return int32(uint32(b1&0xF)<<28 | uint32(tail[0])<<20 | uint32(tail[1])<<12 | uint32(tail[2])<<4 | uint32(tail[3]&0xF)), nil
	}
}

func itf8TailLen(b byte) int {
	switch {
	case b < 0x80:
		return 0
	case b < 0xC0:
		return 1
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return 4
	}
}

// AppendLTF8 appends the LTF8 encoding of v to p and returns the
// extended slice.
func AppendLTF8(p []byte, v int64) []byte {
	u := uint64(v)
	switch {
	case u>>7 == 0:
		return append(p, byte(u))
	case u>>14 == 0:
		return append(p, byte(u>>8)|0x80, byte(u))
	case u>>21 == 0:
		return append(p, byte(u>>16)|0xC0, byte(u>>8), byte(u))
	case u>>28 == 0:
		return append(p, byte(u>>24)|0xE0, byte(u>>16), byte(u>>8), byte(u))
	case u>>35 == 0:
		return append(p, byte(u>>32)|0xF0, byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
	case u>>42 == 0:
		return append(p, byte(u>>40)|0xF8, byte(u>>32), byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
	case u>>49 == 0:
		return append(p, byte(u>>48)|0xFC, byte(u>>40), byte(u>>32), byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
	case u>>56 == 0:
		return append(p, 0xFE, byte(u>>48), byte(u>>40), byte(u>>32), byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
	default:
		return append(p, 0xFF, byte(u>>56), byte(u>>48), byte(u>>40), byte(u>>32), byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
	}
}

// ReadLTF8 reads an LTF8-encoded value from r.
func ReadLTF8(r io.ByteReader) (int64, error) {
	b1, err := r.ReadByte()
	if err != nil {
		return 0, cram.Malformedf("truncated LTF8 value: %v", err)
	}
	n := ltf8TailLen(b1)
	v := uint64(b1) & (0xFF >> uint(n+1))
	for i := 0; i < n; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, cram.Malformedf("truncated LTF8 value: %v", err)
		}
		v = v<<8 | uint64(b)
	}
	return int64(v), nil
}

func ltf8TailLen(b byte) int {
	switch {
	case b < 0x80:
		return 0
	case b < 0xC0:
		return 1
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	case b < 0xF8:
		return 4
	case b < 0xFC:
		return 5
	case b < 0xFE:
		return 6
	case b == 0xFE:
		return 7
	default:
		return 8
	}
}

// AppendUint7 appends the uint7 encoding of v to p and returns the
// extended slice. Chunks of 7 bits are stored big-endian; every chunk
// except the last has its high bit set.
func AppendUint7(p []byte, v uint32) []byte {
	s := 0
	for x := v >> 7; x > 0; x >>= 7 {
		s += 7
	}
	for ; s > 0; s -= 7 {
		p = append(p, byte(v>>uint(s))&0x7F|0x80)
	}
	return append(p, byte(v)&0x7F)
}

// ReadUint7 reads a uint7-encoded value from r.
func ReadUint7(r io.ByteReader) (uint32, error) {
	var v uint32
	for i := 0; i < MaxLenUint7; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, cram.Malformedf("truncated uint7 value: %v", err)
		}
		v = v<<7 | uint32(b&0x7F)
		if b&0x80 == 0 {
			return v, nil
		}
	}
	return 0, cram.Malformedf("uint7 value does not fit in 32 bits")
}
