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

// Package rans implements the two rANS entropy coders of the CRAM
// format: the 4x8 coder of CRAM 3.0 with four interleaved states and
// 8-bit renormalization, and the Nx16 coder of CRAM 3.1 with 4 or 32
// states, 16-bit renormalization, and the optional bit-packing,
// run-length, and striping transforms.
//
// Both coders interleave their states over the input in round-robin
// fashion and emit the compressed bytes in reverse, so that decoders
// read the stream strictly forward.
package rans

import (
	"math/bits"

	"github.com/exascience/cram"
	"github.com/exascience/cram/internal"
)

const (
	numSymbols     = 256
	totalFreq      = 4096
	totalFreqShift = 12

	lowerBound4x8  = 1 << 23
	lowerBoundNx16 = 1 << 15
)

// encSymbol holds the precomputed coding constants of one symbol in
// one frequency context. Frequencies are normalized to total 1<<12
// before encoding, so the renormalization threshold is freq<<19 for
// both coders.
type encSymbol struct {
	xMax  uint32
	start uint32
	freq  uint32
}

func setEncSymbol(s *encSymbol, start, freq uint32) {
	s.xMax = freq << 19
	s.start = start
	s.freq = freq
}

// put4x8 encodes the symbol into state x with 8-bit renormalization,
// appending renormalized bytes to p in emission order.
func (s *encSymbol) put4x8(x uint32, p *[]byte) uint32 {
	for x >= s.xMax {
		*p = append(*p, byte(x))
		x >>= 8
	}
	return x/s.freq<<totalFreqShift + x%s.freq + s.start
}

// putNx16 encodes the symbol into state x with 16-bit renormalization.
func (s *encSymbol) putNx16(x uint32, p *[]byte) uint32 {
	for x >= s.xMax {
		*p = append(*p, byte(x>>8), byte(x))
		x >>= 16
	}
	return x/s.freq<<totalFreqShift + x%s.freq + s.start
}

func buildEncSymbols(freqs *[numSymbols]uint32) [numSymbols]encSymbol {
	var syms [numSymbols]encSymbol
	var cum uint32
	for j := range syms {
		setEncSymbol(&syms[j], cum, freqs[j])
		cum += freqs[j]
	}
	return syms
}

type decSymbol struct {
	start uint32
	freq  uint32
}

// decTable is the decoding side of one frequency context: per-symbol
// ranges plus a cumulative-frequency-to-symbol lookup table.
type decTable struct {
	syms   [numSymbols]decSymbol
	lookup [totalFreq]byte
}

func (t *decTable) set(sym int, cum, freq uint32, shift uint) {
	if cum+freq > 1<<shift {
		panic(cram.Malformedf("rANS frequency table overflows total %d", 1<<shift))
	}
	t.syms[sym] = decSymbol{start: cum, freq: freq}
	for i := cum; i < cum+freq; i++ {
		t.lookup[i] = byte(sym)
	}
}

// decode maps the low shift bits of x to a symbol and advances the
// state, without renormalizing.
func (t *decTable) decode(x uint32, shift uint) (byte, uint32) {
	m := x & (1<<shift - 1)
	s := t.lookup[m]
	d := t.syms[s]
	return s, d.freq*(x>>shift) + m - d.start
}

func renorm4x8(x uint32, r *internal.Reader) uint32 {
	for x < lowerBound4x8 {
		x = x<<8 | uint32(r.U8())
	}
	return x
}

func renormNx16(x uint32, r *internal.Reader) uint32 {
	if x < lowerBoundNx16 {
		x = x<<16 | r.U16()
	}
	return x
}

// normalizeFreqs scales the frequencies in f to sum to 1<<bits,
// keeping every nonzero frequency nonzero. Rounding leftovers land on
// the most frequent symbol. An all-zero table gets its full budget
// assigned to symbol 0.
func normalizeFreqs(f *[numSymbols]uint32, bitSize int) {
	var total uint64
	var m, M uint32
	for j, v := range f {
		total += uint64(v)
		if m < v {
			m, M = v, uint32(j)
		}
	}
	renorm := uint64(1) << uint(bitSize)
	var tr uint64
	if total > 0 {
		tr = (renorm<<31)/total + (1<<30)/total
	}
	var sum uint64
	for j, v := range f {
		if v == 0 {
			continue
		}
		if f[j] = uint32(uint64(v) * tr >> 31); f[j] == 0 {
			f[j] = 1
		}
		sum += uint64(f[j])
	}
	if sum < renorm {
		f[M] += uint32(renorm - sum)
	} else {
		f[M] -= uint32(sum - renorm)
	}
}

// shiftNormalizeFreqs scales a table whose total is already a power of
// two up to 1<<bits by a plain shift.
func shiftNormalizeFreqs(f *[numSymbols]uint32, bitSize int) {
	var total uint32
	for _, v := range f {
		total += v
	}
	if total == 0 || total == 1<<uint(bitSize) {
		return
	}
	shift := uint(0)
	for total < 1<<uint(bitSize) {
		total *= 2
		shift++
	}
	for j := range f {
		if f[j] != 0 {
			f[j] <<= shift
		}
	}
}

func ceilLog2(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len32(uint32(n - 1))
}

// appendAlphabet writes the set of symbols with nonzero frequency,
// run-length encoding consecutive runs, terminated by a zero byte.
func appendAlphabet(p []byte, freqs *[numSymbols]uint32) []byte {
	rle := 0
	for j := 0; j < numSymbols; j++ {
		if freqs[j] == 0 {
			continue
		}
		if rle > 0 {
			rle--
		} else {
			p = append(p, byte(j))
			if j > 0 && freqs[j-1] != 0 {
				for rle = j + 1; rle < numSymbols && freqs[rle] != 0; rle++ {
				}
				rle -= j + 1
				p = append(p, byte(rle))
			}
		}
	}
	return append(p, 0)
}

func readAlphabet(r *internal.Reader, alphabet *[numSymbols]bool) {
	rle := 0
	sym := int(r.U8())
	last := sym
	for {
		alphabet[sym] = true
		if rle > 0 {
			rle--
			if sym++; sym >= numSymbols {
				panic(cram.Malformedf("rANS alphabet run beyond symbol 255"))
			}
		} else {
			sym = int(r.U8())
			if sym == last+1 {
				rle = int(r.U8())
			}
		}
		last = sym
		if sym == 0 {
			return
		}
	}
}

func appendU32(p []byte, v uint32) []byte {
	return append(p, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func appendU32BE(p []byte, v uint32) []byte {
	return append(p, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func reverse(p []byte) {
	for i, j := 0, len(p)-1; i < j; i, j = i+1, j-1 {
		p[i], p[j] = p[j], p[i]
	}
}
