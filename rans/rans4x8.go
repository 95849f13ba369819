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

package rans

import (
	"github.com/exascience/cram"
	"github.com/exascience/cram/internal"
)

// Inputs shorter than this lack the symbol context for order-1 coding
// and are always coded order-0.
const minOrder1Size = 4

// Encode4x8 compresses data with the 4x8 coder. The order must be 0,
// for position-independent symbol statistics, or 1, for statistics
// conditional on the preceding byte. Empty input encodes to an empty
// stream.
func Encode4x8(data []byte, order int) (out []byte, err error) {
	defer cram.Recover(&err)
	if order != 0 && order != 1 {
		panic(cram.DomainViolationf("rANS 4x8 order %d out of range", order))
	}
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) < minOrder1Size {
		order = 0
	}
	var table, body []byte
	if order == 0 {
		table, body = encode4x8Order0(data)
	} else {
		table, body = encode4x8Order1(data)
	}
	out = make([]byte, 0, 9+len(table)+len(body))
	out = append(out, byte(order))
	out = appendU32(out, uint32(len(table)+len(body)))
	out = appendU32(out, uint32(len(data)))
	out = append(out, table...)
	return append(out, body...), nil
}

// Decode4x8 decompresses a 4x8 stream. An empty stream decodes to
// empty output.
func Decode4x8(data []byte) (out []byte, err error) {
	defer cram.Recover(&err)
	if len(data) == 0 {
		return nil, nil
	}
	r := &internal.Reader{Data: data}
	order := r.U8()
	compressedSize := int(int32(r.U32()))
	if compressedSize != r.Remaining()-4 {
		panic(cram.Malformedf("rANS 4x8 compressed size %d does not match %d remaining bytes", compressedSize, r.Remaining()-4))
	}
	rawSize := int(int32(r.U32()))
	if rawSize < 0 {
		panic(cram.Malformedf("negative rANS 4x8 uncompressed size %d", rawSize))
	}
	out = make([]byte, rawSize)
	switch order {
	case 0:
		decode4x8Order0(r, out)
	case 1:
		decode4x8Order1(r, out)
	default:
		panic(cram.Malformedf("unknown rANS 4x8 order %d", order))
	}
	return out, nil
}

func encode4x8Order0(data []byte) (table, body []byte) {
	var freqs [numSymbols]uint32
	for _, b := range data {
		freqs[b]++
	}
	normalizeFreqs(&freqs, totalFreqShift)
	table = appendFreqs4x8(nil, &freqs)
	syms := buildEncSymbols(&freqs)

	n := len(data)
	body = make([]byte, 0, n+16)
	var r0, r1, r2, r3 uint32 = lowerBound4x8, lowerBound4x8, lowerBound4x8, lowerBound4x8
	switch n & 3 {
	case 1:
		r0 = syms[data[n-1]].put4x8(r0, &body)
	case 2:
		r1 = syms[data[n-1]].put4x8(r1, &body)
		r0 = syms[data[n-2]].put4x8(r0, &body)
	case 3:
		r2 = syms[data[n-1]].put4x8(r2, &body)
		r1 = syms[data[n-2]].put4x8(r1, &body)
		r0 = syms[data[n-3]].put4x8(r0, &body)
	}
	for i := n &^ 3; i > 0; i -= 4 {
		r3 = syms[data[i-1]].put4x8(r3, &body)
		r2 = syms[data[i-2]].put4x8(r2, &body)
		r1 = syms[data[i-3]].put4x8(r1, &body)
		r0 = syms[data[i-4]].put4x8(r0, &body)
	}
	body = appendU32BE(body, r3)
	body = appendU32BE(body, r2)
	body = appendU32BE(body, r1)
	body = appendU32BE(body, r0)
	reverse(body)
	return table, body
}

func encode4x8Order1(data []byte) (table, body []byte) {
	n := len(data)
	freqs := make([][numSymbols]uint32, numSymbols)
	var totals [numSymbols]uint32
	last := 0
	for _, b := range data {
		freqs[last][b]++
		totals[last]++
		last = int(b)
	}
	// The first byte of each interleaved quarter is coded in context
	// 0, so account for it in the context-0 statistics.
	isz4 := n >> 2
	freqs[0][data[isz4]]++
	freqs[0][data[2*isz4]]++
	freqs[0][data[3*isz4]]++
	totals[0] += 3

	for i := range freqs {
		if totals[i] != 0 {
			normalizeFreqsScaled(&freqs[i], totals[i])
		}
	}
	table = appendFreqs4x8Order1(nil, freqs, &totals)

	syms := make([][numSymbols]encSymbol, numSymbols)
	for i := range syms {
		if totals[i] != 0 {
			syms[i] = buildEncSymbols(&freqs[i])
		}
	}

	body = make([]byte, 0, n+16)
	var r0, r1, r2, r3 uint32 = lowerBound4x8, lowerBound4x8, lowerBound4x8, lowerBound4x8
	i0, i1, i2 := isz4-2, 2*isz4-2, 3*isz4-2
	var l0, l1, l2 byte
	if i0+1 >= 0 {
		l0 = data[i0+1]
	}
	if i1+1 >= 0 {
		l1 = data[i1+1]
	}
	if i2+1 >= 0 {
		l2 = data[i2+1]
	}
	l3 := data[n-1]

	// The fourth quarter also covers the remainder of the input.
	i3 := n - 2
	for ; i3 > 4*isz4-2 && i3 >= 0; i3-- {
		c3 := data[i3]
		r3 = syms[c3][l3].put4x8(r3, &body)
		l3 = c3
	}
	for ; i0 >= 0; i0, i1, i2, i3 = i0-1, i1-1, i2-1, i3-1 {
		c0, c1, c2, c3 := data[i0], data[i1], data[i2], data[i3]
		r3 = syms[c3][l3].put4x8(r3, &body)
		r2 = syms[c2][l2].put4x8(r2, &body)
		r1 = syms[c1][l1].put4x8(r1, &body)
		r0 = syms[c0][l0].put4x8(r0, &body)
		l0, l1, l2, l3 = c0, c1, c2, c3
	}
	r3 = syms[0][l3].put4x8(r3, &body)
	r2 = syms[0][l2].put4x8(r2, &body)
	r1 = syms[0][l1].put4x8(r1, &body)
	r0 = syms[0][l0].put4x8(r0, &body)

	body = appendU32BE(body, r3)
	body = appendU32BE(body, r2)
	body = appendU32BE(body, r1)
	body = appendU32BE(body, r0)
	reverse(body)
	return table, body
}

// normalizeFreqsScaled scales one order-1 context row to sum to
// totalFreq, like normalizeFreqs but with the float scaling of the
// original samtools coder so that streams match it byte for byte.
func normalizeFreqsScaled(f *[numSymbols]uint32, total uint32) {
	p := float64(totalFreq) / float64(total)
	var m, M uint32
	var sum uint32
	for j, v := range f {
		if v == 0 {
			continue
		}
		if m < v {
			m, M = v, uint32(j)
		}
		if f[j] = uint32(float64(v) * p); f[j] == 0 {
			f[j] = 1
		}
		sum += f[j]
	}
	if sum < totalFreq {
		f[M] += totalFreq - sum
	} else {
		f[M] -= sum - totalFreq
	}
}

// appendFreqs4x8 writes an order-0 frequency table: present symbols
// with alphabet run-length encoding, each followed by its frequency in
// one byte, or two bytes with the high bit set for values above 127.
func appendFreqs4x8(p []byte, freqs *[numSymbols]uint32) []byte {
	rle := 0
	for j := 0; j < numSymbols; j++ {
		f := freqs[j]
		if f == 0 {
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
		if f < 128 {
			p = append(p, byte(f))
		} else {
			p = append(p, byte(128|f>>8), byte(f))
		}
	}
	return append(p, 0)
}

func appendFreqs4x8Order1(p []byte, freqs [][numSymbols]uint32, totals *[numSymbols]uint32) []byte {
	rle := 0
	for i := 0; i < numSymbols; i++ {
		if totals[i] == 0 {
			continue
		}
		if rle > 0 {
			rle--
		} else {
			p = append(p, byte(i))
			if i > 0 && totals[i-1] != 0 {
				for rle = i + 1; rle < numSymbols && totals[rle] != 0; rle++ {
				}
				rle -= i + 1
				p = append(p, byte(rle))
			}
		}
		p = appendFreqs4x8(p, &freqs[i])
	}
	return append(p, 0)
}

func read4x8Freqs(r *internal.Reader, t *decTable, order1 bool) {
	rle := 0
	sym := int(r.U8())
	var cum uint32
	for {
		f := uint32(r.U8())
		if f >= 128 {
			f = f&0x7F<<8 | uint32(r.U8())
		}
		// A frequency of zero denotes a context holding the full
		// total, which cannot otherwise appear in order-1 tables.
		if order1 && f == 0 {
			f = totalFreq
		}
		t.set(sym, cum, f, totalFreqShift)
		cum += f
		if rle > 0 {
			rle--
			if sym++; sym >= numSymbols {
				panic(cram.Malformedf("rANS alphabet run beyond symbol 255"))
			}
		} else {
			next := int(r.U8())
			if next == sym+1 {
				rle = int(r.U8())
			}
			sym = next
		}
		if sym == 0 {
			return
		}
	}
}

func decode4x8Order0(r *internal.Reader, out []byte) {
	t := new(decTable)
	read4x8Freqs(r, t, false)

	var states [4]uint32
	for j := range states {
		states[j] = r.U32()
	}
	n := len(out)
	end := n &^ 3
	for i := 0; i < end; i += 4 {
		for j := 0; j < 4; j++ {
			c, x := t.decode(states[j], totalFreqShift)
			out[i+j] = c
			states[j] = renorm4x8(x, r)
		}
	}
	for j := 0; end+j < n; j++ {
		c, x := t.decode(states[j], totalFreqShift)
		out[end+j] = c
		states[j] = renorm4x8(x, r)
	}
}

func decode4x8Order1(r *internal.Reader, out []byte) {
	tables := make([]decTable, numSymbols)
	rle := 0
	ctx := int(r.U8())
	for {
		read4x8Freqs(r, &tables[ctx], true)
		if rle > 0 {
			rle--
			if ctx++; ctx >= numSymbols {
				panic(cram.Malformedf("rANS alphabet run beyond symbol 255"))
			}
		} else {
			next := int(r.U8())
			if next == ctx+1 {
				rle = int(r.U8())
			}
			ctx = next
		}
		if ctx == 0 {
			break
		}
	}

	var states [4]uint32
	for j := range states {
		states[j] = r.U32()
	}
	n := len(out)
	isz4 := n >> 2
	idx := [4]int{0, isz4, 2 * isz4, 3 * isz4}
	var last [4]int
	for ; idx[0] < isz4; idx[0], idx[1], idx[2], idx[3] = idx[0]+1, idx[1]+1, idx[2]+1, idx[3]+1 {
		for j := 0; j < 4; j++ {
			c, x := tables[last[j]].decode(states[j], totalFreqShift)
			out[idx[j]] = c
			states[j] = renorm4x8(x, r)
			last[j] = int(c)
		}
	}
	// The fourth state also decodes the remainder of the output.
	for ; idx[3] < n; idx[3]++ {
		c, x := tables[last[3]].decode(states[3], totalFreqShift)
		out[idx[3]] = c
		states[3] = renorm4x8(x, r)
		last[3] = int(c)
	}
}
