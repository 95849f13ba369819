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
	"github.com/exascience/cram/varint"
)

// Format flags of the Nx16 coder. Order1 selects symbol statistics
// conditional on the preceding byte, N32 widens the interleaving from
// 4 to 32 states, and Pack and RLE transform the data before entropy
// coding. A stream with NoSize leaves the uncompressed length to be
// supplied out of band.
const (
	Nx16Order1 uint8 = 1 << iota
	_
	Nx16N32
	Nx16Stripe
	Nx16NoSize
	Nx16Cat
	Nx16RLE
	Nx16Pack
)

// EncodeNx16 compresses data with the Nx16 coder according to the
// given format flags. Flags the data cannot honor are dropped from the
// output stream: bit packing needs at most 16 distinct symbols, and
// order-1 statistics need at least as many bytes as interleaved
// states. Striped encoding is not supported. Empty input encodes to an
// empty stream.
func EncodeNx16(data []byte, flags uint8) (out []byte, err error) {
	defer cram.Recover(&err)
	if len(data) == 0 {
		return nil, nil
	}
	if flags&Nx16Stripe != 0 {
		panic(cram.NotImplementedf("rANS Nx16 encoding with striped interleaving"))
	}
	n := 4
	if flags&Nx16N32 != 0 {
		n = 32
	}
	input := data
	var packMeta, rleMeta []byte
	if flags&Nx16Pack != 0 {
		if packed, meta, ok := internal.Pack(input); ok {
			input, packMeta = packed, meta
		} else {
			flags &^= Nx16Pack
		}
	}
	if flags&Nx16RLE != 0 {
		input, rleMeta = encodeRLE(input, n)
	}
	var payload []byte
	switch {
	case flags&Nx16Cat != 0:
		payload = input
	case len(input) < n && flags&Nx16Order1 != 0:
		flags &^= Nx16Order1
		if len(input) > 0 {
			payload = encodeNx16Order0(input, n)
		}
	case flags&Nx16Order1 != 0:
		payload = encodeNx16Order1(input, n)
	default:
		payload = encodeNx16Order0(input, n)
	}
	out = make([]byte, 0, 6+len(packMeta)+len(rleMeta)+len(payload))
	out = append(out, flags)
	if flags&Nx16NoSize == 0 {
		out = varint.AppendUint7(out, uint32(len(data)))
	}
	out = append(out, packMeta...)
	out = append(out, rleMeta...)
	return append(out, payload...), nil
}

// DecodeNx16 decompresses an Nx16 stream. The outSize parameter is
// consulted only when the stream carries the NoSize flag; it is
// ignored otherwise. An empty stream decodes to empty output.
func DecodeNx16(data []byte, outSize int) (out []byte, err error) {
	defer cram.Recover(&err)
	if len(data) == 0 {
		return nil, nil
	}
	r := &internal.Reader{Data: data}
	return decodeNx16(r, outSize), nil
}

func decodeNx16(r *internal.Reader, outSize int) []byte {
	flags := r.U8()
	n := 4
	if flags&Nx16N32 != 0 {
		n = 32
	}
	size := outSize
	if flags&Nx16NoSize == 0 {
		size = int(r.Uint7())
	}
	if size < 0 {
		panic(cram.Malformedf("negative rANS Nx16 uncompressed size %d", size))
	}
	if flags&Nx16Stripe != 0 {
		return decodeStripe(r, size)
	}
	var packTable []byte
	packSize := 0
	if flags&Nx16Pack != 0 {
		packSize = size
		numSym := int(r.U8())
		if numSym == 0 || numSym > 16 {
			panic(cram.Malformedf("bit packing with %d distinct symbols", numSym))
		}
		packTable = r.Bytes(numSym)
		size = int(r.Uint7())
	}
	var rleSymbols [numSymbols]bool
	var rleMeta *internal.Reader
	rleSize := 0
	if flags&Nx16RLE != 0 {
		metaLen := int(r.Uint7())
		rleSize = size
		size = int(r.Uint7())
		rleMeta = decodeRLEMeta(r, metaLen, &rleSymbols, n)
	}
	var out []byte
	switch {
	case flags&Nx16Cat != 0:
		out = r.Bytes(size)
	case size == 0:
		// Packing an input with a single distinct symbol leaves
		// nothing for the entropy coder.
	case flags&Nx16Order1 != 0:
		out = make([]byte, size)
		decodeNx16Order1(r, out, n)
	default:
		out = make([]byte, size)
		decodeNx16Order0(r, out, n)
	}
	if flags&Nx16RLE != 0 {
		out = expandRLE(out, &rleSymbols, rleMeta, rleSize)
	}
	if flags&Nx16Pack != 0 {
		out = internal.Unpack(out, packTable, packSize)
	}
	return out
}

func encodeNx16Order0(data []byte, n int) []byte {
	bitSize := ceilLog2(len(data))
	if bitSize > totalFreqShift {
		bitSize = totalFreqShift
	}
	var freqs [numSymbols]uint32
	for _, b := range data {
		freqs[b]++
	}
	normalizeFreqs(&freqs, bitSize)
	out := appendAlphabet(nil, &freqs)
	for _, f := range freqs {
		if f != 0 {
			out = varint.AppendUint7(out, f)
		}
	}
	shiftNormalizeFreqs(&freqs, totalFreqShift)
	syms := buildEncSymbols(&freqs)

	size := len(data)
	interleave := size / n
	body := make([]byte, 0, size+4*n)
	states := make([]uint32, n)
	for r := range states {
		states[r] = lowerBoundNx16
	}
	reverseIndex := 1
	for rem := size - interleave*n; rem > 0; rem-- {
		states[rem-1] = syms[data[size-reverseIndex]].putNx16(states[rem-1], &body)
		reverseIndex++
	}
	for i := interleave * n; i > 0; i -= n {
		for r := n - 1; r >= 0; r-- {
			states[r] = syms[data[i-n+r]].putNx16(states[r], &body)
		}
	}
	for r := n - 1; r >= 0; r-- {
		body = appendU32BE(body, states[r])
	}
	reverse(body)
	return append(out, body...)
}

func decodeNx16Order0(r *internal.Reader, out []byte, n int) {
	t := new(decTable)
	readNx16Freqs0(r, t)

	states := make([]uint32, n)
	for j := range states {
		states[j] = r.U32()
	}
	size := len(out)
	end := size / n * n
	for i := 0; i < end; i += n {
		for j := 0; j < n; j++ {
			c, x := t.decode(states[j], totalFreqShift)
			out[i+j] = c
			states[j] = renormNx16(x, r)
		}
	}
	for j := 0; end+j < size; j++ {
		c, x := t.decode(states[j], totalFreqShift)
		out[end+j] = c
		states[j] = renormNx16(x, r)
	}
}

func encodeNx16Order1(data []byte, n int) []byte {
	size := len(data)
	interleave := size / n
	freqs := make([][numSymbols]uint32, numSymbols)

	// present counts each byte's occurrences as a coding context. It
	// determines the alphabet of the table and the per-context table
	// precision.
	var present [numSymbols]uint32
	ctx := byte(0)
	for _, b := range data {
		present[ctx]++
		freqs[ctx][b]++
		ctx = b
	}
	present[ctx]++
	// The first byte of each interleaved stream but the first is coded
	// in context 0.
	for r := 1; r < n; r++ {
		freqs[0][data[r*interleave]]++
	}
	present[0] += uint32(n - 1)

	for j := range freqs {
		if present[j] == 0 {
			continue
		}
		bitSize := ceilLog2(int(present[j]))
		if bitSize > totalFreqShift {
			bitSize = totalFreqShift
		}
		if bitSize == 0 {
			bitSize = 1
		}
		normalizeFreqs(&freqs[j], bitSize)
	}

	// Zero frequencies of present symbols are followed by a byte
	// counting the adjacent zeros that follow, since most symbols
	// never occur in most contexts.
	table := appendAlphabet(nil, &present)
	for i := range freqs {
		if present[i] == 0 {
			continue
		}
		run := 0
		for j := 0; j < numSymbols; j++ {
			if present[j] == 0 {
				continue
			}
			if run > 0 {
				run--
				continue
			}
			table = varint.AppendUint7(table, freqs[i][j])
			if freqs[i][j] == 0 {
				for k := j + 1; k < numSymbols; k++ {
					if present[k] == 0 {
						continue
					}
					if freqs[i][k] != 0 {
						break
					}
					run++
				}
				table = append(table, byte(run))
			}
		}
	}

	// The table is large for rich alphabets, so it is itself entropy
	// coded when that pays off, with a fixed 4-way interleaving.
	compressed := encodeNx16Order0(table, 4)
	var out []byte
	if len(compressed) < len(table) {
		out = []byte{1 | totalFreqShift<<4}
		out = varint.AppendUint7(out, uint32(len(table)))
		out = varint.AppendUint7(out, uint32(len(compressed)))
		out = append(out, compressed...)
	} else {
		out = append([]byte{totalFreqShift << 4}, table...)
	}

	syms := make([][numSymbols]encSymbol, numSymbols)
	for j := range freqs {
		if present[j] != 0 {
			shiftNormalizeFreqs(&freqs[j], totalFreqShift)
			syms[j] = buildEncSymbols(&freqs[j])
		}
	}

	states := make([]uint32, n)
	idx := make([]int, n)
	symbol := make([]byte, n)
	for r := 0; r < n; r++ {
		states[r] = lowerBoundNx16
		idx[r] = (r+1)*interleave - 2
		if r == n-1 {
			symbol[r] = data[size-1]
		} else {
			symbol[r] = data[idx[r]+1]
		}
	}

	body := make([]byte, 0, size+4*n)
	// The last stream also covers the remainder of the input.
	for idx[n-1] = size - 2; idx[n-1] > n*interleave-2 && idx[n-1] >= 0; idx[n-1]-- {
		c := data[idx[n-1]]
		states[n-1] = syms[c][symbol[n-1]].putNx16(states[n-1], &body)
		symbol[n-1] = c
	}
	for idx[0] >= 0 {
		for r := n - 1; r >= 0; r-- {
			c := data[idx[r]]
			states[r] = syms[c][symbol[r]].putNx16(states[r], &body)
			symbol[r] = c
		}
		for r := range idx {
			idx[r]--
		}
	}
	for r := n - 1; r >= 0; r-- {
		states[r] = syms[0][symbol[r]].putNx16(states[r], &body)
	}
	for r := n - 1; r >= 0; r-- {
		body = appendU32BE(body, states[r])
	}
	reverse(body)
	return append(out, body...)
}

func decodeNx16Order1(r *internal.Reader, out []byte, n int) {
	first := r.U8()
	shift := uint(first >> 4)
	if shift > totalFreqShift {
		panic(cram.Malformedf("rANS Nx16 frequency precision %d exceeds %d bits", shift, totalFreqShift))
	}
	table := r
	if first&1 != 0 {
		rawLen := int(r.Uint7())
		compLen := int(r.Uint7())
		comp := &internal.Reader{Data: r.Bytes(compLen)}
		raw := make([]byte, rawLen)
		decodeNx16Order0(comp, raw, 4)
		table = &internal.Reader{Data: raw}
	}
	tables := readNx16Freqs1(table, shift)

	size := len(out)
	interleave := size / n
	states := make([]uint32, n)
	idx := make([]int, n)
	ctx := make([]int, n)
	for j := range states {
		states[j] = r.U32()
		idx[j] = j * interleave
	}
	for idx[0] < interleave {
		for j := 0; j < n; j++ {
			c, x := tables[ctx[j]].decode(states[j], shift)
			out[idx[j]] = c
			states[j] = renormNx16(x, r)
			ctx[j] = int(c)
		}
		for j := range idx {
			idx[j]++
		}
	}
	// The last stream also covers the remainder of the output.
	for ; idx[n-1] < size; idx[n-1]++ {
		c, x := tables[ctx[n-1]].decode(states[n-1], shift)
		out[idx[n-1]] = c
		states[n-1] = renormNx16(x, r)
		ctx[n-1] = int(c)
	}
}

func readNx16Freqs0(r *internal.Reader, t *decTable) {
	var alphabet [numSymbols]bool
	readAlphabet(r, &alphabet)
	var freqs [numSymbols]uint32
	for j := range freqs {
		if alphabet[j] {
			freqs[j] = r.Uint7()
		}
	}
	shiftNormalizeFreqs(&freqs, totalFreqShift)
	var cum uint32
	for j, f := range freqs {
		if f != 0 {
			t.set(j, cum, f, totalFreqShift)
			cum += f
		}
	}
}

func readNx16Freqs1(r *internal.Reader, shift uint) []decTable {
	var alphabet [numSymbols]bool
	readAlphabet(r, &alphabet)
	tables := make([]decTable, numSymbols)
	for i := 0; i < numSymbols; i++ {
		if !alphabet[i] {
			continue
		}
		var freqs [numSymbols]uint32
		run := 0
		for j := 0; j < numSymbols; j++ {
			if !alphabet[j] {
				continue
			}
			if run > 0 {
				run--
				continue
			}
			freqs[j] = r.Uint7()
			if freqs[j] == 0 {
				run = int(r.U8())
			}
		}
		shiftNormalizeFreqs(&freqs, int(shift))
		var cum uint32
		for j, f := range freqs {
			if f != 0 {
				tables[i].set(j, cum, f, shift)
				cum += f
			}
		}
	}
	return tables
}

// encodeRLE collapses runs of repeated symbols, keeping only the first
// byte of each run. The run lengths go into a metadata section that is
// itself entropy coded.
func encodeRLE(data []byte, n int) (collapsed, meta []byte) {
	var runCounts [numSymbols]int
	last := -1
	for _, b := range data {
		if int(b) == last {
			runCounts[b]++
		} else {
			runCounts[b]--
		}
		last = int(b)
	}
	numRLE := 0
	for _, c := range runCounts {
		if c > 0 {
			numRLE++
		}
	}
	if numRLE == 0 {
		// The metadata always lists at least one symbol.
		numRLE = 1
		runCounts[0] = 1
	}

	rleMeta := make([]byte, 0, numRLE+1+len(data))
	rleMeta = append(rleMeta, byte(numRLE))
	for j, c := range runCounts {
		if c > 0 {
			rleMeta = append(rleMeta, byte(j))
		}
	}
	collapsed = make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		collapsed = append(collapsed, data[i])
		if runCounts[data[i]] > 0 {
			run := 0
			for i+run+1 < len(data) && data[i+run+1] == data[i] {
				run++
			}
			rleMeta = varint.AppendUint7(rleMeta, uint32(run))
			i += run
		}
	}

	compressed := encodeNx16Order0(rleMeta, n)
	meta = varint.AppendUint7(nil, uint32(len(rleMeta)*2))
	meta = varint.AppendUint7(meta, uint32(len(collapsed)))
	meta = varint.AppendUint7(meta, uint32(len(compressed)))
	return collapsed, append(meta, compressed...)
}

func decodeRLEMeta(r *internal.Reader, metaLen int, rleSymbols *[numSymbols]bool, n int) *internal.Reader {
	var meta *internal.Reader
	// The bottom bit of the length marks the metadata as stored raw
	// instead of entropy coded.
	if metaLen&1 != 0 {
		meta = &internal.Reader{Data: r.Bytes((metaLen - 1) / 2)}
	} else {
		compLen := int(r.Uint7())
		comp := &internal.Reader{Data: r.Bytes(compLen)}
		raw := make([]byte, metaLen/2)
		decodeNx16Order0(comp, raw, n)
		meta = &internal.Reader{Data: raw}
	}
	numRLE := int(meta.U8())
	if numRLE == 0 {
		numRLE = numSymbols
	}
	for i := 0; i < numRLE; i++ {
		rleSymbols[meta.U8()] = true
	}
	return meta
}

func expandRLE(data []byte, rleSymbols *[numSymbols]bool, meta *internal.Reader, outSize int) []byte {
	out := make([]byte, outSize)
	j := 0
	for i := 0; j < outSize; i++ {
		if i >= len(data) {
			panic(cram.Malformedf("run-length data exhausted at %d of %d output bytes", j, outSize))
		}
		sym := data[i]
		if rleSymbols[sym] {
			run := int(meta.Uint7())
			if run+1 > outSize-j {
				panic(cram.Malformedf("run of %d exceeds %d remaining output bytes", run+1, outSize-j))
			}
			for k := 0; k <= run; k++ {
				out[j] = sym
				j++
			}
		} else {
			out[j] = sym
			j++
		}
	}
	return out
}

// decodeStripe reads interleaved substreams, each Nx16 coded on its
// own, and transposes them back together. Substream j holds the bytes
// at positions j modulo the stream count.
func decodeStripe(r *internal.Reader, outSize int) []byte {
	numStreams := int(r.U8())
	if numStreams == 0 {
		panic(cram.Malformedf("striped stream with zero substreams"))
	}
	for j := 0; j < numStreams; j++ {
		r.Uint7() // compressed lengths, implied by the substreams themselves
	}
	out := make([]byte, outSize)
	for j := 0; j < numStreams; j++ {
		ulen := outSize / numStreams
		if outSize%numStreams > j {
			ulen++
		}
		part := decodeNx16(r, ulen)
		if len(part) < ulen {
			panic(cram.Malformedf("striped substream %d holds %d bytes, need %d", j, len(part), ulen))
		}
		for i := 0; i < ulen; i++ {
			out[i*numStreams+j] = part[i]
		}
	}
	return out
}
