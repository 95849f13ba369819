package internal

import (
	"github.com/exascience/cram"
	"github.com/exascience/cram/varint"
)

/*
Pack bit-packs data holding at most 16 distinct symbols into 1, 2 or 4
bits per byte, as used by the rANS-Nx16 and adaptive arithmetic coders.
It returns the packed bytes and the metadata section (symbol count,
symbol table, packed length) and reports false when the data has no or
too many distinct symbols for packing to apply.
*/
func Pack(data []byte) (packed, meta []byte, ok bool) {
	var freqs [256]int
	for _, b := range data {
		freqs[b]++
	}
	var mapping [256]byte
	numSym := 0
	for j, f := range freqs {
		if f > 0 {
			mapping[j] = byte(numSym)
			numSym++
		}
	}
	if numSym == 0 || numSym > 16 {
		return nil, nil, false
	}
	switch {
	case numSym <= 1:
		// A single distinct symbol needs no bits at all.
	case numSym <= 2:
		packed = make([]byte, (len(data)+7)/8)
		for i, b := range data {
			packed[i>>3] |= mapping[b] << (uint(i) & 7)
		}
	case numSym <= 4:
		packed = make([]byte, (len(data)+3)/4)
		for i, b := range data {
			packed[i>>2] |= mapping[b] << ((uint(i) & 3) * 2)
		}
	default:
		packed = make([]byte, (len(data)+1)/2)
		for i, b := range data {
			packed[i>>1] |= mapping[b] << ((uint(i) & 1) * 4)
		}
	}
	meta = make([]byte, 0, numSym+6)
	meta = append(meta, byte(numSym))
	for j, f := range freqs {
		if f > 0 {
			meta = append(meta, byte(j))
		}
	}
	meta = varint.AppendUint7(meta, uint32(len(packed)))
	return packed, meta, true
}

/*
Unpack reverses Pack, expanding outSize symbols from the packed data
through the symbol table read from the stream metadata.
*/
func Unpack(data, table []byte, outSize int) []byte {
	out := make([]byte, outSize)
	if len(table) <= 1 {
		for i := range out {
			out[i] = table[0]
		}
		return out
	}
	r := Reader{Data: data}
	var v byte
	switch {
	case len(table) <= 2:
		for i := range out {
			if i&7 == 0 {
				v = r.U8()
			}
			out[i] = table[v&1]
			v >>= 1
		}
	case len(table) <= 4:
		for i := range out {
			if i&3 == 0 {
				v = r.U8()
			}
			out[i] = unpackSymbol(table, v&3)
			v >>= 2
		}
	default:
		for i := range out {
			if i&1 == 0 {
				v = r.U8()
			}
			out[i] = unpackSymbol(table, v&15)
			v >>= 4
		}
	}
	return out
}

func unpackSymbol(table []byte, v byte) byte {
	if int(v) >= len(table) {
		panic(cram.Malformedf("bit-packed value %d outside symbol table of size %d", v, len(table)))
	}
	return table[v]
}
