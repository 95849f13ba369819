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

package names

import (
	"bytes"

	"github.com/cespare/xxhash/v2"
	"github.com/exascience/cram"
	"github.com/exascience/cram/rangecoder"
	"github.com/exascience/cram/rans"
	"github.com/exascience/cram/varint"
	"github.com/willf/bitset"
)

// alnum marks the bytes the scanner groups into alphanumeric
// fragments; runs of all other bytes form punctuation fragments.
var alnum = bitset.New(256)

func init() {
	for _, r := range [][2]byte{{'0', '9'}, {'A', 'Z'}, {'a', 'z'}} {
		for c := r[0]; c <= r[1]; c++ {
			alnum.Set(uint(c))
		}
	}
}

func isAlnum(c byte) bool { return alnum.Test(uint(c)) }

func isDigit(c byte) bool { return ('0' <= c) && (c <= '9') }

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

// digitsValue parses a digit fragment. The scanner caps fragments at
// nine bytes, so the value always fits.
func digitsValue(s string) uint32 {
	v := uint32(0)
	for i := 0; i < len(s); i++ {
		v = v*10 + uint32(s[i]-'0')
	}
	return v
}

// token is one encoded fragment of a read name. The text is the
// fragment as it appears in the name; num carries the numeric wire
// payload for the token types that have one.
type token struct {
	typ  byte
	text string
	num  uint32
}

// Encode compresses read names, separated by the given separator byte,
// with the name codec. Input that does not end in a separator is
// treated as if it did: decoding yields a separator after every name.
// When useArith is set, the token streams go through the adaptive
// arithmetic coder instead of the rANS Nx16 coder. Empty input encodes
// to an empty stream.
func Encode(data []byte, separator byte, useArith bool) (out []byte, err error) {
	defer cram.Recover(&err)
	if len(data) == 0 {
		return nil, nil
	}
	size := len(data)
	if data[len(data)-1] != separator {
		size++
	}
	names := splitNames(data, separator)
	e := &encoder{
		names:  names,
		tokens: make([][]token, len(names)),
		dups:   make(map[uint64]int, len(names)),
	}
	maxPositions := 0
	for i := range names {
		e.tokens[i] = e.tokenizeName(i)
		if len(e.tokens[i]) > maxPositions {
			maxPositions = len(e.tokens[i])
		}
	}
	out = make([]byte, 0, len(data)/2+16)
	out = appendU32(out, uint32(size))
	out = appendU32(out, uint32(len(names)))
	if useArith {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	for pos := 0; pos < maxPositions; pos++ {
		out = e.appendPosition(out, pos, useArith)
	}
	return out, nil
}

func splitNames(data []byte, separator byte) [][]byte {
	var names [][]byte
	for len(data) > 0 {
		n := bytes.IndexByte(data, separator)
		if n < 0 {
			names = append(names, data)
			break
		}
		names = append(names, data[:n])
		data = data[n+1:]
	}
	return names
}

type encoder struct {
	names  [][]byte
	tokens [][]token
	dups   map[uint64]int // first occurrence of each name, by hash
	freqs  [256]int       // delta attempts per fragment position
}

// tokenizeName encodes one read name as a token list. A repeated name
// becomes a single dup token naming its first occurrence; any other
// name opens with a diff token against the immediately preceding name
// and closes with an end token. The token list of a dup name aliases
// the fragments of the name it points to, so that the next name still
// has a full reference to match or delta against; only the dup token
// itself goes on the wire.
func (e *encoder) tokenizeName(nameIndex int) []token {
	name := e.names[nameIndex]
	hash := xxhash.Sum64(name)
	if j, ok := e.dups[hash]; ok {
		// Verify against the earlier name: an equal hash from unequal
		// names falls back to coding this name in full.
		if bytes.Equal(name, e.names[j]) {
			tokens := append(make([]token, 0, len(e.tokens[j])), token{typ: tokDup, num: uint32(nameIndex - j)})
			return append(tokens, e.tokens[j][1:]...)
		}
	} else {
		e.dups[hash] = nameIndex
	}
	diff := uint32(0)
	if nameIndex > 0 {
		diff = 1
	}
	tokens := append(make([]token, 0, 16), token{typ: tokDiff, num: diff})
	var prev []token
	if nameIndex > 0 {
		prev = e.tokens[nameIndex-1]
	}
	for i := 0; i < len(name); {
		j := i + 1
		if isAlnum(name[i]) {
			for j < len(name) && j-i < 9 && isAlnum(name[j]) {
				j++
			}
		} else {
			for j < len(name) && !isAlnum(name[j]) {
				j++
			}
		}
		tokens = append(tokens, e.encodeFragment(string(name[i:j]), prev, len(tokens), nameIndex))
		i = j
	}
	return append(tokens, token{typ: tokEnd})
}

// encodeFragment picks the token for one fragment, comparing it with
// the fragment at the same position of the preceding name.
func (e *encoder) encodeFragment(text string, prev []token, pos, nameIndex int) token {
	typ := tokString
	switch {
	case allDigits(text):
		if text[0] == '0' {
			typ = tokDigits0
		} else {
			typ = tokDigits
		}
	case len(text) == 1:
		typ = tokChar
	}
	if pos < len(prev) {
		pt := &prev[pos]
		switch {
		case pt.text == text:
			return token{typ: tokMatch, text: text}
		case typ == tokDigits && (pt.typ == tokDigits || pt.typ == tokDelta):
			d := int(digitsValue(text)) - int(digitsValue(pt.text))
			if e.bumpDeltaFreq(pos, nameIndex) && d >= 0 && d < 256 {
				return token{typ: tokDelta, text: text, num: uint32(d)}
			}
		case typ == tokDigits0 && len(pt.text) == len(text) && (pt.typ == tokDigits0 || pt.typ == tokDelta0):
			d := int(digitsValue(text)) - int(digitsValue(pt.text))
			if e.bumpDeltaFreq(pos, nameIndex) && d >= 0 && d < 256 {
				return token{typ: tokDelta0, text: text, num: uint32(d)}
			}
		}
	}
	tok := token{typ: typ, text: text}
	if typ == tokDigits || typ == tokDigits0 {
		tok.num = digitsValue(text)
	}
	return tok
}

// bumpDeltaFreq counts an attempt at delta coding the fragment at the
// given position and tells whether deltas have been frequent enough
// there to prefer them over plain digits. Dup names never attempt a
// delta, so the count is measured against the names that did.
func (e *encoder) bumpDeltaFreq(pos, nameIndex int) bool {
	if pos >= len(e.freqs) {
		return false
	}
	e.freqs[pos]++
	return e.freqs[pos] >= (nameIndex+1)/2
}

// appendPosition distributes the tokens of one fragment position over
// the per-type byte streams and appends their directory entries. Dup
// names are coded entirely at position zero.
func (e *encoder) appendPosition(out []byte, pos int, useArith bool) []byte {
	var bufs [numTokenTypes][]byte
	for _, tl := range e.tokens {
		if pos >= len(tl) || (pos > 0 && tl[0].typ == tokDup) {
			continue
		}
		t := &tl[pos]
		bufs[tokType] = append(bufs[tokType], t.typ)
		switch t.typ {
		case tokDiff, tokDup, tokDigits:
			bufs[t.typ] = appendU32(bufs[t.typ], t.num)
		case tokDigits0:
			bufs[tokDigits0] = appendU32(bufs[tokDigits0], t.num)
			bufs[tokDZLen] = append(bufs[tokDZLen], byte(len(t.text)))
		case tokChar:
			bufs[tokChar] = append(bufs[tokChar], t.text[0])
		case tokString:
			bufs[tokString] = append(append(bufs[tokString], t.text...), 0)
		case tokDelta, tokDelta0:
			bufs[t.typ] = append(bufs[t.typ], byte(t.num))
		}
	}
	for typ := byte(0); typ < numTokenTypes; typ++ {
		if len(bufs[typ]) == 0 {
			continue
		}
		flag := typ
		if typ == tokType {
			flag |= flagNewPosition
		}
		out = append(out, flag)
		compressed := tryCompress(bufs[typ], useArith)
		out = varint.AppendUint7(out, uint32(len(compressed)))
		out = append(out, compressed...)
	}
	return out
}

// tryCompress entropy-codes a token stream with a handful of format
// flag combinations and keeps the smallest result. Order-1 statistics
// are not worth their tables on short streams and are skipped there.
func tryCompress(data []byte, useArith bool) []byte {
	var best []byte
	try := func(compressed []byte, err error) {
		if err != nil {
			panic(err)
		}
		if best == nil || len(compressed) < len(best) {
			best = compressed
		}
	}
	if useArith {
		for _, flags := range []uint8{
			0,
			rangecoder.Order1,
			rangecoder.RLE,
			rangecoder.RLE | rangecoder.Order1,
			rangecoder.Pack,
			rangecoder.Pack | rangecoder.Order1,
			rangecoder.Pack | rangecoder.RLE | rangecoder.Order1,
		} {
			if flags&rangecoder.Order1 != 0 && len(data) < 100 {
				continue
			}
			try(rangecoder.Encode(data, flags))
		}
	} else {
		for _, flags := range []uint8{
			0,
			rans.Nx16Order1,
			rans.Nx16RLE,
			rans.Nx16RLE | rans.Nx16Order1,
			rans.Nx16Pack,
			rans.Nx16Pack | rans.Nx16Order1,
			rans.Nx16Pack | rans.Nx16RLE | rans.Nx16Order1,
		} {
			if flags&rans.Nx16Order1 != 0 && len(data) < 100 {
				continue
			}
			try(rans.EncodeNx16(data, flags))
		}
	}
	return best
}

func appendU32(p []byte, v uint32) []byte {
	return append(p, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
