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

// Package names implements the read name codec of CRAM 3.1. Read names
// typically follow a rigid template of alternating alphanumeric and
// punctuation fragments, as in "H0164ALXX140820:2:1101:17727:54981",
// so the codec splits every name into fragments and expresses each
// fragment as a token relative to the same fragment position of an
// earlier name: an exact match, a small numeric delta, or a literal.
// The tokens of one fragment position form byte streams that the rANS
// Nx16 or the adaptive arithmetic coder then compresses.
package names

import (
	"bytes"
	"strconv"

	"github.com/exascience/cram"
	"github.com/exascience/cram/internal"
	"github.com/exascience/cram/rangecoder"
	"github.com/exascience/cram/rans"
)

// Token types of the name codec. Type zero names the stream that holds
// the token types themselves; the other types name the streams that
// carry the token payloads of one fragment position.
const (
	tokType byte = iota
	tokString
	tokChar
	tokDigits0
	tokDZLen
	tokDup
	tokDiff
	tokDigits
	tokDelta
	tokDelta0
	tokMatch
	tokNop
	tokEnd

	numTokenTypes = 13
)

// Flags of the token stream directory. Every serialized stream is
// introduced by a byte holding its token type and these two flags.
const (
	flagDupStream   = 0x40 // the stream repeats an earlier stream
	flagNewPosition = 0x80 // the stream starts the next fragment position
)

// Decode expands a tokenized name stream into the read names it holds,
// each followed by the given separator byte. An empty stream decodes
// to empty output.
func Decode(data []byte, separator byte) (out []byte, err error) {
	defer cram.Recover(&err)
	if len(data) == 0 {
		return nil, nil
	}
	r := &internal.Reader{Data: data}
	size := int(r.U32())
	numNames := int(r.U32())
	useArith := r.U8() != 0
	if numNames > size {
		panic(cram.Malformedf("%d read names cannot fit the declared %d payload bytes", numNames, size))
	}
	d := &decoder{
		streams: readTokenStreams(r, numNames, useArith),
		tokens:  make([][]string, numNames),
		names:   make([][]byte, numNames),
	}
	out = make([]byte, 0, size)
	for i := 0; i < numNames; i++ {
		out = append(out, d.decodeName(i)...)
		out = append(out, separator)
	}
	if len(out) != size {
		panic(cram.Malformedf("read names expand to %d bytes instead of the declared %d", len(out), size))
	}
	return out, nil
}

// tokenStreams indexes the decompressed token streams by fragment
// position and token type. Every stream keeps its own cursor: the
// decode loop pulls one token per name from each stream it touches.
type tokenStreams [][]*internal.Reader

// readTokenStreams parses the stream directory: a flag byte per
// stream, followed either by the position and type of an earlier
// stream to repeat, or by a uint7 length and the compressed stream
// itself. A type stream that was entirely match apart from its first
// entry is not serialized; it is regenerated from the type of the
// first stream at its position.
func readTokenStreams(r *internal.Reader, numNames int, useArith bool) tokenStreams {
	var streams tokenStreams
	for r.Remaining() > 0 {
		flag := r.U8()
		typ := flag & 0x3F
		if typ >= numTokenTypes {
			panic(cram.Malformedf("invalid token type %d in name stream directory", typ))
		}
		if flag&flagNewPosition != 0 {
			row := make([]*internal.Reader, numTokenTypes)
			if typ != tokType {
				synth := make([]byte, numNames)
				for i := range synth {
					synth[i] = tokMatch
				}
				if len(synth) > 0 {
					synth[0] = typ
				}
				row[tokType] = &internal.Reader{Data: synth}
			}
			streams = append(streams, row)
		}
		if len(streams) == 0 {
			panic(cram.Malformedf("token stream directory does not open a fragment position"))
		}
		pos := len(streams) - 1
		if flag&flagDupStream != 0 {
			dupPos := int(r.U8())
			dupType := r.U8()
			if dupType >= numTokenTypes || dupPos >= len(streams) || streams[dupPos][dupType] == nil {
				panic(cram.Malformedf("token stream %d.%d repeats missing stream %d.%d", pos, typ, dupPos, dupType))
			}
			streams[pos][typ] = &internal.Reader{Data: streams[dupPos][dupType].Data}
			continue
		}
		compressed := r.Bytes(int(r.Uint7()))
		streams[pos][typ] = &internal.Reader{Data: decompress(compressed, useArith)}
	}
	return streams
}

func decompress(data []byte, useArith bool) []byte {
	var out []byte
	var err error
	if useArith {
		out, err = rangecoder.Decode(data, 0)
	} else {
		out, err = rans.DecodeNx16(data, 0)
	}
	if err != nil {
		panic(err)
	}
	return out
}

func (t tokenStreams) stream(pos int, typ byte) *internal.Reader {
	if pos < len(t) {
		if s := t[pos][typ]; s != nil {
			return s
		}
	}
	panic(cram.Malformedf("missing token stream for fragment position %d type %d", pos, typ))
}

type decoder struct {
	streams tokenStreams
	tokens  [][]string // per name, the decoded fragments by position
	names   [][]byte   // per name, the reconstructed bytes
}

func (d *decoder) decodeName(nameIndex int) []byte {
	refType := d.streams.stream(0, tokType).U8()
	if refType != tokDup && refType != tokDiff {
		panic(cram.Malformedf("read name %d opens with token type %d instead of dup or diff", nameIndex, refType))
	}
	ref := nameIndex - int(d.streams.stream(0, refType).U32())
	if refType == tokDup {
		if ref < 0 || ref >= nameIndex {
			panic(cram.Malformedf("read name %d duplicates out of range name %d", nameIndex, ref))
		}
		d.tokens[nameIndex] = d.tokens[ref]
		d.names[nameIndex] = d.names[ref]
		return d.names[nameIndex]
	}
	var tokens []string
	var name []byte
	for pos := 1; ; pos++ {
		typ := d.streams.stream(pos, tokType).U8()
		var token []byte
		switch typ {
		case tokEnd, tokNop:
		case tokChar:
			token = []byte{d.streams.stream(pos, tokChar).U8()}
		case tokString:
			token = readStringZ(d.streams.stream(pos, tokString))
		case tokDigits:
			token = strconv.AppendUint(nil, uint64(d.streams.stream(pos, tokDigits).U32()), 10)
		case tokDigits0:
			digits := strconv.AppendUint(nil, uint64(d.streams.stream(pos, tokDigits0).U32()), 10)
			token = leftPadZero(digits, int(d.streams.stream(pos, tokDZLen).U8()))
		case tokDelta:
			token = d.deltaToken(d.refToken(nameIndex, ref, pos), pos, tokDelta)
		case tokDelta0:
			prev := d.refToken(nameIndex, ref, pos)
			token = leftPadZero(d.deltaToken(prev, pos, tokDelta0), len(prev))
		case tokMatch:
			token = []byte(d.refToken(nameIndex, ref, pos))
		default:
			panic(cram.Malformedf("invalid token type %d at fragment position %d of read name %d", typ, pos, nameIndex))
		}
		tokens = append(tokens, string(token))
		name = append(name, token...)
		if typ == tokEnd {
			break
		}
	}
	d.tokens[nameIndex] = tokens
	d.names[nameIndex] = name
	return name
}

// refToken returns the fragment at the given position of the name this
// name is coded against.
func (d *decoder) refToken(nameIndex, ref, pos int) string {
	if ref < 0 || ref >= nameIndex || pos > len(d.tokens[ref]) {
		panic(cram.Malformedf("read name %d refers to missing fragment %d of read name %d", nameIndex, pos, ref))
	}
	return d.tokens[ref][pos-1]
}

func (d *decoder) deltaToken(prevToken string, pos int, typ byte) []byte {
	prev, err := strconv.Atoi(prevToken)
	if err != nil {
		panic(cram.Malformedf("delta token at fragment position %d against non-numeric fragment %q", pos, prevToken))
	}
	delta := int(d.streams.stream(pos, typ).U8())
	return strconv.AppendInt(nil, int64(prev+delta), 10)
}

func readStringZ(r *internal.Reader) []byte {
	data := r.Data[r.Pos:]
	n := bytes.IndexByte(data, 0)
	if n < 0 {
		panic(cram.Malformedf("unterminated string token at offset %d", r.Pos))
	}
	r.Pos += n + 1
	return data[:n]
}

func leftPadZero(digits []byte, width int) []byte {
	if len(digits) >= width {
		return digits
	}
	padded := make([]byte, width-len(digits), width)
	for i := range padded {
		padded[i] = '0'
	}
	return append(padded, digits...)
}
