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

// Package codec implements the value encodings that CRAM compression
// headers assign to data series: the core bit-stream encodings (beta,
// gamma, subexponential, canonical Huffman) and the encodings that
// delegate to external blocks.
//
// An Encoding is the parsed form of a serialized encoding descriptor.
// The New*Decoder and New*Encoder factories bind an Encoding to the
// concrete streams of one slice: the shared core bit stream and the
// external block cursors keyed by content ID. The resulting codecs
// panic with *cram.Error values on malformed input or out-of-domain
// values; the exported entry points of this library recover such
// panics into ordinary errors.
package codec

import (
	"fmt"

	"github.com/exascience/cram"
	"github.com/exascience/cram/bits"
	"github.com/exascience/cram/internal"
	"github.com/exascience/cram/varint"
)

// ID identifies an encoding in a serialized compression header.
type ID byte

// The encoding identifiers of the CRAM format. Golomb and GolombRice
// are defined by the format but not provided by this library, nor by
// any known writer.
const (
	NullID ID = iota
	ExternalID
	GolombID
	HuffmanID
	ByteArrayLenID
	ByteArrayStopID
	BetaID
	SubexponentialID
	GolombRiceID
	GammaID
)

func (id ID) String() string {
	switch id {
	case NullID:
		return "null"
	case ExternalID:
		return "external"
	case GolombID:
		return "golomb"
	case HuffmanID:
		return "huffman"
	case ByteArrayLenID:
		return "byte-array-len"
	case ByteArrayStopID:
		return "byte-array-stop"
	case BetaID:
		return "beta"
	case SubexponentialID:
		return "subexponential"
	case GolombRiceID:
		return "golomb-rice"
	case GammaID:
		return "gamma"
	default:
		return fmt.Sprintf("encoding %d", byte(id))
	}
}

/*
An Encoding describes how the values of one data series are coded. The
concrete types are Beta, Gamma, Subexponential, Huffman, External,
ByteArrayLen, and ByteArrayStop; a nil Encoding stands for the null
encoding of a series that carries no data.

Encodings are descriptors, not codecs: they hold the parameters that
the compression header serializes. The New*Decoder and New*Encoder
factories turn a descriptor into a codec bound to concrete streams.
*/
type Encoding interface {
	// ID returns the identifier of this encoding on the wire.
	ID() ID

	appendParams(p []byte) []byte
}

// idOf tolerates nil encodings in error messages.
func idOf(e Encoding) ID {
	if e == nil {
		return NullID
	}
	return e.ID()
}

// External delegates a series to the external block with the given
// content ID. Integers are coded as ITF8, 64-bit integers as LTF8,
// and bytes as themselves.
type External struct {
	ContentID int32
}

func (e *External) ID() ID { return ExternalID }

func (e *External) appendParams(p []byte) []byte {
	return varint.AppendITF8(p, e.ContentID)
}

// Huffman describes a canonical Huffman code by its alphabet and the
// code length of each symbol. The code words themselves are never
// stored; both sides reassign them canonically, by increasing code
// length and then increasing symbol value. NewHuffman derives a
// descriptor from symbol frequencies.
type Huffman struct {
	Values     []int32
	BitLengths []int32
}

func (e *Huffman) ID() ID { return HuffmanID }

func (e *Huffman) appendParams(p []byte) []byte {
	p = appendITF8Array(p, e.Values)
	return appendITF8Array(p, e.BitLengths)
}

// ByteArrayLen codes a byte-array series as a length drawn from the
// Lengths encoding followed by that many bytes drawn from the Values
// encoding, which must be an External encoding.
type ByteArrayLen struct {
	Lengths Encoding
	Values  Encoding
}

func (e *ByteArrayLen) ID() ID { return ByteArrayLenID }

func (e *ByteArrayLen) appendParams(p []byte) []byte {
	p = AppendEncoding(p, e.Lengths)
	return AppendEncoding(p, e.Values)
}

// ByteArrayStop codes a byte-array series as raw bytes in an external
// block, each value terminated by the Stop byte.
type ByteArrayStop struct {
	Stop      byte
	ContentID int32
}

func (e *ByteArrayStop) ID() ID { return ByteArrayStopID }

func (e *ByteArrayStop) appendParams(p []byte) []byte {
	p = append(p, e.Stop)
	return varint.AppendITF8(p, e.ContentID)
}

// Beta codes value+Offset as an unsigned integer in exactly Bits bits.
type Beta struct {
	Offset int32
	Bits   int32
}

func (e *Beta) ID() ID { return BetaID }

func (e *Beta) appendParams(p []byte) []byte {
	p = varint.AppendITF8(p, e.Offset)
	return varint.AppendITF8(p, e.Bits)
}

// Subexponential codes value+Offset with a unary class prefix whose
// growth is controlled by the parameter K; see the codec in core.go.
type Subexponential struct {
	Offset int32
	K      int32
}

func (e *Subexponential) ID() ID { return SubexponentialID }

func (e *Subexponential) appendParams(p []byte) []byte {
	p = varint.AppendITF8(p, e.Offset)
	return varint.AppendITF8(p, e.K)
}

// Gamma codes value+Offset as an Elias gamma code.
type Gamma struct {
	Offset int32
}

func (e *Gamma) ID() ID { return GammaID }

func (e *Gamma) appendParams(p []byte) []byte {
	return varint.AppendITF8(p, e.Offset)
}

// ReadEncoding reads one serialized encoding descriptor: the ID byte,
// the ITF8-coded parameter length, and the parameters. A null encoding
// is returned as nil. ReadEncoding panics with a *cram.Error value on
// malformed descriptors.
func ReadEncoding(r *internal.Reader) Encoding {
	id := ID(r.U8())
	n := r.ITF8()
	if n < 0 {
		panic(cram.Malformedf("negative parameter length %d for a %v encoding", n, id))
	}
	p := &internal.Reader{Data: r.Bytes(int(n))}
	switch id {
	case NullID:
		return nil
	case ExternalID:
		return &External{ContentID: p.ITF8()}
	case HuffmanID:
		return &Huffman{Values: readITF8Array(p), BitLengths: readITF8Array(p)}
	case ByteArrayLenID:
		lengths := ReadEncoding(p)
		values := ReadEncoding(p)
		return &ByteArrayLen{Lengths: lengths, Values: values}
	case ByteArrayStopID:
		stop := p.U8()
		return &ByteArrayStop{Stop: stop, ContentID: p.ITF8()}
	case BetaID:
		return &Beta{Offset: p.ITF8(), Bits: p.ITF8()}
	case SubexponentialID:
		return &Subexponential{Offset: p.ITF8(), K: p.ITF8()}
	case GammaID:
		return &Gamma{Offset: p.ITF8()}
	case GolombID, GolombRiceID:
		panic(cram.NotImplementedf("the %v encoding", id))
	default:
		panic(cram.Malformedf("unknown encoding ID %d", byte(id)))
	}
}

// AppendEncoding appends the serialized descriptor of e to p: the ID
// byte, the ITF8-coded parameter length, and the parameters. A nil
// Encoding is written as the null encoding.
func AppendEncoding(p []byte, e Encoding) []byte {
	if e == nil {
		return append(p, byte(NullID), 0)
	}
	p = append(p, byte(e.ID()))
	params := e.appendParams(nil)
	p = varint.AppendITF8(p, int32(len(params)))
	return append(p, params...)
}

func readITF8Array(r *internal.Reader) []int32 {
	n := r.ITF8()
	if n < 0 || int(n) > r.Remaining() {
		panic(cram.Malformedf("ITF8 array of %d values in %d remaining bytes", n, r.Remaining()))
	}
	vals := make([]int32, n)
	for i := range vals {
		vals[i] = r.ITF8()
	}
	return vals
}

func appendITF8Array(p []byte, vals []int32) []byte {
	p = varint.AppendITF8(p, int32(len(vals)))
	for _, v := range vals {
		p = varint.AppendITF8(p, v)
	}
	return p
}

// An IntDecoder decodes the successive values of one integer data
// series.
type IntDecoder interface {
	Decode() int32
}

// An IntEncoder encodes the successive values of one integer data
// series.
type IntEncoder interface {
	Encode(v int32)
}

// A ByteDecoder decodes the successive values of one byte data series.
type ByteDecoder interface {
	Decode() byte
}

// A ByteEncoder encodes the successive values of one byte data series.
type ByteEncoder interface {
	Encode(v byte)
}

// A BytesDecoder decodes the successive values of one byte-array data
// series. Decoded slices may alias the underlying block data.
type BytesDecoder interface {
	Decode() []byte
}

// A BytesEncoder encodes the successive values of one byte-array data
// series.
type BytesEncoder interface {
	Encode(p []byte)
}

// A LongDecoder decodes the successive values of one 64-bit integer
// data series.
type LongDecoder interface {
	Decode() int64
}

// A LongEncoder encodes the successive values of one 64-bit integer
// data series.
type LongEncoder interface {
	Encode(v int64)
}

// NewIntDecoder returns a decoder for an integer series coded with e,
// drawing from the core bit stream or the external block cursors.
func NewIntDecoder(e Encoding, core *bits.Reader, external map[int32]*internal.Reader) IntDecoder {
	switch e := e.(type) {
	case *External:
		return &externalIntDecoder{r: externalReader(external, e.ContentID)}
	case *Huffman:
		return &huffmanIntDecoder{codes: newHuffmanCodes(e), core: core}
	case *Beta:
		return &betaDecoder{betaCodec: newBetaCodec(e), core: core}
	case *Gamma:
		return &gammaDecoder{offset: e.Offset, core: core}
	case *Subexponential:
		return &subexponentialDecoder{subexponentialCodec: newSubexponentialCodec(e), core: core}
	default:
		panic(cram.Malformedf("%v encoding for an integer series", idOf(e)))
	}
}

// NewIntEncoder returns an encoder for an integer series coded with e,
// writing to the core bit stream or the external block buffers.
// Buffers for content IDs not yet present in external are added to it.
func NewIntEncoder(e Encoding, core *bits.Writer, external map[int32]*internal.Buffer) IntEncoder {
	switch e := e.(type) {
	case *External:
		return &externalIntEncoder{b: externalBuffer(external, e.ContentID)}
	case *Huffman:
		return &huffmanIntEncoder{codes: newHuffmanCodes(e), core: core}
	case *Beta:
		return &betaEncoder{betaCodec: newBetaCodec(e), core: core}
	case *Gamma:
		return &gammaEncoder{offset: e.Offset, core: core}
	case *Subexponential:
		return &subexponentialEncoder{subexponentialCodec: newSubexponentialCodec(e), core: core}
	default:
		panic(cram.Malformedf("%v encoding for an integer series", idOf(e)))
	}
}

// NewByteDecoder returns a decoder for a byte series coded with e.
func NewByteDecoder(e Encoding, core *bits.Reader, external map[int32]*internal.Reader) ByteDecoder {
	switch e := e.(type) {
	case *External:
		return &externalByteDecoder{r: externalReader(external, e.ContentID)}
	case *Huffman:
		return &huffmanByteDecoder{codes: newHuffmanCodes(e), core: core}
	default:
		panic(cram.Malformedf("%v encoding for a byte series", idOf(e)))
	}
}

// NewByteEncoder returns an encoder for a byte series coded with e.
func NewByteEncoder(e Encoding, core *bits.Writer, external map[int32]*internal.Buffer) ByteEncoder {
	switch e := e.(type) {
	case *External:
		return &externalByteEncoder{b: externalBuffer(external, e.ContentID)}
	case *Huffman:
		return &huffmanByteEncoder{codes: newHuffmanCodes(e), core: core}
	default:
		panic(cram.Malformedf("%v encoding for a byte series", idOf(e)))
	}
}

// NewBytesDecoder returns a decoder for a byte-array series coded with
// e.
func NewBytesDecoder(e Encoding, core *bits.Reader, external map[int32]*internal.Reader) BytesDecoder {
	switch e := e.(type) {
	case *ByteArrayLen:
		return newByteArrayLenDecoder(e, core, external)
	case *ByteArrayStop:
		return &byteArrayStopDecoder{stop: e.Stop, r: externalReader(external, e.ContentID)}
	default:
		panic(cram.Malformedf("%v encoding for a byte-array series", idOf(e)))
	}
}

// NewBytesEncoder returns an encoder for a byte-array series coded
// with e.
func NewBytesEncoder(e Encoding, core *bits.Writer, external map[int32]*internal.Buffer) BytesEncoder {
	switch e := e.(type) {
	case *ByteArrayLen:
		return newByteArrayLenEncoder(e, core, external)
	case *ByteArrayStop:
		return &byteArrayStopEncoder{stop: e.Stop, b: externalBuffer(external, e.ContentID)}
	default:
		panic(cram.Malformedf("%v encoding for a byte-array series", idOf(e)))
	}
}

// NewLongDecoder returns a decoder for a 64-bit integer series coded
// with e. Only the external encoding can code such a series.
func NewLongDecoder(e Encoding, external map[int32]*internal.Reader) LongDecoder {
	if e, ok := e.(*External); ok {
		return &externalLongDecoder{r: externalReader(external, e.ContentID)}
	}
	panic(cram.Malformedf("%v encoding for a 64-bit integer series", idOf(e)))
}

// NewLongEncoder returns an encoder for a 64-bit integer series coded
// with e. Only the external encoding can code such a series.
func NewLongEncoder(e Encoding, external map[int32]*internal.Buffer) LongEncoder {
	if e, ok := e.(*External); ok {
		return &externalLongEncoder{b: externalBuffer(external, e.ContentID)}
	}
	panic(cram.Malformedf("%v encoding for a 64-bit integer series", idOf(e)))
}
