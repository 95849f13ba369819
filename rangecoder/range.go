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

// Package rangecoder implements the adaptive arithmetic coder of CRAM
// 3.1. Unlike the rANS coders it carries no frequency tables in the
// stream: encoder and decoder grow identical symbol statistics as they
// go, which pays off for data whose distribution drifts, at a
// considerable speed cost.
//
// The stream formats share their transforms with the rANS Nx16 coder:
// bit packing for narrow alphabets, a run-length layer with its own
// adaptive models, pass-through storage, and external bzip2
// compression for data that neither coder handles well.
package rangecoder

import (
	"bytes"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/exascience/cram"
	"github.com/exascience/cram/internal"
	"github.com/exascience/cram/varint"
)

// Format flags of the range coder. Order1 selects symbol statistics
// conditional on the preceding byte, RLE codes run lengths through
// separate adaptive models, and Ext bypasses the arithmetic coder
// altogether in favor of bzip2. A stream with NoSize leaves the
// uncompressed length to be supplied out of band.
const (
	Order1 uint8 = 1 << iota
	_
	Ext
	Stripe
	NoSize
	Cat
	RLE
	Pack
)

// Encode compresses data with the adaptive arithmetic coder according
// to the given format flags. Bit packing needs at most 16 distinct
// symbols and is dropped from the output stream when the data cannot
// honor it. Striped encoding is not supported. Empty input encodes to
// an empty stream.
func Encode(data []byte, flags uint8) (out []byte, err error) {
	defer cram.Recover(&err)
	if len(data) == 0 {
		return nil, nil
	}
	if flags&Stripe != 0 {
		panic(cram.NotImplementedf("range encoding with striped interleaving"))
	}
	input := data
	var packMeta []byte
	if flags&Pack != 0 {
		if packed, meta, ok := internal.Pack(input); ok {
			input, packMeta = packed, meta
		} else {
			flags &^= Pack
		}
	}
	var payload []byte
	switch {
	case flags&Cat != 0:
		payload = input
	case flags&Ext != 0:
		payload = compressExt(input)
	case flags&RLE != 0:
		payload = encodeRLE(input, flags&Order1 != 0)
	case flags&Order1 != 0:
		payload = encodeOrder1(input)
	default:
		payload = encodeOrder0(input)
	}
	out = make([]byte, 0, 6+len(packMeta)+len(payload))
	out = append(out, flags)
	if flags&NoSize == 0 {
		out = varint.AppendUint7(out, uint32(len(data)))
	}
	out = append(out, packMeta...)
	return append(out, payload...), nil
}

// Decode decompresses a range coder stream. The outSize parameter is
// consulted only when the stream carries the NoSize flag; it is
// ignored otherwise. An empty stream decodes to empty output.
func Decode(data []byte, outSize int) (out []byte, err error) {
	defer cram.Recover(&err)
	if len(data) == 0 {
		return nil, nil
	}
	r := &internal.Reader{Data: data}
	return decode(r, outSize), nil
}

func decode(r *internal.Reader, outSize int) []byte {
	flags := r.U8()
	size := outSize
	if flags&NoSize == 0 {
		size = int(r.Uint7())
	}
	if size < 0 {
		panic(cram.Malformedf("negative range coder uncompressed size %d", size))
	}
	if flags&Stripe != 0 {
		return decodeStripe(r, size)
	}
	var packTable []byte
	packSize := 0
	if flags&Pack != 0 {
		packSize = size
		numSym := int(r.U8())
		if numSym == 0 || numSym > 16 {
			panic(cram.Malformedf("bit packing with %d distinct symbols", numSym))
		}
		packTable = r.Bytes(numSym)
		size = int(r.Uint7())
	}
	var out []byte
	switch {
	case flags&Cat != 0:
		out = r.Bytes(size)
	case flags&Ext != 0:
		out = decompressExt(r.Bytes(r.Remaining()), size)
	case flags&RLE != 0:
		out = make([]byte, size)
		decodeRLE(r, out, flags&Order1 != 0)
	case flags&Order1 != 0:
		out = make([]byte, size)
		decodeOrder1(r, out)
	default:
		out = make([]byte, size)
		decodeOrder0(r, out)
	}
	if flags&Pack != 0 {
		out = internal.Unpack(out, packTable, packSize)
	}
	return out
}

// modelSize returns the symbol count of the models coding data, one
// more than the highest occurring byte. 256 is stored as a zero byte.
func modelSize(data []byte) int {
	max := byte(0)
	for _, b := range data {
		if b > max {
			max = b
		}
	}
	return int(max) + 1
}

func readModelSize(r *internal.Reader) int {
	if n := int(r.U8()); n != 0 {
		return n
	}
	return 256
}

func encodeOrder0(data []byte) []byte {
	numSym := modelSize(data)
	out := []byte{byte(numSym)}
	m := NewByteModel(numSym)
	c := NewCoder()
	for _, b := range data {
		m.Encode(&out, c, b)
	}
	c.Finish(&out)
	return out
}

func decodeOrder0(r *internal.Reader, out []byte) {
	m := NewByteModel(readModelSize(r))
	c := NewCoder()
	c.StartDecode(r)
	for i := range out {
		out[i] = m.Decode(r, c)
	}
}

func encodeOrder1(data []byte) []byte {
	numSym := modelSize(data)
	out := []byte{byte(numSym)}
	models := NewByteModels(numSym, numSym)
	c := NewCoder()
	last := byte(0)
	for _, b := range data {
		models[last].Encode(&out, c, b)
		last = b
	}
	c.Finish(&out)
	return out
}

func decodeOrder1(r *internal.Reader, out []byte) {
	numSym := readModelSize(r)
	models := NewByteModels(numSym, numSym)
	c := NewCoder()
	c.StartDecode(r)
	last := byte(0)
	for i := range out {
		last = models[last].Decode(r, c)
		out[i] = last
	}
}

// Runs are coded in chunks of up to 3, the first chunk in the context
// of the repeated literal, continuation chunks in two chained contexts
// of their own. A chunk of 3 means the run goes on.
const (
	runFirstExt = 256
	runNextExt  = 257
)

func newRunModels() []*ByteModel {
	return NewByteModels(258, 4)
}

func encodeRLE(data []byte, order1 bool) []byte {
	numSym := modelSize(data)
	out := []byte{byte(numSym)}
	var lit *ByteModel
	var lits []*ByteModel
	if order1 {
		lits = NewByteModels(numSym, numSym)
	} else {
		lit = NewByteModel(numSym)
	}
	runs := newRunModels()
	c := NewCoder()
	last := byte(0)
	for i := 0; i < len(data); {
		b := data[i]
		if order1 {
			lits[last].Encode(&out, c, b)
			last = b
		} else {
			lit.Encode(&out, c, b)
		}
		run := 0
		for i+run+1 < len(data) && data[i+run+1] == b {
			run++
		}
		encodeRun(&out, c, runs, run, int(b))
		i += run + 1
	}
	c.Finish(&out)
	return out
}

func decodeRLE(r *internal.Reader, out []byte, order1 bool) {
	numSym := readModelSize(r)
	var lit *ByteModel
	var lits []*ByteModel
	if order1 {
		lits = NewByteModels(numSym, numSym)
	} else {
		lit = NewByteModel(numSym)
	}
	runs := newRunModels()
	c := NewCoder()
	c.StartDecode(r)
	last := byte(0)
	for i := 0; i < len(out); {
		var b byte
		if order1 {
			b = lits[last].Decode(r, c)
			last = b
		} else {
			b = lit.Decode(r, c)
		}
		run := decodeRun(r, c, runs, int(b))
		if run+1 > len(out)-i {
			panic(cram.Malformedf("run of %d exceeds %d remaining output bytes", run+1, len(out)-i))
		}
		for j := 0; j <= run; j++ {
			out[i+j] = b
		}
		i += run + 1
	}
}

func encodeRun(out *[]byte, c *Coder, runs []*ByteModel, run, ctx int) {
	part := run
	if part > 3 {
		part = 3
	}
	runs[ctx].Encode(out, c, byte(part))
	run -= part
	ctx = runFirstExt
	for part == 3 {
		part = run
		if part > 3 {
			part = 3
		}
		runs[ctx].Encode(out, c, byte(part))
		run -= part
		ctx = runNextExt
	}
}

func decodeRun(r *internal.Reader, c *Coder, runs []*ByteModel, ctx int) int {
	part := int(runs[ctx].Decode(r, c))
	run := part
	ctx = runFirstExt
	for part == 3 {
		part = int(runs[ctx].Decode(r, c))
		ctx = runNextExt
		run += part
	}
	return run
}

func compressExt(data []byte) []byte {
	var buf bytes.Buffer
	w, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: bzip2.BestCompression})
	if err != nil {
		panic(err)
	}
	internal.WriteFull(w, data)
	if err := w.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func decompressExt(data []byte, outSize int) []byte {
	z, err := bzip2.NewReader(bytes.NewReader(data), nil)
	if err != nil {
		panic(cram.Malformedf("bzip2 substream: %v", err))
	}
	out, err := io.ReadAll(z)
	if err != nil {
		panic(cram.Malformedf("bzip2 substream: %v", err))
	}
	if len(out) != outSize {
		panic(cram.Malformedf("bzip2 substream holds %d bytes, expected %d", len(out), outSize))
	}
	return out
}

// decodeStripe reads interleaved substreams, each range coded on its
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
		part := decode(r, ulen)
		if len(part) < ulen {
			panic(cram.Malformedf("striped substream %d holds %d bytes, need %d", j, len(part), ulen))
		}
		for i := 0; i < ulen; i++ {
			out[i*numStreams+j] = part[i]
		}
	}
	return out
}
