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

package codec

import (
	"bytes"

	"github.com/exascience/cram"
	"github.com/exascience/cram/bits"
	"github.com/exascience/cram/internal"
	"github.com/exascience/cram/varint"
)

// externalReader resolves the block cursor an external encoding reads
// from. Codecs of series that share a content ID share the cursor.
func externalReader(external map[int32]*internal.Reader, contentID int32) *internal.Reader {
	r, ok := external[contentID]
	if !ok {
		panic(cram.Malformedf("no external block with content ID %d", contentID))
	}
	return r
}

// externalBuffer resolves the buffer an external encoding writes to,
// adding an empty one to the map on first use of a content ID.
func externalBuffer(external map[int32]*internal.Buffer, contentID int32) *internal.Buffer {
	b, ok := external[contentID]
	if !ok {
		b = new(internal.Buffer)
		external[contentID] = b
	}
	return b
}

type externalByteDecoder struct{ r *internal.Reader }

func (d *externalByteDecoder) Decode() byte { return d.r.U8() }

type externalByteEncoder struct{ b *internal.Buffer }

func (e *externalByteEncoder) Encode(v byte) { e.b.AppendByte(v) }

type externalIntDecoder struct{ r *internal.Reader }

func (d *externalIntDecoder) Decode() int32 { return d.r.ITF8() }

type externalIntEncoder struct{ b *internal.Buffer }

func (e *externalIntEncoder) Encode(v int32) {
	var scratch [varint.MaxLenITF8]byte
	e.b.Append(varint.AppendITF8(scratch[:0], v))
}

type externalLongDecoder struct{ r *internal.Reader }

func (d *externalLongDecoder) Decode() int64 { return d.r.LTF8() }

type externalLongEncoder struct{ b *internal.Buffer }

func (e *externalLongEncoder) Encode(v int64) {
	var scratch [varint.MaxLenLTF8]byte
	e.b.Append(varint.AppendLTF8(scratch[:0], v))
}

// byteArrayLenDecoder splits a byte-array series into a length series
// coded by any integer encoding and a raw byte stream in an external
// block.
type byteArrayLenDecoder struct {
	lengths IntDecoder
	values  *internal.Reader
}

func newByteArrayLenDecoder(e *ByteArrayLen, core *bits.Reader, external map[int32]*internal.Reader) *byteArrayLenDecoder {
	values, ok := e.Values.(*External)
	if !ok {
		panic(cram.Malformedf("byte-array values coded with a %v encoding instead of an external block", idOf(e.Values)))
	}
	return &byteArrayLenDecoder{
		lengths: NewIntDecoder(e.Lengths, core, external),
		values:  externalReader(external, values.ContentID),
	}
}

func (d *byteArrayLenDecoder) Decode() []byte {
	n := d.lengths.Decode()
	if n < 0 {
		panic(cram.Malformedf("negative byte array length %d", n))
	}
	return d.values.Bytes(int(n))
}

type byteArrayLenEncoder struct {
	lengths IntEncoder
	values  *internal.Buffer
}

func newByteArrayLenEncoder(e *ByteArrayLen, core *bits.Writer, external map[int32]*internal.Buffer) *byteArrayLenEncoder {
	values, ok := e.Values.(*External)
	if !ok {
		panic(cram.Malformedf("byte-array values coded with a %v encoding instead of an external block", idOf(e.Values)))
	}
	return &byteArrayLenEncoder{
		lengths: NewIntEncoder(e.Lengths, core, external),
		values:  externalBuffer(external, values.ContentID),
	}
}

func (e *byteArrayLenEncoder) Encode(p []byte) {
	e.lengths.Encode(int32(len(p)))
	e.values.Append(p)
}

// byteArrayStopDecoder reads values delimited by the stop byte from an
// external block. The last value of a block may be terminated by the
// end of the block instead of a stop byte.
type byteArrayStopDecoder struct {
	stop byte
	r    *internal.Reader
}

func (d *byteArrayStopDecoder) Decode() []byte {
	rest := d.r.Data[d.r.Pos:]
	i := bytes.IndexByte(rest, d.stop)
	if i < 0 {
		d.r.Pos = len(d.r.Data)
		return rest
	}
	d.r.Pos += i + 1
	return rest[:i]
}

type byteArrayStopEncoder struct {
	stop byte
	b    *internal.Buffer
}

func (e *byteArrayStopEncoder) Encode(p []byte) {
	if bytes.IndexByte(p, e.stop) >= 0 {
		panic(cram.DomainViolationf("byte array %q contains the stop byte %d", p, e.stop))
	}
	e.b.Append(p)
	e.b.AppendByte(e.stop)
}
