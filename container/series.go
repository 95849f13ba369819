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

package container

import (
	"sort"

	"github.com/exascience/cram"
	"github.com/exascience/cram/bits"
	"github.com/exascience/cram/block"
	"github.com/exascience/cram/codec"
	"github.com/exascience/cram/internal"
)

/*
A SeriesWriter collects the values of one slice. The typed encoders it
hands out route each value into the shared core bit stream or into the
byte buffer of the series' external block, as the compression header's
encoding map dictates. Blocks then compresses the collected buffers
into the slice's blocks.

A SeriesWriter is single-use and not safe for concurrent use; encoders
for different series may be interleaved freely, but the values of one
series must be encoded in record order.
*/
type SeriesWriter struct {
	header   *CompressionHeader
	core     *bits.Writer
	external map[int32]*internal.Buffer
}

// NewSeriesWriter returns a writer that collects slice values
// according to the header's encoding map.
func NewSeriesWriter(header *CompressionHeader) *SeriesWriter {
	return &SeriesWriter{
		header:   header,
		core:     bits.NewWriter(),
		external: make(map[int32]*internal.Buffer),
	}
}

func (w *SeriesWriter) encoding(s DataSeries, t DataType) codec.Encoding {
	if s.Type() != t {
		panic(cram.DomainViolationf("%v is a %v series, not a %v series", s, s.Type(), t))
	}
	e := w.header.Encodings[s]
	if e == nil {
		panic(cram.DomainViolationf("no encoding for data series %v", s))
	}
	return e
}

// IntEncoder returns the encoder for the values of integer series s.
func (w *SeriesWriter) IntEncoder(s DataSeries) (enc codec.IntEncoder, err error) {
	defer cram.Recover(&err)
	return codec.NewIntEncoder(w.encoding(s, IntType), w.core, w.external), nil
}

// ByteEncoder returns the encoder for the values of byte series s.
func (w *SeriesWriter) ByteEncoder(s DataSeries) (enc codec.ByteEncoder, err error) {
	defer cram.Recover(&err)
	return codec.NewByteEncoder(w.encoding(s, ByteType), w.core, w.external), nil
}

// BytesEncoder returns the encoder for the values of byte-array
// series s.
func (w *SeriesWriter) BytesEncoder(s DataSeries) (enc codec.BytesEncoder, err error) {
	defer cram.Recover(&err)
	return codec.NewBytesEncoder(w.encoding(s, ByteArrayType), w.core, w.external), nil
}

// TagEncoder returns the encoder for the values of one tag. Tag values
// are byte arrays in BAM binary representation.
func (w *SeriesWriter) TagEncoder(tag TagID) (enc codec.BytesEncoder, err error) {
	defer cram.Recover(&err)
	e := w.header.TagEncodings[tag]
	if e == nil {
		panic(cram.DomainViolationf("no encoding for tag %v", tag))
	}
	return codec.NewBytesEncoder(e, w.core, w.external), nil
}

// Blocks compresses the collected streams into slice blocks: a raw
// core block, and one external block per content ID, each compressed
// with the method the compression header chose for it. External
// blocks appear in content ID order.
func (w *SeriesWriter) Blocks(cache *block.Cache) (*SliceBlocks, error) {
	core, err := block.New(block.Core, w.core.Bytes())
	if err != nil {
		return nil, err
	}
	blocks := NewSliceBlocks()
	if err := blocks.SetCore(core); err != nil {
		return nil, err
	}

	ids := make([]int32, 0, len(w.external))
	for id := range w.external {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		method, arg := w.header.BlockCompression(id)
		b, err := block.CompressExternal(cache, method, arg, id, w.external[id].Bytes())
		if err != nil {
			return nil, err
		}
		if err := blocks.AddExternal(b); err != nil {
			return nil, err
		}
	}
	return blocks, nil
}

/*
A SeriesReader hands out typed decoders over one slice's blocks. The
core bit stream and the external blocks are decompressed up front;
decoders for different series may then be interleaved freely, but the
values of one series must be decoded in record order.

Slices are self-contained, so separate slices can be decoded
concurrently, each with its own SeriesReader. A single SeriesReader is
not safe for concurrent use.
*/
type SeriesReader struct {
	header   *CompressionHeader
	core     *bits.Reader
	external map[int32]*internal.Reader
}

// NewSeriesReader decompresses the slice's blocks and returns a reader
// for their data series.
func NewSeriesReader(header *CompressionHeader, blocks *SliceBlocks, cache *block.Cache) (*SeriesReader, error) {
	if blocks.Core() == nil {
		return nil, cram.DomainViolationf("slice without a core block")
	}
	core, err := blocks.Core().UncompressedContent(cache)
	if err != nil {
		return nil, err
	}
	external := make(map[int32]*internal.Reader, len(blocks.ExternalIDs()))
	for _, id := range blocks.ExternalIDs() {
		content, err := blocks.External(id).UncompressedContent(cache)
		if err != nil {
			return nil, err
		}
		external[id] = &internal.Reader{Data: content}
	}
	return &SeriesReader{
		header:   header,
		core:     bits.NewReader(core),
		external: external,
	}, nil
}

func (r *SeriesReader) encoding(s DataSeries, t DataType) codec.Encoding {
	if s.Type() != t {
		panic(cram.DomainViolationf("%v is a %v series, not a %v series", s, s.Type(), t))
	}
	e := r.header.Encodings[s]
	if e == nil {
		panic(cram.Malformedf("no encoding for data series %v", s))
	}
	return e
}

// IntDecoder returns the decoder for the values of integer series s.
func (r *SeriesReader) IntDecoder(s DataSeries) (dec codec.IntDecoder, err error) {
	defer cram.Recover(&err)
	return codec.NewIntDecoder(r.encoding(s, IntType), r.core, r.external), nil
}

// ByteDecoder returns the decoder for the values of byte series s.
func (r *SeriesReader) ByteDecoder(s DataSeries) (dec codec.ByteDecoder, err error) {
	defer cram.Recover(&err)
	return codec.NewByteDecoder(r.encoding(s, ByteType), r.core, r.external), nil
}

// BytesDecoder returns the decoder for the values of byte-array
// series s.
func (r *SeriesReader) BytesDecoder(s DataSeries) (dec codec.BytesDecoder, err error) {
	defer cram.Recover(&err)
	return codec.NewBytesDecoder(r.encoding(s, ByteArrayType), r.core, r.external), nil
}

// TagDecoder returns the decoder for the values of one tag.
func (r *SeriesReader) TagDecoder(tag TagID) (dec codec.BytesDecoder, err error) {
	defer cram.Recover(&err)
	e := r.header.TagEncodings[tag]
	if e == nil {
		panic(cram.Malformedf("no encoding for tag %v", tag))
	}
	return codec.NewBytesDecoder(e, r.core, r.external), nil
}
