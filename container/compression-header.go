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
	"fmt"
	"io"
	"sort"

	"github.com/exascience/cram"
	"github.com/exascience/cram/block"
	"github.com/exascience/cram/codec"
	"github.com/exascience/cram/internal"
	"github.com/exascience/cram/varint"
)

// A TagID identifies an optional record tag: a two-character name plus
// its value type character, packed into an integer. Tag blocks use the
// packed value as their content ID, which never collides with the
// content IDs of the data series.
type TagID int32

// NewTagID packs a two-character tag name and a value type character.
func NewTagID(name string, valueType byte) (TagID, error) {
	if len(name) != 2 {
		return 0, cram.DomainViolationf("tag name %q", name)
	}
	return TagID(int32(name[0])<<16 | int32(name[1])<<8 | int32(valueType)), nil
}

// Name returns the two-character tag name.
func (t TagID) Name() string {
	return string([]byte{byte(t >> 16), byte(t >> 8)})
}

// ValueType returns the value type character of the tag.
func (t TagID) ValueType() byte {
	return byte(t)
}

// ContentID returns the external block content ID assigned to the tag.
func (t TagID) ContentID() int32 {
	return int32(t)
}

func (t TagID) String() string {
	return fmt.Sprintf("%s:%c", t.Name(), t.ValueType())
}

// blockCompression records the compression method chosen for one
// external block at write time. The method of a written block is a
// property of the block, not of the encoding that fills it, so these
// choices are never serialized and stay empty on headers read back
// from a stream.
type blockCompression struct {
	method block.Method
	arg    int
}

/*
A CompressionHeader is the first block of a container. It declares how
the records of the container's slices are to be interpreted: the
preserved record properties, the substitution matrix, the dictionary
of tag combinations, and the encoding of every data series and tag in
use.

The encoding maps hold encoding descriptors only; the compression of
the external blocks the encodings refer to is recorded separately, per
content ID, and only on the write side.
*/
type CompressionHeader struct {
	// PreserveReadNames is the RN flag: when false, read names were
	// dropped and a reader makes names up.
	PreserveReadNames bool
	// APDelta is the AP flag: alignment positions are stored as deltas
	// to the previous record instead of absolute positions.
	APDelta bool
	// ReferenceRequired is the RR flag: decoding needs the external
	// reference sequence.
	ReferenceRequired bool

	Substitutions *SubstitutionMatrix

	// TagDictionary lists the tag combinations occurring in records;
	// the TL data series stores indexes into it.
	TagDictionary [][]TagID

	Encodings    map[DataSeries]codec.Encoding
	TagEncodings map[TagID]codec.Encoding

	compressions map[int32]blockCompression
}

// NewCompressionHeader returns a compression header with the default
// encoding map: every data series in its own external block, with the
// mix of rANS and gzip block compression that works well on typical
// alignment data. The tag dictionary starts out with a single empty
// combination, so records without tags can point at entry zero.
func NewCompressionHeader(strategy *EncodingStrategy) *CompressionHeader {
	h := &CompressionHeader{
		PreserveReadNames: strategy.PreserveReadNames,
		APDelta:           true,
		ReferenceRequired: true,
		Substitutions:     NewSubstitutionMatrix([5][5]int64{}),
		TagDictionary:     [][]TagID{nil},
		Encodings:         make(map[DataSeries]codec.Encoding),
		TagEncodings:      make(map[TagID]codec.Encoding),
		compressions:      make(map[int32]blockCompression),
	}

	gzipLevel := strategy.GzipCompressionLevel

	h.putExternal(AP, block.Rans4x8, 0)
	h.putExternal(BA, block.Rans4x8, 1)
	h.putExternal(BF, block.Rans4x8, 1)
	h.putExternal(BS, block.Gzip, gzipLevel)
	h.putExternal(CF, block.Rans4x8, 1)
	h.putExternal(DL, block.Gzip, gzipLevel)
	h.putExternal(FC, block.Gzip, gzipLevel)
	h.putExternal(FN, block.Gzip, gzipLevel)
	h.putExternal(FP, block.Gzip, gzipLevel)
	h.putExternal(HC, block.Gzip, gzipLevel)
	h.putByteArrayStop(IN, block.Gzip, gzipLevel)
	h.putExternal(MF, block.Gzip, gzipLevel)
	h.putExternal(MQ, block.Gzip, gzipLevel)
	h.putExternal(NF, block.Gzip, gzipLevel)
	h.putExternal(NP, block.Gzip, gzipLevel)
	h.putExternal(NS, block.Rans4x8, 1)
	h.putExternal(PD, block.Gzip, gzipLevel)
	h.putExternal(QS, block.Rans4x8, 1)
	h.putExternal(RG, block.Rans4x8, 1)
	h.putExternal(RI, block.Rans4x8, 0)
	h.putExternal(RL, block.Rans4x8, 1)
	if strategy.PreserveReadNames {
		h.putByteArrayStop(RN, block.Gzip, gzipLevel)
	}
	h.putExternal(RS, block.Gzip, gzipLevel)
	h.putByteArrayStop(SC, block.Gzip, gzipLevel)
	h.putExternal(TL, block.Gzip, gzipLevel)
	h.putExternal(TS, block.Rans4x8, 1)

	return h
}

func (h *CompressionHeader) putExternal(s DataSeries, method block.Method, arg int) {
	h.Encodings[s] = &codec.External{ContentID: s.ContentID()}
	h.compressions[s.ContentID()] = blockCompression{method, arg}
}

// Soft clips, insertions, and read names are byte arrays without a
// usable length series of their own; they are stored tab-terminated.
func (h *CompressionHeader) putByteArrayStop(s DataSeries, method block.Method, arg int) {
	h.Encodings[s] = &codec.ByteArrayStop{Stop: '\t', ContentID: s.ContentID()}
	h.compressions[s.ContentID()] = blockCompression{method, arg}
}

// AddTagEncoding declares the encoding for one tag's values together
// with the compression of the tag's block. The tag's packed content ID
// must not collide with a data series content ID.
func (h *CompressionHeader) AddTagEncoding(tag TagID, method block.Method, arg int, e codec.Encoding) error {
	if id := tag.ContentID(); id >= int32(BF) && id <= int32(QS) {
		return cram.DomainViolationf("tag content ID %d overlaps a data series", id)
	}
	h.TagEncodings[tag] = e
	h.compressions[tag.ContentID()] = blockCompression{method, arg}
	return nil
}

// FixedSizeTagEncoding encodes tag values that are all size bytes
// long: the size is part of the descriptor, and the bytes go to the
// tag's block.
func FixedSizeTagEncoding(tag TagID, size int32) codec.Encoding {
	return &codec.ByteArrayLen{
		Lengths: &codec.Huffman{Values: []int32{size}, BitLengths: []int32{0}},
		Values:  &codec.External{ContentID: tag.ContentID()},
	}
}

// VariableSizeTagEncoding encodes tag values of varying size: each
// value's length and bytes are interleaved in the tag's block.
func VariableSizeTagEncoding(tag TagID) codec.Encoding {
	return &codec.ByteArrayLen{
		Lengths: &codec.External{ContentID: tag.ContentID()},
		Values:  &codec.External{ContentID: tag.ContentID()},
	}
}

// BlockCompression returns the compression method chosen for the
// external block with the given content ID, defaulting to gzip for
// content the header holds no choice for.
func (h *CompressionHeader) BlockCompression(contentID int32) (block.Method, int) {
	if c, ok := h.compressions[contentID]; ok {
		return c.method, c.arg
	}
	return block.Gzip, block.NoArg
}

// SetBlockCompression overrides the compression method for the
// external block with the given content ID.
func (h *CompressionHeader) SetBlockCompression(contentID int32, method block.Method, arg int) {
	h.compressions[contentID] = blockCompression{method, arg}
}

// BestCompression trial-compresses data with the general-purpose
// methods (gzip at the strategy's level, and rANS 4x8 in both orders)
// and returns the method that yields the smallest block.
func BestCompression(cache *block.Cache, strategy *EncodingStrategy, data []byte) (block.Method, int, error) {
	best, bestArg, bestLen := block.Gzip, strategy.GzipCompressionLevel, -1
	scratch := internal.ReserveByteBuffer()
	defer func() { internal.ReleaseByteBuffer(scratch) }()
	for _, c := range []blockCompression{
		{block.Gzip, strategy.GzipCompressionLevel},
		{block.Rans4x8, 0},
		{block.Rans4x8, 1},
	} {
		compressor, err := cache.CompressorFor(c.method, c.arg)
		if err != nil {
			return 0, 0, err
		}
		compressed, err := compressor.Compress(data, scratch[:0])
		if err != nil {
			return 0, 0, err
		}
		scratch = compressed
		if bestLen < 0 || len(compressed) < bestLen {
			best, bestArg, bestLen = c.method, c.arg, len(compressed)
		}
	}
	return best, bestArg, nil
}

// ReadCompressionHeader reads a compression header block from r.
func ReadCompressionHeader(version cram.Version, r io.Reader, cache *block.Cache) (h *CompressionHeader, err error) {
	defer cram.Recover(&err)
	b, err := block.Read(version, r)
	if err != nil {
		return nil, err
	}
	if b.ContentType != block.CompressionHeader {
		return nil, cram.Malformedf("compression header block expected, found a %v block", b.ContentType)
	}
	content, err := b.UncompressedContent(cache)
	if err != nil {
		return nil, err
	}
	return parseCompressionHeader(&internal.Reader{Data: content}), nil
}

// Write serializes the header and writes it to w as a raw compression
// header block.
func (h *CompressionHeader) Write(version cram.Version, w io.Writer) error {
	b, err := block.New(block.CompressionHeader, h.appendBinary(nil))
	if err != nil {
		return err
	}
	return b.Write(version, w)
}

const (
	preserveReadNamesKey  = "RN"
	apDeltaKey            = "AP"
	referenceRequiredKey  = "RR"
	substitutionMatrixKey = "SM"
	tagDictionaryKey      = "TD"
)

func parseCompressionHeader(r *internal.Reader) *CompressionHeader {
	h := &CompressionHeader{
		// The flags default to true and apply even when the
		// preservation map leaves them out.
		PreserveReadNames: true,
		APDelta:           true,
		ReferenceRequired: true,
		Encodings:         make(map[DataSeries]codec.Encoding),
		TagEncodings:      make(map[TagID]codec.Encoding),
		compressions:      make(map[int32]blockCompression),
	}

	p := subMap(r)
	var sawDictionary bool
	for i, n := int32(0), p.ITF8(); i < n; i++ {
		switch key := string(p.Bytes(2)); key {
		case preserveReadNamesKey:
			h.PreserveReadNames = p.U8() == 1
		case apDeltaKey:
			h.APDelta = p.U8() == 1
		case referenceRequiredKey:
			h.ReferenceRequired = p.U8() == 1
		case substitutionMatrixKey:
			h.Substitutions = DecodeSubstitutionMatrix(p.Bytes(5))
		case tagDictionaryKey:
			h.TagDictionary = parseTagDictionary(p.Bytes(int(checkSize(p.ITF8()))))
			sawDictionary = true
		default:
			panic(cram.Malformedf("unknown preservation map key %q", key))
		}
	}
	if h.Substitutions == nil || !sawDictionary {
		panic(cram.Malformedf("compression header without a substitution matrix or tag dictionary"))
	}

	p = subMap(r)
	for i, n := int32(0), p.ITF8(); i < n; i++ {
		name := string(p.Bytes(2))
		series, err := ParseDataSeries(name)
		if err != nil {
			panic(err)
		}
		e := codec.ReadEncoding(p)
		if series.Obsolete() {
			continue
		}
		h.Encodings[series] = e
	}

	p = subMap(r)
	for i, n := int32(0), p.ITF8(); i < n; i++ {
		tag := TagID(p.ITF8())
		h.TagEncodings[tag] = codec.ReadEncoding(p)
	}

	return h
}

func (h *CompressionHeader) appendBinary(p []byte) []byte {
	var m []byte
	m = varint.AppendITF8(m, 5)
	m = append(m, preserveReadNamesKey...)
	m = append(m, boolByte(h.PreserveReadNames))
	m = append(m, apDeltaKey...)
	m = append(m, boolByte(h.APDelta))
	m = append(m, referenceRequiredKey...)
	m = append(m, boolByte(h.ReferenceRequired))
	m = append(m, substitutionMatrixKey...)
	matrix := h.Substitutions.Encoded()
	m = append(m, matrix[:]...)
	m = append(m, tagDictionaryKey...)
	dictionary := appendTagDictionary(nil, h.TagDictionary)
	m = varint.AppendITF8(m, int32(len(dictionary)))
	m = append(m, dictionary...)
	p = appendSubMap(p, m)

	series := make([]DataSeries, 0, len(h.Encodings))
	for s := range h.Encodings {
		series = append(series, s)
	}
	sort.Slice(series, func(i, j int) bool { return series[i] < series[j] })
	m = varint.AppendITF8(m[:0], int32(len(series)))
	for _, s := range series {
		m = append(m, dataSeriesNames[s]...)
		m = codec.AppendEncoding(m, h.Encodings[s])
	}
	p = appendSubMap(p, m)

	tags := make([]TagID, 0, len(h.TagEncodings))
	for t := range h.TagEncodings {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	m = varint.AppendITF8(m[:0], int32(len(tags)))
	for _, t := range tags {
		m = varint.AppendITF8(m, int32(t))
		m = codec.AppendEncoding(m, h.TagEncodings[t])
	}
	return appendSubMap(p, m)
}

// subMap reads one ITF8-framed map and returns a cursor over its
// bytes, so that a malformed map cannot run into its neighbors.
func subMap(r *internal.Reader) *internal.Reader {
	return &internal.Reader{Data: r.Bytes(int(checkSize(r.ITF8())))}
}

func appendSubMap(p, m []byte) []byte {
	p = varint.AppendITF8(p, int32(len(m)))
	return append(p, m...)
}

func checkSize(n int32) int32 {
	if n < 0 {
		panic(cram.Malformedf("negative size %d in a compression header", n))
	}
	return n
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// parseTagDictionary splits the serialized dictionary into tag
// combinations: three bytes per tag, each combination terminated by a
// zero byte.
func parseTagDictionary(p []byte) [][]TagID {
	var dictionary [][]TagID
	var line []TagID
	for i := 0; i < len(p); {
		if p[i] == 0 {
			dictionary = append(dictionary, line)
			line = nil
			i++
			continue
		}
		if i+3 > len(p) {
			panic(cram.Malformedf("truncated tag dictionary"))
		}
		line = append(line, TagID(int32(p[i])<<16|int32(p[i+1])<<8|int32(p[i+2])))
		i += 3
	}
	if line != nil {
		panic(cram.Malformedf("unterminated tag dictionary"))
	}
	return dictionary
}

func appendTagDictionary(p []byte, dictionary [][]TagID) []byte {
	for _, line := range dictionary {
		for _, tag := range line {
			p = append(p, byte(tag>>16), byte(tag>>8), byte(tag))
		}
		p = append(p, 0)
	}
	return p
}
