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

/*
Package container implements the container layer of the CRAM format:
compression headers, slices, and the containers that frame them,
together with the end-of-file marker and the special first container
that carries the SAM header text.

A CRAM stream is a file definition followed by the header container,
any number of data containers, and an end-of-file container. Each data
container holds one compression header block and one or more slices;
each slice holds a core bitstream block and external byte blocks. The
codec package interprets those blocks; this package only frames them.
*/
package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/exascience/cram"
	"github.com/exascience/cram/block"
	"github.com/exascience/cram/internal"
	"github.com/exascience/cram/ref"
	"github.com/exascience/cram/varint"
)

/*
A Header introduces one container: the byte size of the container body
(everything after the header), the placement of the container's
records, their counts, and the landmarks, which are the byte offsets
of the slice header blocks measured from the end of the container
header. Version 3 streams append a little-endian CRC32 of the header
bytes.
*/
type Header struct {
	BlocksByteSize      int32
	AlignmentContext    AlignmentContext
	RecordCount         int32
	GlobalRecordCounter int64
	BaseCount           int64
	BlockCount          int32
	Landmarks           []int32

	// Checksum is the CRC32 stored alongside the header in version 3
	// streams. Like the reference implementations, the reader records
	// it without verifying, so that streams rewritten by tools that do
	// not maintain it stay readable; block checksums are verified.
	Checksum uint32
}

// Container body sizes of the fixed end-of-file markers.
const (
	eofBlocksByteSizeV3 = 15
	eofBlocksByteSizeV2 = 11
)

// ReadHeader reads a container header from r. It returns io.EOF when
// the stream ends cleanly before the header's first byte.
func ReadHeader(version cram.Version, r io.Reader) (h *Header, err error) {
	defer cram.Recover(&err)
	cr := internal.NewCRC32Reader(r)

	var size [4]byte
	if _, rerr := io.ReadFull(cr, size[:]); rerr == io.EOF {
		return nil, io.EOF
	} else if rerr != nil {
		panic(cram.Malformedf("container header: %v", rerr))
	}

	h = &Header{BlocksByteSize: int32(binary.LittleEndian.Uint32(size[:]))}
	h.AlignmentContext = AlignmentContext{
		ReferenceContext: readReferenceContext(cr),
		Start:            readITF8(cr),
		Span:             readITF8(cr),
	}
	h.RecordCount = readITF8(cr)
	h.GlobalRecordCounter = readLTF8(cr)
	h.BaseCount = readLTF8(cr)
	h.BlockCount = readITF8(cr)
	h.Landmarks = readIntArrayFrom(cr)
	if version.AtLeast(cram.V3_0) {
		var trail [4]byte
		internal.ReadFull(r, trail[:])
		h.Checksum = binary.LittleEndian.Uint32(trail[:])
	}
	return h, nil
}

// Write writes the container header to w, with the CRC32 trailer for
// version 3 and later.
func (h *Header) Write(version cram.Version, w io.Writer) (err error) {
	defer cram.Recover(&err)
	cw := internal.NewCRC32Writer(w)

	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(h.BlocksByteSize))
	internal.WriteFull(cw, size[:])

	var p []byte
	p = varint.AppendITF8(p, h.AlignmentContext.ReferenceContext.ID())
	p = varint.AppendITF8(p, h.AlignmentContext.Start)
	p = varint.AppendITF8(p, h.AlignmentContext.Span)
	p = varint.AppendITF8(p, h.RecordCount)
	p = varint.AppendLTF8(p, h.GlobalRecordCounter)
	p = varint.AppendLTF8(p, h.BaseCount)
	p = varint.AppendITF8(p, h.BlockCount)
	p = appendIntArray(p, h.Landmarks)
	internal.WriteFull(cw, p)

	if version.AtLeast(cram.V3_0) {
		var trail [4]byte
		binary.LittleEndian.PutUint32(trail[:], cw.Sum())
		internal.WriteFull(w, trail[:])
	}
	return nil
}

// IsEOF reports whether the header introduces an end-of-file marker
// container, in either its version 3 or version 2 shape.
func (h *Header) IsEOF() bool {
	marker := h.AlignmentContext.ReferenceContext.IsUnmappedUnplaced() &&
		h.AlignmentContext.Start == EOFAlignmentStart &&
		h.BlockCount == 1 && h.RecordCount == 0
	return marker &&
		(h.BlocksByteSize == eofBlocksByteSizeV3 || h.BlocksByteSize == eofBlocksByteSizeV2)
}

func (h *Header) String() string {
	return fmt.Sprintf("%v, records %d, blocks %d, bases %d, global counter %d",
		h.AlignmentContext, h.RecordCount, h.BlockCount, h.BaseCount, h.GlobalRecordCounter)
}

// The end-of-file markers are fixed byte sequences: an empty container
// whose alignment start spells "EOF", holding a single raw compression
// header block with empty maps. Version 3 includes the CRC32 trailers.
var (
	eofMarkerV3 = []byte{
		0x0f, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0xff, 0x0f, 0xe0,
		0x45, 0x4f, 0x46, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x05,
		0xbd, 0xd9, 0x4f, 0x00, 0x01, 0x00, 0x06, 0x06, 0x01, 0x00,
		0x01, 0x00, 0x01, 0x00, 0xee, 0x63, 0x01, 0x4b,
	}
	eofMarkerV2 = []byte{
		0x0b, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0xe0,
		0x45, 0x4f, 0x46, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00,
		0x01, 0x00, 0x06, 0x06, 0x01, 0x00, 0x01, 0x00, 0x01, 0x00,
	}
)

// WriteEOF writes the end-of-file marker container for the version.
func WriteEOF(version cram.Version, w io.Writer) (err error) {
	defer cram.Recover(&err)
	if version.AtLeast(cram.V3_0) {
		internal.WriteFull(w, eofMarkerV3)
	} else {
		internal.WriteFull(w, eofMarkerV2)
	}
	return nil
}

/*
A Container frames a compression header and the slices it governs. An
end-of-file container has neither: only its header goes on the wire.
*/
type Container struct {
	Header            *Header
	CompressionHeader *CompressionHeader
	Slices            []*Slice
}

// NewContainer derives a container from its slices. All slices must
// share a reference context; slices on different single references
// cannot be mixed, they belong in multiple-reference slices instead.
// The container's placement and counts aggregate the slices'.
func NewContainer(compressionHeader *CompressionHeader, slices []*Slice, globalRecordCounter int64) (*Container, error) {
	if len(slices) == 0 {
		return nil, cram.DomainViolationf("container without slices")
	}

	common := slices[0].AlignmentContext.ReferenceContext
	for _, s := range slices[1:] {
		if s.AlignmentContext.ReferenceContext != common {
			common = ref.MultipleReference
			break
		}
	}
	context, err := deriveAlignmentContext(common, slices)
	if err != nil {
		return nil, err
	}

	var recordCount, blockCount int32
	var baseCount int64
	for _, s := range slices {
		recordCount += s.Records
		blockCount += s.Blocks.Count()
		baseCount += s.BaseCount
	}

	c := &Container{
		Header: &Header{
			AlignmentContext:    context,
			RecordCount:         recordCount,
			GlobalRecordCounter: globalRecordCounter,
			BaseCount:           baseCount,
			BlockCount:          blockCount,
		},
		CompressionHeader: compressionHeader,
		Slices:            slices,
	}
	if err := c.checkSliceReferenceContexts(); err != nil {
		return nil, err
	}
	return c, nil
}

func deriveAlignmentContext(common ref.Context, slices []*Slice) (AlignmentContext, error) {
	switch {
	case common.IsSingleReference():
		start, endPlusOne := int32(math.MaxInt32), int32(math.MinInt32)
		for _, s := range slices {
			if s.AlignmentContext.Start < start {
				start = s.AlignmentContext.Start
			}
			if end := s.AlignmentContext.Start + s.AlignmentContext.Span; end > endPlusOne {
				endPlusOne = end
			}
		}
		return NewAlignmentContext(common, start, endPlusOne-start)
	case common.IsUnmappedUnplaced():
		return UnmappedUnplacedContext, nil
	default:
		return MultipleReferenceContext, nil
	}
}

// A multiple-reference container may only hold multiple-reference
// slices.
func (c *Container) checkSliceReferenceContexts() error {
	if !c.Header.AlignmentContext.ReferenceContext.IsMultipleReference() {
		return nil
	}
	for _, s := range c.Slices {
		if !s.AlignmentContext.ReferenceContext.IsMultipleReference() {
			return cram.DomainViolationf(
				"%v slice in a multiple-reference container", s.AlignmentContext.ReferenceContext)
		}
	}
	return nil
}

// IsEOF reports whether the container is an end-of-file marker.
func (c *Container) IsEOF() bool {
	return c.Header.IsEOF() && len(c.Slices) == 0
}

// Read reads one container from r: the header, the compression
// header, and one slice per landmark. End-of-file containers are
// consumed entirely and returned with no slices. Read returns io.EOF
// when the stream ends cleanly before a container.
func Read(version cram.Version, r io.Reader, cache *block.Cache) (c *Container, err error) {
	defer cram.Recover(&err)

	h, err := ReadHeader(version, r)
	if err != nil {
		return nil, err
	}
	if h.IsEOF() {
		internal.ReadFull(r, make([]byte, h.BlocksByteSize))
		return &Container{Header: h}, nil
	}

	compressionHeader, err := ReadCompressionHeader(version, r, cache)
	if err != nil {
		return nil, err
	}
	slices := make([]*Slice, len(h.Landmarks))
	for i := range slices {
		if slices[i], err = ReadSlice(version, r, cache); err != nil {
			return nil, err
		}
	}

	c = &Container{Header: h, CompressionHeader: compressionHeader, Slices: slices}
	c.distributeIndexingParameters()
	if err := c.checkSliceReferenceContexts(); err != nil {
		return nil, cram.Malformedf("%v", err)
	}
	return c, nil
}

// Write writes the container to w. The container body is assembled
// first, because the header declares the body size and the landmarks,
// which are only known once the compression header and the slices are
// serialized.
func (c *Container) Write(version cram.Version, w io.Writer) (err error) {
	defer cram.Recover(&err)

	var body bytes.Buffer
	if err := c.CompressionHeader.Write(version, &body); err != nil {
		return err
	}
	landmarks := make([]int32, 0, len(c.Slices))
	for _, s := range c.Slices {
		landmarks = append(landmarks, int32(body.Len()))
		if err := s.Write(version, &body); err != nil {
			return err
		}
	}
	c.Header.Landmarks = landmarks
	c.Header.BlocksByteSize = int32(body.Len())
	c.distributeIndexingParameters()

	if err := c.Header.Write(version, w); err != nil {
		return err
	}
	internal.WriteFull(w, body.Bytes())
	return nil
}

// distributeIndexingParameters assigns each slice its landmark index,
// its byte offset from the end of the container header, and its byte
// size, the last slice ending where the container body does.
func (c *Container) distributeIndexingParameters() {
	last := len(c.Slices) - 1
	for i, s := range c.Slices {
		s.LandmarkIndex = i
		s.ByteOffset = c.Header.Landmarks[i]
		if i < last {
			s.ByteSize = c.Header.Landmarks[i+1] - s.ByteOffset
		} else {
			s.ByteSize = c.Header.BlocksByteSize - s.ByteOffset
		}
	}
}

func (c *Container) String() string {
	return fmt.Sprintf("%v, slices %d", c.Header, len(c.Slices))
}

// ReadFileHeaderText reads the header container that precedes all
// data containers and returns the SAM header text it stores.
func ReadFileHeaderText(version cram.Version, r io.Reader) (text []byte, err error) {
	defer cram.Recover(&err)

	h, err := ReadHeader(version, r)
	if err != nil {
		return nil, err
	}
	var b *block.Block
	if version.AtLeast(cram.V3_0) {
		// Read the whole container body and parse only its first
		// block; writers pad the header container with expansion
		// room for in-place header replacement.
		body := make([]byte, h.BlocksByteSize)
		internal.ReadFull(r, body)
		b, err = block.Read(version, bytes.NewReader(body))
	} else {
		// Version 2 files in the wild declare header container sizes
		// slightly smaller than their actual header block, so trust
		// the block framing instead of the container size.
		b, err = block.Read(version, r)
	}
	if err != nil {
		return nil, err
	}
	if b.ContentType != block.FileHeader {
		return nil, cram.Malformedf("file header block expected, found a %v block", b.ContentType)
	}
	content, err := b.UncompressedContent(block.NewCache())
	if err != nil {
		return nil, err
	}

	p := &internal.Reader{Data: content}
	n := int32(p.U32())
	if n < 0 || int(n) > p.Remaining() {
		return nil, cram.Malformedf("header text of %d bytes in a block of %d", n, len(content))
	}
	return append([]byte(nil), p.Bytes(int(n))...), nil
}

// WriteFileHeaderText writes the header container. The header block
// is stored raw, padded to half as much again as the text needs, so
// that the reserved bytes survive on the wire and a grown header can
// later be replaced without rewriting the whole stream.
func WriteFileHeaderText(version cram.Version, w io.Writer, text []byte) (err error) {
	defer cram.Recover(&err)

	b, err := fileHeaderBlock(text)
	if err != nil {
		return err
	}
	var body bytes.Buffer
	if err := b.Write(version, &body); err != nil {
		return err
	}

	h := &Header{
		BlocksByteSize:   int32(body.Len()),
		AlignmentContext: UnmappedUnplacedContext,
		BlockCount:       1,
	}
	if err := h.Write(version, w); err != nil {
		return err
	}
	internal.WriteFull(w, body.Bytes())
	return nil
}

func fileHeaderBlock(text []byte) (*block.Block, error) {
	content := make([]byte, 4+len(text))
	binary.LittleEndian.PutUint32(content, uint32(len(text)))
	copy(content[4:], text)
	padded := len(content) + len(content)/2
	if padded < 1024 {
		padded = 1024
	}
	content = append(content, make([]byte, padded-len(content))...)
	return block.New(block.FileHeader, content)
}

// ReplaceFileHeaderText overwrites the SAM header text of an existing
// file in place. The header block must be stored raw, and the new
// text must fit in the content space the original block reserved; the
// replacement block reuses that space exactly, so the container
// framing is untouched.
func ReplaceFileHeaderText(filename string, text []byte) (err error) {
	defer cram.Recover(&err)

	f, err := os.OpenFile(filename, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer internal.Close(f)

	in := &countingReader{r: f}
	def, err := cram.ReadFileDefinition(in)
	if err != nil {
		return err
	}
	if _, err := ReadHeader(def.Version, in); err != nil {
		return err
	}
	offset := in.n

	old, err := block.Read(def.Version, in)
	if err != nil {
		return err
	}
	if old.ContentType != block.FileHeader {
		return cram.Malformedf("file header block expected, found a %v block", old.ContentType)
	}
	if old.Method != block.Raw {
		return cram.DomainViolationf(
			"header block is stored %v, not raw, and cannot be replaced in place", old.Method)
	}
	if 4+len(text) > len(old.CompressedContent) {
		return cram.DomainViolationf(
			"new header text of %d bytes does not fit the reserved %d bytes",
			4+len(text), len(old.CompressedContent))
	}

	content := make([]byte, len(old.CompressedContent))
	binary.LittleEndian.PutUint32(content, uint32(len(text)))
	copy(content[4:], text)
	b, err := block.New(block.FileHeader, content)
	if err != nil {
		return err
	}
	var body bytes.Buffer
	if err := b.Write(def.Version, &body); err != nil {
		return err
	}
	// The content length matches the old block, so the block framing
	// serializes to the same wire size and the write stays in place.
	_, err = f.WriteAt(body.Bytes(), offset)
	return err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func readReferenceContext(r io.ByteReader) ref.Context {
	context, err := ref.NewContext(readITF8(r))
	if err != nil {
		panic(err)
	}
	return context
}

func readITF8(r io.ByteReader) int32 {
	v, err := varint.ReadITF8(r)
	if err != nil {
		panic(cram.Malformedf("container header: %v", err))
	}
	return v
}

func readLTF8(r io.ByteReader) int64 {
	v, err := varint.ReadLTF8(r)
	if err != nil {
		panic(cram.Malformedf("container header: %v", err))
	}
	return v
}

// readIntArrayFrom reads an ITF8-framed integer array from a stream:
// the count followed by the values.
func readIntArrayFrom(r io.ByteReader) []int32 {
	n := readITF8(r)
	if n < 0 {
		panic(cram.Malformedf("integer array of length %d", n))
	}
	vals := make([]int32, n)
	for i := range vals {
		vals[i] = readITF8(r)
	}
	return vals
}

// readIntArray is readIntArrayFrom over an in-memory cursor.
func readIntArray(p *internal.Reader) []int32 {
	n := p.ITF8()
	if n < 0 {
		panic(cram.Malformedf("integer array of length %d", n))
	}
	vals := make([]int32, n)
	for i := range vals {
		vals[i] = p.ITF8()
	}
	return vals
}

func appendIntArray(p []byte, vals []int32) []byte {
	p = varint.AppendITF8(p, int32(len(vals)))
	for _, v := range vals {
		p = varint.AppendITF8(p, v)
	}
	return p
}
