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

// Package block implements the framing of CRAM blocks, the atomic
// compressed units of the container format, together with the
// compression methods a block's content can be stored under.
//
// A block declares its compression method, content type, and sizes in
// a small header; version 3 streams protect the frame with a trailing
// CRC32 checksum. The compressors and decompressors for the individual
// methods are handed out by a Cache, so that the blocks of one stream
// reuse them; independent streams hold independent caches and do not
// interfere with each other.
package block

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/exascience/cram"
	"github.com/exascience/cram/internal"
	"github.com/exascience/cram/varint"
)

// Method identifies the compression applied to a block's content.
type Method byte

// The block compression methods of the CRAM format, in wire order.
const (
	Raw Method = iota
	Gzip
	Bzip2
	Lzma
	Rans4x8
	RansNx16
	Range
	FQZComp
	NameTokeniser
)

func (m Method) String() string {
	switch m {
	case Raw:
		return "raw"
	case Gzip:
		return "gzip"
	case Bzip2:
		return "bzip2"
	case Lzma:
		return "lzma"
	case Rans4x8:
		return "rans-4x8"
	case RansNx16:
		return "rans-nx16"
	case Range:
		return "range"
	case FQZComp:
		return "fqzcomp"
	case NameTokeniser:
		return "name-tokeniser"
	default:
		return fmt.Sprintf("method %d", byte(m))
	}
}

// ContentType identifies what a block's content means to the
// surrounding container.
type ContentType byte

// The block content types of the CRAM format, in wire order.
const (
	FileHeader ContentType = iota
	CompressionHeader
	MappedSlice
	Reserved
	External
	Core
)

func (t ContentType) String() string {
	switch t {
	case FileHeader:
		return "file-header"
	case CompressionHeader:
		return "compression-header"
	case MappedSlice:
		return "mapped-slice"
	case Reserved:
		return "reserved"
	case External:
		return "external"
	case Core:
		return "core"
	default:
		return fmt.Sprintf("content type %d", byte(t))
	}
}

/*
A Block is the atomic compressed unit of a CRAM stream. Its content is
held in the compressed form that goes on the wire; UncompressedContent
restores the original bytes.

The content ID binds an external block to the data series of the
enclosing compression header. Only external blocks carry one; all
other content types require a content ID of zero, which the
constructors and Write enforce.
*/
type Block struct {
	Method            Method
	ContentType       ContentType
	ContentID         int32
	CompressedContent []byte
	UncompressedSize  int32
}

// New creates a block of the given content type holding content as is,
// with no compression applied. External blocks carry a content ID and
// are created with NewExternal instead.
func New(contentType ContentType, content []byte) (*Block, error) {
	if contentType == External {
		return nil, cram.DomainViolationf("external blocks need a content ID")
	}
	return &Block{
		Method:            Raw,
		ContentType:       contentType,
		CompressedContent: content,
		UncompressedSize:  int32(len(content)),
	}, nil
}

// NewExternal creates an external data block from content already in
// its on-wire compressed form.
func NewExternal(method Method, contentID int32, compressed []byte, uncompressedSize int) (*Block, error) {
	if contentID < 0 {
		return nil, cram.DomainViolationf("negative content ID %d for an external block", contentID)
	}
	return &Block{
		Method:            method,
		ContentType:       External,
		ContentID:         contentID,
		CompressedContent: compressed,
		UncompressedSize:  int32(uncompressedSize),
	}, nil
}

// CompressExternal compresses content with the given method and
// method parameter and wraps the result in an external block carrying
// the given content ID. See Cache.CompressorFor for the meaning of
// arg.
func CompressExternal(cache *Cache, method Method, arg int, contentID int32, content []byte) (*Block, error) {
	compressor, err := cache.CompressorFor(method, arg)
	if err != nil {
		return nil, err
	}
	compressed, err := compressor.Compress(content, nil)
	if err != nil {
		return nil, err
	}
	return NewExternal(method, contentID, compressed, len(content))
}

// NewFileHeader compresses a serialized header text with gzip and
// wraps it in a file header block.
func NewFileHeader(cache *Cache, header []byte) (*Block, error) {
	compressor, err := cache.CompressorFor(Gzip, NoArg)
	if err != nil {
		return nil, err
	}
	compressed, err := compressor.Compress(header, nil)
	if err != nil {
		return nil, err
	}
	return &Block{
		Method:            Gzip,
		ContentType:       FileHeader,
		CompressedContent: compressed,
		UncompressedSize:  int32(len(header)),
	}, nil
}

// UncompressedContent restores the block's content, pulling the
// decompressor for the block's method from the cache. The result must
// match the uncompressed size the block header declares.
func (b *Block) UncompressedContent(cache *Cache) ([]byte, error) {
	decompressor, err := cache.DecompressorFor(b.Method)
	if err != nil {
		return nil, err
	}
	content := make([]byte, b.UncompressedSize)
	if err := decompressor.Decompress(b.CompressedContent, content); err != nil {
		return nil, err
	}
	return content, nil
}

// Read reads one block from r: method, content type, content ID,
// compressed and uncompressed sizes as ITF8, then the compressed
// content. For version 3 and later, the preceding bytes are covered by
// a trailing little-endian CRC32 checksum, and a mismatch is an error.
func Read(version cram.Version, r io.Reader) (b *Block, err error) {
	defer cram.Recover(&err)
	cr := internal.NewCRC32Reader(r)
	method := Method(internal.ReadByte(cr))
	if method > NameTokeniser {
		return nil, cram.Malformedf("unknown compression method id %d", byte(method))
	}
	contentType := ContentType(internal.ReadByte(cr))
	if contentType > Core {
		return nil, cram.Malformedf("unknown content type id %d", byte(contentType))
	}
	contentID := readITF8(cr)
	compressedSize := readITF8(cr)
	uncompressedSize := readITF8(cr)
	if compressedSize < 0 || uncompressedSize < 0 {
		return nil, cram.Malformedf("%v block declares sizes %d/%d", contentType, compressedSize, uncompressedSize)
	}
	if contentType != External && contentID != 0 {
		return nil, cram.Malformedf("content ID %d on a %v block", contentID, contentType)
	}
	content := make([]byte, compressedSize)
	internal.ReadFull(cr, content)
	if version.AtLeast(cram.V3_0) {
		sum := cr.Sum()
		var trail [4]byte
		internal.ReadFull(cr, trail[:])
		if stored := binary.LittleEndian.Uint32(trail[:]); stored != sum {
			return nil, cram.Malformedf("block CRC32 mismatch: stored %08x, computed %08x", stored, sum)
		}
	}
	return &Block{
		Method:            method,
		ContentType:       contentType,
		ContentID:         contentID,
		CompressedContent: content,
		UncompressedSize:  uncompressedSize,
	}, nil
}

// Write writes the block to w, appending the CRC32 trailer for version
// 3 and later.
func (b *Block) Write(version cram.Version, w io.Writer) (err error) {
	defer cram.Recover(&err)
	if b.ContentType != External && b.ContentID != 0 {
		return cram.DomainViolationf("content ID %d on a %v block", b.ContentID, b.ContentType)
	}
	if b.UncompressedSize < 0 {
		return cram.DomainViolationf("%v block declares uncompressed size %d", b.ContentType, b.UncompressedSize)
	}
	cw := internal.NewCRC32Writer(w)
	p := make([]byte, 0, 2+3*varint.MaxLenITF8)
	p = append(p, byte(b.Method), byte(b.ContentType))
	p = varint.AppendITF8(p, b.ContentID)
	p = varint.AppendITF8(p, int32(len(b.CompressedContent)))
	p = varint.AppendITF8(p, b.UncompressedSize)
	internal.WriteFull(cw, p)
	internal.WriteFull(cw, b.CompressedContent)
	if version.AtLeast(cram.V3_0) {
		var trail [4]byte
		binary.LittleEndian.PutUint32(trail[:], cw.Sum())
		internal.WriteFull(w, trail[:])
	}
	return nil
}

func (b *Block) String() string {
	return fmt.Sprintf("%v %v block, content id %d, %d bytes (%d uncompressed)",
		b.Method, b.ContentType, b.ContentID, len(b.CompressedContent), b.UncompressedSize)
}

func readITF8(r io.ByteReader) int32 {
	v, err := varint.ReadITF8(r)
	if err != nil {
		panic(cram.Malformedf("block header: %v", err))
	}
	return v
}
