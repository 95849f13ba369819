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
	"bytes"
	"io"

	"github.com/exascience/cram"
	"github.com/exascience/cram/block"
	"github.com/exascience/cram/internal"
	"github.com/exascience/cram/ref"
	"github.com/exascience/cram/varint"
)

// SliceBlocks holds the data blocks of one slice: exactly one core
// block plus any number of external blocks keyed by content ID. The
// external blocks keep their insertion order, so a slice read from a
// stream writes its blocks back in the original order.
type SliceBlocks struct {
	core        *block.Block
	external    map[int32]*block.Block
	externalIDs []int32
}

func NewSliceBlocks() *SliceBlocks {
	return &SliceBlocks{external: make(map[int32]*block.Block)}
}

// SetCore sets the core block.
func (sb *SliceBlocks) SetCore(b *block.Block) error {
	if b.ContentType != block.Core {
		return cram.DomainViolationf("%v block used as a core block", b.ContentType)
	}
	sb.core = b
	return nil
}

// Core returns the core block, or nil if none has been set.
func (sb *SliceBlocks) Core() *block.Block {
	return sb.core
}

// AddExternal adds an external block. Each content ID can occur only
// once per slice.
func (sb *SliceBlocks) AddExternal(b *block.Block) error {
	if b.ContentType != block.External {
		return cram.DomainViolationf("%v block used as an external block", b.ContentType)
	}
	if _, ok := sb.external[b.ContentID]; ok {
		return cram.DomainViolationf("duplicate external block with content ID %d", b.ContentID)
	}
	sb.external[b.ContentID] = b
	sb.externalIDs = append(sb.externalIDs, b.ContentID)
	return nil
}

// External returns the external block with the given content ID, or
// nil if the slice has none.
func (sb *SliceBlocks) External(contentID int32) *block.Block {
	return sb.external[contentID]
}

// ExternalIDs returns the content IDs of the external blocks in
// insertion order.
func (sb *SliceBlocks) ExternalIDs() []int32 {
	return sb.externalIDs
}

// Count returns the number of blocks: the core block plus the
// external blocks.
func (sb *SliceBlocks) Count() int32 {
	return 1 + int32(len(sb.externalIDs))
}

func readSliceBlocks(version cram.Version, count int32, r io.Reader) *SliceBlocks {
	if count < 1 {
		panic(cram.Malformedf("slice declares %d blocks", count))
	}
	sb := NewSliceBlocks()
	for i := int32(0); i < count; i++ {
		b, err := block.Read(version, r)
		if err != nil {
			panic(err)
		}
		switch b.ContentType {
		case block.Core:
			if sb.core != nil {
				panic(cram.Malformedf("slice with more than one core block"))
			}
			sb.core = b
		case block.External:
			if err := sb.AddExternal(b); err != nil {
				panic(err)
			}
		default:
			panic(cram.Malformedf("%v block inside a slice", b.ContentType))
		}
	}
	if sb.core == nil {
		panic(cram.Malformedf("slice without a core block"))
	}
	return sb
}

// Write writes the core block followed by the external blocks.
func (sb *SliceBlocks) Write(version cram.Version, w io.Writer) error {
	if sb.core == nil {
		return cram.DomainViolationf("slice without a core block")
	}
	if err := sb.core.Write(version, w); err != nil {
		return err
	}
	for _, id := range sb.externalIDs {
		if err := sb.external[id].Write(version, w); err != nil {
			return err
		}
	}
	return nil
}

// EmbeddedReferenceAbsent is the content ID a slice header declares
// when no embedded reference block is present.
const EmbeddedReferenceAbsent int32 = -1

// uninitializedIndex marks indexing parameters of a slice that has
// not passed through a container yet.
const uninitializedIndex = -1

/*
A Slice is a run of records compressed as one unit: a slice header
block followed by a core block and external blocks. The compression
header of the enclosing container declares how the blocks are to be
interpreted; the slice itself only knows its placement, counts, and
blocks, so slices of a container can be decoded independently of each
other.
*/
type Slice struct {
	AlignmentContext    AlignmentContext
	Records             int32
	GlobalRecordCounter int64

	// BaseCount is the number of read bases in the slice's records. It
	// is not stored in the slice header; the enclosing container
	// aggregates it.
	BaseCount int64

	// EmbeddedReferenceID is the content ID of the external block
	// holding the reference bases the slice was compressed against, or
	// EmbeddedReferenceAbsent.
	EmbeddedReferenceID int32

	// ReferenceMD5 digests the reference region the slice covers, all
	// zero when there is nothing to digest.
	ReferenceMD5 [16]byte

	// Tags holds the optional slice header tags in BAM binary tag
	// format, round-tripped verbatim.
	Tags []byte

	Blocks *SliceBlocks

	// Indexing parameters, known once the enclosing container's
	// landmarks are known: the position in the container's slice list,
	// the slice header block's offset from the end of the container
	// header, and the byte size of the slice with all its blocks.
	LandmarkIndex int
	ByteOffset    int32
	ByteSize      int32
}

// NewSlice creates a slice over already-encoded blocks.
func NewSlice(context AlignmentContext, blocks *SliceBlocks, records int32, globalRecordCounter, baseCount int64) (*Slice, error) {
	if err := context.Validate(); err != nil {
		return nil, err
	}
	if blocks == nil || blocks.Core() == nil {
		return nil, cram.DomainViolationf("slice without a core block")
	}
	return &Slice{
		AlignmentContext:    context,
		Records:             records,
		GlobalRecordCounter: globalRecordCounter,
		BaseCount:           baseCount,
		EmbeddedReferenceID: EmbeddedReferenceAbsent,
		Blocks:              blocks,
		LandmarkIndex:       uninitializedIndex,
		ByteOffset:          uninitializedIndex,
		ByteSize:            uninitializedIndex,
	}, nil
}

// ReadSlice reads a slice header block and the slice's data blocks
// from r.
func ReadSlice(version cram.Version, r io.Reader, cache *block.Cache) (s *Slice, err error) {
	defer cram.Recover(&err)

	headerBlock, err := block.Read(version, r)
	if err != nil {
		return nil, err
	}
	if headerBlock.ContentType != block.MappedSlice {
		return nil, cram.Malformedf("slice header block expected, found a %v block", headerBlock.ContentType)
	}
	content, err := headerBlock.UncompressedContent(cache)
	if err != nil {
		return nil, err
	}

	p := &internal.Reader{Data: content}
	referenceContext, err := ref.NewContext(p.ITF8())
	if err != nil {
		return nil, err
	}
	s = &Slice{
		EmbeddedReferenceID: EmbeddedReferenceAbsent,
		LandmarkIndex:       uninitializedIndex,
		ByteOffset:          uninitializedIndex,
		ByteSize:            uninitializedIndex,
	}
	s.AlignmentContext = AlignmentContext{
		ReferenceContext: referenceContext,
		Start:            p.ITF8(),
		Span:             p.ITF8(),
	}
	s.Records = p.ITF8()
	s.GlobalRecordCounter = p.LTF8()
	blockCount := p.ITF8()
	readIntArray(p) // declared content IDs; the blocks themselves are authoritative
	s.EmbeddedReferenceID = p.ITF8()
	copy(s.ReferenceMD5[:], p.Bytes(16))
	if version.AtLeast(cram.V3_0) && p.Remaining() > 0 {
		s.Tags = append([]byte(nil), p.Bytes(p.Remaining())...)
	}

	s.Blocks = readSliceBlocks(version, blockCount, r)

	if s.EmbeddedReferenceID != EmbeddedReferenceAbsent && s.Blocks.External(s.EmbeddedReferenceID) == nil {
		return nil, cram.Malformedf("slice declares embedded reference block %d but has no such block", s.EmbeddedReferenceID)
	}
	return s, nil
}

// Write writes the slice header block and the data blocks to w.
func (s *Slice) Write(version cram.Version, w io.Writer) (err error) {
	defer cram.Recover(&err)

	var p []byte
	p = varint.AppendITF8(p, s.AlignmentContext.ReferenceContext.ID())
	p = varint.AppendITF8(p, s.AlignmentContext.Start)
	p = varint.AppendITF8(p, s.AlignmentContext.Span)
	p = varint.AppendITF8(p, s.Records)
	p = varint.AppendLTF8(p, s.GlobalRecordCounter)
	p = varint.AppendITF8(p, s.Blocks.Count())
	p = appendIntArray(p, s.Blocks.ExternalIDs())
	p = varint.AppendITF8(p, s.EmbeddedReferenceID)
	p = append(p, s.ReferenceMD5[:]...)
	if version.AtLeast(cram.V3_0) {
		p = append(p, s.Tags...)
	}

	headerBlock, err := block.New(block.MappedSlice, p)
	if err != nil {
		return err
	}
	if err := headerBlock.Write(version, w); err != nil {
		return err
	}
	return s.Blocks.Write(version, w)
}

// EmbeddedReference returns the external block holding the embedded
// reference bases, or nil when the slice has none.
func (s *Slice) EmbeddedReference() *block.Block {
	if s.EmbeddedReferenceID == EmbeddedReferenceAbsent {
		return nil
	}
	return s.Blocks.External(s.EmbeddedReferenceID)
}

// SetEmbeddedReference adds b as the slice's embedded reference block.
// The block must be external, and the slice must not already declare a
// different embedded reference.
func (s *Slice) SetEmbeddedReference(b *block.Block) error {
	if b.ContentType != block.External {
		return cram.DomainViolationf("%v block used as an embedded reference block", b.ContentType)
	}
	if b.ContentID == EmbeddedReferenceAbsent {
		return cram.DomainViolationf("embedded reference block without a content ID")
	}
	if s.EmbeddedReferenceID != EmbeddedReferenceAbsent && s.EmbeddedReferenceID != b.ContentID {
		return cram.DomainViolationf("slice already declares embedded reference block %d", s.EmbeddedReferenceID)
	}
	if s.Blocks.External(b.ContentID) == nil {
		if err := s.Blocks.AddExternal(b); err != nil {
			return err
		}
	}
	s.EmbeddedReferenceID = b.ContentID
	return nil
}

// SetReferenceMD5 records the digest of the reference region the
// slice covers. Content that is not placed on a single reference gets
// a zero digest.
func (s *Slice) SetReferenceMD5(bases []byte) {
	if !s.AlignmentContext.ReferenceContext.IsSingleReference() || s.AlignmentContext.Start < 1 {
		s.ReferenceMD5 = [16]byte{}
		return
	}
	copy(s.ReferenceMD5[:], ref.RegionMD5(bases, int(s.AlignmentContext.Start), int(s.AlignmentContext.Span)))
}

// ValidateReferenceMD5 checks the stored digest against the given
// reference bases. Content without a digestible region passes.
func (s *Slice) ValidateReferenceMD5(bases []byte) error {
	if !s.AlignmentContext.ReferenceContext.IsSingleReference() || s.AlignmentContext.Start < 1 {
		return nil
	}
	sum := ref.RegionMD5(bases, int(s.AlignmentContext.Start), int(s.AlignmentContext.Span))
	if !bytes.Equal(sum, s.ReferenceMD5[:]) {
		return cram.Malformedf("reference MD5 mismatch for %v: stored %x, computed %x",
			s.AlignmentContext, s.ReferenceMD5, sum)
	}
	return nil
}
