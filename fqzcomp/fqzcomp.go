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

// Package fqzcomp implements the FQZComp quality-score codec of CRAM
// 3.1. FQZComp drives the adaptive arithmetic coder of package
// rangecoder through a model built for sequencing qualities: every
// score is coded in a 16-bit context mixing the preceding scores, the
// position within the read, the length of the current run of equal
// scores, and the active parameter set, with record boundaries,
// read-reversal flags, and duplicate reads coded by side models.
//
// Only decoding is implemented. Writing FQZComp streams means fitting
// the context parameters to the data, which this library leaves to
// specialized tools.
package fqzcomp

import (
	"github.com/exascience/cram"
	"github.com/exascience/cram/internal"
	"github.com/exascience/cram/rangecoder"
)

const numSymbols = 256

// Global flags of an FQZComp stream. MultiParam introduces more than
// one parameter block, SelectorTable an explicit selector-to-block
// table, and Reverse a per-record reverse flag applied after decoding.
const (
	gflagMultiParam uint8 = 1 << iota
	gflagSelectorTable
	gflagReverse
)

// Flags of a single parameter block. The low bit is reserved.
const (
	_ uint8 = 1 << iota
	pflagDedup
	pflagFixedLen
	pflagSel
	pflagQmap
	pflagPtab
	pflagDtab
	pflagQtab
)

/*
param is one decoded parameter block. A stream carries one or more
blocks, selected per record, each describing which components enter the
16-bit quality context and at which bit locations.
*/
type param struct {
	context          int
	flags            uint8
	maxSymbols       int
	qualityBits      int
	qualityShift     int
	qualityLocation  int
	selectorLocation int
	positionLocation int
	deltaLocation    int

	// With the fixed-length flag, the first record's length is latched
	// here and reused for every following record of this block.
	fixedLength  bool
	recordLength int

	qualityMap    []byte
	qualityTable  []int
	positionTable []int
	deltaTable    []int
}

/*
state is the decode state that advances per record and per quality: the
rolling context components, the remaining base count of the current
record, and the selector of the parameter block governing it.
*/
type state struct {
	qualityContext  uint32
	previousQuality int
	delta           int
	bases           int
	selector        int
	paramIndex      int
	recordLength    int
	duplicate       bool
}

/*
models bundles the adaptive models of one stream. The quality models
are indexed by the 16-bit context; the remaining models frame records.
*/
type models struct {
	quality   []*rangecoder.ByteModel
	length    []*rangecoder.ByteModel
	reverse   *rangecoder.ByteModel
	duplicate *rangecoder.ByteModel
	selector  *rangecoder.ByteModel
}

func newModels(maxSymbols, maxSelector int) *models {
	m := &models{
		quality:   make([]*rangecoder.ByteModel, 1<<16),
		length:    rangecoder.NewByteModels(4, numSymbols),
		reverse:   rangecoder.NewByteModel(2),
		duplicate: rangecoder.NewByteModel(2),
	}
	// maxSymbols is the highest coded quality, not a count.
	for i := range m.quality {
		m.quality[i] = rangecoder.NewByteModel(maxSymbols + 1)
	}
	if maxSelector > 0 {
		m.selector = rangecoder.NewByteModel(maxSelector + 1)
	}
	return m
}

type decoder struct {
	r           *internal.Reader
	coder       *rangecoder.Coder
	models      *models
	params      []*param
	selectors   []int
	maxSelector int
	doReverse   bool
	state       state
	lengths     internal.IntBuffer
	rev         internal.Buffer
}

// Decode expands an FQZComp stream into one byte per quality score,
// shifted by 33 into the printable range, with the scores of all
// records concatenated in record order. Records flagged as reversed
// come out reversed. Only version 5 streams are supported.
func Decode(data []byte) (out []byte, err error) {
	defer cram.Recover(&err)
	r := &internal.Reader{Data: data}
	size := int(r.Uint7())
	if version := r.U8(); version != 5 {
		panic(cram.UnsupportedVersionf("fqzcomp version %d, expected 5", version))
	}
	gflags := r.U8()
	numParams := 1
	if gflags&gflagMultiParam != 0 {
		numParams = int(r.U8())
		if numParams == 0 {
			panic(cram.Malformedf("fqzcomp stream with zero parameter blocks"))
		}
	}
	maxSelector := 0
	if numParams > 1 {
		maxSelector = numParams - 1
	}
	var selectors []int
	if gflags&gflagSelectorTable != 0 {
		maxSelector = int(r.U8())
		selectors = readArray(r, numSymbols)
	} else {
		selectors = make([]int, numSymbols)
		for i := range selectors {
			if i < numParams {
				selectors[i] = i
			} else {
				selectors[i] = numParams - 1
			}
		}
	}
	params := make([]*param, numParams)
	maxSymbols := 0
	for i := range params {
		params[i] = readParam(r)
		if params[i].maxSymbols > maxSymbols {
			maxSymbols = params[i].maxSymbols
		}
	}
	d := &decoder{
		r:           r,
		coder:       rangecoder.NewCoder(),
		models:      newModels(maxSymbols, maxSelector),
		params:      params,
		selectors:   selectors,
		maxSelector: maxSelector,
		doReverse:   gflags&gflagReverse != 0,
	}
	d.coder.StartDecode(r)
	return d.decodeQualities(size), nil
}

// Encode is not supported and reports a NotImplemented error. Writing
// FQZComp streams requires data-dependent parameter tuning that this
// library does not attempt.
func Encode(data []byte) ([]byte, error) {
	return nil, cram.NotImplementedf("fqzcomp encoding of quality scores")
}

func (d *decoder) decodeQualities(size int) []byte {
	out := make([]byte, size)
	var p *param
	last := 0
	for i := 0; i < size; {
		if d.state.bases == 0 {
			d.newRecord()
			length := d.state.recordLength
			if length <= 0 || length > size-i {
				panic(cram.Malformedf("record of %d quality scores, %d remaining in stream", length, size-i))
			}
			d.lengths.Append(length)
			if d.state.duplicate {
				// A duplicate is confirmed by a second symbol from the
				// duplicate model; only then is the previous record
				// copied and per-base decoding skipped.
				if d.models.duplicate.Decode(d.r, d.coder) == 0 {
					if i < length {
						panic(cram.Malformedf("duplicate record at offset %d copies %d preceding bytes", i, length))
					}
					copy(out[i:i+length], out[i-length:i])
					i += length
					d.state.bases = 0
					continue
				}
			}
			p = d.params[d.state.paramIndex]
			last = p.context
		}
		q := d.models.quality[last].Decode(d.r, d.coder)
		out[i] = p.qualityMap[q]
		i++
		last = updateContext(p, &d.state, int(q))
	}
	if d.doReverse {
		reverseRecords(out, d.rev.Bytes(), d.lengths.Ints())
	}
	// Qualities are coded zero-based and shifted into the printable
	// range on output.
	for i := range out {
		out[i] += 33
	}
	return out
}

func (d *decoder) newRecord() {
	s := &d.state
	if d.maxSelector > 0 {
		s.selector = int(d.models.selector.Decode(d.r, d.coder))
	} else {
		s.selector = 0
	}
	s.paramIndex = d.selectors[s.selector]
	if s.paramIndex >= len(d.params) {
		panic(cram.Malformedf("selector %d maps to parameter block %d of %d", s.selector, s.paramIndex, len(d.params)))
	}
	p := d.params[s.paramIndex]

	var length int
	if !p.fixedLength || p.recordLength == 0 {
		length = int(d.models.length[0].Decode(d.r, d.coder))
		length |= int(d.models.length[1].Decode(d.r, d.coder)) << 8
		length |= int(d.models.length[2].Decode(d.r, d.coder)) << 16
		length |= int(d.models.length[3].Decode(d.r, d.coder)) << 24
		if p.fixedLength {
			p.recordLength = length
		}
	} else {
		length = p.recordLength
	}
	s.recordLength = length

	if d.doReverse {
		d.rev.AppendByte(d.models.reverse.Decode(d.r, d.coder))
	}
	s.duplicate = false
	if p.flags&pflagDedup != 0 {
		s.duplicate = d.models.duplicate.Decode(d.r, d.coder) != 0
	}
	s.bases = length
	s.delta = 0
	s.qualityContext = 0
	s.previousQuality = 0
}

// updateContext folds the decoded quality into the rolling context
// components and assembles the 16-bit context of the next quality as
// the active parameter block lays it out. The position component sees
// the base count before the decrement.
func updateContext(p *param, s *state, quality int) int {
	last := p.context
	s.qualityContext = s.qualityContext<<p.qualityShift + uint32(p.qualityTable[quality])
	last += int(s.qualityContext&(1<<p.qualityBits-1)) << p.qualityLocation
	if p.flags&pflagPtab != 0 {
		pos := s.bases
		if pos > 1023 {
			pos = 1023
		}
		last += p.positionTable[pos] << p.positionLocation
	}
	if p.flags&pflagDtab != 0 {
		delta := s.delta
		if delta > 255 {
			delta = 255
		}
		last += p.deltaTable[delta] << p.deltaLocation
		if s.previousQuality != quality {
			s.delta++
		}
		s.previousQuality = quality
	}
	if p.flags&pflagSel != 0 {
		last += s.selector << p.selectorLocation
	}
	s.bases--
	return last & 0xffff
}

/*
readParam reads one parameter block: the base context, the flag byte,
the packed bit widths and locations of the context components, and the
optional quality map and lookup tables.
*/
func readParam(r *internal.Reader) *param {
	p := new(param)
	p.context = int(r.U16())
	p.flags = r.U8()
	p.maxSymbols = int(r.U8())
	x := r.U8()
	p.qualityBits = int(x >> 4)
	p.qualityShift = int(x & 0xf)
	y := r.U8()
	p.qualityLocation = int(y >> 4)
	p.selectorLocation = int(y & 0xf)
	z := r.U8()
	p.positionLocation = int(z >> 4)
	p.deltaLocation = int(z & 0xf)
	p.fixedLength = p.flags&pflagFixedLen != 0

	p.qualityMap = make([]byte, numSymbols)
	if p.flags&pflagQmap != 0 {
		copy(p.qualityMap, r.Bytes(p.maxSymbols))
	} else {
		for i := range p.qualityMap {
			p.qualityMap[i] = byte(i)
		}
	}
	if p.qualityBits > 0 && p.flags&pflagQtab != 0 {
		p.qualityTable = readArray(r, numSymbols)
	} else {
		p.qualityTable = make([]int, numSymbols)
		for i := range p.qualityTable {
			p.qualityTable[i] = i
		}
	}
	if p.flags&pflagPtab != 0 {
		p.positionTable = readArray(r, 1024)
	}
	if p.flags&pflagDtab != 0 {
		p.deltaTable = readArray(r, numSymbols)
	}
	return p
}

/*
readArray reads a run-length-coded lookup table of the given size. The
table holds non-decreasing small values: each value covers a run whose
length is chunked into bytes summed until a chunk below 255, and the
chunk stream itself introduces a copy count after a repeated byte.
*/
func readArray(r *internal.Reader, size int) []int {
	var runs []byte
	last := -1
	for z := 0; z < size; {
		run := r.U8()
		runs = append(runs, run)
		z += int(run)
		if int(run) == last {
			copies := int(r.U8())
			z += int(run) * copies
			for ; copies > 0; copies-- {
				runs = append(runs, run)
			}
		}
		last = int(run)
	}

	table := make([]int, size)
	j, z, value := 0, 0, 0
	for z < size {
		runLength := 0
		for {
			if j == len(runs) {
				panic(cram.Malformedf("lookup table runs end after %d of %d entries", z, size))
			}
			part := int(runs[j])
			j++
			runLength += part
			if part != 255 {
				break
			}
		}
		if runLength > size-z {
			panic(cram.Malformedf("lookup table run of %d exceeds %d remaining entries", runLength, size-z))
		}
		for ; runLength > 0; runLength-- {
			table[z] = value
			z++
		}
		value++
	}
	return table
}

func reverseRecords(out []byte, rev []byte, lengths []int) {
	idx := 0
	for rec := 0; idx < len(out); rec++ {
		if rev[rec] != 0 {
			for j, k := idx, idx+lengths[rec]-1; j < k; j, k = j+1, k-1 {
				out[j], out[k] = out[k], out[j]
			}
		}
		idx += lengths[rec]
	}
}
