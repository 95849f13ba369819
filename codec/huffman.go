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
	"container/heap"
	"sort"

	"github.com/exascience/cram"
	"github.com/exascience/cram/bits"
)

// maxCodeLength bounds huffman code words so that every code fits a
// positive int32, including one implied bit of headroom.
const maxCodeLength = 31

/*
huffmanCodes is the canonical code assignment of a Huffman descriptor:
symbols sorted by code length and then by value, each assigned the
next code word in sequence, shifted left whenever the length grows.
Only the code lengths travel in the descriptor; the fixed assignment
rule is what makes them sufficient.

A single-symbol alphabet may declare a zero-length code, in which case
encoding writes no bits and decoding consumes none.
*/
type huffmanCodes struct {
	values  []int32
	lengths []int
	codes   []uint32
	groups  []codeGroup
	index   map[int32]int
}

// codeGroup spans the consecutive code words of one length.
type codeGroup struct {
	length int
	first  uint32
	start  int
	count  int
}

// huffmanSorter orders the parallel value/length slices by code
// length, then by symbol value.
type huffmanSorter struct{ h *huffmanCodes }

func (s huffmanSorter) Len() int { return len(s.h.values) }

func (s huffmanSorter) Less(i, j int) bool {
	if s.h.lengths[i] != s.h.lengths[j] {
		return s.h.lengths[i] < s.h.lengths[j]
	}
	return s.h.values[i] < s.h.values[j]
}

func (s huffmanSorter) Swap(i, j int) {
	s.h.values[i], s.h.values[j] = s.h.values[j], s.h.values[i]
	s.h.lengths[i], s.h.lengths[j] = s.h.lengths[j], s.h.lengths[i]
}

func newHuffmanCodes(e *Huffman) *huffmanCodes {
	n := len(e.Values)
	if n == 0 {
		panic(cram.Malformedf("huffman encoding with an empty alphabet"))
	}
	if len(e.BitLengths) != n {
		panic(cram.Malformedf("huffman encoding with %d symbols but %d code lengths", n, len(e.BitLengths)))
	}
	h := &huffmanCodes{
		values:  make([]int32, n),
		lengths: make([]int, n),
		codes:   make([]uint32, n),
		index:   make(map[int32]int, n),
	}
	for i, l := range e.BitLengths {
		if l < 0 || l > maxCodeLength {
			panic(cram.Malformedf("huffman code length %d for symbol %d", l, e.Values[i]))
		}
		h.lengths[i] = int(l)
	}
	copy(h.values, e.Values)
	sort.Sort(huffmanSorter{h})

	// The code lengths must not oversubscribe the code space.
	var kraft uint64
	for _, l := range h.lengths {
		kraft += 1 << uint(maxCodeLength-l)
	}
	if kraft > 1<<maxCodeLength {
		panic(cram.Malformedf("huffman code lengths violate the Kraft inequality"))
	}

	code := -1
	length := 0
	for i := range h.values {
		if _, dup := h.index[h.values[i]]; dup {
			panic(cram.Malformedf("duplicate symbol %d in huffman alphabet", h.values[i]))
		}
		h.index[h.values[i]] = i
		code++
		if delta := h.lengths[i] - length; delta > 0 {
			code <<= uint(delta)
			length = h.lengths[i]
		}
		h.codes[i] = uint32(code)
		last := len(h.groups) - 1
		if last < 0 || h.groups[last].length != h.lengths[i] {
			h.groups = append(h.groups, codeGroup{length: h.lengths[i], first: uint32(code), start: i})
			last++
		}
		h.groups[last].count++
	}
	return h
}

// decode accumulates bits over the groups in order of increasing code
// length until the accumulated word falls into a group's code range.
// Code words below a group's range were matched by an earlier group,
// so an unmatched word past the last group cannot be valid.
func (h *huffmanCodes) decode(core *bits.Reader) int32 {
	var code uint32
	length := 0
	for i := range h.groups {
		g := &h.groups[i]
		code = code<<uint(g.length-length) | core.ReadBits(g.length-length)
		length = g.length
		if d := code - g.first; d < uint32(g.count) {
			return h.values[g.start+int(d)]
		}
	}
	panic(cram.Malformedf("bit stream matches no huffman code word"))
}

func (h *huffmanCodes) encode(core *bits.Writer, v int32) {
	i, ok := h.index[v]
	if !ok {
		panic(cram.DomainViolationf("symbol %d is not in the huffman alphabet", v))
	}
	core.WriteBits(h.codes[i], h.lengths[i])
}

type huffmanIntDecoder struct {
	codes *huffmanCodes
	core  *bits.Reader
}

func (d *huffmanIntDecoder) Decode() int32 { return d.codes.decode(d.core) }

type huffmanIntEncoder struct {
	codes *huffmanCodes
	core  *bits.Writer
}

func (e *huffmanIntEncoder) Encode(v int32) { e.codes.encode(e.core, v) }

// The byte variants share the integer machinery. Byte symbols decode
// by truncation, so alphabets serialized with sign-extended byte
// values still yield the intended bytes.
type huffmanByteDecoder struct {
	codes *huffmanCodes
	core  *bits.Reader
}

func (d *huffmanByteDecoder) Decode() byte { return byte(d.codes.decode(d.core)) }

type huffmanByteEncoder struct {
	codes *huffmanCodes
	core  *bits.Writer
}

func (e *huffmanByteEncoder) Encode(v byte) { e.codes.encode(e.core, int32(v)) }

type huffmanNode struct {
	weight      int
	seq         int
	value       int32
	left, right *huffmanNode
}

// huffmanHeap orders nodes by weight, breaking ties by creation order
// so that descriptor construction is deterministic.
type huffmanHeap []*huffmanNode

func (h huffmanHeap) Len() int { return len(h) }

func (h huffmanHeap) Less(i, j int) bool {
	if h[i].weight != h[j].weight {
		return h[i].weight < h[j].weight
	}
	return h[i].seq < h[j].seq
}

func (h huffmanHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *huffmanHeap) Push(x interface{}) { *h = append(*h, x.(*huffmanNode)) }

func (h *huffmanHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// NewHuffman computes canonical code lengths for an alphabet with the
// given per-symbol frequencies and returns the resulting descriptor,
// its alphabet in canonical order (by code length, then by value).
// Symbols with frequency zero are dropped; a single-symbol alphabet
// gets a zero-length code.
func NewHuffman(values []int32, frequencies []int) (*Huffman, error) {
	if len(values) != len(frequencies) {
		return nil, cram.DomainViolationf("%d huffman symbols with %d frequencies", len(values), len(frequencies))
	}
	nodes := make(huffmanHeap, 0, len(values))
	for i, v := range values {
		if frequencies[i] < 0 {
			return nil, cram.DomainViolationf("negative frequency %d for symbol %d", frequencies[i], v)
		}
		if frequencies[i] > 0 {
			nodes = append(nodes, &huffmanNode{weight: frequencies[i], value: v})
		}
	}
	if len(nodes) == 0 {
		return nil, cram.DomainViolationf("huffman alphabet without observed symbols")
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].value < nodes[j].value })
	for i := range nodes {
		if i > 0 && nodes[i].value == nodes[i-1].value {
			return nil, cram.DomainViolationf("duplicate symbol %d in huffman alphabet", nodes[i].value)
		}
		nodes[i].seq = i
	}

	seq := len(nodes)
	heap.Init(&nodes)
	for nodes.Len() > 1 {
		a := heap.Pop(&nodes).(*huffmanNode)
		b := heap.Pop(&nodes).(*huffmanNode)
		heap.Push(&nodes, &huffmanNode{weight: a.weight + b.weight, seq: seq, left: a, right: b})
		seq++
	}

	type symbolLength struct {
		value  int32
		length int
	}
	var syms []symbolLength
	var walk func(n *huffmanNode, depth int) error
	walk = func(n *huffmanNode, depth int) error {
		if depth > maxCodeLength {
			return cram.DomainViolationf("canonical huffman code lengths exceed %d bits", maxCodeLength)
		}
		if n.left == nil {
			syms = append(syms, symbolLength{value: n.value, length: depth})
			return nil
		}
		if err := walk(n.left, depth+1); err != nil {
			return err
		}
		return walk(n.right, depth+1)
	}
	if err := walk(nodes[0], 0); err != nil {
		return nil, err
	}

	sort.Slice(syms, func(i, j int) bool {
		if syms[i].length != syms[j].length {
			return syms[i].length < syms[j].length
		}
		return syms[i].value < syms[j].value
	})
	e := &Huffman{
		Values:     make([]int32, len(syms)),
		BitLengths: make([]int32, len(syms)),
	}
	for i, s := range syms {
		e.Values[i] = s.value
		e.BitLengths[i] = int32(s.length)
	}
	return e, nil
}
