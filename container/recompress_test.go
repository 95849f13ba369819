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
	"testing"

	"github.com/exascience/cram"
	"github.com/exascience/cram/block"
	"github.com/exascience/cram/ref"
)

// TestSliceIndependence encodes the same record values once as a
// single slice and once split over two slices. Slice boundaries only
// affect compression locality: both groupings must decode to the same
// values.
func TestSliceIndependence(t *testing.T) {
	h := NewCompressionHeader(DefaultEncodingStrategy())
	values := []int32{36, 74, 74, 151, 151, 36, 251, 74}
	context := func(start, span int32) AlignmentContext {
		return AlignmentContext{ReferenceContext: ref.Context(3), Start: start, Span: span}
	}

	one, err := NewContainer(h, []*Slice{
		testSlice(t, h, context(100, 800), values, 0),
	}, 0)
	if err != nil {
		t.Fatal(err)
	}
	two, err := NewContainer(h, []*Slice{
		testSlice(t, h, context(100, 400), values[:5], 0),
		testSlice(t, h, context(500, 400), values[5:], 5),
	}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if one.Header.AlignmentContext != two.Header.AlignmentContext {
		t.Fatalf("groupings derive contexts %v and %v",
			one.Header.AlignmentContext, two.Header.AlignmentContext)
	}

	for _, c := range []*Container{one, two} {
		var buf bytes.Buffer
		if err := c.Write(cram.V3_0, &buf); err != nil {
			t.Fatal(err)
		}
		got, err := Read(cram.V3_0, bytes.NewReader(buf.Bytes()), block.NewCache())
		if err != nil {
			t.Fatal(err)
		}
		var decoded []int32
		for _, s := range got.Slices {
			decoded = append(decoded, decodeLengths(t, got.CompressionHeader, s)...)
		}
		if !equalInt32s(decoded, values) {
			t.Errorf("%d slices decode to %v, want %v", len(got.Slices), decoded, values)
		}
	}
}

func TestSliceReaders(t *testing.T) {
	h := NewCompressionHeader(DefaultEncodingStrategy())
	c, err := NewContainer(h, []*Slice{
		testSlice(t, h, MultipleReferenceContext, []int32{1, 2, 3}, 0),
		testSlice(t, h, MultipleReferenceContext, []int32{4, 5}, 3),
		testSlice(t, h, MultipleReferenceContext, []int32{6}, 5),
	}, 0)
	if err != nil {
		t.Fatal(err)
	}
	readers, err := c.SliceReaders()
	if err != nil {
		t.Fatal(err)
	}
	want := [][]int32{{1, 2, 3}, {4, 5}, {6}}
	for i, r := range readers {
		dec, err := r.IntDecoder(RL)
		if err != nil {
			t.Fatal(err)
		}
		for j, v := range want[i] {
			if got := dec.Decode(); got != v {
				t.Errorf("slice %d record %d decoded as %d, want %d", i, j, got, v)
			}
		}
	}
}

func TestRecompress(t *testing.T) {
	text := []byte("@HD\tVN:1.6\tSO:coordinate\n@SQ\tSN:chr1\tLN:1000\n")
	values := []int32{100, 100, 100, 101, 99, 100, 251, 100}

	h := NewCompressionHeader(DefaultEncodingStrategy())
	s := testSlice(t, h, AlignmentContext{ReferenceContext: ref.Context(0), Start: 1, Span: 500}, values, 0)
	c, err := NewContainer(h, []*Slice{s}, 0)
	if err != nil {
		t.Fatal(err)
	}

	var in bytes.Buffer
	def := cram.NewFileDefinition(cram.V3_0)
	if err := def.Write(&in); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileHeaderText(cram.V3_0, &in, text); err != nil {
		t.Fatal(err)
	}
	if err := c.Write(cram.V3_0, &in); err != nil {
		t.Fatal(err)
	}
	if err := WriteEOF(cram.V3_0, &in); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := Recompress(bytes.NewReader(in.Bytes()), &out, DefaultEncodingStrategy()); err != nil {
		t.Fatal(err)
	}
	if out.Len() > in.Len() {
		t.Errorf("recompressed stream grew from %d to %d bytes", in.Len(), out.Len())
	}

	r := bytes.NewReader(out.Bytes())
	gotDef, err := cram.ReadFileDefinition(r)
	if err != nil {
		t.Fatal(err)
	}
	if gotDef.Version != def.Version || gotDef.ID != def.ID {
		t.Errorf("file definition changed by recompression")
	}
	gotText, err := ReadFileHeaderText(gotDef.Version, r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(gotText, text) {
		t.Errorf("header text read back as %q", gotText)
	}
	got, err := Read(gotDef.Version, r, block.NewCache())
	if err != nil {
		t.Fatal(err)
	}
	if lengths := decodeLengths(t, got.CompressionHeader, got.Slices[0]); !equalInt32s(lengths, values) {
		t.Errorf("recompressed slice decodes to %v, want %v", lengths, values)
	}
	final, err := Read(gotDef.Version, r, block.NewCache())
	if err != nil {
		t.Fatal(err)
	}
	if !final.IsEOF() {
		t.Error("recompressed stream does not end in the end-of-file marker")
	}

	if err := Recompress(bytes.NewReader(in.Bytes()), &bytes.Buffer{},
		&EncodingStrategy{GzipCompressionLevel: 100}); cram.KindOf(err) != cram.DomainViolation {
		t.Errorf("invalid strategy: %v", err)
	}
}
