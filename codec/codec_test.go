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
	"math"
	"math/rand"
	"reflect"
	"testing"

	"github.com/exascience/cram"
	"github.com/exascience/cram/bits"
	"github.com/exascience/cram/internal"
	"github.com/exascience/cram/varint"
)

// catch runs f the way the exported entry points of this library run
// codec loops, recovering codec panics into errors.
func catch(f func()) (err error) {
	defer cram.Recover(&err)
	f()
	return
}

func externalFrom(out map[int32]*internal.Buffer) map[int32]*internal.Reader {
	in := make(map[int32]*internal.Reader, len(out))
	for id, b := range out {
		in[id] = &internal.Reader{Data: b.Bytes()}
	}
	return in
}

// roundTripInts encodes the values with e, reparses e from its wire
// form, and decodes the values back.
func roundTripInts(t *testing.T, e Encoding, values []int32) {
	w := bits.NewWriter()
	out := map[int32]*internal.Buffer{}
	enc := NewIntEncoder(e, w, out)
	for _, v := range values {
		enc.Encode(v)
	}
	parsed := ReadEncoding(&internal.Reader{Data: AppendEncoding(nil, e)})
	dec := NewIntDecoder(parsed, bits.NewReader(w.Bytes()), externalFrom(out))
	for i, v := range values {
		if got := dec.Decode(); got != v {
			t.Fatalf("%v: index %d decodes to %d instead of %d", idOf(e), i, got, v)
		}
	}
}

func TestEncodingWire(t *testing.T) {
	encodings := []Encoding{
		nil,
		&External{ContentID: 5},
		&Huffman{Values: []int32{-1, 0, 65536}, BitLengths: []int32{1, 2, 2}},
		&ByteArrayLen{
			Lengths: &Huffman{Values: []int32{4}, BitLengths: []int32{0}},
			Values:  &External{ContentID: 300},
		},
		&ByteArrayStop{Stop: '\t', ContentID: 3},
		&Beta{Offset: -10, Bits: 7},
		&Subexponential{Offset: 0, K: 2},
		&Gamma{Offset: 1},
	}
	var p []byte
	for _, e := range encodings {
		p = AppendEncoding(p, e)
	}
	r := &internal.Reader{Data: p}
	for i, e := range encodings {
		if got := ReadEncoding(r); !reflect.DeepEqual(got, e) {
			t.Errorf("descriptor %d reads back as %#v", i, got)
		}
	}
	if r.Remaining() != 0 {
		t.Errorf("%d undecoded descriptor bytes", r.Remaining())
	}
}

func TestBetaRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	cases := []struct {
		offset int32
		width  int32
	}{{0, 1}, {0, 8}, {10, 5}, {-100, 12}, {0, 17}, {1 << 20, 31}}
	for _, c := range cases {
		max := int64(1)<<uint(c.width) - 1
		values := []int32{int32(-int64(c.offset)), int32(max - int64(c.offset))}
		for i := 0; i < 100; i++ {
			values = append(values, int32(r.Int63n(max+1)-int64(c.offset)))
		}
		roundTripInts(t, &Beta{Offset: c.offset, Bits: c.width}, values)
	}
	// Width 0 codes a single value in no bits at all.
	roundTripInts(t, &Beta{Offset: 7, Bits: 0}, []int32{-7, -7, -7})
	// Width 32 holds the full non-negative int32 range.
	roundTripInts(t, &Beta{Offset: 0, Bits: 32}, []int32{0, 1, math.MaxInt32})
}

func TestBetaDomain(t *testing.T) {
	w := bits.NewWriter()
	enc := NewIntEncoder(&Beta{Offset: 0, Bits: 8}, w, nil)
	if err := catch(func() { enc.Encode(256) }); cram.KindOf(err) != cram.DomainViolation {
		t.Errorf("value 256 in 8 bits yields %v", err)
	}
	if err := catch(func() { enc.Encode(-1) }); cram.KindOf(err) != cram.DomainViolation {
		t.Errorf("value -1 in 8 bits yields %v", err)
	}
	enc.Encode(255)
	if w.Len() != 8 {
		t.Errorf("8-bit beta writes %d bits", w.Len())
	}
	if err := catch(func() { NewIntDecoder(&Beta{Bits: 33}, bits.NewReader(nil), nil) }); cram.KindOf(err) != cram.Malformed {
		t.Errorf("33-bit beta yields %v", err)
	}
	if err := catch(func() { NewIntDecoder(&Beta{Bits: -1}, bits.NewReader(nil), nil) }); cram.KindOf(err) != cram.Malformed {
		t.Errorf("negative-width beta yields %v", err)
	}
}

func TestGammaRoundTrip(t *testing.T) {
	roundTripInts(t, &Gamma{Offset: 0}, []int32{1, 2, 3, 4, 5, 255, 256, 65535, 1 << 30, math.MaxInt32})
	roundTripInts(t, &Gamma{Offset: 1}, []int32{0, 1, 41, 99, 1000, 1 << 20})
	roundTripInts(t, &Gamma{Offset: -5}, []int32{6, 7, 100})

	// The biased value 1 is the single bit 1.
	w := bits.NewWriter()
	enc := NewIntEncoder(&Gamma{Offset: 0}, w, nil)
	for i := 0; i < 8; i++ {
		enc.Encode(1)
	}
	if !bytes.Equal(w.Bytes(), []byte{0xFF}) {
		t.Errorf("eight gamma ones encode to %#x", w.Bytes())
	}
}

func TestGammaDomain(t *testing.T) {
	w := bits.NewWriter()
	enc := NewIntEncoder(&Gamma{Offset: 0}, w, nil)
	if err := catch(func() { enc.Encode(0) }); cram.KindOf(err) != cram.DomainViolation {
		t.Errorf("gamma of 0 yields %v", err)
	}
	if err := catch(func() { enc.Encode(-5) }); cram.KindOf(err) != cram.DomainViolation {
		t.Errorf("gamma of -5 yields %v", err)
	}
	enc2 := NewIntEncoder(&Gamma{Offset: math.MaxInt32}, w, nil)
	if err := catch(func() { enc2.Encode(1) }); cram.KindOf(err) != cram.DomainViolation {
		t.Errorf("gamma beyond the int32 range yields %v", err)
	}
}

func TestSubexponentialRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for _, k := range []int32{0, 1, 2, 4, 8} {
		values := []int32{0, 1, 2, 3, 1<<uint(k) - 1, 1 << uint(k), 1<<uint(k) + 1, math.MaxInt32}
		for i := 0; i < 100; i++ {
			values = append(values, r.Int31())
		}
		roundTripInts(t, &Subexponential{Offset: 0, K: k}, values)
	}
	roundTripInts(t, &Subexponential{Offset: 10, K: 2}, []int32{-10, -9, 0, 1000})

	// k=2: 3 is coded 011, 4 is coded 1000.
	w := bits.NewWriter()
	enc := NewIntEncoder(&Subexponential{Offset: 0, K: 2}, w, nil)
	enc.Encode(3)
	enc.Encode(4)
	if !bytes.Equal(w.Bytes(), []byte{0x70}) {
		t.Errorf("subexponential 3,4 encode to %#x", w.Bytes())
	}
}

func TestSubexponentialDomain(t *testing.T) {
	w := bits.NewWriter()
	enc := NewIntEncoder(&Subexponential{Offset: 0, K: 2}, w, nil)
	if err := catch(func() { enc.Encode(-1) }); cram.KindOf(err) != cram.DomainViolation {
		t.Errorf("negative subexponential value yields %v", err)
	}
	if err := catch(func() { NewIntDecoder(&Subexponential{K: 31}, bits.NewReader(nil), nil) }); cram.KindOf(err) != cram.Malformed {
		t.Errorf("k=31 yields %v", err)
	}
	if err := catch(func() { NewIntDecoder(&Subexponential{K: -1}, bits.NewReader(nil), nil) }); cram.KindOf(err) != cram.Malformed {
		t.Errorf("k=-1 yields %v", err)
	}
}

func TestExternalRoundTrip(t *testing.T) {
	roundTripInts(t, &External{ContentID: 1},
		[]int32{0, 1, -1, 127, 128, -128, 1 << 20, math.MaxInt32, math.MinInt32})

	out := map[int32]*internal.Buffer{}
	enc := NewByteEncoder(&External{ContentID: 2}, nil, out)
	for i := 0; i < 256; i++ {
		enc.Encode(byte(i))
	}
	dec := NewByteDecoder(&External{ContentID: 2}, nil, externalFrom(out))
	for i := 0; i < 256; i++ {
		if got := dec.Decode(); got != byte(i) {
			t.Fatalf("byte %d decodes to %d", i, got)
		}
	}

	longs := []int64{0, 1, -1, 127, 1 << 40, math.MaxInt64, math.MinInt64}
	lout := map[int32]*internal.Buffer{}
	lenc := NewLongEncoder(&External{ContentID: 3}, lout)
	for _, v := range longs {
		lenc.Encode(v)
	}
	ldec := NewLongDecoder(&External{ContentID: 3}, externalFrom(lout))
	for i, v := range longs {
		if got := ldec.Decode(); got != v {
			t.Fatalf("long %d decodes to %d instead of %d", i, got, v)
		}
	}
}

// TestExternalEquivalence shows the external byte, integer, and long
// codecs write identical streams within shared value ranges: raw
// bytes, ITF8, and LTF8 coincide for values below 1<<7, and ITF8 and
// LTF8 coincide below 1<<28.
func TestExternalEquivalence(t *testing.T) {
	small := []byte{0, 1, 5, 0x3F, 0x7E, 0x7F}
	bOut := map[int32]*internal.Buffer{}
	iOut := map[int32]*internal.Buffer{}
	lOut := map[int32]*internal.Buffer{}
	be := NewByteEncoder(&External{ContentID: 1}, nil, bOut)
	ie := NewIntEncoder(&External{ContentID: 1}, nil, iOut)
	le := NewLongEncoder(&External{ContentID: 1}, lOut)
	for _, v := range small {
		be.Encode(v)
		ie.Encode(int32(v))
		le.Encode(int64(v))
	}
	if !bytes.Equal(bOut[1].Bytes(), iOut[1].Bytes()) || !bytes.Equal(bOut[1].Bytes(), lOut[1].Bytes()) {
		t.Error("byte, ITF8, and LTF8 streams differ below 1<<7")
	}
	cross := NewIntDecoder(&External{ContentID: 1}, nil, externalFrom(bOut))
	for _, v := range small {
		if got := cross.Decode(); got != int32(v) {
			t.Fatalf("byte stream read as ITF8 yields %d instead of %d", got, v)
		}
	}

	ints := []int32{0, 127, 128, 1 << 14, 1 << 21, 1<<28 - 1}
	iOut = map[int32]*internal.Buffer{}
	lOut = map[int32]*internal.Buffer{}
	ie = NewIntEncoder(&External{ContentID: 1}, nil, iOut)
	le = NewLongEncoder(&External{ContentID: 1}, lOut)
	for _, v := range ints {
		ie.Encode(v)
		le.Encode(int64(v))
	}
	if !bytes.Equal(iOut[1].Bytes(), lOut[1].Bytes()) {
		t.Error("ITF8 and LTF8 streams differ below 1<<28")
	}
	ld := NewLongDecoder(&External{ContentID: 1}, externalFrom(iOut))
	for _, v := range ints {
		if got := ld.Decode(); got != int64(v) {
			t.Fatalf("ITF8 stream read as LTF8 yields %d instead of %d", got, v)
		}
	}
}

func TestByteArrayLen(t *testing.T) {
	e := &ByteArrayLen{Lengths: &External{ContentID: 1}, Values: &External{ContentID: 2}}
	arrays := [][]byte{[]byte("read1"), {}, []byte("a much longer read name"), {0, 255, 7}}
	out := map[int32]*internal.Buffer{}
	enc := NewBytesEncoder(e, nil, out)
	for _, p := range arrays {
		enc.Encode(p)
	}
	dec := NewBytesDecoder(e, nil, externalFrom(out))
	for i, p := range arrays {
		if got := dec.Decode(); !bytes.Equal(got, p) {
			t.Fatalf("array %d decodes to %q", i, got)
		}
	}
}

// TestByteArrayLenFixed covers the fixed-size tag pattern: a
// single-symbol huffman length costs no bits, so the core stream
// stays empty and only the value bytes travel.
func TestByteArrayLenFixed(t *testing.T) {
	e := &ByteArrayLen{
		Lengths: &Huffman{Values: []int32{4}, BitLengths: []int32{0}},
		Values:  &External{ContentID: 9},
	}
	w := bits.NewWriter()
	out := map[int32]*internal.Buffer{}
	enc := NewBytesEncoder(e, w, out)
	enc.Encode([]byte("ACGT"))
	enc.Encode([]byte{1, 2, 3, 4})
	if w.Len() != 0 {
		t.Errorf("fixed-size arrays wrote %d core bits", w.Len())
	}
	if err := catch(func() { enc.Encode([]byte("12345")) }); cram.KindOf(err) != cram.DomainViolation {
		t.Errorf("wrong-size array yields %v", err)
	}
	dec := NewBytesDecoder(e, bits.NewReader(nil), externalFrom(out))
	if got := dec.Decode(); !bytes.Equal(got, []byte("ACGT")) {
		t.Errorf("first array decodes to %q", got)
	}
	if got := dec.Decode(); !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("second array decodes to %v", got)
	}
}

func TestByteArrayLenMalformed(t *testing.T) {
	e := &ByteArrayLen{Lengths: &External{ContentID: 1}, Values: &ByteArrayStop{Stop: 0, ContentID: 2}}
	err := catch(func() { NewBytesDecoder(e, nil, map[int32]*internal.Reader{}) })
	if cram.KindOf(err) != cram.Malformed {
		t.Errorf("non-external values yield %v", err)
	}

	neg := &ByteArrayLen{Lengths: &External{ContentID: 1}, Values: &External{ContentID: 2}}
	in := map[int32]*internal.Reader{
		1: {Data: varint.AppendITF8(nil, -1)},
		2: {Data: nil},
	}
	dec := NewBytesDecoder(neg, nil, in)
	if err := catch(func() { dec.Decode() }); cram.KindOf(err) != cram.Malformed {
		t.Errorf("negative length yields %v", err)
	}
}

func TestByteArrayStop(t *testing.T) {
	e := &ByteArrayStop{Stop: '\t', ContentID: 4}
	arrays := [][]byte{[]byte("q1"), []byte("q2"), {}, []byte("zzz")}
	out := map[int32]*internal.Buffer{}
	enc := NewBytesEncoder(e, nil, out)
	for _, p := range arrays {
		enc.Encode(p)
	}
	dec := NewBytesDecoder(e, nil, externalFrom(out))
	for i, p := range arrays {
		if got := dec.Decode(); !bytes.Equal(got, p) {
			t.Fatalf("array %d decodes to %q", i, got)
		}
	}

	if err := catch(func() { enc.Encode([]byte("a\tb")) }); cram.KindOf(err) != cram.DomainViolation {
		t.Errorf("value containing the stop byte yields %v", err)
	}

	// A final value may end with the block instead of a stop byte.
	in := map[int32]*internal.Reader{4: {Data: []byte("abc\tdef")}}
	dec = NewBytesDecoder(e, nil, in)
	if got := dec.Decode(); !bytes.Equal(got, []byte("abc")) {
		t.Errorf("first value decodes to %q", got)
	}
	if got := dec.Decode(); !bytes.Equal(got, []byte("def")) {
		t.Errorf("unterminated final value decodes to %q", got)
	}
}

// TestSharedExternalBlock pins down that codecs referring to the same
// content ID share one cursor over the block.
func TestSharedExternalBlock(t *testing.T) {
	out := map[int32]*internal.Buffer{}
	enc := NewIntEncoder(&External{ContentID: 7}, nil, out)
	for v := int32(0); v < 6; v++ {
		enc.Encode(v * 11)
	}
	in := externalFrom(out)
	d1 := NewIntDecoder(&External{ContentID: 7}, nil, in)
	d2 := NewIntDecoder(&External{ContentID: 7}, nil, in)
	for v := int32(0); v < 6; v++ {
		d := d1
		if v%2 == 1 {
			d = d2
		}
		if got := d.Decode(); got != v*11 {
			t.Fatalf("interleaved read %d yields %d", v, got)
		}
	}
}

func TestSeriesMismatch(t *testing.T) {
	in := map[int32]*internal.Reader{}
	cases := []struct {
		name string
		f    func()
	}{
		{"int/byte-array-stop", func() { NewIntDecoder(&ByteArrayStop{Stop: 0, ContentID: 1}, nil, in) }},
		{"int/nil", func() { NewIntDecoder(nil, nil, in) }},
		{"byte/beta", func() { NewByteDecoder(&Beta{Bits: 8}, nil, in) }},
		{"byte-array/gamma", func() { NewBytesDecoder(&Gamma{}, nil, in) }},
		{"byte-array/bare external", func() { NewBytesDecoder(&External{ContentID: 1}, nil, in) }},
		{"long/huffman", func() { NewLongDecoder(&Huffman{}, in) }},
		{"missing block", func() { NewIntDecoder(&External{ContentID: 42}, nil, in) }},
		{"int encoder/nil", func() { NewIntEncoder(nil, nil, map[int32]*internal.Buffer{}) }},
	}
	for _, c := range cases {
		if err := catch(c.f); cram.KindOf(err) != cram.Malformed {
			t.Errorf("%s yields %v", c.name, err)
		}
	}
}

func TestReadEncodingMalformed(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"unknown id", []byte{13, 0}},
		{"missing length", []byte{byte(HuffmanID)}},
		{"truncated params", []byte{byte(BetaID), 10, 1}},
		{"oversized array", []byte{byte(HuffmanID), 2, 99, 0}},
	}
	for _, c := range cases {
		err := catch(func() { ReadEncoding(&internal.Reader{Data: c.data}) })
		if cram.KindOf(err) != cram.Malformed {
			t.Errorf("%s yields %v", c.name, err)
		}
	}
	for _, id := range []ID{GolombID, GolombRiceID} {
		err := catch(func() { ReadEncoding(&internal.Reader{Data: []byte{byte(id), 0}}) })
		if cram.KindOf(err) != cram.NotImplemented {
			t.Errorf("%v yields %v", id, err)
		}
	}
}
