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

package varint

import (
	"bytes"
	"math"
	"testing"

	"github.com/exascience/cram"
	fuzz "github.com/google/gofuzz"
)

func TestITF8KnownValues(t *testing.T) {
	for _, c := range []struct {
		value   int32
		encoded []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7F}},
		{128, []byte{0x80, 0x80}},
		{255, []byte{0x80, 0xFF}},
		{16383, []byte{0xBF, 0xFF}},
		{16384, []byte{0xC0, 0x40, 0x00}},
		{1<<21 - 1, []byte{0xDF, 0xFF, 0xFF}},
		{1 << 21, []byte{0xE0, 0x20, 0x00, 0x00}},
		{1<<28 - 1, []byte{0xEF, 0xFF, 0xFF, 0xFF}},
		{1 << 28, []byte{0xF1, 0x00, 0x00, 0x00, 0x00}},
		{4542278, []byte{0xE0, 0x45, 0x4F, 0x46}},
		{-1, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x0F}},
	} {
		if encoded := AppendITF8(nil, c.value); !bytes.Equal(encoded, c.encoded) {
			t.Errorf("AppendITF8(%d): got % x, want % x", c.value, encoded, c.encoded)
		}
		value, err := ReadITF8(bytes.NewReader(c.encoded))
		if err != nil {
			t.Fatal(err)
		}
		if value != c.value {
			t.Errorf("ReadITF8(% x): got %d, want %d", c.encoded, value, c.value)
		}
	}
}

func TestITF8RoundTrip(t *testing.T) {
	values := []int32{0, 1, 127, 128, 255, 256, 16383, 16384, 1<<21 - 1, 1 << 21, 1<<28 - 1, 1 << 28, math.MaxInt32, -1, -127, -128, math.MinInt32}
	f := fuzz.New()
	var v int32
	for i := 0; i < 1000; i++ {
		f.Fuzz(&v)
		values = append(values, v)
	}
	for _, value := range values {
		encoded := AppendITF8(nil, value)
		if len(encoded) > MaxLenITF8 {
			t.Fatalf("AppendITF8(%d) produced %d bytes", value, len(encoded))
		}
		decoded, err := ReadITF8(bytes.NewReader(encoded))
		if err != nil {
			t.Fatal(err)
		}
		if decoded != value {
			t.Errorf("ITF8 round trip of %d: got %d", value, decoded)
		}
	}
}

func TestLTF8RoundTrip(t *testing.T) {
	values := []int64{0, 1, 127, 128, 1<<14 - 1, 1 << 14, 1<<21 - 1, 1 << 21, 1<<28 - 1, 1 << 28, 1<<35 - 1, 1 << 35, 1<<42 - 1, 1 << 42, 1<<49 - 1, 1 << 49, 1<<56 - 1, 1 << 56, math.MaxInt64, -1, math.MinInt64}
	f := fuzz.New()
	var v int64
	for i := 0; i < 1000; i++ {
		f.Fuzz(&v)
		values = append(values, v)
	}
	for _, value := range values {
		encoded := AppendLTF8(nil, value)
		if len(encoded) > MaxLenLTF8 {
			t.Fatalf("AppendLTF8(%d) produced %d bytes", value, len(encoded))
		}
		decoded, err := ReadLTF8(bytes.NewReader(encoded))
		if err != nil {
			t.Fatal(err)
		}
		if decoded != value {
			t.Errorf("LTF8 round trip of %d: got %d", value, decoded)
		}
	}
}

func TestLTF8KnownValues(t *testing.T) {
	for _, c := range []struct {
		value   int64
		encoded []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7F}},
		{128, []byte{0x80, 0x80}},
		{1 << 56, []byte{0xFF, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},
		{-1, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}},
	} {
		if encoded := AppendLTF8(nil, c.value); !bytes.Equal(encoded, c.encoded) {
			t.Errorf("AppendLTF8(%d): got % x, want % x", c.value, encoded, c.encoded)
		}
		value, err := ReadLTF8(bytes.NewReader(c.encoded))
		if err != nil {
			t.Fatal(err)
		}
		if value != c.value {
			t.Errorf("ReadLTF8(% x): got %d, want %d", c.encoded, value, c.value)
		}
	}
}

func TestUint7RoundTrip(t *testing.T) {
	values := []uint32{0, 1, 127, 128, 1<<14 - 1, 1 << 14, 1<<21 - 1, 1 << 21, 1<<28 - 1, 1 << 28, math.MaxUint32}
	f := fuzz.New()
	var v uint32
	for i := 0; i < 1000; i++ {
		f.Fuzz(&v)
		values = append(values, v)
	}
	for _, value := range values {
		encoded := AppendUint7(nil, value)
		if len(encoded) > MaxLenUint7 {
			t.Fatalf("AppendUint7(%d) produced %d bytes", value, len(encoded))
		}
		decoded, err := ReadUint7(bytes.NewReader(encoded))
		if err != nil {
			t.Fatal(err)
		}
		if decoded != value {
			t.Errorf("uint7 round trip of %d: got %d", value, decoded)
		}
	}
	if encoded := AppendUint7(nil, 128); !bytes.Equal(encoded, []byte{0x81, 0x00}) {
		t.Errorf("AppendUint7(128): got % x, want 81 00", encoded)
	}
}

func TestTruncatedValues(t *testing.T) {
	if _, err := ReadITF8(bytes.NewReader([]byte{0xF0, 0x01})); cram.KindOf(err) != cram.Malformed {
		t.Errorf("truncated ITF8: got %v", err)
	}
	if _, err := ReadITF8(bytes.NewReader(nil)); cram.KindOf(err) != cram.Malformed {
		t.Errorf("empty ITF8: got %v", err)
	}
	if _, err := ReadLTF8(bytes.NewReader([]byte{0xFF, 0x01, 0x02})); cram.KindOf(err) != cram.Malformed {
		t.Errorf("truncated LTF8: got %v", err)
	}
	if _, err := ReadUint7(bytes.NewReader([]byte{0x81, 0x82})); cram.KindOf(err) != cram.Malformed {
		t.Errorf("truncated uint7: got %v", err)
	}
	if _, err := ReadUint7(bytes.NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x7F})); cram.KindOf(err) != cram.Malformed {
		t.Errorf("oversized uint7: got %v", err)
	}
}
