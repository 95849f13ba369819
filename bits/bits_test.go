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

package bits

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/exascience/cram"
)

func TestBitOrder(t *testing.T) {
	w := NewWriter()
	w.WriteBit(1)
	w.WriteBits(0, 3)
	w.WriteBits(0b1011, 4)
	if data := w.Bytes(); !bytes.Equal(data, []byte{0x8B}) {
		t.Fatalf("got % x, want 8b", data)
	}
	r := NewReader([]byte{0x8B})
	if bit := r.ReadBit(); bit != 1 {
		t.Errorf("first bit: got %d, want 1", bit)
	}
	if v := r.ReadBits(3); v != 0 {
		t.Errorf("next 3 bits: got %d, want 0", v)
	}
	if v := r.ReadBits(4); v != 0b1011 {
		t.Errorf("last 4 bits: got %#b, want 1011", v)
	}
}

func TestBitsRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var values []uint32
	var widths []int
	w := NewWriter()
	for i := 0; i < 10000; i++ {
		n := rng.Intn(33)
		v := rng.Uint32()
		if n < 32 {
			v &= 1<<uint(n) - 1
		}
		w.WriteBits(v, n)
		values = append(values, v)
		widths = append(widths, n)
	}
	b := w.Bytes()
	if w.Len() != len(b)*8 {
		t.Errorf("Len after Bytes: got %d, want %d", w.Len(), len(b)*8)
	}
	r := NewReader(b)
	for i, v := range values {
		if got := r.ReadBits(widths[i]); got != v {
			t.Fatalf("value %d: got %d, want %d (%d bits)", i, got, v, widths[i])
		}
	}
}

func TestAlign(t *testing.T) {
	r := NewReader([]byte{0xF0, 0x0F})
	r.ReadBits(2)
	r.Align()
	if v := r.ReadBits(8); v != 0x0F {
		t.Errorf("after align: got %#x, want 0x0f", v)
	}
}

func TestExhaustedStream(t *testing.T) {
	defer func() {
		if err, ok := recover().(error); !ok || cram.KindOf(err) != cram.Malformed {
			t.Errorf("got %v, want a malformed data panic", err)
		}
	}()
	r := NewReader([]byte{0xFF})
	r.ReadBits(9)
}

func TestBadBitCount(t *testing.T) {
	defer func() {
		if err, ok := recover().(error); !ok || cram.KindOf(err) != cram.DomainViolation {
			t.Errorf("got %v, want a domain violation panic", err)
		}
	}()
	NewReader(nil).ReadBits(33)
}
