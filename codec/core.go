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
	"math"
	mathbits "math/bits"

	"github.com/exascience/cram"
	"github.com/exascience/cram/bits"
)

// betaCodec codes value+offset as an unsigned integer in a fixed
// number of bits. Values outside [0, 1<<width) after biasing are a
// hard encode error, never clamped or wrapped.
type betaCodec struct {
	offset int32
	width  int
}

func newBetaCodec(e *Beta) betaCodec {
	if e.Bits < 0 || e.Bits > 32 {
		panic(cram.Malformedf("beta encoding with %d bits per value", e.Bits))
	}
	return betaCodec{offset: e.Offset, width: int(e.Bits)}
}

type betaDecoder struct {
	betaCodec
	core *bits.Reader
}

func (d *betaDecoder) Decode() int32 {
	return int32(d.core.ReadBits(d.width)) - d.offset
}

type betaEncoder struct {
	betaCodec
	core *bits.Writer
}

func (e *betaEncoder) Encode(v int32) {
	b := int64(v) + int64(e.offset)
	if b < 0 || b >= 1<<uint(e.width) {
		panic(cram.DomainViolationf("value %d with offset %d does not fit in %d bits", v, e.offset, e.width))
	}
	e.core.WriteBits(uint32(b), e.width)
}

// The gamma codec stores value+offset as an Elias gamma code: the bit
// length of the biased value in unary (zeros terminated by the value's
// leading one bit), followed by its remaining bits. Only biased values
// of at least 1 can be coded.
type gammaDecoder struct {
	offset int32
	core   *bits.Reader
}

func (d *gammaDecoder) Decode() int32 {
	length := 1
	for d.core.ReadBit() == 0 {
		if length++; length > 31 {
			panic(cram.Malformedf("gamma code runs past 31 bits"))
		}
	}
	v := uint32(1)<<uint(length-1) | d.core.ReadBits(length-1)
	return int32(v) - d.offset
}

type gammaEncoder struct {
	offset int32
	core   *bits.Writer
}

func (e *gammaEncoder) Encode(v int32) {
	b := int64(v) + int64(e.offset)
	if b < 1 || b > math.MaxInt32 {
		panic(cram.DomainViolationf("value %d with offset %d is outside the gamma domain [1,%d]", v, e.offset, math.MaxInt32))
	}
	n := mathbits.Len64(uint64(b))
	e.core.WriteBits(0, n-1)
	e.core.WriteBits(uint32(b), n)
}

// subexponentialCodec codes value+offset with a unary prefix of u one
// bits selecting a class of k+max(u-1,0) remainder bits: values below
// 1<<k are fixed-width, larger values degrade gamma-like, with k
// steering the crossover.
type subexponentialCodec struct {
	offset int32
	k      int
}

func newSubexponentialCodec(e *Subexponential) subexponentialCodec {
	if e.K < 0 || e.K > 30 {
		panic(cram.Malformedf("subexponential encoding with parameter k=%d", e.K))
	}
	return subexponentialCodec{offset: e.Offset, k: int(e.K)}
}

type subexponentialDecoder struct {
	subexponentialCodec
	core *bits.Reader
}

func (d *subexponentialDecoder) Decode() int32 {
	u := 0
	for d.core.ReadBit() == 1 {
		u++
	}
	var v uint32
	if u == 0 {
		v = d.core.ReadBits(d.k)
	} else {
		b := u + d.k - 1
		if b > 30 {
			panic(cram.Malformedf("subexponential class of %d bits", b+1))
		}
		v = uint32(1)<<uint(b) | d.core.ReadBits(b)
	}
	return int32(v) - d.offset
}

type subexponentialEncoder struct {
	subexponentialCodec
	core *bits.Writer
}

func (e *subexponentialEncoder) Encode(v int32) {
	b := int64(v) + int64(e.offset)
	if b < 0 || b > math.MaxInt32 {
		panic(cram.DomainViolationf("value %d with offset %d is outside the subexponential domain [0,%d]", v, e.offset, math.MaxInt32))
	}
	var u, w int
	if b < 1<<uint(e.k) {
		u, w = 0, e.k
	} else {
		// The leading one bit of the biased value is implied by the
		// class, so only the w bits below it are written.
		n := mathbits.Len64(uint64(b))
		u, w = n-e.k, n-1
	}
	for ; u > 0; u-- {
		e.core.WriteBit(1)
	}
	e.core.WriteBit(0)
	e.core.WriteBits(uint32(b), w)
}
