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

package rangecoder

import (
	"github.com/exascience/cram"
	"github.com/exascience/cram/internal"
)

const (
	renormThreshold = 1 << 24
	freqStep        = 16
	maxTotalFreq    = 1<<16 - 17
)

// Coder holds the state of the arithmetic coder: a 32-bit range, and
// on the encoding side the pending low bytes with a carry counter, on
// the decoding side the sliding 32-bit code value. The encoder cannot
// emit an output byte until a carry can no longer reach it, so it
// keeps the newest byte in cache and counts trailing 0xff bytes in
// ffnum instead of writing them out.
//
// The quality-score codec drives Coder and ByteModel directly; the
// format entry points of this package never leave this package.
type Coder struct {
	low   uint64
	rng   uint32
	code  uint32
	cache byte
	ffnum int
	carry bool
}

func NewCoder() *Coder {
	return &Coder{rng: 0xffffffff}
}

// StartDecode preloads the code value. Five bytes cover the initial
// zero cache byte of the encoder plus the 32-bit code.
func (c *Coder) StartDecode(r *internal.Reader) {
	for i := 0; i < 5; i++ {
		c.code = c.code<<8 | uint32(r.U8())
	}
}

func (c *Coder) getFreq(totFreq uint32) uint32 {
	c.rng /= totFreq
	return c.code / c.rng
}

func (c *Coder) decode(r *internal.Reader, cumFreq, freq uint32) {
	c.code -= cumFreq * c.rng
	c.rng *= freq
	for c.rng < renormThreshold {
		c.rng <<= 8
		c.code = c.code<<8 | uint32(r.U8())
	}
}

func (c *Coder) encode(out *[]byte, cumFreq, freq, totFreq uint32) {
	c.rng /= totFreq
	c.low += uint64(cumFreq) * uint64(c.rng)
	c.rng *= freq
	if c.low > 0xffffffff {
		c.carry = true
		c.low &= 0xffffffff
	}
	for c.rng < renormThreshold {
		c.rng <<= 8
		c.shiftLow(out)
	}
}

// Finish flushes the remaining low bytes. The decoder preloads five
// bytes, so five shifts keep the stream lengths in lockstep.
func (c *Coder) Finish(out *[]byte) {
	for i := 0; i < 5; i++ {
		c.shiftLow(out)
	}
}

func (c *Coder) shiftLow(out *[]byte) {
	if c.low < 0xff000000 || c.carry {
		if c.carry {
			*out = append(*out, c.cache+1)
			for ; c.ffnum > 0; c.ffnum-- {
				*out = append(*out, 0x00)
			}
		} else {
			*out = append(*out, c.cache)
			for ; c.ffnum > 0; c.ffnum-- {
				*out = append(*out, 0xff)
			}
		}
		c.cache = byte(c.low >> 24)
		c.carry = false
	} else {
		c.ffnum++
	}
	c.low = c.low << 8 & 0xffffffff
}

// ByteModel is an adaptive frequency model over a fixed set of
// symbols, kept approximately sorted by descending frequency so that
// frequent symbols are found early. Encoder and decoder update the
// model identically and therefore stay in sync without any table in
// the stream.
type ByteModel struct {
	total uint32
	syms  []byte
	freqs []uint32
}

func NewByteModel(numSymbols int) *ByteModel {
	m := &ByteModel{
		total: uint32(numSymbols),
		syms:  make([]byte, numSymbols),
		freqs: make([]uint32, numSymbols),
	}
	for i := range m.syms {
		m.syms[i] = byte(i)
		m.freqs[i] = 1
	}
	return m
}

// NewByteModels allocates numModels identical fresh models, one per
// coding context.
func NewByteModels(numModels, numSymbols int) []*ByteModel {
	models := make([]*ByteModel, numModels)
	for i := range models {
		models[i] = NewByteModel(numSymbols)
	}
	return models
}

func (m *ByteModel) Encode(out *[]byte, c *Coder, sym byte) {
	var cum uint32
	i := 0
	for m.syms[i] != sym {
		cum += m.freqs[i]
		i++
	}
	c.encode(out, cum, m.freqs[i], m.total)
	m.update(i)
}

func (m *ByteModel) Decode(r *internal.Reader, c *Coder) byte {
	f := c.getFreq(m.total)
	var cum uint32
	i := 0
	for cum+m.freqs[i] <= f {
		cum += m.freqs[i]
		i++
		if i == len(m.freqs) {
			panic(cram.Malformedf("arithmetic coder frequency %d outside model total %d", f, m.total))
		}
	}
	c.decode(r, cum, m.freqs[i])
	sym := m.syms[i]
	m.update(i)
	return sym
}

func (m *ByteModel) update(i int) {
	m.freqs[i] += freqStep
	m.total += freqStep
	if m.total > maxTotalFreq {
		m.renormalize()
	}
	if i > 0 && m.freqs[i] > m.freqs[i-1] {
		m.freqs[i], m.freqs[i-1] = m.freqs[i-1], m.freqs[i]
		m.syms[i], m.syms[i-1] = m.syms[i-1], m.syms[i]
	}
}

func (m *ByteModel) renormalize() {
	m.total = 0
	for i, f := range m.freqs {
		f -= f / 2
		m.freqs[i] = f
		m.total += f
	}
}
