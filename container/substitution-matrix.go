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
	"fmt"
	"strings"

	"github.com/exascience/cram"
)

// SubstitutionBases lists the substitution alphabet in code order.
var SubstitutionBases = [5]byte{'A', 'C', 'G', 'T', 'N'}

// baseIndex maps a base character to its position in
// SubstitutionBases. Lower case maps like upper case, and any base
// outside the alphabet substitutes like N.
var baseIndex [256]byte

func init() {
	for i := range baseIndex {
		baseIndex[i] = 4
	}
	for i, base := range SubstitutionBases {
		baseIndex[base] = byte(i)
		baseIndex[base|0x20] = byte(i)
	}
}

/*
A SubstitutionMatrix assigns a 2-bit code to each (reference base, read
base) substitution over the alphabet A, C, G, T, N. The base
substitution data series stores these codes instead of read bases, so
an encoder chooses the assignment that gives the most frequent
substitutions the smallest codes.

On the wire the matrix is five bytes, one per reference base in
alphabet order. Each byte packs the codes of the four substituted
bases, again in alphabet order, from the high bits down.
*/
type SubstitutionMatrix struct {
	encoded [5]byte
	bases   [5][4]byte
	codes   [5][5]byte
}

// NewSubstitutionMatrix builds the matrix that codes substitutions
// cheapest first, given how often each read base was seen against each
// reference base. frequencies is indexed by BaseIndex on both sides.
// With all frequencies zero, codes are assigned in alphabet order.
func NewSubstitutionMatrix(frequencies [5][5]int64) *SubstitutionMatrix {
	m := new(SubstitutionMatrix)
	for r := range SubstitutionBases {
		others := make([]int, 0, 4)
		for b := range SubstitutionBases {
			if b != r {
				others = append(others, b)
			}
		}
		// Insertion sort by descending frequency; equal frequencies
		// stay in alphabet order.
		for i := 1; i < len(others); i++ {
			for j := i; j > 0 && frequencies[r][others[j]] > frequencies[r][others[j-1]]; j-- {
				others[j], others[j-1] = others[j-1], others[j]
			}
		}
		for code, b := range others {
			m.codes[r][b] = byte(code)
			m.bases[r][code] = SubstitutionBases[b]
		}
		var packed byte
		for b := range SubstitutionBases {
			if b != r {
				packed = packed<<2 | m.codes[r][b]
			}
		}
		m.encoded[r] = packed
	}
	return m
}

// DecodeSubstitutionMatrix restores a matrix from its five-byte wire
// form. It panics with a *cram.Error value when p does not hold
// exactly five bytes.
func DecodeSubstitutionMatrix(p []byte) *SubstitutionMatrix {
	if len(p) != 5 {
		panic(cram.Malformedf("substitution matrix of %d bytes", len(p)))
	}
	m := new(SubstitutionMatrix)
	copy(m.encoded[:], p)
	for r := range SubstitutionBases {
		packed := m.encoded[r]
		shift := 6
		for b := range SubstitutionBases {
			if b == r {
				continue
			}
			code := packed >> shift & 3
			shift -= 2
			m.codes[r][b] = code
			m.bases[r][code] = SubstitutionBases[b]
		}
	}
	return m
}

// Encoded returns the five-byte wire form of the matrix.
func (m *SubstitutionMatrix) Encoded() [5]byte {
	return m.encoded
}

// Code returns the substitution code stored when readBase was read
// where the reference holds refBase. Both lookups are case
// insensitive.
func (m *SubstitutionMatrix) Code(refBase, readBase byte) byte {
	return m.codes[baseIndex[refBase]][baseIndex[readBase]]
}

// Base returns the read base a substitution code stands for where the
// reference holds refBase. The result is always upper case.
func (m *SubstitutionMatrix) Base(refBase, code byte) byte {
	return m.bases[baseIndex[refBase]][code&3]
}

func (m *SubstitutionMatrix) String() string {
	var sb strings.Builder
	for r, refBase := range SubstitutionBases {
		if r > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%c:%s", refBase, m.bases[r][:])
	}
	return sb.String()
}
