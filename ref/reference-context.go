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

// Package ref provides reference-sequence contexts and reference-base
// sources for reference-based compression.
//
// A Context tags a slice or container with the reference scope of the
// records it holds: a single reference sequence, unmapped-unplaced, or
// multiple references. A Source hands out reference bases for encoding,
// decoding, and MD5 validation of slices.
package ref

import (
	"fmt"

	"github.com/exascience/cram"
)

// Sentinel context ids fixed by the container format. Real sequence ids
// are non-negative, so the sentinels never collide with them.
const (
	UnmappedUnplacedID  = -1
	MultipleReferenceID = -2
)

// Context is the reference scope of a slice or container: a non-negative
// reference sequence id, or one of the two sentinel ids. The ordering of
// the underlying id is the ordering of contexts.
type Context int32

// The two sentinel contexts.
const (
	UnmappedUnplaced  Context = UnmappedUnplacedID
	MultipleReference Context = MultipleReferenceID
)

// NewContext validates a context id read from a stream.
func NewContext(id int32) (Context, error) {
	if id < MultipleReferenceID {
		return 0, cram.Malformedf("invalid reference context id %d", id)
	}
	return Context(id), nil
}

func (c Context) IsSingleReference() bool  { return c >= 0 }
func (c Context) IsUnmappedUnplaced() bool { return c == UnmappedUnplaced }
func (c Context) IsMultipleReference() bool {
	return c == MultipleReference
}

// ID returns the underlying context id, sentinels included.
func (c Context) ID() int32 {
	return int32(c)
}

// SequenceID returns the reference sequence id. It is meaningful only for
// single-reference contexts.
func (c Context) SequenceID() int32 {
	return int32(c)
}

func (c Context) String() string {
	switch {
	case c >= 0:
		return fmt.Sprintf("reference %d", int32(c))
	case c == UnmappedUnplaced:
		return "unmapped-unplaced"
	case c == MultipleReference:
		return "multiple-reference"
	default:
		return fmt.Sprintf("invalid reference context %d", int32(c))
	}
}
