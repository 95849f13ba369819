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

	"github.com/exascience/cram"
	"github.com/exascience/cram/ref"
)

// Alignment coordinate sentinels for content that has no placement.
const (
	NoAlignmentStart int32 = 0
	NoAlignmentSpan  int32 = 0
)

// EOFAlignmentStart is the alignment start declared by end-of-file
// containers; its ITF8 bytes spell out "EOF".
const EOFAlignmentStart int32 = 4542278

// AlignmentContext places a slice or container on the reference: the
// reference context plus the 1-based start position and span the
// content covers. Unmapped-unplaced and multiple-reference content
// carries no placement.
type AlignmentContext struct {
	ReferenceContext ref.Context
	Start            int32
	Span             int32
}

var (
	UnmappedUnplacedContext  = AlignmentContext{ReferenceContext: ref.UnmappedUnplaced}
	MultipleReferenceContext = AlignmentContext{ReferenceContext: ref.MultipleReference}

	// EOFContext is the alignment context of end-of-file containers.
	EOFContext = AlignmentContext{ReferenceContext: ref.UnmappedUnplaced, Start: EOFAlignmentStart}
)

// NewAlignmentContext builds a validated alignment context.
func NewAlignmentContext(referenceContext ref.Context, start, span int32) (AlignmentContext, error) {
	c := AlignmentContext{ReferenceContext: referenceContext, Start: start, Span: span}
	if err := c.Validate(); err != nil {
		return AlignmentContext{}, err
	}
	return c, nil
}

// Validate reports coordinates outside the domain of the reference
// context. Only write paths enforce this; files in the wild carry
// out-of-band values in the cases where the format was historically
// underspecified, so read paths stay lenient.
func (c AlignmentContext) Validate() error {
	switch {
	case c.ReferenceContext.IsSingleReference():
		// A span of zero is legal: a slice can consist of a single
		// placed record without a sequence.
		if c.Start < 0 {
			return cram.DomainViolationf("%v with alignment start %d", c.ReferenceContext, c.Start)
		}
	case c.ReferenceContext.IsUnmappedUnplaced():
		if c != UnmappedUnplacedContext && c != EOFContext {
			return cram.DomainViolationf("%v content with alignment start %d and span %d",
				c.ReferenceContext, c.Start, c.Span)
		}
	case c.ReferenceContext.IsMultipleReference():
		if c != MultipleReferenceContext {
			return cram.DomainViolationf("%v content with alignment start %d and span %d",
				c.ReferenceContext, c.Start, c.Span)
		}
	default:
		return cram.DomainViolationf("%v", c.ReferenceContext)
	}
	return nil
}

func (c AlignmentContext) String() string {
	if c.ReferenceContext.IsSingleReference() {
		return fmt.Sprintf("%v, start %d, span %d", c.ReferenceContext, c.Start, c.Span)
	}
	return c.ReferenceContext.String()
}
