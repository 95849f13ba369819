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

// Package cram implements the compression core of the CRAM format for
// reference-based sequencing data: block framing, the core bitstream
// encodings, the rANS and range entropy coders, and the specialized
// read-name and quality-score codecs.
//
// See https://samtools.github.io/hts-specs/CRAMv3.pdf and
// https://samtools.github.io/hts-specs/CRAMcodecs.pdf for the format
// definitions this library follows.
package cram

import (
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Version identifies a major.minor version of the container format.
type Version struct {
	Major, Minor byte
}

// The container format versions this library knows about.
var (
	V2_1 = Version{2, 1}
	V3_0 = Version{3, 0}
	V3_1 = Version{3, 1}
)

// AtLeast tells whether v is the given version or a newer one.
func (v Version) AtLeast(w Version) bool {
	return v.Major > w.Major || (v.Major == w.Major && v.Minor >= w.Minor)
}

// Supported tells whether this library can read containers of version v.
func (v Version) Supported() bool {
	return v.AtLeast(V2_1) && V3_1.AtLeast(v)
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

var cramMagic = [4]byte{'C', 'R', 'A', 'M'}

// FileIDLength is the fixed size of the file id in the file definition.
const FileIDLength = 20

// FileDefinition is the fixed 26-byte header that starts every CRAM file:
// the magic bytes, the format version, and an arbitrary file id.
// See section 6 of the CRAM specification.
type FileDefinition struct {
	Version Version
	ID      [FileIDLength]byte
}

// NewFileDefinition creates a file definition for the given version with a
// freshly generated file id.
func NewFileDefinition(version Version) *FileDefinition {
	def := &FileDefinition{Version: version}
	copy(def.ID[:], uuid.New().String())
	return def
}

// Write writes the file definition to the given writer.
func (def *FileDefinition) Write(w io.Writer) error {
	var buf [4 + 2 + FileIDLength]byte
	copy(buf[:4], cramMagic[:])
	buf[4] = def.Version.Major
	buf[5] = def.Version.Minor
	copy(buf[6:], def.ID[:])
	_, err := w.Write(buf[:])
	return err
}

// ReadFileDefinition reads and validates the file definition that starts a
// CRAM file. The magic bytes must match and the version must be supported.
func ReadFileDefinition(r io.Reader) (*FileDefinition, error) {
	var buf [4 + 2 + FileIDLength]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, Malformedf("truncated CRAM file definition: %v", err)
	}
	if string(buf[:4]) != string(cramMagic[:]) {
		return nil, Malformedf("invalid CRAM magic %q", buf[:4])
	}
	def := &FileDefinition{Version: Version{buf[4], buf[5]}}
	copy(def.ID[:], buf[6:])
	if !def.Version.Supported() {
		return def, UnsupportedVersionf("unsupported CRAM version %v", def.Version)
	}
	return def, nil
}
