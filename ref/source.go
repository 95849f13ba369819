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

package ref

import (
	"bufio"
	"bytes"
	"crypto/md5"
	"strings"

	"github.com/exascience/cram"
	"github.com/exascience/cram/internal"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sys/unix"
)

// Source hands out reference bases to a compression context. Both calls
// are synchronous; callers that decode slices concurrently must either
// use one Source per goroutine or wrap a Source with their own locking.
type Source interface {
	// ReferenceBases returns all bases of the named sequence, upper case
	// and with line breaks stripped, or nil when the sequence is unknown.
	// With tryVariants set, alternate spellings of the name are tried as
	// well (chr prefix added or stripped, M for MT and vice versa).
	ReferenceBases(name string, tryVariants bool) []byte

	// ReferenceBasesRegion returns length bases of the named sequence
	// starting at the zero-based position start. The result is shorter
	// than length when the sequence ends early, and nil when the sequence
	// is unknown or start is out of range.
	ReferenceBasesRegion(name string, start, length int) []byte
}

// FaiReference represents an entry in an FAI file.
type FaiReference struct {
	Length    int32
	Offset    int64
	LineBases int32
	LineWidth int32
}

// ParseFai parses an FAI file.
func ParseFai(filename string) (fai map[string]FaiReference) {
	f := internal.FileOpen(filename)
	defer internal.Close(f)

	fai = make(map[string]FaiReference)

	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		b := bytes.Split(scanner.Bytes(), []byte("\t"))
		if len(b) != 5 {
			panic(cram.Malformedf("badly formatted fai file %v - invalid number of entries", filename))
		}

		fai[string(b[0])] = FaiReference{
			Length:    int32(internal.ParseInt(string(b[1]), 10, 32)),
			Offset:    internal.ParseInt(string(b[2]), 10, 64),
			LineBases: int32(internal.ParseInt(string(b[3]), 10, 32)),
			LineWidth: int32(internal.ParseInt(string(b[4]), 10, 32)),
		}
	}

	if err := scanner.Err(); err != nil {
		panic(err)
	}

	return fai
}

// contigCacheSize bounds the number of materialized sequences a
// FastaSource keeps around. Slices within a container tend to revisit
// the same few contigs, so a small cache suffices.
const contigCacheSize = 16

// FastaSource is a Source backed by an indexed FASTA file. The FASTA
// file is memory mapped and bases are extracted on demand using the FAI
// index, so opening a source does not load any sequence data.
type FastaSource struct {
	fai   map[string]FaiReference
	data  []byte
	cache *lru.Cache[string, []byte]
}

// OpenFasta opens a FASTA file with an FAI index next to it (the FASTA
// filename plus ".fai").
func OpenFasta(filename string) (source *FastaSource, err error) {
	defer cram.Recover(&err)

	fai := ParseFai(filename + ".fai")

	file := internal.FileOpen(filename)
	defer internal.Close(file)
	stat, nerr := file.Stat()
	if nerr != nil {
		panic(nerr)
	}
	data, nerr := unix.Mmap(int(file.Fd()), 0, int(stat.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if nerr != nil {
		panic(nerr)
	}

	cache, nerr := lru.New[string, []byte](contigCacheSize)
	if nerr != nil {
		panic(nerr)
	}

	return &FastaSource{fai: fai, data: data, cache: cache}, nil
}

// Close unmaps the FASTA file.
func (s *FastaSource) Close() error {
	data := s.data
	s.data = nil
	s.fai = nil
	s.cache = nil
	return unix.Munmap(data)
}

// ReferenceBases implements the Source interface. Materialized sequences
// are kept in an LRU cache, so repeated requests for the same sequence
// return the same byte slice; callers must treat it as read only.
func (s *FastaSource) ReferenceBases(name string, tryVariants bool) []byte {
	if bases, ok := s.cache.Get(name); ok {
		return bases
	}
	fai, ok := s.lookup(name, tryVariants)
	if !ok {
		return nil
	}
	bases := s.extract(fai, 0, int(fai.Length))
	s.cache.Add(name, bases)
	return bases
}

// ReferenceBasesRegion implements the Source interface. Regions are
// extracted straight from the memory map without materializing the whole
// sequence. Name variants are not tried.
func (s *FastaSource) ReferenceBasesRegion(name string, start, length int) []byte {
	if start < 0 || length < 0 {
		return nil
	}
	fai, ok := s.lookup(name, false)
	if !ok || start >= int(fai.Length) {
		return nil
	}
	return s.extract(fai, start, length)
}

func (s *FastaSource) lookup(name string, tryVariants bool) (FaiReference, bool) {
	if fai, ok := s.fai[name]; ok {
		return fai, true
	}
	if tryVariants {
		for _, variant := range nameVariants(name) {
			if fai, ok := s.fai[variant]; ok {
				return fai, true
			}
		}
	}
	return FaiReference{}, false
}

// nameVariants lists the alternate spellings tried when a sequence name
// is not found as given: M and MT are interchangeable, and a chr prefix
// is added or stripped.
func nameVariants(name string) []string {
	var variants []string
	switch name {
	case "M":
		variants = append(variants, "MT")
	case "MT":
		variants = append(variants, "M")
	}
	if len(name) >= 3 && strings.EqualFold(name[:3], "chr") {
		variants = append(variants, name[3:])
	} else {
		variants = append(variants, "chr"+name)
	}
	if name == "chrM" {
		variants = append(variants, "MT")
	}
	return variants
}

// extract copies n bases starting at the zero-based position start,
// stripping line breaks and converting to upper case. Ambiguity codes are
// left alone so that digests over the returned bases match digests
// computed by other tools. n is clamped to the end of the sequence.
func (s *FastaSource) extract(fai FaiReference, start, n int) []byte {
	if n > int(fai.Length)-start {
		n = int(fai.Length) - start
	}
	bases := make([]byte, 0, n)
	for n > 0 {
		line := start / int(fai.LineBases)
		col := start % int(fai.LineBases)
		take := int(fai.LineBases) - col
		if take > n {
			take = n
		}
		pos := fai.Offset + int64(line)*int64(fai.LineWidth) + int64(col)
		if pos+int64(take) > int64(len(s.data)) {
			panic(cram.Malformedf("fai entry points past the end of the fasta file"))
		}
		for _, c := range s.data[pos : pos+int64(take)] {
			if c >= 'a' && c <= 'z' {
				c -= 'a' - 'A'
			}
			bases = append(bases, c)
		}
		start += take
		n -= take
	}
	return bases
}

// RegionMD5 digests bases[start-1 : start-1+span], with start 1-based as
// in slice headers and span clamped to the end of the sequence. This is
// the digest stored in slice headers for reference validation.
func RegionMD5(bases []byte, start, span int) []byte {
	from := start - 1
	if from < 0 {
		from = 0
	}
	if from > len(bases) {
		from = len(bases)
	}
	if span > len(bases)-from {
		span = len(bases) - from
	}
	if span < 0 {
		span = 0
	}
	sum := md5.Sum(bases[from : from+span])
	return sum[:]
}
