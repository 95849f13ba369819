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
	"bytes"
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

const (
	testChr1 = "ACGTACGTACGTACGTACGTACG"
	testMT   = "TTAGN"
)

func openTestFasta(t *testing.T) *FastaSource {
	t.Helper()

	var fasta, fai bytes.Buffer

	fasta.WriteString(">chr1 test sequence\n")
	fmt.Fprintf(&fai, "chr1\t23\t%d\t10\t11\n", fasta.Len())
	fasta.WriteString("acgtacgtac\ngtacgtacgt\nacg\n")

	fasta.WriteString(">MT\n")
	fmt.Fprintf(&fai, "MT\t5\t%d\t5\t6\n", fasta.Len())
	fasta.WriteString("ttagn\n")

	filename := filepath.Join(t.TempDir(), "test.fasta")
	if err := os.WriteFile(filename, fasta.Bytes(), 0666); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filename+".fai", fai.Bytes(), 0666); err != nil {
		t.Fatal(err)
	}

	source, err := OpenFasta(filename)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := source.Close(); err != nil {
			t.Error(err)
		}
	})
	return source
}

func TestReferenceBases(t *testing.T) {
	source := openTestFasta(t)

	bases := source.ReferenceBases("chr1", false)
	if string(bases) != testChr1 {
		t.Fatalf("ReferenceBases(chr1) = %q", bases)
	}
	again := source.ReferenceBases("chr1", false)
	if &again[0] != &bases[0] {
		t.Error("second request should hit the cache")
	}

	if bases := source.ReferenceBases("MT", false); string(bases) != testMT {
		t.Errorf("ReferenceBases(MT) = %q", bases)
	}

	if bases := source.ReferenceBases("unknown", true); bases != nil {
		t.Errorf("ReferenceBases(unknown) = %q", bases)
	}
}

func TestReferenceBasesVariants(t *testing.T) {
	source := openTestFasta(t)

	if bases := source.ReferenceBases("1", false); bases != nil {
		t.Errorf("ReferenceBases(1) without variants = %q", bases)
	}
	if bases := source.ReferenceBases("1", true); string(bases) != testChr1 {
		t.Errorf("ReferenceBases(1) with variants = %q", bases)
	}
	if bases := source.ReferenceBases("M", true); string(bases) != testMT {
		t.Errorf("ReferenceBases(M) with variants = %q", bases)
	}
	if bases := source.ReferenceBases("chrM", true); string(bases) != testMT {
		t.Errorf("ReferenceBases(chrM) with variants = %q", bases)
	}
}

func TestReferenceBasesRegion(t *testing.T) {
	source := openTestFasta(t)

	if bases := source.ReferenceBasesRegion("chr1", 8, 6); string(bases) != testChr1[8:14] {
		t.Errorf("region across a line break = %q", bases)
	}
	if bases := source.ReferenceBasesRegion("chr1", 0, 23); string(bases) != testChr1 {
		t.Errorf("full region = %q", bases)
	}
	if bases := source.ReferenceBasesRegion("chr1", 20, 10); string(bases) != testChr1[20:] {
		t.Errorf("region past the end = %q", bases)
	}
	if bases := source.ReferenceBasesRegion("chr1", 23, 1); bases != nil {
		t.Errorf("region starting at the end = %q", bases)
	}
	if bases := source.ReferenceBasesRegion("chr1", -1, 5); bases != nil {
		t.Errorf("region with negative start = %q", bases)
	}
	if bases := source.ReferenceBasesRegion("1", 0, 5); bases != nil {
		t.Errorf("regions should not try name variants, got %q", bases)
	}
}

func TestRegionMD5(t *testing.T) {
	bases := []byte(testChr1)

	expected := md5.Sum(bases[2:7])
	if sum := RegionMD5(bases, 3, 5); !bytes.Equal(sum, expected[:]) {
		t.Errorf("RegionMD5 = %x, expected %x", sum, expected)
	}

	expected = md5.Sum(bases[19:])
	if sum := RegionMD5(bases, 20, 100); !bytes.Equal(sum, expected[:]) {
		t.Errorf("clamped RegionMD5 = %x, expected %x", sum, expected)
	}

	expected = md5.Sum(nil)
	if sum := RegionMD5(bases, 30, 5); !bytes.Equal(sum, expected[:]) {
		t.Errorf("out of range RegionMD5 = %x, expected %x", sum, expected)
	}
}
