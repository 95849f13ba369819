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
	"os"
	"path/filepath"
	"testing"

	"github.com/exascience/cram"
)

func TestEncodingStrategyRoundTrip(t *testing.T) {
	s := DefaultEncodingStrategy()
	s.GzipCompressionLevel = 9
	s.ReadsPerSlice = 25000
	s.EmbedReference = true

	filename := filepath.Join(t.TempDir(), "strategy.yaml")
	if err := s.Save(filename); err != nil {
		t.Fatal(err)
	}
	got, err := LoadEncodingStrategy(filename)
	if err != nil {
		t.Fatal(err)
	}
	if *got != *s {
		t.Errorf("strategy read back as %+v, want %+v", got, s)
	}
}

func TestEncodingStrategyDefaulting(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "strategy.yaml")
	if err := os.WriteFile(filename, []byte("gzipCompressionLevel: 1\n"), 0666); err != nil {
		t.Fatal(err)
	}
	got, err := LoadEncodingStrategy(filename)
	if err != nil {
		t.Fatal(err)
	}
	want := DefaultEncodingStrategy()
	want.GzipCompressionLevel = 1
	if *got != *want {
		t.Errorf("strategy read back as %+v, want %+v", got, want)
	}
}

func TestEncodingStrategyErrors(t *testing.T) {
	dir := t.TempDir()

	unknown := filepath.Join(dir, "unknown.yaml")
	if err := os.WriteFile(unknown, []byte("gzipLevel: 1\n"), 0666); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadEncodingStrategy(unknown); cram.KindOf(err) != cram.Malformed {
		t.Errorf("unknown key: %v", err)
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("readsPerSlice: 0\n"), 0666); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadEncodingStrategy(invalid); cram.KindOf(err) != cram.DomainViolation {
		t.Errorf("invalid value: %v", err)
	}

	if _, err := LoadEncodingStrategy(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file: no error")
	}

	for _, s := range []*EncodingStrategy{
		{GzipCompressionLevel: -1, ReadsPerSlice: 10, MinimumSingleReferenceSliceSize: 1, SlicesPerContainer: 1},
		{GzipCompressionLevel: 5, ReadsPerSlice: 10, MinimumSingleReferenceSliceSize: 11, SlicesPerContainer: 1},
		{GzipCompressionLevel: 5, ReadsPerSlice: 10, MinimumSingleReferenceSliceSize: 1, SlicesPerContainer: 0},
	} {
		if err := s.Validate(); cram.KindOf(err) != cram.DomainViolation {
			t.Errorf("%+v validated as %v", s, err)
		}
	}
}
