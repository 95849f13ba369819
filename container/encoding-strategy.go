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

	"github.com/exascience/cram"

	"sigs.k8s.io/yaml"
)

/*
An EncodingStrategy bundles the tuning knobs of an encoder: how records
are grouped into slices and containers, how aggressively general-purpose
compression is applied, and which optional data is preserved. The zero
value is not useful; start from DefaultEncodingStrategy or load a
strategy from a YAML file, where absent keys keep their defaults.
*/
type EncodingStrategy struct {
	// GzipCompressionLevel applies wherever a block falls back to gzip.
	GzipCompressionLevel int `json:"gzipCompressionLevel"`

	// ReadsPerSlice caps the number of records in one slice.
	ReadsPerSlice int `json:"readsPerSlice"`

	// MinimumSingleReferenceSliceSize is the record count below which
	// records pending for one reference are not worth a slice of their
	// own and are coalesced into a multiple-reference slice instead. At
	// most ReadsPerSlice.
	MinimumSingleReferenceSliceSize int `json:"minimumSingleReferenceSliceSize"`

	// SlicesPerContainer caps the number of slices in one container.
	SlicesPerContainer int `json:"slicesPerContainer"`

	// PreserveReadNames keeps the original read names. When false,
	// names are dropped and readers regenerate them from record
	// positions.
	PreserveReadNames bool `json:"preserveReadNames"`

	// EmbedReference stores the reference bases a slice was compressed
	// against in the slice itself, so that decoding needs no external
	// reference.
	EmbedReference bool `json:"embedReference"`
}

// DefaultEncodingStrategy returns the default tuning.
func DefaultEncodingStrategy() *EncodingStrategy {
	return &EncodingStrategy{
		GzipCompressionLevel:            5,
		ReadsPerSlice:                   10000,
		MinimumSingleReferenceSliceSize: 1000,
		SlicesPerContainer:              1,
		PreserveReadNames:               true,
		EmbedReference:                  false,
	}
}

// Validate reports the first tuning value outside its domain.
func (s *EncodingStrategy) Validate() error {
	if s.GzipCompressionLevel < 0 || s.GzipCompressionLevel > 9 {
		return cram.DomainViolationf("gzip compression level %d outside 0..9", s.GzipCompressionLevel)
	}
	if s.ReadsPerSlice < 1 {
		return cram.DomainViolationf("reads per slice %d", s.ReadsPerSlice)
	}
	if s.MinimumSingleReferenceSliceSize < 1 || s.MinimumSingleReferenceSliceSize > s.ReadsPerSlice {
		return cram.DomainViolationf("minimum single-reference slice size %d outside 1..%d",
			s.MinimumSingleReferenceSliceSize, s.ReadsPerSlice)
	}
	if s.SlicesPerContainer < 1 {
		return cram.DomainViolationf("slices per container %d", s.SlicesPerContainer)
	}
	return nil
}

// LoadEncodingStrategy reads a strategy from a YAML file. Keys the
// file does not set keep their default values.
func LoadEncodingStrategy(filename string) (*EncodingStrategy, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	strategy := DefaultEncodingStrategy()
	if err := yaml.UnmarshalStrict(data, strategy); err != nil {
		return nil, cram.Malformedf("encoding strategy %v: %v", filename, err)
	}
	if err := strategy.Validate(); err != nil {
		return nil, err
	}
	return strategy, nil
}

// Save writes the strategy to a YAML file.
func (s *EncodingStrategy) Save(filename string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0666)
}
