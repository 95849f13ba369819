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
)

// DataSeries identifies one of the record field streams a compression
// header declares an encoding for. Each series has a fixed value type
// and a two-character name under which it appears in the encoding map.
// By convention, a series that lives in its own external block uses its
// series number as the block content ID.
type DataSeries byte

// The data series of the CRAM record model.
const (
	BF DataSeries = iota + 1 // BAM bit flags
	CF                       // compression bit flags
	RI                       // reference ID
	RL                       // read length
	AP                       // alignment position, delta coded per slice
	RG                       // read group
	RN                       // read name
	MF                       // mate bit flags
	NS                       // mate reference ID
	NP                       // mate alignment start
	TS                       // template size
	NF                       // records to next fragment
	TC                       // tag count, obsolete since version 3
	TN                       // tag name and type, obsolete since version 3
	TL                       // tag ID list index
	FN                       // number of read features
	FC                       // read feature code
	FP                       // read feature position
	DL                       // deletion length
	BB                       // stretch of bases
	QQ                       // stretch of quality scores
	BS                       // base substitution code
	IN                       // inserted bases
	RS                       // reference skip length
	PD                       // padding length
	HC                       // hard clip length
	SC                       // soft clipped bases
	MQ                       // mapping quality
	BA                       // single base
	QS                       // single quality score
)

// DataType is the value type of a data series, which determines the
// codec shape a series encoding must provide.
type DataType byte

const (
	ByteType DataType = iota
	IntType
	LongType
	ByteArrayType
)

func (t DataType) String() string {
	switch t {
	case ByteType:
		return "byte"
	case IntType:
		return "int"
	case LongType:
		return "long"
	case ByteArrayType:
		return "byte array"
	default:
		return fmt.Sprintf("data type %d", byte(t))
	}
}

var dataSeriesNames = [...]string{
	BF: "BF", CF: "CF", RI: "RI", RL: "RL", AP: "AP", RG: "RG",
	RN: "RN", MF: "MF", NS: "NS", NP: "NP", TS: "TS", NF: "NF",
	TC: "TC", TN: "TN", TL: "TL", FN: "FN", FC: "FC", FP: "FP",
	DL: "DL", BB: "BB", QQ: "QQ", BS: "BS", IN: "IN", RS: "RS",
	PD: "PD", HC: "HC", SC: "SC", MQ: "MQ", BA: "BA", QS: "QS",
}

var dataSeriesTypes = [...]DataType{
	BF: IntType, CF: IntType, RI: IntType, RL: IntType, AP: IntType,
	RG: IntType, RN: ByteArrayType, MF: IntType, NS: IntType,
	NP: IntType, TS: IntType, NF: IntType, TC: ByteType, TN: IntType,
	TL: IntType, FN: IntType, FC: ByteType, FP: IntType, DL: IntType,
	BB: ByteArrayType, QQ: ByteArrayType, BS: ByteType,
	IN: ByteArrayType, RS: IntType, PD: IntType, HC: IntType,
	SC: ByteArrayType, MQ: IntType, BA: ByteType, QS: ByteType,
}

var dataSeriesByName map[string]DataSeries

func init() {
	dataSeriesByName = make(map[string]DataSeries, int(QS))
	for s := BF; s <= QS; s++ {
		dataSeriesByName[dataSeriesNames[s]] = s
	}
}

func (s DataSeries) String() string {
	if s >= BF && s <= QS {
		return dataSeriesNames[s]
	}
	return fmt.Sprintf("data series %d", byte(s))
}

// Type returns the value type of the series.
func (s DataSeries) Type() DataType {
	return dataSeriesTypes[s]
}

// ContentID returns the external block content ID conventionally
// assigned to the series.
func (s DataSeries) ContentID() int32 {
	return int32(s)
}

// Obsolete reports whether the series is a leftover from version 2
// that no longer carries data. Obsolete series are skipped when
// reading an encoding map and never written.
func (s DataSeries) Obsolete() bool {
	return s == TC || s == TN
}

// ParseDataSeries returns the data series with the given two-character
// name.
func ParseDataSeries(name string) (DataSeries, error) {
	if s, ok := dataSeriesByName[name]; ok {
		return s, nil
	}
	return 0, cram.Malformedf("unknown data series %q", name)
}
