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

package cmd

import (
	"flag"
	"io/ioutil"
	"log"
	"os"

	"github.com/exascience/cram/names"
)

// PackNamesHelp is the help string for this command.
const PackNamesHelp = "pack-names parameters:\n" +
	"cram pack-names input-file output-file\n" +
	"[--arith]\n"

// PackNames implements the cram pack-names command. It runs the read
// name tokeniser over a newline-separated list of names.
func PackNames() {
	var useArith bool

	var flags flag.FlagSet
	flags.BoolVar(&useArith, "arith", false, "compress the token streams with the range coder instead of rANS")
	parseFlags(flags, 4, PackNamesHelp)

	input := getFilename(os.Args[2], PackNamesHelp)
	output := getFilename(os.Args[3], PackNamesHelp)

	data, err := ioutil.ReadFile(input)
	if err != nil {
		log.Panic(err)
	}
	packed, err := names.Encode(data, '\n', useArith)
	if err != nil {
		log.Panic(err)
	}
	if err := ioutil.WriteFile(output, packed, 0666); err != nil {
		log.Panic(err)
	}
	log.Printf("Packed %d bytes of names to %d bytes.\n", len(data), len(packed))
}

// UnpackNamesHelp is the help string for this command.
const UnpackNamesHelp = "unpack-names parameters:\n" +
	"cram unpack-names input-file output-file\n"

// UnpackNames implements the cram unpack-names command, the inverse
// of cram pack-names.
func UnpackNames() {
	var flags flag.FlagSet
	parseFlags(flags, 4, UnpackNamesHelp)

	input := getFilename(os.Args[2], UnpackNamesHelp)
	output := getFilename(os.Args[3], UnpackNamesHelp)

	data, err := ioutil.ReadFile(input)
	if err != nil {
		log.Panic(err)
	}
	unpacked, err := names.Decode(data, '\n')
	if err != nil {
		log.Panic(err)
	}
	if err := ioutil.WriteFile(output, unpacked, 0666); err != nil {
		log.Panic(err)
	}
	log.Printf("Unpacked %d bytes of names from %d bytes.\n", len(unpacked), len(data))
}
