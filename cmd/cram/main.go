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

// cram is a command-line tool for the CRAM sequencing data format:
// it inspects container files, applies the block compression methods
// and the read name codec to standalone payloads, and recompresses
// streams under an encoding strategy.
//
// Please see https://github.com/exascience/cram for a documentation
// of the tool, and https://godoc.org/github.com/ExaScience/cram for
// the API documentation of the underlying library.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/exascience/cram/cmd"
)

func printHelp() {
	fmt.Fprintln(os.Stderr, "Available commands: inspect, compress, decompress, pack-names, unpack-names, recompress")
	fmt.Fprint(os.Stderr, "\n", cmd.InspectHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.CompressHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.DecompressHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.PackNamesHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.UnpackNamesHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.RecompressHelp)
}

func main() {
	fmt.Fprintln(os.Stderr, cmd.ProgramMessage)
	if len(os.Args) < 2 {
		log.Println("Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, cmd.HelpMessage)
		printHelp()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "inspect":
		cmd.Inspect()
	case "compress":
		cmd.Compress()
	case "decompress":
		cmd.Decompress()
	case "pack-names":
		cmd.PackNames()
	case "unpack-names":
		cmd.UnpackNames()
	case "recompress":
		cmd.Recompress()
	case "help", "-help", "--help", "-h", "--h":
		printHelp()
	default:
		log.Println("Unknown command: ", os.Args[1])
		fmt.Fprint(os.Stderr, cmd.HelpMessage)
		printHelp()
		os.Exit(1)
	}
}
