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
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/exascience/cram"
	"github.com/exascience/cram/block"
	"github.com/exascience/cram/container"
	"github.com/exascience/cram/internal"
)

// InspectHelp is the help string for this command.
const InspectHelp = "inspect parameters:\n" +
	"cram inspect cram-file\n" +
	"[--header]\n"

// Inspect implements the cram inspect command. It walks the
// containers of a CRAM file and prints their slices and blocks with
// sizes and compression methods.
func Inspect() {
	var printHeader bool

	var flags flag.FlagSet
	flags.BoolVar(&printHeader, "header", false, "print the SAM header text stored in the file")
	parseFlags(flags, 3, InspectHelp)

	input := getFilename(os.Args[2], InspectHelp)

	file := internal.FileOpen(input)
	defer internal.Close(file)
	r := bufio.NewReader(file)

	def, err := cram.ReadFileDefinition(r)
	if err != nil {
		log.Panic(err)
	}
	out := bufio.NewWriter(os.Stdout)
	defer func() {
		if err := out.Flush(); err != nil {
			log.Panic(err)
		}
	}()
	fmt.Fprintf(out, "%v, CRAM %v, file id %q\n", input, def.Version, string(def.ID[:]))

	text, err := container.ReadFileHeaderText(def.Version, r)
	if err != nil {
		log.Panic(err)
	}
	fmt.Fprintf(out, "header container: %d bytes of header text\n", len(text))
	if printHeader {
		out.Write(text)
		if len(text) > 0 && text[len(text)-1] != '\n' {
			out.WriteByte('\n')
		}
	}

	cache := block.NewCache()
	for index := 0; ; index++ {
		c, err := container.Read(def.Version, r, cache)
		if err != nil {
			log.Panic(err)
		}
		if c.IsEOF() {
			fmt.Fprintf(out, "container %d: end of file\n", index)
			return
		}
		fmt.Fprintf(out, "container %d: %v\n", index, c.Header)
		for _, s := range c.Slices {
			fmt.Fprintf(out, "  slice %d: %v, records %d, %d bytes\n",
				s.LandmarkIndex, s.AlignmentContext, s.Records, s.ByteSize)
			printBlock(out, s.Blocks.Core())
			for _, id := range s.Blocks.ExternalIDs() {
				printBlock(out, s.Blocks.External(id))
			}
		}
	}
}

func printBlock(out *bufio.Writer, b *block.Block) {
	fmt.Fprintf(out, "    %v block", b.ContentType)
	if b.ContentType == block.External {
		fmt.Fprintf(out, " %d", b.ContentID)
	}
	fmt.Fprintf(out, ": %v, %d -> %d bytes\n",
		b.Method, b.UncompressedSize, len(b.CompressedContent))
}
