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
	"io/ioutil"
	"log"
	"os"

	"github.com/exascience/cram"
	"github.com/exascience/cram/block"
	"github.com/exascience/cram/internal"
)

// CompressHelp is the help string for this command.
const CompressHelp = "compress parameters:\n" +
	"cram compress input-file output-file\n" +
	"[--method raw|gzip|bzip2|lzma|rans-4x8|rans-nx16|range|name-tokeniser]\n" +
	"[--arg number]\n"

// Compress implements the cram compress command. It compresses a
// whole file with one block compression method and writes it as a
// standalone external block, so that individual codecs can be
// exercised and compared outside a CRAM container.
func Compress() {
	var (
		methodName string
		arg        int
	)

	var flags flag.FlagSet
	flags.StringVar(&methodName, "method", "gzip", "block compression method")
	flags.IntVar(&arg, "arg", block.NoArg, "method parameter: compression level, rANS order, or format flags")
	parseFlags(flags, 4, CompressHelp)

	input := getFilename(os.Args[2], CompressHelp)
	output := getFilename(os.Args[3], CompressHelp)

	method, ok := checkMethod(methodName)
	if !ok {
		os.Exit(1)
	}

	content, err := ioutil.ReadFile(input)
	if err != nil {
		log.Panic(err)
	}
	b, err := block.CompressExternal(block.NewCache(), method, arg, 0, content)
	if err != nil {
		log.Panic(err)
	}

	file := internal.FileCreate(output)
	defer internal.Close(file)
	w := bufio.NewWriter(file)
	if err := b.Write(cram.V3_0, w); err != nil {
		log.Panic(err)
	}
	if err := w.Flush(); err != nil {
		log.Panic(err)
	}
	log.Printf("Compressed %d bytes to %d bytes with %v.\n", len(content), len(b.CompressedContent), method)
}

// DecompressHelp is the help string for this command.
const DecompressHelp = "decompress parameters:\n" +
	"cram decompress input-file output-file\n"

// Decompress implements the cram decompress command, the inverse of
// cram compress: it reads one standalone block and writes its
// uncompressed content.
func Decompress() {
	var flags flag.FlagSet
	parseFlags(flags, 4, DecompressHelp)

	input := getFilename(os.Args[2], DecompressHelp)
	output := getFilename(os.Args[3], DecompressHelp)

	file := internal.FileOpen(input)
	defer internal.Close(file)
	b, err := block.Read(cram.V3_0, bufio.NewReader(file))
	if err != nil {
		log.Panic(err)
	}
	content, err := b.UncompressedContent(block.NewCache())
	if err != nil {
		log.Panic(err)
	}
	if err := ioutil.WriteFile(output, content, 0666); err != nil {
		log.Panic(err)
	}
	log.Printf("Decompressed %d bytes to %d bytes with %v.\n", len(b.CompressedContent), len(content), b.Method)
}
