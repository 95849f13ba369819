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
	"log"
	"os"
	"runtime"

	"github.com/exascience/cram/container"
	"github.com/exascience/cram/internal"
)

// RecompressHelp is the help string for this command.
const RecompressHelp = "recompress parameters:\n" +
	"cram recompress input-file output-file\n" +
	"[--strategy file]\n" +
	"[--nr-of-threads number]\n" +
	"[--timed]\n" +
	"[--profile file]\n" +
	"[--log-path path]\n"

// Recompress implements the cram recompress command. It rewrites a
// CRAM file, re-choosing the compression of every external block per
// an encoding strategy.
func Recompress() {
	var (
		strategyFile, profile, logPath string
		nrOfThreads                    int
		timed                          bool
	)

	var flags flag.FlagSet
	flags.StringVar(&strategyFile, "strategy", "", "encoding strategy file")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")
	parseFlags(flags, 4, RecompressHelp)

	input := getFilename(os.Args[2], RecompressHelp)
	output := getFilename(os.Args[3], RecompressHelp)

	setLogOutput(logPath)

	strategy := container.DefaultEncodingStrategy()
	if strategyFile != "" {
		var err error
		if strategy, err = container.LoadEncodingStrategy(strategyFile); err != nil {
			log.Panic(err)
		}
	}
	if nrOfThreads > 0 {
		runtime.GOMAXPROCS(nrOfThreads)
	}

	in := internal.FileOpen(input)
	defer internal.Close(in)
	out := internal.FileCreate(output)
	defer internal.Close(out)
	r := bufio.NewReader(in)
	w := bufio.NewWriter(out)

	timedRun(timed, profile, "Recompressing "+input+".", 1, func() {
		if err := container.Recompress(r, w, strategy); err != nil {
			log.Panic(err)
		}
	})
	if err := w.Flush(); err != nil {
		log.Panic(err)
	}
}
