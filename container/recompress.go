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
	"context"
	"io"

	"github.com/exascience/cram"
	"github.com/exascience/cram/block"
	"github.com/exascience/cram/internal"
	"github.com/exascience/pargo/pipeline"
	"golang.org/x/sync/errgroup"
)

// SliceReaders decompresses the container's slices concurrently and
// returns a SeriesReader per slice, in slice order. Slices are
// self-contained, so each goroutine holds its own compressor cache.
func (c *Container) SliceReaders() ([]*SeriesReader, error) {
	readers := make([]*SeriesReader, len(c.Slices))
	var g errgroup.Group
	for i := range c.Slices {
		i := i
		g.Go(func() error {
			r, err := NewSeriesReader(c.CompressionHeader, c.Slices[i].Blocks, block.NewCache())
			if err != nil {
				return err
			}
			readers[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return readers, nil
}

// Recompress copies a CRAM stream from r to w, re-choosing the
// compression of every external block by trial compression with the
// strategy's methods. A block only changes when the trial beats its
// current size, so blocks from the specialized codecs usually pass
// through as they are. Containers are recompressed in parallel and
// written in their original order.
func Recompress(r io.Reader, w io.Writer, strategy *EncodingStrategy) (err error) {
	defer cram.Recover(&err)

	if err := strategy.Validate(); err != nil {
		return err
	}
	def, err := cram.ReadFileDefinition(r)
	if err != nil {
		return err
	}
	text, err := ReadFileHeaderText(def.Version, r)
	if err != nil {
		return err
	}
	if err := def.Write(w); err != nil {
		return err
	}
	if err := WriteFileHeaderText(def.Version, w, text); err != nil {
		return err
	}

	var p pipeline.Pipeline
	p.Source(&containerSource{version: def.Version, r: r, cache: block.NewCache()})
	p.Add(
		pipeline.LimitedPar(0, pipeline.Receive(func(_ int, data interface{}) interface{} {
			c := data.(*Container)
			if err := recompressContainer(block.NewCache(), strategy, c); err != nil {
				p.SetErr(err)
			}
			return c
		})),
		pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
			if err := data.(*Container).Write(def.Version, w); err != nil {
				p.SetErr(err)
			}
			return data
		})),
	)
	internal.RunPipeline(&p)

	return WriteEOF(def.Version, w)
}

func recompressContainer(cache *block.Cache, strategy *EncodingStrategy, c *Container) error {
	for _, s := range c.Slices {
		blocks := NewSliceBlocks()
		if err := blocks.SetCore(s.Blocks.Core()); err != nil {
			return err
		}
		for _, id := range s.Blocks.ExternalIDs() {
			b := s.Blocks.External(id)
			content, err := b.UncompressedContent(cache)
			if err != nil {
				return err
			}
			method, arg, err := BestCompression(cache, strategy, content)
			if err != nil {
				return err
			}
			nb, err := block.CompressExternal(cache, method, arg, id, content)
			if err != nil {
				return err
			}
			if len(nb.CompressedContent) >= len(b.CompressedContent) {
				nb = b
			}
			if err := blocks.AddExternal(nb); err != nil {
				return err
			}
		}
		s.Blocks = blocks
	}
	return nil
}

// containerSource feeds the data containers of a stream into a
// pipeline, one container per batch, stopping at the end-of-file
// marker or at a clean end of stream.
type containerSource struct {
	version cram.Version
	r       io.Reader
	cache   *block.Cache
	data    *Container
	err     error
}

// Err implements the corresponding method of pipeline.Source.
func (src *containerSource) Err() error {
	if src.err != io.EOF {
		return src.err
	}
	return nil
}

// Prepare implements the corresponding method of pipeline.Source.
func (src *containerSource) Prepare(_ context.Context) int {
	return -1
}

// Fetch implements the corresponding method of pipeline.Source.
func (src *containerSource) Fetch(_ int) int {
	if src.err != nil {
		return 0
	}
	c, err := Read(src.version, src.r, src.cache)
	if err != nil {
		src.err = err
		return 0
	}
	if c.IsEOF() {
		src.err = io.EOF
		return 0
	}
	src.data = c
	return 1
}

// Data implements the corresponding method of pipeline.Source.
func (src *containerSource) Data() interface{} {
	return src.data
}
