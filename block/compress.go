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

package block

import (
	"bytes"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/exascience/cram"
	"github.com/exascience/cram/fqzcomp"
	"github.com/exascience/cram/names"
	"github.com/exascience/cram/rangecoder"
	"github.com/exascience/cram/rans"
	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
)

// A Compressor turns raw block content into its compressed form, for
// one method with one fixed parameter choice.
type Compressor interface {
	// Method is the block compression method this compressor applies.
	Method() Method

	// Compress appends the compressed form of src to dst and returns
	// the extended slice.
	Compress(src, dst []byte) ([]byte, error)
}

// A Decompressor restores the raw content of blocks compressed with
// one method.
type Decompressor interface {
	// Method is the block compression method this decompressor
	// reverses.
	Method() Method

	// Decompress decompresses src into dst, which the caller sizes to
	// the uncompressed length the block header declares. Content that
	// does not fit dst exactly is an error.
	Decompress(src, dst []byte) error
}

// NoArg selects a method's default parameters when obtaining a
// compressor from a Cache.
const NoArg = -1

// A Cache hands out shared compressor and decompressor instances,
// keyed by method and method parameter, so that the blocks of one
// stream reuse them. A Cache is not safe for concurrent use; readers
// and writers of independent streams should each hold their own.
type Cache struct {
	compressors   map[compressorKey]Compressor
	decompressors map[Method]Decompressor
}

type compressorKey struct {
	method Method
	arg    int
}

// NewCache creates an empty compressor cache.
func NewCache() *Cache {
	return &Cache{
		compressors:   make(map[compressorKey]Compressor),
		decompressors: make(map[Method]Decompressor),
	}
}

// CompressorFor returns the compressor for the given method and method
// parameter, creating it on first use. The meaning of arg depends on
// the method: the gzip or bzip2 compression level, the rANS 4x8 order
// (0 or 1), the rANS Nx16 or range coder flags, or the name
// tokeniser's arithmetic coding switch (0 or 1). NoArg selects the
// method's default; methods without parameters accept nothing else.
func (c *Cache) CompressorFor(method Method, arg int) (Compressor, error) {
	key := compressorKey{method, arg}
	if compressor, ok := c.compressors[key]; ok {
		return compressor, nil
	}
	compressor, err := newCompressor(method, arg)
	if err != nil {
		return nil, err
	}
	c.compressors[key] = compressor
	return compressor, nil
}

// DecompressorFor returns the decompressor for the given method,
// creating it on first use. Decompression needs no method parameter,
// since any variant of a method decodes all of its streams.
func (c *Cache) DecompressorFor(method Method) (Decompressor, error) {
	if decompressor, ok := c.decompressors[method]; ok {
		return decompressor, nil
	}
	decompressor, err := newDecompressor(method)
	if err != nil {
		return nil, err
	}
	c.decompressors[method] = decompressor
	return decompressor, nil
}

func newCompressor(method Method, arg int) (Compressor, error) {
	switch method {
	case Raw:
		if arg != NoArg {
			return nil, cram.DomainViolationf("raw blocks take no compression parameter")
		}
		return rawCompressor{}, nil
	case Gzip:
		level := arg
		if level == NoArg {
			level = gzip.DefaultCompression
		}
		w, err := gzip.NewWriterLevel(io.Discard, level)
		if err != nil {
			return nil, cram.DomainViolationf("gzip compression level %d out of range", level)
		}
		return &gzipCompressor{w: w}, nil
	case Bzip2:
		level := arg
		if level == NoArg {
			level = bzip2.DefaultCompression
		}
		if level < bzip2.BestSpeed || level > bzip2.BestCompression {
			return nil, cram.DomainViolationf("bzip2 compression level %d out of range", level)
		}
		return bzip2Compressor{level: level}, nil
	case Lzma:
		if arg != NoArg {
			return nil, cram.DomainViolationf("lzma blocks take no compression parameter")
		}
		return lzmaCompressor{}, nil
	case Rans4x8:
		order := arg
		if order == NoArg {
			order = 0
		}
		if order != 0 && order != 1 {
			return nil, cram.DomainViolationf("rans-4x8 order %d, expected 0 or 1", order)
		}
		return rans4x8Compressor{order: order}, nil
	case RansNx16:
		flags := arg
		if flags == NoArg {
			flags = 0
		}
		if flags < 0 || flags > 255 {
			return nil, cram.DomainViolationf("rans-nx16 flags %#x out of range", flags)
		}
		return ransNx16Compressor{flags: uint8(flags)}, nil
	case Range:
		flags := arg
		if flags == NoArg {
			flags = 0
		}
		if flags < 0 || flags > 255 {
			return nil, cram.DomainViolationf("range coder flags %#x out of range", flags)
		}
		return rangeCompressor{flags: uint8(flags)}, nil
	case FQZComp:
		if arg != NoArg {
			return nil, cram.DomainViolationf("fqzcomp blocks take no compression parameter")
		}
		return fqzcompCompressor{}, nil
	case NameTokeniser:
		switch arg {
		case NoArg, 0:
			return nameTokeniserCompressor{}, nil
		case 1:
			return nameTokeniserCompressor{useArith: true}, nil
		default:
			return nil, cram.DomainViolationf("name tokeniser parameter %d, expected 0 or 1", arg)
		}
	default:
		return nil, cram.DomainViolationf("unknown compression method id %d", byte(method))
	}
}

func newDecompressor(method Method) (Decompressor, error) {
	switch method {
	case Raw:
		return rawDecompressor{}, nil
	case Gzip:
		return &gzipDecompressor{}, nil
	case Bzip2:
		return bzip2Decompressor{}, nil
	case Lzma:
		return lzmaDecompressor{}, nil
	case Rans4x8:
		return rans4x8Decompressor{}, nil
	case RansNx16:
		return ransNx16Decompressor{}, nil
	case Range:
		return rangeDecompressor{}, nil
	case FQZComp:
		return fqzcompDecompressor{}, nil
	case NameTokeniser:
		return nameTokeniserDecompressor{}, nil
	default:
		return nil, cram.DomainViolationf("unknown compression method id %d", byte(method))
	}
}

type rawCompressor struct{}

func (rawCompressor) Method() Method { return Raw }

func (rawCompressor) Compress(src, dst []byte) ([]byte, error) {
	return append(dst, src...), nil
}

type rawDecompressor struct{}

func (rawDecompressor) Method() Method { return Raw }

func (rawDecompressor) Decompress(src, dst []byte) error {
	if len(src) != len(dst) {
		return cram.Malformedf("raw block holds %d bytes, expected %d", len(src), len(dst))
	}
	copy(dst, src)
	return nil
}

type gzipCompressor struct {
	w *gzip.Writer
}

func (g *gzipCompressor) Method() Method { return Gzip }

func (g *gzipCompressor) Compress(src, dst []byte) ([]byte, error) {
	buf := bytes.NewBuffer(dst)
	g.w.Reset(buf)
	if _, err := g.w.Write(src); err != nil {
		return nil, err
	}
	if err := g.w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type gzipDecompressor struct {
	r gzip.Reader
}

func (g *gzipDecompressor) Method() Method { return Gzip }

func (g *gzipDecompressor) Decompress(src, dst []byte) error {
	if err := g.r.Reset(bytes.NewReader(src)); err != nil {
		return cram.Malformedf("gzip block: %v", err)
	}
	return readInto(dst, &g.r, Gzip)
}

type bzip2Compressor struct {
	level int
}

func (b bzip2Compressor) Method() Method { return Bzip2 }

func (b bzip2Compressor) Compress(src, dst []byte) ([]byte, error) {
	buf := bytes.NewBuffer(dst)
	w, err := bzip2.NewWriter(buf, &bzip2.WriterConfig{Level: b.level})
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type bzip2Decompressor struct{}

func (bzip2Decompressor) Method() Method { return Bzip2 }

func (bzip2Decompressor) Decompress(src, dst []byte) error {
	z, err := bzip2.NewReader(bytes.NewReader(src), nil)
	if err != nil {
		return cram.Malformedf("bzip2 block: %v", err)
	}
	return readInto(dst, z, Bzip2)
}

type lzmaCompressor struct{}

func (lzmaCompressor) Method() Method { return Lzma }

// Compress stores the content in the xz container format, like the
// reference implementations of the LZMA method do.
func (lzmaCompressor) Compress(src, dst []byte) ([]byte, error) {
	buf := bytes.NewBuffer(dst)
	w, err := xz.NewWriter(buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type lzmaDecompressor struct{}

func (lzmaDecompressor) Method() Method { return Lzma }

func (lzmaDecompressor) Decompress(src, dst []byte) error {
	z, err := xz.NewReader(bytes.NewReader(src))
	if err != nil {
		return cram.Malformedf("lzma block: %v", err)
	}
	return readInto(dst, z, Lzma)
}

type rans4x8Compressor struct {
	order int
}

func (c rans4x8Compressor) Method() Method { return Rans4x8 }

func (c rans4x8Compressor) Compress(src, dst []byte) ([]byte, error) {
	out, err := rans.Encode4x8(src, c.order)
	if err != nil {
		return nil, err
	}
	return appendTo(dst, out), nil
}

type rans4x8Decompressor struct{}

func (rans4x8Decompressor) Method() Method { return Rans4x8 }

func (rans4x8Decompressor) Decompress(src, dst []byte) error {
	out, err := rans.Decode4x8(src)
	if err != nil {
		return err
	}
	return fill(dst, out, Rans4x8)
}

type ransNx16Compressor struct {
	flags uint8
}

func (c ransNx16Compressor) Method() Method { return RansNx16 }

func (c ransNx16Compressor) Compress(src, dst []byte) ([]byte, error) {
	out, err := rans.EncodeNx16(src, c.flags)
	if err != nil {
		return nil, err
	}
	return appendTo(dst, out), nil
}

type ransNx16Decompressor struct{}

func (ransNx16Decompressor) Method() Method { return RansNx16 }

func (ransNx16Decompressor) Decompress(src, dst []byte) error {
	out, err := rans.DecodeNx16(src, len(dst))
	if err != nil {
		return err
	}
	return fill(dst, out, RansNx16)
}

type rangeCompressor struct {
	flags uint8
}

func (c rangeCompressor) Method() Method { return Range }

func (c rangeCompressor) Compress(src, dst []byte) ([]byte, error) {
	out, err := rangecoder.Encode(src, c.flags)
	if err != nil {
		return nil, err
	}
	return appendTo(dst, out), nil
}

type rangeDecompressor struct{}

func (rangeDecompressor) Method() Method { return Range }

func (rangeDecompressor) Decompress(src, dst []byte) error {
	out, err := rangecoder.Decode(src, len(dst))
	if err != nil {
		return err
	}
	return fill(dst, out, Range)
}

type fqzcompCompressor struct{}

func (fqzcompCompressor) Method() Method { return FQZComp }

func (fqzcompCompressor) Compress(src, dst []byte) ([]byte, error) {
	return fqzcomp.Encode(src)
}

type fqzcompDecompressor struct{}

func (fqzcompDecompressor) Method() Method { return FQZComp }

func (fqzcompDecompressor) Decompress(src, dst []byte) error {
	out, err := fqzcomp.Decode(src)
	if err != nil {
		return err
	}
	return fill(dst, out, FQZComp)
}

// The name tokeniser works on NUL-separated read names, including a
// separator after the last name.
type nameTokeniserCompressor struct {
	useArith bool
}

func (c nameTokeniserCompressor) Method() Method { return NameTokeniser }

func (c nameTokeniserCompressor) Compress(src, dst []byte) ([]byte, error) {
	out, err := names.Encode(src, 0, c.useArith)
	if err != nil {
		return nil, err
	}
	return appendTo(dst, out), nil
}

type nameTokeniserDecompressor struct{}

func (nameTokeniserDecompressor) Method() Method { return NameTokeniser }

func (nameTokeniserDecompressor) Decompress(src, dst []byte) error {
	out, err := names.Decode(src, 0)
	if err != nil {
		return err
	}
	return fill(dst, out, NameTokeniser)
}

func appendTo(dst, out []byte) []byte {
	if len(dst) == 0 {
		return out
	}
	return append(dst, out...)
}

// fill copies a codec's output into the caller's buffer, verifying the
// length the block header declares.
func fill(dst, out []byte, method Method) error {
	if len(out) != len(dst) {
		return cram.Malformedf("%v block holds %d bytes, expected %d", method, len(out), len(dst))
	}
	copy(dst, out)
	return nil
}

// readInto fills dst from r and verifies that r carries nothing more.
func readInto(dst []byte, r io.Reader, method Method) error {
	if _, err := io.ReadFull(r, dst); err != nil {
		return cram.Malformedf("%v block: %v", method, err)
	}
	var tail [1]byte
	switch n, err := io.ReadFull(r, tail[:]); {
	case n != 0:
		return cram.Malformedf("%v block longer than the declared %d bytes", method, len(dst))
	case err != io.EOF:
		return cram.Malformedf("%v block: %v", method, err)
	}
	return nil
}
