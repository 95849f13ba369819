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

package internal

import (
	"hash/crc32"
	"io"
)

// CRC32Reader folds every byte read from the underlying reader into a
// running CRC32-IEEE sum. Version 3 containers and blocks protect
// their frames with such sums.
type CRC32Reader struct {
	r   io.Reader
	sum uint32
	buf [1]byte
}

// NewCRC32Reader wraps r with a fresh sum.
func NewCRC32Reader(r io.Reader) *CRC32Reader {
	return &CRC32Reader{r: r}
}

func (c *CRC32Reader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.sum = crc32.Update(c.sum, crc32.IEEETable, p[:n])
	return n, err
}

// ReadByte reads a single byte, so that the varint readers can consume
// checksummed headers directly.
func (c *CRC32Reader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(c.r, c.buf[:]); err != nil {
		return 0, err
	}
	c.sum = crc32.Update(c.sum, crc32.IEEETable, c.buf[:])
	return c.buf[0], nil
}

// Sum returns the CRC32 of all bytes read so far.
func (c *CRC32Reader) Sum() uint32 {
	return c.sum
}

// CRC32Writer folds every byte written to the underlying writer into a
// running CRC32-IEEE sum.
type CRC32Writer struct {
	w   io.Writer
	sum uint32
}

// NewCRC32Writer wraps w with a fresh sum.
func NewCRC32Writer(w io.Writer) *CRC32Writer {
	return &CRC32Writer{w: w}
}

func (c *CRC32Writer) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.sum = crc32.Update(c.sum, crc32.IEEETable, p[:n])
	return n, err
}

// Sum returns the CRC32 of all bytes written so far.
func (c *CRC32Writer) Sum() uint32 {
	return c.sum
}
