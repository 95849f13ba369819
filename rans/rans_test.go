package rans

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/exascience/cram"
	"github.com/exascience/cram/varint"
)

type testBlob struct {
	name string
	data []byte
}

// makeTestBlobs covers the interesting input shapes: empty, shorter
// than the interleaving, long runs, narrow and full alphabets.
func makeTestBlobs() []testBlob {
	r := rand.New(rand.NewSource(1))
	quals := make([]byte, 10000)
	for i := range quals {
		quals[i] = byte(33 + r.Intn(40))
	}
	dna := make([]byte, 4096)
	for i := range dna {
		dna[i] = "ACGTN"[r.Intn(5)]
	}
	runs := make([]byte, 0, 5000)
	for len(runs) < 5000 {
		b := byte(r.Intn(4))
		for k := r.Intn(100); k >= 0; k-- {
			runs = append(runs, b)
		}
	}
	full := make([]byte, 2000)
	for i := range full {
		full[i] = byte(r.Intn(256))
	}
	return []testBlob{
		{"empty", nil},
		{"one", []byte{42}},
		{"two", []byte{251, 4}},
		{"three", []byte{250, 250, 250}},
		{"four", []byte{1, 2, 3, 4}},
		{"thirtyone", []byte("TTTGGGGTTTTTTTGGGGGGGTTTTTTTTGG")},
		{"uniform", bytes.Repeat([]byte{7}, 1000)},
		{"runs", runs},
		{"quals", quals},
		{"dna", dna},
		{"full", full},
	}
}

func TestRoundTrip4x8(t *testing.T) {
	for _, order := range []int{0, 1} {
		for _, blob := range makeTestBlobs() {
			enc, err := Encode4x8(blob.data, order)
			if err != nil {
				t.Fatalf("%s order %d: %v", blob.name, order, err)
			}
			dec, err := Decode4x8(enc)
			if err != nil {
				t.Fatalf("%s order %d: %v", blob.name, order, err)
			}
			if !bytes.Equal(dec, blob.data) {
				t.Errorf("%s order %d: round trip mismatch", blob.name, order)
			}
		}
	}
}

func TestHeader4x8(t *testing.T) {
	data := []byte("GATTACAGATTACAGATTACA")
	enc, err := Encode4x8(data, 1)
	if err != nil {
		t.Fatal(err)
	}
	if enc[0] != 1 {
		t.Errorf("order byte %d instead of 1", enc[0])
	}
	if csize := binary.LittleEndian.Uint32(enc[1:]); int(csize) != len(enc)-9 {
		t.Errorf("compressed size %d instead of %d", csize, len(enc)-9)
	}
	if rawsize := binary.LittleEndian.Uint32(enc[5:]); int(rawsize) != len(data) {
		t.Errorf("uncompressed size %d instead of %d", rawsize, len(data))
	}
}

func TestShortInput4x8(t *testing.T) {
	enc, err := Encode4x8([]byte{9, 9, 9}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if enc[0] != 0 {
		t.Error("three-byte input not forced to order 0")
	}
	dec, err := Decode4x8(enc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, []byte{9, 9, 9}) {
		t.Errorf("round trip mismatch: %v", dec)
	}
}

func TestBadOrder4x8(t *testing.T) {
	if _, err := Encode4x8([]byte{1}, 2); cram.KindOf(err) != cram.DomainViolation {
		t.Errorf("order 2 yields %v", err)
	}
	if _, err := Encode4x8([]byte{1}, -1); cram.KindOf(err) != cram.DomainViolation {
		t.Errorf("order -1 yields %v", err)
	}
}

func TestMalformed4x8(t *testing.T) {
	enc, err := Encode4x8([]byte("well formed input"), 0)
	if err != nil {
		t.Fatal(err)
	}
	bad := append([]byte{}, enc...)
	bad[1]++ // inconsistent compressed size
	if _, err := Decode4x8(bad); cram.KindOf(err) != cram.Malformed {
		t.Errorf("size mismatch yields %v", err)
	}
	if _, err := Decode4x8([]byte{0, 1, 0}); cram.KindOf(err) != cram.Malformed {
		t.Errorf("truncated header yields %v", err)
	}
	if _, err := Decode4x8([]byte{2, 0, 0, 0, 0, 0, 0, 0, 0}); cram.KindOf(err) != cram.Malformed {
		t.Errorf("unknown order yields %v", err)
	}
}

func TestRoundTripNx16(t *testing.T) {
	flagSets := []uint8{
		0,
		Nx16Order1,
		Nx16N32,
		Nx16Order1 | Nx16N32,
		Nx16RLE,
		Nx16Pack,
		Nx16RLE | Nx16Pack,
		Nx16Order1 | Nx16RLE | Nx16Pack,
		Nx16Cat,
		Nx16Cat | Nx16RLE | Nx16Pack,
	}
	for _, flags := range flagSets {
		for _, blob := range makeTestBlobs() {
			enc, err := EncodeNx16(blob.data, flags)
			if err != nil {
				t.Fatalf("%s flags %#02x: %v", blob.name, flags, err)
			}
			dec, err := DecodeNx16(enc, 0)
			if err != nil {
				t.Fatalf("%s flags %#02x: %v", blob.name, flags, err)
			}
			if !bytes.Equal(dec, blob.data) {
				t.Errorf("%s flags %#02x: round trip mismatch", blob.name, flags)
			}
		}
	}
}

func TestHeaderNx16(t *testing.T) {
	data := bytes.Repeat([]byte{3, 1}, 50)
	enc, err := EncodeNx16(data, Nx16Order1)
	if err != nil {
		t.Fatal(err)
	}
	if enc[0] != Nx16Order1 {
		t.Errorf("format flags %#02x instead of %#02x", enc[0], Nx16Order1)
	}
	if int(enc[1]) != len(data) {
		t.Errorf("recorded size %d instead of %d", enc[1], len(data))
	}
}

func TestNoSizeNx16(t *testing.T) {
	data := []byte("length supplied out of band")
	enc, err := EncodeNx16(data, Nx16NoSize)
	if err != nil {
		t.Fatal(err)
	}
	if enc[0] != Nx16NoSize {
		t.Errorf("format flags %#02x instead of %#02x", enc[0], Nx16NoSize)
	}
	dec, err := DecodeNx16(enc, len(data))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, data) {
		t.Errorf("round trip mismatch: %q", dec)
	}
}

func TestFlagFallbacksNx16(t *testing.T) {
	// More than 16 distinct symbols cannot be bit packed.
	wide := make([]byte, 100)
	for i := range wide {
		wide[i] = byte(i % 20)
	}
	enc, err := EncodeNx16(wide, Nx16Pack)
	if err != nil {
		t.Fatal(err)
	}
	if enc[0]&Nx16Pack != 0 {
		t.Error("pack flag kept for 20 distinct symbols")
	}
	dec, err := DecodeNx16(enc, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, wide) {
		t.Error("round trip mismatch after pack fallback")
	}

	// Fewer bytes than interleaved states cannot be order-1 coded.
	enc, err = EncodeNx16([]byte{1, 2}, Nx16Order1)
	if err != nil {
		t.Fatal(err)
	}
	if enc[0]&Nx16Order1 != 0 {
		t.Error("order-1 flag kept for two bytes")
	}
	dec, err = DecodeNx16(enc, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, []byte{1, 2}) {
		t.Error("round trip mismatch after order fallback")
	}
}

func TestStripeDecodeNx16(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	data := make([]byte, 999)
	for i := range data {
		data[i] = byte(33 + r.Intn(40))
	}
	const numStreams = 4
	stream := varint.AppendUint7([]byte{Nx16Stripe}, uint32(len(data)))
	stream = append(stream, numStreams)
	var parts [][]byte
	for j := 0; j < numStreams; j++ {
		var part []byte
		for i := j; i < len(data); i += numStreams {
			part = append(part, data[i])
		}
		enc, err := EncodeNx16(part, Nx16NoSize)
		if err != nil {
			t.Fatal(err)
		}
		parts = append(parts, enc)
		stream = varint.AppendUint7(stream, uint32(len(enc)))
	}
	for _, part := range parts {
		stream = append(stream, part...)
	}
	dec, err := DecodeNx16(stream, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, data) {
		t.Error("striped round trip mismatch")
	}
}

func TestStripeEncodeNx16(t *testing.T) {
	if _, err := EncodeNx16([]byte("stripes"), Nx16Stripe); cram.KindOf(err) != cram.NotImplemented {
		t.Errorf("stripe encoding yields %v", err)
	}
}

func TestEmptyNx16(t *testing.T) {
	enc, err := EncodeNx16(nil, Nx16Order1|Nx16Pack|Nx16RLE)
	if err != nil || len(enc) != 0 {
		t.Errorf("empty input encodes to %v, %v", enc, err)
	}
	dec, err := DecodeNx16(nil, 0)
	if err != nil || len(dec) != 0 {
		t.Errorf("empty stream decodes to %v, %v", dec, err)
	}
}

func TestMalformedNx16(t *testing.T) {
	if _, err := DecodeNx16([]byte{Nx16Pack, 4, 0}, 0); cram.KindOf(err) != cram.Malformed {
		t.Errorf("zero pack symbols yields %v", err)
	}
	if _, err := DecodeNx16([]byte{Nx16Pack, 4, 17}, 0); cram.KindOf(err) != cram.Malformed {
		t.Errorf("17 pack symbols yields %v", err)
	}
	if _, err := DecodeNx16([]byte{Nx16Stripe, 8, 0}, 0); cram.KindOf(err) != cram.Malformed {
		t.Errorf("zero substreams yields %v", err)
	}
	if _, err := DecodeNx16([]byte{0, 5}, 0); cram.KindOf(err) != cram.Malformed {
		t.Errorf("truncated stream yields %v", err)
	}
	if _, err := DecodeNx16([]byte{Nx16Order1, 4, 13 << 4}, 0); cram.KindOf(err) != cram.Malformed {
		t.Errorf("13-bit frequency precision yields %v", err)
	}
}
