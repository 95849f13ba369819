package rangecoder

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/exascience/cram"
	"github.com/exascience/cram/varint"
)

type testBlob struct {
	name string
	data []byte
}

func makeTestBlobs() []testBlob {
	r := rand.New(rand.NewSource(3))
	quals := make([]byte, 10000)
	for i := range quals {
		quals[i] = byte(33 + r.Intn(40))
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
		{"three", []byte{0, 0, 0}},
		{"uniform", bytes.Repeat([]byte{7}, 1000)},
		{"longrun", bytes.Repeat([]byte{200}, 12345)},
		{"runs", runs},
		{"quals", quals},
		{"full", full},
	}
}

func TestRoundTrip(t *testing.T) {
	flagSets := []uint8{
		0,
		Order1,
		RLE,
		RLE | Order1,
		Pack,
		Pack | Order1,
		Pack | RLE,
		Pack | RLE | Order1,
		Cat,
		Ext,
		Ext | Pack,
	}
	for _, flags := range flagSets {
		for _, blob := range makeTestBlobs() {
			enc, err := Encode(blob.data, flags)
			if err != nil {
				t.Fatalf("%s flags %#02x: %v", blob.name, flags, err)
			}
			dec, err := Decode(enc, 0)
			if err != nil {
				t.Fatalf("%s flags %#02x: %v", blob.name, flags, err)
			}
			if !bytes.Equal(dec, blob.data) {
				t.Errorf("%s flags %#02x: round trip mismatch", blob.name, flags)
			}
		}
	}
}

func TestHeader(t *testing.T) {
	data := bytes.Repeat([]byte{9, 3, 3}, 40)
	enc, err := Encode(data, RLE|Order1)
	if err != nil {
		t.Fatal(err)
	}
	if enc[0] != RLE|Order1 {
		t.Errorf("format flags %#02x instead of %#02x", enc[0], RLE|Order1)
	}
	if int(enc[1]) != len(data) {
		t.Errorf("recorded size %d instead of %d", enc[1], len(data))
	}
}

func TestNoSize(t *testing.T) {
	data := []byte("length supplied out of band")
	enc, err := Encode(data, NoSize|Order1)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := Decode(enc, len(data))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, data) {
		t.Errorf("round trip mismatch: %q", dec)
	}
}

func TestPackFallback(t *testing.T) {
	wide := make([]byte, 100)
	for i := range wide {
		wide[i] = byte(i % 20)
	}
	enc, err := Encode(wide, Pack|RLE)
	if err != nil {
		t.Fatal(err)
	}
	if enc[0]&Pack != 0 {
		t.Error("pack flag kept for 20 distinct symbols")
	}
	dec, err := Decode(enc, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, wide) {
		t.Error("round trip mismatch after pack fallback")
	}
}

func TestStripeDecode(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	data := make([]byte, 999)
	for i := range data {
		data[i] = byte(33 + r.Intn(40))
	}
	const numStreams = 4
	stream := varint.AppendUint7([]byte{Stripe}, uint32(len(data)))
	stream = append(stream, numStreams)
	var parts [][]byte
	for j := 0; j < numStreams; j++ {
		var part []byte
		for i := j; i < len(data); i += numStreams {
			part = append(part, data[i])
		}
		enc, err := Encode(part, NoSize)
		if err != nil {
			t.Fatal(err)
		}
		parts = append(parts, enc)
		stream = varint.AppendUint7(stream, uint32(len(enc)))
	}
	for _, part := range parts {
		stream = append(stream, part...)
	}
	dec, err := Decode(stream, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, data) {
		t.Error("striped round trip mismatch")
	}
}

func TestStripeEncode(t *testing.T) {
	if _, err := Encode([]byte("stripes"), Stripe); cram.KindOf(err) != cram.NotImplemented {
		t.Errorf("stripe encoding yields %v", err)
	}
}

func TestEmpty(t *testing.T) {
	enc, err := Encode(nil, Order1|Pack|RLE)
	if err != nil || len(enc) != 0 {
		t.Errorf("empty input encodes to %v, %v", enc, err)
	}
	dec, err := Decode(nil, 0)
	if err != nil || len(dec) != 0 {
		t.Errorf("empty stream decodes to %v, %v", dec, err)
	}
}

func TestMalformed(t *testing.T) {
	if _, err := Decode([]byte{Pack, 4, 0}, 0); cram.KindOf(err) != cram.Malformed {
		t.Errorf("zero pack symbols yields %v", err)
	}
	if _, err := Decode([]byte{Pack, 4, 17}, 0); cram.KindOf(err) != cram.Malformed {
		t.Errorf("17 pack symbols yields %v", err)
	}
	if _, err := Decode([]byte{Stripe, 8, 0}, 0); cram.KindOf(err) != cram.Malformed {
		t.Errorf("zero substreams yields %v", err)
	}
	if _, err := Decode([]byte{0, 5}, 0); cram.KindOf(err) != cram.Malformed {
		t.Errorf("truncated stream yields %v", err)
	}
	if _, err := Decode([]byte{Ext, 3, 1, 2, 3}, 0); cram.KindOf(err) != cram.Malformed {
		t.Errorf("corrupt bzip2 substream yields %v", err)
	}

	enc, err := Encode([]byte("abc"), Ext)
	if err != nil {
		t.Fatal(err)
	}
	enc[1] = 5 // inconsistent uncompressed size
	if _, err := Decode(enc, 0); cram.KindOf(err) != cram.Malformed {
		t.Errorf("size mismatch yields %v", err)
	}
}
