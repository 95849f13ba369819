package internal

import (
	"bytes"
	"testing"
)

func TestBuffer(t *testing.T) {
	var b Buffer
	if b.Len() != 0 {
		t.Error("zero value length failed")
	}
	b.AppendByte(1)
	b.Append([]byte{2, 3, 4})
	copy(b.Extend(2), []byte{5, 6})
	if !bytes.Equal(b.Bytes(), []byte{1, 2, 3, 4, 5, 6}) {
		t.Errorf("buffer contents %v", b.Bytes())
	}
	b.Reset()
	if b.Len() != 0 {
		t.Error("reset failed")
	}
	b.AppendByte(9)
	if !bytes.Equal(b.Bytes(), []byte{9}) {
		t.Error("append after reset failed")
	}
}

func TestBufferExtendGrowth(t *testing.T) {
	var b Buffer
	for i := 0; i < 1000; i++ {
		b.Extend(3)[2] = byte(i)
	}
	if b.Len() != 3000 {
		t.Errorf("length %v instead of 3000", b.Len())
	}
	if b.Bytes()[2999] != 999%256 {
		t.Error("extend contents failed")
	}
}

func TestByteBufferPool(t *testing.T) {
	buf := ReserveByteBuffer()
	if len(buf) != 0 {
		t.Error("reserved buffer not empty")
	}
	buf = append(buf, 1, 2, 3)
	ReleaseByteBuffer(buf)
	if reused := ReserveByteBuffer(); len(reused) != 0 {
		t.Error("reused buffer not truncated")
	}
}
