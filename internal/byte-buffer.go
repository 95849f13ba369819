package internal

import "sync"

var bufPool = sync.Pool{New: func() interface{} {
	return []byte(nil)
}}

/*
ReserveByteBuffer uses a sync.Pool to either reuse or make a slice of
bytes of length 0, but of capacity potentially larger than 0.

Use ReleaseByteBuffer to return slices of bytes to the internal pool.
*/
func ReserveByteBuffer() []byte {
	return bufPool.Get().([]byte)[:0]
}

/*
ReleaseByteBuffer returns the given slice of bytes to the internal
sync.Pool from which ReserveByteBuffer can fetch it again.
*/
func ReleaseByteBuffer(buf []byte) {
	bufPool.Put(buf)
}

/*
Buffer is an owned, growable byte buffer with amortized doubling. It is
meant for decode state that is reused across many records, such as the
per-record reverse flags of the quality codec or an assembling output
stream: Reset keeps the storage, so a buffer that reached its working
size stops allocating.
*/
type Buffer struct {
	data []byte
}

// Len returns the number of bytes in the buffer.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Bytes returns the buffer contents. The result aliases the buffer's
// storage and is valid only until the next growing operation.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Reset truncates the buffer to length 0, keeping its storage.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
}

// AppendByte appends a single byte to the buffer.
func (b *Buffer) AppendByte(v byte) {
	b.data = append(b.data, v)
}

// Append appends the given bytes to the buffer.
func (b *Buffer) Append(p []byte) {
	b.data = append(b.data, p...)
}

// Extend grows the buffer by n bytes and returns the newly added span
// for the caller to fill in.
func (b *Buffer) Extend(n int) []byte {
	m := len(b.data)
	if m+n > cap(b.data) {
		c := 2 * cap(b.data)
		if c < m+n {
			c = m + n
		}
		data := make([]byte, m, c)
		copy(data, b.data)
		b.data = data
	}
	b.data = b.data[: m+n : cap(b.data)]
	return b.data[m:]
}
