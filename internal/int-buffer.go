package internal

/*
IntBuffer is an owned, growable slice of ints, the integer counterpart
of Buffer. Reset keeps the storage.
*/
type IntBuffer struct {
	data []int
}

// Len returns the number of ints in the buffer.
func (b *IntBuffer) Len() int {
	return len(b.data)
}

// Ints returns the buffer contents. The result aliases the buffer's
// storage and is valid only until the next growing operation.
func (b *IntBuffer) Ints() []int {
	return b.data
}

// Reset truncates the buffer to length 0, keeping its storage.
func (b *IntBuffer) Reset() {
	b.data = b.data[:0]
}

// Append appends a single int to the buffer.
func (b *IntBuffer) Append(v int) {
	b.data = append(b.data, v)
}
