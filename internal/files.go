package internal

import (
	"io"
	"os"
)

// FileOpen is os.Open with panics in place of errors.
func FileOpen(filename string) *os.File {
	f, err := os.Open(filename)
	if err != nil {
		panic(err)
	}
	return f
}

// FileCreate is os.Create with panics in place of errors.
func FileCreate(filename string) *os.File {
	f, err := os.Create(filename)
	if err != nil {
		panic(err)
	}
	return f
}

// MkdirAll is os.MkdirAll with panics in place of errors.
func MkdirAll(path string, perm os.FileMode) {
	if err := os.MkdirAll(path, perm); err != nil {
		panic(err)
	}
}

// Close closes an io.Closer with panics in place of errors.
func Close(c io.Closer) {
	if err := c.Close(); err != nil {
		panic(err)
	}
}
