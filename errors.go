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

package cram

import (
	"errors"
	"fmt"
)

// Kind classifies the errors reported by this library so that callers can
// distinguish broken input from unsupported input and from misuse.
type Kind int

const (
	// Malformed reports input bytes that violate the container or codec
	// framing, including failed checksums and truncated streams.
	Malformed Kind = iota + 1
	// UnsupportedVersion reports well-formed input that declares a format
	// or codec version this library does not handle.
	UnsupportedVersion
	// NotImplemented reports an operation this library deliberately does
	// not provide, such as the encode side of a decode-only codec.
	NotImplemented
	// DomainViolation reports an encode-side value outside the declared
	// domain of the chosen encoding.
	DomainViolation
)

func (k Kind) String() string {
	switch k {
	case Malformed:
		return "malformed data"
	case UnsupportedVersion:
		return "unsupported version"
	case NotImplemented:
		return "not implemented"
	case DomainViolation:
		return "domain violation"
	default:
		return "unknown"
	}
}

// Error is the error type reported by all packages in this library.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Malformedf creates an error of kind Malformed.
func Malformedf(format string, args ...interface{}) *Error {
	return &Error{Kind: Malformed, Msg: fmt.Sprintf(format, args...)}
}

// UnsupportedVersionf creates an error of kind UnsupportedVersion.
func UnsupportedVersionf(format string, args ...interface{}) *Error {
	return &Error{Kind: UnsupportedVersion, Msg: fmt.Sprintf(format, args...)}
}

// NotImplementedf creates an error of kind NotImplemented.
func NotImplementedf(format string, args ...interface{}) *Error {
	return &Error{Kind: NotImplemented, Msg: fmt.Sprintf(format, args...)}
}

// DomainViolationf creates an error of kind DomainViolation.
func DomainViolationf(format string, args ...interface{}) *Error {
	return &Error{Kind: DomainViolation, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or 0 if err is not an Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Recover converts panics raised inside parsing and codec loops into errors.
// Deep decode loops panic with *Error values; exported entry points call this
// in a defer so the public API reports errors instead:
//
//	func Decode(input []byte) (result []byte, err error) {
//		defer cram.Recover(&err)
//		...
//	}
func Recover(err *error) {
	if x := recover(); x != nil {
		switch e := x.(type) {
		case error:
			*err = e
		case string:
			*err = errors.New(e)
		default:
			*err = fmt.Errorf("%v", x)
		}
	}
}
