/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package errors provides the coded, traceable error type shared by every
// package in this module instead of bare fmt.Errorf/errors.New.
package errors

import (
	"errors"
	"fmt"
)

// Code classifies an error into a small closed taxonomy rather than an
// open string space.
type Code uint8

const (
	// UnknownError is the zero value: a plain wrapped error with no
	// classification.
	UnknownError Code = iota
	// CodeInvalidArgument: null where forbidden, negative length,
	// out-of-range port.
	CodeInvalidArgument
	// CodeWouldBlock is internal only and must never be surfaced to a
	// caller; it is translated to "zero bytes this call" before return.
	CodeWouldBlock
	// CodeTransientOS is a textual OS-level failure the caller may retry.
	CodeTransientOS
	// CodeFatalEndpoint marks a stream/datagram/address that has moved to
	// its terminal failed state; further calls return immediately.
	CodeFatalEndpoint
	// CodeResourceExhaustion is an allocation or counter-overflow failure.
	CodeResourceExhaustion
	// CodeNotResolved is returned when an operation demanding a resolved
	// Address receives one still in-progress.
	CodeNotResolved
)

func (c Code) String() string {
	switch c {
	case CodeInvalidArgument:
		return "invalid-argument"
	case CodeWouldBlock:
		return "would-block"
	case CodeTransientOS:
		return "transient-os"
	case CodeFatalEndpoint:
		return "fatal-endpoint"
	case CodeResourceExhaustion:
		return "resource-exhaustion"
	case CodeNotResolved:
		return "not-resolved"
	default:
		return "unknown"
	}
}

// Error is the concrete type returned by this module. It is intentionally
// small: a code, a message, an optional parent and the call site that
// raised it, enough to answer "what kind of failure, and where" without
// the hierarchy/pool machinery a general-purpose error library carries.
type Error struct {
	code   Code
	msg    string
	parent error
	file   string
	line   int
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.parent != nil {
		return fmt.Sprintf("%s: %s: %s", e.code, e.msg, e.parent.Error())
	}
	return fmt.Sprintf("%s: %s", e.code, e.msg)
}

// Code returns the classification of this error.
func (e *Error) Code() Code {
	if e == nil {
		return UnknownError
	}
	return e.code
}

// Unwrap gives errors.Is/errors.As access to the parent chain.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.parent
}

// Location returns the file:line the error was constructed at, for log
// correlation; empty when the frame could not be captured.
func (e *Error) Location() (file string, line int) {
	if e == nil {
		return "", 0
	}
	return e.file, e.line
}

// New builds an Error with the given code and message, capturing the
// caller's frame and wrapping parent (may be nil).
func New(code Code, msg string, parent error) *Error {
	file, line := getFrame()
	return &Error{code: code, msg: msg, parent: parent, file: file, line: line}
}

// Newf is New with fmt.Sprintf-style formatting of msg.
func Newf(code Code, parent error, pattern string, args ...any) *Error {
	file, line := getFrame()
	return &Error{code: code, msg: fmt.Sprintf(pattern, args...), parent: parent, file: file, line: line}
}

// Is reports whether err is (or wraps) an *Error with the given code.
func Is(err error, code Code) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code() == code
}

// Get returns err as *Error if it is one, and the ok flag.
func Get(err error) (e *Error, ok bool) {
	ok = errors.As(err, &e)
	return
}
