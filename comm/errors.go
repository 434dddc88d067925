// The MIT License (MIT)
//
// Copyright (c) 2025 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package comm

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies the façade's error conditions.
type Kind int

const (
	// InvalidArgument: reserved tag, unregistered tag, duplicate
	// registration, zero-length payload.
	InvalidArgument Kind = iota
	// InvalidState: call sequence violation (send after finalize, double-init).
	InvalidState
	// TransportFailure: unrecoverable condition surfaced from the transport.
	TransportFailure
	// QueueClosed: enqueue attempted after push-disable.
	QueueClosed
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case InvalidState:
		return "InvalidState"
	case TransportFailure:
		return "TransportFailure"
	case QueueClosed:
		return "QueueClosed"
	default:
		return "Unknown"
	}
}

// Error is the façade's typed error, wrapping an underlying cause (if
// any) with github.com/pkg/errors so a stack trace is attached at the
// point of construction.
type Error struct {
	Kind Kind
	Op   string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("comm: %s: %s: %v", e.Op, e.Kind, e.err)
	}
	return fmt.Sprintf("comm: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.err }

func newErr(op string, kind Kind, msg string) *Error {
	return &Error{Kind: kind, Op: op, err: errors.New(msg)}
}

func wrapErr(op string, kind Kind, cause error) *Error {
	return &Error{Kind: kind, Op: op, err: errors.WithStack(cause)}
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
