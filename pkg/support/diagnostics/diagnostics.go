// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package diagnostics is the process-wide channel for usage errors.
//
// Usage errors are programming mistakes in the use of the buffers and reduction domain APIs (accessing an
// undefined Buffer, indexing a reduction domain out of range, etc.). They are not meant to be handled: Reportf
// hands the error to the current Sink and then panics with it, halting the construct being built.
//
// Callers that prefer a value (tests, mostly) can recover it with exceptions.TryCatch:
//
//	err := exceptions.TryCatch[*diagnostics.UserError](func() { rdom.New("r").Expr() })
package diagnostics

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Kind classifies a UserError.
type Kind int

//go:generate go tool enumer -type=Kind -output=gen_kind_enumer.go diagnostics.go

const (
	InvalidKind Kind = iota

	// UndefinedHandle is raised when an accessor is used on an undefined Buffer.
	UndefinedHandle

	// VectorType is raised when a Buffer is constructed with a vector element type.
	VectorType

	// IndexOutOfRange is raised when indexing dimensions of a Buffer, RDom or ReductionDomain.
	IndexOutOfRange

	// AmbiguousRank is raised when a multidimensional RDom is converted to a single RVar or Expr.
	AmbiguousRank

	// UndefinedRVar is raised when an RVar without min or extent is converted to an Expr.
	UndefinedRVar

	// Allocation is raised when the host memory for a Buffer can't be obtained.
	Allocation

	// InvalidArgument covers the remaining malformed arguments.
	InvalidArgument
)

// UserError is the value Reportf panics with.
type UserError struct {
	Kind Kind

	// Message is the human-readable description, naming the offending entity.
	Message string

	// Location is "file:line" of where the error was detected.
	Location string

	// err holds the stack trace.
	err error
}

// Error implements error.
func (e *UserError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Location, e.Message)
}

// Unwrap returns the underlying error, which carries the stack trace where the error was detected.
func (e *UserError) Unwrap() error { return e.err }

// Format implements fmt.Formatter: "%+v" includes the stack trace.
func (e *UserError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		_, _ = fmt.Fprintf(s, "%s (%s): %+v", e.Kind, e.Location, e.err)
		return
	}
	_, _ = fmt.Fprint(s, e.Error())
}

// Sink receives every UserError before it is raised.
type Sink func(err *UserError)

// LogSink is the default Sink: it logs the error with klog at verbosity 1.
func LogSink(err *UserError) {
	if klog.V(1).Enabled() {
		klog.Infof("usage error: %+v", err)
	}
}

var (
	muSink sync.Mutex
	sink   Sink = LogSink
)

// SetSink sets the process-wide Sink and returns the previous one. A nil sink disables reporting
// (errors are still raised).
func SetSink(s Sink) (previous Sink) {
	muSink.Lock()
	defer muSink.Unlock()
	previous = sink
	sink = s
	return
}

// New creates the UserError without raising it. The location is taken from the caller skip frames above New.
func New(skip int, kind Kind, format string, args ...any) *UserError {
	msg := fmt.Sprintf(format, args...)
	location := "<unknown>"
	if _, file, line, ok := runtime.Caller(skip + 1); ok {
		location = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	return &UserError{
		Kind:     kind,
		Message:  msg,
		Location: location,
		err:      errors.New(msg),
	}
}

// Reportf creates a UserError located at the caller, hands it to the Sink and panics with it.
// It never returns.
func Reportf(kind Kind, format string, args ...any) {
	Raise(New(1, kind, format, args...))
}

// Raise hands an already created UserError to the Sink and panics with it.
func Raise(err *UserError) {
	muSink.Lock()
	s := sink
	muSink.Unlock()
	if s != nil {
		s(err)
	}
	// Panic with the *UserError itself, not wrapped, so exceptions.TryCatch[*UserError] recovers it.
	panic(err)
}
