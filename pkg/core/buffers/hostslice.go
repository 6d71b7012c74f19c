// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package buffers

import (
	"unsafe"

	"github.com/gomlx/gopjrt/dtypes"

	"github.com/gomlx/arrayflow/pkg/support/diagnostics"
)

// HostSlice returns a view of the host memory of b as a []T, covering all elements addressable by the
// buffer's extents and strides. Index it with Buffer.Offset.
//
// T must match the element type of the buffer. It returns nil if the buffer has no host memory.
// The view is valid while the buffer is referenced.
func HostSlice[T dtypes.Supported](b Buffer) []T {
	c := b.mustContents()
	want := dtypes.FromGenericsType[T]()
	if want != c.dtype.DType {
		diagnostics.Reportf(diagnostics.InvalidArgument, "HostSlice[%s] requested for buffer %q of type %s",
			want, c.name, c.dtype)
	}
	if c.buf.Host == nil {
		return nil
	}
	return unsafe.Slice((*T)(c.buf.Host), c.buf.SpanElements())
}

// At returns the element of b at coords, reading the host memory.
func At[T dtypes.Supported](b Buffer, coords ...int) T {
	return HostSlice[T](b)[b.Offset(coords...)]
}

// Set writes value at coords of the host memory of b, and marks the host as dirty.
func Set[T dtypes.Supported](b Buffer, value T, coords ...int) {
	HostSlice[T](b)[b.Offset(coords...)] = value
	b.SetHostDirty(true)
}
