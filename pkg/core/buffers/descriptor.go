// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package buffers

import "unsafe"

// MaxDimensions is the maximum number of dimensions a Descriptor can describe.
const MaxDimensions = 4

// Descriptor is the raw description of an array's memory, shared with compiled pipelines and device runtimes.
// Its field order is the binary layout exchanged with them and must not change.
//
// Extents beyond the dimensionality of the array are 0. Strides and mins are in elements, not bytes.
type Descriptor struct {
	// Dev is the opaque device handle, 0 if there is no device allocation.
	Dev uint64

	// Host points to the element at coordinates Min.
	Host unsafe.Pointer

	Extent [MaxDimensions]int32
	Stride [MaxDimensions]int32
	Min    [MaxDimensions]int32

	// ElemSize is the size of one element, in bytes.
	ElemSize int32

	// HostDirty is set when the host memory was modified and the device copy is stale.
	HostDirty bool

	// DevDirty is set when the device memory was modified and the host copy is stale.
	DevDirty bool
}

// Dimensions counts the leading non-zero extents.
func (d *Descriptor) Dimensions() int {
	for i, extent := range d.Extent {
		if extent == 0 {
			return i
		}
	}
	return MaxDimensions
}

// SpanElements returns the number of elements between the first and one past the last element addressed by
// the descriptor, assuming non-negative strides. It is 1 for a 0-dimensional descriptor.
func (d *Descriptor) SpanElements() int {
	span := 1
	for i := range d.Dimensions() {
		if d.Extent[i] > 0 && d.Stride[i] > 0 {
			span += int(d.Extent[i]-1) * int(d.Stride[i])
		}
	}
	return span
}

// SpanBytes returns SpanElements in bytes.
func (d *Descriptor) SpanBytes() int {
	return d.SpanElements() * int(d.ElemSize)
}

// HostBytes returns the host memory addressed by the descriptor as a byte slice, nil if Host is nil.
func (d *Descriptor) HostBytes() []byte {
	if d.Host == nil {
		return nil
	}
	return unsafe.Slice((*byte)(d.Host), d.SpanBytes())
}
