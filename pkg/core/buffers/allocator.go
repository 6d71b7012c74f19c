// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package buffers

import (
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/arrayflow/pkg/support/diagnostics"
)

// MaxAllocation is the largest host allocation a Buffer will request, in bytes.
const MaxAllocation int64 = 16 << 30

// Allocator provides host memory for self-allocated buffers.
type Allocator interface {
	// Allocate returns a zero-initialized block of size bytes.
	Allocate(size int) ([]byte, error)

	// Free is called once, when the buffer that owns the block is torn down.
	Free(block []byte)
}

// HeapAllocator allocates from the Go heap, whose objects don't move.
type HeapAllocator struct{}

// Allocate implements Allocator.
func (HeapAllocator) Allocate(size int) ([]byte, error) {
	if size < 0 || int64(size) > MaxAllocation {
		return nil, errors.Errorf("can't allocate %d bytes", size)
	}
	return make([]byte, size), nil
}

// Free implements Allocator. The memory is reclaimed by the garbage collector.
func (HeapAllocator) Free([]byte) {}

// allocationSize returns elemSize times the product of the non-zero extents, plus alignment bytes of slack.
// It reports an Allocation error on overflow.
func allocationSize(elemSize int, extents [MaxDimensions]int32, alignment int) int {
	size := int64(1)
	for _, extent := range extents {
		if extent == 0 {
			continue
		}
		if extent < 0 {
			diagnostics.Reportf(diagnostics.Allocation, "can't allocate buffer with negative extent %d (extents=%v)", extent, extents)
		}
		size *= int64(extent)
		if size > MaxAllocation {
			diagnostics.Reportf(diagnostics.Allocation,
				"buffer with extents %v of %d-byte elements exceeds the maximum allocation of %s",
				extents, elemSize, humanize.IBytes(uint64(MaxAllocation)))
		}
	}
	size = size*int64(elemSize) + int64(alignment)
	if size > MaxAllocation {
		diagnostics.Reportf(diagnostics.Allocation,
			"buffer with extents %v of %d-byte elements needs %s, more than the maximum allocation of %s",
			extents, elemSize, humanize.IBytes(uint64(size)), humanize.IBytes(uint64(MaxAllocation)))
	}
	return int(size)
}

// allocateAligned allocates the block for a self-allocated buffer and returns it together with its first
// address aligned to alignment.
func allocateAligned(allocator Allocator, size, alignment int) ([]byte, unsafe.Pointer) {
	block, err := allocator.Allocate(size)
	if err == nil && len(block) < size {
		err = errors.Errorf("allocator returned %d bytes, %d requested", len(block), size)
	}
	if err != nil {
		diagnostics.Reportf(diagnostics.Allocation, "failed to allocate %s for buffer: %v",
			humanize.IBytes(uint64(size)), err)
	}
	offset := 0
	for uintptr(unsafe.Pointer(&block[offset]))%uintptr(alignment) != 0 {
		offset++
	}
	if klog.V(2).Enabled() {
		klog.Infof("buffers: allocated %s (aligned offset %d)", humanize.IBytes(uint64(size)), offset)
	}
	return block, unsafe.Pointer(&block[offset])
}
