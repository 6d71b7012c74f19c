// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package buffers implements Buffer, a reference-counted handle to a multidimensional array whose data may
// live on the host and/or on an accelerator device.
//
// A Buffer wraps a Descriptor, the raw record of shape, memory locations and dirty flags shared with compiled
// pipelines. The memory is either allocated by the Buffer itself (and freed with it) or provided by the
// caller (and never freed by the Buffer).
//
// A Buffer produced on a device by a compiled module is bound to that module's DeviceCallbacks, which know how
// to move the data between host and device, and how to free the device memory. The dirty flags record which
// side holds the latest data; plain CopyToHost and CopyToDevice don't look at them, SyncHost and SyncDevice do.
//
// Ownership: each handle returned by New, NewFromDescriptor or Buffer.Share holds one reference, dropped with
// Buffer.Release. When the last reference is released the device memory is freed (through the bound
// FreeDeviceBuffer callback) and only then the self-allocated host memory. Buffers never released are torn
// down the same way when garbage collected, and reported as leaks (see Config.LeakCheck).
//
// Buffers are not safe for concurrent mutation.
package buffers

import (
	"fmt"
	"math"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"

	"github.com/gomlx/arrayflow/pkg/core/ir"
	"github.com/gomlx/arrayflow/pkg/support/diagnostics"
	"github.com/gomlx/arrayflow/pkg/support/naming"
)

// storage is what gets torn down when the last reference to a Buffer goes away. It is kept apart from
// contents so that the garbage collection cleanup can run after contents becomes unreachable.
type storage struct {
	buf   Descriptor
	dtype ir.Type
	name  string

	// allocation is set if the Buffer allocated the host memory itself, and hence must free it.
	// Otherwise, buf.Host is owned by the caller.
	allocation []byte
	allocator  Allocator

	// module of the compiled pipeline that produced this buffer, if any.
	module DeviceCallbacks

	tornDown atomic.Bool
}

// teardown frees the device memory and then the owned host memory. Only the first call has any effect.
func (s *storage) teardown() {
	if !s.tornDown.CompareAndSwap(false, true) {
		return
	}
	if s.module.FreeDeviceBuffer != nil {
		klog.V(1).Infof("buffers: freeing device memory of %q (dev=%d)", s.name, s.buf.Dev)
		s.module.FreeDeviceBuffer(&s.buf)
	}
	if s.allocation != nil {
		klog.V(2).Infof("buffers: freeing %s of host memory of %q",
			humanize.IBytes(uint64(len(s.allocation))), s.name)
		s.allocator.Free(s.allocation)
		s.allocation = nil
		s.buf.Host = nil
	}
}

type contents struct {
	*storage

	refs    atomic.Int64
	config  Config
	cleanup runtime.Cleanup
}

func newContents(cfg Config, s *storage) *contents {
	c := &contents{storage: s, config: cfg}
	c.refs.Store(1)
	leakCheck := cfg.LeakCheck
	c.cleanup = runtime.AddCleanup(c, func(s *storage) {
		if leakCheck == LeakCheckWarn {
			klog.Warningf("buffers: Buffer %q garbage collected without being released", s.name)
		}
		s.teardown()
	}, s)
	return c
}

// Buffer is a handle to a reference-counted multidimensional array. The zero value is undefined: it can only
// be checked with Defined (and compared with SameAs); any other method on it is a usage error.
//
// Copying the Buffer struct shares the same contents but doesn't take a new reference: use Share for a new
// counted handle.
type Buffer struct {
	contents *contents
}

// New creates a Buffer of element type t with up to 4 extents, using DefaultConfig.
//
// If data is nil, the memory is allocated and zeroed by the Buffer, with the host pointer aligned to
// Config.Alignment bytes. Otherwise, data must point to memory laid out with the same row-major strides, and
// it is never freed by the Buffer.
//
// If name is empty a unique name is generated.
//
// It is a usage error to create a buffer with a vector element type.
func New(t ir.Type, extents []int, data unsafe.Pointer, name string) Buffer {
	return DefaultConfig.New(t, extents, data, name)
}

// Make creates a self-allocated Buffer of element type t with the given extents, using DefaultConfig.
func Make(t ir.Type, extents ...int) Buffer {
	return DefaultConfig.New(t, extents, nil, "")
}

// NewFromDescriptor creates a Buffer wrapping a copy of desc, using DefaultConfig.
// No memory is allocated, and the memory pointed by desc is never freed by the Buffer.
func NewFromDescriptor(t ir.Type, desc *Descriptor, name string) Buffer {
	return DefaultConfig.NewFromDescriptor(t, desc, name)
}

func checkScalarType(t ir.Type) {
	if !t.IsScalar() {
		diagnostics.Raise(diagnostics.New(2, diagnostics.VectorType,
			"can't create a buffer of the non-scalar type %s", t))
	}
}

func (cfg Config) allocator() Allocator {
	if cfg.Allocator == nil {
		return HeapAllocator{}
	}
	return cfg.Allocator
}

func (cfg Config) alignment() int {
	if cfg.Alignment <= 0 {
		return DefaultAlignment
	}
	return cfg.Alignment
}

// New is like the package New, but with configuration cfg.
func (cfg Config) New(t ir.Type, extents []int, data unsafe.Pointer, name string) Buffer {
	checkScalarType(t)
	if len(extents) > MaxDimensions {
		diagnostics.Reportf(diagnostics.InvalidArgument,
			"buffers support at most %d dimensions, got extents %v", MaxDimensions, extents)
	}
	if name == "" {
		name = naming.Unique("b")
	}
	s := &storage{dtype: t, name: name, allocator: cfg.allocator()}
	s.buf.ElemSize = int32(t.Bytes())
	for i, extent := range extents {
		if extent < 0 || extent > math.MaxInt32 {
			diagnostics.Reportf(diagnostics.InvalidArgument, "invalid extent %d for dimension %d of buffer %q", extent, i, name)
		}
		s.buf.Extent[i] = int32(extent)
	}
	if data == nil {
		alignment := cfg.alignment()
		size := allocationSize(t.Bytes(), s.buf.Extent, alignment)
		s.allocation, s.buf.Host = allocateAligned(s.allocator, size, alignment)
	} else {
		s.buf.Host = data
	}
	stride := int64(1)
	for i := range MaxDimensions {
		if stride > math.MaxInt32 {
			diagnostics.Reportf(diagnostics.InvalidArgument, "buffer %q with extents %v overflows the 32-bit strides", name, extents)
		}
		s.buf.Stride[i] = int32(stride)
		stride *= int64(s.buf.Extent[i])
	}
	return Buffer{contents: newContents(cfg, s)}
}

// NewFromDescriptor is like the package NewFromDescriptor, but with configuration cfg.
func (cfg Config) NewFromDescriptor(t ir.Type, desc *Descriptor, name string) Buffer {
	checkScalarType(t)
	if desc == nil {
		diagnostics.Reportf(diagnostics.InvalidArgument, "NewFromDescriptor called with a nil descriptor")
	}
	if name == "" {
		name = naming.Unique("b")
	}
	s := &storage{buf: *desc, dtype: t, name: name, allocator: cfg.allocator()}
	return Buffer{contents: newContents(cfg, s)}
}

// Defined returns whether b refers to an actual buffer. A copy of a handle whose buffer was torn down by
// Release is no longer defined.
func (b Buffer) Defined() bool { return b.contents != nil && !b.contents.tornDown.Load() }

// SameAs returns whether b and other refer to the same buffer (identity, not equality of data).
func (b Buffer) SameAs(other Buffer) bool { return b.contents == other.contents }

// Share returns a new handle to the same buffer, holding its own reference.
func (b Buffer) Share() Buffer {
	c := b.mustContents()
	c.refs.Add(1)
	return Buffer{contents: c}
}

// Release drops the reference held by this handle, which becomes undefined. Releasing the last reference
// tears the buffer down. It's a no-op on an undefined handle.
func (b *Buffer) Release() {
	c := b.contents
	if c == nil {
		return
	}
	b.contents = nil
	remaining := c.refs.Add(-1)
	switch {
	case remaining == 0:
		c.cleanup.Stop()
		c.teardown()
	case remaining < 0:
		exceptions.Panicf("Buffer %q released more times than it was referenced", c.name)
	}
}

// References returns the number of references currently held to the buffer.
func (b Buffer) References() int {
	return int(b.mustContents().refs.Load())
}

// mustContents returns the contents, or reports an UndefinedHandle error located at the caller's caller.
func (b Buffer) mustContents() *contents {
	if b.contents == nil {
		diagnostics.Raise(diagnostics.New(2, diagnostics.UndefinedHandle, "use of an undefined Buffer"))
	}
	if b.contents.tornDown.Load() {
		diagnostics.Raise(diagnostics.New(2, diagnostics.UndefinedHandle, "use of released Buffer %q",
			b.contents.name))
	}
	return b.contents
}

func (b Buffer) checkDim(dim int) *contents {
	c := b.mustContents()
	if dim < 0 || dim >= MaxDimensions {
		diagnostics.Raise(diagnostics.New(2, diagnostics.IndexOutOfRange,
			"dimension %d of buffer %q out of range: only %d-dimensional buffers are supported",
			dim, c.name, MaxDimensions))
	}
	return c
}

// HostPtr returns a pointer to the host memory.
func (b Buffer) HostPtr() unsafe.Pointer { return b.mustContents().buf.Host }

// RawBuffer returns the Descriptor the Buffer wraps. It's the one passed to compiled pipelines and to the
// device callbacks, and it remains valid while the Buffer is referenced.
func (b Buffer) RawBuffer() *Descriptor { return &b.mustContents().buf }

// DeviceHandle returns the device handle, 0 if no device memory is associated with the buffer.
func (b Buffer) DeviceHandle() uint64 { return b.mustContents().buf.Dev }

// HostDirty returns whether the host memory was modified since last copied to the device.
func (b Buffer) HostDirty() bool { return b.mustContents().buf.HostDirty }

// SetHostDirty marks the host memory as modified, so a pipeline will copy it to the device before using it.
func (b Buffer) SetHostDirty(dirty bool) { b.mustContents().buf.HostDirty = dirty }

// DeviceDirty returns whether the device memory was modified since last copied to the host.
func (b Buffer) DeviceDirty() bool { return b.mustContents().buf.DevDirty }

// SetDeviceDirty marks the device memory as modified, so the host memory is stale.
//
// With Config.LegacyDeviceDirty it sets the host-dirty flag instead.
func (b Buffer) SetDeviceDirty(dirty bool) {
	c := b.mustContents()
	if c.config.LegacyDeviceDirty {
		c.buf.HostDirty = dirty
		return
	}
	c.buf.DevDirty = dirty
}

// Dimensions returns the number of leading non-zero extents.
func (b Buffer) Dimensions() int { return b.mustContents().buf.Dimensions() }

// Extent returns the number of elements in dimension dim.
func (b Buffer) Extent(dim int) int { return int(b.checkDim(dim).buf.Extent[dim]) }

// Stride returns the distance, in elements, between adjacent elements of dimension dim.
func (b Buffer) Stride(dim int) int { return int(b.checkDim(dim).buf.Stride[dim]) }

// Min returns the coordinate in dimension dim that corresponds to the host pointer.
func (b Buffer) Min(dim int) int { return int(b.checkDim(dim).buf.Min[dim]) }

// SetMin sets the coordinates of the element pointed by the host pointer. Missing dimensions are set to 0.
// It doesn't change the memory.
func (b Buffer) SetMin(mins ...int) {
	c := b.mustContents()
	if len(mins) > MaxDimensions {
		diagnostics.Reportf(diagnostics.InvalidArgument, "SetMin(%v) on buffer %q: at most %d dimensions", mins, c.name, MaxDimensions)
	}
	c.buf.Min = [MaxDimensions]int32{}
	for i, m := range mins {
		c.buf.Min[i] = int32(m)
	}
}

// Type returns the element type.
func (b Buffer) Type() ir.Type { return b.mustContents().dtype }

// Name returns the name of the buffer, used for debugging and as argument name.
func (b Buffer) Name() string { return b.mustContents().name }

// Argument returns the pipeline argument this buffer is passed as.
func (b Buffer) Argument() ir.Argument {
	c := b.mustContents()
	return ir.Argument{Name: c.name, IsBuffer: true, Type: c.dtype}
}

// Size returns the number of elements: the product of the extents of its dimensions.
func (b Buffer) Size() int {
	c := b.mustContents()
	size := 1
	for i := range c.buf.Dimensions() {
		size *= int(c.buf.Extent[i])
	}
	return size
}

// Memory returns the number of bytes of the elements of the buffer.
func (b Buffer) Memory() int { return b.Size() * int(b.mustContents().buf.ElemSize) }

// Offset returns the position, in elements relative to the host pointer, of the element at coords.
// One coordinate per dimension must be given.
func (b Buffer) Offset(coords ...int) int {
	c := b.mustContents()
	if len(coords) != c.buf.Dimensions() {
		diagnostics.Reportf(diagnostics.InvalidArgument, "buffer %q has %d dimensions, got coordinates %v",
			c.name, c.buf.Dimensions(), coords)
	}
	offset := 0
	for i, coord := range coords {
		offset += (coord - int(c.buf.Min[i])) * int(c.buf.Stride[i])
	}
	return offset
}

// OwnsHostMemory returns whether the host memory was allocated by the Buffer.
func (b Buffer) OwnsHostMemory() bool { return b.mustContents().allocation != nil }

// SetSourceModule binds the device callbacks of the compiled module that produced this buffer.
func (b Buffer) SetSourceModule(module DeviceCallbacks) { b.mustContents().module = module }

// SourceModule returns the bound device callbacks: all nil if no module is bound.
func (b Buffer) SourceModule() DeviceCallbacks { return b.mustContents().module }

// CopyToHost copies the device memory to the host using the bound module, if any.
// It doesn't check the dirty flags, see SyncHost.
func (b Buffer) CopyToHost() {
	c := b.mustContents()
	if c.module.CopyToHost != nil {
		c.module.CopyToHost(&c.buf)
	}
}

// CopyToDevice copies the host memory to the device using the bound module, if any.
// It doesn't check the dirty flags, see SyncDevice.
func (b Buffer) CopyToDevice() {
	c := b.mustContents()
	if c.module.CopyToDevice != nil {
		c.module.CopyToDevice(&c.buf)
	}
}

// FreeDeviceBuffer frees the device memory using the bound module, if any.
// It is also done automatically when the buffer is torn down.
func (b Buffer) FreeDeviceBuffer() {
	c := b.mustContents()
	if c.module.FreeDeviceBuffer != nil {
		c.module.FreeDeviceBuffer(&c.buf)
	}
}

// SyncHost copies the device memory to the host if the device is dirty.
func (b Buffer) SyncHost() {
	if b.DeviceDirty() {
		b.CopyToHost()
	}
}

// SyncDevice copies the host memory to the device if the host is dirty.
func (b Buffer) SyncDevice() {
	if b.HostDirty() {
		b.CopyToDevice()
	}
}

// String implements fmt.Stringer.
func (b Buffer) String() string {
	if b.contents == nil {
		return "Buffer(undefined)"
	}
	c := b.contents
	if c.tornDown.Load() {
		return fmt.Sprintf("Buffer(%q, released)", c.name)
	}
	return fmt.Sprintf("Buffer(%q, %s, extents=%v, %s)", c.name, c.dtype, c.buf.Extent[:c.buf.Dimensions()],
		humanize.IBytes(uint64(b.Memory())))
}
