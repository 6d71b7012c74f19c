// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package buffers

import (
	"fmt"
	"testing"
	"unsafe"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
	"k8s.io/klog/v2"

	"github.com/gomlx/arrayflow/pkg/core/ir"
	"github.com/gomlx/arrayflow/pkg/support/diagnostics"
)

func init() {
	klog.InitFlags(nil)
}

func catchUserError(fn func()) *diagnostics.UserError {
	return exceptions.TryCatch[*diagnostics.UserError](fn)
}

// recordingAllocator records allocations and frees, and appends "host_free" to events.
type recordingAllocator struct {
	events *[]string
	allocs int
	frees  int
	failAt int
}

func (a *recordingAllocator) Allocate(size int) ([]byte, error) {
	a.allocs++
	if a.failAt > 0 && size >= a.failAt {
		return nil, fmt.Errorf("out of memory for %d bytes", size)
	}
	return make([]byte, size), nil
}

func (a *recordingAllocator) Free([]byte) {
	a.frees++
	*a.events = append(*a.events, "host_free")
}

func TestAlignmentAndStrides(t *testing.T) {
	types := []ir.Type{ir.Int(8), ir.Int(16), ir.Int(32), ir.Float(32), ir.Float(64), ir.UInt(64)}
	extentsList := [][]int{{}, {1}, {7}, {3, 5}, {2, 3, 4}, {2, 3, 4, 5}, {0, 0, 0, 0}, {13, 1, 7}}
	for _, dtype := range types {
		for _, extents := range extentsList {
			b := Make(dtype, extents...)
			require.True(t, b.Defined())
			assert.Zero(t, uintptr(b.HostPtr())%DefaultAlignment, "type %s, extents %v", dtype, extents)
			var e [4]int
			copy(e[:], extents)
			assert.Equal(t, 1, b.Stride(0))
			assert.Equal(t, e[0], b.Stride(1))
			assert.Equal(t, e[0]*e[1], b.Stride(2))
			assert.Equal(t, e[0]*e[1]*e[2], b.Stride(3))
			for dim := range MaxDimensions {
				assert.Equal(t, 0, b.Min(dim))
				assert.Equal(t, e[dim], b.Extent(dim))
			}
			assert.True(t, b.OwnsHostMemory())
			b.Release()
		}
	}
}

func TestCustomAlignment(t *testing.T) {
	cfg, err := ParseConfig("alignment=128")
	require.NoError(t, err)
	for range 10 {
		b := cfg.New(ir.Int(8), []int{3}, nil, "")
		assert.Zero(t, uintptr(b.HostPtr())%128)
		b.Release()
	}
}

func TestZeroInitialized(t *testing.T) {
	b := Make(ir.Float(32), 4, 3)
	defer b.Release()
	data := HostSlice[float32](b)
	require.Len(t, data, 12)
	for _, v := range data {
		require.Zero(t, v)
	}
}

func TestDimensions(t *testing.T) {
	for _, tc := range []struct {
		extents []int
		want    int
	}{
		{nil, 0},
		{[]int{0, 0, 0, 0}, 0},
		{[]int{5}, 1},
		{[]int{5, 6}, 2},
		{[]int{5, 6, 7}, 3},
		{[]int{5, 6, 7, 8}, 4},
		{[]int{5, 0, 7, 8}, 1}, // The first zero terminates.
		{[]int{0, 6}, 0},
	} {
		b := Make(ir.Int(32), tc.extents...)
		assert.Equal(t, tc.want, b.Dimensions(), "extents=%v", tc.extents)
		b.Release()
	}
}

func TestIdentity(t *testing.T) {
	a := Make(ir.Float(32), 10, 20)
	shared := a.Share()
	copied := a
	assert.True(t, a.SameAs(shared))
	assert.True(t, a.SameAs(copied))
	assert.Equal(t, 2, a.References())

	other := Make(ir.Float(32), 10, 20)
	assert.False(t, a.SameAs(other))
	assert.NotEqual(t, a.Name(), other.Name())

	var undefined1, undefined2 Buffer
	assert.True(t, undefined1.SameAs(undefined2))
	assert.False(t, undefined1.SameAs(a))

	shared.Release()
	assert.False(t, shared.Defined())
	assert.Equal(t, 1, a.References())
	a.Release()
	other.Release()
}

func TestTeardownOrder(t *testing.T) {
	var events []string
	alloc := &recordingAllocator{events: &events}
	cfg := Config{Alignment: DefaultAlignment, Allocator: alloc}

	b := cfg.New(ir.Float(32), []int{8, 8}, nil, "owned")
	b.SetSourceModule(DeviceCallbacks{
		FreeDeviceBuffer: func(desc *Descriptor) {
			// Host memory must still be there.
			require.NotNil(t, desc.Host)
			events = append(events, "device_free")
		},
	})
	b2 := b.Share()
	b.Release()
	assert.Empty(t, events, "buffer still referenced by b2")

	b2.Release()
	assert.Equal(t, []string{"device_free", "host_free"}, events)
	assert.Equal(t, 1, alloc.allocs)
	assert.Equal(t, 1, alloc.frees)

	// Releasing undefined handles is a no-op.
	b2.Release()
	assert.Equal(t, []string{"device_free", "host_free"}, events)
}

func TestExternalMemoryNeverFreed(t *testing.T) {
	var events []string
	alloc := &recordingAllocator{events: &events}
	cfg := Config{Alignment: DefaultAlignment, Allocator: alloc}

	data := make([]int32, 6)
	data[4] = 42
	freed := 0
	b := cfg.New(ir.Int(32), []int{2, 3}, unsafe.Pointer(&data[0]), "external")
	assert.False(t, b.OwnsHostMemory())
	assert.Equal(t, unsafe.Pointer(&data[0]), b.HostPtr())
	assert.Equal(t, int32(42), At[int32](b, 0, 2))
	b.SetSourceModule(DeviceCallbacks{FreeDeviceBuffer: func(*Descriptor) { freed++ }})
	b.Release()
	assert.Equal(t, 1, freed)
	assert.Zero(t, alloc.allocs)
	assert.Zero(t, alloc.frees)
	assert.Empty(t, events)
}

func TestNoModuleTeardown(t *testing.T) {
	var events []string
	alloc := &recordingAllocator{events: &events}
	b := Config{Allocator: alloc}.New(ir.Int(8), []int{3}, nil, "")
	b.Release()
	assert.Equal(t, []string{"host_free"}, events)
}

func TestTooManyReleases(t *testing.T) {
	b := Make(ir.Int(8), 3)
	alias := b // Not counted.
	b.Release()
	require.Panics(t, func() { alias.Release() })
}

func TestUseAfterRelease(t *testing.T) {
	var events []string
	alloc := &recordingAllocator{events: &events}
	b := Config{Allocator: alloc}.New(ir.Float(32), []int{4}, nil, "released")
	alias := b // Not counted.
	b.Release()
	assert.Equal(t, []string{"host_free"}, events)

	assert.False(t, alias.Defined())
	assert.Equal(t, `Buffer("released", released)`, alias.String())
	accessors := map[string]func(){
		"HostPtr":    func() { alias.HostPtr() },
		"Dimensions": func() { alias.Dimensions() },
		"Extent":     func() { alias.Extent(0) },
		"Share":      func() { alias.Share() },
		"HostSlice":  func() { HostSlice[float32](alias) },
		"SyncHost":   func() { alias.SyncHost() },
	}
	for name, accessor := range accessors {
		err := catchUserError(accessor)
		require.NotNil(t, err, "accessor %s", name)
		assert.Equal(t, diagnostics.UndefinedHandle, err.Kind, "accessor %s", name)
		assert.Contains(t, err.Message, `released Buffer "released"`)
	}
	assert.Equal(t, []string{"host_free"}, events, "nothing freed twice")
}

func TestVectorTypeFails(t *testing.T) {
	for _, extents := range [][]int{{}, {4}, {4, 4}, {0, 0, 0, 0}} {
		err := catchUserError(func() { Make(ir.Float(32).WithLanes(4), extents...) })
		require.NotNil(t, err, "extents=%v", extents)
		assert.Equal(t, diagnostics.VectorType, err.Kind)
	}
	err := catchUserError(func() { NewFromDescriptor(ir.Int(32).WithLanes(2), &Descriptor{}, "") })
	require.NotNil(t, err)
	assert.Equal(t, diagnostics.VectorType, err.Kind)
	err = catchUserError(func() { Make(ir.Int(32).WithLanes(0), 4) })
	require.NotNil(t, err)
	assert.Equal(t, diagnostics.VectorType, err.Kind)
}

func TestUndefinedAccessFails(t *testing.T) {
	var b Buffer
	assert.False(t, b.Defined())
	assert.Equal(t, "Buffer(undefined)", b.String())
	accessors := map[string]func(){
		"HostPtr":          func() { b.HostPtr() },
		"RawBuffer":        func() { b.RawBuffer() },
		"DeviceHandle":     func() { b.DeviceHandle() },
		"HostDirty":        func() { b.HostDirty() },
		"DeviceDirty":      func() { b.DeviceDirty() },
		"SetHostDirty":     func() { b.SetHostDirty(true) },
		"SetDeviceDirty":   func() { b.SetDeviceDirty(true) },
		"Dimensions":       func() { b.Dimensions() },
		"Extent":           func() { b.Extent(0) },
		"Stride":           func() { b.Stride(0) },
		"Min":              func() { b.Min(0) },
		"SetMin":           func() { b.SetMin(1) },
		"Type":             func() { b.Type() },
		"Name":             func() { b.Name() },
		"Argument":         func() { b.Argument() },
		"Share":            func() { b.Share() },
		"CopyToHost":       func() { b.CopyToHost() },
		"CopyToDevice":     func() { b.CopyToDevice() },
		"FreeDeviceBuffer": func() { b.FreeDeviceBuffer() },
		"HostSlice":        func() { HostSlice[float32](b) },
	}
	for name, accessor := range accessors {
		err := catchUserError(accessor)
		require.NotNil(t, err, "accessor %s", name)
		assert.Equal(t, diagnostics.UndefinedHandle, err.Kind, "accessor %s", name)
	}
}

func TestDimensionOutOfRange(t *testing.T) {
	b := Make(ir.Int(32), 2, 2)
	defer b.Release()
	for _, dim := range []int{-1, 4, 10} {
		err := catchUserError(func() { b.Extent(dim) })
		require.NotNil(t, err)
		assert.Equal(t, diagnostics.IndexOutOfRange, err.Kind)
	}
	err := catchUserError(func() { Make(ir.Int(32), 1, 2, 3, 4, 5) })
	require.NotNil(t, err)
	assert.Equal(t, diagnostics.InvalidArgument, err.Kind)
}

func TestAllocationFailure(t *testing.T) {
	err := catchUserError(func() { Make(ir.Float(64), 1<<20, 1<<20) })
	require.NotNil(t, err)
	assert.Equal(t, diagnostics.Allocation, err.Kind)

	var events []string
	alloc := &recordingAllocator{events: &events, failAt: 1024}
	err = catchUserError(func() { Config{Allocator: alloc}.New(ir.Int(8), []int{2048}, nil, "") })
	require.NotNil(t, err)
	assert.Equal(t, diagnostics.Allocation, err.Kind)
	assert.Contains(t, err.Message, "out of memory")
}

func TestDirtyFlags(t *testing.T) {
	b := Make(ir.Int(16), 4)
	defer b.Release()
	assert.False(t, b.HostDirty())
	assert.False(t, b.DeviceDirty())
	b.SetHostDirty(true)
	assert.True(t, b.HostDirty())
	assert.False(t, b.DeviceDirty())
	b.SetDeviceDirty(true)
	assert.True(t, b.DeviceDirty())
	b.SetHostDirty(false)
	b.SetDeviceDirty(false)
	assert.False(t, b.HostDirty())
	assert.False(t, b.DeviceDirty())
}

func TestLegacyDeviceDirty(t *testing.T) {
	cfg, err := ParseConfig("legacy_device_dirty")
	require.NoError(t, err)
	b := cfg.New(ir.Int(16), []int{4}, nil, "")
	defer b.Release()
	b.SetDeviceDirty(true)
	assert.True(t, b.HostDirty())
	assert.False(t, b.DeviceDirty())
}

func TestSetMinAndOffset(t *testing.T) {
	b := Make(ir.Int(32), 10, 20)
	defer b.Release()
	b.SetMin(5, -3)
	assert.Equal(t, 5, b.Min(0))
	assert.Equal(t, -3, b.Min(1))
	assert.Equal(t, 0, b.Min(2))
	assert.Equal(t, 0, b.Offset(5, -3))
	assert.Equal(t, 1+2*10, b.Offset(6, -1))

	Set[int32](b, 7, 14, 16)
	assert.True(t, b.HostDirty())
	assert.Equal(t, int32(7), At[int32](b, 14, 16))
	assert.Equal(t, int32(7), HostSlice[int32](b)[199])

	// Min doesn't touch the allocation.
	ptr := b.HostPtr()
	b.SetMin()
	assert.Equal(t, ptr, b.HostPtr())
	assert.Equal(t, 0, b.Min(0))

	err := catchUserError(func() { b.SetMin(1, 2, 3, 4, 5) })
	require.NotNil(t, err)
	err = catchUserError(func() { b.Offset(1) })
	require.NotNil(t, err)
}

func TestHostSliceTypes(t *testing.T) {
	b := Make(ir.Float(16), 3)
	defer b.Release()
	Set(b, float16.Fromfloat32(1.5), 2)
	assert.Equal(t, float32(1.5), At[float16.Float16](b, 2).Float32())

	err := catchUserError(func() { HostSlice[float32](b) })
	require.NotNil(t, err)
	assert.Equal(t, diagnostics.InvalidArgument, err.Kind)

	bf := Make(ir.Make(dtypes.BFloat16), 2, 2)
	defer bf.Release()
	assert.Equal(t, 2*2*2, bf.Memory())
	Set(bf, bfloat16.FromFloat32(-2), 1, 1)
	assert.Equal(t, float32(-2), HostSlice[bfloat16.BFloat16](bf)[3].Float32())
}

func TestFromDescriptor(t *testing.T) {
	data := make([]float64, 12)
	desc := &Descriptor{
		Host:     unsafe.Pointer(&data[0]),
		Extent:   [4]int32{3, 4},
		Stride:   [4]int32{1, 3},
		Min:      [4]int32{10, 20},
		ElemSize: 8,
		Dev:      77,
	}
	b := NewFromDescriptor(ir.Float(64), desc, "")
	defer b.Release()
	assert.Equal(t, *desc, *b.RawBuffer())
	assert.NotSame(t, desc, b.RawBuffer(), "descriptor must be copied")
	assert.Equal(t, uint64(77), b.DeviceHandle())
	assert.Equal(t, 2, b.Dimensions())
	assert.Equal(t, 10, b.Min(0))
	assert.False(t, b.OwnsHostMemory())
	assert.NotEmpty(t, b.Name())

	desc.Extent[0] = 100
	assert.Equal(t, 3, b.Extent(0))
}

func TestArgument(t *testing.T) {
	b := New(ir.UInt(8), []int{4, 4}, nil, "input")
	defer b.Release()
	assert.Equal(t, ir.Argument{Name: "input", IsBuffer: true, Type: ir.UInt(8)}, b.Argument())
	assert.Equal(t, 16, b.Size())
	assert.Equal(t, 16, b.Memory())
	assert.Contains(t, b.String(), `"input"`)
}

func TestDeviceCallbacks(t *testing.T) {
	b := Make(ir.Float(32), 4)
	defer b.Release()

	// Unbound: all no-ops.
	assert.False(t, b.SourceModule().IsBound())
	b.CopyToHost()
	b.CopyToDevice()
	b.FreeDeviceBuffer()

	var calls []string
	b.SetSourceModule(DeviceCallbacks{
		CopyToHost:   func(desc *Descriptor) { calls = append(calls, "to_host"); desc.DevDirty = false },
		CopyToDevice: func(desc *Descriptor) { calls = append(calls, "to_device"); desc.HostDirty = false },
	})
	assert.True(t, b.SourceModule().IsBound())

	// Plain copies don't look at the flags.
	b.CopyToHost()
	b.CopyToDevice()
	assert.Equal(t, []string{"to_host", "to_device"}, calls)

	// Sync only copies when dirty.
	calls = nil
	b.SyncHost()
	b.SyncDevice()
	assert.Empty(t, calls)
	b.SetDeviceDirty(true)
	b.SyncHost()
	assert.Equal(t, []string{"to_host"}, calls)
	assert.False(t, b.DeviceDirty())
	b.SetHostDirty(true)
	b.SyncDevice()
	assert.Equal(t, []string{"to_host", "to_device"}, calls)

	// No FreeDeviceBuffer bound: explicit free is a no-op.
	b.FreeDeviceBuffer()
}
