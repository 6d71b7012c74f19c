// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simdevice

import (
	"unsafe"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/gomlx/arrayflow/pkg/core/buffers"
)

// Numeric are the element types the simulated kernels can compute with.
type Numeric interface {
	int32 | int64 | uint8 | uint32 | uint64 | float32 | float64
}

// deviceSlice returns the device memory of b as a []T, checking T matches the buffer type.
func deviceSlice[T dtypes.Supported](m *Module, b buffers.Buffer) ([]T, error) {
	want := dtypes.FromGenericsType[T]()
	if b.Type().DType != want {
		return nil, errors.Errorf("kernel for %s can't run on buffer %q of type %s", want, b.Name(), b.Type())
	}
	desc := b.RawBuffer()
	if desc.Dev == 0 {
		return nil, errors.Errorf("buffer %q has no device memory", b.Name())
	}
	mem, err := m.lookup(desc.Dev)
	if err != nil {
		return nil, err
	}
	var zero T
	n := len(mem) / int(unsafe.Sizeof(zero))
	if n == 0 {
		return nil, nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&mem[0])), n), nil
}

// launch runs kernel over the device memory of b and marks the device as dirty.
// The device memory is allocated if needed, but the host data is not copied.
func launch[T dtypes.Supported](m *Module, b buffers.Buffer, kernel func(flat []T)) error {
	if !b.Defined() {
		return errors.New("kernel launched on an undefined buffer")
	}
	if err := m.Allocate(b.RawBuffer()); err != nil {
		return err
	}
	flat, err := deviceSlice[T](m, b)
	if err != nil {
		return err
	}
	kernel(flat)
	b.RawBuffer().DevDirty = true
	m.stats.kernelLaunches.Add(1)
	return nil
}

// Fill sets every element of the device memory of b to value.
func Fill[T dtypes.Supported](m *Module, b buffers.Buffer, value T) error {
	return launch(m, b, func(flat []T) {
		m.pool.ParallelFor(len(flat), func(start, end int) {
			for i := start; i < end; i++ {
				flat[i] = value
			}
		})
	})
}

// Scale multiplies every element of the device memory of b by factor.
func Scale[T Numeric](m *Module, b buffers.Buffer, factor T) error {
	return launch(m, b, func(flat []T) {
		m.pool.ParallelFor(len(flat), func(start, end int) {
			for i := start; i < end; i++ {
				flat[i] *= factor
			}
		})
	})
}
