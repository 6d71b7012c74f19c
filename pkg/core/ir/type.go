// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ir holds the parts of the symbolic expression surface that buffers and reduction domains depend on:
// element types, a minimal set of expression nodes, reduction variables and domains, and pipeline arguments.
//
// The full expression-tree compiler (scheduling, lowering, code generation) lives elsewhere and builds on
// these types.
package ir

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// Type is the type of a value in an expression or of the elements of a buffer: a scalar dtype and the number
// of vector lanes. Scalars have Lanes == 1.
type Type struct {
	DType dtypes.DType
	Lanes int
}

// Make returns the scalar Type for dtype.
func Make(dtype dtypes.DType) Type {
	return Type{DType: dtype, Lanes: 1}
}

// Int returns the signed integer scalar Type with the given number of bits.
func Int(bits int) Type {
	switch bits {
	case 8:
		return Make(dtypes.Int8)
	case 16:
		return Make(dtypes.Int16)
	case 32:
		return Make(dtypes.Int32)
	case 64:
		return Make(dtypes.Int64)
	}
	exceptions.Panicf("ir.Int(%d): only 8, 16, 32 and 64 bits are supported", bits)
	return Type{}
}

// UInt returns the unsigned integer scalar Type with the given number of bits.
func UInt(bits int) Type {
	switch bits {
	case 8:
		return Make(dtypes.Uint8)
	case 16:
		return Make(dtypes.Uint16)
	case 32:
		return Make(dtypes.Uint32)
	case 64:
		return Make(dtypes.Uint64)
	}
	exceptions.Panicf("ir.UInt(%d): only 8, 16, 32 and 64 bits are supported", bits)
	return Type{}
}

// Float returns the floating point scalar Type with the given number of bits.
func Float(bits int) Type {
	switch bits {
	case 16:
		return Make(dtypes.Float16)
	case 32:
		return Make(dtypes.Float32)
	case 64:
		return Make(dtypes.Float64)
	}
	exceptions.Panicf("ir.Float(%d): only 16, 32 and 64 bits are supported", bits)
	return Type{}
}

// WithLanes returns the vector version of t with n lanes.
func (t Type) WithLanes(n int) Type {
	t.Lanes = n
	return t
}

// IsScalar returns whether t has a single lane.
func (t Type) IsScalar() bool { return t.Lanes == 1 }

// IsVector returns whether t has more than one lane.
func (t Type) IsVector() bool { return t.Lanes > 1 }

// Bytes is the size of one lane of t.
func (t Type) Bytes() int { return int(t.DType.Memory()) }

// String implements fmt.Stringer: "Int32" for scalars, "Float32x8" for vectors.
func (t Type) String() string {
	if t.Lanes == 1 {
		return t.DType.String()
	}
	return fmt.Sprintf("%sx%d", t.DType, t.Lanes)
}
